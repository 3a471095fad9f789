package trim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/maauso/marathon-media/internal/media"
)

// stallGrace is added on top of the clip length when computing the cut deadline.
const stallGrace = 250 * time.Millisecond

// Cutter re-encodes an interval of a video. media.Processor satisfies it.
type Cutter interface {
	Trim(ctx context.Context, src, dst string, start, end float64, container media.Container) error
}

// Allocator returns a fresh temp path with the given extension for the cut
// output. The caller owns and eventually removes the path.
type Allocator func(ext string) (string, error)

// Engine applies trim drafts to source videos.
type Engine struct {
	cutter  Cutter
	maxClip float64
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxClip overrides the clip cap in seconds.
func WithMaxClip(sec float64) Option {
	return func(e *Engine) {
		if sec > 0 {
			e.maxClip = sec
		}
	}
}

// WithTimeout sets the fixed part of the per-cut deadline.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// NewEngine creates an Engine around cutter.
func NewEngine(cutter Cutter, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		cutter:  cutter,
		maxClip: MaxClipSeconds,
		timeout: 2 * time.Minute,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MaxClip returns the clip cap in seconds.
func (e *Engine) MaxClip() float64 {
	return e.maxClip
}

// Deadline returns how long a cut of the draft's window may run.
func (e *Engine) Deadline(d *Draft) time.Duration {
	clip := time.Duration((d.End - d.Start) * float64(time.Second))
	return e.timeout + clip + stallGrace
}

// Run produces the clip selected by d.
//
// The window is validated before anything else happens. When the draft
// selects the whole of a video that already fits the cap, src itself is
// returned. When the cutter reports media.ErrUnsupported the original is
// returned if it fits the cap, otherwise ErrCannotTrim.
//
// A draft is busy while its cut runs, and a nested Run on it (for example
// from a Cutter that re-enters the engine) fails with ErrBusy. Run does not
// lock the draft; callers sharing one across goroutines serialize their
// calls, as editor.Service does per session.
func (e *Engine) Run(ctx context.Context, src *media.File, d *Draft, alloc Allocator) (*media.File, error) {
	if err := d.Validate(e.maxClip); err != nil {
		return nil, err
	}
	if d.processing {
		return nil, ErrBusy
	}
	if d.IsNoop(e.maxClip) {
		e.logger.Debug("trim is a no-op, keeping original", slog.String("file", src.Name))
		return src, nil
	}

	d.processing = true
	defer func() { d.processing = false }()

	container := media.ContainerFor(src)
	dst, err := alloc(container.Extension())
	if err != nil {
		return nil, fmt.Errorf("allocate output: %w", err)
	}

	cutCtx, cancel := context.WithTimeout(ctx, e.Deadline(d))
	defer cancel()

	start := time.Now()
	err = e.cutter.Trim(cutCtx, src.Path, dst, d.Start, d.End, container)
	if errors.Is(err, media.ErrUnsupported) {
		if d.Duration <= e.maxClip {
			e.logger.Warn("trimming unavailable, using original", slog.String("file", src.Name))
			return src, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrCannotTrim, err)
	}
	if err != nil {
		return nil, fmt.Errorf("cut video: %w", err)
	}

	info, err := os.Stat(dst)
	if err != nil {
		return nil, fmt.Errorf("stat output: %w", err)
	}

	e.logger.Info("video trimmed",
		slog.String("file", src.Name),
		slog.Float64("start", d.Start),
		slog.Float64("end", d.End),
		slog.String("container", string(container)),
		slog.Duration("took", time.Since(start)),
	)

	return &media.File{
		Path:        dst,
		Name:        clipName(src.Name, container),
		ContentType: container.ContentType(),
		Extension:   container.Extension(),
		Size:        info.Size(),
	}, nil
}

func clipName(name string, c media.Container) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if base == "" || base == "." {
		base = "clip"
	}
	return base + "-trim." + c.Extension()
}
