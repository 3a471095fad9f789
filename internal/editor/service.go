package editor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // register decoder
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/maauso/marathon-media/internal/activity"
	"github.com/maauso/marathon-media/internal/crop"
	"github.com/maauso/marathon-media/internal/media"
	"github.com/maauso/marathon-media/internal/storage"
	"github.com/maauso/marathon-media/internal/trim"
)

// Service errors. All of them leave an open session open.
var (
	// ErrSessionClosed is returned when editing an APPLIED or CANCELLED session.
	ErrSessionClosed = errors.New("session is closed")
	// ErrWrongKind is returned when a crop operation targets a trim session or vice versa.
	ErrWrongKind = errors.New("operation does not match session kind")
	// ErrUnknownPreset is returned for a crop preset that does not exist.
	ErrUnknownPreset = errors.New("unknown crop preset")
	// ErrInvalidPointer is returned for a pointer event other than down, move or up.
	ErrInvalidPointer = errors.New("invalid pointer event")
	// ErrDecodeImage is returned when an uploaded image cannot be decoded.
	ErrDecodeImage = errors.New("cannot decode image")
	// ErrApplyFailed is returned when rendering or publishing a result fails.
	ErrApplyFailed = errors.New("apply failed")
)

// DefaultMaxImagePixels bounds the decoded size of an uploaded image.
const DefaultMaxImagePixels = 40_000_000

// Upload is a client file.
type Upload struct {
	// Name is the client-side file name.
	Name string
	// Data is the file content.
	Data io.Reader
	// Duration is the media duration in seconds as reported by the client,
	// zero when unknown. It is only used for videos when probing is unavailable.
	Duration float64
}

// OpenCropInput contains the parameters for opening a crop session.
type OpenCropInput struct {
	Upload
	// Preset names the output raster size.
	Preset string
	// FrameWidth and FrameHeight size the on-screen frame. Both zero means the
	// preset size; one zero side is derived from the preset aspect.
	FrameWidth  int
	FrameHeight int
}

// OpenTrimInput contains the parameters for opening a trim session.
type OpenTrimInput struct {
	Upload
	// Target labels what the clip is for.
	Target string
}

// Pointer events accepted by UpdateCrop.
const (
	PointerDown = "down"
	PointerMove = "move"
	PointerUp   = "up"
)

// PointerEvent is a drag gesture step in frame pixels.
type PointerEvent struct {
	Event string
	X, Y  float64
}

// CropView is a partial update of a crop draft. Nil fields are left alone.
// Zoom is applied before offsets, and offsets before the pointer event.
type CropView struct {
	Zoom    *float64
	OffsetX *float64
	OffsetY *float64
	Pointer *PointerEvent
}

// Service runs crop and trim sessions.
type Service struct {
	repo      Repository
	store     storage.Storage
	processor media.Processor
	trimmer   *trim.Engine
	recorder  activity.Recorder
	logger    *slog.Logger
	maxPixels int
	now       func() time.Time

	locksMu sync.Mutex
	locks   map[string]*sessionLock
}

// sessionLock is held while a request edits a session. refs counts holders
// and waiters so the entry can be dropped once nobody uses it.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithRecorder sets the activity recorder.
func WithRecorder(r activity.Recorder) ServiceOption {
	return func(s *Service) {
		s.recorder = r
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMaxImagePixels caps width*height of uploaded images.
func WithMaxImagePixels(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.maxPixels = n
		}
	}
}

// WithClock sets the time source used to age idle sessions.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a Service.
func NewService(repo Repository, store storage.Storage, processor media.Processor, trimmer *trim.Engine, opts ...ServiceOption) *Service {
	s := &Service{
		repo:      repo,
		store:     store,
		processor: processor,
		trimmer:   trimmer,
		logger:    slog.Default(),
		maxPixels: DefaultMaxImagePixels,
		now:       time.Now,
		locks:     make(map[string]*sessionLock),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lock serializes operations on one session. The returned func releases it.
func (s *Service) lock(id string) func() {
	s.locksMu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sessionLock{}
		s.locks[id] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		s.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.locksMu.Unlock()
	}
}

// MaxClip returns the longest clip in seconds a trim session may produce.
func (s *Service) MaxClip() float64 {
	return s.trimmer.MaxClip()
}

// Get returns a session by ID.
func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	return s.repo.FindByID(ctx, id)
}

// load fetches an open session of the wanted kind.
func (s *Service) load(ctx context.Context, id string, kind Kind) (*Session, error) {
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Kind != kind {
		return nil, fmt.Errorf("%w: session %s is %s", ErrWrongKind, id, session.Kind)
	}
	if session.IsTerminal() {
		return nil, fmt.Errorf("%w: %s", ErrSessionClosed, session.GetStatus())
	}
	return session, nil
}

// OpenCrop stores the uploaded image and opens a crop session centred at zoom 1.
func (s *Service) OpenCrop(ctx context.Context, in OpenCropInput) (*Session, error) {
	preset, ok := crop.LookupPreset(in.Preset)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPreset, in.Preset)
	}
	frameW, frameH, err := preset.Frame(in.FrameWidth, in.FrameHeight)
	if err != nil {
		return nil, err
	}

	file, draft, err := s.prepareImage(ctx, in.Upload, frameW, frameH)
	if err != nil {
		return nil, err
	}

	session := New(KindCrop)
	session.Preset = preset.Name
	session.Source = *file
	session.Crop = draft
	session.Track(file.Path)

	if err := s.repo.Save(ctx, session); err != nil {
		s.discard(ctx, file.Path)
		return nil, err
	}

	s.logger.Info("crop session opened",
		slog.String("session_id", session.ID),
		slog.String("preset", preset.Name),
		slog.Int("image_width", draft.ImageWidth),
		slog.Int("image_height", draft.ImageHeight),
	)
	return session, nil
}

// prepareImage saves, sniffs and measures an uploaded image. On error nothing
// is left on disk.
func (s *Service) prepareImage(ctx context.Context, up Upload, frameW, frameH int) (*media.File, *crop.Draft, error) {
	path, err := s.store.SaveTemp(ctx, up.Name, up.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("save upload: %w", err)
	}

	file, err := media.Describe(path, up.Name, media.KindImage)
	if err != nil {
		s.discard(ctx, path)
		return nil, nil, err
	}

	cfg, err := s.decodeConfig(ctx, path)
	if err != nil {
		s.discard(ctx, path)
		return nil, nil, err
	}

	draft, err := crop.NewDraft(cfg.Width, cfg.Height, frameW, frameH)
	if err != nil {
		s.discard(ctx, path)
		return nil, nil, err
	}
	return file, draft, nil
}

func (s *Service) decodeConfig(ctx context.Context, path string) (image.Config, error) {
	rc, err := s.store.LoadTemp(ctx, path)
	if err != nil {
		return image.Config{}, err
	}
	defer func() { _ = rc.Close() }()

	cfg, _, err := image.DecodeConfig(rc)
	if err != nil {
		return image.Config{}, fmt.Errorf("%w: %w", ErrDecodeImage, err)
	}
	if cfg.Width > 0 && cfg.Height > 0 && cfg.Width > s.maxPixels/cfg.Height {
		return image.Config{}, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrDecodeImage, cfg.Width, cfg.Height, s.maxPixels)
	}
	return cfg, nil
}

// UpdateCrop applies zoom, offset and pointer changes and returns the
// session with the clamped draft.
func (s *Service) UpdateCrop(ctx context.Context, id string, view CropView) (*Session, error) {
	unlock := s.lock(id)
	defer unlock()

	session, err := s.load(ctx, id, KindCrop)
	if err != nil {
		return nil, err
	}
	d := session.Crop

	if view.Zoom != nil {
		d.SetZoom(*view.Zoom)
	}
	if view.OffsetX != nil || view.OffsetY != nil {
		x, y := d.OffsetX, d.OffsetY
		if view.OffsetX != nil {
			x = *view.OffsetX
		}
		if view.OffsetY != nil {
			y = *view.OffsetY
		}
		d.SetOffset(x, y)
	}
	if p := view.Pointer; p != nil {
		switch p.Event {
		case PointerDown:
			d.PointerDown(p.X, p.Y)
		case PointerMove:
			d.PointerMove(p.X, p.Y)
		case PointerUp:
			d.PointerUp()
		default:
			return nil, fmt.Errorf("%w: %q", ErrInvalidPointer, p.Event)
		}
	}

	session.Touch()
	if err := s.repo.Save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// ApplyCrop renders the visible region at the preset size, publishes it as a
// JPEG and closes the session.
func (s *Service) ApplyCrop(ctx context.Context, id string) (*Session, error) {
	unlock := s.lock(id)
	defer unlock()

	session, err := s.load(ctx, id, KindCrop)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With(slog.String("session_id", session.ID))

	url, err := s.renderCrop(ctx, session)
	if err != nil {
		return nil, s.failApply(ctx, logger, session, err)
	}

	s.releaseTemps(ctx, logger, session)
	if err := session.Apply(url); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, session); err != nil {
		return nil, err
	}

	logger.Info("crop applied", slog.String("preset", session.Preset), slog.String("url", url))
	s.record(ctx, activity.ActionCropImage, session.Preset, map[string]any{
		"session_id": session.ID,
		"url":        url,
	})
	return session, nil
}

func (s *Service) renderCrop(ctx context.Context, session *Session) (string, error) {
	preset, ok := crop.LookupPreset(session.Preset)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPreset, session.Preset)
	}

	rc, err := s.store.LoadTemp(ctx, session.Source.Path)
	if err != nil {
		return "", err
	}
	img, _, err := image.Decode(rc)
	_ = rc.Close()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDecodeImage, err)
	}

	out, err := session.Crop.Render(img, preset.Width, preset.Height)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := crop.EncodeJPEG(&buf, out); err != nil {
		return "", err
	}

	key := fmt.Sprintf("crops/%s/%s.jpg", preset.Name, session.ID)
	return s.store.Upload(ctx, key, "image/jpeg", &buf)
}

// OpenTrim stores the uploaded video, probes its duration and opens a trim
// session with the window preset to the first clip-cap seconds.
func (s *Service) OpenTrim(ctx context.Context, in OpenTrimInput) (*Session, error) {
	file, draft, err := s.prepareVideo(ctx, in.Upload)
	if err != nil {
		return nil, err
	}

	session := New(KindTrim)
	session.Target = in.Target
	session.Source = *file
	session.Trim = draft
	session.Track(file.Path)

	if err := s.repo.Save(ctx, session); err != nil {
		s.discard(ctx, file.Path)
		return nil, err
	}

	s.logger.Info("trim session opened",
		slog.String("session_id", session.ID),
		slog.String("target", in.Target),
		slog.Float64("duration", draft.Duration),
	)
	return session, nil
}

// prepareVideo saves, sniffs and probes an uploaded video. On error nothing
// is left on disk.
func (s *Service) prepareVideo(ctx context.Context, up Upload) (*media.File, *trim.Draft, error) {
	path, err := s.store.SaveTemp(ctx, up.Name, up.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("save upload: %w", err)
	}

	file, err := media.Describe(path, up.Name, media.KindVideo)
	if err != nil {
		s.discard(ctx, path)
		return nil, nil, err
	}

	duration, err := s.processor.ProbeDuration(ctx, path)
	switch {
	case err == nil:
	case errors.Is(err, media.ErrUnsupported) && up.Duration > 0:
		s.logger.Warn("duration probe unavailable, using reported duration",
			slog.String("file", up.Name),
			slog.Float64("duration", up.Duration),
		)
		duration = up.Duration
	case errors.Is(err, media.ErrUnsupported):
		s.discard(ctx, path)
		return nil, nil, fmt.Errorf("%w: %w", trim.ErrCannotTrim, err)
	default:
		s.discard(ctx, path)
		return nil, nil, fmt.Errorf("%w: %w", media.ErrUnsupportedMedia, err)
	}

	return file, trim.NewDraft(duration, s.trimmer.MaxClip()), nil
}

// ReplaceSource swaps the file being edited in an open session of the given
// kind. The previous source and any intermediate files are removed once the
// new one is ready.
func (s *Service) ReplaceSource(ctx context.Context, id string, kind Kind, up Upload) (*Session, error) {
	unlock := s.lock(id)
	defer unlock()

	session, err := s.load(ctx, id, kind)
	if err != nil {
		return nil, err
	}

	var file *media.File
	switch session.Kind {
	case KindCrop:
		var draft *crop.Draft
		file, draft, err = s.prepareImage(ctx, up, session.Crop.FrameWidth, session.Crop.FrameHeight)
		if err == nil {
			session.Crop = draft
		}
	case KindTrim:
		var draft *trim.Draft
		file, draft, err = s.prepareVideo(ctx, up)
		if err == nil {
			session.Trim = draft
		}
	default:
		err = fmt.Errorf("%w: %s", ErrWrongKind, session.Kind)
	}
	if err != nil {
		return nil, err
	}

	logger := s.logger.With(slog.String("session_id", session.ID))
	s.releaseTemps(ctx, logger, session)
	session.Source = *file
	session.Error = ""
	session.Track(file.Path)

	if err := s.repo.Save(ctx, session); err != nil {
		s.discard(ctx, file.Path)
		return nil, err
	}

	logger.Info("session source replaced", slog.String("file", file.Name))
	return session, nil
}

// ApplyTrim cuts [start, end] out of the source, publishes the clip and
// closes the session. Invalid windows are rejected before any work.
func (s *Service) ApplyTrim(ctx context.Context, id string, start, end float64) (*Session, error) {
	unlock := s.lock(id)
	defer unlock()

	session, err := s.load(ctx, id, KindTrim)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With(slog.String("session_id", session.ID))

	session.Trim.SetRange(start, end)
	if err := session.Trim.Validate(s.trimmer.MaxClip()); err != nil {
		return nil, s.failApply(ctx, logger, session, err)
	}

	var cut string
	alloc := func(ext string) (string, error) {
		p, err := s.store.ReserveTemp(ctx, session.ID, ext)
		if err != nil {
			return "", err
		}
		cut = p
		session.Track(p)
		return p, nil
	}

	out, err := s.trimmer.Run(ctx, &session.Source, session.Trim, alloc)
	if err == nil {
		var url string
		url, err = s.publishClip(ctx, session, out)
		if err == nil {
			fastPath := out == &session.Source
			return s.finishTrim(ctx, logger, session, url, fastPath)
		}
	}

	if cut != "" {
		s.discard(ctx, cut)
		session.Untrack(cut)
	}
	return nil, s.failApply(ctx, logger, session, err)
}

func (s *Service) publishClip(ctx context.Context, session *Session, clip *media.File) (string, error) {
	rc, err := s.store.LoadTemp(ctx, clip.Path)
	if err != nil {
		return "", err
	}
	defer func() { _ = rc.Close() }()

	ext := clip.Extension
	if ext == "" {
		ext = "bin"
	}
	key := fmt.Sprintf("trims/%s.%s", session.ID, ext)
	return s.store.Upload(ctx, key, clip.ContentType, rc)
}

func (s *Service) finishTrim(ctx context.Context, logger *slog.Logger, session *Session, url string, fastPath bool) (*Session, error) {
	s.releaseTemps(ctx, logger, session)
	if err := session.Apply(url); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, session); err != nil {
		return nil, err
	}

	logger.Info("trim applied",
		slog.Float64("start", session.Trim.Start),
		slog.Float64("end", session.Trim.End),
		slog.Bool("fast_path", fastPath),
		slog.String("url", url),
	)
	s.record(ctx, activity.ActionTrimVideo, session.Target, map[string]any{
		"session_id": session.ID,
		"url":        url,
		"start":      session.Trim.Start,
		"end":        session.Trim.End,
		"fast_path":  fastPath,
	})
	return session, nil
}

// Cancel releases the session's files and closes it without a result.
func (s *Service) Cancel(ctx context.Context, id string) (*Session, error) {
	unlock := s.lock(id)
	defer unlock()

	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.IsTerminal() {
		return nil, fmt.Errorf("%w: %s", ErrSessionClosed, session.GetStatus())
	}
	if err := s.cancel(ctx, session, "admin"); err != nil {
		return nil, err
	}
	return session, nil
}

// cancel closes an open session the caller has locked.
func (s *Service) cancel(ctx context.Context, session *Session, reason string) error {
	logger := s.logger.With(slog.String("session_id", session.ID))
	s.releaseTemps(ctx, logger, session)
	if err := session.Cancel(); err != nil {
		return err
	}
	if err := s.repo.Save(ctx, session); err != nil {
		return err
	}

	logger.Info("session cancelled",
		slog.String("kind", string(session.Kind)),
		slog.String("reason", reason),
	)
	s.record(ctx, activity.ActionCancelEdit, string(session.Kind), map[string]any{
		"session_id": session.ID,
		"reason":     reason,
	})
	return nil
}

// failApply records a recoverable failure on the session and returns the
// error to report. Validation and environment errors pass through unchanged;
// anything else is wrapped in ErrApplyFailed.
func (s *Service) failApply(ctx context.Context, logger *slog.Logger, session *Session, cause error) error {
	session.Fail(cause.Error())
	if err := s.repo.Save(ctx, session); err != nil {
		logger.Error("failed to save session", slog.String("error", err.Error()))
	}

	if isUserError(cause) {
		logger.Warn("apply rejected", slog.String("error", cause.Error()))
		return cause
	}
	logger.Error("apply failed", slog.String("error", cause.Error()))
	return fmt.Errorf("%w: %w", ErrApplyFailed, cause)
}

func isUserError(err error) bool {
	for _, target := range []error{
		trim.ErrInvalidRange,
		trim.ErrClipTooLong,
		trim.ErrCannotTrim,
		trim.ErrBusy,
		ErrDecodeImage,
		ErrUnknownPreset,
		crop.ErrInvalidDimensions,
		crop.ErrEmptyRegion,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (s *Service) releaseTemps(ctx context.Context, logger *slog.Logger, session *Session) {
	temps := session.ReleaseTemps()
	if len(temps) == 0 {
		return
	}
	// cleanup must outlive a cancelled request
	if err := s.store.CleanupTemp(context.WithoutCancel(ctx), temps); err != nil {
		logger.Warn("failed to remove temp files", slog.String("error", err.Error()))
	}
}

func (s *Service) discard(ctx context.Context, path string) {
	if err := s.store.CleanupTemp(context.WithoutCancel(ctx), []string{path}); err != nil {
		s.logger.Warn("failed to remove temp file", slog.String("path", path), slog.String("error", err.Error()))
	}
}

func (s *Service) record(ctx context.Context, action activity.Action, target string, details map[string]any) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(ctx, action, target, details); err != nil {
		s.logger.Warn("failed to record activity",
			slog.String("action", string(action)),
			slog.String("error", err.Error()),
		)
	}
}
