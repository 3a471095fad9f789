// Package trim validates clip windows and cuts bounded sub-clips out of
// uploaded videos.
package trim

import (
	"errors"
	"fmt"
	"math"
)

// MaxClipSeconds is the default longest clip that may be produced.
const MaxClipSeconds = 60.0

var (
	// ErrInvalidRange is returned when the window is not 0 <= start < end <= duration.
	ErrInvalidRange = errors.New("invalid trim range")
	// ErrClipTooLong is returned when end-start exceeds the clip cap.
	ErrClipTooLong = errors.New("clip exceeds maximum length")
	// ErrCannotTrim is returned when the environment cannot cut the video and
	// the original is too long to be used as is.
	ErrCannotTrim = errors.New("cannot trim video in this environment")
	// ErrBusy is returned when a cut is already running for the draft.
	ErrBusy = errors.New("trim already in progress")
)

// Draft is the editable trim window over a source video.
type Draft struct {
	Duration float64 `json:"duration"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`

	processing bool
}

// NewDraft returns a draft over a video of the given duration with the window
// preset to the first maxClip seconds.
func NewDraft(duration, maxClip float64) *Draft {
	if math.IsNaN(duration) || duration < 0 {
		duration = 0
	}
	return &Draft{Duration: duration, Start: 0, End: math.Min(duration, maxClip)}
}

// SetRange replaces the window. It does not validate; call Validate before cutting.
func (d *Draft) SetRange(start, end float64) {
	d.Start = start
	d.End = end
}

// Validate checks the window against the source duration and clip cap.
func (d *Draft) Validate(maxClip float64) error {
	if math.IsNaN(d.Start) || math.IsNaN(d.End) ||
		d.Start < 0 || d.Start >= d.End || d.End > d.Duration {
		return fmt.Errorf("%w: start=%.3f end=%.3f duration=%.3f", ErrInvalidRange, d.Start, d.End, d.Duration)
	}
	if d.End-d.Start > maxClip {
		return fmt.Errorf("%w: %.3fs > %.0fs", ErrClipTooLong, d.End-d.Start, maxClip)
	}
	return nil
}

// IsNoop reports whether cutting would reproduce the source: the whole video
// is selected and it already fits the cap.
func (d *Draft) IsNoop(maxClip float64) bool {
	return d.Duration <= maxClip && d.Start <= 0 && d.End >= d.Duration
}

// Processing reports whether a cut is running.
func (d *Draft) Processing() bool {
	return d.processing
}
