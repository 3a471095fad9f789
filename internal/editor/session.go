// Package editor provides the edit Session aggregate and the service that
// drives crop and trim sessions from upload to published result.
package editor

import (
	"errors"
	"sync"
	"time"

	"github.com/maauso/marathon-media/internal/crop"
	"github.com/maauso/marathon-media/internal/editor/id"
	"github.com/maauso/marathon-media/internal/media"
	"github.com/maauso/marathon-media/internal/trim"
)

// Kind is the kind of edit a session performs.
type Kind string

const (
	// KindCrop crops an image to a preset.
	KindCrop Kind = "crop"
	// KindTrim cuts a bounded clip out of a video.
	KindTrim Kind = "trim"
)

// Status represents the current state of a Session.
type Status string

const (
	// StatusOpen indicates the session is being edited.
	StatusOpen Status = "OPEN"
	// StatusApplied indicates the result was published.
	StatusApplied Status = "APPLIED"
	// StatusCancelled indicates the session was closed without a result.
	StatusCancelled Status = "CANCELLED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusOpen:      {StatusApplied, StatusCancelled},
	StatusApplied:   {},
	StatusCancelled: {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Session is one open crop or trim editor.
type Session struct {
	mu sync.RWMutex

	// ID is the unique identifier for this session.
	ID string
	// Kind is crop or trim.
	Kind Kind
	// Status is the current session state.
	Status Status
	// Preset is the crop output preset name.
	Preset string
	// Target labels what a trimmed clip is for, e.g. a game code.
	Target string
	// Source is the uploaded file being edited.
	Source media.File
	// Crop is the crop draft, set for crop sessions.
	Crop *crop.Draft
	// Trim is the trim draft, set for trim sessions.
	Trim *trim.Draft
	// Temps lists temp files owned by the session.
	Temps []string
	// ResultURL is the published location of the result.
	ResultURL string
	// Error holds the last recoverable failure, cleared on success.
	Error string
	// CreatedAt is when the session was opened.
	CreatedAt time.Time
	// UpdatedAt is when the session was last changed.
	UpdatedAt time.Time
	// ClosedAt is when the session was applied or cancelled.
	ClosedAt time.Time
}

// New creates an OPEN session of the given kind with a generated ID.
func New(kind Kind) *Session {
	return NewWithID(id.Generate(string(kind)), kind)
}

// NewWithID creates an OPEN session with the specified ID.
func NewWithID(sessionID string, kind Kind) *Session {
	now := time.Now()
	return &Session{
		ID:        sessionID,
		Kind:      kind,
		Status:    StatusOpen,
		Temps:     make([]string, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the session status.
// Returns ErrInvalidTransition if the transition is not allowed.
func (s *Session) TransitionTo(status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(status)
}

func (s *Session) transitionLocked(status Status) error {
	if !canTransition(s.Status, status) {
		return ErrInvalidTransition
	}
	s.Status = status
	s.UpdatedAt = time.Now()
	if status == StatusApplied || status == StatusCancelled {
		s.ClosedAt = s.UpdatedAt
	}
	return nil
}

// Apply records the published result and moves the session to APPLIED.
func (s *Session) Apply(resultURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transitionLocked(StatusApplied); err != nil {
		return err
	}
	s.ResultURL = resultURL
	s.Error = ""
	return nil
}

// Cancel moves the session to CANCELLED.
func (s *Session) Cancel() error {
	return s.TransitionTo(StatusCancelled)
}

// Fail records a recoverable failure. The session stays OPEN.
func (s *Session) Fail(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Error = msg
	s.UpdatedAt = time.Now()
}

// GetStatus returns the current session status (thread-safe).
func (s *Session) GetStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Status
}

// IsTerminal returns true if the session is APPLIED or CANCELLED.
func (s *Session) IsTerminal() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Status == StatusApplied || s.Status == StatusCancelled
}

// Track registers a temp file as owned by the session.
func (s *Session) Track(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Temps = append(s.Temps, path)
	s.UpdatedAt = time.Now()
}

// Untrack forgets a temp file the caller has already removed.
func (s *Session) Untrack(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.Temps {
		if p == path {
			s.Temps = append(s.Temps[:i], s.Temps[i+1:]...)
			return
		}
	}
}

// ReleaseTemps returns the tracked temp files and forgets them.
func (s *Session) ReleaseTemps() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	temps := s.Temps
	s.Temps = make([]string, 0)
	return temps
}

// Touch bumps UpdatedAt after a draft edit.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UpdatedAt = time.Now()
}

// Clone creates a deep copy of the session for safe reads.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	temps := make([]string, len(s.Temps))
	copy(temps, s.Temps)

	c := &Session{
		ID:        s.ID,
		Kind:      s.Kind,
		Status:    s.Status,
		Preset:    s.Preset,
		Target:    s.Target,
		Source:    s.Source,
		Temps:     temps,
		ResultURL: s.ResultURL,
		Error:     s.Error,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
		ClosedAt:  s.ClosedAt,
	}
	if s.Crop != nil {
		d := *s.Crop
		c.Crop = &d
	}
	if s.Trim != nil {
		d := *s.Trim
		c.Trim = &d
	}
	return c
}
