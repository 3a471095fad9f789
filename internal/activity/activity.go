// Package activity records admin edits in a bounded in-memory log.
package activity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Action names an admin edit.
type Action string

const (
	ActionCropImage  Action = "CROP_IMAGE"
	ActionTrimVideo  Action = "TRIM_VIDEO"
	ActionCancelEdit Action = "CANCEL_EDIT"
)

// DefaultSize is the number of entries MemoryLog keeps when no size is given.
const DefaultSize = 200

// Entry is a single recorded action.
type Entry struct {
	ID        string         `json:"id"`
	Action    Action         `json:"action"`
	Target    string         `json:"target"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Recorder receives activity entries.
type Recorder interface {
	Record(ctx context.Context, action Action, target string, details map[string]any) error
}

// MemoryLog is a Recorder that keeps the newest entries in a ring buffer.
type MemoryLog struct {
	mu      sync.RWMutex
	entries []Entry
	next    int
	full    bool
	now     func() time.Time
}

// NewMemoryLog creates a log holding at most size entries.
func NewMemoryLog(size int) *MemoryLog {
	if size <= 0 {
		size = DefaultSize
	}
	return &MemoryLog{
		entries: make([]Entry, size),
		now:     time.Now,
	}
}

// Record appends an entry, evicting the oldest when full.
func (l *MemoryLog) Record(ctx context.Context, action Action, target string, details map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e := Entry{
		ID:        uuid.NewString(),
		Action:    action,
		Target:    target,
		Details:   copyDetails(details),
		CreatedAt: l.now().UTC(),
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[l.next] = e
	l.next = (l.next + 1) % len(l.entries)
	if l.next == 0 {
		l.full = true
	}
	return nil
}

// List returns up to limit entries, newest first. A non-positive limit
// returns everything held.
func (l *MemoryLog) List(_ context.Context, limit int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := l.next
	if l.full {
		n = len(l.entries)
	}
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]Entry, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (l.next - 1 - i + len(l.entries)) % len(l.entries)
		e := l.entries[idx]
		e.Details = copyDetails(e.Details)
		out = append(out, e)
	}
	return out
}

func copyDetails(d map[string]any) map[string]any {
	if d == nil {
		return nil
	}
	out := make(map[string]any, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
