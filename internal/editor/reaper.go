package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ReapIdle expires sessions older than ttl. Open sessions not edited within
// ttl are cancelled, which removes their temp files. Closed sessions are
// deleted from the repository ttl after closing, so clients can still read
// the result of an apply for that long.
func (s *Service) ReapIdle(ctx context.Context, ttl time.Duration) (cancelled, deleted int, err error) {
	sessions, err := s.repo.List(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list sessions: %w", err)
	}
	cutoff := s.now().Add(-ttl)

	for _, session := range sessions {
		if err := ctx.Err(); err != nil {
			return cancelled, deleted, err
		}

		var done bool
		if session.IsTerminal() {
			done, err = s.deleteClosed(ctx, session.ID, cutoff)
			if done {
				deleted++
			}
		} else {
			done, err = s.cancelIdle(ctx, session.ID, cutoff)
			if done {
				cancelled++
			}
		}
		if err != nil && !errors.Is(err, ErrSessionNotFound) {
			return cancelled, deleted, err
		}
	}
	return cancelled, deleted, nil
}

// cancelIdle cancels the session if it is still open and untouched since cutoff.
func (s *Service) cancelIdle(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	unlock := s.lock(id)
	defer unlock()

	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return false, err
	}
	if session.IsTerminal() || session.UpdatedAt.After(cutoff) {
		return false, nil
	}
	if err := s.cancel(ctx, session, "idle"); err != nil {
		return false, err
	}
	return true, nil
}

// deleteClosed removes the session if it closed before cutoff.
func (s *Service) deleteClosed(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	unlock := s.lock(id)
	defer unlock()

	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return false, err
	}
	if !session.IsTerminal() || session.ClosedAt.After(cutoff) {
		return false, nil
	}
	// temps are already released on close; this catches a failed cleanup
	s.releaseTemps(ctx, s.logger.With(slog.String("session_id", id)), session)
	if err := s.repo.Delete(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}

// RunReaper calls ReapIdle every interval until ctx is done.
func (s *Service) RunReaper(ctx context.Context, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cancelled, deleted, err := s.ReapIdle(ctx, ttl)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Warn("session reaper failed", slog.String("error", err.Error()))
				continue
			}
			if cancelled > 0 || deleted > 0 {
				s.logger.Info("idle sessions reaped",
					slog.Int("cancelled", cancelled),
					slog.Int("deleted", deleted),
				)
			}
		}
	}
}
