// Package cleanup runs the periodic retention tasks: expired sessions and
// confirmations, old conversations, audit and invalidation logs, and
// invalid slot values.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/leichangqing/intelligence-intent-sub003/internal/profile"
	"github.com/leichangqing/intelligence-intent-sub003/store"
)

// batchSize bounds how many rows one delete statement touches; batches are
// separated by a brief yield so turn workers are not starved.
const batchSize = 500

const batchPause = 50 * time.Millisecond

// Scheduler runs retention tasks on a fixed interval.
type Scheduler struct {
	store   *store.Store
	profile *profile.Profile
	done    chan struct{}
}

// NewScheduler creates a cleanup scheduler.
func NewScheduler(s *store.Store, p *profile.Profile) *Scheduler {
	return &Scheduler{store: s, profile: p, done: make(chan struct{})}
}

// Start launches the scheduler loop. It runs once immediately, then on
// every interval until the context is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	interval := time.Duration(s.profile.CleanupIntervalHours) * time.Hour
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	go func() {
		s.RunOnce(ctx)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.RunOnce(ctx)
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}
		}
	}()
}

// Stop terminates the scheduler loop.
func (s *Scheduler) Stop() {
	close(s.done)
}

// RunOnce executes all retention tasks sequentially.
func (s *Scheduler) RunOnce(ctx context.Context) {
	now := time.Now()
	start := now

	s.expireSessions(ctx, now)
	s.purgeExpiredConfirmations(ctx, now)
	s.purgeExpiredUserContexts(ctx, now)
	s.purgeOldConversations(ctx, now)
	s.purgeOldAuditLogs(ctx, now)
	s.purgeOldInvalidationLogs(ctx, now)
	s.purgeInvalidSlotValues(ctx, now)

	slog.Info("cleanup cycle finished", "elapsed", time.Since(start).String())
}

// expireSessions transitions overdue active sessions to expired and evicts
// them from the hot caches.
func (s *Scheduler) expireSessions(ctx context.Context, now time.Time) {
	active := store.SessionActive
	sessions, err := s.store.ListSessions(ctx, &store.FindSession{State: &active})
	if err != nil {
		slog.Warn("cleanup: failed to list active sessions", "error", err)
		return
	}
	expired := store.SessionExpired
	count := 0
	for _, session := range sessions {
		if !session.IsExpired(now.Unix()) {
			continue
		}
		if _, err := s.store.UpdateSession(ctx, &store.UpdateSession{
			ID:    session.ID,
			State: &expired,
		}); err != nil {
			slog.Warn("cleanup: failed to expire session", "session", session.ID, "error", err)
			continue
		}
		s.store.EvictSession(session.ID)
		count++
	}
	if count > 0 {
		slog.Info("cleanup: sessions expired", "count", count)
	}
}

func (s *Scheduler) purgeExpiredConfirmations(ctx context.Context, now time.Time) {
	cutoff := now.Unix()
	n, err := s.store.DeleteConfirmationRequests(ctx, &store.DeleteConfirmationRequest{
		ExpiredAt: &cutoff,
	})
	if err != nil {
		slog.Warn("cleanup: failed to delete expired confirmations", "error", err)
		return
	}
	if n > 0 {
		slog.Info("cleanup: confirmations purged", "count", n)
	}
}

func (s *Scheduler) purgeExpiredUserContexts(ctx context.Context, now time.Time) {
	cutoff := now.Unix()
	total := int64(0)
	for {
		n, err := s.store.DeleteUserContexts(ctx, &store.DeleteUserContext{
			ExpiredAt:  &cutoff,
			BatchLimit: batchSize,
		})
		if err != nil {
			slog.Warn("cleanup: failed to delete expired user contexts", "error", err)
			return
		}
		total += n
		if n < batchSize {
			break
		}
		time.Sleep(batchPause)
	}
	if total > 0 {
		slog.Info("cleanup: user contexts purged", "count", total)
	}
}

func (s *Scheduler) purgeOldConversations(ctx context.Context, now time.Time) {
	cutoff := s.retentionCutoff(now, s.profile.RetentionDaysConversations)
	total := int64(0)
	for {
		n, err := s.store.DeleteConversationTurns(ctx, &store.DeleteConversationTurn{
			BeforeTs:   &cutoff,
			BatchLimit: batchSize,
		})
		if err != nil {
			slog.Warn("cleanup: failed to delete old conversations", "error", err)
			return
		}
		total += n
		if n < batchSize {
			break
		}
		time.Sleep(batchPause)
	}
	if total > 0 {
		slog.Info("cleanup: conversations purged", "count", total)
	}
}

func (s *Scheduler) purgeOldAuditLogs(ctx context.Context, now time.Time) {
	cutoff := s.retentionCutoff(now, s.profile.RetentionDaysAuditLogs)
	total := int64(0)
	for {
		n, err := s.store.DeleteAuditLogs(ctx, &store.DeleteAuditLog{
			BeforeTs:   cutoff,
			BatchLimit: batchSize,
		})
		if err != nil {
			slog.Warn("cleanup: failed to delete old audit logs", "error", err)
			return
		}
		total += n
		if n < batchSize {
			break
		}
		time.Sleep(batchPause)
	}
	if total > 0 {
		slog.Info("cleanup: audit logs purged", "count", total)
	}
}

func (s *Scheduler) purgeOldInvalidationLogs(ctx context.Context, now time.Time) {
	cutoff := s.retentionCutoff(now, s.profile.RetentionDaysInvalidationLog)
	total := int64(0)
	for {
		n, err := s.store.DeleteCacheInvalidationLogs(ctx, &store.DeleteCacheInvalidationLog{
			BeforeTs:   cutoff,
			BatchLimit: batchSize,
		})
		if err != nil {
			slog.Warn("cleanup: failed to delete old invalidation logs", "error", err)
			return
		}
		total += n
		if n < batchSize {
			break
		}
		time.Sleep(batchPause)
	}
	if total > 0 {
		slog.Info("cleanup: invalidation logs purged", "count", total)
	}
}

// purgeInvalidSlotValues removes invalid slot rows older than the
// conversation retention window. Valid rows are kept as history.
func (s *Scheduler) purgeInvalidSlotValues(ctx context.Context, now time.Time) {
	cutoff := s.retentionCutoff(now, s.profile.RetentionDaysConversations)
	invalid := store.ValidationInvalid
	total := int64(0)
	for {
		n, err := s.store.DeleteSlotValues(ctx, &store.DeleteSlotValue{
			BeforeTs:   &cutoff,
			OnlyStatus: &invalid,
			BatchLimit: batchSize,
		})
		if err != nil {
			slog.Warn("cleanup: failed to delete invalid slot values", "error", err)
			return
		}
		total += n
		if n < batchSize {
			break
		}
		time.Sleep(batchPause)
	}
	if total > 0 {
		slog.Info("cleanup: invalid slot values purged", "count", total)
	}
}

func (s *Scheduler) retentionCutoff(now time.Time, days int) int64 {
	if days <= 0 {
		days = 90
	}
	return now.AddDate(0, 0, -days).Unix()
}
