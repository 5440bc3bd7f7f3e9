package wizard

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// CleanupService permanently deletes drafts nobody has touched within the
// retention period.
type CleanupService struct {
	store     DraftStore
	retention time.Duration
	clock     func() time.Time
	log       *zap.Logger
}

func NewCleanupService(store DraftStore, retention time.Duration, log *zap.Logger) *CleanupService {
	if log == nil {
		log = zap.NewNop()
	}
	return &CleanupService{store: store, retention: retention, clock: time.Now, log: log}
}

func (s *CleanupService) cutoff() time.Time {
	return s.clock().Add(-s.retention)
}

// ExpiredCount returns how many drafts are eligible for cleanup.
func (s *CleanupService) ExpiredCount(ctx context.Context) (int, error) {
	n, err := s.store.CountOlderThan(ctx, s.cutoff())
	if err != nil {
		return 0, fmt.Errorf("failed to count expired drafts: %w", err)
	}
	return n, nil
}

// CleanupExpiredDrafts deletes drafts last saved before the retention cutoff.
func (s *CleanupService) CleanupExpiredDrafts(ctx context.Context) (int, error) {
	cutoff := s.cutoff()
	s.log.Info("draft cleanup started", zap.Time("cutoff", cutoff))

	deleted, err := s.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.log.Error("draft cleanup failed", zap.Error(err))
		return 0, err
	}

	s.log.Info("draft cleanup finished", zap.Int("deleted", deleted))
	return deleted, nil
}

// StartSchedule runs the cleanup every interval until the returned scheduler
// is stopped.
func (s *CleanupService) StartSchedule(interval time.Duration) (*gocron.Scheduler, error) {
	scheduler := gocron.NewScheduler(time.UTC)
	_, err := scheduler.Every(interval).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		s.CleanupExpiredDrafts(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule draft cleanup: %w", err)
	}
	scheduler.StartAsync()
	s.log.Info("draft cleanup scheduled", zap.Duration("interval", interval), zap.Duration("retention", s.retention))
	return scheduler, nil
}
