// Package cleanup enforces session retention in the background.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/fleetops/movi/pkg/config"
	"github.com/fleetops/movi/pkg/services"
)

// Service periodically enforces the session lifecycle:
//   - Marks overdue PENDING sessions EXPIRED
//   - Deletes terminal sessions past the retention window
//
// Both operations are idempotent and safe to run from multiple replicas.
type Service struct {
	config   config.SessionConfig
	sessions *services.SessionService

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(cfg config.SessionConfig, sessions *services.SessionService) *Service {
	return &Service{
		config:   cfg,
		sessions: sessions,
	}
}

// Start launches the background reaper loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Session reaper started",
		"reap_interval", s.config.ReapInterval,
		"purge_after", s.config.PurgeAfter)
}

// Stop signals the reaper loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Session reaper stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.config.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.expireOverdue(ctx)
	s.purgeOld(ctx)
}

func (s *Service) expireOverdue(ctx context.Context) {
	count, err := s.sessions.ExpireOverdue(ctx)
	if err != nil {
		slog.Error("Failed to expire overdue sessions", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Expired overdue sessions", "count", count)
	}
}

func (s *Service) purgeOld(ctx context.Context) {
	count, err := s.sessions.PurgeOlderThan(ctx, s.config.PurgeAfter)
	if err != nil {
		slog.Error("Failed to purge old sessions", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Purged old sessions", "count", count)
	}
}
