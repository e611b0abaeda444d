package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jonathanpv/chatgpt-voice-ui/domain/repositories"
)

// TranscriptCleanupService removes transcript items past their retention
// period in the background.
type TranscriptCleanupService struct {
	transcripts repositories.TranscriptRepository
	ttl         time.Duration
	interval    time.Duration
	logger      *zap.Logger
	stopChan    chan struct{}
}

// NewTranscriptCleanupService creates a cleanup service with the given
// retention period. A zero interval defaults to hourly runs.
func NewTranscriptCleanupService(transcripts repositories.TranscriptRepository, ttl, interval time.Duration, logger *zap.Logger) *TranscriptCleanupService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &TranscriptCleanupService{
		transcripts: transcripts,
		ttl:         ttl,
		interval:    interval,
		logger:      logger,
		stopChan:    make(chan struct{}),
	}
}

// Start begins the background cleanup process.
func (s *TranscriptCleanupService) Start() {
	if s.ttl <= 0 {
		s.logger.Info("Transcript cleanup disabled, no retention period configured")
		return
	}
	go s.cleanupLoop()
	s.logger.Info("Transcript cleanup service started",
		zap.Duration("ttl", s.ttl),
		zap.Duration("interval", s.interval))
}

// Stop gracefully stops the cleanup service.
func (s *TranscriptCleanupService) Stop() {
	close(s.stopChan)
	s.logger.Info("Transcript cleanup service stopped")
}

func (s *TranscriptCleanupService) cleanupLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run initial cleanup shortly after startup.
	initialTimer := time.NewTimer(time.Minute)
	defer initialTimer.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-initialTimer.C:
			s.runCleanup()
		case <-ticker.C:
			s.runCleanup()
		}
	}
}

func (s *TranscriptCleanupService) runCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-s.ttl)
	removed, err := s.transcripts.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("Failed to clean up transcript items", zap.Error(err))
		return
	}
	if removed > 0 {
		s.logger.Info("Transcript cleanup completed", zap.Int64("removed", removed))
	}
}
