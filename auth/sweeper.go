package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Sweeper periodically removes expired sessions in the background.
type Sweeper struct {
	sessions *SessionManager
	interval time.Duration
	logger   *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// StartSweeper starts a goroutine that calls sessions.Sweep every interval
// until Close is called.
func StartSweeper(sessions *SessionManager, interval time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sweeper{
		sessions: sessions,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// Close stops the sweeper and waits for an in-flight sweep to finish. It is
// safe to call more than once.
func (s *Sweeper) Close() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	<-s.done
}

func (s *Sweeper) cleanupLoop() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()
	res, err := s.sessions.Sweep(ctx)
	if err != nil {
		s.logger.Error("session sweep failed", "error", err)
		return
	}
	if res.TempSessions > 0 || res.Sessions > 0 {
		s.logger.Debug("swept expired sessions",
			"temp_sessions", res.TempSessions,
			"sessions", res.Sessions,
		)
	}
}
