package runner

import (
	"context"

	"github.com/sirupsen/logrus"

	"tg_bridge_bot/internal/logging"
)

// Supervisor owns the bot sessions' lifecycle. Sessions run concurrently and
// independently: one bot restarting never affects the other.
type Supervisor struct {
	sessions []*Session
	logger   *logrus.Entry
}

// NewSupervisor constructs a Supervisor over the given sessions.
func NewSupervisor(logger *logrus.Entry, sessions ...*Session) *Supervisor {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Supervisor{
		sessions: sessions,
		logger:   logger,
	}
}

// StartAll launches every session's poll loop. The loops are fire-and-forget;
// they run until StopAll or context cancellation.
func (s *Supervisor) StartAll(ctx context.Context) {
	for _, session := range s.sessions {
		session.Start(ctx)
	}

	s.logger.WithFields(logging.Fields{
		"event": "supervisor_started",
		"bots":  len(s.sessions),
	}).Info("started all bot sessions")
}

// StopAll disables polling on every session. In-flight long-poll calls finish
// naturally, bounded by the poll timeout window.
func (s *Supervisor) StopAll() {
	for _, session := range s.sessions {
		session.Stop()
	}

	s.logger.WithField("event", "supervisor_stopped").Info("stopped all bot sessions")
}

// Shutdown stops all sessions and waits for their loops to exit, up to the
// grace period carried by ctx. It never aborts an in-flight HTTP call.
func (s *Supervisor) Shutdown(ctx context.Context) {
	s.StopAll()

	for _, session := range s.sessions {
		select {
		case <-session.Done():
		case <-ctx.Done():
			s.logger.WithFields(logging.Fields{
				"event": "supervisor_shutdown_timeout",
				"bot":   session.Name(),
			}).Warn("timed out waiting for poll loop to exit")
			return
		}
	}

	s.logger.WithField("event", "supervisor_shutdown").Info("all poll loops exited")
}
