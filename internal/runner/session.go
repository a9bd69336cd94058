// Package runner owns the per-bot long-poll loops and the supervisor that
// starts and stops them.
package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"tg_bridge_bot/internal/logging"
	"tg_bridge_bot/internal/telegram"
)

const (
	// pollTimeoutSeconds is the server-side long-poll window. It also bounds
	// worst-case shutdown latency, since a stop request only takes effect at
	// the top of the next iteration.
	pollTimeoutSeconds = 30

	// recoveryDelay is slept after a failed poll before the next attempt, and
	// is also the delay before a scheduled restart.
	recoveryDelay = 5 * time.Second

	// errorThreshold is the number of consecutive failed poll cycles that
	// triggers a loop restart.
	errorThreshold = 5
)

// BotAPI is the subset of the Telegram client the poll loop needs.
type BotAPI interface {
	GetUpdates(ctx context.Context, offset int64, timeoutSeconds int) ([]models.Update, error)
	DeleteWebhook(ctx context.Context) error
}

// UpdateHandler processes one inbound update.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update *models.Update) error
}

// Session is one bot identity's poll loop and cursor state. The offset and
// error counter are owned exclusively by the loop goroutine; the polling flag
// is the only field shared with other goroutines.
type Session struct {
	name    string
	api     BotAPI
	handler UpdateHandler
	logger  *logrus.Entry

	polling           atomic.Bool
	offset            int64
	consecutiveErrors int

	mu   sync.Mutex
	done chan struct{}

	// sleep and schedule are injectable so restart behavior is testable
	// without real time. sleep returns false when the context ended first.
	sleep    func(ctx context.Context, d time.Duration) bool
	schedule func(d time.Duration, fn func())
}

// SessionOption customizes a Session.
type SessionOption func(*Session)

// WithSleep overrides the recovery sleep; used by tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) bool) SessionOption {
	return func(s *Session) {
		s.sleep = sleep
	}
}

// WithSchedule overrides the restart timer; used by tests.
func WithSchedule(schedule func(d time.Duration, fn func())) SessionOption {
	return func(s *Session) {
		s.schedule = schedule
	}
}

// NewSession constructs a Session for one bot identity.
func NewSession(name string, api BotAPI, handler UpdateHandler, logger *logrus.Entry, opts ...SessionOption) *Session {
	if logger == nil {
		logger = logging.Logger()
	}

	session := &Session{
		name:    name,
		api:     api,
		handler: handler,
		logger:  logger.WithField("bot", name),
		sleep:   sleepWithContext,
		schedule: func(d time.Duration, fn func()) {
			time.AfterFunc(d, fn)
		},
	}

	for _, opt := range opts {
		opt(session)
	}

	return session
}

// Name returns the bot identity this session polls for.
func (s *Session) Name() string {
	return s.name
}

// IsPolling reports whether the loop is currently enabled.
func (s *Session) IsPolling() bool {
	return s.polling.Load()
}

// Start enables polling and launches the loop goroutine. Starting an
// already-polling session is a logged no-op, so two loops can never compete
// for the same token. The webhook is cleared first because Telegram rejects
// long polling while a webhook registration exists.
func (s *Session) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		s.logger.WithField("event", "poll_start_skipped").Info("context already ended, not starting poll loop")
		return
	}

	if !s.polling.CompareAndSwap(false, true) {
		s.logger.WithField("event", "poll_already_running").Info("poll loop already running, start ignored")
		return
	}

	s.consecutiveErrors = 0

	if err := s.api.DeleteWebhook(ctx); err != nil {
		s.logger.WithField("event", "webhook_cleanup_failed").WithError(err).Warn("failed to clear webhook before polling")
	}

	s.logger.WithFields(logging.Fields{
		"event":  "poll_start",
		"offset": s.offset,
	}).Info("starting long poll loop")

	done := make(chan struct{})
	s.mu.Lock()
	s.done = done
	s.mu.Unlock()

	go s.loop(ctx, done)
}

// Done returns a channel closed when the current loop goroutine exits. It
// reports a closed channel for a session that was never started.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}

	return s.done
}

// Stop disables polling. The in-flight getUpdates call is allowed to finish;
// the loop exits at the top of its next iteration.
func (s *Session) Stop() {
	if s.polling.CompareAndSwap(true, false) {
		s.logger.WithField("event", "poll_stop").Info("stopping long poll loop")
	}
}

func (s *Session) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for s.polling.Load() {
		if ctx.Err() != nil {
			s.polling.Store(false)
			break
		}

		updates, err := s.api.GetUpdates(ctx, s.offset, pollTimeoutSeconds)
		if err != nil {
			if ctx.Err() != nil {
				s.polling.Store(false)
				break
			}
			if !s.handlePollError(ctx, err) {
				return
			}
			continue
		}

		// A successful round trip resets the error budget even when the
		// batch is empty.
		s.consecutiveErrors = 0
		s.processBatch(ctx, updates)
	}

	s.logger.WithFields(logging.Fields{
		"event":  "poll_loop_exited",
		"offset": s.offset,
	}).Info("long poll loop exited")
}

// processBatch handles updates strictly in arrival order. The offset advances
// past every update once its handling has been attempted, so one bad update
// can never wedge the queue.
func (s *Session) processBatch(ctx context.Context, updates []models.Update) {
	for i := range updates {
		update := &updates[i]

		if err := s.handler.HandleUpdate(ctx, update); err != nil {
			s.logger.WithFields(logging.Fields{
				"event":     "update_handler_error",
				"update_id": update.ID,
			}).WithError(err).Error("handler failed, skipping update")
		}

		if update.ID >= s.offset {
			s.offset = update.ID + 1
		}
	}
}

// handlePollError runs the error-recovery path for one failed poll cycle.
// It returns false when the loop must exit (restart scheduled or context
// ended during the recovery sleep).
func (s *Session) handlePollError(ctx context.Context, err error) bool {
	s.consecutiveErrors++

	s.logger.WithFields(logging.Fields{
		"event":              "poll_error",
		"consecutive_errors": s.consecutiveErrors,
	}).WithError(err).Warn("getUpdates failed")

	if telegram.IsConflict(err) {
		// 409 means another consumer holds this token's update stream,
		// typically a stale webhook. Clear it before trying again.
		s.logger.WithField("event", "poll_conflict").Warn("conflicting consumer detected, clearing webhook")
		if werr := s.api.DeleteWebhook(ctx); werr != nil {
			s.logger.WithField("event", "webhook_cleanup_failed").WithError(werr).Warn("failed to clear webhook after conflict")
		}
	}

	if s.consecutiveErrors >= errorThreshold {
		s.polling.Store(false)
		s.logger.WithFields(logging.Fields{
			"event":       "poll_restart_scheduled",
			"retry_after": recoveryDelay.String(),
		}).Error("too many consecutive poll failures, scheduling restart")
		s.schedule(recoveryDelay, func() {
			s.Start(ctx)
		})
		return false
	}

	if !s.sleep(ctx, recoveryDelay) {
		s.polling.Store(false)
		return false
	}

	return true
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
