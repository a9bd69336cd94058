package runner

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

func newSupervisedPair(t *testing.T) (*Supervisor, *Session, *Session, chan struct{}) {
	t.Helper()

	release := make(chan struct{})
	logger, _ := logtest.NewNullLogger()
	entry := logrus.NewEntry(logger)

	support := NewSession("support", &blockingAPI{release: release}, &recordingHandler{}, entry)
	apex := NewSession("apex", &blockingAPI{release: release}, &recordingHandler{}, entry)
	return NewSupervisor(entry, support, apex), support, apex, release
}

func TestStartAllStartsEverySession(t *testing.T) {
	supervisor, support, apex, release := newSupervisedPair(t)

	supervisor.StartAll(context.Background())

	if !support.IsPolling() || !apex.IsPolling() {
		t.Fatalf("expected both sessions polling, got support=%v apex=%v",
			support.IsPolling(), apex.IsPolling())
	}

	supervisor.StopAll()
	close(release)
	joinLoop(t, support)
	joinLoop(t, apex)
}

func TestStopAllDisablesEverySession(t *testing.T) {
	supervisor, support, apex, release := newSupervisedPair(t)

	supervisor.StartAll(context.Background())
	supervisor.StopAll()

	if support.IsPolling() || apex.IsPolling() {
		t.Fatalf("expected both sessions stopped, got support=%v apex=%v",
			support.IsPolling(), apex.IsPolling())
	}

	close(release)
	joinLoop(t, support)
	joinLoop(t, apex)
}

func TestShutdownWaitsForLoopExit(t *testing.T) {
	supervisor, support, apex, release := newSupervisedPair(t)

	supervisor.StartAll(context.Background())
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	supervisor.Shutdown(ctx)

	select {
	case <-support.Done():
	default:
		t.Fatalf("expected support loop to have exited")
	}
	select {
	case <-apex.Done():
	default:
		t.Fatalf("expected apex loop to have exited")
	}
}

func TestShutdownHonorsDeadlineWhenLoopHangs(t *testing.T) {
	supervisor, support, _, release := newSupervisedPair(t)
	defer close(release)

	// Never started: Done reports closed immediately, so shutdown with an
	// expired context still returns without touching the release channel.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		supervisor.Shutdown(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("shutdown did not return under an ended context")
	}

	if support.IsPolling() {
		t.Fatalf("expected sessions stopped after shutdown")
	}
}
