package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

type stubMongoChecker struct {
	err error
}

func (s stubMongoChecker) Ping(context.Context) error {
	return s.err
}

type stubPollStatus struct {
	polling bool
}

func (s stubPollStatus) IsPolling() bool {
	return s.polling
}

func serveHealth(t *testing.T, server *Server, path string) (int, response) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()

	server.server.Handler.ServeHTTP(rr, req)

	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected content-type application/json, got %s", ct)
	}

	var resp response
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}

	return rr.Code, resp
}

func TestHealthHandlerOK(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	server := NewServer(0, stubMongoChecker{}, stubPollStatus{polling: true}, stubPollStatus{polling: true}, logrus.NewEntry(logger))

	code, resp := serveHealth(t, server, "/health")

	if code != http.StatusOK {
		t.Fatalf("expected HTTP 200, got %d", code)
	}
	if resp.Status != "ok" {
		t.Fatalf("expected status ok, got %s", resp.Status)
	}
	if resp.Mongo != "" {
		t.Fatalf("expected mongo field omitted when healthy, got %s", resp.Mongo)
	}
	if !resp.IsSupportBotPolling || !resp.IsApexBotPolling {
		t.Fatalf("expected both bots reported polling, got support=%v apex=%v",
			resp.IsSupportBotPolling, resp.IsApexBotPolling)
	}
	if resp.Timestamp == "" {
		t.Fatalf("expected timestamp to be set")
	}
}

func TestHealthHandlerReportsStoppedBot(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	server := NewServer(0, stubMongoChecker{}, stubPollStatus{polling: true}, stubPollStatus{polling: false}, logrus.NewEntry(logger))

	_, resp := serveHealth(t, server, "/health")

	if resp.Status != "ok" {
		t.Fatalf("expected a stopped bot to not degrade overall status, got %s", resp.Status)
	}
	if !resp.IsSupportBotPolling || resp.IsApexBotPolling {
		t.Fatalf("expected support=true apex=false, got support=%v apex=%v",
			resp.IsSupportBotPolling, resp.IsApexBotPolling)
	}
}

func TestHealthHandlerMongoError(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	server := NewServer(0, stubMongoChecker{err: errors.New("mongo down")}, stubPollStatus{polling: true}, stubPollStatus{polling: true}, logrus.NewEntry(logger))

	code, resp := serveHealth(t, server, "/health")

	if code != http.StatusOK {
		t.Fatalf("expected HTTP 200, got %d", code)
	}
	if resp.Status != "degraded" || resp.Mongo != "error" {
		t.Fatalf("expected degraded status with mongo error, got status=%s mongo=%s",
			resp.Status, resp.Mongo)
	}
}

func TestHealthHandlerMissingMongoChecker(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	server := NewServer(0, nil, stubPollStatus{polling: true}, stubPollStatus{polling: true}, logrus.NewEntry(logger))

	_, resp := serveHealth(t, server, "/health")

	if resp.Status != "degraded" || resp.Mongo != "error" {
		t.Fatalf("expected degraded status without a mongo checker, got status=%s mongo=%s",
			resp.Status, resp.Mongo)
	}
}

func TestHealthzAlias(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	server := NewServer(0, stubMongoChecker{}, stubPollStatus{polling: true}, stubPollStatus{polling: true}, logrus.NewEntry(logger))

	code, resp := serveHealth(t, server, "/healthz")

	if code != http.StatusOK || resp.Status != "ok" {
		t.Fatalf("expected /healthz to mirror /health, got code=%d status=%s", code, resp.Status)
	}
}
