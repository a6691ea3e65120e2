package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alanyoungcy/agentrunner/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHealthCheckOK(t *testing.T) {
	last := time.Now()
	h := NewHealthHandler(testLogger(), func() time.Time { return last }, time.Minute)

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHealthCheckDegradedWhenStale(t *testing.T) {
	stale := time.Now().Add(-10 * time.Minute)
	h := NewHealthHandler(testLogger(), func() time.Time { return stale }, time.Minute)

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for a stale scheduler tick, got %d", rec.Code)
	}
}

func TestHealthCheckNoScheduler(t *testing.T) {
	h := NewHealthHandler(testLogger(), nil, time.Minute)

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with no scheduler wired, got %d", rec.Code)
	}
}

type fakeTriggerBus struct {
	published []domain.TokenId
	failNext  bool
}

func (f *fakeTriggerBus) PublishTrigger(ctx context.Context, tokenId domain.TokenId) error {
	if f.failNext {
		return context.DeadlineExceeded
	}
	f.published = append(f.published, tokenId)
	return nil
}
func (f *fakeTriggerBus) SubscribeTriggers(ctx context.Context) (<-chan domain.TokenId, error) {
	return nil, nil
}
func (f *fakeTriggerBus) PublishEvent(ctx context.Context, stream string, payload []byte) error {
	return nil
}
func (f *fakeTriggerBus) ReadEvents(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func TestTriggerPublishesAndValidates(t *testing.T) {
	bus := &fakeTriggerBus{}
	h := NewTriggerHandler(bus, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/trigger/42", nil)
	req.SetPathValue("tokenId", "42")
	rec := httptest.NewRecorder()
	h.Trigger(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(bus.published) != 1 || bus.published[0] != domain.TokenId(42) {
		t.Fatalf("expected token 42 to be published, got %v", bus.published)
	}

	bad := httptest.NewRequest(http.MethodPost, "/api/trigger/not-a-number", nil)
	bad.SetPathValue("tokenId", "not-a-number")
	badRec := httptest.NewRecorder()
	h.Trigger(badRec, bad)
	if badRec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-integer tokenId, got %d", badRec.Code)
	}
}

func TestTriggerPublishFailure(t *testing.T) {
	bus := &fakeTriggerBus{failNext: true}
	h := NewTriggerHandler(bus, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/trigger/7", nil)
	req.SetPathValue("tokenId", "7")
	rec := httptest.NewRecorder()
	h.Trigger(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 on publish failure, got %d", rec.Code)
	}
}
