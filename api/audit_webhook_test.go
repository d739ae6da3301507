package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/liftlog/storage/memory"
)

// webhookSink records every payload it receives.
type webhookSink struct {
	mu     sync.Mutex
	events []webhookEvent
	header http.Header
}

func (s *webhookSink) handler(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var evt webhookEvent
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &evt)
		s.mu.Lock()
		s.events = append(s.events, evt)
		s.header = r.Header.Clone()
		s.mu.Unlock()
		w.WriteHeader(status)
	}
}

func (s *webhookSink) snapshot() ([]webhookEvent, http.Header) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]webhookEvent(nil), s.events...), s.header
}

func newTestWebhook(url, authHeader string) *auditWebhook {
	wh := newAuditWebhook(url, authHeader, slog.New(slog.NewTextHandler(io.Discard, nil)))
	wh.retryDelay = time.Millisecond
	return wh
}

func TestWebhook_Delivery(t *testing.T) {
	sink := &webhookSink{}
	srv := httptest.NewServer(sink.handler(http.StatusOK))
	defer srv.Close()

	wh := newTestWebhook(srv.URL, "Authorization: Bearer hook-token")
	wh.enqueue(webhookEvent{
		Event:      string(AuditLoginSuccess),
		UserUUID:   "user-1",
		RemoteAddr: "127.0.0.1:1234",
		Timestamp:  "2026-01-01T00:00:00Z",
	})
	wh.close()

	events, header := sink.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, "login_success", events[0].Event)
	assert.Equal(t, "user-1", events[0].UserUUID)
	assert.Equal(t, "application/json", header.Get("Content-Type"))
	assert.Equal(t, webhookUserAgent, header.Get("User-Agent"))
	assert.Equal(t, "Bearer hook-token", header.Get("Authorization"))
}

func TestWebhook_RetryPolicy(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		attempts int32
	}{
		{name: "retries once on 5xx", status: http.StatusBadGateway, attempts: 2},
		{name: "no retry on 4xx", status: http.StatusBadRequest, attempts: 1},
		{name: "no retry on success", status: http.StatusNoContent, attempts: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				attempts.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			wh := newTestWebhook(srv.URL, "")
			wh.enqueue(webhookEvent{Event: "logout", Timestamp: "2026-01-01T00:00:00Z"})
			wh.close()

			assert.Equal(t, tt.attempts, attempts.Load())
		})
	}
}

func TestWebhook_CloseDrainsQueue(t *testing.T) {
	sink := &webhookSink{}
	srv := httptest.NewServer(sink.handler(http.StatusOK))
	defer srv.Close()

	wh := newTestWebhook(srv.URL, "")
	for i := 0; i < 5; i++ {
		wh.enqueue(webhookEvent{Event: "csrf_issued", Timestamp: "2026-01-01T00:00:00Z"})
	}
	wh.close()
	wh.close()

	events, _ := sink.snapshot()
	assert.Len(t, events, 5)
}

func TestWebhook_QueueFullDoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	wh := &auditWebhook{
		url:    srv.URL,
		client: &http.Client{Timeout: 50 * time.Millisecond},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		events: make(chan webhookEvent, 2),
	}
	wh.wg.Add(1)
	go wh.loop()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			wh.enqueue(webhookEvent{Event: "flood"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked on a full queue")
	}
}

func TestAuditWebhookEventLiftsUserUUID(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	ts := time.Date(2026, 5, 1, 8, 30, 0, 0, time.FixedZone("X", 3600))

	evt := auditWebhookEvent(AuditLoginFailure, r, ts, []slog.Attr{
		slog.String("user_uuid", "u-42"),
		slog.String("reason", "invalid_credentials"),
	})

	assert.Equal(t, "login_failure", evt.Event)
	assert.Equal(t, "u-42", evt.UserUUID)
	assert.Equal(t, r.RemoteAddr, evt.RemoteAddr)
	assert.Equal(t, "2026-05-01T07:30:00Z", evt.Timestamp)
	assert.Equal(t, map[string]string{"reason": "invalid_credentials"}, evt.Attrs)
}

func TestAlertWebhookEvent(t *testing.T) {
	evt := alertWebhookEvent(AlertEvent{
		Type:      AlertCSRFRejectSpike,
		Message:   "spike",
		Count:     100,
		Threshold: 100,
		Timestamp: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.Equal(t, "alert.csrf_reject_spike", evt.Event)
	assert.Equal(t, "100", evt.Attrs["count"])
	assert.Equal(t, "100", evt.Attrs["threshold"])
}

func TestAPIForwardsAuditEventsToWebhook(t *testing.T) {
	sink := &webhookSink{}
	srv := httptest.NewServer(sink.handler(http.StatusOK))
	defer srv.Close()

	a, _ := newGateAPI(t, memory.NewRepository())
	a.webhookURL = srv.URL
	a.webhook = newTestWebhook(srv.URL, "")
	a.audit.webhook = a.webhook

	rec := httptest.NewRecorder()
	a.CSRFToken(rec, httptest.NewRequest(http.MethodGet, "/auth/csrf-token", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	a.Close()

	events, _ := sink.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, string(AuditCSRFIssued), events[0].Event)
}
