package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	webhookQueueSize  = 1024
	webhookRetryDelay = time.Second
	webhookUserAgent  = "LiftLog-Security-Webhook/1.0"
)

// webhookEvent is the JSON payload POSTed to the security webhook. Audit
// events and spike alerts share the shape; alerts use an "alert." prefix.
type webhookEvent struct {
	Event      string            `json:"event"`
	UserUUID   string            `json:"user_uuid,omitempty"`
	RemoteAddr string            `json:"remote_addr,omitempty"`
	Timestamp  string            `json:"timestamp"`
	Attrs      map[string]string `json:"attrs,omitempty"`
}

// auditWebhook forwards security events to an external HTTP endpoint from a
// background goroutine. enqueue never blocks; events are dropped when the
// queue is full.
type auditWebhook struct {
	url        string
	authHeader string // "Header: Value", e.g. "Authorization: Bearer xxx"
	client     *http.Client
	logger     *slog.Logger
	retryDelay time.Duration
	events     chan webhookEvent
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

func newAuditWebhook(url, authHeader string, logger *slog.Logger) *auditWebhook {
	if logger == nil {
		logger = slog.Default()
	}
	w := &auditWebhook{
		url:        url,
		authHeader: authHeader,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		retryDelay: webhookRetryDelay,
		events:     make(chan webhookEvent, webhookQueueSize),
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

func (w *auditWebhook) enqueue(evt webhookEvent) {
	if w == nil {
		return
	}
	select {
	case w.events <- evt:
	default:
		w.logger.Warn("security webhook: queue full, dropping event", "event", evt.Event)
	}
}

// close stops accepting events and waits for the queue to drain.
func (w *auditWebhook) close() {
	if w == nil {
		return
	}
	w.closeOnce.Do(func() {
		close(w.events)
		w.wg.Wait()
	})
}

func (w *auditWebhook) loop() {
	defer w.wg.Done()
	for evt := range w.events {
		w.send(evt)
	}
}

// send POSTs the event, retrying once on a transport error or 5xx.
func (w *auditWebhook) send(evt webhookEvent) {
	body, err := json.Marshal(evt)
	if err != nil {
		w.logger.Warn("security webhook: marshal failed", "error", err)
		return
	}

	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			time.Sleep(w.retryDelay)
		}

		req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			w.logger.Warn("security webhook: request creation failed", "error", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", webhookUserAgent)
		if name, value, ok := strings.Cut(w.authHeader, ":"); ok {
			req.Header.Set(strings.TrimSpace(name), strings.TrimSpace(value))
		}

		resp, err := w.client.Do(req)
		if err != nil {
			w.logger.Warn("security webhook: request failed", "error", err, "attempt", attempt+1)
			continue
		}
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return
		case resp.StatusCode >= 500:
			w.logger.Warn("security webhook: server error", "status", resp.StatusCode, "attempt", attempt+1)
			continue
		default:
			w.logger.Warn("security webhook: client error", "status", resp.StatusCode)
			return
		}
	}
}

// auditWebhookEvent flattens an audit record. user_uuid is lifted out of
// attrs into its own field.
func auditWebhookEvent(event AuditEvent, r *http.Request, ts time.Time, attrs []slog.Attr) webhookEvent {
	evt := webhookEvent{
		Event:      string(event),
		RemoteAddr: r.RemoteAddr,
		Timestamp:  ts.UTC().Format(time.RFC3339),
	}
	for _, attr := range attrs {
		if attr.Key == "user_uuid" {
			evt.UserUUID = attr.Value.String()
			continue
		}
		if evt.Attrs == nil {
			evt.Attrs = make(map[string]string, len(attrs))
		}
		evt.Attrs[attr.Key] = attr.Value.String()
	}
	return evt
}

func alertWebhookEvent(alert AlertEvent) webhookEvent {
	return webhookEvent{
		Event:     "alert." + string(alert.Type),
		Timestamp: alert.Timestamp.UTC().Format(time.RFC3339),
		Attrs: map[string]string{
			"message":   alert.Message,
			"count":     fmt.Sprint(alert.Count),
			"threshold": fmt.Sprint(alert.Threshold),
		},
	}
}
