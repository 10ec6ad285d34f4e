package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/quorumtrade/confluence/internal/signalgen"
)

// WebhookSink is a demo Sink implementation posting each Signal as JSON to
// a configured URL; it is not part of the core (spec.md §1 treats delivery
// as an external collaborator) and exists only to exercise cmd/confluence's
// `run` command end to end.
type WebhookSink struct {
	url    string
	client *http.Client
}

// NewWebhookSink builds a WebhookSink.
func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{url: url, client: &http.Client{Timeout: 5 * time.Second}}
}

// Deliver implements Sink.
func (w *WebhookSink) Deliver(ctx context.Context, sig signalgen.Signal) error {
	body, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post signal: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// NullSink discards every signal; used when no downstream sink is
// configured (cmd/confluence's `run` command without --webhook).
type NullSink struct{}

// Deliver implements Sink.
func (NullSink) Deliver(ctx context.Context, sig signalgen.Signal) error { return nil }
