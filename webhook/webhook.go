// Package webhook notifies external endpoints about finished cluster jobs.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Event types.
const (
	EventClusterCompleted = "cluster.completed"
	EventClusterFailed    = "cluster.failed"
)

// SignatureHeader carries "sha256=<hex>" of the body when a secret is set.
const SignatureHeader = "X-Logosim-Signature"

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string `json:"type"`
	JobID     string `json:"job_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// NewEvent stamps an event with the current time.
func NewEvent(typ, jobID string, data any) *Event {
	return &Event{Type: typ, JobID: jobID, Timestamp: time.Now().Unix(), Data: data}
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether sig is a valid signature of body.
func Verify(secret string, body []byte, sig string) bool {
	if !strings.HasPrefix(sig, "sha256=") {
		return false
	}
	return hmac.Equal([]byte(sig), []byte(Sign(secret, body)))
}

// Notifier delivers events with retries.
type Notifier struct {
	client *http.Client
	delays []time.Duration
}

// NewNotifier creates a Notifier. delays lists the wait before each
// attempt; nil means 0, 1s, 5s, 30s.
func NewNotifier(timeout time.Duration, delays []time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if delays == nil {
		delays = []time.Duration{0, time.Second, 5 * time.Second, 30 * time.Second}
	}
	return &Notifier{client: &http.Client{Timeout: timeout}, delays: delays}
}

// Deliver posts event once. Any status >= 400 is an error.
func (n *Notifier) Deliver(ctx context.Context, url, secret string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Logosim-Webhook/1.0")
	if secret != "" {
		req.Header.Set(SignatureHeader, Sign(secret, body))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// DeliverAsync delivers event in the background, retrying on failure.
// The returned channel receives the final error (nil on success) and is
// then closed.
func (n *Notifier) DeliverAsync(url, secret string, event *Event) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		log := slog.With("url", url, "event", event.Type, "job_id", event.JobID)

		var err error
		for attempt, delay := range n.delays {
			if delay > 0 {
				time.Sleep(delay)
			}
			ctx, cancel := context.WithTimeout(context.Background(), n.client.Timeout)
			err = n.Deliver(ctx, url, secret, event)
			cancel()
			if err == nil {
				log.Info("webhook delivered", "attempt", attempt+1)
				done <- nil
				return
			}
			log.Warn("webhook delivery failed", "attempt", attempt+1, "error", err)
		}
		log.Error("webhook delivery exhausted all retries")
		done <- err
	}()
	return done
}
