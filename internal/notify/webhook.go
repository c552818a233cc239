package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Payload is the JSON body posted to the security webhook.
type Payload struct {
	Type      string         `json:"type"`
	Subject   string         `json:"subject"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source"`
	Priority  string         `json:"priority"`
}

// Webhook posts payloads to a single URL, retrying transport errors, 429 and
// 5xx responses with exponential backoff.
type Webhook struct {
	URL       string
	Client    *http.Client
	Retries   int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	sleepFn   func(context.Context, time.Duration) error
}

func NewWebhook(url string, timeout time.Duration, retries int) *Webhook {
	return &Webhook{
		URL:       url,
		Client:    &http.Client{Timeout: timeout},
		Retries:   retries,
		BaseDelay: time.Second,
		MaxDelay:  30 * time.Second,
	}
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("webhook returned %d: %s", e.code, e.body)
}

func (e *statusError) retryable() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}

// Send delivers p, giving up after Retries extra attempts or when ctx ends.
func (w *Webhook) Send(ctx context.Context, p Payload) error {
	if w.URL == "" {
		return nil
	}
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	delay := w.BaseDelay
	var lastErr error
	for attempt := 0; attempt <= w.Retries; attempt++ {
		if attempt > 0 {
			if err := w.sleep(ctx, delay); err != nil {
				return errors.Join(lastErr, err)
			}
			delay *= 2
			if delay > w.MaxDelay {
				delay = w.MaxDelay
			}
		}

		lastErr = w.post(ctx, body)
		if lastErr == nil {
			return nil
		}
		var se *statusError
		if errors.As(lastErr, &se) && !se.retryable() {
			return lastErr
		}
	}
	return lastErr
}

func (w *Webhook) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &statusError{code: resp.StatusCode, body: string(snippet)}
}

func (w *Webhook) sleep(ctx context.Context, d time.Duration) error {
	if w.sleepFn != nil {
		return w.sleepFn(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
