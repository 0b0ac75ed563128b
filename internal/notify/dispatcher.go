// dispatcher.go - Single-attempt webhook dispatch of notification events

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/oritmalki/bizmanager/internal/metrics"
)

// Payload is one notification event. Attachments travel inline as base64;
// payloads are expected to stay small enough that streaming is not needed.
type Payload struct {
	Type       string      `json:"type"`
	Data       interface{} `json:"data"`
	Subject    string      `json:"subject,omitempty"`
	HTMLBody   string      `json:"htmlBody,omitempty"`
	FileBase64 string      `json:"fileBase64,omitempty"`
	FileName   string      `json:"fileName,omitempty"`
}

// Result is the structured outcome of exactly one dispatch attempt
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// AttemptRecorder records every dispatch attempt, successful or not, with
// enough context to replay it manually.
type AttemptRecorder func(payloadType string, result Result, subject, fileName string)

// Dispatcher posts notification payloads to the one configured webhook.
// Exactly one attempt per payload, no retry, no backoff: callers needing
// delivery guarantees must not depend on this component.
type Dispatcher struct {
	webhookURL string
	client     *http.Client
	record     AttemptRecorder
}

// NewDispatcher creates a dispatcher. An empty webhookURL is a valid
// disabled state, not an error.
func NewDispatcher(webhookURL string, timeout time.Duration, recorder AttemptRecorder) *Dispatcher {
	return &Dispatcher{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: timeout},
		record:     recorder,
	}
}

// Configured reports whether a webhook URL is set
func (d *Dispatcher) Configured() bool { return d.webhookURL != "" }

// Dispatch sends one payload. When the webhook is unconfigured it returns a
// structured failure immediately with zero network calls - a configuration
// state, not a transient fault.
func (d *Dispatcher) Dispatch(ctx context.Context, p Payload) Result {
	result := d.attempt(ctx, p)

	outcome := "success"
	if !result.Success {
		outcome = "failure"
		if !d.Configured() {
			outcome = "unconfigured"
		}
	}
	metrics.NotificationDispatches.WithLabelValues(p.Type, outcome).Inc()

	if d.record != nil {
		d.record(p.Type, result, p.Subject, p.FileName)
	}
	return result
}

func (d *Dispatcher) attempt(ctx context.Context, p Payload) Result {
	if !d.Configured() {
		return Result{Success: false, Error: "notification webhook is not configured"}
	}

	body, err := json.Marshal(p)
	if err != nil {
		return Result{Success: false, Error: fmt.Sprintf("failed to marshal payload: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewBuffer(body))
	if err != nil {
		return Result{Success: false, Error: fmt.Sprintf("failed to create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return Result{Success: false, Error: fmt.Sprintf("webhook request failed: %v", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return Result{Success: false, Error: fmt.Sprintf("failed to read webhook response: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{Success: false, Error: fmt.Sprintf("webhook returned %d: %s", resp.StatusCode, excerpt(respBody))}
	}

	var parsed Result
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		// A 2xx with an unparseable body still counts as delivered
		return Result{Success: true}
	}
	if !parsed.Success && parsed.Error == "" {
		parsed.Error = "webhook reported failure without detail"
	}
	return parsed
}

func excerpt(body []byte) string {
	s := string(body)
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
