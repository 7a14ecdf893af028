package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// RemoteApplier applies one queued mutation to the remote service.
type RemoteApplier interface {
	Apply(ctx context.Context, entry QueueEntry) error
}

// applyRequest is the body posted to the remote apply endpoint.
type applyRequest struct {
	PushID    string          `json:"pushId"`
	Table     string          `json:"tabela"`
	RecordID  string          `json:"recordId"`
	Operation Operation       `json:"operacao"`
	Payload   json.RawMessage `json:"dados,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// HTTPRemote posts queue entries to an HTTP apply endpoint. A non-2xx
// response is a failure; the engine decides whether to retry or drop.
type HTTPRemote struct {
	endpoint string
	client   *http.Client
}

func NewHTTPRemote(endpoint string, timeout time.Duration) *HTTPRemote {
	return &HTTPRemote{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (r *HTTPRemote) Apply(ctx context.Context, entry QueueEntry) error {
	body, err := json.Marshal(applyRequest{
		PushID:    uuid.NewString(),
		Table:     entry.Table,
		RecordID:  entry.RecordID,
		Operation: entry.Operation,
		Payload:   entry.Payload,
		Timestamp: entry.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("marshal apply request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build apply request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("apply %s %s/%s: %w", entry.Operation, entry.Table, entry.RecordID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Bounded read keeps error messages useful without trusting
		// the remote to be brief.
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("apply %s %s/%s: status %d: %s",
			entry.Operation, entry.Table, entry.RecordID, resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}

// SimulatedRemote acknowledges everything after an optional delay. It
// stands in for the real service when no endpoint is configured.
type SimulatedRemote struct {
	Delay time.Duration
}

func (r *SimulatedRemote) Apply(ctx context.Context, entry QueueEntry) error {
	if r.Delay > 0 {
		select {
		case <-time.After(r.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
