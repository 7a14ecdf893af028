package sync

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

// Probe reports whether the remote service is reachable.
type Probe interface {
	// Check returns true when online. Implementations must bound their
	// own latency: a probe that cannot answer within its timeout
	// reports offline.
	Check(ctx context.Context) bool
}

// HTTPProbe checks connectivity with a HEAD request against the remote
// endpoint. Transient failures are retried with capped exponential
// backoff before the probe gives up and reports offline.
type HTTPProbe struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

// NewHTTPProbe creates a probe for the given URL with a hard timeout
// covering all attempts.
func NewHTTPProbe(url string, timeout time.Duration) *HTTPProbe {
	return &HTTPProbe{
		url:     url,
		timeout: timeout,
		client:  &http.Client{},
	}
}

func (p *HTTPProbe) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	backoff := retry.WithMaxRetries(2, retry.NewExponential(200*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
		if err != nil {
			return err
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		resp.Body.Close()
		if resp.StatusCode >= http.StatusInternalServerError {
			return retry.RetryableError(fmt.Errorf("probe status %d", resp.StatusCode))
		}
		return nil
	})
	return err == nil
}

// StaticProbe always reports the configured state. Used when no remote
// endpoint is configured and in tests.
type StaticProbe bool

func (p StaticProbe) Check(context.Context) bool { return bool(p) }
