package resilience

import (
	"context"
	"net"
	"net/http"
	"time"
)

// HTTPClientConfig tunes the shared transport for one provider endpoint.
type HTTPClientConfig struct {
	MaxIdleConns          int
	MaxConnsPerHost       int
	IdleConnTimeout       time.Duration
	ResponseHeaderTimeout time.Duration
}

// DefaultHTTPClientConfig returns transport settings sized for VLM
// chat-completion calls, which can sit on the first byte for a long time.
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		MaxIdleConns:          20,
		MaxConnsPerHost:       10,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: 120 * time.Second,
	}
}

// Client bundles a pooled HTTP client with a circuit breaker for one
// provider endpoint. Per-call deadlines come from the request context;
// the client itself carries no overall timeout so slow model generations
// are not cut off mid-body.
type Client struct {
	httpClient *http.Client
	breaker    *CircuitBreaker
}

// NewClient builds a pooled, breaker-protected HTTP client.
func NewClient(config HTTPClientConfig, breaker *CircuitBreaker) *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          config.MaxIdleConns,
		MaxConnsPerHost:       config.MaxConnsPerHost,
		MaxIdleConnsPerHost:   config.MaxIdleConns / 2,
		IdleConnTimeout:       config.IdleConnTimeout,
		ResponseHeaderTimeout: config.ResponseHeaderTimeout,
	}

	if breaker == nil {
		breaker = NewCircuitBreaker(CircuitBreakerConfig{})
	}

	return &Client{
		httpClient: &http.Client{Transport: transport},
		breaker:    breaker,
	}
}

// Do executes the request under circuit-breaker protection. Non-2xx
// statuses at or above 500 count as breaker failures; 4xx responses pass
// through untouched since retrying them cannot help.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var resp *http.Response

	err := c.breaker.Call(func() error {
		var err error
		resp, err = c.httpClient.Do(req)
		if err != nil {
			return err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return &serverError{status: resp.StatusCode}
		}
		return nil
	})

	// A server error still carries a response body the caller may want
	// for diagnostics; surface the response alongside nil error only for
	// breaker bookkeeping purposes.
	if err != nil {
		if _, ok := err.(*serverError); ok {
			return resp, nil
		}
		return nil, err
	}
	return resp, nil
}

// BreakerState exposes the current breaker state for monitoring.
func (c *Client) BreakerState() CircuitState {
	return c.breaker.State()
}

// CloseIdleConnections releases pooled connections.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

type serverError struct{ status int }

func (e *serverError) Error() string {
	return http.StatusText(e.status)
}

// WithDeadline derives a context with the given budget when one is set.
func WithDeadline(ctx context.Context, budget time.Duration) (context.Context, context.CancelFunc) {
	if budget <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, budget)
}
