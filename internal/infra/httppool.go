// Package infra provides the shared infrastructure layer: the pooled
// HTTP client all adapters fetch through, request fingerprinting, the
// response cache, per-provider circuit breakers, and rate limiting.
package infra

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/seenimoa/macroquery/internal/provider"
)

// PoolConfig tunes the shared HTTP transport.
type PoolConfig struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	DialTimeout         time.Duration
	TLSHandshakeTimeout time.Duration
	RequestTimeout      time.Duration
}

// DefaultPoolConfig returns the production transport settings.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialTimeout:         10 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		RequestTimeout:      30 * time.Second,
	}
}

// Response is the outcome of a pool request. Non-2xx statuses are
// returned here, not as errors; adapters classify them.
type Response struct {
	Status  int
	Body    []byte
	Header  http.Header
	Elapsed time.Duration
}

// Pool wraps a single shared http.Client. All upstream traffic goes
// through it so connection reuse works across adapters.
type Pool struct {
	client *http.Client
	log    zerolog.Logger
}

// NewPool builds the shared client with a tuned transport.
func NewPool(cfg PoolConfig, log zerolog.Logger) *Pool {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		TLSHandshakeTimeout: cfg.TLSHandshakeTimeout,
	}
	return &Pool{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
		},
		log: log.With().Str("component", "httppool").Logger(),
	}
}

// maxBodyBytes caps response reads; economic APIs can return large cubes
// but nothing legitimate exceeds this.
const maxBodyBytes = 32 << 20

// Get issues a GET through the pool. providerName is used only for
// error attribution and logging.
func (p *Pool) Get(ctx context.Context, providerName, url string, headers map[string]string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &provider.NetworkError{Provider: providerName, Err: err}
	}
	return p.do(providerName, req, headers)
}

// PostJSON issues a POST with a JSON body through the pool.
func (p *Pool) PostJSON(ctx context.Context, providerName, url string, body []byte, headers map[string]string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &provider.NetworkError{Provider: providerName, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	return p.do(providerName, req, headers)
}

func (p *Pool) do(providerName string, req *http.Request, headers map[string]string) (*Response, error) {
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	req.Header.Set("User-Agent", "macroquery/1.0")

	start := time.Now()
	resp, err := p.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		if isTimeout(err) {
			return nil, &provider.TimeoutError{Provider: providerName, Err: err}
		}
		return nil, &provider.NetworkError{Provider: providerName, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if isTimeout(err) {
			return nil, &provider.TimeoutError{Provider: providerName, Err: err}
		}
		return nil, &provider.NetworkError{Provider: providerName, Err: err}
	}

	p.log.Debug().
		Str("provider", providerName).
		Int("status", resp.StatusCode).
		Dur("elapsed", elapsed).
		Int("bytes", len(body)).
		Msg("upstream request")

	return &Response{
		Status:  resp.StatusCode,
		Body:    body,
		Header:  resp.Header,
		Elapsed: elapsed,
	}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// RetryAfter parses a Retry-After header value in seconds. Returns zero
// when absent or malformed.
func RetryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	var secs int
	for _, r := range v {
		if r < '0' || r > '9' {
			return 0
		}
		secs = secs*10 + int(r-'0')
	}
	if secs <= 0 || secs > 3600 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// ClassifyStatus converts a non-2xx response into the matching taxonomy
// error. 2xx returns nil.
func ClassifyStatus(providerName string, resp *Response) error {
	switch {
	case resp.Status >= 200 && resp.Status < 300:
		return nil
	case resp.Status == http.StatusTooManyRequests:
		return &provider.RateLimitError{Provider: providerName, RetryAfter: RetryAfter(resp.Header)}
	default:
		return &provider.UpstreamError{
			Provider: providerName,
			Status:   resp.Status,
			Body:     truncate(string(resp.Body), 512),
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
