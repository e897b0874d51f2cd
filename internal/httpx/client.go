// Package httpx wraps net/http with the pooling, dispatch-limiting, and
// response-parsing behavior every component that talks to the crossword
// target needs: the session store, the journey executor, and the static
// asset fetches.
package httpx

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Config controls how a Client's transport and dispatch limits are built.
type Config struct {
	// MaxIdleConnsPerHost caps how many idle connections are kept cached
	// per host. Defaults to 100 if zero.
	MaxIdleConnsPerHost int
	// MaxConnsPerHost caps concurrent connections to a single host.
	// Defaults to 100 if zero.
	MaxConnsPerHost int
	// MaxInFlight caps total concurrent in-flight requests across all
	// hosts, the Go analogue of a Dispatcher's maxRequests. Defaults to
	// 200 if zero.
	MaxInFlight int
	// RequestTimeout bounds each request end to end (connect, write, and
	// read folded into one deadline). Defaults to 30s if zero.
	RequestTimeout time.Duration
	// InsecureSkipVerify trusts all server certificates. Off by default;
	// only meant for self-signed test targets.
	InsecureSkipVerify bool
	// Transport, when set, is used instead of building one from the
	// fields above. Tests use this to install a RoundTripper stub.
	Transport http.RoundTripper
}

// Client is a shared HTTP client with a bounded dispatch semaphore. It is
// safe for concurrent use by any number of worker goroutines.
type Client struct {
	http    *http.Client
	timeout time.Duration
	inFlite chan struct{}
}

// New builds a Client from cfg, filling unset fields with the defaults
// described on Config.
func New(cfg Config) *Client {
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = 100
	}
	if cfg.MaxConnsPerHost <= 0 {
		cfg.MaxConnsPerHost = 100
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 200
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	transport := cfg.Transport
	if transport == nil {
		t := &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   cfg.RequestTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
			MaxConnsPerHost:     cfg.MaxConnsPerHost,
			IdleConnTimeout:     5 * time.Minute,
		}
		if cfg.InsecureSkipVerify {
			t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		transport = t
	}

	return &Client{
		http:    &http.Client{Transport: transport},
		timeout: cfg.RequestTimeout,
		inFlite: make(chan struct{}, cfg.MaxInFlight),
	}
}

// Do issues req, bounded by the client's in-flight semaphore and a
// per-request deadline. It always drains and closes the response body
// before returning body bytes, so callers never need to Close() the
// response themselves. Non-2xx responses are returned with a populated
// error carrying the status code; the caller decides whether that is
// fatal for the step it is executing.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, []byte, error) {
	select {
	case c.inFlite <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	defer func() { <-c.inFlite }()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req = req.WithContext(ctx)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("httpx: %s %s: %w", req.Method, req.URL, err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return resp, nil, fmt.Errorf("httpx: read body for %s %s: %w", req.Method, req.URL, readErr)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, body, fmt.Errorf("httpx: %s %s: unexpected status %d", req.Method, req.URL, resp.StatusCode)
	}
	return resp, body, nil
}

// Get issues a GET request to url and returns the drained response body.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, []byte, error) {
	return Get(ctx, c, url)
}

// PostJSON issues a POST with body encoded as JSON and Content-Type set
// accordingly.
func (c *Client) PostJSON(ctx context.Context, url string, body []byte) (*http.Response, []byte, error) {
	return PostJSON(ctx, c, url, body)
}

// Doer is anything that can dispatch a built request the way a Client
// does. Every caller in this module — the session store, the journey
// executor, the replay dispatcher — depends on a Doer rather than the
// concrete Client so that AuthDecorator can be substituted in front of
// them without those callers ever knowing an auth layer is present. Go's
// embedding has no virtual dispatch, so AuthDecorator can only take part
// in Get/PostJSON by those helpers being written against this interface
// rather than calling back through the embedded Client.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, []byte, error)
}

// Get issues a GET request to url through d and returns the drained
// response body.
func Get(ctx context.Context, d Doer, url string) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("httpx: build GET %s: %w", url, err)
	}
	return d.Do(ctx, req)
}

// PostJSON issues a POST with body encoded as JSON and Content-Type set
// accordingly, through d.
func PostJSON(ctx context.Context, d Doer, url string, body []byte) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("httpx: build POST %s: %w", url, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return d.Do(ctx, req)
}

// GetLogged is Get with the request/response pair recorded through debug
// under the given virtual-user id and step name. debug may be nil, in
// which case this behaves exactly like Get.
func GetLogged(ctx context.Context, d Doer, url string, debug *DebugLogger, vu int, stepName string) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("httpx: build GET %s: %w", url, err)
	}
	return doLogged(ctx, d, req, debug, vu, stepName)
}

// PostJSONLogged is PostJSON with the exchange recorded through debug.
func PostJSONLogged(ctx context.Context, d Doer, url string, body []byte, debug *DebugLogger, vu int, stepName string) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("httpx: build POST %s: %w", url, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return doLogged(ctx, d, req, debug, vu, stepName)
}

func doLogged(ctx context.Context, d Doer, req *http.Request, debug *DebugLogger, vu int, stepName string) (*http.Response, []byte, error) {
	if debug == nil {
		return d.Do(ctx, req)
	}
	debug.LogRequest(vu, stepName, req)
	start := time.Now()
	resp, body, err := d.Do(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		debug.LogError(vu, stepName, err.Error(), elapsed)
		return resp, body, err
	}
	debug.LogResponse(vu, stepName, resp, body, elapsed)
	return resp, body, err
}
