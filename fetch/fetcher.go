// Package fetch downloads web-hosted taxonomy packages with retry, circuit
// breaking and DNS caching, and resolves package source locations.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cenk/backoff"
	"github.com/rs/dnscache"
	"go.uber.org/zap"
)

var (
	ErrNotFound     = errors.New("package source not found")
	ErrRateLimited  = errors.New("rate limited by upstream")
	ErrUpstreamDown = errors.New("upstream server unavailable")
)

// Artifact is an open download of a package source.
type Artifact struct {
	Body io.ReadCloser
	Metadata
}

// Metadata describes a remote source without its body.
type Metadata struct {
	Size         int64 // -1 if unknown
	ContentType  string
	ETag         string
	LastModified time.Time // zero if the server sent none
}

// FetcherInterface is implemented by Fetcher and CircuitBreakerFetcher.
type FetcherInterface interface {
	Fetch(ctx context.Context, url string) (*Artifact, error)
	Head(ctx context.Context, url string) (*Metadata, error)
}

// Fetcher downloads package sources over HTTP. Rate limiting and server
// errors are retried with exponential backoff.
type Fetcher struct {
	client     *http.Client
	userAgent  string
	maxRetries int
	baseDelay  time.Duration
	authFn     func(url string) (headerName, headerValue string)
	logger     *zap.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the DNS-caching default client. The client is
// copied, so later options never modify the caller's value.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		cp := *c
		f.client = &cp
	}
}

// WithTimeout bounds a single request including reading the body.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.client.Timeout = d
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithMaxRetries sets how many times a failed request is retried.
func WithMaxRetries(n int) Option {
	return func(f *Fetcher) {
		f.maxRetries = max(n, 0)
	}
}

// WithBaseDelay sets the wait before the first retry; later waits double.
func WithBaseDelay(d time.Duration) Option {
	return func(f *Fetcher) {
		f.baseDelay = d
	}
}

// WithAuthFunc sets a function that returns an auth header for a URL.
// Return empty strings to send no header.
func WithAuthFunc(fn func(url string) (headerName, headerValue string)) Option {
	return func(f *Fetcher) {
		f.authFn = fn
	}
}

// WithFetchLogger logs retries.
func WithFetchLogger(l *zap.Logger) Option {
	return func(f *Fetcher) {
		f.logger = l
	}
}

// NewFetcher creates a Fetcher with a DNS-caching transport.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client: &http.Client{
			Timeout:   5 * time.Minute, // taxonomy archives can be hundreds of megabytes
			Transport: newTransport(),
		},
		userAgent:  "taxpkg/1.0",
		maxRetries: 3,
		baseDelay:  500 * time.Millisecond,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func newTransport() *http.Transport {
	resolver := &dnscache.Resolver{}
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			resolver.Refresh(true)
		}
	}()

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := resolver.LookupHost(ctx, host)
			if err != nil {
				return nil, err
			}
			var lastErr error
			for _, ip := range ips {
				conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
				if err == nil {
					return conn, nil
				}
				lastErr = err
			}
			return nil, fmt.Errorf("dialing %s: %w", host, lastErr)
		},
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// retryPolicy doubles the wait after every failure with 10% jitter.
func (f *Fetcher) retryPolicy(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = f.baseDelay
	exp.RandomizationFactor = 0.1
	exp.Multiplier = 2
	exp.MaxInterval = time.Minute
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(f.maxRetries)), ctx)
}

// retry runs op until it succeeds, fails permanently, or retries run out.
// Only ErrRateLimited and ErrUpstreamDown are retried.
func (f *Fetcher) retry(ctx context.Context, url string, op func() error) error {
	err := backoff.RetryNotify(func() error {
		err := op()
		if err == nil || errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamDown) {
			return err
		}
		return backoff.Permanent(err)
	}, f.retryPolicy(ctx), func(err error, wait time.Duration) {
		f.logger.Debug("retrying package download",
			zap.String("url", url),
			zap.Duration("wait", wait),
			zap.Error(err))
	})
	if err == nil {
		return nil
	}
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

// Fetch downloads a package source. The caller must close Artifact.Body.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Artifact, error) {
	var artifact *Artifact
	err := f.retry(ctx, url, func() error {
		a, err := f.get(ctx, url)
		artifact = a
		return err
	})
	if err != nil {
		return nil, err
	}
	return artifact, nil
}

// Head returns a source's metadata without downloading it. It is not retried:
// callers probe many sources and treat a failure as "unknown".
func (f *Fetcher) Head(ctx context.Context, url string) (*Metadata, error) {
	resp, err := f.do(ctx, http.MethodHead, url)
	if err != nil {
		return nil, err
	}
	_ = resp.Body.Close()
	if err := statusError(resp); err != nil {
		return nil, err
	}
	return metadataFrom(resp.Header), nil
}

func (f *Fetcher) get(ctx context.Context, url string) (*Artifact, error) {
	resp, err := f.do(ctx, http.MethodGet, url)
	if err != nil {
		return nil, err
	}
	if err := statusError(resp); err != nil {
		_ = resp.Body.Close()
		return nil, err
	}
	return &Artifact{Body: resp.Body, Metadata: *metadataFrom(resp.Header)}, nil
}

func (f *Fetcher) do(ctx context.Context, method, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/zip, application/xml, */*")
	if f.authFn != nil {
		if name, value := f.authFn(url); name != "" && value != "" {
			req.Header.Set(name, value)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	return resp, nil
}

// statusError maps a response status onto the package errors. The body is
// left for the caller to close.
func statusError(resp *http.Response) error {
	switch code := resp.StatusCode; {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound || code == http.StatusGone:
		return ErrNotFound
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	case code >= 500:
		return fmt.Errorf("%w: status %d", ErrUpstreamDown, code)
	default:
		var snippet []byte
		if resp.Request == nil || resp.Request.Method != http.MethodHead {
			snippet, _ = io.ReadAll(io.LimitReader(resp.Body, 1024))
		}
		return fmt.Errorf("unexpected status %d: %s", code, snippet)
	}
}

func metadataFrom(h http.Header) *Metadata {
	meta := &Metadata{
		Size:        -1,
		ContentType: h.Get("Content-Type"),
		ETag:        h.Get("ETag"),
	}
	if cl := h.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			meta.Size = n
		}
	}
	if lm := h.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			meta.LastModified = t.UTC()
		}
	}
	return meta
}
