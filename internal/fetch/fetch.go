// Package fetch downloads the published sheet export with bounded retries.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"reviewdash/api/internal/logging"
)

const (
	defaultBackoff   = 2 * time.Second
	defaultUserAgent = "reviewdash-sync/1.0"
	acceptHeader     = "text/csv, text/plain;q=0.9, */*;q=0.8"
)

// Response is a fully read HTTP response. Any status code counts as a
// response; callers decide what a non-2xx status means.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
	Attempts   int
}

// OK reports whether the status code is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Fetcher performs sequential GET attempts. The wait between attempt i and
// i+1 is Backoff*i.
type Fetcher struct {
	client    *http.Client
	userAgent string
	backoff   time.Duration
	sleep     func(context.Context, time.Duration) error
	logger    *zap.Logger
}

type Option func(*Fetcher)

func WithClient(client *http.Client) Option {
	return func(f *Fetcher) { f.client = client }
}

func WithUserAgent(userAgent string) Option {
	return func(f *Fetcher) {
		if userAgent != "" {
			f.userAgent = userAgent
		}
	}
}

func WithBackoff(backoff time.Duration) Option {
	return func(f *Fetcher) {
		if backoff >= 0 {
			f.backoff = backoff
		}
	}
}

// WithSleep replaces the wait between attempts, mainly for tests.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(f *Fetcher) { f.sleep = sleep }
}

func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) { f.logger = logging.OrNop(logger) }
}

func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:    &http.Client{},
		userAgent: defaultUserAgent,
		backoff:   defaultBackoff,
		sleep:     sleepContext,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchWithRetry GETs url up to maxAttempts times. Each attempt, including
// reading the body, is bounded by timeout. The last attempt's error is
// returned when every attempt fails; cancelling ctx stops further attempts.
func (f *Fetcher) FetchWithRetry(ctx context.Context, url string, timeout time.Duration, maxAttempts int) (*Response, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		started := time.Now()
		resp, err := f.attempt(ctx, url, timeout)
		if err == nil {
			resp.Attempts = attempt
			f.logger.Info("fetched sheet export",
				zap.Int("attempt", attempt),
				zap.Int("status", resp.StatusCode),
				zap.Int("bytes", len(resp.Body)),
				zap.Duration("elapsed", time.Since(started)),
			)
			return resp, nil
		}

		lastErr = fmt.Errorf("fetch attempt %d/%d: %w", attempt, maxAttempts, err)
		f.logger.Warn("fetch attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", maxAttempts),
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err),
		)

		if ctx.Err() != nil {
			return nil, lastErr
		}
		if attempt < maxAttempts {
			if err := f.sleep(ctx, f.backoff*time.Duration(attempt)); err != nil {
				return nil, lastErr
			}
		}
	}
	return nil, lastErr
}

func (f *Fetcher) attempt(ctx context.Context, url string, timeout time.Duration) (*Response, error) {
	attemptCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	res, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return &Response{
		StatusCode: res.StatusCode,
		Status:     res.Status,
		Header:     res.Header,
		Body:       body,
	}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
