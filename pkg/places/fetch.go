package places

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/shacharon/tavola/pkg/metrics"
)

// dnsPreflightTimeout bounds the optional resolver check before a call.
const dnsPreflightTimeout = 1500 * time.Millisecond

// maxResponseBytes caps the response body read.
const maxResponseBytes = 4 << 20

// httpDoer abstracts *http.Client for tests.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// fetcher performs HTTP GETs with a per-call deadline, optional DNS
// preflight, and retry with a fixed backoff vector.
type fetcher struct {
	doer         httpDoer
	resolver     *net.Resolver
	dnsPreflight bool
	attempts     int
	backoff      []time.Duration
}

// fetch performs one logical call: preflight, then up to `attempts` HTTP
// requests. callTimeout is the budget for EVERY attempt combined; the ctx
// carries the request-scoped cancel signal. method labels the call metrics.
func (f *fetcher) fetch(ctx context.Context, method, rawURL string, callTimeout time.Duration) (body []byte, err error) {
	defer func() { metrics.ProviderCalls.WithLabelValues(method, callOutcome(err)).Inc() }()

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	// Always release the deadline timer regardless of exit path.
	defer cancel()

	if f.dnsPreflight {
		if err := f.preflight(callCtx, rawURL); err != nil {
			return nil, err
		}
	}

	var lastErr error
	for attempt := 0; attempt < f.attempts; attempt++ {
		if attempt > 0 {
			metrics.ProviderRetries.Inc()
			if err := f.wait(callCtx, f.backoffFor(attempt)); err != nil {
				return nil, err
			}
		}

		body, err := f.doOnce(callCtx, rawURL)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var perr *Error
		if !errors.As(err, &perr) || !perr.retryable() {
			return nil, err
		}
		slog.Warn("Provider call failed, retrying",
			"attempt", attempt+1, "max_attempts", f.attempts, "error", err)
	}
	return nil, lastErr
}

// doOnce performs a single HTTP request and classifies its failure.
func (f *fetcher) doOnce(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &Error{Kind: KindAbort, Err: err}
	}

	resp, err := f.doer.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{
			Kind:       KindHTTPError,
			HTTPStatus: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}
	return body, nil
}

// preflight resolves the host with its own small budget so a broken
// resolver fails fast as DNS_FAIL instead of eating the call timeout.
func (f *fetcher) preflight(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return &Error{Kind: KindAbort, Err: err}
	}

	dnsCtx, cancel := context.WithTimeout(ctx, dnsPreflightTimeout)
	defer cancel()

	resolver := f.resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	if _, err := resolver.LookupHost(dnsCtx, u.Hostname()); err != nil {
		return &Error{Kind: KindDNSFail, Err: err}
	}
	return nil
}

// wait sleeps for d or until the call context ends.
func (f *fetcher) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return classifyContextError(ctx)
	}
}

// backoffFor returns the delay before the given retry attempt (1-based).
// The vector's last entry repeats when attempts exceed its length.
func (f *fetcher) backoffFor(attempt int) time.Duration {
	if len(f.backoff) == 0 {
		return 0
	}
	idx := attempt - 1
	if idx >= len(f.backoff) {
		idx = len(f.backoff) - 1
	}
	return f.backoff[idx]
}

// callOutcome labels a finished call for the metrics counter. Failure
// outcomes use the transport kind taxonomy, keeping label cardinality fixed.
func callOutcome(err error) string {
	if err == nil {
		return "ok"
	}
	var perr *Error
	if errors.As(err, &perr) {
		return string(perr.Kind)
	}
	return "error"
}

func classifyTransportError(ctx context.Context, err error) *Error {
	if ctxErr := classifyContextError(ctx); ctxErr != nil {
		return ctxErr
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &Error{Kind: KindDNSFail, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Err: err}
	}
	return &Error{Kind: KindNetworkError, Err: err}
}

func classifyContextError(ctx context.Context) *Error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Err: ctx.Err()}
	case errors.Is(ctx.Err(), context.Canceled):
		return &Error{Kind: KindAbort, Err: ctx.Err()}
	}
	return nil
}
