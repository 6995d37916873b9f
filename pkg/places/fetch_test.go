package places

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shacharon/tavola/pkg/metrics"
)

// scriptedDoer returns the queued responses in order.
type scriptedDoer struct {
	responses []scriptedResponse
	calls     int
}

type scriptedResponse struct {
	status int
	body   string
	err    error
}

func (d *scriptedDoer) Do(_ *http.Request) (*http.Response, error) {
	idx := d.calls
	if idx >= len(d.responses) {
		idx = len(d.responses) - 1
	}
	d.calls++
	r := d.responses[idx]
	if r.err != nil {
		return nil, r.err
	}
	return &http.Response{
		StatusCode: r.status,
		Status:     http.StatusText(r.status),
		Body:       io.NopCloser(bytes.NewReader([]byte(r.body))),
	}, nil
}

func newTestFetcher(doer httpDoer) fetcher {
	return fetcher{doer: doer, attempts: 3, backoff: []time.Duration{time.Millisecond, time.Millisecond}}
}

func TestFetchSuccess(t *testing.T) {
	doer := &scriptedDoer{responses: []scriptedResponse{{status: 200, body: `{"ok":true}`}}}
	f := newTestFetcher(doer)

	body, err := f.fetch(context.Background(), "textsearch", "http://provider/textsearch", time.Second)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(body))
	assert.Equal(t, 1, doer.calls)
}

func TestFetchRetriesServerError(t *testing.T) {
	doer := &scriptedDoer{responses: []scriptedResponse{
		{status: 500, body: "boom"},
		{status: 200, body: "ok"},
	}}
	f := newTestFetcher(doer)

	body, err := f.fetch(context.Background(), "textsearch", "http://provider/x", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, 2, doer.calls)
}

func TestFetchRetriesQuota(t *testing.T) {
	doer := &scriptedDoer{responses: []scriptedResponse{
		{status: 429, body: "slow down"},
		{status: 200, body: "ok"},
	}}
	f := newTestFetcher(doer)

	_, err := f.fetch(context.Background(), "textsearch", "http://provider/x", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, doer.calls)
}

func TestFetchDoesNotRetryClientError(t *testing.T) {
	doer := &scriptedDoer{responses: []scriptedResponse{{status: 400, body: "bad"}}}
	f := newTestFetcher(doer)

	_, err := f.fetch(context.Background(), "textsearch", "http://provider/x", time.Second)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindHTTPError, perr.Kind)
	assert.Equal(t, 400, perr.HTTPStatus)
	assert.Equal(t, 1, doer.calls)
}

func TestFetchExhaustsAttempts(t *testing.T) {
	doer := &scriptedDoer{responses: []scriptedResponse{{status: 503, body: "down"}}}
	f := newTestFetcher(doer)

	_, err := f.fetch(context.Background(), "textsearch", "http://provider/x", time.Second)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 503, perr.HTTPStatus)
	assert.Equal(t, 3, doer.calls)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestFetchTimeoutNotRetried(t *testing.T) {
	doer := &scriptedDoer{responses: []scriptedResponse{{err: timeoutErr{}}}}
	f := newTestFetcher(doer)

	_, err := f.fetch(context.Background(), "textsearch", "http://provider/x", time.Second)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindTimeout, perr.Kind)
	assert.Equal(t, 1, doer.calls)
}

func TestFetchNetworkErrorRetried(t *testing.T) {
	doer := &scriptedDoer{responses: []scriptedResponse{
		{err: errors.New("connection refused")},
		{status: 200, body: "ok"},
	}}
	f := newTestFetcher(doer)

	body, err := f.fetch(context.Background(), "textsearch", "http://provider/x", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
}

func TestFetchCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	doer := &scriptedDoer{responses: []scriptedResponse{{err: ctx.Err()}}}
	f := newTestFetcher(doer)

	_, err := f.fetch(ctx, "textsearch", "http://provider/x", time.Second)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindAbort, perr.Kind)
}

func TestFetchRecordsCallMetrics(t *testing.T) {
	callsBefore := testutil.ToFloat64(metrics.ProviderCalls.WithLabelValues("textsearch", "ok"))
	retriesBefore := testutil.ToFloat64(metrics.ProviderRetries)

	doer := &scriptedDoer{responses: []scriptedResponse{
		{status: 500, body: "boom"},
		{status: 200, body: "ok"},
	}}
	f := newTestFetcher(doer)

	_, err := f.fetch(context.Background(), "textsearch", "http://provider/x", time.Second)
	require.NoError(t, err)

	assert.Equal(t, callsBefore+1, testutil.ToFloat64(metrics.ProviderCalls.WithLabelValues("textsearch", "ok")),
		"one logical call regardless of retries")
	assert.Equal(t, retriesBefore+1, testutil.ToFloat64(metrics.ProviderRetries))
}

func TestFetchRecordsFailureOutcome(t *testing.T) {
	before := testutil.ToFloat64(metrics.ProviderCalls.WithLabelValues("geocode", string(KindHTTPError)))

	doer := &scriptedDoer{responses: []scriptedResponse{{status: 400, body: "bad"}}}
	f := newTestFetcher(doer)

	_, err := f.fetch(context.Background(), "geocode", "http://provider/x", time.Second)
	require.Error(t, err)

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.ProviderCalls.WithLabelValues("geocode", string(KindHTTPError))))
}

func TestBackoffForRepeatsLastEntry(t *testing.T) {
	f := fetcher{backoff: []time.Duration{time.Second, 2 * time.Second}}
	assert.Equal(t, time.Second, f.backoffFor(1))
	assert.Equal(t, 2*time.Second, f.backoffFor(2))
	assert.Equal(t, 2*time.Second, f.backoffFor(5))

	empty := fetcher{}
	assert.Equal(t, time.Duration(0), empty.backoffFor(1))
}
