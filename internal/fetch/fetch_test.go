package fetch

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	herrors "github.com/animap/harvester/internal/errors"
	"github.com/animap/harvester/internal/ratelimit"
)

type sleepRecorder struct {
	waits []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return nil
}

func newTestFetcher(t *testing.T, handler http.HandlerFunc, policy RetryPolicy) (*Fetcher, *httptest.Server, *sleepRecorder) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	rec := &sleepRecorder{}
	f := New(ratelimit.New(0), policy, slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithHTTPClient(server.Client()),
		WithSleep(rec.sleep),
	)
	return f, server, rec
}

func TestFetcher_Success(t *testing.T) {
	f, server, rec := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/vnd.api+json", r.Header.Get("Accept"))
		assert.Equal(t, "k", r.Header.Get("simkl-api-key"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Write([]byte(`{"ok":true}`))
	}, DefaultRetryPolicy())

	header := http.Header{}
	header.Set("Accept", "application/vnd.api+json")
	header.Set("simkl-api-key", "k")

	body, err := f.Do(context.Background(), Get("kitsu", server.URL, header))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
	assert.Empty(t, rec.waits)
}

func TestFetcher_PostBodyResentOnRetry(t *testing.T) {
	var calls atomic.Int32
	f, server, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"query":"q"}`, string(data))
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{}`))
	}, DefaultRetryPolicy())

	_, err := f.Do(context.Background(), Request{
		Source: "anilist",
		Method: http.MethodPost,
		URL:    server.URL,
		Body:   []byte(`{"query":"q"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetcher_TransientExhaustion(t *testing.T) {
	var calls atomic.Int32
	f, server, rec := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, RetryPolicy{MaxAttempts: 3, TransientBackoff: 10 * time.Second, ThrottleCooldown: time.Minute})

	_, err := f.Do(context.Background(), Get("mal", server.URL, nil))

	require.Error(t, err)
	assert.ErrorIs(t, err, herrors.ErrTransient)
	assert.Equal(t, int32(3), calls.Load())
	// backoff is linear in the attempt number
	assert.Equal(t, []time.Duration{10 * time.Second, 20 * time.Second}, rec.waits)
}

func TestFetcher_ThrottleThenSuccess(t *testing.T) {
	var calls atomic.Int32
	f, server, rec := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.Header().Set("Retry-After", "120")
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.Write([]byte(`[]`))
		}
	}, DefaultRetryPolicy())

	body, err := f.Do(context.Background(), Get("mal", server.URL, nil))

	require.NoError(t, err)
	assert.Equal(t, "[]", string(body))
	assert.Equal(t, []time.Duration{time.Minute, 2 * time.Minute}, rec.waits)
}

func TestFetcher_ThrottleCap(t *testing.T) {
	var calls atomic.Int32
	f, server, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}, RetryPolicy{MaxAttempts: 3, ThrottleCooldown: time.Second, MaxThrottleRetries: 2})

	_, err := f.Do(context.Background(), Get("simkl", server.URL, nil))

	require.Error(t, err)
	assert.ErrorIs(t, err, herrors.ErrThrottle)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetcher_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	f, server, rec := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"not found"}`))
	}, DefaultRetryPolicy())

	_, err := f.Do(context.Background(), Get("kitsu", server.URL, nil))

	require.Error(t, err)
	assert.ErrorIs(t, err, herrors.ErrSource)
	var he *herrors.Error
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusNotFound, he.Status)
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, rec.waits)
}

func TestFetcher_NetworkErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	rec := &sleepRecorder{}
	f := New(ratelimit.New(0), RetryPolicy{MaxAttempts: 2, TransientBackoff: time.Second},
		slog.New(slog.NewTextHandler(io.Discard, nil)), WithSleep(rec.sleep))

	_, err := f.Do(context.Background(), Get("anilist", url, nil))

	require.Error(t, err)
	assert.Equal(t, herrors.KindTransient, herrors.KindOf(err))
	assert.Len(t, rec.waits, 1)
}

func TestFetcher_ContextCanceled(t *testing.T) {
	f, server, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}, DefaultRetryPolicy())
	f.sleep = sleepContext

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := f.Do(ctx, Get("mal", server.URL, nil))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetcher_PacesPerSource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	limiter := ratelimit.New(0)
	limiter.SetInterval("kitsu", 100*time.Millisecond)
	f := New(limiter, DefaultRetryPolicy(), slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithHTTPClient(server.Client()))

	start := time.Now()
	for range 3 {
		_, err := f.Do(context.Background(), Get("kitsu", server.URL, nil))
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 190*time.Millisecond)

	// another source is not held back
	start = time.Now()
	_, err := f.Do(context.Background(), Get("anilist", server.URL, nil))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 90*time.Millisecond)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 30*time.Second, parseRetryAfter("30"))
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, time.Duration(0), parseRetryAfter("Wed, 21 Oct 2015 07:28:00 GMT"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-5"))
}
