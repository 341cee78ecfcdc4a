package riot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/riot-match-ingestor/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// sleepRecorder replaces the client's sleeper and keeps every requested wait
type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waits = append(r.waits, d)
	return nil
}

func (r *sleepRecorder) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.waits...)
}

func newTestClient(t *testing.T, baseURL string, opts Options) (*Client, *sleepRecorder) {
	t.Helper()
	if opts.APIKey == "" {
		opts.APIKey = "RGAPI-test"
	}
	opts.BaseURL = baseURL
	c, err := NewClient(opts, discardLogger())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	rec := &sleepRecorder{}
	c.sleep = rec.sleep
	return c, rec
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(Options{}, discardLogger())
	if !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestRequestSetsTokenHeader(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Riot-Token")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, Options{APIKey: "RGAPI-secret"})
	if _, err := c.Request(context.Background(), c.Endpoint("europe", "/x"), nil); err != nil {
		t.Fatalf("request: %v", err)
	}
	if got != "RGAPI-secret" {
		t.Fatalf("X-Riot-Token = %q", got)
	}
}

func TestRequestPacing(t *testing.T) {
	const delay = 20 * time.Millisecond
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, Options{PacingDelay: delay})

	start := time.Now()
	for i := 0; i < 5; i++ {
		if _, err := c.Request(context.Background(), c.Endpoint("europe", "/paced"), nil); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed < 4*delay {
		t.Fatalf("5 paced requests took %v; want at least %v", elapsed, 4*delay)
	}
}

func TestRequestHonoursRetryAfter(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "5")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`"ok"`))
	}))
	defer srv.Close()

	c, rec := newTestClient(t, srv.URL, Options{})
	res, err := c.Request(context.Background(), c.Endpoint("europe", "/limited"), nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if body, ok := res.Get(); !ok || string(body) != `"ok"` {
		t.Fatalf("unexpected result %q found=%v", body, ok)
	}
	waits := rec.recorded()
	if len(waits) != 1 || waits[0] != 5*time.Second {
		t.Fatalf("waits = %v; want [5s]", waits)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestRequestRetryAfterFallback(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "soon")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, rec := newTestClient(t, srv.URL, Options{RetryAfterFallback: 7 * time.Second})
	if _, err := c.Request(context.Background(), c.Endpoint("europe", "/limited"), nil); err != nil {
		t.Fatalf("request: %v", err)
	}
	if waits := rec.recorded(); len(waits) != 1 || waits[0] != 7*time.Second {
		t.Fatalf("waits = %v; want [7s]", waits)
	}
}

func TestRequestNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c, rec := newTestClient(t, srv.URL, Options{})
	res, err := c.Request(context.Background(), c.Endpoint("europe", "/missing"), nil)
	if err != nil {
		t.Fatalf("404 should not be an error: %v", err)
	}
	if res.IsFound() {
		t.Fatalf("expected NotFound")
	}
	if len(rec.recorded()) != 0 {
		t.Fatalf("404 should not be retried")
	}
}

func TestRequestExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, rec := newTestClient(t, srv.URL, Options{MaxAttempts: 3, BackoffBase: time.Second})
	_, err := c.Request(context.Background(), c.Endpoint("europe", "/down"), nil)
	if !errors.Is(err, domain.ErrFetchExhausted) {
		t.Fatalf("expected ErrFetchExhausted, got %v", err)
	}
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %T", err)
	}
	if fe.Attempts != 3 || fe.LastStatus != http.StatusServiceUnavailable {
		t.Fatalf("unexpected fetch error %+v", fe)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}

	// no sleep after the final attempt
	waits := rec.recorded()
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(waits) != len(want) {
		t.Fatalf("waits = %v; want %v", waits, want)
	}
	for i := range want {
		if waits[i] != want[i] {
			t.Fatalf("waits = %v; want %v", waits, want)
		}
	}
}

func TestRequestRateLimitConsumesAttempts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, Options{MaxAttempts: 2})
	_, err := c.Request(context.Background(), c.Endpoint("europe", "/limited"), nil)
	var fe *FetchError
	if !errors.As(err, &fe) || fe.LastStatus != http.StatusTooManyRequests {
		t.Fatalf("expected FetchError with last status 429, got %v", err)
	}
}

func TestRequestCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Request(ctx, c.Endpoint("europe", "/x"), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestResolve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.EscapedPath() {
		case "/riot/account/v1/accounts/by-riot-id/Alice/NA1":
			w.Write([]byte(`{"puuid":"P123","gameName":"Alice","tagLine":"NA1"}`))
		case "/riot/account/v1/accounts/by-riot-id/R%20U%20D/EUW":
			w.Write([]byte(`{"puuid":"P456","gameName":"R U D","tagLine":"EUW"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, Options{})
	ctx := context.Background()

	puuid, err := c.Resolve(ctx, domain.TrackedPlayer{Name: "Alice", Tag: "NA1"}, RoutingAmericas)
	if err != nil || puuid != "P123" {
		t.Fatalf("Resolve(Alice) = %q, %v", puuid, err)
	}
	puuid, err = c.Resolve(ctx, domain.TrackedPlayer{Name: "R U D", Tag: "EUW"}, RoutingEurope)
	if err != nil || puuid != "P456" {
		t.Fatalf("Resolve(R U D) = %q, %v", puuid, err)
	}

	_, err = c.Resolve(ctx, domain.TrackedPlayer{Name: "Ghost", Tag: "000"}, RoutingEurope)
	if !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("expected ErrPlayerNotFound, got %v", err)
	}
}

func TestListMatches(t *testing.T) {
	var query atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/lol/match/v5/matches/by-puuid/P123/ids" {
			http.NotFound(w, r)
			return
		}
		query.Store(r.URL.Query())
		w.Write([]byte(`["M1","M2","M3"]`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, Options{})
	ctx := context.Background()

	ids, err := c.ListMatches(ctx, "P123", RoutingAmericas, 2, QueueRankedSolo)
	if err != nil {
		t.Fatalf("ListMatches: %v", err)
	}
	if len(ids) != 2 || ids[0] != "M1" || ids[1] != "M2" {
		t.Fatalf("ids = %v; want [M1 M2]", ids)
	}
	q := query.Load().(url.Values)
	if q["start"][0] != "0" || q["count"][0] != "2" || q["queue"][0] != "420" {
		t.Fatalf("unexpected query %v", q)
	}

	if _, err := c.ListMatches(ctx, "P123", RoutingAmericas, 5, 0); err != nil {
		t.Fatalf("ListMatches without queue: %v", err)
	}
	q = query.Load().(url.Values)
	if _, ok := q["queue"]; ok {
		t.Fatalf("queue filter should be omitted, got %v", q)
	}

	ids, err = c.ListMatches(ctx, "UNKNOWN", RoutingAmericas, 5, 0)
	if err != nil || len(ids) != 0 {
		t.Fatalf("unknown puuid: ids=%v err=%v", ids, err)
	}
}

func TestFetchDetail(t *testing.T) {
	const body = `{"metadata":{"matchId":"M1","participants":["P123"]},"info":{"gameCreation":1700000000000,"gameDuration":1800,"queueId":420,"participants":[{"puuid":"P123","kills":3}]}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/lol/match/v5/matches/M1" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(body))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, Options{})
	ctx := context.Background()

	res, err := c.FetchDetail(ctx, "M1", RoutingAmericas)
	if err != nil {
		t.Fatalf("FetchDetail: %v", err)
	}
	payload, ok := res.Get()
	if !ok {
		t.Fatalf("expected match M1 to be found")
	}
	if payload.Metadata.MatchID != "M1" || string(payload.Raw) != body {
		t.Fatalf("unexpected payload %+v", payload.Metadata)
	}
	if payload.Info == nil || *payload.Info.QueueID != 420 || len(payload.Info.Participants) != 1 {
		t.Fatalf("unexpected info %+v", payload.Info)
	}
	p, err := DecodeParticipant(payload.Info.Participants[0])
	if err != nil || *p.PUUID != "P123" || *p.Kills != 3 || p.Deaths != nil {
		t.Fatalf("unexpected participant %+v err=%v", p, err)
	}

	res, err = c.FetchDetail(ctx, "M404", RoutingAmericas)
	if err != nil || res.IsFound() {
		t.Fatalf("expected NotFound without error, got found=%v err=%v", res.IsFound(), err)
	}
}
