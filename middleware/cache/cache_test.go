package cache

import (
	"context"
	"net/http"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-thor/rabbit"
	"github.com/go-thor/rabbit/errors"
)

var bodyDecoder = rabbit.DecoderFunc(func(_ context.Context, resp *rabbit.Response, _ reflect.Type) (any, error) {
	return string(resp.Body), nil
})

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newInvocation(method, path string) *rabbit.Invocation {
	inv := rabbit.NewInvocation(rabbit.MustMethod("items", method, "http://api.test"+path), nil, bodyDecoder)
	req := inv.Request()
	req.Scheme = "http"
	req.Host = "api.test"
	req.Port = 80
	req.Path = path
	return inv
}

// server returns a terminal link counting its calls and answering with
// body and header.
func server(calls *int32, body string, header http.Header) rabbit.HandlerFunc {
	return func(ctx context.Context, inv *rabbit.Invocation) (any, error) {
		atomic.AddInt32(calls, 1)
		resp := inv.Response()
		resp.StatusCode = 200
		resp.Header = header.Clone()
		resp.Body = []byte(body)
		return inv.Decode(ctx)
	}
}

func TestCache_Hit(t *testing.T) {
	var calls int32
	c := New()
	interceptor := c.Interceptor()
	next := server(&calls, "payload", http.Header{})

	first := newInvocation("GET", "/items")
	if v, err := interceptor(context.Background(), first, next); err != nil || v != "payload" {
		t.Fatalf("unexpected result: %v, %v", v, err)
	}
	if first.Items[ItemKey] != "miss" {
		t.Errorf("expected miss, got %v", first.Items[ItemKey])
	}

	second := newInvocation("GET", "/items")
	v, err := interceptor(context.Background(), second, next)
	if err != nil || v != "payload" {
		t.Fatalf("unexpected result: %v, %v", v, err)
	}
	if second.Items[ItemKey] != "hit" {
		t.Errorf("expected hit, got %v", second.Items[ItemKey])
	}
	if second.Response().StatusCode != 200 || string(second.Response().Body) != "payload" {
		t.Errorf("cached response was not copied: %+v", second.Response())
	}
	if calls != 1 {
		t.Errorf("Calls mismatch: got %d, want 1", calls)
	}

	second.Response().Body[0] = 'X'
	third := newInvocation("GET", "/items")
	if v, _ := interceptor(context.Background(), third, next); v != "payload" {
		t.Errorf("cached entry was mutated through a copy: %v", v)
	}
}

func TestCache_SkipsNonGet(t *testing.T) {
	var calls int32
	interceptor := New().Interceptor()
	next := server(&calls, "ok", http.Header{})

	for i := 0; i < 2; i++ {
		inv := newInvocation("POST", "/items")
		if _, err := interceptor(context.Background(), inv, next); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := inv.Items[ItemKey]; ok {
			t.Error("POST should not touch the cache")
		}
	}
	if calls != 2 {
		t.Errorf("Calls mismatch: got %d, want 2", calls)
	}
}

func TestCache_Freshness(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		header  http.Header
		advance time.Duration
		calls   int32
	}{
		{"max-age fresh", http.Header{"Cache-Control": {"public, max-age=60"}}, 30 * time.Second, 1},
		{"max-age stale", http.Header{"Cache-Control": {"max-age=60"}}, 61 * time.Second, 2},
		{"no-store", http.Header{"Cache-Control": {"no-store"}}, 0, 2},
		{"expires fresh", http.Header{"Expires": {"Fri, 01 Mar 2024 18:00:00 GMT"}}, time.Hour, 1},
		{"expires past", http.Header{"Expires": {"Thu, 29 Feb 2024 12:00:00 GMT"}}, 0, 2},
		{"default ttl", http.Header{}, DefaultTTL + time.Second, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := &clock{now: start}
			interceptor := New(WithClock(clk.Now)).Interceptor()

			var calls int32
			next := server(&calls, "ok", tt.header)

			interceptor(context.Background(), newInvocation("GET", "/items"), next)
			clk.Advance(tt.advance)
			interceptor(context.Background(), newInvocation("GET", "/items"), next)

			if calls != tt.calls {
				t.Errorf("Calls mismatch: got %d, want %d", calls, tt.calls)
			}
		})
	}
}

func TestCache_VaryHeaders(t *testing.T) {
	var calls int32
	interceptor := New(WithVaryHeaders("accept-language")).Interceptor()
	next := server(&calls, "ok", http.Header{})

	for _, lang := range []string{"en", "fr", "en"} {
		inv := newInvocation("GET", "/items")
		inv.Request().SetHeader("Accept-Language", lang)
		interceptor(context.Background(), inv, next)
	}
	if calls != 2 {
		t.Errorf("Calls mismatch: got %d, want 2", calls)
	}
}

func TestCache_MaxEntries(t *testing.T) {
	var calls int32
	c := New(WithMaxEntries(2))
	interceptor := c.Interceptor()
	next := server(&calls, "ok", http.Header{})

	for _, path := range []string{"/a", "/b", "/c"} {
		interceptor(context.Background(), newInvocation("GET", path), next)
	}
	if got := c.Len(); got != 2 {
		t.Errorf("Len mismatch: got %d, want 2", got)
	}

	c.Purge()
	if got := c.Len(); got != 0 {
		t.Errorf("Len after purge mismatch: got %d, want 0", got)
	}
}

func TestCache_SingleFlight(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	interceptor := New().Interceptor()
	next := func(ctx context.Context, inv *rabbit.Invocation) (any, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		inv.Response().StatusCode = 200
		inv.Response().Body = []byte("shared")
		return inv.Decode(ctx)
	}

	var wg sync.WaitGroup
	results := make([]any, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = interceptor(context.Background(), newInvocation("GET", "/items"), next)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls != 1 {
		t.Errorf("Calls mismatch: got %d, want 1", calls)
	}
	for i, r := range results {
		if r != "shared" {
			t.Errorf("result %d mismatch: got %v", i, r)
		}
	}
}

// blockingServer answers "shared" once release is closed. started is
// closed when the first dispatch begins.
func blockingServer(calls *int32, started, release chan struct{}) rabbit.HandlerFunc {
	var once sync.Once
	return func(ctx context.Context, inv *rabbit.Invocation) (any, error) {
		atomic.AddInt32(calls, 1)
		once.Do(func() { close(started) })
		<-release
		inv.Response().StatusCode = 200
		inv.Response().Body = []byte("shared")
		return inv.Decode(ctx)
	}
}

func TestCache_LeaderCancelled(t *testing.T) {
	var calls int32
	started, release := make(chan struct{}), make(chan struct{})
	interceptor := New().Interceptor()
	next := blockingServer(&calls, started, release)

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := interceptor(leaderCtx, newInvocation("GET", "/items"), next)
		leaderErr <- err
	}()
	<-started

	type result struct {
		v   any
		err error
	}
	follower := make(chan result, 1)
	go func() {
		v, err := interceptor(context.Background(), newInvocation("GET", "/items"), next)
		follower <- result{v, err}
	}()

	cancel()
	if err := <-leaderErr; !errors.HasCode(err, errors.ErrorCodeCancelled) {
		t.Errorf("leader error mismatch: got %v, want cancelled", err)
	}

	close(release)
	got := <-follower
	if got.err != nil || got.v != "shared" {
		t.Errorf("follower result mismatch: got %v, %v", got.v, got.err)
	}
	if calls != 1 {
		t.Errorf("Calls mismatch: got %d, want 1", calls)
	}
}

func TestCache_FollowerDeadline(t *testing.T) {
	var calls int32
	started, release := make(chan struct{}), make(chan struct{})
	defer close(release)
	interceptor := New().Interceptor()
	next := blockingServer(&calls, started, release)

	go interceptor(context.Background(), newInvocation("GET", "/items"), next)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := interceptor(ctx, newInvocation("GET", "/items"), next)
	if !errors.HasCode(err, errors.ErrorCodeDeadlineExceeded) {
		t.Errorf("follower error mismatch: got %v, want deadline_exceeded", err)
	}
}

func TestCache_ErrorResponseCopied(t *testing.T) {
	interceptor := New().Interceptor()
	failure := errors.New(errors.ErrorCodeUnavailable, "bad gateway")
	next := func(_ context.Context, inv *rabbit.Invocation) (any, error) {
		inv.Response().StatusCode = http.StatusBadGateway
		return nil, failure
	}

	inv := newInvocation("GET", "/items")
	if _, err := interceptor(context.Background(), inv, next); err != failure {
		t.Fatalf("error mismatch: got %v, want %v", err, failure)
	}
	if inv.Response().StatusCode != http.StatusBadGateway {
		t.Errorf("status mismatch: got %d, want %d", inv.Response().StatusCode, http.StatusBadGateway)
	}
}
