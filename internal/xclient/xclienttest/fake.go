// Package xclienttest provides a scripted Requester and a fake Clock.
package xclienttest

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"twarchive/internal/reqcache"
	"twarchive/internal/xclient"
)

// Reply is one scripted response. A non-nil Err simulates a transport failure.
// Delay holds the reply back in real time, so concurrent callers finish in a
// chosen order.
type Reply struct {
	Status int
	Header http.Header
	Body   string
	Err    error
	Delay  time.Duration
}

// OK is a 200 reply with body.
func OK(body string) Reply { return Reply{Status: http.StatusOK, Body: body} }

// Slow delays r by d.
func Slow(r Reply, d time.Duration) Reply {
	r.Delay = d
	return r
}

// Status is a reply with the given status and no body.
func Status(code int) Reply { return Reply{Status: code} }

// RateLimited is a 429 carrying x-rate-limit-reset when reset is non-zero.
func RateLimited(reset time.Time) Reply {
	h := http.Header{}
	if !reset.IsZero() {
		h.Set("x-rate-limit-reset", strconv.FormatInt(reset.Unix(), 10))
	}
	return Reply{Status: http.StatusTooManyRequests, Header: h}
}

// ErrTransport is what scripted transport failures return.
var ErrTransport = errors.New("scripted transport failure")

// Requester replays scripted replies keyed by path and canonical query. The
// last reply of a script repeats once the earlier ones are consumed. Routes
// registered with OnPath match any query. Unmatched calls get 404.
type Requester struct {
	mu     sync.Mutex
	exact  map[string][]Reply
	byPath map[string][]Reply
	calls  []xclient.Request
}

func NewRequester() *Requester {
	return &Requester{exact: make(map[string][]Reply), byPath: make(map[string][]Reply)}
}

// On scripts replies for path with exactly params.
func (r *Requester) On(path string, params url.Values, replies ...Reply) *Requester {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exact[path+"?"+params.Encode()] = replies
	return r
}

// OnPath scripts replies for path with any query.
func (r *Requester) OnPath(path string, replies ...Reply) *Requester {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byPath[path] = replies
	return r
}

func (r *Requester) Send(ctx context.Context, req xclient.Request) (xclient.Response, error) {
	if err := ctx.Err(); err != nil {
		return xclient.Response{}, err
	}
	u, err := url.Parse(req.URL)
	if err != nil {
		return xclient.Response{}, err
	}
	r.mu.Lock()
	r.calls = append(r.calls, req)
	reply, ok := r.next(r.exact, u.Path+"?"+u.Query().Encode())
	if !ok {
		reply, ok = r.next(r.byPath, u.Path)
	}
	r.mu.Unlock()
	if !ok {
		return xclient.Response{Status: http.StatusNotFound, Header: http.Header{}}, nil
	}
	if reply.Delay > 0 {
		select {
		case <-time.After(reply.Delay):
		case <-ctx.Done():
			return xclient.Response{}, ctx.Err()
		}
	}
	if reply.Err != nil {
		return xclient.Response{}, reply.Err
	}
	h := reply.Header
	if h == nil {
		h = http.Header{}
	}
	return xclient.Response{Status: reply.Status, Header: h, Body: []byte(reply.Body)}, nil
}

func (r *Requester) next(m map[string][]Reply, key string) (Reply, bool) {
	script, ok := m[key]
	if !ok || len(script) == 0 {
		return Reply{}, false
	}
	reply := script[0]
	if len(script) > 1 {
		m[key] = script[1:]
	}
	return reply, true
}

// Calls returns every request sent so far.
func (r *Requester) Calls() []xclient.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]xclient.Request(nil), r.calls...)
}

// CallCount counts requests sent to path.
func (r *Requester) CallCount(path string) int {
	n := 0
	for _, c := range r.Calls() {
		if u, err := url.Parse(c.URL); err == nil && u.Path == path {
			n++
		}
	}
	return n
}

// Queries returns the decoded query of every request to path, in send order.
func (r *Requester) Queries(path string) []url.Values {
	var out []url.Values
	for _, c := range r.Calls() {
		if u, err := url.Parse(c.URL); err == nil && u.Path == path {
			out = append(out, u.Query())
		}
	}
	return out
}

// Paths lists the distinct paths requested, sorted.
func (r *Requester) Paths() []string {
	set := map[string]struct{}{}
	for _, c := range r.Calls() {
		if u, err := url.Parse(c.URL); err == nil {
			set[u.Path] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Clock is a fake xclient.Clock. Sleep advances Now without blocking.
type Clock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func NewClock(now time.Time) *Clock { return &Clock{now: now} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

// Sleeps returns every requested sleep in order.
func (c *Clock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// NewFetcher builds a Fetcher over req with no pacing and a cache in dir.
// Retry pauses are kept so tests can count them on clock.
func NewFetcher(t testing.TB, req *Requester, clock *Clock, dir string) *xclient.Fetcher {
	t.Helper()
	cache, err := reqcache.Open(dir)
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	opts := xclient.DefaultOptions()
	opts.BaseURL = "https://api.test"
	opts.RPS = 0
	return xclient.NewFetcher(req, cache, xclient.StaticCredentials("user-token", "adaptive-token", "guest"), opts,
		xclient.WithClock(clock))
}
