package xclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"twarchive/internal/logging"
	"twarchive/internal/metrics"
	"twarchive/internal/reqcache"
)

// Auth selects which credential signs a call.
type Auth int

const (
	AuthUser Auth = iota
	AuthAdaptive
	AuthNone
)

// Credentials are consumed, never refreshed or persisted.
type Credentials struct {
	User       oauth2.TokenSource
	Adaptive   oauth2.TokenSource
	GuestToken string
}

// StaticCredentials wraps plain bearer strings.
func StaticCredentials(bearer, adaptiveBearer, guestToken string) Credentials {
	c := Credentials{GuestToken: guestToken}
	if bearer != "" {
		c.User = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: bearer, TokenType: "Bearer"})
	}
	if adaptiveBearer != "" {
		c.Adaptive = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: adaptiveBearer, TokenType: "Bearer"})
	}
	return c
}

// Call is one logical fetch. Page < 0 stores the body under an unpaged key.
type Call struct {
	Endpoint string
	Params   url.Values
	Page     int
	Header   http.Header
	Auth     Auth
	// Validate rejects a 200 body that cannot be used. Rejected network
	// bodies count against the retry cap; rejected cached bodies are refetched.
	Validate func(body []byte) error
}

// Result is a successful fetch.
type Result struct {
	Body   []byte
	Cached bool
	Key    reqcache.Key
}

// FetchRecord describes one network outcome for the ledger.
type FetchRecord struct {
	Fingerprint string
	Endpoint    string
	Status      int
	Attempts    int
	Outcome     string
	At          time.Time
}

// Ledger persists fetch outcomes. Errors are logged and ignored.
type Ledger interface {
	RecordFetch(ctx context.Context, rec FetchRecord) error
}

type Options struct {
	BaseURL        string
	MaxRetries     int
	RetryPause     time.Duration
	RateLimitPause time.Duration
	PreferCache    bool
	RPS            float64
	Burst          int
}

func DefaultOptions() Options {
	return Options{
		BaseURL:        "https://api.twitter.com",
		MaxRetries:     3,
		RetryPause:     2 * time.Second,
		RateLimitPause: 10 * time.Second,
		PreferCache:    true,
		RPS:            2,
		Burst:          10,
	}
}

// Fetcher is the single place retry, 429 backoff and response caching
// happen. It is safe for concurrent use; the limiter is shared by all callers.
type Fetcher struct {
	requester Requester
	cache     *reqcache.Cache
	creds     Credentials
	opts      Options
	limiter   *rate.Limiter
	clock     Clock
	log       logging.Sink
	ledger    Ledger
}

type FetcherOption func(*Fetcher)

func WithClock(c Clock) FetcherOption         { return func(f *Fetcher) { f.clock = c } }
func WithLogger(l logging.Sink) FetcherOption { return func(f *Fetcher) { f.log = logging.OrNop(l) } }
func WithLedger(l Ledger) FetcherOption       { return func(f *Fetcher) { f.ledger = l } }
func WithLimiter(l *rate.Limiter) FetcherOption {
	return func(f *Fetcher) { f.limiter = l }
}

func NewFetcher(req Requester, cache *reqcache.Cache, creds Credentials, opts Options, extra ...FetcherOption) *Fetcher {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultOptions().BaseURL
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RateLimitPause <= 0 {
		opts.RateLimitPause = 10 * time.Second
	}
	f := &Fetcher{
		requester: req,
		cache:     cache,
		creds:     creds,
		opts:      opts,
		limiter:   NewLimiter(opts.RPS, opts.Burst),
		clock:     SystemClock{},
		log:       logging.Nop(),
	}
	for _, o := range extra {
		o(f)
	}
	return f
}

func (f *Fetcher) Clock() Clock { return f.clock }

func (f *Fetcher) Logger() logging.Sink { return f.log }

// Fetch returns the body for call from cache or network. Terminal failures
// are *FetchError; context errors are returned unchanged.
func (f *Fetcher) Fetch(ctx context.Context, call Call) (Result, error) {
	key := reqcache.NewKey(call.Endpoint, call.Params)
	if call.Page >= 0 {
		key = key.WithPage(call.Page)
	}
	if f.opts.PreferCache {
		if body, ok := f.cache.Get(key); ok {
			if call.Validate == nil || call.Validate(body) == nil {
				metrics.IncCacheHit(call.Endpoint)
				return Result{Body: body, Cached: true, Key: key}, nil
			}
			f.log.Log(logging.LevelDebug, "cached body unusable, refetching", map[string]any{"key": key.String()})
		}
	}

	u := strings.TrimRight(f.opts.BaseURL, "/") + call.Endpoint
	if len(call.Params) > 0 {
		u += "?" + call.Params.Encode()
	}
	retries := 0
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if err := f.limiter.Wait(ctx); err != nil {
			return Result{}, err
		}
		header, err := f.header(call)
		if err != nil {
			return Result{}, err
		}
		resp, err := f.requester.Send(ctx, Request{Method: http.MethodGet, URL: u, Header: header})

		var failure *FetchError
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			failure = &FetchError{Kind: ErrTransport, Endpoint: call.Endpoint, Err: err}
		case resp.Status == http.StatusTooManyRequests:
			wait := resetWait(resp.Header, f.clock.Now(), f.opts.RateLimitPause)
			metrics.IncFetch(call.Endpoint, "rate_limited")
			metrics.AddRateLimitSleep(wait)
			f.record(ctx, key, call.Endpoint, resp.Status, retries+1, "rate_limited")
			f.log.Log(logging.LevelNotice, "HTTP/429, sleeping", map[string]any{"endpoint": call.Endpoint, "seconds": int(wait.Seconds())})
			if err := f.clock.Sleep(ctx, wait); err != nil {
				return Result{}, err
			}
			continue
		case resp.Status == http.StatusOK:
			if call.Validate != nil {
				if verr := call.Validate(resp.Body); verr != nil {
					failure = &FetchError{Kind: ErrMalformed, Endpoint: call.Endpoint, Status: resp.Status, Err: verr}
					break
				}
			}
			if err := f.cache.Put(key, resp.Body); err != nil {
				f.log.Log(logging.LevelWarning, "cache write failed", map[string]any{"key": key.String(), "error": err.Error()})
			}
			metrics.IncFetch(call.Endpoint, "ok")
			f.record(ctx, key, call.Endpoint, resp.Status, retries+1, "ok")
			return Result{Body: resp.Body, Key: key}, nil
		default:
			failure = &FetchError{Kind: ErrUpstream, Endpoint: call.Endpoint, Status: resp.Status, Err: upstreamDetail(resp.Body)}
		}

		retries++
		failure.Attempts = retries
		metrics.IncAPIRetry(call.Endpoint)
		f.log.Log(logging.LevelError, "fetch failed", map[string]any{
			"endpoint": call.Endpoint,
			"status":   failure.Status,
			"attempt":  retries,
			"error":    failure.Error(),
		})
		if retries > f.opts.MaxRetries {
			metrics.IncFetch(call.Endpoint, "failed")
			f.record(ctx, key, call.Endpoint, failure.Status, retries, "failed")
			return Result{}, failure
		}
		if err := f.clock.Sleep(ctx, f.opts.RetryPause); err != nil {
			return Result{}, err
		}
	}
}

// Validator is implemented by response envelopes that can tell a usable
// body from an empty or error-only one.
type Validator interface {
	Validate() error
}

// FetchJSON fetches call and decodes the body into a fresh T. A body that
// does not decode, or whose *T rejects itself as a Validator, is treated as
// a malformed response.
func FetchJSON[T any](ctx context.Context, f *Fetcher, call Call) (T, Result, error) {
	var out T
	extra := call.Validate
	call.Validate = func(b []byte) error {
		var v T
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		if vv, ok := any(&v).(Validator); ok {
			if err := vv.Validate(); err != nil {
				return err
			}
		}
		if extra != nil {
			if err := extra(b); err != nil {
				return err
			}
		}
		out = v
		return nil
	}
	res, err := f.Fetch(ctx, call)
	if err != nil {
		var zero T
		return zero, res, err
	}
	return out, res, nil
}

func (f *Fetcher) header(call Call) (http.Header, error) {
	h := http.Header{}
	for k, vs := range call.Header {
		h[k] = append([]string(nil), vs...)
	}
	var ts oauth2.TokenSource
	switch call.Auth {
	case AuthUser:
		ts = f.creds.User
	case AuthAdaptive:
		ts = f.creds.Adaptive
		if f.creds.GuestToken != "" {
			h.Set("x-guest-token", f.creds.GuestToken)
		}
	}
	if ts == nil {
		if call.Auth == AuthNone {
			return h, nil
		}
		return nil, errors.New("xclient: no credential for call")
	}
	tok, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("xclient: token: %w", err)
	}
	tok.SetAuthHeader(&http.Request{Header: h})
	return h, nil
}

func (f *Fetcher) record(ctx context.Context, key reqcache.Key, endpoint string, status, attempts int, outcome string) {
	if f.ledger == nil {
		return
	}
	rec := FetchRecord{
		Fingerprint: key.String(),
		Endpoint:    endpoint,
		Status:      status,
		Attempts:    attempts,
		Outcome:     outcome,
		At:          f.clock.Now(),
	}
	if err := f.ledger.RecordFetch(ctx, rec); err != nil {
		f.log.Log(logging.LevelWarning, "fetch ledger write failed", map[string]any{"error": err.Error()})
	}
}

func upstreamDetail(body []byte) error {
	if len(body) == 0 {
		return nil
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return errors.New(strings.TrimSpace(string(body)))
}
