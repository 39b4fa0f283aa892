package ingest

import (
	"context"
	"fmt"
	"net/url"

	"golang.org/x/sync/errgroup"

	"twarchive/internal/logging"
	"twarchive/internal/model"
	"twarchive/internal/xclient"
)

// Options is the reconciler's view of the configuration.
type Options struct {
	// AccountID is the author given to archive records the lookup misses.
	AccountID uint64
	// Query drives both adaptive and public search, e.g. "from:jack".
	Query string
	// ScanRetweets re-resolves imported retweets that already carry an
	// embedded original.
	ScanRetweets bool
	// SinceID bounds public search to newer tweets; 0 disables it.
	SinceID uint64
	// Workers bounds concurrent lookup batches.
	Workers int
}

// Sources selects what a run pulls from.
type Sources struct {
	Import     *model.Timeline
	Adaptive   bool
	ArchiveDir string
	APISearch  bool
}

type Reconciler struct {
	f    *xclient.Fetcher
	opts Options
	log  logging.Sink
}

func New(f *xclient.Fetcher, opts Options) *Reconciler {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Reconciler{f: f, opts: opts, log: logging.OrNop(f.Logger())}
}

type step struct {
	name string
	on   bool
	run  func(context.Context, *State) error
}

// Run executes every enabled step in order: import, adaptive, archive,
// apiSearch, retweets, quotes, users. Per-call fetch failures are logged and
// absorbed; only cancellation and credential errors end the run early.
func (r *Reconciler) Run(ctx context.Context, src Sources) (*State, error) {
	st := NewState()
	steps := []step{
		{"import", src.Import != nil, func(_ context.Context, st *State) error { r.Import(st, src.Import); return nil }},
		{"adaptive", src.Adaptive, r.Adaptive},
		{"archive", src.ArchiveDir != "", func(ctx context.Context, st *State) error { return r.Archive(ctx, st, src.ArchiveDir) }},
		{"apiSearch", src.APISearch, r.APISearch},
		{"retweets", true, r.ResolveRetweets},
		{"quotes", true, func(_ context.Context, st *State) error { r.EmbedQuotes(st); return nil }},
		{"users", true, r.BackfillUsers},
	}
	for _, s := range steps {
		if !s.on {
			continue
		}
		before := len(st.Timeline)
		if err := s.run(ctx, st); err != nil {
			return st, fmt.Errorf("ingest %s: %w", s.name, err)
		}
		r.log.Log(logging.LevelInfo, "step done", map[string]any{
			"step":   s.name,
			"added":  len(st.Timeline) - before,
			"tweets": len(st.Timeline),
			"users":  len(st.Users),
		})
	}
	return st, nil
}

// absorb turns a terminal per-call failure into a warning. Anything else,
// such as cancellation, is returned.
func (r *Reconciler) absorb(err error, msg string, fields map[string]any) error {
	if err == nil || !xclient.IsTerminal(err) {
		return err
	}
	if fields == nil {
		fields = map[string]any{}
	}
	fields["error"] = err.Error()
	r.log.Log(logging.LevelWarning, msg, fields)
	return nil
}

// eachBatch runs fn over lookup-sized chunks of ids with at most Workers in
// flight. fn gets the batch ordinal i and must not touch State; callers keep
// results in slot i and apply them in ordinal order after it returns, so the
// merge never depends on which batch finished first.
func (r *Reconciler) eachBatch(ctx context.Context, ids []uint64, fn func(ctx context.Context, i int, batch []uint64) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for i, b := range batches(ids, xclient.LookupBatch) {
		i, b := i, b
		g.Go(func() error { return fn(gctx, i, b) })
	}
	return g.Wait()
}

// batchCount is the number of batches eachBatch makes of n ids.
func batchCount(n int) int { return (n + xclient.LookupBatch - 1) / xclient.LookupBatch }

func lookup(endpoint string, params url.Values) xclient.Call {
	return xclient.Call{Endpoint: endpoint, Params: params, Page: -1, Auth: xclient.AuthUser}
}
