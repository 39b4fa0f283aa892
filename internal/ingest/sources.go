package ingest

import (
	"context"
	"errors"
	"net/url"

	"twarchive/internal/archive"
	"twarchive/internal/logging"
	"twarchive/internal/model"
	"twarchive/internal/parse"
	"twarchive/internal/util"
	"twarchive/internal/xclient"
)

// Import seeds the state with a previously compiled timeline. Tweets that
// look like retweets but carry no embedded original are queued for
// re-resolution, since exports truncate retweet text.
func (r *Reconciler) Import(st *State, tl *model.Timeline) {
	for _, u := range tl.Users() {
		st.PutUser(u)
	}
	for _, t := range tl.Tweets() {
		st.Overlay(t)
		if !util.HasRetweetPrefix(t.Text) {
			continue
		}
		if t.RetweetedStatus == nil || r.opts.ScanRetweets {
			st.MarkRetweet(t.ID)
		}
	}
}

// Adaptive walks the adaptive search cursor. Its results take priority over
// every other source for the ids it returns.
func (r *Reconciler) Adaptive(ctx context.Context, st *State) error {
	var page parse.AdaptiveResponse
	var hits []uint64
	p := xclient.Paginator{
		Fetch: func(ctx context.Context, cursor string, n int) (xclient.Result, error) {
			resp, res, err := xclient.FetchJSON[parse.AdaptiveResponse](ctx, r.f, xclient.Call{
				Endpoint: xclient.EndpointAdaptiveSearch,
				Params:   xclient.AdaptiveSearchParams(r.opts.Query, cursor),
				Page:     n,
				Auth:     xclient.AuthAdaptive,
			})
			page = resp
			return res, err
		},
		Handle: func(n int, _ xclient.Result) (string, error) {
			if !page.HasTweets() {
				return "", nil
			}
			ids, cursor := page.Walk()
			for _, t := range page.Tweets() {
				st.Side[t.ID] = t
			}
			for _, u := range page.Users() {
				st.PutUser(u)
			}
			for _, id := range ids {
				st.Placeholder(id)
			}
			hits = append(hits, ids...)
			r.log.Log(logging.LevelDebug, "adaptive page", map[string]any{"page": n, "ids": len(ids)})
			return cursor, nil
		},
		Clock: r.f.Clock(),
		Log:   r.log,
	}
	pages, err := p.Run(ctx, "")
	if err := r.absorb(err, "adaptive search stopped", map[string]any{"pages": pages}); err != nil {
		return err
	}
	for _, id := range hits {
		t := st.Side[id]
		if t == nil {
			continue
		}
		st.Overlay(t)
	}
	for _, id := range hits {
		st.noteRetweet(st.Timeline[id])
	}
	return nil
}

// Archive backfills ids no earlier step produced from a bulk export. The
// versioned lookup supplies the full record; the export record is the
// fallback for ids it does not return. Retweets in the export are truncated
// and only queued.
func (r *Reconciler) Archive(ctx context.Context, st *State, dir string) error {
	rd, err := archive.Open(dir)
	if errors.Is(err, archive.ErrArchiveMissing) {
		r.log.Log(logging.LevelWarning, "archive source skipped", map[string]any{"dir": dir, "error": err.Error()})
		return nil
	}
	if err != nil {
		return err
	}
	raws, err := rd.Tweets()
	if err != nil {
		r.log.Log(logging.LevelWarning, "archive source skipped", map[string]any{"dir": dir, "error": err.Error()})
		return nil
	}

	records := make(map[uint64]*parse.RawTweet)
	var want []uint64
	for i := range raws {
		raw := &raws[i]
		id := raw.TweetID()
		if st.Timeline[id] != nil {
			continue
		}
		if util.HasRetweetPrefix(raw.RawText()) {
			st.Placeholder(id)
			st.MarkRetweet(id)
			continue
		}
		if _, dup := records[id]; dup {
			continue
		}
		records[id] = raw
		want = append(want, id)
	}
	want = sortedIDs(want)

	looked := make([][]*model.Tweet, batchCount(len(want)))
	err = r.eachBatch(ctx, want, func(ctx context.Context, i int, batch []uint64) error {
		resp, _, err := xclient.FetchJSON[parse.TweetsResponse](ctx, r.f, lookup(xclient.EndpointTweets, xclient.TweetsLookupParams(batch)))
		if err != nil {
			return r.absorb(err, "archive lookup failed, using export records", map[string]any{"ids": len(batch)})
		}
		looked[i] = resp.Tweets()
		return nil
	})
	if err != nil {
		return err
	}
	found := make(map[uint64]*model.Tweet)
	for _, tweets := range looked {
		for _, t := range tweets {
			found[t.ID] = t
		}
	}

	fallback := 0
	for _, id := range want {
		t, ok := found[id]
		if !ok {
			t = parse.Tweet(records[id], nil)
			if t.UserID == 0 {
				t.UserID = r.opts.AccountID
			}
			fallback++
		}
		if st.Fill(t) {
			st.noteRetweet(st.Timeline[id])
		}
	}
	r.log.Log(logging.LevelInfo, "archive merged", map[string]any{"records": len(raws), "looked_up": len(want), "fallback": fallback})
	return nil
}

// APISearch pages the public search endpoint, filling only ids no earlier
// step produced.
func (r *Reconciler) APISearch(ctx context.Context, st *State) error {
	base := xclient.SearchTweetsParams(r.opts.Query, r.opts.SinceID)
	var page parse.SearchResponse
	p := xclient.Paginator{
		Fetch: func(ctx context.Context, cursor string, n int) (xclient.Result, error) {
			params := url.Values{}
			for k, v := range base {
				params[k] = v
			}
			if cursor != "" {
				next, err := url.ParseQuery(cursor)
				if err != nil {
					return xclient.Result{}, err
				}
				for k, v := range next {
					params[k] = v
				}
			}
			resp, res, err := xclient.FetchJSON[parse.SearchResponse](ctx, r.f, xclient.Call{
				Endpoint: xclient.EndpointSearchTweets,
				Params:   params,
				Page:     n,
				Auth:     xclient.AuthUser,
			})
			page = resp
			return res, err
		},
		Handle: func(n int, _ xclient.Result) (string, error) {
			for i := range page.Statuses {
				raw := &page.Statuses[i]
				if u, ok := parse.UserOf(raw); ok {
					st.PutUser(u)
				}
				t := parse.Tweet(raw, nil)
				if st.Fill(t) {
					st.noteRetweet(st.Timeline[t.ID])
				}
			}
			if len(page.Statuses) == 0 {
				return "", nil
			}
			if next := page.Next(); next != nil {
				return next.Encode(), nil
			}
			return "", nil
		},
		Clock: r.f.Clock(),
		Log:   r.log,
	}
	pages, err := p.Run(ctx, "")
	return r.absorb(err, "public search stopped", map[string]any{"pages": pages})
}
