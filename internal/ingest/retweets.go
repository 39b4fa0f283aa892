package ingest

import (
	"context"
	"unicode/utf8"

	"twarchive/internal/logging"
	"twarchive/internal/model"
	"twarchive/internal/parse"
	"twarchive/internal/xclient"
)

// ResolveRetweets embeds the full original into every queued retweet.
//
// A retweet fetched directly has truncated text and, on the legacy endpoint,
// no origin id. The versioned lookup maps each retweet to its origin; the
// origins are then looked up on both the legacy and the versioned endpoint,
// since neither returns a complete original alone.
func (r *Reconciler) ResolveRetweets(ctx context.Context, st *State) error {
	cands := st.Retweets()
	if len(cands) == 0 {
		return nil
	}
	origins := make(map[uint64][]uint64)
	var unknown []uint64
	for _, id := range cands {
		if t := st.Timeline[id]; t != nil && t.RetweetedStatusID != nil && !r.opts.ScanRetweets {
			origins[*t.RetweetedStatusID] = append(origins[*t.RetweetedStatusID], id)
			continue
		}
		unknown = append(unknown, id)
	}

	metaBatches := make([][]*model.Tweet, batchCount(len(unknown)))
	err := r.eachBatch(ctx, unknown, func(ctx context.Context, i int, batch []uint64) error {
		resp, _, err := xclient.FetchJSON[parse.TweetsResponse](ctx, r.f, lookup(xclient.EndpointTweets, xclient.RetweetMetaParams(batch)))
		if err != nil {
			return r.absorb(err, "retweet lookup failed", map[string]any{"ids": len(batch)})
		}
		metas := make([]*model.Tweet, 0, len(resp.Data))
		for j := range resp.Data {
			raw := &resp.Data[j]
			t := parse.Tweet(raw, nil)
			if t.ID == 0 {
				continue
			}
			if origin, ok := parse.ReferencedOrigin(raw); ok {
				t.RetweetedStatusID = model.ID(origin)
			} else {
				t.RetweetedStatusID = nil
			}
			metas = append(metas, t)
		}
		metaBatches[i] = metas
		return nil
	})
	if err != nil {
		return err
	}
	var metas []*model.Tweet
	for _, b := range metaBatches {
		metas = append(metas, b...)
	}
	for _, t := range metas {
		if t.RetweetedStatusID == nil {
			r.log.Log(logging.LevelNotice, "does not look like a retweet", map[string]any{"id": t.ID})
			st.Fill(t)
			continue
		}
		if !st.Fill(t) {
			st.Timeline[t.ID].RetweetedStatusID = model.ID(*t.RetweetedStatusID)
		}
		origins[*t.RetweetedStatusID] = append(origins[*t.RetweetedStatusID], t.ID)
	}

	ids := make([]uint64, 0, len(origins))
	for id := range origins {
		ids = append(ids, id)
	}
	ids = sortedIDs(ids)

	type originals struct {
		legacy    []*model.Tweet
		versioned []*model.Tweet
		users     []model.User
	}
	slots := make([]originals, batchCount(len(ids)))
	err = r.eachBatch(ctx, ids, func(ctx context.Context, i int, batch []uint64) error {
		raws, _, err := xclient.FetchJSON[[]parse.RawTweet](ctx, r.f, lookup(xclient.EndpointStatusesLookup, xclient.StatusesLookupParams(batch)))
		if err := r.absorb(err, "legacy original lookup failed", map[string]any{"ids": len(batch)}); err != nil {
			return err
		}
		resp, _, err := xclient.FetchJSON[parse.TweetsResponse](ctx, r.f, lookup(xclient.EndpointTweets, xclient.TweetsLookupParams(batch)))
		if err := r.absorb(err, "versioned original lookup failed", map[string]any{"ids": len(batch)}); err != nil {
			return err
		}
		var o originals
		for j := range raws {
			o.legacy = append(o.legacy, parse.Tweet(&raws[j], nil))
			if u, ok := parse.UserOf(&raws[j]); ok {
				o.users = append(o.users, u)
			}
		}
		o.versioned = resp.Tweets()
		slots[i] = o
		return nil
	})
	if err != nil {
		return err
	}
	legacy := make(map[uint64]*model.Tweet)
	versioned := make(map[uint64]*model.Tweet)
	for _, o := range slots {
		for _, t := range o.legacy {
			legacy[t.ID] = t
		}
		for _, t := range o.versioned {
			versioned[t.ID] = t
		}
		for _, u := range o.users {
			st.PutUser(u)
		}
	}

	resolved := 0
	for _, id := range ids {
		orig := mergeOriginal(legacy[id], versioned[id])
		if orig == nil {
			r.log.Log(logging.LevelWarning, "retweet original not returned", map[string]any{"id": id, "retweets": len(origins[id])})
			continue
		}
		st.Side[id] = orig
		for _, rt := range sortedIDs(origins[id]) {
			t := st.Timeline[rt]
			if t == nil {
				t = &model.Tweet{ID: rt, Media: []model.Media{}}
				st.Timeline[rt] = t
			}
			t.RetweetedStatusID = model.ID(id)
			t.RetweetedStatus = orig.Shallow()
			resolved++
		}
	}
	r.log.Log(logging.LevelInfo, "retweets resolved", map[string]any{"candidates": len(cands), "originals": len(ids), "resolved": resolved})
	return nil
}

// mergeOriginal combines the two lookups of one original. Either side may be
// missing; the legacy record is the base and the versioned one fills the
// fields the legacy endpoint leaves out.
func mergeOriginal(legacy, versioned *model.Tweet) *model.Tweet {
	switch {
	case legacy == nil && versioned == nil:
		return nil
	case legacy == nil:
		return versioned.Clone()
	case versioned == nil:
		return legacy.Clone()
	}
	m := legacy.Clone()
	if m.UserID == 0 {
		m.UserID = versioned.UserID
	}
	if m.CreatedAt == 0 {
		m.CreatedAt = versioned.CreatedAt
	}
	if utf8.RuneCountInString(versioned.Text) > utf8.RuneCountInString(m.Text) {
		m.Text = versioned.Text
	}
	if m.ConversationID == nil && versioned.ConversationID != nil {
		m.ConversationID = model.ID(*versioned.ConversationID)
	}
	if m.ReplyCount == 0 {
		m.ReplyCount = versioned.ReplyCount
	}
	if m.QuoteCount == 0 {
		m.QuoteCount = versioned.QuoteCount
	}
	v := versioned.Clone()
	if len(m.Place) == 0 {
		m.Place = v.Place
	}
	if len(m.Coordinates) == 0 {
		m.Coordinates = v.Coordinates
	}
	if len(m.Geo) == 0 {
		m.Geo = v.Geo
	}
	if len(m.Media) == 0 {
		m.Media = v.Media
	}
	return m
}

// EmbedQuotes embeds every known quoted tweet one level deep.
func (r *Reconciler) EmbedQuotes(st *State) {
	embedded := 0
	for _, id := range st.IDs() {
		t := st.Timeline[id]
		if t == nil || t.QuotedStatusID == nil || *t.QuotedStatusID == t.ID {
			continue
		}
		q, ok := st.Lookup(*t.QuotedStatusID)
		if !ok {
			continue
		}
		t.QuotedStatus = q.Shallow()
		t.IsQuoteStatus = true
		embedded++
	}
	r.log.Log(logging.LevelInfo, "quotes embedded", map[string]any{"embedded": embedded})
}
