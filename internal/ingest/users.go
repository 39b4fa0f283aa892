package ingest

import (
	"context"

	"twarchive/internal/logging"
	"twarchive/internal/model"
	"twarchive/internal/parse"
	"twarchive/internal/xclient"
)

// ReferencedUsers collects the author and reply-target ids of every resolved
// tweet, embedded ones included, in ascending order.
func ReferencedUsers(st *State) []uint64 {
	seen := make(map[uint64]struct{})
	add := func(id uint64) {
		if id != 0 {
			seen[id] = struct{}{}
		}
	}
	var walk func(t *model.Tweet)
	walk = func(t *model.Tweet) {
		if t == nil {
			return
		}
		add(t.UserID)
		if t.InReplyToUserID != nil {
			add(*t.InReplyToUserID)
		}
		walk(t.QuotedStatus)
		walk(t.RetweetedStatus)
	}
	for _, t := range st.Timeline {
		walk(t)
	}
	ids := make([]uint64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	return sortedIDs(ids)
}

// BackfillUsers looks up, 100 per call, every referenced user not yet known.
func (r *Reconciler) BackfillUsers(ctx context.Context, st *State) error {
	var missing []uint64
	for _, id := range ReferencedUsers(st) {
		if _, ok := st.Users[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	found := make([][]model.User, batchCount(len(missing)))
	err := r.eachBatch(ctx, missing, func(ctx context.Context, i int, batch []uint64) error {
		raws, _, err := xclient.FetchJSON[[]parse.RawUser](ctx, r.f, lookup(xclient.EndpointUsersLookup, xclient.UsersLookupParams(batch)))
		if err != nil {
			return r.absorb(err, "user lookup failed", map[string]any{"ids": len(batch)})
		}
		users := make([]model.User, 0, len(raws))
		for j := range raws {
			users = append(users, parse.User(&raws[j]))
		}
		found[i] = users
		return nil
	})
	if err != nil {
		return err
	}
	n := 0
	for _, users := range found {
		for _, u := range users {
			st.PutUser(u)
			n++
		}
	}
	r.log.Log(logging.LevelInfo, "users backfilled", map[string]any{"missing": len(missing), "found": n})
	return nil
}
