// Package ingest merges the timeline sources of one account into a single
// entity set. Each step reads and updates a State; steps run in a fixed order
// so source priority stays auditable.
package ingest

import (
	"sort"

	"twarchive/internal/model"
	"twarchive/internal/util"
)

// State is the accumulator threaded through every reconciliation step.
type State struct {
	// Timeline holds every id the run will emit. A nil value is a
	// placeholder a later step is expected to fill.
	Timeline map[uint64]*model.Tweet
	// Side holds tweets that are not timeline entries themselves but may
	// be embedded into one: adaptive global objects and looked-up originals.
	Side  map[uint64]*model.Tweet
	Users map[uint64]model.User

	retweets []uint64
	queued   map[uint64]struct{}
}

func NewState() *State {
	return &State{
		Timeline: make(map[uint64]*model.Tweet),
		Side:     make(map[uint64]*model.Tweet),
		Users:    make(map[uint64]model.User),
		queued:   make(map[uint64]struct{}),
	}
}

// Has reports whether id is a timeline entry, resolved or not.
func (s *State) Has(id uint64) bool {
	_, ok := s.Timeline[id]
	return ok
}

// Placeholder reserves id without data. Existing entries are left alone.
func (s *State) Placeholder(id uint64) {
	if id == 0 || s.Has(id) {
		return
	}
	s.Timeline[id] = nil
}

// Fill stores a copy of t when its id is absent or only a placeholder. It
// reports whether t was stored.
func (s *State) Fill(t *model.Tweet) bool {
	if t == nil || t.ID == 0 || s.Timeline[t.ID] != nil {
		return false
	}
	s.Timeline[t.ID] = t.Clone()
	return true
}

// Overlay merges t over whatever the entry holds, field by field.
func (s *State) Overlay(t *model.Tweet) {
	if t == nil || t.ID == 0 {
		return
	}
	if cur := s.Timeline[t.ID]; cur != nil {
		cur.Merge(t)
		return
	}
	s.Timeline[t.ID] = t.Clone()
}

// Lookup finds a resolved tweet in the timeline or the side table.
func (s *State) Lookup(id uint64) (*model.Tweet, bool) {
	if t := s.Timeline[id]; t != nil {
		return t, true
	}
	if t := s.Side[id]; t != nil {
		return t, true
	}
	return nil, false
}

// PutUser replaces any earlier copy of u.
func (s *State) PutUser(u model.User) {
	if u.ID == 0 {
		return
	}
	s.Users[u.ID] = u
}

// MarkRetweet queues id for retweet resolution once.
func (s *State) MarkRetweet(id uint64) {
	if id == 0 {
		return
	}
	if _, ok := s.queued[id]; ok {
		return
	}
	s.queued[id] = struct{}{}
	s.retweets = append(s.retweets, id)
}

// Retweets returns the queued retweet candidates in ascending id order.
func (s *State) Retweets() []uint64 {
	return sortedIDs(s.retweets)
}

// IDs returns every timeline id in ascending order.
func (s *State) IDs() []uint64 {
	ids := make([]uint64, 0, len(s.Timeline))
	for id := range s.Timeline {
		ids = append(ids, id)
	}
	return sortedIDs(ids)
}

// Unresolved lists the placeholders no step filled.
func (s *State) Unresolved() []uint64 {
	var out []uint64
	for _, id := range s.IDs() {
		if s.Timeline[id] == nil {
			out = append(out, id)
		}
	}
	return out
}

// noteRetweet embeds a known retweet origin into t, or queues t when the
// origin is unknown or only the text prefix suggests a retweet.
func (s *State) noteRetweet(t *model.Tweet) {
	if t == nil || t.RetweetedStatus != nil {
		return
	}
	if t.RetweetedStatusID != nil {
		if orig, ok := s.Lookup(*t.RetweetedStatusID); ok && orig.ID != t.ID {
			t.RetweetedStatus = orig.Shallow()
			return
		}
		s.MarkRetweet(t.ID)
		return
	}
	if util.HasRetweetPrefix(t.Text) {
		s.MarkRetweet(t.ID)
	}
}

func sortedIDs(ids []uint64) []uint64 {
	out := append([]uint64(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// batches splits ids into lookup-sized chunks.
func batches(ids []uint64, size int) [][]uint64 {
	var out [][]uint64
	for i := 0; i < len(ids); i += size {
		end := i + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[i:end])
	}
	return out
}
