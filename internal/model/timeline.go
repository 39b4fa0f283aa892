package model

import (
	"encoding/json"
	"sort"
)

// Timeline is an ordered id -> Tweet mapping plus the users its tweets refer to.
// Order is whatever the last Sort imposed; insertion order carries no meaning.
type Timeline struct {
	order  []uint64
	tweets map[uint64]*Tweet
	users  map[uint64]User
}

func NewTimeline() *Timeline {
	return &Timeline{tweets: make(map[uint64]*Tweet), users: make(map[uint64]User)}
}

// Set stores t, replacing any tweet with the same id in place.
func (tl *Timeline) Set(t *Tweet) {
	if t == nil {
		return
	}
	if _, ok := tl.tweets[t.ID]; !ok {
		tl.order = append(tl.order, t.ID)
	}
	tl.tweets[t.ID] = t
}

func (tl *Timeline) Get(id uint64) (*Tweet, bool) {
	t, ok := tl.tweets[id]
	return t, ok
}

func (tl *Timeline) Len() int { return len(tl.order) }

// Tweets returns the tweets in current order.
func (tl *Timeline) Tweets() []*Tweet {
	out := make([]*Tweet, 0, len(tl.order))
	for _, id := range tl.order {
		out = append(out, tl.tweets[id])
	}
	return out
}

func (tl *Timeline) SetUser(u User) { tl.users[u.ID] = u }

func (tl *Timeline) User(id uint64) (User, bool) {
	u, ok := tl.users[id]
	return u, ok
}

func (tl *Timeline) CountUsers() int { return len(tl.users) }

// Users returns all users ordered by id ascending.
func (tl *Timeline) Users() []User {
	out := make([]User, 0, len(tl.users))
	for _, u := range tl.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SortBy applies a stable sort with the given ordering.
func (tl *Timeline) SortBy(less func(a, b *Tweet) bool) {
	sort.SliceStable(tl.order, func(i, j int) bool {
		return less(tl.tweets[tl.order[i]], tl.tweets[tl.order[j]])
	})
}

// ByIDDesc orders newest first; status ids are time ordered.
func ByIDDesc(a, b *Tweet) bool { return a.ID > b.ID }

func ByRetweetsDesc(a, b *Tweet) bool {
	if a.RetweetCount != b.RetweetCount {
		return a.RetweetCount > b.RetweetCount
	}
	return a.ID > b.ID
}

func ByFavoritesDesc(a, b *Tweet) bool {
	if a.FavoriteCount != b.FavoriteCount {
		return a.FavoriteCount > b.FavoriteCount
	}
	return a.ID > b.ID
}

type timelineJSON struct {
	Tweets []*Tweet `json:"tweets"`
	Users  []User   `json:"users"`
}

func (tl *Timeline) MarshalJSON() ([]byte, error) {
	return json.Marshal(timelineJSON{Tweets: tl.Tweets(), Users: tl.Users()})
}

func (tl *Timeline) UnmarshalJSON(b []byte) error {
	var raw timelineJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*tl = *NewTimeline()
	for _, t := range raw.Tweets {
		tl.Set(t)
	}
	for _, u := range raw.Users {
		tl.SetUser(u)
	}
	return nil
}
