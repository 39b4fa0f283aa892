package parse

import (
	"errors"
	"net/url"
	"sort"
	"strings"

	"twarchive/internal/model"
)

// APIError is an entry of a versioned "errors" array, e.g. a deleted tweet.
type APIError struct {
	Value  string `json:"value"`
	Detail string `json:"detail"`
	Title  string `json:"title"`
}

// TweetsResponse is the versioned /2/tweets envelope.
type TweetsResponse struct {
	Data     []RawTweet `json:"data"`
	Includes struct {
		Media  []RawMedia `json:"media"`
		Tweets []RawTweet `json:"tweets"`
	} `json:"includes"`
	Errors []APIError `json:"errors"`
}

// Validate rejects bodies carrying neither data nor errors.
func (r *TweetsResponse) Validate() error {
	if r.Data == nil && r.Errors == nil {
		return errors.New("tweets response: no data and no errors")
	}
	return nil
}

// Tweets converts the data array, resolving attached media from includes.
func (r *TweetsResponse) Tweets() []*model.Tweet {
	idx := NewMediaIndex(r.Includes.Media)
	out := make([]*model.Tweet, 0, len(r.Data))
	for i := range r.Data {
		out = append(out, Tweet(&r.Data[i], idx))
	}
	return out
}

// SearchResponse is the legacy /1.1/search/tweets.json envelope.
type SearchResponse struct {
	Statuses       []RawTweet `json:"statuses"`
	SearchMetadata struct {
		NextResults string `json:"next_results"`
		MaxIDStr    string `json:"max_id_str"`
	} `json:"search_metadata"`
}

// Next returns the parameters for the following page, or nil at the end.
func (r *SearchResponse) Next() url.Values {
	next := strings.TrimPrefix(r.SearchMetadata.NextResults, "?")
	if next == "" {
		return nil
	}
	v, err := url.ParseQuery(next)
	if err != nil || len(v) == 0 {
		return nil
	}
	return v
}

// AdaptiveResponse is the internal search envelope: entities in
// globalObjects, ordering and cursors in timeline instructions.
type AdaptiveResponse struct {
	GlobalObjects struct {
		Tweets map[string]RawTweet `json:"tweets"`
		Users  map[string]RawUser  `json:"users"`
	} `json:"globalObjects"`
	Timeline struct {
		Instructions []Instruction `json:"instructions"`
	} `json:"timeline"`
}

type Instruction struct {
	AddEntries *struct {
		Entries []Entry `json:"entries"`
	} `json:"addEntries"`
	ReplaceEntry *struct {
		EntryIDToReplace string `json:"entryIdToReplace"`
		Entry            Entry  `json:"entry"`
	} `json:"replaceEntry"`
}

type Entry struct {
	EntryID string `json:"entryId"`
	Content struct {
		Item *struct {
			Content struct {
				Tweet *struct {
					ID FlexID `json:"id"`
				} `json:"tweet"`
			} `json:"content"`
		} `json:"item"`
		Operation *struct {
			Cursor struct {
				Value string `json:"value"`
			} `json:"cursor"`
		} `json:"operation"`
	} `json:"content"`
}

const (
	adaptiveTweetPrefix = "sq-I-t"
	adaptiveCursor      = "sq-cursor-bottom"
)

// HasTweets reports whether the page carries any tweet objects. An empty
// page ends the walk.
func (r *AdaptiveResponse) HasTweets() bool {
	return len(r.GlobalObjects.Tweets) > 0 && r.Timeline.Instructions != nil
}

// Walk returns the timeline ids in entry order and the bottom cursor. Any
// instruction other than addEntries or a bottom-cursor replacement clears
// the cursor.
func (r *AdaptiveResponse) Walk() (ids []uint64, cursor string) {
	for _, in := range r.Timeline.Instructions {
		switch {
		case in.AddEntries != nil:
			for _, e := range in.AddEntries.Entries {
				switch {
				case strings.HasPrefix(e.EntryID, adaptiveTweetPrefix):
					if it := e.Content.Item; it != nil && it.Content.Tweet != nil && it.Content.Tweet.ID != 0 {
						ids = append(ids, uint64(it.Content.Tweet.ID))
					}
				case e.EntryID == adaptiveCursor:
					if e.Content.Operation != nil {
						cursor = e.Content.Operation.Cursor.Value
					}
				}
			}
		case in.ReplaceEntry != nil && in.ReplaceEntry.EntryIDToReplace == adaptiveCursor:
			cursor = ""
			if op := in.ReplaceEntry.Entry.Content.Operation; op != nil {
				cursor = op.Cursor.Value
			}
		default:
			cursor = ""
		}
	}
	return ids, cursor
}

// Tweets converts every global tweet object in key order.
func (r *AdaptiveResponse) Tweets() []*model.Tweet {
	out := make([]*model.Tweet, 0, len(r.GlobalObjects.Tweets))
	for _, k := range sortedKeys(r.GlobalObjects.Tweets) {
		raw := r.GlobalObjects.Tweets[k]
		out = append(out, Tweet(&raw, nil))
	}
	return out
}

// Users converts every global user object in key order.
func (r *AdaptiveResponse) Users() []model.User {
	out := make([]model.User, 0, len(r.GlobalObjects.Users))
	for _, k := range sortedKeys(r.GlobalObjects.Users) {
		raw := r.GlobalObjects.Users[k]
		out = append(out, User(&raw))
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CursorPage is the legacy id/user/list page shape with next_cursor_str.
type CursorPage struct {
	IDs           []FlexID  `json:"ids"`
	Users         []RawUser `json:"users"`
	Lists         []RawList `json:"lists"`
	NextCursorStr string    `json:"next_cursor_str"`
}

// RawList is a legacy list object.
type RawList struct {
	ID          FlexID  `json:"id"`
	IDStr       string  `json:"id_str"`
	Slug        string  `json:"slug"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	MemberCount FlexInt `json:"member_count"`
	Mode        string  `json:"mode"`
	User        RawUser `json:"user"`
}

func (l *RawList) ListID() uint64 { return pick(strID(l.IDStr), l.ID) }
