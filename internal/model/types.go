package model

import "encoding/json"

// User is the canonical profile shape written to the archive.
type User struct {
	ID              uint64 `json:"id"`
	ScreenName      string `json:"screen_name"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	Location        string `json:"location"`
	URL             string `json:"url"`
	FollowersCount  int    `json:"followers_count"`
	FriendsCount    int    `json:"friends_count"`
	StatusesCount   int    `json:"statuses_count"`
	FavouritesCount int    `json:"favourites_count"`
	CreatedAt       int64  `json:"created_at"`
	Protected       bool   `json:"protected"`
	Verified        bool   `json:"verified"`
	BlueVerified    bool   `json:"blue_verified"`
	Muting          bool   `json:"muting"`
	Blocking        bool   `json:"blocking"`
	BlockedBy       bool   `json:"blocked_by"`
	ProfileImage    string `json:"profile_image"`
	ProfileBanner   string `json:"profile_banner"`

	// Local copies, set only when avatars are materialized.
	ProfileImageLocal  string `json:"profile_image_local,omitempty"`
	ProfileBannerLocal string `json:"profile_banner_local,omitempty"`
}

// Media is a photo, video or animated gif attached to a tweet.
type Media struct {
	ID           uint64          `json:"id"`
	MediaKey     string          `json:"media_key,omitempty"`
	SourceUserID uint64          `json:"source_user_id,omitempty"`
	Type         string          `json:"type"`
	URL          string          `json:"url"`
	AltText      string          `json:"alt_text"`
	Width        int             `json:"width,omitempty"`
	Height       int             `json:"height,omitempty"`
	Variants     json.RawMessage `json:"variants,omitempty"`
}

// Tweet is the canonical status shape. QuotedStatus and RetweetedStatus are
// owned copies; no two tweets share an embedded pointer.
type Tweet struct {
	ID                  uint64          `json:"id"`
	UserID              uint64          `json:"user_id"`
	CreatedAt           int64           `json:"created_at"`
	Text                string          `json:"text"`
	Source              string          `json:"source,omitempty"`
	RetweetCount        int             `json:"retweet_count"`
	FavoriteCount       int             `json:"favorite_count"`
	ReplyCount          int             `json:"reply_count"`
	QuoteCount          int             `json:"quote_count"`
	Favorited           bool            `json:"favorited"`
	Retweeted           bool            `json:"retweeted"`
	PossiblySensitive   bool            `json:"possibly_sensitive"`
	InReplyToStatusID   *uint64         `json:"in_reply_to_status_id"`
	InReplyToUserID     *uint64         `json:"in_reply_to_user_id"`
	InReplyToScreenName string          `json:"in_reply_to_screen_name,omitempty"`
	IsQuoteStatus       bool            `json:"is_quote_status"`
	QuotedStatusID      *uint64         `json:"quoted_status_id"`
	QuotedStatus        *Tweet          `json:"quoted_status"`
	RetweetedStatusID   *uint64         `json:"retweeted_status_id"`
	RetweetedStatus     *Tweet          `json:"retweeted_status"`
	SelfThread          *uint64         `json:"self_thread"`
	ConversationID      *uint64         `json:"conversation_id"`
	Place               json.RawMessage `json:"place,omitempty"`
	Coordinates         json.RawMessage `json:"coordinates,omitempty"`
	Geo                 json.RawMessage `json:"geo,omitempty"`
	Media               []Media         `json:"media"`
}

// Clone returns a deep copy, so the result can be embedded without aliasing.
func (t *Tweet) Clone() *Tweet {
	if t == nil {
		return nil
	}
	c := *t
	c.InReplyToStatusID = cloneID(t.InReplyToStatusID)
	c.InReplyToUserID = cloneID(t.InReplyToUserID)
	c.QuotedStatusID = cloneID(t.QuotedStatusID)
	c.RetweetedStatusID = cloneID(t.RetweetedStatusID)
	c.SelfThread = cloneID(t.SelfThread)
	c.ConversationID = cloneID(t.ConversationID)
	c.QuotedStatus = t.QuotedStatus.Clone()
	c.RetweetedStatus = t.RetweetedStatus.Clone()
	c.Place = cloneRaw(t.Place)
	c.Coordinates = cloneRaw(t.Coordinates)
	c.Geo = cloneRaw(t.Geo)
	if t.Media != nil {
		c.Media = make([]Media, len(t.Media))
		for i, m := range t.Media {
			m.Variants = cloneRaw(m.Variants)
			c.Media[i] = m
		}
	}
	return &c
}

// Shallow returns a copy with its own embedded statuses removed. Embedding
// uses it so nested references stay one level deep.
func (t *Tweet) Shallow() *Tweet {
	c := t.Clone()
	if c == nil {
		return nil
	}
	c.QuotedStatus = nil
	c.RetweetedStatus = nil
	return c
}

// Merge overlays every field src actually carries onto t. Zero values in src
// never erase data already present in t. Counters follow the same rule: a
// source that omits a count decodes it as 0, so a later 0 cannot lower a
// known count and the highest-priority non-zero count wins.
func (t *Tweet) Merge(src *Tweet) {
	if src == nil {
		return
	}
	if src.UserID != 0 {
		t.UserID = src.UserID
	}
	if src.CreatedAt != 0 {
		t.CreatedAt = src.CreatedAt
	}
	if src.Text != "" {
		t.Text = src.Text
	}
	if src.Source != "" {
		t.Source = src.Source
	}
	t.RetweetCount = overlay(t.RetweetCount, src.RetweetCount)
	t.FavoriteCount = overlay(t.FavoriteCount, src.FavoriteCount)
	t.ReplyCount = overlay(t.ReplyCount, src.ReplyCount)
	t.QuoteCount = overlay(t.QuoteCount, src.QuoteCount)
	t.Favorited = t.Favorited || src.Favorited
	t.Retweeted = t.Retweeted || src.Retweeted
	t.PossiblySensitive = t.PossiblySensitive || src.PossiblySensitive
	if src.InReplyToStatusID != nil {
		t.InReplyToStatusID = cloneID(src.InReplyToStatusID)
	}
	if src.InReplyToUserID != nil {
		t.InReplyToUserID = cloneID(src.InReplyToUserID)
	}
	if src.InReplyToScreenName != "" {
		t.InReplyToScreenName = src.InReplyToScreenName
	}
	t.IsQuoteStatus = t.IsQuoteStatus || src.IsQuoteStatus
	if src.QuotedStatusID != nil {
		t.QuotedStatusID = cloneID(src.QuotedStatusID)
	}
	if src.QuotedStatus != nil {
		t.QuotedStatus = src.QuotedStatus.Clone()
	}
	if src.RetweetedStatusID != nil {
		t.RetweetedStatusID = cloneID(src.RetweetedStatusID)
	}
	if src.RetweetedStatus != nil {
		t.RetweetedStatus = src.RetweetedStatus.Clone()
	}
	if src.SelfThread != nil {
		t.SelfThread = cloneID(src.SelfThread)
	}
	if src.ConversationID != nil {
		t.ConversationID = cloneID(src.ConversationID)
	}
	if len(src.Place) > 0 {
		t.Place = cloneRaw(src.Place)
	}
	if len(src.Coordinates) > 0 {
		t.Coordinates = cloneRaw(src.Coordinates)
	}
	if len(src.Geo) > 0 {
		t.Geo = cloneRaw(src.Geo)
	}
	if len(src.Media) > 0 {
		t.Media = src.Clone().Media
	}
}

// ID returns a pointer to a copy of id, for the nullable reference fields.
func ID(id uint64) *uint64 { return &id }

func cloneID(p *uint64) *uint64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneRaw(r json.RawMessage) json.RawMessage {
	if r == nil {
		return nil
	}
	return append(json.RawMessage(nil), r...)
}

// overlay keeps cur when next is 0, the value of an absent counter.
func overlay(cur, next int) int {
	if next != 0 {
		return next
	}
	return cur
}
