package parse

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// FlexID decodes an id sent as a JSON number, a string or null. Zero means absent.
type FlexID uint64

func (f *FlexID) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		// Negative or fractional ids are never valid; treat as absent.
		*f = 0
		return nil
	}
	*f = FlexID(n)
	return nil
}

// FlexInt decodes a counter sent as a number or a numeric string. The
// archive export quotes its counters.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = FlexInt(n)
	return nil
}

// FlexBool accepts true/false in either JSON or string form.
type FlexBool bool

func (f *FlexBool) UnmarshalJSON(b []byte) error {
	v, err := strconv.ParseBool(string(bytes.Trim(b, `"`)))
	*f = FlexBool(err == nil && v)
	return nil
}

// pick returns the first non-zero id.
func pick(ids ...FlexID) uint64 {
	for _, id := range ids {
		if id != 0 {
			return uint64(id)
		}
	}
	return 0
}

func strID(s string) FlexID {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return FlexID(n)
}

type URLEntity struct {
	URL         string `json:"url"`
	ExpandedURL string `json:"expanded_url"`
	MediaKey    string `json:"media_key"`
}

type Entities struct {
	URLs  []URLEntity `json:"urls"`
	Media []RawMedia  `json:"media"`
}

type Reference struct {
	Type string `json:"type"`
	ID   FlexID `json:"id"`
}

type PublicMetrics struct {
	RetweetCount   *FlexInt `json:"retweet_count"`
	LikeCount      *FlexInt `json:"like_count"`
	ReplyCount     *FlexInt `json:"reply_count"`
	QuoteCount     *FlexInt `json:"quote_count"`
	FollowersCount *FlexInt `json:"followers_count"`
	FollowingCount *FlexInt `json:"following_count"`
	TweetCount     *FlexInt `json:"tweet_count"`
}

// RawTweet is the union of every tweet shape upstream sends: legacy REST,
// versioned lookup, adaptive search globalObjects and the archive export.
type RawTweet struct {
	ID                   FlexID          `json:"id"`
	IDStr                string          `json:"id_str"`
	FullText             *string         `json:"full_text"`
	Text                 *string         `json:"text"`
	CreatedAt            string          `json:"created_at"`
	Source               string          `json:"source"`
	UserID               FlexID          `json:"user_id"`
	UserIDStr            string          `json:"user_id_str"`
	AuthorID             FlexID          `json:"author_id"`
	User                 *RawUser        `json:"user"`
	RetweetCount         *FlexInt        `json:"retweet_count"`
	FavoriteCount        *FlexInt        `json:"favorite_count"`
	ReplyCount           *FlexInt        `json:"reply_count"`
	QuoteCount           *FlexInt        `json:"quote_count"`
	PublicMetrics        *PublicMetrics  `json:"public_metrics"`
	Favorited            FlexBool        `json:"favorited"`
	Retweeted            FlexBool        `json:"retweeted"`
	PossiblySensitive    FlexBool        `json:"possibly_sensitive"`
	InReplyToStatusID    FlexID          `json:"in_reply_to_status_id"`
	InReplyToStatusIDStr string          `json:"in_reply_to_status_id_str"`
	InReplyToUserID      FlexID          `json:"in_reply_to_user_id"`
	InReplyToUserIDStr   string          `json:"in_reply_to_user_id_str"`
	InReplyToScreenName  string          `json:"in_reply_to_screen_name"`
	IsQuoteStatus        FlexBool        `json:"is_quote_status"`
	QuotedStatusID       FlexID          `json:"quoted_status_id"`
	QuotedStatusIDStr    string          `json:"quoted_status_id_str"`
	QuotedStatus         *RawTweet       `json:"quoted_status"`
	RetweetedStatusID    FlexID          `json:"retweeted_status_id"`
	RetweetedStatusIDStr string          `json:"retweeted_status_id_str"`
	RetweetedStatus      *RawTweet       `json:"retweeted_status"`
	SelfThread           *SelfThread     `json:"self_thread"`
	ConversationID       FlexID          `json:"conversation_id"`
	ConversationIDStr    string          `json:"conversation_id_str"`
	ReferencedTweets     []Reference     `json:"referenced_tweets"`
	Attachments          *Attachments    `json:"attachments"`
	Entities             *Entities       `json:"entities"`
	ExtendedEntities     *Entities       `json:"extended_entities"`
	Place                json.RawMessage `json:"place"`
	Coordinates          json.RawMessage `json:"coordinates"`
	Geo                  json.RawMessage `json:"geo"`
}

type SelfThread struct {
	ID    FlexID `json:"id"`
	IDStr string `json:"id_str"`
}

type Attachments struct {
	MediaKeys []string `json:"media_keys"`
}

// TweetID resolves the status id from either id field.
func (r *RawTweet) TweetID() uint64 { return pick(strID(r.IDStr), r.ID) }

// RawText is full_text when present, else text.
func (r *RawTweet) RawText() string {
	if r.FullText != nil {
		return *r.FullText
	}
	if r.Text != nil {
		return *r.Text
	}
	return ""
}

type UserEntities struct {
	Description struct {
		URLs []URLEntity `json:"urls"`
	} `json:"description"`
	URL struct {
		URLs []URLEntity `json:"urls"`
	} `json:"url"`
}

// RawUser covers legacy and versioned user objects.
type RawUser struct {
	ID                   FlexID         `json:"id"`
	IDStr                string         `json:"id_str"`
	ScreenName           string         `json:"screen_name"`
	Username             string         `json:"username"`
	Name                 string         `json:"name"`
	Description          string         `json:"description"`
	Location             string         `json:"location"`
	URL                  string         `json:"url"`
	Entities             *UserEntities  `json:"entities"`
	ProfileImageURLHTTPS string         `json:"profile_image_url_https"`
	ProfileImageURL      string         `json:"profile_image_url"`
	ProfileBannerURL     string         `json:"profile_banner_url"`
	FollowersCount       *FlexInt       `json:"followers_count"`
	FriendsCount         *FlexInt       `json:"friends_count"`
	StatusesCount        *FlexInt       `json:"statuses_count"`
	FavouritesCount      *FlexInt       `json:"favourites_count"`
	PublicMetrics        *PublicMetrics `json:"public_metrics"`
	CreatedAt            string         `json:"created_at"`
	Protected            FlexBool       `json:"protected"`
	Verified             FlexBool       `json:"verified"`
	BlueVerified         FlexBool       `json:"ext_is_blue_verified"`
	Muting               FlexBool       `json:"muting"`
	Blocking             FlexBool       `json:"blocking"`
	BlockedBy            FlexBool       `json:"blocked_by"`
}

func (r *RawUser) UserID() uint64 { return pick(strID(r.IDStr), r.ID) }

// RawMedia covers legacy entity media and versioned includes.media.
type RawMedia struct {
	ID              FlexID          `json:"id"`
	IDStr           string          `json:"id_str"`
	MediaKey        string          `json:"media_key"`
	SourceUserID    FlexID          `json:"source_user_id"`
	SourceUserIDStr string          `json:"source_user_id_str"`
	Type            string          `json:"type"`
	URL             string          `json:"url"`
	MediaURLHTTPS   string          `json:"media_url_https"`
	MediaURL        string          `json:"media_url"`
	PreviewImageURL string          `json:"preview_image_url"`
	ExtAltText      *string         `json:"ext_alt_text"`
	AltText         string          `json:"alt_text"`
	Width           int             `json:"width"`
	Height          int             `json:"height"`
	OriginalInfo    *OriginalInfo   `json:"original_info"`
	VideoInfo       *VideoInfo      `json:"video_info"`
	Variants        json.RawMessage `json:"variants"`
}

type OriginalInfo struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type VideoInfo struct {
	Variants json.RawMessage `json:"variants"`
}
