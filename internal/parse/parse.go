// Package parse normalizes the tweet, user and media shapes of every upstream
// source into the canonical model. All functions are total: missing optional
// fields fall back to zero values.
package parse

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"twarchive/internal/model"
	"twarchive/internal/util"
)

// MediaIndex resolves versioned attachments.media_keys; may be nil.
type MediaIndex map[string]*RawMedia

// NewMediaIndex indexes includes.media by media_key.
func NewMediaIndex(media []RawMedia) MediaIndex {
	if len(media) == 0 {
		return nil
	}
	idx := make(MediaIndex, len(media))
	for i := range media {
		if media[i].MediaKey != "" {
			idx[media[i].MediaKey] = &media[i]
		}
	}
	return idx
}

// Tweet converts r into a canonical Tweet. Inline quoted and retweeted
// statuses are converted one level deep.
func Tweet(r *RawTweet, media MediaIndex) *model.Tweet {
	return tweet(r, media, true)
}

func tweet(r *RawTweet, media MediaIndex, nested bool) *model.Tweet {
	if r == nil {
		return nil
	}
	pm := r.PublicMetrics.orEmpty()
	t := &model.Tweet{
		ID:                  r.TweetID(),
		UserID:              AuthorID(r),
		CreatedAt:           Timestamp(r.CreatedAt),
		Source:              r.Source,
		RetweetCount:        counter(r.RetweetCount, pm.RetweetCount),
		FavoriteCount:       counter(r.FavoriteCount, pm.LikeCount),
		ReplyCount:          counter(r.ReplyCount, pm.ReplyCount),
		QuoteCount:          counter(r.QuoteCount, pm.QuoteCount),
		Favorited:           bool(r.Favorited),
		Retweeted:           bool(r.Retweeted),
		PossiblySensitive:   bool(r.PossiblySensitive),
		InReplyToStatusID:   optID(pick(strID(r.InReplyToStatusIDStr), r.InReplyToStatusID, ref(r, "replied_to"))),
		InReplyToUserID:     optID(pick(strID(r.InReplyToUserIDStr), r.InReplyToUserID)),
		InReplyToScreenName: r.InReplyToScreenName,
		IsQuoteStatus:       bool(r.IsQuoteStatus),
		QuotedStatusID:      optID(pick(strID(r.QuotedStatusIDStr), r.QuotedStatusID, ref(r, "quoted"))),
		ConversationID:      optID(pick(strID(r.ConversationIDStr), r.ConversationID)),
		Place:               raw(r.Place),
		Coordinates:         raw(r.Coordinates),
		Geo:                 raw(r.Geo),
		Media:               []model.Media{},
	}
	if r.SelfThread != nil {
		t.SelfThread = optID(pick(strID(r.SelfThread.IDStr), r.SelfThread.ID))
	}
	if origin, ok := RetweetOrigin(r); ok {
		t.RetweetedStatusID = model.ID(origin)
	}
	if t.QuotedStatusID != nil {
		t.IsQuoteStatus = true
	}

	text, items := Text(r, media)
	t.Text = text
	t.Media = items

	if nested {
		if r.QuotedStatus != nil {
			t.QuotedStatus = tweet(r.QuotedStatus, media, false)
			if t.QuotedStatusID == nil && t.QuotedStatus.ID != 0 {
				t.QuotedStatusID = model.ID(t.QuotedStatus.ID)
				t.IsQuoteStatus = true
			}
		}
		if r.RetweetedStatus != nil {
			t.RetweetedStatus = tweet(r.RetweetedStatus, media, false)
		}
	}
	return t
}

// Text returns the display text with short links expanded and media links
// removed, plus the media attached to r.
func Text(r *RawTweet, media MediaIndex) (string, []model.Media) {
	text := r.RawText()
	var pairs [][2]string
	items := []model.Media{}
	seen := map[string]bool{}

	for _, ents := range []*Entities{r.Entities, r.ExtendedEntities} {
		if ents == nil {
			continue
		}
		for _, u := range ents.URLs {
			if u.MediaKey != "" {
				pairs = append(pairs, [2]string{u.URL, ""})
				continue
			}
			expanded := u.ExpandedURL
			if expanded == "" {
				expanded = u.URL
			}
			pairs = append(pairs, [2]string{u.URL, expanded})
		}
	}
	// extended_entities carries every attachment; entities.media only the first.
	legacy := r.Entities
	if r.ExtendedEntities != nil && len(r.ExtendedEntities.Media) > 0 {
		legacy = r.ExtendedEntities
	}
	if legacy != nil {
		for i := range legacy.Media {
			m := &legacy.Media[i]
			pairs = append(pairs, [2]string{m.URL, ""})
			key := mediaKey(m)
			if seen[key] {
				continue
			}
			seen[key] = true
			items = append(items, Media(m))
		}
	}
	if r.Entities != nil && legacy != r.Entities {
		for _, m := range r.Entities.Media {
			pairs = append(pairs, [2]string{m.URL, ""})
		}
	}
	if r.Attachments != nil {
		for _, k := range r.Attachments.MediaKeys {
			m, ok := media[k]
			if !ok || seen[k] {
				continue
			}
			seen[k] = true
			items = append(items, Media(m))
		}
	}

	text = util.ReplacePairs(text, pairs...)
	return strings.TrimSpace(html.UnescapeString(text)), items
}

// Media converts one legacy or versioned media object.
func Media(r *RawMedia) model.Media {
	m := model.Media{
		ID:           pick(strID(r.IDStr), r.ID),
		MediaKey:     r.MediaKey,
		SourceUserID: pick(strID(r.SourceUserIDStr), r.SourceUserID),
		Type:         r.Type,
		URL:          first(r.MediaURLHTTPS, r.MediaURL),
		Width:        r.Width,
		Height:       r.Height,
		Variants:     raw(r.Variants),
	}
	if m.ID == 0 && r.MediaKey != "" {
		// Versioned media keys look like "3_<id>".
		if i := strings.IndexByte(r.MediaKey, '_'); i >= 0 {
			m.ID = uint64(strID(r.MediaKey[i+1:]))
		}
	}
	if m.URL == "" {
		m.URL = first(r.URL, r.PreviewImageURL)
	}
	if r.ExtAltText != nil {
		m.AltText = *r.ExtAltText
	} else {
		m.AltText = r.AltText
	}
	if r.OriginalInfo != nil {
		m.Width = r.OriginalInfo.Width
		m.Height = r.OriginalInfo.Height
	}
	if r.VideoInfo != nil && len(raw(r.VideoInfo.Variants)) > 0 {
		m.Variants = raw(r.VideoInfo.Variants)
	}
	return m
}

// User converts a legacy or versioned user object.
func User(r *RawUser) model.User {
	description := util.CleanText(r.Description)
	link := util.CleanText(r.URL)
	if r.Entities != nil {
		description = expand(description, r.Entities.Description.URLs)
		link = expand(link, r.Entities.URL.URLs)
	}
	pm := r.PublicMetrics.orEmpty()
	return model.User{
		ID:              r.UserID(),
		ScreenName:      first(r.ScreenName, r.Username),
		Name:            util.CleanText(r.Name),
		Description:     description,
		Location:        util.CleanText(r.Location),
		URL:             link,
		FollowersCount:  counter(r.FollowersCount, pm.FollowersCount),
		FriendsCount:    counter(r.FriendsCount, pm.FollowingCount),
		StatusesCount:   counter(r.StatusesCount, pm.TweetCount),
		FavouritesCount: counter(r.FavouritesCount),
		CreatedAt:       Timestamp(r.CreatedAt),
		Protected:       bool(r.Protected),
		Verified:        bool(r.Verified),
		BlueVerified:    bool(r.BlueVerified),
		Muting:          bool(r.Muting),
		Blocking:        bool(r.Blocking),
		BlockedBy:       bool(r.BlockedBy),
		ProfileImage:    strings.Replace(first(r.ProfileImageURLHTTPS, r.ProfileImageURL), "_normal.", ".", 1),
		ProfileBanner:   r.ProfileBannerURL,
	}
}

// AuthorID resolves the author from user_id, author_id or the embedded user.
func AuthorID(r *RawTweet) uint64 {
	id := pick(strID(r.UserIDStr), r.UserID, r.AuthorID)
	if id == 0 && r.User != nil {
		id = r.User.UserID()
	}
	return id
}

// RetweetOrigin reports the original status id when r carries a structured
// retweet signal: an embedded retweeted_status, a retweeted_status_id or a
// referenced tweet of type "retweeted".
func RetweetOrigin(r *RawTweet) (uint64, bool) {
	if r.RetweetedStatus != nil {
		if id := r.RetweetedStatus.TweetID(); id != 0 {
			return id, true
		}
	}
	if id := pick(strID(r.RetweetedStatusIDStr), r.RetweetedStatusID); id != 0 {
		return id, true
	}
	if id := ref(r, "retweeted"); id != 0 {
		return uint64(id), true
	}
	return 0, false
}

// ReferencedOrigin is the retweet origin as the versioned lookup reports it:
// a "retweeted" reference, or an untyped first reference.
func ReferencedOrigin(r *RawTweet) (uint64, bool) {
	if id := ref(r, "retweeted"); id != 0 {
		return uint64(id), true
	}
	if len(r.ReferencedTweets) > 0 && r.ReferencedTweets[0].Type == "" && r.ReferencedTweets[0].ID != 0 {
		return uint64(r.ReferencedTweets[0].ID), true
	}
	return 0, false
}

// UserOf returns the user embedded in a legacy tweet.
func UserOf(r *RawTweet) (model.User, bool) {
	if r.User == nil || r.User.UserID() == 0 {
		return model.User{}, false
	}
	return User(r.User), true
}

const legacyTime = "Mon Jan 02 15:04:05 -0700 2006"

// Timestamp parses the legacy and RFC 3339 date formats into unix seconds.
// Unparseable input yields 0.
func Timestamp(s string) int64 {
	if s == "" {
		return 0
	}
	for _, layout := range []string{legacyTime, time.RFC3339, time.RFC1123Z} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Unix()
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return 0
}

func ref(r *RawTweet, kind string) FlexID {
	for _, rt := range r.ReferencedTweets {
		if rt.Type == kind {
			return rt.ID
		}
	}
	return 0
}

func expand(s string, urls []URLEntity) string {
	pairs := make([][2]string, 0, len(urls))
	for _, u := range urls {
		pairs = append(pairs, [2]string{u.URL, first(u.ExpandedURL, u.URL)})
	}
	return util.ReplacePairs(s, pairs...)
}

func mediaKey(m *RawMedia) string {
	if m.MediaKey != "" {
		return m.MediaKey
	}
	return strconv.FormatUint(pick(strID(m.IDStr), m.ID), 10)
}

func (m *PublicMetrics) orEmpty() *PublicMetrics {
	if m == nil {
		return &PublicMetrics{}
	}
	return m
}

func counter(vals ...*FlexInt) int {
	for _, v := range vals {
		if v != nil {
			return int(*v)
		}
	}
	return 0
}

func optID(id uint64) *uint64 {
	if id == 0 {
		return nil
	}
	return model.ID(id)
}

func raw(r json.RawMessage) json.RawMessage {
	r = bytes.TrimSpace(r)
	if len(r) == 0 || bytes.Equal(r, []byte("null")) {
		return nil
	}
	return append(json.RawMessage(nil), r...)
}

func first(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
