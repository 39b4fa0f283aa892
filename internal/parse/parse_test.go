package parse

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode[T any](t *testing.T, body string) *T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return &v
}

func TestLegacyTweet(t *testing.T) {
	raw := decode[RawTweet](t, `{
		"id": 1234567890123456789,
		"id_str": "1234567890123456789",
		"full_text": "read this https://t.co/abc &amp; look https://t.co/pic",
		"text": "truncated",
		"created_at": "Wed Oct 10 20:19:24 +0000 2018",
		"source": "web",
		"user": {"id": 42, "screen_name": "alice"},
		"retweet_count": 3,
		"favorite_count": 5,
		"in_reply_to_status_id": null,
		"in_reply_to_user_id_str": "77",
		"quoted_status_id_str": "555",
		"self_thread": {"id_str": "1000"},
		"place": null,
		"geo": {"type": "Point"},
		"entities": {
			"urls": [{"url": "https://t.co/abc", "expanded_url": "https://example.com/a"}],
			"media": [{"id_str": "9", "url": "https://t.co/pic", "type": "photo", "media_url_https": "https://pbs/x.jpg"}]
		},
		"extended_entities": {
			"media": [
				{"id_str": "9", "url": "https://t.co/pic", "type": "photo", "media_url_https": "https://pbs/x.jpg", "ext_alt_text": "a cat", "original_info": {"width": 640, "height": 480}},
				{"id_str": "10", "url": "https://t.co/pic", "type": "video", "media_url": "http://pbs/y.jpg", "video_info": {"variants": [{"url": "v.mp4"}]}}
			]
		}
	}`)
	tw := Tweet(raw, nil)

	assert.Equal(t, uint64(1234567890123456789), tw.ID)
	assert.Equal(t, uint64(42), tw.UserID)
	assert.Equal(t, "read this https://example.com/a & look", tw.Text)
	assert.Equal(t, int64(1539202764), tw.CreatedAt)
	assert.Equal(t, 3, tw.RetweetCount)
	assert.Equal(t, 5, tw.FavoriteCount)
	assert.Nil(t, tw.InReplyToStatusID)
	require.NotNil(t, tw.InReplyToUserID)
	assert.Equal(t, uint64(77), *tw.InReplyToUserID)
	require.NotNil(t, tw.QuotedStatusID)
	assert.Equal(t, uint64(555), *tw.QuotedStatusID)
	assert.True(t, tw.IsQuoteStatus)
	require.NotNil(t, tw.SelfThread)
	assert.Equal(t, uint64(1000), *tw.SelfThread)
	assert.Nil(t, tw.Place)
	assert.JSONEq(t, `{"type":"Point"}`, string(tw.Geo))

	require.Len(t, tw.Media, 2)
	assert.Equal(t, "https://pbs/x.jpg", tw.Media[0].URL)
	assert.Equal(t, "a cat", tw.Media[0].AltText)
	assert.Equal(t, 640, tw.Media[0].Width)
	assert.Equal(t, "http://pbs/y.jpg", tw.Media[1].URL)
	assert.JSONEq(t, `[{"url":"v.mp4"}]`, string(tw.Media[1].Variants))
}

func TestVersionedTweet(t *testing.T) {
	resp := decode[TweetsResponse](t, `{
		"data": [{
			"id": "200",
			"text": "quoting https://t.co/q and https://t.co/m",
			"author_id": "7",
			"created_at": "2022-05-01T10:00:00.000Z",
			"conversation_id": "190",
			"public_metrics": {"retweet_count": 1, "like_count": 2, "reply_count": 3, "quote_count": 4},
			"referenced_tweets": [{"type": "quoted", "id": "150"}, {"type": "replied_to", "id": "190"}],
			"attachments": {"media_keys": ["3_88"]},
			"entities": {"urls": [
				{"url": "https://t.co/q", "expanded_url": "https://twitter.com/x/status/150"},
				{"url": "https://t.co/m", "expanded_url": "https://twitter.com/x/photo/1", "media_key": "3_88"}
			]}
		}],
		"includes": {"media": [{"media_key": "3_88", "type": "photo", "url": "https://pbs/p.jpg", "width": 10, "height": 20, "alt_text": "alt"}]}
	}`)
	require.NoError(t, resp.Validate())
	tweets := resp.Tweets()
	require.Len(t, tweets, 1)
	tw := tweets[0]

	assert.Equal(t, uint64(200), tw.ID)
	assert.Equal(t, uint64(7), tw.UserID)
	assert.Equal(t, int64(1651399200), tw.CreatedAt)
	assert.Equal(t, "quoting https://twitter.com/x/status/150 and", tw.Text)
	assert.Equal(t, 2, tw.FavoriteCount)
	assert.Equal(t, 4, tw.QuoteCount)
	assert.Equal(t, uint64(150), *tw.QuotedStatusID)
	assert.Equal(t, uint64(190), *tw.InReplyToStatusID)
	assert.Equal(t, uint64(190), *tw.ConversationID)
	assert.Nil(t, tw.RetweetedStatusID)
	require.Len(t, tw.Media, 1)
	assert.Equal(t, uint64(88), tw.Media[0].ID)
	assert.Equal(t, "https://pbs/p.jpg", tw.Media[0].URL)
	assert.Equal(t, "alt", tw.Media[0].AltText)
	assert.Equal(t, 20, tw.Media[0].Height)
}

func TestArchiveTweetQuotedCounters(t *testing.T) {
	raw := decode[RawTweet](t, `{"id": "100", "full_text": "plain", "favorite_count": "12", "retweet_count": "0", "favorited": false}`)
	tw := Tweet(raw, nil)
	assert.Equal(t, uint64(100), tw.ID)
	assert.Equal(t, 12, tw.FavoriteCount)
	assert.Equal(t, "plain", tw.Text)
	assert.NotNil(t, tw.Media)
	assert.Zero(t, tw.UserID)
}

func TestEmptyTweetIsTotal(t *testing.T) {
	tw := Tweet(&RawTweet{}, nil)
	assert.Zero(t, tw.ID)
	assert.Empty(t, tw.Text)
	assert.Nil(t, Tweet(nil, nil))
}

func TestInlineStatusesParsedOneLevel(t *testing.T) {
	raw := decode[RawTweet](t, `{
		"id_str": "3", "text": "RT @bob: hi",
		"retweeted_status": {"id_str": "2", "full_text": "hi there", "user": {"id_str": "5"},
			"quoted_status": {"id_str": "1", "text": "deep"}},
		"quoted_status": {"id_str": "4", "text": "q"}
	}`)
	tw := Tweet(raw, nil)
	require.NotNil(t, tw.RetweetedStatus)
	assert.Equal(t, uint64(2), *tw.RetweetedStatusID)
	assert.Equal(t, "hi there", tw.RetweetedStatus.Text)
	assert.Equal(t, uint64(5), tw.RetweetedStatus.UserID)
	assert.Nil(t, tw.RetweetedStatus.QuotedStatus)
	require.NotNil(t, tw.QuotedStatus)
	assert.Equal(t, uint64(4), *tw.QuotedStatusID)
}

func TestRetweetSignals(t *testing.T) {
	typed := decode[RawTweet](t, `{"id":"1","referenced_tweets":[{"type":"retweeted","id":"9"}]}`)
	untyped := decode[RawTweet](t, `{"id":"1","referenced_tweets":[{"id":"99"}]}`)
	quote := decode[RawTweet](t, `{"id":"1","referenced_tweets":[{"type":"quoted","id":"8"}]}`)
	legacy := decode[RawTweet](t, `{"id":"1","retweeted_status_id_str":"7"}`)

	id, ok := RetweetOrigin(typed)
	assert.True(t, ok)
	assert.Equal(t, uint64(9), id)
	_, ok = RetweetOrigin(untyped)
	assert.False(t, ok)
	id, ok = ReferencedOrigin(untyped)
	assert.True(t, ok)
	assert.Equal(t, uint64(99), id)
	_, ok = ReferencedOrigin(quote)
	assert.False(t, ok)
	id, ok = RetweetOrigin(legacy)
	assert.True(t, ok)
	assert.Equal(t, uint64(7), id)
}

func TestUser(t *testing.T) {
	raw := decode[RawUser](t, `{
		"id_str": "42",
		"username": "alice",
		"name": "  Alice\n\tA. ",
		"description": "Tom &amp; Jerry fan https://t.co/d",
		"url": "https://t.co/u",
		"location": "Earth",
		"entities": {
			"description": {"urls": [{"url": "https://t.co/d", "expanded_url": "https://blog.example"}]},
			"url": {"urls": [{"url": "https://t.co/u", "expanded_url": "https://alice.example"}]}
		},
		"profile_image_url": "https://pbs/img_normal.jpg",
		"public_metrics": {"followers_count": 10, "following_count": 20, "tweet_count": 30},
		"created_at": "2010-01-01T00:00:00Z",
		"ext_is_blue_verified": true,
		"protected": null
	}`)
	u := User(raw)
	assert.Equal(t, uint64(42), u.ID)
	assert.Equal(t, "alice", u.ScreenName)
	assert.Equal(t, "Alice A.", u.Name)
	assert.Equal(t, "Tom & Jerry fan https://blog.example", u.Description)
	assert.Equal(t, "https://alice.example", u.URL)
	assert.Equal(t, "https://pbs/img.jpg", u.ProfileImage)
	assert.Equal(t, 10, u.FollowersCount)
	assert.Equal(t, 20, u.FriendsCount)
	assert.Equal(t, 30, u.StatusesCount)
	assert.Equal(t, int64(1262304000), u.CreatedAt)
	assert.True(t, u.BlueVerified)
	assert.False(t, u.Protected)
}

func TestLegacyUserPrefersSecureImageAndScreenName(t *testing.T) {
	raw := decode[RawUser](t, `{"id": 1, "screen_name": "bob", "username": "ignored",
		"profile_image_url_https": "https://a/b_normal.png", "profile_image_url": "http://a/b_normal.png",
		"followers_count": 0, "public_metrics": {"followers_count": 99}}`)
	u := User(raw)
	assert.Equal(t, "bob", u.ScreenName)
	assert.Equal(t, "https://a/b.png", u.ProfileImage)
	assert.Equal(t, 0, u.FollowersCount)
}

func TestAdaptiveWalk(t *testing.T) {
	resp := decode[AdaptiveResponse](t, `{
		"globalObjects": {
			"tweets": {"11": {"id_str": "11", "full_text": "a", "user_id_str": "1"}, "12": {"id_str": "12", "full_text": "RT @x: b", "user_id_str": "1"}},
			"users": {"1": {"id_str": "1", "screen_name": "me"}}
		},
		"timeline": {"instructions": [
			{"addEntries": {"entries": [
				{"entryId": "sq-I-t-12", "content": {"item": {"content": {"tweet": {"id": "12"}}}}},
				{"entryId": "sq-I-t-11", "content": {"item": {"content": {"tweet": {"id": "11"}}}}},
				{"entryId": "sq-cursor-top", "content": {"operation": {"cursor": {"value": "top"}}}},
				{"entryId": "sq-cursor-bottom", "content": {"operation": {"cursor": {"value": "scroll:1"}}}}
			]}},
			{"replaceEntry": {"entryIdToReplace": "sq-cursor-bottom", "entry": {"content": {"operation": {"cursor": {"value": "scroll:2"}}}}}}
		]}
	}`)
	require.True(t, resp.HasTweets())
	ids, cursor := resp.Walk()
	assert.Equal(t, []uint64{12, 11}, ids)
	assert.Equal(t, "scroll:2", cursor)
	assert.Len(t, resp.Tweets(), 2)
	assert.Equal(t, "me", resp.Users()[0].ScreenName)

	reset := decode[AdaptiveResponse](t, `{"timeline": {"instructions": [
		{"addEntries": {"entries": [{"entryId": "sq-cursor-bottom", "content": {"operation": {"cursor": {"value": "c"}}}}]}},
		{"clearCache": {}}
	]}}`)
	_, cursor = reset.Walk()
	assert.Empty(t, cursor)
	assert.False(t, reset.HasTweets())
}

func TestSearchNext(t *testing.T) {
	resp := decode[SearchResponse](t, `{"statuses": [], "search_metadata": {"next_results": "?max_id=99&q=from%3Ame&count=100"}}`)
	next := resp.Next()
	require.NotNil(t, next)
	assert.Equal(t, "99", next.Get("max_id"))
	assert.Equal(t, "from:me", next.Get("q"))

	done := decode[SearchResponse](t, `{"statuses": [], "search_metadata": {}}`)
	assert.Nil(t, done.Next())
}

func TestTimestamp(t *testing.T) {
	assert.Equal(t, int64(0), Timestamp(""))
	assert.Equal(t, int64(0), Timestamp("yesterday"))
	assert.Equal(t, int64(1700000000), Timestamp("1700000000"))
}
