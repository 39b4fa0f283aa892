package xclient

import (
	"net/url"
	"strconv"
	"strings"
)

const (
	EndpointAdaptiveSearch    = "/2/search/adaptive.json"
	EndpointTweets            = "/2/tweets"
	EndpointStatusesLookup    = "/1.1/statuses/lookup.json"
	EndpointSearchTweets      = "/1.1/search/tweets.json"
	EndpointUsersLookup       = "/1.1/users/lookup.json"
	EndpointVerifyCredentials = "/1.1/account/verify_credentials.json"
	EndpointFollowersIDs      = "/1.1/followers/ids.json"
	EndpointFriendsIDs        = "/1.1/friends/ids.json"
	EndpointListsOwnerships   = "/1.1/lists/ownerships.json"
	EndpointListsSubscription = "/1.1/lists/subscriptions.json"
	EndpointListsMemberships  = "/1.1/lists/memberships.json"
	EndpointListsMembers      = "/1.1/lists/members.json"
)

// LookupBatch is the id limit of every lookup endpoint.
const LookupBatch = 100

const (
	v2Expansions  = "attachments.poll_ids,attachments.media_keys,author_id,entities.mentions.username,geo.place_id,in_reply_to_user_id,referenced_tweets.id,referenced_tweets.id.author_id"
	v2MediaFields = "duration_ms,height,media_key,preview_image_url,type,url,width,public_metrics,alt_text,variants"
	v2PlaceFields = "contained_within,country,country_code,full_name,geo,id,name,place_type"
	v2PollFields  = "duration_minutes,end_datetime,id,options,voting_status"
	v2TweetFields = "attachments,author_id,conversation_id,created_at,entities,geo,id,in_reply_to_user_id,lang,public_metrics,possibly_sensitive,referenced_tweets,reply_settings,source,text,withheld"
	v2UserFields  = "created_at,description,entities,id,location,name,pinned_tweet_id,profile_image_url,protected,public_metrics,url,username,verified,withheld"
	adaptiveExt   = "mediaStats,highlightedLabel,hasNftAvatar,voiceInfo,enrichments,superFollowMetadata,unmentionInfo,editControl,collab_control,vibe"
)

// JoinIDs renders ids as the comma list lookup endpoints take.
func JoinIDs(ids []uint64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(id, 10)
	}
	return strings.Join(parts, ",")
}

// AdaptiveSearchParams mirrors the web client's query. An empty cursor is omitted.
func AdaptiveSearchParams(query, cursor string) url.Values {
	v := url.Values{}
	for _, k := range []string{
		"include_profile_interstitial_type", "include_blocking", "include_blocked_by",
		"include_followed_by", "include_want_retweets", "include_mute_edge", "include_can_dm",
		"include_can_media_tag", "include_ext_has_nft_avatar", "include_ext_is_blue_verified",
		"skip_status", "include_cards", "include_reply_count", "pc", "spelling_corrections",
	} {
		v.Set(k, "1")
	}
	for _, k := range []string{
		"include_ext_alt_text", "include_quote_count", "include_ext_collab_control",
		"include_entities", "include_user_entities", "include_ext_media_availability",
		"include_ext_sensitive_media_warning", "include_ext_trusted_friends_metadata",
		"send_error_codes", "simple_quoted_tweet", "include_ext_edit_control",
	} {
		v.Set(k, "true")
	}
	v.Set("include_ext_limited_action_results", "false")
	v.Set("include_ext_media_color", "false")
	v.Set("cards_platform", "Web-12")
	v.Set("tweet_mode", "extended")
	v.Set("tweet_search_mode", "live")
	v.Set("query_source", "typed_query")
	v.Set("count", "100")
	v.Set("ext", adaptiveExt)
	v.Set("q", query)
	if cursor != "" {
		v.Set("cursor", cursor)
	}
	return v
}

// TweetsLookupParams asks the versioned endpoint for every field it has.
func TweetsLookupParams(ids []uint64) url.Values {
	return url.Values{
		"ids":          {JoinIDs(ids)},
		"expansions":   {v2Expansions},
		"media.fields": {v2MediaFields},
		"place.fields": {v2PlaceFields},
		"poll.fields":  {v2PollFields},
		"tweet.fields": {v2TweetFields},
		"user.fields":  {v2UserFields},
	}
}

// RetweetMetaParams asks only for what identifies a retweet's origin.
func RetweetMetaParams(ids []uint64) url.Values {
	return url.Values{
		"ids":          {JoinIDs(ids)},
		"tweet.fields": {"author_id,referenced_tweets,conversation_id,created_at"},
	}
}

func StatusesLookupParams(ids []uint64) url.Values {
	return url.Values{
		"id":                   {JoinIDs(ids)},
		"trim_user":            {"false"},
		"map":                  {"false"},
		"include_ext_alt_text": {"true"},
		"skip_status":          {"true"},
		"include_entities":     {"true"},
		"tweet_mode":           {"extended"},
	}
}

func SearchTweetsParams(query string, sinceID uint64) url.Values {
	v := url.Values{
		"q":                {query},
		"count":            {"100"},
		"include_entities": {"false"},
		"result_type":      {"mixed"},
		"tweet_mode":       {"extended"},
	}
	if sinceID > 0 {
		v.Set("since_id", strconv.FormatUint(sinceID, 10))
	}
	return v
}

func UsersLookupParams(ids []uint64) url.Values {
	return url.Values{
		"user_id":          {JoinIDs(ids)},
		"skip_status":      {"true"},
		"include_entities": {"false"},
	}
}

func VerifyCredentialsParams() url.Values {
	return url.Values{"include_entities": {"false"}, "skip_status": {"true"}}
}

// GraphIDsParams pages followers/ids and friends/ids.
func GraphIDsParams(screenName, cursor string) url.Values {
	return url.Values{
		"screen_name":   {screenName},
		"cursor":        {cursor},
		"stringify_ids": {"false"},
		"count":         {"5000"},
	}
}

// ListsParams pages ownerships, subscriptions and memberships.
func ListsParams(screenName, cursor string) url.Values {
	return url.Values{
		"screen_name":      {screenName},
		"include_entities": {"false"},
		"skip_status":      {"true"},
		"count":            {"500"},
		"cursor":           {cursor},
	}
}

func ListMembersParams(listID uint64, cursor string) url.Values {
	return url.Values{
		"list_id":          {strconv.FormatUint(listID, 10)},
		"include_entities": {"false"},
		"skip_status":      {"true"},
		"count":            {"100"},
		"cursor":           {cursor},
	}
}
