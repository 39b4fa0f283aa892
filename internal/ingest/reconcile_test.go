package ingest_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twarchive/internal/ingest"
	"twarchive/internal/model"
	"twarchive/internal/xclient"
	"twarchive/internal/xclient/xclienttest"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

const emptyAdaptive = `{"globalObjects":{"tweets":{},"users":{}},"timeline":{"instructions":[]}}`

func writeArchive(t *testing.T, records ...string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "data"), 0o755))
	items := make([]string, len(records))
	for i, r := range records {
		items[i] = `{"tweet": ` + r + `}`
	}
	body := "window.YTD.tweets.part0 = [" + strings.Join(items, ",\n") + "]"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data", "tweets.js"), []byte(body), 0o644))
	return dir
}

func newReconciler(t *testing.T, req *xclienttest.Requester, opts ingest.Options) *ingest.Reconciler {
	t.Helper()
	f := xclienttest.NewFetcher(t, req, xclienttest.NewClock(epoch), t.TempDir())
	return ingest.New(f, opts)
}

func TestRetweetResolvedAcrossBothLookups(t *testing.T) {
	dir := writeArchive(t,
		`{"id_str": "100", "full_text": "plain", "created_at": "Wed Oct 10 20:19:24 +0000 2018"}`,
		`{"id_str": "101", "full_text": "RT @alice hello", "created_at": "Wed Oct 10 20:20:24 +0000 2018"}`,
	)
	opts := ingest.Options{AccountID: 7, Query: "from:me", Workers: 2}
	req := xclienttest.NewRequester().
		On(xclient.EndpointAdaptiveSearch, xclient.AdaptiveSearchParams(opts.Query, ""), xclienttest.OK(emptyAdaptive)).
		On(xclient.EndpointTweets, xclient.TweetsLookupParams([]uint64{100}),
			xclienttest.OK(`{"errors": [{"value": "100", "detail": "not visible"}]}`)).
		On(xclient.EndpointTweets, xclient.RetweetMetaParams([]uint64{101}),
			xclienttest.OK(`{"data": [{"id": "101", "text": "RT @alice hello", "author_id": "7", "referenced_tweets": [{"id": "99"}]}]}`)).
		On(xclient.EndpointStatusesLookup, xclient.StatusesLookupParams([]uint64{99}),
			xclienttest.OK(`[{"id_str": "99", "full_text": "hello and more", "user": {"id_str": "5", "screen_name": "alice", "name": "Alice"}}]`)).
		On(xclient.EndpointTweets, xclient.TweetsLookupParams([]uint64{99}),
			xclienttest.OK(`{"data": [{"id": "99", "text": "hello and more", "author_id": "5", "conversation_id": "99"}]}`)).
		On(xclient.EndpointUsersLookup, xclient.UsersLookupParams([]uint64{7}),
			xclienttest.OK(`[{"id_str": "7", "screen_name": "me"}]`))

	st, err := newReconciler(t, req, opts).Run(context.Background(), ingest.Sources{Adaptive: true, ArchiveDir: dir})
	require.NoError(t, err)
	assert.Empty(t, st.Unresolved())

	rt := st.Timeline[101]
	require.NotNil(t, rt)
	require.NotNil(t, rt.RetweetedStatus)
	assert.Equal(t, uint64(99), rt.RetweetedStatus.ID)
	assert.Equal(t, "hello and more", rt.RetweetedStatus.Text)
	assert.Equal(t, uint64(5), rt.RetweetedStatus.UserID)
	require.NotNil(t, rt.RetweetedStatus.ConversationID)
	assert.Equal(t, uint64(99), *rt.RetweetedStatus.ConversationID)

	plain := st.Timeline[100]
	require.NotNil(t, plain)
	assert.Equal(t, "plain", plain.Text)
	assert.Equal(t, uint64(7), plain.UserID)
	assert.Nil(t, plain.RetweetedStatus)

	assert.Equal(t, "alice", st.Users[5].ScreenName)
	assert.Equal(t, "me", st.Users[7].ScreenName)
	assert.Equal(t, 1, req.CallCount(xclient.EndpointUsersLookup))
}

func TestSourcePriorityAndQuotes(t *testing.T) {
	opts := ingest.Options{Query: "from:bob", Workers: 1}
	imported := model.NewTimeline()
	imported.Set(&model.Tweet{ID: 200, UserID: 9, Text: "old text", RetweetCount: 1, Media: []model.Media{}})
	imported.SetUser(model.User{ID: 9, ScreenName: "bob"})

	page1 := `{"globalObjects": {
		"tweets": {
			"200": {"id_str": "200", "full_text": "new text", "user_id_str": "9"},
			"201": {"id_str": "201", "full_text": "look at this", "user_id_str": "9", "quoted_status_id_str": "200"}
		},
		"users": {"9": {"id_str": "9", "screen_name": "bob", "name": "Bob"}}},
		"timeline": {"instructions": [{"addEntries": {"entries": [
			{"entryId": "sq-I-t-201", "content": {"item": {"content": {"tweet": {"id": "201"}}}}},
			{"entryId": "sq-I-t-200", "content": {"item": {"content": {"tweet": {"id": "200"}}}}},
			{"entryId": "sq-cursor-bottom", "content": {"operation": {"cursor": {"value": "scroll:2"}}}}
		]}}]}}`
	search := `{"statuses": [
		{"id_str": "200", "full_text": "search text", "user": {"id_str": "9", "screen_name": "bob"}},
		{"id_str": "202", "full_text": "RT @carol: hi", "user": {"id_str": "9", "screen_name": "bob"},
		 "retweeted_status": {"id_str": "150", "full_text": "hi there in full", "user": {"id_str": "11", "screen_name": "carol"}}}
	], "search_metadata": {}}`

	req := xclienttest.NewRequester().
		On(xclient.EndpointAdaptiveSearch, xclient.AdaptiveSearchParams(opts.Query, ""), xclienttest.OK(page1)).
		On(xclient.EndpointAdaptiveSearch, xclient.AdaptiveSearchParams(opts.Query, "scroll:2"), xclienttest.OK(emptyAdaptive)).
		On(xclient.EndpointSearchTweets, xclient.SearchTweetsParams(opts.Query, 0), xclienttest.OK(search)).
		On(xclient.EndpointUsersLookup, xclient.UsersLookupParams([]uint64{11}),
			xclienttest.OK(`[{"id_str": "11", "screen_name": "carol"}]`))

	st, err := newReconciler(t, req, opts).Run(context.Background(), ingest.Sources{
		Import:    imported,
		Adaptive:  true,
		APISearch: true,
	})
	require.NoError(t, err)

	assert.Equal(t, []uint64{200, 201, 202}, st.IDs())
	assert.Equal(t, "new text", st.Timeline[200].Text)
	assert.Equal(t, 1, st.Timeline[200].RetweetCount)

	quote := st.Timeline[201]
	require.NotNil(t, quote.QuotedStatus)
	assert.True(t, quote.IsQuoteStatus)
	assert.Equal(t, uint64(200), quote.QuotedStatus.ID)
	assert.Equal(t, "new text", quote.QuotedStatus.Text)
	assert.NotSame(t, st.Timeline[200], quote.QuotedStatus)

	rt := st.Timeline[202]
	require.NotNil(t, rt.RetweetedStatus)
	assert.Equal(t, "hi there in full", rt.RetweetedStatus.Text)

	assert.Equal(t, 2, req.CallCount(xclient.EndpointAdaptiveSearch))
	assert.Equal(t, 1, req.CallCount(xclient.EndpointUsersLookup))
	assert.Equal(t, "carol", st.Users[11].ScreenName)
	assert.Equal(t, "bob", st.Users[9].ScreenName)
}

func TestArchiveBatchesAndFallback(t *testing.T) {
	var records []string
	for id := 1000; id < 1150; id++ {
		records = append(records, fmt.Sprintf(`{"id_str": "%d", "full_text": "tweet %d"}`, id, id))
	}
	dir := writeArchive(t, records...)
	req := xclienttest.NewRequester().
		OnPath(xclient.EndpointTweets, xclienttest.OK(`{"data": []}`)).
		OnPath(xclient.EndpointUsersLookup, xclienttest.OK(`[{"id_str": "7", "screen_name": "me"}]`))

	st, err := newReconciler(t, req, ingest.Options{AccountID: 7, Workers: 3}).
		Run(context.Background(), ingest.Sources{ArchiveDir: dir})
	require.NoError(t, err)
	assert.Len(t, st.Timeline, 150)
	assert.Equal(t, "tweet 1149", st.Timeline[1149].Text)
	assert.Equal(t, uint64(7), st.Timeline[1149].UserID)

	queries := req.Queries(xclient.EndpointTweets)
	require.Len(t, queries, 2)
	sizes := map[int]bool{}
	for _, q := range queries {
		sizes[len(strings.Split(q.Get("ids"), ","))] = true
	}
	assert.Equal(t, map[int]bool{100: true, 50: true}, sizes)
}

func TestMissingArchiveIsSkipped(t *testing.T) {
	req := xclienttest.NewRequester()
	st, err := newReconciler(t, req, ingest.Options{}).
		Run(context.Background(), ingest.Sources{ArchiveDir: t.TempDir()})
	require.NoError(t, err)
	assert.Empty(t, st.Timeline)
	assert.Empty(t, req.Calls())
}

func TestNonRetweetKeptAsPlainTweet(t *testing.T) {
	dir := writeArchive(t, `{"id_str": "300", "full_text": "RT @x is how we used to say it"}`)
	req := xclienttest.NewRequester().
		On(xclient.EndpointTweets, xclient.RetweetMetaParams([]uint64{300}),
			xclienttest.OK(`{"data": [{"id": "300", "text": "RT @x is how we used to say it", "author_id": "7"}]}`)).
		OnPath(xclient.EndpointUsersLookup, xclienttest.OK(`[]`))

	st, err := newReconciler(t, req, ingest.Options{AccountID: 7}).
		Run(context.Background(), ingest.Sources{ArchiveDir: dir})
	require.NoError(t, err)
	tw := st.Timeline[300]
	require.NotNil(t, tw)
	assert.Nil(t, tw.RetweetedStatusID)
	assert.Equal(t, 0, req.CallCount(xclient.EndpointStatusesLookup))
}

func TestCancelledRunStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := xclienttest.NewRequester()
	_, err := newReconciler(t, req, ingest.Options{Query: "q"}).Run(ctx, ingest.Sources{Adaptive: true})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, req.Calls())
}

func resolveAcrossTwoBatches(t *testing.T, slowBatch int) *ingest.State {
	t.Helper()
	imported := model.NewTimeline()
	imported.SetUser(model.User{ID: 7, ScreenName: "me"})
	var firstBatch []uint64
	for origin := uint64(1); origin <= 101; origin++ {
		imported.Set(&model.Tweet{ID: 1000 + origin, UserID: 7, Text: "RT @alice: hi", RetweetedStatusID: model.ID(origin), Media: []model.Media{}})
		if origin <= 100 {
			firstBatch = append(firstBatch, origin)
		}
	}
	replies := []xclienttest.Reply{
		xclienttest.OK(`[{"id_str": "1", "full_text": "one", "user": {"id_str": "5", "screen_name": "alice", "followers_count": 1}}]`),
		xclienttest.OK(`[{"id_str": "101", "full_text": "one hundred and one", "user": {"id_str": "5", "screen_name": "alice", "followers_count": 2}}]`),
	}
	replies[slowBatch] = xclienttest.Slow(replies[slowBatch], 50*time.Millisecond)
	req := xclienttest.NewRequester().
		On(xclient.EndpointStatusesLookup, xclient.StatusesLookupParams(firstBatch), replies[0]).
		On(xclient.EndpointStatusesLookup, xclient.StatusesLookupParams([]uint64{101}), replies[1]).
		OnPath(xclient.EndpointTweets, xclienttest.OK(`{"data": []}`)).
		OnPath(xclient.EndpointUsersLookup, xclienttest.OK(`[]`))

	st, err := newReconciler(t, req, ingest.Options{Workers: 2}).
		Run(context.Background(), ingest.Sources{Import: imported})
	require.NoError(t, err)
	require.Equal(t, 2, req.CallCount(xclient.EndpointStatusesLookup))
	return st
}

func TestOriginalAuthorsMergeInBatchOrder(t *testing.T) {
	for _, slow := range []int{0, 1} {
		st := resolveAcrossTwoBatches(t, slow)
		assert.Equal(t, 2, st.Users[5].FollowersCount, "slow batch %d", slow)
		require.NotNil(t, st.Timeline[1101].RetweetedStatus)
		assert.Equal(t, "one hundred and one", st.Timeline[1101].RetweetedStatus.Text)
	}
}

func TestArchiveFillsAdaptivePlaceholder(t *testing.T) {
	dir := writeArchive(t, `{"id_str": "500", "full_text": "only in the export"}`)
	opts := ingest.Options{AccountID: 7, Query: "from:me", Workers: 1}
	page := `{"globalObjects": {
		"tweets": {"501": {"id_str": "501", "full_text": "shipped", "user_id_str": "7"}},
		"users": {"7": {"id_str": "7", "screen_name": "me"}}},
		"timeline": {"instructions": [{"addEntries": {"entries": [
			{"entryId": "sq-I-t-501", "content": {"item": {"content": {"tweet": {"id": "501"}}}}},
			{"entryId": "sq-I-t-500", "content": {"item": {"content": {"tweet": {"id": "500"}}}}}
		]}}]}}`
	req := xclienttest.NewRequester().
		On(xclient.EndpointAdaptiveSearch, xclient.AdaptiveSearchParams(opts.Query, ""), xclienttest.OK(page)).
		On(xclient.EndpointTweets, xclient.TweetsLookupParams([]uint64{500}),
			xclienttest.OK(`{"data": [{"id": "500", "text": "looked up", "author_id": "7"}]}`)).
		OnPath(xclient.EndpointUsersLookup, xclienttest.OK(`[]`))

	st, err := newReconciler(t, req, opts).Run(context.Background(), ingest.Sources{Adaptive: true, ArchiveDir: dir})
	require.NoError(t, err)
	assert.Empty(t, st.Unresolved())
	require.NotNil(t, st.Timeline[500])
	assert.Equal(t, "looked up", st.Timeline[500].Text)
	assert.Equal(t, "shipped", st.Timeline[501].Text)
	assert.Equal(t, 1, req.CallCount(xclient.EndpointTweets))
}

func TestRetweetMetaWithoutIDIsIgnored(t *testing.T) {
	dir := writeArchive(t, `{"id_str": "300", "full_text": "RT @x hi"}`)
	req := xclienttest.NewRequester().
		On(xclient.EndpointTweets, xclient.RetweetMetaParams([]uint64{300}),
			xclienttest.OK(`{"data": [{"text": "RT @x hi", "referenced_tweets": [{"id": "99"}]}]}`)).
		OnPath(xclient.EndpointUsersLookup, xclienttest.OK(`[]`))

	var st *ingest.State
	require.NotPanics(t, func() {
		var err error
		st, err = newReconciler(t, req, ingest.Options{AccountID: 7}).
			Run(context.Background(), ingest.Sources{ArchiveDir: dir})
		require.NoError(t, err)
	})
	assert.Equal(t, []uint64{300}, st.Unresolved())
	assert.Equal(t, 0, req.CallCount(xclient.EndpointStatusesLookup))
}
