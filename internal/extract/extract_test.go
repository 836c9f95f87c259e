package extract

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justmadeid/social-services/internal/logging"
	"github.com/justmadeid/social-services/internal/models"
)

var parser = New(logging.Discard())

func fixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return data
}

func TestSearchUsers(t *testing.T) {
	got, err := parser.SearchUsers(fixture(t, "search_timeline.json"), 0)
	require.NoError(t, err)
	require.Len(t, got, 2, "unavailable user must be skipped, cursors dropped")

	want := models.UserRecord{
		UserID:     "1001",
		Name:       "Alice A",
		ScreenName: "alice",
		Bio:        "hello",
		Location:   "Jakarta",
		Followers:  1500,
		Following:  300,
		Tweets:     4200,
		Favorites:  99,
		Verified:   true,
		Avatar:     "https://pbs.twimg.com/profile_images/1/a.jpg",
		Created:    "Tue Mar 21 20:50:14 +0000 2006",
	}
	if diff := cmp.Diff(want, got[0]); diff != "" {
		t.Errorf("first user mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, "1002", got[1].UserID)
	assert.Equal(t, "Alicia", got[1].Name, "legacy name is the fallback")
	assert.Equal(t, 12, got[1].Followers, "numeric strings decode")
	assert.True(t, got[1].Private)
	assert.Equal(t, "https://pbs.twimg.com/profile_images/2/b.jpg", got[1].Avatar)
}

func TestSearchUsers_Limit(t *testing.T) {
	got, err := parser.SearchUsers(fixture(t, "search_timeline.json"), 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1001", got[0].UserID)
}

func TestSearchUsers_FallsBackToSecondInstruction(t *testing.T) {
	payload := []byte(`{"data":{"search_by_raw_query":{"search_timeline":{"timeline":{"instructions":[
		{"type":"TimelineClearCache"},
		{"type":"TimelineReplaceEntries","entries":[
			{"entryId":"user-1","content":{"itemContent":{"user_results":{"result":{"rest_id":"1"}}}}}
		]}
	]}}}}}`)

	got, err := parser.SearchUsers(payload, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].UserID)
}

func TestSearchUsers_InvalidPayload(t *testing.T) {
	_, err := parser.SearchUsers([]byte("<html>"), 5)
	assert.Error(t, err)
}

func TestFollowGraph(t *testing.T) {
	got, err := parser.FollowGraph(fixture(t, "following.json"), 20)
	require.NoError(t, err)
	require.Len(t, got, 2, "malformed item content must be skipped")

	assert.Equal(t, "2001", got[0].UserID)
	assert.Equal(t, "Bob", got[0].Name)
	assert.Equal(t, "bob", got[0].ScreenName)
	assert.Equal(t, 10, got[0].Followers)
	assert.Equal(t, 20, got[0].Following)
	assert.Equal(t, 30, got[0].Tweets)
	assert.Equal(t, "Wed Oct 10 20:19:24 +0000 2018", got[0].Created)
	assert.Equal(t, "2003", got[1].UserID)
}

func TestFollowGraph_OneGoodOneMalformed(t *testing.T) {
	payload := []byte(`{"data":{"user":{"result":{"timeline":{"timeline":{"instructions":[
		{"type":"TimelineAddEntries","entries":[
			{"entryId":"user-1","content":{"itemContent":{"user_results":{"result":{"rest_id":"1","legacy":{"screen_name":"ok"}}}}}},
			{"entryId":"user-2","content":{"itemContent":{"user_results":{"result":{"legacy":{"screen_name":"no-id"}}}}}}
		]}
	]}}}}}}`)

	got, err := parser.FollowGraph(payload, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ok", got[0].ScreenName)
}

func TestFollowGraph_ShapeShiftedOptionalFields(t *testing.T) {
	payload := []byte(`{"data":{"user":{"result":{"timeline":{"timeline":{"instructions":[
		{"type":"TimelineAddEntries","entries":[
			{"entryId":"user-1","content":{"itemContent":{"user_results":{"result":{"rest_id":"1","legacy":{"screen_name":"ok","verified":true}}}}}},
			{"entryId":"user-2","content":{"itemContent":{"user_results":{"result":{"rest_id":"2","legacy":{"screen_name":"odd","verified":"yes","followers_count":7,"location":{"city":"x"}}}}}}},
			{"entryId":"user-3","content":{"itemContent":{"user_results":{"result":{"rest_id":3,"core":"gone","legacy":{"screen_name":"numeric"}}}}}},
			{"entryId":"cursor-top-1","content":{"entryType":"TimelineTimelineCursor"}},
			{"entryId":"cursor-bottom-1","content":{"entryType":"TimelineTimelineCursor"}}
		]}
	]}}}}}}`)

	got, err := parser.FollowGraph(payload, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "2", got[1].UserID)
	assert.Equal(t, "odd", got[1].ScreenName, "well-typed siblings still decode")
	assert.False(t, got[1].Verified)
	assert.Equal(t, 7, got[1].Followers)
	assert.Empty(t, got[1].Location)

	assert.Equal(t, "3", got[2].UserID, "numeric ids are kept")
	assert.Equal(t, "numeric", got[2].ScreenName)
}

func TestTweets_ShapeShiftedOptionalFields(t *testing.T) {
	payload := []byte(`{"data":{"user":{"result":{"timeline":{"timeline":{"instructions":[
		{"type":"TimelineAddEntries","entries":[
			{"entryId":"tweet-1","content":{"itemContent":{"tweet_results":{"result":{
				"views":[],
				"legacy":{"id_str":"1","full_text":"hi #go","favorite_count":3,"entities":{"media":{"type":"photo"}}}
			}}}}}
		]}
	]}}}}}}`)

	got, err := parser.Tweets(payload, "dana")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, 3, got[0].Likes)
	assert.Equal(t, 0, got[0].Views)
	assert.Empty(t, got[0].MediaURL)
	assert.Equal(t, []string{"go"}, got[0].Hashtags)
}

func TestTweets(t *testing.T) {
	got, err := parser.Tweets(fixture(t, "user_tweets_1.json"), "dana")
	require.NoError(t, err)
	require.Len(t, got, 2, "conversation and tombstone entries must be skipped")

	first := got[0]
	assert.Equal(t, "3001", first.ID)
	assert.Equal(t, "42", first.UserID)
	assert.Equal(t, "2018-10-10T20:19:24+00:00", first.Date)
	assert.Equal(t, "dana", first.ScreenName)
	assert.Equal(t, "Dana", first.Name)
	assert.Equal(t, 100, first.Views)
	assert.Equal(t, 50, first.Likes)
	assert.Equal(t, 20, first.Retweets)
	assert.Equal(t, 10, first.Replies)
	assert.Equal(t, 20, first.Quotes)
	assert.InDelta(t, 100.0, first.Engagement, 1e-9)
	assert.Equal(t, []string{"golang", "go", "golang"}, first.Hashtags)
	assert.Equal(t, []string{"alice"}, first.Mentions)
	assert.Equal(t, "https://pbs.twimg.com/media/p.jpg", first.MediaURL)
	assert.Equal(t, "https://twitter.com/dana/status/3001", first.Link)
	assert.Contains(t, first.Source, "Twitter Web App")

	second := got[1]
	assert.Equal(t, "3002", second.ID, "visibility wrapper is unwrapped")
	assert.Equal(t, "not a date", second.Date, "unparseable dates pass through")
	assert.Equal(t, "https://video.twimg.com/v.m3u8", second.MediaURL)
	assert.Equal(t, "dana", second.ScreenName)
	assert.InDelta(t, 100.0, second.Engagement, 1e-9, "zero followers divides by one")
	assert.Equal(t, []string{}, second.Hashtags)
}

func TestTimeline_DedupesAcrossPayloads(t *testing.T) {
	payloads := [][]byte{
		fixture(t, "user_tweets_1.json"),
		[]byte("garbage"),
		fixture(t, "user_tweets_2.json"),
	}

	got := parser.Timeline(payloads, "dana")
	ids := make([]string, 0, len(got))
	for _, tw := range got {
		ids = append(ids, tw.ID)
	}
	assert.Equal(t, []string{"3001", "3002", "3004"}, ids)
	assert.Equal(t, "video time @bob", got[1].Text, "first occurrence wins")
}

func TestDropCursors(t *testing.T) {
	assert.Equal(t, []int{1}, DropCursors([]int{1, 2, 3}))
	assert.Equal(t, []int{1, 2}, DropCursors([]int{1, 2}))
	assert.Equal(t, []int{1}, DropCursors([]int{1}))
	assert.Empty(t, DropCursors([]int{}))
}

func TestParseTimestamp(t *testing.T) {
	assert.Equal(t, "2018-10-10T20:19:24+00:00", ParseTimestamp("Wed Oct 10 20:19:24 +0000 2018"))
	assert.Equal(t, "2020-01-02T03:04:05+07:00", ParseTimestamp("Thu Jan 02 03:04:05 +0700 2020"))
	assert.Equal(t, "yesterday", ParseTimestamp("yesterday"))
	assert.Equal(t, "", ParseTimestamp(""))
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"pemilu2024", "café"}, Hashtags("Vote #pemilu2024 at #café!"))
	assert.Equal(t, []string{"jokowi", "a_b"}, Mentions("cc @jokowi and @a_b."))
	assert.Equal(t, []string{}, Hashtags("nothing here # alone"))
}

func TestEngagement(t *testing.T) {
	assert.InDelta(t, 50.0, Engagement(10, 20, 5, 10, 5, 100), 1e-9)
	assert.InDelta(t, 300.0, Engagement(1, 1, 1, 0, 0, 0), 1e-9)
	assert.InDelta(t, 300.0, Engagement(1, 1, 1, 0, 0, -5), 1e-9)
}

func TestPrimaryMedia(t *testing.T) {
	video := mediaEntity{Type: "video"}
	video.VideoInfo.Variants = append(video.VideoInfo.Variants, struct {
		URL string `json:"url"`
	}{URL: "v0"})

	assert.Equal(t, "v0", primaryMedia(entities{Media: []mediaEntity{video}}))
	assert.Equal(t, "p", primaryMedia(entities{Media: []mediaEntity{{Type: "photo", MediaURLHTTPS: "p"}}}))
	assert.Equal(t, "", primaryMedia(entities{Media: []mediaEntity{{Type: "animated_gif", MediaURLHTTPS: "g"}}}))
	assert.Equal(t, "", primaryMedia(entities{}, entities{}))
	assert.Equal(t, "p", primaryMedia(entities{}, entities{Media: []mediaEntity{{Type: "photo", MediaURLHTTPS: "p"}}}))
}
