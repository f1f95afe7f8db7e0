package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intp(v int) *int { return &v }

func TestClassifyYouTube_ScenarioFromSpec(t *testing.T) {
	// views: [1000, 500, 200, 100, 50, 10, 0, null]
	videos := []Video{
		{VideoID: "a", Views: intp(1000)},
		{VideoID: "b", Views: intp(500)},
		{VideoID: "c", Views: intp(200)},
		{VideoID: "d", Views: intp(100)},
		{VideoID: "e", Views: intp(50)},
		{VideoID: "f", Views: intp(10)},
		{VideoID: "g", Views: intp(0)},
		{VideoID: "h", Views: nil},
	}

	high, low := ClassifyYouTube(videos)

	require.Len(t, high, 2)
	assert.Equal(t, "a", high[0].VideoID)
	assert.Equal(t, "b", high[1].VideoID)

	require.Len(t, low, 4)
	ids := []string{low[0].VideoID, low[1].VideoID, low[2].VideoID, low[3].VideoID}
	assert.Equal(t, []string{"e", "f", "g", "h"}, ids)
}

func TestClassifyYouTube_BelowFloorReturnsInputAsHigh(t *testing.T) {
	videos := []Video{{VideoID: "only", Views: intp(10)}}
	high, low := ClassifyYouTube(videos)
	assert.Equal(t, videos, high)
	assert.Empty(t, low)
}

func TestClassifyYouTube_InvariantsHold(t *testing.T) {
	videos := []Video{
		{VideoID: "a", Views: intp(900)},
		{VideoID: "b", Views: intp(800)},
		{VideoID: "c", Views: intp(700)},
		{VideoID: "d", Views: intp(600)},
		{VideoID: "e", Views: intp(500)},
		{VideoID: "f", Views: intp(-5)},
	}
	high, low := ClassifyYouTube(videos)
	assert.LessOrEqual(t, len(high), len(videos))
	assert.LessOrEqual(t, len(low), len(videos))

	minHigh := *high[len(high)-1].Views
	for _, v := range low {
		if v.Views != nil && *v.Views > 0 {
			assert.GreaterOrEqual(t, minHigh, *v.Views)
		}
	}
}

func TestClassifyTwitter_BelowFloorNotOK(t *testing.T) {
	tweets := []Tweet{
		{TweetID: "1", Likes: 10, Views: 100},
		{TweetID: "2", Likes: 5, Views: 50},
		{TweetID: "3", Likes: 1, Views: 10},
	}
	high, low, ok := ClassifyTwitter(tweets)
	assert.False(t, ok)
	assert.Nil(t, high)
	assert.Nil(t, low)
}

func TestClassifyTwitter_ScoresRankCorrectly(t *testing.T) {
	tweets := []Tweet{
		{TweetID: "viral", Likes: 1000, Retweets: 500, Replies: 100, Bookmarks: 50, Views: 10000},
		{TweetID: "dud1", Likes: 1, Views: 1000},
		{TweetID: "dud2", Likes: 2, Views: 1000},
		{TweetID: "ok", Likes: 50, Retweets: 10, Views: 500},
	}
	high, low, ok := ClassifyTwitter(tweets)
	require.True(t, ok)
	require.NotEmpty(t, high)
	assert.Equal(t, "viral", high[0].TweetID)
	require.NotEmpty(t, low)
}

func TestEngagementScore_ViewsFloorsAtOne(t *testing.T) {
	score := engagementScore(Tweet{Likes: 1, Views: 0})
	assert.Equal(t, 1.0, score)
}
