package engagement

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProfileRequest(t *testing.T) {
	tests := []struct {
		raw    string
		want   string
		wantOK bool
	}{
		{"alice", "alice", true},
		{"@alice", "alice", true},
		{" bob ", "bob", true},
		{"@@ carol @", "carol", true},
		{"\tdave\n", "dave", true},
		{"", "", false},
		{"   ", "", false},
		{"@", "", false},
		{" @ ", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			req, ok := NewProfileRequest(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, req.Username)
		})
	}
}

func TestScoreWorkedExample(t *testing.T) {
	result := Score("alice", ProfileSnapshot{
		FollowerCount: 1000,
		RecentPosts: []PostStat{
			{LikeCount: 40, CommentCount: 10},
			{LikeCount: 120, CommentCount: 30},
		},
	})

	assert.True(t, result.OK())
	assert.Equal(t, "alice", result.Username)
	assert.Equal(t, int64(1000), result.Followers)
	assert.Equal(t, 2, result.PostsAnalyzed)
	assert.Equal(t, int64(100), result.AvgEngagementScore)
	assert.Equal(t, 10.00, result.EngagementRatePct)
}

func TestScoreVideoAsymmetry(t *testing.T) {
	video := PostStat{LikeCount: 10, CommentCount: 5, ViewCount: 1000, IsVideo: true}
	photo := video
	photo.IsVideo = false

	assert.Equal(t, int64(1015), video.Score())
	assert.Equal(t, int64(15), photo.Score(), "views on non-video posts never count")

	withVideo := Score("u", ProfileSnapshot{FollowerCount: 100, RecentPosts: []PostStat{video}})
	withPhoto := Score("u", ProfileSnapshot{FollowerCount: 100, RecentPosts: []PostStat{photo}})
	assert.Equal(t, int64(1015), withVideo.AvgEngagementScore)
	assert.Equal(t, int64(15), withPhoto.AvgEngagementScore)
}

func TestScoreZeroFollowers(t *testing.T) {
	result := Score("u", ProfileSnapshot{
		FollowerCount: 0,
		RecentPosts:   []PostStat{{LikeCount: 500}},
	})

	assert.Equal(t, int64(0), result.Followers)
	assert.Equal(t, int64(500), result.AvgEngagementScore)
	assert.Zero(t, result.EngagementRatePct)
}

func TestScoreZeroPosts(t *testing.T) {
	result := Score("u", ProfileSnapshot{FollowerCount: 50})

	assert.Equal(t, 1, result.PostsAnalyzed)
	assert.Equal(t, int64(0), result.AvgEngagementScore)
	assert.Zero(t, result.EngagementRatePct)
}

func TestScoreFloorsAverage(t *testing.T) {
	result := Score("u", ProfileSnapshot{
		FollowerCount: 3,
		RecentPosts:   []PostStat{{LikeCount: 1}, {LikeCount: 2}},
	})

	assert.Equal(t, int64(1), result.AvgEngagementScore)
	assert.Equal(t, 33.33, result.EngagementRatePct, "rate uses the floored average")
}

func TestScoreTruncatesToRecentWindow(t *testing.T) {
	posts := make([]PostStat, 0, 20)
	for i := 0; i < MaxRecentPosts; i++ {
		posts = append(posts, PostStat{LikeCount: 10})
	}
	for i := 0; i < 8; i++ {
		posts = append(posts, PostStat{LikeCount: 1_000_000})
	}

	result := Score("u", ProfileSnapshot{FollowerCount: 100, RecentPosts: posts})
	assert.Equal(t, MaxRecentPosts, result.PostsAnalyzed)
	assert.Equal(t, int64(10), result.AvgEngagementScore)
	assert.Equal(t, 10.0, result.EngagementRatePct)
}

func TestScoreInvariants(t *testing.T) {
	snapshots := []ProfileSnapshot{
		{},
		{FollowerCount: -5},
		{FollowerCount: 1, RecentPosts: []PostStat{{ViewCount: 7}}},
		{FollowerCount: 987654, RecentPosts: []PostStat{{LikeCount: 3, IsVideo: true, ViewCount: 9}, {CommentCount: 4}}},
	}

	for _, s := range snapshots {
		first := Score("u", s)
		second := Score("u", s)

		assert.Equal(t, first, second, "scoring is deterministic")
		assert.GreaterOrEqual(t, first.PostsAnalyzed, 1)
		assert.GreaterOrEqual(t, first.Followers, int64(0))
		assert.Empty(t, first.Error)
	}
}

func TestFailedHasUniformShape(t *testing.T) {
	result := Failed("bob", "profile inexistent/private")
	assert.False(t, result.OK())

	data, err := json.Marshal(result)
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &fields))
	for _, key := range []string{"username", "followers", "posts_analyzed", "avg_engagement_score", "engagement_rate_pct", "error"} {
		assert.Contains(t, fields, key)
	}
	assert.Equal(t, float64(0), fields["followers"])
}

func TestResultJSONErrorField(t *testing.T) {
	ok, err := json.Marshal(Result{Username: "alice", Followers: 1000, PostsAnalyzed: 2, AvgEngagementScore: 100, EngagementRatePct: 10})
	require.NoError(t, err)
	assert.JSONEq(t, `{"username":"alice","followers":1000,"posts_analyzed":2,"avg_engagement_score":100,"engagement_rate_pct":10,"error":null}`, string(ok))

	failed, err := json.Marshal(Failed("ghost", "profile inexistent/private"))
	require.NoError(t, err)
	assert.Contains(t, string(failed), `"error":"profile inexistent/private"`)

	var back Result
	require.NoError(t, json.Unmarshal(ok, &back))
	assert.True(t, back.OK())
}
