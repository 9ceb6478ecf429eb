package engagement

import (
	"encoding/json"
	"math"
	"strings"
)

// MaxRecentPosts is the number of upstream timeline items considered per profile
const MaxRecentPosts = 12

// ProfileRequest is a normalized username ready for dispatch
type ProfileRequest struct {
	Username string
}

// NewProfileRequest normalizes raw input by stripping surrounding spaces and
// '@' characters. ok is false when nothing is left.
func NewProfileRequest(raw string) (ProfileRequest, bool) {
	username := strings.Trim(strings.TrimSpace(raw), "@ ")
	if username == "" {
		return ProfileRequest{}, false
	}
	return ProfileRequest{Username: username}, true
}

// PostStat holds the counters of a single timeline post
type PostStat struct {
	LikeCount    int64
	CommentCount int64
	ViewCount    int64
	IsVideo      bool
}

// Score returns the engagement contributed by the post.
// Views only count for videos.
func (p PostStat) Score() int64 {
	score := p.LikeCount + p.CommentCount
	if p.IsVideo {
		score += p.ViewCount
	}
	return score
}

// ProfileSnapshot is the subset of profile data needed for scoring
type ProfileSnapshot struct {
	FollowerCount int64
	RecentPosts   []PostStat
}

// Result is the fixed-shape record emitted once per username.
// Success records serialize their error as null.
type Result struct {
	Username           string  `json:"username"`
	Followers          int64   `json:"followers"`
	PostsAnalyzed      int     `json:"posts_analyzed"`
	AvgEngagementScore int64   `json:"avg_engagement_score"`
	EngagementRatePct  float64 `json:"engagement_rate_pct"`
	Error              string  `json:"error"`
}

// OK reports whether the result is a success record
func (r Result) OK() bool {
	return r.Error == ""
}

// MarshalJSON writes Error as null when empty
func (r Result) MarshalJSON() ([]byte, error) {
	type record Result
	out := struct {
		record
		Error *string `json:"error"`
	}{record: record(r)}
	if r.Error != "" {
		out.Error = &r.Error
	}
	return json.Marshal(out)
}

// Failed builds an error record with zero-valued metrics
func Failed(username, message string) Result {
	return Result{Username: username, Error: message}
}

// Score computes the engagement record for a profile snapshot.
//
// The average per-post score is floored, and the rate is that floored
// average over the follower count as a percentage rounded to two decimals.
// At most MaxRecentPosts posts are considered, in the order given.
func Score(username string, snapshot ProfileSnapshot) Result {
	posts := snapshot.RecentPosts
	if len(posts) > MaxRecentPosts {
		posts = posts[:MaxRecentPosts]
	}

	followers := snapshot.FollowerCount
	if followers < 0 {
		followers = 0
	}

	var total int64
	for _, p := range posts {
		total += p.Score()
	}

	n := max(len(posts), 1)
	avg := int64(math.Floor(float64(total) / float64(n)))

	var rate float64
	if followers > 0 {
		rate = round2(float64(avg) / float64(followers) * 100)
	}

	return Result{
		Username:           username,
		Followers:          followers,
		PostsAnalyzed:      n,
		AvgEngagementScore: avg,
		EngagementRatePct:  rate,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
