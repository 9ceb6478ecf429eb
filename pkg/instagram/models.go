package instagram

import (
	"bytes"
	"encoding/json"

	"igengage/pkg/engagement"
)

// ProfileResponse represents the top-level web_profile_info response
type ProfileResponse struct {
	Data   Data   `json:"data"`
	Status string `json:"status"`
}

// Data wraps the user payload. User stays raw so that a null or empty
// object can be told apart from a real profile.
type Data struct {
	User json.RawMessage `json:"user"`
}

// User is the part of a profile needed for engagement scoring
type User struct {
	Username                 string        `json:"username"`
	EdgeFollowedBy           Count         `json:"edge_followed_by"`
	EdgeOwnerToTimelineMedia TimelineMedia `json:"edge_owner_to_timeline_media"`
}

// Count is Instagram's {"count": n} wrapper
type Count struct {
	Count int64 `json:"count"`
}

// TimelineMedia contains the user's most recent posts
type TimelineMedia struct {
	Count int64  `json:"count"`
	Edges []Edge `json:"edges"`
}

// Edge wraps a single media node
type Edge struct {
	Node Node `json:"node"`
}

// Node holds the counters of a single post
type Node struct {
	IsVideo            bool  `json:"is_video"`
	VideoViewCount     int64 `json:"video_view_count"`
	EdgeLikedBy        Count `json:"edge_liked_by"`
	EdgeMediaToComment Count `json:"edge_media_to_comment"`
}

// hasUser reports whether the payload carries a non-empty user object
func (d Data) hasUser() bool {
	raw := bytes.TrimSpace(d.User)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		// not an object; let decoding report the shape error
		return true
	}
	return len(fields) > 0
}

// Snapshot converts the user payload into a scoring snapshot. Only the first
// engagement.MaxRecentPosts edges are kept, in upstream order.
func (u *User) Snapshot() engagement.ProfileSnapshot {
	edges := u.EdgeOwnerToTimelineMedia.Edges
	if len(edges) > engagement.MaxRecentPosts {
		edges = edges[:engagement.MaxRecentPosts]
	}

	posts := make([]engagement.PostStat, 0, len(edges))
	for _, e := range edges {
		posts = append(posts, engagement.PostStat{
			LikeCount:    e.Node.EdgeLikedBy.Count,
			CommentCount: e.Node.EdgeMediaToComment.Count,
			ViewCount:    e.Node.VideoViewCount,
			IsVideo:      e.Node.IsVideo,
		})
	}

	return engagement.ProfileSnapshot{
		FollowerCount: u.EdgeFollowedBy.Count,
		RecentPosts:   posts,
	}
}
