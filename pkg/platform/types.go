// Package platform implements PlatformFetcher (spec.md §4.4, C2): fetching
// and normalizing third-party YouTube/Twitter content ahead of
// classification.
package platform

import "time"

// NormalizedVideo is a YouTube video record in the shape the classifier
// and reasoning stages consume.
type NormalizedVideo struct {
	VideoID         string    `json:"video_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	PublishedAt     time.Time `json:"published_at"`
	Views           int       `json:"views"`
	Likes           int       `json:"likes"`
	Comments        int       `json:"comments"`
	DurationSeconds int       `json:"duration_seconds"`
	Thumbnail       string    `json:"thumbnail"`
	URL             string    `json:"url"`
}

// NormalizedTweet is a Twitter/X post in the shape the classifier and
// reasoning stages consume.
type NormalizedTweet struct {
	TweetID          string `json:"tweet_id"`
	Text             string `json:"text"`
	LikeCount        int    `json:"likeCount"`
	RetweetCount     int    `json:"retweetCount"`
	ReplyCount       int    `json:"replyCount"`
	ViewCount        int    `json:"viewCount"`
	BookmarkCount    int    `json:"bookmarkCount"`
	ConversationID   string `json:"conversationId"`
	IsReply          bool   `json:"isReply"`
	AuthorFollowers  int    `json:"author_followers"`
}

// Warning describes a non-fatal fetch failure: the orchestrator decides
// whether the resulting empty/partial list is acceptable for the current
// stage (spec.md §4.4, "Failure model").
type Warning struct {
	Platform string `json:"platform"`
	Source   string `json:"source"` // channel URL or handle
	Message  string `json:"message"`
}
