package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTweetCount  = 20
	twitterSafetyPages = 10
)

// TwitterFetcher fetches and normalizes recent tweets for a handle.
type TwitterFetcher struct {
	httpClient *http.Client
	bearer     string
	baseURL    string
	logger     *slog.Logger
}

// NewTwitterFetcher builds a fetcher against the real X API v2.
func NewTwitterFetcher(bearerToken string, logger *slog.Logger) *TwitterFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &TwitterFetcher{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		bearer:     bearerToken,
		baseURL:    "https://api.twitter.com/2",
		logger:     logger,
	}
}

// WithBaseURL overrides the API base URL (used by tests against an httptest server).
func (f *TwitterFetcher) WithBaseURL(u string) *TwitterFetcher {
	f.baseURL = u
	return f
}

// FetchRecentTweets fetches up to n tweets (default defaultTweetCount) for
// handle, paginating by cursor until the cap or no-more-pages, bounded by
// a safety page limit (spec.md §4.4). Any HTTP failure returns an empty
// list with a structured warning.
func (f *TwitterFetcher) FetchRecentTweets(ctx context.Context, handle string, n int) ([]NormalizedTweet, *Warning) {
	if n <= 0 {
		n = defaultTweetCount
	}

	userID, err := f.resolveUserID(ctx, handle)
	if err != nil {
		return nil, &Warning{Platform: "Twitter", Source: handle, Message: err.Error()}
	}

	var tweets []NormalizedTweet
	paginationToken := ""
	for page := 0; page < twitterSafetyPages && len(tweets) < n; page++ {
		batch, nextToken, err := f.fetchTweetsPage(ctx, userID, paginationToken)
		if err != nil {
			if len(tweets) > 0 {
				break // partial data is acceptable; the orchestrator decides
			}
			return nil, &Warning{Platform: "Twitter", Source: handle, Message: err.Error()}
		}
		tweets = append(tweets, batch...)
		if nextToken == "" {
			break
		}
		paginationToken = nextToken
	}

	if len(tweets) > n {
		tweets = tweets[:n]
	}
	return tweets, nil
}

func (f *TwitterFetcher) resolveUserID(ctx context.Context, handle string) (string, error) {
	var out struct {
		Data struct {
			ID              string `json:"id"`
			PublicMetrics   struct {
				FollowersCount int `json:"followers_count"`
			} `json:"public_metrics"`
		} `json:"data"`
	}
	h := strings.TrimPrefix(handle, "@")
	q := url.Values{"user.fields": {"public_metrics"}}
	if err := f.getJSON(ctx, "/users/by/username/"+h, q, &out); err != nil {
		return "", err
	}
	if out.Data.ID == "" {
		return "", fmt.Errorf("no twitter user found for handle %q", handle)
	}
	return out.Data.ID, nil
}

func (f *TwitterFetcher) fetchTweetsPage(ctx context.Context, userID, paginationToken string) ([]NormalizedTweet, string, error) {
	var out struct {
		Data []struct {
			ID                 string `json:"id"`
			Text               string `json:"text"`
			ConversationID     string `json:"conversation_id"`
			InReplyToUserID    string `json:"in_reply_to_user_id"`
			PublicMetrics      struct {
				LikeCount     int `json:"like_count"`
				RetweetCount  int `json:"retweet_count"`
				ReplyCount    int `json:"reply_count"`
				ImpressionCnt int `json:"impression_count"`
				BookmarkCount int `json:"bookmark_count"`
			} `json:"public_metrics"`
		} `json:"data"`
		Meta struct {
			NextToken string `json:"next_token"`
		} `json:"meta"`
	}

	q := url.Values{
		"tweet.fields": {"public_metrics,conversation_id,in_reply_to_user_id"},
		"max_results":  {"100"},
	}
	if paginationToken != "" {
		q.Set("pagination_token", paginationToken)
	}
	if err := f.getJSON(ctx, "/users/"+userID+"/tweets", q, &out); err != nil {
		return nil, "", err
	}

	tweets := make([]NormalizedTweet, 0, len(out.Data))
	for _, d := range out.Data {
		tweets = append(tweets, NormalizedTweet{
			TweetID:        d.ID,
			Text:           d.Text,
			LikeCount:      d.PublicMetrics.LikeCount,
			RetweetCount:   d.PublicMetrics.RetweetCount,
			ReplyCount:     d.PublicMetrics.ReplyCount,
			ViewCount:      d.PublicMetrics.ImpressionCnt,
			BookmarkCount:  d.PublicMetrics.BookmarkCount,
			ConversationID: d.ConversationID,
			IsReply:        d.InReplyToUserID != "",
		})
	}
	return tweets, out.Meta.NextToken, nil
}

func (f *TwitterFetcher) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+f.bearer)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("twitter api request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("twitter api returned %d: %s", resp.StatusCode, string(body))
	}
	return json.Unmarshal(body, out)
}
