package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"time"
)

const (
	defaultYouTubeVideoCount = 8
	maxYouTubeVideosPerCall  = 50
	descriptionTruncateLen   = 800
)

var (
	channelIDPathRe = regexp.MustCompile(`youtube\.com/channel/(UC[\w-]+)`)
	handlePathRe    = regexp.MustCompile(`youtube\.com/@([\w.-]+)`)
	legacyCPathRe   = regexp.MustCompile(`youtube\.com/c/([\w.-]+)`)
	legacyUserRe    = regexp.MustCompile(`youtube\.com/user/([\w.-]+)`)
)

// YouTubeFetcher fetches and normalizes videos for a channel URL.
type YouTubeFetcher struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string // override for tests
	logger     *slog.Logger
}

// NewYouTubeFetcher builds a fetcher against the real YouTube Data API v3.
func NewYouTubeFetcher(apiKey string, logger *slog.Logger) *YouTubeFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &YouTubeFetcher{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiKey:     apiKey,
		baseURL:    "https://www.googleapis.com/youtube/v3",
		logger:     logger,
	}
}

// WithBaseURL overrides the API base URL (used by tests against an httptest server).
func (f *YouTubeFetcher) WithBaseURL(u string) *YouTubeFetcher {
	f.baseURL = u
	return f
}

// ResolveChannelID turns a channel URL into a canonical channel ID,
// matching the four URL shapes spec.md §4.4 names.
func (f *YouTubeFetcher) ResolveChannelID(ctx context.Context, channelURL string) (string, error) {
	if m := channelIDPathRe.FindStringSubmatch(channelURL); m != nil {
		return m[1], nil
	}
	var handle string
	switch {
	case handlePathRe.MatchString(channelURL):
		handle = "@" + handlePathRe.FindStringSubmatch(channelURL)[1]
	case legacyCPathRe.MatchString(channelURL):
		handle = legacyCPathRe.FindStringSubmatch(channelURL)[1]
	case legacyUserRe.MatchString(channelURL):
		handle = legacyUserRe.FindStringSubmatch(channelURL)[1]
	default:
		return "", fmt.Errorf("unrecognized YouTube channel URL shape: %s", channelURL)
	}

	var out struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
	}
	q := url.Values{"part": {"id"}, "forHandle": {handle}, "key": {f.apiKey}}
	if err := f.getJSON(ctx, "/channels", q, &out); err != nil {
		return "", err
	}
	if len(out.Items) == 0 {
		return "", fmt.Errorf("no channel found for %s", channelURL)
	}
	return out.Items[0].ID, nil
}

// FetchRecentVideos fetches the last n video IDs for channelID (n default
// defaultYouTubeVideoCount, capped at maxYouTubeVideosPerCall) and batches
// the detail lookups. Any HTTP failure returns an empty list with a
// structured warning rather than an error, per spec.md §4.4.
func (f *YouTubeFetcher) FetchRecentVideos(ctx context.Context, channelURL string, n int) ([]NormalizedVideo, *Warning) {
	if n <= 0 {
		n = defaultYouTubeVideoCount
	}
	if n > maxYouTubeVideosPerCall {
		n = maxYouTubeVideosPerCall
	}

	channelID, err := f.ResolveChannelID(ctx, channelURL)
	if err != nil {
		return nil, &Warning{Platform: "YouTube", Source: channelURL, Message: err.Error()}
	}

	var searchOut struct {
		Items []struct {
			ID struct {
				VideoID string `json:"videoId"`
			} `json:"id"`
		} `json:"items"`
	}
	q := url.Values{
		"part":       {"id"},
		"channelId":  {channelID},
		"order":      {"date"},
		"maxResults": {fmt.Sprintf("%d", n)},
		"type":       {"video"},
		"key":        {f.apiKey},
	}
	if err := f.getJSON(ctx, "/search", q, &searchOut); err != nil {
		return nil, &Warning{Platform: "YouTube", Source: channelURL, Message: err.Error()}
	}

	ids := make([]string, 0, len(searchOut.Items))
	for _, item := range searchOut.Items {
		if item.ID.VideoID != "" {
			ids = append(ids, item.ID.VideoID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	videos, err := f.fetchVideoDetails(ctx, ids)
	if err != nil {
		return nil, &Warning{Platform: "YouTube", Source: channelURL, Message: err.Error()}
	}
	return videos, nil
}

func (f *YouTubeFetcher) fetchVideoDetails(ctx context.Context, ids []string) ([]NormalizedVideo, error) {
	var videos []NormalizedVideo
	for start := 0; start < len(ids); start += maxYouTubeVideosPerCall {
		end := start + maxYouTubeVideosPerCall
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		var out struct {
			Items []struct {
				ID      string `json:"id"`
				Snippet struct {
					Title       string    `json:"title"`
					Description string    `json:"description"`
					PublishedAt time.Time `json:"publishedAt"`
					Thumbnails  struct {
						High struct {
							URL string `json:"url"`
						} `json:"high"`
					} `json:"thumbnails"`
				} `json:"snippet"`
				Statistics struct {
					ViewCount    string `json:"viewCount"`
					LikeCount    string `json:"likeCount"`
					CommentCount string `json:"commentCount"`
				} `json:"statistics"`
				ContentDetails struct {
					Duration string `json:"duration"`
				} `json:"contentDetails"`
			} `json:"items"`
		}

		idsParam := ""
		for i, id := range batch {
			if i > 0 {
				idsParam += ","
			}
			idsParam += id
		}
		q := url.Values{
			"part": {"snippet,statistics,contentDetails"},
			"id":   {idsParam},
			"key":  {f.apiKey},
		}
		if err := f.getJSON(ctx, "/videos", q, &out); err != nil {
			return nil, err
		}

		for _, item := range out.Items {
			durationSeconds, _ := ParseISO8601Duration(item.ContentDetails.Duration)
			videos = append(videos, NormalizedVideo{
				VideoID:         item.ID,
				Title:           item.Snippet.Title,
				Description:     truncateDescription(item.Snippet.Description),
				PublishedAt:     item.Snippet.PublishedAt,
				Views:           atoiSafe(item.Statistics.ViewCount),
				Likes:           atoiSafe(item.Statistics.LikeCount),
				Comments:        atoiSafe(item.Statistics.CommentCount),
				DurationSeconds: durationSeconds,
				Thumbnail:       item.Snippet.Thumbnails.High.URL,
				URL:             "https://www.youtube.com/watch?v=" + item.ID,
			})
		}
	}
	return videos, nil
}

func truncateDescription(desc string) string {
	if len(desc) <= descriptionTruncateLen {
		return desc
	}
	return desc[:descriptionTruncateLen]
}

func (f *YouTubeFetcher) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("youtube api request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("youtube api returned %d: %s", resp.StatusCode, string(body))
	}
	return json.Unmarshal(body, out)
}

func atoiSafe(s string) int {
	var n int
	_, _ = fmt.Sscanf(s, "%d", &n)
	return n
}
