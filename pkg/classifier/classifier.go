// Package classifier implements the deterministic pre-classification of
// platform content into high/low-traction cohorts (spec.md §4.3, C1).
//
// Every rule here — the weights, the quartile cuts, the floor counts — is
// part of the contract: changing them changes the reasoning stages'
// inputs downstream. Nothing here calls out to a network or a clock; the
// package is pure and exhaustively unit-testable.
package classifier

import (
	"math"
	"sort"
)

// Video is the subset of a PlatformFetcher-normalized YouTube record the
// classifier needs.
type Video struct {
	VideoID string
	Views   *int
}

// ClassifyYouTube partitions videos into (high, low) cohorts.
//
// Videos with views <= 0 or nil views are filtered out of the ranking but
// folded into the low cohort. The remaining videos are sorted descending
// by views; high is the top ⌈n/4⌉, low is the bottom ⌈n/4⌉ plus the
// filtered-out videos, where n is the count of *remaining* (non-filtered)
// videos. If n < 2, the whole input is returned as high with an empty low
// — there isn't enough signal to draw a cohort boundary.
func ClassifyYouTube(videos []Video) (high, low []Video) {
	var remaining, filteredOut []Video
	for _, v := range videos {
		if v.Views == nil || *v.Views <= 0 {
			filteredOut = append(filteredOut, v)
			continue
		}
		remaining = append(remaining, v)
	}

	if len(remaining) < 2 {
		return videos, nil
	}

	sort.SliceStable(remaining, func(i, j int) bool {
		return *remaining[i].Views > *remaining[j].Views
	})

	cut := quartileCount(len(remaining))

	high = append([]Video{}, remaining[:cut]...)
	low = append([]Video{}, remaining[len(remaining)-cut:]...)
	low = append(low, filteredOut...)
	return high, low
}

// Tweet is the subset of a PlatformFetcher-normalized Twitter/X record the
// classifier needs.
type Tweet struct {
	TweetID       string
	Likes         int
	Retweets      int
	Replies       int
	Bookmarks     int
	Views         int
}

// engagementScore implements the weighted-engagement formula from
// spec.md §4.3: (likes + 2·retweets + 1.5·replies + 3·bookmarks) / max(views, 1).
func engagementScore(t Tweet) float64 {
	views := t.Views
	if views < 1 {
		views = 1
	}
	numerator := float64(t.Likes) + 2*float64(t.Retweets) + 1.5*float64(t.Replies) + 3*float64(t.Bookmarks)
	return numerator / float64(views)
}

// ClassifyTwitter partitions tweets into (high, low) cohorts by weighted
// engagement score. ok is false when len(tweets) < 4 — below that floor
// the caller (the Forensics stage) must treat the platform as
// unclassifiable and skip the reasoning call entirely, per spec.md §4.3
// and §8's boundary behavior for n=3.
func ClassifyTwitter(tweets []Tweet) (high, low []Tweet, ok bool) {
	if len(tweets) < 4 {
		return nil, nil, false
	}

	sorted := append([]Tweet{}, tweets...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return engagementScore(sorted[i]) > engagementScore(sorted[j])
	})

	cut := quartileCount(len(sorted))
	high = append([]Tweet{}, sorted[:cut]...)
	low = append([]Tweet{}, sorted[len(sorted)-cut:]...)
	return high, low, true
}

// quartileCount returns ⌈n/4⌉.
func quartileCount(n int) int {
	return int(math.Ceil(float64(n) / 4.0))
}
