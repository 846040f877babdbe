package models

import "time"

// ActivityTimestamps is the lightweight "last activity" document polled by the
// activity monitor. Only the two watch-relevant fields participate in change
// detection; collection-only activity is ignored on purpose.
type ActivityTimestamps struct {
	Movies struct {
		WatchedAt time.Time `json:"watched_at"`
	} `json:"movies"`
	Episodes struct {
		WatchedAt time.Time `json:"watched_at"`
	} `json:"episodes"`
	All time.Time `json:"all"`
}

// ActivityDiff reports the outcome of comparing two activity polls.
type ActivityDiff struct {
	Changed bool
	Keys    []string
}

// DiffActivities compares the watch-relevant timestamp fields of two polls.
// A nil previous poll never counts as a change: the first poll only seeds
// the baseline.
func DiffActivities(prev, cur *ActivityTimestamps) ActivityDiff {
	if prev == nil || cur == nil {
		return ActivityDiff{}
	}
	var diff ActivityDiff
	if !cur.Movies.WatchedAt.Equal(prev.Movies.WatchedAt) {
		diff.Keys = append(diff.Keys, "movies.watched_at")
	}
	if !cur.Episodes.WatchedAt.Equal(prev.Episodes.WatchedAt) {
		diff.Keys = append(diff.Keys, "episodes.watched_at")
	}
	diff.Changed = len(diff.Keys) > 0
	return diff
}
