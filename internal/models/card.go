package models

import (
	"fmt"
	"time"
)

// Kind distinguishes the two entity kinds tracked by the mirror.
type Kind string

const (
	KindShow  Kind = "show"
	KindMovie Kind = "movie"
)

// EpisodePointer identifies a single episode within a show.
type EpisodePointer struct {
	Season int `json:"season"`
	Number int `json:"number"`
}

// CardEntry is the denormalized, display-ready record for one show or movie.
// Keyed by (Kind, RemoteID); at most one entry per key.
type CardEntry struct {
	Kind     Kind   `json:"kind"`
	RemoteID int64  `json:"remoteId"`
	Title    string `json:"title"`
	Year     int    `json:"year,omitempty"`
	Poster   string `json:"poster,omitempty"`
	Overview string `json:"overview,omitempty"`

	// Show-only fields. Missing is always max(0, Total-Watched).
	WatchedEpisodes int             `json:"watchedEpisodes,omitempty"`
	TotalEpisodes   int             `json:"totalEpisodes,omitempty"`
	MissingEpisodes int             `json:"missingEpisodes,omitempty"`
	NextEpisode     *EpisodePointer `json:"nextEpisode,omitempty"`

	Plays         int       `json:"plays,omitempty"`
	LastWatchedAt time.Time `json:"lastWatchedAt"`

	// CachedAt drives the TTL check on read. Freshness is judged against
	// this stored field, never against file modification time.
	CachedAt time.Time `json:"cachedAt"`
}

// Key returns the canonical cache key for a (kind, id) pair.
func (c *CardEntry) Key() string {
	return CardKey(c.Kind, c.RemoteID)
}

// CardKey builds the canonical cache key for a (kind, id) pair.
func CardKey(kind Kind, remoteID int64) string {
	return fmt.Sprintf("%s_%d", kind, remoteID)
}

// ProgressSnapshot holds the aired-episode count and next-episode pointer for
// one show. TTL'd independently from the show's CardEntry.
type ProgressSnapshot struct {
	Aired       int             `json:"airedCount"`
	NextEpisode *EpisodePointer `json:"nextEpisode"`
	FetchedAt   time.Time       `json:"fetchedAt"`
}
