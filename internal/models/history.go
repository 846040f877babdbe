package models

import "time"

// MasterRecord is the durable aggregate of the user's entire watch history
// plus the sync cursor. It is the source of truth for counts; everything else
// (cards, page blob) is derived from it.
type MasterRecord struct {
	// LastSyncAt is the sync cursor: the maximum LastWatchedAt observed
	// across all merged items. Nil until the first successful sync.
	// Monotonically non-decreasing.
	LastSyncAt *time.Time          `json:"lastSyncAt"`
	Shows      []ShowHistoryEntry  `json:"shows"`
	Movies     []MovieHistoryEntry `json:"movies"`
}

// ShowHistoryEntry is one watched show inside the MasterRecord.
// Unique per remote show id.
type ShowHistoryEntry struct {
	RemoteID        int64     `json:"remoteId"`
	EpisodesWatched int       `json:"episodesWatchedCount"`
	Plays           int       `json:"plays"`
	LastWatchedAt   time.Time `json:"lastWatchedAt"`
	Title           string    `json:"title"`
	Year            int       `json:"year,omitempty"`
	TMDBID          int64     `json:"tmdbId,omitempty"`
}

// MovieHistoryEntry is one watched movie inside the MasterRecord.
// Unique per remote movie id.
type MovieHistoryEntry struct {
	RemoteID      int64     `json:"remoteId"`
	Plays         int       `json:"plays"`
	LastWatchedAt time.Time `json:"lastWatchedAt"`
	Title         string    `json:"title"`
	Year          int       `json:"year,omitempty"`
	TMDBID        int64     `json:"tmdbId,omitempty"`
}

// FindShow returns the index of the show with the given remote id, or -1.
func (m *MasterRecord) FindShow(remoteID int64) int {
	for i := range m.Shows {
		if m.Shows[i].RemoteID == remoteID {
			return i
		}
	}
	return -1
}

// FindMovie returns the index of the movie with the given remote id, or -1.
func (m *MasterRecord) FindMovie(remoteID int64) int {
	for i := range m.Movies {
		if m.Movies[i].RemoteID == remoteID {
			return i
		}
	}
	return -1
}

// AdvanceCursor moves LastSyncAt forward to ts. The cursor never regresses.
func (m *MasterRecord) AdvanceCursor(ts time.Time) {
	if ts.IsZero() {
		return
	}
	if m.LastSyncAt == nil || ts.After(*m.LastSyncAt) {
		t := ts
		m.LastSyncAt = &t
	}
}
