package models

import "time"

// PageStats are the aggregate counts shown alongside the history rows.
// Derived from the MasterRecord, never counted from the rows themselves.
type PageStats struct {
	ShowCount    int        `json:"showCount"`
	MovieCount   int        `json:"movieCount"`
	EpisodeCount int        `json:"episodeCount"`
	TotalPlays   int        `json:"totalPlays"`
	LastSyncAt   *time.Time `json:"lastSyncAt"`
}

// PageCacheBlob is the fully assembled history response, cached and TTL'd as
// a whole. It is derived data: deleting it only costs a rebuild.
type PageCacheBlob struct {
	ShowRows        []CardEntry `json:"showsRows"`
	MovieRows       []CardEntry `json:"moviesRows"`
	ShowUnseenRows  []CardEntry `json:"showsUnseenRows"`
	MovieUnseenRows []CardEntry `json:"moviesUnseenRows"`
	Stats           PageStats   `json:"stats"`
	CachedAt        time.Time   `json:"cachedAt"`
}

// FindRow locates an entity across the watched sections of the blob.
// It returns the section slice and index, or nil and -1 when absent.
func (p *PageCacheBlob) FindRow(kind Kind, remoteID int64) ([]CardEntry, int) {
	var sections [][]CardEntry
	switch kind {
	case KindShow:
		sections = [][]CardEntry{p.ShowRows, p.ShowUnseenRows}
	case KindMovie:
		sections = [][]CardEntry{p.MovieRows, p.MovieUnseenRows}
	}
	for _, rows := range sections {
		for i := range rows {
			if rows[i].RemoteID == remoteID {
				return rows, i
			}
		}
	}
	return nil, -1
}
