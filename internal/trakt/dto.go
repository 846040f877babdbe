package trakt

import "time"

// IDs carries the identifiers the remote service attaches to every entity.
// Only the ones the mirror needs are decoded; the rest of the document is
// passed through untouched.
type IDs struct {
	Trakt int64  `json:"trakt"`
	TMDB  int64  `json:"tmdb"`
	IMDB  string `json:"imdb,omitempty"`
	Slug  string `json:"slug,omitempty"`
}

// ShowInfo is the embedded show summary on watched/collection/history items.
type ShowInfo struct {
	Title string `json:"title"`
	Year  int    `json:"year"`
	IDs   IDs    `json:"ids"`
}

// MovieInfo is the embedded movie summary on watched/collection/history items.
type MovieInfo struct {
	Title string `json:"title"`
	Year  int    `json:"year"`
	IDs   IDs    `json:"ids"`
}

// WatchedEpisode is one distinct watched episode within a season.
type WatchedEpisode struct {
	Number        int       `json:"number"`
	Plays         int       `json:"plays"`
	LastWatchedAt time.Time `json:"last_watched_at"`
}

// WatchedSeason groups the watched episodes of one season.
type WatchedSeason struct {
	Number   int              `json:"number"`
	Episodes []WatchedEpisode `json:"episodes"`
}

// WatchedShow is one entry of the watched-shows collection.
type WatchedShow struct {
	Plays         int             `json:"plays"`
	LastWatchedAt time.Time       `json:"last_watched_at"`
	Show          ShowInfo        `json:"show"`
	Seasons       []WatchedSeason `json:"seasons"`
}

// EpisodeCount sums the distinct watched episodes across all seasons.
func (w *WatchedShow) EpisodeCount() int {
	total := 0
	for _, season := range w.Seasons {
		total += len(season.Episodes)
	}
	return total
}

// WatchedMovie is one entry of the watched-movies collection.
type WatchedMovie struct {
	Plays         int       `json:"plays"`
	LastWatchedAt time.Time `json:"last_watched_at"`
	Movie         MovieInfo `json:"movie"`
}

// CollectedEpisode is one owned episode in the user's collection.
type CollectedEpisode struct {
	Number int `json:"number"`
}

// CollectedSeason groups the owned episodes of one season.
type CollectedSeason struct {
	Number   int                `json:"number"`
	Episodes []CollectedEpisode `json:"episodes"`
}

// CollectedShow is one entry of the show collection.
type CollectedShow struct {
	LastCollectedAt time.Time         `json:"last_collected_at"`
	Show            ShowInfo          `json:"show"`
	Seasons         []CollectedSeason `json:"seasons"`
}

// OwnedEpisodes counts the episodes the user owns for this show.
func (c *CollectedShow) OwnedEpisodes() int {
	total := 0
	for _, season := range c.Seasons {
		total += len(season.Episodes)
	}
	return total
}

// CollectedMovie is one entry of the movie collection.
type CollectedMovie struct {
	CollectedAt time.Time `json:"collected_at"`
	Movie       MovieInfo `json:"movie"`
}

// HistoryEpisode points at the episode of a show-type history item.
type HistoryEpisode struct {
	Season int `json:"season"`
	Number int `json:"number"`
}

// HistoryItem is one event of the user's watch history feed.
type HistoryItem struct {
	ID        int64           `json:"id"`
	WatchedAt time.Time       `json:"watched_at"`
	Action    string          `json:"action"`
	Type      string          `json:"type"` // "episode" or "movie"
	Show      *ShowInfo       `json:"show,omitempty"`
	Movie     *MovieInfo      `json:"movie,omitempty"`
	Episode   *HistoryEpisode `json:"episode,omitempty"`
}

// ProgressEpisode is the next-episode pointer of a progress document.
type ProgressEpisode struct {
	Season int `json:"season"`
	Number int `json:"number"`
}

// ShowProgress is the per-show watched-progress document.
type ShowProgress struct {
	Aired       int              `json:"aired"`
	Completed   int              `json:"completed"`
	NextEpisode *ProgressEpisode `json:"next_episode"`
}
