package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/Belphemur/watchmirror/internal/apperrors"
	"github.com/Belphemur/watchmirror/internal/metadata"
	"github.com/Belphemur/watchmirror/internal/models"
)

// BuildPage assembles the full page blob from the MasterRecord: display rows
// for every watched show and movie, unseen rows as the set difference between
// the collection and the watched set, and the aggregate stats. The result is
// persisted as the new PageCacheBlob.
func (o *Orchestrator) BuildPage(ctx context.Context, master *models.MasterRecord) (*models.PageCacheBlob, error) {
	showIDs := make([]int64, 0, len(master.Shows))
	for i := range master.Shows {
		showIDs = append(showIDs, master.Shows[i].RemoteID)
	}
	o.EnrichProgress(ctx, showIDs)

	blob := &models.PageCacheBlob{
		ShowRows:  make([]models.CardEntry, 0, len(master.Shows)),
		MovieRows: make([]models.CardEntry, 0, len(master.Movies)),
	}

	for i := range master.Shows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		blob.ShowRows = append(blob.ShowRows, *o.showCard(ctx, &master.Shows[i]))
	}
	for i := range master.Movies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		blob.MovieRows = append(blob.MovieRows, *o.movieCard(ctx, &master.Movies[i]))
	}

	if err := o.buildUnseen(ctx, master, blob); err != nil {
		// Unseen rows need the collection endpoints; the watched page is
		// still worth serving without them.
		o.log.Warn().Err(err).Msg("Failed to build unseen rows, serving watched rows only")
	}

	blob.Stats = pageStats(master)
	blob.CachedAt = time.Now().UTC()

	if err := o.store.SavePage(blob); err != nil {
		return nil, fmt.Errorf("persist page cache: %w", err)
	}
	return blob, nil
}

// buildUnseen computes the unseen sections: collected entities that never
// appear in the watched set, keyed by remote id. Shows with zero owned
// episodes are skipped.
func (o *Orchestrator) buildUnseen(ctx context.Context, master *models.MasterRecord, blob *models.PageCacheBlob) error {
	collectedShows, err := o.client.CollectedShows(ctx)
	if err != nil {
		return err
	}
	collectedMovies, err := o.client.CollectedMovies(ctx)
	if err != nil {
		return err
	}

	watchedShows := make(map[int64]struct{}, len(master.Shows))
	for i := range master.Shows {
		watchedShows[master.Shows[i].RemoteID] = struct{}{}
	}
	watchedMovies := make(map[int64]struct{}, len(master.Movies))
	for i := range master.Movies {
		watchedMovies[master.Movies[i].RemoteID] = struct{}{}
	}

	for i := range collectedShows {
		cs := &collectedShows[i]
		if _, seen := watchedShows[cs.Show.IDs.Trakt]; seen {
			continue
		}
		owned := cs.OwnedEpisodes()
		if owned == 0 {
			continue
		}
		meta := o.resolve(ctx, models.KindShow, cs.Show.IDs.TMDB, cs.Show.Title, cs.Show.Year)
		blob.ShowUnseenRows = append(blob.ShowUnseenRows, models.CardEntry{
			Kind:            models.KindShow,
			RemoteID:        cs.Show.IDs.Trakt,
			Title:           cs.Show.Title,
			Year:            cs.Show.Year,
			Poster:          meta.Poster,
			Overview:        meta.Overview,
			TotalEpisodes:   owned,
			MissingEpisodes: owned,
			CachedAt:        time.Now().UTC(),
		})
	}

	for i := range collectedMovies {
		cm := &collectedMovies[i]
		if _, seen := watchedMovies[cm.Movie.IDs.Trakt]; seen {
			continue
		}
		meta := o.resolve(ctx, models.KindMovie, cm.Movie.IDs.TMDB, cm.Movie.Title, cm.Movie.Year)
		blob.MovieUnseenRows = append(blob.MovieUnseenRows, models.CardEntry{
			Kind:     models.KindMovie,
			RemoteID: cm.Movie.IDs.Trakt,
			Title:    cm.Movie.Title,
			Year:     cm.Movie.Year,
			Poster:   meta.Poster,
			Overview: meta.Overview,
			CachedAt: time.Now().UTC(),
		})
	}
	return nil
}

// showCard returns the display card for a watched show, reusing a fresh
// cached card when one exists.
func (o *Orchestrator) showCard(ctx context.Context, entry *models.ShowHistoryEntry) *models.CardEntry {
	if card, ok := o.store.Card(models.KindShow, entry.RemoteID, o.opts.CardTTL); ok {
		return card
	}
	card := o.buildShowCard(ctx, entry)
	if err := o.store.PutCard(card); err != nil {
		o.log.Warn().Err(err).Int64("show", entry.RemoteID).Msg("Failed to persist card")
	}
	return card
}

// movieCard returns the display card for a watched movie, reusing a fresh
// cached card when one exists.
func (o *Orchestrator) movieCard(ctx context.Context, entry *models.MovieHistoryEntry) *models.CardEntry {
	if card, ok := o.store.Card(models.KindMovie, entry.RemoteID, o.opts.CardTTL); ok {
		return card
	}
	card := o.buildMovieCard(ctx, entry)
	if err := o.store.PutCard(card); err != nil {
		o.log.Warn().Err(err).Int64("movie", entry.RemoteID).Msg("Failed to persist card")
	}
	return card
}

func (o *Orchestrator) buildShowCard(ctx context.Context, entry *models.ShowHistoryEntry) *models.CardEntry {
	meta := o.resolve(ctx, models.KindShow, entry.TMDBID, entry.Title, entry.Year)

	card := &models.CardEntry{
		Kind:            models.KindShow,
		RemoteID:        entry.RemoteID,
		Title:           entry.Title,
		Year:            entry.Year,
		Poster:          meta.Poster,
		Overview:        meta.Overview,
		WatchedEpisodes: entry.EpisodesWatched,
		Plays:           entry.Plays,
		LastWatchedAt:   entry.LastWatchedAt,
		CachedAt:        time.Now().UTC(),
	}

	if snap, ok := o.store.Progress(entry.RemoteID, o.opts.ProgressTTL); ok {
		card.TotalEpisodes = snap.Aired
		card.NextEpisode = snap.NextEpisode
	}
	if missing := card.TotalEpisodes - card.WatchedEpisodes; missing > 0 {
		card.MissingEpisodes = missing
	}
	return card
}

func (o *Orchestrator) buildMovieCard(ctx context.Context, entry *models.MovieHistoryEntry) *models.CardEntry {
	meta := o.resolve(ctx, models.KindMovie, entry.TMDBID, entry.Title, entry.Year)
	return &models.CardEntry{
		Kind:          models.KindMovie,
		RemoteID:      entry.RemoteID,
		Title:         entry.Title,
		Year:          entry.Year,
		Poster:        meta.Poster,
		Overview:      meta.Overview,
		Plays:         entry.Plays,
		LastWatchedAt: entry.LastWatchedAt,
		CachedAt:      time.Now().UTC(),
	}
}

// RefreshCard rebuilds the card for one entity from the MasterRecord and
// fresh remote progress, bypassing the card TTL. Used by targeted
// invalidation. Returns ErrNotFound when the entity is not in the record.
func (o *Orchestrator) RefreshCard(ctx context.Context, kind models.Kind, remoteID int64) (*models.CardEntry, error) {
	master, err := o.store.LoadMaster()
	if err != nil {
		return nil, err
	}
	if master == nil {
		return nil, apperrors.NewNotFoundError("master record", nil)
	}

	var card *models.CardEntry
	switch kind {
	case models.KindShow:
		idx := master.FindShow(remoteID)
		if idx < 0 {
			return nil, apperrors.NewNotFoundError("show", remoteID)
		}
		o.fetchProgress(ctx, remoteID)
		card = o.buildShowCard(ctx, &master.Shows[idx])
	case models.KindMovie:
		idx := master.FindMovie(remoteID)
		if idx < 0 {
			return nil, apperrors.NewNotFoundError("movie", remoteID)
		}
		card = o.buildMovieCard(ctx, &master.Movies[idx])
	default:
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}

	if err := o.store.PutCard(card); err != nil {
		return nil, err
	}
	return card, nil
}

// resolve fetches display metadata, degrading to empty values on failure.
func (o *Orchestrator) resolve(ctx context.Context, kind models.Kind, tmdbID int64, title string, year int) metadata.Meta {
	m, err := o.meta.Resolve(ctx, kind, tmdbID, title, year)
	if err != nil {
		o.log.Debug().Err(err).Str("title", title).Msg("Metadata lookup failed, using empty metadata")
		return metadata.Meta{}
	}
	return m
}

func pageStats(master *models.MasterRecord) models.PageStats {
	stats := models.PageStats{
		ShowCount:  len(master.Shows),
		MovieCount: len(master.Movies),
		LastSyncAt: master.LastSyncAt,
	}
	for i := range master.Shows {
		stats.EpisodeCount += master.Shows[i].EpisodesWatched
		stats.TotalPlays += master.Shows[i].Plays
	}
	for i := range master.Movies {
		stats.TotalPlays += master.Movies[i].Plays
	}
	return stats
}
