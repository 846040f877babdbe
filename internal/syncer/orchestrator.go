package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Belphemur/watchmirror/internal/config"
	"github.com/Belphemur/watchmirror/internal/metadata"
	"github.com/Belphemur/watchmirror/internal/metrics"
	"github.com/Belphemur/watchmirror/internal/models"
	"github.com/Belphemur/watchmirror/internal/store"
	"github.com/Belphemur/watchmirror/internal/trakt"
)

// RemoteClient is the slice of the remote service the orchestrator needs.
type RemoteClient interface {
	WatchedShows(ctx context.Context) ([]trakt.WatchedShow, error)
	WatchedMovies(ctx context.Context) ([]trakt.WatchedMovie, error)
	CollectedShows(ctx context.Context) ([]trakt.CollectedShow, error)
	CollectedMovies(ctx context.Context) ([]trakt.CollectedMovie, error)
	ShowProgress(ctx context.Context, showID int64) (*trakt.ShowProgress, error)
}

// Broadcaster pushes frames to connected viewers. May be nil.
type Broadcaster interface {
	Broadcast(frame any)
}

// Options carries the orchestrator's tunables.
type Options struct {
	BatchSize   int           // progress enrichment batch width, default 40
	BatchDelay  time.Duration // pause between enrichment batches, default 1.2s
	CardTTL     time.Duration
	ProgressTTL time.Duration
}

// Orchestrator drives the sync state machine: it decides between full and
// incremental sync, merges remote data into the MasterRecord, and assembles
// the display rows of the page cache. It is the only writer of the
// MasterRecord and, together with the invalidation coordinator, of the page
// blob.
type Orchestrator struct {
	client RemoteClient
	store  *store.Store
	meta   metadata.Resolver
	hub    Broadcaster
	opts   Options
	log    zerolog.Logger
}

// New creates an orchestrator. hub may be nil when no live channel exists.
func New(client RemoteClient, st *store.Store, meta metadata.Resolver, hub Broadcaster, opts Options) *Orchestrator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 40
	}
	if opts.BatchDelay <= 0 {
		opts.BatchDelay = 1200 * time.Millisecond
	}
	if opts.CardTTL <= 0 {
		opts.CardTTL = 6 * time.Hour
	}
	if opts.ProgressTTL <= 0 {
		opts.ProgressTTL = 12 * time.Hour
	}
	return &Orchestrator{
		client: client,
		store:  st,
		meta:   meta,
		hub:    hub,
		opts:   opts,
		log:    config.GetLogger(),
	}
}

// Sync merges the remote watched collections into the MasterRecord and
// persists it. A full sync runs when no cursor exists yet or force is set;
// otherwise the same collections are re-fetched and filtered client-side to
// items newer than the cursor (the remote API has no delta feed).
func (o *Orchestrator) Sync(ctx context.Context, force bool) (*models.MasterRecord, error) {
	master, err := o.store.LoadMaster()
	if err != nil {
		return nil, fmt.Errorf("load master record: %w", err)
	}

	full := force || master == nil || master.LastSyncAt == nil
	mode := "incremental"
	if full {
		mode = "full"
	}
	o.log.Info().Str("mode", mode).Msg("Starting sync")

	shows, err := o.client.WatchedShows(ctx)
	if err != nil {
		metrics.SyncRunsTotal.WithLabelValues(mode, "error").Inc()
		return nil, fmt.Errorf("fetch watched shows: %w", err)
	}
	movies, err := o.client.WatchedMovies(ctx)
	if err != nil {
		metrics.SyncRunsTotal.WithLabelValues(mode, "error").Inc()
		return nil, fmt.Errorf("fetch watched movies: %w", err)
	}

	if full {
		master = o.fullMerge(shows, movies)
	} else {
		o.incrementalMerge(master, shows, movies)
	}

	if err := o.store.SaveMaster(master); err != nil {
		metrics.SyncRunsTotal.WithLabelValues(mode, "error").Inc()
		return nil, fmt.Errorf("persist master record: %w", err)
	}

	metrics.SyncRunsTotal.WithLabelValues(mode, "ok").Inc()
	o.log.Info().
		Str("mode", mode).
		Int("shows", len(master.Shows)).
		Int("movies", len(master.Movies)).
		Msg("Sync complete")
	return master, nil
}

// fullMerge rebuilds the MasterRecord from scratch. Remote order is kept, so
// identical remote data produces an identical record.
func (o *Orchestrator) fullMerge(shows []trakt.WatchedShow, movies []trakt.WatchedMovie) *models.MasterRecord {
	master := &models.MasterRecord{
		Shows:  make([]models.ShowHistoryEntry, 0, len(shows)),
		Movies: make([]models.MovieHistoryEntry, 0, len(movies)),
	}
	for i := range shows {
		entry := showEntry(&shows[i])
		master.Shows = append(master.Shows, entry)
		master.AdvanceCursor(entry.LastWatchedAt)
		metrics.SyncItemsMergedTotal.WithLabelValues(string(models.KindShow)).Inc()
	}
	for i := range movies {
		entry := movieEntry(&movies[i])
		master.Movies = append(master.Movies, entry)
		master.AdvanceCursor(entry.LastWatchedAt)
		metrics.SyncItemsMergedTotal.WithLabelValues(string(models.KindMovie)).Inc()
	}
	return master
}

// incrementalMerge folds only the items newer than the cursor into the
// record: shows are replaced or inserted wholesale, movies accumulate plays
// and track the newest watch date. The cursor never regresses.
func (o *Orchestrator) incrementalMerge(master *models.MasterRecord, shows []trakt.WatchedShow, movies []trakt.WatchedMovie) {
	cursor := *master.LastSyncAt

	for i := range shows {
		if !shows[i].LastWatchedAt.After(cursor) {
			continue
		}
		entry := showEntry(&shows[i])
		if idx := master.FindShow(entry.RemoteID); idx >= 0 {
			master.Shows[idx] = entry
		} else {
			master.Shows = append(master.Shows, entry)
		}
		master.AdvanceCursor(entry.LastWatchedAt)
		metrics.SyncItemsMergedTotal.WithLabelValues(string(models.KindShow)).Inc()
	}

	for i := range movies {
		if !movies[i].LastWatchedAt.After(cursor) {
			continue
		}
		entry := movieEntry(&movies[i])
		if idx := master.FindMovie(entry.RemoteID); idx >= 0 {
			existing := &master.Movies[idx]
			existing.Plays += entry.Plays
			if entry.LastWatchedAt.After(existing.LastWatchedAt) {
				existing.LastWatchedAt = entry.LastWatchedAt
			}
		} else {
			master.Movies = append(master.Movies, entry)
		}
		master.AdvanceCursor(entry.LastWatchedAt)
		metrics.SyncItemsMergedTotal.WithLabelValues(string(models.KindMovie)).Inc()
	}
}

func showEntry(w *trakt.WatchedShow) models.ShowHistoryEntry {
	return models.ShowHistoryEntry{
		RemoteID:        w.Show.IDs.Trakt,
		EpisodesWatched: w.EpisodeCount(),
		Plays:           w.Plays,
		LastWatchedAt:   w.LastWatchedAt,
		Title:           w.Show.Title,
		Year:            w.Show.Year,
		TMDBID:          w.Show.IDs.TMDB,
	}
}

func movieEntry(w *trakt.WatchedMovie) models.MovieHistoryEntry {
	return models.MovieHistoryEntry{
		RemoteID:      w.Movie.IDs.Trakt,
		Plays:         w.Plays,
		LastWatchedAt: w.LastWatchedAt,
		Title:         w.Movie.Title,
		Year:          w.Movie.Year,
		TMDBID:        w.Movie.IDs.TMDB,
	}
}

// Rebuild runs a sync followed by a page build. It is the slow corrective
// path; targeted invalidation remains the fast one.
func (o *Orchestrator) Rebuild(ctx context.Context, force bool) error {
	o.broadcast(models.RebuildFrame{Step: "sync", Status: "running", Progress: 0})

	master, err := o.Sync(ctx, force)
	if err != nil {
		o.broadcast(models.RebuildFrame{Step: "sync", Status: "error", Message: err.Error()})
		return err
	}

	o.broadcast(models.RebuildFrame{Step: "page", Status: "running", Progress: 50})
	if _, err := o.BuildPage(ctx, master); err != nil {
		o.broadcast(models.RebuildFrame{Step: "page", Status: "error", Message: err.Error()})
		return err
	}

	o.broadcast(models.RebuildFrame{Step: "page", Status: "done", Progress: 100})
	return nil
}

func (o *Orchestrator) broadcast(frame any) {
	if o.hub != nil {
		o.hub.Broadcast(frame)
	}
}
