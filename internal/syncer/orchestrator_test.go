package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/Belphemur/watchmirror/internal/metadata"
	"github.com/Belphemur/watchmirror/internal/models"
	"github.com/Belphemur/watchmirror/internal/store"
	"github.com/Belphemur/watchmirror/internal/trakt"
)

type fakeRemote struct {
	shows           []trakt.WatchedShow
	movies          []trakt.WatchedMovie
	collectedShows  []trakt.CollectedShow
	collectedMovies []trakt.CollectedMovie
	progress        map[int64]*trakt.ShowProgress

	watchedErr   error
	collectedErr error
	progressErr  error
}

func (f *fakeRemote) WatchedShows(ctx context.Context) ([]trakt.WatchedShow, error) {
	return f.shows, f.watchedErr
}

func (f *fakeRemote) WatchedMovies(ctx context.Context) ([]trakt.WatchedMovie, error) {
	return f.movies, f.watchedErr
}

func (f *fakeRemote) CollectedShows(ctx context.Context) ([]trakt.CollectedShow, error) {
	return f.collectedShows, f.collectedErr
}

func (f *fakeRemote) CollectedMovies(ctx context.Context) ([]trakt.CollectedMovie, error) {
	return f.collectedMovies, f.collectedErr
}

func (f *fakeRemote) ShowProgress(ctx context.Context, showID int64) (*trakt.ShowProgress, error) {
	if f.progressErr != nil {
		return nil, f.progressErr
	}
	if p, ok := f.progress[showID]; ok {
		return p, nil
	}
	return &trakt.ShowProgress{}, nil
}

type fakeResolver struct{}

func (fakeResolver) Resolve(ctx context.Context, kind models.Kind, tmdbID int64, title string, year int) (metadata.Meta, error) {
	return metadata.Meta{Poster: "/poster.jpg", Overview: "overview"}, nil
}

func newTestOrchestrator(t *testing.T, remote *fakeRemote) (*Orchestrator, *store.Store) {
	t.Helper()
	st, err := store.New(t.TempDir(), store.Options{})
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	orch := New(remote, st, fakeResolver{}, nil, Options{BatchDelay: time.Millisecond})
	return orch, st
}

func watchedShow(id int64, title string, episodes int, last time.Time) trakt.WatchedShow {
	eps := make([]trakt.WatchedEpisode, episodes)
	for i := range eps {
		eps[i] = trakt.WatchedEpisode{Number: i + 1, Plays: 1, LastWatchedAt: last}
	}
	return trakt.WatchedShow{
		Plays:         episodes,
		LastWatchedAt: last,
		Show:          trakt.ShowInfo{Title: title, IDs: trakt.IDs{Trakt: id, TMDB: id * 100}},
		Seasons:       []trakt.WatchedSeason{{Number: 1, Episodes: eps}},
	}
}

func watchedMovie(id int64, title string, plays int, last time.Time) trakt.WatchedMovie {
	return trakt.WatchedMovie{
		Plays:         plays,
		LastWatchedAt: last,
		Movie:         trakt.MovieInfo{Title: title, IDs: trakt.IDs{Trakt: id, TMDB: id * 100}},
	}
}

func TestSync_FullBuildsMasterAndCursor(t *testing.T) {
	t1 := time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 2, 20, 9, 0, 0, 0, time.UTC)
	remote := &fakeRemote{
		shows:  []trakt.WatchedShow{watchedShow(42, "Show A", 5, t1)},
		movies: []trakt.WatchedMovie{watchedMovie(7, "Movie B", 2, t2)},
	}
	orch, _ := newTestOrchestrator(t, remote)

	master, err := orch.Sync(context.Background(), false)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if len(master.Shows) != 1 || len(master.Movies) != 1 {
		t.Fatalf("Expected 1 show and 1 movie, got %d/%d", len(master.Shows), len(master.Movies))
	}
	if master.Shows[0].EpisodesWatched != 5 {
		t.Fatalf("Expected 5 distinct episodes, got %d", master.Shows[0].EpisodesWatched)
	}
	if master.LastSyncAt == nil || !master.LastSyncAt.Equal(t2) {
		t.Fatalf("Expected cursor %v, got %v", t2, master.LastSyncAt)
	}
}

func TestSync_FullIsIdempotent(t *testing.T) {
	last := time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)
	remote := &fakeRemote{
		shows:  []trakt.WatchedShow{watchedShow(1, "A", 3, last), watchedShow(2, "B", 1, last)},
		movies: []trakt.WatchedMovie{watchedMovie(9, "C", 4, last)},
	}
	orch, _ := newTestOrchestrator(t, remote)

	first, err := orch.Sync(context.Background(), true)
	if err != nil {
		t.Fatalf("first Sync: %v", err)
	}
	second, err := orch.Sync(context.Background(), true)
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Fatalf("Full sync over identical remote data must be byte-identical:\n%s\n%s", a, b)
	}
}

func TestSync_IncrementalReplacesShowAndAccumulatesMovie(t *testing.T) {
	cursor := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	newer := cursor.Add(48 * time.Hour)
	older := cursor.Add(-48 * time.Hour)

	remote := &fakeRemote{
		shows:  []trakt.WatchedShow{watchedShow(42, "Show A", 3, older)},
		movies: []trakt.WatchedMovie{watchedMovie(7, "Movie B", 2, older)},
	}
	orch, st := newTestOrchestrator(t, remote)
	if _, err := orch.Sync(context.Background(), true); err != nil {
		t.Fatalf("seed Sync: %v", err)
	}

	// Advance the cursor, then feed newer remote state.
	master, _ := st.LoadMaster()
	master.AdvanceCursor(cursor)
	if err := st.SaveMaster(master); err != nil {
		t.Fatalf("SaveMaster: %v", err)
	}

	remote.shows = []trakt.WatchedShow{
		watchedShow(42, "Show A", 8, newer),
		watchedShow(99, "Show New", 1, newer),
	}
	remote.movies = []trakt.WatchedMovie{watchedMovie(7, "Movie B", 1, newer)}

	merged, err := orch.Sync(context.Background(), false)
	if err != nil {
		t.Fatalf("incremental Sync: %v", err)
	}

	if len(merged.Shows) != 2 {
		t.Fatalf("Expected existing plus inserted show, got %d", len(merged.Shows))
	}
	idx := merged.FindShow(42)
	if idx < 0 || merged.Shows[idx].EpisodesWatched != 8 {
		t.Fatalf("Expected show 42 replaced with 8 episodes, got %+v", merged.Shows)
	}

	midx := merged.FindMovie(7)
	if midx < 0 {
		t.Fatal("Movie 7 missing after merge")
	}
	if got := merged.Movies[midx].Plays; got != 3 {
		t.Fatalf("Expected plays accumulated to 3, got %d", got)
	}
	if !merged.Movies[midx].LastWatchedAt.Equal(newer) {
		t.Fatalf("Expected movie watch date advanced to %v, got %v", newer, merged.Movies[midx].LastWatchedAt)
	}
	if merged.LastSyncAt == nil || !merged.LastSyncAt.Equal(newer) {
		t.Fatalf("Expected cursor %v, got %v", newer, merged.LastSyncAt)
	}
}

func TestSync_IncrementalSkipsItemsAtOrBeforeCursor(t *testing.T) {
	cursor := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	remote := &fakeRemote{
		shows: []trakt.WatchedShow{watchedShow(1, "Seed", 1, cursor.Add(-time.Hour))},
	}
	orch, st := newTestOrchestrator(t, remote)
	if _, err := orch.Sync(context.Background(), true); err != nil {
		t.Fatalf("seed Sync: %v", err)
	}
	master, _ := st.LoadMaster()
	master.AdvanceCursor(cursor)
	if err := st.SaveMaster(master); err != nil {
		t.Fatalf("SaveMaster: %v", err)
	}

	// Items exactly at the cursor are old data, not new activity.
	remote.shows = []trakt.WatchedShow{
		watchedShow(1, "Seed Updated", 5, cursor),
		watchedShow(2, "Too Old", 2, cursor.Add(-time.Minute)),
	}

	merged, err := orch.Sync(context.Background(), false)
	if err != nil {
		t.Fatalf("incremental Sync: %v", err)
	}
	if len(merged.Shows) != 1 {
		t.Fatalf("Expected no new shows merged, got %d", len(merged.Shows))
	}
	if merged.Shows[0].Title != "Seed" {
		t.Fatalf("Show at cursor must not replace the entry, got %q", merged.Shows[0].Title)
	}
	if !merged.LastSyncAt.Equal(cursor) {
		t.Fatalf("Cursor must not move, got %v", merged.LastSyncAt)
	}
}

func TestSync_SameMovieTwoDatesKeepsLater(t *testing.T) {
	cursor := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	d1 := cursor.Add(24 * time.Hour)
	d2 := cursor.Add(72 * time.Hour)

	remote := &fakeRemote{
		movies: []trakt.WatchedMovie{watchedMovie(42, "Movie", 1, cursor.Add(-time.Hour))},
	}
	orch, st := newTestOrchestrator(t, remote)
	if _, err := orch.Sync(context.Background(), true); err != nil {
		t.Fatalf("seed Sync: %v", err)
	}
	master, _ := st.LoadMaster()
	master.AdvanceCursor(cursor)
	if err := st.SaveMaster(master); err != nil {
		t.Fatalf("SaveMaster: %v", err)
	}

	// Two incremental rounds for the same movie must land on one entry
	// carrying the later date.
	remote.movies = []trakt.WatchedMovie{watchedMovie(42, "Movie", 1, d2)}
	if _, err := orch.Sync(context.Background(), false); err != nil {
		t.Fatalf("Sync d2: %v", err)
	}
	remote.movies = []trakt.WatchedMovie{watchedMovie(42, "Movie", 1, d1)}
	merged, err := orch.Sync(context.Background(), false)
	if err != nil {
		t.Fatalf("Sync d1: %v", err)
	}

	if len(merged.Movies) != 1 {
		t.Fatalf("Expected one movie entry, got %d", len(merged.Movies))
	}
	if !merged.Movies[0].LastWatchedAt.Equal(d2) {
		t.Fatalf("Expected later date %v kept, got %v", d2, merged.Movies[0].LastWatchedAt)
	}
	if !merged.LastSyncAt.Equal(d2) {
		t.Fatalf("Cursor regressed to %v", merged.LastSyncAt)
	}
}

func TestSync_FetchErrorLeavesMasterUntouched(t *testing.T) {
	last := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	remote := &fakeRemote{shows: []trakt.WatchedShow{watchedShow(1, "A", 1, last)}}
	orch, st := newTestOrchestrator(t, remote)
	if _, err := orch.Sync(context.Background(), true); err != nil {
		t.Fatalf("seed Sync: %v", err)
	}

	remote.watchedErr = errors.New("remote down")
	if _, err := orch.Sync(context.Background(), false); err == nil {
		t.Fatal("Expected sync error")
	}

	master, err := st.LoadMaster()
	if err != nil {
		t.Fatalf("LoadMaster: %v", err)
	}
	if master == nil || len(master.Shows) != 1 {
		t.Fatalf("Failed sync must not corrupt the master record: %+v", master)
	}
}

func TestBuildPage_RowsStatsAndUnseen(t *testing.T) {
	last := time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)
	remote := &fakeRemote{
		shows:  []trakt.WatchedShow{watchedShow(42, "Watched Show", 5, last)},
		movies: []trakt.WatchedMovie{watchedMovie(7, "Watched Movie", 2, last)},
		collectedShows: []trakt.CollectedShow{
			{
				Show: trakt.ShowInfo{Title: "Watched Show", IDs: trakt.IDs{Trakt: 42}},
				Seasons: []trakt.CollectedSeason{
					{Number: 1, Episodes: []trakt.CollectedEpisode{{Number: 1}}},
				},
			},
			{
				Show: trakt.ShowInfo{Title: "Unseen Show", IDs: trakt.IDs{Trakt: 50}},
				Seasons: []trakt.CollectedSeason{
					{Number: 1, Episodes: []trakt.CollectedEpisode{{Number: 1}, {Number: 2}}},
				},
			},
			{
				// Collected but with no owned episodes; must not appear.
				Show: trakt.ShowInfo{Title: "Empty Show", IDs: trakt.IDs{Trakt: 60}},
			},
		},
		collectedMovies: []trakt.CollectedMovie{
			{Movie: trakt.MovieInfo{Title: "Watched Movie", IDs: trakt.IDs{Trakt: 7}}},
			{Movie: trakt.MovieInfo{Title: "Unseen Movie", IDs: trakt.IDs{Trakt: 70}}},
		},
		progress: map[int64]*trakt.ShowProgress{
			42: {Aired: 8, NextEpisode: &trakt.ProgressEpisode{Season: 1, Number: 6}},
		},
	}
	orch, st := newTestOrchestrator(t, remote)

	master, err := orch.Sync(context.Background(), true)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	blob, err := orch.BuildPage(context.Background(), master)
	if err != nil {
		t.Fatalf("BuildPage: %v", err)
	}

	if len(blob.ShowRows) != 1 || len(blob.MovieRows) != 1 {
		t.Fatalf("Expected one watched row each, got %d/%d", len(blob.ShowRows), len(blob.MovieRows))
	}
	row := blob.ShowRows[0]
	if row.TotalEpisodes != 8 || row.WatchedEpisodes != 5 || row.MissingEpisodes != 3 {
		t.Fatalf("Show row episode counts wrong: %+v", row)
	}
	if row.NextEpisode == nil || row.NextEpisode.Number != 6 {
		t.Fatalf("Show row next episode wrong: %+v", row.NextEpisode)
	}
	if row.Poster != "/poster.jpg" {
		t.Fatalf("Expected resolved poster, got %q", row.Poster)
	}

	if len(blob.ShowUnseenRows) != 1 || blob.ShowUnseenRows[0].RemoteID != 50 {
		t.Fatalf("Unseen shows wrong: %+v", blob.ShowUnseenRows)
	}
	if blob.ShowUnseenRows[0].MissingEpisodes != 2 {
		t.Fatalf("Unseen show missing count wrong: %+v", blob.ShowUnseenRows[0])
	}
	if len(blob.MovieUnseenRows) != 1 || blob.MovieUnseenRows[0].RemoteID != 70 {
		t.Fatalf("Unseen movies wrong: %+v", blob.MovieUnseenRows)
	}

	if blob.Stats.ShowCount != 1 || blob.Stats.MovieCount != 1 {
		t.Fatalf("Stats counts wrong: %+v", blob.Stats)
	}
	if blob.Stats.EpisodeCount != 5 {
		t.Fatalf("Stats episode count wrong: %d", blob.Stats.EpisodeCount)
	}
	if blob.Stats.TotalPlays != 7 {
		t.Fatalf("Stats total plays wrong: %d", blob.Stats.TotalPlays)
	}

	// The blob must also be persisted.
	if _, ok := st.LoadPage(0); !ok {
		t.Fatal("Expected page blob on disk after BuildPage")
	}
}

func TestBuildPage_CollectionFailureStillServesWatched(t *testing.T) {
	last := time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)
	remote := &fakeRemote{
		shows:        []trakt.WatchedShow{watchedShow(42, "Show", 2, last)},
		collectedErr: errors.New("collection endpoint down"),
	}
	orch, _ := newTestOrchestrator(t, remote)

	master, err := orch.Sync(context.Background(), true)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	blob, err := orch.BuildPage(context.Background(), master)
	if err != nil {
		t.Fatalf("BuildPage must not fail on collection errors: %v", err)
	}
	if len(blob.ShowRows) != 1 {
		t.Fatalf("Expected watched rows, got %d", len(blob.ShowRows))
	}
	if len(blob.ShowUnseenRows) != 0 || len(blob.MovieUnseenRows) != 0 {
		t.Fatal("Expected no unseen rows when the collection fetch fails")
	}
}

func TestRefreshCard_RebuildsBypassingTTL(t *testing.T) {
	last := time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)
	remote := &fakeRemote{
		shows: []trakt.WatchedShow{watchedShow(42, "Show", 5, last)},
		progress: map[int64]*trakt.ShowProgress{
			42: {Aired: 10, NextEpisode: &trakt.ProgressEpisode{Season: 1, Number: 6}},
		},
	}
	orch, st := newTestOrchestrator(t, remote)
	if _, err := orch.Sync(context.Background(), true); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	card, err := orch.RefreshCard(context.Background(), models.KindShow, 42)
	if err != nil {
		t.Fatalf("RefreshCard: %v", err)
	}
	if card.TotalEpisodes != 10 || card.MissingEpisodes != 5 {
		t.Fatalf("Refreshed card counts wrong: %+v", card)
	}

	// The refreshed card must land in the store.
	stored, ok := st.Card(models.KindShow, 42, time.Hour)
	if !ok {
		t.Fatal("Expected refreshed card persisted")
	}
	if stored.TotalEpisodes != 10 {
		t.Fatalf("Stored card stale: %+v", stored)
	}
}

func TestRefreshCard_UnknownEntity(t *testing.T) {
	remote := &fakeRemote{
		shows: []trakt.WatchedShow{watchedShow(1, "Show", 1, time.Now())},
	}
	orch, _ := newTestOrchestrator(t, remote)
	if _, err := orch.Sync(context.Background(), true); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	if _, err := orch.RefreshCard(context.Background(), models.KindShow, 12345); err == nil {
		t.Fatal("Expected error for unknown show")
	}
	if _, err := orch.RefreshCard(context.Background(), models.KindMovie, 12345); err == nil {
		t.Fatal("Expected error for unknown movie")
	}
}

func TestEnrichProgress_SkipsFreshSnapshots(t *testing.T) {
	remote := &fakeRemote{
		progress: map[int64]*trakt.ShowProgress{
			1: {Aired: 5},
			2: {Aired: 9},
		},
	}
	orch, st := newTestOrchestrator(t, remote)

	if err := st.PutProgress(1, &models.ProgressSnapshot{Aired: 5}); err != nil {
		t.Fatalf("PutProgress: %v", err)
	}

	orch.EnrichProgress(context.Background(), []int64{1, 2})

	snap, ok := st.Progress(2, time.Hour)
	if !ok {
		t.Fatal("Expected stale show enriched")
	}
	if snap.Aired != 9 {
		t.Fatalf("Expected aired 9, got %d", snap.Aired)
	}
}
