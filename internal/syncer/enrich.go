package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/Belphemur/watchmirror/internal/models"
	"github.com/Belphemur/watchmirror/internal/trakt"
)

// EnrichProgress refreshes the ProgressSnapshot of every listed show whose
// snapshot is stale. Shows are fetched in fixed-size batches of concurrent
// calls with a throttle pause between batches — a coarse window, not a
// semaphore: the whole batch completes before the pause starts.
func (o *Orchestrator) EnrichProgress(ctx context.Context, showIDs []int64) {
	stale := make([]int64, 0, len(showIDs))
	for _, id := range showIDs {
		if _, ok := o.store.Progress(id, o.opts.ProgressTTL); !ok {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return
	}
	o.log.Info().Int("shows", len(stale)).Int("batch", o.opts.BatchSize).Msg("Enriching show progress")

	for start := 0; start < len(stale); start += o.opts.BatchSize {
		end := start + o.opts.BatchSize
		if end > len(stale) {
			end = len(stale)
		}

		var wg sync.WaitGroup
		for _, id := range stale[start:end] {
			wg.Add(1)
			go func(id int64) {
				defer wg.Done()
				o.fetchProgress(ctx, id)
			}(id)
		}
		wg.Wait()

		if end < len(stale) {
			select {
			case <-time.After(o.opts.BatchDelay):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (o *Orchestrator) fetchProgress(ctx context.Context, showID int64) {
	progress, err := o.client.ShowProgress(ctx, showID)
	if err != nil {
		o.log.Warn().Err(err).Int64("show", showID).Msg("Failed to fetch show progress")
		return
	}
	snap := progressSnapshot(progress)
	if err := o.store.PutProgress(showID, snap); err != nil {
		o.log.Warn().Err(err).Int64("show", showID).Msg("Failed to persist progress snapshot")
	}
}

func progressSnapshot(p *trakt.ShowProgress) *models.ProgressSnapshot {
	snap := &models.ProgressSnapshot{Aired: p.Aired}
	if p.NextEpisode != nil {
		snap.NextEpisode = &models.EpisodePointer{
			Season: p.NextEpisode.Season,
			Number: p.NextEpisode.Number,
		}
	}
	return snap
}
