package invalidate

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Belphemur/watchmirror/internal/config"
	"github.com/Belphemur/watchmirror/internal/metrics"
	"github.com/Belphemur/watchmirror/internal/models"
	"github.com/Belphemur/watchmirror/internal/store"
)

// CardRefresher rebuilds one display card from fresh remote data.
type CardRefresher interface {
	RefreshCard(ctx context.Context, kind models.Kind, remoteID int64) (*models.CardEntry, error)
}

// Coordinator applies cache invalidation for one entity. It always tries the
// targeted path first — refresh the entity's card and overwrite just its row
// inside the page blob — and falls back to deleting the whole blob when the
// entity cannot be located or the targeted path fails. The fallback trades
// efficiency for correctness and is deliberately silent: logged, never
// surfaced.
type Coordinator struct {
	store     *store.Store
	refresher CardRefresher
	log       zerolog.Logger
}

// New creates a coordinator.
func New(st *store.Store, refresher CardRefresher) *Coordinator {
	return &Coordinator{
		store:     st,
		refresher: refresher,
		log:       config.GetLogger(),
	}
}

// Invalidate refreshes the card for (kind, id) and patches it into the page
// blob. It returns the refreshed card when one could be built, so callers can
// push it over the live channel; nil means the coarse path ran and the next
// page read rebuilds everything.
func (c *Coordinator) Invalidate(ctx context.Context, kind models.Kind, remoteID int64) *models.CardEntry {
	c.store.InvalidateCard(kind, remoteID)

	card, err := c.refresher.RefreshCard(ctx, kind, remoteID)
	if err != nil {
		c.coarse(kind, remoteID, "card refresh failed", err)
		return nil
	}

	if !c.patchPage(kind, remoteID, card) {
		c.coarse(kind, remoteID, "entity not present in page cache", nil)
		return card
	}

	metrics.InvalidationsTotal.WithLabelValues("targeted").Inc()
	c.log.Debug().
		Str("kind", string(kind)).
		Int64("id", remoteID).
		Msg("Targeted invalidation complete")
	return card
}

// patchPage overwrites exactly one row of the current page blob, leaving
// every other row untouched, and persists the blob. Returns false when the
// blob or the row is absent or the write fails.
func (c *Coordinator) patchPage(kind models.Kind, remoteID int64, card *models.CardEntry) bool {
	blob, ok := c.store.LoadPage(0)
	if !ok {
		return false
	}

	rows, idx := blob.FindRow(kind, remoteID)
	if idx < 0 {
		return false
	}
	rows[idx] = *card

	if err := c.store.SavePage(blob); err != nil {
		c.log.Warn().Err(err).Msg("Failed to persist patched page cache")
		return false
	}
	return true
}

// coarse discards the whole page blob so the next read rebuilds it.
func (c *Coordinator) coarse(kind models.Kind, remoteID int64, reason string, err error) {
	metrics.InvalidationsTotal.WithLabelValues("coarse").Inc()
	evt := c.log.Info().Str("kind", string(kind)).Int64("id", remoteID).Str("reason", reason)
	if err != nil {
		evt = evt.Err(err)
	}
	evt.Msg("Falling back to coarse page invalidation")

	if err := c.store.DeletePage(); err != nil {
		c.log.Warn().Err(err).Msg("Failed to delete page cache")
	}
}
