package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Belphemur/watchmirror/internal/broadcast"
	"github.com/Belphemur/watchmirror/internal/config"
	"github.com/Belphemur/watchmirror/internal/invalidate"
	"github.com/Belphemur/watchmirror/internal/models"
	"github.com/Belphemur/watchmirror/internal/store"
	"github.com/Belphemur/watchmirror/internal/trakt"
)

// minLookback bounds the history window on the first check after startup.
const minLookback = 5 * time.Minute

// ActivityClient is the slice of the remote service the monitor needs.
type ActivityClient interface {
	LastActivities(ctx context.Context) (*models.ActivityTimestamps, error)
	History(ctx context.Context, since time.Time) ([]trakt.HistoryItem, error)
}

// Rebuilder schedules the slow corrective path after external changes.
type Rebuilder interface {
	Rebuild(ctx context.Context, force bool) error
}

// Options carries the monitor's tunables.
type Options struct {
	PollInterval time.Duration // default 5m
	RecentWindow time.Duration // default 2m
	// FullThreshold forces a full page rebuild when more new items than
	// this were observed in one cycle. Default 5.
	FullThreshold int
}

// Monitor polls the lightweight last-activities endpoint, detects watches
// made outside this process, and reacts with targeted invalidation plus a
// background rebuild. At most one update cycle runs at a time; a trigger that
// arrives while one is running is skipped, not queued.
type Monitor struct {
	client  ActivityClient
	coord   *invalidate.Coordinator
	rebuild Rebuilder
	hub     *broadcast.Hub
	store   *store.Store
	opts    Options
	log     zerolog.Logger

	inProgress atomic.Bool

	mu          sync.Mutex
	prev        *models.ActivityTimestamps
	lastCheck   time.Time
	recentUntil time.Time
}

// New creates a monitor.
func New(client ActivityClient, coord *invalidate.Coordinator, rebuild Rebuilder, hub *broadcast.Hub, st *store.Store, opts Options) *Monitor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Minute
	}
	if opts.RecentWindow <= 0 {
		opts.RecentWindow = 2 * time.Minute
	}
	if opts.FullThreshold <= 0 {
		opts.FullThreshold = 5
	}
	return &Monitor{
		client:  client,
		coord:   coord,
		rebuild: rebuild,
		hub:     hub,
		store:   st,
		opts:    opts,
		log:     config.GetLogger(),
	}
}

// Run polls until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	m.log.Info().Dur("interval", m.opts.PollInterval).Msg("Activity monitor started")
	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Check(ctx)
		case <-ctx.Done():
			m.log.Info().Msg("Activity monitor stopped")
			return
		}
	}
}

// Check runs one poll-and-react cycle. A cycle that overlaps a running one is
// dropped — at-most-once semantics, no catch-up queue.
func (m *Monitor) Check(ctx context.Context) {
	if !m.inProgress.CompareAndSwap(false, true) {
		m.log.Debug().Msg("Update cycle already running, skipping trigger")
		return
	}
	defer m.inProgress.Store(false)

	now := time.Now()
	activities, err := m.client.LastActivities(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("Failed to poll activity timestamps")
		return
	}

	m.mu.Lock()
	diff := models.DiffActivities(m.prev, activities)
	m.prev = activities
	since := m.lastCheck
	m.lastCheck = now
	m.mu.Unlock()

	if !diff.Changed {
		return
	}
	m.log.Info().Strs("keys", diff.Keys).Msg("External watch activity detected")

	if since.IsZero() {
		since = now.Add(-minLookback)
	}

	items, err := m.client.History(ctx, since)
	if err != nil {
		m.log.Warn().Err(err).Msg("Failed to fetch history window, falling back to coarse invalidation")
		if err := m.store.DeletePage(); err != nil {
			m.log.Warn().Err(err).Msg("Failed to delete page cache")
		}
		return
	}

	m.markRecent(now)
	m.refreshTouched(ctx, items)

	// Independent corrective path: a scheduled rebuild keeps the page
	// consistent even when the targeted updates above missed something.
	force := len(items) > m.opts.FullThreshold
	if err := m.rebuild.Rebuild(ctx, force); err != nil {
		m.log.Warn().Err(err).Bool("force", force).Msg("Background rebuild failed, falling back to coarse invalidation")
		if err := m.store.DeletePage(); err != nil {
			m.log.Warn().Err(err).Msg("Failed to delete page cache")
		}
	}
}

// refreshTouched invalidates every distinct entity in the history window and
// pushes the refreshed cards to connected viewers.
func (m *Monitor) refreshTouched(ctx context.Context, items []trakt.HistoryItem) {
	type key struct {
		kind models.Kind
		id   int64
	}
	seen := make(map[key]struct{})

	for i := range items {
		item := &items[i]
		var k key
		switch {
		case item.Show != nil:
			k = key{kind: models.KindShow, id: item.Show.IDs.Trakt}
		case item.Movie != nil:
			k = key{kind: models.KindMovie, id: item.Movie.IDs.Trakt}
		default:
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}

		card := m.coord.Invalidate(ctx, k.kind, k.id)
		if card != nil && m.hub != nil {
			m.hub.Broadcast(models.NewCardUpdateFrame(card))
		}
	}
}

func (m *Monitor) markRecent(now time.Time) {
	m.mu.Lock()
	m.recentUntil = now.Add(m.opts.RecentWindow)
	m.mu.Unlock()
}

// RecentlyChanged reports whether an external change was detected inside the
// recent-change window. Consumers that poll instead of subscribing use this.
func (m *Monitor) RecentlyChanged() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Now().Before(m.recentUntil)
}
