package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/Belphemur/watchmirror/internal/models"
)

func cardFile(kind models.Kind, remoteID int64) string {
	return models.CardKey(kind, remoteID) + ".json"
}

func progressFile(showID int64) string {
	return fmt.Sprintf("progress_%d.json", showID)
}

// Card returns the cached entry for (kind, id) when it is younger than
// maxAge. Freshness is judged lazily against the stored cachedAt field; a
// stale entry is a miss but is not deleted. A missing file is a silent miss;
// any other read failure is logged and swallowed, because refetching is
// always safe.
func (s *Store) Card(kind models.Kind, remoteID int64, maxAge time.Duration) (*models.CardEntry, bool) {
	name := cardFile(kind, remoteID)

	if data, ok := s.cards.Get(name); ok {
		var entry models.CardEntry
		if err := json.Unmarshal(data, &entry); err == nil && time.Since(entry.CachedAt) <= maxAge {
			return &entry, true
		}
	}

	var entry models.CardEntry
	found, err := s.readJSON(name, &entry)
	if err != nil {
		s.log.Warn().Err(err).Str("card", name).Msg("Failed to read card, treating as miss")
		return nil, false
	}
	if !found {
		return nil, false
	}
	if time.Since(entry.CachedAt) > maxAge {
		return nil, false
	}

	if data, err := json.Marshal(&entry); err == nil {
		s.cards.Set(name, data)
	}
	return &entry, true
}

// PutCard writes the entry atomically and refreshes the hot layer. CachedAt
// is stamped when the caller left it unset.
func (s *Store) PutCard(entry *models.CardEntry) error {
	if entry.CachedAt.IsZero() {
		entry.CachedAt = time.Now().UTC()
	}
	name := cardFile(entry.Kind, entry.RemoteID)
	if err := s.writeAtomic(name, entry); err != nil {
		return err
	}
	if data, err := json.Marshal(entry); err == nil {
		s.cards.Set(name, data)
	}
	return nil
}

// InvalidateCard drops the entry for (kind, id) from the hot layer and disk.
func (s *Store) InvalidateCard(kind models.Kind, remoteID int64) {
	name := cardFile(kind, remoteID)
	s.cards.Remove(name)
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
		s.log.Warn().Err(err).Str("card", name).Msg("Failed to remove card file")
	}
}

// Progress returns the cached snapshot for a show when it is younger than
// maxAge, with the same lazy, fail-open semantics as Card.
func (s *Store) Progress(showID int64, maxAge time.Duration) (*models.ProgressSnapshot, bool) {
	name := progressFile(showID)

	if data, ok := s.progress.Get(name); ok {
		var snap models.ProgressSnapshot
		if err := json.Unmarshal(data, &snap); err == nil && time.Since(snap.FetchedAt) <= maxAge {
			return &snap, true
		}
	}

	var snap models.ProgressSnapshot
	found, err := s.readJSON(name, &snap)
	if err != nil {
		s.log.Warn().Err(err).Str("progress", name).Msg("Failed to read progress snapshot, treating as miss")
		return nil, false
	}
	if !found {
		return nil, false
	}
	if time.Since(snap.FetchedAt) > maxAge {
		return nil, false
	}

	if data, err := json.Marshal(&snap); err == nil {
		s.progress.Set(name, data)
	}
	return &snap, true
}

// PutProgress writes the snapshot atomically and refreshes the hot layer.
func (s *Store) PutProgress(showID int64, snap *models.ProgressSnapshot) error {
	if snap.FetchedAt.IsZero() {
		snap.FetchedAt = time.Now().UTC()
	}
	name := progressFile(showID)
	if err := s.writeAtomic(name, snap); err != nil {
		return err
	}
	if data, err := json.Marshal(snap); err == nil {
		s.progress.Set(name, data)
	}
	return nil
}

// sweepStamp decodes just the timestamp fields of a cached document.
type sweepStamp struct {
	CachedAt  time.Time `json:"cachedAt"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// Sweep removes card and progress files whose stored timestamp is older than
// retention. This is the only active cleanup; no background timer exists, so
// deployments run it from the maintenance flag or a cron job. The master and
// page documents are never swept.
func (s *Store) Sweep(retention time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-retention)
	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		if name == masterFile || name == pageFile {
			continue
		}
		if !strings.HasPrefix(name, string(models.KindShow)+"_") &&
			!strings.HasPrefix(name, string(models.KindMovie)+"_") &&
			!strings.HasPrefix(name, "progress_") {
			continue
		}

		var stamp sweepStamp
		found, err := s.readJSON(name, &stamp)
		if err != nil || !found {
			continue
		}
		ts := stamp.CachedAt
		if ts.IsZero() {
			ts = stamp.FetchedAt
		}
		if ts.IsZero() || ts.After(cutoff) {
			continue
		}

		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			s.log.Warn().Err(err).Str("file", name).Msg("Failed to sweep cache file")
			continue
		}
		s.cards.Remove(name)
		s.progress.Remove(name)
		removed++
	}

	if removed > 0 {
		s.log.Info().Int("removed", removed).Dur("retention", retention).Msg("Swept expired cache files")
	}
	return removed, nil
}
