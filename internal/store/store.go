package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/Belphemur/watchmirror/internal/cache"
	"github.com/Belphemur/watchmirror/internal/config"
	"github.com/Belphemur/watchmirror/internal/models"
)

const (
	masterFile = "master.json"
	pageFile   = "page.json"
)

// Store owns the durable data directory: one MasterRecord document, one
// PageCacheBlob document, one file per CardEntry and one per
// ProgressSnapshot. Every write goes through atomic replace (write-temp,
// rename) so readers never observe partial content. A small expirable LRU
// sits in front of the card and progress files as a hot layer.
//
// The store assumes a single writer process; there is no cross-process
// locking.
type Store struct {
	dir      string
	cards    cache.Cache
	progress cache.Cache
	log      zerolog.Logger
}

// Options tunes the in-memory hot layer.
type Options struct {
	// MemorySize caps each hot-layer LRU. Defaults to 512 entries.
	MemorySize int

	// MemoryTTL expires hot-layer entries independently of the durable
	// files. Defaults to 5 minutes; the stored cachedAt field remains the
	// authority for staleness either way.
	MemoryTTL time.Duration
}

// New creates a store rooted at dir, creating the directory if needed.
func New(dir string, opts Options) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if opts.MemorySize <= 0 {
		opts.MemorySize = 512
	}
	if opts.MemoryTTL <= 0 {
		opts.MemoryTTL = 5 * time.Minute
	}
	return &Store{
		dir:      dir,
		cards:    cache.NewMemory(cache.Config{Size: opts.MemorySize, TTL: opts.MemoryTTL, Group: "cards"}),
		progress: cache.NewMemory(cache.Config{Size: opts.MemorySize, TTL: opts.MemoryTTL, Group: "progress"}),
		log:      config.GetLogger(),
	}, nil
}

// Close releases the hot-layer caches.
func (s *Store) Close() error {
	if err := s.cards.Close(); err != nil {
		return err
	}
	return s.progress.Close()
}

// LoadMaster reads the MasterRecord. A missing document returns (nil, nil):
// that is the signal for a full sync, not an error.
func (s *Store) LoadMaster() (*models.MasterRecord, error) {
	var record models.MasterRecord
	found, err := s.readJSON(masterFile, &record)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &record, nil
}

// SaveMaster persists the MasterRecord atomically.
func (s *Store) SaveMaster(record *models.MasterRecord) error {
	return s.writeAtomic(masterFile, record)
}

// LoadPage reads the PageCacheBlob when it exists and is younger than maxAge.
// Staleness is a logical miss: the blob stays on disk. maxAge <= 0 disables
// the freshness check.
func (s *Store) LoadPage(maxAge time.Duration) (*models.PageCacheBlob, bool) {
	var blob models.PageCacheBlob
	found, err := s.readJSON(pageFile, &blob)
	if err != nil {
		// Fail open: a rebuild is always safe.
		s.log.Warn().Err(err).Msg("Failed to read page cache, treating as miss")
		return nil, false
	}
	if !found {
		return nil, false
	}
	if maxAge > 0 && time.Since(blob.CachedAt) > maxAge {
		return nil, false
	}
	return &blob, true
}

// SavePage persists the PageCacheBlob atomically, stamping CachedAt when the
// caller left it unset.
func (s *Store) SavePage(blob *models.PageCacheBlob) error {
	if blob.CachedAt.IsZero() {
		blob.CachedAt = time.Now().UTC()
	}
	return s.writeAtomic(pageFile, blob)
}

// DeletePage discards the whole PageCacheBlob. The next read triggers a full
// rebuild. Deleting an absent blob is a no-op.
func (s *Store) DeletePage() error {
	err := os.Remove(filepath.Join(s.dir, pageFile))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// readJSON loads and decodes one document. A missing file returns
// (false, nil); any other failure is an error for the caller to classify.
func (s *Store) readJSON(name string, v any) (bool, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	return true, nil
}

// writeAtomic marshals v and replaces the named document via temp-then-rename
// so a concurrent reader never observes a partial write.
func (s *Store) writeAtomic(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, filepath.Join(s.dir, name))
}
