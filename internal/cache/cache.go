package cache

// EvictCallback is called when an entry is evicted from the cache.
type EvictCallback func(key string, value []byte)

// Cache is a byte-value cache used as the in-memory hot layer in front of the
// durable file store. Entries expire by TTL and by LRU pressure; the durable
// layer underneath remains the authority.
type Cache interface {
	// Get retrieves a value by key. Returns the value and true if found.
	Get(key string) ([]byte, bool)

	// Set stores a value with the given key, overwriting any existing entry.
	Set(key string, value []byte)

	// Remove drops the entry for key if present.
	Remove(key string)

	// Len returns the number of entries currently in the cache.
	Len() int

	// Close releases any resources held by the cache.
	Close() error
}
