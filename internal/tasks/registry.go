package tasks

// Registry is a claim-once map from a natural key to derived work.
//
// A key is accepted the first time it is reserved and never again for the lifetime of the
// registry. Accepted values wait in insertion order until drained.
type Registry[K comparable, V any] struct {
	claimed map[K]struct{}
	pending []V
}

// NewRegistry creates an empty registry.
func NewRegistry[K comparable, V any]() *Registry[K, V] {
	return &Registry[K, V]{claimed: make(map[K]struct{})}
}

// TryReserve claims key for v and reports whether this was the first claim.
func (r *Registry[K, V]) TryReserve(key K, v V) bool {
	if _, ok := r.claimed[key]; ok {
		return false
	}
	r.claimed[key] = struct{}{}
	r.pending = append(r.pending, v)
	return true
}

// Seen reports whether key has ever been claimed.
func (r *Registry[K, V]) Seen(key K) bool {
	_, ok := r.claimed[key]
	return ok
}

// Drain returns the pending values in insertion order and empties the pending set.
func (r *Registry[K, V]) Drain() []V {
	out := r.pending
	r.pending = nil
	return out
}

// Len returns the number of pending values.
func (r *Registry[K, V]) Len() int {
	return len(r.pending)
}

// CoverRegistry maps a cover URL to the songs waiting for it.
//
// Only the first reservation of a URL should trigger a download. An entry lives until the
// download settles: ReleaseAll on success, Drop on failure.
type CoverRegistry struct {
	owners map[string][]string
}

// NewCoverRegistry creates an empty cover registry.
func NewCoverRegistry() *CoverRegistry {
	return &CoverRegistry{owners: make(map[string][]string)}
}

// TryReserve records songID as wanting url and reports whether url was not yet registered.
func (c *CoverRegistry) TryReserve(url, songID string) bool {
	ids, ok := c.owners[url]
	c.owners[url] = append(ids, songID)
	return !ok
}

// ReleaseAll removes url and returns its song ids in registration order.
func (c *CoverRegistry) ReleaseAll(url string) []string {
	ids := c.owners[url]
	delete(c.owners, url)
	return ids
}

// Drop removes url without returning its songs.
func (c *CoverRegistry) Drop(url string) {
	delete(c.owners, url)
}

// Has reports whether url is registered.
func (c *CoverRegistry) Has(url string) bool {
	_, ok := c.owners[url]
	return ok
}

// Len returns the number of registered URLs.
func (c *CoverRegistry) Len() int {
	return len(c.owners)
}
