package inbox

// DedupCache is a bounded, insertion-ordered set of processed message
// ids. It guarantees at-most-once processing per message id; the
// mailbox's unseen flag remains the source of truth for what is new.
type DedupCache struct {
	capacity int
	order    []string
	seen     map[string]struct{}
}

// DefaultDedupCapacity bounds the processed-id set.
const DefaultDedupCapacity = 10000

// NewDedupCache creates a cache that holds at most capacity ids. When
// the capacity is exceeded, the oldest half is evicted in one trim.
func NewDedupCache(capacity int) *DedupCache {
	if capacity <= 0 {
		capacity = DefaultDedupCapacity
	}
	return &DedupCache{
		capacity: capacity,
		seen:     make(map[string]struct{}),
	}
}

// Seen reports whether id has already been processed.
func (c *DedupCache) Seen(id string) bool {
	_, ok := c.seen[id]
	return ok
}

// Add records id as processed, trimming the oldest half of the set if
// the capacity is exceeded.
func (c *DedupCache) Add(id string) {
	if _, ok := c.seen[id]; ok {
		return
	}

	c.order = append(c.order, id)
	c.seen[id] = struct{}{}

	if len(c.order) > c.capacity {
		c.trim()
	}
}

// Len returns the number of ids currently held.
func (c *DedupCache) Len() int {
	return len(c.order)
}

// trim evicts the oldest half, retaining only the most recent ids.
func (c *DedupCache) trim() {
	cut := len(c.order) / 2
	for _, id := range c.order[:cut] {
		delete(c.seen, id)
	}
	c.order = append([]string(nil), c.order[cut:]...)
}
