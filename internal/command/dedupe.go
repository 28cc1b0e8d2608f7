package command

import "sync"

// seenCache remembers recently executed request ids and their logical
// result so a retried command is a no-op returning the same answer.
// Capacity is fixed; the oldest entry is evicted first.
type seenCache struct {
	mu       sync.Mutex
	capacity int
	order    []string
	results  map[string]Result
}

func newSeenCache(capacity int) *seenCache {
	if capacity < 1 {
		capacity = 1
	}
	return &seenCache{
		capacity: capacity,
		results:  make(map[string]Result, capacity),
	}
}

func (c *seenCache) get(requestID string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.results[requestID]
	return res, ok
}

func (c *seenCache) put(requestID string, res Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.results[requestID]; exists {
		c.results[requestID] = res
		return
	}
	if len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.results, oldest)
	}
	c.order = append(c.order, requestID)
	c.results[requestID] = res
}
