// Package pincache keeps card PINs in memory per (key, reader) pair.
//
// Entries live until the cache has been left alone for the idle period, until Clear is
// called (screen lock, explicit user request) or until Close. Every access restarts
// the idle timer.
package pincache

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultIdle is the inactivity period after which all PINs are forgotten.
const DefaultIdle = 60 * time.Second

// Cache is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]map[string]string
	idle    time.Duration
	timer   *time.Timer
	gen     uint64
	closed  bool
	logger  *slog.Logger
}

// New creates a cache forgetting its content after idle without access.
// A non-positive idle disables eviction; a nil logger means slog.Default().
func New(idle time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		entries: map[string]map[string]string{},
		idle:    idle,
		logger:  logger,
	}
}

// Get returns the PIN stored for key on reader.
func (c *Cache) Get(key, reader string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.touch()
	pin, ok := c.entries[key][reader]
	return pin, ok
}

// Put stores pin for key on reader. It is ignored once the cache is closed.
func (c *Cache) Put(key, reader, pin string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	readers, ok := c.entries[key]
	if !ok {
		readers = map[string]string{}
		c.entries[key] = readers
	}
	readers[reader] = pin
	c.touch()
}

// Delete forgets the PIN for key on reader. A key left without readers is dropped.
func (c *Cache) Delete(key, reader string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if readers, ok := c.entries[key]; ok {
		delete(readers, reader)
		if len(readers) == 0 {
			delete(c.entries, key)
		}
	}
	c.touch()
}

// Len returns the number of stored PINs.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, readers := range c.entries {
		n += len(readers)
	}
	return n
}

// Clear forgets every PIN.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clear("cleared")
}

// Close clears the cache and stops its timer. Later Puts are ignored.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.clear("closed")
}

// touch restarts the idle timer while there is something to forget. Callers hold mu.
func (c *Cache) touch() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.idle <= 0 || len(c.entries) == 0 {
		return
	}

	c.gen++
	gen := c.gen
	c.timer = time.AfterFunc(c.idle, func() { c.expire(gen) })
}

// expire runs from the idle timer. A callback from a superseded timer does nothing.
func (c *Cache) expire(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return
	}
	c.clear("idle")
}

func (c *Cache) clear(reason string) {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++

	if len(c.entries) > 0 {
		c.logger.Debug("PIN cache cleared", "reason", reason, "keys", len(c.entries))
	}
	c.entries = map[string]map[string]string{}
}
