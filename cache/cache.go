package cache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	// ErrClosed returned when the cache has been shut down
	ErrClosed = errors.New("cache is closed")
)

// Completion receives the value, or nil and false when the read timed out or was cleared
type Completion func(value interface{}, found bool)

type waiter struct {
	id       uint64
	resolver Completion
}

// AsyncWaitingReadCache holds values derived from page content. Reads of missing keys
// wait for a matching write until they time out. The store and the waiters are only
// touched from inside the serial queue.
type AsyncWaitingReadCache struct {
	queue   *SerialQueue
	timeout time.Duration
	values  map[string]interface{}
	waiters map[string][]*waiter
	ordinal uint64
}

// New cache where reads wait up to timeout for a write
func New(timeout time.Duration) *AsyncWaitingReadCache {
	return &AsyncWaitingReadCache{
		queue:   NewSerialQueue(),
		timeout: timeout,
		values:  make(map[string]interface{}),
		waiters: make(map[string][]*waiter),
	}
}

// Set the value and resolve everyone waiting on the key
func (c *AsyncWaitingReadCache) Set(key string, value interface{}) {
	c.queue.Enqueue(PriorityHigh, func() {
		c.set(key, value)
	})
}

// GetAsync calls completion with the value once available
func (c *AsyncWaitingReadCache) GetAsync(key string, completion Completion) {
	ok := c.queue.Enqueue(PriorityNormal, func() {
		c.getAsync(key, completion)
	})
	if !ok {
		completion(nil, false)
	}
}

// Get blocks until the value is available, the read times out or ctx expires
func (c *AsyncWaitingReadCache) Get(ctx context.Context, key string) (interface{}, bool, error) {
	type result struct {
		value interface{}
		found bool
	}
	resultCh := make(chan result, 1)
	ok := c.queue.Enqueue(PriorityNormal, func() {
		c.getAsync(key, func(value interface{}, found bool) {
			resultCh <- result{value: value, found: found}
		})
	})
	if !ok {
		return nil, false, ErrClosed
	}

	select {
	case r := <-resultCh:
		return r.value, r.found, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// CloneValue copies fromKey to toKey, waiting for fromKey if needed
func (c *AsyncWaitingReadCache) CloneValue(fromKey, toKey string) {
	c.queue.Enqueue(PriorityHigh, func() {
		c.getAsync(fromKey, func(value interface{}, found bool) {
			if !found {
				log.Debug().Str("from", fromKey).Str("to", toKey).Msg("clone source not found")
				return
			}
			c.set(toKey, value)
		})
	})
}

// Clear all values and reject every waiter
func (c *AsyncWaitingReadCache) Clear() {
	c.queue.Enqueue(PriorityLow, func() {
		waiters := c.waiters
		c.values = make(map[string]interface{})
		c.waiters = make(map[string][]*waiter)
		for _, keyWaiters := range waiters {
			for _, w := range keyWaiters {
				w.resolver(nil, false)
			}
		}
	})
}

// Close the cache, outstanding waiters are never resolved
func (c *AsyncWaitingReadCache) Close() {
	c.queue.Close()
}

func (c *AsyncWaitingReadCache) set(key string, value interface{}) {
	c.values[key] = value
	waiters := c.waiters[key]
	delete(c.waiters, key)
	for _, w := range waiters {
		w.resolver(value, true)
	}
}

func (c *AsyncWaitingReadCache) getAsync(key string, completion Completion) {
	if value, ok := c.values[key]; ok {
		completion(value, true)
		return
	}

	c.ordinal++
	id := c.ordinal
	c.waiters[key] = append(c.waiters[key], &waiter{id: id, resolver: completion})

	time.AfterFunc(c.timeout, func() {
		c.queue.Enqueue(PriorityLow, func() {
			c.reject(key, id)
		})
	})
}

// reject removes the waiter before resolving it so a waiter resolves exactly once
func (c *AsyncWaitingReadCache) reject(key string, id uint64) {
	waiters, ok := c.waiters[key]
	if !ok {
		return
	}

	for i, w := range waiters {
		if w.id != id {
			continue
		}
		waiters = append(waiters[:i], waiters[i+1:]...)
		if len(waiters) == 0 {
			delete(c.waiters, key)
		} else {
			c.waiters[key] = waiters
		}
		w.resolver(nil, false)
		return
	}
}
