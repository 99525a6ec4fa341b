// Package syncutil provides the per-key locking used to serialize
// wallet and credit-term mutations inside one process.
package syncutil

import (
	"context"
	"hash/fnv"
	"sync"
)

const shardCount = 256

// ContextShardedMutex is a fixed pool of channel-based mutexes keyed
// by string. The wallet service locks per account ID and the credit
// service per term ID; memory stays bounded no matter how many keys
// appear, at the cost of occasional false sharing between keys that
// hash to the same shard. The channel implementation lets a waiter
// give up when its request context is cancelled, so one slow
// settlement cannot pin every handler queued behind the same key.
type ContextShardedMutex struct {
	shards [shardCount]chanMutex
	once   sync.Once
}

// chanMutex is a mutex implemented as a one-slot channel so acquisition
// can be selected against ctx.Done().
type chanMutex struct {
	ch chan struct{}
}

// NewContextShardedMutex creates a context-aware sharded mutex.
func NewContextShardedMutex() *ContextShardedMutex {
	m := &ContextShardedMutex{}
	m.init()
	return m
}

func (m *ContextShardedMutex) init() {
	m.once.Do(func() {
		for i := range m.shards {
			m.shards[i].ch = make(chan struct{}, 1)
			m.shards[i].ch <- struct{}{} // Start unlocked.
		}
	})
}

// LockContext acquires the mutex for key. On success it returns the
// unlock function, which the caller MUST invoke. When ctx is cancelled
// while waiting it returns nil and the context error, and the lock is
// not held.
func (m *ContextShardedMutex) LockContext(ctx context.Context, key string) (func(), error) {
	m.init()
	shard := &m.shards[m.shardIdx(key)]

	select {
	case <-shard.ch:
		return func() { shard.ch <- struct{}{} }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *ContextShardedMutex) shardIdx(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % shardCount
}
