// Package keymutex provides in-process mutual exclusion keyed by an arbitrary
// string. It fills the role a database advisory lock plays on servers that
// have one: callers racing on the same key serialize, callers on different
// keys proceed independently. SQLite carries no advisory locks, so write
// paths that must re-check state before appending take a key lock here and
// rely on a UNIQUE index as the cross-process backstop.
package keymutex

import (
	"hash/fnv"
	"sync"
)

const defaultShards = 128

// Mutex serializes callers per key. Keys are hashed onto a fixed shard set,
// so two distinct keys may occasionally share a lock; that only costs
// throughput, never correctness.
type Mutex struct {
	shards []sync.Mutex
}

// New creates a keyed mutex with the default shard count.
func New() *Mutex {
	return &Mutex{shards: make([]sync.Mutex, defaultShards)}
}

// Lock acquires the lock for key and returns its release function.
func (m *Mutex) Lock(key string) (unlock func()) {
	shard := &m.shards[shardIndex(key, len(m.shards))]
	shard.Lock()
	return shard.Unlock
}

func shardIndex(key string, shards int) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum64() % uint64(shards))
}
