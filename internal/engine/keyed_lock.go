package engine

import "sync"

// keyedLock serializes work per proposal id without a global lock, so
// settlements on unrelated proposals proceed independently. Unlike a
// TTL deduper, the lock is held for the full settlement (including the
// gateway wait): the loser of a race must observe the winner's retire,
// not a duplicate-request error.
type keyedLock struct {
	shards []klShard
}

type klShard struct {
	mu    sync.Mutex
	locks map[uint64]*lockState
}

type lockState struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLock(shardCount int) *keyedLock {
	if shardCount <= 0 {
		shardCount = 64
	}
	shards := make([]klShard, shardCount)
	for i := range shards {
		shards[i].locks = make(map[uint64]*lockState)
	}
	return &keyedLock{shards: shards}
}

// lock blocks until the per-id lock is held and returns the unlock.
func (k *keyedLock) lock(id uint64) func() {
	sh := &k.shards[int(id)%len(k.shards)]

	sh.mu.Lock()
	ls, ok := sh.locks[id]
	if !ok {
		ls = &lockState{}
		sh.locks[id] = ls
	}
	ls.refs++
	sh.mu.Unlock()

	ls.mu.Lock()
	return func() {
		ls.mu.Unlock()
		sh.mu.Lock()
		ls.refs--
		if ls.refs == 0 {
			delete(sh.locks, id)
		}
		sh.mu.Unlock()
	}
}
