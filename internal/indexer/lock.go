package indexer

import (
	"sync"

	"github.com/seekr-dev/codeseek/pkg/types"
)

// keyLocks provides non-blocking per-repository locks. Two concurrent
// indexing runs for the same (owner, repo, branch) key must never overlap;
// runs for different keys may.
type keyLocks struct {
	mu   sync.Mutex
	held map[types.RepoKey]struct{}
}

func newKeyLocks() *keyLocks {
	return &keyLocks{held: make(map[types.RepoKey]struct{})}
}

// TryAcquire attempts to take the lock for key without blocking.
// Returns false when another run holds it.
func (l *keyLocks) TryAcquire(key types.RepoKey) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return false
	}
	l.held[key] = struct{}{}
	return true
}

// Held reports whether the lock for key is currently taken.
func (l *keyLocks) Held(key types.RepoKey) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key]
	return ok
}

// Release frees the lock for key. Must only be called by the goroutine
// that acquired it.
func (l *keyLocks) Release(key types.RepoKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
}
