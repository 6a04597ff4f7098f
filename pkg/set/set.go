// Package set provides a thread-safe set on top of emirpasic/gods,
// used by the Application Registrar to track which application names
// have already been installed so a repeated hset event can be
// recognized and ignored (first-writer-wins).
package set

import (
	"sync"

	"github.com/emirpasic/gods/sets/hashset"
)

// ThreadSafeSet wraps hashset.Set with a single reader/writer lock.
// Extend with more of hashset.Set's methods as callers need them.
type ThreadSafeSet struct {
	set     *hashset.Set
	rwMutex sync.RWMutex
}

func NewThreadSafeSet(items ...interface{}) *ThreadSafeSet {
	hashSet := hashset.New(items...)
	return &ThreadSafeSet{set: hashSet, rwMutex: sync.RWMutex{}}
}

func (t *ThreadSafeSet) Contains(items ...interface{}) bool {
	// multiple goroutine reads allowed
	t.rwMutex.RLock()
	defer t.rwMutex.RUnlock()
	return t.set.Contains(items...)
}

func (t *ThreadSafeSet) Add(items ...interface{}) {
	// read-write lock
	t.rwMutex.Lock()
	defer t.rwMutex.Unlock()
	t.set.Add(items...)
}

func (t *ThreadSafeSet) Remove(items ...interface{}) {
	// read-write lock
	t.rwMutex.Lock()
	defer t.rwMutex.Unlock()
	t.set.Remove(items...)
}

func (t *ThreadSafeSet) Clear() {
	// read-write lock
	t.rwMutex.Lock()
	defer t.rwMutex.Unlock()
	t.set.Clear()
}

// Len reports the number of distinct items currently held.
func (t *ThreadSafeSet) Len() int {
	t.rwMutex.RLock()
	defer t.rwMutex.RUnlock()
	return t.set.Size()
}
