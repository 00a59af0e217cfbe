package engine

import "sync"

// keyedMutex serializes work per key while leaving other keys untouched.
// Entries are kept for reuse; the map grows with the number of distinct
// resources this process has written, which is acceptable for a
// request-scoped service.
type keyedMutex struct {
	m sync.Map // key -> *sync.Mutex
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	v, _ := k.m.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
