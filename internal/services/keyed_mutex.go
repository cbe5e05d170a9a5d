package services

import "sync"

// keyedMutex serializes work per string key. Entries are removed once
// the last holder releases, so the map does not grow with history.
type keyedMutex struct {
	mu   sync.Mutex
	keys map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{keys: make(map[string]*keyLock)}
}

// Lock blocks until the key is free and returns the unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	entry, ok := k.keys[key]
	if !ok {
		entry = &keyLock{}
		k.keys[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.keys, key)
		}
		k.mu.Unlock()
	}
}
