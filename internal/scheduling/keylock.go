package scheduling

import "sync"

// keyedMutex serializes check-then-act sequences per
// (tenant, psychologist) pair. Different keys proceed in parallel.
// Entries are reference-counted and removed once unused; the Postgres
// exclusion constraint backstops deployments with multiple processes.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*lockEntry)}
}

// Lock blocks until the key is exclusively held and returns the
// release function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &lockEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func lockKey(tenantID, psychologistID string) string {
	return tenantID + "/" + psychologistID
}
