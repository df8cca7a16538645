package attendance

import "sync"

// KeyedMutex serializes work per employee inside one process.
// Entries are reference counted and removed when the last holder unlocks,
// so the map only holds employees with in-flight events.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[EmployeeID]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[EmployeeID]*keyedEntry)}
}

// Lock blocks until the employee's lock is held and returns its unlock func.
func (k *KeyedMutex) Lock(id EmployeeID) (unlock func()) {
	k.mu.Lock()
	e, ok := k.locks[id]
	if !ok {
		e = &keyedEntry{}
		k.locks[id] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}

// Len returns the number of employees with a held or awaited lock.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
