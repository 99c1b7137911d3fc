package review

import "sync"

// cardLocks hands out one mutex per card so that read-modify-write cycles on
// the same card run one at a time while different cards proceed in parallel.
type cardLocks struct {
	mu    sync.Mutex
	locks map[string]*cardLock
}

type cardLock struct {
	mu   sync.Mutex
	refs int
}

func newCardLocks() *cardLocks {
	return &cardLocks{locks: make(map[string]*cardLock)}
}

// lock blocks until the caller holds the card's lock and returns the
// function that releases it.
func (l *cardLocks) lock(cardID string) func() {
	l.mu.Lock()
	cl, ok := l.locks[cardID]
	if !ok {
		cl = &cardLock{}
		l.locks[cardID] = cl
	}
	cl.refs++
	l.mu.Unlock()

	cl.mu.Lock()
	return func() {
		cl.mu.Unlock()
		l.mu.Lock()
		cl.refs--
		if cl.refs == 0 {
			delete(l.locks, cardID)
		}
		l.mu.Unlock()
	}
}
