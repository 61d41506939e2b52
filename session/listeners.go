package session

import (
	"sort"
	"sync"
)

// Listeners is a subscribe/unsubscribe registry safe for concurrent use.
type Listeners struct {
	mu     sync.Mutex
	nextID int
	byID   map[int]Listener
}

func (l *Listeners) Add(listener Listener) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.byID == nil {
		l.byID = make(map[int]Listener)
	}
	id := l.nextID
	l.nextID++
	l.byID[id] = listener

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.byID, id)
			l.mu.Unlock()
		})
	}
}

// Emit calls every listener outside the lock, in subscription order.
func (l *Listeners) Emit(event Event, s *Session) {
	l.mu.Lock()
	ids := make([]int, 0, len(l.byID))
	for id := range l.byID {
		ids = append(ids, id)
	}
	listeners := make([]Listener, 0, len(ids))
	sort.Ints(ids)
	for _, id := range ids {
		listeners = append(listeners, l.byID[id])
	}
	l.mu.Unlock()

	for _, listener := range listeners {
		listener(event, s)
	}
}

func (l *Listeners) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byID)
}
