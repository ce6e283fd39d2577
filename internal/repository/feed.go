package repository

import "sync"

// changeFeed fans out "something changed for this user" signals to watchers.
// Signals are coalesced: a watcher that is busy reloading sees one pending
// signal, not one per write.
type changeFeed struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]feedSub
}

type feedSub struct {
	userID uint
	signal chan struct{}
}

func newChangeFeed() *changeFeed {
	return &changeFeed{subs: make(map[int]feedSub)}
}

func (f *changeFeed) subscribe(userID uint) (int, <-chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	sub := feedSub{userID: userID, signal: make(chan struct{}, 1)}
	f.subs[f.nextID] = sub
	return f.nextID, sub.signal
}

func (f *changeFeed) unsubscribe(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, id)
}

func (f *changeFeed) publish(userID uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.subs {
		if sub.userID != userID {
			continue
		}
		select {
		case sub.signal <- struct{}{}:
		default:
		}
	}
}

func (f *changeFeed) size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
