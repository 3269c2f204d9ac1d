package batch

import "sync"

// broadcaster fans progress snapshots out to independent subscribers. Each
// subscriber has a one-slot buffer holding the latest snapshot; a slow reader
// misses intermediate snapshots but never blocks the publisher.
type broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan Progress
	nextID int
	last   *Progress
	closed bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[int]chan Progress)}
}

// subscribe registers a subscriber. The returned function unsubscribes and is
// safe to call more than once. Subscribing after close yields the final
// snapshot (if any) on an already-closed channel.
func (b *broadcaster) subscribe() (<-chan Progress, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Progress, 1)
	if b.last != nil {
		ch <- *b.last
	}
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
}

func (b *broadcaster) publish(p Progress) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.last = &p
	for _, ch := range b.subs {
		select {
		case ch <- p:
		default:
			// replace the stale snapshot
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- p:
			default:
			}
		}
	}
}

func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}
