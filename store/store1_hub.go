package store

import "sync"

// Hub fans record change events out to watchers. Subscriber channels are
// small and sends never block: a watcher that is behind already has an
// event queued, and re-reading on that event shows it the newest state.
type Hub struct {
	mu   sync.Mutex
	next int
	subs map[string]map[int]chan Event
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[int]chan Event)}
}

func (h *Hub) Publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs[e.Collection] {
		select {
		case ch <- e:
		default:
		}
	}
}

func (h *Hub) Watch(collection string) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subs[collection] == nil {
		h.subs[collection] = make(map[int]chan Event)
	}

	id := h.next
	h.next++
	ch := make(chan Event, 8)
	h.subs[collection][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[collection], id)
			close(ch)
		})
	}
	return ch, cancel
}
