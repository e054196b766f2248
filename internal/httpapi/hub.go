package httpapi

import "sync"

// hub fans transcript feed messages out to every subscribed connection.
// Sends never block; a saturated subscriber drops messages instead of
// stalling the publisher.
type hub struct {
	mu   sync.Mutex
	subs map[int]chan any
	next int
}

func newHub() *hub {
	return &hub{subs: make(map[int]chan any)}
}

func (h *hub) subscribe() (int, <-chan any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	ch := make(chan any, 64)
	h.subs[id] = ch
	return id, ch
}

func (h *hub) unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

// broadcast delivers msg to all subscribers except the one identified by from.
// Pass a negative from to reach everyone.
func (h *hub) broadcast(from int, msg any) (delivered, dropped int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		if id == from {
			continue
		}
		select {
		case ch <- msg:
			delivered++
		default:
			dropped++
		}
	}
	return delivered, dropped
}

// send delivers msg to one subscriber, dropping it when the queue is full so
// per-connection writes stay single-threaded and unblocked.
func (h *hub) send(id int, msg any) {
	h.mu.Lock()
	ch, ok := h.subs[id]
	h.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- msg:
	default:
	}
}

func (h *hub) size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
