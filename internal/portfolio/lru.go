package portfolio

import "container/list"

// dedupeCapacity bounds the fill-application applied-set so a long-running
// process doesn't grow it without bound; per spec.md §9 the last 10,000
// (order_id, last_qty, trade_time_ms) keys are enough to catch exchange
// redeliveries after a reconnect.
const dedupeCapacity = 10000

// dedupeSet is a bounded LRU set of recently-applied fill keys. Plain
// container/list + map: the teacher carries no LRU dependency and none of
// the pack's other repos import one for this either, and the structure is
// about twenty lines — not a concern worth a dependency.
type dedupeSet struct {
	capacity int
	order    *list.List
	index    map[string]*list.Element
}

func newDedupeSet(capacity int) *dedupeSet {
	return &dedupeSet{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element),
	}
}

// seen reports whether key has already been recorded, marking it as the
// most-recently-used if so.
func (s *dedupeSet) seen(key string) bool {
	if el, ok := s.index[key]; ok {
		s.order.MoveToFront(el)
		return true
	}
	return false
}

// add records key, evicting the least-recently-used entry if at capacity.
func (s *dedupeSet) add(key string) {
	el := s.order.PushFront(key)
	s.index[key] = el
	for s.order.Len() > s.capacity {
		back := s.order.Back()
		if back == nil {
			break
		}
		s.order.Remove(back)
		delete(s.index, back.Value.(string))
	}
}
