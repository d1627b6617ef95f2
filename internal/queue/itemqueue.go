package queue

import "github.com/vbonduro/stocktake/internal/domain"

type node struct {
	item       domain.AreaItem
	prev, next *node
}

// ItemQueue is the ordered working set of items for an active session. The
// cursor points at the item currently in front of the worker. Skip moves the
// current node to the tail, so a skipped item is revisited only after every
// other item has been seen in the current pass; the relink is O(1) no matter
// how large the area is.
type ItemQueue struct {
	head, tail *node
	cursor     *node
	pos        int
	length     int
	skips      map[int64]int
}

// New builds a queue over items in their given order, cursor at the first.
func New(items []domain.AreaItem) *ItemQueue {
	q := &ItemQueue{skips: make(map[int64]int)}
	for _, it := range items {
		q.push(it)
	}
	q.cursor = q.head
	return q
}

// Restore rebuilds a queue from a paused snapshot: items in their snapshot
// order, the saved cursor position, and the accumulated skip counters.
func Restore(items []domain.AreaItem, cursor int, skips map[int64]int) *ItemQueue {
	q := New(items)
	for id, n := range skips {
		q.skips[id] = n
	}
	for q.pos < cursor && q.Next() {
	}
	return q
}

func (q *ItemQueue) push(it domain.AreaItem) {
	n := &node{item: it}
	if q.tail == nil {
		q.head, q.tail = n, n
	} else {
		n.prev = q.tail
		q.tail.next = n
		q.tail = n
	}
	q.length++
}

func (q *ItemQueue) Len() int { return q.length }

// Position is the 0-based ordinal of the cursor within the current order.
func (q *ItemQueue) Position() int { return q.pos }

func (q *ItemQueue) IsFirst() bool { return q.pos == 0 }

func (q *ItemQueue) IsLast() bool { return q.cursor != nil && q.cursor == q.tail }

// Current returns the item under the cursor, or false for an empty queue.
func (q *ItemQueue) Current() (domain.AreaItem, bool) {
	if q.cursor == nil {
		return domain.AreaItem{}, false
	}
	return q.cursor.item, true
}

// Next advances the cursor. It reports false, without moving, if the cursor
// is already on the last item.
func (q *ItemQueue) Next() bool {
	if q.cursor == nil || q.cursor.next == nil {
		return false
	}
	q.cursor = q.cursor.next
	q.pos++
	return true
}

// Previous moves the cursor back. It reports false, without moving, if the
// cursor is already on the first item.
func (q *ItemQueue) Previous() bool {
	if q.cursor == nil || q.cursor.prev == nil {
		return false
	}
	q.cursor = q.cursor.prev
	q.pos--
	return true
}

// Skip moves the current item to the end of the queue and increments its
// skip counter. The cursor keeps its position, which now holds the item that
// was next. Queue length never changes. Returns the skipped item and its new
// skip count.
func (q *ItemQueue) Skip() (domain.AreaItem, int) {
	if q.cursor == nil {
		return domain.AreaItem{}, 0
	}
	n := q.cursor
	q.skips[n.item.ID]++

	if n != q.tail {
		next := n.next
		if n.prev != nil {
			n.prev.next = n.next
		} else {
			q.head = n.next
		}
		n.next.prev = n.prev

		n.prev = q.tail
		n.next = nil
		q.tail.next = n
		q.tail = n

		q.cursor = next
	}
	return n.item, q.skips[n.item.ID]
}

// SkipCount returns how many times the item has been skipped this session.
// Counters are monotonic; they inform UI hints and never block progress.
func (q *ItemQueue) SkipCount(itemID int64) int { return q.skips[itemID] }

// Skips returns a copy of all skip counters, for snapshotting.
func (q *ItemQueue) Skips() map[int64]int {
	out := make(map[int64]int, len(q.skips))
	for id, n := range q.skips {
		out[id] = n
	}
	return out
}

// Items returns the items in their current queue order.
func (q *ItemQueue) Items() []domain.AreaItem {
	out := make([]domain.AreaItem, 0, q.length)
	for n := q.head; n != nil; n = n.next {
		out = append(out, n.item)
	}
	return out
}
