package memstore

import (
	"container/list"
	"time"

	"github.com/dkrylov/go-tier-cache/expiry"
)

// slot is one resident entry. estimated is the instant the entry becomes
// invisible; the value accessor keeps pushing it forward by the policy's
// window at access time.
type slot[T any] struct {
	key       string
	value     T
	cost      int64
	policy    expiry.Expiration
	estimated time.Time
}

func (s *slot[T]) expired(ref time.Time) bool {
	if s.policy.IsNever() {
		return false
	}
	return !s.estimated.After(ref)
}

// box is the bounded container backing Storage. It is not safe for
// concurrent use; Storage serializes access through its own lock.
//
// Eviction beyond the limits is least-recently-used, but callers must not
// rely on the exact victim order (only "limits are enforced" is promised).
type box[T any] struct {
	items      map[string]*list.Element // values are *slot[T]
	order      *list.List               // front = most recently used
	cost       int64
	costLimit  int64 // 0 = unlimited
	countLimit int   // 0 = unlimited
}

func newBox[T any](costLimit int64, countLimit int) *box[T] {
	return &box[T]{
		items:      make(map[string]*list.Element),
		order:      list.New(),
		costLimit:  costLimit,
		countLimit: countLimit,
	}
}

func (b *box[T]) get(key string) (*slot[T], bool) {
	el, ok := b.items[key]
	if !ok {
		return nil, false
	}
	return el.Value.(*slot[T]), true
}

// touch moves the entry to the recently-used end.
func (b *box[T]) touch(key string) {
	if el, ok := b.items[key]; ok {
		b.order.MoveToFront(el)
	}
}

// put inserts or overwrites, then trims back within limits.
func (b *box[T]) put(s *slot[T]) {
	if el, ok := b.items[s.key]; ok {
		old := el.Value.(*slot[T])
		b.cost += s.cost - old.cost
		el.Value = s
		b.order.MoveToFront(el)
	} else {
		b.items[s.key] = b.order.PushFront(s)
		b.cost += s.cost
	}
	b.trim()
}

func (b *box[T]) remove(key string) (*slot[T], bool) {
	el, ok := b.items[key]
	if !ok {
		return nil, false
	}
	s := el.Value.(*slot[T])
	b.order.Remove(el)
	delete(b.items, key)
	b.cost -= s.cost
	return s, true
}

func (b *box[T]) clear() {
	b.items = make(map[string]*list.Element)
	b.order.Init()
	b.cost = 0
}

func (b *box[T]) len() int       { return len(b.items) }
func (b *box[T]) totalCost() int64 { return b.cost }

// setLimits applies new bounds and trims immediately so a shrunk limit
// takes effect without waiting for the next store.
func (b *box[T]) setLimits(costLimit int64, countLimit int) {
	b.costLimit = costLimit
	b.countLimit = countLimit
	b.trim()
}

func (b *box[T]) trim() {
	for b.overLimit() {
		el := b.order.Back()
		if el == nil {
			return
		}
		b.remove(el.Value.(*slot[T]).key)
	}
}

func (b *box[T]) overLimit() bool {
	if b.costLimit > 0 && b.cost > b.costLimit {
		return true
	}
	return b.countLimit > 0 && len(b.items) > b.countLimit
}

// walk visits every resident slot; fn returning false stops the walk.
// Deleting the visited key inside fn is allowed.
func (b *box[T]) walk(fn func(s *slot[T]) bool) {
	for el := b.order.Front(); el != nil; {
		next := el.Next()
		if !fn(el.Value.(*slot[T])) {
			return
		}
		el = next
	}
}
