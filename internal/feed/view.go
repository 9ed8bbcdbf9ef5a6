package feed

import (
	"log"
	"sort"
	"sync"

	"github.com/dhruvbuilds/strategia-connect/internal/docstore"
)

type overlayState int

const (
	statePending overlayState = iota
	stateAcked
	stateFailed
)

// overlay is a staged local mutation of one document that the feed has not
// echoed yet.
type overlay[T any] struct {
	token   uint64
	value   T
	deleted bool
	state   overlayState
}

// View is the materialized contents of one collection: the last confirmed
// snapshot plus staged local mutations layered on top, one per document id.
//
// A snapshot replaces the confirmed set wholesale. Overlays still pending are
// re-applied over it; acknowledged and failed overlays are dropped because the
// snapshot is now authoritative for them.
type View[T any] struct {
	mu        sync.RWMutex
	path      string
	key       func(T) string
	less      func(a, b T) bool
	confirmed map[string]T
	overlays  map[string]*overlay[T]
	seed      map[string]T
	loaded    bool
	seq       uint64
	onChange  func()
}

// NewView creates an empty view of path. key extracts the document id from a
// value; less orders List (nil orders by id).
func NewView[T any](path string, key func(T) string, less func(a, b T) bool) *View[T] {
	return &View[T]{
		path:      path,
		key:       key,
		less:      less,
		confirmed: make(map[string]T),
		overlays:  make(map[string]*overlay[T]),
	}
}

func (v *View[T]) Path() string {
	return v.path
}

// KeyOf returns the document id of item.
func (v *View[T]) KeyOf(item T) string {
	return v.key(item)
}

// OnChange registers fn to run after every change of the merged contents.
func (v *View[T]) OnChange(fn func()) {
	v.mu.Lock()
	v.onChange = fn
	v.mu.Unlock()
}

// Seed installs values that take precedence over anything else with the same id.
func (v *View[T]) Seed(items []T) {
	v.mu.Lock()
	v.seed = make(map[string]T, len(items))
	for _, it := range items {
		v.seed[v.key(it)] = it
	}
	v.mu.Unlock()
	v.changed()
}

// Apply replaces the confirmed set with snap.
func (v *View[T]) Apply(snap docstore.Snapshot) {
	next := make(map[string]T, len(snap.Docs))
	for _, doc := range snap.Docs {
		var item T
		if err := docstore.Decode(doc, &item); err != nil {
			log.Printf("[feed] decode path=%s id=%s error=%v", v.path, doc.ID, err)
			continue
		}
		next[doc.ID] = item
	}

	v.mu.Lock()
	v.confirmed = next
	v.loaded = true
	for id, o := range v.overlays {
		if o.state != statePending {
			delete(v.overlays, id)
		}
	}
	v.mu.Unlock()
	v.changed()
}

// Load fills the confirmed set from a cached copy. It is ignored once a live
// snapshot has arrived.
func (v *View[T]) Load(items []T) {
	v.mu.Lock()
	if v.loaded {
		v.mu.Unlock()
		return
	}
	v.confirmed = make(map[string]T, len(items))
	for _, it := range items {
		v.confirmed[v.key(it)] = it
	}
	v.mu.Unlock()
	v.changed()
}

// Reset forgets everything except the seed.
func (v *View[T]) Reset() {
	v.mu.Lock()
	v.confirmed = make(map[string]T)
	v.overlays = make(map[string]*overlay[T])
	v.loaded = false
	v.mu.Unlock()
	v.changed()
}

// Stage overlays item until the feed confirms it. The returned token
// identifies this mutation for Ack and Fail.
func (v *View[T]) Stage(item T) uint64 {
	return v.stage(v.key(item), item, false)
}

// StageDelete overlays the removal of id.
func (v *View[T]) StageDelete(id string) uint64 {
	var zero T
	return v.stage(id, zero, true)
}

func (v *View[T]) stage(id string, item T, deleted bool) uint64 {
	v.mu.Lock()
	v.seq++
	token := v.seq
	v.overlays[id] = &overlay[T]{token: token, value: item, deleted: deleted}
	v.mu.Unlock()
	v.changed()
	return token
}

// Ack marks the mutation as persisted. A token superseded by a newer Stage of
// the same id is ignored.
func (v *View[T]) Ack(id string, token uint64) {
	v.settle(id, token, stateAcked)
}

// Fail marks the mutation as rejected. The overlay stays visible until the
// next snapshot replaces it.
func (v *View[T]) Fail(id string, token uint64) {
	v.settle(id, token, stateFailed)
}

func (v *View[T]) settle(id string, token uint64, state overlayState) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if o, ok := v.overlays[id]; ok && o.token == token {
		o.state = state
	}
}

// Discard drops any overlay for id immediately.
func (v *View[T]) Discard(id string) {
	v.mu.Lock()
	_, ok := v.overlays[id]
	delete(v.overlays, id)
	v.mu.Unlock()
	if ok {
		v.changed()
	}
}

// Pending reports whether id has a staged mutation not yet settled.
func (v *View[T]) Pending(id string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	o, ok := v.overlays[id]
	return ok && o.state == statePending
}

// Confirmed reports whether the last snapshot contained id.
func (v *View[T]) Confirmed(id string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.confirmed[id]
	return ok
}

func (v *View[T]) Loaded() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.loaded
}

func (v *View[T]) Get(id string) (T, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.lookupLocked(id)
}

func (v *View[T]) Has(id string) bool {
	_, ok := v.Get(id)
	return ok
}

func (v *View[T]) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.mergedLocked())
}

// List returns the merged contents in view order.
func (v *View[T]) List() []T {
	v.mu.RLock()
	merged := v.mergedLocked()
	v.mu.RUnlock()

	ids := make([]string, 0, len(merged))
	for id := range merged {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, merged[id])
	}
	if v.less != nil {
		sort.SliceStable(out, func(i, j int) bool { return v.less(out[i], out[j]) })
	}
	return out
}

// IDs returns the merged document ids in sorted order.
func (v *View[T]) IDs() []string {
	v.mu.RLock()
	merged := v.mergedLocked()
	v.mu.RUnlock()

	ids := make([]string, 0, len(merged))
	for id := range merged {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (v *View[T]) lookupLocked(id string) (T, bool) {
	if item, ok := v.seed[id]; ok {
		return item, true
	}
	if o, ok := v.overlays[id]; ok {
		if o.deleted {
			var zero T
			return zero, false
		}
		return o.value, true
	}
	item, ok := v.confirmed[id]
	return item, ok
}

func (v *View[T]) mergedLocked() map[string]T {
	out := make(map[string]T, len(v.confirmed)+len(v.overlays)+len(v.seed))
	for id, item := range v.confirmed {
		out[id] = item
	}
	for id, o := range v.overlays {
		if o.deleted {
			delete(out, id)
		} else {
			out[id] = o.value
		}
	}
	for id, item := range v.seed {
		out[id] = item
	}
	return out
}

func (v *View[T]) changed() {
	v.mu.RLock()
	fn := v.onChange
	v.mu.RUnlock()
	if fn != nil {
		fn()
	}
}
