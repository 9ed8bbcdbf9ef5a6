package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used for local development and tests.
// Writes can be delayed to simulate network latency and failed on demand.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]map[string]Data // collection path -> id -> data
	subs        map[string]map[*subscriber]struct{}
	latency     time.Duration
	failWrite   func(Write) error
	closed      bool
}

type subscriber struct {
	ch chan Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]Data),
		subs:        make(map[string]map[*subscriber]struct{}),
	}
}

// SetLatency delays every write by d before it is applied.
func (s *MemoryStore) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
}

// SetFailure installs a hook consulted for every write. A non-nil error aborts
// the write (and the whole batch it belongs to). Pass nil to clear.
func (s *MemoryStore) SetFailure(fn func(Write) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrite = fn
}

func (s *MemoryStore) Subscribe(ctx context.Context, collectionPath string) (<-chan Snapshot, error) {
	if !ValidCollectionPath(collectionPath) {
		return nil, fmt.Errorf("%w: %q", ErrBadPath, collectionPath)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrUnavailable
	}

	sub := &subscriber{ch: make(chan Snapshot, 1)}
	if s.subs[collectionPath] == nil {
		s.subs[collectionPath] = make(map[*subscriber]struct{})
	}
	s.subs[collectionPath][sub] = struct{}{}
	sub.ch <- s.snapshotLocked(collectionPath)

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[collectionPath][sub]; ok {
			delete(s.subs[collectionPath], sub)
			close(sub.ch)
		}
	}()

	return sub.ch, nil
}

func (s *MemoryStore) Put(ctx context.Context, collectionPath, id string, data Data) error {
	return s.Batch(ctx, []Write{PutWrite(collectionPath, id, data)})
}

func (s *MemoryStore) Update(ctx context.Context, collectionPath, id string, fields Data) error {
	return s.Batch(ctx, []Write{UpdateWrite(collectionPath, id, fields)})
}

func (s *MemoryStore) Delete(ctx context.Context, collectionPath, id string) error {
	return s.Batch(ctx, []Write{DeleteWrite(collectionPath, id)})
}

func (s *MemoryStore) Batch(ctx context.Context, writes []Write) error {
	for _, w := range writes {
		if !validWrite(w) {
			return fmt.Errorf("%w: %s %q/%q", ErrBadPath, w.Op, w.Path, w.ID)
		}
	}

	s.mu.Lock()
	latency := s.latency
	s.mu.Unlock()
	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrUnavailable
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Validate everything before touching state so the batch is all-or-nothing.
	for _, w := range writes {
		if s.failWrite != nil {
			if err := s.failWrite(w); err != nil {
				return err
			}
		}
		if w.Op == OpUpdate {
			if _, ok := s.collections[w.Path][w.ID]; !ok {
				return fmt.Errorf("%w: %s", ErrNotFound, DocPath(w.Path, w.ID))
			}
		}
	}

	touched := make(map[string]struct{})
	for _, w := range writes {
		col := s.collections[w.Path]
		if col == nil {
			col = make(map[string]Data)
			s.collections[w.Path] = col
		}
		switch w.Op {
		case OpPut:
			col[w.ID] = copyData(w.Data)
		case OpUpdate:
			merged := col[w.ID]
			if merged == nil {
				merged = Data{}
				col[w.ID] = merged
			}
			for k, v := range w.Data {
				merged[k] = copyValue(v)
			}
		case OpDelete:
			delete(col, w.ID)
		}
		touched[w.Path] = struct{}{}
	}

	for path := range touched {
		s.notifyLocked(path)
	}
	return nil
}

// Get returns a copy of one document. It is not part of Store and exists for
// tests and tooling.
func (s *MemoryStore) Get(collectionPath, id string) (Data, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.collections[collectionPath][id]
	if !ok {
		return nil, false
	}
	return copyData(d), true
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for path, subs := range s.subs {
		for sub := range subs {
			close(sub.ch)
		}
		delete(s.subs, path)
	}
	return nil
}

func (s *MemoryStore) snapshotLocked(path string) Snapshot {
	col := s.collections[path]
	docs := make([]Document, 0, len(col))
	for id, data := range col {
		docs = append(docs, Document{ID: id, Data: copyData(data)})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return Snapshot{Path: path, Docs: docs}
}

// notifyLocked replaces any undelivered snapshot with the latest one. Only
// the store sends on subscriber channels and it does so under s.mu, so the
// drain-then-send below cannot block.
func (s *MemoryStore) notifyLocked(path string) {
	subs := s.subs[path]
	if len(subs) == 0 {
		return
	}
	for sub := range subs {
		snap := s.snapshotLocked(path)
		select {
		case sub.ch <- snap:
		default:
			select {
			case <-sub.ch:
			default:
			}
			sub.ch <- snap
		}
	}
}

func copyData(d Data) Data {
	if d == nil {
		return Data{}
	}
	out := make(Data, len(d))
	for k, v := range d {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return map[string]interface{}(copyData(Data(t)))
	case Data:
		return copyData(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i := range t {
			out[i] = copyValue(t[i])
		}
		return out
	default:
		return v
	}
}
