package feed

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhruvbuilds/strategia-connect/internal/docstore"
)

type item struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Rank int    `json:"rank"`
}

func itemKey(i item) string { return i.ID }

func newItemView() *View[item] {
	return NewView[item]("things", itemKey, nil)
}

func snapshot(docs ...item) docstore.Snapshot {
	snap := docstore.Snapshot{Path: "things"}
	for _, d := range docs {
		snap.Docs = append(snap.Docs, docstore.Document{ID: d.ID, Data: docstore.MustEncode(d)})
	}
	return snap
}

func names(items []item) []string {
	out := make([]string, 0, len(items))
	for _, i := range items {
		out = append(out, i.Name)
	}
	return out
}

func TestView_ApplyReplacesWholesale(t *testing.T) {
	v := newItemView()
	v.Apply(snapshot(item{ID: "a", Name: "A"}, item{ID: "b", Name: "B"}))
	v.Apply(snapshot(item{ID: "c", Name: "C"}))

	assert.Equal(t, []string{"c"}, v.IDs())
	assert.True(t, v.Loaded())
}

func TestView_PendingOverlaySurvivesSnapshot(t *testing.T) {
	v := newItemView()
	v.Apply(snapshot())

	v.Stage(item{ID: "x", Name: "X"})
	// A snapshot that predates the write must not make the staged item flicker out.
	v.Apply(snapshot(item{ID: "a", Name: "A"}))

	assert.Equal(t, []string{"a", "x"}, v.IDs())
	assert.True(t, v.Pending("x"))
}

func TestView_AckedOverlayDroppedOnNextSnapshot(t *testing.T) {
	v := newItemView()
	token := v.Stage(item{ID: "x", Name: "X"})
	v.Ack("x", token)
	assert.True(t, v.Has("x"), "acked overlay stays until the feed speaks")

	v.Apply(snapshot())
	assert.False(t, v.Has("x"), "snapshot is authoritative once the overlay settled")
}

func TestView_FailedOverlayNotRolledBackImmediately(t *testing.T) {
	v := newItemView()
	v.Apply(snapshot(item{ID: "x", Name: "X"}))

	token := v.StageDelete("x")
	v.Fail("x", token)
	assert.False(t, v.Has("x"))
	assert.False(t, v.Pending("x"))

	v.Apply(snapshot(item{ID: "x", Name: "X"}))
	assert.True(t, v.Has("x"))
}

func TestView_StaleTokenIgnored(t *testing.T) {
	v := newItemView()
	old := v.Stage(item{ID: "x", Name: "old"})
	v.Stage(item{ID: "x", Name: "new"})

	v.Fail("x", old)
	assert.True(t, v.Pending("x"), "older completion must not settle the newer overlay")

	got, ok := v.Get("x")
	require.True(t, ok)
	assert.Equal(t, "new", got.Name)
}

func TestView_SeedWins(t *testing.T) {
	v := newItemView()
	v.Seed([]item{{ID: "core1", Name: "Seed"}})
	v.Apply(snapshot(item{ID: "core1", Name: "Live"}, item{ID: "p", Name: "P"}))

	got, ok := v.Get("core1")
	require.True(t, ok)
	assert.Equal(t, "Seed", got.Name)
	assert.Equal(t, 2, v.Len())

	v.Reset()
	assert.Equal(t, []string{"core1"}, v.IDs())
}

func TestView_LoadIgnoredAfterLiveSnapshot(t *testing.T) {
	v := newItemView()
	v.Load([]item{{ID: "cached", Name: "C"}})
	assert.True(t, v.Has("cached"))
	assert.False(t, v.Loaded())

	v.Apply(snapshot(item{ID: "live"}))
	v.Load([]item{{ID: "cached", Name: "C"}})
	assert.Equal(t, []string{"live"}, v.IDs())
}

func TestView_ListOrder(t *testing.T) {
	v := NewView[item]("things", itemKey, func(a, b item) bool { return a.Rank > b.Rank })
	v.Apply(snapshot(item{ID: "a", Name: "low", Rank: 1}, item{ID: "b", Name: "high", Rank: 9}))
	v.Stage(item{ID: "c", Name: "mid", Rank: 5})

	assert.Equal(t, []string{"high", "mid", "low"}, names(v.List()))
}

func TestView_Discard(t *testing.T) {
	v := newItemView()
	v.Stage(item{ID: "x"})
	v.Discard("x")
	assert.False(t, v.Has("x"))
}

func TestView_OnChange(t *testing.T) {
	v := newItemView()
	var calls int32
	v.OnChange(func() { atomic.AddInt32(&calls, 1) })

	v.Apply(snapshot())
	v.Stage(item{ID: "x"})
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

// flakyStore fails the first Subscribe and closes the first live channel early.
type flakyStore struct {
	*docstore.MemoryStore
	calls int32
}

func (f *flakyStore) Subscribe(ctx context.Context, path string) (<-chan docstore.Snapshot, error) {
	if atomic.AddInt32(&f.calls, 1) == 1 {
		return nil, errors.New("listen refused")
	}
	return f.MemoryStore.Subscribe(ctx, path)
}

func TestEngine_ResubscribesAfterError(t *testing.T) {
	store := &flakyStore{MemoryStore: docstore.NewMemoryStore()}
	require.NoError(t, store.Put(context.Background(), "things", "a", docstore.Data{"name": "A"}))

	e := NewEngine(store)
	e.SetBackoff(time.Millisecond, 5*time.Millisecond)
	v := newItemView()
	stop := e.Start(context.Background(), v)
	defer stop()

	require.Eventually(t, func() bool { return v.Has("a") }, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&store.calls), int32(2))
}

func TestEngine_StopTearsDown(t *testing.T) {
	store := docstore.NewMemoryStore()
	e := NewEngine(store)
	v := newItemView()
	stop := e.Start(context.Background(), v)
	require.Eventually(t, v.Loaded, time.Second, 5*time.Millisecond)
	stop()

	require.NoError(t, store.Put(context.Background(), "things", "late", docstore.Data{}))
	time.Sleep(20 * time.Millisecond)
	assert.False(t, v.Has("late"))
}
