package outbox

import "github.com/dhruvbuilds/strategia-connect/internal/feed"

// Overlay is the local side of a command: staged before the remote write and
// settled by its outcome.
type Overlay interface {
	Stage()
	Ack()
	Fail()
}

type viewOverlay[T any] struct {
	view    *feed.View[T]
	id      string
	item    T
	deleted bool
	token   uint64
}

// Put overlays item in v.
func Put[T any](v *feed.View[T], item T) Overlay {
	return &viewOverlay[T]{view: v, id: v.KeyOf(item), item: item}
}

// Remove overlays the deletion of id from v.
func Remove[T any](v *feed.View[T], id string) Overlay {
	return &viewOverlay[T]{view: v, id: id, deleted: true}
}

func (o *viewOverlay[T]) Stage() {
	if o.deleted {
		o.token = o.view.StageDelete(o.id)
		return
	}
	o.token = o.view.Stage(o.item)
}

func (o *viewOverlay[T]) Ack()  { o.view.Ack(o.id, o.token) }
func (o *viewOverlay[T]) Fail() { o.view.Fail(o.id, o.token) }
