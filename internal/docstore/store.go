package docstore

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	ErrNotFound    = errors.New("document not found")
	ErrBadPath     = errors.New("invalid collection path")
	ErrUnavailable = errors.New("document store unavailable")
)

// Data is the field map of a single document.
type Data map[string]interface{}

type Document struct {
	ID   string
	Data Data
}

// Snapshot is the full current document set of one collection.
type Snapshot struct {
	Path string
	Docs []Document
}

type OpKind int

const (
	OpPut OpKind = iota
	OpUpdate
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpPut:
		return "put"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	}
	return "unknown"
}

// Write is one document mutation inside a Batch.
type Write struct {
	Op   OpKind
	Path string
	ID   string
	Data Data
}

func PutWrite(path, id string, data Data) Write {
	return Write{Op: OpPut, Path: path, ID: id, Data: data}
}

func UpdateWrite(path, id string, fields Data) Write {
	return Write{Op: OpUpdate, Path: path, ID: id, Data: fields}
}

func DeleteWrite(path, id string) Write {
	return Write{Op: OpDelete, Path: path, ID: id}
}

// Store is the remote real-time document store.
//
// Subscribe delivers the current contents of collectionPath immediately and
// again after every change until ctx is cancelled, at which point the channel
// is closed. Slow readers only ever see the latest snapshot.
//
// Delete is idempotent. Update on a missing document returns ErrNotFound.
// Batch applies all writes atomically or none of them.
type Store interface {
	Subscribe(ctx context.Context, collectionPath string) (<-chan Snapshot, error)
	Put(ctx context.Context, collectionPath, id string, data Data) error
	Update(ctx context.Context, collectionPath, id string, fields Data) error
	Delete(ctx context.Context, collectionPath, id string) error
	Batch(ctx context.Context, writes []Write) error
	Close() error
}

// Encode converts a JSON-tagged value into document data.
func Encode(v interface{}) (Data, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out Data
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Decode fills v from document data, injecting the document id as "id".
func Decode(doc Document, v interface{}) error {
	data := make(Data, len(doc.Data)+1)
	for k, val := range doc.Data {
		data[k] = val
	}
	data["id"] = doc.ID
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// MustEncode is Encode for values known to be JSON safe.
func MustEncode(v interface{}) Data {
	d, err := Encode(v)
	if err != nil {
		panic(err)
	}
	return d
}
