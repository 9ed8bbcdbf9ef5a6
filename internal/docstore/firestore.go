package docstore

import (
	"context"
	"errors"
	"fmt"
	"log"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type FirestoreConfig struct {
	ProjectID       string
	CredentialsJSON string
}

// FirestoreStore backs Store with Cloud Firestore through the Firebase Admin SDK.
// Snapshot listeners map directly onto Subscribe.
type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(ctx context.Context, cfg FirestoreConfig) (*FirestoreStore, error) {
	var opts []option.ClientOption
	if cfg.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}

	log.Printf("Firestore connected: project=%s", cfg.ProjectID)
	return &FirestoreStore{client: client}, nil
}

func (s *FirestoreStore) Subscribe(ctx context.Context, collectionPath string) (<-chan Snapshot, error) {
	if !ValidCollectionPath(collectionPath) {
		return nil, fmt.Errorf("%w: %q", ErrBadPath, collectionPath)
	}

	it := s.client.Collection(collectionPath).Snapshots(ctx)
	out := make(chan Snapshot, 1)

	go func() {
		defer close(out)
		defer it.Stop()

		for {
			qs, err := it.Next()
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, iterator.Done) || status.Code(err) == codes.Canceled {
					return
				}
				log.Printf("[docstore] firestore listen path=%s error=%v", collectionPath, err)
				return
			}

			snaps, err := qs.Documents.GetAll()
			if err != nil {
				log.Printf("[docstore] firestore read path=%s error=%v", collectionPath, err)
				continue
			}
			docs := make([]Document, 0, len(snaps))
			for _, ds := range snaps {
				docs = append(docs, Document{ID: ds.Ref.ID, Data: Data(ds.Data())})
			}
			offer(out, Snapshot{Path: collectionPath, Docs: docs})
		}
	}()

	return out, nil
}

func (s *FirestoreStore) Put(ctx context.Context, collectionPath, id string, data Data) error {
	_, err := s.doc(collectionPath, id).Set(ctx, map[string]interface{}(data))
	return err
}

func (s *FirestoreStore) Update(ctx context.Context, collectionPath, id string, fields Data) error {
	_, err := s.doc(collectionPath, id).Update(ctx, toUpdates(fields))
	return mapFirestoreErr(err, collectionPath, id)
}

func (s *FirestoreStore) Delete(ctx context.Context, collectionPath, id string) error {
	// Firestore deletes without a precondition succeed when the document is absent.
	_, err := s.doc(collectionPath, id).Delete(ctx)
	return err
}

func (s *FirestoreStore) Batch(ctx context.Context, writes []Write) error {
	for _, w := range writes {
		if !validWrite(w) {
			return fmt.Errorf("%w: %s %q/%q", ErrBadPath, w.Op, w.Path, w.ID)
		}
	}

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for _, w := range writes {
			ref := s.doc(w.Path, w.ID)
			var err error
			switch w.Op {
			case OpPut:
				err = tx.Set(ref, map[string]interface{}(w.Data))
			case OpUpdate:
				err = tx.Update(ref, toUpdates(w.Data))
			case OpDelete:
				err = tx.Delete(ref)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%w: batch of %d writes", ErrNotFound, len(writes))
	}
	return err
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func (s *FirestoreStore) doc(collectionPath, id string) *firestore.DocumentRef {
	return s.client.Collection(collectionPath).Doc(id)
}

func toUpdates(fields Data) []firestore.Update {
	updates := make([]firestore.Update, 0, len(fields))
	for k, v := range fields {
		updates = append(updates, firestore.Update{FieldPath: firestore.FieldPath{k}, Value: v})
	}
	return updates
}

func mapFirestoreErr(err error, collectionPath, id string) error {
	if err == nil {
		return nil
	}
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, DocPath(collectionPath, id))
	}
	return err
}

// offer hands snap to a single-writer channel, replacing an undelivered one.
func offer(ch chan Snapshot, snap Snapshot) {
	select {
	case ch <- snap:
	default:
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}
