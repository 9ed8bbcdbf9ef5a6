package docstore

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore keeps every document of every collection path in one Mongo
// collection keyed by its full document path. Subscriptions are served from a
// change stream, so the deployment must be a replica set.
type MongoStore struct {
	client *mongo.Client
	col    *mongo.Collection
}

type mongoDoc struct {
	ID        string    `bson:"_id"`
	Parent    string    `bson:"parent"`
	Data      bson.M    `bson:"data"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func NewMongoStore(ctx context.Context, mongoURI, dbName string) (*MongoStore, error) {
	tlsCfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}
	opts := options.Client().ApplyURI(mongoURI)
	if opts.TLSConfig == nil && !isLocalURI(mongoURI) {
		opts.SetTLSConfig(tlsCfg)
	}
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}
	col := client.Database(dbName).Collection("documents")

	_, _ = col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "parent", Value: 1}},
	})

	log.Printf("MongoDB connected: db=%s", dbName)
	return &MongoStore{client: client, col: col}, nil
}

func (s *MongoStore) Subscribe(ctx context.Context, collectionPath string) (<-chan Snapshot, error) {
	if !ValidCollectionPath(collectionPath) {
		return nil, fmt.Errorf("%w: %q", ErrBadPath, collectionPath)
	}

	// Open the stream before the first read so no change falls between them.
	match := bson.D{{Key: "$match", Value: bson.D{
		{Key: "documentKey._id", Value: bson.D{{Key: "$regex", Value: "^" + regexp.QuoteMeta(collectionPath) + "/[^/]+$"}}},
	}}}
	stream, err := s.col.Watch(ctx, mongo.Pipeline{match})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	first, err := s.list(ctx, collectionPath)
	if err != nil {
		_ = stream.Close(context.Background())
		return nil, err
	}

	out := make(chan Snapshot, 1)
	out <- first

	go func() {
		defer close(out)
		defer stream.Close(context.Background())

		for stream.Next(ctx) {
			snap, err := s.list(ctx, collectionPath)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("[docstore] mongo read path=%s error=%v", collectionPath, err)
				continue
			}
			offer(out, snap)
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			log.Printf("[docstore] mongo watch path=%s error=%v", collectionPath, err)
		}
	}()

	return out, nil
}

func (s *MongoStore) Put(ctx context.Context, collectionPath, id string, data Data) error {
	return s.Batch(ctx, []Write{PutWrite(collectionPath, id, data)})
}

func (s *MongoStore) Update(ctx context.Context, collectionPath, id string, fields Data) error {
	if !validWrite(UpdateWrite(collectionPath, id, fields)) {
		return fmt.Errorf("%w: %q/%q", ErrBadPath, collectionPath, id)
	}
	return s.apply(ctx, UpdateWrite(collectionPath, id, fields))
}

func (s *MongoStore) Delete(ctx context.Context, collectionPath, id string) error {
	if !validWrite(DeleteWrite(collectionPath, id)) {
		return fmt.Errorf("%w: %q/%q", ErrBadPath, collectionPath, id)
	}
	return s.apply(ctx, DeleteWrite(collectionPath, id))
}

func (s *MongoStore) Batch(ctx context.Context, writes []Write) error {
	for _, w := range writes {
		if !validWrite(w) {
			return fmt.Errorf("%w: %s %q/%q", ErrBadPath, w.Op, w.Path, w.ID)
		}
	}
	if len(writes) == 1 {
		return s.apply(ctx, writes[0])
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(context.Background())

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		for _, w := range writes {
			if err := s.apply(sc, w); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) apply(ctx context.Context, w Write) error {
	key := DocPath(w.Path, w.ID)
	now := time.Now().UTC()

	switch w.Op {
	case OpPut:
		doc := mongoDoc{ID: key, Parent: w.Path, Data: bson.M(copyData(w.Data)), UpdatedAt: now}
		_, err := s.col.ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
		return err
	case OpUpdate:
		set := bson.M{"updated_at": now}
		for k, v := range w.Data {
			set["data."+k] = v
		}
		res, err := s.col.UpdateOne(ctx, bson.M{"_id": key}, bson.M{"$set": set})
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil
	case OpDelete:
		_, err := s.col.DeleteOne(ctx, bson.M{"_id": key})
		return err
	}
	return errors.New("unknown write op")
}

func (s *MongoStore) list(ctx context.Context, collectionPath string) (Snapshot, error) {
	cur, err := s.col.Find(ctx, bson.M{"parent": collectionPath}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return Snapshot{}, err
	}
	defer cur.Close(ctx)

	var rows []mongoDoc
	if err := cur.All(ctx, &rows); err != nil {
		return Snapshot{}, err
	}

	docs := make([]Document, 0, len(rows))
	for _, r := range rows {
		_, id, ok := SplitDocPath(r.ID)
		if !ok {
			continue
		}
		docs = append(docs, Document{ID: id, Data: fromBSON(r.Data)})
	}
	return Snapshot{Path: collectionPath, Docs: docs}, nil
}

// fromBSON converts driver container types back to plain maps and slices.
func fromBSON(m bson.M) Data {
	out := make(Data, len(m))
	for k, v := range m {
		out[k] = plainValue(v)
	}
	return out
}

func plainValue(v interface{}) interface{} {
	switch t := v.(type) {
	case bson.M:
		return map[string]interface{}(fromBSON(t))
	case bson.D:
		return map[string]interface{}(fromBSON(t.Map()))
	case bson.A:
		out := make([]interface{}, len(t))
		for i := range t {
			out[i] = plainValue(t[i])
		}
		return out
	case primitive.DateTime:
		return t.Time().UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}

func isLocalURI(uri string) bool {
	return regexp.MustCompile(`^mongodb://(localhost|127\.0\.0\.1)`).MatchString(uri)
}
