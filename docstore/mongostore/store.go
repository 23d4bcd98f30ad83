// Package mongostore is a docstore backend on MongoDB. Partial updates map
// directly onto $set and $unset.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/eringen/microfeed/docstore"
)

const defaultDatabase = "microfeed"

func init() {
	docstore.Register(docstore.DriverMongo, func(ctx context.Context, dsn string) (docstore.Store, error) {
		return Connect(ctx, dsn, "")
	})
}

// Store is a docstore.Store backed by one MongoDB database.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials uri, pings the primary and returns a Store on database. An
// empty database name is taken from the URI path, falling back to "microfeed".
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	if database == "" {
		database = databaseFromURI(uri)
	}
	opts := options.Client().
		ApplyURI(uri).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1)).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongostore: ping: %w", err)
	}
	s := &Store{client: client, db: client.Database(database)}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func databaseFromURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return defaultDatabase
	}
	if name := strings.Trim(u.Path, "/"); name != "" {
		return name
	}
	return defaultDatabase
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.db.Collection("tweets").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("mongostore: ensure indexes: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

// Create implements docstore.Store.
func (s *Store) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	oid := bson.NewObjectID()
	doc := bson.M{"_id": oid}
	for k, v := range fields {
		doc[k] = v
	}
	if _, err := s.db.Collection(collection).InsertOne(ctx, doc); err != nil {
		return "", err
	}
	return oid.Hex(), nil
}

// Get implements docstore.Store.
func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Record, error) {
	var doc bson.M
	err := s.db.Collection(collection).FindOne(ctx, idFilter(id)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return docstore.Record{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Record{}, err
	}
	return toRecord(doc), nil
}

// Query implements docstore.Store.
func (s *Store) Query(ctx context.Context, collection string, q docstore.Query) ([]docstore.Record, error) {
	filter := bson.M{}
	for k, v := range q.Where {
		filter[k] = v
	}
	opts := options.Find()
	if q.OrderBy != "" {
		dir := 1
		if q.Desc {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: q.OrderBy, Value: dir}, {Key: "_id", Value: dir}})
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := s.db.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]docstore.Record, 0, len(docs))
	for _, d := range docs {
		out = append(out, toRecord(d))
	}
	return out, nil
}

// Update implements docstore.Store.
func (s *Store) Update(ctx context.Context, collection, id string, p docstore.Patch) error {
	coll := s.db.Collection(collection)
	update := updateDoc(p)
	if len(update) == 0 {
		n, err := coll.CountDocuments(ctx, idFilter(id))
		if err != nil {
			return err
		}
		if n == 0 {
			return docstore.ErrNotFound
		}
		return nil
	}
	res, err := coll.UpdateOne(ctx, idFilter(id), update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

// Set implements docstore.Store.
func (s *Store) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	_, err := s.db.Collection(collection).UpdateOne(ctx, idFilter(id),
		updateDoc(docstore.Patch{Set: fields}),
		options.UpdateOne().SetUpsert(true))
	return err
}

// Delete implements docstore.Store.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	_, err := s.db.Collection(collection).DeleteOne(ctx, idFilter(id))
	return err
}

// updateDoc turns a patch into an update document. Removal is an explicit
// $unset, never a $set to null.
func updateDoc(p docstore.Patch) bson.D {
	var update bson.D
	if len(p.Set) > 0 {
		set := bson.M{}
		for k, v := range p.Set {
			set[k] = v
		}
		update = append(update, bson.E{Key: "$set", Value: set})
	}
	if len(p.Unset) > 0 {
		unset := bson.M{}
		for _, k := range p.Unset {
			unset[k] = ""
		}
		update = append(update, bson.E{Key: "$unset", Value: unset})
	}
	return update
}

// idFilter matches ObjectID ids by their hex form and everything else
// (e.g. avatar documents keyed by user id) as a plain string.
func idFilter(id string) bson.M {
	if oid, err := bson.ObjectIDFromHex(id); err == nil {
		return bson.M{"_id": oid}
	}
	return bson.M{"_id": id}
}

func toRecord(doc bson.M) docstore.Record {
	var id string
	switch v := doc["_id"].(type) {
	case bson.ObjectID:
		id = v.Hex()
	case string:
		id = v
	default:
		id = fmt.Sprint(v)
	}
	fields := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == "_id" {
			continue
		}
		fields[k] = normalize(v)
	}
	return docstore.Record{ID: id, Fields: fields}
}

// normalize converts driver container types to plain Go maps and slices.
func normalize(v any) any {
	switch t := v.(type) {
	case bson.M:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case bson.DateTime:
		return t.Time()
	}
	return v
}
