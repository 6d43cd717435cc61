package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements Store on a MongoDB collection.
type MongoStore struct {
	col *mongo.Collection
}

func NewMongoStore(col *mongo.Collection) *MongoStore {
	return &MongoStore{col: col}
}

func (m *MongoStore) Kind() string { return "mongo" }

func (m *MongoStore) Find(ctx context.Context, filter bson.M, projection []string, opts FindOptions) ([]bson.M, error) {
	if filter == nil {
		filter = bson.M{}
	}
	fo := options.Find()
	if opts.Limit > 0 {
		fo.SetLimit(opts.Limit)
	}
	if opts.Skip > 0 {
		fo.SetSkip(opts.Skip)
	}
	if len(opts.Sort) > 0 {
		fo.SetSort(opts.Sort)
	} else {
		fo.SetSort(bson.D{{Key: "_id", Value: 1}})
	}
	if p := projectionDoc(projection); p != nil {
		fo.SetProjection(p)
	}
	cur, err := m.col.Find(ctx, filter, fo)
	if err != nil {
		return nil, fmt.Errorf("mongo find: %w", err)
	}
	defer cur.Close(ctx)
	out := []bson.M{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("mongo find decode: %w", err)
	}
	return out, nil
}

func (m *MongoStore) Count(ctx context.Context, filter bson.M) (int64, error) {
	if filter == nil {
		filter = bson.M{}
	}
	n, err := m.col.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("mongo count: %w", err)
	}
	return n, nil
}

func (m *MongoStore) FindByID(ctx context.Context, id string) (bson.M, error) {
	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	return m.FindOne(ctx, bson.M{"_id": oid})
}

func (m *MongoStore) FindOne(ctx context.Context, filter bson.M) (bson.M, error) {
	var out bson.M
	if err := m.col.FindOne(ctx, filter).Decode(&out); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNoDocument
		}
		return nil, fmt.Errorf("mongo find one: %w", err)
	}
	return out, nil
}

func (m *MongoStore) Insert(ctx context.Context, doc bson.M) (bson.M, error) {
	rec := bson.M{}
	for k, v := range doc {
		rec[k] = v
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	if _, ok := rec["_id"]; !ok {
		rec["_id"] = primitive.NewObjectID()
	}
	rec["createdAt"] = now
	rec["updatedAt"] = now
	if _, err := m.col.InsertOne(ctx, rec); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, errors.Join(ErrDuplicateKey, err)
		}
		return nil, fmt.Errorf("mongo insert: %w", err)
	}
	return rec, nil
}

func (m *MongoStore) DeleteOne(ctx context.Context, filter bson.M) (int64, error) {
	res, err := m.col.DeleteOne(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("mongo delete: %w", err)
	}
	return res.DeletedCount, nil
}

func (m *MongoStore) Save(ctx context.Context, s Save) (bson.M, error) {
	filter := bson.M{"_id": s.ID}
	set := bson.M{"updatedAt": time.Now().UTC().Truncate(time.Millisecond)}
	for k, v := range s.Set {
		set[k] = v
	}
	update := bson.M{"$set": set}
	if len(s.Unset) > 0 {
		unset := bson.M{}
		for _, k := range s.Unset {
			unset[k] = ""
		}
		update["$unset"] = unset
	}
	if s.VersionKey != "" {
		filter[s.VersionKey] = s.Version
		update["$inc"] = bson.M{s.VersionKey: 1}
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var out bson.M
	err := m.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&out)
	if err == nil {
		return out, nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return nil, errors.Join(ErrDuplicateKey, err)
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("mongo save: %w", err)
	}
	// Nothing matched: either the record is gone or its version moved on.
	current, ferr := m.FindOne(ctx, bson.M{"_id": s.ID})
	if ferr != nil {
		return nil, ferr
	}
	return nil, fmt.Errorf("%w: id %s submitted version %d, stored version %v",
		ErrVersionConflict, s.ID.Hex(), s.Version, current[s.VersionKey])
}

func (m *MongoStore) Aggregate(ctx context.Context, pipeline mongo.Pipeline, out any) error {
	cur, err := m.col.Aggregate(ctx, pipeline)
	if err != nil {
		return fmt.Errorf("mongo aggregate: %w", err)
	}
	defer cur.Close(ctx)
	if err := cur.All(ctx, out); err != nil {
		return fmt.Errorf("mongo aggregate decode: %w", err)
	}
	return nil
}

func (m *MongoStore) Distinct(ctx context.Context, field string, filter bson.M) ([]any, error) {
	if filter == nil {
		filter = bson.M{}
	}
	vals, err := m.col.Distinct(ctx, field, filter)
	if err != nil {
		return nil, fmt.Errorf("mongo distinct: %w", err)
	}
	return vals, nil
}
