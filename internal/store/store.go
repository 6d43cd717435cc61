// Package store is the document-store driver used by repositories. It
// exposes the primitives the data-access layer relies on and reports
// failures with the sentinels below so callers can classify them.
package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	ErrNoDocument      = errors.New("no document found")
	ErrInvalidID       = errors.New("invalid document id")
	ErrVersionConflict = errors.New("document version conflict")
	ErrDuplicateKey    = errors.New("duplicate key")
)

// FindOptions limits a Find.
type FindOptions struct {
	Limit int64
	Skip  int64
	Sort  bson.D
}

// Save describes a conditional write of a loaded document.
type Save struct {
	ID primitive.ObjectID
	// VersionKey is empty when the collection has no optimistic concurrency.
	VersionKey string
	// Version is the version the document was loaded with.
	Version int64
	Set     bson.M
	Unset   []string
}

// Store is implemented by MongoStore and MemoryStore.
type Store interface {
	Find(ctx context.Context, filter bson.M, projection []string, opts FindOptions) ([]bson.M, error)
	Count(ctx context.Context, filter bson.M) (int64, error)
	FindByID(ctx context.Context, id string) (bson.M, error)
	FindOne(ctx context.Context, filter bson.M) (bson.M, error)
	// Insert assigns _id and timestamps and returns the stored record.
	Insert(ctx context.Context, doc bson.M) (bson.M, error)
	// DeleteOne removes at most one record matching filter and reports how many were removed.
	DeleteOne(ctx context.Context, filter bson.M) (int64, error)
	// Save applies s when the stored version still equals s.Version, bumping
	// it by one. It fails with ErrVersionConflict otherwise, or ErrNoDocument
	// when the record is gone.
	Save(ctx context.Context, s Save) (bson.M, error)
	// Aggregate runs pipeline and decodes the rows into out, a pointer to a slice.
	Aggregate(ctx context.Context, pipeline mongo.Pipeline, out any) error
	Distinct(ctx context.Context, field string, filter bson.M) ([]any, error)
	// Kind names the backend ("mongo" or "memory").
	Kind() string
}

// ParseID converts a hex identity into an ObjectID.
func ParseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, errors.Join(ErrInvalidID, err)
	}
	return oid, nil
}

func projectionDoc(fields []string) bson.M {
	if len(fields) == 0 {
		return nil
	}
	p := bson.M{}
	for _, f := range fields {
		p[f] = 1
	}
	return p
}
