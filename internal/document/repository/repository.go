package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nellyolofsson/wt2/internal/apperr"
	"github.com/nellyolofsson/wt2/internal/document"
	"github.com/nellyolofsson/wt2/internal/store"
	"github.com/nellyolofsson/wt2/pkg/logger"
	"github.com/nellyolofsson/wt2/pkg/metrics"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// DefaultLimit is the page size used when Options.Limit is not set.
const DefaultLimit = 20

var errUnexpectedDelete = errors.New("conditional delete matched nothing although the stored version is current")

// opMessages holds the client-facing message of each failed operation.
var opMessages = map[string]string{
	"get":       "Failed to get documents.",
	"get_by_id": "Failed to get document.",
	"get_one":   "Failed to get document.",
	"insert":    "Failed to insert document.",
	"delete":    "Failed to delete document.",
	"save":      "Failed to save document.",
	"aggregate": "Failed to get documents.",
	"distinct":  "Failed to get documents.",
}

// Options shape a Get.
type Options struct {
	Limit int64
	Skip  int64
	Sort  bson.D
}

type Pagination struct {
	TotalCount int64 `json:"totalCount"`
	Page       int64 `json:"page"`
	PerPage    int64 `json:"perPage"`
	TotalPages int64 `json:"totalPages"`
}

// Page is one page of documents.
type Page struct {
	Data       []*document.Document `json:"data"`
	Pagination Pagination           `json:"pagination"`
}

// Repository runs the storage operations of one schema. Every failure it
// returns is an *apperr.Error of kind Repository whose cause chain holds the
// store-level reason (store.ErrNoDocument, store.ErrVersionConflict,
// *document.ValidationError, ...).
type Repository struct {
	schema *document.Schema
	store  store.Store
}

func New(schema *document.Schema, st store.Store) *Repository {
	return &Repository{schema: schema, store: st}
}

func (r *Repository) Schema() *document.Schema { return r.schema }

// StoreKind names the backing store.
func (r *Repository) StoreKind() string { return r.store.Kind() }

// Get returns the documents matching filter, one page at a time.
func (r *Repository) Get(ctx context.Context, filter bson.M, projection []string, opts Options) (*Page, error) {
	done := r.observe("get")
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	skip := opts.Skip
	if skip < 0 {
		skip = 0
	}

	rows, err := r.store.Find(ctx, filter, projection, store.FindOptions{Limit: limit, Skip: skip, Sort: opts.Sort})
	if err != nil {
		return nil, done(r.wrap("get", err))
	}
	total, err := r.store.Count(ctx, filter)
	if err != nil {
		return nil, done(r.wrap("get", err))
	}
	docs, err := r.hydrateAll(rows)
	if err != nil {
		return nil, done(r.wrap("get", err))
	}
	done(nil)
	return &Page{
		Data: docs,
		Pagination: Pagination{
			TotalCount: total,
			Page:       skip/limit + 1,
			PerPage:    limit,
			TotalPages: (total + limit - 1) / limit,
		},
	}, nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*document.Document, error) {
	done := r.observe("get_by_id")
	raw, err := r.store.FindByID(ctx, id)
	if err != nil {
		return nil, done(r.wrap("get_by_id", err))
	}
	d, err := document.FromBSON(r.schema, raw)
	if err != nil {
		return nil, done(r.wrap("get_by_id", err))
	}
	done(nil)
	return d, nil
}

func (r *Repository) GetOne(ctx context.Context, filter bson.M) (*document.Document, error) {
	done := r.observe("get_one")
	raw, err := r.store.FindOne(ctx, filter)
	if err != nil {
		return nil, done(r.wrap("get_one", err))
	}
	d, err := document.FromBSON(r.schema, raw)
	if err != nil {
		return nil, done(r.wrap("get_one", err))
	}
	done(nil)
	return d, nil
}

// Insert creates a document from data. Defaults are applied before the
// document is validated.
func (r *Repository) Insert(ctx context.Context, data map[string]any) (*document.Document, error) {
	done := r.observe("insert")
	d := document.New(r.schema)
	if err := d.Set(data); err != nil {
		return nil, done(r.wrap("insert", err))
	}
	d.ApplyDefaults()
	if err := d.Validate(); err != nil {
		return nil, done(r.wrap("insert", err))
	}

	rec := d.BSON()
	if r.schema.OptimisticConcurrency() {
		rec[r.schema.VersionKey()] = int64(0)
	}
	raw, err := r.store.Insert(ctx, rec)
	if err != nil {
		return nil, done(r.wrap("insert", err))
	}
	created, err := document.FromBSON(r.schema, raw)
	if err != nil {
		return nil, done(r.wrap("insert", err))
	}
	done(nil)
	return created, nil
}

// Delete removes doc, conditioned on its version when the schema uses
// optimistic concurrency.
func (r *Repository) Delete(ctx context.Context, doc *document.Document) error {
	done := r.observe("delete")
	filter := bson.M{document.IDKey: doc.ID}
	if r.schema.OptimisticConcurrency() {
		filter[r.schema.VersionKey()] = doc.Version
	}
	n, err := r.store.DeleteOne(ctx, filter)
	if err != nil {
		return done(r.wrap("delete", err))
	}
	if n > 0 {
		done(nil)
		return nil
	}

	// Nothing deleted: find out whether the document is gone or has moved on.
	raw, err := r.store.FindOne(ctx, bson.M{document.IDKey: doc.ID})
	if err != nil {
		return done(r.wrap("delete", err))
	}
	if r.schema.OptimisticConcurrency() {
		stored, _ := r.schema.CastVersion(raw[r.schema.VersionKey()])
		if stored != doc.Version {
			return done(r.wrap("delete", fmt.Errorf("%w: id %s submitted version %d, stored version %d",
				store.ErrVersionConflict, doc.ID.Hex(), doc.Version, stored)))
		}
	}
	return done(r.wrap("delete", errUnexpectedDelete,
		apperr.WithMessage("Unexpected error when deleting document."),
		apperr.WithData(map[string]any{"doc": doc, "currentDoc": raw})))
}

// Save writes the modified fields of a loaded document. The write only
// succeeds while the stored version equals doc.Version.
func (r *Repository) Save(ctx context.Context, doc *document.Document) (*document.Document, error) {
	done := r.observe("save")
	if doc.IsNew() {
		return nil, done(r.wrap("save", errors.New("cannot save a document that was never inserted")))
	}
	if err := doc.Validate(); err != nil {
		return nil, done(r.wrap("save", err))
	}
	set, unset := doc.Changes()
	s := store.Save{ID: doc.ID, Set: set, Unset: unset, Version: doc.Version}
	if r.schema.OptimisticConcurrency() {
		s.VersionKey = r.schema.VersionKey()
	}
	raw, err := r.store.Save(ctx, s)
	if err != nil {
		return nil, done(r.wrap("save", err))
	}
	saved, err := document.FromBSON(r.schema, raw)
	if err != nil {
		return nil, done(r.wrap("save", err))
	}
	done(nil)
	return saved, nil
}

// Aggregate runs pipeline and decodes the result rows into out.
func (r *Repository) Aggregate(ctx context.Context, pipeline mongo.Pipeline, out any) error {
	done := r.observe("aggregate")
	if err := r.store.Aggregate(ctx, pipeline, out); err != nil {
		return done(r.wrap("aggregate", err))
	}
	return done(nil)
}

// Distinct lists the distinct values of field among documents matching filter.
func (r *Repository) Distinct(ctx context.Context, field string, filter bson.M) ([]any, error) {
	done := r.observe("distinct")
	vals, err := r.store.Distinct(ctx, field, filter)
	if err != nil {
		return nil, done(r.wrap("distinct", err))
	}
	done(nil)
	return vals, nil
}

func (r *Repository) hydrateAll(rows []bson.M) ([]*document.Document, error) {
	out := make([]*document.Document, 0, len(rows))
	for _, raw := range rows {
		d, err := document.FromBSON(r.schema, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// wrap turns a failure of op into a Repository error carrying the message of
// op. opts may override the message or attach data.
func (r *Repository) wrap(op string, err error, opts ...apperr.Option) error {
	logger.Debugw("repository operation failed", logger.Fields{
		"schema": r.schema.Name(), "operation": op, "store": r.store.Kind(), "error": err.Error(),
	})
	base := []apperr.Option{apperr.WithMessage(opMessages[op]), apperr.WithCause(err)}
	return apperr.New(apperr.KindRepository, append(base, opts...)...)
}

// observe starts timing op. The returned func records the outcome and passes
// err through.
func (r *Repository) observe(op string) func(error) error {
	start := time.Now()
	return func(err error) error {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.RepositoryOperations.WithLabelValues(r.schema.Name(), op, outcome).Inc()
		metrics.RepositoryDuration.WithLabelValues(r.schema.Name(), op).Observe(time.Since(start).Seconds())
		return err
	}
}
