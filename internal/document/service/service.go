package service

import (
	"context"
	"math"

	"github.com/nellyolofsson/wt2/internal/apperr"
	"github.com/nellyolofsson/wt2/internal/document"
	"github.com/nellyolofsson/wt2/internal/document/repository"
	"github.com/nellyolofsson/wt2/internal/store"
	"go.mongodb.org/mongo-driver/bson"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
	// MaxPage keeps the computed skip within int64.
	MaxPage = math.MaxInt32
)

// GetParams selects a page of documents. Zero Page and PerPage fall back to
// the defaults.
type GetParams struct {
	Page    int
	PerPage int
	Filter  bson.M
}

// Service defines the document business operations used by the handler layer.
type Service interface {
	Schema() *document.Schema
	Get(ctx context.Context, p GetParams) (*repository.Page, error)
	GetByID(ctx context.Context, id string) (*document.Document, error)
	Insert(ctx context.Context, payload map[string]any) (*document.Document, error)
	UpdateOrReplace(ctx context.Context, doc *document.Document, payload map[string]any, replace bool) (*document.Document, error)
	Delete(ctx context.Context, doc *document.Document, payload map[string]any) error
}

// DocumentService checks payloads against the schema before handing them to
// the repository, and turns every failure into an *apperr.Error.
type DocumentService struct {
	repo *repository.Repository
}

var _ Service = (*DocumentService)(nil)

func New(repo *repository.Repository) *DocumentService {
	return &DocumentService{repo: repo}
}

func (s *DocumentService) Schema() *document.Schema { return s.repo.Schema() }

func (s *DocumentService) Repository() *repository.Repository { return s.repo }

func (s *DocumentService) Get(ctx context.Context, p GetParams) (*repository.Page, error) {
	page, perPage := p.Page, p.PerPage
	if page == 0 {
		page = 1
	}
	if perPage == 0 {
		perPage = DefaultPerPage
	}
	page = min(max(page, 1), MaxPage)
	perPage = min(max(perPage, 1), MaxPerPage)

	out, err := s.repo.Get(ctx, p.Filter, nil, repository.Options{
		Limit: int64(perPage),
		Skip:  int64(page-1) * int64(perPage),
	})
	if err != nil {
		return nil, HandleError(err, "Failed to get documents.")
	}
	return out, nil
}

// GetByID loads one document. A malformed id is reported as NotFound.
func (s *DocumentService) GetByID(ctx context.Context, id string) (*document.Document, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if apperr.HasCause(err, store.ErrInvalidID) {
			return nil, apperr.NotFound(err)
		}
		return nil, HandleError(err, "Failed to get document.")
	}
	return d, nil
}

func (s *DocumentService) Insert(ctx context.Context, payload map[string]any) (*document.Document, error) {
	if err := s.ensureExpectedProperties(payload, document.ActionCreate); err != nil {
		return nil, err
	}
	d, err := s.repo.Insert(ctx, payload)
	if err != nil {
		return nil, HandleError(err, "Failed to insert document.")
	}
	return d, nil
}

// UpdateOrReplace applies payload to doc and saves it. With replace set the
// payload must carry every field of the schema.
func (s *DocumentService) UpdateOrReplace(ctx context.Context, doc *document.Document, payload map[string]any, replace bool) (*document.Document, error) {
	action := document.ActionUpdate
	if replace {
		action = document.ActionReplace
	}
	if err := s.ensureExpectedProperties(payload, action); err != nil {
		return nil, err
	}

	if err := doc.Set(payload); err != nil {
		return nil, HandleError(err, "Failed to update document.")
	}
	if err := doc.Validate(); err != nil {
		return nil, HandleError(err, "Failed to update document.")
	}
	if !doc.IsModified() {
		return nil, apperr.NotModified()
	}
	saved, err := s.repo.Save(ctx, doc)
	if err != nil {
		return nil, HandleError(err, "Failed to update document.")
	}
	return saved, nil
}

// Delete removes doc. When the schema uses optimistic concurrency the payload
// must hold exactly the version the caller last saw, otherwise it must be empty.
func (s *DocumentService) Delete(ctx context.Context, doc *document.Document, payload map[string]any) error {
	if err := s.ensureExpectedProperties(payload, document.ActionDelete); err != nil {
		return err
	}
	if len(payload) > 0 {
		if err := doc.Set(payload); err != nil {
			return HandleError(err, "Failed to delete document.")
		}
	}
	if err := s.repo.Delete(ctx, doc); err != nil {
		return HandleError(err, "Failed to delete document.")
	}
	return nil
}

func (s *DocumentService) ensureExpectedProperties(payload map[string]any, action document.Action) error {
	schema := s.repo.Schema()
	if !schema.HasProperties(action, payload) {
		return apperr.InsufficientData(payload)
	}
	switch action {
	case document.ActionCreate:
		if schema.HasExcessProperties(payload, false) {
			return apperr.ExcessData(payload)
		}
	case document.ActionDelete:
		want := 0
		if schema.OptimisticConcurrency() {
			want = 1
		}
		if len(payload) != want {
			return apperr.ExcessData(payload)
		}
	default:
		if schema.HasExcessProperties(payload, true) {
			return apperr.ExcessData(payload)
		}
	}
	return nil
}

// HandleError classifies err by the store-level failure in its cause chain.
// Errors that are already classified pass through; anything else becomes an
// Application error carrying message.
func HandleError(err error, message string) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.CauseAs[*document.ValidationError](err); ok {
		return apperr.Validation(err)
	}
	if _, ok := apperr.CauseAs[*document.CastError](err); ok {
		return apperr.Validation(err)
	}
	switch {
	case apperr.HasCause(err, store.ErrDuplicateKey):
		return apperr.Validation(err)
	case apperr.HasCause(err, store.ErrVersionConflict):
		return apperr.Concurrency(err)
	case apperr.HasCause(err, store.ErrNoDocument):
		return apperr.NotFound(err)
	}
	if ae, ok := err.(*apperr.Error); ok {
		return ae
	}
	return apperr.Application(message, err)
}
