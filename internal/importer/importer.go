// Package importer loads a catalog dataset from CSV into a document service.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nellyolofsson/wt2/internal/document"
	"github.com/nellyolofsson/wt2/pkg/logger"
)

// Inserter creates one document from a payload.
type Inserter interface {
	Insert(ctx context.Context, payload map[string]any) (*document.Document, error)
}

// RowError is a row that could not be inserted.
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }

// Result summarises an import.
type Result struct {
	Inserted int
	Failed   []RowError
}

// Importer maps CSV columns onto schema fields. Columns that name no field
// are ignored and empty cells are left out of the payload.
type Importer struct {
	svc    Inserter
	schema *document.Schema
	rename map[string]string
}

type Option func(*Importer)

// WithColumn maps the CSV column named column to field.
func WithColumn(column, field string) Option {
	return func(im *Importer) { im.rename[column] = field }
}

func New(svc Inserter, schema *document.Schema, opts ...Option) *Importer {
	im := &Importer{svc: svc, schema: schema, rename: map[string]string{}}
	for _, o := range opts {
		o(im)
	}
	return im
}

// Import reads a header row followed by data rows from r and inserts every
// row. Rows the service rejects are collected in the result; only read
// failures and context cancellation abort the import.
func (im *Importer) Import(ctx context.Context, r io.Reader) (Result, error) {
	var res Result
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return res, errors.New("import: empty input")
		}
		return res, fmt.Errorf("import header: %w", err)
	}
	fields := im.columns(header)

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line, _ := cr.FieldPos(0)
		if err != nil {
			return res, fmt.Errorf("import line %d: %w", line, err)
		}

		payload := map[string]any{}
		for i, v := range rec {
			if i >= len(fields) || fields[i] == "" {
				continue
			}
			if v = strings.TrimSpace(v); v != "" {
				payload[fields[i]] = v
			}
		}
		if _, err := im.svc.Insert(ctx, payload); err != nil {
			logger.Debugf("import line %d skipped: %v", line, err)
			res.Failed = append(res.Failed, RowError{Line: line, Err: err})
			continue
		}
		res.Inserted++
	}
	logger.Infof("import finished: %d inserted, %d failed", res.Inserted, len(res.Failed))
	return res, nil
}

func (im *Importer) columns(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if f, ok := im.rename[name]; ok {
			name = f
		}
		if _, ok := im.schema.Field(name); ok {
			out[i] = name
		}
	}
	return out
}
