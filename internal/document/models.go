package document

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Document is an in-memory handle on one persisted (or about to be
// persisted) record of a schema. It remembers the field values it was
// loaded with so changes can be detected before saving.
type Document struct {
	ID        primitive.ObjectID
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time

	schema *Schema
	fields map[string]any
	stored map[string]any
}

// New returns an empty, unsaved document of the schema.
func New(schema *Schema) *Document {
	return &Document{schema: schema, fields: map[string]any{}, stored: map[string]any{}}
}

// FromBSON hydrates a document from a raw store record. Keys outside the
// schema are ignored.
func FromBSON(schema *Schema, raw bson.M) (*Document, error) {
	d := New(schema)
	if id, ok := raw[IDKey].(primitive.ObjectID); ok {
		d.ID = id
	}
	if v, ok := raw[schema.VersionKey()]; ok && v != nil {
		n, err := schema.CastVersion(v)
		if err != nil {
			return nil, err
		}
		d.Version = n
	}
	d.CreatedAt = asTime(raw[CreatedAtKey])
	d.UpdatedAt = asTime(raw[UpdatedAtKey])
	for _, fd := range schema.descriptors {
		v, ok := raw[fd.Name]
		if !ok || v == nil {
			continue
		}
		cv, err := schema.Cast(fd.Name, v)
		if err != nil {
			return nil, fmt.Errorf("hydrate %s: %w", schema.Name(), err)
		}
		d.fields[fd.Name] = cv
	}
	d.stored = cloneFields(d.fields)
	return d, nil
}

func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case primitive.DateTime:
		return t.Time().UTC()
	}
	return time.Time{}
}

func (d *Document) Schema() *Schema { return d.schema }

// IsNew reports whether the document has not been stored yet.
func (d *Document) IsNew() bool { return d.ID.IsZero() }

// Get returns the value of a field.
func (d *Document) Get(name string) (any, bool) {
	v, ok := d.fields[name]
	return v, ok
}

// Fields returns a copy of the field values.
func (d *Document) Fields() map[string]any { return cloneFields(d.fields) }

// Set applies payload onto the document. Unknown keys are ignored, a nil
// value unsets the field and the version key (when concurrency is on)
// replaces the version the next write is checked against.
func (d *Document) Set(payload map[string]any) error {
	verr := &ValidationError{Schema: d.schema.Name()}
	for k, v := range payload {
		if d.schema.OptimisticConcurrency() && k == d.schema.VersionKey() {
			n, err := d.schema.CastVersion(v)
			if err != nil {
				verr.add(k, err)
				continue
			}
			d.Version = n
			continue
		}
		if _, ok := d.schema.Field(k); !ok {
			continue
		}
		cv, err := d.schema.Cast(k, v)
		if err != nil {
			verr.add(k, err)
			continue
		}
		if cv == nil {
			delete(d.fields, k)
			continue
		}
		d.fields[k] = cv
	}
	return verr.orNil()
}

// ApplyDefaults fills absent fields that declare a default.
func (d *Document) ApplyDefaults() {
	for _, fd := range d.schema.descriptors {
		if !fd.HasDefault {
			continue
		}
		if _, ok := d.fields[fd.Name]; !ok {
			f, _ := d.schema.Field(fd.Name)
			d.fields[fd.Name] = f.Default
		}
	}
}

// Validate checks the current field values against the schema.
func (d *Document) Validate() error { return d.schema.Validate(d.fields) }

// ModifiedPaths lists the fields whose value differs from the loaded state.
func (d *Document) ModifiedPaths() []string {
	var out []string
	for _, fd := range d.schema.descriptors {
		a, okA := d.fields[fd.Name]
		b, okB := d.stored[fd.Name]
		if okA != okB || !valuesEqual(a, b) {
			out = append(out, fd.Name)
		}
	}
	sort.Strings(out)
	return out
}

func (d *Document) IsModified() bool { return len(d.ModifiedPaths()) > 0 }

// Changes splits the modified paths into values to set and names to unset.
func (d *Document) Changes() (set bson.M, unset []string) {
	set = bson.M{}
	for _, p := range d.ModifiedPaths() {
		if v, ok := d.fields[p]; ok {
			set[p] = v
		} else {
			unset = append(unset, p)
		}
	}
	return set, unset
}

// BSON returns the field values as a store record, without identity,
// version or timestamps.
func (d *Document) BSON() bson.M {
	out := bson.M{}
	for k, v := range d.fields {
		out[k] = v
	}
	return out
}

// MarshalJSON renders the document with an "id" instead of "_id".
func (d *Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.fields)+4)
	for k, v := range d.fields {
		out[k] = v
	}
	if !d.ID.IsZero() {
		out["id"] = d.ID.Hex()
	}
	if d.schema.OptimisticConcurrency() {
		out[d.schema.VersionKey()] = d.Version
	}
	if !d.CreatedAt.IsZero() {
		out[CreatedAtKey] = d.CreatedAt
	}
	if !d.UpdatedAt.IsZero() {
		out[UpdatedAtKey] = d.UpdatedAt
	}
	return json.Marshal(out)
}

func cloneFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func valuesEqual(a, b any) bool {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}
