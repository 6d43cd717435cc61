package document

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Keys managed by the store and never settable by callers.
const (
	IDKey        = "_id"
	CreatedAtKey = "createdAt"
	UpdatedAtKey = "updatedAt"

	DefaultVersionKey = "__v"
)

// FieldType is the declared storage type of a field.
type FieldType int

const (
	String FieldType = iota
	Number
	Date
	Boolean
)

func (t FieldType) String() string {
	switch t {
	case String:
		return "String"
	case Number:
		return "Number"
	case Date:
		return "Date"
	case Boolean:
		return "Boolean"
	}
	return "Unknown"
}

// Field declares one field of a document type.
type Field struct {
	Name     string
	Type     FieldType
	Required bool
	// Default is applied on create when the payload omits the field.
	// A nil Default means the field has no default.
	Default any
	Unique  bool
}

// FieldDescriptor is the derived, user-settable view of a field.
type FieldDescriptor struct {
	Name       string
	IsRequired bool
	HasDefault bool
}

// Schema describes a document type. It is immutable after construction and
// safe for concurrent use.
type Schema struct {
	name        string
	fields      map[string]Field
	descriptors []FieldDescriptor
	versionKey  string
	concurrency bool
}

// SchemaOption configures a Schema.
type SchemaOption func(*Schema)

// WithOptimisticConcurrency enables version checks using the given key
// (DefaultVersionKey when empty).
func WithOptimisticConcurrency(versionKey string) SchemaOption {
	return func(s *Schema) {
		if versionKey == "" {
			versionKey = DefaultVersionKey
		}
		s.versionKey = versionKey
		s.concurrency = true
	}
}

// NewSchema builds a schema from a static field table. Identity, version and
// timestamp names are reserved and rejected.
func NewSchema(name string, fields []Field, opts ...SchemaOption) (*Schema, error) {
	s := &Schema{name: name, versionKey: DefaultVersionKey, fields: make(map[string]Field, len(fields))}
	for _, o := range opts {
		o(s)
	}
	for _, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("schema %s: field without name", name)
		}
		if s.reserved(f.Name) {
			return nil, fmt.Errorf("schema %s: field %q is reserved", name, f.Name)
		}
		if _, dup := s.fields[f.Name]; dup {
			return nil, fmt.Errorf("schema %s: duplicate field %q", name, f.Name)
		}
		if f.Default != nil {
			v, err := castValue(f.Name, f.Type, f.Default)
			if err != nil {
				return nil, fmt.Errorf("schema %s: default: %w", name, err)
			}
			f.Default = v
		}
		s.fields[f.Name] = f
		s.descriptors = append(s.descriptors, FieldDescriptor{
			Name:       f.Name,
			IsRequired: f.Required,
			HasDefault: f.Default != nil,
		})
	}
	return s, nil
}

// MustSchema is NewSchema that panics on a malformed declaration.
func MustSchema(name string, fields []Field, opts ...SchemaOption) *Schema {
	s, err := NewSchema(name, fields, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) reserved(name string) bool {
	return name == IDKey || name == "id" || name == s.versionKey || name == CreatedAtKey || name == UpdatedAtKey
}

func (s *Schema) Name() string { return s.name }

// VersionKey returns the version key name, meaningful only when
// OptimisticConcurrency is true.
func (s *Schema) VersionKey() string { return s.versionKey }

func (s *Schema) OptimisticConcurrency() bool { return s.concurrency }

// Descriptors returns the user-settable fields in declaration order.
func (s *Schema) Descriptors() []FieldDescriptor {
	out := make([]FieldDescriptor, len(s.descriptors))
	copy(out, s.descriptors)
	return out
}

// Field looks up a declared field.
func (s *Schema) Field(name string) (Field, bool) {
	f, ok := s.fields[name]
	return f, ok
}

// UniqueFields lists fields declared unique.
func (s *Schema) UniqueFields() []string {
	var out []string
	for _, d := range s.descriptors {
		if s.fields[d.Name].Unique {
			out = append(out, d.Name)
		}
	}
	return out
}

// HasExcessProperties reports whether payload has a key outside the field
// set; the version key is allowed when concurrency is on and includeVersion.
func (s *Schema) HasExcessProperties(payload map[string]any, includeVersion bool) bool {
	for k := range payload {
		if _, ok := s.fields[k]; ok {
			continue
		}
		if includeVersion && s.concurrency && k == s.versionKey {
			continue
		}
		return true
	}
	return false
}

// IntersectionWithSchema returns the payload keys that are known fields, sorted.
func (s *Schema) IntersectionWithSchema(payload map[string]any) []string {
	var out []string
	for k := range payload {
		if _, ok := s.fields[k]; ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// HasVersionKey reports whether payload carries the version key.
func (s *Schema) HasVersionKey(payload map[string]any) bool {
	_, ok := payload[s.versionKey]
	return ok
}

func (s *Schema) HasPropertiesToCreate(payload map[string]any) bool {
	for _, d := range s.descriptors {
		if d.IsRequired && !d.HasDefault {
			if _, ok := payload[d.Name]; !ok {
				return false
			}
		}
	}
	return true
}

func (s *Schema) HasPropertiesToReplace(payload map[string]any) bool {
	if len(s.IntersectionWithSchema(payload)) != len(s.descriptors) {
		return false
	}
	return !s.concurrency || s.HasVersionKey(payload)
}

func (s *Schema) HasPropertiesToUpdate(payload map[string]any) bool {
	if len(s.IntersectionWithSchema(payload)) == 0 {
		return false
	}
	return !s.concurrency || s.HasVersionKey(payload)
}

func (s *Schema) HasPropertiesToDelete(payload map[string]any) bool {
	if s.concurrency {
		return s.HasVersionKey(payload)
	}
	return true
}

// HasProperties dispatches to the predicate for the action.
func (s *Schema) HasProperties(action Action, payload map[string]any) bool {
	switch action {
	case ActionCreate:
		return s.HasPropertiesToCreate(payload)
	case ActionReplace:
		return s.HasPropertiesToReplace(payload)
	case ActionUpdate:
		return s.HasPropertiesToUpdate(payload)
	case ActionDelete:
		return s.HasPropertiesToDelete(payload)
	}
	return false
}

// Cast converts v to the declared type of the named field. A nil value is
// returned unchanged and means "unset".
func (s *Schema) Cast(name string, v any) (any, error) {
	f, ok := s.fields[name]
	if !ok {
		return nil, fmt.Errorf("schema %s: unknown path %q", s.name, name)
	}
	return castValue(name, f.Type, v)
}

// CastVersion converts a payload version value to int64.
func (s *Schema) CastVersion(v any) (int64, error) {
	n, err := castValue(s.versionKey, Number, v)
	if err != nil || n == nil {
		return 0, &CastError{Path: s.versionKey, Type: Number, Value: v}
	}
	f := n.(float64)
	if f != math.Trunc(f) || f < 0 {
		return 0, &CastError{Path: s.versionKey, Type: Number, Value: v}
	}
	return int64(f), nil
}

// Validate checks required fields and declared types of a field map.
func (s *Schema) Validate(fields map[string]any) error {
	verr := &ValidationError{Schema: s.name}
	for _, d := range s.descriptors {
		v, present := fields[d.Name]
		if d.IsRequired && (!present || isBlank(v)) {
			verr.add(d.Name, &requiredError{path: d.Name})
			continue
		}
		if present && v != nil {
			if _, err := castValue(d.Name, s.fields[d.Name].Type, v); err != nil {
				verr.add(d.Name, err)
			}
		}
	}
	return verr.orNil()
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	if str, ok := v.(string); ok {
		return str == ""
	}
	return false
}

func castValue(path string, t FieldType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	fail := &CastError{Path: path, Type: t, Value: v}
	switch t {
	case String:
		switch x := v.(type) {
		case string:
			return x, nil
		case float64:
			return strconv.FormatFloat(x, 'f', -1, 64), nil
		case int, int32, int64, bool:
			return fmt.Sprint(x), nil
		}
	case Number:
		switch x := v.(type) {
		case float64:
			return x, nil
		case float32:
			return float64(x), nil
		case int:
			return float64(x), nil
		case int32:
			return float64(x), nil
		case int64:
			return float64(x), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
			if err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
				return f, nil
			}
		}
	case Date:
		switch x := v.(type) {
		case time.Time:
			return x.UTC().Truncate(time.Millisecond), nil
		case primitive.DateTime:
			return x.Time().UTC(), nil
		case string:
			for _, layout := range []string{time.RFC3339Nano, "2006-01-02", "January 2, 2006"} {
				if ts, err := time.Parse(layout, strings.TrimSpace(x)); err == nil {
					return ts.UTC().Truncate(time.Millisecond), nil
				}
			}
		case float64:
			return time.UnixMilli(int64(x)).UTC(), nil
		case int64:
			return time.UnixMilli(x).UTC(), nil
		}
	case Boolean:
		switch x := v.(type) {
		case bool:
			return x, nil
		case string:
			if b, err := strconv.ParseBool(x); err == nil {
				return b, nil
			}
		}
	}
	return nil, fail
}
