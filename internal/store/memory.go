package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// MemoryStore is an in-process Store for tests and local runs without a
// database. Records are copied through BSON on the way in and out, so callers
// see the same value types the Mongo driver would hand them.
type MemoryStore struct {
	mu      sync.RWMutex
	records []bson.M
	unique  []string
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithUniqueFields rejects inserts and saves that would duplicate one of fields.
func WithUniqueFields(fields ...string) MemoryOption {
	return func(m *MemoryStore) { m.unique = append(m.unique, fields...) }
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *MemoryStore) Kind() string { return "memory" }

func (m *MemoryStore) Find(ctx context.Context, filter bson.M, projection []string, opts FindOptions) ([]bson.M, error) {
	m.mu.RLock()
	var hits []bson.M
	for _, r := range m.records {
		ok, err := matches(r, filter)
		if err != nil {
			m.mu.RUnlock()
			return nil, err
		}
		if ok {
			hits = append(hits, r)
		}
	}
	m.mu.RUnlock()

	if len(opts.Sort) > 0 {
		sortRecords(hits, opts.Sort)
	}
	if opts.Skip > 0 {
		if opts.Skip >= int64(len(hits)) {
			hits = nil
		} else {
			hits = hits[opts.Skip:]
		}
	}
	if opts.Limit > 0 && opts.Limit < int64(len(hits)) {
		hits = hits[:opts.Limit]
	}

	out := make([]bson.M, 0, len(hits))
	for _, r := range hits {
		c, err := cloneRecord(project(r, projection))
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (m *MemoryStore) Count(ctx context.Context, filter bson.M) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, r := range m.records {
		ok, err := matches(r, filter)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) FindByID(ctx context.Context, id string) (bson.M, error) {
	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	return m.FindOne(ctx, bson.M{"_id": oid})
}

func (m *MemoryStore) FindOne(ctx context.Context, filter bson.M) (bson.M, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.records {
		ok, err := matches(r, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			return cloneRecord(r)
		}
	}
	return nil, ErrNoDocument
}

func (m *MemoryStore) Insert(ctx context.Context, doc bson.M) (bson.M, error) {
	rec, err := cloneRecord(doc)
	if err != nil {
		return nil, err
	}
	if _, ok := rec["_id"]; !ok {
		rec["_id"] = primitive.NewObjectID()
	}
	now := primitive.NewDateTimeFromTime(time.Now())
	rec["createdAt"] = now
	rec["updatedAt"] = now

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkUnique(rec, -1); err != nil {
		return nil, err
	}
	m.records = append(m.records, rec)
	return cloneRecord(rec)
}

func (m *MemoryStore) DeleteOne(ctx context.Context, filter bson.M) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.records {
		ok, err := matches(r, filter)
		if err != nil {
			return 0, err
		}
		if ok {
			m.records = append(m.records[:i], m.records[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

func (m *MemoryStore) Save(ctx context.Context, s Save) (bson.M, error) {
	set, err := cloneRecord(s.Set)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.indexOf(s.ID)
	if idx < 0 {
		return nil, ErrNoDocument
	}
	cur := m.records[idx]
	if s.VersionKey != "" {
		stored, _ := toInt64(cur[s.VersionKey])
		if stored != s.Version {
			return nil, fmt.Errorf("%w: id %s submitted version %d, stored version %d",
				ErrVersionConflict, s.ID.Hex(), s.Version, stored)
		}
	}

	next := bson.M{}
	for k, v := range cur {
		next[k] = v
	}
	for k, v := range set {
		next[k] = v
	}
	for _, k := range s.Unset {
		delete(next, k)
	}
	next["updatedAt"] = primitive.NewDateTimeFromTime(time.Now())
	if s.VersionKey != "" {
		next[s.VersionKey] = s.Version + 1
	}
	if err := m.checkUnique(next, idx); err != nil {
		return nil, err
	}
	m.records[idx] = next
	return cloneRecord(next)
}

func (m *MemoryStore) Aggregate(ctx context.Context, pipeline mongo.Pipeline, out any) error {
	m.mu.RLock()
	rows := make([]bson.M, 0, len(m.records))
	for _, r := range m.records {
		c, err := cloneRecord(r)
		if err != nil {
			m.mu.RUnlock()
			return err
		}
		rows = append(rows, c)
	}
	m.mu.RUnlock()

	rows, err := runPipeline(rows, pipeline)
	if err != nil {
		return fmt.Errorf("memory aggregate: %w", err)
	}
	return decodeRows(rows, out)
}

func (m *MemoryStore) Distinct(ctx context.Context, field string, filter bson.M) ([]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := map[string]bool{}
	out := []any{}
	add := func(v any) {
		if v == nil {
			return
		}
		k := fmt.Sprintf("%T:%v", v, v)
		if !seen[k] {
			seen[k] = true
			out = append(out, v)
		}
	}
	for _, r := range m.records {
		ok, err := matches(r, filter)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		v, _ := lookup(r, field)
		if arr, isArr := asArray(v); isArr {
			for _, e := range arr {
				add(e)
			}
			continue
		}
		add(v)
	}
	return out, nil
}

func (m *MemoryStore) indexOf(id primitive.ObjectID) int {
	for i, r := range m.records {
		if rid, ok := r["_id"].(primitive.ObjectID); ok && rid == id {
			return i
		}
	}
	return -1
}

// checkUnique must be called with the write lock held. skip is the index of
// the record being replaced, or -1.
func (m *MemoryStore) checkUnique(rec bson.M, skip int) error {
	for _, f := range m.unique {
		v, ok := rec[f]
		if !ok || v == nil {
			continue
		}
		for i, r := range m.records {
			if i == skip {
				continue
			}
			if other, ok := r[f]; ok && equalValues(other, v) {
				return fmt.Errorf("%w: %s %v already exists", ErrDuplicateKey, f, v)
			}
		}
	}
	return nil
}

func project(r bson.M, fields []string) bson.M {
	if len(fields) == 0 {
		return r
	}
	out := bson.M{"_id": r["_id"]}
	for _, f := range fields {
		if v, ok := r[f]; ok {
			out[f] = v
		}
	}
	return out
}

func sortRecords(rows []bson.M, order bson.D) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, e := range order {
			a, _ := lookup(rows[i], e.Key)
			b, _ := lookup(rows[j], e.Key)
			c := compareValues(a, b)
			if c == 0 {
				continue
			}
			if dir, _ := toInt64(e.Value); dir < 0 {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func cloneRecord(in bson.M) (bson.M, error) {
	if in == nil {
		return bson.M{}, nil
	}
	b, err := bson.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("memory encode: %w", err)
	}
	var out bson.M
	if err := bson.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("memory decode: %w", err)
	}
	return out, nil
}

var errNotSlicePointer = errors.New("aggregate result must be a pointer to a slice")
