package store

import (
	"fmt"
	"math"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// The evaluator below covers the subset of the MongoDB query and aggregation
// language the repositories issue: equality and regex filters, and the
// $match, $addFields ($split), $unwind, $group ($sum, $push) and $sort stages.

func runPipeline(rows []bson.M, pipeline mongo.Pipeline) ([]bson.M, error) {
	for i, stage := range pipeline {
		if len(stage) != 1 {
			return nil, fmt.Errorf("stage %d: want exactly one operator, got %d", i, len(stage))
		}
		op, arg := stage[0].Key, stage[0].Value
		var err error
		switch op {
		case "$match":
			rows, err = stageMatch(rows, arg)
		case "$addFields":
			rows, err = stageAddFields(rows, arg)
		case "$unwind":
			rows, err = stageUnwind(rows, arg)
		case "$group":
			rows, err = stageGroup(rows, arg)
		case "$sort":
			rows, err = stageSort(rows, arg)
		default:
			err = fmt.Errorf("unsupported stage %s", op)
		}
		if err != nil {
			return nil, fmt.Errorf("stage %d (%s): %w", i, op, err)
		}
	}
	return rows, nil
}

func stageMatch(rows []bson.M, arg any) ([]bson.M, error) {
	filter := bson.M{}
	for _, e := range pairs(arg) {
		filter[e.Key] = e.Value
	}
	var out []bson.M
	for _, r := range rows {
		ok, err := matches(r, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func stageAddFields(rows []bson.M, arg any) ([]bson.M, error) {
	parts := pairs(arg)
	for _, r := range rows {
		for _, e := range parts {
			v, err := evalExpr(r, e.Value)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", e.Key, err)
			}
			r[e.Key] = v
		}
	}
	return rows, nil
}

func stageUnwind(rows []bson.M, arg any) ([]bson.M, error) {
	path, _ := arg.(string)
	if !strings.HasPrefix(path, "$") {
		return nil, fmt.Errorf("path %q must start with $", path)
	}
	field := path[1:]
	var out []bson.M
	for _, r := range rows {
		v, found := lookup(r, field)
		if !found || v == nil {
			continue
		}
		arr, isArr := asArray(v)
		if !isArr {
			out = append(out, r)
			continue
		}
		for _, e := range arr {
			c := bson.M{}
			for k, val := range r {
				c[k] = val
			}
			c[field] = e
			out = append(out, c)
		}
	}
	return out, nil
}

type accumulator struct {
	field string
	op    string
	expr  any
}

type group struct {
	id   any
	vals map[string]any
}

func stageGroup(rows []bson.M, arg any) ([]bson.M, error) {
	var idExpr any
	var accs []accumulator
	for _, e := range pairs(arg) {
		if e.Key == "_id" {
			idExpr = e.Value
			continue
		}
		parts := pairs(e.Value)
		if len(parts) != 1 {
			return nil, fmt.Errorf("accumulator %s: want exactly one operator", e.Key)
		}
		accs = append(accs, accumulator{field: e.Key, op: parts[0].Key, expr: parts[0].Value})
	}

	var order []string
	groups := map[string]*group{}
	for _, r := range rows {
		id, err := evalExpr(r, idExpr)
		if err != nil {
			return nil, fmt.Errorf("_id: %w", err)
		}
		key := groupKey(id)
		g, ok := groups[key]
		if !ok {
			g = &group{id: id, vals: map[string]any{}}
			groups[key] = g
			order = append(order, key)
		}
		for _, a := range accs {
			v, err := evalExpr(r, a.expr)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", a.field, err)
			}
			if err := g.accumulate(a, v); err != nil {
				return nil, err
			}
		}
	}

	out := make([]bson.M, 0, len(order))
	for _, key := range order {
		g := groups[key]
		row := bson.M{"_id": g.id}
		for _, a := range accs {
			v, ok := g.vals[a.field]
			if !ok && a.op == "$sum" {
				v = int64(0)
			}
			row[a.field] = v
		}
		out = append(out, row)
	}
	return out, nil
}

func (g *group) accumulate(a accumulator, v any) error {
	switch a.op {
	case "$sum":
		g.vals[a.field] = addNumbers(g.vals[a.field], v)
	case "$push":
		list, _ := g.vals[a.field].(primitive.A)
		g.vals[a.field] = append(list, v)
	default:
		return fmt.Errorf("unsupported accumulator %s", a.op)
	}
	return nil
}

// addNumbers keeps integer sums as int64 and switches to float64 once a
// non-integral operand shows up. Non-numeric operands are ignored.
func addNumbers(acc, v any) any {
	if acc == nil {
		acc = int64(0)
	}
	ai, aInt := acc.(int64)
	if n, ok := toInt64(v); ok && aInt {
		return ai + n
	}
	f, ok := toFloat(v)
	if !ok {
		return acc
	}
	af, _ := toFloat(acc)
	return af + f
}

func stageSort(rows []bson.M, arg any) ([]bson.M, error) {
	parts, ok := arg.(bson.D)
	if !ok {
		if m, isMap := arg.(bson.M); isMap && len(m) == 1 {
			parts = pairs(m)
		} else {
			return nil, fmt.Errorf("sort order must be an ordered document")
		}
	}
	sortRecords(rows, parts)
	return rows, nil
}

func groupKey(v any) string {
	switch t := v.(type) {
	case bson.M:
		return groupKey(pairs(t))
	case bson.D:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = e.Key + "=" + groupKey(e.Value)
		}
		return "{" + strings.Join(parts, ",") + "}"
	}
	if f, ok := toFloat(v); ok {
		return fmt.Sprintf("n:%v", f)
	}
	return fmt.Sprintf("%T:%v", v, v)
}

// evalExpr evaluates an aggregation expression against a row. Strings
// beginning with $ are field paths, documents whose only key is an operator
// are operator calls and any other document is evaluated field by field.
func evalExpr(row bson.M, expr any) (any, error) {
	switch t := expr.(type) {
	case string:
		if strings.HasPrefix(t, "$") {
			v, _ := lookup(row, t[1:])
			return v, nil
		}
		return t, nil
	case bson.D, bson.M:
		parts := pairs(t)
		if len(parts) == 1 && strings.HasPrefix(parts[0].Key, "$") {
			return evalOperator(row, parts[0].Key, parts[0].Value)
		}
		out := bson.M{}
		for _, e := range parts {
			v, err := evalExpr(row, e.Value)
			if err != nil {
				return nil, err
			}
			out[e.Key] = v
		}
		return out, nil
	}
	return expr, nil
}

func evalOperator(row bson.M, op string, arg any) (any, error) {
	args, _ := asArray(arg)
	switch op {
	case "$split":
		if len(args) != 2 {
			return nil, fmt.Errorf("$split takes two arguments")
		}
		in, err := evalExpr(row, args[0])
		if err != nil {
			return nil, err
		}
		sep, err := evalExpr(row, args[1])
		if err != nil {
			return nil, err
		}
		if in == nil {
			return nil, nil
		}
		s, ok1 := in.(string)
		d, ok2 := sep.(string)
		if !ok1 || !ok2 || d == "" {
			return nil, fmt.Errorf("$split needs a string and a non-empty delimiter")
		}
		parts := strings.Split(s, d)
		out := make(primitive.A, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported operator %s", op)
}

// matches reports whether row satisfies filter. A condition is a value
// compared for equality, nil for a missing field, or a regular expression.
func matches(row bson.M, filter bson.M) (bool, error) {
	for key, cond := range filter {
		v, found := lookup(row, key)
		ok, err := matchField(v, found, cond)
		if err != nil {
			return false, fmt.Errorf("filter %s: %w", key, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func matchField(v any, found bool, cond any) (bool, error) {
	switch c := cond.(type) {
	case primitive.Regex:
		return matchRegex(v, c.Pattern, c.Options)
	case bson.M, bson.D:
		if parts := pairs(c); len(parts) > 0 && strings.HasPrefix(parts[0].Key, "$") {
			return false, fmt.Errorf("unsupported operator %s", parts[0].Key)
		}
	case nil:
		return !found || v == nil, nil
	}
	return equalOrContains(v, cond), nil
}

func matchRegex(v any, pattern, options string) (bool, error) {
	flags := ""
	for _, o := range options {
		switch o {
		case 'i', 'm', 's':
			flags += string(o)
		}
	}
	if flags != "" {
		pattern = "(?" + flags + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, fmt.Errorf("regex: %w", err)
	}
	return matchAny(v, func(e any) bool {
		s, ok := e.(string)
		return ok && re.MatchString(s)
	}), nil
}

func matchAny(v any, pred func(any) bool) bool {
	if arr, ok := asArray(v); ok {
		for _, e := range arr {
			if pred(e) {
				return true
			}
		}
		return false
	}
	return pred(v)
}

// equalOrContains compares like a MongoDB equality filter: an array field
// matches when it equals cond or any element does.
func equalOrContains(v, cond any) bool {
	if equalValues(v, cond) {
		return true
	}
	if arr, ok := asArray(v); ok {
		for _, e := range arr {
			if equalValues(e, cond) {
				return true
			}
		}
	}
	return false
}

func equalValues(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	if ta, ok := toTime(a); ok {
		tb, ok := toTime(b)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(normalize(a), normalize(b))
}

func normalize(v any) any {
	switch t := v.(type) {
	case []any:
		return primitive.A(t)
	case map[string]any:
		return bson.M(t)
	}
	return v
}

// compareValues orders values roughly the way MongoDB does across types:
// null, numbers, strings, documents, arrays, object ids, booleans, dates.
func compareValues(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch ra {
	case 0:
		return 0
	case 1:
		fa, _ := toFloat(a)
		fb, _ := toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case 2:
		return strings.Compare(a.(string), b.(string))
	case 5:
		return strings.Compare(a.(primitive.ObjectID).Hex(), b.(primitive.ObjectID).Hex())
	case 6:
		ba, bb := a.(bool), b.(bool)
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		}
		return 1
	case 7:
		ta, _ := toTime(a)
		tb, _ := toTime(b)
		return ta.Compare(tb)
	}
	return strings.Compare(groupKey(a), groupKey(b))
}

func typeRank(v any) int {
	if v == nil {
		return 0
	}
	if _, ok := toFloat(v); ok {
		return 1
	}
	if _, ok := toTime(v); ok {
		return 7
	}
	switch v.(type) {
	case string:
		return 2
	case bson.M, bson.D, map[string]any:
		return 3
	case primitive.A, []any:
		return 4
	case primitive.ObjectID:
		return 5
	case bool:
		return 6
	}
	return 8
}

// lookup resolves a dotted path through nested documents.
func lookup(row bson.M, path string) (any, bool) {
	var cur any = row
	for _, part := range strings.Split(path, ".") {
		switch t := cur.(type) {
		case bson.M:
			v, ok := t[part]
			if !ok {
				return nil, false
			}
			cur = v
		case map[string]any:
			v, ok := t[part]
			if !ok {
				return nil, false
			}
			cur = v
		case bson.D:
			found := false
			for _, e := range t {
				if e.Key == part {
					cur, found = e.Value, true
					break
				}
			}
			if !found {
				return nil, false
			}
		default:
			return nil, false
		}
	}
	return cur, true
}

// pairs returns the key/value pairs of a document. Maps are walked in key
// order so evaluation stays deterministic.
func pairs(v any) bson.D {
	switch t := v.(type) {
	case bson.D:
		return t
	case bson.M:
		return mapPairs(t)
	case map[string]any:
		return mapPairs(t)
	}
	return nil
}

func mapPairs(m map[string]any) bson.D {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(bson.D, 0, len(keys))
	for _, k := range keys {
		out = append(out, bson.E{Key: k, Value: m[k]})
	}
	return out
}

func asArray(v any) ([]any, bool) {
	switch t := v.(type) {
	case primitive.A:
		return t, true
	case []any:
		return t, true
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func toInt64(v any) (int64, bool) {
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case primitive.DateTime:
		return t.Time(), true
	}
	return time.Time{}, false
}

// decodeRows copies rows into out, a pointer to a slice of any type the BSON
// codec can decode a document into.
func decodeRows(rows []bson.M, out any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Slice {
		return errNotSlicePointer
	}
	slice := rv.Elem()
	elem := slice.Type().Elem()
	res := reflect.MakeSlice(slice.Type(), 0, len(rows))
	for _, row := range rows {
		b, err := bson.Marshal(row)
		if err != nil {
			return fmt.Errorf("memory aggregate encode: %w", err)
		}
		ptr := reflect.New(elem)
		if err := bson.Unmarshal(b, ptr.Interface()); err != nil {
			return fmt.Errorf("memory aggregate decode: %w", err)
		}
		res = reflect.Append(res, ptr.Elem())
	}
	slice.Set(res)
	return nil
}
