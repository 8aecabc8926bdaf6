package docstore

import (
	"reflect"
	"sort"
	"strings"
	"time"
)

// fieldValue walks a dotted path into the decoded document. The second
// return is false when any path segment is absent or null.
func fieldValue(doc map[string]any, path string) (any, bool) {
	cur := any(doc)
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[seg]
		if !ok || v == nil {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// norm reduces a value to one of: float64, string, bool, time.Time.
// JSON decoding already yields float64/string/bool; this widens Go-side
// condition values so both sides compare cleanly.
func norm(v any) any {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case float32:
		return float64(x)
	case time.Time:
		return x.UTC()
	case string:
		// Server timestamps round-trip through JSON as RFC 3339 strings.
		if t, err := time.Parse(time.RFC3339Nano, x); err == nil {
			return t.UTC()
		}
		return x
	default:
		// Named types (e.g. status enums) reduce to their underlying kind.
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.String:
			return norm(rv.String())
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return float64(rv.Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return float64(rv.Uint())
		case reflect.Float32, reflect.Float64:
			return rv.Float()
		case reflect.Bool:
			return rv.Bool()
		}
		return v
	}
}

// compare orders two normalized values. The bool is false when the values
// are of incomparable kinds.
func compare(a, b any) (int, bool) {
	a, b = norm(a), norm(b)
	switch x := a.(type) {
	case float64:
		y, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case !x && y:
			return -1, true
		case x && !y:
			return 1, true
		}
		return 0, true
	case time.Time:
		y, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return x.Compare(y), true
	}
	return 0, false
}

func equal(a, b any) bool {
	c, ok := compare(a, b)
	return ok && c == 0
}

// matches evaluates every condition against the decoded document.
func matches(doc map[string]any, conds []Cond) bool {
	for _, c := range conds {
		v, present := fieldValue(doc, c.Field)
		switch c.Op {
		case OpEq:
			if !present || !equal(v, c.Value) {
				return false
			}
		case OpNeq:
			if present && equal(v, c.Value) {
				return false
			}
		case OpGt:
			cmp, ok := func() (int, bool) {
				if !present {
					return 0, false
				}
				return compare(v, c.Value)
			}()
			if !ok || cmp <= 0 {
				return false
			}
		case OpLt:
			cmp, ok := func() (int, bool) {
				if !present {
					return 0, false
				}
				return compare(v, c.Value)
			}()
			if !ok || cmp >= 0 {
				return false
			}
		case OpArrayContains:
			arr, ok := v.([]any)
			if !present || !ok {
				return false
			}
			found := false
			for _, el := range arr {
				if equal(el, c.Value) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// FilterDocs returns the documents matching the query, in query order.
// Backends share it so predicate and ordering semantics never diverge.
func FilterDocs(docs []Doc, q Query) ([]Doc, error) {
	var out []Doc
	values := make(map[string]map[string]any, len(docs))
	for _, d := range docs {
		v, err := d.value()
		if err != nil {
			return nil, err
		}
		if matches(v, q.Where) {
			out = append(out, d)
			values[d.ID] = v
		}
	}
	sortDocs(out, values, q)
	return out, nil
}

// sortDocs orders matched documents. Documents missing the order field go
// last regardless of direction; ties break by document ID ascending.
func sortDocs(docs []Doc, values map[string]map[string]any, q Query) {
	if q.OrderBy == "" {
		sort.Slice(docs, func(i, j int) bool {
			ti, tj := docs[i].Timestamp, docs[j].Timestamp
			if !ti.Equal(tj) {
				return ti.Before(tj)
			}
			return docs[i].ID < docs[j].ID
		})
		return
	}
	sort.Slice(docs, func(i, j int) bool {
		vi, oki := fieldValue(values[docs[i].ID], q.OrderBy)
		vj, okj := fieldValue(values[docs[j].ID], q.OrderBy)
		if oki != okj {
			return oki // present before missing
		}
		if oki {
			if cmp, ok := compare(vi, vj); ok && cmp != 0 {
				if q.Desc {
					return cmp > 0
				}
				return cmp < 0
			}
		}
		return docs[i].ID < docs[j].ID
	})
}
