package directory

import "sort"

// ApplyQuery filters, sorts, and limits rows in memory. Both the in-memory
// fake and the Postgres adapter share this so the filter/sort/limit
// semantics never drift between them.
func ApplyQuery(rows []Item, q Query) []Item {
	filtered := make([]Item, 0, len(rows))
	for _, row := range rows {
		if matchFilter(row, q.Filter) {
			filtered = append(filtered, row)
		}
	}
	rows = filtered

	if q.Sort != "" {
		field := q.Sort
		reverse := false
		if len(field) > 0 && field[0] == '-' {
			reverse = true
			field = field[1:]
		}
		sort.SliceStable(rows, func(i, j int) bool {
			if reverse {
				return compareLess(rows[j][field], rows[i][field])
			}
			return compareLess(rows[i][field], rows[j][field])
		})
	}

	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}

	return rows
}

func matchFilter(row Item, conditions []Condition) bool {
	for _, cond := range conditions {
		value := row[cond.Field]
		switch cond.Operator {
		case OpEq, "":
			if value != cond.Value {
				return false
			}
		case OpGt:
			if value == nil || !compareLess(cond.Value, value) {
				return false
			}
		case OpGte:
			if value == nil || compareLess(value, cond.Value) {
				return false
			}
		case OpLt:
			if value == nil || !compareLess(value, cond.Value) {
				return false
			}
		case OpLte:
			if value == nil || compareLess(cond.Value, value) {
				return false
			}
		case OpIn:
			if !containsValue(cond.Value, value) {
				return false
			}
		}
	}
	return true
}

// compareLess compares two directory values. JSON round-tripping through
// Postgres's JSONB turns every number into float64, so both int and
// float64 are handled alongside string.
func compareLess(a, b any) bool {
	switch av := a.(type) {
	case int:
		switch bv := b.(type) {
		case int:
			return av < bv
		case float64:
			return float64(av) < bv
		}
	case float64:
		switch bv := b.(type) {
		case float64:
			return av < bv
		case int:
			return av < float64(bv)
		}
	case string:
		if bv, ok := b.(string); ok {
			return av < bv
		}
	}
	return false
}

func containsValue(set any, value any) bool {
	values, ok := set.([]any)
	if !ok {
		return false
	}
	for _, v := range values {
		if v == value || numericEqual(v, value) {
			return true
		}
	}
	return false
}

func numericEqual(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	return aok && bok && af == bf
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
