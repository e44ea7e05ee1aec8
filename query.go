package apptables

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
)

// Query maps column names to the values a search must match. A value is
// either a literal (equality), a row (link equality, or membership for
// multiple-link columns) or a Condition.
type Query map[string]any

type conditionOp int

const (
	opEqual conditionOp = iota + 1
	opNotEqual
	opLessThan
	opLessThanOrEqual
	opGreaterThan
	opGreaterThanOrEqual
	opBetween
	opAnyOf
	opNoneOf
	opBeginsWith
	opContains
	opIsNull
	opNotNull
)

var opNames = map[conditionOp]string{
	opEqual:              "=",
	opNotEqual:           "!=",
	opLessThan:           "<",
	opLessThanOrEqual:    "<=",
	opGreaterThan:        ">",
	opGreaterThanOrEqual: ">=",
	opBetween:            "between",
	opAnyOf:              "any_of",
	opNoneOf:             "none_of",
	opBeginsWith:         "begins_with",
	opContains:           "contains",
	opIsNull:             "is_null",
	opNotNull:            "not_null",
}

// Condition is a query operator applied to one column.
type Condition struct {
	op     conditionOp
	values []any
}

// Equal matches column values equal to v. Equal(nil) is IsNull().
func Equal(v any) Condition {
	if v == nil {
		return IsNull()
	}
	return Condition{op: opEqual, values: []any{v}}
}

// NotEqual matches column values different from v.
func NotEqual(v any) Condition { return Condition{op: opNotEqual, values: []any{v}} }

// LessThan matches column values ordered before v.
func LessThan(v any) Condition { return Condition{op: opLessThan, values: []any{v}} }

// LessThanOrEqual matches column values ordered before or equal to v.
func LessThanOrEqual(v any) Condition { return Condition{op: opLessThanOrEqual, values: []any{v}} }

// GreaterThan matches column values ordered after v.
func GreaterThan(v any) Condition { return Condition{op: opGreaterThan, values: []any{v}} }

// GreaterThanOrEqual matches column values ordered after or equal to v.
func GreaterThanOrEqual(v any) Condition {
	return Condition{op: opGreaterThanOrEqual, values: []any{v}}
}

// Between matches column values in the closed range [lo, hi].
func Between(lo, hi any) Condition { return Condition{op: opBetween, values: []any{lo, hi}} }

// AnyOf matches column values equal to one of vs.
func AnyOf(vs ...any) Condition { return Condition{op: opAnyOf, values: vs} }

// NoneOf matches column values equal to none of vs.
func NoneOf(vs ...any) Condition { return Condition{op: opNoneOf, values: vs} }

// BeginsWith matches string column values with the given prefix.
func BeginsWith(prefix string) Condition {
	return Condition{op: opBeginsWith, values: []any{prefix}}
}

// Contains matches string values containing v, or list values holding v.
func Contains(v any) Condition { return Condition{op: opContains, values: []any{v}} }

// IsNull matches absent or null column values.
func IsNull() Condition { return Condition{op: opIsNull} }

// NotNull matches present, non-null column values.
func NotNull() Condition { return Condition{op: opNotNull} }

func (c Condition) String() string {
	parts := make([]string, len(c.values))
	for i, v := range c.values {
		parts[i] = fmt.Sprint(v)
	}
	return opNames[c.op] + "(" + strings.Join(parts, ", ") + ")"
}

// mapValues returns a copy of c with fn applied to every operand.
func (c Condition) mapValues(fn func(any) (any, error)) (Condition, error) {
	out := Condition{op: c.op, values: make([]any, len(c.values))}
	for i, v := range c.values {
		mapped, err := fn(v)
		if err != nil {
			return Condition{}, err
		}
		out.values[i] = mapped
	}
	return out, nil
}

func (c Condition) validate() error {
	switch c.op {
	case opIsNull, opNotNull:
		return nil
	case opBetween:
		if len(c.values) != 2 {
			return fmt.Errorf("between takes 2 operands, got %d", len(c.values))
		}
	case opAnyOf, opNoneOf:
		if len(c.values) == 0 {
			return fmt.Errorf("%s needs at least one operand", opNames[c.op])
		}
	case opBeginsWith:
		if _, ok := c.values[0].(string); !ok {
			return fmt.Errorf("begins_with needs a string operand: %w", ErrTypeMismatch)
		}
	default:
		if c.op < opEqual || c.op > opNotNull {
			return fmt.Errorf("invalid condition")
		}
		if len(c.values) != 1 {
			return fmt.Errorf("%s takes 1 operand, got %d", opNames[c.op], len(c.values))
		}
	}
	return nil
}

// build converts c into a dynamodb condition on the named attribute.
func (c Condition) build(name expression.NameBuilder) expression.ConditionBuilder {
	operands := func(vs []any) (expression.OperandBuilder, []expression.OperandBuilder) {
		rest := make([]expression.OperandBuilder, 0, len(vs)-1)
		for _, v := range vs[1:] {
			rest = append(rest, expression.Value(v))
		}
		return expression.Value(vs[0]), rest
	}

	switch c.op {
	case opEqual:
		return name.Equal(expression.Value(c.values[0]))
	case opNotEqual:
		return name.NotEqual(expression.Value(c.values[0]))
	case opLessThan:
		return name.LessThan(expression.Value(c.values[0]))
	case opLessThanOrEqual:
		return name.LessThanEqual(expression.Value(c.values[0]))
	case opGreaterThan:
		return name.GreaterThan(expression.Value(c.values[0]))
	case opGreaterThanOrEqual:
		return name.GreaterThanEqual(expression.Value(c.values[0]))
	case opBetween:
		return name.Between(expression.Value(c.values[0]), expression.Value(c.values[1]))
	case opAnyOf:
		first, rest := operands(c.values)
		return name.In(first, rest...)
	case opNoneOf:
		first, rest := operands(c.values)
		return expression.Not(name.In(first, rest...))
	case opBeginsWith:
		return name.BeginsWith(c.values[0].(string))
	case opContains:
		return name.Contains(c.values[0])
	case opIsNull:
		return expression.Or(name.AttributeNotExists(), name.AttributeType(expression.Null))
	default: // opNotNull
		return expression.And(name.AttributeExists(), expression.Not(name.AttributeType(expression.Null)))
	}
}

// match evaluates c against a stored column value. present is false when
// the column is absent from the record.
func (c Condition) match(v any, present bool) bool {
	isNull := !present || v == nil
	switch c.op {
	case opIsNull:
		return isNull
	case opNotNull:
		return !isNull
	}
	if isNull {
		// dynamodb comparisons against a missing attribute are false,
		// except that <> and NOT IN hold.
		return c.op == opNotEqual || c.op == opNoneOf
	}

	switch c.op {
	case opEqual:
		return equalValues(v, c.values[0])
	case opNotEqual:
		return !equalValues(v, c.values[0])
	case opLessThan:
		cmp, ok := compareValues(v, c.values[0])
		return ok && cmp < 0
	case opLessThanOrEqual:
		cmp, ok := compareValues(v, c.values[0])
		return ok && cmp <= 0
	case opGreaterThan:
		cmp, ok := compareValues(v, c.values[0])
		return ok && cmp > 0
	case opGreaterThanOrEqual:
		cmp, ok := compareValues(v, c.values[0])
		return ok && cmp >= 0
	case opBetween:
		lo, lok := compareValues(v, c.values[0])
		hi, hok := compareValues(v, c.values[1])
		return lok && hok && lo >= 0 && hi <= 0
	case opAnyOf, opNoneOf:
		found := false
		for _, want := range c.values {
			if equalValues(v, want) {
				found = true
				break
			}
		}
		return found == (c.op == opAnyOf)
	case opBeginsWith:
		s, ok := v.(string)
		return ok && strings.HasPrefix(s, c.values[0].(string))
	case opContains:
		switch got := v.(type) {
		case string:
			sub, ok := c.values[0].(string)
			return ok && strings.Contains(got, sub)
		case []any:
			for _, el := range got {
				if equalValues(el, c.values[0]) {
					return true
				}
			}
		}
		return false
	}
	return false
}

func equalValues(a, b any) bool {
	if cmp, ok := compareValues(a, b); ok {
		return cmp == 0
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders two scalars of the same kind: numbers, strings or bools.
func compareValues(a, b any) (int, bool) {
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
		if !ok || x != y {
			return 1, ok
		}
		return 0, true
	}
	return 0, false
}

// filterColumns returns the filter column names in a stable order.
func filterColumns(filters map[string]Condition) []string {
	cols := make([]string, 0, len(filters))
	for col := range filters {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

// buildFilter ANDs the conditions of filters on the data attribute. The
// second result is false when there are no filters.
func buildFilter(filters map[string]Condition) (expression.ConditionBuilder, bool) {
	var conds []expression.ConditionBuilder
	for _, col := range filterColumns(filters) {
		conds = append(conds, filters[col].build(expression.Name(AttributeNameData+"."+col)))
	}

	switch len(conds) {
	case 0:
		return expression.ConditionBuilder{}, false
	case 1:
		return conds[0], true
	default:
		return expression.And(conds[0], conds[1], conds[2:]...), true
	}
}

// matchRecord reports whether every filter holds for r.
func matchRecord(r Record, filters map[string]Condition) bool {
	for col, cond := range filters {
		v, present := r.Data[col]
		if !cond.match(v, present) {
			return false
		}
	}
	return true
}
