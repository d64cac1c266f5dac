// Package predicate implements the small boolean condition language used by
// filter steps: column references, comparison operators (=, !=, <, <=, >,
// >=), and the logical combinators and/or/not with parentheses.
//
// Parsing and evaluation are split on purpose: a condition is parsed once
// per step, while column references are checked against the dataset schema
// only at first evaluation, so one parsed predicate can be validated cheaply
// against many schemas.
package predicate

import (
	"fmt"
	"strconv"
	"strings"

	"declpipe/internal/errs"
	"declpipe/internal/schema"
	"declpipe/pkg/records"
)

// Predicate is a parsed condition ready for row evaluation.
type Predicate struct {
	root node
	src  string
}

// Parse compiles a condition string. Syntax errors are permanent
// (kind=config) failures; unknown columns are deliberately not detected
// here.
func Parse(src string) (*Predicate, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfig, err, "invalid condition %q", src)
	}
	p := &parser{toks: toks}
	root, err := p.parseOr()
	if err != nil {
		return nil, errs.Wrap(errs.KindConfig, err, "invalid condition %q", src)
	}
	if !p.eof() {
		return nil, errs.New(errs.KindConfig, "invalid condition %q: unexpected %q", src, p.peek().text)
	}
	return &Predicate{root: root, src: src}, nil
}

// String returns the original condition text.
func (p *Predicate) String() string { return p.src }

// Eval evaluates the predicate against one row. Column references are
// resolved against the schema; a reference to a column the schema does not
// carry fails with kind=unknown_column.
func (p *Predicate) Eval(rec records.Record, sch schema.Schema) (bool, error) {
	return p.root.eval(rec, sch)
}

// ---- AST ----

type node interface {
	eval(records.Record, schema.Schema) (bool, error)
}

type logicalNode struct {
	op          string // "and" | "or"
	left, right node
}

func (n *logicalNode) eval(rec records.Record, sch schema.Schema) (bool, error) {
	l, err := n.left.eval(rec, sch)
	if err != nil {
		return false, err
	}
	// Short-circuit mirrors the comparison semantics users expect.
	if n.op == "and" && !l {
		return false, nil
	}
	if n.op == "or" && l {
		return true, nil
	}
	return n.right.eval(rec, sch)
}

type notNode struct{ inner node }

func (n *notNode) eval(rec records.Record, sch schema.Schema) (bool, error) {
	v, err := n.inner.eval(rec, sch)
	if err != nil {
		return false, err
	}
	return !v, nil
}

type compareNode struct {
	op          string // = != < <= > >=
	left, right operand
}

func (n *compareNode) eval(rec records.Record, sch schema.Schema) (bool, error) {
	lv, err := n.left.value(rec, sch)
	if err != nil {
		return false, err
	}
	rv, err := n.right.value(rec, sch)
	if err != nil {
		return false, err
	}
	return compare(n.op, lv, rv)
}

// boolColumnNode allows a bare column reference to act as a condition when
// the column carries booleans.
type boolColumnNode struct{ col operand }

func (n *boolColumnNode) eval(rec records.Record, sch schema.Schema) (bool, error) {
	v, err := n.col.value(rec, sch)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, errs.New(errs.KindConfig, "column %v is not boolean", n.col)
	}
	return b, nil
}

// ---- operands ----

type operand interface {
	value(records.Record, schema.Schema) (any, error)
}

type columnRef struct{ name string }

func (c columnRef) value(rec records.Record, sch schema.Schema) (any, error) {
	if !sch.Has(c.name) {
		return nil, errs.New(errs.KindUnknownColumn, "condition references unknown column %q", c.name)
	}
	return rec[c.name], nil
}

func (c columnRef) String() string { return c.name }

type literal struct{ val any }

func (l literal) value(records.Record, schema.Schema) (any, error) { return l.val, nil }

// ---- comparison semantics ----

// compare applies op to two values. Numbers compare numerically (numeric
// strings are promoted when the other side is a number), strings compare
// lexically, booleans and nulls support equality only.
func compare(op string, a, b any) (bool, error) {
	if a == nil || b == nil {
		switch op {
		case "=":
			return a == nil && b == nil, nil
		case "!=":
			return (a == nil) != (b == nil), nil
		default:
			// Ordered comparison against null is false, like SQL.
			return false, nil
		}
	}

	ab, aBool := a.(bool)
	bb, bBool := b.(bool)
	if aBool || bBool {
		if !aBool || !bBool {
			return false, errs.New(errs.KindConfig, "cannot compare %T with %T", a, b)
		}
		switch op {
		case "=":
			return ab == bb, nil
		case "!=":
			return ab != bb, nil
		}
		return false, errs.New(errs.KindConfig, "operator %q not defined for booleans", op)
	}

	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return ordered(op, cmpFloat(af, bf))
		}
	}

	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	return ordered(op, strings.Compare(as, bs))
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func ordered(op string, c int) (bool, error) {
	switch op {
	case "=":
		return c == 0, nil
	case "!=":
		return c != 0, nil
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	case ">=":
		return c >= 0, nil
	}
	return false, errs.New(errs.KindConfig, "unknown operator %q", op)
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}
