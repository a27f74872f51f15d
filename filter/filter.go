// Package filter compiles boolean scalar filter expressions into typed
// predicates over rows.
//
// The grammar is deliberately small:
//
//	expr       := andExpr { "or" andExpr }
//	andExpr    := term { "and" term }
//	term       := "(" expr ")" | comparison | membership
//	comparison := field op literal        op := < <= > >= == !=
//	membership := field "in" "[" literal { "," literal } "]"
//	literal    := int | float | true | false | 'string' | "string"
//
// "and" binds tighter than "or". Negation and NOT IN are not supported.
package filter

import (
	"errors"
	"fmt"

	"github.com/hupe1980/vecdb/model"
	"github.com/hupe1980/vecdb/schema"
)

// CompareOp enumerates the comparison operators.
type CompareOp uint8

const (
	OpLT CompareOp = iota
	OpLE
	OpGT
	OpGE
	OpEQ
	OpNE
)

// String returns the operator's source form.
func (op CompareOp) String() string {
	switch op {
	case OpLT:
		return "<"
	case OpLE:
		return "<="
	case OpGT:
		return ">"
	case OpGE:
		return ">="
	case OpEQ:
		return "=="
	case OpNE:
		return "!="
	default:
		return "?"
	}
}

// LiteralKind tags a parsed literal.
type LiteralKind uint8

const (
	LitInt LiteralKind = iota
	LitFloat
	LitBool
	LitString
)

// Literal is a parsed constant from a filter expression.
type Literal struct {
	Kind LiteralKind
	I64  int64
	F64  float64
	B    bool
	S    string
}

// Expr is a node of the filter AST. The concrete variants are Comparison,
// Membership, And and Or.
type Expr interface {
	isExpr()
}

// Comparison is `field op literal`.
type Comparison struct {
	Field   string
	Op      CompareOp
	Literal Literal
}

// Membership is `field in [literal, ...]`.
type Membership struct {
	Field    string
	Literals []Literal
}

// And is the conjunction of two subexpressions.
type And struct {
	Left, Right Expr
}

// Or is the disjunction of two subexpressions.
type Or struct {
	Left, Right Expr
}

func (*Comparison) isExpr() {}
func (*Membership) isExpr() {}
func (*And) isExpr()        {}
func (*Or) isExpr()         {}

// ParseError reports a malformed filter expression.
type ParseError struct {
	Expr string
	Pos  int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q: position %d: %s", e.Expr, e.Pos, e.Msg)
}

// TypeError reports a literal incompatible with a field's declared type.
type TypeError struct {
	Field  string
	Reason string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("type error: field %q: %s", e.Field, e.Reason)
}

// ErrUnknownField is wrapped by Bind when an expression references a field
// the schema does not define.
var ErrUnknownField = errors.New("unknown field")

// Predicate evaluates a compiled filter against a row. Rows are assumed to
// already satisfy the schema the predicate was bound against.
type Predicate func(model.Row) bool

// Compile parses and binds an expression in one step. An empty expression
// compiles to a nil predicate, meaning match-all.
func Compile(expr string, s *schema.Schema) (Predicate, error) {
	ast, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	if ast == nil {
		return nil, nil
	}
	return Bind(ast, s)
}

// Bind type-checks the AST against the schema and produces a predicate.
// Literal/field incompatibilities surface as *TypeError; references to
// undefined fields wrap ErrUnknownField.
func Bind(e Expr, s *schema.Schema) (Predicate, error) {
	switch n := e.(type) {
	case *And:
		l, err := Bind(n.Left, s)
		if err != nil {
			return nil, err
		}
		r, err := Bind(n.Right, s)
		if err != nil {
			return nil, err
		}
		return func(row model.Row) bool { return l(row) && r(row) }, nil

	case *Or:
		l, err := Bind(n.Left, s)
		if err != nil {
			return nil, err
		}
		r, err := Bind(n.Right, s)
		if err != nil {
			return nil, err
		}
		return func(row model.Row) bool { return l(row) || r(row) }, nil

	case *Comparison:
		f, err := fieldFor(n.Field, s)
		if err != nil {
			return nil, err
		}
		return bindComparison(f, n.Op, n.Literal)

	case *Membership:
		f, err := fieldFor(n.Field, s)
		if err != nil {
			return nil, err
		}
		return bindMembership(f, n.Literals)

	default:
		return nil, fmt.Errorf("unknown filter node %T", e)
	}
}

func fieldFor(name string, s *schema.Schema) (schema.FieldDef, error) {
	f, ok := s.Field(name)
	if !ok {
		return schema.FieldDef{}, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	if f.Type.IsVector() {
		return schema.FieldDef{}, &TypeError{Field: name, Reason: "vector fields cannot be filtered"}
	}
	return f, nil
}

func bindComparison(f schema.FieldDef, op CompareOp, lit Literal) (Predicate, error) {
	name := f.Name
	switch f.Type {
	case schema.FieldTypeBool:
		if lit.Kind != LitBool {
			return nil, &TypeError{Field: name, Reason: "expected bool literal"}
		}
		if op != OpEQ && op != OpNE {
			return nil, &TypeError{Field: name, Reason: fmt.Sprintf("operator %s not defined for Bool", op)}
		}
		want := lit.B
		eq := op == OpEQ
		return func(row model.Row) bool {
			return (row[name].B == want) == eq
		}, nil

	case schema.FieldTypeInt64:
		switch lit.Kind {
		case LitInt:
			want := lit.I64
			return func(row model.Row) bool {
				return cmpOrdered(op, row[name].I64, want)
			}, nil
		case LitFloat:
			want := lit.F64
			return func(row model.Row) bool {
				return cmpOrdered(op, float64(row[name].I64), want)
			}, nil
		default:
			return nil, &TypeError{Field: name, Reason: "expected numeric literal"}
		}

	case schema.FieldTypeDouble:
		var want float64
		switch lit.Kind {
		case LitInt:
			want = float64(lit.I64)
		case LitFloat:
			want = lit.F64
		default:
			return nil, &TypeError{Field: name, Reason: "expected numeric literal"}
		}
		return func(row model.Row) bool {
			return cmpOrdered(op, row[name].F64, want)
		}, nil

	case schema.FieldTypeVarChar:
		if lit.Kind != LitString {
			return nil, &TypeError{Field: name, Reason: "expected string literal"}
		}
		want := lit.S
		return func(row model.Row) bool {
			return cmpOrdered(op, row[name].S, want)
		}, nil

	default:
		return nil, &TypeError{Field: name, Reason: fmt.Sprintf("unsupported field type %s", f.Type)}
	}
}

func bindMembership(f schema.FieldDef, lits []Literal) (Predicate, error) {
	name := f.Name
	switch f.Type {
	case schema.FieldTypeInt64:
		set := make(map[int64]struct{}, len(lits))
		for _, lit := range lits {
			if lit.Kind != LitInt {
				return nil, &TypeError{Field: name, Reason: "in-list expects integer literals"}
			}
			set[lit.I64] = struct{}{}
		}
		return func(row model.Row) bool {
			_, ok := set[row[name].I64]
			return ok
		}, nil

	case schema.FieldTypeDouble:
		set := make(map[float64]struct{}, len(lits))
		for _, lit := range lits {
			switch lit.Kind {
			case LitInt:
				set[float64(lit.I64)] = struct{}{}
			case LitFloat:
				set[lit.F64] = struct{}{}
			default:
				return nil, &TypeError{Field: name, Reason: "in-list expects numeric literals"}
			}
		}
		return func(row model.Row) bool {
			_, ok := set[row[name].F64]
			return ok
		}, nil

	case schema.FieldTypeVarChar:
		set := make(map[string]struct{}, len(lits))
		for _, lit := range lits {
			if lit.Kind != LitString {
				return nil, &TypeError{Field: name, Reason: "in-list expects string literals"}
			}
			set[lit.S] = struct{}{}
		}
		return func(row model.Row) bool {
			_, ok := set[row[name].S]
			return ok
		}, nil

	case schema.FieldTypeBool:
		var hasTrue, hasFalse bool
		for _, lit := range lits {
			if lit.Kind != LitBool {
				return nil, &TypeError{Field: name, Reason: "in-list expects bool literals"}
			}
			if lit.B {
				hasTrue = true
			} else {
				hasFalse = true
			}
		}
		return func(row model.Row) bool {
			if row[name].B {
				return hasTrue
			}
			return hasFalse
		}, nil

	default:
		return nil, &TypeError{Field: name, Reason: fmt.Sprintf("unsupported field type %s", f.Type)}
	}
}

func cmpOrdered[T int64 | float64 | string](op CompareOp, a, b T) bool {
	switch op {
	case OpLT:
		return a < b
	case OpLE:
		return a <= b
	case OpGT:
		return a > b
	case OpGE:
		return a >= b
	case OpEQ:
		return a == b
	case OpNE:
		return a != b
	default:
		return false
	}
}
