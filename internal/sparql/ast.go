// Package sparql implements the subset of SPARQL 1.1 SELECT queries the
// question-answering templates rely on, evaluated over an in-memory kg.Graph.
package sparql

import (
	"errors"
	"fmt"

	"github.com/scrypster/mlkg/internal/kg"
)

// ErrSyntax is wrapped by every parse error.
var ErrSyntax = errors.New("sparql: syntax error")

// SyntaxError reports where in the query text parsing failed.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("sparql: syntax error at offset %d: %s", e.Pos, e.Msg)
}

func (e *SyntaxError) Unwrap() error { return ErrSyntax }

// Query is a parsed SELECT query.
type Query struct {
	Prefixes   map[string]string
	Distinct   bool
	Star       bool
	Projection []Projection
	Where      *Group
	GroupBy    []string
	OrderBy    []OrderCondition
	Limit      int // -1 when absent
	Offset     int

	// vars lists every variable of the WHERE clause in first-seen order.
	vars []string
}

// Aggregated reports whether the query groups its solutions.
func (q *Query) Aggregated() bool {
	if len(q.GroupBy) > 0 {
		return true
	}
	for _, p := range q.Projection {
		if p.Aggregate != nil {
			return true
		}
	}
	return false
}

// Variables returns the result column names.
func (q *Query) Variables() []string {
	if q.Star {
		return append([]string(nil), q.vars...)
	}
	out := make([]string, len(q.Projection))
	for i, p := range q.Projection {
		out[i] = p.Var
	}
	return out
}

// Projection is one SELECT column: a plain variable or an aggregate bound
// to a variable with AS.
type Projection struct {
	Var       string
	Aggregate *Aggregate
}

// Aggregate is COUNT over a variable or over whole solutions (Var empty).
type Aggregate struct {
	Func     string
	Distinct bool
	Var      string
}

// OrderCondition is one ORDER BY key.
type OrderCondition struct {
	Expr Expr
	Desc bool
}

// Element is one member of a group graph pattern.
type Element interface {
	element()
}

// Group is a { ... } block. Filters apply to the whole group.
type Group struct {
	Elements []Element
	Filters  []Expr
}

// Triples is a run of triple patterns joined together.
type Triples struct {
	Patterns []TriplePattern
}

// Optional is OPTIONAL { ... }.
type Optional struct {
	Group *Group
}

// Union is { ... } UNION { ... } [UNION ...].
type Union struct {
	Alternatives []*Group
}

func (*Group) element()    {}
func (*Triples) element()  {}
func (*Optional) element() {}
func (*Union) element()    {}

// Node is a triple pattern position: a variable or a constant term.
type Node struct {
	Var  string
	Term kg.Term
}

// IsVar reports whether n is a variable.
func (n Node) IsVar() bool { return n.Var != "" }

func (n Node) String() string {
	if n.IsVar() {
		return "?" + n.Var
	}
	return n.Term.String()
}

// TriplePattern is subject predicate object with variables allowed anywhere.
type TriplePattern struct {
	Subject, Predicate, Object Node
}

// Expr is a FILTER or ORDER BY expression.
type Expr interface {
	expr()
}

// VarExpr references a variable.
type VarExpr struct{ Name string }

// ConstExpr is a constant term.
type ConstExpr struct{ Term kg.Term }

// UnaryExpr is !x or -x.
type UnaryExpr struct {
	Op string
	X  Expr
}

// BinaryExpr is a comparison or logical connective.
type BinaryExpr struct {
	Op   string
	L, R Expr
}

// InExpr is x IN (...) or x NOT IN (...).
type InExpr struct {
	X    Expr
	List []Expr
	Not  bool
}

// CallExpr is a builtin function call. Func is upper case.
type CallExpr struct {
	Func string
	Args []Expr
}

func (*VarExpr) expr()    {}
func (*ConstExpr) expr()  {}
func (*UnaryExpr) expr()  {}
func (*BinaryExpr) expr() {}
func (*InExpr) expr()     {}
func (*CallExpr) expr()   {}
