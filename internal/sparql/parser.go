package sparql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/scrypster/mlkg/internal/kg"
)

// builtins maps each supported function to its accepted argument counts.
var builtins = map[string][2]int{
	"STR":       {1, 1},
	"LCASE":     {1, 1},
	"UCASE":     {1, 1},
	"STRSTARTS": {2, 2},
	"STRENDS":   {2, 2},
	"CONTAINS":  {2, 2},
	"REGEX":     {2, 3},
	"BOUND":     {1, 1},
	"ISIRI":     {1, 1},
	"ISURI":     {1, 1},
	"ISLITERAL": {1, 1},
	"ISBLANK":   {1, 1},
	"LANG":      {1, 1},
	"DATATYPE":  {1, 1},
	"STRLEN":    {1, 1},
}

type parser struct {
	toks []token
	pos  int
	q    *Query
	seen map[string]bool
}

// Parse parses a SELECT query. Errors wrap ErrSyntax.
func Parse(src string) (*Query, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{
		toks: toks,
		q:    &Query{Prefixes: map[string]string{}, Limit: -1},
		seen: map[string]bool{},
	}
	if err := p.parseQuery(); err != nil {
		return nil, err
	}
	return p.q, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) advance() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) accept(s string) bool {
	if p.peek().is(s) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(s string) error {
	if !p.accept(s) {
		return p.errorf("expected %q, found %s", s, p.peek())
	}
	return nil
}

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Pos: p.peek().pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) noteVar(name string) {
	if !p.seen[name] {
		p.seen[name] = true
		p.q.vars = append(p.q.vars, name)
	}
}

func (p *parser) parseQuery() error {
	for p.peek().is("PREFIX") {
		p.advance()
		name := p.advance()
		if name.kind != tokPName || !strings.HasSuffix(name.text, ":") {
			return &SyntaxError{Pos: name.pos, Msg: fmt.Sprintf("expected prefix name, found %s", name)}
		}
		iri := p.advance()
		if iri.kind != tokIRI {
			return &SyntaxError{Pos: iri.pos, Msg: fmt.Sprintf("expected IRI, found %s", iri)}
		}
		p.q.Prefixes[strings.TrimSuffix(name.text, ":")] = iri.text
	}

	if err := p.expect("SELECT"); err != nil {
		return err
	}
	if err := p.parseProjection(); err != nil {
		return err
	}
	p.accept("WHERE")
	where, err := p.parseGroup()
	if err != nil {
		return err
	}
	p.q.Where = where

	if err := p.parseModifiers(); err != nil {
		return err
	}
	if t := p.peek(); t.kind != tokEOF {
		return p.errorf("unexpected %s after query", t)
	}
	return p.checkProjection()
}

func (p *parser) parseProjection() error {
	if p.accept("DISTINCT") {
		p.q.Distinct = true
	} else {
		p.accept("REDUCED")
	}
	if p.accept("*") {
		p.q.Star = true
		return nil
	}
	for {
		t := p.peek()
		switch {
		case t.kind == tokVar:
			p.advance()
			p.q.Projection = append(p.q.Projection, Projection{Var: t.text})
		case t.is("("):
			proj, err := p.parseAggregate()
			if err != nil {
				return err
			}
			p.q.Projection = append(p.q.Projection, proj)
		default:
			if len(p.q.Projection) == 0 {
				return p.errorf("expected projection, found %s", t)
			}
			return nil
		}
	}
}

// parseAggregate reads (COUNT([DISTINCT] ?v|*) AS ?x).
func (p *parser) parseAggregate() (Projection, error) {
	if err := p.expect("("); err != nil {
		return Projection{}, err
	}
	fn := p.advance()
	if !fn.is("COUNT") {
		return Projection{}, &SyntaxError{Pos: fn.pos, Msg: fmt.Sprintf("unsupported aggregate %s", fn)}
	}
	agg := &Aggregate{Func: "COUNT"}
	if err := p.expect("("); err != nil {
		return Projection{}, err
	}
	if p.accept("DISTINCT") {
		agg.Distinct = true
	}
	switch t := p.advance(); {
	case t.is("*"):
	case t.kind == tokVar:
		agg.Var = t.text
	default:
		return Projection{}, &SyntaxError{Pos: t.pos, Msg: fmt.Sprintf("expected variable or *, found %s", t)}
	}
	if err := p.expect(")"); err != nil {
		return Projection{}, err
	}
	if err := p.expect("AS"); err != nil {
		return Projection{}, err
	}
	v := p.advance()
	if v.kind != tokVar {
		return Projection{}, &SyntaxError{Pos: v.pos, Msg: fmt.Sprintf("expected variable, found %s", v)}
	}
	if err := p.expect(")"); err != nil {
		return Projection{}, err
	}
	return Projection{Var: v.text, Aggregate: agg}, nil
}

// checkProjection rejects plain variables next to aggregates unless they
// are grouped on.
func (p *parser) checkProjection() error {
	if !p.q.Aggregated() || p.q.Star {
		if p.q.Star && p.q.Aggregated() {
			return &SyntaxError{Msg: "SELECT * cannot be used with GROUP BY"}
		}
		return nil
	}
	grouped := map[string]bool{}
	for _, v := range p.q.GroupBy {
		grouped[v] = true
	}
	for _, proj := range p.q.Projection {
		if proj.Aggregate == nil && !grouped[proj.Var] {
			return &SyntaxError{Msg: fmt.Sprintf("variable ?%s is neither grouped nor aggregated", proj.Var)}
		}
	}
	return nil
}

func (p *parser) parseGroup() (*Group, error) {
	if err := p.expect("{"); err != nil {
		return nil, err
	}
	g := &Group{}
	for {
		t := p.peek()
		switch {
		case t.is("}"):
			p.advance()
			return g, nil
		case t.kind == tokEOF:
			return nil, p.errorf("unterminated group, expected \"}\"")
		case t.is("."):
			p.advance()
		case t.is("OPTIONAL"):
			p.advance()
			inner, err := p.parseGroup()
			if err != nil {
				return nil, err
			}
			g.Elements = append(g.Elements, &Optional{Group: inner})
		case t.is("FILTER"):
			p.advance()
			e, err := p.parseConstraint()
			if err != nil {
				return nil, err
			}
			g.Filters = append(g.Filters, e)
		case t.is("{"):
			el, err := p.parseGroupOrUnion()
			if err != nil {
				return nil, err
			}
			g.Elements = append(g.Elements, el)
		default:
			patterns, err := p.parseTriplesSameSubject()
			if err != nil {
				return nil, err
			}
			if n := len(g.Elements); n > 0 {
				if block, ok := g.Elements[n-1].(*Triples); ok {
					block.Patterns = append(block.Patterns, patterns...)
					continue
				}
			}
			g.Elements = append(g.Elements, &Triples{Patterns: patterns})
		}
	}
}

func (p *parser) parseGroupOrUnion() (Element, error) {
	first, err := p.parseGroup()
	if err != nil {
		return nil, err
	}
	if !p.peek().is("UNION") {
		return first, nil
	}
	u := &Union{Alternatives: []*Group{first}}
	for p.accept("UNION") {
		next, err := p.parseGroup()
		if err != nil {
			return nil, err
		}
		u.Alternatives = append(u.Alternatives, next)
	}
	return u, nil
}

// parseTriplesSameSubject reads one subject with its ';' and ',' lists.
func (p *parser) parseTriplesSameSubject() ([]TriplePattern, error) {
	subj, err := p.parseNode(false)
	if err != nil {
		return nil, err
	}
	var out []TriplePattern
	for {
		pred, err := p.parseVerb()
		if err != nil {
			return nil, err
		}
		for {
			obj, err := p.parseNode(true)
			if err != nil {
				return nil, err
			}
			out = append(out, TriplePattern{Subject: subj, Predicate: pred, Object: obj})
			if !p.accept(",") {
				break
			}
		}
		if !p.accept(";") {
			return out, nil
		}
		// A trailing ';' before '.' or '}' is allowed.
		if t := p.peek(); t.is(".") || t.is("}") {
			return out, nil
		}
	}
}

func (p *parser) parseVerb() (Node, error) {
	if t := p.peek(); t.kind == tokIdent && t.text == "a" {
		p.advance()
		return Node{Term: kg.RDFType}, nil
	}
	n, err := p.parseNode(false)
	if err != nil {
		return Node{}, err
	}
	if !n.IsVar() && !n.Term.IsIRI() {
		return Node{}, p.errorf("predicate must be an IRI or variable")
	}
	return n, nil
}

// parseNode reads a variable, IRI, prefixed name or, when literals is set,
// a literal.
func (p *parser) parseNode(literals bool) (Node, error) {
	t := p.peek()
	switch t.kind {
	case tokVar:
		p.advance()
		p.noteVar(t.text)
		return Node{Var: t.text}, nil
	case tokIRI, tokPName:
		term, err := p.parseIRI()
		return Node{Term: term}, err
	case tokString, tokNumber:
		if !literals {
			return Node{}, p.errorf("literal not allowed here")
		}
		term, err := p.parseLiteral()
		return Node{Term: term}, err
	case tokIdent:
		if literals && (t.is("true") || t.is("false")) {
			p.advance()
			return Node{Term: kg.BoolLiteral(t.is("true"))}, nil
		}
	case tokPunct:
		if literals && (t.text == "-" || t.text == "+") {
			term, err := p.parseLiteral()
			return Node{Term: term}, err
		}
	}
	return Node{}, p.errorf("expected term, found %s", t)
}

func (p *parser) parseIRI() (kg.Term, error) {
	t := p.advance()
	switch t.kind {
	case tokIRI:
		return kg.NewIRI(t.text), nil
	case tokPName:
		i := strings.IndexByte(t.text, ':')
		base, ok := p.q.Prefixes[t.text[:i]]
		if !ok {
			return kg.Term{}, &SyntaxError{Pos: t.pos, Msg: fmt.Sprintf("undeclared prefix %q", t.text[:i])}
		}
		return kg.NewIRI(base + t.text[i+1:]), nil
	}
	return kg.Term{}, &SyntaxError{Pos: t.pos, Msg: fmt.Sprintf("expected IRI, found %s", t)}
}

func (p *parser) parseLiteral() (kg.Term, error) {
	t := p.advance()
	switch t.kind {
	case tokString:
		switch next := p.peek(); {
		case next.kind == tokLangTag:
			p.advance()
			return kg.NewLangLiteral(t.text, next.text), nil
		case next.is("^^"):
			p.advance()
			dt, err := p.parseIRI()
			if err != nil {
				return kg.Term{}, err
			}
			return kg.NewTypedLiteral(t.text, dt.Value), nil
		}
		return kg.NewLiteral(t.text), nil
	case tokNumber:
		return numberLiteral(t.text, ""), nil
	case tokPunct:
		if t.text == "-" || t.text == "+" {
			n := p.advance()
			if n.kind != tokNumber {
				return kg.Term{}, &SyntaxError{Pos: n.pos, Msg: fmt.Sprintf("expected number, found %s", n)}
			}
			sign := ""
			if t.text == "-" {
				sign = "-"
			}
			return numberLiteral(n.text, sign), nil
		}
	}
	return kg.Term{}, &SyntaxError{Pos: t.pos, Msg: fmt.Sprintf("expected literal, found %s", t)}
}

func numberLiteral(text, sign string) kg.Term {
	switch {
	case strings.ContainsAny(text, "eE"):
		return kg.NewTypedLiteral(sign+text, kg.XSDDouble)
	case strings.Contains(text, "."):
		return kg.NewTypedLiteral(sign+text, kg.XSDDecimal)
	}
	return kg.NewTypedLiteral(sign+text, kg.XSDInteger)
}

func (p *parser) parseModifiers() error {
	if p.accept("GROUP") {
		if err := p.expect("BY"); err != nil {
			return err
		}
		for p.peek().kind == tokVar {
			p.q.GroupBy = append(p.q.GroupBy, p.advance().text)
		}
		if len(p.q.GroupBy) == 0 {
			return p.errorf("expected variable after GROUP BY")
		}
	}
	if p.accept("ORDER") {
		if err := p.expect("BY"); err != nil {
			return err
		}
		for {
			cond, ok, err := p.parseOrderCondition()
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			p.q.OrderBy = append(p.q.OrderBy, cond)
		}
		if len(p.q.OrderBy) == 0 {
			return p.errorf("expected ORDER BY condition")
		}
	}
	for {
		switch {
		case p.accept("LIMIT"):
			n, err := p.parseCount()
			if err != nil {
				return err
			}
			p.q.Limit = n
		case p.accept("OFFSET"):
			n, err := p.parseCount()
			if err != nil {
				return err
			}
			p.q.Offset = n
		default:
			return nil
		}
	}
}

func (p *parser) parseCount() (int, error) {
	t := p.advance()
	if t.kind != tokNumber {
		return 0, &SyntaxError{Pos: t.pos, Msg: fmt.Sprintf("expected integer, found %s", t)}
	}
	n, err := strconv.Atoi(t.text)
	if err != nil || n < 0 {
		return 0, &SyntaxError{Pos: t.pos, Msg: fmt.Sprintf("invalid count %q", t.text)}
	}
	return n, nil
}

func (p *parser) parseOrderCondition() (OrderCondition, bool, error) {
	t := p.peek()
	switch {
	case t.is("ASC") || t.is("DESC"):
		p.advance()
		if err := p.expect("("); err != nil {
			return OrderCondition{}, false, err
		}
		e, err := p.parseExpr()
		if err != nil {
			return OrderCondition{}, false, err
		}
		if err := p.expect(")"); err != nil {
			return OrderCondition{}, false, err
		}
		return OrderCondition{Expr: e, Desc: t.is("DESC")}, true, nil
	case t.kind == tokVar:
		p.advance()
		return OrderCondition{Expr: &VarExpr{Name: t.text}}, true, nil
	case t.is("("):
		e, err := p.parseConstraint()
		return OrderCondition{Expr: e}, err == nil, err
	case t.kind == tokIdent && isBuiltin(t.text):
		e, err := p.parseCall()
		return OrderCondition{Expr: e}, err == nil, err
	}
	return OrderCondition{}, false, nil
}

func isBuiltin(name string) bool {
	_, ok := builtins[strings.ToUpper(name)]
	return ok
}

// parseConstraint reads a bracketed expression or a bare function call.
func (p *parser) parseConstraint() (Expr, error) {
	if p.peek().kind == tokIdent {
		return p.parseCall()
	}
	if err := p.expect("("); err != nil {
		return nil, err
	}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expect(")"); err != nil {
		return nil, err
	}
	return e, nil
}

func (p *parser) parseExpr() (Expr, error) { return p.parseOr() }

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.accept("||") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: "||", L: left, R: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseRelational()
	if err != nil {
		return nil, err
	}
	for p.accept("&&") {
		right, err := p.parseRelational()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: "&&", L: left, R: right}
	}
	return left, nil
}

func (p *parser) parseRelational() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	t := p.peek()
	switch {
	case t.kind == tokPunct && (t.text == "=" || t.text == "!=" || t.text == "<" || t.text == ">" || t.text == "<=" || t.text == ">="):
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &BinaryExpr{Op: t.text, L: left, R: right}, nil
	case t.is("IN"):
		p.advance()
		list, err := p.parseExprList()
		return &InExpr{X: left, List: list}, err
	case t.is("NOT"):
		p.advance()
		if err := p.expect("IN"); err != nil {
			return nil, err
		}
		list, err := p.parseExprList()
		return &InExpr{X: left, List: list, Not: true}, err
	}
	return left, nil
}

func (p *parser) parseExprList() ([]Expr, error) {
	if err := p.expect("("); err != nil {
		return nil, err
	}
	var list []Expr
	if p.accept(")") {
		return list, nil
	}
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		list = append(list, e)
		if p.accept(")") {
			return list, nil
		}
		if err := p.expect(","); err != nil {
			return nil, err
		}
	}
}

func (p *parser) parseUnary() (Expr, error) {
	if p.accept("!") {
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: "!", X: x}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	t := p.peek()
	switch t.kind {
	case tokVar:
		p.advance()
		return &VarExpr{Name: t.text}, nil
	case tokIRI, tokPName:
		term, err := p.parseIRI()
		return &ConstExpr{Term: term}, err
	case tokString, tokNumber:
		term, err := p.parseLiteral()
		return &ConstExpr{Term: term}, err
	case tokIdent:
		if t.is("true") || t.is("false") {
			p.advance()
			return &ConstExpr{Term: kg.BoolLiteral(t.is("true"))}, nil
		}
		return p.parseCall()
	case tokPunct:
		switch t.text {
		case "(":
			p.advance()
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			return e, p.expect(")")
		case "-", "+":
			term, err := p.parseLiteral()
			return &ConstExpr{Term: term}, err
		}
	}
	return nil, p.errorf("expected expression, found %s", t)
}

func (p *parser) parseCall() (Expr, error) {
	t := p.advance()
	name := strings.ToUpper(t.text)
	arity, ok := builtins[name]
	if t.kind != tokIdent || !ok {
		return nil, &SyntaxError{Pos: t.pos, Msg: fmt.Sprintf("unsupported function %s", t)}
	}
	args, err := p.parseExprList()
	if err != nil {
		return nil, err
	}
	if len(args) < arity[0] || len(args) > arity[1] {
		return nil, &SyntaxError{Pos: t.pos, Msg: fmt.Sprintf("%s takes %d argument(s), got %d", name, arity[0], len(args))}
	}
	if name == "BOUND" {
		if _, ok := args[0].(*VarExpr); !ok {
			return nil, &SyntaxError{Pos: t.pos, Msg: "BOUND requires a variable"}
		}
	}
	return &CallExpr{Func: name, Args: args}, nil
}
