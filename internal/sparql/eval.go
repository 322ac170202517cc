package sparql

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/scrypster/mlkg/internal/kg"
)

// Solution binds variable names to terms. Unbound variables are absent.
type Solution map[string]kg.Term

func (s Solution) clone() Solution {
	out := make(Solution, len(s)+2)
	for k, v := range s {
		out[k] = v
	}
	return out
}

// key renders the bindings of vars as a comparable string.
func (s Solution) key(vars []string) string {
	var b strings.Builder
	for _, v := range vars {
		if t, ok := s[v]; ok {
			b.WriteString(t.String())
		}
		b.WriteByte(0)
	}
	return b.String()
}

// Result is the outcome of a SELECT query.
type Result struct {
	Vars []string
	Rows []Solution
}

// Native converts every row to plain Go values with Term.Native.
func (r *Result) Native() []map[string]any {
	out := make([]map[string]any, len(r.Rows))
	for i, row := range r.Rows {
		m := make(map[string]any, len(row))
		for k, v := range row {
			m[k] = v.Native()
		}
		out[i] = m
	}
	return out
}

// Run parses src and executes it against g.
func Run(ctx context.Context, g *kg.Graph, src string) (*Result, error) {
	q, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return Execute(ctx, g, q)
}

// Execute evaluates q against g. Only cancellation of ctx makes it fail;
// type errors inside FILTER simply drop the solution.
func Execute(ctx context.Context, g *kg.Graph, q *Query) (*Result, error) {
	ev := &evaluator{ctx: ctx, g: g, regexps: map[string]*regexp.Regexp{}}

	sols, err := ev.evalGroup(q.Where, []Solution{{}})
	if err != nil {
		return nil, err
	}
	if q.Aggregated() {
		sols = ev.aggregate(q, sols)
	}
	if len(q.OrderBy) > 0 {
		ev.order(sols, q.OrderBy)
	}

	vars := q.Variables()
	rows := make([]Solution, 0, len(sols))
	seen := map[string]bool{}
	for _, s := range sols {
		row := make(Solution, len(vars))
		for _, v := range vars {
			if t, ok := s[v]; ok {
				row[v] = t
			}
		}
		if q.Distinct {
			k := row.key(vars)
			if seen[k] {
				continue
			}
			seen[k] = true
		}
		rows = append(rows, row)
	}

	if q.Offset > 0 {
		if q.Offset >= len(rows) {
			rows = rows[:0]
		} else {
			rows = rows[q.Offset:]
		}
	}
	if q.Limit >= 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	return &Result{Vars: vars, Rows: rows}, nil
}

type evaluator struct {
	ctx     context.Context
	g       *kg.Graph
	regexps map[string]*regexp.Regexp
}

// evalGroup evaluates grp once per seed solution. Nested groups, OPTIONAL
// and UNION members see the bindings made so far.
func (ev *evaluator) evalGroup(grp *Group, seeds []Solution) ([]Solution, error) {
	sols := seeds
	for _, el := range grp.Elements {
		if err := ev.ctx.Err(); err != nil {
			return nil, err
		}
		var err error
		switch el := el.(type) {
		case *Triples:
			for _, tp := range el.Patterns {
				sols = ev.join(sols, tp)
			}
		case *Group:
			sols, err = ev.evalGroup(el, sols)
		case *Optional:
			sols, err = ev.leftJoin(sols, el.Group)
		case *Union:
			var out []Solution
			for _, alt := range el.Alternatives {
				part, aerr := ev.evalGroup(alt, sols)
				if aerr != nil {
					return nil, aerr
				}
				out = append(out, part...)
			}
			sols = out
		}
		if err != nil {
			return nil, err
		}
	}

	if len(grp.Filters) == 0 {
		return sols, nil
	}
	kept := sols[:0:0]
	for _, s := range sols {
		if ev.passes(grp.Filters, s) {
			kept = append(kept, s)
		}
	}
	return kept, nil
}

func (ev *evaluator) leftJoin(sols []Solution, grp *Group) ([]Solution, error) {
	var out []Solution
	for _, s := range sols {
		ext, err := ev.evalGroup(grp, []Solution{s})
		if err != nil {
			return nil, err
		}
		if len(ext) == 0 {
			out = append(out, s)
			continue
		}
		out = append(out, ext...)
	}
	return out, nil
}

// join extends every solution with the triples matching tp.
func (ev *evaluator) join(sols []Solution, tp TriplePattern) []Solution {
	var out []Solution
	for _, s := range sols {
		subj := resolve(tp.Subject, s)
		pred := resolve(tp.Predicate, s)
		obj := resolve(tp.Object, s)
		for _, t := range ev.g.Match(subj, pred, obj) {
			ext := s.clone()
			if bind(ext, tp.Subject, t.Subject) && bind(ext, tp.Predicate, t.Predicate) && bind(ext, tp.Object, t.Object) {
				out = append(out, ext)
			}
		}
	}
	return out
}

func resolve(n Node, s Solution) kg.Term {
	if !n.IsVar() {
		return n.Term
	}
	return s[n.Var]
}

// bind records n = t in s, failing when n is already bound to another term.
func bind(s Solution, n Node, t kg.Term) bool {
	if !n.IsVar() {
		return true
	}
	if cur, ok := s[n.Var]; ok {
		return cur == t
	}
	s[n.Var] = t
	return true
}

func (ev *evaluator) passes(filters []Expr, s Solution) bool {
	for _, f := range filters {
		ok, err := ev.ebvOf(f, s)
		if err != nil || !ok {
			return false
		}
	}
	return true
}

type group struct {
	key     Solution
	members []Solution
}

// aggregate collapses sols into one row per GROUP BY key, in first-seen
// order. Without GROUP BY there is exactly one group, even when empty.
func (ev *evaluator) aggregate(q *Query, sols []Solution) []Solution {
	var groups []*group
	if len(q.GroupBy) == 0 {
		groups = []*group{{key: Solution{}, members: sols}}
	} else {
		index := map[string]*group{}
		for _, s := range sols {
			k := s.key(q.GroupBy)
			grp, ok := index[k]
			if !ok {
				key := Solution{}
				for _, v := range q.GroupBy {
					if t, bound := s[v]; bound {
						key[v] = t
					}
				}
				grp = &group{key: key}
				index[k] = grp
				groups = append(groups, grp)
			}
			grp.members = append(grp.members, s)
		}
	}

	out := make([]Solution, 0, len(groups))
	for _, grp := range groups {
		row := grp.key.clone()
		for _, p := range q.Projection {
			if p.Aggregate != nil {
				row[p.Var] = kg.IntLiteral(count(p.Aggregate, grp.members, q.vars))
			}
		}
		out = append(out, row)
	}
	return out
}

func count(agg *Aggregate, members []Solution, allVars []string) int {
	if agg.Var == "" {
		if !agg.Distinct {
			return len(members)
		}
		seen := map[string]bool{}
		for _, s := range members {
			seen[s.key(allVars)] = true
		}
		return len(seen)
	}

	n := 0
	seen := map[kg.Term]bool{}
	for _, s := range members {
		t, ok := s[agg.Var]
		if !ok {
			continue
		}
		if agg.Distinct {
			if seen[t] {
				continue
			}
			seen[t] = true
		}
		n++
	}
	return n
}

func (ev *evaluator) order(sols []Solution, conds []OrderCondition) {
	type keyed struct {
		sol  Solution
		keys []kg.Term
	}
	rows := make([]keyed, len(sols))
	for i, s := range sols {
		keys := make([]kg.Term, len(conds))
		for j, c := range conds {
			if t, err := ev.eval(c.Expr, s); err == nil {
				keys[j] = t
			}
		}
		rows[i] = keyed{sol: s, keys: keys}
	}
	sort.SliceStable(rows, func(a, b int) bool {
		for j, c := range conds {
			cmp := orderCompare(rows[a].keys[j], rows[b].keys[j])
			if cmp == 0 {
				continue
			}
			if c.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	for i := range rows {
		sols[i] = rows[i].sol
	}
}

// orderCompare ranks unbound < blank < IRI < literal, numbers numerically
// and everything else by lexical form.
func orderCompare(a, b kg.Term) int {
	rank := func(t kg.Term) int {
		switch t.Kind {
		case kg.KindBlank:
			return 1
		case kg.KindIRI:
			return 2
		case kg.KindLiteral:
			return 3
		}
		return 0
	}
	if ra, rb := rank(a), rank(b); ra != rb {
		return ra - rb
	}
	if fa, ok := a.Float(); ok {
		if fb, ok := b.Float(); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	if c := strings.Compare(a.Value, b.Value); c != 0 {
		return c
	}
	if c := strings.Compare(a.Datatype, b.Datatype); c != 0 {
		return c
	}
	return strings.Compare(a.Lang, b.Lang)
}
