package kg

import (
	"sync"
)

// Graph is an in-memory set of triples with subject, predicate and object
// indexes. Triples keep their insertion order. Safe for concurrent use.
type Graph struct {
	mu          sync.RWMutex
	triples     []Triple
	positions   map[Triple]int
	bySubject   map[Term][]int
	byPredicate map[Term][]int
	byObject    map[Term][]int
	prefixes    map[string]string
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		positions:   make(map[Triple]int),
		bySubject:   make(map[Term][]int),
		byPredicate: make(map[Term][]int),
		byObject:    make(map[Term][]int),
		prefixes:    make(map[string]string),
	}
}

// Add inserts t and reports whether it was new.
func (g *Graph) Add(t Triple) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.add(t)
}

// AddAll inserts every triple and returns how many were new.
func (g *Graph) AddAll(ts []Triple) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, t := range ts {
		if g.add(t) {
			n++
		}
	}
	return n
}

func (g *Graph) add(t Triple) bool {
	if _, ok := g.positions[t]; ok {
		return false
	}
	pos := len(g.triples)
	g.triples = append(g.triples, t)
	g.positions[t] = pos
	g.bySubject[t.Subject] = append(g.bySubject[t.Subject], pos)
	g.byPredicate[t.Predicate] = append(g.byPredicate[t.Predicate], pos)
	g.byObject[t.Object] = append(g.byObject[t.Object], pos)
	return true
}

// Has reports whether t is in the graph.
func (g *Graph) Has(t Triple) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.positions[t]
	return ok
}

// Len returns the number of triples.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.triples)
}

// Triples returns a copy of all triples in insertion order.
func (g *Graph) Triples() []Triple {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Triple, len(g.triples))
	copy(out, g.triples)
	return out
}

// Match returns the triples matching the pattern. A zero Term is a wildcard.
func (g *Graph) Match(s, p, o Term) []Triple {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var candidates []int
	all := true
	narrow := func(idx map[Term][]int, key Term) {
		if key.IsZero() {
			return
		}
		list := idx[key]
		if all || len(list) < len(candidates) {
			candidates = list
			all = false
		}
	}
	narrow(g.bySubject, s)
	narrow(g.byPredicate, p)
	narrow(g.byObject, o)

	var out []Triple
	check := func(t Triple) {
		if (s.IsZero() || t.Subject == s) && (p.IsZero() || t.Predicate == p) && (o.IsZero() || t.Object == o) {
			out = append(out, t)
		}
	}
	if all {
		for _, t := range g.triples {
			check(t)
		}
		return out
	}
	for _, pos := range candidates {
		check(g.triples[pos])
	}
	return out
}

// Object returns the first object of (s, p, *).
func (g *Graph) Object(s, p Term) (Term, bool) {
	m := g.Match(s, p, Term{})
	if len(m) == 0 {
		return Term{}, false
	}
	return m[0].Object, true
}

// Bind records a namespace prefix used when serializing.
func (g *Graph) Bind(prefix, iri string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prefixes[prefix] = iri
}

// Prefixes returns a copy of the bound prefixes, prefix -> IRI.
func (g *Graph) Prefixes() map[string]string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]string, len(g.prefixes))
	for k, v := range g.prefixes {
		out[k] = v
	}
	return out
}

// Equal reports whether both graphs hold the same triple set. The graphs
// built here carry no blank nodes, so set equality is isomorphism.
func (g *Graph) Equal(other *Graph) bool {
	if g.Len() != other.Len() {
		return false
	}
	for _, t := range g.Triples() {
		if !other.Has(t) {
			return false
		}
	}
	return true
}
