package kg

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/knakk/rdf"
	"github.com/piprate/json-gold/ld"
)

// Encode writes g in the given format.
func Encode(w io.Writer, g *Graph, f Format) error {
	switch f {
	case FormatTurtle, FormatN3:
		return encodeKnakk(w, g, rdf.Turtle)
	case FormatNTriples:
		return encodeKnakk(w, g, rdf.NTriples)
	case FormatRDFXML:
		return encodeRDFXML(w, g)
	case FormatJSONLD:
		return encodeJSONLD(w, g)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
}

// Decode reads a graph in the given format.
func Decode(r io.Reader, f Format) (*Graph, error) {
	switch f {
	case FormatTurtle, FormatN3:
		return decodeKnakk(r, rdf.Turtle)
	case FormatNTriples:
		return decodeKnakk(r, rdf.NTriples)
	case FormatRDFXML:
		return decodeKnakk(r, rdf.RDFXML)
	case FormatJSONLD:
		return decodeJSONLD(r)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
}

// Load reads a graph file, picking the format from its extension.
func Load(path string) (*Graph, error) {
	f, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	g, err := Decode(file, f)
	if err != nil {
		return nil, fmt.Errorf("kg: load %s: %w", path, err)
	}
	log.Printf("kg: loaded %d triples from %s", g.Len(), path)
	return g, nil
}

func encodeKnakk(w io.Writer, g *Graph, f rdf.Format) error {
	enc := rdf.NewTripleEncoder(w, f)
	if f == rdf.Turtle {
		ns := make(map[string]string)
		for prefix, iri := range g.Prefixes() {
			ns[iri] = prefix
		}
		enc.Namespaces = ns
	}
	for _, t := range g.Triples() {
		kt, err := toKnakk(t)
		if err != nil {
			return err
		}
		if err := enc.Encode(kt); err != nil {
			return fmt.Errorf("kg: encode %s: %w", t, err)
		}
	}
	return enc.Close()
}

func decodeKnakk(r io.Reader, f rdf.Format) (*Graph, error) {
	dec := rdf.NewTripleDecoder(r, f)
	g := NewGraph()
	for {
		kt, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("kg: decode: %w", err)
		}
		t, err := fromKnakk(kt)
		if err != nil {
			return nil, err
		}
		g.Add(t)
	}
	return g, nil
}

func toKnakk(t Triple) (rdf.Triple, error) {
	subj, err := toKnakkTerm(t.Subject)
	if err != nil {
		return rdf.Triple{}, err
	}
	pred, err := rdf.NewIRI(t.Predicate.Value)
	if err != nil {
		return rdf.Triple{}, fmt.Errorf("kg: predicate %s: %w", t.Predicate, err)
	}
	obj, err := toKnakkTerm(t.Object)
	if err != nil {
		return rdf.Triple{}, err
	}
	s, ok := subj.(rdf.Subject)
	if !ok {
		return rdf.Triple{}, fmt.Errorf("kg: %s cannot be a subject", t.Subject)
	}
	o, ok := obj.(rdf.Object)
	if !ok {
		return rdf.Triple{}, fmt.Errorf("kg: %s cannot be an object", t.Object)
	}
	return rdf.Triple{Subj: s, Pred: pred, Obj: o}, nil
}

func toKnakkTerm(t Term) (rdf.Term, error) {
	switch t.Kind {
	case KindIRI:
		iri, err := rdf.NewIRI(t.Value)
		if err != nil {
			return nil, fmt.Errorf("kg: IRI %s: %w", t, err)
		}
		return iri, nil
	case KindBlank:
		b, err := rdf.NewBlank(t.Value)
		if err != nil {
			return nil, fmt.Errorf("kg: blank %s: %w", t, err)
		}
		return b, nil
	case KindLiteral:
		if t.Lang != "" {
			l, err := rdf.NewLangLiteral(t.Value, t.Lang)
			if err != nil {
				return nil, fmt.Errorf("kg: literal %s: %w", t, err)
			}
			return l, nil
		}
		if t.Datatype != "" {
			dt, err := rdf.NewIRI(t.Datatype)
			if err != nil {
				return nil, fmt.Errorf("kg: datatype %s: %w", t.Datatype, err)
			}
			return rdf.NewTypedLiteral(t.Value, dt), nil
		}
		l, err := rdf.NewLiteral(t.Value)
		if err != nil {
			return nil, fmt.Errorf("kg: literal %s: %w", t, err)
		}
		return l, nil
	}
	return nil, fmt.Errorf("kg: empty term")
}

func fromKnakk(t rdf.Triple) (Triple, error) {
	s, err := fromKnakkTerm(t.Subj)
	if err != nil {
		return Triple{}, err
	}
	p, err := fromKnakkTerm(t.Pred)
	if err != nil {
		return Triple{}, err
	}
	o, err := fromKnakkTerm(t.Obj)
	if err != nil {
		return Triple{}, err
	}
	return Triple{Subject: s, Predicate: p, Object: o}, nil
}

func fromKnakkTerm(t rdf.Term) (Term, error) {
	switch t.Type() {
	case rdf.TermIRI:
		return NewIRI(t.String()), nil
	case rdf.TermBlank:
		return NewBlank(t.String()), nil
	case rdf.TermLiteral:
		l, ok := t.(rdf.Literal)
		if !ok {
			return Term{}, fmt.Errorf("kg: unexpected literal type %T", t)
		}
		if lang := l.Lang(); lang != "" {
			return NewLangLiteral(l.String(), lang), nil
		}
		dt := l.DataType.String()
		if dt == RDFLangStr {
			dt = ""
		}
		return NewTypedLiteral(l.String(), dt), nil
	}
	return Term{}, fmt.Errorf("kg: unknown term %v", t)
}

func jsonLDOptions() *ld.JsonLdOptions {
	opts := ld.NewJsonLdOptions("")
	opts.Format = "application/n-quads"
	return opts
}

func encodeJSONLD(w io.Writer, g *Graph) error {
	var nquads bytes.Buffer
	if err := encodeKnakk(&nquads, g, rdf.NTriples); err != nil {
		return err
	}

	proc := ld.NewJsonLdProcessor()
	opts := jsonLDOptions()
	expanded, err := proc.FromRDF(nquads.String(), opts)
	if err != nil {
		return fmt.Errorf("kg: json-ld from rdf: %w", err)
	}

	ldContext := make(map[string]interface{})
	for prefix, iri := range g.Prefixes() {
		ldContext[prefix] = iri
	}
	compacted, err := proc.Compact(expanded, map[string]interface{}{"@context": ldContext}, opts)
	if err != nil {
		return fmt.Errorf("kg: json-ld compact: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(compacted)
}

func decodeJSONLD(r io.Reader) (*Graph, error) {
	var doc interface{}
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("kg: json-ld: %w", err)
	}

	proc := ld.NewJsonLdProcessor()
	out, err := proc.ToRDF(doc, jsonLDOptions())
	if err != nil {
		return nil, fmt.Errorf("kg: json-ld to rdf: %w", err)
	}
	nquads, ok := out.(string)
	if !ok {
		return nil, fmt.Errorf("kg: json-ld to rdf returned %T", out)
	}

	// Default-graph N-Quads lines are N-Triples lines.
	g, err := decodeKnakk(bytes.NewBufferString(nquads), rdf.NTriples)
	if err != nil {
		return nil, err
	}
	if m, ok := doc.(map[string]interface{}); ok {
		if ctx, ok := m["@context"].(map[string]interface{}); ok {
			for prefix, iri := range ctx {
				if s, ok := iri.(string); ok {
					g.Bind(prefix, s)
				}
			}
		}
	}
	return g, nil
}
