package sparql

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/scrypster/mlkg/internal/kg"
)

// ContentTypeJSON is the SPARQL 1.1 results media type.
const ContentTypeJSON = "application/sparql-results+json"

// Binding is one RDF term in the SPARQL JSON results format.
type Binding struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Datatype string `json:"datatype,omitempty"`
	Lang     string `json:"xml:lang,omitempty"`
}

// Results is the SPARQL JSON results document.
type Results struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results struct {
		Bindings []map[string]Binding `json:"bindings"`
	} `json:"results"`
}

// ToBinding converts a term to its JSON form.
func ToBinding(t kg.Term) Binding {
	switch t.Kind {
	case kg.KindIRI:
		return Binding{Type: "uri", Value: t.Value}
	case kg.KindBlank:
		return Binding{Type: "bnode", Value: t.Value}
	}
	return Binding{Type: "literal", Value: t.Value, Datatype: t.Datatype, Lang: t.Lang}
}

// FromBinding converts a JSON term back. "typed-literal" from older
// endpoints is accepted.
func FromBinding(b Binding) (kg.Term, error) {
	switch b.Type {
	case "uri":
		return kg.NewIRI(b.Value), nil
	case "bnode":
		return kg.NewBlank(b.Value), nil
	case "literal", "typed-literal":
		if b.Lang != "" {
			return kg.NewLangLiteral(b.Value, b.Lang), nil
		}
		return kg.NewTypedLiteral(b.Value, b.Datatype), nil
	}
	return kg.Term{}, fmt.Errorf("sparql: unknown binding type %q", b.Type)
}

// WriteJSON encodes r as a SPARQL JSON results document.
func WriteJSON(w io.Writer, r *Result) error {
	var doc Results
	doc.Head.Vars = r.Vars
	if doc.Head.Vars == nil {
		doc.Head.Vars = []string{}
	}
	doc.Results.Bindings = make([]map[string]Binding, len(r.Rows))
	for i, row := range r.Rows {
		b := make(map[string]Binding, len(row))
		for k, v := range row {
			b[k] = ToBinding(v)
		}
		doc.Results.Bindings[i] = b
	}
	return json.NewEncoder(w).Encode(doc)
}

// ReadJSON decodes a SPARQL JSON results document.
func ReadJSON(rd io.Reader) (*Result, error) {
	var doc Results
	if err := json.NewDecoder(rd).Decode(&doc); err != nil {
		return nil, fmt.Errorf("sparql: failed to decode results: %w", err)
	}
	out := &Result{Vars: doc.Head.Vars, Rows: make([]Solution, 0, len(doc.Results.Bindings))}
	for _, b := range doc.Results.Bindings {
		row := make(Solution, len(b))
		for k, v := range b {
			t, err := FromBinding(v)
			if err != nil {
				return nil, err
			}
			row[k] = t
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}
