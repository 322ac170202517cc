package kg

import (
	"strconv"
	"strings"
)

// TermKind distinguishes IRIs, literals and blank nodes.
type TermKind uint8

const (
	KindIRI TermKind = iota + 1
	KindLiteral
	KindBlank
)

// XSD datatypes used by the graph.
const (
	XSDString   = XSDNS + "string"
	XSDInteger  = XSDNS + "integer"
	XSDInt      = XSDNS + "int"
	XSDLong     = XSDNS + "long"
	XSDFloat    = XSDNS + "float"
	XSDDouble   = XSDNS + "double"
	XSDDecimal  = XSDNS + "decimal"
	XSDBoolean  = XSDNS + "boolean"
	XSDDateTime = XSDNS + "dateTime"
	RDFLangStr  = RDFNS + "langString"
)

// Term is an RDF node. Plain literals have neither Datatype nor Lang; a
// literal typed xsd:string is stored as plain. The zero Term matches
// anything in Graph.Match.
type Term struct {
	Kind     TermKind
	Value    string
	Datatype string
	Lang     string
}

// NewIRI returns an IRI term.
func NewIRI(iri string) Term {
	return Term{Kind: KindIRI, Value: iri}
}

// NewBlank returns a blank node with the given label.
func NewBlank(id string) Term {
	return Term{Kind: KindBlank, Value: strings.TrimPrefix(id, "_:")}
}

// NewLiteral returns a plain literal.
func NewLiteral(v string) Term {
	return Term{Kind: KindLiteral, Value: v}
}

// NewLangLiteral returns a language-tagged literal.
func NewLangLiteral(v, lang string) Term {
	return Term{Kind: KindLiteral, Value: v, Lang: strings.ToLower(lang)}
}

// NewTypedLiteral returns a literal with a datatype. xsd:string collapses to
// a plain literal.
func NewTypedLiteral(v, datatype string) Term {
	if datatype == XSDString {
		datatype = ""
	}
	return Term{Kind: KindLiteral, Value: v, Datatype: datatype}
}

// IntLiteral returns an xsd:integer literal.
func IntLiteral(n int) Term {
	return NewTypedLiteral(strconv.Itoa(n), XSDInteger)
}

// FloatLiteral returns an xsd:float literal. Whole numbers keep a ".0" so
// the lexical form stays a float.
func FloatLiteral(f float64) Term {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEN") {
		s += ".0"
	}
	return NewTypedLiteral(s, XSDFloat)
}

// BoolLiteral returns an xsd:boolean literal.
func BoolLiteral(b bool) Term {
	return NewTypedLiteral(strconv.FormatBool(b), XSDBoolean)
}

// IsZero reports whether t is the wildcard term.
func (t Term) IsZero() bool {
	return t.Kind == 0
}

// IsIRI reports whether t is an IRI.
func (t Term) IsIRI() bool { return t.Kind == KindIRI }

// IsLiteral reports whether t is a literal.
func (t Term) IsLiteral() bool { return t.Kind == KindLiteral }

// IsBlank reports whether t is a blank node.
func (t Term) IsBlank() bool { return t.Kind == KindBlank }

// IsNumeric reports whether t is a literal with a numeric datatype.
func (t Term) IsNumeric() bool {
	if t.Kind != KindLiteral {
		return false
	}
	switch t.Datatype {
	case XSDInteger, XSDInt, XSDLong, XSDFloat, XSDDouble, XSDDecimal,
		XSDNS + "short", XSDNS + "byte", XSDNS + "nonNegativeInteger", XSDNS + "positiveInteger":
		return true
	}
	return false
}

// Float returns the numeric value of t.
func (t Term) Float() (float64, bool) {
	if !t.IsNumeric() {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(t.Value), 64)
	return f, err == nil
}

// Native converts t to its natural Go value: IRIs and plain literals become
// strings, integer literals int64, float literals float64 and booleans bool.
// Values that fail to parse fall back to their lexical form.
func (t Term) Native() any {
	switch t.Kind {
	case KindBlank:
		return "_:" + t.Value
	case KindLiteral:
		switch t.Datatype {
		case XSDInteger, XSDInt, XSDLong, XSDNS + "short", XSDNS + "byte",
			XSDNS + "nonNegativeInteger", XSDNS + "positiveInteger":
			if n, err := strconv.ParseInt(strings.TrimSpace(t.Value), 10, 64); err == nil {
				return n
			}
		case XSDFloat, XSDDouble, XSDDecimal:
			if f, err := strconv.ParseFloat(strings.TrimSpace(t.Value), 64); err == nil {
				return f
			}
		case XSDBoolean:
			if b, err := strconv.ParseBool(strings.TrimSpace(t.Value)); err == nil {
				return b
			}
		}
	}
	return t.Value
}

// String renders t in N-Triples syntax.
func (t Term) String() string {
	switch t.Kind {
	case KindIRI:
		return "<" + t.Value + ">"
	case KindBlank:
		return "_:" + t.Value
	case KindLiteral:
		s := strconv.Quote(t.Value)
		if t.Lang != "" {
			return s + "@" + t.Lang
		}
		if t.Datatype != "" {
			return s + "^^<" + t.Datatype + ">"
		}
		return s
	}
	return ""
}

// Triple is one subject-predicate-object statement.
type Triple struct {
	Subject   Term
	Predicate Term
	Object    Term
}

// String renders the triple as one N-Triples line without the newline.
func (t Triple) String() string {
	return t.Subject.String() + " " + t.Predicate.String() + " " + t.Object.String() + " ."
}
