package kg

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
)

// encodeRDFXML writes g as RDF/XML, one rdf:Description per subject in
// first-seen order. Predicates are written as qualified names, so a
// predicate without a usable local name is an error.
func encodeRDFXML(w io.Writer, g *Graph) error {
	bw := bufio.NewWriter(w)

	ns := g.Prefixes()
	ns["rdf"] = RDFNS
	byIRI := make(map[string]string, len(ns))
	for prefix, iri := range ns {
		byIRI[iri] = prefix
	}

	triples := g.Triples()
	var order []Term
	bySubject := make(map[Term][]Triple)
	for _, t := range triples {
		if _, ok := bySubject[t.Subject]; !ok {
			order = append(order, t.Subject)
		}
		bySubject[t.Subject] = append(bySubject[t.Subject], t)

		nsIRI, _, ok := splitQName(t.Predicate.Value)
		if !ok {
			return fmt.Errorf("kg: predicate %s has no XML local name", t.Predicate)
		}
		if _, bound := byIRI[nsIRI]; !bound {
			prefix := fmt.Sprintf("ns%d", len(byIRI))
			byIRI[nsIRI] = prefix
			ns[prefix] = nsIRI
		}
	}

	prefixes := make([]string, 0, len(ns))
	for p := range ns {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)

	fmt.Fprint(bw, xml.Header)
	fmt.Fprint(bw, "<rdf:RDF")
	for _, p := range prefixes {
		fmt.Fprintf(bw, "\n  xmlns:%s=\"%s\"", p, escapeAttr(ns[p]))
	}
	fmt.Fprint(bw, ">\n")

	for _, subject := range order {
		if subject.IsBlank() {
			fmt.Fprintf(bw, "  <rdf:Description rdf:nodeID=\"%s\">\n", escapeAttr(subject.Value))
		} else {
			fmt.Fprintf(bw, "  <rdf:Description rdf:about=\"%s\">\n", escapeAttr(subject.Value))
		}
		for _, t := range bySubject[subject] {
			nsIRI, local, _ := splitQName(t.Predicate.Value)
			qname := byIRI[nsIRI] + ":" + local
			o := t.Object
			switch o.Kind {
			case KindIRI:
				fmt.Fprintf(bw, "    <%s rdf:resource=\"%s\"/>\n", qname, escapeAttr(o.Value))
			case KindBlank:
				fmt.Fprintf(bw, "    <%s rdf:nodeID=\"%s\"/>\n", qname, escapeAttr(o.Value))
			default:
				attrs := ""
				if o.Lang != "" {
					attrs = fmt.Sprintf(" xml:lang=\"%s\"", escapeAttr(o.Lang))
				} else if o.Datatype != "" {
					attrs = fmt.Sprintf(" rdf:datatype=\"%s\"", escapeAttr(o.Datatype))
				}
				fmt.Fprintf(bw, "    <%s%s>%s</%s>\n", qname, attrs, escapeText(o.Value), qname)
			}
		}
		fmt.Fprint(bw, "  </rdf:Description>\n")
	}
	fmt.Fprint(bw, "</rdf:RDF>\n")
	return bw.Flush()
}

// splitQName splits iri into a namespace and an XML NCName local part.
func splitQName(iri string) (string, string, bool) {
	i := len(iri)
	for i > 0 && isNameChar(rune(iri[i-1])) {
		i--
	}
	for i < len(iri) && !isNameStart(rune(iri[i])) {
		i++
	}
	if i == 0 || i >= len(iri) {
		return "", "", false
	}
	return iri[:i], iri[i:], true
}

func isNameStart(r rune) bool {
	return r == '_' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')
}

func isNameChar(r rune) bool {
	return isNameStart(r) || r == '-' || r == '.' || (r >= '0' && r <= '9')
}

func escapeText(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

func escapeAttr(s string) string {
	return escapeText(s)
}
