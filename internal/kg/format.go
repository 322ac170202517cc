package kg

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned for an unknown serialization name.
var ErrUnsupportedFormat = errors.New("kg: unsupported format")

// Format is a graph serialization.
type Format string

const (
	FormatTurtle   Format = "turtle"
	FormatNTriples Format = "nt"
	FormatN3       Format = "n3"
	FormatRDFXML   Format = "xml"
	FormatJSONLD   Format = "json-ld"
)

// Formats lists every supported serialization.
var Formats = []Format{FormatTurtle, FormatNTriples, FormatN3, FormatRDFXML, FormatJSONLD}

// ParseFormat accepts a format name or a common alias.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "turtle", "ttl", "":
		return FormatTurtle, nil
	case "nt", "ntriples", "n-triples":
		return FormatNTriples, nil
	case "n3":
		return FormatN3, nil
	case "xml", "rdfxml", "rdf/xml", "rdf", "pretty-xml":
		return FormatRDFXML, nil
	case "json-ld", "jsonld", "json":
		return FormatJSONLD, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "jsonld" {
		return FormatJSONLD, nil
	}
	return ParseFormat(ext)
}

// Extension returns the conventional file extension, without the dot.
func (f Format) Extension() string {
	switch f {
	case FormatTurtle:
		return "ttl"
	case FormatNTriples:
		return "nt"
	case FormatN3:
		return "n3"
	case FormatRDFXML:
		return "rdf"
	case FormatJSONLD:
		return "jsonld"
	}
	return string(f)
}

// ContentType returns the media type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatTurtle:
		return "text/turtle"
	case FormatNTriples:
		return "application/n-triples"
	case FormatN3:
		return "text/n3"
	case FormatRDFXML:
		return "application/rdf+xml"
	case FormatJSONLD:
		return "application/ld+json"
	}
	return "application/octet-stream"
}
