package sparql

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIRI
	tokPName
	tokVar
	tokString
	tokLangTag
	tokNumber
	tokIdent
	tokPunct
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of query"
	case tokIRI:
		return "IRI"
	case tokPName:
		return "prefixed name"
	case tokVar:
		return "variable"
	case tokString:
		return "string"
	case tokLangTag:
		return "language tag"
	case tokNumber:
		return "number"
	case tokIdent:
		return "keyword"
	default:
		return "symbol"
	}
}

type token struct {
	kind tokenKind
	text string
	pos  int
}

func (t token) String() string {
	if t.kind == tokEOF {
		return t.kind.String()
	}
	return fmt.Sprintf("%s %q", t.kind, t.text)
}

// is reports whether t is the keyword or symbol s. Keywords compare
// case-insensitively.
func (t token) is(s string) bool {
	switch t.kind {
	case tokIdent:
		return strings.EqualFold(t.text, s)
	case tokPunct:
		return t.text == s
	}
	return false
}

type lexer struct {
	src string
	pos int
}

func tokenize(src string) ([]token, error) {
	lx := &lexer{src: src}
	var out []token
	for {
		tok, err := lx.next()
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
		if tok.kind == tokEOF {
			return out, nil
		}
	}
}

func (lx *lexer) errorf(pos int, format string, args ...any) error {
	return &SyntaxError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func (lx *lexer) skipSpace() {
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		switch {
		case c == '#':
			for lx.pos < len(lx.src) && lx.src[lx.pos] != '\n' {
				lx.pos++
			}
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			lx.pos++
		default:
			return
		}
	}
}

func (lx *lexer) next() (token, error) {
	lx.skipSpace()
	start := lx.pos
	if lx.pos >= len(lx.src) {
		return token{kind: tokEOF, pos: start}, nil
	}

	c := lx.src[lx.pos]
	switch {
	case c == '<':
		if iri, ok := lx.scanIRI(); ok {
			return token{kind: tokIRI, text: iri, pos: start}, nil
		}
		if lx.peekAt(1) == '=' {
			lx.pos += 2
			return token{kind: tokPunct, text: "<=", pos: start}, nil
		}
		lx.pos++
		return token{kind: tokPunct, text: "<", pos: start}, nil
	case c == '?' || c == '$':
		lx.pos++
		name := lx.scanWhile(isVarChar)
		if name == "" {
			return token{}, lx.errorf(start, "empty variable name")
		}
		return token{kind: tokVar, text: name, pos: start}, nil
	case c == '"' || c == '\'':
		s, err := lx.scanString(c)
		if err != nil {
			return token{}, err
		}
		return token{kind: tokString, text: s, pos: start}, nil
	case c == '@':
		lx.pos++
		tag := lx.scanWhile(func(r rune) bool { return r == '-' || unicode.IsLetter(r) || unicode.IsDigit(r) })
		if tag == "" {
			return token{}, lx.errorf(start, "empty language tag")
		}
		return token{kind: tokLangTag, text: tag, pos: start}, nil
	case c >= '0' && c <= '9':
		return token{kind: tokNumber, text: lx.scanNumber(), pos: start}, nil
	case c == ':' || isNameStart(rune(c)) || c >= utf8.RuneSelf:
		return lx.scanName()
	}

	for _, op := range []string{"^^", "&&", "||", "!=", ">=", "<="} {
		if strings.HasPrefix(lx.src[lx.pos:], op) {
			lx.pos += len(op)
			return token{kind: tokPunct, text: op, pos: start}, nil
		}
	}
	if strings.ContainsRune("{}().;,*=!>+-/", rune(c)) {
		lx.pos++
		return token{kind: tokPunct, text: string(c), pos: start}, nil
	}
	return token{}, lx.errorf(start, "unexpected character %q", c)
}

func (lx *lexer) peekAt(off int) byte {
	if lx.pos+off < len(lx.src) {
		return lx.src[lx.pos+off]
	}
	return 0
}

// scanIRI consumes <...> when the bracketed text is a valid IRI reference.
// Otherwise nothing is consumed and '<' is an operator.
func (lx *lexer) scanIRI() (string, bool) {
	for i := lx.pos + 1; i < len(lx.src); i++ {
		switch c := lx.src[i]; {
		case c == '>':
			iri := lx.src[lx.pos+1 : i]
			lx.pos = i + 1
			return iri, true
		case c <= ' ' || strings.IndexByte("<\"{}|^`\\", c) >= 0:
			return "", false
		}
	}
	return "", false
}

func (lx *lexer) scanWhile(ok func(rune) bool) string {
	start := lx.pos
	for lx.pos < len(lx.src) {
		r, size := utf8.DecodeRuneInString(lx.src[lx.pos:])
		if !ok(r) {
			break
		}
		lx.pos += size
	}
	return lx.src[start:lx.pos]
}

func (lx *lexer) scanString(quote byte) (string, error) {
	start := lx.pos
	lx.pos++
	var b strings.Builder
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		switch c {
		case quote:
			lx.pos++
			return b.String(), nil
		case '\n', '\r':
			return "", lx.errorf(start, "unterminated string")
		case '\\':
			if lx.pos+1 >= len(lx.src) {
				return "", lx.errorf(start, "unterminated string")
			}
			esc := lx.src[lx.pos+1]
			switch esc {
			case 't':
				b.WriteByte('\t')
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 'b':
				b.WriteByte('\b')
			case 'f':
				b.WriteByte('\f')
			case '"', '\'', '\\':
				b.WriteByte(esc)
			default:
				return "", lx.errorf(lx.pos, "invalid escape \\%c", esc)
			}
			lx.pos += 2
		default:
			b.WriteByte(c)
			lx.pos++
		}
	}
	return "", lx.errorf(start, "unterminated string")
}

func (lx *lexer) scanNumber() string {
	start := lx.pos
	lx.scanWhile(isDigit)
	if lx.peekAt(0) == '.' && isDigit(rune(lx.peekAt(1))) {
		lx.pos++
		lx.scanWhile(isDigit)
	}
	if c := lx.peekAt(0); c == 'e' || c == 'E' {
		save := lx.pos
		lx.pos++
		if c := lx.peekAt(0); c == '+' || c == '-' {
			lx.pos++
		}
		if lx.scanWhile(isDigit) == "" {
			lx.pos = save
		}
	}
	return lx.src[start:lx.pos]
}

// scanName reads a keyword or a prefixed name. A word followed by ':' is a
// prefix; the local part may be empty and never ends with '.'.
func (lx *lexer) scanName() (token, error) {
	start := lx.pos
	prefix := lx.scanWhile(isNameChar)
	if lx.peekAt(0) != ':' {
		if prefix == "" {
			return token{}, lx.errorf(start, "unexpected character %q", lx.src[start])
		}
		return token{kind: tokIdent, text: prefix, pos: start}, nil
	}
	lx.pos++
	localStart := lx.pos
	lx.scanWhile(func(r rune) bool { return isNameChar(r) || r == '.' || r == '%' })
	for lx.pos > localStart && lx.src[lx.pos-1] == '.' {
		lx.pos--
	}
	return token{kind: tokPName, text: lx.src[start:lx.pos], pos: start}, nil
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func isNameStart(r rune) bool { return r == '_' || unicode.IsLetter(r) }

func isNameChar(r rune) bool {
	return r == '_' || r == '-' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isVarChar(r rune) bool { return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) }
