package sparql

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/scrypster/mlkg/internal/kg"
)

var (
	errUnbound = errors.New("unbound variable")
	errType    = errors.New("type error")
)

func (ev *evaluator) eval(x Expr, s Solution) (kg.Term, error) {
	switch x := x.(type) {
	case *VarExpr:
		t, ok := s[x.Name]
		if !ok {
			return kg.Term{}, errUnbound
		}
		return t, nil
	case *ConstExpr:
		return x.Term, nil
	case *UnaryExpr:
		b, err := ev.ebvOf(x.X, s)
		if err != nil {
			return kg.Term{}, err
		}
		return kg.BoolLiteral(!b), nil
	case *BinaryExpr:
		return ev.evalBinary(x, s)
	case *InExpr:
		return ev.evalIn(x, s)
	case *CallExpr:
		return ev.call(x, s)
	}
	return kg.Term{}, fmt.Errorf("sparql: unknown expression %T", x)
}

func (ev *evaluator) ebvOf(x Expr, s Solution) (bool, error) {
	t, err := ev.eval(x, s)
	if err != nil {
		return false, err
	}
	return ebv(t)
}

// ebv is the effective boolean value of t.
func ebv(t kg.Term) (bool, error) {
	if !t.IsLiteral() {
		return false, errType
	}
	switch {
	case t.Datatype == kg.XSDBoolean:
		b, err := strconv.ParseBool(t.Value)
		if err != nil {
			return false, errType
		}
		return b, nil
	case t.IsNumeric():
		f, ok := t.Float()
		if !ok {
			return false, errType
		}
		return f != 0 && !math.IsNaN(f), nil
	case t.Datatype == "":
		return t.Value != "", nil
	}
	return false, errType
}

func (ev *evaluator) evalBinary(x *BinaryExpr, s Solution) (kg.Term, error) {
	switch x.Op {
	case "&&", "||":
		lb, lerr := ev.ebvOf(x.L, s)
		rb, rerr := ev.ebvOf(x.R, s)
		if x.Op == "||" {
			if (lerr == nil && lb) || (rerr == nil && rb) {
				return kg.BoolLiteral(true), nil
			}
		} else if (lerr == nil && !lb) || (rerr == nil && !rb) {
			return kg.BoolLiteral(false), nil
		}
		if lerr != nil {
			return kg.Term{}, lerr
		}
		if rerr != nil {
			return kg.Term{}, rerr
		}
		return kg.BoolLiteral(x.Op == "&&"), nil
	}

	l, err := ev.eval(x.L, s)
	if err != nil {
		return kg.Term{}, err
	}
	r, err := ev.eval(x.R, s)
	if err != nil {
		return kg.Term{}, err
	}
	switch x.Op {
	case "=":
		return kg.BoolLiteral(termsEqual(l, r)), nil
	case "!=":
		return kg.BoolLiteral(!termsEqual(l, r)), nil
	}
	cmp, err := compareValues(l, r)
	if err != nil {
		return kg.Term{}, err
	}
	switch x.Op {
	case "<":
		return kg.BoolLiteral(cmp < 0), nil
	case ">":
		return kg.BoolLiteral(cmp > 0), nil
	case "<=":
		return kg.BoolLiteral(cmp <= 0), nil
	case ">=":
		return kg.BoolLiteral(cmp >= 0), nil
	}
	return kg.Term{}, fmt.Errorf("sparql: unknown operator %q", x.Op)
}

func (ev *evaluator) evalIn(x *InExpr, s Solution) (kg.Term, error) {
	v, err := ev.eval(x.X, s)
	if err != nil {
		return kg.Term{}, err
	}
	var firstErr error
	for _, item := range x.List {
		t, err := ev.eval(item, s)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if termsEqual(v, t) {
			return kg.BoolLiteral(!x.Not), nil
		}
	}
	if firstErr != nil {
		return kg.Term{}, firstErr
	}
	return kg.BoolLiteral(x.Not), nil
}

// termsEqual compares numbers by value and all other terms exactly.
func termsEqual(a, b kg.Term) bool {
	if fa, ok := a.Float(); ok {
		if fb, ok := b.Float(); ok {
			return fa == fb
		}
	}
	return a == b
}

// compareValues orders two numbers, two strings or two dateTimes.
func compareValues(a, b kg.Term) (int, error) {
	if fa, ok := a.Float(); ok {
		fb, ok := b.Float()
		if !ok {
			return 0, errType
		}
		switch {
		case fa < fb:
			return -1, nil
		case fa > fb:
			return 1, nil
		}
		return 0, nil
	}
	if !a.IsLiteral() || !b.IsLiteral() || a.Datatype != b.Datatype || a.Lang != b.Lang {
		return 0, errType
	}
	if a.Datatype != "" && a.Datatype != kg.XSDDateTime {
		return 0, errType
	}
	return strings.Compare(a.Value, b.Value), nil
}

// stringArg returns the lexical form of a literal argument.
func (ev *evaluator) stringArg(x Expr, s Solution) (kg.Term, error) {
	t, err := ev.eval(x, s)
	if err != nil {
		return kg.Term{}, err
	}
	if !t.IsLiteral() {
		return kg.Term{}, errType
	}
	return t, nil
}

func (ev *evaluator) call(x *CallExpr, s Solution) (kg.Term, error) {
	switch x.Func {
	case "BOUND":
		_, ok := s[x.Args[0].(*VarExpr).Name]
		return kg.BoolLiteral(ok), nil
	case "STRSTARTS", "STRENDS", "CONTAINS":
		a, err := ev.stringArg(x.Args[0], s)
		if err != nil {
			return kg.Term{}, err
		}
		b, err := ev.stringArg(x.Args[1], s)
		if err != nil {
			return kg.Term{}, err
		}
		switch x.Func {
		case "STRSTARTS":
			return kg.BoolLiteral(strings.HasPrefix(a.Value, b.Value)), nil
		case "STRENDS":
			return kg.BoolLiteral(strings.HasSuffix(a.Value, b.Value)), nil
		}
		return kg.BoolLiteral(strings.Contains(a.Value, b.Value)), nil
	case "REGEX":
		return ev.regex(x, s)
	}

	t, err := ev.eval(x.Args[0], s)
	if err != nil {
		return kg.Term{}, err
	}
	switch x.Func {
	case "STR":
		if t.IsBlank() {
			return kg.Term{}, errType
		}
		return kg.NewLiteral(t.Value), nil
	case "LCASE", "UCASE":
		if !t.IsLiteral() {
			return kg.Term{}, errType
		}
		if x.Func == "LCASE" {
			t.Value = strings.ToLower(t.Value)
		} else {
			t.Value = strings.ToUpper(t.Value)
		}
		return t, nil
	case "STRLEN":
		if !t.IsLiteral() {
			return kg.Term{}, errType
		}
		return kg.IntLiteral(utf8.RuneCountInString(t.Value)), nil
	case "ISIRI", "ISURI":
		return kg.BoolLiteral(t.IsIRI()), nil
	case "ISLITERAL":
		return kg.BoolLiteral(t.IsLiteral()), nil
	case "ISBLANK":
		return kg.BoolLiteral(t.IsBlank()), nil
	case "LANG":
		if !t.IsLiteral() {
			return kg.Term{}, errType
		}
		return kg.NewLiteral(t.Lang), nil
	case "DATATYPE":
		switch {
		case !t.IsLiteral():
			return kg.Term{}, errType
		case t.Lang != "":
			return kg.NewIRI(kg.RDFLangStr), nil
		case t.Datatype == "":
			return kg.NewIRI(kg.XSDString), nil
		}
		return kg.NewIRI(t.Datatype), nil
	}
	return kg.Term{}, fmt.Errorf("sparql: unknown function %s", x.Func)
}

func (ev *evaluator) regex(x *CallExpr, s Solution) (kg.Term, error) {
	text, err := ev.stringArg(x.Args[0], s)
	if err != nil {
		return kg.Term{}, err
	}
	pattern, err := ev.stringArg(x.Args[1], s)
	if err != nil {
		return kg.Term{}, err
	}
	flags := ""
	if len(x.Args) == 3 {
		f, err := ev.stringArg(x.Args[2], s)
		if err != nil {
			return kg.Term{}, err
		}
		flags = f.Value
	}

	cacheKey := flags + "\x00" + pattern.Value
	re, ok := ev.regexps[cacheKey]
	if !ok {
		prefix := ""
		for _, f := range flags {
			switch f {
			case 'i', 's', 'm':
				prefix += string(f)
			default:
				return kg.Term{}, errType
			}
		}
		src := pattern.Value
		if prefix != "" {
			src = "(?" + prefix + ")" + src
		}
		re, err = regexp.Compile(src)
		if err != nil {
			return kg.Term{}, errType
		}
		ev.regexps[cacheKey] = re
	}
	return kg.BoolLiteral(re.MatchString(text.Value)), nil
}
