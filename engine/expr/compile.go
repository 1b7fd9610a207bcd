package expr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	identRe  = regexp.MustCompile(`^\w+$`)
	dottedRe = regexp.MustCompile(`^\w+(\.\w+)+$`)
	objRe    = regexp.MustCompile(`^(\w+)\.(\w+)$`)
)

// CompileCondition compiles a condition string into a Node. An empty
// string compiles to the always-true literal. An unrecognized form
// compiles to Bad and returns an error so the loader can flag it; the
// returned node is still usable (it evaluates to the fallback).
//
// The grammar is deliberately the script DSL's, not a general expression
// language: "and"/"or" split the source at the first connective and bind
// looser than anything else, comparisons scan two-character operators
// before one-character ones, and everything that is not an operator form
// is one of the fixed predicates.
func CompileCondition(src string) (Node, error) {
	cond := strings.TrimSpace(src)
	if cond == "" {
		return Lit{Val: true}, nil
	}

	// Connectives first: "and" is checked before "or", both split once at
	// the first occurrence. The right side re-enters the compiler, so
	// chains associate to the right.
	if i := strings.Index(cond, " and "); i >= 0 {
		return compileLogic("and", cond[:i], cond[i+5:])
	}
	if i := strings.Index(cond, " or "); i >= 0 {
		return compileLogic("or", cond[:i], cond[i+4:])
	}

	switch cond {
	case "true":
		return Lit{Val: true}, nil
	case "false":
		return Lit{Val: false}, nil
	}

	if l, r, ok := splitOp(cond, "=="); ok {
		return Cmp{Op: "==", L: operand(l), R: operand(r)}, nil
	}
	// Two-character comparisons before one-character ones, so ">=" is not
	// torn apart at ">".
	for _, op := range []string{">=", "<=", ">", "<"} {
		if l, r, ok := splitOp(cond, op); ok {
			return Cmp{Op: op, L: operand(l), R: operand(r)}, nil
		}
	}

	if name, ok := callArg(cond, "has_flag"); ok {
		return Call{Fn: "has_flag", Args: []Node{Lit{Val: name}}}, nil
	}
	if name, ok := callArg(cond, "has_item"); ok {
		return Call{Fn: "has_item", Args: []Node{Lit{Val: name}}}, nil
	}

	if rest, ok := strings.CutPrefix(cond, "!"); ok {
		name := strings.TrimSpace(rest)
		if identRe.MatchString(name) {
			return Not{X: Call{Fn: "has_flag", Args: []Node{Lit{Val: name}}}}, nil
		}
		// "!has_flag(x)", "!door.open" and the like: negate whatever the
		// rest compiles to.
		if inner, err := CompileCondition(name); err == nil {
			return Not{X: inner}, nil
		}
	}

	if name, ok := strings.CutPrefix(cond, "exists:"); ok {
		name = strings.TrimSpace(name)
		if identRe.MatchString(name) {
			return Call{Fn: "exists", Args: []Node{Lit{Val: name}}}, nil
		}
	}

	if m := objRe.FindStringSubmatch(cond); m != nil {
		return ObjState{Object: m[1], Want: m[2]}, nil
	}

	return Bad{Src: cond}, fmt.Errorf("unsupported condition %q", cond)
}

func compileLogic(op, left, right string) (Node, error) {
	l, errL := CompileCondition(left)
	r, errR := CompileCondition(right)
	if errL != nil {
		return Logic{Op: op, L: l, R: r}, errL
	}
	return Logic{Op: op, L: l, R: r}, errR
}

// splitOp splits src once at the operator, requiring non-empty sides.
func splitOp(src, op string) (left, right string, ok bool) {
	i := strings.Index(src, op)
	if i < 0 {
		return "", "", false
	}
	left = strings.TrimSpace(src[:i])
	right = strings.TrimSpace(src[i+len(op):])
	if left == "" || right == "" {
		return "", "", false
	}
	return left, right, true
}

// callArg extracts the argument of "fn(arg)" forms.
func callArg(src, fn string) (string, bool) {
	rest, ok := strings.CutPrefix(src, fn+"(")
	if !ok || !strings.HasSuffix(rest, ")") {
		return "", false
	}
	return strings.TrimSpace(rest[:len(rest)-1]), true
}

// operand compiles one side of a comparison. Right-hand string literals
// arrive unquoted in scripts ("name == John"), so the fallback is a raw
// string literal with any surrounding quotes stripped.
func operand(s string) Node {
	s = strings.TrimSpace(s)
	switch s {
	case "true":
		return Lit{Val: true}
	case "false":
		return Lit{Val: false}
	}
	if n, err := strconv.Atoi(s); err == nil {
		return Lit{Val: n}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return Lit{Val: f}
	}
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return Lit{Val: s[1 : len(s)-1]}
		}
	}
	if dottedRe.MatchString(s) {
		return Path{Parts: strings.Split(s, ".")}
	}
	if identRe.MatchString(s) {
		return Ref{Name: s}
	}
	return Lit{Val: strings.Trim(s, `"`)}
}
