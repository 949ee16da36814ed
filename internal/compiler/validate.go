package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/weft/internal/event"
)

// Validation codes (W300-W399). These are diagnostics, not errors: a tree
// that produces them still renders.
const (
	WarnDeferredCall   = "W301" // call target not visible at compile time
	WarnShadowedDef    = "W302" // def hides a def of an enclosing block
	WarnEmptyChoose    = "W303" // choose without when or otherwise
	WarnDiscardedBody  = "W304" // content/replace/call drops the element body
	WarnUnreachableArm = "W305" // when or otherwise after an otherwise
)

// ValidationError is one diagnostic about a compiled tree.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate inspects a compiled tree for likely mistakes.
// Returns all findings in document order (does not fail-fast).
func Validate(t *Tree) []ValidationError {
	v := &validator{}
	v.nodes(t.Nodes, []map[string]bool{{}})
	return v.errs
}

type validator struct {
	errs []ValidationError
}

func (v *validator) add(code, field string, line int, format string, args ...any) {
	v.errs = append(v.errs, ValidationError{Code: code, Field: field, Line: line, Message: fmt.Sprintf(format, args...)})
}

// nodes walks a block. scopes holds the def names visible in each
// enclosing block, innermost last.
func (v *validator) nodes(nodes []Node, scopes []map[string]bool) {
	local := scopes[len(scopes)-1]
	for _, n := range nodes {
		switch n := n.(type) {
		case *Element:
			if n.Content != nil && hasOutput(n.Children) {
				v.add(WarnDiscardedBody, "<"+n.Name.Local+">", n.Pos.Line, "element body is replaced by %s", n.Content.Source())
			}
			v.nodes(n.Children, append(scopes, map[string]bool{}))
		case *Directive:
			v.directive(n, scopes, local)
		case *Include:
			if n.HasFallback {
				v.nodes(n.Fallback, append(scopes, map[string]bool{}))
			}
		}
	}
}

func (v *validator) directive(d *Directive, scopes []map[string]bool, local map[string]bool) {
	switch d.Kind {
	case KindDef:
		name := d.Signature.Name
		for _, s := range scopes[:len(scopes)-1] {
			if s[name] {
				v.add(WarnShadowedDef, "def "+name, d.Pos.Line, "hides a def of the same name in an enclosing block")
				break
			}
		}
		local[name] = true
	case KindCall:
		if d.Target == nil {
			v.add(WarnDeferredCall, "call "+d.Call.Name, d.Pos.Line, "%s is not defined before this point; it is resolved at render time", d.Call.Name)
		}
		if hasOutput(d.Children) {
			v.add(WarnDiscardedBody, "call "+d.Call.Name, d.Pos.Line, "the directive body is replaced by the call output")
		}
	case KindChoose:
		v.choose(d)
	}
	v.nodes(d.Children, append(scopes, map[string]bool{}))
}

func (v *validator) choose(d *Directive) {
	arms := 0
	otherwise := false
	var walk func(nodes []Node)
	walk = func(nodes []Node) {
		for _, n := range nodes {
			switch n := n.(type) {
			case *Directive:
				switch n.Kind {
				case KindWhen, KindOtherwise:
					if otherwise {
						v.add(WarnUnreachableArm, n.Kind.String(), n.Pos.Line, "follows an otherwise and can never render")
					}
					arms++
					otherwise = otherwise || n.Kind == KindOtherwise
				case KindChoose:
				default:
					walk(n.Children)
				}
			case *Element:
				walk(n.Children)
			}
		}
	}
	walk(d.Children)
	if arms == 0 {
		v.add(WarnEmptyChoose, "choose", d.Pos.Line, "has no when or otherwise and renders nothing")
	}
}

// hasOutput reports whether nodes would emit anything besides whitespace.
func hasOutput(nodes []Node) bool {
	for _, n := range nodes {
		lit, ok := n.(*Literal)
		if !ok {
			return true
		}
		for _, ev := range lit.Events {
			if ev.Kind != event.Text || strings.TrimSpace(ev.Data) != "" {
				return true
			}
		}
	}
	return false
}
