package compiler

import (
	"io"
	"iter"
	"slices"

	"github.com/roach88/weft/internal/event"
)

// TokenKind identifies what a front end emitted.
type TokenKind int

const (
	// TokenEvent carries a literal markup event. Attribute values of
	// Start events may contain ${...} and are interpolated by the compiler.
	TokenEvent TokenKind = iota + 1
	// TokenExpr carries the source of an embedded expression.
	TokenExpr
	// TokenOpen opens a directive scope.
	TokenOpen
	// TokenClose closes the innermost open directive scope.
	TokenClose
)

func (k TokenKind) String() string {
	switch k {
	case TokenEvent:
		return "event"
	case TokenExpr:
		return "expr"
	case TokenOpen:
		return "open"
	case TokenClose:
		return "close"
	}
	return "unknown"
}

// Token is one unit of front-end output.
type Token struct {
	Kind  TokenKind
	Event event.Event

	// Directive is the directive name for TokenOpen and TokenClose.
	Directive string
	// Args holds directive parameters. The "" key is the primary
	// parameter (the attribute value in attribute form).
	Args map[string]string
	// Namespaces maps in-scope prefixes to URIs, for match paths.
	Namespaces map[string]string

	// Expr is the expression source for TokenExpr.
	Expr string

	Pos event.Pos
}

// Frontend turns the concrete syntax of one template dialect into tokens.
//
// Tokens arrive in document order. A front end reports malformed nesting
// of its own syntax before it hands the affected tokens over; the
// compiler still checks every open has a matching close.
type Frontend interface {
	// Name identifies the dialect, e.g. "markup" or "text".
	Name() string
	Tokens(r io.Reader, filename string, vocab *Vocabulary) iter.Seq2[Token, error]
}

// Kind is the closed set of directive kinds.
type Kind int

const (
	KindDef Kind = iota + 1
	KindMatch
	KindWhen
	KindOtherwise
	KindFor
	KindIf
	KindChoose
	KindWith
	KindCall
	KindReplace
	KindContent
	KindAttrs
	KindStrip
	KindInclude
	KindFallback
)

var kindNames = map[Kind]string{
	KindDef:       "def",
	KindMatch:     "match",
	KindWhen:      "when",
	KindOtherwise: "otherwise",
	KindFor:       "for",
	KindIf:        "if",
	KindChoose:    "choose",
	KindWith:      "with",
	KindCall:      "call",
	KindReplace:   "replace",
	KindContent:   "content",
	KindAttrs:     "attrs",
	KindStrip:     "strip",
	KindInclude:   "include",
	KindFallback:  "fallback",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// IsFlag reports whether the kind rewrites its element instead of
// wrapping it.
func (k Kind) IsFlag() bool {
	switch k {
	case KindReplace, KindContent, KindAttrs, KindStrip:
		return true
	}
	return false
}

// DirectiveSpec describes one entry of a Vocabulary.
type DirectiveSpec struct {
	Name string
	Kind Kind
	// Order decides nesting when several directives sit on one element:
	// lower orders wrap higher ones.
	Order int
	// ElementForm reports whether the directive may be an element.
	// ElementAttr names the attribute carrying its primary parameter in
	// that form; it is empty for directives without one.
	ElementForm bool
	ElementAttr string
	// Hints are secondary parameters accepted in either form.
	Hints []string
	// AttributeForm reports whether the directive may be an attribute.
	AttributeForm bool
}

// Vocabulary is the constant table of directives a compiler accepts. It is
// built once and passed explicitly; nothing registers into it at runtime.
type Vocabulary struct {
	specs  []DirectiveSpec
	byName map[string]DirectiveSpec
}

// NewVocabulary builds a vocabulary from specs. Later specs with the same
// name replace earlier ones.
func NewVocabulary(specs ...DirectiveSpec) *Vocabulary {
	v := &Vocabulary{byName: make(map[string]DirectiveSpec, len(specs))}
	for _, s := range specs {
		if _, dup := v.byName[s.Name]; !dup {
			v.specs = append(v.specs, s)
		} else {
			i := slices.IndexFunc(v.specs, func(o DirectiveSpec) bool { return o.Name == s.Name })
			v.specs[i] = s
		}
		v.byName[s.Name] = s
	}
	return v
}

// DefaultVocabulary returns a fresh copy of the standard directive table.
func DefaultVocabulary() *Vocabulary {
	return NewVocabulary(
		DirectiveSpec{Name: "def", Kind: KindDef, Order: 0, ElementForm: true, ElementAttr: "function", AttributeForm: true},
		DirectiveSpec{Name: "match", Kind: KindMatch, Order: 1, ElementForm: true, ElementAttr: "path", Hints: []string{"once", "recursive"}, AttributeForm: true},
		DirectiveSpec{Name: "when", Kind: KindWhen, Order: 2, ElementForm: true, ElementAttr: "test", AttributeForm: true},
		DirectiveSpec{Name: "otherwise", Kind: KindOtherwise, Order: 3, ElementForm: true, AttributeForm: true},
		DirectiveSpec{Name: "for", Kind: KindFor, Order: 4, ElementForm: true, ElementAttr: "each", Hints: []string{"index"}, AttributeForm: true},
		DirectiveSpec{Name: "if", Kind: KindIf, Order: 5, ElementForm: true, ElementAttr: "test", AttributeForm: true},
		DirectiveSpec{Name: "choose", Kind: KindChoose, Order: 6, ElementForm: true, ElementAttr: "test", AttributeForm: true},
		DirectiveSpec{Name: "with", Kind: KindWith, Order: 7, ElementForm: true, ElementAttr: "vars", AttributeForm: true},
		DirectiveSpec{Name: "call", Kind: KindCall, Order: 8, ElementForm: true, ElementAttr: "template", AttributeForm: true},
		DirectiveSpec{Name: "replace", Kind: KindReplace, Order: 9, ElementForm: true, ElementAttr: "value", AttributeForm: true},
		DirectiveSpec{Name: "content", Kind: KindContent, Order: 10, AttributeForm: true},
		DirectiveSpec{Name: "attrs", Kind: KindAttrs, Order: 11, AttributeForm: true},
		DirectiveSpec{Name: "strip", Kind: KindStrip, Order: 12, AttributeForm: true},
		DirectiveSpec{Name: "include", Kind: KindInclude, Order: 13, ElementForm: true, ElementAttr: "href"},
		DirectiveSpec{Name: "fallback", Kind: KindFallback, Order: 14, ElementForm: true},
	)
}

// Lookup returns the spec for a directive name.
func (v *Vocabulary) Lookup(name string) (DirectiveSpec, bool) {
	s, ok := v.byName[name]
	return s, ok
}

// Specs returns the table in declaration order.
func (v *Vocabulary) Specs() []DirectiveSpec {
	return slices.Clone(v.specs)
}

// IsHint reports whether attr is a secondary parameter of some directive,
// such as for's index or match's once.
func (v *Vocabulary) IsHint(attr string) bool {
	for _, s := range v.specs {
		if slices.Contains(s.Hints, attr) {
			return true
		}
	}
	return false
}
