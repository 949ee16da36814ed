package expr

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// exprLexer tokenizes the Python-flavoured expression language.
// Keywords are lexed before identifiers so they can never be captured as
// variable names.
var exprLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "Float", Pattern: `\d+\.\d+`},
	{Name: "Int", Pattern: `\d+`},
	{Name: "String", Pattern: `"(\\.|[^"\\])*"|'(\\.|[^'\\])*'`},
	{Name: "Keyword", Pattern: `\b(and|or|not|in|if|else|True|False|None)\b`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Op", Pattern: `==|!=|<=|>=|//|[-+*/%<>=]`},
	{Name: "Punct", Pattern: `[.,:;()\[\]{}]`},
})

func buildParser[T any]() *participle.Parser[T] {
	return participle.MustBuild[T](
		participle.Lexer(exprLexer),
		participle.Elide("Whitespace"),
		participle.Unquote("String"),
		participle.UseLookahead(4),
	)
}

var (
	exprParser      = buildParser[ternaryNode]()
	forParser       = buildParser[forHeader]()
	bindingsParser  = buildParser[bindingList]()
	signatureParser = buildParser[signature]()
	callParser      = buildParser[callHeader]()
)

// ternaryNode is the grammar root: "body if cond else other".
type ternaryNode struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Body   *orNode      `@@`
	Cond   *orNode      `( "if" @@`
	Else   *ternaryNode `  "else" @@ )?`
}

type orNode struct {
	Left  *andNode   `@@`
	Right []*andNode `( "or" @@ )*`
}

type andNode struct {
	Left  *notNode   `@@`
	Right []*notNode `( "and" @@ )*`
}

type notNode struct {
	Not  *notNode        `  "not" @@`
	Comp *comparisonNode `| @@`
}

type comparisonNode struct {
	Left  *additiveNode `@@`
	Op    string        `( @( "==" | "!=" | "<=" | ">=" | "<" | ">" | "in" | "not" "in" )`
	Right *additiveNode `  @@ )?`
}

type additiveNode struct {
	Left *termNode `@@`
	Rest []*addOp  `@@*`
}

type addOp struct {
	Op    string    `@( "+" | "-" )`
	Right *termNode `@@`
}

type termNode struct {
	Left *unaryNode `@@`
	Rest []*mulOp   `@@*`
}

type mulOp struct {
	Op    string     `@( "*" | "//" | "/" | "%" )`
	Right *unaryNode `@@`
}

type unaryNode struct {
	Neg   *unaryNode   `  "-" @@`
	Value *postfixNode `| @@`
}

type postfixNode struct {
	Pos     lexer.Position
	Primary *primaryNode  `@@`
	Suffix  []*suffixNode `@@*`
}

type suffixNode struct {
	Pos   lexer.Position
	Attr  *string      `  "." @Ident`
	Index *ternaryNode `| "[" @@ "]"`
	Call  *callNode    `| @@`
}

type callNode struct {
	Open bool        `@"("`
	Args []*argument `( @@ ( "," @@ )* )? ")"`
}

type argument struct {
	Name  *string      `( @Ident "=" )?`
	Value *ternaryNode `@@`
}

type primaryNode struct {
	Pos   lexer.Position
	Float *float64     `  @Float`
	Int   *int64       `| @Int`
	Str   *string      `| @String`
	Bool  *string      `| @( "True" | "False" )`
	None  bool         `| @"None"`
	Ident *string      `| @Ident`
	List  *listNode    `| @@`
	Dict  *dictNode    `| @@`
	Sub   *ternaryNode `| "(" @@ ")"`
}

type listNode struct {
	Open  bool           `@"["`
	Items []*ternaryNode `( @@ ( "," @@ )* ","? )? "]"`
}

type dictNode struct {
	Open    bool         `@"{"`
	Entries []*dictEntry `( @@ ( "," @@ )* ","? )? "}"`
}

type dictEntry struct {
	Key   *ternaryNode `@@ ":"`
	Value *ternaryNode `@@`
}

// forHeader is the parameter of a for directive: "a, b in items".
type forHeader struct {
	Targets []string     `@Ident ( "," @Ident )*`
	Iter    *ternaryNode `"in" @@`
}

// bindingList is the parameter of a with directive: "a = x; b = y".
type bindingList struct {
	Bindings []*bindingNode `@@ ( ";" @@ )* ";"?`
}

type bindingNode struct {
	Pos   lexer.Position
	Name  string       `@Ident "="`
	Value *ternaryNode `@@`
}

// signature is the parameter of a def directive: "name(a, b=1)".
type signature struct {
	Name   string       `@Ident`
	Open   bool         `( @"("`
	Params []*paramNode `  ( @@ ( "," @@ )* )? ")" )?`
}

type paramNode struct {
	Name    string       `@Ident`
	Default *ternaryNode `( "=" @@ )?`
}

// callHeader is the parameter of a call directive: "name(args)".
type callHeader struct {
	Name string    `@Ident`
	Call *callNode `@@?`
}
