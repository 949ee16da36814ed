package xpath

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var pathLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "String", Pattern: `'[^']*'|"[^"]*"`},
	{Name: "Int", Pattern: `\d+`},
	{Name: "Name", Pattern: `[a-zA-Z_][a-zA-Z0-9_.\-]*`},
	{Name: "Op", Pattern: `//|::|!=|[/@*=|\[\](),:]`},
})

var patternParser = participle.MustBuild[patternAST](
	participle.Lexer(pathLexer),
	participle.Elide("Whitespace"),
	participle.UseLookahead(3),
)

type patternAST struct {
	Paths []*pathAST `@@ ( "|" @@ )*`
}

type pathAST struct {
	Lead  string     `@( "//" | "/" )?`
	First *stepAST   `@@`
	Rest  []*stepRel `@@*`
}

type stepRel struct {
	Sep  string   `@( "//" | "/" )`
	Step *stepAST `@@`
}

type stepAST struct {
	Pos   lexer.Position
	Attr  *nameTestAST    `(  "@" @@`
	Axis  string          ` | ( @Name "::" )?`
	Node  *nodeTestAST    `   @@`
	Preds []*predicateAST `   @@* )`
}

type nodeTestAST struct {
	Kind   string `  @( "text" | "node" ) "(" ")"`
	Prefix string `| ( @Name ":" )?`
	Local  string `  @( Name | "*" )`
}

type nameTestAST struct {
	Prefix string `( @Name ":" )?`
	Local  string `@( Name | "*" )`
}

type predicateAST struct {
	Pos     lexer.Position
	Index   *int         `"[" (  @Int`
	Attr    *nameTestAST `    | "@" @@`
	Op      string       `      ( @( "=" | "!=" )`
	Value   *string      `        @String )?`
	Func    string       `    | @Name "(" ")"`
	FuncOp  string       `      ( @"="`
	FuncArg *int         `        @Int )? ) "]"`
}
