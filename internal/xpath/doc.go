// Package xpath implements the restricted path language used by match
// templates and by select().
//
// Supported syntax:
//
//	pattern   := path ( "|" path )*
//	path      := [ "/" | "//" ] step ( ( "/" | "//" ) step )*
//	step      := "@" name | [ axis "::" ] nodetest predicate*
//	nodetest  := name | prefix ":" name | "*" | prefix ":*" | "text()" | "node()"
//	predicate := "[" ( N | "@" name [ ( "=" | "!=" ) string ] | "position()=" N | "first()" | "last()" ) "]"
//
// Axes: child (default), descendant (what "//" means between steps),
// descendant-or-self and attribute. Any other axis is a PatternSyntaxError.
//
// MATCHING:
// Patterns are matched right to left against an ancestor chain, so the
// matcher never needs a materialized tree. Relative patterns match at any
// depth; absolute patterns are anchored at the outermost element.
// Positional predicates rely on the caller supplying the candidate's
// position among same-named siblings and, when known, the sibling count.
// In a streaming context the count is unknown and last() never matches.
package xpath
