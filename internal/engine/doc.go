// Package engine renders compiled directive trees into event streams.
//
// Render is lazy. The returned stream does no work until it is ranged
// over, then executes the tree depth-first and left-to-right, yielding
// each event as soon as it is produced. A consumer that stops early stops
// the render.
//
//	eng := engine.New(engine.WithLoader(l))
//	for ev, err := range eng.Render(tree, map[string]any{"name": "Ann"}) {
//		...
//	}
//
// SCOPES:
//
// Variables live in a chain of Scopes: globals, then the render data,
// then one frame per for iteration, with block, macro call and match
// body, and one per if, choose branch and dynamic element. These frames
// mirror the compiler's blocks. A def binds a Macro in the scope where it
// executes; calling it renders the body in a child of that scope, so
// macros are lexically scoped and can also be called from expressions.
// A call bound at compile time takes the innermost activation of its def.
//
// MATCH TEMPLATES:
//
// A match directive registers a template for the rest of the render.
// Every element that reaches the output is tested against the registered
// templates, newest first. A matching element is buffered whole and
// replaced by the template body, where this is the buffered element and
// select(path) picks parts of it. A template never matches its own body;
// see stage for the exact visibility rules.
//
// DETERMINISM:
//
// A render depends only on the tree, the data and the engine options.
// Mappings iterate in sorted key order and nothing is shared between
// renders, so equal inputs produce equal streams.
package engine
