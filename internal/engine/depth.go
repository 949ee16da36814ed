package engine

import (
	"fmt"

	"github.com/roach88/weft/internal/compiler"
	"github.com/roach88/weft/internal/event"
)

// DefaultMaxDepth bounds how deeply macro calls, match bodies and includes
// may nest within one render.
const DefaultMaxDepth = 64

// depthGuard tracks the current nesting of one render.
//
// Macros calling themselves and match templates that register further
// templates are legal, so termination is not guaranteed statically. The
// guard turns runaway nesting into a DirectiveError instead of a stack
// overflow.
type depthGuard struct {
	max     int
	current int
}

// enter records one more level of nesting for kind at pos.
func (g *depthGuard) enter(kind compiler.Kind, pos event.Pos) error {
	if g.current >= g.max {
		return &DirectiveError{
			Kind:   kind,
			Reason: fmt.Sprintf("nesting exceeds max depth %d", g.max),
			Pos:    pos,
		}
	}
	g.current++
	return nil
}

func (g *depthGuard) leave() {
	g.current--
}
