package xpath

import "github.com/roach88/weft/internal/event"

// NodeKind distinguishes the node types a pattern can test.
type NodeKind int

const (
	ElementNode NodeKind = iota
	TextNode
)

// Node describes one position in an ancestor chain.
//
// Position is the 1-based index among same-named siblings. Size is the
// number of such siblings, or 0 when the caller cannot know it (as in a
// streaming render), in which case last() is false.
type Node struct {
	Kind     NodeKind
	Name     event.QName
	Attrs    event.Attrs
	Position int
	Size     int
}

// Element builds an element node at position 1 of unknown size.
func Element(name event.QName, attrs event.Attrs) Node {
	return Node{Kind: ElementNode, Name: name, Attrs: attrs, Position: 1}
}

// Test reports whether candidate, reached through ancestors (outermost
// first, candidate excluded), satisfies the pattern. It is pure.
func (p *Pattern) Test(ancestors []Node, candidate Node) bool {
	chain := make([]Node, 0, len(ancestors)+1)
	chain = append(chain, ancestors...)
	chain = append(chain, candidate)
	return p.match(chain, false)
}

// Test is the function form of (*Pattern).Test.
func Test(p *Pattern, ancestors []Node, candidate Node) bool {
	return p.Test(ancestors, candidate)
}

// match tests the last node of chain. When anchored, every path is
// treated as rooted at chain[0]'s parent; otherwise only absolute paths
// are.
func (p *Pattern) match(chain []Node, anchored bool) bool {
	if len(chain) == 0 {
		return false
	}
	for _, pa := range p.paths {
		if pa.steps[len(pa.steps)-1].Axis == Attribute {
			continue
		}
		if matchStep(pa.steps, len(pa.steps)-1, chain, len(chain)-1, anchored || pa.absolute) {
			return true
		}
	}
	return false
}

// matchElements returns the attribute tests of every attribute path whose
// element steps select the last node of chain. Single-step attribute paths
// apply to the context node, which is represented by an empty chain.
func (p *Pattern) matchElements(chain []Node) []nodeTest {
	var tests []nodeTest
	for _, pa := range p.paths {
		last := pa.steps[len(pa.steps)-1]
		if last.Axis != Attribute {
			continue
		}
		elems := pa.steps[:len(pa.steps)-1]
		if len(elems) == 0 {
			if len(chain) == 0 {
				tests = append(tests, last.test)
			}
			continue
		}
		if len(chain) > 0 && matchStep(elems, len(elems)-1, chain, len(chain)-1, true) {
			tests = append(tests, last.test)
		}
	}
	return tests
}

func matchStep(steps []Step, si int, chain []Node, ci int, anchored bool) bool {
	step := steps[si]
	if !step.matches(chain[ci]) {
		return false
	}
	if si == 0 {
		if !anchored || step.Axis != Child {
			return true
		}
		return ci == 0
	}
	switch step.Axis {
	case Child:
		return ci > 0 && matchStep(steps, si-1, chain, ci-1, anchored)
	case Descendant:
		for j := ci - 1; j >= 0; j-- {
			if matchStep(steps, si-1, chain, j, anchored) {
				return true
			}
		}
	case DescendantOrSelf:
		for j := ci; j >= 0; j-- {
			if matchStep(steps, si-1, chain, j, anchored) {
				return true
			}
		}
	}
	return false
}

func (s Step) matches(n Node) bool {
	switch s.test.kind {
	case testText:
		if n.Kind != TextNode {
			return false
		}
	case testNode:
	default:
		if n.Kind != ElementNode || !s.test.matchName(n.Name) {
			return false
		}
	}
	for _, pr := range s.preds {
		if !pr.matches(n) {
			return false
		}
	}
	return true
}

func (pr predicate) matches(n Node) bool {
	switch pr.kind {
	case predIndex:
		return n.Position == pr.index
	case predLast:
		return n.Size > 0 && n.Position == n.Size
	}
	for _, a := range n.Attrs {
		if !pr.attr.matchName(a.Name) {
			continue
		}
		switch pr.kind {
		case predAttrEq:
			if a.Value == pr.value {
				return true
			}
		case predAttrNe:
			if a.Value != pr.value {
				return true
			}
		default:
			return true
		}
	}
	return false
}
