package xpath

import (
	"maps"
	"slices"

	"github.com/roach88/weft/internal/event"
)

// Chain tracks the open elements of a stream together with each element's
// position among its same-named siblings.
type Chain struct {
	nodes  []Node
	counts []map[event.QName]int
}

// Push records an element start and returns its node.
func (c *Chain) Push(name event.QName, attrs event.Attrs) Node {
	level := len(c.nodes)
	if len(c.counts) <= level {
		c.counts = append(c.counts, nil)
	}
	if c.counts[level] == nil {
		c.counts[level] = make(map[event.QName]int)
	}
	c.counts[level][name]++
	n := Node{Kind: ElementNode, Name: name, Attrs: attrs, Position: c.counts[level][name]}
	c.nodes = append(c.nodes, n)
	return n
}

// Pop records an element end. Sibling counts of the closed element's
// children are discarded.
func (c *Chain) Pop() {
	if len(c.nodes) == 0 {
		return
	}
	if len(c.counts) > len(c.nodes) {
		c.counts = c.counts[:len(c.nodes)]
	}
	c.nodes = c.nodes[:len(c.nodes)-1]
}

// Nodes returns the open elements, outermost first. The slice is only
// valid until the next Push or Pop.
func (c *Chain) Nodes() []Node {
	return c.nodes
}

// Clone returns an independent copy of the chain.
func (c *Chain) Clone() *Chain {
	out := &Chain{
		nodes:  slices.Clone(c.nodes),
		counts: make([]map[event.QName]int, len(c.counts)),
	}
	for i, m := range c.counts {
		out.counts[i] = maps.Clone(m)
	}
	return out
}

// Depth is the number of open elements.
func (c *Chain) Depth() int {
	return len(c.nodes)
}

// Select streams the nodes of s selected by p. The first top-level element
// of s is the context node: steps are evaluated relative to it, so "*"
// selects its child elements and "text()" its direct text. Each selected
// element is emitted with its whole subtree; descendants of a selected
// element are not tested again. Attribute paths select nothing here; see
// SelectAttrs.
func Select(s event.Stream, p *Pattern) event.Stream {
	return func(yield func(event.Event, error) bool) {
		var chain Chain
		inContext := false
		selected := -1
		for ev, err := range s {
			if err != nil {
				yield(ev, err)
				return
			}
			if !inContext {
				inContext = ev.Kind == event.Start
				continue
			}
			switch ev.Kind {
			case event.Start:
				chain.Push(ev.Name, ev.Attrs)
				if selected < 0 && p.match(chain.Nodes(), true) {
					selected = chain.Depth()
				}
				if selected >= 0 && !yield(ev, nil) {
					return
				}
			case event.End:
				if chain.Depth() == 0 {
					return
				}
				emit := selected >= 0
				if selected == chain.Depth() {
					selected = -1
				}
				chain.Pop()
				if emit && !yield(ev, nil) {
					return
				}
			case event.Text:
				if selected < 0 {
					text := append(chain.Nodes()[:chain.Depth():chain.Depth()], Node{Kind: TextNode})
					if !p.match(text, true) {
						continue
					}
				}
				if !yield(ev, nil) {
					return
				}
			default:
				if selected >= 0 && !yield(ev, nil) {
					return
				}
			}
		}
	}
}

// SelectAttrs returns the attributes selected by the attribute paths of
// p ("@*", "@href", "a/@href"), evaluated like Select. When the same name
// is selected twice the later value wins.
func SelectAttrs(s event.Stream, p *Pattern) (event.Attrs, error) {
	contextOnly := true
	for _, pa := range p.paths {
		if len(pa.steps) > 1 {
			contextOnly = false
		}
	}
	var out event.Attrs
	collect := func(attrs event.Attrs, tests []nodeTest) {
		for _, a := range attrs {
			for _, t := range tests {
				if t.matchName(a.Name) {
					out = out.Set(a.Name, a.Value)
					break
				}
			}
		}
	}
	var chain Chain
	inContext := false
	for ev, err := range s {
		if err != nil {
			return out, err
		}
		switch ev.Kind {
		case event.Start:
			if !inContext {
				inContext = true
				collect(ev.Attrs, p.matchElements(nil))
				if contextOnly {
					return out, nil
				}
				continue
			}
			chain.Push(ev.Name, ev.Attrs)
			collect(ev.Attrs, p.matchElements(chain.Nodes()))
		case event.End:
			if chain.Depth() == 0 {
				return out, nil
			}
			chain.Pop()
		}
	}
	return out, nil
}
