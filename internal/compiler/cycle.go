package compiler

import (
	"fmt"
	"slices"
	"strings"
)

// CycleWarning reports defs that call each other, directly or through a
// chain of calls.
//
// Recursion is a warning, not an error, because it may be intentional:
//   - Rendering nested data such as trees or threaded comments
//   - Recursion guarded by an if on the argument
//
// Unguarded recursion fails at render time once the depth limit is hit.
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["a", "b", "a"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning" or "info"
}

// AnalyzeRecursion performs static cycle analysis on the defs of a tree.
//
// The algorithm:
//  1. Build a def → def call graph from call directives resolved at
//     compile time
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or self-loops as a potential cycle
//
// Calls deferred to render time are followed by name to any def in the
// tree, which may over-report when nested blocks reuse a name.
func AnalyzeRecursion(t *Tree) []CycleWarning {
	graph := buildCallGraph(t.Nodes)
	if len(graph) == 0 {
		return []CycleWarning{}
	}

	var warnings []CycleWarning
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			warnings = append(warnings, cycleSCCToWarning(scc, graph))
		}
	}
	return warnings
}

// callGraph maps a def key to the def keys its body calls.
type callGraph map[string][]string

// defKey identifies a def by name and line, since nested blocks may reuse
// a name.
func defKey(d *Directive) string {
	return fmt.Sprintf("%s@%d", d.Signature.Name, d.Pos.Line)
}

func buildCallGraph(nodes []Node) callGraph {
	graph := make(callGraph)
	byName := make(map[string]*Directive)
	var collect func(nodes []Node)
	collect = func(nodes []Node) {
		for _, n := range nodes {
			switch n := n.(type) {
			case *Directive:
				if n.Kind == KindDef {
					if _, ok := byName[n.Signature.Name]; !ok {
						byName[n.Signature.Name] = n
					}
				}
				collect(n.Children)
			case *Element:
				collect(n.Children)
			case *Include:
				collect(n.Fallback)
			}
		}
	}
	collect(nodes)

	var walk func(nodes []Node, owner string)
	walk = func(nodes []Node, owner string) {
		for _, n := range nodes {
			switch n := n.(type) {
			case *Directive:
				next := owner
				switch n.Kind {
				case KindDef:
					next = defKey(n)
					if graph[next] == nil {
						graph[next] = []string{}
					}
				case KindCall:
					target := n.Target
					if target == nil {
						target = byName[n.Call.Name]
					}
					if owner != "" && target != nil {
						graph[owner] = append(graph[owner], defKey(target))
					}
				}
				walk(n.Children, next)
			case *Element:
				walk(n.Children, owner)
			case *Include:
				walk(n.Fallback, owner)
			}
		}
	}
	walk(nodes, "")
	return graph
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph callGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in sorted order so the output is deterministic.
func tarjanSCC(graph callGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root node: pop the stack into an SCC
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	slices.Sort(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

func cycleSCCToWarning(scc []string, graph callGraph) CycleWarning {
	if len(scc) == 1 {
		name := displayName(scc[0])
		return CycleWarning{
			Path:    []string{name, name},
			Message: fmt.Sprintf("Recursive def detected: %s → %s", name, name),
			Level:   "info",
		}
	}

	path := reconstructCyclePath(scc, graph)
	for i, p := range path {
		path[i] = displayName(p)
	}
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("Mutually recursive defs detected: %s", strings.Join(path, " → ")),
		Level:   "warning",
	}
}

func displayName(key string) string {
	name, _, _ := strings.Cut(key, "@")
	return name
}

// reconstructCyclePath builds a cycle path from an SCC by following
// edges between members until it returns to the start.
func reconstructCyclePath(scc []string, graph callGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}
	members := make(map[string]bool, len(scc))
	for _, node := range scc {
		members[node] = true
	}

	start := slices.Min(scc)
	current := start
	path := []string{current}
	visited := make(map[string]bool)
	for {
		visited[current] = true
		var next string
		for _, neighbor := range graph[current] {
			if members[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}
