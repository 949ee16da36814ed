package serialize

import (
	"fmt"
	"slices"

	"github.com/roach88/weft/internal/event"
)

const xmlNamespace = "http://www.w3.org/XML/1998/namespace"

type binding struct {
	prefix string
	uri    string
}

// namespaces maps namespace URIs back to prefixes. Declarations from
// StartNS events are written on the next start tag; URIs without a
// prefix in scope get a generated one bound for that element only.
type namespaces struct {
	bound   map[string][]string
	pending []binding
	// generated holds the prefixes made up for each open element.
	generated [][]string
	next      int
}

func newNamespaces() *namespaces {
	return &namespaces{bound: make(map[string][]string)}
}

func (n *namespaces) startNS(prefix, uri string) {
	n.bound[prefix] = append(n.bound[prefix], uri)
	n.pending = append(n.pending, binding{prefix, uri})
}

func (n *namespaces) endNS(prefix string) {
	if stack := n.bound[prefix]; len(stack) > 0 {
		n.bound[prefix] = stack[:len(stack)-1]
	}
}

func (n *namespaces) lookup(prefix string) (string, bool) {
	stack := n.bound[prefix]
	if len(stack) == 0 {
		return "", false
	}
	return stack[len(stack)-1], true
}

// start resolves the names of a start tag. It returns the tag, the
// declarations to write and the attributes with qualified names.
func (n *namespaces) start(name event.QName, attrs event.Attrs) (string, []binding, []string) {
	decls := n.pending
	n.pending = nil
	var made []string

	qualify := func(q event.QName, attr bool) string {
		switch {
		case q.Space == "":
			return q.Local
		case q.Space == xmlNamespace:
			return "xml:" + q.Local
		}
		if !attr {
			if uri, ok := n.lookup(""); ok && uri == q.Space {
				return q.Local
			}
		}
		if prefix, ok := n.prefixFor(q.Space); ok {
			return prefix + ":" + q.Local
		}
		n.next++
		prefix := fmt.Sprintf("ns%d", n.next)
		n.bound[prefix] = append(n.bound[prefix], q.Space)
		made = append(made, prefix)
		decls = append(decls, binding{prefix, q.Space})
		return prefix + ":" + q.Local
	}

	tag := qualify(name, false)
	names := make([]string, len(attrs))
	for i, a := range attrs {
		names[i] = qualify(a.Name, true)
	}
	n.generated = append(n.generated, made)
	return tag, decls, names
}

// end releases the prefixes generated for the innermost element.
func (n *namespaces) end() {
	if len(n.generated) == 0 {
		return
	}
	made := n.generated[len(n.generated)-1]
	n.generated = n.generated[:len(n.generated)-1]
	for _, prefix := range made {
		n.endNS(prefix)
	}
}

// prefixFor returns a non-empty prefix currently bound to uri, picking the
// lowest in sort order when several are.
func (n *namespaces) prefixFor(uri string) (string, bool) {
	var found []string
	for prefix := range n.bound {
		if prefix == "" {
			continue
		}
		if cur, ok := n.lookup(prefix); ok && cur == uri {
			found = append(found, prefix)
		}
	}
	if len(found) == 0 {
		return "", false
	}
	return slices.Min(found), true
}
