package event

import "strings"

// Attr is a single attribute of a Start event.
type Attr struct {
	Name  QName
	Value string
}

// Attrs is an ordered attribute mapping. Keys are unique and iteration
// follows insertion order, which is part of the observable output.
//
// Attrs is treated as immutable: all methods return a new slice and never
// write through to the receiver's backing array.
type Attrs []Attr

// Get returns the value for name.
func (a Attrs) Get(name QName) (string, bool) {
	for _, attr := range a {
		if attr.Name == name {
			return attr.Value, true
		}
	}
	return "", false
}

// GetLocal returns the value of the first attribute whose local name matches,
// regardless of namespace.
func (a Attrs) GetLocal(local string) (string, bool) {
	for _, attr := range a {
		if attr.Name.Local == local {
			return attr.Value, true
		}
	}
	return "", false
}

// Has reports whether name is present.
func (a Attrs) Has(name QName) bool {
	_, ok := a.Get(name)
	return ok
}

// Set returns a copy with name bound to value. An existing key keeps its
// position; a new key is appended.
func (a Attrs) Set(name QName, value string) Attrs {
	out := make(Attrs, len(a), len(a)+1)
	copy(out, a)
	for i := range out {
		if out[i].Name == name {
			out[i].Value = value
			return out
		}
	}
	return append(out, Attr{Name: name, Value: value})
}

// Delete returns a copy without name.
func (a Attrs) Delete(name QName) Attrs {
	out := make(Attrs, 0, len(a))
	for _, attr := range a {
		if attr.Name != name {
			out = append(out, attr)
		}
	}
	return out
}

// Merge returns the union of a and other. Values from other win on key
// collision; colliding keys keep their original position.
func (a Attrs) Merge(other Attrs) Attrs {
	out := make(Attrs, len(a), len(a)+len(other))
	copy(out, a)
	for _, attr := range other {
		replaced := false
		for i := range out {
			if out[i].Name == attr.Name {
				out[i].Value = attr.Value
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, attr)
		}
	}
	return out
}

// Clone returns an independent copy.
func (a Attrs) Clone() Attrs {
	if a == nil {
		return nil
	}
	out := make(Attrs, len(a))
	copy(out, a)
	return out
}

// String renders the attributes for diagnostics: [a="1" b="2"].
func (a Attrs) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, attr := range a {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(attr.Name.String())
		b.WriteString(`="`)
		b.WriteString(attr.Value)
		b.WriteByte('"')
	}
	b.WriteByte(']')
	return b.String()
}
