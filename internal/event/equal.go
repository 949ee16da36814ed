package event

import "strings"

// Equal reports whether two event sequences are structurally identical.
// Positions are ignored; attribute order is significant.
func Equal(a, b []Event) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !SameEvent(a[i], b[i]) {
			return false
		}
	}
	return true
}

// SameEvent compares two events ignoring Pos.
func SameEvent(a, b Event) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case Start:
		if a.Name != b.Name || len(a.Attrs) != len(b.Attrs) {
			return false
		}
		for i := range a.Attrs {
			if a.Attrs[i] != b.Attrs[i] {
				return false
			}
		}
		return true
	case End:
		return a.Name == b.Name
	case Text, Comment:
		return a.Data == b.Data
	case PI:
		return a.Target == b.Target && a.Data == b.Data
	case Doctype:
		return a.Doctype == b.Doctype
	case StartNS, EndNS:
		return a.Prefix == b.Prefix && a.URI == b.URI
	}
	return true
}

// Normalize prepares a sequence for whitespace-insensitive comparison:
// adjacent Text events are merged, surrounding whitespace is trimmed, and
// whitespace-only text is dropped. Positions are cleared.
func Normalize(events []Event) []Event {
	out := make([]Event, 0, len(events))
	var text strings.Builder
	pending := false
	flush := func() {
		if !pending {
			return
		}
		if s := strings.TrimSpace(text.String()); s != "" {
			out = append(out, Event{Kind: Text, Data: s})
		}
		text.Reset()
		pending = false
	}
	for _, ev := range events {
		if ev.Kind == Text {
			text.WriteString(ev.Data)
			pending = true
			continue
		}
		flush()
		ev.Pos = Pos{}
		out = append(out, ev)
	}
	flush()
	return out
}
