package event

import "fmt"

// Kind identifies the type of an Event.
type Kind int

const (
	// Start opens an element. Name and Attrs are set.
	Start Kind = iota + 1
	// End closes the innermost open element. Name is set.
	End
	// Text is a run of character data. Data is set.
	Text
	// Comment is a markup comment. Data is set.
	Comment
	// PI is a processing instruction. Target and Data are set.
	PI
	// Doctype is a document type declaration. Doctype is set.
	Doctype
	// StartNS opens a namespace scope. Prefix and URI are set.
	StartNS
	// EndNS closes a namespace scope. Prefix and URI are set.
	EndNS
)

var kindNames = map[Kind]string{
	Start:   "START",
	End:     "END",
	Text:    "TEXT",
	Comment: "COMMENT",
	PI:      "PI",
	Doctype: "DOCTYPE",
	StartNS: "START_NS",
	EndNS:   "END_NS",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// QName is a namespace-qualified name. Space holds the namespace URI, not
// the prefix; prefixes only live on StartNS/EndNS events.
type QName struct {
	Space string
	Local string
}

// Name returns an unqualified QName.
func Name(local string) QName {
	return QName{Local: local}
}

// String renders the name in Clark notation ("{uri}local").
func (q QName) String() string {
	if q.Space == "" {
		return q.Local
	}
	return "{" + q.Space + "}" + q.Local
}

// Pos is a source location used for diagnostics.
type Pos struct {
	Filename string
	Line     int
	Column   int
}

// IsValid reports whether the position carries a line number.
func (p Pos) IsValid() bool {
	return p.Line > 0
}

func (p Pos) String() string {
	name := p.Filename
	if name == "" {
		name = "<string>"
	}
	if !p.IsValid() {
		return name
	}
	return fmt.Sprintf("%s:%d:%d", name, p.Line, p.Column)
}

// DoctypeDecl is the payload of a Doctype event.
type DoctypeDecl struct {
	Name     string
	PublicID string
	SystemID string
}

// Event is one atomic unit of markup structure.
//
// The payload fields used depend on Kind; the rest stay zero. Events are
// compared structurally with Equal, which ignores Pos.
type Event struct {
	Kind Kind

	// Name is set for Start and End.
	Name QName
	// Attrs is set for Start.
	Attrs Attrs

	// Data is set for Text, Comment and PI.
	Data string
	// Target is set for PI.
	Target string

	// Doctype is set for Doctype.
	Doctype DoctypeDecl

	// Prefix and URI are set for StartNS and EndNS.
	Prefix string
	URI    string

	Pos Pos
}

// StartEvent builds a Start event.
func StartEvent(name QName, attrs Attrs, pos Pos) Event {
	return Event{Kind: Start, Name: name, Attrs: attrs, Pos: pos}
}

// EndEvent builds an End event.
func EndEvent(name QName, pos Pos) Event {
	return Event{Kind: End, Name: name, Pos: pos}
}

// TextEvent builds a Text event.
func TextEvent(data string, pos Pos) Event {
	return Event{Kind: Text, Data: data, Pos: pos}
}

// CommentEvent builds a Comment event.
func CommentEvent(data string, pos Pos) Event {
	return Event{Kind: Comment, Data: data, Pos: pos}
}

// PIEvent builds a processing instruction event.
func PIEvent(target, data string, pos Pos) Event {
	return Event{Kind: PI, Target: target, Data: data, Pos: pos}
}

// DoctypeEvent builds a Doctype event.
func DoctypeEvent(decl DoctypeDecl, pos Pos) Event {
	return Event{Kind: Doctype, Doctype: decl, Pos: pos}
}

// StartNSEvent builds a namespace scope opening event.
func StartNSEvent(prefix, uri string, pos Pos) Event {
	return Event{Kind: StartNS, Prefix: prefix, URI: uri, Pos: pos}
}

// EndNSEvent builds a namespace scope closing event.
func EndNSEvent(prefix, uri string, pos Pos) Event {
	return Event{Kind: EndNS, Prefix: prefix, URI: uri, Pos: pos}
}

// String returns a compact diagnostic rendering of the event.
func (e Event) String() string {
	switch e.Kind {
	case Start:
		return fmt.Sprintf("START %s %v", e.Name, e.Attrs)
	case End:
		return fmt.Sprintf("END %s", e.Name)
	case Text:
		return fmt.Sprintf("TEXT %q", e.Data)
	case Comment:
		return fmt.Sprintf("COMMENT %q", e.Data)
	case PI:
		return fmt.Sprintf("PI %s %q", e.Target, e.Data)
	case Doctype:
		return fmt.Sprintf("DOCTYPE %s", e.Doctype.Name)
	case StartNS:
		return fmt.Sprintf("START_NS %s=%s", e.Prefix, e.URI)
	case EndNS:
		return fmt.Sprintf("END_NS %s=%s", e.Prefix, e.URI)
	default:
		return e.Kind.String()
	}
}
