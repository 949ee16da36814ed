package serialize

import (
	"regexp"
	"strings"

	"github.com/roach88/weft/internal/event"
)

var (
	trailingSpace = regexp.MustCompile(`[ \t]+\n`)
	blankLines    = regexp.MustCompile(`\n{2,}`)
)

var preserveElements = map[string]bool{
	"pre": true, "textarea": true, "script": true, "style": true,
}

var xmlSpace = event.QName{Space: xmlNamespace, Local: "space"}

// stripWhitespace merges adjacent text, drops spaces before line breaks
// and collapses runs of blank lines. Text inside pre, textarea, script and
// style elements, and under xml:space="preserve", is left alone.
func stripWhitespace(s event.Stream) event.Stream {
	return func(yield func(event.Event, error) bool) {
		var (
			text     strings.Builder
			textPos  event.Pos
			pending  bool
			preserve []bool
		)
		preserving := func() bool {
			return len(preserve) > 0 && preserve[len(preserve)-1]
		}
		flush := func() bool {
			if !pending {
				return true
			}
			data := text.String()
			text.Reset()
			pending = false
			if !preserving() {
				data = trailingSpace.ReplaceAllString(data, "\n")
				data = blankLines.ReplaceAllString(data, "\n")
			}
			return yield(event.TextEvent(data, textPos), nil)
		}

		for ev, err := range s {
			if err != nil {
				if flush() {
					yield(event.Event{}, err)
				}
				return
			}
			if ev.Kind == event.Text {
				if !pending {
					textPos = ev.Pos
				}
				text.WriteString(ev.Data)
				pending = true
				continue
			}
			if !flush() {
				return
			}
			switch ev.Kind {
			case event.Start:
				keep := preserving() || preserveElements[htmlName(ev.Name)]
				if v, ok := ev.Attrs.Get(xmlSpace); ok {
					keep = v == "preserve"
				}
				preserve = append(preserve, keep)
			case event.End:
				if len(preserve) > 0 {
					preserve = preserve[:len(preserve)-1]
				}
			}
			if !yield(ev, nil) {
				return
			}
		}
		flush()
	}
}
