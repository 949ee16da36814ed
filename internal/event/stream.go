package event

import (
	"iter"
	"strings"
)

// Stream is a lazy, pull-on-demand sequence of events.
//
// Ranging over a Stream drives the producer one event at a time; breaking
// out of the loop stops the producer without computing the remainder. A
// non-nil error is yielded at most once and ends the stream. A Stream is
// restartable only by ranging over it again, which re-runs the producer.
type Stream func(yield func(Event, error) bool)

// Seq exposes the stream as a standard iterator.
func (s Stream) Seq() iter.Seq2[Event, error] {
	return iter.Seq2[Event, error](s)
}

// Of returns a stream over the given events.
func Of(events ...Event) Stream {
	return FromSlice(events)
}

// FromSlice returns a stream over events. The slice is not copied.
func FromSlice(events []Event) Stream {
	return func(yield func(Event, error) bool) {
		for _, ev := range events {
			if !yield(ev, nil) {
				return
			}
		}
	}
}

// Empty is the stream with no events.
func Empty() Stream {
	return func(func(Event, error) bool) {}
}

// Fail returns a stream that yields err and ends.
func Fail(err error) Stream {
	return func(yield func(Event, error) bool) {
		yield(Event{}, err)
	}
}

// Concat joins streams end to end. Concatenating well-formed streams
// yields a well-formed stream.
func Concat(streams ...Stream) Stream {
	return func(yield func(Event, error) bool) {
		for _, s := range streams {
			if s == nil {
				continue
			}
			stopped := false
			s(func(ev Event, err error) bool {
				if !yield(ev, err) || err != nil {
					stopped = true
					return false
				}
				return true
			})
			if stopped {
				return
			}
		}
	}
}

// Collect drains the stream into a slice. Events produced before an error
// are returned alongside it.
func Collect(s Stream) ([]Event, error) {
	var out []Event
	for ev, err := range s {
		if err != nil {
			return out, err
		}
		out = append(out, ev)
	}
	return out, nil
}

// Take returns at most n events from the stream, stopping the producer
// once n have been pulled.
func Take(s Stream, n int) ([]Event, error) {
	if n <= 0 {
		return nil, nil
	}
	out := make([]Event, 0, n)
	for ev, err := range s {
		if err != nil {
			return out, err
		}
		out = append(out, ev)
		if len(out) == n {
			break
		}
	}
	return out, nil
}

// TextContent concatenates the data of all Text events.
func TextContent(s Stream) (string, error) {
	var b strings.Builder
	for ev, err := range s {
		if err != nil {
			return b.String(), err
		}
		if ev.Kind == Text {
			b.WriteString(ev.Data)
		}
	}
	return b.String(), nil
}

// Cursor is an explicit pull-style view of a Stream, for consumers that
// cannot be written as a range loop.
//
//	c := s.Cursor()
//	defer c.Close()
//	for c.Next() {
//		ev := c.Event()
//	}
//	if err := c.Err(); err != nil { ... }
type Cursor struct {
	next func() (Event, error, bool)
	stop func()
	cur  Event
	err  error
	done bool
}

// Cursor starts a pull iteration over s. Close must be called unless the
// cursor was drained to the end.
func (s Stream) Cursor() *Cursor {
	next, stop := iter.Pull2(s.Seq())
	return &Cursor{next: next, stop: stop}
}

// Next advances to the next event. It returns false at end of stream or
// after an error.
func (c *Cursor) Next() bool {
	if c.done {
		return false
	}
	ev, err, ok := c.next()
	if !ok {
		c.done = true
		return false
	}
	if err != nil {
		c.err = err
		c.done = true
		c.stop()
		return false
	}
	c.cur = ev
	return true
}

// Event returns the event the cursor is positioned on.
func (c *Cursor) Event() Event {
	return c.cur
}

// Err returns the error that ended the stream, if any.
func (c *Cursor) Err() error {
	return c.err
}

// Close stops the underlying producer.
func (c *Cursor) Close() {
	c.done = true
	c.stop()
}
