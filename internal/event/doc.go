// Package event defines the canonical streaming representation of markup.
//
// A document is an ordered sequence of Event values (element starts and
// ends, text runs, comments, processing instructions, doctypes and
// namespace scope markers). Every other stage of weft produces or consumes
// a Stream of events: front ends parse into it, the engine renders into it
// and the serializer writes it out.
//
// INVARIANTS:
//   - Streams are well-formed: each Start has exactly one matching End, in
//     stack order. Producers guarantee this by construction; nothing
//     validates it after the fact except the serializer's end-tag check.
//   - Events are values. Attrs slices are never mutated in place; every
//     Attrs method returns a fresh slice.
//   - Pos is diagnostic only. Equal and Normalize ignore it.
package event
