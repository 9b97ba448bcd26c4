// Package reactive implements the ReactiveValue abstraction the pipeline
// runner passes between steps: a SingleAsync (exactly one eventual value or
// error) and a StreamAsync (zero or more values followed by completion or
// error), both backed by channels and cancelled via context.Context rather
// than a callback-cancellation token.
package reactive

import (
	"context"
	"errors"

	"github.com/corestream/pipeline/step"
)

// ErrClosedWithoutValue is returned by Single.Await when the producer closed
// the value's channel without ever sending - a producer bug, not a normal
// empty result (a Single always resolves to exactly one Item).
var ErrClosedWithoutValue = errors.New("reactive: single closed without a value")

// Single is a SingleAsync<T>: a future resolving to exactly one value or error.
type Single struct {
	ch <-chan step.Item
}

// NewSingle creates an unresolved Single and the producer-side function used
// to resolve it exactly once. Calling resolve more than once panics, matching
// the single-assignment nature of a future.
func NewSingle() (*Single, func(step.Item)) {
	ch := make(chan step.Item, 1)
	resolved := false
	resolve := func(it step.Item) {
		if resolved {
			panic("reactive: Single resolved more than once")
		}
		resolved = true
		ch <- it
		close(ch)
	}
	return &Single{ch: ch}, resolve
}

// Resolved wraps an already-known value/error as a Single, useful for steps
// that can answer synchronously (e.g. a cache hit).
func Resolved(it step.Item) *Single {
	s, resolve := NewSingle()
	resolve(it)
	return s
}

// Await blocks until the Single resolves or ctx is cancelled.
func (s *Single) Await(ctx context.Context) (step.Item, error) {
	select {
	case it, ok := <-s.ch:
		if !ok {
			return step.Item{}, ErrClosedWithoutValue
		}
		return it, nil
	case <-ctx.Done():
		return step.Item{}, ctx.Err()
	}
}

// Stream is a StreamAsync<T>: zero or more items delivered over a channel,
// terminated by the channel closing. A step.Item with a non-nil Err marks
// the stream as failed; consumers should stop reading after observing one.
type Stream struct {
	ch <-chan step.Item
}

// NewStream creates an empty Stream and the producer-side channel used to
// feed it. The producer must close the returned channel when done.
func NewStream(buffer int) (*Stream, chan<- step.Item) {
	ch := make(chan step.Item, buffer)
	return &Stream{ch: ch}, ch
}

// FromChannel wraps an existing receive-only channel as a Stream.
func FromChannel(ch <-chan step.Item) *Stream {
	return &Stream{ch: ch}
}

// Chan exposes the underlying channel for range-based consumption.
func (s *Stream) Chan() <-chan step.Item {
	return s.ch
}

// Drain consumes the entire stream into a slice, stopping at the first error
// item. It respects ctx cancellation while waiting for items.
func (s *Stream) Drain(ctx context.Context) ([]any, error) {
	var out []any
	for {
		select {
		case it, ok := <-s.ch:
			if !ok {
				return out, nil
			}
			if it.Err != nil {
				return out, it.Err
			}
			out = append(out, it.Value)
		case <-ctx.Done():
			return out, ctx.Err()
		}
	}
}

// Value is the ReactiveValue union the runner threads between steps: either
// a Single or a Stream, matching whichever shape the preceding step produced.
type Value struct {
	single *Single
	stream *Stream
}

// OfSingle wraps s as a Value.
func OfSingle(s *Single) Value { return Value{single: s} }

// OfStream wraps s as a Value.
func OfStream(s *Stream) Value { return Value{stream: s} }

// IsStream reports whether the Value wraps a Stream rather than a Single.
func (v Value) IsStream() bool { return v.stream != nil }

// AsSingle returns the wrapped Single and true, or false if this Value wraps a Stream.
func (v Value) AsSingle() (*Single, bool) { return v.single, v.single != nil }

// AsStream returns the wrapped Stream and true, or false if this Value wraps a Single.
func (v Value) AsStream() (*Stream, bool) { return v.stream, v.stream != nil }
