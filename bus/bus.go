// Package bus implements the Output Bus (C2): a process-wide, type-filtered
// publish/subscribe channel that downstream collaborators (loggers,
// connectors, UIs) tap into without coupling the runner to any of them.
package bus

import (
	"reflect"
	"sync"

	"github.com/corestream/pipeline/logger"
)

// Bus is process-wide - one per runtime, not one per Run. The zero value is
// not usable; construct with New.
type Bus struct {
	mu     sync.Mutex
	subs   []*subscription
	closed bool
}

type subscription struct {
	matches func(any) bool
	ch      chan any
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{}
}

// Publish delivers item to every live subscription whose type filter
// accepts it. A nil item is dropped and logged rather than delivered.
// Publish always blocks on a full subscriber channel (pure BUFFER
// semantics); a collaborator wanting DROP or FAIL overflow behavior wraps
// the Stream returned by Subscribe itself.
func (b *Bus) Publish(item any) {
	if item == nil {
		logger.Warn("bus: dropped nil publish")
		return
	}

	b.mu.Lock()
	subs := make([]*subscription, len(b.subs))
	copy(subs, b.subs)
	closed := b.closed
	b.mu.Unlock()

	if closed {
		return
	}

	for _, s := range subs {
		if s.matches(item) {
			s.ch <- item
		}
	}
}

// Subscribe returns a type-filtered live Stream: only items whose dynamic
// type is assignable to T are delivered. Late subscribers never see items
// published before Subscribe was called. The returned Stream's channel is
// closed when the Bus is closed.
func Subscribe[T any](b *Bus) *Stream[T] {
	targetType := reflect.TypeOf((*T)(nil)).Elem()
	ch := make(chan any, 1)

	s := &subscription{
		ch: ch,
		matches: func(item any) bool {
			return reflect.TypeOf(item).AssignableTo(targetType)
		},
	}

	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.subs = append(b.subs, s)
	}
	b.mu.Unlock()

	return &Stream[T]{raw: ch}
}

// Close is idempotent. It completes every subscriber's Stream by closing
// its channel; no further items are ever delivered.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, s := range b.subs {
		close(s.ch)
	}
	b.subs = nil
}

// Stream is a type-filtered view onto a Bus subscription, delivering only
// values of type T. It mirrors reactive.Stream's channel-plus-context-cancel
// shape but carries bare T values rather than step.Item, since bus items are
// not step outputs.
type Stream[T any] struct {
	raw <-chan any
}

// Chan exposes a receive-only channel of T for range-based consumption. The
// channel closes when the Bus closes.
func (s *Stream[T]) Chan() <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		for v := range s.raw {
			out <- v.(T)
		}
	}()
	return out
}
