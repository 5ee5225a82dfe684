package bus

import (
	"errors"
	"fmt"
	"strings"

	"main/internal/schema"
)

var (
	ErrDuplicateEndpoint = errors.New("endpoint already registered")
	ErrUnknownEndpoint   = errors.New("endpoint not registered")
	ErrEmptyTopic        = errors.New("topic is empty")
)

// Message is the unit delivered through the bus: a sequenced header and a
// decoded payload (one of the schema payload structs).
type Message struct {
	Header  schema.EventHeader
	Payload any
}

// Handler consumes a published message.
type Handler func(Message)

// Endpoint consumes a point-to-point command and may fail.
type Endpoint func(Message) error

type subscription struct {
	id      uint64
	pattern []string
	fn      Handler
}

type pendingOp struct {
	unsubscribe bool
	sub         subscription
	subID       uint64
}

// Bus is the in-process synchronous notification mechanism. Publishing
// delivers to matching subscribers in subscription-registration order on
// the caller's goroutine; there is no internal queueing or concurrency.
//
// Bus is not safe for concurrent use. Everything downstream of the feed
// merge runs on a single owner goroutine, which is the only publisher.
type Bus struct {
	nextSubID uint64
	subs      []subscription
	endpoints map[string]Endpoint

	dispatchDepth int
	pending       []pendingOp
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{endpoints: make(map[string]Endpoint)}
}

// Subscribe registers a handler for a topic pattern and returns the
// subscription id. Patterns are dot-separated segments; "*" matches exactly
// one segment and ">" matches the remaining tail.
//
// Subscribing from within a handler is deferred until the current dispatch
// completes.
func (b *Bus) Subscribe(pattern string, fn Handler) (uint64, error) {
	if pattern == "" {
		return 0, ErrEmptyTopic
	}
	if fn == nil {
		return 0, errors.New("handler is nil")
	}
	b.nextSubID++
	sub := subscription{
		id:      b.nextSubID,
		pattern: strings.Split(pattern, "."),
		fn:      fn,
	}
	if b.dispatchDepth > 0 {
		b.pending = append(b.pending, pendingOp{sub: sub})
		return sub.id, nil
	}
	b.subs = append(b.subs, sub)
	return sub.id, nil
}

// Unsubscribe removes a subscription by id. Unknown ids are a no-op.
// Unsubscribing from within a handler is deferred until dispatch completes.
func (b *Bus) Unsubscribe(id uint64) {
	if b.dispatchDepth > 0 {
		b.pending = append(b.pending, pendingOp{unsubscribe: true, subID: id})
		return
	}
	b.removeSub(id)
}

// Publish delivers the message to every subscriber whose pattern matches
// the topic, in subscription-registration order, synchronously.
func (b *Bus) Publish(topic string, msg Message) {
	if topic == "" {
		return
	}
	segments := strings.Split(topic, ".")

	b.dispatchDepth++
	// Index-based loop: subscriptions added during dispatch are deferred,
	// so b.subs cannot change underneath us.
	for i := range b.subs {
		if matchPattern(b.subs[i].pattern, segments) {
			b.subs[i].fn(msg)
		}
	}
	b.dispatchDepth--
	if b.dispatchDepth == 0 {
		b.applyPending()
	}
}

// Register binds the single handler for a command endpoint.
func (b *Bus) Register(endpoint string, fn Endpoint) error {
	if endpoint == "" {
		return ErrEmptyTopic
	}
	if fn == nil {
		return errors.New("endpoint handler is nil")
	}
	if _, ok := b.endpoints[endpoint]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateEndpoint, endpoint)
	}
	b.endpoints[endpoint] = fn
	return nil
}

// Unregister removes an endpoint handler.
func (b *Bus) Unregister(endpoint string) {
	delete(b.endpoints, endpoint)
}

// Send dispatches a command to exactly one registered endpoint handler.
func (b *Bus) Send(endpoint string, msg Message) error {
	fn, ok := b.endpoints[endpoint]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEndpoint, endpoint)
	}
	b.dispatchDepth++
	err := fn(msg)
	b.dispatchDepth--
	if b.dispatchDepth == 0 {
		b.applyPending()
	}
	return err
}

func (b *Bus) applyPending() {
	for _, op := range b.pending {
		if op.unsubscribe {
			b.removeSub(op.subID)
		} else {
			b.subs = append(b.subs, op.sub)
		}
	}
	b.pending = b.pending[:0]
}

func (b *Bus) removeSub(id uint64) {
	for i := range b.subs {
		if b.subs[i].id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// matchPattern reports whether the pattern matches the topic segments.
func matchPattern(pattern, topic []string) bool {
	for i, seg := range pattern {
		if seg == ">" {
			return i < len(topic)
		}
		if i >= len(topic) {
			return false
		}
		if seg != "*" && seg != topic[i] {
			return false
		}
	}
	return len(pattern) == len(topic)
}
