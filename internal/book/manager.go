package book

import (
	"errors"
	"fmt"

	"main/internal/bus"
	"main/internal/schema"
)

// Manager owns one book per instrument and keeps them current from the
// sequenced delta stream on the bus.
type Manager struct {
	bookType Type
	books    map[schema.InstrumentID]*Book
}

// NewManager creates an empty manager producing books of the given type.
func NewManager(bookType Type) *Manager {
	return &Manager{
		bookType: bookType,
		books:    make(map[schema.InstrumentID]*Book),
	}
}

// Book returns the book for an instrument, creating it if absent.
func (m *Manager) Book(id schema.InstrumentID) *Book {
	b, ok := m.books[id]
	if !ok {
		b = New(id, m.bookType)
		m.books[id] = b
	}
	return b
}

// Len returns the number of tracked instruments.
func (m *Manager) Len() int {
	return len(m.books)
}

// SubscribeDeltas wires the manager to the bus's book delta topics. The
// fatal callback receives invariant violations; other delta errors are
// malformed upstream data and are returned to the caller's diagnostics
// callback.
func (m *Manager) SubscribeDeltas(b *bus.Bus, diag func(error), fatal func(*InvariantError)) error {
	_, err := b.Subscribe("data.delta.>", func(msg bus.Message) {
		delta, ok := msg.Payload.(schema.BookDelta)
		if !ok {
			diag(fmt.Errorf("delta topic carried %T", msg.Payload))
			return
		}
		if err := m.Book(delta.InstrumentID).ApplyDeltas([]schema.BookDelta{delta}); err != nil {
			var inv *InvariantError
			if errors.As(err, &inv) {
				fatal(inv)
				return
			}
			diag(err)
		}
	})
	return err
}
