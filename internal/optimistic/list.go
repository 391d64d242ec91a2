package optimistic

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const tempPrefix = "tmp-"

// IsTemp reports whether id was assigned locally and not yet confirmed.
func IsTemp(id string) bool {
	return strings.HasPrefix(id, tempPrefix)
}

// Item is an entry of a List.
type Item[T any] struct {
	Value T
	ID    string
}

// List is an ordered collection of records whose ids are assigned by the
// remote store. Records created locally carry a temporary id until the
// remote store confirms them.
type List[T any] struct {
	items []Item[T]
	mu    sync.Mutex
}

// NewList returns a list holding items.
func NewList[T any](items ...Item[T]) *List[T] {
	return &List[T]{items: slices.Clone(items)}
}

// Items returns a copy of the entries in order.
func (l *List[T]) Items() []Item[T] {
	l.mu.Lock()
	defer l.mu.Unlock()

	return slices.Clone(l.items)
}

// Add appends v under a new temporary id and returns that id.
func (l *List[T]) Add(v T) string {
	id := tempPrefix + uuid.NewString()

	l.mu.Lock()
	l.items = append(l.items, Item[T]{ID: id, Value: v})
	l.mu.Unlock()

	return id
}

// Confirm replaces a temporary id with the one assigned remotely.
func (l *List[T]) Confirm(tempID, id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := slices.IndexFunc(l.items, func(it Item[T]) bool {
		return it.ID == tempID
	})
	if i < 0 {
		return false
	}

	l.items[i].ID = id

	return true
}

func (l *List[T]) restore(items []Item[T]) {
	l.mu.Lock()
	l.items = items
	l.mu.Unlock()
}

// SaveFunc stores the entries of a list locally. It is called after every
// change Create makes to the list.
type SaveFunc[T any] func(items []Item[T]) error

// Create adds v to l at once and asks create to store it remotely. On
// success the temporary id is replaced with the remote one, which is
// returned. When create fails, v is removed again.
//
// If saving the confirmed id fails, the remote id is returned together with
// the error and nothing is rolled back: the stored entry keeps its temporary
// id until the list is read from the remote store again.
func Create[T any](
	ctx context.Context,
	l *List[T],
	v T,
	create func(ctx context.Context, v T) (string, error),
	save SaveFunc[T],
) (string, error) {
	if save == nil {
		save = func([]Item[T]) error { return nil }
	}

	var tempID, id string

	err := Run(ctx, Tx[[]Item[T]]{
		Snapshot: l.Items,
		Apply: func() error {
			tempID = l.Add(v)
			return save(l.Items())
		},
		Commit: func(ctx context.Context) error {
			var err error

			id, err = create(ctx, v)

			return err
		},
		Settle: func() error {
			l.Confirm(tempID, id)
			return save(l.Items())
		},
		Restore: func(items []Item[T]) error {
			l.restore(items)
			return save(items)
		},
	})

	return id, err
}
