// Package optimistic applies a change locally before the remote store has
// confirmed it, and puts the local state back if the remote call fails
package optimistic

import (
	"context"
	"errors"
)

// Tx describes one optimistic change. Snapshot captures the local state,
// Apply changes it, Commit performs the remote call and Restore puts the
// captured state back. Settle records the remote result locally once Commit
// has succeeded. Apply, Settle and Restore may be nil.
type Tx[T any] struct {
	Snapshot func() T
	Apply    func() error
	Commit   func(ctx context.Context) error
	Settle   func() error
	Restore  func(T) error
}

// Run executes tx. When Apply or Commit fails the snapshot is restored and
// the failure is returned, joined with any error from restoring. A Settle
// failure is returned as is: the remote side has already changed, so the
// local state is not rolled back.
func Run[T any](ctx context.Context, tx Tx[T]) error {
	snap := tx.Snapshot()

	err := ctx.Err()
	if err != nil {
		return err
	}

	if tx.Apply != nil {
		err = tx.Apply()
		if err != nil {
			return restore(tx, snap, err)
		}
	}

	err = tx.Commit(ctx)
	if err != nil {
		return restore(tx, snap, err)
	}

	if tx.Settle != nil {
		return tx.Settle()
	}

	return nil
}

func restore[T any](tx Tx[T], snap T, cause error) error {
	if tx.Restore == nil {
		return cause
	}

	rerr := tx.Restore(snap)
	if rerr != nil {
		return errors.Join(cause, rerr)
	}

	return cause
}
