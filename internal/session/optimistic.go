package session

import "context"

// RejectedError is returned when the remote commit of an optimistic
// mutation failed and the local change was rolled back.
type RejectedError struct {
	Cause error
}

func (e *RejectedError) Error() string { return ErrUpdateRejected.Error() + ": " + e.Cause.Error() }

func (e *RejectedError) Unwrap() error { return e.Cause }

func (e *RejectedError) Is(target error) bool { return target == ErrUpdateRejected }

// Optimistic describes a local change that is applied immediately and then
// committed to a remote collaborator.
type Optimistic[T any] struct {
	// Apply performs the local change and returns the state to restore on
	// failure. An error aborts the mutation before anything is committed.
	Apply func() (T, error)
	// Commit is the remote call. A nil Commit always succeeds.
	Commit func(ctx context.Context) error
	// Restore puts the pre-mutation state back after a failed commit.
	Restore func(prev T)
	// Settle runs after every applied mutation with the commit outcome and
	// clears pending flags.
	Settle func(err error)
}

// RunOptimistic applies m locally, commits it, and rolls back on failure.
// Commit failures are returned as a *RejectedError.
func RunOptimistic[T any](ctx context.Context, m Optimistic[T]) error {
	prev, err := m.Apply()
	if err != nil {
		return err
	}

	if m.Commit != nil {
		err = m.Commit(ctx)
	}
	if err != nil {
		if m.Restore != nil {
			m.Restore(prev)
		}
		err = &RejectedError{Cause: err}
	}
	if m.Settle != nil {
		m.Settle(err)
	}
	return err
}
