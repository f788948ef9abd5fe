package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunOptimistic(t *testing.T) {
	ctx := context.Background()

	t.Run("commit success keeps the change", func(t *testing.T) {
		value := 1
		var settled error = errRemote

		err := RunOptimistic(ctx, Optimistic[int]{
			Apply:   func() (int, error) { prev := value; value = 2; return prev, nil },
			Commit:  func(context.Context) error { return nil },
			Restore: func(prev int) { value = prev },
			Settle:  func(err error) { settled = err },
		})

		require.NoError(t, err)
		assert.Equal(t, 2, value)
		assert.NoError(t, settled)
	})

	t.Run("commit failure restores and wraps", func(t *testing.T) {
		value := 1
		var settled error

		err := RunOptimistic(ctx, Optimistic[int]{
			Apply:   func() (int, error) { prev := value; value = 2; return prev, nil },
			Commit:  func(context.Context) error { return errRemote },
			Restore: func(prev int) { value = prev },
			Settle:  func(err error) { settled = err },
		})

		assert.Equal(t, 1, value)
		assert.ErrorIs(t, err, ErrUpdateRejected)
		assert.ErrorIs(t, err, errRemote)
		assert.Equal(t, err, settled)

		var rejected *RejectedError
		require.True(t, errors.As(err, &rejected))
		assert.Equal(t, errRemote, rejected.Cause)
	})

	t.Run("apply error skips commit and settle", func(t *testing.T) {
		committed, settled := false, false
		abort := errors.New("nothing to do")

		err := RunOptimistic(ctx, Optimistic[int]{
			Apply:  func() (int, error) { return 0, abort },
			Commit: func(context.Context) error { committed = true; return nil },
			Settle: func(error) { settled = true },
		})

		assert.Equal(t, abort, err)
		assert.False(t, committed)
		assert.False(t, settled)
	})

	t.Run("nil commit succeeds", func(t *testing.T) {
		err := RunOptimistic(ctx, Optimistic[int]{
			Apply: func() (int, error) { return 0, nil },
		})
		assert.NoError(t, err)
	})
}
