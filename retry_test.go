package ygggo_graph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func transientErr(msg string) *Error {
	return &Error{Op: OpQuery, Category: CategoryTimeout, Message: msg, kind: ErrQueryFailed}
}

func TestRetryWithPolicy_RetriesTransientUntilSuccess(t *testing.T) {
	pol := RetryPolicy{MaxAttempts: 5, BaseBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}

	attempts := 0
	err := retryWithPolicy(context.Background(), pol, func() error {
		attempts++
		if attempts < 3 {
			return transientErr("query timed out")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithPolicy_PermanentNotRetried(t *testing.T) {
	pol := RetryPolicy{MaxAttempts: 5, BaseBackoff: time.Millisecond}

	attempts := 0
	wantErr := &Error{Op: OpQuery, Category: CategoryConstraint, Message: "duplicate key", kind: ErrQueryFailed}
	err := retryWithPolicy(context.Background(), pol, func() error {
		attempts++
		return wantErr
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.True(t, errors.Is(err, ErrQueryFailed))
}

func TestRetryWithPolicy_PlainErrorNotRetried(t *testing.T) {
	pol := RetryPolicy{MaxAttempts: 4, BaseBackoff: time.Millisecond}

	attempts := 0
	err := retryWithPolicy(context.Background(), pol, func() error {
		attempts++
		return errors.New("unclassified failure")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryWithPolicy_AttemptCapRespected(t *testing.T) {
	pol := RetryPolicy{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond}

	attempts := 0
	err := retryWithPolicy(context.Background(), pol, func() error {
		attempts++
		return transientErr("query timed out")
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithPolicy_SingleAttemptByDefault(t *testing.T) {
	attempts := 0
	err := retryWithPolicy(context.Background(), RetryPolicy{}, func() error {
		attempts++
		return transientErr("query timed out")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryWithPolicy_ContextCancellationStops(t *testing.T) {
	pol := RetryPolicy{MaxAttempts: 100, BaseBackoff: 10 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	err := retryWithPolicy(ctx, pol, func() error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return transientErr("query timed out")
	})
	require.Error(t, err)
	assert.LessOrEqual(t, attempts, 3)
}

func TestWithinTx_RetriesTransientCallbackFailure(t *testing.T) {
	db := NewMemDatabase()
	pool, err := NewPool(context.Background(), db, Config{
		Pool:  PoolConfig{Capacity: 2},
		Retry: RetryPolicy{MaxAttempts: 3, BaseBackoff: time.Millisecond},
	})
	require.NoError(t, err)
	defer pool.Close()

	ctx := context.Background()
	attempts := 0
	err = pool.WithinTx(ctx, func(tx *Tx) error {
		attempts++
		if attempts == 1 {
			return transientErr("query timed out")
		}
		return tx.Exec(ctx, "PUT retried yes")
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	err = pool.WithConn(ctx, func(conn *Conn) error {
		assertValue(t, conn, "retried", "yes")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, pool.GetStats().InUse)
}
