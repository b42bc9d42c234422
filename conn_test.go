package ygggo_graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConn(t *testing.T) (*Conn, *MemDatabase) {
	t.Helper()
	db := NewMemDatabase()
	conn, err := NewConn(context.Background(), db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn, db
}

func TestConn_SecondQueryWhileResultOpen_ReturnsBusy(t *testing.T) {
	conn, _ := newTestConn(t)
	ctx := context.Background()

	res, err := conn.Query(ctx, "RETURN 1")
	require.NoError(t, err)
	assert.Equal(t, StateBusy, conn.State())

	_, err = conn.Query(ctx, "RETURN 2")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBusy))

	// After closing the first result the second query succeeds.
	require.NoError(t, res.Close())
	assert.Equal(t, StateIdle, conn.State())

	res2, err := conn.Query(ctx, "RETURN 2")
	require.NoError(t, err)
	require.True(t, res2.Next())
	assert.Equal(t, []any{"2"}, res2.Values())
	require.NoError(t, res2.Close())
}

func TestConn_ResultIteration(t *testing.T) {
	conn, _ := newTestConn(t)
	ctx := context.Background()

	require.NoError(t, exec(ctx, conn, "PUT name alice"))

	res, err := conn.Query(ctx, "GET name")
	require.NoError(t, err)
	assert.Equal(t, []string{"value"}, res.Columns())
	require.True(t, res.Next())
	assert.Equal(t, []any{"alice"}, res.Values())
	assert.False(t, res.Next())
	assert.NoError(t, res.Err())
	require.NoError(t, res.Close())
}

func TestConn_NestedBegin_FailsAndMarksFailed(t *testing.T) {
	conn, _ := newTestConn(t)
	ctx := context.Background()

	require.NoError(t, conn.BeginTransaction(ctx))
	assert.True(t, conn.InTransaction())

	err := conn.BeginTransaction(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransactionFailed))
	assert.Equal(t, StateFailed, conn.State())
	assert.Equal(t, OpBegin, conn.LastError().Op)
	assert.Equal(t, CategoryTransaction, conn.LastError().Category)

	// Failed state blocks everything except recovery.
	_, err = conn.Query(ctx, "RETURN 1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConnFailed))

	// Recover restores idle and subsequent queries succeed.
	require.NoError(t, conn.Recover(ctx))
	assert.Equal(t, StateIdle, conn.State())
	assert.False(t, conn.InTransaction())
	assert.Nil(t, conn.LastError())

	require.NoError(t, exec(ctx, conn, "RETURN 1"))
}

func TestConn_CommitWithoutTransaction_Fails(t *testing.T) {
	conn, _ := newTestConn(t)
	ctx := context.Background()

	err := conn.Commit(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransactionFailed))
	assert.Equal(t, OpCommit, conn.LastError().Op)
	assert.Equal(t, StateFailed, conn.State())
}

func TestConn_RollbackWithoutTransaction_Fails(t *testing.T) {
	conn, _ := newTestConn(t)
	ctx := context.Background()

	err := conn.Rollback(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransactionFailed))
	assert.Equal(t, OpRollback, conn.LastError().Op)
	assert.Equal(t, StateFailed, conn.State())
}

func TestConn_CommitFailure_ClearsFlagAndRecordsOp(t *testing.T) {
	conn, db := newTestConn(t)
	ctx := context.Background()

	require.NoError(t, conn.BeginTransaction(ctx))
	db.FailNext("commit", errors.New("commit rejected by engine"))

	err := conn.Commit(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransactionFailed))

	// The flag never sticks, even when the engine call failed.
	assert.False(t, conn.InTransaction())
	assert.Equal(t, StateFailed, conn.State())
	assert.Equal(t, OpCommit, conn.LastError().Op)

	require.NoError(t, conn.Recover(ctx))
	require.NoError(t, conn.BeginTransaction(ctx))
	require.NoError(t, conn.Commit(ctx))
}

func TestConn_TransactionCommitAndRollbackVisibility(t *testing.T) {
	conn, _ := newTestConn(t)
	ctx := context.Background()

	require.NoError(t, conn.BeginTransaction(ctx))
	require.NoError(t, exec(ctx, conn, "PUT k committed"))
	require.NoError(t, conn.Commit(ctx))
	assertValue(t, conn, "k", "committed")

	require.NoError(t, conn.BeginTransaction(ctx))
	require.NoError(t, exec(ctx, conn, "PUT k discarded"))
	require.NoError(t, conn.Rollback(ctx))
	assertValue(t, conn, "k", "committed")
}

func TestConn_PrepareBindExecute(t *testing.T) {
	conn, _ := newTestConn(t)
	ctx := context.Background()

	st, err := conn.Prepare(ctx, "PUT $key $value")
	require.NoError(t, err)
	defer st.Close()
	assert.ElementsMatch(t, []string{"key", "value"}, st.Parameters())

	require.NoError(t, st.Bind("key", "city"))
	require.NoError(t, st.Bind("value", "berlin"))

	res, err := st.Execute(ctx)
	require.NoError(t, err)
	require.NoError(t, res.Close())

	assertValue(t, conn, "city", "berlin")
}

func TestConn_BindUnknownParameter_Fails(t *testing.T) {
	conn, _ := newTestConn(t)
	ctx := context.Background()

	st, err := conn.Prepare(ctx, "GET $key")
	require.NoError(t, err)
	defer st.Close()

	err = st.Bind("nope", 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBindFailed))
	assert.Equal(t, OpBind, conn.LastError().Op)
	assert.Equal(t, CategoryArgument, conn.LastError().Category)
}

func TestConn_ExecuteWithMissingBindings_Fails(t *testing.T) {
	conn, _ := newTestConn(t)
	ctx := context.Background()

	st, err := conn.Prepare(ctx, "PUT $key $value")
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.Bind("key", "k"))

	_, err = st.Execute(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExecuteFailed))
	assert.Equal(t, OpExecute, conn.LastError().Op)
}

func TestConn_ExecuteBusyDiscipline(t *testing.T) {
	conn, _ := newTestConn(t)
	ctx := context.Background()

	st, err := conn.Prepare(ctx, "RETURN $x")
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.Bind("x", 7))

	res, err := conn.Query(ctx, "RETURN 1")
	require.NoError(t, err)

	_, err = st.Execute(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBusy))

	require.NoError(t, res.Close())
	res2, err := st.Execute(ctx)
	require.NoError(t, err)
	require.NoError(t, res2.Close())
}

func TestConn_ConfigPassThrough(t *testing.T) {
	conn, db := newTestConn(t)

	require.NoError(t, conn.SetTimeout(5000))
	require.NoError(t, conn.SetMaxThreads(8))
	n, err := conn.MaxThreads()
	require.NoError(t, err)
	assert.Equal(t, uint64(8), n)

	db.FailNext("config", errors.New("engine rejected setting"))
	err = conn.SetTimeout(1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfigFailed))
	assert.Equal(t, OpConfig, conn.LastError().Op)
}

func TestConn_ConfigBlockedWhileFailed(t *testing.T) {
	conn, _ := newTestConn(t)
	ctx := context.Background()

	require.Error(t, conn.Commit(ctx))
	require.Equal(t, StateFailed, conn.State())

	err := conn.SetMaxThreads(2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConnFailed))
	_, err = conn.MaxThreads()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConnFailed))
}

func TestConn_ValidateIdle(t *testing.T) {
	conn, _ := newTestConn(t)
	require.NoError(t, conn.Validate(context.Background()))
	assert.Equal(t, StateIdle, conn.State())
}

func TestConn_ValidateRecoversFailed(t *testing.T) {
	conn, _ := newTestConn(t)
	ctx := context.Background()

	require.NoError(t, conn.BeginTransaction(ctx))
	require.Error(t, conn.BeginTransaction(ctx))
	require.Equal(t, StateFailed, conn.State())

	require.NoError(t, conn.Validate(ctx))
	assert.Equal(t, StateIdle, conn.State())
}

func TestConn_RecoveryProbeFailure_StaysFailed(t *testing.T) {
	conn, db := newTestConn(t)
	ctx := context.Background()

	require.Error(t, conn.Commit(ctx)) // protocol violation -> failed
	original := conn.LastError()
	require.NotNil(t, original)

	db.FailNext("execute", errors.New("engine unavailable"))
	err := conn.Recover(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransactionFailed))
	assert.Equal(t, StateFailed, conn.State())
	// The original diagnostic is preserved on a failed recovery.
	assert.Same(t, original, conn.LastError())

	require.NoError(t, conn.Recover(ctx))
	assert.Equal(t, StateIdle, conn.State())
}

func TestConn_ClearErrorKeepsState(t *testing.T) {
	conn, _ := newTestConn(t)
	ctx := context.Background()

	require.Error(t, conn.Commit(ctx))
	require.NotNil(t, conn.LastError())

	conn.ClearError()
	assert.Nil(t, conn.LastError())
	assert.Equal(t, "", conn.LastErrorMessage())
	// Clearing diagnostics does not resurrect the connection.
	assert.Equal(t, StateFailed, conn.State())
}

func TestConn_OperationsAfterClose_Fail(t *testing.T) {
	db := NewMemDatabase()
	conn, err := NewConn(context.Background(), db)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	_, err = conn.Query(context.Background(), "RETURN 1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConnClosed))
	assert.Equal(t, 0, db.LiveConnections())
}

// exec runs a statement for its side effects, closing the result.
func exec(ctx context.Context, conn *Conn, query string) error {
	r, err := conn.Query(ctx, query)
	if err != nil {
		return err
	}
	return r.drainAndClose()
}

func assertValue(t *testing.T, conn *Conn, key, want string) {
	t.Helper()
	res, err := conn.Query(context.Background(), "GET "+key)
	require.NoError(t, err)
	defer res.Close()
	require.True(t, res.Next(), "key %q should exist", key)
	assert.Equal(t, []any{want}, res.Values())
}
