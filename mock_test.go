package ygggo_graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemDatabase_CommandLanguage(t *testing.T) {
	db := NewMemDatabase()
	ec, err := db.OpenConnection(context.Background())
	require.NoError(t, err)
	defer ec.Close()
	ctx := context.Background()

	res, err := ec.Execute(ctx, "PUT city tokyo")
	require.NoError(t, err)
	require.NoError(t, res.Close())

	res, err = ec.Execute(ctx, "GET city")
	require.NoError(t, err)
	row, ok, err := res.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []any{"tokyo"}, row)
	_, ok, _ = res.Next()
	assert.False(t, ok)
	require.NoError(t, res.Close())

	res, err = ec.Execute(ctx, "DELETE city")
	require.NoError(t, err)
	require.NoError(t, res.Close())

	res, err = ec.Execute(ctx, "GET city")
	require.NoError(t, err)
	_, ok, _ = res.Next()
	assert.False(t, ok)
	require.NoError(t, res.Close())
}

func TestMemDatabase_InsertDuplicateIsConstraintViolation(t *testing.T) {
	db := NewMemDatabase()
	ec, err := db.OpenConnection(context.Background())
	require.NoError(t, err)
	defer ec.Close()
	ctx := context.Background()

	res, err := ec.Execute(ctx, "INSERT id 1")
	require.NoError(t, err)
	require.NoError(t, res.Close())

	_, err = ec.Execute(ctx, "INSERT id 2")
	require.Error(t, err)
	assert.Equal(t, CategoryConstraint, ClassifyMessage(err.Error()))
}

func TestMemDatabase_TransactionIsolation(t *testing.T) {
	db := NewMemDatabase()
	ctx := context.Background()
	writer, err := db.OpenConnection(ctx)
	require.NoError(t, err)
	defer writer.Close()
	reader, err := db.OpenConnection(ctx)
	require.NoError(t, err)
	defer reader.Close()

	require.NoError(t, writer.BeginTransaction(ctx))
	res, err := writer.Execute(ctx, "PUT secret staged")
	require.NoError(t, err)
	require.NoError(t, res.Close())

	// Uncommitted writes are invisible to other connections.
	res, err = reader.Execute(ctx, "GET secret")
	require.NoError(t, err)
	_, ok, _ := res.Next()
	assert.False(t, ok)
	require.NoError(t, res.Close())

	require.NoError(t, writer.Commit(ctx))

	res, err = reader.Execute(ctx, "GET secret")
	require.NoError(t, err)
	row, ok, err := res.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []any{"staged"}, row)
	require.NoError(t, res.Close())
}

func TestMemDatabase_ConnectFailureInjection(t *testing.T) {
	db := NewMemDatabase()
	db.FailNext("connect", assert.AnError)

	_, err := NewConn(context.Background(), db)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectFailed)
	assert.Equal(t, 0, db.LiveConnections())

	// The injection is one-shot.
	conn, err := NewConn(context.Background(), db)
	require.NoError(t, err)
	require.NoError(t, conn.Close())
}
