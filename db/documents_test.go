package db

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := Open(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func TestUpsertReplacesBody(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)

	require.NoError(t, database.Upsert(ctx, "notifications", 1, []byte(`{"v":1}`)))
	require.NoError(t, database.Upsert(ctx, "notifications", 1, []byte(`{"v":2}`)))

	body, err := database.Find(ctx, "notifications", 1)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(body))

	all, err := database.FindAll(ctx, "notifications")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestFindMissingReturnsNil(t *testing.T) {
	database := openTestDB(t)

	body, err := database.Find(context.Background(), "notifications", 99)
	require.NoError(t, err)
	assert.Nil(t, body)
}

func TestHighSnowflakeIDsRoundTrip(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)

	id := uint64(math.MaxUint64 - 5)
	require.NoError(t, database.Upsert(ctx, "prefs", id, []byte(`{}`)))

	body, err := database.Find(ctx, "prefs", id)
	require.NoError(t, err)
	assert.NotNil(t, body)

	ids, err := database.Entities(ctx, "prefs")
	require.NoError(t, err)
	assert.Equal(t, []uint64{id}, ids)
}

func TestKindsListsStoredKinds(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)

	require.NoError(t, database.Upsert(ctx, "b", 1, []byte(`{}`)))
	require.NoError(t, database.Upsert(ctx, "a", 1, []byte(`{}`)))
	require.NoError(t, database.Upsert(ctx, "a", 2, []byte(`{}`)))

	kinds, err := database.Kinds(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, kinds)
	assert.NotEmpty(t, database.Path())
}
