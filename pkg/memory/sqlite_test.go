package memory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	db, err := OpenDatabase(filepath.Join(t.TempDir(), "kioku.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLiteStore(db, zerolog.Nop())
	require.NoError(t, err)
	return store
}

func insertTestRecord(t *testing.T, store *SQLiteStore, params InsertParams) *Record {
	t.Helper()
	record, err := store.Insert(context.Background(), params)
	require.NoError(t, err)
	return record
}

func TestSQLiteStore_InsertAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	record := insertTestRecord(t, store, InsertParams{
		Owner:          "alice",
		ConversationID: "conv-1",
		OriginalText:   "I live in Tokyo",
		StructuredText: "The user lives in Tokyo",
		Tier:           TierCoreContext,
		Category:       "residence",
		Importance:     0.8,
	})

	require.NotEmpty(t, record.ID)
	assert.False(t, record.CreatedAt.IsZero())
	assert.Equal(t, 0, record.AccessCount)
	assert.Nil(t, record.LastAccessedAt)

	got, err := store.Get(ctx, "alice", record.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, record.ID, got.ID)
	assert.Equal(t, "conv-1", got.ConversationID)
	assert.Equal(t, "The user lives in Tokyo", got.StructuredText)
	assert.Equal(t, TierCoreContext, got.Tier)
	assert.Equal(t, 0.8, got.Importance)
	assert.True(t, record.CreatedAt.Equal(got.CreatedAt))
}

func TestSQLiteStore_GetScopedToOwner(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	record := insertTestRecord(t, store, InsertParams{
		Owner:          "alice",
		StructuredText: "The user plays piano",
		Tier:           TierArchive,
	})

	got, err := store.Get(ctx, "bob", record.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = store.Get(ctx, "alice", "no-such-id")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteStore_InsertRejectsEmptyStructuredText(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Insert(context.Background(), InsertParams{
		Owner:          "alice",
		StructuredText: "   ",
		Tier:           TierCoreContext,
	})
	assert.Error(t, err)
}

func TestSQLiteStore_InsertRejectsMissingOwner(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Insert(context.Background(), InsertParams{
		StructuredText: "The user exists",
		Tier:           TierCoreContext,
	})
	assert.Error(t, err)
}

func TestSQLiteStore_InsertClampsImportance(t *testing.T) {
	store := newTestStore(t)

	high := insertTestRecord(t, store, InsertParams{
		Owner: "alice", StructuredText: "a", Tier: TierCoreContext, Importance: 7,
	})
	low := insertTestRecord(t, store, InsertParams{
		Owner: "alice", StructuredText: "b", Tier: TierCoreContext, Importance: -2,
	})

	assert.Equal(t, 1.0, high.Importance)
	assert.Equal(t, 0.0, low.Importance)
}

func TestSQLiteStore_ScanFiltersByTier(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	insertTestRecord(t, store, InsertParams{Owner: "alice", StructuredText: "core fact", Tier: TierCoreContext})
	insertTestRecord(t, store, InsertParams{Owner: "alice", StructuredText: "archived fact", Tier: TierArchive})
	insertTestRecord(t, store, InsertParams{Owner: "bob", StructuredText: "someone else", Tier: TierCoreContext})

	all, err := store.Scan(ctx, "alice", nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	tier := TierArchive
	archived, err := store.Scan(ctx, "alice", &tier)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, "archived fact", archived[0].StructuredText)
}

func TestSQLiteStore_ListOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	insertTestRecord(t, store, InsertParams{Owner: "alice", StructuredText: "low", Tier: TierCoreContext, Importance: 0.2})
	insertTestRecord(t, store, InsertParams{Owner: "alice", StructuredText: "high", Tier: TierCoreContext, Importance: 0.9})
	insertTestRecord(t, store, InsertParams{Owner: "alice", StructuredText: "mid", Tier: TierCoreContext, Importance: 0.5})

	records, total, err := store.List(ctx, "alice", nil, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, records, 3)
	assert.Equal(t, "high", records[0].StructuredText)
	assert.Equal(t, "mid", records[1].StructuredText)
	assert.Equal(t, "low", records[2].StructuredText)
}

func TestSQLiteStore_ListPagination(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		insertTestRecord(t, store, InsertParams{
			Owner: "alice", StructuredText: "fact", Tier: TierCoreContext, Importance: float64(i) / 10,
		})
	}

	page, total, err := store.List(ctx, "alice", nil, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, page, 2)
}

func TestSQLiteStore_DeleteTwice(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	record := insertTestRecord(t, store, InsertParams{
		Owner: "alice", StructuredText: "The user owns a cat", Tier: TierCoreContext,
	})

	deleted, err := store.Delete(ctx, "alice", record.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = store.Delete(ctx, "alice", record.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestSQLiteStore_DeleteScopedToOwner(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	record := insertTestRecord(t, store, InsertParams{
		Owner: "alice", StructuredText: "The user owns a dog", Tier: TierCoreContext,
	})

	deleted, err := store.Delete(ctx, "bob", record.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	got, err := store.Get(ctx, "alice", record.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestSQLiteStore_RecordAccess(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	record := insertTestRecord(t, store, InsertParams{
		Owner: "alice", StructuredText: "The user drinks matcha", Tier: TierArchive,
	})

	require.NoError(t, store.RecordAccess(ctx, record.ID))
	require.NoError(t, store.RecordAccess(ctx, record.ID))

	got, err := store.Get(ctx, "alice", record.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.AccessCount)
	require.NotNil(t, got.LastAccessedAt)
	assert.False(t, got.LastAccessedAt.IsZero())
}
