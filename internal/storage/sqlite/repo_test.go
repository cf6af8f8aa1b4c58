package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"dataload/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) storage.Repository {
	t.Helper()
	repo, err := storage.New(context.Background(), storage.Config{
		Kind: Kind,
		DSN:  filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

var peopleDef = storage.TableDef{
	Name: "people",
	Columns: []storage.ColumnDef{
		{Name: "id", Type: storage.Integer, PrimaryKey: true, AutoIncrement: true},
		{Name: "name", Type: storage.Text},
		{Name: "score", Type: storage.Real, Nullable: true},
		{Name: "avatar", Type: storage.Blob, Nullable: true},
	},
}

func TestCreateSQL(t *testing.T) {
	t.Parallel()

	got := dialect{}.CreateSQL(peopleDef)
	for _, want := range []string{
		`CREATE TABLE IF NOT EXISTS "people"`,
		`"id" INTEGER PRIMARY KEY AUTOINCREMENT`,
		`"name" TEXT NOT NULL`,
		`"score" REAL,`,
		`"avatar" BLOB`,
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("CreateSQL missing %q in:\n%s", want, got)
		}
	}
}

func TestSQLIdent(t *testing.T) {
	t.Parallel()

	if got := sqlIdent(`we"ird`); got != `"we""ird"` {
		t.Fatalf("sqlIdent=%s", got)
	}
}

func TestRepo_CreateInsertDescribeQuery(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openTemp(t)

	require.NoError(t, repo.CreateTable(ctx, peopleDef, false))

	cols := []string{"id", "name", "score", "avatar"}
	n, err := repo.InsertBatch(ctx, peopleDef, cols, [][]any{
		{nil, "ada", 9.5, []byte{0x01, 0x02}},
		{int64(10), "bo", nil, nil},
		{nil, "cy", 1.0, nil},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	info, err := repo.Describe(ctx, "people")
	require.NoError(t, err)
	assert.Equal(t, int64(3), info.RowCount)
	assert.Greater(t, info.SizeBytes, int64(0))
	require.Len(t, info.Columns, 4)
	assert.True(t, info.Columns[0].PrimaryKey)
	assert.False(t, info.Columns[1].Nullable)
	assert.True(t, info.Columns[2].Nullable)

	rows, err := repo.Query(ctx, `SELECT id, name, avatar FROM people ORDER BY id`)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	// Explicit keys go in first; generated keys continue after them.
	assert.Equal(t, int64(10), rows[0]["id"])
	assert.Equal(t, "bo", rows[0]["name"])
	assert.Nil(t, rows[0]["avatar"])
	assert.Equal(t, int64(11), rows[1]["id"])
	assert.Equal(t, "ada", rows[1]["name"])
	assert.Equal(t, []byte{0x01, 0x02}, rows[1]["avatar"])
	assert.Equal(t, int64(12), rows[2]["id"])
}

func TestRepo_OverwriteDropsExisting(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openTemp(t)

	require.NoError(t, repo.CreateTable(ctx, peopleDef, false))
	_, err := repo.InsertBatch(ctx, peopleDef, []string{"name"}, [][]any{{"x"}})
	require.NoError(t, err)

	// Create-if-absent keeps the data.
	require.NoError(t, repo.CreateTable(ctx, peopleDef, false))
	info, err := repo.Describe(ctx, "people")
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.RowCount)

	require.NoError(t, repo.CreateTable(ctx, peopleDef, true))
	info, err = repo.Describe(ctx, "people")
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.RowCount)
}

func TestRepo_FailedBatchRollsBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openTemp(t)
	require.NoError(t, repo.CreateTable(ctx, peopleDef, false))

	// The second row violates NOT NULL on name; the first must not persist.
	_, err := repo.InsertBatch(ctx, peopleDef, []string{"name"}, [][]any{{"ok"}, {nil}})
	require.Error(t, err)

	info, err := repo.Describe(ctx, "people")
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.RowCount)
}

func TestRepo_DescribeMissingTable(t *testing.T) {
	t.Parallel()
	repo := openTemp(t)

	_, err := repo.Describe(context.Background(), "ghost")
	if !errors.Is(err, storage.ErrTableNotFound) {
		t.Fatalf("Describe(ghost) err=%v, want ErrTableNotFound", err)
	}
}

func TestNew_RequiresDSN(t *testing.T) {
	t.Parallel()

	if _, err := New(context.Background(), storage.Config{Kind: Kind}); err == nil {
		t.Fatalf("New without dsn returned nil error")
	}
}
