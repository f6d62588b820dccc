package contentstore

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fgb-andu/muse-api/pkg/domain"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE artifacts (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id  INTEGER,
		media_type  TEXT NOT NULL,
		description TEXT NOT NULL,
		file_path   TEXT NOT NULL,
		is_final    BOOLEAN NOT NULL DEFAULT 0,
		created_at  TIMESTAMP NOT NULL
	)`)
	require.NoError(t, err)
	return db
}

func testListFinal(t *testing.T, store Store) {
	ctx := context.Background()
	owner := int64(1)
	other := int64(2)

	records := []domain.Artifact{
		{AccountID: &owner, MediaType: domain.MediaTypeImage, Description: "sunset", FilePath: "1/image/a.png", Final: true},
		{AccountID: &owner, MediaType: domain.MediaTypeAudio, Description: "draft", FilePath: "x_preview.wav", Final: false},
		{AccountID: nil, MediaType: domain.MediaTypeImage, Description: "anon preview", FilePath: "y_preview.png", Final: false},
		{AccountID: &other, MediaType: domain.MediaTypeImage, Description: "theirs", FilePath: "2/image/b.png", Final: true},
	}
	for i := range records {
		require.NoError(t, store.Create(ctx, &records[i]))
		assert.NotZero(t, records[i].ID)
	}

	works, err := store.ListFinal(ctx, owner)
	require.NoError(t, err)
	require.Len(t, works, 1, "previews and other owners excluded")
	assert.Equal(t, "sunset", works[0].Description)
	assert.True(t, works[0].Final)

	works, err = store.ListFinal(ctx, 99)
	require.NoError(t, err)
	assert.Empty(t, works)
}

func TestSQLiteStoreListFinal(t *testing.T) {
	testListFinal(t, NewSQLiteStore(newTestDB(t)))
}

func TestMemoryStoreListFinal(t *testing.T) {
	testListFinal(t, NewMemoryStore())
}
