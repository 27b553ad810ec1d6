package runlog

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/sugos/sugos/internal/model"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRun(id string, started time.Time) *model.RunResult {
	return &model.RunResult{
		RunID:       id,
		Tenant:      "acme",
		Status:      model.StatusPartial,
		Identifiers: []string{"111", "222"},
		ArchiveName: "sugos_export_acme_20250314_092653.zip",
		ArchiveSize: 2048,
		Total:       2,
		Processed:   1,
		Errors:      1,
		Items: []model.ItemOutcome{
			{Index: 0, Owner: "111", Kind: model.KindAttachment, Name: "report.docx", Sequence: 1,
				Path: "111/111-1.docx", Size: 10, SHA256: "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
				Terminal: model.TerminalAttachment, Success: true},
			{Index: 1, Owner: "111", Kind: model.KindLink, Name: "page", Sequence: 2,
				Path: "111/111-2_main.html", Size: 5, Terminal: model.TerminalMainFallback, Success: true,
				Fallback: true, Message: "conversion failed"},
		},
		Links: model.LinkIndex{
			{Identifier: "111", Orders: []model.OrderLinks{{OrderID: "O1", Links: []model.LinkRef{{Name: "page", URL: "https://x/p"}}}}},
			{Identifier: "222", Orders: []model.OrderLinks{}},
		},
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
	}
}

func TestRecordAndGet(t *testing.T) {
	// WHAT: A recorded run reads back with its items, their digests and the link index.
	s := openMemory(t)
	ctx := context.Background()
	start := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	run := sampleRun("r1", start)

	require.NoError(t, s.Record(ctx, run))

	got, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, run.Status, got.Status)
	assert.Equal(t, run.Identifiers, got.Identifiers)
	assert.Equal(t, run.Items, got.Items)
	assert.Equal(t, run.Links, got.Links)
	assert.True(t, got.StartedAt.Equal(start))
	assert.Equal(t, 2048, got.ArchiveSize)
	assert.Nil(t, got.Archive)
}

func TestGetUnknown(t *testing.T) {
	s := openMemory(t)
	_, err := s.Get(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrNotFound), "err = %v", err)
}

func TestRecordReplaces(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	run := sampleRun("r1", time.Now().UTC())
	require.NoError(t, s.Record(ctx, run))

	run.Status = model.StatusOK
	run.Items = run.Items[:1]
	require.NoError(t, s.Record(ctx, run))

	got, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusOK, got.Status)
	assert.Len(t, got.Items, 1)
}

func TestList_NewestFirst(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, s.Record(ctx, sampleRun(id, base.Add(time.Duration(i)*time.Hour))))
	}

	runs, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].RunID)
	assert.Equal(t, "mid", runs[1].RunID)
	assert.Empty(t, runs[0].Items)
}

func TestRecord_NoItemsNoLinks(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	run := &model.RunResult{RunID: "empty", Tenant: "acme", Status: model.StatusNoIdentifiers,
		StartedAt: time.Now(), FinishedAt: time.Now()}
	require.NoError(t, s.Record(ctx, run))

	got, err := s.Get(ctx, "empty")
	require.NoError(t, err)
	assert.Empty(t, got.Identifiers)
	assert.Empty(t, got.Links)
}

func TestOpen_FileWithMkdirAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "history.db")
	s, err := Open(path, WithMkdirAll(), WithBusyTimeout(5000))
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	require.NoError(t, err)

	var bt int
	require.NoError(t, s.db.QueryRow("PRAGMA busy_timeout").Scan(&bt))
	assert.Equal(t, 5000, bt)

	var fk int
	require.NoError(t, s.db.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)

	var mode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestIsBusy(t *testing.T) {
	assert.False(t, isBusy(nil))
	assert.False(t, isBusy(errors.New("other")))
	assert.True(t, isBusy(errors.New("prefix: SQLITE_BUSY (5)")))
	assert.True(t, isBusy(errors.New("database is locked")))
}

func TestRunTx_RollbackOnError(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	boom := errors.New("boom")
	err := runTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO runs (run_id, tenant, status, started_at, finished_at) VALUES ('x','t','ok',0,0)`); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&n))
	assert.Equal(t, 0, n)
}
