package patch

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docfill/internal/docid"
	"docfill/internal/pinyin"
	"docfill/internal/storage"
	"docfill/internal/storage/sqlite"
)

func newTable(t *testing.T, rows ...string) *sqlite.Repository {
	t.Helper()
	ctx := context.Background()
	r, closeFn, err := sqlite.NewRepository(ctx, sqlite.Config{DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(closeFn)
	require.NoError(t, sqlite.EnsureTable(ctx, r, storage.Schema{Table: "meta"}))
	for _, v := range rows {
		_, err := r.Exec(ctx, "INSERT INTO meta (id, journal_name, year, phase, doc_id) VALUES "+v)
		require.NoError(t, err)
	}
	return r
}

func docIDs(t *testing.T, r *sqlite.Repository) map[int64]string {
	t.Helper()
	rows, err := r.SQL().Query("SELECT id, COALESCE(doc_id, '') FROM meta ORDER BY id")
	require.NoError(t, err)
	defer rows.Close()
	out := map[int64]string{}
	for rows.Next() {
		var id int64
		var d string
		require.NoError(t, rows.Scan(&id, &d))
		out[id] = d
	}
	require.NoError(t, rows.Err())
	return out
}

func newPatcher(r storage.Repository, pageSize int) *Patcher {
	return New(r, docid.NewGenerator(pinyin.New(nil)), Options{
		Schema:   storage.Schema{Table: "meta"},
		PageSize: pageSize,
	})
}

// TestPatch_SharedPrefix patches two rows of the same journal: identifiers
// differ only in the trailing sequence number.
func TestPatch_SharedPrefix(t *testing.T) {
	t.Parallel()

	r := newTable(t,
		"(1, '生物学', '2022', '1', NULL)",
		"(2, '生物学', '2022', '2', '')",
	)

	rep, err := newPatcher(r, 0).Patch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Scanned)
	assert.Equal(t, 2, rep.Updated)
	assert.Equal(t, 0, rep.Anomalies)
	assert.Equal(t, map[int64]string{1: "SWX2022011", 2: "SWX2022022"}, docIDs(t, r))
}

// TestPatch_NonPositiveIDs pages from the lowest possible key, so rows with
// id 0 or a negative id are patched as well.
func TestPatch_NonPositiveIDs(t *testing.T) {
	t.Parallel()

	r := newTable(t,
		"(0, '生物学', '2022', '1', NULL)",
		"(-5, '生物学', '2022', '1', NULL)",
		"(3, '生物学', '2022', '1', '')",
	)

	rep, err := newPatcher(r, 1).Patch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Scanned)
	assert.Equal(t, 3, rep.Updated)
	assert.Equal(t, map[int64]string{-5: "SWX2022011", 0: "SWX2022012", 3: "SWX2022013"}, docIDs(t, r))
}

func TestPatch_SkipsRowsWithDocID(t *testing.T) {
	t.Parallel()

	r := newTable(t,
		"(1, '材料', '2023', '4', 'KEEP')",
		"(2, '材料', '2023', 'nan', NULL)",
		"(3, NULL, NULL, NULL, NULL)",
	)

	rep, err := newPatcher(r, 0).Patch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Updated)
	got := docIDs(t, r)
	assert.Equal(t, "KEEP", got[1])
	assert.Equal(t, "CL2023001", got[2])
	// NULL columns scan as empty strings; an empty issue pads to "00".
	assert.Equal(t, "001", got[3])
}

// TestPatch_Paging uses a page size smaller than the row count so several
// keyset pages run inside the single transaction.
func TestPatch_Paging(t *testing.T) {
	t.Parallel()

	var rows []string
	for i := 1; i <= 25; i++ {
		rows = append(rows, fmt.Sprintf("(%d, '物理', '2020', '%d', NULL)", i, i%12))
	}
	r := newTable(t, rows...)

	rep, err := newPatcher(r, 4).Patch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 25, rep.Scanned)
	assert.Equal(t, 25, rep.Updated)

	got := docIDs(t, r)
	assert.Equal(t, "WL2020011", got[1])
	assert.Equal(t, "WL20200024", got[24])
	assert.Equal(t, "WL20200125", got[25])
}

// TestPatch_FailureRollsBackEverything makes the update of row 2 fail; row 1
// must not keep its identifier.
func TestPatch_FailureRollsBackEverything(t *testing.T) {
	t.Parallel()

	r := newTable(t,
		"(1, '生物学', '2022', '1', NULL)",
		"(2, '生物学', '2022', '2', NULL)",
	)
	_, err := r.Exec(context.Background(), `CREATE TRIGGER fail_two BEFORE UPDATE ON meta
		WHEN NEW.id = 2 BEGIN SELECT RAISE(ABORT, 'boom'); END`)
	require.NoError(t, err)

	rep, err := newPatcher(r, 0).Patch(context.Background())
	require.Error(t, err)

	var ue *UpdateError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, int64(2), ue.ID)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, 2, rep.Scanned)
	assert.Equal(t, 1, rep.Updated)

	assert.Equal(t, map[int64]string{1: "", 2: ""}, docIDs(t, r))
}

// TestPatch_ZeroRowsAffected counts an update that touched nothing as an
// anomaly without failing the run.
func TestPatch_ZeroRowsAffected(t *testing.T) {
	t.Parallel()

	r := newTable(t,
		"(1, '材料', '2023', '4', NULL)",
		"(2, '材料', '2023', '5', NULL)",
	)
	_, err := r.Exec(context.Background(), `CREATE TRIGGER skip_one BEFORE UPDATE ON meta
		WHEN NEW.id = 1 BEGIN SELECT RAISE(IGNORE); END`)
	require.NoError(t, err)

	rep, err := newPatcher(r, 0).Patch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Anomalies)
	assert.Equal(t, 1, rep.Updated)
	assert.Equal(t, map[int64]string{1: "", 2: "CL2023052"}, docIDs(t, r))
}

func TestPatch_QueriesFollowDialect(t *testing.T) {
	t.Parallel()

	p := New(fakeRepo{storage.MSSQLDialect{}}, nil, Options{Schema: storage.Schema{Table: "dbo.meta"}, PageSize: 50})
	assert.Equal(t,
		"SELECT TOP (50) [id], [journal_name], [year], [phase] FROM [dbo].[meta] WHERE ([doc_id] IS NULL OR [doc_id] = '') AND [id] > @p1 ORDER BY [id]",
		p.selectSQL)
	assert.Equal(t, "UPDATE [dbo].[meta] SET [doc_id] = @p1 WHERE [id] = @p2", p.updateSQL)

	p = New(fakeRepo{storage.PostgresDialect{}}, nil, Options{Schema: storage.Schema{Table: "meta"}, PageSize: 50})
	assert.Equal(t,
		`SELECT "id", "journal_name", "year", "phase" FROM "meta" WHERE ("doc_id" IS NULL OR "doc_id" = '') AND "id" > $1 ORDER BY "id" LIMIT 50`,
		p.selectSQL)
}

type fakeRepo struct{ d storage.Dialect }

func (f fakeRepo) BeginTx(ctx context.Context) (storage.Tx, error) { return nil, errors.New("no tx") }
func (f fakeRepo) Exec(ctx context.Context, q string, args ...any) (int64, error) {
	return 0, nil
}
func (f fakeRepo) Dialect() storage.Dialect { return f.d }
func (f fakeRepo) Close()                   {}

func TestPatch_BeginTxError(t *testing.T) {
	t.Parallel()

	_, err := New(fakeRepo{storage.PostgresDialect{}}, nil, Options{Schema: storage.Schema{Table: "meta"}}).Patch(context.Background())
	require.EqualError(t, err, "no tx")
}
