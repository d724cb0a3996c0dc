package etl

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/BartekS5/blobmigrate/pkg/logger"
	"github.com/BartekS5/blobmigrate/pkg/models"
)

const testSchema = `
CREATE TABLE DODocuments (Number INTEGER PRIMARY KEY, Entity TEXT, EntityId TEXT, FileId TEXT, Version INTEGER);
CREATE TABLE AccountFile (Id TEXT, AccountId TEXT, Version INTEGER, Data BLOB);
CREATE TABLE ContactFile (Id TEXT, ContactId TEXT, Version INTEGER, Data BLOB);
CREATE TABLE ContractFile (Id TEXT, ContractId TEXT, Version INTEGER, Data BLOB);
CREATE TABLE PTFileVersion (PTFile TEXT, PTVersion INTEGER, PTData BLOB);
`

func openSourceDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open("sqlite", filepath.Join(t.TempDir(), "source.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(testSchema)
	require.NoError(t, err)
	return db
}

func newTestPager(t *testing.T, db *sqlx.DB, pageSize int) *SQLPager {
	t.Helper()
	p, err := NewSQLPager(db, SQLite, models.DefaultCatalog(), pageSize, logger.Discard())
	require.NoError(t, err)
	return p
}

// addDirect registers a document for a direct-kind entity whose file row has
// fileVersion; the document itself points at docVersion.
func addDirect(t *testing.T, db *sqlx.DB, entity string, number int64, docVersion, fileVersion int64, data any) {
	t.Helper()
	owner := fmt.Sprintf("%s-owner-%d", entity, number)
	file := fmt.Sprintf("%s-file-%d", entity, number)
	_, err := db.Exec(`INSERT INTO DODocuments VALUES (?, ?, ?, ?, ?)`, number, entity+"File", owner, file, docVersion)
	require.NoError(t, err)
	_, err = db.Exec(fmt.Sprintf(`INSERT INTO %sFile (Id, %sId, Version, Data) VALUES (?, ?, ?, ?)`, entity, entity),
		file, owner, fileVersion, data)
	require.NoError(t, err)
}

func orderKeys(records []models.SourceRecord) []int64 {
	keys := make([]int64, len(records))
	for i, r := range records {
		keys[i] = r.OrderKey
	}
	return keys
}

func TestFetchPageScenario(t *testing.T) {
	db := openSourceDB(t)
	for n := int64(1); n <= 5; n++ {
		addDirect(t, db, "Account", n, 1, 1, []byte(fmt.Sprintf("payload-%d", n)))
	}
	p := newTestPager(t, db, DefaultPageSize)

	records, err := p.FetchPage(context.Background(), "Account", 0)
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, orderKeys(records))

	first := records[0]
	assert.Equal(t, "Account", first.EntityType)
	assert.Equal(t, "Account-owner-1", first.EntityID)
	assert.Equal(t, "Account-file-1", first.FileID)
	assert.Equal(t, int64(1), first.Version)
	assert.Equal(t, []byte("payload-1"), first.Payload)
}

func TestFetchPageExcludesIneligibleRows(t *testing.T) {
	db := openSourceDB(t)
	addDirect(t, db, "Account", 1, 1, 1, []byte("ok"))
	addDirect(t, db, "Account", 2, 1, 1, []byte{})    // empty payload
	addDirect(t, db, "Account", 3, 1, 1, nil)         // null payload
	addDirect(t, db, "Account", 4, 2, 1, []byte("x")) // stale version
	addDirect(t, db, "Contact", 5, 1, 1, []byte("other entity"))
	_, err := db.Exec(`INSERT INTO DODocuments VALUES (6, 'AccountFile', NULL, 'Account-file-6', 1)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO AccountFile VALUES ('Account-file-6', NULL, 1, X'01')`)
	require.NoError(t, err)
	addDirect(t, db, "Account", 7, 3, 3, []byte("ok too"))

	p := newTestPager(t, db, DefaultPageSize)
	records, err := p.FetchPage(context.Background(), "Account", 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 7}, orderKeys(records))
	for _, r := range records {
		assert.NotEmpty(t, r.Payload)
	}

	totals, err := p.Remaining(context.Background(), "Account", 0)
	require.NoError(t, err)
	assert.Equal(t, Totals{Rows: 2, Bytes: int64(len("ok") + len("ok too"))}, totals)
}

func TestFetchPageMonotonicAcrossCursors(t *testing.T) {
	db := openSourceDB(t)
	var all []int64
	for n := int64(3); n <= 60; n += 3 + n%4 {
		addDirect(t, db, "Contact", n, 1, 1, []byte{byte(n)})
		all = append(all, n)
	}
	p := newTestPager(t, db, 4)

	for cursor := int64(0); cursor <= all[len(all)-1]+1; cursor++ {
		records, err := p.FetchPage(context.Background(), "Contact", cursor)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(records), 4)
		prev := cursor - 1
		for _, r := range records {
			assert.GreaterOrEqual(t, r.OrderKey, cursor)
			assert.Greater(t, r.OrderKey, prev)
			prev = r.OrderKey
		}
	}
}

func TestFetchPageWalksAllPages(t *testing.T) {
	db := openSourceDB(t)
	for n := int64(1); n <= 5; n++ {
		addDirect(t, db, "Account", n, 1, 1, []byte("abc"))
	}
	p := newTestPager(t, db, 2)
	ctx := context.Background()

	var pages [][]int64
	cursor := int64(0)
	for {
		records, err := p.FetchPage(ctx, "Account", cursor)
		require.NoError(t, err)
		if len(records) == 0 {
			break
		}
		pages = append(pages, orderKeys(records))
		cursor = records[len(records)-1].OrderKey + 1
	}
	assert.Equal(t, [][]int64{{1, 2}, {3, 4}, {5}}, pages)

	n, err := p.CountRemaining(ctx, "Account", 4)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestFetchPageVersionedJoin(t *testing.T) {
	db := openSourceDB(t)
	exec := func(q string, args ...any) {
		_, err := db.Exec(q, args...)
		require.NoError(t, err)
	}
	exec(`INSERT INTO ContractFile VALUES ('f1', 'c1', 2, X'00')`)
	exec(`INSERT INTO PTFileVersion VALUES ('f1', 1, ?)`, []byte("rev one"))
	exec(`INSERT INTO PTFileVersion VALUES ('f1', 2, ?)`, []byte("rev two"))
	exec(`INSERT INTO DODocuments VALUES (10, 'ContractFile', 'c1', 'f1', 2)`)

	// Document points at a revision with no stored payload.
	exec(`INSERT INTO ContractFile VALUES ('f2', 'c2', 1, X'00')`)
	exec(`INSERT INTO PTFileVersion VALUES ('f2', 1, NULL)`)
	exec(`INSERT INTO DODocuments VALUES (11, 'ContractFile', 'c2', 'f2', 1)`)

	// Document version has no revision row at all.
	exec(`INSERT INTO ContractFile VALUES ('f3', 'c3', 1, X'00')`)
	exec(`INSERT INTO PTFileVersion VALUES ('f3', 1, X'0102')`)
	exec(`INSERT INTO DODocuments VALUES (12, 'ContractFile', 'c3', 'f3', 5)`)

	p := newTestPager(t, db, DefaultPageSize)
	records, err := p.FetchPage(context.Background(), "Contract", 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(10), records[0].OrderKey)
	assert.Equal(t, int64(2), records[0].Version)
	assert.Equal(t, []byte("rev two"), records[0].Payload)
	assert.Equal(t, "Contract", records[0].EntityType)
}

func TestFetchPageRejectsDuplicateOrderKeys(t *testing.T) {
	db := openSourceDB(t)
	addDirect(t, db, "Account", 1, 1, 1, []byte("a"))
	// A second file row matching the same document fans the join out.
	_, err := db.Exec(`INSERT INTO AccountFile VALUES ('Account-file-1', 'Account-owner-1', 1, X'02')`)
	require.NoError(t, err)

	p := newTestPager(t, db, DefaultPageSize)
	_, err = p.FetchPage(context.Background(), "Account", 0)
	assert.ErrorIs(t, err, Config)
}

func TestPagerRejectsUnknownEntityBeforeIO(t *testing.T) {
	// A nil database would panic if the pager attempted any I/O.
	p, err := NewSQLPager(nil, SQLite, nil, DefaultPageSize, logger.Discard())
	require.NoError(t, err)

	_, err = p.FetchPage(context.Background(), "Account; DROP TABLE DODocuments", 0)
	assert.ErrorIs(t, err, Config)

	_, err = p.CountRemaining(context.Background(), "Lead", 0)
	assert.ErrorIs(t, err, Config)
}

func TestNewSQLPagerValidation(t *testing.T) {
	for _, size := range []int{0, -5, MaxPageSize + 1} {
		_, err := NewSQLPager(nil, SQLite, nil, size, logger.Discard())
		assert.ErrorIs(t, err, Config, "size %d", size)
	}

	bad := models.DefaultCatalog()
	bad.Entities["Bad Name"] = models.KindDirect
	_, err := NewSQLPager(nil, SQLite, bad, 10, logger.Discard())
	assert.ErrorIs(t, err, Config)
}

func TestPagerReleasesConnectionOnError(t *testing.T) {
	db := openSourceDB(t)
	addDirect(t, db, "Account", 1, 1, 1, []byte("a"))
	p := newTestPager(t, db, DefaultPageSize)

	_, err := p.FetchPage(context.Background(), "Account", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, db.Stats().InUse)

	_, err = db.Exec(`DROP TABLE AccountFile`)
	require.NoError(t, err)

	_, err = p.FetchPage(context.Background(), "Account", 0)
	assert.ErrorIs(t, err, Transient)
	assert.Equal(t, 0, db.Stats().InUse)

	_, err = p.Remaining(context.Background(), "Account", 0)
	assert.ErrorIs(t, err, Transient)
	assert.Equal(t, 0, db.Stats().InUse)
}
