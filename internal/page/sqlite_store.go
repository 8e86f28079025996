package page

import (
	"database/sql"

	"github.com/cockroachdb/errors"

	// Pure Go SQLite driver (no CGO)
	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS pages (
	blkno INTEGER PRIMARY KEY,
	data  BLOB NOT NULL
)`

// SQLiteStore keeps one row per page in a SQLite database. It lets a directory live
// inside an existing SQLite file next to ordinary tables.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens the database at dsn and creates the pages table if needed.
func OpenSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "page: open sqlite")
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "page: create pages table")
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) NumBlocks() (BlockNumber, error) {
	var n sql.NullInt64
	if err := s.db.QueryRow(`SELECT MAX(blkno) + 1 FROM pages`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "page: count sqlite pages")
	}
	return BlockNumber(n.Int64), nil
}

func (s *SQLiteStore) ReadPage(blkno BlockNumber, dst Page) error {
	var data []byte
	err := s.db.QueryRow(`SELECT data FROM pages WHERE blkno = ?`, int64(blkno)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		clear(dst)
		return nil
	}
	if err != nil {
		return err
	}
	if len(data) != Size {
		return errors.AssertionFailedf("page: sqlite block %d has %d bytes", blkno, len(data))
	}
	copy(dst, data)
	return nil
}

func (s *SQLiteStore) WritePage(blkno BlockNumber, src Page) error {
	_, err := s.db.Exec(
		`INSERT INTO pages (blkno, data) VALUES (?, ?) ON CONFLICT(blkno) DO UPDATE SET data = excluded.data`,
		int64(blkno), []byte(src[:Size]),
	)
	return err
}

// Sync is a no-op; every write is its own committed statement.
func (s *SQLiteStore) Sync() error { return nil }

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
