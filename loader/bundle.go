package loader

import (
	"archive/zip"
	"database/sql"
	stderrors "errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/wippyai/luahost/errors"
)

// Bundle is a pre-opened container of script assets.
type Bundle interface {
	// Asset returns the bytes stored under name, or ok=false if absent.
	Asset(name string) (data []byte, ok bool, err error)
	Close() error
}

// OpenBundle opens a container by file extension: .zip for ZipBundle,
// .db/.sqlite/.sqlite3 for SQLiteBundle.
func OpenBundle(path string) (Bundle, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip":
		return OpenZipBundle(path)
	case ".db", ".sqlite", ".sqlite3":
		return OpenSQLiteBundle(path)
	default:
		return nil, errors.Configuration(errors.PhaseLoad, fmt.Sprintf("unknown bundle format %q", path), nil)
	}
}

// ZipBundle serves assets from a zip archive.
type ZipBundle struct {
	rc      *zip.ReadCloser
	entries map[string]*zip.File
}

// OpenZipBundle opens a zip archive and indexes its entries.
func OpenZipBundle(path string) (*ZipBundle, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, errors.Configuration(errors.PhaseLoad, fmt.Sprintf("open bundle %s", path), err)
	}
	b := &ZipBundle{rc: rc, entries: make(map[string]*zip.File, len(rc.File))}
	for _, f := range rc.File {
		b.entries[f.Name] = f
	}
	return b, nil
}

// Asset reads one entry.
func (b *ZipBundle) Asset(name string) ([]byte, bool, error) {
	f, ok := b.entries[name]
	if !ok {
		return nil, false, nil
	}
	r, err := f.Open()
	if err != nil {
		return nil, false, err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Close releases the archive.
func (b *ZipBundle) Close() error {
	return b.rc.Close()
}

// SQLiteBundle serves assets from an SQLite database with a table
// assets(name TEXT PRIMARY KEY, data BLOB).
type SQLiteBundle struct {
	db *sql.DB
}

const createAssets = `CREATE TABLE IF NOT EXISTS assets (
	name TEXT PRIMARY KEY,
	data BLOB NOT NULL
)`

// OpenSQLiteBundle opens (and if needed creates) an asset database.
func OpenSQLiteBundle(path string) (*SQLiteBundle, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Configuration(errors.PhaseLoad, fmt.Sprintf("open bundle %s", path), err)
	}
	if _, err := db.Exec(createAssets); err != nil {
		db.Close()
		return nil, errors.Configuration(errors.PhaseLoad, fmt.Sprintf("prepare bundle %s", path), err)
	}
	return &SQLiteBundle{db: db}, nil
}

// Asset reads one row.
func (b *SQLiteBundle) Asset(name string) ([]byte, bool, error) {
	var data []byte
	err := b.db.QueryRow(`SELECT data FROM assets WHERE name = ?`, name).Scan(&data)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Put stores or replaces an asset. Used by packaging tools and tests.
func (b *SQLiteBundle) Put(name string, data []byte) error {
	_, err := b.db.Exec(`INSERT INTO assets (name, data) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET data = excluded.data`, name, data)
	return err
}

// Close releases the database.
func (b *SQLiteBundle) Close() error {
	return b.db.Close()
}
