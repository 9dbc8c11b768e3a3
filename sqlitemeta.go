package media

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

type schemaLayer int

const (
	schemaLayerEmpty schemaLayer = iota
	schemaLayer1                 // uploaded_images table, created_at index
)

// uriPathEscaper escapes the characters that end or alter the path part of
// an SQLite URI filename. SQLite decodes %HH escapes in the path.
var uriPathEscaper = strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23")

// SQLiteDSN returns the connection string used for an on-disk database.
func SQLiteDSN(path string) string {
	return "file:" + uriPathEscaper.Replace(path) + "?_foreign_keys=1&_journal_mode=wal&_sync=1&_busy_timeout=20000"
}

// SQLiteMetadata is a MetadataStore backed by a SQLite database.
type SQLiteMetadata struct {
	db *sql.DB
}

// OpenSQLiteMetadata opens the database at dsn and brings its schema up to
// date.
func OpenSQLiteMetadata(ctx context.Context, dsn string) (*SQLiteMetadata, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, storageErr("open database", "", err)
	}
	// sqlite serializes writers anyway; one connection avoids SQLITE_BUSY
	// and keeps shared-cache in-memory databases alive
	db.SetMaxOpenConns(1)
	m := &SQLiteMetadata{db: db}
	if err := m.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return m, nil
}

func (m *SQLiteMetadata) layer(ctx context.Context) (schemaLayer, error) {
	var v int
	if err := m.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, storageErr("read schema version", "", err)
	}
	return schemaLayer(v), nil
}

func (m *SQLiteMetadata) migrate(ctx context.Context) error {
	layer, err := m.layer(ctx)
	if err != nil {
		return err
	}
	switch layer {
	case schemaLayerEmpty:
		if err := m.schemaVersionOne(ctx); err != nil {
			return err
		}
		fallthrough
	case schemaLayer1:
		// up to date
		return nil
	default:
		return errors.Errorf("database schema version %d is newer than this binary", layer)
	}
}

func (m *SQLiteMetadata) schemaVersionOne(ctx context.Context) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("migrate", "", err)
	}
	defer tx.Rollback()
	_, err = tx.ExecContext(ctx, `
	CREATE TABLE uploaded_images (

		id                TEXT    NOT NULL PRIMARY KEY,
		storage_key       TEXT    NOT NULL UNIQUE,
		original_filename TEXT    NOT NULL,
		url               TEXT    NOT NULL,
		size              INTEGER NOT NULL,
		created_at        INTEGER NOT NULL, /* unix nanoseconds, UTC */

		CHECK(LENGTH(id) > 0),
		CHECK(LENGTH(storage_key) > 0),
		CHECK(size >= 0)
	);
	CREATE INDEX uploaded_images_by_created_at ON uploaded_images(created_at);
	PRAGMA user_version = 1;
	`)
	if err != nil {
		return storageErr("migrate", "", err)
	}
	return storageErr("migrate", "", tx.Commit())
}

// Close releases the underlying database handle.
func (m *SQLiteMetadata) Close() error {
	return m.db.Close()
}

func (m *SQLiteMetadata) Insert(ctx context.Context, img UploadedImage) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("insert", img.ID, err)
	}
	defer tx.Rollback()
	_, err = tx.ExecContext(ctx,
		"INSERT INTO uploaded_images (id, storage_key, original_filename, url, size, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		img.ID, img.Key, img.OriginalFilename, img.URL, img.Size, img.CreatedAt.UnixNano())
	if err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
			return ErrDuplicateKey
		}
		return storageErr("insert", img.ID, err)
	}
	return storageErr("insert", img.ID, tx.Commit())
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanImage(row rowScanner) (UploadedImage, error) {
	var img UploadedImage
	var created int64
	err := row.Scan(&img.ID, &img.Key, &img.OriginalFilename, &img.URL, &img.Size, &created)
	if err != nil {
		return UploadedImage{}, err
	}
	img.CreatedAt = time.Unix(0, created).UTC()
	return img, nil
}

func (m *SQLiteMetadata) Get(ctx context.Context, id string) (UploadedImage, error) {
	row := m.db.QueryRowContext(ctx,
		"SELECT id, storage_key, original_filename, url, size, created_at FROM uploaded_images WHERE id = ?", id)
	img, err := scanImage(row)
	if err == sql.ErrNoRows {
		return UploadedImage{}, ErrNotFound
	}
	if err != nil {
		return UploadedImage{}, storageErr("get", id, err)
	}
	return img, nil
}

// List returns every record ordered by created_at descending. There is no
// pagination; the table is expected to stay small.
func (m *SQLiteMetadata) List(ctx context.Context) ([]UploadedImage, error) {
	rows, err := m.db.QueryContext(ctx,
		"SELECT id, storage_key, original_filename, url, size, created_at FROM uploaded_images ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, storageErr("list", "", err)
	}
	defer rows.Close()
	imgs := []UploadedImage{}
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, storageErr("list", "", err)
		}
		imgs = append(imgs, img)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list", "", err)
	}
	return imgs, nil
}

func (m *SQLiteMetadata) Delete(ctx context.Context, id string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("delete", id, err)
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, "DELETE FROM uploaded_images WHERE id = ?", id)
	if err != nil {
		return storageErr("delete", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("delete", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return storageErr("delete", id, tx.Commit())
}
