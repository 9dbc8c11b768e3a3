package media

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"

	memdb "github.com/hashicorp/go-memdb"
)

var (
	blobSchema = &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			"blob": &memdb.TableSchema{
				Name: "blob",
				Indexes: map[string]*memdb.IndexSchema{
					"id": &memdb.IndexSchema{
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Key"},
					},
				},
			},
		},
	}
)

// Memblob is an in-memory blob, stored in the Memstore. Contents is never
// mutated after insertion; an overwrite inserts a new Memblob.
type Memblob struct {
	Key      string
	Contents []byte
}

// Memstore is an in-memory implementation of the Storer interface, best
// suited for testing.
type Memstore struct {
	db *memdb.MemDB
}

// NewMemstore returns a ready-to-use Memstore, which can be used as a Storer.
func NewMemstore() (*Memstore, error) {
	db, err := memdb.NewMemDB(blobSchema)
	if err != nil {
		return nil, err
	}
	return &Memstore{
		db: db,
	}, nil
}

// Upload reads all of data and stores it under key, replacing any
// existing Memblob.
func (m *Memstore) Upload(ctx context.Context, key string, data io.Reader) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	contents, err := ioutil.ReadAll(data)
	if err != nil {
		return storageErr("upload", key, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	txn := m.db.Txn(true)
	defer txn.Abort()
	err = txn.Insert("blob", &Memblob{Key: key, Contents: contents})
	if err != nil {
		return storageErr("upload", key, err)
	}
	txn.Commit()
	return nil
}

func (m *Memstore) get(key string) (*Memblob, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	txn := m.db.Txn(false)
	res, err := txn.First("blob", "id", key)
	if err != nil {
		return nil, storageErr("lookup", key, err)
	}
	if res == nil {
		return nil, ErrNotFound
	}
	return res.(*Memblob), nil
}

// Download returns a reader over the Memblob stored at key.
func (m *Memstore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	b, err := m.get(key)
	if err != nil {
		return nil, err
	}
	return ioutil.NopCloser(bytes.NewReader(b.Contents)), nil
}

// Delete will remove the Memblob stored at key from m.
func (m *Memstore) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	txn := m.db.Txn(true)
	defer txn.Abort()
	exists, err := txn.First("blob", "id", key)
	if err != nil {
		return storageErr("delete", key, err)
	}
	if exists == nil {
		return ErrNotFound
	}
	err = txn.Delete("blob", exists)
	if err != nil {
		return storageErr("delete", key, err)
	}
	txn.Commit()
	return nil
}

func (m *Memstore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := m.get(key)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (m *Memstore) Size(ctx context.Context, key string) (int64, error) {
	b, err := m.get(key)
	if err != nil {
		return 0, err
	}
	return int64(len(b.Contents)), nil
}
