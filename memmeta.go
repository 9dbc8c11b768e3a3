package media

import (
	"context"

	memdb "github.com/hashicorp/go-memdb"
)

var (
	imageSchema = &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			"image": &memdb.TableSchema{
				Name: "image",
				Indexes: map[string]*memdb.IndexSchema{
					"id": &memdb.IndexSchema{
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
					"key": &memdb.IndexSchema{
						Name:    "key",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Key"},
					},
				},
			},
		},
	}
)

// MemMetadata is an in-memory MetadataStore. Write transactions in memdb
// are serialized, so the lookup-then-delete in Delete is atomic.
type MemMetadata struct {
	db *memdb.MemDB
}

// NewMemMetadata returns an empty MemMetadata.
func NewMemMetadata() (*MemMetadata, error) {
	db, err := memdb.NewMemDB(imageSchema)
	if err != nil {
		return nil, err
	}
	return &MemMetadata{db: db}, nil
}

func (m *MemMetadata) Insert(ctx context.Context, img UploadedImage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	txn := m.db.Txn(true)
	defer txn.Abort()
	for index, val := range map[string]string{"id": img.ID, "key": img.Key} {
		exists, err := txn.First("image", index, val)
		if err != nil {
			return storageErr("insert", img.ID, err)
		}
		if exists != nil {
			return ErrDuplicateKey
		}
	}
	rec := img
	if err := txn.Insert("image", &rec); err != nil {
		return storageErr("insert", img.ID, err)
	}
	txn.Commit()
	return nil
}

func (m *MemMetadata) Get(ctx context.Context, id string) (UploadedImage, error) {
	txn := m.db.Txn(false)
	res, err := txn.First("image", "id", id)
	if err != nil {
		return UploadedImage{}, storageErr("get", id, err)
	}
	if res == nil {
		return UploadedImage{}, ErrNotFound
	}
	return *res.(*UploadedImage), nil
}

func (m *MemMetadata) List(ctx context.Context) ([]UploadedImage, error) {
	txn := m.db.Txn(false)
	it, err := txn.Get("image", "id")
	if err != nil {
		return nil, storageErr("list", "", err)
	}
	imgs := []UploadedImage{}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		imgs = append(imgs, *obj.(*UploadedImage))
	}
	sortNewestFirst(imgs)
	return imgs, nil
}

func (m *MemMetadata) Delete(ctx context.Context, id string) error {
	txn := m.db.Txn(true)
	defer txn.Abort()
	exists, err := txn.First("image", "id", id)
	if err != nil {
		return storageErr("delete", id, err)
	}
	if exists == nil {
		return ErrNotFound
	}
	if err := txn.Delete("image", exists); err != nil {
		return storageErr("delete", id, err)
	}
	txn.Commit()
	return nil
}
