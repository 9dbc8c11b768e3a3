package media

import (
	"testing"
)

func init() {
	metadataFactories = append(metadataFactories, memMetadataFactory{})
}

type memMetadataFactory struct{}

func (memMetadataFactory) NewMetadataStore(t *testing.T) (MetadataStore, error) {
	return NewMemMetadata()
}
