package media

import (
	"testing"
)

func init() {
	storerFactories = append(storerFactories, memstoreFactory{})
}

type memstoreFactory struct{}

func (memstoreFactory) NewStorer(t *testing.T) (Storer, error) {
	return NewMemstore()
}
