package memstore

import (
	"sync"

	"github.com/pkg/errors"
)

// MemStore simulates payload storage in memory.
type MemStore struct {
	mu   sync.Mutex
	data map[string][]byte

	// CreateErr, when set, makes Create fail after CreateBudget more
	// successful calls. Used to exercise failure paths in tests.
	CreateErr    error
	CreateBudget int

	// ReadErr, when set, makes every ReadAt fail.
	ReadErr error
}

// New returns new memstore.
func New() *MemStore {
	return &MemStore{
		data: map[string][]byte{},
	}
}

// Create writes a new payload under the name.
func (ms *MemStore) Create(name string, data []byte) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.CreateErr != nil {
		if ms.CreateBudget == 0 {
			return ms.CreateErr
		}
		ms.CreateBudget--
	}

	if _, exists := ms.data[name]; exists {
		return errors.Errorf("payload already exists: %s", name)
	}

	stored := make([]byte, len(data))
	copy(stored, data)
	ms.data[name] = stored
	return nil
}

// Size returns the byte size of the payload.
func (ms *MemStore) Size(name string) (int64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	data, exists := ms.data[name]
	if !exists {
		return 0, errors.Errorf("payload does not exist: %s", name)
	}
	return int64(len(data)), nil
}

// ReadAt fills p with payload bytes starting at the offset.
func (ms *MemStore) ReadAt(name string, p []byte, off int64) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.ReadErr != nil {
		return ms.ReadErr
	}

	data, exists := ms.data[name]
	if !exists {
		return errors.Errorf("payload does not exist: %s", name)
	}
	if off < 0 || off+int64(len(p)) > int64(len(data)) {
		return errors.Errorf("read of %d bytes at %d is out of payload %s of size %d",
			len(p), off, name, len(data))
	}
	copy(p, data[off:])
	return nil
}

// Remove deletes the payload.
func (ms *MemStore) Remove(name string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	delete(ms.data, name)
	return nil
}

// Count returns the number of stored payloads.
func (ms *MemStore) Count() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	return len(ms.data)
}
