package objectstore

import (
	"bytes"
	"context"
	"io"
	"sync"
)

// MemoryStore keeps blobs in process memory. It backs local runs with
// storage_backend=memory and the service tests, which use the Fail hooks
// to inject store failures.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte

	// FailPut, FailGet and FailDelete, when set, are consulted before each
	// call; a non-nil result is returned as is.
	FailPut    func(locator string) error
	FailGet    func(locator string) error
	FailDelete func(locator string) error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (m *MemoryStore) Put(ctx context.Context, locator string, r io.Reader, size int64, contentType string) error {
	if m.FailPut != nil {
		if err := m.FailPut(locator); err != nil {
			return err
		}
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return unavailable("put", locator, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[locator] = b
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, locator string) (io.ReadCloser, error) {
	if m.FailGet != nil {
		if err := m.FailGet(locator); err != nil {
			return nil, err
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[locator]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *MemoryStore) Delete(ctx context.Context, locator string) error {
	if m.FailDelete != nil {
		if err := m.FailDelete(locator); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[locator]; !ok {
		return ErrObjectNotFound
	}
	delete(m.blobs, locator)
	return nil
}

// Has reports whether a blob exists under locator.
func (m *MemoryStore) Has(locator string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blobs[locator]
	return ok
}

// Len is the number of stored blobs.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}
