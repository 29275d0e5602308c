package session

import "sync"

// BlobStore is the in-memory content-addressed KV the server uses to
// checkpoint conversation state. It is session-local and dropped with the
// session; writes are idempotent.
type BlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewBlobStore creates an empty store.
func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: make(map[string][]byte)}
}

// Get returns the blob stored under the content address, if any.
func (b *BlobStore) Get(blobID []byte) ([]byte, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.blobs[string(blobID)]
	return data, ok
}

// Set stores blob bytes under the content address. Re-storing the same
// address is a no-op overwrite.
func (b *BlobStore) Set(blobID, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blobs[string(blobID)] = append([]byte(nil), data...)
}

// Len reports the number of stored blobs.
func (b *BlobStore) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.blobs)
}
