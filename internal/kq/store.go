package kq

import "context"

// SharedStore is a key/value namespace visible to both the producer and its
// consumers. A single Set fully replaces the previous value; readers never
// observe a partially written value.
type SharedStore interface {
	// Get returns the value under key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set replaces the value under key.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the store.
	Close() error
}

// ChangeNotifier is implemented by stores that can observe writes as they
// happen. The returned channel receives a value after every write to key and
// is closed when ctx ends.
type ChangeNotifier interface {
	Watch(ctx context.Context, key string) (<-chan struct{}, error)
}
