package storage

// Store is the interface required from the backend holding block-file payloads.
// Payloads are immutable once created; a name is never reused while any
// reference to it exists.
type Store interface {
	// Create writes a new payload under the name.
	Create(name string, data []byte) error

	// Size returns the byte size of the payload.
	Size(name string) (int64, error)

	// ReadAt fills p with payload bytes starting at the offset.
	ReadAt(name string, p []byte, off int64) error

	// Remove deletes the payload.
	Remove(name string) error
}
