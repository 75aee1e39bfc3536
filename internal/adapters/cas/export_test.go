package cas

import "time"

// OpenDir opens a store directly in cacheDir.
func OpenDir(cacheDir string) (*Store, error) {
	return open(cacheDir)
}

// SetClock replaces the time source used for access ordering.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// BlobPath exposes the blob location of key.
func (s *Store) BlobPath(key string) string {
	return s.blobPath(key)
}
