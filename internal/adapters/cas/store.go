// Package cas implements the persistent artifact store: a SQLite index of
// cache keys and zstd-compressed artifact blobs on disk.
package cas

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"

	_ "modernc.org/sqlite" // registers the sqlite driver
)

var _ ports.ArtifactStore = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS artifacts (
	key TEXT PRIMARY KEY,
	module TEXT NOT NULL,
	stage TEXT NOT NULL,
	output_hash TEXT NOT NULL,
	size INTEGER NOT NULL,
	created INTEGER NOT NULL,
	accessed INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_artifacts_accessed ON artifacts(accessed);
`

// Store implements ports.ArtifactStore under <root>/.kiln/cache.
type Store struct {
	db      *sql.DB
	blobDir string
	enc     *zstd.Encoder
	dec     *zstd.Decoder
	now     func() time.Time
}

// Open opens or creates the artifact store for the project at root.
// Failures are fatal to a build and wrap domain.ErrStoreUnavailable.
func Open(root string) (*Store, error) {
	return open(filepath.Join(root, domain.DefaultCachePath()))
}

func open(cacheDir string) (*Store, error) {
	blobDir := filepath.Join(cacheDir, domain.BlobDirName)
	if err := os.MkdirAll(blobDir, domain.DirPerm); err != nil {
		return nil, unavailable(err, blobDir)
	}

	indexPath := filepath.Join(cacheDir, domain.IndexFileName)
	db, err := sql.Open("sqlite", indexPath)
	if err != nil {
		return nil, unavailable(err, indexPath)
	}
	// A single connection serializes writers; sqlite rejects concurrent ones.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, unavailable(err, indexPath)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		_ = db.Close()
		return nil, unavailable(err, indexPath)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = db.Close()
		_ = enc.Close()
		return nil, unavailable(err, indexPath)
	}

	return &Store{db: db, blobDir: blobDir, enc: enc, dec: dec, now: time.Now}, nil
}

func unavailable(err error, path string) error {
	return errors.Join(domain.ErrStoreUnavailable, zerr.With(err, "path", path))
}

func corrupted(err error, key string) error {
	return errors.Join(domain.ErrCacheCorruption, zerr.With(err, "key", key))
}

// Close releases the index database and the codecs.
func (s *Store) Close() error {
	s.dec.Close()
	encErr := s.enc.Close()
	return errors.Join(s.db.Close(), encErr)
}

// Get returns the artifact stored under key, or domain.ErrCacheMiss.
func (s *Store) Get(ctx context.Context, key string) (*domain.BuildArtifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var outputHash string
	err := s.db.QueryRowContext(ctx, "SELECT output_hash FROM artifacts WHERE key = ?", key).Scan(&outputHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCacheMiss
	}
	if err != nil {
		return nil, unavailable(err, key)
	}

	//nolint:gosec // Path is built from the store directory and a hex key
	compressed, err := os.ReadFile(s.blobPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		_, _ = s.db.ExecContext(ctx, "DELETE FROM artifacts WHERE key = ?", key)
		return nil, domain.ErrCacheMiss
	}
	if err != nil {
		return nil, unavailable(err, key)
	}

	data, err := s.dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, corrupted(err, key)
	}
	var artifact domain.BuildArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, corrupted(err, key)
	}
	if artifact.InputHash != key || artifact.OutputHash != outputHash {
		return nil, zerr.With(zerr.Wrap(domain.ErrCacheCorruption, "hash mismatch"), "key", key)
	}

	_, _ = s.db.ExecContext(ctx, "UPDATE artifacts SET accessed = ? WHERE key = ?", s.now().UnixNano(), key)
	return &artifact, nil
}

// Put stores the artifact under its input hash. The blob is written to a
// temporary file and renamed into place, so a cancelled or failed write leaves
// no partial entry. An existing entry is kept as is.
func (s *Store) Put(ctx context.Context, artifact *domain.BuildArtifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := artifact.InputHash
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM artifacts WHERE key = ?", key).Scan(&exists)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return unavailable(err, key)
	}

	data, err := json.Marshal(artifact)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to marshal artifact"), "key", key)
	}
	compressed := s.enc.EncodeAll(data, nil)

	target := s.blobPath(key)
	if err := s.writeBlob(ctx, target, compressed); err != nil {
		return err
	}

	now := s.now().UnixNano()
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO artifacts (key, module, stage, output_hash, size, created, accessed)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		key, artifact.ModuleID, string(artifact.Stage), artifact.OutputHash, len(compressed), now, now,
	)
	if err != nil {
		return unavailable(err, key)
	}
	return nil
}

func (s *Store) writeBlob(ctx context.Context, target string, data []byte) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return unavailable(err, dir)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return unavailable(err, dir)
	}
	tmpName := tmp.Name()
	discard := func(cause error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return cause
	}

	if _, err := tmp.Write(data); err != nil {
		return discard(unavailable(err, target))
	}
	if err := tmp.Sync(); err != nil {
		return discard(unavailable(err, target))
	}
	if err := ctx.Err(); err != nil {
		return discard(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return unavailable(err, target)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return unavailable(err, target)
	}
	return nil
}

// Delete evicts the entry stored under key. Deleting a missing key is a no-op.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM artifacts WHERE key = ?", key); err != nil {
		return unavailable(err, key)
	}
	if err := os.Remove(s.blobPath(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return unavailable(err, key)
	}
	return nil
}

// Prune evicts the least recently accessed entries until the compressed
// blobs total at most maxBytes.
func (s *Store) Prune(ctx context.Context, maxBytes int64) (int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, size FROM artifacts ORDER BY accessed DESC, key ASC")
	if err != nil {
		return 0, unavailable(err, s.blobDir)
	}

	var total int64
	var evict []string
	for rows.Next() {
		var key string
		var size int64
		if err := rows.Scan(&key, &size); err != nil {
			_ = rows.Close()
			return 0, unavailable(err, s.blobDir)
		}
		total += size
		if total > maxBytes {
			evict = append(evict, key)
		}
	}
	if err := errors.Join(rows.Err(), rows.Close()); err != nil {
		return 0, unavailable(err, s.blobDir)
	}

	for i, key := range evict {
		if err := s.Delete(ctx, key); err != nil {
			return i, err
		}
	}
	return len(evict), nil
}

func (s *Store) blobPath(key string) string {
	prefix := "00"
	if len(key) >= 2 {
		prefix = key[:2]
	}
	return filepath.Join(s.blobDir, prefix, key+".zst")
}
