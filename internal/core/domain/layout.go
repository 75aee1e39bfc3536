package domain

import "path/filepath"

const (
	// KilnDirName is the name of the internal workspace directory.
	KilnDirName = ".kiln"

	// CacheDirName is the name of the artifact cache directory.
	CacheDirName = "cache"

	// BlobDirName is the name of the directory holding compressed artifact blobs.
	BlobDirName = "blobs"

	// IndexFileName is the name of the artifact index database.
	IndexFileName = "index.db"

	// ConfigFileName is the name of the project configuration file.
	ConfigFileName = "kiln.yaml"

	// MetafileName is the name of the build metadata file written next to the outputs.
	MetafileName = "metafile.json"

	// DefaultOutDir is the directory target outputs are written under when a target does not set one.
	DefaultOutDir = "dist"

	// DirPerm is the default permission for directories (rwxr-x---).
	DirPerm = 0o750

	// FilePerm is the default permission for files (rw-r--r--).
	FilePerm = 0o644
)

// DefaultCachePath returns the default path for the artifact cache.
// It joins .kiln and cache.
func DefaultCachePath() string {
	return filepath.Join(KilnDirName, CacheDirName)
}

// DefaultBlobPath returns the default path for artifact blobs.
func DefaultBlobPath() string {
	return filepath.Join(KilnDirName, CacheDirName, BlobDirName)
}

// DefaultIndexPath returns the default path for the artifact index database.
func DefaultIndexPath() string {
	return filepath.Join(KilnDirName, CacheDirName, IndexFileName)
}
