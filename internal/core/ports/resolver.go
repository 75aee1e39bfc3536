package ports

//go:generate mockgen -destination=mocks/resolver_mock.go -package=mocks -source=resolver.go

// EntryResolver expands entry patterns into concrete files.
type EntryResolver interface {
	// ResolveEntries resolves glob patterns relative to root into sorted absolute paths.
	// Globs never match below the root-relative directories in ignores.
	ResolveEntries(patterns []string, root string, ignores []string) ([]string, error)
}

// FileSystem is the read-only view of the project the module graph is built from.
type FileSystem interface {
	// ReadFile returns the content of a file.
	ReadFile(path string) ([]byte, error)
	// IsFile reports whether path names a regular file.
	IsFile(path string) bool
	// IsDir reports whether path names a directory.
	IsDir(path string) bool
}
