package ports

// OutputVerifier checks that the files a build reported are on disk.
type OutputVerifier interface {
	// VerifyOutputs reports whether every output, relative to dir, exists.
	VerifyOutputs(dir string, outputs []string) (bool, error)
}
