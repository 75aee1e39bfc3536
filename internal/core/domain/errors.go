package domain

import "go.trai.ch/zerr"

var (
	// ErrAnalysisFallback is recorded when a module could not be scanned and
	// the conservative export map was assumed instead.
	ErrAnalysisFallback = zerr.New("export analysis fell back to conservative export map")

	// ErrCacheCorruption is returned when a stored artifact no longer matches its recorded hash.
	ErrCacheCorruption = zerr.New("cache entry is corrupted")

	// ErrCacheMiss is returned when a requested key is not present in the artifact store.
	ErrCacheMiss = zerr.New("cache miss")

	// ErrPluginTimeout is returned when a plugin hook exceeds its invocation deadline.
	ErrPluginTimeout = zerr.New("plugin hook timed out")

	// ErrPluginNonDeterministic is recorded when a plugin hook returns different
	// output for identical input.
	ErrPluginNonDeterministic = zerr.New("plugin hook is not deterministic")

	// ErrPluginLimitExceeded is returned when a sandboxed hook exceeds its cost or memory ceiling.
	ErrPluginLimitExceeded = zerr.New("plugin hook exceeded sandbox limit")

	// ErrPluginFailed is returned when a plugin hook returns an error.
	ErrPluginFailed = zerr.New("plugin hook failed")

	// ErrPluginPermissionDenied is returned when a sandboxed hook uses a capability it was not granted.
	ErrPluginPermissionDenied = zerr.New("plugin permission denied")

	// ErrInvalidPluginManifest is returned when a plugin manifest is incomplete or inconsistent.
	ErrInvalidPluginManifest = zerr.New("invalid plugin manifest")

	// ErrDuplicatePlugin is returned when two plugins share the same id.
	ErrDuplicatePlugin = zerr.New("plugin already registered")

	// ErrUnknownHook is returned when a hook name is not one of the defined hook points.
	ErrUnknownHook = zerr.New("unknown hook")

	// ErrHookPayloadMismatch is returned when a hook receives or returns a payload
	// of the wrong shape for its hook point.
	ErrHookPayloadMismatch = zerr.New("hook payload does not match hook point")

	// ErrGraphCycle is reported when the static import graph contains a cycle.
	ErrGraphCycle = zerr.New("import cycle detected")

	// ErrAmbiguousBoundary is recorded when a module is reached through paths
	// that classify it differently.
	ErrAmbiguousBoundary = zerr.New("ambiguous hot update boundary")

	// ErrStoreUnavailable is returned when the artifact store cannot be opened or written.
	ErrStoreUnavailable = zerr.New("artifact store unavailable")

	// ErrEntryMissing is returned when a configured entry module cannot be resolved.
	ErrEntryMissing = zerr.New("entry module not found")

	// ErrNoEntries is returned when the configuration declares no entry points.
	ErrNoEntries = zerr.New("no entry points configured")

	// ErrModuleNotFound is returned when a module id is not part of the graph.
	ErrModuleNotFound = zerr.New("module not found")

	// ErrResolveFailed is returned when an import specifier cannot be resolved.
	ErrResolveFailed = zerr.New("failed to resolve import")

	// ErrModuleReadFailed is returned when a module's source cannot be read.
	ErrModuleReadFailed = zerr.New("failed to read module")

	// ErrScanFailed is returned by scanners for input they cannot parse.
	ErrScanFailed = zerr.New("failed to scan module")

	// ErrTransformFailed is returned when a module transform fails.
	ErrTransformFailed = zerr.New("transform failed")

	// ErrTargetFailed is returned when a build target's pipeline fails.
	ErrTargetFailed = zerr.New("build target failed")

	// ErrUnknownTarget is returned when a requested target is not configured.
	ErrUnknownTarget = zerr.New("unknown build target")

	// ErrBuildFailed is returned when at least one build target failed.
	ErrBuildFailed = zerr.New("build failed")

	// ErrOutputWriteFailed is returned when an output file cannot be written.
	ErrOutputWriteFailed = zerr.New("failed to write output")

	// ErrOutputMissing is returned when a reported output is not on disk.
	ErrOutputMissing = zerr.New("build output missing")

	// ErrOutputPathOutsideRoot is returned when an output directory escapes the project root.
	ErrOutputPathOutsideRoot = zerr.New("output path is outside project root")

	// ErrConfigReadFailed is returned when the config file cannot be read.
	ErrConfigReadFailed = zerr.New("failed to read config file")

	// ErrConfigParseFailed is returned when the config file cannot be parsed.
	ErrConfigParseFailed = zerr.New("failed to parse config file")

	// ErrConfigNotFound is returned when no config file can be found.
	ErrConfigNotFound = zerr.New("could not find kiln.yaml")

	// ErrInvalidConfig is returned when the config file is syntactically valid but inconsistent.
	ErrInvalidConfig = zerr.New("invalid configuration")

	// ErrHashFailed is returned when a value cannot be canonically hashed.
	ErrHashFailed = zerr.New("failed to hash value")

	// ErrFailedToGetRoot is returned when the project root path cannot be determined.
	ErrFailedToGetRoot = zerr.New("failed to get absolute path of project root")

	// ErrUnknownLogLevel is returned when a log level name cannot be decoded.
	ErrUnknownLogLevel = zerr.New("unknown log level")
)
