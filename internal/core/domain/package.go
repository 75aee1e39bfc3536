package domain

import "encoding/json"

// PackageMeta is the subset of a package.json that affects module format and resolution.
type PackageMeta struct {
	// Dir is the directory holding the package.json.
	Dir     string `json:"-"`
	Name    string `json:"name"`
	Version string `json:"version"`
	// Type is "module" or "commonjs"; empty means commonjs.
	Type   string `json:"type"`
	Module string `json:"module"`
	Main   string `json:"main"`
	// Exports is kept raw so condition order survives decoding.
	Exports json.RawMessage `json:"exports"`
}

// Resolution is the result of resolving an import specifier.
type Resolution struct {
	Path string
	// Package is the package the resolved file belongs to, if any.
	Package *PackageMeta
	// Condition is the export condition selected while resolving, if any.
	Condition string
	// External marks a module that is not bundled.
	External bool
}
