// Package interop detects module formats, analyzes export surfaces and
// generates the shims that reconcile differing module shapes.
package interop

import (
	"path"
	"path/filepath"
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
)

// Sources of a format decision, from most to least authoritative.
const (
	SourceExtension   = "extension"
	SourceCondition   = "conditional-exports"
	SourcePackageType = "package-type"
	SourceModuleField = "package-module-field"
	SourceSyntax      = "syntax"
	SourceFallback    = "fallback"
)

// FormatDecision explains how a module format was chosen.
type FormatDecision struct {
	Format    domain.ModuleFormat
	Source    string
	Condition string
}

// Analysis is everything the graph needs to know about one script module.
type Analysis struct {
	Format   domain.ModuleFormat
	Decision FormatDecision
	Exports  domain.ExportMap
	Imports  []domain.ImportRef
	Hot      domain.HotFlags
	// Events holds the explain records of the analysis.
	Events []domain.Event
}

// Analyzer determines module formats and export surfaces.
type Analyzer struct {
	scanner ports.Scanner
}

// NewAnalyzer creates an Analyzer backed by scanner.
func NewAnalyzer(scanner ports.Scanner) *Analyzer {
	return &Analyzer{scanner: scanner}
}

// Analyze scans content once and derives format, exports and imports.
// Scan failures never fail the analysis: the conservative export map is
// assumed and an analysis-fallback event is recorded.
func (a *Analyzer) Analyze(file string, content []byte, pkg *domain.PackageMeta, condition string) Analysis {
	result, scanErr := a.scanner.Scan(content)

	decision := detect(file, pkg, condition, result, scanErr)
	out := Analysis{
		Format:   decision.Format,
		Decision: decision,
		Events: []domain.Event{{
			Stage:    string(domain.StageResolve),
			Decision: domain.DecisionFormatDetected,
			Reason:   "format detected from " + decision.Source,
			Level:    domain.LogLevelDebug,
			Data: map[string]any{
				"module":    file,
				"format":    string(decision.Format),
				"condition": decision.Condition,
			},
		}},
	}

	switch {
	case decision.Format == domain.FormatJSON:
		out.Exports = domain.ExportMap{Named: []string{}, HasDefault: true}
	case scanErr != nil:
		out.Exports = domain.ConservativeExportMap()
		out.Events = append(out.Events, fallbackEvent(file, scanErr))
	default:
		out.Exports = result.Exports.Normalize()
		out.Imports = result.Imports
		out.Hot = result.Hot
	}
	return out
}

// DetectFormat determines the module format of file. It never returns
// domain.FormatUnknown.
func (a *Analyzer) DetectFormat(file string, content []byte, pkg *domain.PackageMeta, condition string) (domain.ModuleFormat, FormatDecision) {
	var (
		result  *domain.ScanResult
		scanErr error
	)
	if needsSyntax(file, pkg, condition) {
		result, scanErr = a.scanner.Scan(content)
	}
	d := detect(file, pkg, condition, result, scanErr)
	return d.Format, d
}

// AnalyzeExports scans content for its export surface. Unparsable content
// yields the conservative export map and an analysis-fallback event.
func (a *Analyzer) AnalyzeExports(file string, content []byte, format domain.ModuleFormat) (domain.ExportMap, []domain.Event) {
	if format == domain.FormatJSON {
		return domain.ExportMap{Named: []string{}, HasDefault: true}, nil
	}
	result, err := a.scanner.Scan(content)
	if err != nil {
		return domain.ConservativeExportMap(), []domain.Event{fallbackEvent(file, err)}
	}
	return result.Exports.Normalize(), nil
}

func fallbackEvent(file string, err error) domain.Event {
	return domain.Event{
		Stage:    string(domain.StageResolve),
		Decision: domain.DecisionAnalysisFallback,
		Reason:   domain.ErrAnalysisFallback.Error(),
		Level:    domain.LogLevelWarn,
		Data: map[string]any{
			"module": file,
			"error":  err.Error(),
		},
	}
}

func needsSyntax(file string, pkg *domain.PackageMeta, condition string) bool {
	d := detect(file, pkg, condition, nil, nil)
	return d.Source == SourceFallback
}

func detect(file string, pkg *domain.PackageMeta, condition string, scan *domain.ScanResult, scanErr error) FormatDecision {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".mjs", ".mts":
		return FormatDecision{Format: domain.FormatESM, Source: SourceExtension}
	case ".cjs", ".cts":
		return FormatDecision{Format: domain.FormatCJS, Source: SourceExtension}
	case ".json":
		return FormatDecision{Format: domain.FormatJSON, Source: SourceExtension}
	}

	if pkg != nil {
		if condition != "" {
			if f, ok := FormatForCondition(strings.Split(condition, ".")); ok {
				return FormatDecision{Format: f, Source: SourceCondition, Condition: condition}
			}
		}
		switch pkg.Type {
		case "module":
			return FormatDecision{Format: domain.FormatESM, Source: SourcePackageType}
		case "commonjs":
			return FormatDecision{Format: domain.FormatCJS, Source: SourcePackageType}
		}
		if pkg.Module != "" && samePath(pkg.Dir, pkg.Module, file) {
			return FormatDecision{Format: domain.FormatESM, Source: SourceModuleField}
		}
	}

	if scan != nil && scanErr == nil {
		switch {
		case scan.HasESM:
			return FormatDecision{Format: domain.FormatESM, Source: SourceSyntax}
		case scan.HasCJS:
			return FormatDecision{Format: domain.FormatCJS, Source: SourceSyntax}
		}
	}

	// No signal at all: CommonJS is the format a plain script runs as.
	return FormatDecision{Format: domain.FormatCJS, Source: SourceFallback}
}

func samePath(dir, rel, file string) bool {
	want := filepath.Clean(filepath.Join(dir, filepath.FromSlash(path.Clean(rel))))
	return want == filepath.Clean(file)
}
