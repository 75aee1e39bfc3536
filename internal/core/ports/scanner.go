package ports

import "go.trai.ch/kiln/internal/core/domain"

// Scanner extracts imports, exports and syntax flags from script source.
//
//go:generate mockgen -destination=mocks/scanner_mock.go -package=mocks -source=scanner.go
type Scanner interface {
	// Scan returns domain.ErrScanFailed for input it cannot parse.
	Scan(content []byte) (*domain.ScanResult, error)
}
