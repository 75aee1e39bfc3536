package domain

import (
	"strings"

	"go.trai.ch/zerr"
)

// StageStatus is the lifecycle state of one pipeline stage for one target.
type StageStatus string

const (
	// StageStatusPending indicates the stage has not started.
	StageStatusPending StageStatus = "pending"
	// StageStatusRunning indicates the stage is executing.
	StageStatusRunning StageStatus = "running"
	// StageStatusCompleted indicates the stage produced fresh artifacts.
	StageStatusCompleted StageStatus = "completed"
	// StageStatusFailed indicates the stage failed.
	StageStatusFailed StageStatus = "failed"
	// StageStatusCached indicates every artifact of the stage came from the cache.
	StageStatusCached StageStatus = "cached"
	// StageStatusSkipped indicates the stage had nothing to do.
	StageStatusSkipped StageStatus = "skipped"
)

// IsTerminal checks if a status is a terminal state (Completed, Failed, Cached, Skipped).
func (s StageStatus) IsTerminal() bool {
	switch s {
	case StageStatusCompleted, StageStatusFailed, StageStatusCached, StageStatusSkipped:
		return true
	default:
		return false
	}
}

// NormalizeStageStatus converts a string to a StageStatus, defaulting to pending if unknown.
func NormalizeStageStatus(s string) StageStatus {
	switch st := StageStatus(strings.ToLower(s)); st {
	case StageStatusRunning, StageStatusCompleted, StageStatusFailed, StageStatusCached, StageStatusSkipped:
		return st
	default:
		return StageStatusPending
	}
}

// LogLevel represents the severity of an event, mirroring the standard slog levels.
type LogLevel int

const (
	// LogLevelDebug represents debug-level verbosity.
	LogLevelDebug LogLevel = -4
	// LogLevelInfo represents informational verbosity.
	LogLevelInfo LogLevel = 0
	// LogLevelWarn represents warning verbosity.
	LogLevelWarn LogLevel = 4
	// LogLevelError represents error verbosity.
	LogLevelError LogLevel = 8
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (l LogLevel) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(l.String())), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Names are matched
// case-insensitively.
func (l *LogLevel) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "debug":
		*l = LogLevelDebug
	case "info":
		*l = LogLevelInfo
	case "warn", "warning":
		*l = LogLevelWarn
	case "error":
		*l = LogLevelError
	default:
		return zerr.With(zerr.Wrap(ErrUnknownLogLevel, "cannot decode log level"), "level", string(text))
	}
	return nil
}
