package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrScanRunning is returned when a scan is requested while one is active.
var ErrScanRunning = errors.New("scan already running")

// ConfigError lists every problem found in the scan configuration.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return "invalid scan configuration: " + strings.Join(e.Problems, "; ")
}

// PersistenceError wraps a failed write to the result store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
