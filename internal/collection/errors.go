package collection

import (
	"errors"
	"fmt"
)

// ErrScanTimeout is wrapped by a ScanWarning when a folder read exceeded the
// scan timeout
var ErrScanTimeout = errors.New("folder scan timed out")

// InvalidPathError is returned by AddFolder when the target does not exist or
// is not a directory. No state changes when it is returned.
type InvalidPathError struct {
	Path string
	Err  error
}

func (e *InvalidPathError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid folder %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("invalid folder %s", e.Path)
}

func (e *InvalidPathError) Unwrap() error {
	return e.Err
}

// ScanWarning reports a folder that could not be read during a scan. The
// folder stays in the folder set and contributes no images until a later scan
// succeeds.
type ScanWarning struct {
	Folder string
	Err    error
}

func (w ScanWarning) Error() string {
	return fmt.Sprintf("skipped folder %s: %v", w.Folder, w.Err)
}

func (w ScanWarning) Unwrap() error {
	return w.Err
}
