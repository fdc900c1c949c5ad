package cache

import "errors"

// ErrorCode categorizes cache errors.
//
// Policy rejections (duplicate devices, nested locks) are deliberately NOT
// errors: the operation reports "not applied" through its results and the
// cache logs a warning. Errors here are conditions the caller must react
// to, typically by reading metadata from disk instead.
type ErrorCode int

const (
	// ErrNotFound means no record exists for the requested name or id.
	ErrNotFound ErrorCode = iota

	// ErrNotCached means a record exists but holds no usable cached
	// metadata in the requested state; the caller should read from disk.
	ErrNotCached

	// ErrInvalidated means cached state exists but is known stale.
	ErrInvalidated

	// ErrLockOrder means acquiring the requested lock would violate the
	// global lock-acquisition ordering.
	ErrLockOrder

	// ErrScanInProgress means a scan was requested while one is already
	// running; scans never recurse.
	ErrScanInProgress

	// ErrCollaborator means a device, format, or daemon operation failed;
	// the entity involved could not be resolved this time.
	ErrCollaborator
)

// Error is a categorized cache error.
type Error struct {
	// Code is the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Name is the VG name or device name involved, when applicable.
	Name string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Name != "" {
		return e.Message + ": " + e.Name
	}
	return e.Message
}

// CodeOf extracts the ErrorCode from err, reporting ok=false for errors
// that did not originate in this package.
func CodeOf(err error) (ErrorCode, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code, true
	}
	return 0, false
}

// IsNotCached reports whether err means "nothing cached, read from disk".
func IsNotCached(err error) bool {
	code, ok := CodeOf(err)
	return ok && (code == ErrNotCached || code == ErrNotFound)
}
