package rack

import "errors"

// Error kinds returned by rack operations. Match with errors.Is.
// During a directory scan, per-candidate failures are swallowed and
// the scan continues; every other failure is surfaced to the caller.
// The rack never retries anything on its own.
var (
	// ErrSecurityRejected means the candidate or its parent
	// directory failed the ownership/writability checks.
	ErrSecurityRejected = errors.New("plugin failed security checks")

	// ErrTypeMismatch means the candidate's declared type is outside
	// the rack's namespace filter.
	ErrTypeMismatch = errors.New("plugin type outside rack namespace")

	// ErrLoadFailure means the module could not be opened or its
	// operation table resolved, including a failed type peek.
	ErrLoadFailure = errors.New("plugin load failed")

	// ErrNotFound means no registered entry matches the requested
	// type. Distinct from ErrLoadFailure on purpose: "no such
	// plugin" and "plugin exists but is broken" need different
	// operator responses.
	ErrNotFound = errors.New("no such plugin type")

	// ErrInUse means Close was called while at least one plugin
	// still has outstanding references.
	ErrInUse = errors.New("plugins still in use")

	// ErrRackClosed means the operation ran against a rack that was
	// already closed.
	ErrRackClosed = errors.New("plugin rack closed")
)
