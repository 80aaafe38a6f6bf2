// Package ports defines the capability interfaces between the plugin
// rack and the concrete loading mechanism. The rack never depends on
// how a plugin is loaded, only on these contracts.
package ports

import "subgate.dev/cli/internal/core/domain"

// SubmitFilter is the operation table every submit-filter plugin
// exports. PreSubmit runs before the job is handed to the scheduler
// and may mutate the options; PostSubmit runs once the job id is
// known. A non-nil error vetoes the submission (pre) or is reported
// to the user (post).
type SubmitFilter interface {
	PreSubmit(kind domain.CliKind, opts *domain.JobOptions) error
	PostSubmit(kind domain.CliKind, jobID uint32, opts *domain.JobOptions) error
}

// Handle is one loaded plugin module. The rack owns the handle;
// callers borrow it through Acquire/Release and must not Close it.
type Handle interface {
	// Type is the declared type the module reports about itself,
	// in the form "<namespace>/<variant>".
	Type() string
	// Filter exposes the module's operation table.
	Filter() SubmitFilter
	// Close unloads the module. Called only by the rack, and only
	// when no references are outstanding.
	Close() error
}

// Loader is the module-loading capability the rack consumes.
type Loader interface {
	// Peek reports the declared type of the candidate at path
	// without executing any of its code.
	Peek(path string) (string, error)
	// Load fully loads the module and resolves its operation table.
	Load(path string) (Handle, error)
}
