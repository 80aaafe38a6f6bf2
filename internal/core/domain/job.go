package domain

// CliKind identifies which command-line front end is submitting a job.
// Submit filters use it to decide how to interpret the options.
type CliKind int

const (
	CliInvalid CliKind = iota
	CliInteractive
	CliBatch
	CliRun
)

// String returns the front-end name for logging and Lua scripts.
func (k CliKind) String() string {
	switch k {
	case CliInteractive:
		return "interactive"
	case CliBatch:
		return "batch"
	case CliRun:
		return "run"
	default:
		return "invalid"
	}
}

// ParseCliKind maps a front-end name back to its kind.
func ParseCliKind(s string) CliKind {
	switch s {
	case "interactive":
		return CliInteractive
	case "batch":
		return CliBatch
	case "run":
		return CliRun
	default:
		return CliInvalid
	}
}

// JobOptions is the submission request handed to submit filters.
// Filters may mutate any field before the job is submitted; the
// pointer itself never changes hands.
type JobOptions struct {
	JobName   string
	Partition string
	TimeLimit int // minutes, 0 means partition default
	NumTasks  int
	Comment   string
	Env       map[string]string
}

// Clone returns a deep copy so callers can diff pre/post filter state.
func (o *JobOptions) Clone() *JobOptions {
	c := *o
	if o.Env != nil {
		c.Env = make(map[string]string, len(o.Env))
		for k, v := range o.Env {
			c.Env[k] = v
		}
	}
	return &c
}
