// Package filter fills unset job options from the user's defaults
// file, ~/.subgate_defaults. Options the user set explicitly are never
// touched.
package filter

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"subgate.dev/cli/internal/core/domain"
	"subgate.dev/cli/internal/infrastructure/procloader"
)

// DefaultsFileName is looked up in the user's home directory.
const DefaultsFileName = ".subgate_defaults"

// Filter applies per-user defaults before submission.
type Filter struct {
	// path overrides the defaults file location, for tests.
	path string
}

func New() *Filter {
	return &Filter{}
}

// NewWithPath reads defaults from an explicit file instead of $HOME.
func NewWithPath(path string) *Filter {
	return &Filter{path: path}
}

func (f *Filter) Info() (procloader.ModuleInfo, error) {
	return procloader.ModuleInfo{
		Type:    "cli_filter/user_defaults",
		Name:    "user defaults",
		Version: "1.0.0",
	}, nil
}

// PreSubmit fills each unset option from the defaults file. A missing
// file means the user keeps stock defaults; that is not an error.
func (f *Filter) PreSubmit(kind domain.CliKind, opts *domain.JobOptions) error {
	defaults, err := f.readDefaults()
	if err != nil {
		return err
	}

	for key, value := range defaults {
		switch key {
		case "partition":
			if opts.Partition == "" {
				opts.Partition = value
			}
		case "time_limit":
			if opts.TimeLimit == 0 {
				minutes, err := strconv.Atoi(value)
				if err != nil || minutes < 0 {
					return fmt.Errorf("defaults file: bad time_limit %q", value)
				}
				opts.TimeLimit = minutes
			}
		case "tasks":
			if opts.NumTasks <= 1 {
				tasks, err := strconv.Atoi(value)
				if err != nil || tasks < 1 {
					return fmt.Errorf("defaults file: bad tasks %q", value)
				}
				opts.NumTasks = tasks
			}
		case "comment":
			if opts.Comment == "" {
				opts.Comment = value
			}
		}
		// Unknown keys are ignored so the file can carry settings for
		// newer subgate versions.
	}
	return nil
}

// PostSubmit has nothing to do for defaults.
func (f *Filter) PostSubmit(kind domain.CliKind, jobID uint32, opts *domain.JobOptions) error {
	return nil
}

func (f *Filter) defaultsPath() (string, error) {
	if f.path != "" {
		return f.path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locate defaults file: %w", err)
	}
	return filepath.Join(home, DefaultsFileName), nil
}

// readDefaults parses the key=value lines of the defaults file.
// Blank lines and #-comments are skipped.
func (f *Filter) readDefaults() (map[string]string, error) {
	path, err := f.defaultsPath()
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open defaults file: %w", err)
	}
	defer file.Close()

	defaults := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("defaults file %s:%d: expected key=value", path, lineno)
		}
		defaults[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read defaults file: %w", err)
	}
	return defaults, nil
}
