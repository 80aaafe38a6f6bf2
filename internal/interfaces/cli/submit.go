package cli

import (
	"fmt"
	"math/rand"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"subgate.dev/cli/internal/core/domain"
	"subgate.dev/cli/internal/filter"
)

// SubmitFlags holds command-line flags for the submit command
type SubmitFlags struct {
	JobName   string
	Partition string
	TimeLimit int
	NumTasks  int
	Comment   string
	Kind      string
	Filters   string
}

// NewSubmitCommand creates the submit command
func NewSubmitCommand(container *Container) *cobra.Command {
	flags := &SubmitFlags{}

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a job through the configured submit filter chain",
		Long: `Submit a job request. Every configured submit filter sees the request
before submission and may adjust or veto it; after the job id is
assigned, each filter is notified again.

Examples:
  subgate submit --name build --tasks 4
  subgate submit --partition gpu --time 120
  subgate submit --filters defaults,lua --kind batch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(container, flags)
		},
	}

	cmd.Flags().StringVar(&flags.JobName, "name", "", "Job name")
	cmd.Flags().StringVar(&flags.Partition, "partition", "", "Partition to submit to")
	cmd.Flags().IntVar(&flags.TimeLimit, "time", 0, "Time limit in minutes (0 = partition default)")
	cmd.Flags().IntVar(&flags.NumTasks, "tasks", 1, "Number of tasks")
	cmd.Flags().StringVar(&flags.Comment, "comment", "", "Arbitrary job comment")
	cmd.Flags().StringVar(&flags.Kind, "kind", "batch", "Submission kind (interactive, batch, run)")
	cmd.Flags().StringVar(&flags.Filters, "filters", "", "Override the configured submit filter list")

	return cmd
}

// runSubmit drives one submission through the filter chain.
func runSubmit(container *Container, flags *SubmitFlags) error {
	kind := domain.ParseCliKind(flags.Kind)
	if kind == domain.CliInvalid {
		return fmt.Errorf("unknown submission kind %q", flags.Kind)
	}

	rk, err := buildRack(container)
	if err != nil {
		return err
	}
	defer rk.Close()

	list := container.Config.Filters
	if flags.Filters != "" {
		list = flags.Filters
	}

	chain, err := filter.NewChain(rk, list, container.Logger)
	if err != nil {
		return fmt.Errorf("failed to build submit filter chain: %w", err)
	}
	defer chain.Close()

	opts := &domain.JobOptions{
		JobName:   flags.JobName,
		Partition: flags.Partition,
		TimeLimit: flags.TimeLimit,
		NumTasks:  flags.NumTasks,
		Comment:   flags.Comment,
		Env:       environMap(),
	}

	if err := chain.PreSubmit(kind, opts); err != nil {
		return fmt.Errorf("submission rejected: %w", err)
	}

	jobID := allocateJobID()
	container.Logger.Info("job submitted",
		zap.Uint32("job_id", jobID),
		zap.String("name", opts.JobName),
		zap.String("partition", opts.Partition),
		zap.Int("tasks", opts.NumTasks))

	if err := chain.PostSubmit(kind, jobID, opts); err != nil {
		// The job is already in; post-submit failures are reported but
		// do not undo the submission.
		container.Logger.Warn("post-submit filter failed", zap.Error(err))
	}

	fmt.Printf("Submitted job %d\n", jobID)
	return nil
}

// allocateJobID stands in for the scheduler's id assignment.
func allocateJobID() uint32 {
	return uint32(rand.Int31n(1_000_000) + 1)
}

// environMap snapshots SUBGATE_JOB_* environment variables into the
// job's environment block, with the prefix stripped.
func environMap() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, "SUBGATE_JOB_") {
			continue
		}
		env[strings.TrimPrefix(k, "SUBGATE_JOB_")] = v
	}
	return env
}
