package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"subgate.dev/cli/internal/filter"
	"subgate.dev/cli/internal/infrastructure/config"
	"subgate.dev/cli/internal/infrastructure/logging"
	"subgate.dev/cli/internal/infrastructure/procloader"
	"subgate.dev/cli/internal/rack"
)

var (
	Version   = "dev"     // Overridden by ldflags
	BuildTime = "unknown" // Overridden by ldflags
)

// Container holds the dependencies shared by subgate commands. It is
// populated by the root command's PersistentPreRunE, so subcommand
// RunE bodies can rely on Config and Logger being set.
type Container struct {
	Config *config.Config
	Logger *zap.Logger
	Debug  bool
}

// NewRootCommand builds the base command and wires the subcommands.
func NewRootCommand(container *Container) *cobra.Command {
	var cfgPath string

	rootCmd := &cobra.Command{
		Use:   "subgate",
		Short: "Subgate - job submission with pluggable submit filters",
		Long: `Subgate submits jobs through a chain of site-supplied submit filter
plugins. Plugins are discovered on disk, vetted against an ownership and
writability policy before any of their code runs, and invoked in the
configured order before and after each submission.`,
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debugFlag, _ := cmd.Flags().GetBool("debug")

			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if cmd.Flags().Changed("plugin-dir") {
				cfg.PluginDir, _ = cmd.Flags().GetString("plugin-dir")
			}

			logger, err := logging.New(debugFlag)
			if err != nil {
				return fmt.Errorf("failed to initialize logging: %w", err)
			}

			container.Config = cfg
			container.Logger = logger
			container.Debug = debugFlag
			return nil
		},
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf("{{.Name}} version {{.Version}}\nBuild time: %s\nGo version: %s\nPlatform: %s/%s\n",
		BuildTime, goVersion(), runtime.GOOS, runtime.GOARCH))

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file path (default is $HOME/.subgate/config.yaml)")
	rootCmd.PersistentFlags().String("plugin-dir", "", "Directory scanned for submit filter plugins")

	rootCmd.AddCommand(NewSubmitCommand(container))
	rootCmd.AddCommand(NewPluginsCommand(container))
	rootCmd.AddCommand(NewDashboardCommand(container))

	return rootCmd
}

// goVersion returns the Go version used to build the binary
func goVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		return info.GoVersion
	}
	return "unknown"
}

// buildRack scans the configured plugin directory into a rack. A
// missing directory yields an empty rack so commands report "no
// plugins" instead of failing outright.
func buildRack(container *Container) (*rack.Rack, error) {
	rk := rack.New(procloader.New(container.Debug))
	if err := rk.SetNamespace(filter.Namespace); err != nil {
		return nil, err
	}
	if err := rk.SetPolicy(container.Config.Security.Policy()); err != nil {
		return nil, err
	}
	if err := rk.ScanDir(container.Config.PluginDir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			container.Logger.Debug("plugin directory does not exist",
				zap.String("dir", container.Config.PluginDir))
			return rk, nil
		}
		rk.Close()
		return nil, fmt.Errorf("failed to scan plugin directory: %w", err)
	}
	return rk, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	rootCmd := NewRootCommand(&Container{})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
