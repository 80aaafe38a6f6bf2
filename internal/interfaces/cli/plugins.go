package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"subgate.dev/cli/internal/infrastructure/procloader"
)

// NewPluginsCommand creates the plugins command group
func NewPluginsCommand(container *Container) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Inspect the submit filter plugins on this machine",
		Long: `Inspect the submit filter plugins found in the plugin directory.

Candidates that fail the security policy or declare a type outside the
cli_filter namespace are skipped during the scan and never listed.`,
		Example: `  # List vetted plugins
  subgate plugins list

  # Verify that every vetted plugin actually loads
  subgate plugins verify`,
	}

	cmd.AddCommand(newPluginsListCommand(container))
	cmd.AddCommand(newPluginsVerifyCommand(container))

	return cmd
}

func newPluginsListCommand(container *Container) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List vetted submit filter plugins",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPluginsList(container)
		},
	}
}

func newPluginsVerifyCommand(container *Container) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Load every vetted plugin once and report failures",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPluginsVerify(container)
		},
	}
}

var (
	pluginsHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("86"))
	pluginsTypeStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("212"))
	pluginsDimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

// runPluginsList renders the rack contents without loading anything.
func runPluginsList(container *Container) error {
	rk, err := buildRack(container)
	if err != nil {
		return err
	}
	defer rk.Close()

	entries := rk.Entries()
	if len(entries) == 0 {
		fmt.Println(pluginsDimStyle.Render(
			fmt.Sprintf("No plugins found in %s", container.Config.PluginDir)))
		return nil
	}

	fmt.Println(pluginsHeaderStyle.Render(
		fmt.Sprintf("%-28s %-10s %s", "TYPE", "STATE", "PATH")))
	for _, e := range entries {
		state := "unloaded"
		if e.Loaded {
			state = "loaded"
		}
		fmt.Printf("%s %-10s %s\n",
			pluginsTypeStyle.Render(fmt.Sprintf("%-28s", e.Type)),
			state,
			pluginsDimStyle.Render(e.Path))

		if m, err := procloader.ReadManifest(procloader.ManifestPath(e.Path)); err == nil && m.Name != "" {
			fmt.Printf("  %s\n", pluginsDimStyle.Render(
				fmt.Sprintf("%s %s - %s", m.Name, m.Version, m.Description)))
		}
	}
	fmt.Printf("\n%d plugin(s) in %s\n", len(entries), container.Config.PluginDir)
	return nil
}

// runPluginsVerify force-loads the whole rack, then unloads it again.
func runPluginsVerify(container *Container) error {
	rk, err := buildRack(container)
	if err != nil {
		return err
	}
	defer rk.Close()

	entries := rk.Entries()
	if len(entries) == 0 {
		fmt.Println(pluginsDimStyle.Render(
			fmt.Sprintf("No plugins found in %s", container.Config.PluginDir)))
		return nil
	}

	if err := rk.LoadAll(); err != nil {
		return err
	}
	failed := 0
	for _, e := range rk.Entries() {
		mark := "✓"
		style := pluginsTypeStyle
		if !e.Loaded {
			mark = "✗"
			style = pluginsDimStyle
			failed++
		}
		fmt.Printf("%s %s\n", mark, style.Render(e.Type))
	}
	if failed > 0 {
		return fmt.Errorf("%d plugin(s) failed to load", failed)
	}

	if err := rk.PurgeIdle(); err != nil {
		return fmt.Errorf("failed to unload plugins: %w", err)
	}
	fmt.Printf("\nAll %d plugin(s) loaded successfully\n", len(entries))
	return nil
}
