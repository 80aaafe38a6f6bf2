package cli

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"subgate.dev/cli/internal/rack"
)

// DashboardFlags holds command-line flags for the dashboard command
type DashboardFlags struct {
	RefreshRate time.Duration
}

// NewDashboardCommand creates the dashboard command
func NewDashboardCommand(container *Container) *cobra.Command {
	flags := &DashboardFlags{}

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Live terminal view of the plugin rack",
		Long: `Launch an interactive terminal view of the submit filter plugin rack.

The dashboard shows every vetted plugin with its load state and
reference count, and lets you force-load or purge idle plugins from the
keyboard. Similar to 'top' but for the plugin rack.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDashboard(container, flags)
		},
	}

	cmd.Flags().DurationVar(&flags.RefreshRate, "refresh", time.Second, "Refresh rate for live updates")

	return cmd
}

// runDashboard starts the terminal dashboard
func runDashboard(container *Container, flags *DashboardFlags) error {
	rk, err := buildRack(container)
	if err != nil {
		return err
	}
	defer rk.Close()

	model := newDashboardModel(container, rk, flags)
	program := tea.NewProgram(model, tea.WithAltScreen())

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("dashboard failed: %w", err)
	}

	return nil
}

// dashboardModel holds the state for the Bubble Tea dashboard
type dashboardModel struct {
	container    *Container
	rack         *rack.Rack
	flags        *DashboardFlags
	entries      []rack.EntryInfo
	selectedRow  int
	lastUpdate   time.Time
	lastAction   string
	windowWidth  int
	windowHeight int
	err          error
}

func newDashboardModel(container *Container, rk *rack.Rack, flags *DashboardFlags) dashboardModel {
	return dashboardModel{
		container:  container,
		rack:       rk,
		flags:      flags,
		entries:    rk.Entries(),
		lastUpdate: time.Now(),
	}
}

// Init implements the Bubble Tea init method
func (m dashboardModel) Init() tea.Cmd {
	return m.tickCmd()
}

// Update implements the Bubble Tea update method
func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.windowWidth = msg.Width
		m.windowHeight = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit

		case "up", "k":
			if m.selectedRow > 0 {
				m.selectedRow--
			}
			return m, nil

		case "down", "j":
			if m.selectedRow < len(m.entries)-1 {
				m.selectedRow++
			}
			return m, nil

		case "l":
			if err := m.rack.LoadAll(); err != nil {
				m.lastAction = fmt.Sprintf("load all: %v", err)
			} else {
				m.lastAction = "loaded all plugins"
			}
			m.refresh()
			return m, nil

		case "p":
			if err := m.rack.PurgeIdle(); err != nil {
				m.lastAction = fmt.Sprintf("purge: %v", err)
			} else {
				m.lastAction = "purged idle plugins"
			}
			m.refresh()
			return m, nil

		case "r":
			m.refresh()
			return m, nil
		}

	case rackTickMsg:
		m.refresh()
		return m, m.tickCmd()
	}

	return m, nil
}

func (m *dashboardModel) refresh() {
	m.entries = m.rack.Entries()
	if m.selectedRow >= len(m.entries) {
		m.selectedRow = len(m.entries) - 1
	}
	if m.selectedRow < 0 {
		m.selectedRow = 0
	}
	m.lastUpdate = time.Now()
}

// View implements the Bubble Tea view method
func (m dashboardModel) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress 'q' to quit", m.err)
	}

	header := m.renderHeader()
	table := m.renderEntryTable()
	footer := m.renderFooter()

	return lipgloss.JoinVertical(lipgloss.Left, header, table, footer)
}

func (m dashboardModel) renderHeader() string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86")).
		Render("Subgate Plugin Rack")

	loaded := 0
	for _, e := range m.entries {
		if e.Loaded {
			loaded++
		}
	}

	info := fmt.Sprintf("Dir: %s | Plugins: %d | Loaded: %d | Last Update: %s",
		m.container.Config.PluginDir,
		len(m.entries),
		loaded,
		m.lastUpdate.Format("15:04:05"),
	)

	line1 := lipgloss.JoinHorizontal(lipgloss.Left, title, "  ", info)

	divider := lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Render("────────────────────────────────────────────────────────────")

	if m.lastAction != "" {
		return lipgloss.JoinVertical(lipgloss.Left, line1, m.lastAction, divider)
	}
	return lipgloss.JoinVertical(lipgloss.Left, line1, divider)
}

func (m dashboardModel) renderEntryTable() string {
	if len(m.entries) == 0 {
		return lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Render("\n  No plugins in the rack. Check the plugin directory and security policy.\n")
	}

	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86")).
		Render(fmt.Sprintf("%-28s │ %-8s │ %-4s │ %s",
			"TYPE", "STATE", "REFS", "PATH"))

	rows := []string{header}
	for i, e := range m.entries {
		state := "unloaded"
		stateColor := lipgloss.Color("240")
		if e.Loaded {
			state = "loaded"
			stateColor = lipgloss.Color("46")
		}

		rowStyle := lipgloss.NewStyle()
		if i == m.selectedRow {
			rowStyle = rowStyle.Background(lipgloss.Color("237"))
		}

		row := fmt.Sprintf("%-28s │ %s │ %-4d │ %s",
			e.Type,
			lipgloss.NewStyle().Foreground(stateColor).Render(fmt.Sprintf("%-8s", state)),
			e.Refcount,
			e.Path,
		)
		rows = append(rows, rowStyle.Render(row))
	}

	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m dashboardModel) renderFooter() string {
	divider := lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Render("────────────────────────────────────────────────────────────")

	controls := lipgloss.NewStyle().
		Foreground(lipgloss.Color("245")).
		Render("Controls: [l] Load All | [p] Purge Idle | [↑↓] Navigate | [r] Refresh | [q] Quit")

	return lipgloss.JoinVertical(lipgloss.Left, divider, controls)
}

// rackTickMsg is sent every refresh interval
type rackTickMsg time.Time

func (m dashboardModel) tickCmd() tea.Cmd {
	return tea.Tick(m.flags.RefreshRate, func(t time.Time) tea.Msg {
		return rackTickMsg(t)
	})
}
