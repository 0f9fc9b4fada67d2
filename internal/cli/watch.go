package cli

import (
	"context"
	"fmt"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/spacefeed/spacefeed/internal/client"
	"github.com/spacefeed/spacefeed/internal/models"
	"github.com/spf13/cobra"
)

const pollInterval = time.Second

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// tickMsg triggers polling the stats endpoint.
type tickMsg time.Time

// statsMsg carries a fresh stats document.
type statsMsg struct {
	stats *models.Stats
	err   error
}

// watchModel is the bubbletea model for live job progress.
type watchModel struct {
	client   *client.Client
	stats    *models.Stats
	progress progress.Model
	theme    Theme
	sawRun   bool
	done     bool
	quitting bool
	err      error
}

func newWatchModel(c *client.Client) watchModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return watchModel{
		client:   c,
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init returns the initial command (start polling).
func (m watchModel) Init() tea.Cmd {
	return tea.Batch(
		m.fetchStats(),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		return m, m.fetchStats()

	case statsMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("failed to fetch stats: %w", msg.err)
			m.done = true
			return m, tea.Quit
		}

		m.stats = msg.stats
		if m.stats.JobRunning {
			m.sawRun = true
		} else if m.sawRun {
			// The run we were watching just finished.
			m.done = true
			return m, tea.Quit
		}

		return m, tickCmd()

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m watchModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m watchModel) renderContent() string {
	if m.done {
		return m.finalView()
	}

	if m.stats == nil {
		return "Loading job stats...\n"
	}

	var pct float64
	if m.stats.Total > 0 {
		pct = float64(m.stats.Inserted) / float64(m.stats.Total)
	}

	state := "idle"
	if m.stats.JobRunning {
		state = "running"
	}
	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", state))

	progressBar := m.progress.ViewAs(pct)
	counts := fmt.Sprintf("%d/%d rows", m.stats.Inserted, m.stats.Total)

	healthLine := "host healthy"
	if !m.stats.Healthy {
		healthLine = m.theme.errorStyle().Render("host under high load")
	}

	hint := m.theme.hintStyle().Render("Press Ctrl+C to stop watching (the job keeps running)")

	return fmt.Sprintf("%s %s %s\ncpu %s  mem %s  %s\n%s\n",
		status, progressBar, counts,
		m.stats.CPUUsage, m.stats.MemoryUsage, healthLine,
		hint)
}

func (m watchModel) finalView() string {
	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ %s\n", m.err))
	}

	if m.stats != nil {
		return m.theme.completedStyle().Render("✓ Run finished") +
			fmt.Sprintf("\n\n  Inserted: %d\n  Total:    %d\n  Progress: %s\n",
				m.stats.Inserted, m.stats.Total, m.stats.Progress)
	}

	return m.theme.completedStyle().Render("✓ Done\n")
}

// fetchStats fetches the current stats from the server. Runs as a command to
// avoid blocking Update().
func (m watchModel) fetchStats() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		stats, err := m.client.Stats(ctx)
		return statsMsg{stats: stats, err: err}
	}
}

// tickCmd returns a command that sends a tick after the poll interval.
func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch a running ingestion job with a live progress bar",
	RunE: func(cmd *cobra.Command, args []string) error {
		model := newWatchModel(apiClient())
		p := tea.NewProgram(model)

		finalModel, err := p.Run()
		if err != nil {
			return fmt.Errorf("progress UI error: %w", err)
		}

		if m, ok := finalModel.(watchModel); ok {
			// Quitting the watcher never touches the job itself.
			if m.quitting {
				return nil
			}
			if m.err != nil {
				return m.err
			}
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
