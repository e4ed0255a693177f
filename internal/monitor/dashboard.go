package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/finplan/internal/jobs"
)

const (
	sparklineWidth  = 30
	sparklineHeight = 3
	historySize     = 30
)

// Model follows one job and renders its progress.
type Model struct {
	jobID    string
	jobType  string
	updates  <-chan jobs.JobStatus
	cancel   func() error
	interval time.Duration

	status   jobs.JobStatus
	history  []float64
	started  time.Time
	now      time.Time
	err      error
	done     bool
	quitting bool

	progress progress.Model
}

// Lipgloss styles (k9s-inspired color scheme)
var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	healthyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(1, 2)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			MarginTop(1)

	footerKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	sparklineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51"))
)

// NewModel creates a model for jobID fed by updates. cancel is invoked on
// the [c] key; it may be nil.
func NewModel(jobID, jobType string, updates <-chan jobs.JobStatus, cancel func() error) Model {
	now := time.Now()
	return Model{
		jobID:    jobID,
		jobType:  jobType,
		updates:  updates,
		cancel:   cancel,
		interval: time.Second,
		status:   jobs.JobStatus{Status: jobs.StatusPending},
		history:  make([]float64, 0, historySize),
		started:  now,
		now:      now,
		progress: progress.New(
			progress.WithGradient("#00ffff", "#00ff00"),
			progress.WithWidth(40),
		),
	}
}

// Status returns the last status the model received.
func (m Model) Status() jobs.JobStatus {
	return m.status
}

// Done reports whether the job reached a terminal status.
func (m Model) Done() bool {
	return m.done
}

// statusBadge returns a colored badge for a job status
func statusBadge(s jobs.Status) string {
	switch s {
	case jobs.StatusCompleted:
		return healthyStyle.Render("✓ COMPLETED")
	case jobs.StatusFailed:
		return errorStyle.Render("✗ FAILED")
	case jobs.StatusRunning:
		return warningStyle.Render("● RUNNING")
	default:
		return dimStyle.Render("○ PENDING")
	}
}

// appendToHistory appends a value to history, maintaining max size
func appendToHistory(history []float64, value float64) []float64 {
	history = append(history, value)
	if len(history) > historySize {
		history = history[1:]
	}
	return history
}

// createSparkline creates a sparkline chart from historical data
func createSparkline(data []float64, width, height int) string {
	if len(data) == 0 {
		return dimStyle.Render(fmt.Sprintf("%*s", width, "no data"))
	}

	spark := sparkline.New(width, height)
	spark.PushAll(data)
	spark.Draw()

	return sparklineStyle.Render(spark.View())
}

// Message types
type tickMsg time.Time
type statusMsg jobs.JobStatus
type feedClosedMsg struct{}
type cancelledMsg struct{}
type errMsg error

// Init starts listening for updates and the elapsed-time ticker
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tick(m.interval),
		waitForStatus(m.updates),
	)
}

// tick creates a tick command for the elapsed clock
func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// waitForStatus blocks on the next update
func waitForStatus(updates <-chan jobs.JobStatus) tea.Cmd {
	return func() tea.Msg {
		st, ok := <-updates
		if !ok {
			return feedClosedMsg{}
		}
		return statusMsg(st)
	}
}

func requestCancel(cancel func() error) tea.Cmd {
	return func() tea.Msg {
		if err := cancel(); err != nil {
			return errMsg(err)
		}
		return cancelledMsg{}
	}
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "c":
			if m.cancel != nil && !m.done {
				return m, requestCancel(m.cancel)
			}
		}

	case tickMsg:
		m.now = time.Time(msg)
		if m.done {
			return m, nil
		}
		return m, tick(m.interval)

	case statusMsg:
		m.status = jobs.JobStatus(msg)
		m.history = appendToHistory(m.history, float64(m.status.Progress))
		if m.status.Status.Terminal() {
			m.done = true
			m.now = time.Now()
			return m, tea.Quit
		}
		return m, waitForStatus(m.updates)

	case feedClosedMsg:
		m.done = true
		return m, tea.Quit

	case cancelledMsg:
		// Cancelling stops the poller, so no terminal update will arrive.
		m.status = jobs.JobStatus{Status: jobs.StatusFailed, Progress: m.status.Progress, Error: jobs.CancelledMessage}
		m.done = true
		return m, tea.Quit

	case errMsg:
		m.err = error(msg)
		return m, nil
	}

	return m, nil
}

// View renders the job view
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	header := headerStyle.Render(" finplan job ")
	b.WriteString(header + "   " + statusBadge(m.status.Status) + "\n")

	b.WriteString("\n" + sectionStyle.Render("┃ Job") + "\n")
	b.WriteString(labelStyle.Render("  ID: ") + valueStyle.Render(m.jobID) + "\n")
	b.WriteString(labelStyle.Render("  Type: ") + valueStyle.Render(m.jobType) + "\n")
	b.WriteString(labelStyle.Render("  Elapsed: ") + valueStyle.Render(FormatElapsed(m.now.Sub(m.started))) + "\n")

	b.WriteString("\n" + sectionStyle.Render("┃ Progress") + "\n")
	pct := float64(min(max(m.status.Progress, 0), 100)) / 100
	b.WriteString("  " + m.progress.ViewAs(pct) + " " + dimStyle.Render(FormatPercentage(pct)) + "\n")
	b.WriteString("  " + createSparkline(m.history, sparklineWidth, sparklineHeight) + "\n")

	if m.status.Error != "" {
		b.WriteString("\n" + errorStyle.Render("  "+m.status.Error) + "\n")
	}
	if m.err != nil {
		b.WriteString("\n" + errorStyle.Render("  ⚠ "+m.err.Error()) + "\n")
	}

	footer := footerKeyStyle.Render("[q]") + footerStyle.Render(" quit  ")
	if m.cancel != nil && !m.done {
		footer += footerKeyStyle.Render("[c]") + footerStyle.Render(" cancel job")
	}
	b.WriteString("\n" + footer)

	return containerStyle.Render(b.String())
}
