package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/studiowebux/reviewload/internal/loadgen"
)

// pollInterval is how often the dashboard reads the executor
const pollInterval = 100 * time.Millisecond

// Source is the running load run shown by the dashboard
type Source interface {
	GetStats() *loadgen.Snapshot
	GetRun() *loadgen.Run
	IsExecutionComplete() bool
}

type pollMsg time.Time

// Dashboard is the Bubble Tea model of a running load run
type Dashboard struct {
	source   Source
	stop     func()
	duration time.Duration

	spinner  spinner.Model
	table    table.Model
	snapshot *loadgen.Snapshot
	run      *loadgen.Run

	width    int
	stopping bool
	done     bool
}

// NewDashboard creates a dashboard. stop is called once when the user asks
// to interrupt the run and must not block. duration is the configured run
// length, 0 if unbounded.
func NewDashboard(source Source, stop func(), duration time.Duration) *Dashboard {
	s := spinner.New(spinner.WithSpinner(spinner.Dot))
	s.Style = styleTitle

	columns := make([]table.Column, len(taskHeaders))
	for i, title := range taskHeaders {
		width := 9
		if i == 0 {
			width = 12
		}
		columns[i] = table.Column{Title: title, Width: width}
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithHeight(len(loadgen.AllTasks)+2),
		table.WithFocused(false),
	)

	return &Dashboard{
		source:   source,
		stop:     stop,
		duration: duration,
		spinner:  s,
		table:    t,
		snapshot: &loadgen.Snapshot{Total: loadgen.NewStats()},
	}
}

// Init starts the spinner and the polling loop
func (d *Dashboard) Init() tea.Cmd {
	return tea.Batch(d.spinner.Tick, poll())
}

func poll() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return pollMsg(t)
	})
}

// Update handles polling, key presses and resizes
func (d *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case pollMsg:
		d.refresh()
		if d.source.IsExecutionComplete() {
			d.done = true
			return d, tea.Quit
		}
		return d, poll()

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			if !d.stopping {
				d.stopping = true
				if d.stop != nil {
					d.stop()
				}
			}
		}
		return d, nil

	case tea.WindowSizeMsg:
		d.width = msg.Width
		return d, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		d.spinner, cmd = d.spinner.Update(msg)
		return d, cmd
	}
	return d, nil
}

// refresh reads the latest statistics from the source
func (d *Dashboard) refresh() {
	d.snapshot = d.source.GetStats()
	d.run = d.source.GetRun()

	rows := taskRows(d.snapshot)
	tableRows := make([]table.Row, len(rows))
	for i, row := range rows {
		tableRows[i] = table.Row(row)
	}
	d.table.SetRows(tableRows)
}

// Stopping reports whether the user asked to interrupt the run
func (d *Dashboard) Stopping() bool {
	return d.stopping
}

// View renders the dashboard
func (d *Dashboard) View() string {
	var content strings.Builder

	title := "Load Run - Running"
	switch {
	case d.done:
		title = "Load Run - Finished"
	case d.stopping:
		title = "Load Run - Stopping"
	}
	if !d.done {
		title = d.spinner.View() + " " + title
	}
	content.WriteString(styleTitle.Render(title) + "\n")
	if d.run != nil {
		content.WriteString(styleSubtle.Render(fmt.Sprintf("%s  %s", d.run.Name, d.run.Host)) + "\n")
	}
	content.WriteString("\n")

	snap := d.snapshot
	elapsed := formatDuration(snap.Elapsed)
	if d.duration > 0 {
		elapsed += " / " + formatDuration(d.duration)
	}
	content.WriteString(fmt.Sprintf("Elapsed:          %s\n", elapsed))
	content.WriteString(fmt.Sprintf("Active sessions:  %d\n", snap.ActiveSessions))
	content.WriteString(fmt.Sprintf("Requests/sec:     %.2f\n", snap.RequestsPerSecond()))
	content.WriteString(fmt.Sprintf("Teams: %d  Users: %d  Open pull requests: %d\n\n",
		snap.Registry.Teams, snap.Registry.Users, snap.Registry.PullRequests))

	content.WriteString(d.table.View() + "\n\n")

	if snap.Total != nil && snap.Total.CompletedRequests > 0 {
		rate := snap.Total.FailureRate()
		content.WriteString(rateStyle(rate).Render(fmt.Sprintf("Failure rate: %.2f%%", rate)) + "\n\n")
	}

	footer := "q/ctrl+c: stop run"
	if d.stopping {
		footer = fmt.Sprintf("Waiting for %d active sessions to finish...", snap.ActiveSessions)
	}
	content.WriteString(styleSubtle.Render(footer))

	box := styleBox
	if d.width > 4 {
		box = box.Width(d.width - 4)
	}
	return lipgloss.JoinVertical(lipgloss.Left, box.Render(content.String()))
}
