package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/studiowebux/reviewload/internal/loadgen"
)

var taskHeaders = []string{"Task", "Requests", "Success", "Errors", "Status", "Anomalies", "Avg", "P50", "P95", "P99", "Max"}

// taskRows builds one row per task kind that saw traffic, then a total row
func taskRows(snapshot *loadgen.Snapshot) [][]string {
	rows := make([][]string, 0, len(loadgen.AllTasks)+1)
	for _, kind := range loadgen.AllTasks {
		stats := snapshot.Task(kind)
		if stats.CompletedRequests == 0 {
			continue
		}
		rows = append(rows, statsRow(string(kind), stats))
	}
	if snapshot.Total != nil {
		rows = append(rows, statsRow("total", snapshot.Total))
	}
	return rows
}

func statsRow(label string, s *loadgen.Stats) []string {
	return []string{
		label,
		strconv.Itoa(s.CompletedRequests),
		strconv.Itoa(s.SuccessCount),
		strconv.Itoa(s.ErrorCount),
		strconv.Itoa(s.UnexpectedStatusCount),
		strconv.Itoa(s.AnomalyCount),
		fmt.Sprintf("%.0fms", s.AvgDurationMs()),
		fmt.Sprintf("%dms", s.P50()),
		fmt.Sprintf("%dms", s.P95()),
		fmt.Sprintf("%dms", s.P99()),
		fmt.Sprintf("%dms", s.Max()),
	}
}

// RenderSummary renders the end-of-run report
func RenderSummary(snapshot *loadgen.Snapshot, run *loadgen.Run) string {
	var content strings.Builder

	title := "Load Run"
	if run != nil {
		title = fmt.Sprintf("Load Run #%d - %s", run.ID, run.Name)
	}
	content.WriteString(styleTitle.Render(title) + "\n")
	if run != nil {
		content.WriteString(styleSubtle.Render(run.RunUUID) + "\n")
		content.WriteString(fmt.Sprintf("Host:     %s\n", run.Host))
		content.WriteString(fmt.Sprintf("Users:    %d\n", run.Users))
		content.WriteString("Status:   " + statusStyle(run.Status).Render(run.Status) + "\n")
	}
	content.WriteString(fmt.Sprintf("Elapsed:  %s\n", formatDuration(snapshot.Elapsed)))
	content.WriteString(fmt.Sprintf("Req/sec:  %.2f\n\n", snapshot.RequestsPerSecond()))

	content.WriteString(styleSection.Render("Registry") + "\n")
	content.WriteString(fmt.Sprintf("Teams: %d  Users: %d  Open pull requests: %d\n\n",
		snapshot.Registry.Teams, snapshot.Registry.Users, snapshot.Registry.PullRequests))

	content.WriteString(styleSection.Render("Tasks") + "\n")
	rows := taskRows(snapshot)
	content.WriteString(renderTable(taskHeaders, rows) + "\n")

	if snapshot.Total != nil && snapshot.Total.CompletedRequests > 0 {
		rate := snapshot.Total.FailureRate()
		content.WriteString(rateStyle(rate).Render(fmt.Sprintf("Failure rate: %.2f%%", rate)) + "\n")
	}
	return content.String()
}

// RenderRunDetails renders a stored run with its per-task aggregates
func RenderRunDetails(run *loadgen.Run, summaries []*loadgen.TaskSummary) string {
	var content strings.Builder

	content.WriteString(styleTitle.Render(fmt.Sprintf("Load Run #%d - %s", run.ID, run.Name)) + "\n")
	content.WriteString(styleSubtle.Render(run.RunUUID) + "\n")
	content.WriteString(fmt.Sprintf("Host:      %s\n", run.Host))
	content.WriteString(fmt.Sprintf("Users:     %d\n", run.Users))
	content.WriteString(fmt.Sprintf("Started:   %s\n", run.StartedAt.Format("2006-01-02 15:04:05")))
	if run.CompletedAt != nil {
		content.WriteString(fmt.Sprintf("Duration:  %s\n", formatDuration(run.CompletedAt.Sub(run.StartedAt))))
	}
	content.WriteString("Status:    " + statusStyle(run.Status).Render(run.Status) + "\n\n")

	content.WriteString(styleSection.Render("Totals") + "\n")
	content.WriteString(fmt.Sprintf("Requests: %d  Success: %d  Errors: %d  Status: %d  Anomalies: %d\n",
		run.TotalRequests, run.TotalSuccesses, run.TotalErrors, run.TotalFailures, run.TotalAnomalies))
	content.WriteString(fmt.Sprintf("Avg: %.0fms  Min: %dms  Max: %dms  P50: %dms  P95: %dms  P99: %dms\n",
		run.AvgDurationMs, run.MinDurationMs, run.MaxDurationMs,
		run.P50DurationMs, run.P95DurationMs, run.P99DurationMs))
	content.WriteString(fmt.Sprintf("Teams: %d  Users: %d  Open pull requests: %d\n\n",
		run.TeamsSeeded, run.UsersSeeded, run.OpenPullRequests))

	if len(summaries) > 0 {
		content.WriteString(styleSection.Render("Tasks") + "\n")
		rows := make([][]string, 0, len(summaries))
		for _, s := range summaries {
			rows = append(rows, []string{
				string(s.Task),
				strconv.Itoa(s.Requests),
				strconv.Itoa(s.Successes),
				strconv.Itoa(s.Errors),
				strconv.Itoa(s.Failures),
				strconv.Itoa(s.Anomalies),
				fmt.Sprintf("%.0fms", s.AvgDurationMs),
				fmt.Sprintf("%dms", s.MaxDurationMs),
			})
		}
		headers := []string{"Task", "Requests", "Success", "Errors", "Status", "Anomalies", "Avg", "Max"}
		content.WriteString(renderTable(headers, rows) + "\n")
	}
	return content.String()
}

// RenderRunList renders stored runs, most recent first
func RenderRunList(runs []*loadgen.Run) string {
	if len(runs) == 0 {
		return styleSubtle.Render("No load runs recorded") + "\n"
	}
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			strconv.FormatInt(run.ID, 10),
			run.Name,
			run.Host,
			strconv.Itoa(run.Users),
			run.StartedAt.Format("2006-01-02 15:04:05"),
			run.Status,
			strconv.Itoa(run.TotalRequests),
			strconv.Itoa(run.TotalErrors + run.TotalFailures + run.TotalAnomalies),
			fmt.Sprintf("%dms", run.P95DurationMs),
		})
	}
	headers := []string{"ID", "Name", "Host", "Users", "Started", "Status", "Requests", "Failed", "P95"}
	return renderTable(headers, rows) + "\n"
}

func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(styleSubtle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleSection.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Render()
}
