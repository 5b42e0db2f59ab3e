package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/studiowebux/reviewload/internal/loadgen"
	"github.com/studiowebux/reviewload/internal/tui"
)

// RunReport is the structured form of a stored run
type RunReport struct {
	Run   *loadgen.Run           `json:"run" yaml:"run"`
	Tasks []*loadgen.TaskSummary `json:"tasks" yaml:"tasks"`
}

// ListRuns prints the most recent runs
func ListRuns(w io.Writer, dbPath string, limit int, format string) error {
	if err := validateOutputFormat(format); err != nil {
		return err
	}
	manager, err := loadgen.NewManager(dbPath)
	if err != nil {
		return err
	}
	defer manager.Close()

	runs, err := manager.ListRuns(limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if format == "" || format == OutputText {
		_, err = io.WriteString(w, tui.RenderRunList(runs))
		return err
	}
	if runs == nil {
		runs = []*loadgen.Run{}
	}
	return writeStructured(w, format, runs)
}

// ShowRun prints one stored run with its per-task aggregates
func ShowRun(w io.Writer, dbPath string, id int64, format string) error {
	if err := validateOutputFormat(format); err != nil {
		return err
	}
	manager, err := loadgen.NewManager(dbPath)
	if err != nil {
		return err
	}
	defer manager.Close()

	report, err := loadReport(manager, id)
	if err != nil {
		return err
	}

	if format == "" || format == OutputText {
		_, err = io.WriteString(w, tui.RenderRunDetails(report.Run, report.Tasks))
		return err
	}
	return writeStructured(w, format, report)
}

// DeleteRun removes a stored run and its metrics
func DeleteRun(dbPath string, id int64) error {
	manager, err := loadgen.NewManager(dbPath)
	if err != nil {
		return err
	}
	defer manager.Close()

	if err := manager.DeleteRun(id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("run %d not found", id)
		}
		return err
	}
	return nil
}

func loadReport(manager *loadgen.Manager, id int64) (*RunReport, error) {
	run, err := manager.GetRun(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("run %d not found", id)
		}
		return nil, fmt.Errorf("failed to load run %d: %w", id, err)
	}
	summaries, err := manager.GetTaskSummaries(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load task summaries: %w", err)
	}
	if summaries == nil {
		summaries = []*loadgen.TaskSummary{}
	}
	return &RunReport{Run: run, Tasks: summaries}, nil
}
