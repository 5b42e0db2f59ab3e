package loadgen

import (
	"fmt"
	"time"

	"github.com/studiowebux/reviewload/internal/types"
)

// Default scenario values
const (
	DefaultTeamPrefix             = "load-team"
	DefaultTeamSize               = 20
	DefaultMaxPullRequestsPerTask = 5
	DefaultWaitMinSec             = 0.05
	DefaultWaitMaxSec             = 0.2
	DefaultRequestTimeoutSec      = 10
)

// Weights holds the relative selection weight of each task
type Weights struct {
	Create   int `yaml:"create" json:"create"`
	Merge    int `yaml:"merge" json:"merge"`
	Reassign int `yaml:"reassign" json:"reassign"`
}

// Config represents a load run scenario
type Config struct {
	Name                   string           `yaml:"name" json:"name"`
	Host                   string           `yaml:"host" json:"host"`
	Users                  int              `yaml:"users" json:"users"`
	SpawnRate              float64          `yaml:"spawn_rate" json:"spawnRate"`         // sessions started per second, 0 = all at once
	TestDurationSec        int              `yaml:"duration_sec" json:"durationSec"`     // 0 = until stopped
	MaxIterations          int              `yaml:"max_iterations" json:"maxIterations"` // tasks per session, 0 = unbounded
	WaitMinSec             float64          `yaml:"wait_min_sec" json:"waitMinSec"`
	WaitMaxSec             float64          `yaml:"wait_max_sec" json:"waitMaxSec"`
	TeamPrefix             string           `yaml:"team_prefix" json:"teamPrefix"`
	TeamSize               int              `yaml:"team_size" json:"teamSize"`
	MaxPullRequestsPerTask int              `yaml:"max_prs_per_task" json:"maxPrsPerTask"`
	Weights                Weights          `yaml:"weights" json:"weights"`
	RequestTimeoutSec      int              `yaml:"request_timeout_sec" json:"requestTimeoutSec"`
	RatePerSecond          float64          `yaml:"rate_per_second" json:"ratePerSecond"` // global request cap, 0 = unlimited
	TLS                    *types.TLSConfig `yaml:"tls,omitempty" json:"tls,omitempty"`
}

// DefaultConfig returns a scenario with the harness defaults applied
func DefaultConfig() *Config {
	return &Config{
		Name:                   "review-load",
		Users:                  10,
		WaitMinSec:             DefaultWaitMinSec,
		WaitMaxSec:             DefaultWaitMaxSec,
		TeamPrefix:             DefaultTeamPrefix,
		TeamSize:               DefaultTeamSize,
		MaxPullRequestsPerTask: DefaultMaxPullRequestsPerTask,
		Weights:                Weights{Create: 1, Merge: 1, Reassign: 1},
		RequestTimeoutSec:      DefaultRequestTimeoutSec,
	}
}

// Validate validates the scenario
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("scenario name is required")
	}
	if c.Users <= 0 {
		return fmt.Errorf("users must be greater than 0")
	}
	if c.Users > 10000 {
		return fmt.Errorf("users cannot exceed 10,000")
	}
	if c.SpawnRate < 0 {
		return fmt.Errorf("spawn rate cannot be negative")
	}
	if c.TestDurationSec < 0 {
		return fmt.Errorf("test duration cannot be negative")
	}
	if c.MaxIterations < 0 {
		return fmt.Errorf("max iterations cannot be negative")
	}
	if c.WaitMinSec < 0 || c.WaitMaxSec < 0 {
		return fmt.Errorf("wait time bounds cannot be negative")
	}
	if c.WaitMaxSec < c.WaitMinSec {
		return fmt.Errorf("wait_max_sec (%g) must be >= wait_min_sec (%g)", c.WaitMaxSec, c.WaitMinSec)
	}
	if c.TeamPrefix == "" {
		return fmt.Errorf("team prefix is required")
	}
	if c.TeamSize <= 0 {
		return fmt.Errorf("team size must be greater than 0")
	}
	if c.MaxPullRequestsPerTask <= 0 {
		return fmt.Errorf("max pull requests per task must be greater than 0")
	}
	if c.Weights.Create < 0 || c.Weights.Merge < 0 || c.Weights.Reassign < 0 {
		return fmt.Errorf("task weights cannot be negative")
	}
	if c.Weights.Create+c.Weights.Merge+c.Weights.Reassign == 0 {
		return fmt.Errorf("at least one task weight must be greater than 0")
	}
	if c.RequestTimeoutSec < 0 {
		return fmt.Errorf("request timeout cannot be negative")
	}
	if c.RatePerSecond < 0 {
		return fmt.Errorf("rate per second cannot be negative")
	}
	return nil
}

// GetSpawnInterval returns the delay between two session starts
func (c *Config) GetSpawnInterval() time.Duration {
	if c.SpawnRate <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / c.SpawnRate)
}

// GetTestDuration returns the test duration as time.Duration
func (c *Config) GetTestDuration() time.Duration {
	if c.TestDurationSec == 0 {
		return 0 // Unlimited
	}
	return time.Duration(c.TestDurationSec) * time.Second
}

// GetRequestTimeout returns the request timeout as time.Duration
func (c *Config) GetRequestTimeout() time.Duration {
	if c.RequestTimeoutSec == 0 {
		return DefaultRequestTimeoutSec * time.Second
	}
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// GetWaitBounds returns the think-time bounds
func (c *Config) GetWaitBounds() (time.Duration, time.Duration) {
	return secondsToDuration(c.WaitMinSec), secondsToDuration(c.WaitMaxSec)
}

func secondsToDuration(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}

// Run represents a load run record
type Run struct {
	ID               int64
	RunUUID          string
	Name             string
	Host             string
	Users            int
	StartedAt        time.Time
	CompletedAt      *time.Time
	Status           string // "running", "completed", "cancelled", "failed"
	TotalRequests    int
	TotalSuccesses   int
	TotalErrors      int // transport errors
	TotalFailures    int // unexpected status codes
	TotalAnomalies   int // success status with an unusable body
	TeamsSeeded      int
	UsersSeeded      int
	OpenPullRequests int
	AvgDurationMs    float64
	MinDurationMs    int64
	MaxDurationMs    int64
	P50DurationMs    int64
	P95DurationMs    int64
	P99DurationMs    int64
}

// Metric represents a single request metric in a load run
type Metric struct {
	ID           int64
	RunID        int64
	Timestamp    time.Time
	ElapsedMs    int64
	SessionID    int
	Task         TaskKind
	Outcome      Outcome
	StatusCode   int
	DurationMs   int64
	RequestSize  int64
	ResponseSize int64
	ErrorMessage string
}

// TaskSummary aggregates the metrics of one task kind within a run
type TaskSummary struct {
	Task          TaskKind
	Requests      int
	Successes     int
	Errors        int
	Failures      int
	Anomalies     int
	AvgDurationMs float64
	MaxDurationMs int64
}

// IsRunning returns true if the run is currently in progress
func (r *Run) IsRunning() bool {
	return r.Status == "running"
}

// IsCompleted returns true if the run has finished
func (r *Run) IsCompleted() bool {
	return r.Status == "completed" || r.Status == "cancelled" || r.Status == "failed"
}
