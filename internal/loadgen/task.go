package loadgen

// TaskKind identifies a unit of work reported by a session
type TaskKind string

const (
	TaskSeedTeam   TaskKind = "seed_team"
	TaskCreatePR   TaskKind = "create_pr"
	TaskMergePR    TaskKind = "merge_pr"
	TaskReassignPR TaskKind = "reassign_pr"
)

// AllTasks lists every task kind in report order
var AllTasks = []TaskKind{TaskSeedTeam, TaskCreatePR, TaskMergePR, TaskReassignPR}

// Outcome classifies a reported request
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	// OutcomeError is a transport-level failure (no status code)
	OutcomeError Outcome = "error"
	// OutcomeUnexpectedStatus is a response outside the task's success codes
	OutcomeUnexpectedStatus Outcome = "unexpected_status"
	// OutcomeAnomaly is a success status whose body could not be used
	OutcomeAnomaly Outcome = "anomaly"
)

// TaskResult is the result of one request issued by a session
type TaskResult struct {
	SessionID    int
	Task         TaskKind
	Outcome      Outcome
	StatusCode   int
	DurationMs   int64
	RequestSize  int64
	ResponseSize int64
	Err          error
}
