package types

// TeamMember is a user entry inside a team payload
type TeamMember struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	IsActive bool   `json:"is_active"`
}

// Team is the body of POST /team/add
type Team struct {
	TeamName string       `json:"team_name"`
	Members  []TeamMember `json:"members"`
}

// TeamResponse wraps a team returned by the service
type TeamResponse struct {
	Team Team `json:"team"`
}

// CreatePullRequest is the body of POST /pullRequest/create
type CreatePullRequest struct {
	ID       string `json:"pull_request_id"`
	Name     string `json:"pull_request_name"`
	AuthorID string `json:"author_id"`
}

// MergePullRequest is the body of POST /pullRequest/merge
type MergePullRequest struct {
	ID string `json:"pull_request_id"`
}

// ReassignReviewer is the body of POST /pullRequest/reassign
type ReassignReviewer struct {
	ID        string `json:"pull_request_id"`
	OldUserID string `json:"old_user_id"`
}

// Pull request statuses reported by the service
const (
	StatusOpen   = "OPEN"
	StatusMerged = "MERGED"
)

// PullRequest is the pull request representation returned by the service
type PullRequest struct {
	ID                string   `json:"pull_request_id"`
	Name              string   `json:"pull_request_name"`
	AuthorID          string   `json:"author_id"`
	Status            string   `json:"status"`
	AssignedReviewers []string `json:"assigned_reviewers"`
	CreatedAt         string   `json:"createdAt,omitempty"`
	MergedAt          string   `json:"mergedAt,omitempty"`
}

// PullRequestResponse is returned by create, merge and reassign.
// ReplacedBy is only set by reassign.
type PullRequestResponse struct {
	PR         *PullRequest `json:"pr,omitempty"`
	ReplacedBy string       `json:"replaced_by,omitempty"`
}

// ErrorCode is a machine-readable error code from the service
type ErrorCode string

const (
	ErrorCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrorCodePRMerged     ErrorCode = "PR_MERGED"
	ErrorCodeNotAssigned  ErrorCode = "NOT_ASSIGNED"
	ErrorCodeNoCandidate  ErrorCode = "NO_CANDIDATE"
	ErrorCodeTeamExists   ErrorCode = "TEAM_EXISTS"
	ErrorCodePRExists     ErrorCode = "PR_EXISTS"
	ErrorCodeInvalidInput ErrorCode = "INVALID_REQUEST"
)

// ErrorBody is the inner part of an error envelope
type ErrorBody struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ErrorResponse is the error envelope returned with 4xx responses
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}
