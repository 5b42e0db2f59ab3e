package loadgen

import (
	"context"

	"github.com/studiowebux/reviewload/internal/types"
)

// RemoteService is the review-assignment service under load.
// Implementations return a non-nil error only when no response was
// received at all; the status code is left to the caller to judge.
type RemoteService interface {
	CreateTeam(ctx context.Context, team types.Team) (*types.RequestResult, error)
	CreatePullRequest(ctx context.Context, pr types.CreatePullRequest) (*types.RequestResult, error)
	MergePullRequest(ctx context.Context, req types.MergePullRequest) (*types.RequestResult, error)
	ReassignReviewer(ctx context.Context, req types.ReassignReviewer) (*types.RequestResult, error)
}
