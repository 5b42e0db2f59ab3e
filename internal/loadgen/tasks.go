package loadgen

import (
	"context"
	"fmt"
	"net/http"

	"github.com/studiowebux/reviewload/internal/types"
	"go.uber.org/zap"
)

// createPullRequests opens 1..MaxPullRequestsPerTask pull requests for a
// random seeded author
func (s *Session) createPullRequests(ctx context.Context) error {
	author, ok := s.deps.Registry.SampleUser()
	if !ok {
		return fmt.Errorf("%w: no users seeded", ErrPreconditionUnmet)
	}
	count := 1 + s.rnd.IntN(s.deps.Config.MaxPullRequestsPerTask)
	return s.createPullRequestsFor(ctx, author, count)
}

// createPullRequestsFor submits count payloads one by one. A failed payload
// does not stop the rest of the batch; the last failure is returned.
func (s *Session) createPullRequestsFor(ctx context.Context, author string, count int) error {
	var lastErr error
	for _, payload := range s.deps.Factory.PullRequests(author, count) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.createPullRequest(ctx, payload); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (s *Session) createPullRequest(ctx context.Context, payload types.CreatePullRequest) error {
	res, err := s.deps.Remote.CreatePullRequest(ctx, payload)
	outcome, err := classify(res, err, http.StatusCreated)
	if err != nil {
		s.report(ctx, TaskCreatePR, outcome, res, err)
		return fmt.Errorf("create %s: %w", payload.ID, err)
	}

	reviewers, err := DecodeAssignedReviewers(res.Body)
	if err != nil {
		s.report(ctx, TaskCreatePR, OutcomeAnomaly, res, err)
		s.logger.Warn("unusable create response", zap.String("pull_request_id", payload.ID), zap.Error(err))
		return fmt.Errorf("create %s: %w", payload.ID, err)
	}

	added := s.deps.Registry.AddPullRequest(PullRequest{
		ID:        payload.ID,
		Author:    payload.AuthorID,
		Reviewers: reviewers,
	})
	if !added {
		s.logger.Warn("duplicate pull request id ignored", zap.String("pull_request_id", payload.ID))
	}
	s.report(ctx, TaskCreatePR, OutcomeSuccess, res, nil)
	return nil
}

// mergePullRequest merges a random tracked pull request
func (s *Session) mergePullRequest(ctx context.Context) error {
	pr, ok := s.deps.Registry.SamplePullRequest()
	if !ok {
		return fmt.Errorf("%w: no pull requests", ErrPreconditionUnmet)
	}
	return s.merge(ctx, pr.ID)
}

func (s *Session) merge(ctx context.Context, id string) error {
	res, err := s.deps.Remote.MergePullRequest(ctx, types.MergePullRequest{ID: id})
	outcome, err := classify(res, err, http.StatusOK)
	s.report(ctx, TaskMergePR, outcome, res, err)
	if err != nil {
		return fmt.Errorf("merge %s: %w", id, err)
	}
	s.deps.Registry.RemovePullRequest(id)
	return nil
}

// reassignReviewer replaces a random reviewer of a random pull request that
// has reviewers
func (s *Session) reassignReviewer(ctx context.Context) error {
	pr, ok := s.deps.Registry.SamplePullRequestWithReviewers()
	if !ok {
		return fmt.Errorf("%w: no pull request with reviewers", ErrPreconditionUnmet)
	}
	old := pr.Reviewers[s.rnd.IntN(len(pr.Reviewers))]
	return s.reassign(ctx, pr.ID, old)
}

func (s *Session) reassign(ctx context.Context, id, oldUserID string) error {
	res, err := s.deps.Remote.ReassignReviewer(ctx, types.ReassignReviewer{ID: id, OldUserID: oldUserID})
	outcome, err := classify(res, err, http.StatusOK)
	if err != nil {
		s.report(ctx, TaskReassignPR, outcome, res, err)
		return fmt.Errorf("reassign %s: %w", id, err)
	}

	reconciled, err := DecodeReassignResponse(res.Body, oldUserID)
	if err != nil {
		s.report(ctx, TaskReassignPR, OutcomeAnomaly, res, err)
		s.logger.Warn("unusable reassign response", zap.String("pull_request_id", id), zap.Error(err))
		return fmt.Errorf("reassign %s: %w", id, err)
	}

	if !s.deps.Registry.UpdateReviewers(id, reconciled.Apply) {
		s.logger.Debug("reassigned pull request no longer tracked", zap.String("pull_request_id", id))
	}
	s.report(ctx, TaskReassignPR, OutcomeSuccess, res, nil)
	return nil
}
