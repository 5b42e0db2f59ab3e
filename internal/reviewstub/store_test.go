package reviewstub

import (
	"errors"
	"slices"
	"testing"

	"github.com/studiowebux/reviewload/internal/types"
)

func seedTeam(t *testing.T, s *Store, name string, ids ...string) {
	t.Helper()
	members := make([]types.TeamMember, 0, len(ids))
	for _, id := range ids {
		members = append(members, types.TeamMember{UserID: id, Username: id, IsActive: true})
	}
	if _, err := s.AddTeam(types.Team{TeamName: name, Members: members}); err != nil {
		t.Fatalf("AddTeam: %v", err)
	}
}

func TestStore_AddTeam(t *testing.T) {
	s := NewStore(2)
	seedTeam(t, s, "team-1", "u1", "u2")

	if _, err := s.AddTeam(types.Team{TeamName: "team-1"}); !errors.Is(err, ErrTeamExists) {
		t.Errorf("expected ErrTeamExists, got %v", err)
	}
	if _, err := s.AddTeam(types.Team{}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty name, got %v", err)
	}
	if _, err := s.AddTeam(types.Team{TeamName: "team-2", Members: []types.TeamMember{{UserID: ""}}}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty member id, got %v", err)
	}
	// The rejected team must not exist
	if _, err := s.AddTeam(types.Team{TeamName: "team-2"}); err != nil {
		t.Errorf("team-2 should still be free: %v", err)
	}
}

func TestStore_CreatePullRequestAssignsTeammates(t *testing.T) {
	s := NewStore(2)
	seedTeam(t, s, "team-1", "u1", "u2", "u3", "u4")

	pr, err := s.CreatePullRequest(types.CreatePullRequest{ID: "pr-1", Name: "Feature", AuthorID: "u2"})
	if err != nil {
		t.Fatalf("CreatePullRequest: %v", err)
	}
	if pr.Status != types.StatusOpen {
		t.Errorf("expected OPEN, got %s", pr.Status)
	}
	if len(pr.AssignedReviewers) != 2 {
		t.Fatalf("expected 2 reviewers, got %v", pr.AssignedReviewers)
	}
	if slices.Contains(pr.AssignedReviewers, "u2") {
		t.Error("author must not review their own pull request")
	}
	if pr.AssignedReviewers[0] == pr.AssignedReviewers[1] {
		t.Errorf("duplicate reviewer %v", pr.AssignedReviewers)
	}

	if _, err := s.CreatePullRequest(types.CreatePullRequest{ID: "pr-1", Name: "Again", AuthorID: "u1"}); !errors.Is(err, ErrPRExists) {
		t.Errorf("expected ErrPRExists, got %v", err)
	}
	if _, err := s.CreatePullRequest(types.CreatePullRequest{ID: "pr-2", Name: "X", AuthorID: "ghost"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown author, got %v", err)
	}
}

func TestStore_CreatePullRequestSoloTeam(t *testing.T) {
	s := NewStore(2)
	seedTeam(t, s, "solo", "u1")

	pr, err := s.CreatePullRequest(types.CreatePullRequest{ID: "pr-1", Name: "Feature", AuthorID: "u1"})
	if err != nil {
		t.Fatalf("CreatePullRequest: %v", err)
	}
	if pr.AssignedReviewers == nil || len(pr.AssignedReviewers) != 0 {
		t.Errorf("expected empty non-nil reviewers, got %#v", pr.AssignedReviewers)
	}
}

func TestStore_MergeIsIdempotent(t *testing.T) {
	s := NewStore(1)
	seedTeam(t, s, "team-1", "u1", "u2")
	s.CreatePullRequest(types.CreatePullRequest{ID: "pr-1", Name: "Feature", AuthorID: "u1"})

	first, err := s.MergePullRequest("pr-1")
	if err != nil || first.Status != types.StatusMerged {
		t.Fatalf("merge: %v %+v", err, first)
	}
	second, err := s.MergePullRequest("pr-1")
	if err != nil || second.MergedAt != first.MergedAt {
		t.Errorf("second merge should be a no-op: %v %+v", err, second)
	}
	if _, err := s.MergePullRequest("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if open := s.OpenPullRequests(); len(open) != 0 {
		t.Errorf("merged pull request still listed as open: %v", open)
	}
}

func TestStore_Reassign(t *testing.T) {
	s := NewStore(1)
	seedTeam(t, s, "team-1", "u1", "u2", "u3")
	pr, _ := s.CreatePullRequest(types.CreatePullRequest{ID: "pr-1", Name: "Feature", AuthorID: "u1"})
	old := pr.AssignedReviewers[0]

	updated, replacement, err := s.Reassign("pr-1", old)
	if err != nil {
		t.Fatalf("Reassign: %v", err)
	}
	if replacement == old || replacement == "u1" {
		t.Errorf("invalid replacement %s", replacement)
	}
	if !slices.Equal(updated.AssignedReviewers, []string{replacement}) {
		t.Errorf("expected [%s], got %v", replacement, updated.AssignedReviewers)
	}

	if _, _, err := s.Reassign("pr-1", old); !errors.Is(err, ErrNotAssigned) {
		t.Errorf("expected ErrNotAssigned, got %v", err)
	}
	if _, _, err := s.Reassign("missing", "u1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	// The only free teammate is the previous reviewer
	if _, back, err := s.Reassign("pr-1", replacement); err != nil || back != old {
		t.Errorf("expected swap back to %s, got %s (%v)", old, back, err)
	}

	s.MergePullRequest("pr-1")
	current, _ := s.PullRequest("pr-1")
	if _, _, err := s.Reassign("pr-1", current.AssignedReviewers[0]); !errors.Is(err, ErrPRMerged) {
		t.Errorf("expected ErrPRMerged, got %v", err)
	}
}

func TestStore_ReassignWithoutCandidate(t *testing.T) {
	s := NewStore(1)
	seedTeam(t, s, "pair", "u1", "u2")
	s.CreatePullRequest(types.CreatePullRequest{ID: "pr-1", Name: "Feature", AuthorID: "u1"})

	if _, _, err := s.Reassign("pr-1", "u2"); !errors.Is(err, ErrNoCandidate) {
		t.Errorf("expected ErrNoCandidate, got %v", err)
	}
	pr, _ := s.PullRequest("pr-1")
	if !slices.Equal(pr.AssignedReviewers, []string{"u2"}) {
		t.Errorf("failed reassign changed reviewers: %v", pr.AssignedReviewers)
	}
}

func TestStore_ReturnsCopies(t *testing.T) {
	s := NewStore(1)
	seedTeam(t, s, "team-1", "u1", "u2")
	pr, _ := s.CreatePullRequest(types.CreatePullRequest{ID: "pr-1", Name: "Feature", AuthorID: "u1"})
	pr.AssignedReviewers[0] = "mutated"

	stored, _ := s.PullRequest("pr-1")
	if stored.AssignedReviewers[0] != "u2" {
		t.Errorf("store changed through a returned copy: %v", stored.AssignedReviewers)
	}
}
