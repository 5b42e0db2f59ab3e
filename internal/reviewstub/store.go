package reviewstub

import (
	"errors"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/studiowebux/reviewload/internal/types"
)

var (
	ErrTeamExists   = errors.New("team already exists")
	ErrNotFound     = errors.New("resource not found")
	ErrPRExists     = errors.New("pull request already exists")
	ErrPRMerged     = errors.New("pull request is merged")
	ErrNotAssigned  = errors.New("reviewer is not assigned to this pull request")
	ErrNoCandidate  = errors.New("no active replacement candidate in team")
	ErrInvalidInput = errors.New("invalid request")
)

type user struct {
	id       string
	username string
	team     string
	active   bool
}

// Store is the in-memory state of the stub service
type Store struct {
	mu             sync.Mutex
	reviewersPerPR int
	teams          map[string][]string // team -> member ids in insertion order
	users          map[string]*user
	prs            map[string]*types.PullRequest
	now            func() time.Time
}

// NewStore creates an empty store assigning up to reviewersPerPR reviewers
func NewStore(reviewersPerPR int) *Store {
	if reviewersPerPR <= 0 {
		reviewersPerPR = 2
	}
	return &Store{
		reviewersPerPR: reviewersPerPR,
		teams:          make(map[string][]string),
		users:          make(map[string]*user),
		prs:            make(map[string]*types.PullRequest),
		now:            time.Now,
	}
}

// AddTeam creates a team and upserts its members
func (s *Store) AddTeam(team types.Team) (types.Team, error) {
	if team.TeamName == "" {
		return types.Team{}, ErrInvalidInput
	}
	for _, member := range team.Members {
		if member.UserID == "" {
			return types.Team{}, ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.teams[team.TeamName]; exists {
		return types.Team{}, ErrTeamExists
	}

	ids := make([]string, 0, len(team.Members))
	for _, member := range team.Members {
		if previous, ok := s.users[member.UserID]; ok && previous.team != team.TeamName {
			s.teams[previous.team] = slices.DeleteFunc(s.teams[previous.team], func(id string) bool {
				return id == member.UserID
			})
		}
		s.users[member.UserID] = &user{
			id:       member.UserID,
			username: member.Username,
			team:     team.TeamName,
			active:   member.IsActive,
		}
		ids = append(ids, member.UserID)
	}
	s.teams[team.TeamName] = ids
	return team, nil
}

// CreatePullRequest opens a pull request and assigns reviewers from the
// author's team
func (s *Store) CreatePullRequest(req types.CreatePullRequest) (types.PullRequest, error) {
	if req.ID == "" || req.Name == "" || req.AuthorID == "" {
		return types.PullRequest{}, ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.prs[req.ID]; exists {
		return types.PullRequest{}, ErrPRExists
	}
	author, ok := s.users[req.AuthorID]
	if !ok {
		return types.PullRequest{}, ErrNotFound
	}

	candidates := s.candidates(author.team, []string{author.id})
	rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	if len(candidates) > s.reviewersPerPR {
		candidates = candidates[:s.reviewersPerPR]
	}

	pr := &types.PullRequest{
		ID:                req.ID,
		Name:              req.Name,
		AuthorID:          req.AuthorID,
		Status:            types.StatusOpen,
		AssignedReviewers: candidates,
		CreatedAt:         s.now().UTC().Format(time.RFC3339),
	}
	s.prs[pr.ID] = pr
	return clonePR(pr), nil
}

// MergePullRequest marks a pull request merged; merging twice is allowed
func (s *Store) MergePullRequest(id string) (types.PullRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pr, ok := s.prs[id]
	if !ok {
		return types.PullRequest{}, ErrNotFound
	}
	if pr.Status != types.StatusMerged {
		pr.Status = types.StatusMerged
		pr.MergedAt = s.now().UTC().Format(time.RFC3339)
	}
	return clonePR(pr), nil
}

// Reassign replaces oldUserID with a random active member of the old
// reviewer's team who is neither the author nor already assigned
func (s *Store) Reassign(id, oldUserID string) (types.PullRequest, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pr, ok := s.prs[id]
	if !ok {
		return types.PullRequest{}, "", ErrNotFound
	}
	old, ok := s.users[oldUserID]
	if !ok {
		return types.PullRequest{}, "", ErrNotFound
	}
	if pr.Status == types.StatusMerged {
		return types.PullRequest{}, "", ErrPRMerged
	}
	pos := slices.Index(pr.AssignedReviewers, oldUserID)
	if pos < 0 {
		return types.PullRequest{}, "", ErrNotAssigned
	}

	exclude := append([]string{pr.AuthorID}, pr.AssignedReviewers...)
	candidates := s.candidates(old.team, exclude)
	if len(candidates) == 0 {
		return types.PullRequest{}, "", ErrNoCandidate
	}
	replacement := candidates[rand.IntN(len(candidates))]
	pr.AssignedReviewers[pos] = replacement
	return clonePR(pr), replacement, nil
}

// PullRequest returns a copy of a stored pull request
func (s *Store) PullRequest(id string) (types.PullRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pr, ok := s.prs[id]
	if !ok {
		return types.PullRequest{}, false
	}
	return clonePR(pr), true
}

// OpenPullRequests returns copies of every pull request not yet merged
func (s *Store) OpenPullRequests() []types.PullRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.PullRequest
	for _, pr := range s.prs {
		if pr.Status == types.StatusOpen {
			out = append(out, clonePR(pr))
		}
	}
	return out
}

// candidates returns the active members of team not listed in exclude.
// Caller holds s.mu.
func (s *Store) candidates(team string, exclude []string) []string {
	var out []string
	for _, id := range s.teams[team] {
		if slices.Contains(exclude, id) {
			continue
		}
		if u := s.users[id]; u != nil && u.active {
			out = append(out, id)
		}
	}
	return out
}

func clonePR(pr *types.PullRequest) types.PullRequest {
	c := *pr
	c.AssignedReviewers = slices.Clone(pr.AssignedReviewers)
	if c.AssignedReviewers == nil {
		c.AssignedReviewers = []string{}
	}
	return c
}
