package loadgen

import (
	"math/rand/v2"
	"slices"
	"sync"
)

// PullRequest is the locally tracked state of an open pull request
type PullRequest struct {
	ID        string
	Author    string
	Reviewers []string
}

func (p PullRequest) clone() PullRequest {
	p.Reviewers = slices.Clone(p.Reviewers)
	return p
}

// Counts is a point-in-time size of the registry collections
type Counts struct {
	Teams        int
	Users        int
	PullRequests int
}

// Registry holds the teams, users and pull requests shared by all sessions
// of a run. Every method is safe for concurrent use and atomic on its own;
// values handed out are copies.
type Registry struct {
	mu    sync.RWMutex
	teams []string
	users []string
	prs   []PullRequest
	index map[string]int // pull request id -> position in prs
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		index: make(map[string]int),
	}
}

// AddTeam records a seeded team name
func (r *Registry) AddTeam(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.teams = append(r.teams, name)
}

// AddUser records a seeded user id
func (r *Registry) AddUser(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, userID)
}

// AddPullRequest stores pr. It returns false and leaves the registry
// untouched when a record with the same id already exists.
func (r *Registry) AddPullRequest(pr PullRequest) bool {
	pr = pr.clone()
	pr.Reviewers = normalizeReviewers(pr.Reviewers)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.index[pr.ID]; exists {
		return false
	}
	r.index[pr.ID] = len(r.prs)
	r.prs = append(r.prs, pr)
	return true
}

// RemovePullRequest deletes the record with the given id.
// It returns false when no such record exists.
func (r *Registry) RemovePullRequest(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos, ok := r.index[id]
	if !ok {
		return false
	}
	last := len(r.prs) - 1
	if pos != last {
		r.prs[pos] = r.prs[last]
		r.index[r.prs[pos].ID] = pos
	}
	r.prs[last] = PullRequest{}
	r.prs = r.prs[:last]
	delete(r.index, id)
	return true
}

// SampleUser returns a uniformly chosen user id
func (r *Registry) SampleUser() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.users) == 0 {
		return "", false
	}
	return r.users[rand.IntN(len(r.users))], true
}

// SamplePullRequest returns a copy of a uniformly chosen pull request
func (r *Registry) SamplePullRequest() (PullRequest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.prs) == 0 {
		return PullRequest{}, false
	}
	return r.prs[rand.IntN(len(r.prs))].clone(), true
}

// SamplePullRequestWithReviewers returns a copy of a uniformly chosen pull
// request among those with at least one reviewer
func (r *Registry) SamplePullRequestWithReviewers() (PullRequest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Reservoir sampling keeps the choice uniform without allocating the subset
	chosen := -1
	seen := 0
	for i := range r.prs {
		if len(r.prs[i].Reviewers) == 0 {
			continue
		}
		seen++
		if rand.IntN(seen) == 0 {
			chosen = i
		}
	}
	if chosen < 0 {
		return PullRequest{}, false
	}
	return r.prs[chosen].clone(), true
}

// SetReviewers replaces the reviewer set of a pull request still present
func (r *Registry) SetReviewers(id string, reviewers []string) bool {
	reviewers = slices.Clone(reviewers)
	return r.UpdateReviewers(id, func([]string) []string { return reviewers })
}

// UpdateReviewers applies fn to the current reviewer set of the pull request
// and stores the result, all under the registry lock. fn receives a copy.
// It is a no-op returning false when the pull request is gone.
func (r *Registry) UpdateReviewers(id string, fn func(current []string) []string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos, ok := r.index[id]
	if !ok {
		return false
	}
	r.prs[pos].Reviewers = normalizeReviewers(fn(slices.Clone(r.prs[pos].Reviewers)))
	return true
}

// Lookup returns a copy of the pull request with the given id
func (r *Registry) Lookup(id string) (PullRequest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pos, ok := r.index[id]
	if !ok {
		return PullRequest{}, false
	}
	return r.prs[pos].clone(), true
}

// PullRequests returns a snapshot of every tracked pull request
func (r *Registry) PullRequests() []PullRequest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PullRequest, len(r.prs))
	for i := range r.prs {
		out[i] = r.prs[i].clone()
	}
	return out
}

// Users returns a snapshot of the seeded user ids
func (r *Registry) Users() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.users)
}

// Counts returns the current collection sizes
func (r *Registry) Counts() Counts {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Counts{
		Teams:        len(r.teams),
		Users:        len(r.users),
		PullRequests: len(r.prs),
	}
}

// normalizeReviewers drops empty ids and duplicates, keeping first-seen order.
// The result is never nil.
func normalizeReviewers(reviewers []string) []string {
	out := make([]string, 0, len(reviewers))
	for _, id := range reviewers {
		if id == "" || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}
