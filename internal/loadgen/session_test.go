package loadgen

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/studiowebux/reviewload/internal/types"
)

// fakeRemote answers each operation with a scripted function and records
// the payloads it received
type fakeRemote struct {
	mu sync.Mutex

	createTeam func(types.Team) (*types.RequestResult, error)
	createPR   func(types.CreatePullRequest) (*types.RequestResult, error)
	merge      func(types.MergePullRequest) (*types.RequestResult, error)
	reassign   func(types.ReassignReviewer) (*types.RequestResult, error)

	teams     []types.Team
	created   []types.CreatePullRequest
	merged    []types.MergePullRequest
	reassigns []types.ReassignReviewer
}

func respond(status int, body string) *types.RequestResult {
	return &types.RequestResult{
		Status:       status,
		Body:         []byte(body),
		Duration:     1,
		ResponseSize: len(body),
	}
}

func (f *fakeRemote) CreateTeam(_ context.Context, team types.Team) (*types.RequestResult, error) {
	f.mu.Lock()
	f.teams = append(f.teams, team)
	f.mu.Unlock()
	if f.createTeam != nil {
		return f.createTeam(team)
	}
	return respond(201, `{}`), nil
}

func (f *fakeRemote) CreatePullRequest(_ context.Context, pr types.CreatePullRequest) (*types.RequestResult, error) {
	f.mu.Lock()
	f.created = append(f.created, pr)
	f.mu.Unlock()
	if f.createPR != nil {
		return f.createPR(pr)
	}
	return respond(201, `{"pr":{"assigned_reviewers":[]}}`), nil
}

func (f *fakeRemote) MergePullRequest(_ context.Context, req types.MergePullRequest) (*types.RequestResult, error) {
	f.mu.Lock()
	f.merged = append(f.merged, req)
	f.mu.Unlock()
	if f.merge != nil {
		return f.merge(req)
	}
	return respond(200, `{}`), nil
}

func (f *fakeRemote) ReassignReviewer(_ context.Context, req types.ReassignReviewer) (*types.RequestResult, error) {
	f.mu.Lock()
	f.reassigns = append(f.reassigns, req)
	f.mu.Unlock()
	if f.reassign != nil {
		return f.reassign(req)
	}
	return respond(409, `{}`), nil
}

func (f *fakeRemote) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.teams) + len(f.created) + len(f.merged) + len(f.reassigns)
}

// resultRecorder collects reported task results
type resultRecorder struct {
	mu      sync.Mutex
	results []TaskResult
}

func (r *resultRecorder) report(result TaskResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

func (r *resultRecorder) outcomes(task TaskKind) []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Outcome
	for _, res := range r.results {
		if res.Task == task {
			out = append(out, res.Outcome)
		}
	}
	return out
}

func newTestSession(t *testing.T, remote RemoteService, registry *Registry, recorder *resultRecorder) *Session {
	t.Helper()
	cfg := DefaultConfig()
	cfg.TeamSize = 3
	cfg.WaitMinSec = 0
	cfg.WaitMaxSec = 0

	session, err := NewSession(1, SessionDeps{
		Config:   cfg,
		Remote:   remote,
		Registry: registry,
		Namer:    NewTeamNamer(cfg.TeamPrefix),
		Factory:  &Factory{suffix: func() string { return "test" }},
		Report:   recorder.report,
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return session
}

func sameSet(a, b []string) bool {
	a, b = slices.Clone(a), slices.Clone(b)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}

func TestSession_EndToEnd(t *testing.T) {
	ctx := context.Background()
	createBodies := []string{
		`{"pr":{"assigned_reviewers":["load-team-1-user-1","load-team-1-user-3"]}}`,
		`{"pr":{"assigned_reviewers":[]}}`,
	}
	remote := &fakeRemote{}
	remote.createPR = func(types.CreatePullRequest) (*types.RequestResult, error) {
		body := createBodies[0]
		createBodies = createBodies[1:]
		return respond(201, body), nil
	}
	remote.reassign = func(types.ReassignReviewer) (*types.RequestResult, error) {
		return respond(200, `{"replaced_by":"load-team-1-user-5"}`), nil
	}

	registry := NewRegistry()
	recorder := &resultRecorder{}
	session := newTestSession(t, remote, registry, recorder)

	// Seed team load-team-1 with 3 users
	if err := session.seed(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if remote.teams[0].TeamName != "load-team-1" {
		t.Errorf("expected team load-team-1, got %s", remote.teams[0].TeamName)
	}
	if counts := registry.Counts(); counts.Teams != 1 || counts.Users != 3 {
		t.Fatalf("expected 1 team and 3 users, got %+v", counts)
	}

	// Create 2 pull requests authored by user-2
	author := "load-team-1-user-2"
	if err := session.createPullRequestsFor(ctx, author, 2); err != nil {
		t.Fatalf("create: %v", err)
	}
	first, second := remote.created[0].ID, remote.created[1].ID

	pr1, ok := registry.Lookup(first)
	if !ok || pr1.Author != author || !sameSet(pr1.Reviewers, []string{"load-team-1-user-1", "load-team-1-user-3"}) {
		t.Fatalf("unexpected first pull request %+v (present %v)", pr1, ok)
	}
	pr2, ok := registry.Lookup(second)
	if !ok || len(pr2.Reviewers) != 0 {
		t.Fatalf("unexpected second pull request %+v (present %v)", pr2, ok)
	}

	// Reassign user-1 on the first pull request; the server only names the replacement
	if err := session.reassign(ctx, first, "load-team-1-user-1"); err != nil {
		t.Fatalf("reassign: %v", err)
	}
	pr1, _ = registry.Lookup(first)
	if !sameSet(pr1.Reviewers, []string{"load-team-1-user-3", "load-team-1-user-5"}) {
		t.Errorf("expected [user-3 user-5], got %v", pr1.Reviewers)
	}

	// Merge the second pull request, then reassign against its id
	if err := session.merge(ctx, second); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if _, ok := registry.Lookup(second); ok {
		t.Fatal("merged pull request should be gone")
	}
	if err := session.reassign(ctx, second, "load-team-1-user-1"); err != nil {
		t.Fatalf("reassign after merge: %v", err)
	}
	if _, ok := registry.Lookup(second); ok {
		t.Error("reassign must not resurrect a merged pull request")
	}
	if got := registry.Counts().PullRequests; got != 1 {
		t.Errorf("expected 1 pull request left, got %d", got)
	}

	if got := recorder.outcomes(TaskCreatePR); len(got) != 2 {
		t.Errorf("expected 2 create results, got %v", got)
	}
	if got := recorder.outcomes(TaskSeedTeam); !slices.Equal(got, []Outcome{OutcomeSuccess}) {
		t.Errorf("expected one successful seed, got %v", got)
	}
}

func TestSession_FullListReplacesReviewers(t *testing.T) {
	remote := &fakeRemote{
		reassign: func(types.ReassignReviewer) (*types.RequestResult, error) {
			return respond(200, `{"pr":{"assigned_reviewers":["u7","u3"]},"replaced_by":"u7"}`), nil
		},
	}
	registry := NewRegistry()
	registry.AddPullRequest(PullRequest{ID: "pr-1", Author: "a", Reviewers: []string{"u1", "u3"}})
	session := newTestSession(t, remote, registry, &resultRecorder{})

	if err := session.reassign(context.Background(), "pr-1", "u1"); err != nil {
		t.Fatalf("reassign: %v", err)
	}
	pr, _ := registry.Lookup("pr-1")
	if !slices.Equal(pr.Reviewers, []string{"u7", "u3"}) {
		t.Errorf("expected server list [u7 u3], got %v", pr.Reviewers)
	}
}

func TestSession_PreconditionsAreNoOps(t *testing.T) {
	remote := &fakeRemote{}
	registry := NewRegistry()
	recorder := &resultRecorder{}
	session := newTestSession(t, remote, registry, recorder)
	ctx := context.Background()

	for _, task := range []TaskKind{TaskCreatePR, TaskMergePR, TaskReassignPR} {
		if err := session.runTask(ctx, task); !errors.Is(err, ErrPreconditionUnmet) {
			t.Errorf("%s on empty registry: expected ErrPreconditionUnmet, got %v", task, err)
		}
	}

	// Users but only pull requests without reviewers
	registry.AddUser("u1")
	registry.AddPullRequest(PullRequest{ID: "pr-1", Author: "u1"})
	if err := session.runTask(ctx, TaskReassignPR); !errors.Is(err, ErrPreconditionUnmet) {
		t.Errorf("reassign without reviewers: expected ErrPreconditionUnmet, got %v", err)
	}

	if remote.calls() != 0 {
		t.Errorf("no request should be issued, got %d", remote.calls())
	}
	if len(recorder.results) != 0 {
		t.Errorf("skipped tasks should not be reported, got %v", recorder.results)
	}
}

func TestSession_SeedFailureContinues(t *testing.T) {
	remote := &fakeRemote{
		createTeam: func(types.Team) (*types.RequestResult, error) {
			return respond(500, `{"error":{"code":"INTERNAL_ERROR"}}`), nil
		},
	}
	registry := NewRegistry()
	recorder := &resultRecorder{}
	session := newTestSession(t, remote, registry, recorder)
	session.deps.Config.MaxIterations = 5

	if err := session.Run(context.Background()); err != nil {
		t.Fatalf("Run should never fail, got %v", err)
	}
	if session.State() != StateStopped {
		t.Errorf("expected stopped state, got %s", session.State())
	}
	if counts := registry.Counts(); counts.Teams != 0 || counts.Users != 0 {
		t.Errorf("failed seed must not register anything, got %+v", counts)
	}
	if got := recorder.outcomes(TaskSeedTeam); !slices.Equal(got, []Outcome{OutcomeUnexpectedStatus}) {
		t.Errorf("expected one failed seed report, got %v", got)
	}
	// Every later task lacks input
	if remote.calls() != 1 {
		t.Errorf("expected only the seed request, got %d calls", remote.calls())
	}
}

func TestSession_SeedAcceptsOK(t *testing.T) {
	remote := &fakeRemote{
		createTeam: func(types.Team) (*types.RequestResult, error) {
			return respond(200, `{}`), nil
		},
	}
	registry := NewRegistry()
	session := newTestSession(t, remote, registry, &resultRecorder{})

	if err := session.seed(context.Background()); err != nil {
		t.Fatalf("seed with 200 should succeed: %v", err)
	}
	if got := registry.Counts().Users; got != 3 {
		t.Errorf("expected 3 users, got %d", got)
	}
}

func TestSession_SeedTransportError(t *testing.T) {
	remote := &fakeRemote{
		createTeam: func(types.Team) (*types.RequestResult, error) {
			return nil, errors.New("connection refused")
		},
	}
	recorder := &resultRecorder{}
	session := newTestSession(t, remote, NewRegistry(), recorder)

	err := session.seed(context.Background())
	if !errors.Is(err, ErrSeedFailed) {
		t.Fatalf("expected ErrSeedFailed, got %v", err)
	}
	if got := recorder.outcomes(TaskSeedTeam); !slices.Equal(got, []Outcome{OutcomeError}) {
		t.Errorf("expected transport error outcome, got %v", got)
	}
}

func TestSession_NonSuccessLeavesRegistryUntouched(t *testing.T) {
	remote := &fakeRemote{
		createPR: func(types.CreatePullRequest) (*types.RequestResult, error) {
			return nil, context.DeadlineExceeded
		},
		merge: func(types.MergePullRequest) (*types.RequestResult, error) {
			return respond(404, `{"error":{"code":"NOT_FOUND"}}`), nil
		},
		reassign: func(types.ReassignReviewer) (*types.RequestResult, error) {
			return respond(409, `{"error":{"code":"NO_CANDIDATE"}}`), nil
		},
	}
	registry := NewRegistry()
	registry.AddPullRequest(PullRequest{ID: "pr-1", Author: "a", Reviewers: []string{"u1", "u2"}})
	recorder := &resultRecorder{}
	session := newTestSession(t, remote, registry, recorder)
	ctx := context.Background()

	if err := session.createPullRequestsFor(ctx, "a", 2); !errors.Is(err, ErrRequestFailed) {
		t.Errorf("expected ErrRequestFailed from create, got %v", err)
	}
	if err := session.merge(ctx, "pr-1"); !errors.Is(err, ErrRequestFailed) {
		t.Errorf("expected ErrRequestFailed from merge, got %v", err)
	}
	if err := session.reassign(ctx, "pr-1", "u1"); !errors.Is(err, ErrRequestFailed) {
		t.Errorf("expected ErrRequestFailed from reassign, got %v", err)
	}

	pr, ok := registry.Lookup("pr-1")
	if !ok || !slices.Equal(pr.Reviewers, []string{"u1", "u2"}) {
		t.Errorf("registry changed after failures: %+v (present %v)", pr, ok)
	}
	if got := registry.Counts().PullRequests; got != 1 {
		t.Errorf("failed creates must not register, got %d pull requests", got)
	}
	if got := recorder.outcomes(TaskCreatePR); !slices.Equal(got, []Outcome{OutcomeError, OutcomeError}) {
		t.Errorf("both payloads should be attempted and reported, got %v", got)
	}
	if got := recorder.outcomes(TaskMergePR); !slices.Equal(got, []Outcome{OutcomeUnexpectedStatus}) {
		t.Errorf("unexpected merge outcomes %v", got)
	}
}

func TestSession_CreateBatchContinuesAfterFailure(t *testing.T) {
	call := 0
	remote := &fakeRemote{
		createPR: func(types.CreatePullRequest) (*types.RequestResult, error) {
			call++
			if call == 2 {
				return respond(409, `{"error":{"code":"PR_EXISTS"}}`), nil
			}
			return respond(201, `{"pr":{"assigned_reviewers":["u1"]}}`), nil
		},
	}
	registry := NewRegistry()
	session := newTestSession(t, remote, registry, &resultRecorder{})

	err := session.createPullRequestsFor(context.Background(), "a", 3)
	if !errors.Is(err, ErrRequestFailed) {
		t.Errorf("expected the failure to be returned, got %v", err)
	}
	if got := registry.Counts().PullRequests; got != 2 {
		t.Errorf("expected 2 registered pull requests, got %d", got)
	}
	if _, ok := registry.Lookup(remote.created[1].ID); ok {
		t.Error("the rejected payload must not be registered")
	}
}

func TestSession_AnomaliesLeaveRegistryUntouched(t *testing.T) {
	remote := &fakeRemote{
		createPR: func(types.CreatePullRequest) (*types.RequestResult, error) {
			return respond(201, `not json`), nil
		},
		reassign: func(types.ReassignReviewer) (*types.RequestResult, error) {
			return respond(200, `{"pr":{"assigned_reviewers":[]}}`), nil
		},
	}
	registry := NewRegistry()
	registry.AddPullRequest(PullRequest{ID: "pr-1", Author: "a", Reviewers: []string{"u1"}})
	recorder := &resultRecorder{}
	session := newTestSession(t, remote, registry, recorder)
	ctx := context.Background()

	if err := session.createPullRequestsFor(ctx, "a", 1); !errors.Is(err, ErrReconciliationAmbiguous) {
		t.Errorf("expected ErrReconciliationAmbiguous from create, got %v", err)
	}
	if err := session.reassign(ctx, "pr-1", "u1"); !errors.Is(err, ErrReconciliationAmbiguous) {
		t.Errorf("expected ErrReconciliationAmbiguous from reassign, got %v", err)
	}

	if got := registry.Counts().PullRequests; got != 1 {
		t.Errorf("anomalous create must not register, got %d", got)
	}
	pr, _ := registry.Lookup("pr-1")
	if !slices.Equal(pr.Reviewers, []string{"u1"}) {
		t.Errorf("anomalous reassign changed reviewers: %v", pr.Reviewers)
	}
	if got := recorder.outcomes(TaskCreatePR); !slices.Equal(got, []Outcome{OutcomeAnomaly}) {
		t.Errorf("expected anomaly for create, got %v", got)
	}
	if got := recorder.outcomes(TaskReassignPR); !slices.Equal(got, []Outcome{OutcomeAnomaly}) {
		t.Errorf("expected anomaly for reassign, got %v", got)
	}
}

func TestSession_ReassignPicksCurrentReviewer(t *testing.T) {
	remote := &fakeRemote{
		reassign: func(req types.ReassignReviewer) (*types.RequestResult, error) {
			return respond(200, `{"replaced_by":"u9"}`), nil
		},
	}
	registry := NewRegistry()
	registry.AddPullRequest(PullRequest{ID: "pr-1", Author: "a", Reviewers: []string{"u1", "u2"}})
	session := newTestSession(t, remote, registry, &resultRecorder{})

	if err := session.reassignReviewer(context.Background()); err != nil {
		t.Fatalf("reassignReviewer: %v", err)
	}
	req := remote.reassigns[0]
	if req.ID != "pr-1" || (req.OldUserID != "u1" && req.OldUserID != "u2") {
		t.Errorf("unexpected reassign request %+v", req)
	}
	pr, _ := registry.Lookup("pr-1")
	if slices.Contains(pr.Reviewers, req.OldUserID) || !slices.Contains(pr.Reviewers, "u9") || len(pr.Reviewers) != 2 {
		t.Errorf("unexpected reviewers after reassign: %v", pr.Reviewers)
	}
}

func TestSession_RunStopsOnCancel(t *testing.T) {
	remote := &fakeRemote{}
	recorder := &resultRecorder{}
	session := newTestSession(t, remote, NewRegistry(), recorder)
	session.deps.Config.WaitMinSec = 0.01
	session.deps.Config.WaitMaxSec = 0.02

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- session.Run(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop after cancellation")
	}
	if session.State() != StateStopped {
		t.Errorf("expected stopped, got %s", session.State())
	}
	if remote.calls() < 2 {
		t.Errorf("expected the session to run tasks before cancellation, got %d calls", remote.calls())
	}
}

func TestSession_ResultsDroppedAfterCancel(t *testing.T) {
	recorder := &resultRecorder{}
	session := newTestSession(t, &fakeRemote{}, NewRegistry(), recorder)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	session.report(ctx, TaskMergePR, OutcomeSuccess, respond(200, `{}`), nil)

	if len(recorder.results) != 0 {
		t.Errorf("results after cancellation should be dropped, got %v", recorder.results)
	}
}

func TestNewSession_RequiresCollaborators(t *testing.T) {
	if _, err := NewSession(1, SessionDeps{Config: DefaultConfig()}); err == nil {
		t.Error("expected error without remote and registry")
	}
}

func TestNewSession_ValidatesConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPullRequestsPerTask = 0

	session, err := NewSession(1, SessionDeps{Config: cfg, Remote: &fakeRemote{}, Registry: NewRegistry()})
	if err == nil {
		t.Fatalf("expected validation error, got session %v", session)
	}
	if session != nil {
		t.Error("no session should be returned for an invalid config")
	}
}

func TestSessionState_String(t *testing.T) {
	for state, want := range map[SessionState]string{
		StateUninitialized: "uninitialized",
		StateSeeding:       "seeding",
		StateRunning:       "running",
		StateStopped:       "stopped",
	} {
		if got := state.String(); got != want {
			t.Errorf("expected %s, got %s", want, got)
		}
	}
}
