package loadgen

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/studiowebux/reviewload/internal/types"
	"go.uber.org/zap"
)

// SessionState is the lifecycle state of a virtual user
type SessionState int32

const (
	StateUninitialized SessionState = iota
	StateSeeding
	StateRunning
	StateStopped
)

func (s SessionState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateSeeding:
		return "seeding"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("SessionState(%d)", int32(s))
	}
}

// SessionDeps are the run-wide collaborators shared by every session
type SessionDeps struct {
	Config   *Config
	Remote   RemoteService
	Registry *Registry
	Namer    *TeamNamer
	Factory  *Factory
	Logger   *zap.Logger
	// Report receives one TaskResult per request issued. It may be nil.
	Report func(TaskResult)
}

// Session is one virtual user: it seeds a team once, then runs
// scheduler-chosen tasks separated by think-time until stopped.
type Session struct {
	id        int
	deps      SessionDeps
	scheduler *Scheduler
	rnd       *rand.Rand
	logger    *zap.Logger
	state     atomic.Int32
}

// NewSession creates a session with its own random source and scheduler
func NewSession(id int, deps SessionDeps) (*Session, error) {
	if deps.Config == nil || deps.Remote == nil || deps.Registry == nil {
		return nil, fmt.Errorf("session %d: config, remote and registry are required", id)
	}
	if err := deps.Config.Validate(); err != nil {
		return nil, fmt.Errorf("session %d: invalid config: %w", id, err)
	}
	if deps.Namer == nil {
		deps.Namer = NewTeamNamer(deps.Config.TeamPrefix)
	}
	if deps.Factory == nil {
		deps.Factory = NewFactory()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	rnd := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	scheduler, err := NewScheduler(deps.Config.Weights, rnd)
	if err != nil {
		return nil, fmt.Errorf("session %d: %w", id, err)
	}

	return &Session{
		id:        id,
		deps:      deps,
		scheduler: scheduler,
		rnd:       rnd,
		logger:    deps.Logger.With(zap.Int("session", id)),
	}, nil
}

// ID returns the session number
func (s *Session) ID() int {
	return s.id
}

// State returns the current lifecycle state
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) setState(state SessionState) {
	s.state.Store(int32(state))
}

// Run seeds the session and loops over tasks until ctx is cancelled or
// the configured iteration cap is reached. Task failures never end the
// loop; Run always returns nil.
func (s *Session) Run(ctx context.Context) error {
	defer s.setState(StateStopped)

	s.setState(StateSeeding)
	if err := s.seed(ctx); err != nil && ctx.Err() == nil {
		s.logger.Warn("seeding failed, continuing without a team", zap.Error(err))
	}

	s.setState(StateRunning)
	maxIterations := s.deps.Config.MaxIterations
	for iteration := 0; maxIterations == 0 || iteration < maxIterations; iteration++ {
		if ctx.Err() != nil {
			return nil
		}

		task := s.scheduler.Next()
		if err := s.runTask(ctx, task); err != nil {
			switch {
			case errors.Is(err, ErrPreconditionUnmet):
				s.logger.Debug("task skipped", zap.String("task", string(task)), zap.Error(err))
			case ctx.Err() != nil:
				return nil
			default:
				s.logger.Debug("task failed", zap.String("task", string(task)), zap.Error(err))
			}
		}

		if !s.think(ctx) {
			return nil
		}
	}
	return nil
}

// runTask dispatches one scheduler choice
func (s *Session) runTask(ctx context.Context, task TaskKind) error {
	switch task {
	case TaskCreatePR:
		return s.createPullRequests(ctx)
	case TaskMergePR:
		return s.mergePullRequest(ctx)
	case TaskReassignPR:
		return s.reassignReviewer(ctx)
	default:
		return fmt.Errorf("unknown task %q", task)
	}
}

// think sleeps a random duration within the wait bounds.
// It returns false if ctx was cancelled meanwhile.
func (s *Session) think(ctx context.Context) bool {
	minWait, maxWait := s.deps.Config.GetWaitBounds()
	wait := minWait
	if maxWait > minWait {
		wait += time.Duration(s.rnd.Int64N(int64(maxWait - minWait + 1)))
	}
	if wait <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// seed creates the session's team and registers its members
func (s *Session) seed(ctx context.Context) error {
	name := s.deps.Namer.Next()
	team := s.deps.Factory.Team(name, s.deps.Config.TeamSize)

	res, err := s.deps.Remote.CreateTeam(ctx, team)
	outcome, err := classify(res, err, http.StatusOK, http.StatusCreated)
	if err != nil {
		s.report(ctx, TaskSeedTeam, outcome, res, err)
		return fmt.Errorf("%w: team %s: %v", ErrSeedFailed, name, err)
	}

	s.deps.Registry.AddTeam(name)
	for _, member := range team.Members {
		s.deps.Registry.AddUser(member.UserID)
	}
	s.report(ctx, TaskSeedTeam, outcome, res, nil)
	s.logger.Debug("team seeded", zap.String("team", name), zap.Int("members", len(team.Members)))
	return nil
}

// report forwards a result to the run collector. Results produced after the
// run was cancelled are dropped.
func (s *Session) report(ctx context.Context, task TaskKind, outcome Outcome, res *types.RequestResult, err error) {
	if s.deps.Report == nil || ctx.Err() != nil {
		return
	}
	result := TaskResult{
		SessionID: s.id,
		Task:      task,
		Outcome:   outcome,
		Err:       err,
	}
	if res != nil {
		result.StatusCode = res.Status
		result.DurationMs = res.Duration
		result.RequestSize = int64(res.RequestSize)
		result.ResponseSize = int64(res.ResponseSize)
	}
	s.deps.Report(result)
}

// classify maps a remote call onto an outcome. The returned error is nil
// only for OutcomeSuccess.
func classify(res *types.RequestResult, err error, successCodes ...int) (Outcome, error) {
	switch {
	case err != nil:
		return OutcomeError, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	case res == nil:
		return OutcomeError, fmt.Errorf("%w: no response", ErrRequestFailed)
	case res.Error != "":
		if res.Status == 0 {
			return OutcomeError, fmt.Errorf("%w: %s", ErrRequestFailed, res.Error)
		}
		return OutcomeUnexpectedStatus, fmt.Errorf("%w: status %d: %s", ErrRequestFailed, res.Status, res.Error)
	case !res.IsStatus(successCodes...):
		return OutcomeUnexpectedStatus, fmt.Errorf("%w: unexpected status %d", ErrRequestFailed, res.Status)
	}
	return OutcomeSuccess, nil
}
