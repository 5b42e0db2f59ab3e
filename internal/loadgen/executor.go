package loadgen

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// metricsBufferSize is the number of metrics buffered before a batch insert
const metricsBufferSize = 100

// ExecutionConfig contains the runtime configuration for a load run
type ExecutionConfig struct {
	Config *Config
	Remote RemoteService
	Logger *zap.Logger
	// Registerer receives the run's Prometheus collectors. Optional.
	Registerer prometheus.Registerer
}

// collectedResult is a TaskResult stamped by the executor
type collectedResult struct {
	TaskResult
	Timestamp time.Time
	ElapsedMs int64
}

// Executor runs a population of sessions against a RemoteService
type Executor struct {
	config   *ExecutionConfig
	manager  *Manager
	run      *Run
	registry *Registry
	namer    *TeamNamer
	factory  *Factory
	metrics  *Metrics
	logger   *zap.Logger

	ctx        context.Context
	cancelFunc context.CancelFunc
	started    atomic.Bool
	stopped    atomic.Bool // set when the run was interrupted rather than finished

	resultChan    chan *collectedResult
	closeOnce     sync.Once // Ensures resultChan is only closed once
	abandonOnce   sync.Once
	abandon       chan struct{} // closed when a bounded stop gives up on the sessions
	finalizeOnce  sync.Once
	sessionsDone  chan struct{}
	collectorDone chan struct{}
	groupErr      error

	testStart      time.Time
	statsMu        sync.Mutex
	taskStats      map[TaskKind]*Stats
	totalStats     *Stats
	activeSessions atomic.Int32
	metricsBuf     []*Metric
}

// NewExecutor validates the configuration and creates the run record
func NewExecutor(config *ExecutionConfig, manager *Manager) (*Executor, error) {
	if config == nil || config.Config == nil {
		return nil, fmt.Errorf("invalid config: scenario is required")
	}
	if err := config.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.Remote == nil {
		return nil, fmt.Errorf("invalid config: remote service is required")
	}
	if manager == nil {
		return nil, fmt.Errorf("manager is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	run := &Run{
		RunUUID:   uuid.NewString(),
		Name:      config.Config.Name,
		Host:      config.Config.Host,
		Users:     config.Config.Users,
		StartedAt: time.Now(),
		Status:    "running",
	}
	if err := manager.CreateRun(run); err != nil {
		return nil, fmt.Errorf("failed to create run record: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Executor{
		config:        config,
		manager:       manager,
		run:           run,
		registry:      NewRegistry(),
		namer:         NewTeamNamer(config.Config.TeamPrefix),
		factory:       NewFactory(),
		metrics:       NewMetrics(config.Registerer),
		logger:        logger.With(zap.String("run", run.RunUUID)),
		ctx:           ctx,
		cancelFunc:    cancel,
		resultChan:    make(chan *collectedResult, config.Config.Users*2),
		abandon:       make(chan struct{}),
		sessionsDone:  make(chan struct{}),
		collectorDone: make(chan struct{}),
		taskStats:     make(map[TaskKind]*Stats),
		totalStats:    NewStats(),
		metricsBuf:    make([]*Metric, 0, metricsBufferSize),
	}, nil
}

// Start spawns the sessions. Cancelling parent interrupts the run the
// same way Stop does.
func (e *Executor) Start(parent context.Context) {
	if !e.started.CompareAndSwap(false, true) {
		return
	}
	e.testStart = time.Now()
	e.run.StartedAt = e.testStart

	e.logger.Info("load run started",
		zap.String("name", e.config.Config.Name),
		zap.String("host", e.config.Config.Host),
		zap.Int("users", e.config.Config.Users),
		zap.Float64("spawn_rate", e.config.Config.SpawnRate))

	group, groupCtx := errgroup.WithContext(e.ctx)

	go e.collectResults()

	group.Go(func() error {
		return e.spawnSessions(groupCtx, group)
	})

	go func() {
		e.groupErr = group.Wait()
		close(e.sessionsDone)
	}()

	if testDuration := e.config.Config.GetTestDuration(); testDuration > 0 {
		go e.durationTimer(testDuration)
	}

	if parent != nil {
		go func() {
			select {
			case <-parent.Done():
				// A run whose sessions already finished stays completed
				if e.IsExecutionComplete() {
					return
				}
				e.stopped.Store(true)
				e.cancelFunc()
			case <-e.ctx.Done():
			}
		}()
	}
}

// spawnSessions starts one session per configured user, spaced by the
// spawn interval
func (e *Executor) spawnSessions(ctx context.Context, group *errgroup.Group) error {
	interval := e.config.Config.GetSpawnInterval()
	deps := SessionDeps{
		Config:   e.config.Config,
		Remote:   e.config.Remote,
		Registry: e.registry,
		Namer:    e.namer,
		Factory:  e.factory,
		Logger:   e.logger,
		Report:   e.report,
	}

	for id := 1; id <= e.config.Config.Users; id++ {
		if id > 1 && interval > 0 {
			timer := time.NewTimer(interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
		}
		if ctx.Err() != nil {
			return nil
		}

		session, err := NewSession(id, deps)
		if err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}

		group.Go(func() error {
			e.metrics.SetActiveSessions(int(e.activeSessions.Add(1)))
			defer func() {
				e.metrics.SetActiveSessions(int(e.activeSessions.Add(-1)))
			}()
			return session.Run(ctx)
		})
	}
	e.logger.Debug("all sessions spawned", zap.Int("users", e.config.Config.Users))
	return nil
}

// durationTimer cancels the run after the specified duration
func (e *Executor) durationTimer(duration time.Duration) {
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-timer.C:
		e.logger.Info("test duration reached", zap.Duration("duration", duration))
		e.cancelFunc()
	case <-e.ctx.Done():
	}
}

// report hands a session result to the collector. Results arriving after
// the run was cancelled are dropped.
func (e *Executor) report(result TaskResult) {
	if e.ctx.Err() != nil {
		return
	}
	collected := &collectedResult{
		TaskResult: result,
		Timestamp:  time.Now(),
		ElapsedMs:  time.Since(e.testStart).Milliseconds(),
	}
	select {
	case <-e.ctx.Done():
	case e.resultChan <- collected:
	}
}

// Stop interrupts the run and waits for the sessions to exit
func (e *Executor) Stop() {
	e.stopped.Store(true)
	e.cancelFunc()
	if !e.started.Load() {
		e.finalize("cancelled")
		return
	}
	e.Wait()
}

// StopWithContext interrupts the run and waits for the sessions until ctx
// expires. On expiry the results already queued are collected and the run
// is finalized as cancelled without the sessions still in flight; ctx.Err()
// is returned.
func (e *Executor) StopWithContext(ctx context.Context) error {
	e.stopped.Store(true)
	e.cancelFunc()
	if !e.started.Load() {
		e.finalize("cancelled")
		return nil
	}

	select {
	case <-e.sessionsDone:
		return e.Wait()
	case <-ctx.Done():
	}

	e.abandonOnce.Do(func() {
		close(e.abandon)
	})
	<-e.collectorDone
	e.logger.Warn("sessions still running at shutdown deadline",
		zap.Int32("active_sessions", e.activeSessions.Load()))
	e.finalize("cancelled")
	return ctx.Err()
}

// closeResultChan safely closes the result channel (only once)
func (e *Executor) closeResultChan() {
	e.closeOnce.Do(func() {
		close(e.resultChan)
	})
}

// Wait blocks until every session has exited, then finalizes the run.
// It returns nil unless a session could not be created.
func (e *Executor) Wait() error {
	if !e.started.Load() {
		return fmt.Errorf("executor not started")
	}
	<-e.sessionsDone
	e.closeResultChan()
	<-e.collectorDone

	status := "completed"
	if e.groupErr != nil {
		status = "failed"
	} else if e.stopped.Load() {
		status = "cancelled"
	}
	e.finalize(status)
	e.cancelFunc()
	return e.groupErr
}

// Done is closed once every session has exited
func (e *Executor) Done() <-chan struct{} {
	return e.sessionsDone
}

// IsExecutionComplete returns true once every session has exited
func (e *Executor) IsExecutionComplete() bool {
	select {
	case <-e.sessionsDone:
		return true
	default:
		return false
	}
}

// Registry returns the shared registry of the run
func (e *Executor) Registry() *Registry {
	return e.registry
}

// GetRun returns a copy of the run record
func (e *Executor) GetRun() *Run {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	run := *e.run
	return &run
}

// GetStats returns a copy of the current statistics
func (e *Executor) GetStats() *Snapshot {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()

	snapshot := &Snapshot{
		Tasks:          make(map[TaskKind]*Stats, len(e.taskStats)),
		Total:          e.totalStats.Clone(),
		Registry:       e.registry.Counts(),
		ActiveSessions: int(e.activeSessions.Load()),
	}
	for kind, stats := range e.taskStats {
		snapshot.Tasks[kind] = stats.Clone()
	}
	if !e.testStart.IsZero() {
		snapshot.Elapsed = time.Since(e.testStart)
	}
	return snapshot
}

// collectResults aggregates session results until resultChan is closed,
// or until the run is abandoned and the queued results are drained
func (e *Executor) collectResults() {
	defer close(e.collectorDone)
	defer e.flushMetrics()

	for {
		select {
		case result, ok := <-e.resultChan:
			if !ok {
				return
			}
			e.collect(result)
		case <-e.abandon:
			for {
				select {
				case result, ok := <-e.resultChan:
					if !ok {
						return
					}
					e.collect(result)
				default:
					return
				}
			}
		}
	}
}

// collect records one result in the stats, metrics and metric buffer
func (e *Executor) collect(result *collectedResult) {
	e.statsMu.Lock()
	stats, ok := e.taskStats[result.Task]
	if !ok {
		stats = NewStats()
		e.taskStats[result.Task] = stats
	}
	stats.AddResult(result.DurationMs, result.Outcome)
	e.totalStats.AddResult(result.DurationMs, result.Outcome)
	e.statsMu.Unlock()

	e.metrics.Observe(result.TaskResult)
	e.metrics.SetRegistry(e.registry.Counts())

	metric := &Metric{
		RunID:        e.run.ID,
		Timestamp:    result.Timestamp,
		ElapsedMs:    result.ElapsedMs,
		SessionID:    result.SessionID,
		Task:         result.Task,
		Outcome:      result.Outcome,
		StatusCode:   result.StatusCode,
		DurationMs:   result.DurationMs,
		RequestSize:  result.RequestSize,
		ResponseSize: result.ResponseSize,
	}
	if result.Err != nil {
		metric.ErrorMessage = result.Err.Error()
	}
	e.metricsBuf = append(e.metricsBuf, metric)

	if len(e.metricsBuf) >= metricsBufferSize {
		e.flushMetrics()
	}
}

// flushMetrics writes buffered metrics to the database
func (e *Executor) flushMetrics() {
	if len(e.metricsBuf) == 0 {
		return
	}
	if err := e.manager.SaveMetricsBatch(e.metricsBuf); err != nil {
		// Persistence problems never stop the run
		e.logger.Error("failed to save metrics", zap.Int("count", len(e.metricsBuf)), zap.Error(err))
	}
	e.metricsBuf = e.metricsBuf[:0]
}

// finalize completes the run record with final statistics (only once)
func (e *Executor) finalize(status string) {
	e.finalizeOnce.Do(func() {
		e.statsMu.Lock()
		now := time.Now()
		counts := e.registry.Counts()
		e.run.CompletedAt = &now
		e.run.Status = status
		e.run.TotalRequests = e.totalStats.CompletedRequests
		e.run.TotalSuccesses = e.totalStats.SuccessCount
		e.run.TotalErrors = e.totalStats.ErrorCount
		e.run.TotalFailures = e.totalStats.UnexpectedStatusCount
		e.run.TotalAnomalies = e.totalStats.AnomalyCount
		e.run.TeamsSeeded = counts.Teams
		e.run.UsersSeeded = counts.Users
		e.run.OpenPullRequests = counts.PullRequests
		e.run.AvgDurationMs = e.totalStats.AvgDurationMs()
		e.run.MinDurationMs = e.totalStats.Min()
		e.run.MaxDurationMs = e.totalStats.Max()
		e.run.P50DurationMs = e.totalStats.P50()
		e.run.P95DurationMs = e.totalStats.P95()
		e.run.P99DurationMs = e.totalStats.P99()
		e.statsMu.Unlock()
		e.metrics.SetRegistry(counts)

		if err := e.manager.UpdateRun(e.run); err != nil {
			e.logger.Error("failed to update run record", zap.Error(err))
		}

		e.logger.Info("load run finished",
			zap.String("status", status),
			zap.Int("requests", e.run.TotalRequests),
			zap.Int("errors", e.run.TotalErrors),
			zap.Int("failures", e.run.TotalFailures),
			zap.Int("anomalies", e.run.TotalAnomalies),
			zap.Int("open_pull_requests", e.run.OpenPullRequests),
			zap.Int64("p95_ms", e.run.P95DurationMs))
	})
}
