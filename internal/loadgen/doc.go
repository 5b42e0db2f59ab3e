/*
Package loadgen simulates many virtual users against a pull-request
review-assignment service.

# Overview

Each virtual user (Session) seeds one team, then loops over randomly
weighted tasks:
  - create_pr: open 1..N pull requests for a random seeded author
  - merge_pr: merge a random tracked pull request
  - reassign_pr: replace a random reviewer of a tracked pull request

All sessions of a run share one Registry of teams, users and open pull
requests. The registry mirrors what the server has confirmed; it is only
changed after a success response.

# Architecture

  - Registry (registry.go): lock-protected shared state, copy-out samples
  - Session (session.go, tasks.go): per-user lifecycle and task bodies
  - Scheduler (scheduler.go): weighted task choice, one per session
  - Reconciler (reconcile.go): decodes reassign responses into
    FullReviewerList or ReplacementHint and applies them
  - Factory / TeamNamer (factory.go): payload and name generation
  - Executor (executor.go): spawns sessions, collects results
  - Stats / Metrics (stats.go, metrics.go): per-task aggregates, Prometheus
  - Manager (manager.go): SQLite persistence of runs and request metrics

# Session Lifecycle

	Uninitialized -> Seeding -> Running -> Stopped

Seeding failure is reported and the session keeps running with whatever
users other sessions seeded. Running ends when the run context is
cancelled or after Config.MaxIterations tasks.

# Reviewer Reconciliation

A 200 reassign response either carries the full reviewer list under
pr.assigned_reviewers, or only replaced_by. The first replaces the local
set; the second removes the old reviewer and adds the replacement once.
A body with neither is an anomaly and leaves the record unchanged.
Reconciliation runs against the current record under the registry lock,
so a pull request merged concurrently is simply skipped.

# Error Handling

Tasks never abort a session. Failures are classified into transport
errors, unexpected statuses and anomalies, and counted per task kind.
Tasks without input (no users, no pull requests) are skipped silently.

# Example Usage

	manager, err := NewManager("reviewload.db")
	if err != nil {
		return err
	}
	defer manager.Close()

	cfg := DefaultConfig()
	cfg.Host = "http://localhost:8080"
	cfg.Users = 50
	cfg.TestDurationSec = 60

	executor, err := NewExecutor(&ExecutionConfig{
		Config: cfg,
		Remote: client,
		Logger: logger,
	}, manager)
	if err != nil {
		return err
	}

	executor.Start(ctx)
	if err := executor.Wait(); err != nil {
		return err
	}

	stats := executor.GetStats()
	fmt.Printf("%d requests, %d open pull requests\n",
		stats.Total.CompletedRequests, stats.Registry.PullRequests)

# Thread Safety

Registry, Executor and Metrics are safe for concurrent use. A Session and
its Scheduler belong to one goroutine.
*/
package loadgen
