// Package monitor implements the cooperative task scheduler from spec.md
// §4.6: a foreground-cooperative loop that drives broadcasting, proof
// retrieval, reorg handling, and abandonment detection against the Storage
// Provider and chain services. Grounded directly on the teacher's
// pkg/batch/scheduler.go Start/Stop/Pause/Resume handshake and
// pkg/batch/confirmation_tracker.go's poll-then-update-repo loop,
// generalized from "one on-cadence batch" to "a list of independently
// triggered tasks".
package monitor

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/certen/bsv-wallet-toolbox/internal/database"
)

// Task is one unit of periodic work (spec.md §4.6): it decides for itself
// whether it is due to run, and reports a human-readable summary of what it
// did.
type Task interface {
	Name() string
	Trigger(now time.Time) bool
	Run(ctx context.Context) (string, error)
}

// State mirrors the teacher's SchedulerState enum (pkg/batch/scheduler.go).
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
	StatePaused  State = "paused"
)

// Monitor runs a fixed set of Tasks on an internal clock, recording a
// MonitorEvent per execution (spec.md §4.6, §7 "monitor task failures are
// logged... and do not halt the loop").
type Monitor struct {
	mu    sync.RWMutex
	tasks []Task
	repos *database.Repositories

	checkInterval time.Duration
	state         State
	stopCh        chan struct{}
	doneCh        chan struct{}

	logger *log.Logger

	runsTotal   *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
}

// Config bundles a Monitor's collaborators and knobs.
type Config struct {
	Repos         *database.Repositories
	CheckInterval time.Duration // how often the loop wakes to ask each task if it's due
	Logger        *log.Logger
	Registerer    prometheus.Registerer // optional; nil skips metric registration
}

// New constructs a Monitor with no tasks registered. Call Register for each
// default task (see tasks.go) or a custom one.
func New(cfg Config) *Monitor {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[Monitor] ", log.LstdFlags)
	}
	checkInterval := cfg.CheckInterval
	if checkInterval <= 0 {
		checkInterval = time.Second
	}

	m := &Monitor{
		repos:         cfg.Repos,
		checkInterval: checkInterval,
		state:         StateStopped,
		logger:        logger,
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_monitor_task_runs_total",
			Help: "Total monitor task executions, by task name.",
		}, []string{"task"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_monitor_task_errors_total",
			Help: "Total monitor task execution errors, by task name.",
		}, []string{"task"}),
	}
	if cfg.Registerer != nil {
		cfg.Registerer.MustRegister(m.runsTotal, m.errorsTotal)
	}
	return m
}

// Register adds a Task to the scheduler. Not safe to call after Start.
func (m *Monitor) Register(t Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, t)
}

// Start begins the background loop.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.state == StateRunning {
		m.mu.Unlock()
		return
	}
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.state = StateRunning
	m.mu.Unlock()

	go m.run(ctx)
	m.logger.Printf("monitor started (check interval=%s, tasks=%d)", m.checkInterval, len(m.tasks))
}

// Stop halts the background loop and waits for it to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.state != StateRunning && m.state != StatePaused {
		m.mu.Unlock()
		return
	}
	close(m.stopCh)
	m.state = StateStopped
	m.mu.Unlock()

	<-m.doneCh
	m.logger.Println("monitor stopped")
}

// Pause suspends task execution without tearing down the loop.
func (m *Monitor) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateRunning {
		m.state = StatePaused
	}
}

// Resume resumes a paused Monitor.
func (m *Monitor) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StatePaused {
		m.state = StateRunning
	}
}

// State reports the current scheduler state.
func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			if m.State() != StateRunning {
				continue
			}
			m.RunOnce(ctx)
		}
	}
}

// RunOnce snapshots the task list, asks each whose trigger fires to run, and
// records a MonitorEvent per execution, including failures (spec.md §4.6,
// §5's "consistent snapshot per run" ordering guarantee).
func (m *Monitor) RunOnce(ctx context.Context) {
	m.mu.RLock()
	tasks := make([]Task, len(m.tasks))
	copy(tasks, m.tasks)
	m.mu.RUnlock()

	now := time.Now()
	for _, t := range tasks {
		if !t.Trigger(now) {
			continue
		}
		m.runsTotal.WithLabelValues(t.Name()).Inc()

		summary, err := t.Run(ctx)
		if err != nil {
			m.errorsTotal.WithLabelValues(t.Name()).Inc()
			m.logger.Printf("task %s failed: %v", t.Name(), err)
			m.record(ctx, t.Name(), "error1", err.Error())
			continue
		}
		m.record(ctx, t.Name(), "run", summary)
	}
}

func (m *Monitor) record(ctx context.Context, taskName, event, details string) {
	if m.repos == nil || m.repos.MonitorEvents == nil {
		return
	}
	if err := m.repos.MonitorEvents.Record(ctx, taskName, event, details); err != nil {
		m.logger.Printf("record monitor event for %s: %v", taskName, err)
	}
}
