package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/offmarket/offmarket/internal/domain"
	"github.com/offmarket/offmarket/internal/infra/metrics"
	"go.uber.org/zap"
)

// RunGuard admits at most one evaluation run at a time.
type RunGuard interface {
	TryAcquire(ctx context.Context) (release func(context.Context) error, acquired bool, err error)
}

// leaseHolder is implemented by guards shared between instances.
type leaseHolder interface {
	Holder(ctx context.Context) (string, error)
}

type EvaluationRunner interface {
	RunWithID(ctx context.Context, runID string) (RunReport, error)
}

type SchedulerConfig struct {
	Interval   time.Duration
	RunTimeout time.Duration
}

type RunStatus struct {
	Running        bool       `json:"running"`
	CurrentRunID   string     `json:"current_run_id,omitempty"`
	LastRunID      string     `json:"last_run_id,omitempty"`
	LastStartedAt  *time.Time `json:"last_started_at,omitempty"`
	LastFinishedAt *time.Time `json:"last_finished_at,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
	LastReport     *RunReport `json:"last_report,omitempty"`
	Interval       string     `json:"interval"`
	// LeaseHolder names the instance that held the guard at the last skip.
	LeaseHolder string `json:"lease_holder,omitempty"`
}

type Scheduler struct {
	runner EvaluationRunner
	guard  RunGuard
	cfg    SchedulerConfig
	logger *zap.Logger

	mu     sync.Mutex
	status RunStatus
	wg     sync.WaitGroup
}

func NewScheduler(runner EvaluationRunner, guard RunGuard, cfg SchedulerConfig, logger *zap.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = cfg.Interval
	}
	return &Scheduler{
		runner: runner,
		guard:  guard,
		cfg:    cfg,
		logger: logger,
		status: RunStatus{Interval: cfg.Interval.String()},
	}
}

// Start runs one evaluation immediately and then one per interval until ctx
// is cancelled. It does not block; Wait returns once the loop has exited.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx)
	}()
}

func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", zap.Duration("interval", s.cfg.Interval))
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	_, err := s.runOnce(ctx, "schedule")
	if errors.Is(err, domain.ErrRunInProgress) {
		s.logger.Info("scheduled evaluation skipped, run already in progress")
	}
}

// TriggerNow runs an evaluation synchronously. It returns ErrRunInProgress
// when another run holds the guard.
func (s *Scheduler) TriggerNow(ctx context.Context) (RunReport, error) {
	return s.runOnce(context.WithoutCancel(ctx), "manual")
}

func (s *Scheduler) Status() RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := s.status
	if status.LastReport != nil {
		report := *status.LastReport
		status.LastReport = &report
	}
	return status
}

func (s *Scheduler) runOnce(ctx context.Context, trigger string) (RunReport, error) {
	release, acquired, err := s.guard.TryAcquire(ctx)
	if err != nil {
		metrics.EvaluationRunsTotal.WithLabelValues("failed").Inc()
		s.logger.Error("failed to acquire run guard", zap.String("trigger", trigger), zap.Error(err))
		return RunReport{}, err
	}
	if !acquired {
		metrics.EvaluationRunsTotal.WithLabelValues("skipped").Inc()
		s.recordHolder(ctx, trigger)
		return RunReport{}, domain.ErrRunInProgress
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := release(releaseCtx); err != nil {
			s.logger.Warn("failed to release run guard", zap.Error(err))
		}
	}()

	runID := uuid.NewString()
	started := time.Now()
	s.mu.Lock()
	s.status.Running = true
	s.status.CurrentRunID = runID
	s.status.LeaseHolder = ""
	s.mu.Unlock()

	s.logger.Info("evaluation run started", zap.String("run_id", runID), zap.String("trigger", trigger))
	runCtx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	report, runErr := s.runner.RunWithID(runCtx, runID)
	cancel()

	finished := time.Now()
	metrics.EvaluationRunDuration.Observe(finished.Sub(started).Seconds())
	if runErr != nil {
		metrics.EvaluationRunsTotal.WithLabelValues("failed").Inc()
	} else {
		metrics.EvaluationRunsTotal.WithLabelValues("success").Inc()
	}

	s.mu.Lock()
	s.status.Running = false
	s.status.CurrentRunID = ""
	s.status.LastRunID = runID
	s.status.LastStartedAt = &started
	s.status.LastFinishedAt = &finished
	s.status.LastError = ""
	if runErr != nil {
		s.status.LastError = runErr.Error()
	}
	s.status.LastReport = &report
	s.mu.Unlock()

	return report, runErr
}

func (s *Scheduler) recordHolder(ctx context.Context, trigger string) {
	lh, ok := s.guard.(leaseHolder)
	if !ok {
		return
	}
	holder, err := lh.Holder(ctx)
	if err != nil {
		s.logger.Warn("failed to read run lease holder", zap.Error(err))
		return
	}
	s.logger.Info("run lease held elsewhere", zap.String("trigger", trigger), zap.String("holder", holder))
	s.mu.Lock()
	s.status.LeaseHolder = holder
	s.mu.Unlock()
}
