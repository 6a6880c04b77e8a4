package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/offmarket/offmarket/internal/domain"
	"github.com/offmarket/offmarket/internal/infra/metrics"
	"github.com/offmarket/offmarket/internal/infra/tracing"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Notifier interface {
	SendPriceDropEmail(ctx context.Context, drop domain.PriceDrop) (messageID string, err error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event domain.AlertTriggered) error
}

type EvaluatorConfig struct {
	FetchTimeout time.Duration
	SendTimeout  time.Duration
	WriteTimeout time.Duration
}

// RunReport summarises one evaluation run.
type RunReport struct {
	RunID         string    `json:"run_id"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Evaluated     int       `json:"evaluated"`
	Triggered     int       `json:"triggered"`
	Notified      int       `json:"notified"`
	SendFailures  int       `json:"send_failures"`
	WriteFailures int       `json:"write_failures"`
}

type Evaluator struct {
	alerts   domain.AlertStore
	notifier Notifier
	events   EventPublisher
	cfg      EvaluatorConfig
	logger   *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

func NewEvaluator(alerts domain.AlertStore, notifier Notifier, events EventPublisher, cfg EvaluatorConfig, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		alerts:   alerts,
		notifier: notifier,
		events:   events,
		cfg:      cfg,
		logger:   logger,
		tracer:   otel.Tracer(tracing.TracerName),
		now:      time.Now,
	}
}

// ShouldTrigger reports whether the current price has reached the target.
// Equal prices trigger.
func ShouldTrigger(current, target decimal.Decimal) bool {
	return current.Cmp(target) <= 0
}

// Run evaluates every due alert once, in fetched order. Only a failure to
// fetch the alerts fails the run; per-alert failures are counted and logged.
func (e *Evaluator) Run(ctx context.Context) (RunReport, error) {
	return e.RunWithID(ctx, uuid.NewString())
}

func (e *Evaluator) RunWithID(ctx context.Context, runID string) (RunReport, error) {
	report := RunReport{RunID: runID, StartedAt: e.now()}
	ctx, span := e.tracer.Start(ctx, "evaluator.run", trace.WithAttributes(attribute.String("run.id", runID)))
	defer span.End()

	due, err := e.fetchDue(ctx)
	if err != nil {
		report.FinishedAt = e.now()
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		e.logger.Error("evaluation run failed", zap.String("run_id", runID), zap.Error(err))
		return report, err
	}

	for _, alert := range due {
		if err := ctx.Err(); err != nil {
			e.logger.Warn("evaluation run cancelled", zap.String("run_id", runID), zap.Int("remaining", len(due)-report.Evaluated), zap.Error(err))
			break
		}
		report.Evaluated++
		metrics.AlertsEvaluatedTotal.Inc()
		if !ShouldTrigger(alert.CurrentPrice, alert.TargetPrice) {
			continue
		}
		e.processTriggered(ctx, runID, alert, &report)
	}

	report.FinishedAt = e.now()
	span.SetAttributes(
		attribute.Int("alerts.evaluated", report.Evaluated),
		attribute.Int("alerts.triggered", report.Triggered),
	)
	e.logger.Info("evaluation run finished",
		zap.String("run_id", runID),
		zap.Int("evaluated", report.Evaluated),
		zap.Int("triggered", report.Triggered),
		zap.Int("notified", report.Notified),
		zap.Int("send_failures", report.SendFailures),
		zap.Int("write_failures", report.WriteFailures),
		zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

func (e *Evaluator) fetchDue(ctx context.Context) ([]domain.AlertWithContext, error) {
	fetchCtx, cancel := withOptionalTimeout(ctx, e.cfg.FetchTimeout)
	defer cancel()

	due, err := e.alerts.ListDueForEvaluation(fetchCtx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFetch, err)
	}
	return due, nil
}

// processTriggered sends the email and then resolves the alert whatever the
// send result was. Nothing raised here escapes into the batch.
func (e *Evaluator) processTriggered(ctx context.Context, runID string, alert domain.AlertWithContext, report *RunReport) {
	ctx, span := e.tracer.Start(ctx, "evaluator.trigger", trace.WithAttributes(
		attribute.Int64("alert.id", int64(alert.ID)),
		attribute.String("alert.current_price", alert.CurrentPrice.String()),
		attribute.String("alert.target_price", alert.TargetPrice.String()),
	))
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			metrics.PanicsRecovered.WithLabelValues("evaluator").Inc()
			span.SetStatus(codes.Error, "panic")
			e.logger.Error("panic while processing alert",
				zap.String("run_id", runID),
				zap.Uint("alert_id", alert.ID),
				zap.Any("panic", r),
			)
		}
	}()

	report.Triggered++
	metrics.AlertsTriggeredTotal.Inc()
	logger := e.logger.With(zap.String("run_id", runID), zap.Uint("alert_id", alert.ID), zap.Uint("user_id", alert.UserID))

	notified := e.send(ctx, logger, alert)
	if notified {
		report.Notified++
	} else {
		report.SendFailures++
		span.SetStatus(codes.Error, "send failed")
	}

	if err := e.markTriggered(ctx, alert.ID); err != nil {
		report.WriteFailures++
		metrics.AlertWriteFailures.Inc()
		span.RecordError(err)
		logger.Error("failed to mark alert triggered", zap.Error(err))
		return
	}
	logger.Info("alert triggered",
		zap.String("product", alert.ProductName),
		zap.String("current_price", alert.CurrentPrice.String()),
		zap.String("target_price", alert.TargetPrice.String()),
		zap.Bool("notified", notified),
	)

	e.publish(ctx, logger, domain.AlertTriggered{
		AlertID:      alert.ID,
		UserID:       alert.UserID,
		ProductID:    alert.ProductID,
		ProductName:  alert.ProductName,
		StoreName:    alert.StoreName,
		Currency:     alert.Currency,
		TargetPrice:  alert.TargetPrice,
		CurrentPrice: alert.CurrentPrice,
		Notified:     notified,
		RunID:        runID,
		TriggeredAt:  e.now(),
	})
}

func (e *Evaluator) send(ctx context.Context, logger *zap.Logger, alert domain.AlertWithContext) bool {
	sendCtx, cancel := withOptionalTimeout(ctx, e.cfg.SendTimeout)
	defer cancel()

	messageID, err := e.deliver(sendCtx, domain.PriceDrop{
		To:           alert.OwnerEmail,
		ProductName:  alert.ProductName,
		StoreName:    alert.StoreName,
		Currency:     alert.Currency,
		TargetPrice:  alert.TargetPrice,
		CurrentPrice: alert.CurrentPrice,
	})
	if err != nil {
		if !errors.Is(err, domain.ErrSend) {
			err = fmt.Errorf("%w: %v", domain.ErrSend, err)
		}
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
		logger.Warn("failed to send price drop email", zap.Error(err))
		return false
	}
	metrics.NotificationsTotal.WithLabelValues("sent").Inc()
	logger.Debug("price drop email sent", zap.String("message_id", messageID))
	return true
}

// deliver calls the notifier and turns a panicking transport into a send
// error, so the alert is still resolved afterwards.
func (e *Evaluator) deliver(ctx context.Context, drop domain.PriceDrop) (messageID string, err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.PanicsRecovered.WithLabelValues("notifier").Inc()
			err = fmt.Errorf("%w: notifier panic: %v", domain.ErrSend, r)
		}
	}()
	return e.notifier.SendPriceDropEmail(ctx, drop)
}

func (e *Evaluator) markTriggered(ctx context.Context, alertID uint) error {
	// The write still happens when the run context is already done, so a
	// sent email is never left without its state change.
	writeCtx, cancel := withOptionalTimeout(context.WithoutCancel(ctx), e.cfg.WriteTimeout)
	defer cancel()
	return e.alerts.MarkTriggered(writeCtx, alertID)
}

func (e *Evaluator) publish(ctx context.Context, logger *zap.Logger, event domain.AlertTriggered) {
	if e.events == nil {
		return
	}
	pubCtx, cancel := withOptionalTimeout(ctx, e.cfg.WriteTimeout)
	defer cancel()
	if err := e.events.Publish(pubCtx, event); err != nil {
		logger.Warn("failed to publish alert event", zap.Error(err))
	}
}

func withOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
