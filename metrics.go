package finegrain

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("github.com/jward/finegrain")
	meter  = otel.Meter("github.com/jward/finegrain")
)

var (
	updateLatency      metric.Float64Histogram
	updateTotal        metric.Int64Counter
	triggersFired      metric.Int64Counter
	targetsReprocessed metric.Int64Counter
	modulesUpdated     metric.Int64Counter
	blockingErrors     metric.Int64Counter
	propagationRounds  metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics creates the instruments on first use.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		updateLatency, err = meter.Float64Histogram(
			"finegrain_update_duration_seconds",
			metric.WithDescription("Duration of fine-grained updates"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		updateTotal, err = meter.Int64Counter(
			"finegrain_update_total",
			metric.WithDescription("Total number of fine-grained updates"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		triggersFired, err = meter.Int64Counter(
			"finegrain_triggers_fired_total",
			metric.WithDescription("Triggers fired by changed symbol tables"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		targetsReprocessed, err = meter.Int64Counter(
			"finegrain_targets_reprocessed_total",
			metric.WithDescription("Targets stripped and analyzed again"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		modulesUpdated, err = meter.Int64Counter(
			"finegrain_modules_updated_total",
			metric.WithDescription("Modules reparsed and analyzed in full"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		blockingErrors, err = meter.Int64Counter(
			"finegrain_blocking_errors_total",
			metric.WithDescription("Updates stopped by a blocking error"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		propagationRounds, err = meter.Int64Histogram(
			"finegrain_propagation_iterations",
			metric.WithDescription("Rounds of change propagation per call"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordUpdate(ctx context.Context, duration time.Duration, blocked bool) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("blocked", blocked))
	updateLatency.Record(ctx, duration.Seconds(), attrs)
	updateTotal.Add(ctx, 1, attrs)
}

func recordTriggers(ctx context.Context, n int) {
	if err := initMetrics(); err != nil || n == 0 {
		return
	}
	triggersFired.Add(ctx, int64(n))
}

func recordTargets(ctx context.Context, module string, n int) {
	if err := initMetrics(); err != nil {
		return
	}
	targetsReprocessed.Add(ctx, int64(n), metric.WithAttributes(attribute.String("module", module)))
}

func recordModuleUpdate(ctx context.Context, deleted bool) {
	if err := initMetrics(); err != nil {
		return
	}
	modulesUpdated.Add(ctx, 1, metric.WithAttributes(attribute.Bool("deleted", deleted)))
}

func recordBlocker(ctx context.Context, module string) {
	if err := initMetrics(); err != nil {
		return
	}
	blockingErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("module", module)))
}

func recordIterations(ctx context.Context, n int) {
	if err := initMetrics(); err != nil || n == 0 {
		return
	}
	propagationRounds.Record(ctx, int64(n))
}

func startBuildSpan(ctx context.Context, sources int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Engine.Build",
		trace.WithAttributes(attribute.Int("finegrain.source_count", sources)),
	)
}

func startUpdateSpan(ctx context.Context, id string, changed, removed int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Engine.Update",
		trace.WithAttributes(
			attribute.String("finegrain.update_id", id),
			attribute.Int("finegrain.changed_count", changed),
			attribute.Int("finegrain.removed_count", removed),
		),
	)
}

func startModuleSpan(ctx context.Context, module string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Engine.updateModule",
		trace.WithAttributes(attribute.String("finegrain.module", module)),
	)
}

// endSpan records err, if any, and ends span.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
