package provision

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// Clock abstracts time.Now so step durations can be tested.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

// Timing is the measured duration of one step.
type Timing struct {
	Step     string
	Duration time.Duration
}

// timer wraps steps with duration measurement and a trace span.
//
// Durations are always recorded into the report, but the
// "Starting '<step>'" / "<step> finished in N seconds" lines are only
// logged when verbose is set. The wrapped function's error is returned
// untouched: timing never changes control flow.
type timer struct {
	verbose bool
	clock   Clock
	logger  *zap.Logger
	tracer  trace.Tracer
	report  *Report
}

func newTimer(verbose bool, clock Clock, logger *zap.Logger, tracer trace.Tracer, report *Report) *timer {
	if clock == nil {
		clock = RealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	return &timer{verbose: verbose, clock: clock, logger: logger, tracer: tracer, report: report}
}

// Time runs fn as the named step.
func (t *timer) Time(ctx context.Context, step string, fn func(ctx context.Context) error) error {
	ctx, span := t.tracer.Start(ctx, step)
	defer span.End()

	if t.verbose {
		t.logger.Info(fmt.Sprintf("Starting '%s'", step))
	}
	start := t.clock.Now()

	err := fn(ctx)

	elapsed := t.clock.Now().Sub(start)
	t.report.Timings = append(t.report.Timings, Timing{Step: step, Duration: elapsed})
	span.SetAttributes(attribute.Float64("duration_seconds", elapsed.Seconds()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	if t.verbose {
		t.logger.Info(fmt.Sprintf("%s finished in %s seconds", step, formatSeconds(elapsed)))
	}
	return err
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
