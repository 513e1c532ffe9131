// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/buildwright/lib/queue"
	"github.com/bureau-foundation/buildwright/lib/schema"
	"github.com/bureau-foundation/buildwright/lib/stage"
)

// FailureHandler receives every stage failure. It must not block
// indefinitely and must not panic.
type FailureHandler interface {
	Handle(ctx context.Context, instruction *schema.Instruction, err error)
}

// Config configures an Orchestrator.
type Config struct {
	// Stages in execution order. Required.
	Stages []stage.Stage

	// Queues[i] is the input of Stages[i]. Must have one queue per
	// stage.
	Queues []queue.Queue

	// Failure handles stage failures. Required.
	Failure FailureHandler

	// Metrics defaults to unregistered collectors.
	Metrics *Metrics

	// Tracer defaults to the global tracer provider's.
	Tracer trace.Tracer

	Logger *slog.Logger
}

// Orchestrator runs the stage workers.
type Orchestrator struct {
	stages  []stage.Stage
	queues  []queue.Queue
	failure FailureHandler
	metrics *Metrics
	tracer  trace.Tracer
	logger  *slog.Logger
}

// New validates config and creates an Orchestrator.
func New(config Config) (*Orchestrator, error) {
	if len(config.Stages) == 0 {
		return nil, errors.New("pipeline: no stages")
	}
	if len(config.Queues) != len(config.Stages) {
		return nil, fmt.Errorf("pipeline: %d stages need %d queues, got %d",
			len(config.Stages), len(config.Stages), len(config.Queues))
	}
	if config.Failure == nil {
		return nil, errors.New("pipeline: failure handler is required")
	}
	orchestrator := &Orchestrator{
		stages:  config.Stages,
		queues:  config.Queues,
		failure: config.Failure,
		metrics: config.Metrics,
		tracer:  config.Tracer,
		logger:  config.Logger,
	}
	if orchestrator.metrics == nil {
		orchestrator.metrics = NewMetrics(nil)
	}
	if orchestrator.tracer == nil {
		orchestrator.tracer = otel.Tracer("github.com/bureau-foundation/buildwright/lib/pipeline")
	}
	if orchestrator.logger == nil {
		orchestrator.logger = slog.Default()
	}
	return orchestrator, nil
}

// QueueNames returns "<prefix>:<stage name>" for each stage name, the
// keys of the stage queues.
func QueueNames(prefix string, stageNames []string) []string {
	names := make([]string, len(stageNames))
	for index, name := range stageNames {
		names[index] = prefix + ":" + name
	}
	return names
}

// Enqueue pushes an instruction onto the first stage's queue.
func (o *Orchestrator) Enqueue(ctx context.Context, instruction *schema.Instruction) error {
	if err := o.queues[0].Push(ctx, instruction); err != nil {
		return fmt.Errorf("enqueueing build %s: %w", instruction.BuildID, err)
	}
	return nil
}

// Recover moves every queue's unacknowledged deliveries back onto the
// queue. Call it once at startup, before Run.
func (o *Orchestrator) Recover(ctx context.Context) (int, error) {
	var total int
	var errs []error
	for _, input := range o.queues {
		count, err := input.Recover(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if count > 0 {
			o.logger.Warn("redelivering interrupted instructions", "queue", input.Name(), "count", count)
		}
		total += count
	}
	return total, errors.Join(errs...)
}

// Run starts one worker per stage and blocks until ctx is cancelled or
// a worker hits a queue error. Returns nil on cancellation.
func (o *Orchestrator) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	for index := range o.stages {
		group.Go(func() error {
			return o.work(ctx, index)
		})
	}
	return group.Wait()
}

func (o *Orchestrator) work(ctx context.Context, index int) error {
	current := o.stages[index]
	input := o.queues[index]
	var output queue.Queue
	if index+1 < len(o.queues) {
		output = o.queues[index+1]
	}
	logger := o.logger.With("stage", current.Name())
	logger.Info("stage worker started", "queue", input.Name())

	for {
		delivery, err := input.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				logger.Info("stage worker stopped")
				return nil
			}
			return fmt.Errorf("stage %s: %w", current.Name(), err)
		}
		if err := o.process(ctx, current, output, delivery, logger); err != nil {
			return fmt.Errorf("stage %s: %w", current.Name(), err)
		}
		if ctx.Err() != nil {
			logger.Info("stage worker stopped")
			return nil
		}
	}
}

// process runs one delivery through a stage. The delivery is
// acknowledged once the result is downstream or the failure handled;
// a shutdown mid-stage leaves it unacknowledged for redelivery.
func (o *Orchestrator) process(ctx context.Context, current stage.Stage, output queue.Queue, delivery *queue.Delivery, logger *slog.Logger) error {
	instruction := delivery.Instruction
	name := current.Name()

	o.metrics.InFlight.WithLabelValues(name).Inc()
	defer o.metrics.InFlight.WithLabelValues(name).Dec()

	spanContext, span := o.tracer.Start(ctx, "stage."+name,
		trace.WithAttributes(attribute.String("build.id", instruction.BuildID)),
	)
	defer span.End()

	started := time.Now()
	result, err := invoke(spanContext, current, instruction)
	o.metrics.Duration.WithLabelValues(name).Observe(time.Since(started).Seconds())

	if err != nil && ctx.Err() != nil {
		// Interrupted by shutdown, not failed.
		logger.Warn("stage interrupted", "build_id", instruction.BuildID, "error", err)
		span.SetStatus(codes.Error, "interrupted")
		return nil
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.metrics.Jobs.WithLabelValues(name, outcome(err)).Inc()
		o.failure.Handle(spanContext, instruction, err)
	} else {
		if output != nil {
			if err := output.Push(ctx, result); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return err
			}
		}
		span.SetStatus(codes.Ok, "")
		o.metrics.Jobs.WithLabelValues(name, OutcomeForwarded).Inc()
		logger.Debug("stage finished", "build_id", instruction.BuildID)
	}

	return delivery.Ack(ctx)
}

// invoke calls the stage, turning a panic into a stage.PanicError and
// an untyped error into an infrastructure JobError.
func invoke(ctx context.Context, current stage.Stage, instruction *schema.Instruction) (result *schema.Instruction, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			result = nil
			err = &stage.PanicError{Stage: current.Name(), Value: recovered, Stack: debug.Stack()}
		}
	}()

	result, err = current.Process(ctx, instruction)
	if err == nil && result == nil {
		err = errors.New("stage returned no instruction")
	}
	if err == nil {
		return result, nil
	}
	var jobError *stage.JobError
	var panicError *stage.PanicError
	if !errors.As(err, &jobError) && !errors.As(err, &panicError) {
		err = &stage.JobError{Stage: current.Name(), Kind: stage.Infrastructure, Err: err}
	}
	return nil, err
}

func outcome(err error) string {
	var panicError *stage.PanicError
	if errors.As(err, &panicError) {
		return OutcomePanic
	}
	if stage.IsFatal(err) {
		return OutcomeFatal
	}
	return OutcomeInfrastructure
}
