package stages

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"time"

	"git.home.luguber.info/inful/distcache/internal/foundation/errors"
	"git.home.luguber.info/inful/distcache/internal/ledger"
	"git.home.luguber.info/inful/distcache/internal/logfields"
	"git.home.luguber.info/inful/distcache/internal/metrics"
	"git.home.luguber.info/inful/distcache/internal/observability"
)

// Result is the outcome of a full pipeline run.
type Result struct {
	Build   *BuildResult
	Publish *PublishResult
}

// Pipeline runs the stages under per-stage timeouts and records each
// transition in the ledger and metrics.
type Pipeline struct {
	build          *BuildStage
	publish        *PublishStage
	ledger         ledger.Ledger
	recorder       metrics.Recorder
	buildTimeout   time.Duration
	publishTimeout time.Duration
}

// NewPipeline wires a pipeline. Either stage may be nil when only the other is run.
func NewPipeline(build *BuildStage, publish *PublishStage, buildTimeout, publishTimeout time.Duration) *Pipeline {
	return &Pipeline{
		build:          build,
		publish:        publish,
		ledger:         ledger.Nop{},
		recorder:       metrics.NoopRecorder{},
		buildTimeout:   buildTimeout,
		publishTimeout: publishTimeout,
	}
}

// WithLedger sets the run ledger.
func (p *Pipeline) WithLedger(l ledger.Ledger) *Pipeline {
	if l != nil {
		p.ledger = l
	}
	return p
}

// WithRecorder sets the metrics recorder and passes it on to the build stage.
func (p *Pipeline) WithRecorder(r metrics.Recorder) *Pipeline {
	if r != nil {
		p.recorder = r
		if p.build != nil {
			p.build.WithRecorder(r)
		}
	}
	return p
}

// Run executes build then publish. Publish never runs when build fails.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	res := &Result{}
	var err error

	res.Build, err = p.Build(ctx, req)
	if err == nil {
		res.Publish, err = p.Publish(ctx, req)
	}

	p.recorder.ObservePipelineDuration(time.Since(start))
	p.recorder.IncPipelineOutcome(resultLabel(err))
	return res, err
}

// Build runs only the build stage.
func (p *Pipeline) Build(ctx context.Context, req Request) (*BuildResult, error) {
	if p.build == nil {
		return nil, errors.InternalError("build stage not configured").Build()
	}
	var out *BuildResult
	err := p.runStage(ctx, StageBuild, p.buildTimeout, req, func(ctx context.Context, e *ledger.Event) error {
		r, err := p.build.Run(ctx, req)
		if err != nil {
			return err
		}
		out = r
		e.Metadata = map[string]string{
			"commit": r.Commit,
			"key":    r.Key,
			"bytes":  strconv.FormatInt(r.Record.Size, 10),
			"digest": r.Record.Digest,
		}
		return nil
	})
	return out, err
}

// Publish runs only the publish stage.
func (p *Pipeline) Publish(ctx context.Context, req Request) (*PublishResult, error) {
	if p.publish == nil {
		return nil, errors.InternalError("publish stage not configured").Build()
	}
	var out *PublishResult
	tag := req.Pair.TagName(p.publish.cfg.Cache.TagPrefix)
	err := p.runStage(ctx, StagePublish, p.publishTimeout, req, func(ctx context.Context, e *ledger.Event) error {
		e.Tag = tag
		r, err := p.publish.Run(ctx, req)
		if err != nil {
			return err
		}
		out = r
		e.Metadata = map[string]string{"commit": r.Commit, "url": r.URL}
		return nil
	})
	return out, err
}

func (p *Pipeline) runStage(ctx context.Context, stage string, timeout time.Duration, req Request,
	fn func(context.Context, *ledger.Event) error,
) error {
	ctx = observability.WithRunID(ctx, req.RunID)
	ctx = observability.WithRevisions(ctx, req.Pair.Base.String(), req.Pair.Head.String())
	ctx = observability.WithStage(ctx, stage)

	event := ledger.Event{RunID: req.RunID, Stage: stage, Base: req.Pair.Base.String(), Head: req.Pair.Head.String()}
	p.appendEvent(ctx, event, ledger.EventStarted)
	observability.InfoContext(ctx, "Stage started")

	stageCtx := ctx
	cancel := func() {}
	if timeout > 0 {
		stageCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	start := time.Now()
	err := fn(stageCtx, &event)
	stageErr := stageCtx.Err()
	cancel()
	elapsed := time.Since(start)

	err = stageContextError(ctx, stageErr, stage, timeout, err)

	p.recorder.ObserveStageDuration(stage, elapsed)
	p.recorder.IncStageResult(stage, resultLabel(err))
	if err != nil {
		category := string(errors.GetCategory(err))
		p.recorder.IncStageFailure(stage, category)
		event.Category = category
		event.Message = err.Error()
		p.appendEvent(ctx, event, ledger.EventFailed)
		observability.ErrorContext(ctx, "Stage failed", logfields.Since(start), logfields.Error(err))
		return err
	}
	p.appendEvent(ctx, event, ledger.EventSucceeded)
	observability.InfoContext(ctx, "Stage succeeded", logfields.Since(start))
	return nil
}

// stageContextError reports a stage that ran out of time or was interrupted
// as such, whatever error the interrupted operation happened to surface.
func stageContextError(parent context.Context, stageErr error, stage string, timeout time.Duration, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case parent.Err() != nil:
		return errors.NewError(errors.CategoryCanceled, stage+" stage canceled").
			WithCause(err).
			Build()
	case stderrors.Is(stageErr, context.DeadlineExceeded):
		return errors.TimeoutError(fmt.Sprintf("%s stage exceeded its %s timeout", stage, timeout)).
			WithCause(err).
			WithContext("stage", stage).
			Build()
	}
	return err
}

func (p *Pipeline) appendEvent(ctx context.Context, e ledger.Event, t ledger.EventType) {
	e.Type = t
	e.Timestamp = time.Now()
	if err := p.ledger.Append(context.WithoutCancel(ctx), e); err != nil {
		observability.WarnContext(ctx, "Failed to record run event", logfields.Error(err))
	}
}

func resultLabel(err error) metrics.ResultLabel {
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case errors.HasCategory(err, errors.CategoryTimeout):
		return metrics.ResultTimeout
	case errors.HasCategory(err, errors.CategoryCanceled):
		return metrics.ResultCanceled
	default:
		return metrics.ResultFailed
	}
}
