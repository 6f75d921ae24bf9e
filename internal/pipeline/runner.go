package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Runner executes the stages in their fixed order.
type Runner struct {
	stages   *Stages
	parallel bool
	logger   *slog.Logger
}

type RunnerOption func(*Runner)

// WithParallelPlans runs the nutrition and exercise stages concurrently.
func WithParallelPlans(on bool) RunnerOption {
	return func(r *Runner) { r.parallel = on }
}

func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

func NewRunner(stages *Stages, opts ...RunnerOption) *Runner {
	r := &Runner{stages: stages, parallel: true, logger: slog.Default()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run returns the compiled report. Stage failures never surface as errors;
// the only error is ctx ending before the run is complete.
func (r *Runner) Run(ctx context.Context, filePath, query string) (*Report, error) {
	ctx, span := tracer.Start(ctx, "pipeline.run")
	defer span.End()

	rep := &Report{}
	note := func(name string, o Output) {
		so := StageOutcome{Name: name, Degraded: o.Degraded()}
		if o.Cause != nil {
			so.Cause = o.Cause.Error()
		}
		rep.Stages = append(rep.Stages, so)
	}

	verified := r.stages.Verify(ctx, filePath)
	note(StageVerification, verified)
	if err := alive(ctx, StageVerification); err != nil {
		return nil, err
	}

	summary := r.stages.Summarize(ctx, verified, query)
	note(StageSummary, summary)
	if err := alive(ctx, StageSummary); err != nil {
		return nil, err
	}

	var nutrition, exercise Output
	if r.parallel {
		var g errgroup.Group
		g.Go(func() error {
			nutrition = r.stages.PlanNutrition(ctx, summary)
			return nil
		})
		g.Go(func() error {
			exercise = r.stages.PlanExercise(ctx, summary)
			return nil
		})
		_ = g.Wait()
	} else {
		nutrition = r.stages.PlanNutrition(ctx, summary)
		exercise = r.stages.PlanExercise(ctx, summary)
	}
	note(StageNutrition, nutrition)
	note(StageExercise, exercise)
	if err := alive(ctx, StageExercise); err != nil {
		return nil, err
	}

	final := r.stages.Compile(ctx, summary, nutrition, exercise)
	note(StageCompilation, final)
	if err := alive(ctx, StageCompilation); err != nil {
		return nil, err
	}

	rep.Markdown = final.Text
	r.logger.Debug("pipeline finished", slog.Any("degraded", rep.DegradedStages()))
	return rep, nil
}

func alive(ctx context.Context, after string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("pipeline stopped after %s: %w", after, err)
	}
	return nil
}
