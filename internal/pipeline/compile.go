package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// ErrMissingSections is the cause recorded when the model's report lacks a required heading.
var ErrMissingSections = errors.New("compiled report is missing required sections")

// Compile produces the final markdown. The model is only asked when every
// input is Ok; otherwise, or when its answer lacks a heading, the report is
// assembled from the inputs verbatim. The returned Text always carries all
// four headings.
func (s *Stages) Compile(ctx context.Context, summary, nutrition, exercise Output) Output {
	ctx, span := tracer.Start(ctx, "pipeline.compile")
	defer span.End()

	if !summary.Ok() || !nutrition.Ok() || !exercise.Ok() {
		span.SetAttributes(attribute.Bool("compile.assembled", true))
		cause := errors.Join(summary.Cause, nutrition.Cause, exercise.Cause)
		return record(StageCompilation, Degraded(assemble(summary, nutrition, exercise), cause))
	}

	out := s.complete(ctx, span, compilePrompt(summary.Text, nutrition.Text, exercise.Text))
	if out.Ok() && hasReportHeaders(out.Text) {
		return record(StageCompilation, out)
	}

	cause := out.Cause
	if cause == nil {
		cause = ErrMissingSections
	}
	s.logger.Warn("compilation fell back to assembled report", slog.String("cause", cause.Error()))
	span.SetAttributes(attribute.Bool("compile.assembled", true))
	return record(StageCompilation, Degraded(assemble(summary, nutrition, exercise), cause))
}

func assemble(summary, nutrition, exercise Output) string {
	var b strings.Builder
	b.WriteString("# Blood Test Report Analysis\n\n")
	section(&b, HeaderSummary, summary)
	section(&b, HeaderNutrition, nutrition)
	section(&b, HeaderFitness, exercise)
	fmt.Fprintf(&b, "%s\n\n%s\n", HeaderDisclaimer, disclaimer)
	return b.String()
}

func section(b *strings.Builder, header string, o Output) {
	b.WriteString(header)
	b.WriteString("\n\n")
	if o.Degraded() {
		b.WriteString("_This section could not be fully prepared. Details:_\n\n")
	}
	b.WriteString(strings.TrimSpace(o.Text))
	b.WriteString("\n\n")
}
