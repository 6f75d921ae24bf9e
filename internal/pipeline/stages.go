package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"blood-report-service/internal/extract"
	"blood-report-service/internal/llm"
	"blood-report-service/internal/search"
	"blood-report-service/internal/telemetry"
)

const (
	StageVerification = "verification"
	StageSummary      = "medical_summary"
	StageNutrition    = "nutrition_plan"
	StageExercise     = "exercise_plan"
	StageCompilation  = "compilation"
)

var tracer = otel.Tracer("blood-report-service/pipeline")

// ErrNotBloodReport marks text that was extracted fine but does not look like a blood test.
var ErrNotBloodReport = errors.New("document is not a blood test report")

var reportKeywords = []string{
	"blood test", "hematology", "haematology", "cholesterol", "hemoglobin", "haemoglobin",
	"complete blood count", "lipid profile", "platelet", "glucose", "reference range",
	"erythrocyte", "leukocyte", "creatinine", "triglycerides",
}

// Stages holds the collaborators of the five pipeline stages. None of the
// stage methods returns an error: failures become degraded outputs.
type Stages struct {
	llm       llm.Completer
	extractor extract.Extractor
	searcher  search.Searcher
	logger    *slog.Logger
}

// NewStages builds the stages. completer is expected to retry on its own
// (see llm.Retrying); searcher may be nil.
func NewStages(completer llm.Completer, extractor extract.Extractor, searcher search.Searcher, logger *slog.Logger) *Stages {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stages{llm: completer, extractor: extractor, searcher: searcher, logger: logger}
}

// Verify extracts the report text and checks it looks like a blood test.
func (s *Stages) Verify(ctx context.Context, path string) Output {
	_, span := tracer.Start(ctx, "pipeline.verify")
	defer span.End()

	text, err := s.extractor.Extract(path)
	if err != nil {
		span.RecordError(err)
		kind := "unknown"
		var xerr *extract.Error
		if errors.As(err, &xerr) {
			kind = xerr.Kind.String()
		}
		span.SetAttributes(attribute.String("extract.kind", kind))
		s.logger.Warn("document rejected", slog.String("kind", kind), slog.String("error", err.Error()))
		return record(StageVerification, Degraded(fmt.Sprintf("Invalid file: %s", err.Error()), err))
	}
	if !looksLikeBloodReport(text) {
		return record(StageVerification, Degraded(
			"Invalid file: the uploaded document does not appear to be a blood test report. "+
				"No markers such as Blood Test, Hematology, Cholesterol or Hemoglobin were found.",
			ErrNotBloodReport,
		))
	}
	span.SetAttributes(attribute.Int("report.chars", len(text)))
	return record(StageVerification, Ok(text))
}

// Summarize writes the doctor's analysis. A degraded report is passed through.
func (s *Stages) Summarize(ctx context.Context, report Output, query string) Output {
	if report.Degraded() {
		return record(StageSummary, report)
	}
	ctx, span := tracer.Start(ctx, "pipeline.summarize")
	defer span.End()

	return record(StageSummary, s.complete(ctx, span, summaryPrompt(report.Text, query)))
}

// PlanNutrition builds the diet plan from the specialist part of the summary.
func (s *Stages) PlanNutrition(ctx context.Context, summary Output) Output {
	if summary.Degraded() {
		return record(StageNutrition, summary)
	}
	ctx, span := tracer.Start(ctx, "pipeline.plan_nutrition")
	defer span.End()

	notes := specialistPart(summary.Text)
	research := s.research(ctx, "diet and nutrition recommendations for", notes)
	return record(StageNutrition, s.complete(ctx, span, nutritionPrompt(notes, research)))
}

// PlanExercise builds the weekly exercise plan from the specialist part of the summary.
func (s *Stages) PlanExercise(ctx context.Context, summary Output) Output {
	if summary.Degraded() {
		return record(StageExercise, summary)
	}
	ctx, span := tracer.Start(ctx, "pipeline.plan_exercise")
	defer span.End()

	notes := specialistPart(summary.Text)
	research := s.research(ctx, "safe exercise guidelines for", notes)
	return record(StageExercise, s.complete(ctx, span, exercisePrompt(notes, research)))
}

func (s *Stages) complete(ctx context.Context, span trace.Span, prompt string) Output {
	text, err := s.llm.Complete(ctx, prompt)
	if err == nil {
		return Ok(text)
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	var ex *llm.ExhaustedError
	if errors.As(err, &ex) {
		return Degraded(ex.Error(), ex)
	}
	return Degraded(fmt.Sprintf("An error occurred before the LLM call could be retried: %v", err), err)
}

// research is best effort: an empty string on any failure.
func (s *Stages) research(ctx context.Context, prefix, notes string) string {
	if s.searcher == nil {
		return ""
	}
	topic := searchTopic(notes)
	if topic == "" {
		return ""
	}
	out, err := s.searcher.Search(ctx, prefix+" "+topic)
	if err != nil {
		s.logger.Warn("search failed", slog.String("topic", topic), slog.String("error", err.Error()))
		return ""
	}
	return out
}

func looksLikeBloodReport(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range reportKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func record(stage string, o Output) Output {
	outcome := "ok"
	if o.Degraded() {
		outcome = "degraded"
	}
	telemetry.PipelineStagesTotal.WithLabelValues(stage, outcome).Inc()
	return o
}
