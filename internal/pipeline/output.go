package pipeline

import "errors"

// Output is what a stage hands to the next one. A degraded output still has
// readable Text (usually an explanation of what went wrong) and is carried
// forward instead of aborting the run.
type Output struct {
	Text  string
	Cause error
}

func Ok(text string) Output {
	return Output{Text: text}
}

func Degraded(text string, cause error) Output {
	if cause == nil {
		cause = errors.New(text)
	}
	return Output{Text: text, Cause: cause}
}

func (o Output) Ok() bool { return o.Cause == nil }

func (o Output) Degraded() bool { return o.Cause != nil }

// StageOutcome is recorded for every stage of a run.
type StageOutcome struct {
	Name     string `json:"name"`
	Degraded bool   `json:"degraded"`
	Cause    string `json:"cause,omitempty"`
}

// Report is the result of a complete run.
type Report struct {
	Markdown string
	Stages   []StageOutcome
}

// DegradedStages lists the names of the stages that did not produce an Ok output.
func (r *Report) DegradedStages() []string {
	var out []string
	for _, s := range r.Stages {
		if s.Degraded {
			out = append(out, s.Name)
		}
	}
	return out
}
