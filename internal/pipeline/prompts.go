package pipeline

import (
	"fmt"
	"strings"
)

const (
	HeaderSummary    = "## Medical Analysis Summary"
	HeaderNutrition  = "## Nutritional Recommendations"
	HeaderFitness    = "## Recommended Fitness Plan"
	HeaderDisclaimer = "### Important Disclaimer"

	// specialistMarker separates the patient-facing analysis from the part
	// the nutrition and exercise stages work from.
	specialistMarker = "### Structured Summary for Specialists"
)

var reportHeaders = []string{HeaderSummary, HeaderNutrition, HeaderFitness, HeaderDisclaimer}

const disclaimer = "This report was generated automatically from the uploaded blood test and is for " +
	"informational purposes only. It is not a diagnosis and does not replace the advice of a qualified " +
	"healthcare professional. Talk to your doctor before changing your diet, supplements, or exercise routine."

func summaryPrompt(report, query string) string {
	return fmt.Sprintf(`You are a senior, highly experienced doctor. Analyze the blood test report below to create a comprehensive medical summary.
The patient's specific query is: %q

Your analysis should:
- Summarize the key findings from the report.
- Identify all values that are outside the normal reference ranges.
- For each abnormal value, explain its potential health implications in simple terms.
- Address the patient's query directly.
- Conclude with general, actionable advice. Do not provide a definitive diagnosis or prescribe medication.

Answer in two parts:
1. A human-readable analysis for the patient.
2. A concise, structured list of key abnormal findings and health notes for a nutritionist and a fitness coach, placed under the heading "%s".

Blood test report:
%s`, query, specialistMarker, report)
}

func nutritionPrompt(summary, research string) string {
	var b strings.Builder
	b.WriteString("You are a clinical nutritionist. Based on the following medical summary, provide personalized nutrition recommendations. ")
	b.WriteString("Structure your response with sections for 'Dietary Goals', 'Recommended Foods', 'Foods to Avoid', 'Supplement Suggestions', and 'Sample Meal Plan'. ")
	b.WriteString("Focus on the abnormal values mentioned and rely on scientific evidence only.\n\n")
	b.WriteString("Medical summary:\n")
	b.WriteString(summary)
	if research != "" {
		b.WriteString("\n\nWeb research you may use:\n")
		b.WriteString(research)
	}
	return b.String()
}

func exercisePrompt(summary, research string) string {
	var b strings.Builder
	b.WriteString("You are a certified fitness coach. Based on the following medical summary, create a safe weekly exercise plan tailored to the patient's health status. ")
	b.WriteString("Structure the response with sections for 'Fitness Goals', 'Weekly Schedule', 'Cardiovascular Exercise', 'Strength Training', and 'Flexibility/Mobility'. ")
	b.WriteString("Include frequency, duration, intensity, and specific examples. Add a 'Precautions' section covering the health notes in the summary.\n\n")
	b.WriteString("Medical summary:\n")
	b.WriteString(summary)
	if research != "" {
		b.WriteString("\n\nWeb research you may use:\n")
		b.WriteString(research)
	}
	return b.String()
}

func compilePrompt(summary, nutrition, exercise string) string {
	return fmt.Sprintf(`You are a skilled medical editor. Compile the analyses below from the doctor, the nutritionist, and the fitness coach into a single cohesive markdown report for the patient.
Use exactly these section headings, in this order:
%s
%s
%s
%s

Keep the tone professional, easy to read, and empathetic. If a section is incomplete or contains an error message, include that information gracefully.

Doctor's analysis:
%s

Nutritionist's plan:
%s

Fitness coach's plan:
%s`, HeaderSummary, HeaderNutrition, HeaderFitness, HeaderDisclaimer, summary, nutrition, exercise)
}

// specialistPart returns the text after the specialist marker, or all of
// summary when the model did not emit one.
func specialistPart(summary string) string {
	idx := strings.Index(strings.ToLower(summary), strings.ToLower(specialistMarker))
	if idx < 0 {
		return summary
	}
	rest := strings.TrimSpace(summary[idx+len(specialistMarker):])
	if rest == "" {
		return summary
	}
	return rest
}

// hasReportHeaders reports whether every required heading appears in text.
func hasReportHeaders(text string) bool {
	for _, h := range reportHeaders {
		if !strings.Contains(text, h) {
			return false
		}
	}
	return true
}

// searchTopic picks a short search phrase from the first meaningful line of text.
func searchTopic(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "#-*0123456789. "))
		if len(line) < 8 {
			continue
		}
		r := []rune(line)
		if len(r) > 120 {
			r = r[:120]
		}
		return string(r)
	}
	return ""
}
