// Package report combines per-question results into totals, a grade band,
// and generated feedback.
package report

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/pavelanni/gradesheet/internal/model"
)

// GradeBand awards Grade when the percentage is at least Min. Bands must
// be listed in descending Min order.
type GradeBand struct {
	Min   float64
	Grade string
}

// FeedbackBand awards Message when the percentage is at least Min.
type FeedbackBand struct {
	Min     float64
	Message string
}

// Config holds the aggregation constants. Grade cutpoints are a
// configuration surface, not domain truth.
type Config struct {
	GradeBands   []GradeBand
	DefaultGrade string

	// FeedbackBands in descending Min order; DefaultFeedback applies
	// below every band.
	FeedbackBands   []FeedbackBand
	DefaultFeedback string

	// LowConfidence triggers the OCR-quality caveat when the mean
	// confidence over answered questions falls below it.
	LowConfidence float64

	// Thresholds for the strengths/improvements rules.
	ExcellentCount  int
	MCQCorrectCount int
	BroadCount      int
}

// DefaultConfig returns the stock grade bands and feedback thresholds.
func DefaultConfig() Config {
	return Config{
		GradeBands: []GradeBand{
			{Min: 90, Grade: "A+"},
			{Min: 80, Grade: "A"},
			{Min: 70, Grade: "B"},
			{Min: 60, Grade: "C"},
		},
		DefaultGrade: "D",
		FeedbackBands: []FeedbackBand{
			{Min: 90, Message: "Outstanding performance with excellent mastery of the subject matter."},
			{Min: 80, Message: "Very good performance with strong conceptual understanding."},
			{Min: 70, Message: "Good performance with a solid foundation and room for improvement in some areas."},
			{Min: 60, Message: "Satisfactory performance; focus on strengthening core concepts."},
		},
		DefaultFeedback: "Needs significant improvement; a comprehensive review of the material is recommended.",
		LowConfidence:   0.85,
		ExcellentCount:  3,
		MCQCorrectCount: 3,
		BroadCount:      5,
	}
}

// Aggregate builds a report from per-question results. The results must be
// in question order with one entry per spec; specs supply question types
// for the strengths rules and answers supply per-question confidence for
// the OCR caveat. Orchestration fields (ID, TestID, CreatedAt) are left
// for the caller.
func Aggregate(cfg Config, specs []model.QuestionSpec, results []model.QuestionResult, answers map[int]*model.ExtractedAnswer) model.EvaluationReport {
	var total, obtained int
	for _, r := range results {
		total += r.MarksAllocated
		obtained += r.MarksObtained
	}

	percentage := 0.0
	if total > 0 {
		percentage = math.Round(float64(obtained)/float64(total)*1000) / 10
	}

	answered, skipped := splitByAttempt(results)
	meanConfidence := avgConfidence(answered, answers)

	return model.EvaluationReport{
		TotalMarks:      total,
		ObtainedMarks:   obtained,
		Percentage:      percentage,
		Grade:           cfg.grade(percentage),
		QuestionResults: results,
		OverallFeedback: cfg.overallFeedback(percentage, skipped, answered, meanConfidence),
		Strengths:       cfg.strengths(specs, results),
		Improvements:    cfg.improvements(results, skipped),
		AnsweredCount:   len(answered),
		SkippedCount:    len(skipped),
		MeanConfidence:  meanConfidence,
	}
}

func (cfg Config) grade(percentage float64) string {
	for _, b := range cfg.GradeBands {
		if percentage >= b.Min {
			return b.Grade
		}
	}
	return cfg.DefaultGrade
}

// splitByAttempt returns the answered results and the sorted indices of
// skipped questions.
func splitByAttempt(results []model.QuestionResult) ([]model.QuestionResult, []int) {
	var answered []model.QuestionResult
	var skipped []int
	for _, r := range results {
		if r.Status == model.StatusSkipped {
			skipped = append(skipped, r.QuestionIndex)
		} else {
			answered = append(answered, r)
		}
	}
	sort.Ints(skipped)
	return answered, skipped
}

func avgConfidence(answered []model.QuestionResult, answers map[int]*model.ExtractedAnswer) float64 {
	if len(answered) == 0 {
		return 0
	}
	var sum float64
	for _, r := range answered {
		if a := answers[r.QuestionIndex]; a != nil {
			sum += a.Confidence
		}
	}
	return sum / float64(len(answered))
}

func (cfg Config) overallFeedback(percentage float64, skipped []int, answered []model.QuestionResult, meanConfidence float64) string {
	parts := []string{cfg.summaryFeedback(percentage)}

	if len(answered) > 0 && meanConfidence < cfg.LowConfidence {
		parts = append(parts, "Some answers had handwriting clarity issues which may have affected evaluation.")
	}

	if len(skipped) > 0 {
		parts = append(parts, fmt.Sprintf(
			"%d question(s) were not attempted (questions %s); work on time management.",
			len(skipped), joinInts(skipped)))
	}

	return strings.Join(parts, " ")
}

func (cfg Config) summaryFeedback(percentage float64) string {
	for _, b := range cfg.FeedbackBands {
		if percentage >= b.Min {
			return b.Message
		}
	}
	return cfg.DefaultFeedback
}

// strengths applies threshold rules in a fixed order; the output order is
// the order in which rules fired, never re-sorted.
func (cfg Config) strengths(specs []model.QuestionSpec, results []model.QuestionResult) []string {
	types := make(map[int]model.QuestionType, len(specs))
	for _, q := range specs {
		types[q.Index] = q.Type
	}

	var fullMarks, good, mcqCorrect int
	for _, r := range results {
		if r.Status == model.StatusCorrect && r.MarksObtained == r.MarksAllocated {
			fullMarks++
		}
		if (r.Status == model.StatusCorrect || r.Status == model.StatusPartial) &&
			float64(r.MarksObtained) >= 0.8*float64(r.MarksAllocated) {
			good++
		}
		if r.Status == model.StatusCorrect && types[r.QuestionIndex] == model.QuestionMultipleChoice {
			mcqCorrect++
		}
	}

	var out []string
	if fullMarks >= cfg.ExcellentCount {
		out = append(out, fmt.Sprintf("Excellent performance in %d question(s)", fullMarks))
	}
	if mcqCorrect >= cfg.MCQCorrectCount {
		out = append(out, "Strong performance in multiple choice questions")
	}
	if good >= cfg.BroadCount {
		out = append(out, "Good overall understanding across multiple topics")
	}
	return out
}

func (cfg Config) improvements(results []model.QuestionResult, skipped []int) []string {
	var incorrect, weakPartial int
	for _, r := range results {
		switch r.Status {
		case model.StatusIncorrect:
			incorrect++
		case model.StatusPartial:
			if float64(r.MarksObtained) < 0.6*float64(r.MarksAllocated) {
				weakPartial++
			}
		}
	}

	var out []string
	if len(skipped) > 0 {
		out = append(out, fmt.Sprintf("Attempt all questions (questions %s were skipped)", joinInts(skipped)))
	}
	if incorrect > 0 {
		out = append(out, fmt.Sprintf("Review fundamental concepts (%d question(s) need significant work)", incorrect))
	}
	if weakPartial > 0 {
		out = append(out, fmt.Sprintf("Provide more detailed explanations (%d question(s) had incomplete answers)", weakPartial))
	}
	return out
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ", ")
}
