// Package score compares one extracted answer against one reference
// answer and produces a mark and qualitative status.
//
// The concept signal is keyword coverage mapped through fixed bands. The
// bands keep scoring explainable and stable under small text
// perturbations instead of chasing a noisy continuous similarity score.
// Provider confidence and handwriting quality add a small capped bonus so
// that signal quality never dominates the concept score.
package score

import (
	"math"
	"strings"

	"github.com/pavelanni/gradesheet/internal/model"
)

// Band maps a coverage threshold to a concept score. Coverage strictly
// above Coverage earns Score.
type Band struct {
	Coverage float64
	Score    float64
}

// FeedbackBand awards Message when the mark ratio is at least Min.
type FeedbackBand struct {
	Min     float64
	Message string
}

// Config holds every scoring constant. The values are tunable; the zero
// value is not usable, start from DefaultConfig.
type Config struct {
	// ConceptBands in descending coverage order; FloorScore applies when
	// no band matches.
	ConceptBands []Band
	FloorScore   float64

	// OCRWeight scales provider confidence into the final fraction.
	OCRWeight float64
	// HandwritingBonus per reported quality; absent qualities earn zero.
	HandwritingBonus map[model.HandwritingQuality]float64

	// Status cutoffs on marksObtained/maxMarks.
	CorrectCutoff float64
	PartialCutoff float64

	// FeedbackBands in descending Min order; LowMarksFeedback applies
	// to any positive ratio below every band, NoMarksFeedback to zero.
	FeedbackBands    []FeedbackBand
	LowMarksFeedback string
	NoMarksFeedback  string

	// Feedback qualifiers fire below these thresholds.
	LowCoverageNote   float64
	LowConfidenceNote float64
}

// DefaultConfig returns the stock scoring constants.
func DefaultConfig() Config {
	return Config{
		ConceptBands: []Band{
			{Coverage: 0.8, Score: 1.0},
			{Coverage: 0.6, Score: 0.8},
			{Coverage: 0.4, Score: 0.6},
			{Coverage: 0.2, Score: 0.4},
		},
		FloorScore: 0.2,
		OCRWeight:  0.1,
		HandwritingBonus: map[model.HandwritingQuality]float64{
			model.HandwritingClear: 0.05,
			model.HandwritingGood:  0.03,
		},
		CorrectCutoff: 0.8,
		PartialCutoff: 0.4,
		FeedbackBands: []FeedbackBand{
			{Min: 0.9, Message: "Excellent answer demonstrating thorough understanding."},
			{Min: 0.8, Message: "Very good answer with strong conceptual grasp."},
			{Min: 0.6, Message: "Good answer showing solid understanding."},
			{Min: 0.4, Message: "Partially correct answer with room for improvement."},
		},
		LowMarksFeedback:  "Answer needs significant improvement.",
		NoMarksFeedback:   "Answer does not address the question.",
		LowCoverageNote:   0.5,
		LowConfidenceNote: 0.8,
	}
}

const skippedFeedback = "Question not attempted — no text detected."

// Coverage returns the fraction of keywords present in text as
// case-insensitive substrings. A crude proxy for conceptual overlap, not
// semantic matching.
func Coverage(text string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	found := 0
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			found++
		}
	}
	return float64(found) / float64(len(keywords))
}

// Score evaluates one answer against its reference entry. A nil extracted
// answer (or one with only whitespace text) is always Skipped with zero
// marks, regardless of confidence. Score is a pure function: identical
// inputs always yield an identical result.
func Score(cfg Config, extracted *model.ExtractedAnswer, ref model.ReferenceAnswer, spec model.QuestionSpec) (model.QuestionResult, error) {
	if len(ref.Keywords) == 0 {
		return model.QuestionResult{}, &model.ConfigError{
			QuestionIndex: spec.Index,
			Reason:        "reference answer has no keywords",
		}
	}
	if spec.MaxMarks <= 0 {
		return model.QuestionResult{}, &model.ConfigError{
			QuestionIndex: spec.Index,
			Reason:        "max marks must be positive",
		}
	}

	if extracted == nil || strings.TrimSpace(extracted.Text) == "" {
		return model.QuestionResult{
			QuestionIndex:  spec.Index,
			MarksAllocated: spec.MaxMarks,
			MarksObtained:  0,
			Status:         model.StatusSkipped,
			Feedback:       skippedFeedback,
		}, nil
	}

	coverage := Coverage(extracted.Text, ref.Keywords)
	concept := cfg.conceptScore(coverage)

	ocrAdjustment := extracted.Confidence * cfg.OCRWeight
	handwritingBonus := cfg.HandwritingBonus[extracted.Handwriting]

	finalFraction := math.Min(concept+ocrAdjustment+handwritingBonus, 1.0)
	marks := int(math.Round(finalFraction * float64(spec.MaxMarks)))

	ratio := float64(marks) / float64(spec.MaxMarks)
	var status model.ResultStatus
	switch {
	case ratio >= cfg.CorrectCutoff:
		status = model.StatusCorrect
	case ratio >= cfg.PartialCutoff:
		status = model.StatusPartial
	default:
		// An extracted but worthless answer is Incorrect, not Skipped:
		// "tried and wrong" is a different outcome from "did not attempt".
		status = model.StatusIncorrect
	}

	return model.QuestionResult{
		QuestionIndex:  spec.Index,
		MarksAllocated: spec.MaxMarks,
		MarksObtained:  marks,
		Status:         status,
		Feedback:       cfg.feedback(ratio, coverage, extracted.Confidence),
	}, nil
}

func (cfg Config) conceptScore(coverage float64) float64 {
	for _, b := range cfg.ConceptBands {
		if coverage > b.Coverage {
			return b.Score
		}
	}
	return cfg.FloorScore
}

func (cfg Config) feedback(ratio, coverage, confidence float64) string {
	parts := []string{cfg.summaryFeedback(ratio)}

	if coverage < cfg.LowCoverageNote {
		parts = append(parts, "Missing key concepts and technical terms.")
	}
	if confidence < cfg.LowConfidenceNote {
		parts = append(parts, "Handwriting clarity may have affected text recognition.")
	}

	return strings.Join(parts, " ")
}

func (cfg Config) summaryFeedback(ratio float64) string {
	for _, b := range cfg.FeedbackBands {
		if ratio >= b.Min {
			return b.Message
		}
	}
	if ratio > 0 {
		return cfg.LowMarksFeedback
	}
	return cfg.NoMarksFeedback
}
