package model

import (
	"fmt"
	"strings"
)

// ConfigError reports malformed reference data: missing keywords,
// non-contiguous question indices, or non-positive max marks. It is a
// setup defect, never retried and never converted into a grading outcome.
type ConfigError struct {
	QuestionIndex int // 0 when the defect is not tied to one question
	Reason        string
}

func (e *ConfigError) Error() string {
	if e.QuestionIndex > 0 {
		return fmt.Sprintf("configuration error: question %d: %s", e.QuestionIndex, e.Reason)
	}
	return "configuration error: " + e.Reason
}

// ExtractionError reports a failed or timed-out extraction provider call.
// The core performs no automatic retry; the caller may retry the whole
// evaluation.
type ExtractionError struct {
	Timeout bool
	Err     error
}

func (e *ExtractionError) Error() string {
	if e.Timeout {
		return "extraction timed out: " + e.Err.Error()
	}
	return "extraction failed: " + e.Err.Error()
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// SegmentationError reports that extracted answers could not be reconciled
// with the full question set, for example duplicate mapped indices. Fatal
// to the evaluation attempt; no partial report is produced.
type SegmentationError struct {
	Indices []int
	Reason  string
}

func (e *SegmentationError) Error() string {
	if len(e.Indices) == 0 {
		return "segmentation error: " + e.Reason
	}
	parts := make([]string, len(e.Indices))
	for i, idx := range e.Indices {
		parts[i] = fmt.Sprintf("%d", idx)
	}
	return fmt.Sprintf("segmentation error: %s (questions %s)", e.Reason, strings.Join(parts, ", "))
}
