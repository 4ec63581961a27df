// Package segment reconciles extraction records with a test's declared
// question set.
package segment

import (
	"sort"
	"strings"

	"github.com/pavelanni/gradesheet/internal/model"
)

// ValidateSpecs checks that question indices are contiguous from 1..N and
// that every question carries positive max marks.
func ValidateSpecs(specs []model.QuestionSpec) error {
	if len(specs) == 0 {
		return &model.ConfigError{Reason: "test has no questions"}
	}

	sorted := make([]model.QuestionSpec, len(specs))
	copy(sorted, specs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	for i, q := range sorted {
		if q.Index != i+1 {
			return &model.ConfigError{
				QuestionIndex: q.Index,
				Reason:        "question indices must be contiguous from 1",
			}
		}
		if q.MaxMarks <= 0 {
			return &model.ConfigError{
				QuestionIndex: q.Index,
				Reason:        "max marks must be positive",
			}
		}
	}
	return nil
}

// Map assigns each extraction record to its declared question. The result
// has an entry for every spec index; a nil value means no usable answer
// text was located for that question. Records with empty or
// whitespace-only text are normalized to nil, records without a question
// index (or with an index outside the declared set) are unattributable
// and dropped, and two records claiming the same index make the document
// unreconcilable.
func Map(specs []model.QuestionSpec, extracted []model.ExtractedAnswer) (map[int]*model.ExtractedAnswer, error) {
	if err := ValidateSpecs(specs); err != nil {
		return nil, err
	}

	mapped := make(map[int]*model.ExtractedAnswer, len(specs))
	for _, q := range specs {
		mapped[q.Index] = nil
	}

	var duplicates []int
	for i := range extracted {
		rec := extracted[i]
		if rec.QuestionIndex <= 0 || rec.QuestionIndex > len(specs) {
			continue
		}
		if strings.TrimSpace(rec.Text) == "" {
			continue
		}
		if mapped[rec.QuestionIndex] != nil {
			duplicates = append(duplicates, rec.QuestionIndex)
			continue
		}
		mapped[rec.QuestionIndex] = &rec
	}

	if len(duplicates) > 0 {
		sort.Ints(duplicates)
		return nil, &model.SegmentationError{
			Indices: duplicates,
			Reason:  "multiple answers mapped to the same question",
		}
	}

	return mapped, nil
}
