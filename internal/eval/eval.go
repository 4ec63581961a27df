// Package eval sequences the grading pipeline: extraction, segmentation,
// scoring, aggregation. A completed report always covers every declared
// question; any stage failure aborts the attempt without a partial
// report.
package eval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/gradesheet/internal/extract"
	"github.com/pavelanni/gradesheet/internal/model"
	"github.com/pavelanni/gradesheet/internal/report"
	"github.com/pavelanni/gradesheet/internal/score"
	"github.com/pavelanni/gradesheet/internal/segment"
)

// Stage identifies a step of the evaluation pipeline.
type Stage string

const (
	StagePending     Stage = "pending"
	StageExtracting  Stage = "extracting"
	StageSegmenting  Stage = "segmenting"
	StageScoring     Stage = "scoring"
	StageAggregating Stage = "aggregating"
	StageCompleted   Stage = "completed"
	StageFailed      Stage = "failed"
)

// StageError records which pipeline stage failed and, where applicable,
// the question involved. The original cause is preserved for errors.Is
// and errors.As.
type StageError struct {
	Stage         Stage
	QuestionIndex int
	Err           error
}

func (e *StageError) Error() string {
	if e.QuestionIndex > 0 {
		return fmt.Sprintf("evaluation failed at stage %s (question %d): %v", e.Stage, e.QuestionIndex, e.Err)
	}
	return fmt.Sprintf("evaluation failed at stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Observer is notified on every stage transition. It is for progress
// reporting only; the pipeline never depends on it.
type Observer func(stage Stage)

// KeyStore supplies validated reference data for a test. The orchestrator
// still re-validates defensively.
type KeyStore interface {
	GetReference(ctx context.Context, testID int64) (*model.ReferenceSet, error)
}

// Orchestrator runs evaluations. Concurrent use for different documents
// is safe; the orchestrator holds no mutable state between calls.
type Orchestrator struct {
	extractor extract.Extractor
	keys      KeyStore
	scoreCfg  score.Config
	reportCfg report.Config
	timeout   time.Duration
	observer  Observer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithScoreConfig overrides the scoring constants.
func WithScoreConfig(cfg score.Config) Option {
	return func(o *Orchestrator) { o.scoreCfg = cfg }
}

// WithReportConfig overrides the aggregation constants.
func WithReportConfig(cfg report.Config) Option {
	return func(o *Orchestrator) { o.reportCfg = cfg }
}

// WithExtractionTimeout bounds the provider call. Zero disables the bound.
func WithExtractionTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// WithObserver registers a stage-transition callback.
func WithObserver(fn Observer) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

// New creates an Orchestrator with default scoring and report constants.
func New(extractor extract.Extractor, keys KeyStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		extractor: extractor,
		keys:      keys,
		scoreCfg:  score.DefaultConfig(),
		reportCfg: report.DefaultConfig(),
		timeout:   2 * time.Minute,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) transition(s Stage) {
	if o.observer != nil {
		o.observer(s)
	}
}

func (o *Orchestrator) fail(stage Stage, questionIndex int, err error) error {
	o.transition(StageFailed)
	return &StageError{Stage: stage, QuestionIndex: questionIndex, Err: err}
}

// Evaluate runs the full pipeline for one document against one test and
// returns the terminal report. Stages run strictly in sequence; no stage
// ever sees partial upstream data. A failed evaluation returns a
// *StageError and no report.
func (o *Orchestrator) Evaluate(ctx context.Context, doc model.Document, testID int64) (*model.EvaluationReport, error) {
	o.transition(StagePending)

	refs, err := o.keys.GetReference(ctx, testID)
	if err != nil {
		return nil, o.fail(StagePending, 0, fmt.Errorf("load reference data for test %d: %w", testID, err))
	}

	// Extracting.
	o.transition(StageExtracting)
	extracted, err := o.extractDocument(ctx, doc)
	if err != nil {
		return nil, o.fail(StageExtracting, 0, err)
	}
	slog.Debug("extraction complete", "document", doc.Name, "records", len(extracted))

	// Segmenting.
	o.transition(StageSegmenting)
	mapped, err := segment.Map(refs.Specs, extracted)
	if err != nil {
		return nil, o.fail(StageSegmenting, configQuestion(err), err)
	}
	// Segmentation validated contiguity, so sorting a copy by index
	// yields canonical 1..N order for the result slice. The stored set
	// may be shared between concurrent evaluations and is never mutated.
	specs := slices.Clone(refs.Specs)
	sort.Slice(specs, func(i, j int) bool { return specs[i].Index < specs[j].Index })

	// Scoring. The reference keywords are checked up front so the
	// fan-out only runs scorings that cannot fail.
	o.transition(StageScoring)
	for _, spec := range specs {
		ref, ok := refs.Answers[spec.Index]
		if !ok {
			return nil, o.fail(StageScoring, spec.Index, &model.ConfigError{
				QuestionIndex: spec.Index,
				Reason:        "no reference answer for question",
			})
		}
		if len(ref.Keywords) == 0 {
			return nil, o.fail(StageScoring, spec.Index, &model.ConfigError{
				QuestionIndex: spec.Index,
				Reason:        "reference answer has no keywords",
			})
		}
	}

	results, err := o.scoreAll(specs, refs.Answers, mapped)
	if err != nil {
		return nil, o.fail(StageScoring, configQuestion(err), err)
	}

	// Aggregating.
	o.transition(StageAggregating)
	if err := verifyCoverage(specs, results); err != nil {
		return nil, o.fail(StageAggregating, 0, err)
	}

	rep := report.Aggregate(o.reportCfg, specs, results, mapped)
	rep.ID = uuid.NewString()
	rep.TestID = testID
	rep.CreatedAt = time.Now().UTC()

	o.transition(StageCompleted)
	slog.Info("evaluation completed",
		"report_id", rep.ID,
		"test_id", testID,
		"document", doc.Name,
		"obtained", rep.ObtainedMarks,
		"total", rep.TotalMarks,
		"grade", rep.Grade,
	)
	return &rep, nil
}

// extractDocument invokes the provider under the configured timeout. A
// deadline hit is reported as a timeout, never silently substituted with
// empty answers.
func (o *Orchestrator) extractDocument(ctx context.Context, doc model.Document) ([]model.ExtractedAnswer, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	extracted, err := o.extractor.Extract(ctx, doc)
	if err != nil {
		return nil, &model.ExtractionError{
			Timeout: errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded),
			Err:     err,
		}
	}
	return extracted, nil
}

// scoreAll fans the per-question scorings out concurrently. Each call is
// a pure function of its inputs; results land in index-addressed slots,
// so there is no shared mutable state between goroutines.
func (o *Orchestrator) scoreAll(specs []model.QuestionSpec, answers map[int]model.ReferenceAnswer, mapped map[int]*model.ExtractedAnswer) ([]model.QuestionResult, error) {
	results := make([]model.QuestionResult, len(specs))
	errs := make([]error, len(specs))

	var wg sync.WaitGroup
	for i, spec := range specs {
		wg.Add(1)
		go func(i int, spec model.QuestionSpec) {
			defer wg.Done()
			results[i], errs[i] = score.Score(o.scoreCfg, mapped[spec.Index], answers[spec.Index], spec)
		}(i, spec)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// verifyCoverage asserts the completeness invariant: exactly one result
// per declared question, in index order.
func verifyCoverage(specs []model.QuestionSpec, results []model.QuestionResult) error {
	if len(results) != len(specs) {
		return &model.SegmentationError{
			Reason: fmt.Sprintf("expected %d results, got %d", len(specs), len(results)),
		}
	}
	for i, r := range results {
		if r.QuestionIndex != specs[i].Index {
			return &model.SegmentationError{
				Indices: []int{specs[i].Index},
				Reason:  "result order does not match question order",
			}
		}
	}
	return nil
}

func configQuestion(err error) int {
	var ce *model.ConfigError
	if errors.As(err, &ce) {
		return ce.QuestionIndex
	}
	return 0
}
