package model

import "time"

// QuestionType classifies a question on the answer sheet.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionShortAnswer    QuestionType = "short_answer"
	QuestionLongAnswer     QuestionType = "long_answer"
	QuestionEssay          QuestionType = "essay"
)

// HandwritingQuality is the extraction provider's judgement of how legible
// the handwriting behind an answer was.
type HandwritingQuality string

const (
	HandwritingClear   HandwritingQuality = "clear"
	HandwritingGood    HandwritingQuality = "good"
	HandwritingFair    HandwritingQuality = "fair"
	HandwritingPoor    HandwritingQuality = "poor"
	HandwritingUnknown HandwritingQuality = "unknown"
)

// ResultStatus is the qualitative outcome for a single question.
type ResultStatus string

const (
	StatusCorrect   ResultStatus = "correct"
	StatusPartial   ResultStatus = "partial"
	StatusIncorrect ResultStatus = "incorrect"
	StatusSkipped   ResultStatus = "skipped"
)

// Test identifies one published test and its metadata.
type Test struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Subject   string    `json:"subject"`
	CreatedAt time.Time `json:"created_at"`
}

// QuestionSpec declares one question of a test. Indices are unique and
// contiguous from 1 within a test; specs are immutable once published.
type QuestionSpec struct {
	Index    int          `json:"index"`
	MaxMarks int          `json:"max_marks"`
	Type     QuestionType `json:"type"`
}

// ReferenceAnswer is the answer-key entry for one question. Keywords must
// be non-empty; the scorer treats an empty list as a configuration defect.
type ReferenceAnswer struct {
	QuestionIndex int      `json:"question_index"`
	ModelText     string   `json:"model_text"`
	Keywords      []string `json:"keywords"`
	Explanation   string   `json:"explanation"`
}

// ReferenceSet bundles everything the key store supplies for one test.
type ReferenceSet struct {
	TestID  int64
	Specs   []QuestionSpec
	Answers map[int]ReferenceAnswer
}

// TestBankImport is the on-disk JSON format for a test-bank file.
type TestBankImport struct {
	Title     string           `json:"title"`
	Subject   string           `json:"subject"`
	Questions []QuestionImport `json:"questions"`
}

// QuestionImport is one question entry in a test-bank file.
type QuestionImport struct {
	Index       int          `json:"index"`
	MaxMarks    int          `json:"max_marks"`
	Type        QuestionType `json:"type"`
	ModelAnswer string       `json:"model_answer"`
	Keywords    []string     `json:"keywords"`
	Explanation string       `json:"explanation"`
}

// Document is a scanned answer sheet handed to the extraction adapter.
type Document struct {
	Name string
	MIME string
	Data []byte
}

// ExtractedAnswer is one normalized record from the extraction provider.
// QuestionIndex 0 means the provider could not attribute the text to a
// question. Immutable after creation.
type ExtractedAnswer struct {
	QuestionIndex int                `json:"question_index"`
	Text          string             `json:"text"`
	Confidence    float64            `json:"confidence"`
	Handwriting   HandwritingQuality `json:"handwriting"`
}

// QuestionResult is the scorer's verdict for one question.
type QuestionResult struct {
	QuestionIndex  int          `json:"question_index"`
	MarksAllocated int          `json:"marks_allocated"`
	MarksObtained  int          `json:"marks_obtained"`
	Status         ResultStatus `json:"status"`
	Feedback       string       `json:"feedback"`
}

// EvaluationReport is the terminal artifact of one evaluation. It is never
// mutated after creation; re-evaluating a document produces a new report.
type EvaluationReport struct {
	ID              string           `json:"id"`
	TestID          int64            `json:"test_id"`
	TotalMarks      int              `json:"total_marks"`
	ObtainedMarks   int              `json:"obtained_marks"`
	Percentage      float64          `json:"percentage"`
	Grade           string           `json:"grade"`
	QuestionResults []QuestionResult `json:"question_results"`
	OverallFeedback string           `json:"overall_feedback"`
	Strengths       []string         `json:"strengths"`
	Improvements    []string         `json:"improvements"`
	AnsweredCount   int              `json:"answered_count"`
	SkippedCount    int              `json:"skipped_count"`
	MeanConfidence  float64          `json:"mean_confidence"`
	CreatedAt       time.Time        `json:"created_at"`
}
