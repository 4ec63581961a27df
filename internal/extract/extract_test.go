package extract

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pavelanni/gradesheet/internal/model"
)

func TestDecodeAnswers(t *testing.T) {
	raw := `{"answers": [
		{"question": 1, "text": "Speed = distance / time", "confidence": 0.89, "handwriting": "good"},
		{"question": 2, "text": "I don't know", "confidence": 0.5, "handwriting": "fair"},
		{"question": null, "text": "stray margin note", "confidence": 0.3, "handwriting": "poor"}
	]}`

	answers, err := decodeAnswers(raw)
	if err != nil {
		t.Fatalf("decodeAnswers() error = %v", err)
	}
	if len(answers) != 3 {
		t.Fatalf("len(answers) = %d, want 3", len(answers))
	}
	if answers[0].QuestionIndex != 1 || answers[0].Confidence != 0.89 {
		t.Errorf("answers[0] = %+v", answers[0])
	}
	if answers[0].Handwriting != model.HandwritingGood {
		t.Errorf("answers[0].Handwriting = %s, want good", answers[0].Handwriting)
	}
	if answers[2].QuestionIndex != 0 {
		t.Errorf("null question should map to index 0, got %d", answers[2].QuestionIndex)
	}
}

func TestDecodeAnswersMarkdownFences(t *testing.T) {
	raw := "```json\n{\"answers\": [{\"question\": 1, \"text\": \"fenced\", \"confidence\": 0.9, \"handwriting\": \"clear\"}]}\n```"

	answers, err := decodeAnswers(raw)
	if err != nil {
		t.Fatalf("decodeAnswers() error = %v", err)
	}
	if len(answers) != 1 || answers[0].Text != "fenced" {
		t.Errorf("answers = %+v", answers)
	}
}

func TestDecodeAnswersClampsConfidence(t *testing.T) {
	raw := `{"answers": [
		{"question": 1, "text": "a", "confidence": 1.7, "handwriting": "clear"},
		{"question": 2, "text": "b", "confidence": -0.2, "handwriting": "clear"}
	]}`

	answers, err := decodeAnswers(raw)
	if err != nil {
		t.Fatalf("decodeAnswers() error = %v", err)
	}
	if answers[0].Confidence != 1.0 {
		t.Errorf("confidence above 1 should clamp to 1, got %v", answers[0].Confidence)
	}
	if answers[1].Confidence != 0 {
		t.Errorf("negative confidence should clamp to 0, got %v", answers[1].Confidence)
	}
}

func TestDecodeAnswersInvalidJSON(t *testing.T) {
	if _, err := decodeAnswers("not json at all"); err == nil {
		t.Error("decodeAnswers() should fail on invalid JSON")
	}
}

func TestNormalizeQuality(t *testing.T) {
	tests := []struct {
		in   string
		want model.HandwritingQuality
	}{
		{"clear", model.HandwritingClear},
		{"GOOD", model.HandwritingGood},
		{" fair ", model.HandwritingFair},
		{"poor", model.HandwritingPoor},
		{"", model.HandwritingUnknown},
		{"illegible", model.HandwritingUnknown},
	}
	for _, tt := range tests {
		if got := normalizeQuality(tt.in); got != tt.want {
			t.Errorf("normalizeQuality(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestStaticExtractor(t *testing.T) {
	static := Static{
		{QuestionIndex: 1, Text: "answer one", Confidence: 0.9},
	}
	got, err := static.Extract(context.Background(), model.Document{Name: "ignored"})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(got) != 1 || got[0].Text != "answer one" {
		t.Errorf("Extract() = %+v", got)
	}
}

func TestFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "answers.json")
	content := `{"answers": [{"question": 2, "text": "from file", "confidence": 0.8, "handwriting": "fair"}]}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	static, err := FromFile(path)
	if err != nil {
		t.Fatalf("FromFile() error = %v", err)
	}
	if len(static) != 1 || static[0].QuestionIndex != 2 || static[0].Text != "from file" {
		t.Errorf("FromFile() = %+v", static)
	}
}

func TestFromFileMissing(t *testing.T) {
	if _, err := FromFile(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("FromFile() should fail for a missing file")
	}
}
