package segment

import (
	"errors"
	"reflect"
	"testing"

	"github.com/pavelanni/gradesheet/internal/model"
)

func specs(n int) []model.QuestionSpec {
	out := make([]model.QuestionSpec, n)
	for i := range out {
		out[i] = model.QuestionSpec{Index: i + 1, MaxMarks: 5, Type: model.QuestionShortAnswer}
	}
	return out
}

func TestValidateSpecs(t *testing.T) {
	tests := []struct {
		name    string
		specs   []model.QuestionSpec
		wantErr bool
	}{
		{"valid", specs(3), false},
		{"single question", specs(1), false},
		{"empty", nil, true},
		{"gap in indices", []model.QuestionSpec{
			{Index: 1, MaxMarks: 5}, {Index: 3, MaxMarks: 5},
		}, true},
		{"duplicate index", []model.QuestionSpec{
			{Index: 1, MaxMarks: 5}, {Index: 1, MaxMarks: 5},
		}, true},
		{"starts at zero", []model.QuestionSpec{
			{Index: 0, MaxMarks: 5}, {Index: 1, MaxMarks: 5},
		}, true},
		{"zero max marks", []model.QuestionSpec{
			{Index: 1, MaxMarks: 0},
		}, true},
		{"unordered but contiguous", []model.QuestionSpec{
			{Index: 3, MaxMarks: 5}, {Index: 1, MaxMarks: 5}, {Index: 2, MaxMarks: 5},
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSpecs(tt.specs)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSpecs() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var cfgErr *model.ConfigError
				if !errors.As(err, &cfgErr) {
					t.Errorf("error type = %T, want *model.ConfigError", err)
				}
			}
		})
	}
}

func TestMap(t *testing.T) {
	extracted := []model.ExtractedAnswer{
		{QuestionIndex: 1, Text: "first answer", Confidence: 0.9},
		{QuestionIndex: 3, Text: "third answer", Confidence: 0.8},
	}

	mapped, err := Map(specs(3), extracted)
	if err != nil {
		t.Fatalf("Map() error = %v", err)
	}
	if len(mapped) != 3 {
		t.Fatalf("len(mapped) = %d, want 3", len(mapped))
	}
	if mapped[1] == nil || mapped[1].Text != "first answer" {
		t.Errorf("mapped[1] = %+v, want first answer", mapped[1])
	}
	if mapped[2] != nil {
		t.Errorf("mapped[2] = %+v, want nil for unanswered question", mapped[2])
	}
	if mapped[3] == nil || mapped[3].Text != "third answer" {
		t.Errorf("mapped[3] = %+v, want third answer", mapped[3])
	}
}

func TestMapNormalizesBlankText(t *testing.T) {
	extracted := []model.ExtractedAnswer{
		{QuestionIndex: 1, Text: "  \n\t ", Confidence: 0.95},
	}
	mapped, err := Map(specs(2), extracted)
	if err != nil {
		t.Fatalf("Map() error = %v", err)
	}
	if mapped[1] != nil {
		t.Errorf("mapped[1] = %+v, want nil for blank text", mapped[1])
	}
}

func TestMapDropsUnattributableRecords(t *testing.T) {
	extracted := []model.ExtractedAnswer{
		{QuestionIndex: 0, Text: "stray margin text", Confidence: 0.4},
		{QuestionIndex: 7, Text: "out of range", Confidence: 0.9},
		{QuestionIndex: 2, Text: "real answer", Confidence: 0.9},
	}
	mapped, err := Map(specs(2), extracted)
	if err != nil {
		t.Fatalf("Map() error = %v", err)
	}
	if mapped[1] != nil {
		t.Errorf("mapped[1] = %+v, want nil", mapped[1])
	}
	if mapped[2] == nil || mapped[2].Text != "real answer" {
		t.Errorf("mapped[2] = %+v, want real answer", mapped[2])
	}
}

func TestMapDuplicateIndices(t *testing.T) {
	extracted := []model.ExtractedAnswer{
		{QuestionIndex: 2, Text: "first claim", Confidence: 0.9},
		{QuestionIndex: 1, Text: "fine", Confidence: 0.9},
		{QuestionIndex: 2, Text: "second claim", Confidence: 0.8},
	}
	_, err := Map(specs(3), extracted)
	var segErr *model.SegmentationError
	if !errors.As(err, &segErr) {
		t.Fatalf("Map() error = %v, want *model.SegmentationError", err)
	}
	if !reflect.DeepEqual(segErr.Indices, []int{2}) {
		t.Errorf("SegmentationError.Indices = %v, want [2]", segErr.Indices)
	}
}

func TestMapInvalidSpecs(t *testing.T) {
	_, err := Map(nil, nil)
	var cfgErr *model.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Map() error = %v, want *model.ConfigError", err)
	}
}
