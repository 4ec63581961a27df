// Package extract wraps an OCR/LLM provider behind a single adapter
// interface. Provider-specific request and response handling stays here;
// the rest of the pipeline only sees normalized ExtractedAnswer records.
package extract

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/gradesheet/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// Extractor returns the per-question text records located in a scanned
// document. Implementations block until the provider responds or ctx is
// done.
type Extractor interface {
	Extract(ctx context.Context, doc model.Document) ([]model.ExtractedAnswer, error)
}

// Client wraps an OpenAI-compatible vision API.
type Client struct {
	api   *openai.Client
	model string
}

// NewClient creates an extraction client. baseURL may be empty for the
// default endpoint.
func NewClient(baseURL, apiKey, modelName string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// Ping verifies the provider endpoint is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("provider health check: %w", err)
	}
	return nil
}

// answerRecord is the wire shape the provider is instructed to return.
type answerRecord struct {
	Question    *int    `json:"question"`
	Text        string  `json:"text"`
	Confidence  float64 `json:"confidence"`
	Handwriting string  `json:"handwriting"`
}

type extractionPayload struct {
	Answers []answerRecord `json:"answers"`
}

// Extract transcribes the document and returns one record per located
// answer.
func (c *Client) Extract(ctx context.Context, doc model.Document) ([]model.ExtractedAnswer, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", doc.MIME, base64.StdEncoding.EncodeToString(doc.Data))

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: extractionSystemPrompt},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: "Transcribe the answers on this answer sheet."},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURL}},
				},
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("extraction API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("extraction provider returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("extraction response", "document", doc.Name, "raw", raw)

	answers, err := decodeAnswers(raw)
	if err != nil {
		return nil, fmt.Errorf("parse extraction response: %w (raw: %s)", err, raw)
	}
	return answers, nil
}

const extractionSystemPrompt = `You are an OCR transcription engine for handwritten exam answer sheets.
Identify each question number and transcribe the student's answer below it verbatim.

Respond ONLY with a JSON object of this form:
{"answers": [{"question": <number or null if unidentifiable>, "text": "<transcribed answer>", "confidence": <0.0-1.0>, "handwriting": "<clear|good|fair|poor|unknown>"}]}

Rules:
- One record per question you can locate; do not invent answers.
- confidence is your probability that the transcription is accurate.
- If you can read text but cannot tell which question it belongs to, use null for question.`

// decodeAnswers parses and normalizes the provider payload. Models
// sometimes fence the JSON in a markdown code block despite the response
// format, so fences are stripped first.
func decodeAnswers(raw string) ([]model.ExtractedAnswer, error) {
	var payload extractionPayload
	if err := json.Unmarshal([]byte(cleanJSON(raw)), &payload); err != nil {
		return nil, err
	}

	answers := make([]model.ExtractedAnswer, 0, len(payload.Answers))
	for _, rec := range payload.Answers {
		a := model.ExtractedAnswer{
			Text:        rec.Text,
			Confidence:  clamp01(rec.Confidence),
			Handwriting: normalizeQuality(rec.Handwriting),
		}
		if rec.Question != nil && *rec.Question > 0 {
			a.QuestionIndex = *rec.Question
		}
		answers = append(answers, a)
	}
	return answers, nil
}

func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func normalizeQuality(q string) model.HandwritingQuality {
	switch model.HandwritingQuality(strings.ToLower(strings.TrimSpace(q))) {
	case model.HandwritingClear:
		return model.HandwritingClear
	case model.HandwritingGood:
		return model.HandwritingGood
	case model.HandwritingFair:
		return model.HandwritingFair
	case model.HandwritingPoor:
		return model.HandwritingPoor
	default:
		return model.HandwritingUnknown
	}
}
