package optimizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ak-content/shorts-optimizer/internal/youtube"
	"github.com/go-playground/validator/v10"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

var validate = validator.New()

// ErrLLMUnavailable is returned when the model's response carries no
// usable payload. Callers treat it like any other refinement failure
// and fall back to deterministic output.
var ErrLLMUnavailable = errors.New("llm response unavailable")

// DiagnosisRefiner is the optional generative refinement stage. A nil
// refiner means baseline-only operation.
type DiagnosisRefiner interface {
	Diagnose(ctx context.Context, video youtube.ShortVideo, metrics youtube.ShortMetrics, baseline []RuleDecision, skillRules string) (*LLMDiagnosis, error)
}

// RewritePlanner produces a full variant plan from a diagnosis. Like the
// refiner, it is optional; the deterministic fallback plan stands alone.
type RewritePlanner interface {
	Rewrite(ctx context.Context, video youtube.ShortVideo, metrics youtube.ShortMetrics, diagnosis DiagnosisResult, skillRules string, fallback VariantPlan) (*VariantPlan, error)
}

// LLMDiagnosis is the structured payload the model must return. The
// validate tags are the machine-checkable contract: any response that
// fails them is discarded wholesale.
type LLMDiagnosis struct {
	Summary     string          `json:"summary" validate:"required"`
	PrimaryFix  string          `json:"primaryFix" validate:"required"`
	Issues      []LLMIssue      `json:"issues" validate:"dive"`
	Refinements []LLMRefinement `json:"refinements" validate:"dive"`
}

// LLMIssue mirrors DiagnosisIssue in the model's output schema.
type LLMIssue struct {
	Metric       string   `json:"metric" validate:"required"`
	CurrentValue *float64 `json:"currentValue"`
	Target       string   `json:"target" validate:"required"`
	Issue        string   `json:"issue" validate:"required"`
	Evidence     string   `json:"evidence" validate:"required"`
}

// LLMRefinement is one incremental decision contributed by the model.
type LLMRefinement struct {
	Metric  string `json:"metric" validate:"required"`
	Trigger string `json:"trigger" validate:"required"`
	Change  string `json:"change" validate:"required"`
	Why     string `json:"why" validate:"required"`
}

// Compile-time interface checks.
var (
	_ DiagnosisRefiner = (*OpenAIRefiner)(nil)
	_ RewritePlanner   = (*OpenAIRefiner)(nil)
)

// OpenAIRefiner implements the refinement stage against the OpenAI Chat
// Completions API with structured JSON output.
type OpenAIRefiner struct {
	client openai.Client
	model  string
}

// NewOpenAIRefiner creates an OpenAIRefiner. Extra request options (for
// example a base URL override) are passed through to the client.
func NewOpenAIRefiner(apiKey, model string, opts ...option.RequestOption) *OpenAIRefiner {
	clientOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OpenAIRefiner{
		client: openai.NewClient(clientOpts...),
		model:  model,
	}
}

// diagnosisJSONSchema is the strict output contract sent with the
// request. It matches LLMDiagnosis field for field.
var diagnosisJSONSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"summary", "primaryFix", "issues", "refinements"},
	"properties": map[string]any{
		"summary":    map[string]any{"type": "string"},
		"primaryFix": map[string]any{"type": "string"},
		"issues": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"required":             []string{"metric", "currentValue", "target", "issue", "evidence"},
				"properties": map[string]any{
					"metric":       map[string]any{"type": "string"},
					"currentValue": map[string]any{"type": []string{"number", "null"}},
					"target":       map[string]any{"type": "string"},
					"issue":        map[string]any{"type": "string"},
					"evidence":     map[string]any{"type": "string"},
				},
			},
		},
		"refinements": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"required":             []string{"metric", "trigger", "change", "why"},
				"properties": map[string]any{
					"metric":  map[string]any{"type": "string"},
					"trigger": map[string]any{"type": "string"},
					"change":  map[string]any{"type": "string"},
					"why":     map[string]any{"type": "string"},
				},
			},
		},
	},
}

const diagnosisSystemPrompt = `You are a YouTube Shorts diagnostic engine.

Always preserve required baseline decisions and only add precise refinements.

Return strict JSON that maps metrics to concrete edit changes.

Reference CTR, averageViewDuration, averageViewPercentage, and first3sRetentionProxy when available.`

// diagnosisInput is the user payload: the video's core fields, the full
// metrics snapshot, and the already-computed baseline decisions the
// model must preserve.
type diagnosisInput struct {
	Video struct {
		VideoID         string   `json:"videoId"`
		Title           string   `json:"title"`
		DurationSeconds *float64 `json:"durationSeconds"`
		PublishedAt     string   `json:"publishedAt"`
	} `json:"video"`
	Metrics           youtube.ShortMetrics `json:"metrics"`
	BaselineDecisions []RuleDecision       `json:"baselineDecisions"`
}

// Diagnose asks the model for a refined diagnosis. The model acts as a
// refiner, not a replacement: baseline decisions ride along in the
// prompt and only refinements come back. Any schema or parse failure is
// an error; the caller treats it as an absent refinement.
func (r *OpenAIRefiner) Diagnose(ctx context.Context, video youtube.ShortVideo, metrics youtube.ShortMetrics, baseline []RuleDecision, skillRules string) (*LLMDiagnosis, error) {
	var input diagnosisInput
	input.Video.VideoID = video.VideoID
	input.Video.Title = video.Title
	input.Video.DurationSeconds = video.DurationSeconds
	input.Video.PublishedAt = video.PublishedAt.Format("2006-01-02T15:04:05Z07:00")
	input.Metrics = metrics
	input.BaselineDecisions = baseline

	payload, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling diagnosis input: %w", err)
	}

	systemPrompt := diagnosisSystemPrompt
	if skillRules != "" {
		systemPrompt += "\n\nFollow these canonical generation rules for context:\n\n" + skillRules
	}

	slog.Debug("calling OpenAI diagnosis refinement", "model", r.model, "videoId", video.VideoID)

	resp, err := r.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       r.model,
		Temperature: openai.Float(0),
		MaxTokens:   openai.Int(1200),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(string(payload)),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				Type: "json_schema",
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "shorts_diagnosis",
					Schema: diagnosisJSONSchema,
					Strict: openai.Bool(true),
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai diagnosis: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai diagnosis: %w: no choices returned", ErrLLMUnavailable)
	}

	text := extractJSON(resp.Choices[0].Message.Content)
	if text == "" {
		return nil, fmt.Errorf("openai diagnosis: %w: no parseable payload in response", ErrLLMUnavailable)
	}

	var diagnosis LLMDiagnosis
	if err := json.Unmarshal([]byte(text), &diagnosis); err != nil {
		return nil, fmt.Errorf("openai diagnosis: parsing response JSON: %w", err)
	}
	if err := validate.Struct(&diagnosis); err != nil {
		return nil, fmt.Errorf("openai diagnosis: response failed schema validation: %w", err)
	}

	return &diagnosis, nil
}

// extractJSON strips markdown code fences from a string that may contain
// JSON wrapped in ```json ... ``` or ``` ... ``` blocks, the common case
// when a model ignores the structured-output instruction.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)

	if after, found := strings.CutPrefix(s, "```json"); found {
		if idx := strings.LastIndex(after, "```"); idx >= 0 {
			after = after[:idx]
		}
		return strings.TrimSpace(after)
	}

	if after, found := strings.CutPrefix(s, "```"); found {
		if idx := strings.LastIndex(after, "```"); idx >= 0 {
			after = after[:idx]
		}
		return strings.TrimSpace(after)
	}

	return s
}
