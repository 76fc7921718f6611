package optimizer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/ak-content/shorts-optimizer/internal/youtube"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"
)

// VariantPlanVersion identifies the plan schema.
const VariantPlanVersion = "shorts-optimizer.variant.v1"

// CaptionCue is one timed subtitle line of the variant plan.
type CaptionCue struct {
	StartSec  float64 `json:"startSec" validate:"gte=0"`
	EndSec    float64 `json:"endSec" validate:"gte=0"`
	Text      string  `json:"text" validate:"required"`
	StyleHint string  `json:"styleHint,omitempty"`
}

// Scene is one timed segment of the variant plan's timeline.
type Scene struct {
	ID        string   `json:"id" validate:"required"`
	StartSec  float64  `json:"startSec" validate:"gte=0"`
	EndSec    float64  `json:"endSec" validate:"gte=0"`
	Segment   string   `json:"segment" validate:"required"`
	Objective string   `json:"objective" validate:"required"`
	Visuals   []string `json:"visuals" validate:"min=1,dive,required"`
	Overlays  []string `json:"overlays" validate:"min=1,dive,required"`
	AudioCues []string `json:"audioCues" validate:"min=1,dive,required"`
	EditNotes []string `json:"editNotes" validate:"min=1,dive,required"`
}

// LoopSpec describes the loop-ready handoff from last frame to first.
type LoopSpec struct {
	HandoffSec float64 `json:"handoffSec" validate:"gte=0"`
	BridgeLine string  `json:"bridgeLine" validate:"required"`
	VisualCue  string  `json:"visualCue" validate:"required"`
}

// Timeline holds the timed structure of the variant plan.
type Timeline struct {
	TotalDurationSec float64      `json:"totalDurationSec" validate:"gte=40,lte=60"`
	Scenes           []Scene      `json:"scenes" validate:"min=4,dive"`
	Captions         []CaptionCue `json:"captions" validate:"min=4,dive"`
	Loop             LoopSpec     `json:"loop"`
}

// FirstFrame specifies the opening frame of the variant.
type FirstFrame struct {
	Visual       string `json:"visual" validate:"required"`
	SubtitleLine string `json:"subtitleLine" validate:"required"`
	MotionCue    string `json:"motionCue" validate:"required"`
}

// VariantMetadata holds publish metadata for the variant.
type VariantMetadata struct {
	Title         string   `json:"title" validate:"required"`
	Hashtags      []string `json:"hashtags" validate:"min=2,dive,required"`
	Tags          []string `json:"tags" validate:"min=2,dive,required"`
	PinnedComment string   `json:"pinnedComment" validate:"required"`
}

// EditDecision ties one concrete edit back to the metric signal that
// motivated it.
type EditDecision struct {
	Metric string `json:"metric" validate:"required"`
	Signal string `json:"signal" validate:"required"`
	Change string `json:"change" validate:"required"`
	Why    string `json:"why" validate:"required"`
}

// VariantPlan is a complete rewrite plan for one short: hook, first
// frame, script, timed scenes and captions, publish metadata, and the
// edit-decision list tying changes back to metrics.
type VariantPlan struct {
	Version          string          `json:"version" validate:"required,eq=shorts-optimizer.variant.v1"`
	VideoID          string          `json:"videoId" validate:"required"`
	GeneratedAt      string          `json:"generatedAt" validate:"required"`
	SourceVideoTitle string          `json:"sourceVideoTitle" validate:"required"`
	PrimaryFix       string          `json:"primaryFix" validate:"required"`
	HookLine         string          `json:"hookLine" validate:"required"`
	FirstFrame       FirstFrame      `json:"firstFrame"`
	Script           string          `json:"script" validate:"required"`
	Timeline         Timeline        `json:"timeline"`
	Metadata         VariantMetadata `json:"metadata"`
	EditDecisionList []EditDecision  `json:"editDecisionList" validate:"min=1,dive"`
}

// ValidateVariantPlan checks a plan against the schema.
func ValidateVariantPlan(plan *VariantPlan) error {
	if err := validate.Struct(plan); err != nil {
		return fmt.Errorf("variant plan failed schema validation: %w", err)
	}
	return nil
}

var nonAlphanumericPattern = regexp.MustCompile(`[^a-z0-9]+`)

func sanitizeTag(tag string) string {
	return nonAlphanumericPattern.ReplaceAllString(strings.ToLower(tag), "")
}

func uniqueStrings(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

var whitespacePattern = regexp.MustCompile(`\s+`)

func inferCoreIdea(title string) string {
	compact := strings.NewReplacer("(", " ", ")", " ").Replace(title)
	compact = strings.TrimSpace(whitespacePattern.ReplaceAllString(compact, " "))
	if len(compact) > 80 {
		compact = strings.TrimSpace(compact[:80])
	}
	return compact
}

func hasLowCTR(diagnosis DiagnosisResult) bool {
	for _, entry := range diagnosis.WhyEntries {
		if entry.Metric == MetricCTR && strings.Contains(strings.ToLower(entry.Change), "title") {
			return true
		}
	}
	return false
}

// RewriteParams carries the inputs of one rewrite-planning run.
type RewriteParams struct {
	Video       youtube.ShortVideo
	Metrics     youtube.ShortMetrics
	Diagnosis   DiagnosisResult
	SkillRules  string
	GeneratedAt string
	Planner     RewritePlanner
}

// RewriteShortVariant builds the variant plan for a diagnosed short. The
// deterministic fallback plan is always computed; the optional planner
// may replace it, and any planner failure is logged and discarded.
func RewriteShortVariant(ctx context.Context, params RewriteParams) VariantPlan {
	fallback := buildFallbackPlan(params.Video, params.Diagnosis, params.GeneratedAt)

	if params.Planner == nil {
		return fallback
	}

	plan, err := params.Planner.Rewrite(ctx, params.Video, params.Metrics, params.Diagnosis, params.SkillRules, fallback)
	if err != nil {
		slog.Warn("llm rewrite unavailable, using deterministic fallback plan",
			"videoId", params.Video.VideoID,
			"error", err,
		)
		return fallback
	}
	return *plan
}

// buildFallbackPlan derives a complete plan from the video title and the
// diagnosis alone, so a valid plan exists with zero LLM involvement.
func buildFallbackPlan(video youtube.ShortVideo, diagnosis DiagnosisResult, generatedAt string) VariantPlan {
	coreIdea := inferCoreIdea(video.Title)
	lowCTR := hasLowCTR(diagnosis)

	hookLine := fmt.Sprintf("Quick reality check: %s.", coreIdea)
	title := coreIdea
	if lowCTR {
		hookLine = fmt.Sprintf("Stop scrolling: %s is not what most people think.", coreIdea)
		title = fmt.Sprintf("%s (The Real Fix in 50s)", coreIdea)
	}

	rawTags := append(append([]string{}, video.Tags...), "shorts", "youtube-shorts", "high-retention")
	tags := make([]string, 0, len(rawTags))
	for _, tag := range rawTags {
		if sanitized := sanitizeTag(tag); sanitized != "" {
			tags = append(tags, sanitized)
		}
	}
	tags = uniqueStrings(tags)
	if len(tags) > 10 {
		tags = tags[:10]
	}

	hashtags := make([]string, 0, len(tags))
	for _, tag := range tags {
		hashtags = append(hashtags, "#"+tag)
	}
	hashtags = uniqueStrings(hashtags)
	if len(hashtags) > 8 {
		hashtags = hashtags[:8]
	}

	script := strings.Join([]string{
		fmt.Sprintf("[0-2s] %s", hookLine),
		"[3-12s] Context: one sentence setup, why this problem matters now.",
		"[13-35s] Core insight: one idea, one contrast, one proof point.",
		"[36-50s] Payoff: reframe mistake and state practical fix clearly.",
		"[50-55s] CTA: ask a focused follow-up question to trigger comments.",
	}, "\n")

	scenes := []Scene{
		{
			ID:        "scene-01-hook",
			StartSec:  0,
			EndSec:    2,
			Segment:   "hook",
			Objective: "Pattern interrupt in first frame to improve CTR.",
			Visuals: []string{
				"Begin mid-thought with immediate motion and tight crop.",
				"Use high-contrast object/action tied to the core claim.",
			},
			Overlays:  []string{hookLine},
			AudioCues: []string{"Short hit + whoosh at 0.2s"},
			EditNotes: []string{"No greeting or branding card before the hook."},
		},
		{
			ID:        "scene-02-context",
			StartSec:  3,
			EndSec:    12,
			Segment:   "context compression",
			Objective: "Set context fast with one-sentence chunks.",
			Visuals: []string{
				"Switch framing every 2-3s.",
				"Use one concrete visual anchor for the problem.",
			},
			Overlays:  []string{"Why this matters right now"},
			AudioCues: []string{"Beat continues, no dead air"},
			EditNotes: []string{"Subtitle timing locked to spoken pauses."},
		},
		{
			ID:        "scene-03-breakdown",
			StartSec:  13,
			EndSec:    35,
			Segment:   "core insight",
			Objective: "Deliver one insight with contrast and number.",
			Visuals: []string{
				"Before vs after visual progression.",
				"Add micro-zoom every 3-5s.",
			},
			Overlays:  []string{"One idea only"},
			AudioCues: []string{"Subtle emphasis on the key numeric point"},
			EditNotes: []string{"Cut filler phrases to keep pacing dense."},
		},
		{
			ID:        "scene-04-payoff",
			StartSec:  36,
			EndSec:    50,
			Segment:   "payoff",
			Objective: "Clarify mistake vs real fix.",
			Visuals:   []string{"Summarize with a clean, high-contrast frame."},
			Overlays:  []string{"The real issue is X -> Y"},
			AudioCues: []string{"Resolve tone; slight downbeat pause before CTA"},
			EditNotes: []string{"Move payoff earlier if completion is weak."},
		},
		{
			ID:        "scene-05-cta-loop",
			StartSec:  50,
			EndSec:    55,
			Segment:   "curiosity CTA",
			Objective: "Create comment-triggering open loop.",
			Visuals:   []string{"Mirror opening shot with unresolved next-step question."},
			Overlays:  []string{"Should I test this next?"},
			AudioCues: []string{"Hold last beat for loop-ready cut"},
			EditNotes: []string{"Avoid generic 'like & subscribe'."},
		},
	}

	captions := []CaptionCue{
		{StartSec: 0, EndSec: 2, Text: hookLine, StyleHint: "bold-high-contrast"},
		{StartSec: 3, EndSec: 8, Text: "Most people miss this one detail.", StyleHint: "standard"},
		{StartSec: 8, EndSec: 12, Text: "Here is the context in one sentence.", StyleHint: "standard"},
		{StartSec: 13, EndSec: 25, Text: "Core insight with contrast and proof.", StyleHint: "emphasis"},
		{StartSec: 25, EndSec: 35, Text: "This is where most viewers drop if pacing slows.", StyleHint: "standard"},
		{StartSec: 36, EndSec: 50, Text: "So the real issue is not X, it is Y.", StyleHint: "emphasis"},
		{StartSec: 50, EndSec: 55, Text: "Want part 2 on this? Comment your take.", StyleHint: "cta"},
	}

	editDecisions := make([]EditDecision, 0, len(diagnosis.WhyEntries))
	for _, entry := range diagnosis.WhyEntries {
		editDecisions = append(editDecisions, EditDecision{
			Metric: entry.Metric,
			Signal: entry.Trigger,
			Change: entry.Change,
			Why:    entry.Why,
		})
	}

	return VariantPlan{
		Version:          VariantPlanVersion,
		VideoID:          video.VideoID,
		GeneratedAt:      generatedAt,
		SourceVideoTitle: video.Title,
		PrimaryFix:       diagnosis.PrimaryFix,
		HookLine:         hookLine,
		FirstFrame: FirstFrame{
			Visual:       "Immediate motion close-up tied to the core claim.",
			SubtitleLine: hookLine,
			MotionCue:    "Hard punch-in within first 0.5s",
		},
		Script: script,
		Timeline: Timeline{
			TotalDurationSec: 55,
			Scenes:           scenes,
			Captions:         captions,
			Loop: LoopSpec{
				HandoffSec: 54,
				BridgeLine: "But the next test changes everything.",
				VisualCue:  "Last frame mirrors first frame for seamless loop",
			},
		},
		Metadata: VariantMetadata{
			Title:         title,
			Hashtags:      hashtags,
			Tags:          tags,
			PinnedComment: "What should I test next: hook, pacing, or payoff?",
		},
		EditDecisionList: editDecisions,
	}
}

func clonePlan(plan VariantPlan) (VariantPlan, error) {
	data, err := json.Marshal(plan)
	if err != nil {
		return VariantPlan{}, fmt.Errorf("cloning plan: %w", err)
	}
	var clone VariantPlan
	if err := json.Unmarshal(data, &clone); err != nil {
		return VariantPlan{}, fmt.Errorf("cloning plan: %w", err)
	}
	return clone, nil
}

// ensureMandatoryDecisionCoverage guarantees every diagnosis why-entry
// appears in the plan's edit-decision list, appending any the model
// dropped.
func ensureMandatoryDecisionCoverage(plan VariantPlan, diagnosis DiagnosisResult) VariantPlan {
	existing := make(map[string]struct{}, len(plan.EditDecisionList))
	for _, entry := range plan.EditDecisionList {
		existing[entry.Metric+"::"+strings.ToLower(entry.Change)] = struct{}{}
	}

	for _, entry := range diagnosis.WhyEntries {
		key := entry.Metric + "::" + strings.ToLower(entry.Change)
		if _, ok := existing[key]; ok {
			continue
		}
		plan.EditDecisionList = append(plan.EditDecisionList, EditDecision{
			Metric: entry.Metric,
			Signal: entry.Trigger,
			Change: entry.Change,
			Why:    entry.Why,
		})
		existing[key] = struct{}{}
	}

	return plan
}

const rewriteSystemPrompt = `You are a Shorts rewrite planner.

Use the canonical rules exactly: hook under 2s, one idea only, 45-55s target, captions always on, dynamic visual changes every 2-3s.

Do not output ffmpeg steps. Output edit decisions + timeline JSON only.

Always keep baseline metric-linked decisions in editDecisionList.`

// rewriteInput is the user payload for the rewrite call. The fallback
// plan rides along as a template the model can partially override.
type rewriteInput struct {
	Video                    youtube.ShortVideo   `json:"video"`
	Metrics                  youtube.ShortMetrics `json:"metrics"`
	Diagnosis                DiagnosisResult      `json:"diagnosis"`
	RequiredBaselineDecision []RuleDecision       `json:"requiredBaselineDecisions"`
	FallbackTemplate         VariantPlan          `json:"fallbackTemplate"`
}

// Rewrite asks the model for a variant plan. The response is merged over
// the fallback template (absent fields keep their fallback values),
// schema-validated, and then forced to cover every diagnosis decision.
func (r *OpenAIRefiner) Rewrite(ctx context.Context, video youtube.ShortVideo, metrics youtube.ShortMetrics, diagnosis DiagnosisResult, skillRules string, fallback VariantPlan) (*VariantPlan, error) {
	input := rewriteInput{
		Video:                    video,
		Metrics:                  metrics,
		Diagnosis:                diagnosis,
		RequiredBaselineDecision: diagnosis.WhyEntries,
		FallbackTemplate:         fallback,
	}

	payload, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling rewrite input: %w", err)
	}

	systemPrompt := rewriteSystemPrompt
	if skillRules != "" {
		systemPrompt += "\n\nCanonical rules:\n\n" + skillRules
	}

	slog.Debug("calling OpenAI rewrite planner", "model", r.model, "videoId", video.VideoID)

	resp, err := r.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       r.model,
		Temperature: openai.Float(0),
		MaxTokens:   openai.Int(2400),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(string(payload)),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{Type: "json_object"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai rewrite: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai rewrite: %w: no choices returned", ErrLLMUnavailable)
	}

	text := extractJSON(resp.Choices[0].Message.Content)
	if text == "" {
		return nil, fmt.Errorf("openai rewrite: %w: no parseable payload in response", ErrLLMUnavailable)
	}

	// Unmarshal over a deep copy of the fallback: fields the model
	// supplies override it, fields it omits keep the deterministic
	// values. A plain struct copy would share slice backing arrays
	// with the fallback the caller falls back to on error.
	merged, err := clonePlan(fallback)
	if err != nil {
		return nil, fmt.Errorf("openai rewrite: %w", err)
	}
	if err := json.Unmarshal([]byte(text), &merged); err != nil {
		return nil, fmt.Errorf("openai rewrite: parsing response JSON: %w", err)
	}

	if err := ValidateVariantPlan(&merged); err != nil {
		return nil, fmt.Errorf("openai rewrite: %w", err)
	}

	covered := ensureMandatoryDecisionCoverage(merged, diagnosis)
	return &covered, nil
}
