package optimizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ak-content/shorts-optimizer/internal/youtube"
)

// DecisionSource says which stage produced a RuleDecision.
type DecisionSource string

const (
	SourceBaseline DecisionSource = "baseline"
	SourceLLM      DecisionSource = "llm"
)

// Metric names used by decisions and issues.
const (
	MetricCTR               = "impressionClickThroughRate"
	MetricAvgViewPercentage = "averageViewPercentage"
	MetricAvgViewDuration   = "averageViewDuration"
	MetricOverall           = "overall"
)

// Baseline thresholds. The duration gate restricts the watch-time rule
// to shorts that are actually in the 40-60s band.
const (
	ctrThreshold         = 4.0
	avgViewPctThreshold  = 60.0
	avgViewDurThreshold  = 20.0
	gatedDurationMinSecs = 40.0
	gatedDurationMaxSecs = 60.0
)

// RuleDecision is one atomic recommendation: the metric it targets, the
// condition that fired it, the change to make, and the rationale.
type RuleDecision struct {
	Source  DecisionSource `json:"source"`
	Metric  string         `json:"metric"`
	Trigger string         `json:"trigger"`
	Change  string         `json:"change"`
	Why     string         `json:"why"`
}

// DiagnosisIssue is one flagged metric. Issues describe the full metric
// set whether or not a threshold was breached.
type DiagnosisIssue struct {
	Metric       string   `json:"metric"`
	CurrentValue *float64 `json:"currentValue"`
	Target       string   `json:"target"`
	Issue        string   `json:"issue"`
	Evidence     string   `json:"evidence"`
}

// DiagnosisResult is the final pipeline output for one video.
type DiagnosisResult struct {
	Summary    string           `json:"summary"`
	PrimaryFix string           `json:"primaryFix"`
	Issues     []DiagnosisIssue `json:"issues"`
	WhyEntries []RuleDecision   `json:"whyEntries"`
}

// RefinementSource reports whether any LLM refinement made it into the
// result, or the diagnosis is purely baseline.
func (r DiagnosisResult) RefinementSource() DecisionSource {
	for _, entry := range r.WhyEntries {
		if entry.Source == SourceLLM {
			return SourceLLM
		}
	}
	return SourceBaseline
}

// metricValue formats a nullable metric for trigger strings and
// evidence.
func metricValue(value *float64) string {
	if value == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", *value)
}

// ApplyBaselineDiagnosisRules runs the deterministic threshold rules
// against a metrics snapshot. Rules are independent: every applicable
// one fires. The result is never empty; with no breaches a single
// "overall" fallback decision is returned.
func ApplyBaselineDiagnosisRules(metrics youtube.ShortMetrics) []RuleDecision {
	var decisions []RuleDecision

	ctr := metrics.ImpressionClickThroughRate
	if ctr != nil && *ctr < ctrThreshold {
		trigger := fmt.Sprintf("CTR %s%% is below 4.00%%", metricValue(ctr))
		decisions = append(decisions,
			RuleDecision{
				Source:  SourceBaseline,
				Metric:  MetricCTR,
				Trigger: trigger,
				Change:  "Replace first frame with high-motion pattern interrupt visual.",
				Why:     "Low CTR indicates the packaging is not stopping scrolls quickly.",
			},
			RuleDecision{
				Source:  SourceBaseline,
				Metric:  MetricCTR,
				Trigger: trigger,
				Change:  "Rewrite first subtitle line as a contrarian 0-2s hook.",
				Why:     "The opening line must increase curiosity before swipe-away.",
			},
			RuleDecision{
				Source:  SourceBaseline,
				Metric:  MetricCTR,
				Trigger: trigger,
				Change:  "Retitle using tension + specificity format.",
				Why:     "Title relevance and tension directly affect impression conversion.",
			},
		)
	}

	avgViewPct := metrics.AverageViewPercentage
	if avgViewPct != nil && *avgViewPct < avgViewPctThreshold {
		trigger := fmt.Sprintf("Average view %% %s is below 60.00", metricValue(avgViewPct))
		decisions = append(decisions,
			RuleDecision{
				Source:  SourceBaseline,
				Metric:  MetricAvgViewPercentage,
				Trigger: trigger,
				Change:  "Insert a pattern interrupt at 2-3s with a visual or tonal shift.",
				Why:     "Early pacing refresh reduces drop-off after the opening hook.",
			},
			RuleDecision{
				Source:  SourceBaseline,
				Metric:  MetricAvgViewPercentage,
				Trigger: trigger,
				Change:  "Tighten pacing by removing low-signal filler lines.",
				Why:     "Dense progression keeps one-idea narrative retention high.",
			},
		)
	}

	avgViewDuration := metrics.AverageViewDuration
	duration := metrics.DurationSeconds
	inGatedRange := duration != nil && *duration >= gatedDurationMinSecs && *duration <= gatedDurationMaxSecs
	if inGatedRange && avgViewDuration != nil && *avgViewDuration < avgViewDurThreshold {
		trigger := fmt.Sprintf("Average view duration %ss is below 20s for a 40-60s short", metricValue(avgViewDuration))
		decisions = append(decisions,
			RuleDecision{
				Source:  SourceBaseline,
				Metric:  MetricAvgViewDuration,
				Trigger: trigger,
				Change:  "Cut intro setup and start mid-thought in the first line.",
				Why:     "The current opening delays value delivery.",
			},
			RuleDecision{
				Source:  SourceBaseline,
				Metric:  MetricAvgViewDuration,
				Trigger: trigger,
				Change:  "Move payoff statement earlier into the 30-40s segment.",
				Why:     "Earlier payoff increases completion likelihood.",
			},
		)
	}

	if len(decisions) == 0 {
		decisions = append(decisions, RuleDecision{
			Source:  SourceBaseline,
			Metric:  MetricOverall,
			Trigger: "No baseline threshold breaches",
			Change:  "Keep current structure and run a title/hook A/B test only.",
			Why:     "Metrics are above minimum thresholds, so optimize incrementally.",
		})
	}

	return decisions
}

// primaryFixOrder ranks fixes by funnel leverage: getting the click
// beats holding attention, which beats stretching watch time. Evaluated
// top to bottom against the decision list.
var primaryFixOrder = []struct {
	metric string
	fix    string
}{
	{MetricCTR, "Repackage the opening (first frame + first subtitle + title) to raise CTR."},
	{MetricAvgViewPercentage, "Add a 2-3s pattern interrupt and tighten pacing for better retention."},
	{MetricAvgViewDuration, "Cut intro and move payoff earlier to increase watched seconds."},
}

func choosePrimaryFix(decisions []RuleDecision) string {
	for _, candidate := range primaryFixOrder {
		for _, decision := range decisions {
			if decision.Metric == candidate.metric {
				return candidate.fix
			}
		}
	}
	if len(decisions) > 0 {
		return decisions[0].Change
	}
	return "No changes required."
}

// buildDefaultIssues reports on the full metric set: always exactly one
// issue each for CTR, average view percentage, and average view
// duration, breached or not.
func buildDefaultIssues(metrics youtube.ShortMetrics) []DiagnosisIssue {
	ctrIssue := "CTR is within baseline range."
	if metrics.ImpressionClickThroughRate != nil && *metrics.ImpressionClickThroughRate < ctrThreshold {
		ctrIssue = "CTR is below baseline threshold."
	}

	viewPctIssue := "Average view percentage is within baseline range."
	if metrics.AverageViewPercentage != nil && *metrics.AverageViewPercentage < avgViewPctThreshold {
		viewPctIssue = "Average view percentage indicates early/mid-video drop-off."
	}

	durationIssue := "Average watched seconds are acceptable."
	if metrics.AverageViewDuration != nil && *metrics.AverageViewDuration < avgViewDurThreshold {
		durationIssue = "Average watched seconds are low for this short length."
	}

	return []DiagnosisIssue{
		{
			Metric:       MetricCTR,
			CurrentValue: metrics.ImpressionClickThroughRate,
			Target:       ">= 4.0%",
			Issue:        ctrIssue,
			Evidence:     fmt.Sprintf("impressionClickThroughRate=%s%%", metricValue(metrics.ImpressionClickThroughRate)),
		},
		{
			Metric:       MetricAvgViewPercentage,
			CurrentValue: metrics.AverageViewPercentage,
			Target:       ">= 60%",
			Issue:        viewPctIssue,
			Evidence:     fmt.Sprintf("averageViewPercentage=%s%%", metricValue(metrics.AverageViewPercentage)),
		},
		{
			Metric:       MetricAvgViewDuration,
			CurrentValue: metrics.AverageViewDuration,
			Target:       ">= 20s for 40-60s shorts",
			Issue:        durationIssue,
			Evidence:     fmt.Sprintf("averageViewDuration=%ss", metricValue(metrics.AverageViewDuration)),
		},
	}
}

// buildDeterministicSummary concatenates the formatted metric values,
// the chosen primary fix, and the retention proxy (or an explicit
// unavailable note) into one sentence, so a summary exists even with
// zero LLM involvement.
func buildDeterministicSummary(metrics youtube.ShortMetrics, decisions []RuleDecision) string {
	parts := []string{
		fmt.Sprintf("CTR is %s%%.", metricValue(metrics.ImpressionClickThroughRate)),
		fmt.Sprintf("Avg view %% is %s%%.", metricValue(metrics.AverageViewPercentage)),
		fmt.Sprintf("Avg view duration is %ss.", metricValue(metrics.AverageViewDuration)),
		fmt.Sprintf("Primary fix: %s", choosePrimaryFix(decisions)),
	}

	if metrics.First3sRetentionProxy != nil {
		parts = append(parts, fmt.Sprintf("First-3s retention proxy: %s%%.", metricValue(metrics.First3sRetentionProxy)))
	} else {
		parts = append(parts, "First-3s retention proxy: unavailable from current analytics response.")
	}

	return strings.Join(parts, " ")
}

// DiagnoseParams carries the inputs of one diagnosis run. Refiner may be
// nil, which skips the LLM step entirely.
type DiagnoseParams struct {
	Video      youtube.ShortVideo
	Metrics    youtube.ShortMetrics
	SkillRules string
	Refiner    DiagnosisRefiner
}

// DiagnoseShort runs the two-stage diagnosis: deterministic baseline
// rules, then optional LLM refinement. Any refinement failure is logged
// and discarded; the baseline path is always a complete, valid result.
// Baseline decisions always precede LLM decisions in WhyEntries.
func DiagnoseShort(ctx context.Context, params DiagnoseParams) DiagnosisResult {
	baseline := ApplyBaselineDiagnosisRules(params.Metrics)

	var llm *LLMDiagnosis
	if params.Refiner != nil {
		refined, err := params.Refiner.Diagnose(ctx, params.Video, params.Metrics, baseline, params.SkillRules)
		if err != nil {
			slog.Warn("llm diagnosis unavailable, falling back to baseline",
				"videoId", params.Video.VideoID,
				"error", err,
			)
		} else {
			llm = refined
		}
	}

	whyEntries := make([]RuleDecision, 0, len(baseline))
	whyEntries = append(whyEntries, baseline...)
	if llm != nil {
		for _, refinement := range llm.Refinements {
			whyEntries = append(whyEntries, RuleDecision{
				Source:  SourceLLM,
				Metric:  refinement.Metric,
				Trigger: refinement.Trigger,
				Change:  refinement.Change,
				Why:     refinement.Why,
			})
		}
	}

	result := DiagnosisResult{
		Summary:    buildDeterministicSummary(params.Metrics, baseline),
		PrimaryFix: choosePrimaryFix(baseline),
		Issues:     buildDefaultIssues(params.Metrics),
		WhyEntries: whyEntries,
	}

	if llm != nil {
		result.Summary = llm.Summary
		result.PrimaryFix = llm.PrimaryFix
		result.Issues = make([]DiagnosisIssue, 0, len(llm.Issues))
		for _, issue := range llm.Issues {
			result.Issues = append(result.Issues, DiagnosisIssue{
				Metric:       issue.Metric,
				CurrentValue: issue.CurrentValue,
				Target:       issue.Target,
				Issue:        issue.Issue,
				Evidence:     issue.Evidence,
			})
		}
	}

	return result
}
