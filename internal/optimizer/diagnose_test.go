package optimizer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ak-content/shorts-optimizer/internal/youtube"
)

func float64Ptr(v float64) *float64 {
	return &v
}

// healthyMetrics is a snapshot with no threshold breaches.
func healthyMetrics() youtube.ShortMetrics {
	return youtube.ShortMetrics{
		VideoID:                    "vid-ok",
		Impressions:                float64Ptr(10000),
		ImpressionClickThroughRate: float64Ptr(5.5),
		Views:                      float64Ptr(4000),
		AverageViewDuration:        float64Ptr(30),
		AverageViewPercentage:      float64Ptr(70),
		DurationSeconds:            float64Ptr(50),
	}
}

func countByMetric(decisions []RuleDecision, metric string) int {
	n := 0
	for _, d := range decisions {
		if d.Metric == metric {
			n++
		}
	}
	return n
}

func TestApplyBaselineDiagnosisRules(t *testing.T) {
	t.Run("no breaches yields single overall fallback", func(t *testing.T) {
		decisions := ApplyBaselineDiagnosisRules(healthyMetrics())
		if len(decisions) != 1 {
			t.Fatalf("len = %d, want 1", len(decisions))
		}
		d := decisions[0]
		if d.Metric != MetricOverall {
			t.Errorf("Metric = %q, want %q", d.Metric, MetricOverall)
		}
		if d.Trigger != "No baseline threshold breaches" {
			t.Errorf("Trigger = %q", d.Trigger)
		}
		if d.Change != "Keep current structure and run a title/hook A/B test only." {
			t.Errorf("Change = %q", d.Change)
		}
		if d.Source != SourceBaseline {
			t.Errorf("Source = %q, want %q", d.Source, SourceBaseline)
		}
	})

	t.Run("low CTR fires three decisions", func(t *testing.T) {
		metrics := healthyMetrics()
		metrics.ImpressionClickThroughRate = float64Ptr(3.2)

		decisions := ApplyBaselineDiagnosisRules(metrics)
		if got := countByMetric(decisions, MetricCTR); got != 3 {
			t.Fatalf("CTR decisions = %d, want 3", got)
		}
		for _, d := range decisions {
			if d.Trigger != "CTR 3.20% is below 4.00%" {
				t.Errorf("Trigger = %q, want formatted threshold trigger", d.Trigger)
			}
		}
	})

	t.Run("CTR exactly at threshold does not fire", func(t *testing.T) {
		metrics := healthyMetrics()
		metrics.ImpressionClickThroughRate = float64Ptr(4.0)
		if got := countByMetric(ApplyBaselineDiagnosisRules(metrics), MetricCTR); got != 0 {
			t.Errorf("CTR decisions = %d, want 0 at exact threshold", got)
		}
	})

	t.Run("nil CTR does not fire", func(t *testing.T) {
		metrics := healthyMetrics()
		metrics.ImpressionClickThroughRate = nil
		if got := countByMetric(ApplyBaselineDiagnosisRules(metrics), MetricCTR); got != 0 {
			t.Errorf("CTR decisions = %d, want 0 for nil metric", got)
		}
	})

	t.Run("low view percentage fires two decisions", func(t *testing.T) {
		metrics := healthyMetrics()
		metrics.AverageViewPercentage = float64Ptr(45)
		if got := countByMetric(ApplyBaselineDiagnosisRules(metrics), MetricAvgViewPercentage); got != 2 {
			t.Errorf("view-percentage decisions = %d, want 2", got)
		}
	})

	t.Run("watch-time rule is gated on duration band", func(t *testing.T) {
		tests := []struct {
			name     string
			duration *float64
			avgDur   *float64
			want     int
		}{
			{name: "45s short with 15s watch fires", duration: float64Ptr(45), avgDur: float64Ptr(15), want: 2},
			{name: "35s short with 10s watch outside band", duration: float64Ptr(35), avgDur: float64Ptr(10), want: 0},
			{name: "65s short outside band", duration: float64Ptr(65), avgDur: float64Ptr(10), want: 0},
			{name: "band edges are inclusive", duration: float64Ptr(40), avgDur: float64Ptr(19.99), want: 2},
			{name: "nil duration never fires", duration: nil, avgDur: float64Ptr(10), want: 0},
			{name: "watch time at threshold does not fire", duration: float64Ptr(50), avgDur: float64Ptr(20), want: 0},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				metrics := healthyMetrics()
				metrics.DurationSeconds = tt.duration
				metrics.AverageViewDuration = tt.avgDur
				if got := countByMetric(ApplyBaselineDiagnosisRules(metrics), MetricAvgViewDuration); got != tt.want {
					t.Errorf("watch-time decisions = %d, want %d", got, tt.want)
				}
			})
		}
	})

	t.Run("rules are independent and cumulative", func(t *testing.T) {
		metrics := healthyMetrics()
		metrics.ImpressionClickThroughRate = float64Ptr(2)
		metrics.AverageViewPercentage = float64Ptr(30)
		metrics.AverageViewDuration = float64Ptr(12)

		decisions := ApplyBaselineDiagnosisRules(metrics)
		if len(decisions) != 7 {
			t.Errorf("len = %d, want 7 (3 CTR + 2 view%% + 2 watch-time)", len(decisions))
		}
	})
}

func TestChoosePrimaryFix(t *testing.T) {
	t.Run("CTR outranks retention and watch time", func(t *testing.T) {
		decisions := []RuleDecision{
			{Metric: MetricAvgViewDuration, Change: "move payoff"},
			{Metric: MetricCTR, Change: "retitle"},
			{Metric: MetricAvgViewPercentage, Change: "tighten pacing"},
		}
		got := choosePrimaryFix(decisions)
		if !strings.Contains(got, "Repackage the opening") {
			t.Errorf("primary fix = %q, want CTR repackaging fix", got)
		}
	})

	t.Run("retention outranks watch time", func(t *testing.T) {
		decisions := []RuleDecision{
			{Metric: MetricAvgViewDuration, Change: "move payoff"},
			{Metric: MetricAvgViewPercentage, Change: "tighten pacing"},
		}
		got := choosePrimaryFix(decisions)
		if !strings.Contains(got, "pattern interrupt") {
			t.Errorf("primary fix = %q, want retention fix", got)
		}
	})

	t.Run("unranked metrics fall back to first decision", func(t *testing.T) {
		decisions := []RuleDecision{{Metric: MetricOverall, Change: "Keep current structure and run a title/hook A/B test only."}}
		if got := choosePrimaryFix(decisions); got != decisions[0].Change {
			t.Errorf("primary fix = %q, want first decision's change", got)
		}
	})

	t.Run("empty decision list", func(t *testing.T) {
		if got := choosePrimaryFix(nil); got != "No changes required." {
			t.Errorf("primary fix = %q", got)
		}
	})
}

func TestBuildDefaultIssues(t *testing.T) {
	metrics := healthyMetrics()
	metrics.ImpressionClickThroughRate = nil

	issues := buildDefaultIssues(metrics)
	if len(issues) != 3 {
		t.Fatalf("len = %d, want exactly 3", len(issues))
	}
	if issues[0].Metric != MetricCTR || issues[1].Metric != MetricAvgViewPercentage || issues[2].Metric != MetricAvgViewDuration {
		t.Errorf("issue metrics = [%s, %s, %s]", issues[0].Metric, issues[1].Metric, issues[2].Metric)
	}
	if issues[0].CurrentValue != nil {
		t.Error("nil metric should carry nil CurrentValue")
	}
	if !strings.Contains(issues[0].Evidence, "n/a") {
		t.Errorf("Evidence = %q, want n/a marker for nil metric", issues[0].Evidence)
	}
	if issues[1].Target != ">= 60%" {
		t.Errorf("Target = %q, want >= 60%%", issues[1].Target)
	}
}

// stubRefiner returns a canned diagnosis or error.
type stubRefiner struct {
	diagnosis *LLMDiagnosis
	err       error
	calls     int
}

func (s *stubRefiner) Diagnose(ctx context.Context, video youtube.ShortVideo, metrics youtube.ShortMetrics, baseline []RuleDecision, skillRules string) (*LLMDiagnosis, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.diagnosis, nil
}

func TestDiagnoseShort(t *testing.T) {
	video := youtube.ShortVideo{VideoID: "vid-1", Title: "Test short"}

	t.Run("nil refiner yields deterministic result", func(t *testing.T) {
		metrics := healthyMetrics()
		metrics.First3sRetentionProxy = float64Ptr(81.5)

		result := DiagnoseShort(context.Background(), DiagnoseParams{Video: video, Metrics: metrics})

		if !strings.Contains(result.Summary, "CTR is 5.50%.") {
			t.Errorf("Summary = %q, want formatted CTR", result.Summary)
		}
		if !strings.Contains(result.Summary, "First-3s retention proxy: 81.50%.") {
			t.Errorf("Summary = %q, want retention proxy sentence", result.Summary)
		}
		if len(result.Issues) != 3 {
			t.Errorf("len(Issues) = %d, want 3", len(result.Issues))
		}
		if len(result.WhyEntries) != 1 || result.WhyEntries[0].Source != SourceBaseline {
			t.Errorf("WhyEntries = %+v, want single baseline entry", result.WhyEntries)
		}
	})

	t.Run("missing retention proxy is called out", func(t *testing.T) {
		result := DiagnoseShort(context.Background(), DiagnoseParams{Video: video, Metrics: healthyMetrics()})
		if !strings.Contains(result.Summary, "unavailable from current analytics response") {
			t.Errorf("Summary = %q, want unavailable note", result.Summary)
		}
	})

	t.Run("refiner error falls back to baseline", func(t *testing.T) {
		refiner := &stubRefiner{err: errors.New("rate limited")}
		result := DiagnoseShort(context.Background(), DiagnoseParams{Video: video, Metrics: healthyMetrics(), Refiner: refiner})

		if refiner.calls != 1 {
			t.Errorf("refiner calls = %d, want 1", refiner.calls)
		}
		if len(result.Issues) != 3 {
			t.Errorf("len(Issues) = %d, want baseline issues", len(result.Issues))
		}
		for _, entry := range result.WhyEntries {
			if entry.Source == SourceLLM {
				t.Error("no llm entries expected after refiner failure")
			}
		}
	})

	t.Run("refinement overrides summary and appends decisions", func(t *testing.T) {
		refiner := &stubRefiner{diagnosis: &LLMDiagnosis{
			Summary:    "Refined summary.",
			PrimaryFix: "Refined fix.",
			Issues: []LLMIssue{
				{Metric: MetricCTR, Target: ">= 4.0%", Issue: "low", Evidence: "ctr=3.2%"},
			},
			Refinements: []LLMRefinement{
				{Metric: MetricCTR, Trigger: "low ctr", Change: "new thumbnail", Why: "packaging"},
			},
		}}

		metrics := healthyMetrics()
		metrics.ImpressionClickThroughRate = float64Ptr(3.2)

		result := DiagnoseShort(context.Background(), DiagnoseParams{Video: video, Metrics: metrics, Refiner: refiner})

		if result.Summary != "Refined summary." || result.PrimaryFix != "Refined fix." {
			t.Errorf("Summary/PrimaryFix = %q/%q, want refined values", result.Summary, result.PrimaryFix)
		}
		if len(result.Issues) != 1 {
			t.Errorf("len(Issues) = %d, want the llm issue list", len(result.Issues))
		}

		// Baseline decisions come first, llm refinements after.
		if len(result.WhyEntries) != 4 {
			t.Fatalf("len(WhyEntries) = %d, want 3 baseline + 1 llm", len(result.WhyEntries))
		}
		for _, entry := range result.WhyEntries[:3] {
			if entry.Source != SourceBaseline {
				t.Errorf("entry source = %q, want baseline before llm", entry.Source)
			}
		}
		if last := result.WhyEntries[3]; last.Source != SourceLLM || last.Change != "new thumbnail" {
			t.Errorf("last entry = %+v, want llm refinement", last)
		}
	})

	t.Run("refinement source reflects llm participation", func(t *testing.T) {
		baselineOnly := DiagnoseShort(context.Background(), DiagnoseParams{Video: video, Metrics: healthyMetrics()})
		if got := baselineOnly.RefinementSource(); got != SourceBaseline {
			t.Errorf("RefinementSource = %q, want %q", got, SourceBaseline)
		}

		refiner := &stubRefiner{diagnosis: &LLMDiagnosis{
			Summary:     "S",
			PrimaryFix:  "F",
			Refinements: []LLMRefinement{{Metric: MetricCTR, Trigger: "t", Change: "c", Why: "w"}},
		}}
		refined := DiagnoseShort(context.Background(), DiagnoseParams{Video: video, Metrics: healthyMetrics(), Refiner: refiner})
		if got := refined.RefinementSource(); got != SourceLLM {
			t.Errorf("RefinementSource = %q, want %q", got, SourceLLM)
		}
	})

	t.Run("empty llm issue list still overrides", func(t *testing.T) {
		refiner := &stubRefiner{diagnosis: &LLMDiagnosis{
			Summary:    "Refined.",
			PrimaryFix: "Fix.",
		}}

		result := DiagnoseShort(context.Background(), DiagnoseParams{Video: video, Metrics: healthyMetrics(), Refiner: refiner})
		if len(result.Issues) != 0 {
			t.Errorf("len(Issues) = %d, want 0 when llm returned none", len(result.Issues))
		}
	})
}
