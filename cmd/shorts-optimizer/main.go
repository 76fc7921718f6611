package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/ak-content/shorts-optimizer/internal/api"
	"github.com/ak-content/shorts-optimizer/internal/config"
	"github.com/ak-content/shorts-optimizer/internal/optimizer"
	"github.com/ak-content/shorts-optimizer/internal/storage"
	"github.com/ak-content/shorts-optimizer/internal/youtube"
)

func main() {
	// Load .env files before anything reads the environment. Missing
	// files are fine; a local override wins over the shared file.
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "optimize":
		err = runOptimize(os.Args[2:])
	case "serve":
		err = runServe(os.Args[2:])
	case "-h", "--help", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(2)
	}
	if err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `Usage: shorts-optimizer <command> [flags]

Commands:
  optimize   fetch recent Shorts, diagnose them, and write variant plans
  serve      run the JSON API for dashboards

Run "shorts-optimizer <command> -h" for command flags.
`)
}

// loadSetup parses shared flags, loads config, and reads the skill rules
// file. Both commands start here.
func loadSetup(name string, args []string, register func(*flag.FlagSet)) (*config.Config, string, error) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "path to config file")
	if register != nil {
		register(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}

	skillRules := loadSkillRules(cfg.Optimizer.SkillRulesPath)
	return cfg, skillRules, nil
}

// loadSkillRules reads the canonical Shorts rules file. A missing or
// unreadable file degrades to empty rules with a warning.
func loadSkillRules(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("skill rules file not readable, proceeding without it", "path", path, "error", err)
		return ""
	}
	return string(data)
}

// newRefiner builds the OpenAI refiner, or returns nil when no API key
// is configured so callers degrade to baseline-only behavior.
func newRefiner(cfg *config.Config) *optimizer.OpenAIRefiner {
	if cfg.LLM.APIKey == "" {
		slog.Warn("OPENAI_API_KEY not set, diagnosis and rewrite will be deterministic only")
		return nil
	}
	slog.Info("LLM refinement configured", "model", cfg.LLM.Model)
	return optimizer.NewOpenAIRefiner(cfg.LLM.APIKey, cfg.LLM.Model)
}

func runOptimize(args []string) error {
	var (
		last    int
		videoID string
		mock    bool
	)
	cfg, skillRules, err := loadSetup("optimize", args, func(fs *flag.FlagSet) {
		fs.IntVar(&last, "last", 3, "number of recent Shorts to analyze")
		fs.StringVar(&videoID, "video-id", "", "analyze a single video instead of recent uploads")
		fs.BoolVar(&mock, "mock", false, "force fixture mode")
	})
	if err != nil {
		return err
	}

	if mock {
		cfg.ForceMock("--mock was provided.")
	}
	if cfg.Optimizer.Mock {
		slog.Info("running in mock mode", "reason", cfg.Optimizer.MockReason)
	}

	refiner := newRefiner(cfg)
	// A nil *OpenAIRefiner inside a non-nil interface would still get
	// called, so assign the interfaces only when the refiner exists.
	var diagnosisRefiner optimizer.DiagnosisRefiner
	var rewritePlanner optimizer.RewritePlanner
	if refiner != nil {
		diagnosisRefiner = refiner
		rewritePlanner = refiner
	}

	client := youtube.NewClient(cfg)
	ctx := context.Background()

	videos, err := client.ListTargetVideos(ctx, youtube.VideoSelectionOptions{
		VideoID: videoID,
		Last:    last,
	})
	if err != nil {
		return fmt.Errorf("listing target videos: %w", err)
	}
	if len(videos) == 0 {
		slog.Warn("no matching Shorts found", "videoId", videoID, "last", last)
		return nil
	}

	type runSummary struct {
		videoID    string
		ctr        string
		primaryFix string
		outputDir  string
	}
	summaries := make([]runSummary, 0, len(videos))

	for _, video := range videos {
		slog.Info("analyzing video", "videoId", video.VideoID, "title", video.Title)

		metrics, err := client.FetchMetrics(ctx, video)
		if err != nil {
			return fmt.Errorf("fetching metrics for %s: %w", video.VideoID, err)
		}

		diagnosis := optimizer.DiagnoseShort(ctx, optimizer.DiagnoseParams{
			Video:      video,
			Metrics:    metrics,
			SkillRules: skillRules,
			Refiner:    diagnosisRefiner,
		})

		ranAt := time.Now().UTC()
		plan := optimizer.RewriteShortVariant(ctx, optimizer.RewriteParams{
			Video:       video,
			Metrics:     metrics,
			Diagnosis:   diagnosis,
			SkillRules:  skillRules,
			GeneratedAt: ranAt.Format(time.RFC3339),
			Planner:     rewritePlanner,
		})

		runDir, err := storage.WriteRunOutput(cfg.Optimizer.OutDir, ranAt, storage.RunOutput{
			Video:     video,
			Metrics:   metrics,
			Diagnosis: diagnosis,
			Plan:      plan,
		})
		if err != nil {
			return fmt.Errorf("writing run output for %s: %w", video.VideoID, err)
		}

		if err := storage.AppendRunLog(cfg.Optimizer.OutDir, storage.RunRecord{
			Timestamp:  ranAt.Format(time.RFC3339),
			VideoID:    video.VideoID,
			Title:      video.Title,
			PrimaryFix: diagnosis.PrimaryFix,
			Source:     string(diagnosis.RefinementSource()),
			OutputDir:  runDir,
		}); err != nil {
			return fmt.Errorf("appending run log for %s: %w", video.VideoID, err)
		}

		ctr := "n/a"
		if metrics.ImpressionClickThroughRate != nil {
			ctr = fmt.Sprintf("%.2f%%", *metrics.ImpressionClickThroughRate)
		}
		summaries = append(summaries, runSummary{
			videoID:    video.VideoID,
			ctr:        ctr,
			primaryFix: diagnosis.PrimaryFix,
			outputDir:  runDir,
		})
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VIDEO\tCTR\tPRIMARY FIX\tOUTPUT")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.videoID, s.ctr, s.primaryFix, s.outputDir)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing summary table: %w", err)
	}

	return nil
}

func runServe(args []string) error {
	cfg, skillRules, err := loadSetup("serve", args, nil)
	if err != nil {
		return err
	}

	if cfg.Optimizer.Mock {
		slog.Info("serving in mock mode", "reason", cfg.Optimizer.MockReason)
	}

	refiner := newRefiner(cfg)
	var diagnosisRefiner optimizer.DiagnosisRefiner
	if refiner != nil {
		diagnosisRefiner = refiner
	}

	client := youtube.NewClient(cfg)
	router := api.NewRouter(client, diagnosisRefiner, cfg, skillRules)

	// Localhost only; this surface has no caller authentication.
	addr := fmt.Sprintf("localhost:%d", cfg.Server.Port)
	slog.Info("starting server", "addr", "http://"+addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}
