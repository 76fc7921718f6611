// Package storage writes optimizer run artifacts to the local
// filesystem: one directory per run with the metrics, diagnosis, and
// variant plan, plus an append-only run log for the whole output root.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ak-content/shorts-optimizer/internal/optimizer"
	"github.com/ak-content/shorts-optimizer/internal/youtube"
)

const (
	runLogFilename = "runs.jsonl"
	dirPerm        = 0o755
	filePerm       = 0o644
)

// RunOutput is everything produced for one video in one optimizer run.
type RunOutput struct {
	Video     youtube.ShortVideo
	Metrics   youtube.ShortMetrics
	Diagnosis optimizer.DiagnosisResult
	Plan      optimizer.VariantPlan
}

// RunRecord is one line of the append-only run log.
type RunRecord struct {
	Timestamp  string `json:"timestamp"`
	VideoID    string `json:"videoId"`
	Title      string `json:"title"`
	PrimaryFix string `json:"primaryFix"`
	Source     string `json:"source"`
	OutputDir  string `json:"outputDir"`
}

// WriteRunOutput writes the artifacts of one run under
// <outDir>/<videoId>/<timestamp>/ and returns the run directory. The
// variant plan is validated before anything touches disk.
func WriteRunOutput(outDir string, ranAt time.Time, out RunOutput) (string, error) {
	if err := optimizer.ValidateVariantPlan(&out.Plan); err != nil {
		return "", err
	}

	stamp := ranAt.UTC().Format("20060102-150405")
	runDir := filepath.Join(outDir, out.Video.VideoID, stamp)
	if err := os.MkdirAll(runDir, dirPerm); err != nil {
		return "", fmt.Errorf("creating run directory: %w", err)
	}

	if err := writeJSONFile(filepath.Join(runDir, "metrics.json"), out.Metrics); err != nil {
		return "", err
	}
	if err := writeJSONFile(filepath.Join(runDir, "diagnosis.json"), out.Diagnosis); err != nil {
		return "", err
	}
	if err := writeJSONFile(filepath.Join(runDir, "variant_plan.json"), out.Plan); err != nil {
		return "", err
	}

	if err := writeTextFile(filepath.Join(runDir, "script.txt"), out.Plan.Script); err != nil {
		return "", err
	}
	metaText := renderTitleAndHashtags(out.Plan)
	if err := writeTextFile(filepath.Join(runDir, "title_and_hashtags.txt"), metaText); err != nil {
		return "", err
	}
	if err := writeTextFile(filepath.Join(runDir, "pinned_comment.txt"), out.Plan.Metadata.PinnedComment); err != nil {
		return "", err
	}

	return runDir, nil
}

// AppendRunLog appends one record to <outDir>/runs.jsonl, creating the
// file and directory as needed.
func AppendRunLog(outDir string, record RunRecord) error {
	if err := os.MkdirAll(outDir, dirPerm); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding run record: %w", err)
	}

	path := filepath.Join(outDir, runLogFilename)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePerm)
	if err != nil {
		return fmt.Errorf("opening run log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("appending to run log: %w", err)
	}
	return nil
}

func renderTitleAndHashtags(plan optimizer.VariantPlan) string {
	var b strings.Builder
	b.WriteString("Title:\n")
	b.WriteString(plan.Metadata.Title)
	b.WriteString("\n\nHashtags:\n")
	b.WriteString(strings.Join(plan.Metadata.Hashtags, " "))
	b.WriteString("\n\nTags:\n")
	b.WriteString(strings.Join(plan.Metadata.Tags, ", "))
	b.WriteString("\n")
	return b.String()
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), filePerm); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeTextFile(path, content string) error {
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if err := os.WriteFile(path, []byte(content), filePerm); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}
