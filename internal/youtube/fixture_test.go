package youtube

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ak-content/shorts-optimizer/internal/config"
)

const validFixtureJSON = `{
  "videos": [
    {
      "videoId": "vid-a",
      "title": "Older short",
      "publishedAt": "2026-08-20T10:00:00Z",
      "durationSeconds": 50,
      "tags": ["one"]
    },
    {
      "videoId": "vid-b",
      "title": "Newer short",
      "publishedAt": "2026-08-26T10:00:00Z",
      "durationSeconds": 44,
      "tags": []
    }
  ],
  "metrics": {
    "vid-b": {
      "impressions": 1000.456,
      "impressionClickThroughRate": 3.999,
      "views": 420,
      "averageViewDuration": 21.123,
      "averageViewPercentage": 55.555,
      "first3sRetentionProxy": 0.91,
      "window": {
        "mode": "last_7_days",
        "startDate": "2026-08-19",
        "endDate": "2026-08-26",
        "note": "Used 7-day fallback window."
      }
    }
  }
}`

// writeFixture writes JSON to a temp file and returns its path.
func writeFixture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

// mockClient builds a Client in mock mode pointed at the given fixture.
func mockClient(fixturePath string) *Client {
	cfg := &config.Config{}
	cfg.Optimizer.Mock = true
	cfg.Optimizer.FixturePath = fixturePath
	return NewClient(cfg)
}

func TestReadFixture(t *testing.T) {
	t.Run("valid fixture parses", func(t *testing.T) {
		fixture, err := readFixture(writeFixture(t, validFixtureJSON))
		if err != nil {
			t.Fatalf("readFixture: %v", err)
		}
		if len(fixture.Videos) != 2 {
			t.Errorf("len(Videos) = %d, want 2", len(fixture.Videos))
		}
		if _, ok := fixture.Metrics["vid-b"]; !ok {
			t.Error("metrics entry for vid-b missing")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := readFixture(filepath.Join(t.TempDir(), "absent.json")); err == nil {
			t.Fatal("expected error for missing file")
		}
	})

	t.Run("malformed JSON", func(t *testing.T) {
		if _, err := readFixture(writeFixture(t, "{not json")); err == nil {
			t.Fatal("expected error for malformed JSON")
		}
	})

	t.Run("schema violation rejected", func(t *testing.T) {
		// Video without a title fails validation.
		bad := `{"videos":[{"videoId":"x","publishedAt":"2026-08-20T10:00:00Z"}],"metrics":{}}`
		if _, err := readFixture(writeFixture(t, bad)); err == nil {
			t.Fatal("expected validation error")
		}
	})

	t.Run("empty video list rejected", func(t *testing.T) {
		if _, err := readFixture(writeFixture(t, `{"videos":[],"metrics":{}}`)); err == nil {
			t.Fatal("expected validation error for empty videos")
		}
	})
}

func TestLoadFixtureMemoizes(t *testing.T) {
	path := writeFixture(t, validFixtureJSON)
	client := mockClient(path)

	first, err := client.loadFixture()
	if err != nil {
		t.Fatalf("loadFixture: %v", err)
	}

	// Deleting the file must not matter once the fixture is cached.
	if err := os.Remove(path); err != nil {
		t.Fatalf("removing fixture: %v", err)
	}

	second, err := client.loadFixture()
	if err != nil {
		t.Fatalf("loadFixture after remove: %v", err)
	}
	if first != second {
		t.Error("loadFixture returned a different instance on second call")
	}
}

func TestFetchMetricsMockMissingEntry(t *testing.T) {
	client := mockClient(writeFixture(t, validFixtureJSON))

	_, err := client.FetchMetrics(context.Background(), ShortVideo{VideoID: "vid-a"})
	if err == nil {
		t.Fatal("expected error for video without metrics entry")
	}
	if !errors.Is(err, ErrFixtureMetrics) {
		t.Errorf("error = %v, want ErrFixtureMetrics", err)
	}
	if got := err.Error(); !strings.Contains(got, "vid-a") {
		t.Errorf("error %q does not reference the video ID", got)
	}
}
