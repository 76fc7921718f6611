package youtube

import (
	"testing"
	"time"
)

func TestWindowForVideo(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	t.Run("fresh video gets publish-day proxy window", func(t *testing.T) {
		video := ShortVideo{PublishedAt: now.Add(-90 * time.Minute)}
		window := windowForVideo(video, now)

		if window.Mode != WindowFirst2hProxy {
			t.Fatalf("Mode = %q, want %q", window.Mode, WindowFirst2hProxy)
		}
		if window.StartDate != "2026-08-30" || window.EndDate != "2026-08-30" {
			t.Errorf("window dates = %s..%s, want publish day on both ends", window.StartDate, window.EndDate)
		}
		if window.Note == "" {
			t.Error("Note is empty, want approximation caveat")
		}
	})

	t.Run("exactly 2 hours old still gets proxy window", func(t *testing.T) {
		video := ShortVideo{PublishedAt: now.Add(-2 * time.Hour)}
		if window := windowForVideo(video, now); window.Mode != WindowFirst2hProxy {
			t.Errorf("Mode = %q, want %q", window.Mode, WindowFirst2hProxy)
		}
	})

	t.Run("older video gets trailing 7-day window", func(t *testing.T) {
		video := ShortVideo{PublishedAt: now.Add(-121 * time.Minute)}
		window := windowForVideo(video, now)

		if window.Mode != WindowLast7Days {
			t.Fatalf("Mode = %q, want %q", window.Mode, WindowLast7Days)
		}
		if window.StartDate != "2026-08-23" || window.EndDate != "2026-08-30" {
			t.Errorf("window dates = %s..%s, want 2026-08-23..2026-08-30", window.StartDate, window.EndDate)
		}
		if window.Note != last7DaysNote {
			t.Errorf("Note = %q, want %q", window.Note, last7DaysNote)
		}
	})

	t.Run("zero publish time gets fallback window", func(t *testing.T) {
		if window := windowForVideo(ShortVideo{}, now); window.Mode != WindowLast7Days {
			t.Errorf("Mode = %q, want %q", window.Mode, WindowLast7Days)
		}
	})
}
