package youtube

import "time"

const (
	first2hMaxAge      = 2 * time.Hour
	fallbackWindowDays = 7
)

const (
	first2hProxyNote = "First 2 hours are approximated using same-day partial YouTube Analytics data (day-level granularity)."
	last7DaysNote    = "Used 7-day fallback window."
)

// windowForVideo selects the analytics date range for a video. Videos
// published within the last 2 hours get a single-day window on the
// publish date; the analytics backend cannot report a true sub-day
// window, so this is a proxy and the Note says so. Everything else gets
// the trailing 7-day fallback.
func windowForVideo(video ShortVideo, now time.Time) MetricsWindow {
	if !video.PublishedAt.IsZero() && now.Sub(video.PublishedAt) <= first2hMaxAge {
		day := video.PublishedAt.UTC().Format("2006-01-02")
		return MetricsWindow{
			Mode:      WindowFirst2hProxy,
			StartDate: day,
			EndDate:   day,
			Note:      first2hProxyNote,
		}
	}

	return MetricsWindow{
		Mode:      WindowLast7Days,
		StartDate: now.AddDate(0, 0, -fallbackWindowDays).UTC().Format("2006-01-02"),
		EndDate:   now.UTC().Format("2006-01-02"),
		Note:      last7DaysNote,
	}
}
