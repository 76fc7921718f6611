package youtube

import (
	"math"
	"regexp"
	"strconv"
)

// Video metadata reports durations as ISO-8601 PT#H#M#S strings, with
// fractional seconds allowed.
var isoDurationPattern = regexp.MustCompile(`(?i)^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?$`)

// ParseISODurationSeconds parses a PT#H#M#S duration into seconds,
// rounded to 2 decimal places. Non-conforming input yields nil: a
// malformed duration degrades the video's metadata instead of aborting
// its ingestion.
func ParseISODurationSeconds(duration string) *float64 {
	match := isoDurationPattern.FindStringSubmatch(duration)
	if match == nil {
		return nil
	}

	var hours, minutes, seconds float64
	var err error

	if match[1] != "" {
		if hours, err = strconv.ParseFloat(match[1], 64); err != nil {
			return nil
		}
	}
	if match[2] != "" {
		if minutes, err = strconv.ParseFloat(match[2], 64); err != nil {
			return nil
		}
	}
	if match[3] != "" {
		if seconds, err = strconv.ParseFloat(match[3], 64); err != nil {
			return nil
		}
	}

	total := math.Round((hours*3600+minutes*60+seconds)*100) / 100
	return &total
}
