package core

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	offsetRegex = regexp.MustCompile(`^-?[0-9]+$`)
	keyRegex    = regexp.MustCompile(`^([0-9]{1,2})/([0-9]{1,2})/([0-9]{4})$`)
)

// GetTZ returns a *time.Location for the given timezone name.
// Falls back to UTC if the timezone is not found.
func GetTZ(name string) *time.Location {
	if name == "" {
		name = DefaultTZ
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		slog.Warn("timezone not found, falling back to UTC", slog.String("timezone", name))
		return time.UTC
	}
	return loc
}

// ResolveKey converts a user-supplied date argument into a canonical cache key
// (DD/MM/YYYY).
//
// Accepted inputs:
//  1. Nothing: the current week (same as "0")
//  2. A week offset of at most 5 characters: "1", "-1", "17"
//  3. A date D/M/YYYY or DD/MM/YYYY
//
// Anything else fails with an InvalidKeyFormat error. The function has no side
// effects; now and loc are supplied by the caller.
func ResolveKey(input string, now time.Time, loc *time.Location) (string, error) {
	if loc == nil {
		loc = time.UTC
	}

	in := strings.TrimSpace(input)
	if in == "" {
		in = "0"
	}

	if len(in) <= MaxOffsetLen && offsetRegex.MatchString(in) {
		offset, err := strconv.Atoi(in)
		if err != nil {
			return "", InvalidKeyFormat(in)
		}
		// whole calendar weeks in loc
		return now.In(loc).AddDate(0, 0, offset*PeriodDays).Format(KeyDateFmt), nil
	}

	matches := keyRegex.FindStringSubmatch(in)
	if matches == nil {
		return "", InvalidKeyFormat(in)
	}

	day, _ := strconv.Atoi(matches[1])
	month, _ := strconv.Atoi(matches[2])
	year, _ := strconv.Atoi(matches[3])
	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes 31/02 into March; reject instead of silently shifting
	if date.Day() != day || int(date.Month()) != month || date.Year() != year {
		return "", InvalidKeyFormat(in)
	}

	return date.Format(KeyDateFmt), nil
}

// KeyDate parses a canonical key back into a date at midnight in loc.
func KeyDate(key string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(KeyDateFmt, key, loc)
	if err != nil {
		return time.Time{}, InvalidKeyFormat(key)
	}
	return t, nil
}

// ArtifactName returns the file name of the artifact stored for key.
// Path separators in the key are replaced so the name is a single segment.
func ArtifactName(key string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(key)
	return safe + ArtifactExt
}

// FormatCaptureTime formats a capture timestamp for display (2019-12-31 - 23:59:59).
func FormatCaptureTime(t time.Time) string {
	return t.Format(CaptureTimeFmt)
}

// ParseCacheTime parses a TTL value. Go duration strings ("90m") and bare
// integers (milliseconds, the historical unit of PLANNING_CACHE_TIME) are accepted.
func ParseCacheTime(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty cache time")
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid cache time '%s' (expected duration or milliseconds)", s)
	}
	return d, nil
}
