// Package schedule interprets the free-text date and time fields stored on
// game records. Parsing is permissive: display text that does not look like a
// 12-hour clock is passed through untouched and never treated as an error.
package schedule

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// displayPattern is the strict display form: no leading zero on the hour.
	displayPattern = regexp.MustCompile(`^([1-9]|1[0-2]):[0-5][0-9]\s?(AM|PM)$`)
	// clockPattern also accepts a zero-padded hour ("07:15 PM").
	clockPattern = regexp.MustCompile(`^(0?[1-9]|1[0-2]):([0-5][0-9])\s?(AM|PM)$`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// dateLayout is the calendar date format stored in game_date.
const dateLayout = "2006-01-02"

// instantLayouts are tried in order when reading an absolute timestamp.
// Layouts without a zone are interpreted in the caller's location.
var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	dateLayout,
}

// NormalizeDisplay returns the canonical display form of a 12-hour time such
// as " 7:05   pm " -> "7:05 PM". Input that does not match the clock pattern is
// returned exactly as given.
func NormalizeDisplay(raw string) string {
	normalized := whitespace.ReplaceAllString(strings.ToUpper(strings.TrimSpace(raw)), " ")
	if displayPattern.MatchString(normalized) {
		return normalized
	}
	return raw
}

// ComposeMoment is ComposeMomentIn using the local time zone.
func ComposeMoment(datetimeISO, dateOnly, timeText *string) (time.Time, bool) {
	return ComposeMomentIn(time.Local, datetimeISO, dateOnly, timeText)
}

// ComposeMomentIn resolves the scheduled instant of a game.
//
// A parseable absolute timestamp always wins. Otherwise the calendar date is
// used at midnight in loc, with the 12-hour time applied when it parses. An
// unparseable time leaves the date at midnight. The boolean is false when no
// instant can be derived.
func ComposeMomentIn(loc *time.Location, datetimeISO, dateOnly, timeText *string) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}

	if datetimeISO != nil {
		if t, ok := parseInstant(loc, strings.TrimSpace(*datetimeISO)); ok {
			return t, true
		}
	}

	if dateOnly == nil {
		return time.Time{}, false
	}
	day, err := time.ParseInLocation(dateLayout, strings.TrimSpace(*dateOnly), loc)
	if err != nil {
		return time.Time{}, false
	}

	if timeText == nil {
		return day, true
	}

	hour, minute, ok := ParseClock(*timeText)
	if !ok {
		return day, true
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc), true
}

// ParseClock converts a 12-hour clock string to 24-hour hour and minute.
func ParseClock(text string) (hour, minute int, ok bool) {
	m := clockPattern.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(text)))
	if m == nil {
		return 0, 0, false
	}
	h, _ := strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	hour = h % 12
	if m[3] == "PM" {
		hour += 12
	}
	return hour, minute, true
}

func parseInstant(loc *time.Location, s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range instantLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
