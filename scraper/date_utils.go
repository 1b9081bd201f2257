package scraper

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var months = []string{
	"Jan", "Feb", "Mar", "Apr", "May", "Jun",
	"Jul", "Aug", "Sep", "Oct", "Nov", "Dec",
}

// schoolDays are the timetable columns the portal renders. It never shows weekend classes.
var schoolDays = []string{"Mon", "Tue", "Wed", "Thu", "Fri"}

var days = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// To24h converts a portal time such as "9:00am" or "1:30pm" to "09:00" / "13:30".
func To24h(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) < 3 {
		return "", fmt.Errorf("invalid time %q", s)
	}
	amPm := strings.ToLower(s[len(s)-2:])
	if amPm != "am" && amPm != "pm" {
		return "", fmt.Errorf("invalid time %q: missing am/pm suffix", s)
	}

	hourStr, minute, ok := strings.Cut(s[:len(s)-2], ":")
	if !ok {
		return "", fmt.Errorf("invalid time %q: missing minutes", s)
	}
	hour, err := strconv.Atoi(strings.TrimSpace(hourStr))
	if err != nil || hour < 1 || hour > 12 {
		return "", fmt.Errorf("invalid hour in time %q", s)
	}
	minute = strings.TrimSpace(minute)
	if m, err := strconv.Atoi(minute); err != nil || m < 0 || m > 59 || len(minute) != 2 {
		return "", fmt.Errorf("invalid minutes in time %q", s)
	}

	switch {
	case amPm == "pm" && hour != 12:
		hour += 12
	case amPm == "am" && hour == 12:
		hour = 0
	}
	return fmt.Sprintf("%02d:%s", hour, minute), nil
}

// DateFromDayAbbr returns the portal date of the given weekday in the week starting at monday.
func DateFromDayAbbr(day string, monday time.Time) (string, error) {
	offset, err := dayOffset(day)
	if err != nil {
		return "", err
	}
	return FromDatetime(monday.AddDate(0, 0, offset)), nil
}

func dayOffset(day string) (int, error) {
	for i, d := range days {
		if d == day {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", day)
}

// FromDatetime formats a date the way the portal does, e.g. "1-May-2017".
func FromDatetime(t time.Time) string {
	return fmt.Sprintf("%d-%s-%d", t.Day(), months[t.Month()-1], t.Year())
}

// ToDatetime parses a portal date ("1-May-2017" or "01-May-2017") into a UTC midnight time.
func ToDatetime(s string) (time.Time, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("invalid portal date %q", s)
	}

	day, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day in date %q: %w", s, err)
	}
	year, err := strconv.Atoi(parts[2])
	if err != nil || len(parts[2]) != 4 {
		return time.Time{}, fmt.Errorf("invalid year in date %q", s)
	}

	month := 0
	for i, m := range months {
		if parts[1] == m {
			month = i + 1
			break
		}
	}
	if month == 0 {
		return time.Time{}, fmt.Errorf("invalid month in date %q", s)
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		return time.Time{}, fmt.Errorf("day out of range in date %q", s)
	}
	return t, nil
}

// MondayOf returns the Monday of the week containing t.
func MondayOf(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset)
}
