package report

import (
	"strings"
	"time"
)

const isoDate = "2006-01-02"

var fallbackLayouts = []string{
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"2 January 2006",
	"2 Jan 2006",
	"02.01.2006",
	time.RFC3339,
}

// ParseClinicalDate converts a date as written in a report to a calendar
// date. Slash dates are month/day/year with two-digit years in the 2000s.
// Ten-character dash dates are year-month-day when they start with a
// four-digit year and day-month-year otherwise. Anything unparseable is nil.
func ParseClinicalDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	if strings.Contains(s, "/") {
		parts := strings.Split(s, "/")
		if len(parts) != 3 {
			return nil
		}
		return buildDate(padYear(parts[2]), parts[0], parts[1])
	}

	if strings.Contains(s, "-") && len(s) == 10 {
		parts := strings.Split(s, "-")
		if len(parts) != 3 {
			return nil
		}
		if len(parts[0]) == 4 {
			return buildDate(parts[0], parts[1], parts[2])
		}
		return buildDate(parts[2], parts[1], parts[0])
	}

	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &d
		}
	}
	return nil
}

func padYear(y string) string {
	y = strings.TrimSpace(y)
	if len(y) >= 4 {
		return y
	}
	return "2020"[:4-len(y)] + y
}

func buildDate(year, month, day string) *time.Time {
	s := strings.TrimSpace(year) + "-" + pad2(month) + "-" + pad2(day)
	t, err := time.Parse(isoDate, s)
	if err != nil {
		return nil
	}
	return &t
}

func pad2(s string) string {
	s = strings.TrimSpace(s)
	if len(s) == 1 {
		return "0" + s
	}
	return s
}
