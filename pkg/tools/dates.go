package tools

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// DateLayout is the absolute form date references are rewritten to.
const DateLayout = "2006-01-02"

const monthNames = `january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sep|sept|oct|nov|dec`

var monthIndex = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

var (
	reISODate      = regexp.MustCompile(`\b\d{4}-\d{1,2}-\d{1,2}\b`)
	reSlashDate    = regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{4}\b`)
	reMonthDayYear = regexp.MustCompile(`(?i)\b(` + monthNames + `)\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`)
	reDayMonthYear = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?(` + monthNames + `)\.?,?\s+(\d{4})\b`)
	reMonthYear    = regexp.MustCompile(`(?i)\b(` + monthNames + `)\.?,?\s+(\d{4})\b`)

	reToday     = regexp.MustCompile(`(?i)\btoday\b`)
	reYesterday = regexp.MustCompile(`(?i)\byesterday\b`)
	reDaysAgo   = regexp.MustCompile(`(?i)\b(\d+)\s+days?\s+ago\b`)
	reWeeksAgo  = regexp.MustCompile(`(?i)\b(\d+)\s+weeks?\s+ago\b`)
	reThisWeek  = regexp.MustCompile(`(?i)\bthis\s+week\b`)
	reLastWeek  = regexp.MustCompile(`(?i)\blast\s+week\b`)
	reThisMonth = regexp.MustCompile(`(?i)\bthis\s+month\b`)
	reLastMonth = regexp.MustCompile(`(?i)\blast\s+month\b`)
	reThisYear  = regexp.MustCompile(`(?i)\bthis\s+year\b`)
	reLastYear  = regexp.MustCompile(`(?i)\blast\s+year\b`)
)

// NormalizeDates rewrites relative and absolute date references in query to
// absolute dates (2006-01-02), or "<start> to <end>" for periods. The result
// depends only on query and now.
func NormalizeDates(query string, now time.Time) string {
	loc := now.Location()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	out := query

	// Absolute forms first so month names are consumed before the
	// month-year pass sees them.
	out = reISODate.ReplaceAllStringFunc(out, func(m string) string {
		return parseOr(m, loc, m)
	})
	out = reSlashDate.ReplaceAllStringFunc(out, func(m string) string {
		return parseOr(m, loc, m)
	})
	out = reMonthDayYear.ReplaceAllStringFunc(out, func(m string) string {
		g := reMonthDayYear.FindStringSubmatch(m)
		return dayDate(g[3], g[1], g[2], loc, m)
	})
	out = reDayMonthYear.ReplaceAllStringFunc(out, func(m string) string {
		g := reDayMonthYear.FindStringSubmatch(m)
		return dayDate(g[3], g[2], g[1], loc, m)
	})
	out = reMonthYear.ReplaceAllStringFunc(out, func(m string) string {
		g := reMonthYear.FindStringSubmatch(m)
		month, ok := lookupMonth(g[1])
		year, err := strconv.Atoi(g[2])
		if !ok || err != nil {
			return m
		}
		start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
		return period(start, start.AddDate(0, 1, -1))
	})

	out = reDaysAgo.ReplaceAllStringFunc(out, func(m string) string {
		n, err := strconv.Atoi(reDaysAgo.FindStringSubmatch(m)[1])
		if err != nil {
			return m
		}
		return today.AddDate(0, 0, -n).Format(DateLayout)
	})
	out = reWeeksAgo.ReplaceAllStringFunc(out, func(m string) string {
		n, err := strconv.Atoi(reWeeksAgo.FindStringSubmatch(m)[1])
		if err != nil {
			return m
		}
		return today.AddDate(0, 0, -7*n).Format(DateLayout)
	})

	weekStart := today.AddDate(0, 0, -((int(today.Weekday()) + 6) % 7))
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, loc)
	yearStart := time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, loc)

	out = reToday.ReplaceAllString(out, today.Format(DateLayout))
	out = reYesterday.ReplaceAllString(out, today.AddDate(0, 0, -1).Format(DateLayout))
	out = reThisWeek.ReplaceAllString(out, period(weekStart, today))
	out = reLastWeek.ReplaceAllString(out, period(weekStart.AddDate(0, 0, -7), weekStart.AddDate(0, 0, -1)))
	out = reThisMonth.ReplaceAllString(out, period(monthStart, today))
	out = reLastMonth.ReplaceAllString(out, period(monthStart.AddDate(0, -1, 0), monthStart.AddDate(0, 0, -1)))
	out = reThisYear.ReplaceAllString(out, period(yearStart, today))
	out = reLastYear.ReplaceAllString(out, period(yearStart.AddDate(-1, 0, 0), yearStart.AddDate(0, 0, -1)))

	return out
}

func period(start, end time.Time) string {
	return fmt.Sprintf("%s to %s", start.Format(DateLayout), end.Format(DateLayout))
}

func parseOr(s string, loc *time.Location, fallback string) string {
	t, err := dateparse.ParseIn(s, loc)
	if err != nil {
		return fallback
	}
	return t.Format(DateLayout)
}

func dayDate(yearStr, monthStr, dayStr string, loc *time.Location, fallback string) string {
	month, ok := lookupMonth(monthStr)
	if !ok {
		return fallback
	}
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return fallback
	}
	day, err := strconv.Atoi(dayStr)
	if err != nil || day < 1 {
		return fallback
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, loc)
	if t.Month() != month {
		// e.g. February 30
		return fallback
	}
	return t.Format(DateLayout)
}

func lookupMonth(name string) (time.Month, bool) {
	name = strings.ToLower(strings.TrimSuffix(name, "."))
	if len(name) < 3 {
		return 0, false
	}
	m, ok := monthIndex[name[:3]]
	return m, ok
}

// FormatHumanDate renders t as "12th March 2025 at 14:20:00"
func FormatHumanDate(t time.Time) string {
	return fmt.Sprintf("%d%s %s %d at %s", t.Day(), ordinalSuffix(t.Day()), t.Month(), t.Year(), t.Format("15:04:05"))
}

func ordinalSuffix(day int) string {
	if n := day % 100; n >= 11 && n <= 13 {
		return "th"
	}
	switch day % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	}
	return "th"
}
