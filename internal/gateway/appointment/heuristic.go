package appointment

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Appointment is the structured extraction result. Fields the input does
// not state stay empty rather than guessed.
type Appointment struct {
	Title    string `json:"title,omitempty"`
	Date     string `json:"date,omitempty"`
	Time     string `json:"time,omitempty"`
	Location string `json:"location,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

func (a Appointment) empty() bool {
	return a.Title == "" && a.Date == "" && a.Time == "" && a.Location == "" && a.Notes == ""
}

var (
	isoDateRe     = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	dottedDateRe  = regexp.MustCompile(`\b(\d{1,2})\.(\d{1,2})\.(\d{4})\b`)
	slashedDateRe = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	monthDayRe    = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s+(\d{4}))?\b`)
	dayMonthRe    = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?(?:,?\s+(\d{4}))?\b`)
	clockRe       = regexp.MustCompile(`(?i)\b(\d{1,2}):(\d{2})\s*(am|pm)?\b`)
	hourRe        = regexp.MustCompile(`(?i)\b(\d{1,2})\s*(am|pm)\b`)
	labelLocRe    = regexp.MustCompile(`(?i)location:\s*([^\n,.]{2,60})`)
	prepLocRe     = regexp.MustCompile(`\b(?:at|in)\s+(?:the\s+)?([A-Z][\w'&-]*(?:\s+[A-Z0-9][\w'&-]*){0,4})`)
)

var monthNum = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

// locationStopWords keeps date words out of "at March ..." style matches.
var locationStopWords = map[string]bool{}

func init() {
	for _, w := range []string{
		"january", "february", "march", "april", "may", "june", "july",
		"august", "september", "october", "november", "december",
		"monday", "tuesday", "wednesday", "thursday", "friday",
		"saturday", "sunday", "noon", "midnight", "tomorrow", "today",
	} {
		locationStopWords[w] = true
	}
}

// extractHeuristic scans for the first recognizable date, time and
// location. It is deliberately conservative: a miss leaves the field
// empty for the caller to fill in by hand.
func extractHeuristic(text string, now time.Time) Appointment {
	text = strings.TrimSpace(text)
	if text == "" {
		return Appointment{}
	}
	return Appointment{
		Title:    firstLine(text),
		Date:     findDate(text, now),
		Time:     findTime(text),
		Location: findLocation(text),
	}
}

func firstLine(text string) string {
	line := text
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		line = text[:i]
	}
	line = strings.TrimSpace(line)
	if runes := []rune(line); len(runes) > 80 {
		line = string(runes[:80])
	}
	return line
}

func findDate(text string, now time.Time) string {
	if m := isoDateRe.FindStringSubmatch(text); m != nil {
		return normalizeDate(atoi(m[1]), atoi(m[2]), atoi(m[3]))
	}
	if m := dottedDateRe.FindStringSubmatch(text); m != nil {
		return normalizeDate(atoi(m[3]), atoi(m[2]), atoi(m[1]))
	}
	if m := slashedDateRe.FindStringSubmatch(text); m != nil {
		return normalizeDate(atoi(m[3]), atoi(m[1]), atoi(m[2]))
	}
	if m := monthDayRe.FindStringSubmatch(text); m != nil {
		return namedDate(m[1], m[2], m[3], now)
	}
	if m := dayMonthRe.FindStringSubmatch(text); m != nil {
		return namedDate(m[2], m[1], m[3], now)
	}
	lower := strings.ToLower(text)
	if strings.Contains(lower, "tomorrow") {
		return now.AddDate(0, 0, 1).Format("2006-01-02")
	}
	if strings.Contains(lower, "today") || strings.Contains(lower, "tonight") {
		return now.Format("2006-01-02")
	}
	return ""
}

// namedDate resolves a month-name date. Without an explicit year it picks
// the next occurrence: a day already past rolls into next year.
func namedDate(monthTok, dayTok, yearTok string, now time.Time) string {
	m := monthNum[strings.ToLower(monthTok)]
	d := atoi(dayTok)
	if yearTok != "" {
		return normalizeDate(atoi(yearTok), m, d)
	}
	y := now.Year()
	if time.Date(y, time.Month(m), d, 23, 59, 59, 0, now.Location()).Before(now) {
		y++
	}
	return normalizeDate(y, m, d)
}

func normalizeDate(y, m, d int) string {
	if y < 1 || m < 1 || m > 12 || d < 1 || d > 31 {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", y, m, d)
}

func findTime(text string) string {
	if m := clockRe.FindStringSubmatch(text); m != nil {
		return normalizeClock(atoi(m[1]), atoi(m[2]), m[3])
	}
	if m := hourRe.FindStringSubmatch(text); m != nil {
		return normalizeClock(atoi(m[1]), 0, m[2])
	}
	return ""
}

func normalizeClock(h, min int, meridiem string) string {
	switch strings.ToLower(meridiem) {
	case "am":
		if h == 12 {
			h = 0
		}
	case "pm":
		if h < 12 {
			h += 12
		}
	}
	if h > 23 || min > 59 {
		return ""
	}
	return fmt.Sprintf("%02d:%02d", h, min)
}

func findLocation(text string) string {
	if m := labelLocRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	for _, m := range prepLocRe.FindAllStringSubmatch(text, -1) {
		first := strings.ToLower(strings.Fields(m[1])[0])
		if locationStopWords[first] {
			continue
		}
		return strings.TrimSpace(m[1])
	}
	return ""
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
