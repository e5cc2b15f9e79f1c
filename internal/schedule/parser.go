// Package schedule extracts timetable events from the script blob returned
// by the portal's week endpoint. The blob is server-rendered JavaScript of
// roughly this shape:
//
//	events: [{
//	  start: new Date(2025, 8, 18, 18, 10),
//	  end: new Date(2025, 8, 18, 19, 50),
//	  title: '<table>...</table>',
//	  body: '<table>...</table>'
//	}, ...]
//
// There is no real grammar behind it, so extraction is a tolerant regex
// scan rather than a parser. Known limitation: event blocks are matched
// without brace balancing, so an unescaped '}' inside a string field
// truncates that block early.
package schedule

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"portalics/internal/model"
)

const (
	maxSummaryLen     = 200
	maxDescriptionLen = 2000

	// defaultSummary is used when the portal supplies an empty title.
	defaultSummary = "Class"
)

var (
	// dateRe matches a JS date constructor: new Date(Y, M, D, H, m).
	// The month argument is zero-based.
	dateRe = regexp.MustCompile(`new Date\(\s*(\d{4})\s*,\s*(\d{1,2})\s*,\s*(\d{1,2})\s*,\s*(\d{1,2})\s*,\s*(\d{1,2})\s*\)`)

	// blockRe matches one brace-delimited event object containing a start
	// date constructor followed by an end date constructor.
	blockRe = regexp.MustCompile(`\{[^{}]*?['"]?start['"]?\s*:\s*new Date\([^)]*\)[\s\S]*?['"]?end['"]?\s*:\s*new Date\([^)]*\)[\s\S]*?\}`)

	titleRe = regexp.MustCompile(`(?s)['"]?title['"]?\s*:\s*(?:'(.*?)'|"(.*?)")`)
	bodyRe  = regexp.MustCompile(`(?s)['"]?body['"]?\s*:\s*(?:'(.*?)'|"(.*?)")`)
)

// jsUnescaper undoes the handful of escape sequences the portal emits
// inside its string literals. This is intentionally not a full JS string
// decoder; unicode escapes and the like pass through untouched.
var jsUnescaper = strings.NewReplacer(
	`\'`, "'",
	`\"`, `"`,
	`\n`, " ",
	`\r`, " ",
)

// Extract scans a raw schedule blob and returns the events found, in blob
// order, plus the number of candidate blocks skipped as malformed. It never
// fails: an empty or garbage blob yields zero events. Identical blocks
// yield identical records; dedup across weeks is the refresher's job.
func Extract(blob string) ([]model.Event, int) {
	if blob == "" {
		return nil, 0
	}

	var (
		events  []model.Event
		skipped int
	)

	for _, block := range blockRe.FindAllString(blob, -1) {
		ev, ok := parseBlock(block)
		if !ok {
			skipped++
			continue
		}
		events = append(events, ev)
	}

	return events, skipped
}

func parseBlock(block string) (model.Event, bool) {
	// First date constructor is the start, the next one after it the end.
	sm := dateRe.FindStringSubmatchIndex(block)
	if sm == nil {
		return model.Event{}, false
	}
	start, ok := parseJSDate(block, sm)
	if !ok {
		return model.Event{}, false
	}

	em := dateRe.FindStringSubmatchIndex(block[sm[1]:])
	if em == nil {
		return model.Event{}, false
	}
	for i := range em {
		em[i] += sm[1]
	}
	end, ok := parseJSDate(block, em)
	if !ok {
		return model.Event{}, false
	}

	titleText := stripHTML(jsUnescaper.Replace(quotedField(titleRe, block)))
	bodyText := stripHTML(jsUnescaper.Replace(quotedField(bodyRe, block)))

	summary := truncate(titleText, maxSummaryLen)
	if summary == "" {
		summary = defaultSummary
	}

	return model.Event{
		Start:       start,
		End:         end,
		Summary:     summary,
		Location:    ExtractLocation(titleText),
		Description: truncate(bodyText, maxDescriptionLen),
	}, true
}

// parseJSDate converts the submatch groups of dateRe at idx into a naive
// timestamp. The JS month argument is zero-based and normalized here.
// Out-of-range components mark the block unparsable.
func parseJSDate(s string, idx []int) (time.Time, bool) {
	year := atoiGroup(s, idx, 1)
	month := atoiGroup(s, idx, 2)
	day := atoiGroup(s, idx, 3)
	hour := atoiGroup(s, idx, 4)
	minute := atoiGroup(s, idx, 5)

	if month < 0 || month > 11 || day < 1 || day > 31 || hour > 23 || minute > 59 {
		return time.Time{}, false
	}

	t := time.Date(year, time.Month(month+1), day, hour, minute, 0, 0, time.UTC)
	// time.Date normalizes impossible dates (Feb 31 becomes Mar 3); a date
	// that does not round-trip is unparsable, not a different day.
	if t.Day() != day || t.Month() != time.Month(month+1) {
		return time.Time{}, false
	}
	return t, true
}

func atoiGroup(s string, idx []int, group int) int {
	n, err := strconv.Atoi(s[idx[2*group]:idx[2*group+1]])
	if err != nil {
		return -1
	}
	return n
}

// quotedField returns the content of the first single- or double-quoted
// match of re in block, or "" when the field is absent.
func quotedField(re *regexp.Regexp, block string) string {
	m := re.FindStringSubmatch(block)
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return m[1]
	}
	return m[2]
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
