package schedule

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func block(y, m, d, h1, min1, h2, min2 int, title, body string) string {
	return fmt.Sprintf(`{
		"start": new Date(%d, %d, %d, %d, %d),
		"end": new Date(%d, %d, %d, %d, %d),
		"title": '%s',
		"body": '%s'
	}`, y, m, d, h1, min1, y, m, d, h2, min2, title, body)
}

func TestExtractWellFormedBlocksInOrder(t *testing.T) {
	blob := "var events = [" +
		block(2025, 8, 18, 18, 10, 19, 50, "Algebra", "<b>notes</b>") + "," +
		block(2025, 8, 19, 9, 0, 10, 40, "Calculus", "") + "," +
		block(2025, 8, 20, 14, 0, 15, 30, "Physics", "lab") +
		"];"

	events, skipped := Extract(blob)
	if skipped != 0 {
		t.Fatalf("skipped = %d, want 0", skipped)
	}
	if len(events) != 3 {
		t.Fatalf("len(events) = %d, want 3", len(events))
	}
	wantSummaries := []string{"Algebra", "Calculus", "Physics"}
	for i, want := range wantSummaries {
		if events[i].Summary != want {
			t.Errorf("events[%d].Summary = %q, want %q", i, events[i].Summary, want)
		}
	}
}

func TestExtractMonthNormalization(t *testing.T) {
	cases := []struct {
		jsMonth   int
		wantMonth time.Month
	}{
		{0, time.January},
		{8, time.September},
		{11, time.December},
	}
	for _, tc := range cases {
		blob := block(2025, tc.jsMonth, 15, 10, 0, 11, 0, "T", "")
		events, _ := Extract(blob)
		if len(events) != 1 {
			t.Fatalf("month %d: len(events) = %d, want 1", tc.jsMonth, len(events))
		}
		if got := events[0].Start.Month(); got != tc.wantMonth {
			t.Errorf("js month %d -> %v, want %v", tc.jsMonth, got, tc.wantMonth)
		}
	}
}

func TestExtractMalformedBlockSkipped(t *testing.T) {
	good := block(2025, 2, 10, 9, 0, 10, 0, "Good", "")
	// End token present but with truncated arguments: the block is located
	// as a candidate, then dropped because the end date is unparsable.
	bad := `{"start": new Date(2025, 2, 11, 9, 0), "end": new Date(2025, 2), "title": 'Bad'}`
	// Missing the end token entirely: never even located as a block.
	missing := `{"start": new Date(2025, 2, 12, 9, 0), "title": 'Gone'}`

	events, skipped := Extract(good + "," + bad + "," + missing)
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	if events[0].Summary != "Good" {
		t.Errorf("Summary = %q, want %q", events[0].Summary, "Good")
	}
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}
}

func TestExtractInvalidDateArgumentsSkipped(t *testing.T) {
	// Month 12 is out of range for a zero-based month.
	blob := block(2025, 12, 10, 9, 0, 10, 0, "Broken", "")
	events, skipped := Extract(blob)
	if len(events) != 0 {
		t.Fatalf("len(events) = %d, want 0", len(events))
	}
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}
}

func TestExtractImpossibleCalendarDateSkipped(t *testing.T) {
	// February 31st passes the per-component range check but does not
	// exist; the block must be skipped, not normalized to March 3rd.
	blob := block(2025, 1, 31, 9, 0, 10, 0, "Ghost", "")
	events, skipped := Extract(blob)
	if len(events) != 0 {
		t.Fatalf("len(events) = %d, want 0 (got start %v)", len(events), events[0].Start)
	}
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}
}

func TestExtractEmptyBlob(t *testing.T) {
	events, skipped := Extract("")
	if len(events) != 0 || skipped != 0 {
		t.Fatalf("Extract(\"\") = %d events, %d skipped; want 0, 0", len(events), skipped)
	}

	events, skipped = Extract("no event blocks in here at all")
	if len(events) != 0 || skipped != 0 {
		t.Fatalf("garbage blob = %d events, %d skipped; want 0, 0", len(events), skipped)
	}
}

func TestExtractTruncation(t *testing.T) {
	longTitle := strings.Repeat("a", 300)
	longBody := strings.Repeat("b", 2500)
	blob := block(2025, 3, 1, 8, 0, 9, 0, longTitle, longBody)

	events, _ := Extract(blob)
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	if n := len([]rune(events[0].Summary)); n != maxSummaryLen {
		t.Errorf("len(Summary) = %d, want %d", n, maxSummaryLen)
	}
	if n := len([]rune(events[0].Description)); n != maxDescriptionLen {
		t.Errorf("len(Description) = %d, want %d", n, maxDescriptionLen)
	}
}

func TestExtractDefaultSummary(t *testing.T) {
	blob := block(2025, 3, 1, 8, 0, 9, 0, "", "")
	events, _ := Extract(blob)
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	if events[0].Summary != defaultSummary {
		t.Errorf("Summary = %q, want %q", events[0].Summary, defaultSummary)
	}
}

func TestExtractStripsMarkupAndUnescapes(t *testing.T) {
	title := `<table><tr><td>Redes\nde</td><td>Computadores</td></tr></table>`
	body := `line1\r\nline2 <i>meta</i>`
	blob := block(2025, 9, 2, 18, 10, 19, 50, title, body)

	events, _ := Extract(blob)
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	if want := "Redes de Computadores"; events[0].Summary != want {
		t.Errorf("Summary = %q, want %q", events[0].Summary, want)
	}
	if want := "line1 line2 meta"; events[0].Description != want {
		t.Errorf("Description = %q, want %q", events[0].Description, want)
	}
}

func TestExtractEscapedQuotes(t *testing.T) {
	blob := `{"start": new Date(2025, 4, 5, 10, 0), "end": new Date(2025, 4, 5, 11, 0), "title": "Lab \"A\"", "body": ""}`
	events, _ := Extract(blob)
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	// Non-greedy capture stops at the first matching quote; the leading
	// escaped part survives unescaping.
	if events[0].Summary == "" {
		t.Errorf("Summary is empty, want extracted text")
	}
}

func TestExtractDuplicateBlocksNotDeduped(t *testing.T) {
	b := block(2025, 5, 6, 9, 0, 10, 0, "Same", "")
	events, _ := Extract(b + "," + b)
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2 (parser must not dedup)", len(events))
	}
}

func TestExtractLocation(t *testing.T) {
	cases := []struct {
		title string
		want  string
	}{
		{"Matematica Sala B-204 Turma 1", "Sala B-204"},
		{"Fisica B-204", "B-204"},
		{"Quimica J-305 e B-101", "J-305"},
		{"Sem sala atribuida", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := ExtractLocation(tc.title); got != tc.want {
			t.Errorf("ExtractLocation(%q) = %q, want %q", tc.title, got, tc.want)
		}
	}
}

func TestExtractStartEndPositional(t *testing.T) {
	blob := block(2025, 8, 18, 18, 10, 19, 50, "X", "")
	events, _ := Extract(blob)
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	ev := events[0]
	wantStart := time.Date(2025, time.September, 18, 18, 10, 0, 0, time.UTC)
	wantEnd := time.Date(2025, time.September, 18, 19, 50, 0, 0, time.UTC)
	if !ev.Start.Equal(wantStart) {
		t.Errorf("Start = %v, want %v", ev.Start, wantStart)
	}
	if !ev.End.Equal(wantEnd) {
		t.Errorf("End = %v, want %v", ev.End, wantEnd)
	}
}
