package model

import "time"

// Event is one normalized timetable entry as extracted from the portal's
// embedded schedule script. Start and End are naive wall-clock values; the
// configured display timezone is applied by the ICS builder, not here.
type Event struct {
	Start time.Time
	End   time.Time

	// Summary is the plain-text class title (max 200 runes, never empty;
	// defaults to "Class" when the portal supplies no title).
	Summary string

	// Location is a heuristically extracted room token (e.g. "B-204").
	// Empty when no room pattern was found in the title.
	Location string

	// Description is the plain-text body (max 2000 runes, may be empty).
	Description string
}

// Key identifies an event for merge/dedup purposes. The portal exposes no
// stable identifier, so (start, end, summary) is the best key available;
// two genuinely distinct classes sharing all three would collapse into one.
type Key struct {
	Start   time.Time
	End     time.Time
	Summary string
}

// DedupKey returns the merge key for this event.
func (e Event) DedupKey() Key {
	return Key{Start: e.Start, End: e.End, Summary: e.Summary}
}
