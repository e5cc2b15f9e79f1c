// Package ics serializes the merged event list into the published
// iCalendar artifact.
package ics

import (
	"fmt"
	"hash/fnv"
	"time"

	ical "github.com/arran4/golang-ical"

	"portalics/internal/model"
)

const prodID = "-//portalics//feed//"

// Build renders the sorted event list as ICS bytes. Event timestamps are
// naive wall-clock values; they are interpreted in loc before
// serialization. An empty event list yields a structurally valid empty
// calendar, never an error.
func Build(events []model.Event, loc *time.Location) ([]byte, error) {
	if loc == nil {
		loc = time.Local
	}

	cal := ical.NewCalendar()
	cal.SetProductId(prodID)
	cal.SetVersion("2.0")
	cal.SetMethod(ical.MethodPublish)

	for _, ev := range events {
		start := inLocation(ev.Start, loc)
		end := inLocation(ev.End, loc)

		ve := cal.AddEvent(eventUID(start, ev.Summary))
		ve.SetDtStampTime(time.Now().UTC())
		ve.SetStartAt(start)
		ve.SetEndAt(end)
		ve.SetSummary(ev.Summary)
		if ev.Location != "" {
			ve.SetLocation(ev.Location)
		}
		if ev.Description != "" {
			ve.SetDescription(ev.Description)
		}
	}

	return []byte(cal.Serialize()), nil
}

// eventUID derives a stable UID from the localized start time and the
// summary. The portal supplies no identifier of its own, so this keeps
// UIDs consistent across refreshes as long as the event itself is
// unchanged.
func eventUID(start time.Time, summary string) string {
	h := fnv.New32a()
	h.Write([]byte(summary))
	return fmt.Sprintf("%d-%d@portalics", start.Unix(), h.Sum32())
}

// inLocation reinterprets a naive timestamp's wall-clock fields in loc.
func inLocation(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc)
}
