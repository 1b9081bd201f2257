// Package ical renders a timetable as an iCalendar feed.
package ical

import (
	"fmt"
	"os"
	"time"

	ics "github.com/arran4/golang-ical"

	"estudent-scraper/scraper"
)

const productID = "-//estudent-scraper//timetable//EN"

// BuildCalendar returns a calendar with one event per class meeting. Event UIDs are
// derived from the summary and times, so rebuilding an unchanged timetable yields the
// same UIDs and subscribed clients update instead of duplicating.
func BuildCalendar(tt scraper.Timetable, loc *time.Location, name string, stamp time.Time) (*ics.Calendar, error) {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(productID)
	cal.SetXWRCalName(name)
	cal.SetXWRTimezone(loc.String())

	for _, code := range tt.Codes() {
		for _, c := range tt[code].Classes {
			start, end, err := c.Times(loc)
			if err != nil {
				return nil, fmt.Errorf("%s on %s: %w", c.UnitCode, c.Date, err)
			}
			if !end.After(start) {
				end = start.Add(time.Hour)
			}
			summary := c.Summary()
			uid := scraper.EventKey(summary, start.Format(time.RFC3339), end.Format(time.RFC3339))

			event := cal.AddEvent(uid + "@estudent-scraper")
			event.SetDtStampTime(stamp)
			event.SetStartAt(start)
			event.SetEndAt(end)
			event.SetSummary(summary)
			event.SetLocation(c.Location)
			event.SetDescription(fmt.Sprintf("Unit: %s\nType: %s", c.UnitCode, c.Type))
		}
	}
	return cal, nil
}

// WriteFile serializes cal to path.
func WriteFile(cal *ics.Calendar, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating ICS file: %w", err)
	}
	defer f.Close()
	if err := cal.SerializeTo(f); err != nil {
		return fmt.Errorf("error writing ICS file: %w", err)
	}
	return f.Close()
}
