package googlecalendar

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/calendar/v3"

	"estudent-scraper/scraper"
)

// Events created by this tool carry sourceProperty=sourceValue in their private extended
// properties. Only those events are ever listed, updated or deleted.
const (
	sourceProperty = "source"
	sourceValue    = "estudent-scraper"
)

// Window limits calendar operations to events overlapping [From, To). A zero bound is open.
type Window struct {
	From time.Time
	To   time.Time
}

// WeekWindow covers weeks whole weeks starting at midnight of monday in loc.
func WeekWindow(monday time.Time, weeks int, loc *time.Location) Window {
	from := time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, loc)
	return Window{From: from, To: from.AddDate(0, 0, 7*weeks)}
}

func isManaged(event *calendar.Event) bool {
	return event.ExtendedProperties != nil && event.ExtendedProperties.Private[sourceProperty] == sourceValue
}

// EventFromClass builds the calendar event for one class meeting.
func EventFromClass(c scraper.ClassMeeting, loc *time.Location) (*calendar.Event, error) {
	start, end, err := c.Times(loc)
	if err != nil {
		return nil, fmt.Errorf("%s on %s: %w", c.UnitCode, c.Date, err)
	}
	// the portal occasionally renders zero-length slots
	if !end.After(start) {
		end = start.Add(time.Hour)
	}

	return &calendar.Event{
		Summary:     c.Summary(),
		Location:    c.Location,
		ColorId:     colorIDForType(c.Type),
		Description: fmt.Sprintf("Unit: %s\nType: %s\nLocation: %s", c.UnitCode, c.Type, c.Location),
		Start: &calendar.EventDateTime{
			DateTime: start.Format(time.RFC3339),
			TimeZone: loc.String(),
		},
		End: &calendar.EventDateTime{
			DateTime: end.Format(time.RFC3339),
			TimeZone: loc.String(),
		},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{sourceProperty: sourceValue},
		},
	}, nil
}

func colorIDForType(meetingType string) string {
	switch t := strings.ToLower(meetingType); {
	case strings.HasPrefix(t, "lec"):
		return "9" // Blue
	case strings.HasPrefix(t, "lab"), strings.HasPrefix(t, "work"):
		return "5" // Yellow
	case strings.HasPrefix(t, "tut"), strings.HasPrefix(t, "sem"):
		return "2" // Green
	default:
		return "8" // Grey
	}
}

// TimetableEvents converts every class of tt into events, ordered by unit code and then
// by the order the classes appeared on the page.
func TimetableEvents(tt scraper.Timetable, loc *time.Location) ([]*calendar.Event, error) {
	var events []*calendar.Event
	for _, code := range tt.Codes() {
		for _, c := range tt[code].Classes {
			event, err := EventFromClass(c, loc)
			if err != nil {
				return nil, err
			}
			events = append(events, event)
		}
	}
	return events, nil
}

func eventKey(event *calendar.Event) string {
	return scraper.EventKey(event.Summary, event.Start.DateTime, event.End.DateTime)
}

// SyncResult counts the changes SyncTimetable made.
type SyncResult struct {
	Inserted int
	Updated  int
	Deleted  int
}

// SyncTimetable makes the tool's events inside window match the classes in tt. Events are
// matched by scraper.EventKey: unmatched ones are deleted, matched ones are updated when
// their location or description changed, and the rest are inserted. Events the tool did
// not create, or that fall outside window, are left alone.
func (c *Client) SyncTimetable(calendarID string, tt scraper.Timetable, loc *time.Location, window Window, clearAll bool) (SyncResult, error) {
	var result SyncResult
	if clearAll {
		if err := c.ClearCalendar(calendarID, window); err != nil {
			return result, fmt.Errorf("error clearing Google Calendar: %w", err)
		}
	}

	wanted, err := TimetableEvents(tt, loc)
	if err != nil {
		return result, err
	}

	existingEvents, err := c.GetAllEvents(calendarID, window)
	if err != nil {
		return result, err
	}
	var managed []*calendar.Event
	existing := make(map[string]*calendar.Event)
	for _, event := range existingEvents {
		if event == nil || event.Status == "cancelled" || event.Start == nil || event.End == nil || !isManaged(event) {
			continue
		}
		managed = append(managed, event)
		existing[eventKey(event)] = event
	}

	wantedKeys := make(map[string]bool, len(wanted))
	for _, event := range wanted {
		wantedKeys[eventKey(event)] = true
	}

	for _, event := range managed {
		if wantedKeys[eventKey(event)] {
			continue
		}
		if err := c.deleteEvent(calendarID, event); err != nil {
			return result, err
		}
		result.Deleted++
	}

	for _, event := range wanted {
		current, found := existing[eventKey(event)]
		if !found {
			if _, err := c.PostEvent(calendarID, event); err != nil {
				return result, err
			}
			result.Inserted++
			continue
		}
		if current.Location == event.Location && current.Description == event.Description {
			continue
		}
		if _, err := c.service.Events.Update(calendarID, current.Id, event).Do(); err != nil {
			return result, fmt.Errorf("error updating event in Google Calendar: %w", err)
		}
		c.logger.Info("event updated", zap.String("summary", event.Summary), zap.String("id", current.Id))
		result.Updated++
	}

	c.logger.Info("timetable synced with Google Calendar",
		zap.String("calendar", calendarID),
		zap.Time("from", window.From),
		zap.Time("to", window.To),
		zap.Int("inserted", result.Inserted),
		zap.Int("updated", result.Updated),
		zap.Int("deleted", result.Deleted))
	return result, nil
}
