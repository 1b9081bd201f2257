package scraper

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"time"
)

// ClassMeeting is a single scheduled class as shown on the timetable page.
type ClassMeeting struct {
	Date     string // portal format, e.g. "3-May-2017"
	Start    string // 24h "15:04"
	End      string
	Type     string // e.g. "Lecture", "Laboratory"
	Location string
	UnitCode string
}

// Times returns the start and end of the class in loc.
func (c ClassMeeting) Times(loc *time.Location) (start, end time.Time, err error) {
	date, err := ToDatetime(c.Date)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	startTime, err := time.Parse("15:04", c.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("error parsing start time: %w", err)
	}
	endTime, err := time.Parse("15:04", c.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("error parsing end time: %w", err)
	}

	start = time.Date(date.Year(), date.Month(), date.Day(), startTime.Hour(), startTime.Minute(), 0, 0, loc)
	end = time.Date(date.Year(), date.Month(), date.Day(), endTime.Hour(), endTime.Minute(), 0, 0, loc)
	return start, end, nil
}

// Summary is the title used for the class in calendars, e.g. "COMP1000 Lecture".
func (c ClassMeeting) Summary() string {
	return fmt.Sprintf("%s %s", c.UnitCode, c.Type)
}

// EventKey identifies a calendar entry by its summary and RFC3339 start and end.
func EventKey(summary, start, end string) string {
	hash := md5.New()
	hash.Write([]byte(summary + start + end))
	return hex.EncodeToString(hash.Sum(nil))
}

// Unit accumulates the class meetings of one unit code.
type Unit struct {
	Code    string
	Classes []ClassMeeting
}

// NewUnit creates a unit seeded with its first class meeting.
func NewUnit(first ClassMeeting) *Unit {
	return &Unit{Code: first.UnitCode, Classes: []ClassMeeting{first}}
}

// AddClass appends a class meeting, keeping source order.
func (u *Unit) AddClass(c ClassMeeting) {
	u.Classes = append(u.Classes, c)
}

// Timetable maps unit code to its unit.
type Timetable map[string]*Unit

func (tt Timetable) add(c ClassMeeting) {
	if unit, ok := tt[c.UnitCode]; ok {
		unit.AddClass(c)
		return
	}
	tt[c.UnitCode] = NewUnit(c)
}

// Codes returns the unit codes in sorted order.
func (tt Timetable) Codes() []string {
	codes := make([]string, 0, len(tt))
	for code := range tt {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Merge appends every class of other into tt.
func (tt Timetable) Merge(other Timetable) {
	for _, code := range other.Codes() {
		for _, c := range other[code].Classes {
			tt.add(c)
		}
	}
}
