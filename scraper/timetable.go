package scraper

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// Timetable fetches the timetable page if needed and parses it. The page is cached but
// the parse always runs again.
func (s *Session) Timetable() (Timetable, error) {
	if _, err := s.TimetablePage(); err != nil {
		return nil, err
	}
	return s.ProcessTimetablePage()
}

// ProcessTimetablePage parses the cached timetable page.
func (s *Session) ProcessTimetablePage() (Timetable, error) {
	if !s.hasPage {
		return nil, fmt.Errorf("no timetable page fetched")
	}
	tt, err := ParseTimetable(s.timetablePage, s.monDate)
	if err != nil {
		return nil, err
	}
	s.logger.Info("timetable parsed", zap.Int("units", len(tt)), zap.Time("monday", s.monDate))
	return tt, nil
}

// TimetableWeeks returns the classes of weeks consecutive weeks starting with the week
// containing from. A zero from starts at the week the portal shows by default.
func (s *Session) TimetableWeeks(from time.Time, weeks int) (Timetable, error) {
	if weeks < 1 {
		return nil, fmt.Errorf("weeks must be at least 1, got %d", weeks)
	}
	var (
		tt  Timetable
		err error
	)
	if from.IsZero() {
		tt, err = s.Timetable()
	} else if _, err = s.SetTimetablePageDated(from); err == nil {
		tt, err = s.ProcessTimetablePage()
	}
	if err != nil {
		return nil, err
	}

	first := s.monDate
	for i := 1; i < weeks; i++ {
		if _, err := s.SetTimetablePageDated(first.AddDate(0, 0, 7*i)); err != nil {
			return nil, err
		}
		week, err := s.ProcessTimetablePage()
		if err != nil {
			return nil, err
		}
		tt.Merge(week)
	}
	return tt, nil
}

// ParseTimetable extracts every class on page, grouped by unit code. Class dates come
// from the column they sit in and monday; the page itself carries no per-class date.
func ParseTimetable(page string, monday time.Time) (Timetable, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("error parsing HTML: %w", err)
	}

	tt := Timetable{}
	for _, day := range schoolDays {
		column := doc.Find(fmt.Sprintf("#ctl00_Content_ctlTimetableMain_%sDayCol_Body", day))
		if column.Length() == 0 {
			return nil, fmt.Errorf("%s day column: %w", day, ErrElementNotFound)
		}
		date, err := DateFromDayAbbr(day, monday)
		if err != nil {
			return nil, err
		}

		var panelErr error
		column.Find(".cssClassInnerPanel").EachWithBreak(func(i int, panel *goquery.Selection) bool {
			c, err := parseClassPanel(panel, date)
			if err != nil {
				panelErr = fmt.Errorf("%s class %d: %w", day, i, err)
				return false
			}
			tt.add(c)
			return true
		})
		if panelErr != nil {
			return nil, panelErr
		}
	}
	return tt, nil
}

func parseClassPanel(panel *goquery.Selection, date string) (ClassMeeting, error) {
	start, err := hiddenTime(panel, ".cssHiddenStartTm")
	if err != nil {
		return ClassMeeting{}, err
	}
	end, err := hiddenTime(panel, ".cssHiddenEndTm")
	if err != nil {
		return ClassMeeting{}, err
	}
	what, err := slotText(panel, ".cssTtableClsSlotWhat")
	if err != nil {
		return ClassMeeting{}, err
	}
	where, err := slotText(panel, ".cssTtableClsSlotWhere")
	if err != nil {
		return ClassMeeting{}, err
	}
	code, err := slotText(panel, ".cssTtableHeaderPanel")
	if err != nil {
		return ClassMeeting{}, err
	}

	return ClassMeeting{
		Date:     date,
		Start:    start,
		End:      end,
		Type:     what,
		Location: where,
		UnitCode: code,
	}, nil
}

func hiddenTime(panel *goquery.Selection, selector string) (string, error) {
	value, exists := panel.Find(selector).First().Attr("value")
	if !exists {
		return "", fmt.Errorf("%s: %w", selector, ErrElementNotFound)
	}
	return To24h(value)
}

func slotText(panel *goquery.Selection, selector string) (string, error) {
	sel := panel.Find(selector).First()
	if sel.Length() == 0 {
		return "", fmt.Errorf("%s: %w", selector, ErrElementNotFound)
	}
	return strings.TrimSpace(sel.Text()), nil
}
