package scraper

import (
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

const (
	studyPeriodSelector = "#ctl00_Content_ctlFilter_CboStudyPeriodFilter_elbList option"
	startDateField      = "ctl00$Content$ctlFilter$TxtStartDt"
	searchButtonField   = "ctl00$Content$ctlFilter$BtnSearch"
)

// Endpoints are the portal pages the session walks through.
type Endpoints struct {
	Login     string
	MyStudies string
	EStudent  string
	Timetable string
}

// DefaultEndpoints returns the Curtin OASIS / eStudent URLs.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Login:     "https://oasis.curtin.edu.au/Auth/Logon",
		MyStudies: "https://oasis.curtin.edu.au/MyStudies",
		EStudent:  "https://estudent.curtin.edu.au/eStudent/",
		Timetable: "https://estudent.curtin.edu.au/eStudent/SM/StudentTtable10.aspx?r=%23CU.ESTU.STUDENT&f=%23CU.EST.TIMETBL.WEB",
	}
}

// Session is an authenticated portal session. It caches the last fetched timetable page
// and the Monday of the week that page shows. A Session is not safe for concurrent use.
type Session struct {
	client    *http.Client
	endpoints Endpoints
	logger    *zap.Logger
	userAgent string

	timetablePage string
	hasPage       bool
	monDate       time.Time
}

// Option configures a Session.
type Option func(*Session)

// WithEndpoints overrides the portal URLs.
func WithEndpoints(e Endpoints) Option {
	return func(s *Session) { s.endpoints = e }
}

// WithLogger sets the session logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(s *Session) { s.userAgent = ua }
}

// NewSession creates an unauthenticated session with an empty cookie jar.
func NewSession(opts ...Option) (*Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	s := &Session{
		client:    &http.Client{Jar: jar},
		endpoints: DefaultEndpoints(),
		logger:    zap.NewNop(),
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// MondayDate is the Monday of the week shown by the cached timetable page.
// It is the zero time until a page has been fetched.
func (s *Session) MondayDate() time.Time {
	return s.monDate
}

// do sends a request and reads the whole body. A nil form sends an empty body.
func (s *Session) do(method, target string, form url.Values, followRedirects bool) (*http.Response, string, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequest(method, target, body)
	if err != nil {
		return nil, "", fmt.Errorf("creating %s request: %w", method, err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	client := s.client
	if !followRedirects {
		noRedirect := *s.client
		noRedirect.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
		client = &noRedirect
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("reading response from %s: %w", target, err)
	}
	s.logger.Debug("portal request",
		zap.String("method", method),
		zap.String("url", target),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(data)))
	return resp, string(data), nil
}

// TimetablePage returns the timetable markup, navigating to it on first use. The portal
// only serves the timetable once the My Studies and eStudent landing pages have been
// visited in the same session.
func (s *Session) TimetablePage() (string, error) {
	if s.hasPage {
		return s.timetablePage, nil
	}

	if _, _, err := s.do(http.MethodPost, s.endpoints.MyStudies, nil, true); err != nil {
		return "", fmt.Errorf("navigating to My Studies: %w", err)
	}
	if _, _, err := s.do(http.MethodGet, s.endpoints.EStudent, nil, true); err != nil {
		return "", fmt.Errorf("navigating to eStudent: %w", err)
	}
	resp, page, err := s.do(http.MethodGet, s.endpoints.Timetable, nil, true)
	if err != nil {
		return "", fmt.Errorf("fetching timetable: %w", err)
	}
	if !isSuccess(resp.StatusCode) {
		return "", &StatusError{URL: s.endpoints.Timetable, StatusCode: resp.StatusCode}
	}

	monday, err := defaultDate(page)
	if err != nil {
		return "", fmt.Errorf("reading default study period: %w", err)
	}
	s.timetablePage = page
	s.hasPage = true
	s.monDate = monday
	s.logger.Info("timetable page fetched", zap.Time("monday", monday))
	return page, nil
}

// SetTimetablePageDated asks the portal for the timetable of the week containing date and
// replaces the cached page with the response. The cached Monday is taken from the start
// date the portal echoes back, which may differ from the requested date.
func (s *Session) SetTimetablePageDated(date time.Time) (string, error) {
	page, err := s.TimetablePage()
	if err != nil {
		return "", err
	}
	form, err := ExtractFormState(page)
	if err != nil {
		return "", fmt.Errorf("reading form state: %w", err)
	}
	form.Set(startDateField, FromDatetime(date))
	form.Set(searchButtonField, "Refresh")

	resp, body, err := s.do(http.MethodPost, s.endpoints.Timetable, form, false)
	if err != nil {
		return "", fmt.Errorf("refreshing timetable: %w", err)
	}
	if !isSuccess(resp.StatusCode) {
		return "", &StatusError{URL: s.endpoints.Timetable, StatusCode: resp.StatusCode}
	}

	monday, err := echoedMonday(body)
	if err != nil {
		return "", fmt.Errorf("reading echoed start date: %w", err)
	}
	s.timetablePage = body
	s.hasPage = true
	s.monDate = monday
	s.logger.Info("timetable page refreshed",
		zap.String("requested", FromDatetime(date)),
		zap.Time("monday", monday))
	return body, nil
}

// defaultDate reads the start of the current study period from the filter dropdown.
func defaultDate(page string) (time.Time, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return time.Time{}, fmt.Errorf("error parsing HTML: %w", err)
	}
	options := doc.Find(studyPeriodSelector)
	// the selected option is the current period; without one the portal lists it second
	option := options.Filter("[selected]").First()
	if option.Length() == 0 {
		if options.Length() < 2 {
			return time.Time{}, fmt.Errorf("study period option: %w", ErrElementNotFound)
		}
		option = options.Eq(1)
	}
	value, exists := option.Attr("value")
	if !exists {
		return time.Time{}, fmt.Errorf("study period option value: %w", ErrElementNotFound)
	}
	return parseStudyPeriod(value)
}

// parseStudyPeriod turns an option value like "2017-1-May 01, 2017" into 1 May 2017.
func parseStudyPeriod(value string) (time.Time, error) {
	parts := strings.Split(strings.ReplaceAll(value, ",", ""), "-")
	fields := strings.Fields(parts[len(parts)-1])
	if len(fields) != 3 {
		return time.Time{}, fmt.Errorf("unexpected study period value %q", value)
	}
	return ToDatetime(fields[1] + "-" + fields[0] + "-" + fields[2])
}

// echoedMonday reads the start date field of a refreshed page and returns that week's Monday.
func echoedMonday(page string) (time.Time, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return time.Time{}, fmt.Errorf("error parsing HTML: %w", err)
	}
	value, exists := doc.Find(`input[name="` + startDateField + `"]`).Attr("value")
	if !exists {
		return time.Time{}, fmt.Errorf("start date field: %w", ErrElementNotFound)
	}
	date, err := ToDatetime(value)
	if err != nil {
		return time.Time{}, err
	}
	return MondayOf(date), nil
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}

func isRedirect(code int) bool {
	return code >= 300 && code < 400 && code != http.StatusNotModified
}
