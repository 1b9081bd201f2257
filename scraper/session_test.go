package scraper

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePortal serves the login, navigation and timetable pages of the eStudent portal.
type fakePortal struct {
	t      *testing.T
	server *httptest.Server

	mu          sync.Mutex
	hits        map[string]int
	refreshForm url.Values
	refreshCode int
	refreshBody string
}

func newFakePortal(t *testing.T) *fakePortal {
	p := &fakePortal{t: t, hits: map[string]int{}, refreshCode: http.StatusOK}
	timetable := loadPage(t, "timetable.html")
	dated := loadPage(t, "timetable_dated.html")

	mux := http.NewServeMux()
	mux.HandleFunc("/Auth/Logon", func(w http.ResponseWriter, r *http.Request) {
		p.hit(r.Method + " login")
		if r.Method == http.MethodGet {
			http.SetCookie(w, &http.Cookie{Name: "ASP.NET_SessionId", Value: "anon", Path: "/"})
			w.Write([]byte("<html><form>login</form></html>"))
			return
		}
		if _, err := r.Cookie("ASP.NET_SessionId"); err != nil {
			http.Error(w, "no session", http.StatusBadRequest)
			return
		}
		if r.FormValue("UserName") != "12345678" || r.FormValue("Password") != "secret" {
			w.Write([]byte("<html>Invalid username or password</html>"))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "auth", Value: "ok", Path: "/"})
		http.Redirect(w, r, "/home", http.StatusFound)
	})
	mux.HandleFunc("/home", func(w http.ResponseWriter, r *http.Request) {
		p.hit("home")
	})
	mux.HandleFunc("/MyStudies", p.authed("mystudies", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>My Studies</html>"))
	}))
	mux.HandleFunc("/eStudent/", p.authed("estudent", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>eStudent</html>"))
	}))
	mux.HandleFunc("/eStudent/SM/StudentTtable10.aspx", p.authed("timetable", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Write([]byte(timetable))
			return
		}
		assert.NoError(p.t, r.ParseForm())
		p.mu.Lock()
		p.refreshForm = r.PostForm
		p.mu.Unlock()
		if p.refreshCode != http.StatusOK {
			w.WriteHeader(p.refreshCode)
			return
		}
		if p.refreshBody != "" {
			w.Write([]byte(p.refreshBody))
			return
		}
		w.Write([]byte(dated))
	}))

	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakePortal) authed(name string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p.hit(r.Method + " " + name)
		if c, err := r.Cookie("auth"); err != nil || c.Value != "ok" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

func (p *fakePortal) hit(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hits[name]++
}

func (p *fakePortal) count(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hits[name]
}

func (p *fakePortal) lastRefresh() url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refreshForm
}

func (p *fakePortal) endpoints() Endpoints {
	return Endpoints{
		Login:     p.server.URL + "/Auth/Logon",
		MyStudies: p.server.URL + "/MyStudies",
		EStudent:  p.server.URL + "/eStudent/",
		Timetable: p.server.URL + "/eStudent/SM/StudentTtable10.aspx?r=%23CU.ESTU.STUDENT",
	}
}

func newTestSession(t *testing.T, p *fakePortal) *Session {
	s, err := NewSession(WithEndpoints(p.endpoints()))
	require.NoError(t, err)
	return s
}

func TestLogin_Success(t *testing.T) {
	p := newFakePortal(t)
	s := newTestSession(t, p)

	require.NoError(t, s.Login("12345678", "secret"))
	assert.Equal(t, 1, p.count("GET login"))
	assert.Equal(t, 1, p.count("POST login"))
	assert.Zero(t, p.count("home"), "login redirect must not be followed")

	_, err := s.TimetablePage()
	assert.NoError(t, err)
}

func TestLogin_Rejected(t *testing.T) {
	p := newFakePortal(t)
	s := newTestSession(t, p)

	err := s.Login("12345678", "wrong")
	var authErr *AuthenticationError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, http.StatusOK, authErr.StatusCode)
	assert.Contains(t, string(authErr.Body), "Invalid username or password")

	_, err = s.TimetablePage()
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
}

func TestTimetablePage_Cached(t *testing.T) {
	p := newFakePortal(t)
	s := newTestSession(t, p)
	require.NoError(t, s.Login("12345678", "secret"))

	first, err := s.TimetablePage()
	require.NoError(t, err)
	second, err := s.TimetablePage()
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, p.count("POST mystudies"))
	assert.Equal(t, 1, p.count("GET estudent"))
	assert.Equal(t, 1, p.count("GET timetable"))
	assert.Equal(t, time.Date(2017, 5, 1, 0, 0, 0, 0, time.UTC), s.MondayDate())
}

func TestTimetable_ReparsesCachedPage(t *testing.T) {
	p := newFakePortal(t)
	s := newTestSession(t, p)
	require.NoError(t, s.Login("12345678", "secret"))

	first, err := s.Timetable()
	require.NoError(t, err)
	second, err := s.Timetable()
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotSame(t, first["COMP1000"], second["COMP1000"])
	assert.Equal(t, 1, p.count("GET timetable"))
}

func TestSetTimetablePageDated(t *testing.T) {
	p := newFakePortal(t)
	s := newTestSession(t, p)
	require.NoError(t, s.Login("12345678", "secret"))

	page, err := s.SetTimetablePageDated(time.Date(2017, 5, 9, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Contains(t, page, "CHEM1001")

	assert.Equal(t, "9-May-2017", p.lastRefresh().Get("ctl00$Content$ctlFilter$TxtStartDt"))
	assert.Equal(t, "Refresh", p.lastRefresh().Get("ctl00$Content$ctlFilter$BtnSearch"))
	assert.Equal(t, "8D0E13E6", p.lastRefresh().Get("__VIEWSTATEGENERATOR"))
	assert.NotEmpty(t, p.lastRefresh().Get("__VIEWSTATE"))
	assert.NotEmpty(t, p.lastRefresh().Get("__EVENTVALIDATION"))

	// the echoed start date (10-May-2017) decides the week, not the requested one
	assert.Equal(t, time.Date(2017, 5, 8, 0, 0, 0, 0, time.UTC), s.MondayDate())

	tt, err := s.ProcessTimetablePage()
	require.NoError(t, err)
	assert.Equal(t, []string{"CHEM1001", "MATH1004"}, tt.Codes())
	assert.Equal(t, "9-May-2017", tt["CHEM1001"].Classes[0].Date)
	assert.Equal(t, "16:00", tt["CHEM1001"].Classes[0].Start)
	assert.Equal(t, "12-May-2017", tt["MATH1004"].Classes[0].Date)
}

func TestSetTimetablePageDated_StatusError(t *testing.T) {
	p := newFakePortal(t)
	p.refreshCode = http.StatusInternalServerError
	s := newTestSession(t, p)
	require.NoError(t, s.Login("12345678", "secret"))

	before, err := s.TimetablePage()
	require.NoError(t, err)

	_, err = s.SetTimetablePageDated(time.Date(2017, 5, 9, 0, 0, 0, 0, time.UTC))
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)

	after, err := s.TimetablePage()
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, time.Date(2017, 5, 1, 0, 0, 0, 0, time.UTC), s.MondayDate())
}

func TestSetTimetablePageDated_BadEcho(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		notFound bool
	}{
		{"missing start date field", "<html><body>no filter</body></html>", true},
		{"unparsable start date", `<html><input name="ctl00$Content$ctlFilter$TxtStartDt" value="2017-05-10"></html>`, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := newFakePortal(t)
			p.refreshBody = tc.body
			s := newTestSession(t, p)
			require.NoError(t, s.Login("12345678", "secret"))

			before, err := s.TimetablePage()
			require.NoError(t, err)

			_, err = s.SetTimetablePageDated(time.Date(2017, 5, 9, 0, 0, 0, 0, time.UTC))
			require.Error(t, err)
			assert.Equal(t, tc.notFound, errors.Is(err, ErrElementNotFound))

			after, err := s.TimetablePage()
			require.NoError(t, err)
			assert.Equal(t, before, after)
			assert.Equal(t, time.Date(2017, 5, 1, 0, 0, 0, 0, time.UTC), s.MondayDate())
		})
	}
}

func TestTimetableWeeks(t *testing.T) {
	p := newFakePortal(t)
	s := newTestSession(t, p)
	require.NoError(t, s.Login("12345678", "secret"))

	tt, err := s.TimetableWeeks(time.Time{}, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"CHEM1001", "COMP1000", "MATH1004"}, tt.Codes())
	assert.Len(t, tt["MATH1004"].Classes, 3)
	assert.Equal(t, "8-May-2017", p.lastRefresh().Get("ctl00$Content$ctlFilter$TxtStartDt"))
}

func TestTimetableWeeks_FromDate(t *testing.T) {
	p := newFakePortal(t)
	s := newTestSession(t, p)
	require.NoError(t, s.Login("12345678", "secret"))

	tt, err := s.TimetableWeeks(time.Date(2017, 5, 10, 0, 0, 0, 0, time.UTC), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"CHEM1001", "MATH1004"}, tt.Codes())
	assert.Equal(t, "10-May-2017", p.lastRefresh().Get("ctl00$Content$ctlFilter$TxtStartDt"))
	assert.Equal(t, 1, p.count("GET timetable"))
	assert.Equal(t, 1, p.count("POST timetable"))
}

func TestTimetableWeeks_InvalidCount(t *testing.T) {
	p := newFakePortal(t)
	s := newTestSession(t, p)
	require.NoError(t, s.Login("12345678", "secret"))

	_, err := s.TimetableWeeks(time.Time{}, 0)
	assert.Error(t, err)
	assert.Zero(t, p.count("GET timetable"))
}

func TestProcessTimetablePage_NoPage(t *testing.T) {
	s, err := NewSession()
	require.NoError(t, err)
	_, err = s.ProcessTimetablePage()
	assert.Error(t, err)
}

func TestDefaultDate(t *testing.T) {
	page := func(options string) string {
		return `<html><select id="ctl00_Content_ctlFilter_CboStudyPeriodFilter_elbList">` + options + `</select></html>`
	}

	got, err := defaultDate(page(`<option value="">All</option>
		<option value="2017-2-Jul 31, 2017">Semester 2 2017</option>
		<option selected="selected" value="2017-1-May 01, 2017">Semester 1 2017</option>`))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2017, 5, 1, 0, 0, 0, 0, time.UTC), got)

	got, err = defaultDate(page(`<option value="2017-2-Jul 31, 2017">Semester 2 2017</option>
		<option value="2017-1-May 01, 2017">Semester 1 2017</option>`))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2017, 5, 1, 0, 0, 0, 0, time.UTC), got)

	_, err = defaultDate(page(`<option value="2017-1-May 01, 2017">Semester 1 2017</option>`))
	assert.ErrorIs(t, err, ErrElementNotFound)
}

func TestParseStudyPeriod(t *testing.T) {
	got, err := parseStudyPeriod("2017-1-May 01, 2017")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2017, 5, 1, 0, 0, 0, 0, time.UTC), got)

	_, err = parseStudyPeriod("Semester 1")
	assert.Error(t, err)
}
