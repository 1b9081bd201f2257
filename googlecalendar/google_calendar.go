// Package googlecalendar pushes parsed timetables into Google Calendar.
package googlecalendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"estudent-scraper/config"
)

// Client wraps a Calendar API service.
type Client struct {
	service *calendar.Service
	logger  *zap.Logger
}

func NewClient(service *calendar.Service, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{service: service, logger: logger}
}

// Prompt asks the user to authorize the application and returns the code they paste back.
type Prompt struct {
	In  io.Reader
	Out io.Writer
}

func (p Prompt) authCode(authURL string) (string, error) {
	fmt.Fprintf(p.Out, "Go to the following link in your browser then type the authorization code: \n%v\n", authURL)
	var code string
	if _, err := fmt.Fscanln(p.In, &code); err != nil {
		return "", fmt.Errorf("reading authorization code: %w", err)
	}
	return code, nil
}

func oauthConfig(cfg *config.Config) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURI,
		Scopes:       []string{calendar.CalendarScope},
		Endpoint:     google.Endpoint,
	}
}

// GetCalendarService returns an authorized Calendar service. The OAuth token is read from
// cfg.TokenFile; when it is missing the user is prompted and the new token is saved.
func GetCalendarService(ctx context.Context, cfg *config.Config, prompt Prompt, logger *zap.Logger) (*calendar.Service, error) {
	oc := oauthConfig(cfg)
	tok, err := tokenFromFile(cfg.TokenFile)
	if err != nil {
		logger.Info("no cached Google token, requesting a new one", zap.String("token_file", cfg.TokenFile))
		code, err := prompt.authCode(oc.AuthCodeURL("state-token", oauth2.AccessTypeOffline))
		if err != nil {
			return nil, err
		}
		tok, err = oc.Exchange(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("unable to retrieve token from web: %w", err)
		}
		if err := saveToken(cfg.TokenFile, tok); err != nil {
			return nil, err
		}
		logger.Info("saved Google token", zap.String("token_file", cfg.TokenFile))
	}

	srv, err := calendar.NewService(ctx, option.WithHTTPClient(oc.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Calendar client: %w", err)
	}
	return srv, nil
}

func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("decoding token file %s: %w", file, err)
	}
	return tok, nil
}

func saveToken(path string, token *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to cache oauth token: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

// NewCalendar creates a calendar named name and returns its id.
func (c *Client) NewCalendar(name, timeZone string) (string, error) {
	created, err := c.service.Calendars.Insert(&calendar.Calendar{
		Summary:  name,
		TimeZone: timeZone,
	}).Do()
	if err != nil {
		return "", fmt.Errorf("error creating calendar: %w", err)
	}
	c.logger.Info("calendar created", zap.String("id", created.Id), zap.String("name", name))
	return created.Id, nil
}

// PostEvent inserts event and returns the link to it.
func (c *Client) PostEvent(calendarID string, event *calendar.Event) (string, error) {
	created, err := c.service.Events.Insert(calendarID, event).Do()
	if err != nil {
		return "", fmt.Errorf("error inserting event into Google Calendar: %w", err)
	}
	c.logger.Info("event created", zap.String("summary", created.Summary), zap.String("link", created.HtmlLink))
	return created.HtmlLink, nil
}

// ClearCalendar deletes every event this tool created inside window.
func (c *Client) ClearCalendar(calendarID string, window Window) error {
	events, err := c.GetAllEvents(calendarID, window)
	if err != nil {
		return err
	}
	for _, event := range events {
		if event == nil || event.Status == "cancelled" || !isManaged(event) {
			continue
		}
		if err := c.deleteEvent(calendarID, event); err != nil {
			return err
		}
	}
	c.logger.Info("calendar cleared", zap.String("calendar", calendarID))
	return nil
}

func (c *Client) deleteEvent(calendarID string, event *calendar.Event) error {
	err := c.service.Events.Delete(calendarID, event.Id).Do()
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == 410 {
		c.logger.Debug("event already deleted", zap.String("id", event.Id))
		return nil
	}
	if err != nil {
		return fmt.Errorf("error deleting event from Google Calendar: %w", err)
	}
	c.logger.Info("event deleted", zap.String("summary", event.Summary), zap.String("id", event.Id))
	return nil
}

// GetAllEvents retrieves the events this tool created inside window, following pagination.
func (c *Client) GetAllEvents(calendarID string, window Window) ([]*calendar.Event, error) {
	var allEvents []*calendar.Event
	pageToken := ""
	for {
		call := c.service.Events.List(calendarID).
			PrivateExtendedProperty(sourceProperty + "=" + sourceValue).
			PageToken(pageToken)
		if !window.From.IsZero() {
			call = call.TimeMin(window.From.Format(time.RFC3339))
		}
		if !window.To.IsZero() {
			call = call.TimeMax(window.To.Format(time.RFC3339))
		}
		events, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("error fetching events from Google Calendar: %w", err)
		}
		allEvents = append(allEvents, events.Items...)

		pageToken = events.NextPageToken
		if pageToken == "" {
			break
		}
	}
	c.logger.Debug("fetched events", zap.Int("count", len(allEvents)))
	return allEvents, nil
}
