package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Username string `json:"username"`
	Password string `json:"password"`

	GoogleClientID     string `json:"google_client_id"`
	GoogleClientSecret string `json:"google_client_secret"`
	GoogleRedirectURI  string `json:"google_redirect_uri"`
	GoogleCalendarID   string `json:"google_calendar_id"`
	TokenFile          string `json:"token_file"`

	TimeZone string `json:"time_zone"`
	ICSPath  string `json:"ics_path"`

	GithubToken string `json:"github_token"`
	GithubRepo  string `json:"github_repo"`
	GithubPath  string `json:"github_path"`

	LogLevel string `json:"log_level"`
	LogPath  string `json:"log_path"`
}

// envOverrides maps environment variables to the fields they replace.
func (c *Config) envOverrides() map[string]*string {
	return map[string]*string{
		"ESTUDENT_USERNAME":    &c.Username,
		"ESTUDENT_PASSWORD":    &c.Password,
		"GOOGLE_CLIENT_ID":     &c.GoogleClientID,
		"GOOGLE_CLIENT_SECRET": &c.GoogleClientSecret,
		"GOOGLE_REDIRECT_URI":  &c.GoogleRedirectURI,
		"GOOGLE_CALENDAR_ID":   &c.GoogleCalendarID,
		"GOOGLE_TOKEN_FILE":    &c.TokenFile,
		"TIMEZONE":             &c.TimeZone,
		"ICS_PATH":             &c.ICSPath,
		"GITHUB_TOKEN":         &c.GithubToken,
		"GITHUB_REPO":          &c.GithubRepo,
		"GITHUB_PATH":          &c.GithubPath,
		"LOG_LEVEL":            &c.LogLevel,
		"LOG_PATH":             &c.LogPath,
	}
}

// LoadConfig reads filename, if it exists, and then applies environment overrides.
// A .env file in the working directory is loaded into the environment first.
func LoadConfig(filename string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	var cfg Config
	file, err := os.Open(filename)
	switch {
	case err == nil:
		defer file.Close()
		if err := json.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", filename, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	for name, field := range cfg.envOverrides() {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*field = v
		}
	}
	cfg.setDefaults()
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.TimeZone == "" {
		c.TimeZone = "Australia/Perth"
	}
	if c.GoogleRedirectURI == "" {
		c.GoogleRedirectURI = "urn:ietf:wg:oauth:2.0:oob"
	}
	if c.TokenFile == "" {
		c.TokenFile = "token.json"
	}
	if c.ICSPath == "" {
		c.ICSPath = "timetable.ics"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	if c.Username == "" {
		return errors.New("username is required")
	}
	if c.Password == "" {
		return errors.New("password is required")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// ValidateGoogle checks the settings needed to talk to Google Calendar.
func (c *Config) ValidateGoogle() error {
	if c.GoogleClientID == "" || c.GoogleClientSecret == "" {
		return errors.New("google_client_id and google_client_secret are required")
	}
	return nil
}

// SyncCalendar returns the calendar to sync into, preferring override over
// google_calendar_id. There is no default.
func (c *Config) SyncCalendar(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if c.GoogleCalendarID == "" {
		return "", errors.New("google_calendar_id is required; create a dedicated calendar with new-calendar")
	}
	return c.GoogleCalendarID, nil
}

// ValidateGithub checks the settings needed to publish the iCalendar feed.
func (c *Config) ValidateGithub() error {
	if c.GithubToken == "" || c.GithubRepo == "" || c.GithubPath == "" {
		return errors.New("github_token, github_repo and github_path are required")
	}
	return nil
}

// Location returns the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid time zone %q: %w", c.TimeZone, err)
	}
	return loc, nil
}
