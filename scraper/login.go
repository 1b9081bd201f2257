package scraper

import (
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

// Login authenticates the session. The portal answers a good login with a redirect;
// anything else is reported as an *AuthenticationError.
func (s *Session) Login(id, password string) error {
	// Step 1: fetch the login page so the portal sets its session cookies
	if _, _, err := s.do(http.MethodGet, s.endpoints.Login, nil, true); err != nil {
		return err
	}

	// Step 2: post the credentials without following the redirect
	form := url.Values{
		"UserName": {id},
		"Password": {password},
	}
	resp, body, err := s.do(http.MethodPost, s.endpoints.Login, form, false)
	if err != nil {
		return err
	}
	if !isRedirect(resp.StatusCode) {
		s.logger.Warn("login rejected", zap.String("user", id), zap.Int("status", resp.StatusCode))
		return &AuthenticationError{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       []byte(body),
		}
	}

	s.logger.Info("login successful", zap.String("user", id))
	return nil
}
