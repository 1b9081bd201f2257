// Package uploader publishes the generated iCalendar feed to a GitHub repository so
// calendar apps can subscribe to its raw URL.
package uploader

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"go.uber.org/zap"
)

const defaultAPIBase = "https://api.github.com"

type GitHubUploadRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
}

type contentResponse struct {
	SHA string `json:"sha"`
}

// GitHubUploader writes files through the GitHub contents API.
type GitHubUploader struct {
	Token   string
	Repo    string // owner/name
	APIBase string
	Client  *http.Client
	Logger  *zap.Logger
}

func NewGitHubUploader(token, repo string, logger *zap.Logger) *GitHubUploader {
	return &GitHubUploader{
		Token:   token,
		Repo:    repo,
		APIBase: defaultAPIBase,
		Client:  &http.Client{},
		Logger:  logger,
	}
}

// UploadFile stores filename at path in the repository, replacing the previous version.
func (u *GitHubUploader) UploadFile(path, filename, message string) error {
	fileContent, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("error reading file: %w", err)
	}

	uploadURL := fmt.Sprintf("%s/repos/%s/contents/%s", u.APIBase, u.Repo, path)
	sha, err := u.currentSHA(uploadURL)
	if err != nil {
		return err
	}

	bodyJSON, err := json.Marshal(GitHubUploadRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(fileContent),
		SHA:     sha,
	})
	if err != nil {
		return fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequest(http.MethodPut, uploadURL, bytes.NewReader(bodyJSON))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := u.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("error uploading to GitHub, status code: %d, response: %s", resp.StatusCode, string(respBody))
	}

	u.Logger.Info("feed uploaded to GitHub",
		zap.String("repo", u.Repo),
		zap.String("path", path),
		zap.Bool("replaced", sha != ""))
	return nil
}

// currentSHA returns the blob sha of the existing file, or "" when there is none.
func (u *GitHubUploader) currentSHA(contentURL string) (string, error) {
	req, err := http.NewRequest(http.MethodGet, contentURL, nil)
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	resp, err := u.do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", nil
	case resp.StatusCode >= 400:
		return "", fmt.Errorf("error looking up %s, status code: %d", contentURL, resp.StatusCode)
	}

	var existing contentResponse
	if err := json.NewDecoder(resp.Body).Decode(&existing); err != nil {
		return "", fmt.Errorf("error decoding GitHub response: %w", err)
	}
	return existing.SHA, nil
}

func (u *GitHubUploader) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+u.Token)
	req.Header.Set("Accept", "application/vnd.github+json")
	resp, err := u.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error making request: %w", err)
	}
	return resp, nil
}
