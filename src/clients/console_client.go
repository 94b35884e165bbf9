package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"handyhub-admin-console/src/internal/config"
	"handyhub-admin-console/src/internal/models"

	"github.com/sirupsen/logrus"
)

const (
	heartbeatPath        = "/api/v1/console/heartbeat"
	inactivityLogoutPath = "/api/v1/console/logout-inactivity"
	logoutPath           = "/api/v1/console/logout"
)

// ConsoleClient talks to the admin console backend on behalf of the
// inactivity guard. Every request carries the session credentials and the
// CSRF token.
type ConsoleClient struct {
	baseURL    string
	token      string
	csrfHeader string
	csrfToken  string
	httpClient *http.Client
}

// NewConsoleClient creates new console backend client
func NewConsoleClient(cfg *config.Configuration) *ConsoleClient {
	timeout := time.Duration(cfg.App.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	csrfHeader := cfg.Security.CsrfHeader
	if csrfHeader == "" {
		csrfHeader = "X-CSRF-Token"
	}

	return &ConsoleClient{
		baseURL:    strings.TrimRight(cfg.Guard.BackendUrl, "/"),
		token:      cfg.Guard.Token,
		csrfHeader: csrfHeader,
		csrfToken:  cfg.Guard.CsrfToken,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Heartbeat posts the client timestamp. Any HTTP status is a result, only
// transport failures are errors. The conflict body is decoded for 409.
func (c *ConsoleClient) Heartbeat(ctx context.Context, at time.Time) (*models.HeartbeatResult, error) {
	resp, err := c.post(ctx, heartbeatPath, models.HeartbeatRequest{Timestamp: at.UnixMilli()})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	result := &models.HeartbeatResult{StatusCode: resp.StatusCode}
	if resp.StatusCode == http.StatusConflict {
		var conflict models.SessionConflict
		if err := json.NewDecoder(resp.Body).Decode(&conflict); err != nil {
			logrus.WithError(err).Debug("Conflict response without a readable body")
		} else {
			result.Conflict = &conflict
		}
	}

	logrus.WithField("status", resp.StatusCode).Debug("Heartbeat sent")
	return result, nil
}

// ReportInactivity tells the backend the session ended because the user was
// idle.
func (c *ConsoleClient) ReportInactivity(ctx context.Context, at time.Time) error {
	resp, err := c.post(ctx, inactivityLogoutPath, models.InactivityLogoutRequest{
		Reason:    models.ReasonInactivityTimeout,
		Timestamp: at.UnixMilli(),
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return expectSuccess(resp)
}

func (c *ConsoleClient) Logout(ctx context.Context) error {
	resp, err := c.post(ctx, logoutPath, struct{}{})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return expectSuccess(resp)
}

func (c *ConsoleClient) post(ctx context.Context, path string, payload interface{}) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.csrfToken != "" {
		req.Header.Set(c.csrfHeader, c.csrfToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrBackendUnavailable, err)
	}
	return resp, nil
}

func expectSuccess(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return fmt.Errorf("console backend returned status: %d", resp.StatusCode)
}
