// Package alertsink forwards IDS alerts to an external SIEM over HTTP.
package alertsink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/invisible-tech/hybrid-ids/internal/types"
	"github.com/invisible-tech/hybrid-ids/internal/version"
)

// ErrNotConfigured is returned when the endpoint or API key is missing.
var ErrNotConfigured = errors.New("alert sink not configured")

// Client handles communication with the SIEM alert API
type Client struct {
	apiEndpoint string
	apiKey      string
	source      string
	httpClient  *http.Client
	log         *logrus.Logger
}

// Config for the alert sink client
type Config struct {
	APIEndpoint string
	APIKey      string
	Source      string
	Timeout     time.Duration
}

// NewClient creates a new alert sink client
func NewClient(cfg Config, log *logrus.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Source == "" {
		cfg.Source = "hybrid-ids"
	}

	return &Client{
		apiEndpoint: strings.TrimRight(cfg.APIEndpoint, "/"),
		apiKey:      cfg.APIKey,
		source:      cfg.Source,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		log: log,
	}
}

// alertEnvelope is the wire form of a forwarded alert.
type alertEnvelope struct {
	Source string       `json:"source"`
	Alert  *types.Alert `json:"alert"`
}

// SendAlert sends a security alert to the SIEM
func (c *Client) SendAlert(ctx context.Context, alert *types.Alert) error {
	if !c.configured() {
		return ErrNotConfigured
	}

	url := fmt.Sprintf("%s/api/v1/alerts", c.apiEndpoint)
	return c.sendJSON(ctx, url, alertEnvelope{Source: c.source, Alert: alert})
}

func (c *Client) configured() bool {
	return c.apiEndpoint != "" && c.apiKey != ""
}

// sendJSON sends a JSON payload to the API
func (c *Client) sendJSON(ctx context.Context, url string, payload any) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	c.log.WithFields(logrus.Fields{
		"url":    url,
		"status": resp.StatusCode,
	}).Debug("Alert delivered to SIEM")

	return nil
}

// HealthCheck checks if the SIEM API is reachable
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.configured() {
		return ErrNotConfigured
	}

	url := fmt.Sprintf("%s/health", c.apiEndpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to check health: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status: %d", resp.StatusCode)
	}

	return nil
}
