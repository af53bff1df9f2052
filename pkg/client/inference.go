// Package client provides an HTTP client for a remote forecasting inference
// service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// InferenceClient calls a pretrained forecasting model served over HTTP.
// It is safe for concurrent use by multiple goroutines.
type InferenceClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewInferenceClient creates a client for the service at baseURL, which
// should include the scheme and host (e.g., "http://localhost:8000").
// Forecast requests time out after 30 seconds.
func NewInferenceClient(baseURL string) *InferenceClient {
	return NewInferenceClientWithTimeout(baseURL, 30*time.Second)
}

// NewInferenceClientWithTimeout creates a client with a custom timeout.
func NewInferenceClientWithTimeout(baseURL string, timeout time.Duration) *InferenceClient {
	return &InferenceClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ForecastRequest is the JSON body of POST /v1/timeseries/forecast.
type ForecastRequest struct {
	Model   string    `json:"model"`
	History []float64 `json:"history"`
	Horizon int       `json:"horizon"`
}

// ForecastResult is the JSON response of POST /v1/timeseries/forecast.
type ForecastResult struct {
	Name     string    `json:"name"`
	Forecast []float64 `json:"forecast"`
	Message  string    `json:"message,omitempty"`
}

// Forecast asks the service for horizon values following history.
func (c *InferenceClient) Forecast(ctx context.Context, model string, history []float64, horizon int) ([]float64, error) {
	if len(history) == 0 {
		return nil, errors.New("history cannot be empty")
	}
	if horizon < 1 {
		return nil, fmt.Errorf("horizon must be >= 1, got %d", horizon)
	}

	u, err := c.endpoint("/v1/timeseries/forecast")
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(ForecastRequest{Model: model, History: history, Horizon: horizon})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var result ForecastResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Forecast) != horizon {
		return nil, fmt.Errorf("service returned %d values, want %d: %s", len(result.Forecast), horizon, result.Message)
	}
	return result.Forecast, nil
}

// Health checks GET /healthz.
func (c *InferenceClient) Health(ctx context.Context) error {
	u, err := c.endpoint("/healthz")
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return nil
}

func (c *InferenceClient) endpoint(path string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	u.Path = path
	return u.String(), nil
}
