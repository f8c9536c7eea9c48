// Package climate resolves a location string to outdoor design conditions,
// either from the external climate-data service or from a bundled table of
// common US locations when no endpoint is configured.
package climate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"loadplan/internal/config"
	"loadplan/internal/domain"
	"loadplan/internal/port"
)

// Client implements port.ClimateSource against the climate-data service.
type Client struct {
	endpoint string
	client   *http.Client
}

// NewClient creates a climate service client.
func NewClient(cfg config.ClimateConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		client:   &http.Client{Timeout: timeout},
	}
}

// NewSource returns the configured climate source: the HTTP client when an
// endpoint is set, the bundled table otherwise.
func NewSource(cfg config.ClimateConfig) port.ClimateSource {
	if cfg.Endpoint != "" {
		return NewClient(cfg)
	}
	return NewStaticSource()
}

// DesignConditions fetches design conditions for a location. A 404 from the
// service maps to domain.ErrClimateLocationUnknown.
func (c *Client) DesignConditions(ctx context.Context, location string) (*domain.ClimateDesignData, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, fmt.Errorf("climate.Client: empty location: %w", domain.ErrClimateLocationUnknown)
	}

	reqURL := c.endpoint + "/design-conditions?location=" + url.QueryEscape(location)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling climate service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("climate.Client: no design conditions for %q: %w", location, domain.ErrClimateLocationUnknown)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("climate service error (status %d): %s", resp.StatusCode, string(body))
	}

	var data domain.ClimateDesignData
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("unmarshaling response: %w", err)
	}
	if data.Location == "" {
		data.Location = location
	}
	return &data, nil
}
