// Package mpk fetches live vehicle positions from the MPK Wrocław API.
package mpk

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/mpyk/mpyk/pkg/errors"
	"github.com/mpyk/mpyk/pkg/retry"
	"github.com/mpyk/mpyk/pkg/types"
)

// DefaultURL is the public position endpoint
const DefaultURL = "https://mpk.wroc.pl/bus_position"

// maxResponseSize bounds the body read from the API
const maxResponseSize = 16 << 20

// Config contains client configuration
type Config struct {
	URL       string
	Timeout   time.Duration
	BusLines  []string
	TramLines []string
	// Retry bounds the attempts within one GetAllPositions call. The zero
	// value makes a single attempt.
	Retry retry.Config
	// Now stamps fetched positions; the API carries no timestamps
	Now func() time.Time
}

// Client implements types.PositionSource over HTTP
type Client struct {
	config     Config
	httpClient *http.Client
	form       string
	retryer    *retry.Retryer
	logger     *slog.Logger
}

// vehicle is one element of the API response
type vehicle struct {
	Name string      `json:"name"`
	Type string      `json:"type"`
	X    float64     `json:"x"`
	Y    float64     `json:"y"`
	K    json.Number `json:"k"`
}

// NewClient creates a client polling the configured lines
func NewClient(config Config, logger *slog.Logger) (*Client, error) {
	if config.URL == "" {
		config.URL = DefaultURL
	}
	if _, err := url.ParseRequestURI(config.URL); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidConfig, "invalid source url").
			WithComponent("mpk").WithContext("url", config.URL)
	}
	if len(config.BusLines) == 0 && len(config.TramLines) == 0 {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "at least one line is required").
			WithComponent("mpk")
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}

	logger = logger.With("component", "mpk")
	retryer := retry.New(config.Retry).WithOnRetry(func(attempt int, err error, delay time.Duration) {
		logger.Debug("Retrying fetch", "attempt", attempt, "delay", delay.String(), "error", err)
	})

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		form:       encodeLines(config.BusLines, config.TramLines),
		retryer:    retryer,
		logger:     logger,
	}, nil
}

// GetAllPositions returns the current position of every vehicle on the
// configured lines, all stamped with the fetch time in UTC
func (c *Client) GetAllPositions(ctx context.Context) ([]types.Position, error) {
	var body []byte
	err := c.retryer.Do(ctx, func(ctx context.Context) error {
		var err error
		body, err = c.post(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	fetchedAt := c.config.Now().UTC()

	var vehicles []vehicle
	if err := json.Unmarshal(body, &vehicles); err != nil {
		return nil, c.fetchError(err, "failed to decode response")
	}

	positions := make([]types.Position, 0, len(vehicles))
	skipped := 0
	for _, v := range vehicles {
		kind, err := types.ParseVehicleType(v.Type)
		if err != nil || v.K.String() == "" {
			skipped++
			continue
		}
		positions = append(positions, types.Position{
			VehicleID: v.K.String(),
			Line:      v.Name,
			Type:      kind,
			Latitude:  v.X,
			Longitude: v.Y,
			Timestamp: fetchedAt,
		})
	}
	if skipped > 0 {
		c.logger.Debug("Skipped unrecognised vehicles", "skipped", skipped, "total", len(vehicles))
	}

	return positions, nil
}

func (c *Client) post(ctx context.Context) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, strings.NewReader(c.form))
	if err != nil {
		return nil, c.fetchError(err, "failed to create request")
	}
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	request.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, c.fetchError(err, "request failed")
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxResponseSize))
	if err != nil {
		return nil, c.fetchError(err, "failed to read response body")
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		ferr := c.fetchError(fmt.Errorf("unexpected status %d", response.StatusCode), "request rejected").
			WithDetail("status", response.StatusCode)
		// 4xx will not clear within this poll
		ferr.Retryable = response.StatusCode >= 500 || response.StatusCode == http.StatusTooManyRequests
		return nil, ferr
	}

	return body, nil
}

func (c *Client) fetchError(cause error, msg string) *errors.CollectorError {
	return errors.Wrap(cause, errors.ErrCodeTransientFetch, msg).
		WithComponent("mpk").WithOperation("get_all_positions").
		WithContext("url", c.config.URL)
}

// encodeLines builds the form body the API expects:
// busList[bus][]=a&busList[tram][]=33
func encodeLines(busLines, tramLines []string) string {
	form := url.Values{}
	for _, line := range busLines {
		form.Add("busList[bus][]", strings.ToLower(line))
	}
	for _, line := range tramLines {
		form.Add("busList[tram][]", strings.ToLower(line))
	}
	return form.Encode()
}
