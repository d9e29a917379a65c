package condition

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"triggerpay/internal/model"
)

const maxResponseBytes = 1 << 20

// FlightAPIConfig configures the flight status client.
type FlightAPIConfig struct {
	BaseURL      string
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	HTTPClient   *http.Client
}

// FlightAPI reads flight status from GET {base}/api/flight/{number}.
type FlightAPI struct {
	cfg    FlightAPIConfig
	client *http.Client
	logger *zap.Logger
}

func NewFlightAPI(cfg FlightAPIConfig, logger *zap.Logger) (*FlightAPI, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("flight api url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse flight api url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &FlightAPI{cfg: cfg, client: client, logger: logger}, nil
}

// Fetch returns the current status of a flight. Transient failures are
// retried with backoff; 4xx answers and malformed bodies are not.
func (f *FlightAPI) Fetch(ctx context.Context, flightNumber string) (model.Observation, error) {
	var obs model.Observation
	err := withRetry(ctx, f.cfg.MaxRetries, f.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		obs, err = f.fetchOnce(ctx, flightNumber)
		if err != nil {
			f.logger.Warn("flight status fetch failed", zap.Error(err), zap.String("flight", flightNumber))
		}
		return err
	})
	return obs, err
}

func (f *FlightAPI) fetchOnce(ctx context.Context, flightNumber string) (model.Observation, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	endpoint := f.cfg.BaseURL + "/api/flight/" + url.PathEscape(flightNumber)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.Observation{}, permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return model.Observation{}, fmt.Errorf("get flight %s: %w", flightNumber, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return model.Observation{}, fmt.Errorf("read flight %s: %w", flightNumber, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{Key: flightNumber, Code: resp.StatusCode}
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return model.Observation{}, permanent(statusErr)
		}
		return model.Observation{}, statusErr
	}

	obs, err := parseFlight(flightNumber, body)
	if err != nil {
		return model.Observation{}, permanent(err)
	}
	return obs, nil
}

func parseFlight(flightNumber string, body []byte) (model.Observation, error) {
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return model.Observation{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	status, ok := fields["status"].(string)
	if !ok || status == "" {
		return model.Observation{}, fmt.Errorf("%w: missing status for %s", ErrMalformed, flightNumber)
	}
	updatedAt, _ := fields["updated_at"].(string)

	raw := make([]byte, len(body))
	copy(raw, body)

	return model.Observation{
		Key:       flightNumber,
		Status:    status,
		UpdatedAt: updatedAt,
		Fields:    fields,
		Raw:       raw,
	}, nil
}
