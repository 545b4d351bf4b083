package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/cxr-association-engine/internal/domain"
)

const maxPredictorResponseBytes = 1 << 20

// PredictorConfig represents configuration for the condition predictor client.
type PredictorConfig struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	RateLimit    int    // requests per second
	MaxFailures  uint32 // consecutive failures before the breaker opens
	OpenInterval time.Duration
}

// PredictorClient sends images to an external condition predictor (image heuristics,
// a deep classifier or a vision-language model) and returns the finding labels it
// reports. Calls are rate limited and guarded by a circuit breaker.
type PredictorClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	rateLimit  *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *logrus.Logger
}

type predictResponse struct {
	Conditions []string `json:"conditions"`
}

// requestError is a rejection of the request itself; it does not count against the
// predictor's health.
type requestError struct {
	status int
	body   string
}

func (e *requestError) Error() string {
	return fmt.Sprintf("predictor rejected request with status %d: %s", e.status, e.body)
}

// NewPredictorClient creates a new predictor client.
func NewPredictorClient(config PredictorConfig, logger *logrus.Logger) *PredictorClient {
	if logger == nil {
		logger = logrus.New()
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 5
	}
	if config.MaxFailures == 0 {
		config.MaxFailures = 5
	}
	if config.OpenInterval == 0 {
		config.OpenInterval = 60 * time.Second
	}

	c := &PredictorClient{
		endpoint: strings.TrimRight(config.BaseURL, "/") + "/predict",
		apiKey:   config.APIKey,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		logger:    logger,
	}

	maxFailures := config.MaxFailures
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ConditionPredictor",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     config.OpenInterval,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			var reqErr *requestError
			return err == nil || errors.As(err, &reqErr) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
	return c
}

// NewPredictorClientFromDomain adapts the application configuration.
func NewPredictorClientFromDomain(cfg domain.PredictorConfig, logger *logrus.Logger) *PredictorClient {
	return NewPredictorClient(PredictorConfig{
		BaseURL:      cfg.BaseURL,
		APIKey:       cfg.APIKey,
		Timeout:      cfg.Timeout,
		RateLimit:    cfg.RateLimit,
		MaxFailures:  cfg.MaxFailures,
		OpenInterval: cfg.OpenInterval,
	}, logger)
}

// State reports the circuit breaker state.
func (c *PredictorClient) State() gobreaker.State {
	return c.breaker.State()
}

// PredictConditions implements domain.ConditionPredictor. It returns an error
// wrapping domain.ErrPredictorUnavailable while the breaker is open.
func (c *PredictorClient) PredictConditions(ctx context.Context, image []byte, contentType string) ([]string, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("image cannot be empty")
	}

	if err := c.rateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.predict(ctx, image, contentType)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", domain.ErrPredictorUnavailable, err)
	}
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

func (c *PredictorClient) predict(ctx context.Context, image []byte, contentType string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("predictor request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPredictorResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read predictor response: %w", err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("predictor returned status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, &requestError{status: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}

	var out predictResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode predictor response: %w", err)
	}

	conditions := make([]string, 0, len(out.Conditions))
	for _, c := range out.Conditions {
		if c = strings.TrimSpace(c); c != "" {
			conditions = append(conditions, c)
		}
	}
	return conditions, nil
}
