package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cxr-association-engine/internal/domain"
	"github.com/cxr-association-engine/internal/middleware"
)

// ErrTimeout is the error code for requests that ran past their deadline
const ErrTimeout = "REQUEST_TIMEOUT"

// RuleView is a rule as rendered by the API, metrics rounded to 3 decimals
type RuleView struct {
	Rule              string        `json:"rule"`
	Antecedent        []domain.Item `json:"antecedent"`
	Consequent        []domain.Item `json:"consequent"`
	AntecedentSupport float64       `json:"antecedent_support"`
	ConsequentSupport float64       `json:"consequent_support"`
	Support           float64       `json:"support"`
	Confidence        float64       `json:"confidence"`
	Lift              float64       `json:"lift"`
	Leverage          float64       `json:"leverage"`
}

// NewRuleView renders r for API output
func NewRuleView(r domain.Rule) RuleView {
	return RuleView{
		Rule:              r.String(),
		Antecedent:        r.Antecedent,
		Consequent:        r.Consequent,
		AntecedentSupport: round3(r.AntecedentSupport),
		ConsequentSupport: round3(r.ConsequentSupport),
		Support:           round3(r.Support),
		Confidence:        round3(r.Confidence),
		Lift:              round3(r.Lift),
		Leverage:          round3(r.Leverage),
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// RetrainRequest overrides the configured mining parameters for one retrain
type RetrainRequest struct {
	MinSupport   *float64 `json:"min_support,omitempty"`
	Metric       *string  `json:"metric,omitempty"`
	MinThreshold *float64 `json:"min_threshold,omitempty"`
	MaxLen       *int     `json:"max_len,omitempty"`
}

// Params merges the overrides onto base
func (r RetrainRequest) Params(base domain.MiningParams) (domain.MiningParams, error) {
	params := base
	if r.MinSupport != nil {
		params.MinSupport = *r.MinSupport
	}
	if r.Metric != nil {
		metric, err := domain.ParseMetric(*r.Metric)
		if err != nil {
			return params, err
		}
		params.Metric = metric
	}
	if r.MinThreshold != nil {
		params.MinThreshold = *r.MinThreshold
	}
	if r.MaxLen != nil {
		params.MaxLen = *r.MaxLen
	}
	return params, params.Validate()
}

// handleQuery applies the rule store to observed findings
func (s *Server) handleQuery(c *gin.Context) {
	var req domain.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, &domain.QueryError{Message: err.Error()})
		return
	}

	result, err := s.service.Query(c.Request.Context(), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleAnalyze sends an uploaded image to the condition predictor and queries the
// rule store with the findings it reports
func (s *Server) handleAnalyze(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.Server.MaxUploadBytes)

	header, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(c, err)
			return
		}
		s.respondError(c, &domain.QueryError{Message: fmt.Sprintf("multipart field 'image' is required: %v", err)})
		return
	}
	file, err := header.Open()
	if err != nil {
		s.respondError(c, fmt.Errorf("failed to open upload: %w", err))
		return
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		s.respondError(c, fmt.Errorf("failed to read upload: %w", err))
		return
	}
	if len(image) == 0 {
		s.respondError(c, &domain.QueryError{Message: "uploaded image is empty"})
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(image)
	}

	result, err := s.service.Diagnose(c.Request.Context(), image, contentType, c.PostFormArray("severe"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleRules lists association rules
func (s *Server) handleRules(c *gin.Context) {
	limit, err := intQuery(c, "limit", 0)
	if err != nil {
		s.respondError(c, err)
		return
	}
	minConfidence, err := floatQuery(c, "min_confidence", 0)
	if err != nil {
		s.respondError(c, err)
		return
	}

	rules := s.service.Rules(limit, minConfidence)
	views := make([]RuleView, len(rules))
	for i, r := range rules {
		views[i] = NewRuleView(r)
	}
	c.JSON(http.StatusOK, gin.H{
		"snapshot_id": s.service.Info().SnapshotID,
		"count":       len(views),
		"rules":       views,
	})
}

// handleItemsets lists frequent itemsets
func (s *Server) handleItemsets(c *gin.Context) {
	minSize, err := intQuery(c, "min_size", 1)
	if err != nil {
		s.respondError(c, err)
		return
	}

	itemsets := s.service.Itemsets(minSize)
	c.JSON(http.StatusOK, gin.H{
		"snapshot_id": s.service.Info().SnapshotID,
		"count":       len(itemsets),
		"itemsets":    itemsets,
	})
}

// handleModelInfo describes the served rule store
func (s *Server) handleModelInfo(c *gin.Context) {
	c.JSON(http.StatusOK, s.service.Info())
}

// handleRetrain re-mines the rule store from the configured dataset
func (s *Server) handleRetrain(c *gin.Context) {
	var req RetrainRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			s.respondError(c, domain.NewDataError("body", err.Error()))
			return
		}
	}
	params, err := req.Params(s.config.Mining.Params())
	if err != nil {
		s.respondError(c, err)
		return
	}

	report, err := s.service.Retrain(c.Request.Context(), nil, params)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// respondError maps typed domain errors onto HTTP statuses
func (s *Server) respondError(c *gin.Context, err error) {
	code := domain.ErrorCode(err)
	status := statusFor(code)
	if errors.Is(err, context.DeadlineExceeded) {
		code, status = ErrTimeout, http.StatusGatewayTimeout
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		code, status = domain.ErrInvalidInput, http.StatusRequestEntityTooLarge
	}

	details := ""
	var noPatterns *domain.NoFrequentPatternsError
	if errors.As(err, &noPatterns) {
		details = "lower min_support and retry"
	}

	entry := s.logger.WithFields(logrus.Fields{
		"correlation_id": c.GetString(middleware.CorrelationIDKey),
		"code":           code,
		"status":         status,
	}).WithError(err)
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Debug("Request rejected")
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, domain.NewAPIError(code, err.Error(), details, c.GetString(middleware.CorrelationIDKey)))
}

func statusFor(code string) int {
	switch code {
	case domain.ErrInvalidInput, domain.ErrData:
		return http.StatusBadRequest
	case domain.ErrNoFrequentPatterns:
		return http.StatusUnprocessableEntity
	case domain.ErrRetrainInProgress:
		return http.StatusConflict
	case domain.ErrPredictor, domain.ErrModelLoad, domain.ErrArtifactUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func intQuery(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, &domain.QueryError{Message: fmt.Sprintf("%s must be a non-negative integer", key)}
	}
	return v, nil
}

func floatQuery(c *gin.Context, key string, def float64) (float64, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || v > 1 {
		return 0, &domain.QueryError{Message: fmt.Sprintf("%s must be a number in [0,1]", key)}
	}
	return v, nil
}
