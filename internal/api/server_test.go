package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cxr-association-engine/internal/dataset"
	"github.com/cxr-association-engine/internal/domain"
	"github.com/cxr-association-engine/internal/metrics"
	"github.com/cxr-association-engine/internal/service"
)

// stubPredictor returns fixed conditions or a fixed error
type stubPredictor struct {
	conditions []string
	err        error
	got        []byte
}

func (p *stubPredictor) PredictConditions(ctx context.Context, image []byte, contentType string) ([]string, error) {
	p.got = image
	return p.conditions, p.err
}

func testConfig() *domain.Config {
	return &domain.Config{
		Server: domain.ServerConfig{
			RequestTimeout: 5 * time.Second,
			MaxUploadBytes: 1 << 20,
		},
		Mining: domain.MiningConfig{
			MinSupport:   0.5,
			Metric:       "confidence",
			MinThreshold: 0.6,
		},
		Logging: domain.LoggingConfig{Level: "error"},
	}
}

func setupServer(t *testing.T, cfg *domain.Config, predictor domain.ConditionPredictor) (*Server, *service.ModelService) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel) // Suppress logs during testing

	m := metrics.New()
	svc, err := service.NewModelService(service.Options{
		Source: dataset.NewStaticSource("scenario", []domain.Transaction{
			{"A", "B"},
			{"A", "B", "C"},
			{"A"},
			{"B", "C"},
		}),
		Params:    cfg.Mining.Params(),
		Predictor: predictor,
		Metrics:   m,
	}, logger)
	require.NoError(t, err)
	_, err = svc.Retrain(context.Background(), nil, domain.MiningParams{})
	require.NoError(t, err)

	return NewServer(cfg, svc, m, logger), svc
}

func do(t *testing.T, s *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeAPIError(t *testing.T, w *httptest.ResponseRecorder) domain.APIError {
	t.Helper()
	var apiErr domain.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	return apiErr
}

func TestHealth(t *testing.T) {
	s, svc := setupServer(t, testConfig(), nil)

	w := do(t, s, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, true, body["model_loaded"])
	assert.Equal(t, svc.Info().SnapshotID, body["snapshot_id"])
	assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestQuery(t *testing.T) {
	s, _ := setupServer(t, testConfig(), nil)

	w := do(t, s, jsonRequest(http.MethodPost, "/api/v1/query", `{"observed": ["C"]}`))

	require.Equal(t, http.StatusOK, w.Code)
	var result domain.QueryResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.Len(t, result.Primary, 1)
	assert.Equal(t, domain.PRIMARY, result.Primary[0].Type)
	assert.Equal(t, 75.0, result.Primary[0].Confidence)
	require.Len(t, result.Associated, 1)
	assert.Equal(t, domain.Item("B"), result.Associated[0].Condition)
	assert.Equal(t, 100.0, result.Associated[0].Confidence)
	assert.Empty(t, result.Complications)
}

func TestQuery_SevereOverride(t *testing.T) {
	s, _ := setupServer(t, testConfig(), nil)

	w := do(t, s, jsonRequest(http.MethodPost, "/api/v1/query", `{"observed": ["C"], "severe": ["B"]}`))

	require.Equal(t, http.StatusOK, w.Code)
	var result domain.QueryResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Empty(t, result.Associated)
	require.Len(t, result.Complications, 1)
	assert.Equal(t, domain.Item("B"), result.Complications[0].Condition)
}

func TestQuery_Invalid(t *testing.T) {
	s, _ := setupServer(t, testConfig(), nil)

	tests := []struct {
		name string
		body string
	}{
		{"Empty observed", `{"observed": []}`},
		{"Missing observed", `{}`},
		{"Malformed JSON", `{"observed": `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := jsonRequest(http.MethodPost, "/api/v1/query", tt.body)
			req.Header.Set("X-Correlation-ID", "corr-1")

			w := do(t, s, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			apiErr := decodeAPIError(t, w)
			assert.Equal(t, domain.ErrInvalidInput, apiErr.Code)
			assert.Equal(t, "corr-1", apiErr.RequestID)
		})
	}
}

func multipartImage(t *testing.T, field string, data []byte, severe ...string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		part, err := mw.CreateFormFile(field, "cxr.png")
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	for _, s := range severe {
		require.NoError(t, mw.WriteField("severe", s))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestAnalyze(t *testing.T) {
	predictor := &stubPredictor{conditions: []string{"C"}}
	s, _ := setupServer(t, testConfig(), predictor)

	w := do(t, s, multipartImage(t, "image", []byte("\x89PNG\r\n\x1a\nrest"), "B"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\nrest"), predictor.got)
	var result domain.QueryResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.Len(t, result.Complications, 1)
	assert.Equal(t, domain.Item("B"), result.Complications[0].Condition)
}

func TestAnalyze_Errors(t *testing.T) {
	t.Run("Missing image", func(t *testing.T) {
		s, _ := setupServer(t, testConfig(), &stubPredictor{conditions: []string{"C"}})

		w := do(t, s, multipartImage(t, "", nil))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Predictor circuit open", func(t *testing.T) {
		s, _ := setupServer(t, testConfig(), &stubPredictor{err: domain.ErrPredictorUnavailable})

		w := do(t, s, multipartImage(t, "image", []byte("img")))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, domain.ErrPredictor, decodeAPIError(t, w).Code)
	})

	t.Run("No predictor configured", func(t *testing.T) {
		s, _ := setupServer(t, testConfig(), nil)

		w := do(t, s, multipartImage(t, "image", []byte("img")))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("Upload too large", func(t *testing.T) {
		cfg := testConfig()
		cfg.Server.MaxUploadBytes = 64
		s, _ := setupServer(t, cfg, &stubPredictor{conditions: []string{"C"}})

		w := do(t, s, multipartImage(t, "image", bytes.Repeat([]byte("x"), 4096)))

		assert.Contains(t, []int{http.StatusRequestEntityTooLarge, http.StatusBadRequest}, w.Code)
	})
}

func TestRules(t *testing.T) {
	s, svc := setupServer(t, testConfig(), nil)

	w := do(t, s, httptest.NewRequest(http.MethodGet, "/api/v1/rules", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		SnapshotID string     `json:"snapshot_id"`
		Count      int        `json:"count"`
		Rules      []RuleView `json:"rules"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, svc.Info().SnapshotID, body.SnapshotID)
	assert.Equal(t, 4, body.Count)
	assert.Equal(t, "C → B", body.Rules[0].Rule)
	assert.Equal(t, 1.0, body.Rules[0].Confidence)
	assert.Equal(t, 0.667, body.Rules[1].Confidence, "rounded to 3 decimals")

	w = do(t, s, httptest.NewRequest(http.MethodGet, "/api/v1/rules?limit=2&min_confidence=0.5", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)

	for _, query := range []string{"limit=-1", "limit=ten", "min_confidence=2", "min_confidence=x"} {
		w = do(t, s, httptest.NewRequest(http.MethodGet, "/api/v1/rules?"+query, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, query)
	}
}

func TestItemsets(t *testing.T) {
	s, _ := setupServer(t, testConfig(), nil)

	w := do(t, s, httptest.NewRequest(http.MethodGet, "/api/v1/itemsets?min_size=2", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Count    int              `json:"count"`
		Itemsets []domain.Itemset `json:"itemsets"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, []domain.Item{"A", "B"}, body.Itemsets[0].Items)
	assert.Equal(t, 0.5, body.Itemsets[0].Support)

	w = do(t, s, httptest.NewRequest(http.MethodGet, "/api/v1/itemsets", nil))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 5, body.Count)
}

func TestModelInfo(t *testing.T) {
	s, svc := setupServer(t, testConfig(), nil)

	w := do(t, s, httptest.NewRequest(http.MethodGet, "/api/v1/model-info", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var info domain.ModelInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, svc.Info().SnapshotID, info.SnapshotID)
	assert.Equal(t, domain.SourceRetrain, info.Source)
	assert.Equal(t, 4, info.Rules)
	assert.Equal(t, 5, info.Itemsets)
	assert.Equal(t, 3, info.Items)
}

func TestRetrain(t *testing.T) {
	cfg := testConfig()
	cfg.Server.AdminToken = "admin"
	s, svc := setupServer(t, cfg, nil)
	before := svc.Info().SnapshotID

	w := do(t, s, jsonRequest(http.MethodPost, "/api/v1/admin/retrain", ""))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := jsonRequest(http.MethodPost, "/api/v1/admin/retrain", "")
	req.Header.Set("Authorization", "Bearer admin")
	w = do(t, s, req)

	require.Equal(t, http.StatusOK, w.Code)
	var report domain.TrainingReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 4, report.Rules)
	assert.NotEqual(t, before, svc.Info().SnapshotID)
	assert.Equal(t, report.SnapshotID, svc.Info().SnapshotID)
}

func TestRetrain_Overrides(t *testing.T) {
	s, svc := setupServer(t, testConfig(), nil)

	w := do(t, s, jsonRequest(http.MethodPost, "/api/v1/admin/retrain", `{"min_threshold": 0.9}`))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, svc.Info().Rules)
	assert.Equal(t, 0.9, svc.Info().Params.MinThreshold)
}

func TestRetrain_Errors(t *testing.T) {
	s, svc := setupServer(t, testConfig(), nil)
	served := svc.Info().SnapshotID

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"No frequent patterns", `{"min_support": 1.0}`, http.StatusUnprocessableEntity, domain.ErrNoFrequentPatterns},
		{"Support out of range", `{"min_support": 0}`, http.StatusBadRequest, domain.ErrData},
		{"Unknown metric", `{"metric": "conviction"}`, http.StatusBadRequest, domain.ErrData},
		{"Malformed body", `{"min_support": "high"}`, http.StatusBadRequest, domain.ErrData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, jsonRequest(http.MethodPost, "/api/v1/admin/retrain", tt.body))

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decodeAPIError(t, w).Code)
			assert.Equal(t, served, svc.Info().SnapshotID)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := setupServer(t, testConfig(), nil)
	do(t, s, jsonRequest(http.MethodPost, "/api/v1/query", `{"observed": ["A"]}`))

	w := do(t, s, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "cxr_queries_total")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(domain.ErrInvalidInput))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(domain.ErrNoFrequentPatterns))
	assert.Equal(t, http.StatusConflict, statusFor(domain.ErrRetrainInProgress))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(domain.ErrPredictor))
	assert.Equal(t, http.StatusInternalServerError, statusFor(domain.ErrModelInconsistency))
}

func init() {
	gin.SetMode(gin.TestMode)
}
