package domain

import (
	"errors"
	"fmt"
	"time"
)

// APIError represents a standardized error response
type APIError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	ErrInvalidInput        = "INVALID_INPUT"
	ErrData                = "DATA_ERROR"
	ErrNoFrequentPatterns  = "NO_FREQUENT_PATTERNS"
	ErrModelInconsistency  = "MODEL_INCONSISTENCY"
	ErrModelLoad           = "MODEL_LOAD_ERROR"
	ErrPredictor           = "PREDICTOR_ERROR"
	ErrInternalServer      = "INTERNAL_SERVER_ERROR"
	ErrRetrainInProgress   = "RETRAIN_IN_PROGRESS"
	ErrArtifactUnavailable = "ARTIFACT_UNAVAILABLE"
)

// Sentinel errors
var (
	ErrArtifactNotFound     = errors.New("artifact not found")
	ErrPredictorUnavailable = errors.New("condition predictor unavailable")
	ErrRetrainBusy          = errors.New("retrain already in progress")
)

// NewAPIError creates a new APIError with timestamp
func NewAPIError(code, message, details, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// DataError reports empty or malformed transaction input or mining parameters
type DataError struct {
	Field   string
	Message string
}

func (e *DataError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("data error: %s", e.Message)
	}
	return fmt.Sprintf("data error for '%s': %s", e.Field, e.Message)
}

// Code returns the error code
func (e *DataError) Code() string { return ErrData }

// NewDataError creates a new DataError
func NewDataError(field, message string) *DataError {
	return &DataError{Field: field, Message: message}
}

// NoFrequentPatternsError is returned when mining finds no itemset at the requested support.
// Callers may lower MinSupport and retry
type NoFrequentPatternsError struct {
	MinSupport   float64
	Transactions int
}

func (e *NoFrequentPatternsError) Error() string {
	return fmt.Sprintf("no frequent itemsets at min_support=%v over %d transactions", e.MinSupport, e.Transactions)
}

// Code returns the error code
func (e *NoFrequentPatternsError) Code() string { return ErrNoFrequentPatterns }

// ModelInconsistencyError means an itemset or rule references a subset that is missing
// from the frequent itemset table. It indicates a corrupted or hand-edited artifact
type ModelInconsistencyError struct {
	Itemset string
	Missing string
}

func (e *ModelInconsistencyError) Error() string {
	return fmt.Sprintf("model inconsistency: subset {%s} of {%s} is not a known frequent itemset", e.Missing, e.Itemset)
}

// Code returns the error code
func (e *ModelInconsistencyError) Code() string { return ErrModelInconsistency }

// ModelLoadError reports a missing or unreadable rule store artifact
type ModelLoadError struct {
	Location string
	Err      error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("failed to load model from %s: %v", e.Location, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// Code returns the error code
func (e *ModelLoadError) Code() string { return ErrModelLoad }

// NewModelLoadError creates a new ModelLoadError
func NewModelLoadError(location string, err error) *ModelLoadError {
	return &ModelLoadError{Location: location, Err: err}
}

// ArtifactError reports a failure to persist a freshly mined rule store.
// The served model is left unchanged
type ArtifactError struct {
	Location string
	Err      error
}

func (e *ArtifactError) Error() string {
	return fmt.Sprintf("failed to save model to %s: %v", e.Location, e.Err)
}

func (e *ArtifactError) Unwrap() error { return e.Err }

// Code returns the error code
func (e *ArtifactError) Code() string { return ErrArtifactUnavailable }

// QueryError rejects an invalid query without affecting the served model
type QueryError struct {
	Message string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("invalid query: %s", e.Message)
}

// Code returns the error code
func (e *QueryError) Code() string { return ErrInvalidInput }

// ErrorCode extracts the code of a typed error, or ErrInternalServer
func ErrorCode(err error) string {
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	if errors.Is(err, ErrPredictorUnavailable) {
		return ErrPredictor
	}
	if errors.Is(err, ErrRetrainBusy) {
		return ErrRetrainInProgress
	}
	return ErrInternalServer
}
