package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

/**
 * Custom error types for the Poster Worker
 *
 * Every stage of the text-removal pipeline reports failures as a
 * ProcessingError carrying a stable ErrorCode, so the orchestrator can
 * decide on fallbacks by code instead of by message.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Pipeline stage errors
	ErrorFetchFailed        ErrorCode = "FETCH_FAILED"
	ErrorDecodeFailed       ErrorCode = "DECODE_FAILED"
	ErrorDetectorInitFailed ErrorCode = "DETECTOR_INIT_FAILED"
	ErrorDetectionFailed    ErrorCode = "DETECTION_FAILED"
	ErrorInpaintFailed      ErrorCode = "INPAINT_FAILED"
	ErrorEncodeFailed       ErrorCode = "ENCODE_FAILED"

	// Cache errors
	ErrorCacheIOFailed ErrorCode = "CACHE_IO_FAILED"
	ErrorNotFound      ErrorCode = "NOT_FOUND"
	ErrorInvalidKey    ErrorCode = "INVALID_KEY"

	// Aggregate errors
	ErrorPipelineFailed    ErrorCode = "PIPELINE_FAILED"
	ErrorProcessingTimeout ErrorCode = "PROCESSING_TIMEOUT"
)

// ProcessingError represents a structured processing error
type ProcessingError struct {
	Code      ErrorCode
	Message   string
	Key       string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// Factory functions for common errors

func NewFetchError(url string, status int, cause error) *ProcessingError {
	msg := fmt.Sprintf("Failed to fetch image from %s", url)
	if status > 0 {
		msg = fmt.Sprintf("Fetching %s returned HTTP %d", url, status)
	}
	return &ProcessingError{
		Code:      ErrorFetchFailed,
		Message:   msg,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"url":         url,
			"http_status": status,
		},
		Cause: cause,
	}
}

func NewDecodeError(url string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorDecodeFailed,
		Message:   fmt.Sprintf("Response from %s is not a decodable image", url),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"url": url,
		},
		Cause: cause,
	}
}

func NewDetectorInitError(engine string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorDetectorInitFailed,
		Message:   fmt.Sprintf("Text detector %s failed to initialize", engine),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"engine": engine,
		},
		Cause: cause,
	}
}

func NewDetectionError(engine string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorDetectionFailed,
		Message:   fmt.Sprintf("Text detection failed in %s", engine),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"engine": engine,
		},
		Cause: cause,
	}
}

func NewInpaintError(message string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorInpaintFailed,
		Message:   message,
		Timestamp: time.Now(),
	}
}

func NewEncodeError(format string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorEncodeFailed,
		Message:   fmt.Sprintf("Failed to encode image as %s", format),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"format": format,
		},
		Cause: cause,
	}
}

func NewCacheIOError(key string, op string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorCacheIOFailed,
		Message:   fmt.Sprintf("Cache %s failed", op),
		Key:       key,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"operation": op,
		},
		Cause: cause,
	}
}

func NewNotFoundError(key string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorNotFound,
		Message:   fmt.Sprintf("No cache entry for key %s", key),
		Key:       key,
		Timestamp: time.Now(),
	}
}

func NewInvalidKeyError(key string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorInvalidKey,
		Message:   fmt.Sprintf("Invalid cache key %q", key),
		Key:       key,
		Timestamp: time.Now(),
	}
}

func NewPipelineError(key string, url string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorPipelineFailed,
		Message:   "Poster could not be processed and the original is unavailable",
		Key:       key,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"url": url,
		},
		Cause: cause,
	}
}

func NewProcessingTimeoutError(key string, duration time.Duration, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorProcessingTimeout,
		Message:   fmt.Sprintf("Processing timed out after %v", duration),
		Key:       key,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

// CodeOf returns the code of the outermost ProcessingError in err's chain,
// or the empty code when there is none.
func CodeOf(err error) ErrorCode {
	var pe *ProcessingError
	if stderrors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// Is reports whether any ProcessingError in err's chain carries code.
func Is(err error, code ErrorCode) bool {
	for err != nil {
		var pe *ProcessingError
		if !stderrors.As(err, &pe) {
			return false
		}
		if pe.Code == code {
			return true
		}
		err = pe.Cause
	}
	return false
}

// ToMap converts error to map for database storage
func (e *ProcessingError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	if e.Key != "" {
		result["cache_key"] = e.Key
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
