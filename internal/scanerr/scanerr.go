/**
 * Error types for the menu scan worker.
 *
 * Every failure surfaced to a caller carries a Code so the rendering layer
 * can pick the right localized message, and so the streaming path can apply
 * its fail-safe rule uniformly. Cancellation is the only silent kind.
 */

package scanerr

import (
	"errors"
	"fmt"
	"time"
)

// Code classifies scan failures.
type Code string

const (
	// CodeCacheFailed marks a cache storage failure. Always treated as a
	// cache miss by callers, never surfaced to the user.
	CodeCacheFailed Code = "CACHE_FAILED"

	// CodePipelineStageFailed marks a resolution stage failure for a single
	// entry; the entry passes through unmodified.
	CodePipelineStageFailed Code = "PIPELINE_STAGE_FAILED"

	// CodeFrameParseFailed marks a malformed NDJSON line. Assumed to be a
	// chunk boundary artifact and discarded.
	CodeFrameParseFailed Code = "FRAME_PARSE_FAILED"

	// CodeCancelled marks an explicit or superseding cancellation.
	CodeCancelled Code = "CANCELLED"

	// CodeTimeout marks a request that exceeded its deadline.
	CodeTimeout Code = "TIMEOUT"

	// CodeNetworkFailed marks a transport-level failure.
	CodeNetworkFailed Code = "NETWORK_FAILED"

	// CodeServerFailed marks a non-2xx or malformed server response.
	CodeServerFailed Code = "SERVER_FAILED"

	// CodeMenuNotRecognized marks a domain failure: the server answered but
	// produced no usable menu items. Distinct from transport errors so the
	// UI can suggest retaking the photo instead of retrying.
	CodeMenuNotRecognized Code = "MENU_NOT_RECOGNIZED"
)

// ScanError is a structured error carried through the scan flow.
type ScanError struct {
	Code      Code
	Message   string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ScanError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScanError) Unwrap() error {
	return e.Cause
}

// CodeOf returns the Code of err if it is (or wraps) a ScanError,
// or the empty Code otherwise.
func CodeOf(err error) Code {
	var se *ScanError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsCancelled reports whether err represents a cancellation. Cancellations
// are never surfaced to the user and never trip the fail-safe default.
func IsCancelled(err error) bool {
	return CodeOf(err) == CodeCancelled
}

// Factory functions for common errors

func NewCacheFailed(op string, cause error) *ScanError {
	return &ScanError{
		Code:      CodeCacheFailed,
		Message:   fmt.Sprintf("cache %s failed", op),
		Timestamp: time.Now(),
		Details:   map[string]interface{}{"op": op},
		Cause:     cause,
	}
}

func NewPipelineStageFailed(stage string, cause error) *ScanError {
	return &ScanError{
		Code:      CodePipelineStageFailed,
		Message:   fmt.Sprintf("pipeline stage %s failed", stage),
		Timestamp: time.Now(),
		Details:   map[string]interface{}{"stage": stage},
		Cause:     cause,
	}
}

func NewCancelled(cause error) *ScanError {
	return &ScanError{
		Code:      CodeCancelled,
		Message:   "request cancelled",
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewTimeout(d time.Duration, cause error) *ScanError {
	return &ScanError{
		Code:      CodeTimeout,
		Message:   fmt.Sprintf("request timed out after %v", d),
		Timestamp: time.Now(),
		Details:   map[string]interface{}{"timeout": d.String()},
		Cause:     cause,
	}
}

func NewNetworkFailed(cause error) *ScanError {
	return &ScanError{
		Code:      CodeNetworkFailed,
		Message:   "network request failed",
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewServerFailed(status int, cause error) *ScanError {
	return &ScanError{
		Code:      CodeServerFailed,
		Message:   fmt.Sprintf("server returned status %d", status),
		Timestamp: time.Now(),
		Details:   map[string]interface{}{"status": status},
		Cause:     cause,
	}
}

func NewMenuNotRecognized(serverMessage string) *ScanError {
	return &ScanError{
		Code:      CodeMenuNotRecognized,
		Message:   "menu not recognized",
		Timestamp: time.Now(),
		Details:   map[string]interface{}{"serverMessage": serverMessage},
	}
}

// ToMap converts the error to a map for persistence.
func (e *ScanError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
