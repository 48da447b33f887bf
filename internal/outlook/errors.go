package outlook

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
)

// ErrNotAuthenticated is returned before any request when no bearer token is available
var ErrNotAuthenticated = errors.New("not authenticated: no access token available")

// APIError is a non-2xx response from the provider
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.StatusCode)
}

// IsNotFound reports whether err is a provider 404
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsUnauthorized reports whether err is a provider 401/403 or a missing token
func IsUnauthorized(err error) bool {
	if errors.Is(err, ErrNotAuthenticated) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) &&
		(apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden)
}

// newAPIError builds an APIError from a failed response. The body is only parsed
// when the response declares a JSON content type; anything else (an HTML error
// page, plain text) gets a message synthesized from the status line.
func newAPIError(statusCode int, status, contentType string, body []byte) *APIError {
	if status == "" {
		status = fmt.Sprintf("%d %s", statusCode, http.StatusText(statusCode))
	}
	apiErr := &APIError{
		StatusCode: statusCode,
		Status:     status,
		Message:    "request failed: " + status,
	}
	if isJSONContentType(contentType) {
		if msg := extractErrorMessage(body); msg != "" {
			apiErr.Message = msg
		}
	}
	return apiErr
}

func isJSONContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// extractErrorMessage understands {"message": "..."}, {"error": "..."} and
// {"error": {"message": "..."}}
func extractErrorMessage(body []byte) string {
	var payload struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if strings.TrimSpace(payload.Message) != "" {
		return payload.Message
	}
	if len(payload.Error) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(payload.Error, &s); err == nil {
		return s
	}
	var nested struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload.Error, &nested); err == nil {
		if nested.Message != "" {
			return nested.Message
		}
		return nested.Code
	}
	return ""
}
