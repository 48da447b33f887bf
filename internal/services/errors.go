package services

import (
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"

	"github.com/ajramos/crm-mailbox/internal/outlook"
)

var (
	// Lifecycle errors
	ErrOperationInProgress = errors.New("another operation is in progress")
	ErrComposeIncomplete   = errors.New("at least one recipient and a subject are required")
	ErrNotComposing        = errors.New("no compose session is open")
	ErrNoActiveDraft       = errors.New("no draft is being edited")
	ErrComposeOpen         = errors.New("a compose session is already open")

	// Mailbox errors
	ErrConversationNotFound = errors.New("conversation not found")
	ErrInvalidMessageID     = errors.New("invalid message ID")
	ErrNoRecipients         = errors.New("no recipients given")
	ErrInvalidInput         = errors.New("invalid input provided")
)

// IsRetryableError reports whether retrying the same call may succeed
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *outlook.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == http.StatusTooManyRequests ||
			apiErr.StatusCode == http.StatusRequestTimeout
	}
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, ErrOperationInProgress)
}

// IsPermanentError reports whether the error needs user action before a retry
func IsPermanentError(err error) bool {
	if err == nil {
		return false
	}
	if outlook.IsUnauthorized(err) {
		return true
	}
	var apiErr *outlook.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 && !IsRetryableError(err)
	}
	return errors.Is(err, ErrComposeIncomplete) ||
		errors.Is(err, ErrInvalidMessageID) ||
		errors.Is(err, ErrNoRecipients) ||
		errors.Is(err, ErrInvalidInput)
}

// ErrorState holds the single current user-facing error. Last write wins.
type ErrorState struct {
	mu       sync.RWMutex
	current  string
	logger   *log.Logger
	onChange func(string)
}

// NewErrorState creates an empty error state
func NewErrorState() *ErrorState {
	return &ErrorState{}
}

// SetLogger sets the logger for reported errors
func (e *ErrorState) SetLogger(logger *log.Logger) {
	e.mu.Lock()
	e.logger = logger
	e.mu.Unlock()
}

// OnChange registers a callback invoked after every change
func (e *ErrorState) OnChange(fn func(string)) {
	e.mu.Lock()
	e.onChange = fn
	e.mu.Unlock()
}

// Report replaces the current error with "action: err". A nil err is ignored.
func (e *ErrorState) Report(action string, err error) {
	if err == nil {
		return
	}
	msg := err.Error()
	if action != "" {
		msg = fmt.Sprintf("%s: %v", action, err)
	}
	e.set(msg)
}

// Clear removes the current error
func (e *ErrorState) Clear() {
	e.set("")
}

// Current returns the current error message, empty when none
func (e *ErrorState) Current() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current
}

func (e *ErrorState) set(msg string) {
	e.mu.Lock()
	e.current = msg
	logger := e.logger
	fn := e.onChange
	e.mu.Unlock()

	if logger != nil && msg != "" {
		logger.Printf("ERROR: %s", msg)
	}
	if fn != nil {
		fn(msg)
	}
}
