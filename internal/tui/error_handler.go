package tui

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/derailed/tcell/v2"
	"github.com/derailed/tview"
)

// LogLevel represents the severity of a message
type LogLevel int

const (
	LogLevelInfo LogLevel = iota
	LogLevelWarning
	LogLevelError
	LogLevelSuccess
)

// statusClearDelay is how long a transient status message stays visible
const statusClearDelay = 5 * time.Second

// ErrorHandler owns the status bar. Its display priority is: transient
// message, persistent progress, the shared last error, then the baseline.
type ErrorHandler struct {
	mu         sync.RWMutex
	app        *tview.Application
	appRef     *App
	statusView *tview.TextView
	flashView  *tview.TextView
	logger     *log.Logger

	currentStatus    string
	persistentStatus string
	lastError        string
	statusTimer      *time.Timer
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(app *tview.Application, appRef *App, statusView *tview.TextView, flashView *tview.TextView, logger *log.Logger) *ErrorHandler {
	return &ErrorHandler{
		app:        app,
		appRef:     appRef,
		statusView: statusView,
		flashView:  flashView,
		logger:     logger,
	}
}

// HandleError logs err and shows userMsg
func (eh *ErrorHandler) HandleError(ctx context.Context, err error, userMsg string) {
	if err == nil {
		return
	}
	if eh.logger != nil {
		eh.logger.Printf("ERROR: %v", err)
	}
	if userMsg == "" {
		userMsg = "An error occurred"
	}
	eh.ShowMessage(ctx, userMsg, LogLevelError)
}

// ShowMessage displays a transient message
func (eh *ErrorHandler) ShowMessage(ctx context.Context, msg string, level LogLevel) {
	if strings.TrimSpace(msg) == "" {
		return
	}
	formatted := eh.formatMessage(msg, level)
	if eh.logger != nil {
		eh.logger.Printf("%s: %s", eh.levelToString(level), msg)
	}
	eh.update(func() { eh.updateStatusMessage(formatted) })
}

// ShowPersistentMessage shows a message that stays until cleared
func (eh *ErrorHandler) ShowPersistentMessage(ctx context.Context, msg string, level LogLevel) {
	formatted := eh.formatMessage(msg, level)
	eh.update(func() { eh.updatePersistentStatus(formatted) })
}

// ClearPersistentMessage clears the persistent message
func (eh *ErrorHandler) ClearPersistentMessage() {
	eh.update(func() { eh.updatePersistentStatus("") })
}

// ShowFlashMessage shows msg in the flash line for duration
func (eh *ErrorHandler) ShowFlashMessage(ctx context.Context, msg string, level LogLevel, duration time.Duration) {
	if eh.flashView == nil {
		eh.ShowMessage(ctx, msg, level)
		return
	}
	formatted := eh.formatMessage(msg, level)
	eh.update(func() {
		eh.flashView.SetTextColor(eh.levelToColor(level))
		eh.flashView.SetText(tview.Escape(formatted))
		time.AfterFunc(duration, func() {
			eh.update(func() {
				if eh.flashView.GetText(false) == tview.Escape(formatted) {
					eh.flashView.SetText("")
				}
			})
		})
	})
}

// SetLastError shows the shared last-error state; an empty msg clears it.
// Runs on the UI goroutine.
func (eh *ErrorHandler) SetLastError(msg string) {
	eh.mu.Lock()
	eh.lastError = msg
	eh.refreshStatusDisplay()
	eh.mu.Unlock()
}

// LastError returns the error currently shown in the status bar
func (eh *ErrorHandler) LastError() string {
	eh.mu.RLock()
	defer eh.mu.RUnlock()
	return eh.lastError
}

// StatusText returns the status bar text
func (eh *ErrorHandler) StatusText() string {
	eh.mu.RLock()
	defer eh.mu.RUnlock()
	return eh.displayText()
}

// update runs fn on the UI goroutine, or inline when there is no application
func (eh *ErrorHandler) update(fn func()) {
	switch {
	case eh.appRef != nil && eh.appRef.queue != nil:
		eh.appRef.queue(fn)
	case eh.app != nil:
		eh.app.QueueUpdateDraw(fn)
	default:
		fn()
	}
}

func (eh *ErrorHandler) formatMessage(msg string, level LogLevel) string {
	var icon string
	switch level {
	case LogLevelInfo:
		icon = "i"
	case LogLevelWarning:
		icon = "!"
	case LogLevelError:
		icon = "x"
	case LogLevelSuccess:
		icon = "ok"
	default:
		icon = "-"
	}
	return fmt.Sprintf("[%s] %s", icon, msg)
}

func (eh *ErrorHandler) levelToString(level LogLevel) string {
	switch level {
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarning:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	case LogLevelSuccess:
		return "SUCCESS"
	default:
		return "UNKNOWN"
	}
}

func (eh *ErrorHandler) levelToColor(level LogLevel) tcell.Color {
	if eh.appRef == nil || eh.appRef.Theme == nil {
		return tcell.ColorDefault
	}
	status := eh.appRef.Theme.Status
	switch level {
	case LogLevelError, LogLevelWarning:
		return status.ErrorColor.Color()
	case LogLevelSuccess, LogLevelInfo:
		return status.InfoColor.Color()
	default:
		return status.FgColor.Color()
	}
}

func (eh *ErrorHandler) updateStatusMessage(msg string) {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	if eh.statusTimer != nil {
		eh.statusTimer.Stop()
	}
	eh.currentStatus = msg
	eh.refreshStatusDisplay()

	eh.statusTimer = time.AfterFunc(statusClearDelay, func() {
		eh.update(func() { eh.clearCurrentStatus(msg) })
	})
}

// clearCurrentStatus clears the transient message unless a newer one replaced it
func (eh *ErrorHandler) clearCurrentStatus(expected string) {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	if eh.currentStatus == expected {
		eh.currentStatus = ""
		eh.refreshStatusDisplay()
	}
}

func (eh *ErrorHandler) updatePersistentStatus(msg string) {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	eh.persistentStatus = msg
	eh.refreshStatusDisplay()
}

// refreshStatus redraws the status bar; used after mailbox state changes
func (eh *ErrorHandler) refreshStatus() {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	eh.refreshStatusDisplay()
}

// refreshStatusDisplay must be called with mu held
func (eh *ErrorHandler) refreshStatusDisplay() {
	if eh.statusView == nil {
		return
	}
	text := eh.displayText()
	if text == eh.lastErrorText() && eh.appRef != nil && eh.appRef.Theme != nil {
		eh.statusView.SetText(colorTag(eh.appRef.Theme.Status.ErrorColor.Color()) + tview.Escape(text))
		return
	}
	eh.statusView.SetText(tview.Escape(text))
}

func (eh *ErrorHandler) displayText() string {
	switch {
	case eh.currentStatus != "":
		return eh.currentStatus
	case eh.persistentStatus != "":
		return eh.persistentStatus
	case eh.lastError != "":
		return eh.lastErrorText()
	default:
		return eh.getBaselineStatus()
	}
}

// lastErrorText appends the retry hint while the last full load has failed
func (eh *ErrorHandler) lastErrorText() string {
	if eh.lastError == "" {
		return ""
	}
	if eh.appRef != nil && eh.appRef.mailbox != nil && eh.appRef.mailbox.LoadError() != nil {
		return fmt.Sprintf("%s | %s to retry", eh.lastError, eh.appRef.Keys.Refresh)
	}
	return eh.lastError
}

func (eh *ErrorHandler) getBaselineStatus() string {
	if eh.appRef != nil {
		return eh.appRef.statusBaseline()
	}
	return "CRM Mailbox | ? for help"
}

// ShowInfo shows an info message
func (eh *ErrorHandler) ShowInfo(ctx context.Context, msg string) {
	eh.ShowMessage(ctx, msg, LogLevelInfo)
}

// ShowWarning shows a warning message
func (eh *ErrorHandler) ShowWarning(ctx context.Context, msg string) {
	eh.ShowMessage(ctx, msg, LogLevelWarning)
}

// ShowError shows an error message
func (eh *ErrorHandler) ShowError(ctx context.Context, msg string) {
	eh.ShowMessage(ctx, msg, LogLevelError)
}

// ShowSuccess shows a success message
func (eh *ErrorHandler) ShowSuccess(ctx context.Context, msg string) {
	eh.ShowMessage(ctx, msg, LogLevelSuccess)
}

// ShowProgress shows a progress message until ClearProgress
func (eh *ErrorHandler) ShowProgress(ctx context.Context, msg string) {
	eh.ShowPersistentMessage(ctx, msg, LogLevelInfo)
}

// ClearProgress clears the progress message
func (eh *ErrorHandler) ClearProgress() {
	eh.ClearPersistentMessage()
}
