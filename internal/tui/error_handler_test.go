package tui

import (
	"context"
	"errors"
	"log"
	"os"
	"testing"

	"github.com/derailed/tview"
	"github.com/stretchr/testify/assert"
)

func TestNewErrorHandler(t *testing.T) {
	app := tview.NewApplication()
	statusView := tview.NewTextView()
	flashView := tview.NewTextView()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	eh := NewErrorHandler(app, nil, statusView, flashView, logger)

	assert.NotNil(t, eh)
	assert.Equal(t, app, eh.app)
	assert.Nil(t, eh.appRef)
	assert.Equal(t, statusView, eh.statusView)
	assert.Equal(t, flashView, eh.flashView)
	assert.Equal(t, logger, eh.logger)
	assert.Empty(t, eh.currentStatus)
	assert.Empty(t, eh.persistentStatus)
}

func TestNewErrorHandler_NilInputs(t *testing.T) {
	eh := NewErrorHandler(nil, nil, nil, nil, nil)

	assert.NotNil(t, eh)
	assert.NotPanics(t, func() {
		eh.ShowInfo(context.Background(), "hello")
		eh.SetLastError("boom")
		eh.refreshStatus()
	})
}

func TestErrorHandler_HandleError(t *testing.T) {
	statusView := tview.NewTextView()
	eh := NewErrorHandler(nil, nil, statusView, nil, nil)

	eh.HandleError(context.Background(), nil, "ignored")
	assert.Equal(t, "CRM Mailbox | ? for help", eh.StatusText())

	eh.HandleError(context.Background(), errors.New("test error"), "")
	assert.Equal(t, "[x] An error occurred", eh.StatusText())
}

func TestErrorHandler_StatusPriority(t *testing.T) {
	statusView := tview.NewTextView()
	eh := NewErrorHandler(nil, nil, statusView, nil, nil)

	eh.SetLastError("Search failed: timeout")
	assert.Equal(t, "Search failed: timeout", eh.StatusText())
	assert.Equal(t, "Search failed: timeout", statusView.GetText(true))

	eh.ShowProgress(context.Background(), "Loading...")
	assert.Equal(t, "[i] Loading...", eh.StatusText())

	eh.ShowSuccess(context.Background(), "Done")
	assert.Equal(t, "[ok] Done", eh.StatusText())

	eh.clearCurrentStatus("[ok] Done")
	assert.Equal(t, "[i] Loading...", eh.StatusText())

	eh.ClearProgress()
	assert.Equal(t, "Search failed: timeout", eh.StatusText())

	eh.SetLastError("")
	assert.Equal(t, "CRM Mailbox | ? for help", eh.StatusText())
}

func TestErrorHandler_StaleClearKeepsNewerMessage(t *testing.T) {
	eh := NewErrorHandler(nil, nil, tview.NewTextView(), nil, nil)

	eh.ShowInfo(context.Background(), "first")
	eh.ShowWarning(context.Background(), "second")
	eh.clearCurrentStatus("[i] first")

	assert.Equal(t, "[!] second", eh.StatusText())
}

func TestErrorHandler_EmptyMessageIgnored(t *testing.T) {
	eh := NewErrorHandler(nil, nil, tview.NewTextView(), nil, nil)

	eh.ShowError(context.Background(), "   ")
	assert.Empty(t, eh.currentStatus)
}

func TestErrorHandler_FlashMessage(t *testing.T) {
	flash := tview.NewTextView()
	eh := NewErrorHandler(nil, nil, tview.NewTextView(), flash, nil)

	eh.ShowFlashMessage(context.Background(), "Saved to /tmp/a.pdf", LogLevelSuccess, statusClearDelay)
	assert.Equal(t, "[ok] Saved to /tmp/a.pdf", flash.GetText(true))
}

func TestErrorHandler_LevelToString(t *testing.T) {
	eh := &ErrorHandler{}
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{LogLevelInfo, "INFO"},
		{LogLevelWarning, "WARN"},
		{LogLevelError, "ERROR"},
		{LogLevelSuccess, "SUCCESS"},
		{LogLevel(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, eh.levelToString(tt.level))
	}
}
