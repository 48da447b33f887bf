package tui

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/ajramos/crm-mailbox/internal/config"
	"github.com/ajramos/crm-mailbox/internal/outlook"
	"github.com/ajramos/crm-mailbox/internal/render"
	"github.com/ajramos/crm-mailbox/internal/services"
	"github.com/derailed/tcell/v2"
	"github.com/derailed/tview"
)

// Focus targets of the main layout
const (
	focusFolders       = "folders"
	focusConversations = "conversations"
	focusThread        = "thread"
)

// Services bundles the service layer the UI drives
type Services struct {
	Mailbox     services.MailboxService
	Composition services.CompositionService
	Search      services.SearchService
	Attachments services.AttachmentService
	Email       services.EmailService
	Errors      *services.ErrorState
}

// App encapsulates the terminal UI of the mailbox page
type App struct {
	*tview.Application
	Pages  *tview.Pages
	Config *config.Config
	Keys   config.KeyBindings
	Theme  *config.ColorsConfig

	ctx    context.Context
	cancel context.CancelFunc
	logger *log.Logger

	mailbox     services.MailboxService
	composition services.CompositionService
	search      services.SearchService
	attachments services.AttachmentService
	email       services.EmailService
	errors      *services.ErrorState

	renderer     *render.ConversationRenderer
	errorHandler *ErrorHandler

	views        map[string]tview.Primitive
	currentFocus string
	screenWidth  int

	// rows of the conversation table, summaries or search results
	mu          sync.RWMutex
	rowIDs      []string
	results     []outlook.Message
	searchRows  bool
	populating  bool
	composeOpen bool

	// queue runs fn on the UI goroutine; replaced in tests
	queue func(fn func())
}

// NewApp creates the mailbox UI over the service layer
func NewApp(cfg *config.Config, theme *config.ColorsConfig, svc Services, logger *log.Logger) *App {
	ctx, cancel := context.WithCancel(context.Background())
	if theme == nil {
		theme = config.DefaultColors()
	}
	if svc.Errors == nil {
		svc.Errors = services.NewErrorState()
	}

	a := &App{
		Application:  tview.NewApplication(),
		Config:       cfg,
		Keys:         cfg.Keys,
		Theme:        theme,
		ctx:          ctx,
		cancel:       cancel,
		logger:       logger,
		mailbox:      svc.Mailbox,
		composition:  svc.Composition,
		search:       svc.Search,
		attachments:  svc.Attachments,
		email:        svc.Email,
		errors:       svc.Errors,
		renderer:     render.NewConversationRenderer(),
		views:        make(map[string]tview.Primitive),
		currentFocus: focusConversations,
		screenWidth:  80,
	}
	a.queue = func(fn func()) { a.QueueUpdateDraw(fn) }
	a.renderer.UpdateFromConfig(theme)

	a.initComponents()
	a.errorHandler = NewErrorHandler(a.Application, a, a.statusView(), a.flashView(), logger)
	a.bindKeys()

	a.SetBeforeDrawFunc(func(screen tcell.Screen) bool {
		w, _ := screen.Size()
		if w != a.screenWidth {
			a.screenWidth = w
			a.renderConversations()
		}
		return false
	})

	a.errors.OnChange(func(msg string) {
		a.queue(func() { a.errorHandler.SetLastError(msg) })
	})
	a.mailbox.OnSelectionChange(func(services.Selection) {
		a.queue(a.renderMailbox)
	})
	return a
}

// Run loads the mailbox in the background and starts the event loop
func (a *App) Run() error {
	go a.refresh()
	defer a.cancel()
	return a.Application.Run()
}

// Stop cancels outstanding requests and stops the event loop
func (a *App) Stop() {
	a.cancel()
	a.Application.Stop()
}

// GetErrorHandler returns the status bar handler
func (a *App) GetErrorHandler() *ErrorHandler {
	return a.errorHandler
}

// refresh reloads the whole mailbox; it is also the Retry action of the banner
func (a *App) refresh() {
	a.errorHandler.ShowProgress(a.ctx, "Loading conversations...")
	err := a.mailbox.Refresh(a.ctx)
	a.errorHandler.ClearProgress()
	a.queue(a.renderMailbox)
	if err != nil {
		if a.logger != nil {
			a.logger.Printf("refresh: %v", err)
		}
		return
	}
	a.errorHandler.ShowSuccess(a.ctx, fmt.Sprintf("Loaded %d folders", len(a.mailbox.Folders())))
}

// run executes a provider call off the UI goroutine
func (a *App) run(progress string, fn func(ctx context.Context) error, onSuccess func()) {
	if progress != "" {
		a.errorHandler.ShowProgress(a.ctx, progress)
	}
	go func() {
		err := fn(a.ctx)
		if progress != "" {
			a.errorHandler.ClearProgress()
		}
		a.queue(func() {
			if err == nil && onSuccess != nil {
				onSuccess()
			}
			a.renderMailbox()
		})
	}()
}

// currentFolder returns the active folder name
func (a *App) currentFolder() string {
	return a.mailbox.Selection().Folder
}

// targetMessage is the message actions apply to: the latest of the selected thread
func (a *App) targetMessage() (outlook.Message, bool) {
	return services.LatestMessage(a.mailbox.SelectedThread())
}

// statusBaseline is the idle status bar text
func (a *App) statusBaseline() string {
	folder := a.currentFolder()
	if folder == "" {
		return fmt.Sprintf("CRM Mailbox | %s help | %s quit", a.Keys.Help, a.Keys.Quit)
	}
	return fmt.Sprintf("CRM Mailbox | %s | %s help | %s quit", folder, a.Keys.Help, a.Keys.Quit)
}

// draftInThread returns the newest draft of the selected thread
func (a *App) draftInThread() (outlook.Message, bool) {
	thread := a.mailbox.SelectedThread()
	folder := a.currentFolder()
	for i := len(thread) - 1; i >= 0; i-- {
		if services.IsDraft(thread[i], folder) {
			return thread[i], true
		}
	}
	return outlook.Message{}, false
}
