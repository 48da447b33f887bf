package services

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// DefaultNavigationDelay separates the folder switch from the conversation
// select in NavigateTo so list consumers see the folder change first
const DefaultNavigationDelay = 150 * time.Millisecond

// SelectionController keeps {folder, conversation} consistent with the index.
// A non-empty conversation always belongs to the selected folder, except after
// a forced NavigateTo, which the next SetIndex corrects.
type SelectionController struct {
	mu         sync.Mutex
	index      *ConversationIndex
	state      Selection
	delay      time.Duration
	generation uint64
	timer      *time.Timer
	done       chan struct{}
	closed     bool
	onChange   func(Selection)
	logger     *log.Logger
}

// NewSelectionController starts on {defaultFolder, none}. delay <= 0 uses DefaultNavigationDelay.
func NewSelectionController(defaultFolder string, delay time.Duration) *SelectionController {
	if delay <= 0 {
		delay = DefaultNavigationDelay
	}
	return &SelectionController{
		state: Selection{Folder: defaultFolder},
		delay: delay,
	}
}

// SetLogger sets the logger for debug output
func (c *SelectionController) SetLogger(logger *log.Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

// OnChange registers a callback run after every state change, outside the lock
func (c *SelectionController) OnChange(fn func(Selection)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Current returns the current selection
func (c *SelectionController) Current() Selection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Index returns the index the controller validates against
func (c *SelectionController) Index() *ConversationIndex {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index
}

// SetIndex installs a new index and re-resolves the selection: a conversation
// missing from the folder is replaced by the folder default, and an empty one
// is resolved unless a navigation is pending.
func (c *SelectionController) SetIndex(ix *ConversationIndex) {
	c.mu.Lock()
	c.index = ix
	prev := c.state
	if c.done == nil && (c.state.ConversationID == "" || !ix.Has(c.state.Folder, c.state.ConversationID)) {
		c.state.ConversationID = ix.DefaultConversation(c.state.Folder)
	}
	changed := prev != c.state
	c.mu.Unlock()

	if changed {
		c.notify()
	}
}

// SetFolder switches folder: the conversation is cleared first, then set to
// the folder default if the index knows the folder.
func (c *SelectionController) SetFolder(folder string) {
	c.mu.Lock()
	c.cancelPendingLocked()
	c.state = Selection{Folder: folder}
	c.mu.Unlock()
	c.notify()

	c.mu.Lock()
	if c.state.Folder != folder || c.state.ConversationID != "" {
		c.mu.Unlock()
		return
	}
	def := c.index.DefaultConversation(folder)
	c.state.ConversationID = def
	c.mu.Unlock()
	if def != "" {
		c.notify()
	}
}

// SelectConversation selects a conversation of the current folder
func (c *SelectionController) SelectConversation(conversationID string) error {
	c.mu.Lock()
	if !c.index.Has(c.state.Folder, conversationID) {
		folder := c.state.Folder
		c.mu.Unlock()
		return fmt.Errorf("%w: %s in %s", ErrConversationNotFound, conversationID, folder)
	}
	c.cancelPendingLocked()
	c.state.ConversationID = conversationID
	c.mu.Unlock()
	c.notify()
	return nil
}

// NavigateTo clears the conversation, switches folder and, after the
// navigation delay, selects conversationID if the index has it there. Without
// force, a missing conversation falls back to the folder default; with force it
// is selected anyway. A later SetFolder, SelectConversation or NavigateTo
// supersedes a pending navigation. The returned channel closes once the
// navigation has completed or been superseded.
func (c *SelectionController) NavigateTo(folder, conversationID string, force bool) <-chan struct{} {
	done := make(chan struct{})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(done)
		return done
	}
	c.cancelPendingLocked()
	gen := c.generation
	c.state = Selection{Folder: folder}
	c.done = done
	c.timer = time.AfterFunc(c.delay, func() {
		c.completeNavigation(gen, conversationID, force)
	})
	if c.logger != nil {
		c.logger.Printf("SelectionController: navigate to %s/%s (force=%v)", folder, conversationID, force)
	}
	c.mu.Unlock()

	c.notify()
	return done
}

// Close cancels any pending navigation
func (c *SelectionController) Close() {
	c.mu.Lock()
	c.closed = true
	c.cancelPendingLocked()
	c.mu.Unlock()
}

func (c *SelectionController) completeNavigation(gen uint64, conversationID string, force bool) {
	c.mu.Lock()
	if gen != c.generation || c.done == nil {
		c.mu.Unlock()
		return
	}
	switch {
	case force || c.index.Has(c.state.Folder, conversationID):
		c.state.ConversationID = conversationID
	default:
		if c.logger != nil {
			c.logger.Printf("SelectionController: %s not in %s, using folder default", conversationID, c.state.Folder)
		}
		c.state.ConversationID = c.index.DefaultConversation(c.state.Folder)
	}
	done := c.done
	c.done = nil
	c.timer = nil
	c.mu.Unlock()

	c.notify()
	close(done)
}

// cancelPendingLocked drops a pending navigation. c.mu must be held.
func (c *SelectionController) cancelPendingLocked() {
	c.generation++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
}

func (c *SelectionController) notify() {
	c.mu.Lock()
	fn := c.onChange
	state := c.state
	c.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}
