package services

import (
	"context"
	"io"
	"time"

	"github.com/ajramos/crm-mailbox/internal/outlook"
)

// ConversationProvider fetches threaded mailbox data
type ConversationProvider interface {
	ListConversations(ctx context.Context) (*outlook.ThreadedMailbox, error)
	GetConversation(ctx context.Context, conversationID string) ([]outlook.Message, error)
	Search(ctx context.Context, query string, top int) ([]outlook.Message, error)
}

// DraftProvider sends mail and manages drafts
type DraftProvider interface {
	SendMail(ctx context.Context, req outlook.SendRequest) error
	CreateDraft(ctx context.Context, req outlook.DraftRequest) (*outlook.Message, error)
	UpdateDraft(ctx context.Context, draftID string, req outlook.DraftRequest) (*outlook.Message, error)
	SendDraft(ctx context.Context, draftID string) error
}

// MessageActionProvider performs single-message actions
type MessageActionProvider interface {
	Reply(ctx context.Context, messageID, comment string) error
	Forward(ctx context.Context, messageID string, to []outlook.Recipient, comment string) error
	Move(ctx context.Context, messageID, destinationID string) error
	DeleteMessage(ctx context.Context, messageID string) error
}

// AttachmentProvider manages attachments on messages and drafts
type AttachmentProvider interface {
	ListAttachments(ctx context.Context, messageID string) ([]outlook.Attachment, error)
	DownloadAttachment(ctx context.Context, messageID, attachmentID string) (*outlook.AttachmentContent, error)
	UploadAttachment(ctx context.Context, messageID, fileName string, r io.Reader) (*outlook.Attachment, error)
	DeleteAttachment(ctx context.Context, messageID, attachmentID string) error
}

// MailProvider is the full provider contract; *outlook.Client implements it
type MailProvider interface {
	ConversationProvider
	DraftProvider
	MessageActionProvider
	AttachmentProvider
}

// Refresher reloads the whole conversation index
type Refresher interface {
	Refresh(ctx context.Context) error
}

// MailboxService owns the conversation index, the selection and search mode
type MailboxService interface {
	Refresher
	Index() *ConversationIndex
	Folders() []string
	Merge(folder, conversationID string, messages []outlook.Message)
	Selection() Selection
	SetFolder(folder string)
	SelectConversation(conversationID string) error
	NavigateTo(folder, conversationID string, force bool) <-chan struct{}
	OnSelectionChange(fn func(Selection))
	SelectedThread() []outlook.Message
	SelectedConversation() (ConversationSummary, bool)
	Summaries() []ConversationSummary
	SearchState() SearchState
	SetSearchResults(query string, results []outlook.Message)
	ClearSearch()
	Loading() bool
	LoadError() error
}

// CompositionService drives the compose and draft lifecycle
type CompositionService interface {
	OpenCompose() (*Composition, error)
	OpenEditDraft(ctx context.Context, draft outlook.Message) (*Composition, error)
	Update(fn func(*ComposeState)) error
	SetRecipientsFromText(to, cc, bcc string) error
	AddAttachment(att PendingAttachment) error
	RemovePendingAttachment(index int) error
	RemoveDraftAttachment(ctx context.Context, attachmentID string) error
	Send(ctx context.Context) error
	SaveDraft(ctx context.Context) (*DraftResult, error)
	UpdateDraft(ctx context.Context) (*DraftResult, error)
	SendDraft(ctx context.Context, draftID string) error
	Cancel() error
	Current() *Composition
	CanSend() bool
	InFlight() InFlight
}

// SearchService runs provider searches and resolves results into selections
type SearchService interface {
	Search(ctx context.Context, query string) ([]outlook.Message, error)
	NavigateToResult(ctx context.Context, msg outlook.Message) (<-chan struct{}, error)
	NormalizeFolderName(name string) string
	RecentSearches(ctx context.Context, limit int) ([]string, error)
}

// AttachmentService lists, downloads, uploads and removes attachments
type AttachmentService interface {
	List(ctx context.Context, messageID string) ([]outlook.Attachment, error)
	Download(ctx context.Context, messageID, attachmentID, fileName string) (string, error)
	Upload(ctx context.Context, messageID string, att PendingAttachment, refreshList bool) (*outlook.Attachment, []outlook.Attachment, error)
	Remove(ctx context.Context, messageID, attachmentID string) error
	GetDefaultDownloadPath() string
}

// EmailService performs message actions from the conversation view
type EmailService interface {
	Reply(ctx context.Context, messageID, comment string) error
	Forward(ctx context.Context, messageID, recipients, comment string) error
	Move(ctx context.Context, messageID, destinationID string) error
	Delete(ctx context.Context, messageID string) error
}

// SearchHistory persists executed search queries
type SearchHistory interface {
	Record(ctx context.Context, query string, resultCount int) error
	Recent(ctx context.Context, limit int) ([]string, error)
}

// Selection is the active folder and conversation; ConversationID is empty when none
type Selection struct {
	Folder         string
	ConversationID string
}

// SearchState is the search-mode view of the mailbox
type SearchState struct {
	Active  bool
	Query   string
	Results []outlook.Message
}

// ConversationSummary is one row of the conversation list
type ConversationSummary struct {
	ConversationID string
	Subject        string
	From           string
	Preview        string
	LatestAt       time.Time
	Count          int
	Unread         bool
	HasAttachments bool
	IsDraft        bool
}

// ComposeMode is the lifecycle state of the compose surface
type ComposeMode int

const (
	ComposeIdle ComposeMode = iota
	ComposeComposing
	ComposeEditingDraft
)

func (m ComposeMode) String() string {
	switch m {
	case ComposeComposing:
		return "composing"
	case ComposeEditingDraft:
		return "editing-draft"
	default:
		return "idle"
	}
}

// PendingAttachment is a local file not yet uploaded
type PendingAttachment struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

// ComposeState is the editing buffer of the compose surface
type ComposeState struct {
	Subject         string
	Body            outlook.ItemBody
	To              []outlook.Recipient
	Cc              []outlook.Recipient
	Bcc             []outlook.Recipient
	SaveToSentItems bool
	Attachments     []PendingAttachment
}

// Composition is an open compose session
type Composition struct {
	ID               string
	Mode             ComposeMode
	State            ComposeState
	DraftID          string
	DraftAttachments []outlook.Attachment
	CreatedAt        time.Time
	ModifiedAt       time.Time
}

// InFlight reports which lifecycle operations are running
type InFlight struct {
	Sending       bool
	SavingDraft   bool
	UpdatingDraft bool
	SendingDraft  bool
	LoadingDraft  bool

	RemovingAttachment bool
}

// Any reports whether any operation is running
func (f InFlight) Any() bool {
	return f.Sending || f.SavingDraft || f.UpdatingDraft || f.SendingDraft || f.LoadingDraft ||
		f.RemovingAttachment
}

// AttachmentFailure is an upload that failed during a tolerant batch
type AttachmentFailure struct {
	Name string
	Err  error
}

// DraftResult is the outcome of a save or update
type DraftResult struct {
	DraftID           string
	Uploaded          []outlook.Attachment
	FailedAttachments []AttachmentFailure
}
