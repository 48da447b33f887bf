package services

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/ajramos/crm-mailbox/internal/outlook"
	"github.com/stretchr/testify/mock"
)

// MockProvider implements MailProvider for testing
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) ListConversations(ctx context.Context) (*outlook.ThreadedMailbox, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*outlook.ThreadedMailbox), args.Error(1)
}

func (m *MockProvider) GetConversation(ctx context.Context, conversationID string) ([]outlook.Message, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]outlook.Message), args.Error(1)
}

func (m *MockProvider) Search(ctx context.Context, query string, top int) ([]outlook.Message, error) {
	args := m.Called(ctx, query, top)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]outlook.Message), args.Error(1)
}

func (m *MockProvider) SendMail(ctx context.Context, req outlook.SendRequest) error {
	return m.Called(ctx, req).Error(0)
}

func (m *MockProvider) CreateDraft(ctx context.Context, req outlook.DraftRequest) (*outlook.Message, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*outlook.Message), args.Error(1)
}

func (m *MockProvider) UpdateDraft(ctx context.Context, draftID string, req outlook.DraftRequest) (*outlook.Message, error) {
	args := m.Called(ctx, draftID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*outlook.Message), args.Error(1)
}

func (m *MockProvider) SendDraft(ctx context.Context, draftID string) error {
	return m.Called(ctx, draftID).Error(0)
}

func (m *MockProvider) Reply(ctx context.Context, messageID, comment string) error {
	return m.Called(ctx, messageID, comment).Error(0)
}

func (m *MockProvider) Forward(ctx context.Context, messageID string, to []outlook.Recipient, comment string) error {
	return m.Called(ctx, messageID, to, comment).Error(0)
}

func (m *MockProvider) Move(ctx context.Context, messageID, destinationID string) error {
	return m.Called(ctx, messageID, destinationID).Error(0)
}

func (m *MockProvider) DeleteMessage(ctx context.Context, messageID string) error {
	return m.Called(ctx, messageID).Error(0)
}

func (m *MockProvider) ListAttachments(ctx context.Context, messageID string) ([]outlook.Attachment, error) {
	args := m.Called(ctx, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]outlook.Attachment), args.Error(1)
}

func (m *MockProvider) DownloadAttachment(ctx context.Context, messageID, attachmentID string) (*outlook.AttachmentContent, error) {
	args := m.Called(ctx, messageID, attachmentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*outlook.AttachmentContent), args.Error(1)
}

func (m *MockProvider) UploadAttachment(ctx context.Context, messageID, fileName string, r io.Reader) (*outlook.Attachment, error) {
	args := m.Called(ctx, messageID, fileName, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*outlook.Attachment), args.Error(1)
}

func (m *MockProvider) DeleteAttachment(ctx context.Context, messageID, attachmentID string) error {
	return m.Called(ctx, messageID, attachmentID).Error(0)
}

var baseTime = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

// msg builds a message received `minutes` after baseTime
func msg(id, conversationID string, minutes int, read bool) outlook.Message {
	return outlook.Message{
		ID:               id,
		ConversationID:   conversationID,
		Subject:          "subject " + conversationID,
		BodyPreview:      "preview " + id,
		ReceivedDateTime: baseTime.Add(time.Duration(minutes) * time.Minute),
		IsRead:           read,
	}
}

// conv builds one conversation of a fixture mailbox
func conv(id string, msgs ...outlook.Message) outlook.ConversationMessages {
	return outlook.ConversationMessages{ConversationID: id, Messages: msgs}
}

// folder builds one folder of a fixture mailbox
func folder(name string, convs ...outlook.ConversationMessages) outlook.FolderConversations {
	return outlook.FolderConversations{Folder: name, Conversations: convs}
}

func mailbox(folders ...outlook.FolderConversations) *outlook.ThreadedMailbox {
	return &outlook.ThreadedMailbox{Folders: folders}
}

// memFile is a pending attachment backed by a string
func memFile(name, content string) PendingAttachment {
	return PendingAttachment{
		Name: name,
		Size: int64(len(content)),
		Open: func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader(content)), nil },
	}
}
