package outlook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Body content types accepted by the provider
const (
	ContentTypeHTML = "HTML"
	ContentTypeText = "Text"
)

// Recipient is a single mailbox address with an optional display name
type Recipient struct {
	Name    string
	Address string
}

type emailAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type wireRecipient struct {
	EmailAddress *emailAddress `json:"emailAddress,omitempty"`
	Name         string        `json:"name,omitempty"`
	Address      string        `json:"address,omitempty"`
}

// MarshalJSON encodes the recipient in the provider's {"emailAddress":{...}} form
func (r Recipient) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireRecipient{EmailAddress: &emailAddress{Name: r.Name, Address: r.Address}})
}

// UnmarshalJSON accepts both the nested provider form and a flat {name, address} object
func (r *Recipient) UnmarshalJSON(data []byte) error {
	var w wireRecipient
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.EmailAddress != nil {
		r.Name = w.EmailAddress.Name
		r.Address = w.EmailAddress.Address
		return nil
	}
	r.Name = w.Name
	r.Address = w.Address
	return nil
}

// ItemBody is a message body with its content type
type ItemBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

// Message is one email as returned by the provider
type Message struct {
	ID               string      `json:"id"`
	ConversationID   string      `json:"conversationId"`
	Subject          string      `json:"subject"`
	From             *Recipient  `json:"from,omitempty"`
	ToRecipients     []Recipient `json:"toRecipients"`
	CcRecipients     []Recipient `json:"ccRecipients,omitempty"`
	BccRecipients    []Recipient `json:"bccRecipients,omitempty"`
	BodyPreview      string      `json:"bodyPreview"`
	Body             ItemBody    `json:"body"`
	ReceivedDateTime time.Time   `json:"receivedDateTime"`
	IsRead           bool        `json:"isRead"`
	HasAttachments   bool        `json:"hasAttachments"`
	IsDraft          bool        `json:"isDraft"`
	OriginalFolder   string      `json:"originalFolder"`
}

// UnmarshalJSON accepts an empty or missing receivedDateTime, which drafts
// that were never received carry, as the zero time. Timestamps without a
// zone offset are read as UTC.
func (m *Message) UnmarshalJSON(data []byte) error {
	type message Message
	aux := struct {
		*message
		ReceivedDateTime *string `json:"receivedDateTime"`
	}{message: (*message)(m)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	m.ReceivedDateTime = time.Time{}
	if aux.ReceivedDateTime == nil || *aux.ReceivedDateTime == "" {
		return nil
	}
	t, err := parseDateTime(*aux.ReceivedDateTime)
	if err != nil {
		return fmt.Errorf("message %s: receivedDateTime: %w", m.ID, err)
	}
	m.ReceivedDateTime = t
	return nil
}

func parseDateTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05.9999999", v)
}

// Attachment is attachment metadata; content is fetched separately
type Attachment struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	IsInline    bool   `json:"isInline"`
	ContentID   string `json:"contentId,omitempty"`
}

// AttachmentContent is a downloaded attachment payload
type AttachmentContent struct {
	Data        []byte
	ContentType string
	FileName    string
}

// DraftRequest is the payload for creating or updating a draft.
// It intentionally carries no attachments; those are uploaded separately.
type DraftRequest struct {
	Subject       string      `json:"subject"`
	Body          ItemBody    `json:"body"`
	ToRecipients  []Recipient `json:"toRecipients"`
	CcRecipients  []Recipient `json:"ccRecipients"`
	BccRecipients []Recipient `json:"bccRecipients"`
}

// SendRequest is the payload for sending a message directly
type SendRequest struct {
	DraftRequest
	SaveToSentItems bool `json:"saveToSentItems"`
}

// ConversationMessages is one conversation of a folder in provider order
type ConversationMessages struct {
	ConversationID string
	Messages       []Message
}

// FolderConversations is one folder of the threaded listing in provider order
type FolderConversations struct {
	Folder        string
	Conversations []ConversationMessages
}

// ThreadedMailbox is the server-threaded listing. JSON object key order is
// preserved for both folders and conversations.
type ThreadedMailbox struct {
	Folders []FolderConversations
}

// UnmarshalJSON decodes {"conversations": {folder: {conversationId: [Message]}}}
func (m *ThreadedMailbox) UnmarshalJSON(data []byte) error {
	var raw struct {
		Conversations orderedFolders `json:"conversations"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Folders = raw.Conversations
	return nil
}

type orderedFolders []FolderConversations

func (f *orderedFolders) UnmarshalJSON(data []byte) error {
	var out []FolderConversations
	err := decodeOrderedObject(data, func(dec *json.Decoder, key string) error {
		var convs orderedConversations
		if err := dec.Decode(&convs); err != nil {
			return fmt.Errorf("folder %q: %w", key, err)
		}
		out = append(out, FolderConversations{Folder: key, Conversations: convs})
		return nil
	})
	if err != nil {
		return err
	}
	*f = out
	return nil
}

type orderedConversations []ConversationMessages

func (c *orderedConversations) UnmarshalJSON(data []byte) error {
	var out []ConversationMessages
	err := decodeOrderedObject(data, func(dec *json.Decoder, key string) error {
		var msgs []Message
		if err := dec.Decode(&msgs); err != nil {
			return fmt.Errorf("conversation %q: %w", key, err)
		}
		out = append(out, ConversationMessages{ConversationID: key, Messages: msgs})
		return nil
	})
	if err != nil {
		return err
	}
	*c = out
	return nil
}

// decodeOrderedObject walks a JSON object key by key in document order.
// A JSON null decodes as an empty object.
func decodeOrderedObject(data []byte, each func(dec *json.Decoder, key string) error) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", keyTok)
		}
		if err := each(dec, key); err != nil {
			return err
		}
	}
	_, err = dec.Token()
	return err
}
