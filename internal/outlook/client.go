package outlook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
)

// maxErrorBody bounds how much of a failed response is read for diagnostics
const maxErrorBody = 64 << 10

// Client talks to the mail-provider HTTP API
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     oauth2.TokenSource
	logger     *log.Logger
}

// NewClient creates a new provider client. httpClient may be nil.
func NewClient(baseURL string, tokens oauth2.TokenSource, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		tokens:     tokens,
	}
}

// SetLogger sets the logger for request tracing
func (c *Client) SetLogger(logger *log.Logger) {
	c.logger = logger
}

// BaseURL returns the API root this client targets
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListConversations fetches every folder's conversations, server-threaded
func (c *Client) ListConversations(ctx context.Context) (*ThreadedMailbox, error) {
	var out ThreadedMailbox
	q := url.Values{"threaded": []string{"true"}}
	if err := c.doJSON(ctx, http.MethodGet, "/messages", q, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return &out, nil
}

// GetConversation fetches all messages of one conversation
func (c *Client) GetConversation(ctx context.Context, conversationID string) ([]Message, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("conversation ID cannot be empty")
	}
	var out struct {
		Messages []Message `json:"messages"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/conversations/"+url.PathEscape(conversationID), nil, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to get conversation %s: %w", conversationID, err)
	}
	return out.Messages, nil
}

// Search runs a provider-side search. top <= 0 leaves the limit to the provider.
func (c *Client) Search(ctx context.Context, query string, top int) ([]Message, error) {
	q := url.Values{"query": []string{query}}
	if top > 0 {
		q.Set("top", strconv.Itoa(top))
	}
	var out struct {
		Emails []Message `json:"emails"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/search", q, nil, &out); err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return out.Emails, nil
}

// SendMail sends a message directly without creating a draft
func (c *Client) SendMail(ctx context.Context, req SendRequest) error {
	if err := c.doJSON(ctx, http.MethodPost, "/send", nil, req, nil); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// CreateDraft creates a draft and returns it with its provider-assigned id
func (c *Client) CreateDraft(ctx context.Context, req DraftRequest) (*Message, error) {
	var out draftEnvelope
	if err := c.doJSON(ctx, http.MethodPost, "/drafts", nil, req, &out); err != nil {
		return nil, fmt.Errorf("failed to create draft: %w", err)
	}
	draft := out.message()
	if draft.ID == "" {
		return nil, fmt.Errorf("failed to create draft: response carried no draft id")
	}
	return draft, nil
}

// UpdateDraft patches subject, body and recipients of an existing draft
func (c *Client) UpdateDraft(ctx context.Context, draftID string, req DraftRequest) (*Message, error) {
	if draftID == "" {
		return nil, fmt.Errorf("draft ID cannot be empty")
	}
	var out draftEnvelope
	if err := c.doJSON(ctx, http.MethodPatch, "/drafts/"+url.PathEscape(draftID), nil, req, &out); err != nil {
		return nil, fmt.Errorf("failed to update draft %s: %w", draftID, err)
	}
	draft := out.message()
	if draft.ID == "" {
		draft.ID = draftID
	}
	return draft, nil
}

// SendDraft sends an existing draft
func (c *Client) SendDraft(ctx context.Context, draftID string) error {
	if draftID == "" {
		return fmt.Errorf("draft ID cannot be empty")
	}
	if err := c.doJSON(ctx, http.MethodPost, "/drafts/"+url.PathEscape(draftID)+"/send", nil, nil, nil); err != nil {
		return fmt.Errorf("failed to send draft %s: %w", draftID, err)
	}
	return nil
}

// Reply replies to a message with a comment
func (c *Client) Reply(ctx context.Context, messageID, comment string) error {
	body := struct {
		MessageID string `json:"messageId"`
		Comment   string `json:"comment"`
	}{messageID, comment}
	if err := c.doJSON(ctx, http.MethodPost, "/reply", nil, body, nil); err != nil {
		return fmt.Errorf("failed to reply: %w", err)
	}
	return nil
}

// Forward forwards a message to new recipients
func (c *Client) Forward(ctx context.Context, messageID string, to []Recipient, comment string) error {
	body := struct {
		MessageID    string      `json:"messageId"`
		ToRecipients []Recipient `json:"toRecipients"`
		Comment      string      `json:"comment"`
	}{messageID, to, comment}
	if err := c.doJSON(ctx, http.MethodPost, "/forward", nil, body, nil); err != nil {
		return fmt.Errorf("failed to forward: %w", err)
	}
	return nil
}

// Move moves a message to another folder
func (c *Client) Move(ctx context.Context, messageID, destinationID string) error {
	body := struct {
		MessageID     string `json:"messageId"`
		DestinationID string `json:"destinationId"`
	}{messageID, destinationID}
	if err := c.doJSON(ctx, http.MethodPost, "/move", nil, body, nil); err != nil {
		return fmt.Errorf("failed to move message: %w", err)
	}
	return nil
}

// DeleteMessage deletes a message
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	if messageID == "" {
		return fmt.Errorf("message ID cannot be empty")
	}
	if err := c.doJSON(ctx, http.MethodDelete, "/message/"+url.PathEscape(messageID), nil, nil, nil); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

// ListAttachments fetches attachment metadata for a message
func (c *Client) ListAttachments(ctx context.Context, messageID string) ([]Attachment, error) {
	var out struct {
		Attachments []Attachment `json:"attachments"`
	}
	if err := c.doJSON(ctx, http.MethodGet, attachmentsPath(messageID), nil, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	return out.Attachments, nil
}

// DownloadAttachment fetches the binary content of one attachment
func (c *Client) DownloadAttachment(ctx context.Context, messageID, attachmentID string) (*AttachmentContent, error) {
	resp, err := c.do(ctx, http.MethodGet, attachmentsPath(messageID)+"/"+url.PathEscape(attachmentID), nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("failed to download attachment: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read attachment content: %w", err)
	}
	content := &AttachmentContent{
		Data:        data,
		ContentType: resp.Header.Get("Content-Type"),
	}
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			content.FileName = params["filename"]
		}
	}
	return content, nil
}

// UploadAttachment uploads one file to a message or draft as multipart field "file"
func (c *Client) UploadAttachment(ctx context.Context, messageID, fileName string, r io.Reader) (*Attachment, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", fileName, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, attachmentsPath(messageID), nil, &buf, mw.FormDataContentType())
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", fileName, err)
	}
	defer resp.Body.Close()

	var out attachmentEnvelope
	if err := decodeBody(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode upload response: %w", err)
	}
	att := out.attachment()
	if att.Name == "" {
		att.Name = fileName
	}
	return att, nil
}

// DeleteAttachment removes an attachment from a message or draft
func (c *Client) DeleteAttachment(ctx context.Context, messageID, attachmentID string) error {
	if err := c.doJSON(ctx, http.MethodDelete, attachmentsPath(messageID)+"/"+url.PathEscape(attachmentID), nil, nil, nil); err != nil {
		return fmt.Errorf("failed to delete attachment: %w", err)
	}
	return nil
}

func attachmentsPath(messageID string) string {
	return "/messages/" + url.PathEscape(messageID) + "/attachments"
}

// draftEnvelope accepts either a bare message or {"draft": message}
type draftEnvelope struct {
	Message
	Draft *Message `json:"draft"`
}

func (e *draftEnvelope) message() *Message {
	if e.Draft != nil {
		return e.Draft
	}
	m := e.Message
	return &m
}

// attachmentEnvelope accepts either a bare attachment or {"attachment": attachment}
type attachmentEnvelope struct {
	Attachment
	Wrapped *Attachment `json:"attachment"`
}

func (e *attachmentEnvelope) attachment() *Attachment {
	if e.Wrapped != nil {
		return e.Wrapped
	}
	a := e.Attachment
	return &a
}

// doJSON sends an optional JSON body and decodes an optional JSON response
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	resp, err := c.do(ctx, method, path, query, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := decodeBody(resp.Body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeBody decodes JSON, treating an empty body as nothing to decode
func decodeBody(r io.Reader, out any) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

// do issues an authenticated request and turns non-2xx responses into *APIError.
// The caller owns the returned body.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string) (*http.Response, error) {
	token, err := c.token()
	if err != nil {
		return nil, err
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	token.SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if c.logger != nil {
			c.logger.Printf("OutlookClient: %s %s failed: %v", method, path, err)
		}
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if c.logger != nil {
		c.logger.Printf("OutlookClient: %s %s -> %d", method, path, resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, newAPIError(resp.StatusCode, resp.Status, resp.Header.Get("Content-Type"), data)
	}
	return resp, nil
}

func (c *Client) token() (*oauth2.Token, error) {
	if c.tokens == nil {
		return nil, ErrNotAuthenticated
	}
	token, err := c.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotAuthenticated, err)
	}
	if token == nil || token.AccessToken == "" {
		return nil, ErrNotAuthenticated
	}
	return token, nil
}
