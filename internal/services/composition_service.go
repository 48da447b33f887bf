package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/ajramos/crm-mailbox/internal/outlook"
	"github.com/google/uuid"
)

// operation identifies a lifecycle operation for in-flight tracking
type operation int

const (
	opSending operation = iota
	opSavingDraft
	opUpdatingDraft
	opSendingDraft
	opLoadingDraft
	opRemovingAttachment
)

// CompositionServiceImpl implements CompositionService. Every lifecycle
// operation has its own in-flight flag, and none may start while any flag is set.
type CompositionServiceImpl struct {
	provider    DraftProvider
	attachments AttachmentService
	refresher   Refresher
	errors      *ErrorState
	bodyType    string
	saveToSent  bool
	logger      *log.Logger

	mu       sync.Mutex
	current  *Composition
	inFlight InFlight
}

// NewCompositionService creates a new composition service
func NewCompositionService(provider DraftProvider, attachments AttachmentService, refresher Refresher, errs *ErrorState) *CompositionServiceImpl {
	if errs == nil {
		errs = NewErrorState()
	}
	return &CompositionServiceImpl{
		provider:    provider,
		attachments: attachments,
		refresher:   refresher,
		errors:      errs,
		bodyType:    outlook.ContentTypeText,
		saveToSent:  true,
	}
}

// SetLogger sets the logger for debug output
func (s *CompositionServiceImpl) SetLogger(logger *log.Logger) {
	s.logger = logger
}

// SetBodyContentType sets the body content type for new compositions
func (s *CompositionServiceImpl) SetBodyContentType(contentType string) {
	if contentType == outlook.ContentTypeHTML || contentType == outlook.ContentTypeText {
		s.bodyType = contentType
	}
}

// SetDefaultSaveToSent sets SaveToSentItems for new compositions
func (s *CompositionServiceImpl) SetDefaultSaveToSent(save bool) {
	s.mu.Lock()
	s.saveToSent = save
	s.mu.Unlock()
}

// OpenCompose starts an empty composition
func (s *CompositionServiceImpl) OpenCompose() (*Composition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight.Any() {
		return nil, ErrOperationInProgress
	}
	if s.current != nil {
		return nil, ErrComposeOpen
	}

	now := time.Now()
	s.current = &Composition{
		ID:   uuid.New().String(),
		Mode: ComposeComposing,
		State: ComposeState{
			Body:            outlook.ItemBody{ContentType: s.bodyType},
			SaveToSentItems: s.saveToSent,
		},
		CreatedAt:  now,
		ModifiedAt: now,
	}
	if s.logger != nil {
		s.logger.Printf("CompositionService: opened composition %s", s.current.ID)
	}
	return s.current.clone(), nil
}

// OpenEditDraft seeds a composition from an existing draft. A failure to list
// the draft's attachments is reported but does not prevent editing.
func (s *CompositionServiceImpl) OpenEditDraft(ctx context.Context, draft outlook.Message) (*Composition, error) {
	if draft.ID == "" {
		return nil, fmt.Errorf("%w: draft ID cannot be empty", ErrInvalidMessageID)
	}
	s.mu.Lock()
	if s.inFlight.Any() {
		s.mu.Unlock()
		return nil, ErrOperationInProgress
	}
	if s.current != nil {
		s.mu.Unlock()
		return nil, ErrComposeOpen
	}
	s.inFlight.LoadingDraft = true
	s.mu.Unlock()

	body := draft.Body
	if body.ContentType == "" {
		body.ContentType = s.bodyType
	}
	now := time.Now()
	comp := &Composition{
		ID:   uuid.New().String(),
		Mode: ComposeEditingDraft,
		State: ComposeState{
			Subject:         draft.Subject,
			Body:            body,
			To:              append([]outlook.Recipient(nil), draft.ToRecipients...),
			Cc:              append([]outlook.Recipient(nil), draft.CcRecipients...),
			Bcc:             append([]outlook.Recipient(nil), draft.BccRecipients...),
			SaveToSentItems: true,
		},
		DraftID:    draft.ID,
		CreatedAt:  now,
		ModifiedAt: now,
	}

	if draft.HasAttachments && s.attachments != nil {
		atts, err := s.attachments.List(ctx, draft.ID)
		if err != nil {
			if s.logger != nil {
				s.logger.Printf("CompositionService: could not list attachments of draft %s: %v", draft.ID, err)
			}
		} else {
			comp.DraftAttachments = atts
		}
	}

	s.mu.Lock()
	s.current = comp
	s.inFlight.LoadingDraft = false
	s.mu.Unlock()
	return comp.clone(), nil
}

// Update applies an edit to the open composition
func (s *CompositionServiceImpl) Update(fn func(*ComposeState)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ErrNotComposing
	}
	if s.inFlight.Any() {
		return ErrOperationInProgress
	}
	fn(&s.current.State)
	s.current.ModifiedAt = time.Now()
	return nil
}

// SetRecipientsFromText parses free-text recipient fields
func (s *CompositionServiceImpl) SetRecipientsFromText(to, cc, bcc string) error {
	return s.Update(func(st *ComposeState) {
		st.To = ParseEmails(to)
		st.Cc = ParseEmails(cc)
		st.Bcc = ParseEmails(bcc)
	})
}

// AddAttachment queues a local file for upload
func (s *CompositionServiceImpl) AddAttachment(att PendingAttachment) error {
	if att.Open == nil || strings.TrimSpace(att.Name) == "" {
		return fmt.Errorf("%w: attachment needs a name and content", ErrInvalidInput)
	}
	return s.Update(func(st *ComposeState) {
		st.Attachments = append(st.Attachments, att)
	})
}

// RemovePendingAttachment drops a queued file by position
func (s *CompositionServiceImpl) RemovePendingAttachment(index int) error {
	var outOfRange bool
	err := s.Update(func(st *ComposeState) {
		if index < 0 || index >= len(st.Attachments) {
			outOfRange = true
			return
		}
		st.Attachments = append(st.Attachments[:index:index], st.Attachments[index+1:]...)
	})
	if err != nil {
		return err
	}
	if outOfRange {
		return fmt.Errorf("%w: no pending attachment at %d", ErrInvalidInput, index)
	}
	return nil
}

// RemoveDraftAttachment deletes an uploaded attachment of the draft being
// edited and reloads the draft's attachment list
func (s *CompositionServiceImpl) RemoveDraftAttachment(ctx context.Context, attachmentID string) error {
	s.mu.Lock()
	if s.current == nil || s.current.Mode != ComposeEditingDraft {
		s.mu.Unlock()
		return ErrNoActiveDraft
	}
	if s.inFlight.Any() {
		s.mu.Unlock()
		return ErrOperationInProgress
	}
	s.inFlight.RemovingAttachment = true
	draftID := s.current.DraftID
	s.mu.Unlock()
	defer s.end(opRemovingAttachment)

	if err := s.attachments.Remove(ctx, draftID, attachmentID); err != nil {
		return err
	}
	atts, err := s.attachments.List(ctx, draftID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.current != nil && s.current.DraftID == draftID {
		s.current.DraftAttachments = atts
	}
	s.mu.Unlock()
	return nil
}

// CanSend reports whether Send may be invoked now
func (s *CompositionServiceImpl) CanSend() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil && !s.inFlight.Any() && s.current.State.sendable()
}

// Send delivers the composition. Pending attachments go through a draft:
// create, upload each in order, send the draft. Any failing step aborts the
// send and leaves the composition untouched for a retry.
func (s *CompositionServiceImpl) Send(ctx context.Context) error {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return ErrNotComposing
	}
	if s.inFlight.Any() {
		s.mu.Unlock()
		return ErrOperationInProgress
	}
	if !s.current.State.sendable() {
		s.mu.Unlock()
		return ErrComposeIncomplete
	}
	s.inFlight.Sending = true
	comp := s.current.clone()
	s.mu.Unlock()

	err := s.send(ctx, comp)
	if err != nil {
		s.end(opSending)
		s.errors.Report("Failed to send message", err)
		return err
	}

	s.finish(opSending, comp.ID)
	if s.logger != nil {
		s.logger.Printf("CompositionService: sent composition %s", comp.ID)
	}
	s.refresh(ctx)
	return nil
}

func (s *CompositionServiceImpl) send(ctx context.Context, comp *Composition) error {
	req := comp.State.draftRequest()

	if comp.Mode == ComposeEditingDraft {
		if _, err := s.provider.UpdateDraft(ctx, comp.DraftID, req); err != nil {
			return err
		}
		if err := s.uploadAll(ctx, comp.DraftID, comp.State.Attachments); err != nil {
			return err
		}
		return s.provider.SendDraft(ctx, comp.DraftID)
	}

	if len(comp.State.Attachments) == 0 {
		return s.provider.SendMail(ctx, outlook.SendRequest{
			DraftRequest:    req,
			SaveToSentItems: comp.State.SaveToSentItems,
		})
	}

	draft, err := s.provider.CreateDraft(ctx, req)
	if err != nil {
		return err
	}
	if err := s.uploadAll(ctx, draft.ID, comp.State.Attachments); err != nil {
		if s.logger != nil {
			s.logger.Printf("CompositionService: send aborted, draft %s left unsent: %v", draft.ID, err)
		}
		return err
	}
	return s.provider.SendDraft(ctx, draft.ID)
}

// uploadAll uploads sequentially and stops at the first failure
func (s *CompositionServiceImpl) uploadAll(ctx context.Context, draftID string, atts []PendingAttachment) error {
	for _, att := range atts {
		if _, _, err := s.attachments.Upload(ctx, draftID, att, false); err != nil {
			return fmt.Errorf("attachment %s: %w", att.Name, err)
		}
	}
	return nil
}

// uploadTolerant uploads every file, collecting failures instead of stopping
func (s *CompositionServiceImpl) uploadTolerant(ctx context.Context, draftID string, atts []PendingAttachment) ([]outlook.Attachment, []AttachmentFailure) {
	var uploaded []outlook.Attachment
	var failed []AttachmentFailure
	for _, att := range atts {
		a, _, err := s.attachments.Upload(ctx, draftID, att, false)
		if err != nil {
			if s.logger != nil {
				s.logger.Printf("CompositionService: attachment %s failed for draft %s: %v", att.Name, draftID, err)
			}
			failed = append(failed, AttachmentFailure{Name: att.Name, Err: err})
			continue
		}
		if a != nil {
			uploaded = append(uploaded, *a)
		}
	}
	return uploaded, failed
}

// SaveDraft stores a new composition as a draft. Attachment upload failures
// do not fail the save; they are returned in the result and reported.
func (s *CompositionServiceImpl) SaveDraft(ctx context.Context) (*DraftResult, error) {
	s.mu.Lock()
	if s.current == nil || s.current.Mode != ComposeComposing {
		s.mu.Unlock()
		return nil, ErrNotComposing
	}
	if s.inFlight.Any() {
		s.mu.Unlock()
		return nil, ErrOperationInProgress
	}
	s.inFlight.SavingDraft = true
	comp := s.current.clone()
	s.mu.Unlock()

	draft, err := s.provider.CreateDraft(ctx, comp.State.draftRequest())
	if err != nil {
		s.end(opSavingDraft)
		s.errors.Report("Failed to save draft", err)
		return nil, err
	}

	result := &DraftResult{DraftID: draft.ID}
	result.Uploaded, result.FailedAttachments = s.uploadTolerant(ctx, draft.ID, comp.State.Attachments)

	s.finish(opSavingDraft, comp.ID)
	s.reportFailedUploads(result.FailedAttachments)
	s.refresh(ctx)
	return result, nil
}

// UpdateDraft patches the draft being edited and uploads newly added files
// with the same tolerance as SaveDraft
func (s *CompositionServiceImpl) UpdateDraft(ctx context.Context) (*DraftResult, error) {
	s.mu.Lock()
	if s.current == nil || s.current.Mode != ComposeEditingDraft || s.current.DraftID == "" {
		s.mu.Unlock()
		return nil, ErrNoActiveDraft
	}
	if s.inFlight.Any() {
		s.mu.Unlock()
		return nil, ErrOperationInProgress
	}
	s.inFlight.UpdatingDraft = true
	comp := s.current.clone()
	s.mu.Unlock()

	if _, err := s.provider.UpdateDraft(ctx, comp.DraftID, comp.State.draftRequest()); err != nil {
		s.end(opUpdatingDraft)
		s.errors.Report("Failed to update draft", err)
		return nil, err
	}

	result := &DraftResult{DraftID: comp.DraftID}
	result.Uploaded, result.FailedAttachments = s.uploadTolerant(ctx, comp.DraftID, comp.State.Attachments)

	s.finish(opUpdatingDraft, comp.ID)
	s.reportFailedUploads(result.FailedAttachments)
	s.refresh(ctx)
	return result, nil
}

// SendDraft sends an existing draft by id, independent of any open composition
func (s *CompositionServiceImpl) SendDraft(ctx context.Context, draftID string) error {
	if draftID == "" {
		return fmt.Errorf("%w: draft ID cannot be empty", ErrInvalidMessageID)
	}
	if err := s.begin(opSendingDraft); err != nil {
		return err
	}

	err := s.provider.SendDraft(ctx, draftID)
	s.end(opSendingDraft)
	if err != nil {
		s.errors.Report("Failed to send draft", err)
		return err
	}
	s.refresh(ctx)
	return nil
}

// Cancel discards the open composition
func (s *CompositionServiceImpl) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight.Any() {
		return ErrOperationInProgress
	}
	s.current = nil
	return nil
}

// Current returns a copy of the open composition, or nil
func (s *CompositionServiceImpl) Current() *Composition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.clone()
}

// Mode returns the lifecycle state
func (s *CompositionServiceImpl) Mode() ComposeMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ComposeIdle
	}
	return s.current.Mode
}

// InFlight returns the in-flight flags
func (s *CompositionServiceImpl) InFlight() InFlight {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

func (s *CompositionServiceImpl) begin(op operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight.Any() {
		return ErrOperationInProgress
	}
	s.setFlag(op, true)
	return nil
}

func (s *CompositionServiceImpl) end(op operation) {
	s.mu.Lock()
	s.setFlag(op, false)
	s.mu.Unlock()
}

// finish clears the flag and resets the composition it operated on
func (s *CompositionServiceImpl) finish(op operation, compositionID string) {
	s.mu.Lock()
	s.setFlag(op, false)
	if s.current != nil && s.current.ID == compositionID {
		s.current = nil
	}
	s.mu.Unlock()
}

func (s *CompositionServiceImpl) setFlag(op operation, v bool) {
	switch op {
	case opSending:
		s.inFlight.Sending = v
	case opSavingDraft:
		s.inFlight.SavingDraft = v
	case opUpdatingDraft:
		s.inFlight.UpdatingDraft = v
	case opSendingDraft:
		s.inFlight.SendingDraft = v
	case opLoadingDraft:
		s.inFlight.LoadingDraft = v
	case opRemovingAttachment:
		s.inFlight.RemovingAttachment = v
	}
}

func (s *CompositionServiceImpl) reportFailedUploads(failed []AttachmentFailure) {
	if len(failed) == 0 {
		return
	}
	names := make([]string, 0, len(failed))
	for _, f := range failed {
		names = append(names, f.Name)
	}
	s.errors.Report("Draft saved, but some attachments failed to upload",
		fmt.Errorf("%s: %w", strings.Join(names, ", "), failed[len(failed)-1].Err))
}

// refresh reloads the mailbox; its failure is reported by the refresher
func (s *CompositionServiceImpl) refresh(ctx context.Context) {
	if s.refresher == nil {
		return
	}
	if err := s.refresher.Refresh(ctx); err != nil && s.logger != nil {
		s.logger.Printf("CompositionService: refresh after operation failed: %v", err)
	}
}

func (st ComposeState) sendable() bool {
	return len(st.To) > 0 && strings.TrimSpace(st.Subject) != ""
}

func (st ComposeState) draftRequest() outlook.DraftRequest {
	return outlook.DraftRequest{
		Subject:       st.Subject,
		Body:          st.Body,
		ToRecipients:  nonNilRecipients(st.To),
		CcRecipients:  nonNilRecipients(st.Cc),
		BccRecipients: nonNilRecipients(st.Bcc),
	}
}

func nonNilRecipients(r []outlook.Recipient) []outlook.Recipient {
	if r == nil {
		return []outlook.Recipient{}
	}
	return r
}

func (c *Composition) clone() *Composition {
	if c == nil {
		return nil
	}
	cp := *c
	cp.State.To = append([]outlook.Recipient(nil), c.State.To...)
	cp.State.Cc = append([]outlook.Recipient(nil), c.State.Cc...)
	cp.State.Bcc = append([]outlook.Recipient(nil), c.State.Bcc...)
	cp.State.Attachments = append([]PendingAttachment(nil), c.State.Attachments...)
	cp.DraftAttachments = append([]outlook.Attachment(nil), c.DraftAttachments...)
	return &cp
}
