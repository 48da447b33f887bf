package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ajramos/crm-mailbox/internal/outlook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// countingRefresher records refresh calls
type countingRefresher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *countingRefresher) Refresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.err
}

func (r *countingRefresher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// callLog records provider calls in order
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(name string) func(mock.Arguments) {
	return func(mock.Arguments) {
		l.mu.Lock()
		l.calls = append(l.calls, name)
		l.mu.Unlock()
	}
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func newComposition(t *testing.T) (*CompositionServiceImpl, *MockProvider, *countingRefresher, *ErrorState) {
	t.Helper()
	provider := new(MockProvider)
	errs := NewErrorState()
	refresher := &countingRefresher{}
	atts := NewAttachmentService(provider, errs, t.TempDir())
	return NewCompositionService(provider, atts, refresher, errs), provider, refresher, errs
}

func openFilled(t *testing.T, svc *CompositionServiceImpl, attachments ...PendingAttachment) {
	t.Helper()
	_, err := svc.OpenCompose()
	require.NoError(t, err)
	require.NoError(t, svc.SetRecipientsFromText("Ann <ann@x.io>", "", ""))
	require.NoError(t, svc.Update(func(st *ComposeState) {
		st.Subject = "Quarterly numbers"
		st.Body.Content = "see attached"
	}))
	for _, a := range attachments {
		require.NoError(t, svc.AddAttachment(a))
	}
}

func TestCompositionService_OpenCompose(t *testing.T) {
	svc, _, _, _ := newComposition(t)
	assert.Equal(t, ComposeIdle, svc.Mode())
	assert.Nil(t, svc.Current())

	comp, err := svc.OpenCompose()
	require.NoError(t, err)
	assert.NotEmpty(t, comp.ID)
	assert.Equal(t, ComposeComposing, comp.Mode)
	assert.True(t, comp.State.SaveToSentItems)
	assert.Equal(t, outlook.ContentTypeText, comp.State.Body.ContentType)
	assert.Equal(t, ComposeComposing, svc.Mode())
}

func TestCompositionService_CurrentIsACopy(t *testing.T) {
	svc, _, _, _ := newComposition(t)
	openFilled(t, svc)

	c := svc.Current()
	c.State.To[0].Address = "changed@x.io"
	c.State.Subject = "changed"

	assert.Equal(t, "ann@x.io", svc.Current().State.To[0].Address)
	assert.Equal(t, "Quarterly numbers", svc.Current().State.Subject)
}

func TestCompositionService_SendValidation(t *testing.T) {
	svc, provider, _, _ := newComposition(t)

	assert.ErrorIs(t, svc.Send(context.Background()), ErrNotComposing)

	_, err := svc.OpenCompose()
	require.NoError(t, err)
	assert.False(t, svc.CanSend())
	assert.ErrorIs(t, svc.Send(context.Background()), ErrComposeIncomplete)

	require.NoError(t, svc.Update(func(st *ComposeState) { st.Subject = "   " }))
	require.NoError(t, svc.SetRecipientsFromText("a@x.io", "", ""))
	assert.ErrorIs(t, svc.Send(context.Background()), ErrComposeIncomplete)

	require.NoError(t, svc.Update(func(st *ComposeState) { st.Subject = "hi" }))
	assert.True(t, svc.CanSend())

	provider.AssertNotCalled(t, "SendMail", mock.Anything, mock.Anything)
}

func TestCompositionService_SendWithoutAttachments(t *testing.T) {
	svc, provider, refresher, errs := newComposition(t)
	openFilled(t, svc)

	provider.On("SendMail", mock.Anything, mock.MatchedBy(func(req outlook.SendRequest) bool {
		return req.Subject == "Quarterly numbers" &&
			req.SaveToSentItems &&
			len(req.ToRecipients) == 1 && req.ToRecipients[0].Address == "ann@x.io" &&
			req.CcRecipients != nil && req.BccRecipients != nil
	})).Return(nil).Once()

	require.NoError(t, svc.Send(context.Background()))

	assert.Equal(t, ComposeIdle, svc.Mode())
	assert.Equal(t, 1, refresher.count())
	assert.Empty(t, errs.Current())
	provider.AssertExpectations(t)
	provider.AssertNotCalled(t, "CreateDraft", mock.Anything, mock.Anything)
}

func TestCompositionService_SendWithAttachments_Order(t *testing.T) {
	svc, provider, refresher, _ := newComposition(t)
	openFilled(t, svc, memFile("a.txt", "alpha"), memFile("b.txt", "beta"))

	calls := &callLog{}
	provider.On("CreateDraft", mock.Anything, mock.Anything).
		Run(calls.add("create")).Return(&outlook.Message{ID: "d1"}, nil).Once()
	provider.On("UploadAttachment", mock.Anything, "d1", "a.txt", mock.Anything).
		Run(calls.add("upload a.txt")).Return(&outlook.Attachment{ID: "x1", Name: "a.txt"}, nil).Once()
	provider.On("UploadAttachment", mock.Anything, "d1", "b.txt", mock.Anything).
		Run(calls.add("upload b.txt")).Return(&outlook.Attachment{ID: "x2", Name: "b.txt"}, nil).Once()
	provider.On("SendDraft", mock.Anything, "d1").
		Run(calls.add("send")).Return(nil).Once()

	require.NoError(t, svc.Send(context.Background()))

	assert.Equal(t, []string{"create", "upload a.txt", "upload b.txt", "send"}, calls.all())
	assert.Equal(t, ComposeIdle, svc.Mode())
	assert.Equal(t, 1, refresher.count())
	provider.AssertExpectations(t)
	provider.AssertNotCalled(t, "SendMail", mock.Anything, mock.Anything)
}

func TestCompositionService_SendUploadFailureKeepsComposition(t *testing.T) {
	svc, provider, refresher, errs := newComposition(t)
	openFilled(t, svc, memFile("a.txt", "alpha"), memFile("b.txt", "beta"), memFile("c.txt", "gamma"))
	before := svc.Current()

	provider.On("CreateDraft", mock.Anything, mock.Anything).Return(&outlook.Message{ID: "d1"}, nil).Once()
	provider.On("UploadAttachment", mock.Anything, "d1", "a.txt", mock.Anything).Return(&outlook.Attachment{ID: "x1"}, nil).Once()
	provider.On("UploadAttachment", mock.Anything, "d1", "b.txt", mock.Anything).
		Return(nil, &outlook.APIError{StatusCode: 413, Message: "too large"}).Once()

	err := svc.Send(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b.txt")

	provider.AssertNotCalled(t, "SendDraft", mock.Anything, mock.Anything)
	provider.AssertNotCalled(t, "UploadAttachment", mock.Anything, "d1", "c.txt", mock.Anything)

	after := svc.Current()
	require.NotNil(t, after)
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, ComposeComposing, after.Mode)
	assert.Len(t, after.State.Attachments, 3)
	assert.Equal(t, before.State.Subject, after.State.Subject)
	assert.False(t, svc.InFlight().Any())
	assert.Equal(t, 0, refresher.count())
	assert.Contains(t, errs.Current(), "Failed to send message")
}

func TestCompositionService_SendFailureIsRetryable(t *testing.T) {
	svc, provider, _, errs := newComposition(t)
	openFilled(t, svc)

	provider.On("SendMail", mock.Anything, mock.Anything).
		Return(&outlook.APIError{StatusCode: 503, Message: "busy"}).Once()
	provider.On("SendMail", mock.Anything, mock.Anything).Return(nil).Once()

	require.Error(t, svc.Send(context.Background()))
	assert.Equal(t, ComposeComposing, svc.Mode())
	assert.Equal(t, "Failed to send message: busy (HTTP 503)", errs.Current())

	require.NoError(t, svc.Send(context.Background()))
	assert.Equal(t, ComposeIdle, svc.Mode())
	provider.AssertExpectations(t)
}

func TestCompositionService_SaveDraftToleratesUploadFailure(t *testing.T) {
	svc, provider, refresher, errs := newComposition(t)
	openFilled(t, svc, memFile("a.txt", "alpha"), memFile("b.txt", "beta"), memFile("c.txt", "gamma"))

	provider.On("CreateDraft", mock.Anything, mock.Anything).Return(&outlook.Message{ID: "d7"}, nil).Once()
	provider.On("UploadAttachment", mock.Anything, "d7", "a.txt", mock.Anything).Return(&outlook.Attachment{ID: "x1", Name: "a.txt"}, nil).Once()
	provider.On("UploadAttachment", mock.Anything, "d7", "b.txt", mock.Anything).Return(nil, errors.New("boom")).Once()
	provider.On("UploadAttachment", mock.Anything, "d7", "c.txt", mock.Anything).Return(&outlook.Attachment{ID: "x3", Name: "c.txt"}, nil).Once()

	result, err := svc.SaveDraft(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "d7", result.DraftID)
	require.Len(t, result.Uploaded, 2)
	assert.Equal(t, "x1", result.Uploaded[0].ID)
	assert.Equal(t, "x3", result.Uploaded[1].ID)
	require.Len(t, result.FailedAttachments, 1)
	assert.Equal(t, "b.txt", result.FailedAttachments[0].Name)

	assert.Equal(t, ComposeIdle, svc.Mode())
	assert.Equal(t, 1, refresher.count())
	assert.Contains(t, errs.Current(), "Draft saved, but some attachments failed to upload")
	assert.Contains(t, errs.Current(), "b.txt")
	provider.AssertExpectations(t)
}

func TestCompositionService_SaveDraftFailure(t *testing.T) {
	svc, provider, refresher, errs := newComposition(t)
	openFilled(t, svc)

	provider.On("CreateDraft", mock.Anything, mock.Anything).Return(nil, errors.New("offline")).Once()

	_, err := svc.SaveDraft(context.Background())
	require.Error(t, err)
	assert.Equal(t, ComposeComposing, svc.Mode())
	assert.False(t, svc.InFlight().Any())
	assert.Equal(t, 0, refresher.count())
	assert.Equal(t, "Failed to save draft: offline", errs.Current())
}

func TestCompositionService_EditDraftFlow(t *testing.T) {
	svc, provider, refresher, _ := newComposition(t)

	draft := outlook.Message{
		ID:             "d1",
		Subject:        "Draft subject",
		Body:           outlook.ItemBody{ContentType: outlook.ContentTypeHTML, Content: "<p>hi</p>"},
		ToRecipients:   []outlook.Recipient{{Name: "Ann", Address: "ann@x.io"}},
		HasAttachments: true,
		IsDraft:        true,
	}
	provider.On("ListAttachments", mock.Anything, "d1").
		Return([]outlook.Attachment{{ID: "x1", Name: "old.pdf"}}, nil).Once()

	comp, err := svc.OpenEditDraft(context.Background(), draft)
	require.NoError(t, err)
	assert.Equal(t, ComposeEditingDraft, comp.Mode)
	assert.Equal(t, "d1", comp.DraftID)
	assert.Equal(t, "Draft subject", comp.State.Subject)
	assert.Equal(t, outlook.ContentTypeHTML, comp.State.Body.ContentType)
	require.Len(t, comp.DraftAttachments, 1)
	assert.False(t, svc.InFlight().LoadingDraft)

	// SaveDraft only applies to new compositions
	_, err = svc.SaveDraft(context.Background())
	assert.ErrorIs(t, err, ErrNotComposing)

	require.NoError(t, svc.AddAttachment(memFile("new.txt", "n")))
	calls := &callLog{}
	provider.On("UpdateDraft", mock.Anything, "d1", mock.MatchedBy(func(req outlook.DraftRequest) bool {
		return req.Subject == "Draft subject"
	})).Run(calls.add("update")).Return(&outlook.Message{ID: "d1"}, nil).Once()
	provider.On("UploadAttachment", mock.Anything, "d1", "new.txt", mock.Anything).
		Run(calls.add("upload")).Return(&outlook.Attachment{ID: "x2"}, nil).Once()
	provider.On("SendDraft", mock.Anything, "d1").Run(calls.add("send")).Return(nil).Once()

	require.NoError(t, svc.Send(context.Background()))
	assert.Equal(t, []string{"update", "upload", "send"}, calls.all())
	assert.Equal(t, ComposeIdle, svc.Mode())
	assert.Equal(t, 1, refresher.count())
	provider.AssertExpectations(t)
}

func TestCompositionService_OpenEditDraftListFailure(t *testing.T) {
	svc, provider, _, _ := newComposition(t)
	provider.On("ListAttachments", mock.Anything, "d1").Return(nil, errors.New("nope")).Once()

	comp, err := svc.OpenEditDraft(context.Background(), outlook.Message{ID: "d1", HasAttachments: true})
	require.NoError(t, err)
	assert.Empty(t, comp.DraftAttachments)
	assert.Equal(t, ComposeEditingDraft, svc.Mode())

	_, err = svc.OpenEditDraft(context.Background(), outlook.Message{})
	assert.ErrorIs(t, err, ErrInvalidMessageID)
}

func TestCompositionService_UpdateDraft(t *testing.T) {
	svc, provider, refresher, _ := newComposition(t)

	_, err := svc.UpdateDraft(context.Background())
	assert.ErrorIs(t, err, ErrNoActiveDraft)

	_, err = svc.OpenEditDraft(context.Background(), outlook.Message{ID: "d1", Subject: "s"})
	require.NoError(t, err)
	require.NoError(t, svc.AddAttachment(memFile("x.txt", "x")))

	provider.On("UpdateDraft", mock.Anything, "d1", mock.Anything).Return(&outlook.Message{ID: "d1"}, nil).Once()
	provider.On("UploadAttachment", mock.Anything, "d1", "x.txt", mock.Anything).Return(nil, errors.New("fail")).Once()

	result, err := svc.UpdateDraft(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "d1", result.DraftID)
	assert.Len(t, result.FailedAttachments, 1)
	assert.Equal(t, ComposeIdle, svc.Mode())
	assert.Equal(t, 1, refresher.count())
}

func TestCompositionService_RemoveDraftAttachment(t *testing.T) {
	svc, provider, _, _ := newComposition(t)

	assert.ErrorIs(t, svc.RemoveDraftAttachment(context.Background(), "x1"), ErrNoActiveDraft)

	provider.On("ListAttachments", mock.Anything, "d1").
		Return([]outlook.Attachment{{ID: "x1"}, {ID: "x2"}}, nil).Once()
	_, err := svc.OpenEditDraft(context.Background(), outlook.Message{ID: "d1", HasAttachments: true})
	require.NoError(t, err)

	provider.On("DeleteAttachment", mock.Anything, "d1", "x1").Return(nil).Once()
	provider.On("ListAttachments", mock.Anything, "d1").Return([]outlook.Attachment{{ID: "x2"}}, nil).Once()

	require.NoError(t, svc.RemoveDraftAttachment(context.Background(), "x1"))
	require.Len(t, svc.Current().DraftAttachments, 1)
	assert.Equal(t, "x2", svc.Current().DraftAttachments[0].ID)
	provider.AssertExpectations(t)
}

// A running draft-attachment removal holds the lifecycle like any other operation.
func TestCompositionService_RemoveDraftAttachmentBlocksOperations(t *testing.T) {
	defer goleak.VerifyNone(t)

	svc, provider, _, _ := newComposition(t)
	provider.On("ListAttachments", mock.Anything, "d1").
		Return([]outlook.Attachment{{ID: "x1"}}, nil).Once()
	_, err := svc.OpenEditDraft(context.Background(), outlook.Message{ID: "d1", Subject: "s", HasAttachments: true})
	require.NoError(t, err)
	require.NoError(t, svc.SetRecipientsFromText("ann@x.io", "", ""))

	release := make(chan struct{})
	provider.On("DeleteAttachment", mock.Anything, "d1", "x1").
		Run(func(mock.Arguments) { <-release }).
		Return(nil).Once()
	provider.On("ListAttachments", mock.Anything, "d1").Return([]outlook.Attachment{}, nil).Once()

	var wg sync.WaitGroup
	wg.Add(1)
	var removeErr error
	go func() {
		defer wg.Done()
		removeErr = svc.RemoveDraftAttachment(context.Background(), "x1")
	}()

	require.Eventually(t, func() bool { return svc.InFlight().RemovingAttachment }, 2*time.Second, time.Millisecond)
	assert.False(t, svc.CanSend())

	ctx := context.Background()
	_, err = svc.UpdateDraft(ctx)
	assert.ErrorIs(t, err, ErrOperationInProgress)
	assert.ErrorIs(t, svc.Send(ctx), ErrOperationInProgress)
	assert.ErrorIs(t, svc.RemoveDraftAttachment(ctx, "x1"), ErrOperationInProgress)
	assert.ErrorIs(t, svc.Cancel(), ErrOperationInProgress)

	close(release)
	wg.Wait()
	require.NoError(t, removeErr)
	assert.False(t, svc.InFlight().Any())
	assert.Empty(t, svc.Current().DraftAttachments)

	provider.AssertNotCalled(t, "UpdateDraft", mock.Anything, mock.Anything, mock.Anything)
	provider.AssertNotCalled(t, "SendDraft", mock.Anything, mock.Anything)
	provider.AssertExpectations(t)
}

func TestCompositionService_RemoveDraftAttachmentFailureReleasesFlag(t *testing.T) {
	svc, provider, _, _ := newComposition(t)
	_, err := svc.OpenEditDraft(context.Background(), outlook.Message{ID: "d1"})
	require.NoError(t, err)

	provider.On("DeleteAttachment", mock.Anything, "d1", "x1").Return(errors.New("gone")).Once()
	require.Error(t, svc.RemoveDraftAttachment(context.Background(), "x1"))
	assert.False(t, svc.InFlight().Any())
	assert.Equal(t, ComposeEditingDraft, svc.Mode())
}

func TestCompositionService_OpenWhileComposing(t *testing.T) {
	svc, provider, _, _ := newComposition(t)
	openFilled(t, svc)

	_, err := svc.OpenCompose()
	assert.ErrorIs(t, err, ErrComposeOpen)
	_, err = svc.OpenEditDraft(context.Background(), outlook.Message{ID: "d1", HasAttachments: true})
	assert.ErrorIs(t, err, ErrComposeOpen)
	assert.False(t, svc.InFlight().Any())

	// unsaved input survives
	assert.Equal(t, "Quarterly numbers", svc.Current().State.Subject)
	provider.AssertNotCalled(t, "ListAttachments", mock.Anything, mock.Anything)

	require.NoError(t, svc.Cancel())
	_, err = svc.OpenEditDraft(context.Background(), outlook.Message{ID: "d1"})
	require.NoError(t, err)
	assert.Equal(t, ComposeEditingDraft, svc.Mode())
}

func TestCompositionService_PendingAttachments(t *testing.T) {
	svc, _, _, _ := newComposition(t)
	assert.ErrorIs(t, svc.AddAttachment(memFile("a", "a")), ErrNotComposing)

	_, err := svc.OpenCompose()
	require.NoError(t, err)
	assert.ErrorIs(t, svc.AddAttachment(PendingAttachment{Name: "no-content"}), ErrInvalidInput)

	require.NoError(t, svc.AddAttachment(memFile("a", "a")))
	require.NoError(t, svc.AddAttachment(memFile("b", "b")))
	require.NoError(t, svc.RemovePendingAttachment(0))
	assert.ErrorIs(t, svc.RemovePendingAttachment(5), ErrInvalidInput)

	atts := svc.Current().State.Attachments
	require.Len(t, atts, 1)
	assert.Equal(t, "b", atts[0].Name)
}

func TestCompositionService_SendDraftByID(t *testing.T) {
	svc, provider, refresher, errs := newComposition(t)

	assert.ErrorIs(t, svc.SendDraft(context.Background(), ""), ErrInvalidMessageID)

	provider.On("SendDraft", mock.Anything, "d9").Return(errors.New("gone")).Once()
	require.Error(t, svc.SendDraft(context.Background(), "d9"))
	assert.Equal(t, "Failed to send draft: gone", errs.Current())
	assert.Equal(t, 0, refresher.count())

	provider.On("SendDraft", mock.Anything, "d9").Return(nil).Once()
	require.NoError(t, svc.SendDraft(context.Background(), "d9"))
	assert.Equal(t, 1, refresher.count())
	assert.False(t, svc.InFlight().Any())
}

func TestCompositionService_Cancel(t *testing.T) {
	svc, _, _, _ := newComposition(t)
	openFilled(t, svc)
	require.NoError(t, svc.Cancel())
	assert.Equal(t, ComposeIdle, svc.Mode())
	assert.ErrorIs(t, svc.Update(func(*ComposeState) {}), ErrNotComposing)
}

// While one lifecycle operation is running every other one is rejected.
func TestCompositionService_InFlightBlocksEveryOperation(t *testing.T) {
	defer goleak.VerifyNone(t)

	svc, provider, _, _ := newComposition(t)
	openFilled(t, svc)

	release := make(chan struct{})
	provider.On("CreateDraft", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { <-release }).
		Return(&outlook.Message{ID: "d1"}, nil).Once()

	var wg sync.WaitGroup
	wg.Add(1)
	var saveErr error
	go func() {
		defer wg.Done()
		_, saveErr = svc.SaveDraft(context.Background())
	}()

	require.Eventually(t, func() bool { return svc.InFlight().SavingDraft }, 2*time.Second, time.Millisecond)
	assert.False(t, svc.CanSend())

	ctx := context.Background()
	assert.ErrorIs(t, svc.Send(ctx), ErrOperationInProgress)
	_, err := svc.SaveDraft(ctx)
	assert.ErrorIs(t, err, ErrOperationInProgress)
	assert.ErrorIs(t, svc.SendDraft(ctx, "other"), ErrOperationInProgress)
	_, err = svc.OpenEditDraft(ctx, outlook.Message{ID: "d2"})
	assert.ErrorIs(t, err, ErrOperationInProgress)
	_, err = svc.OpenCompose()
	assert.ErrorIs(t, err, ErrOperationInProgress)
	assert.ErrorIs(t, svc.Cancel(), ErrOperationInProgress)
	assert.ErrorIs(t, svc.Update(func(st *ComposeState) { st.Subject = "x" }), ErrOperationInProgress)

	close(release)
	wg.Wait()
	require.NoError(t, saveErr)
	assert.False(t, svc.InFlight().Any())
	assert.Equal(t, ComposeIdle, svc.Mode())

	provider.AssertNumberOfCalls(t, "CreateDraft", 1)
	provider.AssertNotCalled(t, "SendMail", mock.Anything, mock.Anything)
	provider.AssertNotCalled(t, "SendDraft", mock.Anything, mock.Anything)
}

func TestCompositionService_SetBodyContentType(t *testing.T) {
	svc, _, _, _ := newComposition(t)
	svc.SetBodyContentType("markdown")
	svc.SetBodyContentType(outlook.ContentTypeHTML)

	comp, err := svc.OpenCompose()
	require.NoError(t, err)
	assert.Equal(t, outlook.ContentTypeHTML, comp.State.Body.ContentType)
}

func TestCompositionService_SetDefaultSaveToSent(t *testing.T) {
	svc, _, _, _ := newComposition(t)
	svc.SetDefaultSaveToSent(false)

	comp, err := svc.OpenCompose()
	require.NoError(t, err)
	assert.False(t, comp.State.SaveToSentItems)
}
