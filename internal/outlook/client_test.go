package outlook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok"}), srv.Client())
}

func TestClient_NoToken_NoRequest(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	tests := []struct {
		name   string
		tokens oauth2.TokenSource
	}{
		{"nil_source", nil},
		{"empty_token", oauth2.StaticTokenSource(&oauth2.Token{})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(srv.URL, tt.tokens, srv.Client())
			_, err := c.ListConversations(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrNotAuthenticated))
			assert.True(t, IsUnauthorized(err))
		})
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}

func TestClient_SetsBearerHeader(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"emails":[]}`)
	})
	_, err := c.Search(context.Background(), "x", 0)
	assert.NoError(t, err)
}

func TestClient_ListConversations_PreservesOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("threaded"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"conversations":{
			"Sent Items":{"z":[{"id":"1","conversationId":"z"}]},
			"Inbox":{"b":[{"id":"2","conversationId":"b"}],"a":[{"id":"3","conversationId":"a"}]},
			"Drafts":null}}`)
	})

	mb, err := c.ListConversations(context.Background())
	require.NoError(t, err)
	require.Len(t, mb.Folders, 3)
	assert.Equal(t, "Sent Items", mb.Folders[0].Folder)
	assert.Equal(t, "Inbox", mb.Folders[1].Folder)
	assert.Equal(t, "b", mb.Folders[1].Conversations[0].ConversationID)
	assert.Equal(t, "a", mb.Folders[1].Conversations[1].ConversationID)
	assert.Empty(t, mb.Folders[2].Conversations)
}

func TestClient_GetConversation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/conversations/abc", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"messages":[{"id":"m1","conversationId":"abc","originalFolder":"SentItems",
			"from":{"emailAddress":{"name":"Ann","address":"ann@x.io"}},"receivedDateTime":"2024-03-01T10:00:00Z"}]}`)
	})

	msgs, err := c.GetConversation(context.Background(), "abc")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "SentItems", msgs[0].OriginalFolder)
	require.NotNil(t, msgs[0].From)
	assert.Equal(t, Recipient{Name: "Ann", Address: "ann@x.io"}, *msgs[0].From)
	assert.Equal(t, 2024, msgs[0].ReceivedDateTime.Year())
}

func TestClient_Search_Query(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "invoice march", r.URL.Query().Get("query"))
		assert.Equal(t, "25", r.URL.Query().Get("top"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"emails":[{"id":"1","conversationId":"c1"}]}`)
	})

	res, err := c.Search(context.Background(), "invoice march", 25)
	require.NoError(t, err)
	assert.Len(t, res, 1)
}

func TestClient_CreateDraft_NoAttachmentsField(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/drafts", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.NotContains(t, body, "attachments")
		assert.NotContains(t, body, "saveToSentItems")
		assert.Equal(t, "Hi", body["subject"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"d1","isDraft":true}`)
	})

	draft, err := c.CreateDraft(context.Background(), DraftRequest{
		Subject:      "Hi",
		ToRecipients: []Recipient{{Address: "a@x.io"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "d1", draft.ID)
}

func TestClient_CreateDraft_WrappedResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"draft":{"id":"d9"}}`)
	})
	draft, err := c.CreateDraft(context.Background(), DraftRequest{Subject: "x"})
	require.NoError(t, err)
	assert.Equal(t, "d9", draft.ID)
}

func TestClient_SendMail_Payload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/send", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, true, body["saveToSentItems"])
		to := body["toRecipients"].([]any)
		require.Len(t, to, 1)
		addr := to[0].(map[string]any)["emailAddress"].(map[string]any)
		assert.Equal(t, "bob@x.io", addr["address"])
		w.WriteHeader(http.StatusAccepted)
	})

	err := c.SendMail(context.Background(), SendRequest{
		DraftRequest:    DraftRequest{Subject: "s", ToRecipients: []Recipient{{Name: "Bob", Address: "bob@x.io"}}},
		SaveToSentItems: true,
	})
	assert.NoError(t, err)
}

func TestClient_UpdateAndSendDraft(t *testing.T) {
	var calls []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})
	ctx := context.Background()

	draft, err := c.UpdateDraft(ctx, "d1", DraftRequest{Subject: "new"})
	require.NoError(t, err)
	assert.Equal(t, "d1", draft.ID)
	require.NoError(t, c.SendDraft(ctx, "d1"))
	assert.Equal(t, []string{"PATCH /drafts/d1", "POST /drafts/d1/send"}, calls)
}

func TestClient_MessageActions(t *testing.T) {
	var got []map[string]any
	var paths []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		if r.Body != nil && r.ContentLength > 0 {
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			got = append(got, body)
		}
		w.WriteHeader(http.StatusNoContent)
	})
	ctx := context.Background()

	require.NoError(t, c.Reply(ctx, "m1", "thanks"))
	require.NoError(t, c.Forward(ctx, "m1", []Recipient{{Address: "c@x.io"}}, "fyi"))
	require.NoError(t, c.Move(ctx, "m1", "archive"))
	require.NoError(t, c.DeleteMessage(ctx, "m1"))

	assert.Equal(t, []string{"POST /reply", "POST /forward", "POST /move", "DELETE /message/m1"}, paths)
	require.Len(t, got, 3)
	assert.Equal(t, "thanks", got[0]["comment"])
	assert.Equal(t, "m1", got[1]["messageId"])
	assert.Equal(t, "archive", got[2]["destinationId"])
}

func TestClient_UploadAttachment_Multipart(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages/d1/attachments", r.URL.Path)
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "report.pdf", header.Filename)
		assert.Equal(t, "pdf-bytes", string(data))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"attachment":{"id":"a1","name":"report.pdf","size":9}}`)
	})

	att, err := c.UploadAttachment(context.Background(), "d1", "report.pdf", strings.NewReader("pdf-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "a1", att.ID)
	assert.Equal(t, int64(9), att.Size)
}

func TestClient_ListAndDeleteAttachments(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"attachments":[{"id":"a1","name":"x.png","contentType":"image/png","size":10,"isInline":true,"contentId":"cid1"}]}`)
		case http.MethodDelete:
			assert.Equal(t, "/messages/m1/attachments/a1", r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
		}
	})
	ctx := context.Background()

	atts, err := c.ListAttachments(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, atts, 1)
	assert.True(t, atts[0].IsInline)
	assert.Equal(t, "cid1", atts[0].ContentID)
	assert.NoError(t, c.DeleteAttachment(ctx, "m1", "a1"))
}

func TestClient_DownloadAttachment(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="q1.pdf"`)
		_, _ = w.Write([]byte{0x25, 0x50, 0x44, 0x46})
	})

	content, err := c.DownloadAttachment(context.Background(), "m1", "a1")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF"), content.Data)
	assert.Equal(t, "q1.pdf", content.FileName)
	assert.Equal(t, "application/pdf", content.ContentType)
}

func TestClient_ErrorFormatting(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		status      int
		body        string
		wantMsg     string
	}{
		{"html_404", "text/html", 404, "<html><body>Not Found</body></html>", "request failed: 404 Not Found"},
		{"json_message", "application/json", 400, `{"message":"Invalid recipient"}`, "Invalid recipient"},
		{"json_graph_error", "application/json; charset=utf-8", 403, `{"error":{"code":"ErrorAccessDenied","message":"Access is denied."}}`, "Access is denied."},
		{"json_string_error", "application/json", 500, `{"error":"boom"}`, "boom"},
		{"json_unparseable", "application/json", 502, `<html>bad gateway</html>`, "request failed: 502 Bad Gateway"},
		{"no_content_type", "", 404, `{"message":"hidden"}`, "request failed: 404 Not Found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if tt.contentType != "" {
					w.Header().Set("Content-Type", tt.contentType)
				} else {
					w.Header()["Content-Type"] = nil
				}
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := c.DownloadAttachment(context.Background(), "m1", "a1")
			require.Error(t, err)
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.wantMsg, apiErr.Message)
			assert.Contains(t, err.Error(), strconv.Itoa(tt.status))
		})
	}
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(&APIError{StatusCode: 404}))
	assert.False(t, IsNotFound(&APIError{StatusCode: 500}))
	assert.False(t, IsNotFound(errors.New("x")))
}

