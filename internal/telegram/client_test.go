package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

type recordedCall struct {
	path string
	body map[string]interface{}
}

func newAPIServer(t *testing.T, respond func(call recordedCall) string) (*httptest.Server, *[]recordedCall) {
	t.Helper()

	calls := &[]recordedCall{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := recordedCall{path: r.URL.Path}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&call.body)
		}
		*calls = append(*calls, call)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(respond(call)))
	}))
	t.Cleanup(server.Close)

	return server, calls
}

func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()

	logger, _ := logtest.NewNullLogger()
	client, err := NewClient("token", logrus.NewEntry(logger), WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("expected client to initialize, got error: %v", err)
	}

	return client
}

func TestNewClientRequiresToken(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	if _, err := NewClient("", logrus.NewEntry(logger)); err == nil {
		t.Fatalf("expected empty token to error")
	}
}

func TestSendMessagePostsHTMLParseMode(t *testing.T) {
	server, calls := newAPIServer(t, func(recordedCall) string {
		return `{"ok":true,"result":{}}`
	})
	client := newTestClient(t, server)

	err := client.SendMessage(context.Background(), SendMessageParams{
		ChatID: 555,
		Text:   "hello",
	})
	if err != nil {
		t.Fatalf("expected send to succeed, got error: %v", err)
	}

	if len(*calls) != 1 {
		t.Fatalf("expected one API call, got %d", len(*calls))
	}

	call := (*calls)[0]
	if !strings.HasSuffix(call.path, "/bottoken/sendMessage") {
		t.Fatalf("unexpected path %s", call.path)
	}
	if call.body["chat_id"] != float64(555) {
		t.Fatalf("expected chat_id 555, got %v", call.body["chat_id"])
	}
	if call.body["text"] != "hello" {
		t.Fatalf("expected text hello, got %v", call.body["text"])
	}
	if call.body["parse_mode"] != ParseModeHTML {
		t.Fatalf("expected parse_mode HTML, got %v", call.body["parse_mode"])
	}
	if _, ok := call.body["reply_markup"]; ok {
		t.Fatalf("expected no reply_markup when none provided")
	}
}

func TestSendMessageIncludesReplyMarkup(t *testing.T) {
	server, calls := newAPIServer(t, func(recordedCall) string {
		return `{"ok":true,"result":{}}`
	})
	client := newTestClient(t, server)

	err := client.SendMessage(context.Background(), SendMessageParams{
		ChatID:      1,
		Text:        "keyboard",
		ReplyMarkup: models.ReplyKeyboardRemove{RemoveKeyboard: true},
	})
	if err != nil {
		t.Fatalf("expected send to succeed, got error: %v", err)
	}

	markup, ok := (*calls)[0].body["reply_markup"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected reply_markup object, got %T", (*calls)[0].body["reply_markup"])
	}
	if markup["remove_keyboard"] != true {
		t.Fatalf("expected remove_keyboard true, got %v", markup["remove_keyboard"])
	}
}

func TestSendMessageSurfacesAPIError(t *testing.T) {
	server, _ := newAPIServer(t, func(recordedCall) string {
		return `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`
	})
	client := newTestClient(t, server)

	err := client.SendMessage(context.Background(), SendMessageParams{ChatID: 1, Text: "x"})
	if err == nil {
		t.Fatalf("expected API error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.Code != 400 {
		t.Fatalf("expected error code 400, got %d", apiErr.Code)
	}
	if !strings.Contains(apiErr.Description, "chat not found") {
		t.Fatalf("expected description to carry API text, got %q", apiErr.Description)
	}
}

func TestGetUpdatesParsesBatchAndOffset(t *testing.T) {
	server, calls := newAPIServer(t, func(recordedCall) string {
		return `{"ok":true,"result":[` +
			`{"update_id":10,"message":{"message_id":1,"date":0,"chat":{"id":555,"type":"private"},"text":"hi"}},` +
			`{"update_id":11,"message":{"message_id":2,"date":0,"chat":{"id":556,"type":"private"},"text":"yo"}}]}`
	})
	client := newTestClient(t, server)

	updates, err := client.GetUpdates(context.Background(), 10, 30)
	if err != nil {
		t.Fatalf("expected updates, got error: %v", err)
	}

	if len(updates) != 2 {
		t.Fatalf("expected two updates, got %d", len(updates))
	}
	if updates[0].ID != 10 || updates[1].ID != 11 {
		t.Fatalf("unexpected update ids: %d %d", updates[0].ID, updates[1].ID)
	}
	if updates[0].Message == nil || updates[0].Message.Chat.ID != 555 {
		t.Fatalf("expected message chat 555, got %+v", updates[0].Message)
	}

	body := (*calls)[0].body
	if body["offset"] != float64(10) {
		t.Fatalf("expected offset 10 in request, got %v", body["offset"])
	}
	if body["timeout"] != float64(30) {
		t.Fatalf("expected timeout 30 in request, got %v", body["timeout"])
	}
}

func TestGetUpdatesOmitsZeroOffset(t *testing.T) {
	server, calls := newAPIServer(t, func(recordedCall) string {
		return `{"ok":true,"result":[]}`
	})
	client := newTestClient(t, server)

	updates, err := client.GetUpdates(context.Background(), 0, 30)
	if err != nil {
		t.Fatalf("expected empty batch, got error: %v", err)
	}
	if len(updates) != 0 {
		t.Fatalf("expected no updates, got %d", len(updates))
	}

	if _, ok := (*calls)[0].body["offset"]; ok {
		t.Fatalf("expected offset to be omitted at initial start")
	}
}

func TestGetUpdatesConflictIsDetectable(t *testing.T) {
	server, _ := newAPIServer(t, func(recordedCall) string {
		return `{"ok":false,"error_code":409,"description":"Conflict: terminated by other getUpdates request"}`
	})
	client := newTestClient(t, server)

	_, err := client.GetUpdates(context.Background(), 0, 30)
	if err == nil {
		t.Fatalf("expected conflict error")
	}
	if !IsConflict(err) {
		t.Fatalf("expected IsConflict to report true for %v", err)
	}
}

func TestIsConflictIgnoresOtherErrors(t *testing.T) {
	if IsConflict(errors.New("plain")) {
		t.Fatalf("expected plain error to not be a conflict")
	}
	if IsConflict(&APIError{Code: 429}) {
		t.Fatalf("expected 429 to not be a conflict")
	}
}

func TestDeleteWebhookCallsEndpoint(t *testing.T) {
	server, calls := newAPIServer(t, func(recordedCall) string {
		return `{"ok":true,"result":true}`
	})
	client := newTestClient(t, server)

	if err := client.DeleteWebhook(context.Background()); err != nil {
		t.Fatalf("expected delete webhook to succeed, got error: %v", err)
	}

	if !strings.HasSuffix((*calls)[0].path, "/bottoken/deleteWebhook") {
		t.Fatalf("unexpected path %s", (*calls)[0].path)
	}
}

func TestCallSurfacesTransportError(t *testing.T) {
	server, _ := newAPIServer(t, func(recordedCall) string { return `{"ok":true}` })
	client := newTestClient(t, server)
	server.Close()

	if err := client.DeleteWebhook(context.Background()); err == nil {
		t.Fatalf("expected transport error after server close")
	}
}
