package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// fakeAPI records Bot API calls and serves canned envelopes per method.
type fakeAPI struct {
	t         *testing.T
	responses map[string]string // method -> full response body
	calls     []apiCall
}

type apiCall struct {
	method string
	body   map[string]any
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(r.URL.Path, "/")
	method := parts[len(parts)-1]
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		f.t.Errorf("decode %s body: %v", method, err)
	}
	f.calls = append(f.calls, apiCall{method: method, body: body})
	resp, ok := f.responses[method]
	if !ok {
		resp = `{"ok":true,"result":true}`
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(resp))
}

func testTelegram(t *testing.T, responses map[string]string) (*Client, *fakeAPI) {
	t.Helper()
	fake := &fakeAPI{t: t, responses: responses}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return NewClient("123:abc", WithBaseURL(srv.URL)), fake
}

func TestSendMessageReturnsMessageID(t *testing.T) {
	c, fake := testTelegram(t, map[string]string{
		"sendMessage": `{"ok":true,"result":{"message_id":77,"chat":{"id":42}}}`,
	})
	id, err := c.SendMessage(context.Background(), 42, "<b>hi</b>", nil)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if id != 77 {
		t.Errorf("message id = %d, want 77", id)
	}
	call := fake.calls[0]
	if call.body["parse_mode"] != "HTML" {
		t.Errorf("parse_mode = %v", call.body["parse_mode"])
	}
}

func TestSendMessageSplitsLongText(t *testing.T) {
	c, fake := testTelegram(t, map[string]string{
		"sendMessage": `{"ok":true,"result":{"message_id":5,"chat":{"id":1}}}`,
	})
	long := strings.Repeat("line of text\n", 600) // ~7800 chars
	kb := &InlineKeyboardMarkup{InlineKeyboard: [][]InlineKeyboardButton{
		{{Text: "ok", CallbackData: "page_info:"}},
	}}
	if _, err := c.SendMessage(context.Background(), 1, long, kb); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if len(fake.calls) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(fake.calls))
	}
	if _, has := fake.calls[0].body["reply_markup"]; has {
		t.Error("keyboard attached to non-final chunk")
	}
	if _, has := fake.calls[1].body["reply_markup"]; !has {
		t.Error("keyboard missing from final chunk")
	}
}

func TestEditMessageNotModified(t *testing.T) {
	c, _ := testTelegram(t, map[string]string{
		"editMessageText": `{"ok":false,"error_code":400,"description":"Bad Request: message is not modified"}`,
	})
	err := c.EditMessage(context.Background(), 42, 7, "same", nil)
	if err == nil {
		t.Fatal("expected APIError")
	}
	if !IsNotModified(err) {
		t.Errorf("IsNotModified = false for %v", err)
	}
	if IsMessageGone(err) {
		t.Error("not-modified misclassified as message-gone")
	}
}

func TestRetryAfterParsed(t *testing.T) {
	c, _ := testTelegram(t, map[string]string{
		"sendMessage": `{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 3","parameters":{"retry_after":3}}`,
	})
	_, err := c.SendMessage(context.Background(), 1, "x", nil)
	wait, ok := IsRetryAfter(err)
	if !ok {
		t.Fatalf("IsRetryAfter = false for %v", err)
	}
	if wait != 3*time.Second {
		t.Errorf("retry after = %v, want 3s", wait)
	}
}

func TestMessageGoneClassification(t *testing.T) {
	gone := []string{
		"Bad Request: message to edit not found",
		"Forbidden: bot was blocked by the user",
		"Bad Request: chat not found",
	}
	for _, desc := range gone {
		if !IsMessageGone(&APIError{Code: 400, Description: desc}) {
			t.Errorf("IsMessageGone(%q) = false", desc)
		}
	}
	if IsMessageGone(&APIError{Code: 400, Description: "Bad Request: can't parse entities"}) {
		t.Error("parse error misclassified as message-gone")
	}
}

func TestGetUpdatesMapsCallbackQueries(t *testing.T) {
	c, fake := testTelegram(t, map[string]string{
		"getUpdates": `{"ok":true,"result":[
			{"update_id":10,"message":{"message_id":1,"chat":{"id":42},"from":{"id":42},"text":"/status"}},
			{"update_id":11,"callback_query":{"id":"cb1","from":{"id":42},"data":"pause:2089b05ecca3d829","message":{"message_id":2,"chat":{"id":42}}}}
		]}`,
	})
	updates, err := c.GetUpdates(context.Background(), 5, 30)
	if err != nil {
		t.Fatalf("GetUpdates: %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("got %d updates", len(updates))
	}
	if updates[0].Message == nil || updates[0].Message.Text != "/status" {
		t.Errorf("message update wrong: %+v", updates[0])
	}
	cb := updates[1].CallbackQuery
	if cb == nil || cb.Data != "pause:2089b05ecca3d829" || cb.From.ID != 42 {
		t.Errorf("callback update wrong: %+v", updates[1])
	}
	body := fake.calls[0].body
	if body["offset"] != float64(5) {
		t.Errorf("offset = %v", body["offset"])
	}
	allowed, _ := body["allowed_updates"].([]any)
	if len(allowed) != 2 {
		t.Errorf("allowed_updates = %v", body["allowed_updates"])
	}
}

func TestAnswerCallbackOmitsEmptyText(t *testing.T) {
	c, fake := testTelegram(t, nil)
	if err := c.AnswerCallback(context.Background(), "cb1", "", false); err != nil {
		t.Fatalf("AnswerCallback: %v", err)
	}
	if _, has := fake.calls[0].body["text"]; has {
		t.Error("empty text should be omitted")
	}
	if err := c.AnswerCallback(context.Background(), "cb2", "denied", true); err != nil {
		t.Fatalf("AnswerCallback: %v", err)
	}
	if fake.calls[1].body["show_alert"] != true {
		t.Error("show_alert not set")
	}
}

func TestSplitMessagePrefersNewlines(t *testing.T) {
	text := strings.Repeat("a", 4000) + "\n" + strings.Repeat("b", 200)
	chunks := splitMessage(text)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks", len(chunks))
	}
	if len(chunks[0]) != 4000 || !strings.HasPrefix(chunks[1], "b") {
		t.Errorf("split at wrong boundary: %d / %d", len(chunks[0]), len(chunks[1]))
	}
	for _, ch := range chunks {
		if len(ch) > maxMessageLength {
			t.Errorf("chunk exceeds limit: %d", len(ch))
		}
	}
}
