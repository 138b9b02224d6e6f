package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/tidwall/gjson"

	"github.com/zhouzirui/spirit/backend/internal/model/persona"
	"github.com/zhouzirui/spirit/backend/internal/service/ai/aitest"
	chatservice "github.com/zhouzirui/spirit/backend/internal/service/chat"
)

func setupRouter(provider *aitest.Provider) (*chi.Mux, *chatservice.Service) {
	chatSvc := chatservice.NewService(chatservice.Options{
		Provider:    provider,
		Temperature: 0.9,
		Defaults:    persona.Defaults(),
	})
	handler := New(chatSvc, persona.Seed())

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, chatSvc
}

func doJSON(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestCreateConversationWithDefaults(t *testing.T) {
	provider := &aitest.Provider{Reply: "네"}
	r, _ := setupRouter(provider)

	resp := doJSON(r, http.MethodPost, "/conversations", nil)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	body := gjson.ParseBytes(resp.Body.Bytes())
	if body.Get("conversation.persona.title").String() != persona.DefaultTitle {
		t.Fatalf("unexpected title: %s", body.Get("conversation.persona.title").String())
	}
	if !body.Get("conversation.sessionActive").Bool() {
		t.Fatalf("expected session to be opened at creation")
	}
	if body.Get("warning").Exists() {
		t.Fatalf("unexpected warning: %s", body.Get("warning").Raw)
	}
}

func TestCreateConversationWithPreset(t *testing.T) {
	r, chatSvc := setupRouter(&aitest.Provider{})

	resp := doJSON(r, http.MethodPost, "/conversations", map[string]string{"presetId": "butler"})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}
	if got := gjson.GetBytes(resp.Body.Bytes(), "conversation.persona.title").String(); got != "도련님" {
		t.Fatalf("expected preset title, got %q", got)
	}

	conv, err := chatSvc.Get(gjson.GetBytes(resp.Body.Bytes(), "conversation.id").String())
	if err != nil {
		t.Fatalf("conversation not stored: %v", err)
	}
	if conv.Voice() != "butler" {
		t.Fatalf("expected preset voice, got %q", conv.Voice())
	}
}

func TestCreateConversationUnknownPreset(t *testing.T) {
	r, chatSvc := setupRouter(&aitest.Provider{})

	resp := doJSON(r, http.MethodPost, "/conversations", map[string]string{"presetId": "non-existent"})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if len(chatSvc.List()) != 0 {
		t.Fatalf("no conversation should be registered")
	}
}

func TestCreateConversationSessionFailureIsWarning(t *testing.T) {
	provider := &aitest.Provider{CreateErr: errors.New("401 unauthorized")}
	r, _ := setupRouter(provider)

	resp := doJSON(r, http.MethodPost, "/conversations", nil)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}

	body := gjson.ParseBytes(resp.Body.Bytes())
	if body.Get("warning.code").String() != "session_init_failed" {
		t.Fatalf("expected session_init_failed warning, got %s", body.Get("warning").Raw)
	}
	if body.Get("conversation.sessionActive").Bool() {
		t.Fatalf("session should not be active")
	}
}

func TestSubmitMessage(t *testing.T) {
	provider := &aitest.Provider{Reply: "반가워요, 주인님!", ToolInvoked: true}
	r, chatSvc := setupRouter(provider)

	conv, err := chatSvc.Create(context.Background())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	resp := doJSON(r, http.MethodPost, "/conversations/"+conv.ID()+"/messages", map[string]string{"text": "안녕"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	body := gjson.ParseBytes(resp.Body.Bytes())
	if body.Get("user.content").String() != "안녕" {
		t.Fatalf("unexpected user message: %s", body.Get("user").Raw)
	}
	if body.Get("assistant.content").String() != "반가워요, 주인님!" {
		t.Fatalf("unexpected reply: %s", body.Get("assistant").Raw)
	}
	if !body.Get("toolInvoked").Bool() {
		t.Fatalf("expected toolInvoked")
	}
	if body.Get("audio").Exists() {
		t.Fatalf("no synthesizer configured, audio should be absent")
	}
	if len(conv.Transcript()) != 2 {
		t.Fatalf("expected 2 transcript entries, got %d", len(conv.Transcript()))
	}
}

func TestSubmitEmptyMessage(t *testing.T) {
	r, chatSvc := setupRouter(&aitest.Provider{Reply: "x"})
	conv, _ := chatSvc.Create(context.Background())

	resp := doJSON(r, http.MethodPost, "/conversations/"+conv.ID()+"/messages", map[string]string{"text": "   "})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if code := gjson.GetBytes(resp.Body.Bytes(), "code").String(); code != "empty_input" {
		t.Fatalf("expected empty_input, got %q", code)
	}
}

func TestSubmitQuotaError(t *testing.T) {
	provider := &aitest.Provider{SendErr: errors.New("429 resource exhausted")}
	r, chatSvc := setupRouter(provider)
	conv, _ := chatSvc.Create(context.Background())

	resp := doJSON(r, http.MethodPost, "/conversations/"+conv.ID()+"/messages", map[string]string{"text": "안녕"})
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.Code)
	}
	if code := gjson.GetBytes(resp.Body.Bytes(), "code").String(); code != "quota_error" {
		t.Fatalf("expected quota_error, got %q", code)
	}
	// 用户消息保留在记录中
	if len(conv.Transcript()) != 1 {
		t.Fatalf("expected user message to remain, got %d entries", len(conv.Transcript()))
	}
}

func TestConversationNotFound(t *testing.T) {
	r, _ := setupRouter(&aitest.Provider{})

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/conversations/missing"},
		{http.MethodDelete, "/conversations/missing"},
		{http.MethodPost, "/conversations/missing/messages"},
		{http.MethodPost, "/conversations/missing/reset"},
		{http.MethodPost, "/conversations/missing/summary"},
	} {
		resp := doJSON(r, tc.method, tc.path, map[string]string{"text": "hi"})
		if resp.Code != http.StatusNotFound {
			t.Fatalf("%s %s: expected 404, got %d", tc.method, tc.path, resp.Code)
		}
	}
}

func TestResetAndSummary(t *testing.T) {
	provider := &aitest.Provider{Reply: "좋아요", Summary: "1. 인사를 나눔"}
	r, chatSvc := setupRouter(provider)
	conv, _ := chatSvc.Create(context.Background())

	resp := doJSON(r, http.MethodPost, "/conversations/"+conv.ID()+"/summary", nil)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("summary of empty transcript: expected 400, got %d", resp.Code)
	}

	doJSON(r, http.MethodPost, "/conversations/"+conv.ID()+"/messages", map[string]string{"text": "안녕"})

	resp = doJSON(r, http.MethodPost, "/conversations/"+conv.ID()+"/summary", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if got := gjson.GetBytes(resp.Body.Bytes(), "summary").String(); got != "1. 인사를 나눔" {
		t.Fatalf("unexpected summary %q", got)
	}

	resp = doJSON(r, http.MethodPost, "/conversations/"+conv.ID()+"/reset", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if n := len(gjson.GetBytes(resp.Body.Bytes(), "conversation.messages").Array()); n != 0 {
		t.Fatalf("expected empty transcript after reset, got %d", n)
	}
	if !gjson.GetBytes(resp.Body.Bytes(), "conversation.sessionActive").Bool() {
		t.Fatalf("expected session to be reopened after reset")
	}
}

func TestSubmitAfterResetAddsTwoMessagesWithWelcome(t *testing.T) {
	provider := &aitest.Provider{Reply: "또 만났네요"}
	chatSvc := chatservice.NewService(chatservice.Options{
		Provider:    provider,
		SeedWelcome: true,
		Defaults:    persona.Defaults(),
	})
	r := chi.NewRouter()
	New(chatSvc, persona.Seed()).RegisterRoutes(r)

	resp := doJSON(r, http.MethodPost, "/conversations", nil)
	id := gjson.GetBytes(resp.Body.Bytes(), "conversation.id").String()
	doJSON(r, http.MethodPost, "/conversations/"+id+"/messages", map[string]string{"text": "안녕"})

	resp = doJSON(r, http.MethodPost, "/conversations/"+id+"/reset", nil)
	welcome := gjson.GetBytes(resp.Body.Bytes(), "conversation.messages").Array()
	if len(welcome) != 1 || welcome[0].Get("role").String() != "assistant" {
		t.Fatalf("expected only the welcome after reset, got %s", resp.Body.String())
	}

	doJSON(r, http.MethodPost, "/conversations/"+id+"/messages", map[string]string{"text": "다시 안녕"})
	resp = doJSON(r, http.MethodGet, "/conversations/"+id, nil)
	if n := len(gjson.GetBytes(resp.Body.Bytes(), "messages").Array()); n != 3 {
		t.Fatalf("expected welcome + 2 messages, got %d: %s", n, resp.Body.String())
	}
}

func TestDeleteConversation(t *testing.T) {
	r, chatSvc := setupRouter(&aitest.Provider{})
	conv, _ := chatSvc.Create(context.Background())

	resp := doJSON(r, http.MethodDelete, "/conversations/"+conv.ID(), nil)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	if _, err := chatSvc.Get(conv.ID()); err == nil {
		t.Fatalf("conversation should be gone")
	}
}
