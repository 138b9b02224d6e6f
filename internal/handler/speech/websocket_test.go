package speech

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/zhouzirui/spirit/backend/internal/model/persona"
	"github.com/zhouzirui/spirit/backend/internal/service/ai/aitest"
	chatservice "github.com/zhouzirui/spirit/backend/internal/service/chat"
)

func dialConversation(t *testing.T, provider *aitest.Provider) (*websocket.Conn, *chatservice.Conversation) {
	t.Helper()
	chatSvc := chatservice.NewService(chatservice.Options{Provider: provider, Defaults: persona.Defaults()})
	conv, err := chatSvc.Create(context.Background())
	require.NoError(t, err)

	r := chi.NewRouter()
	NewWebSocketHandler(chatSvc, persona.Seed()).RegisterWebSocketRoutes(r)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/conversations/" + conv.ID() + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	connected := readEvent(t, conn)
	require.Equal(t, "connected", connected.Get("type").String())
	return conn, conv
}

func readEvent(t *testing.T, conn *websocket.Conn) gjson.Result {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return gjson.ParseBytes(data)
}

func TestWebSocketTextTurn(t *testing.T) {
	provider := &aitest.Provider{Reply: "반가워요!"}
	conn, conv := dialConversation(t, provider)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "text", "data": map[string]string{"text": "안녕"}}))

	reply := readEvent(t, conn)
	assert.Equal(t, "reply", reply.Get("type").String())
	assert.Equal(t, conv.ID(), reply.Get("conversationId").String())
	assert.Equal(t, "안녕", reply.Get("data.user.content").String())
	assert.Equal(t, "반가워요!", reply.Get("data.assistant.content").String())
}

func TestWebSocketPersonaChangeSendsTranscript(t *testing.T) {
	conn, conv := dialConversation(t, &aitest.Provider{Reply: "네"})

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "persona", "data": map[string]string{"presetId": "butler"}}))

	event := readEvent(t, conn)
	assert.Equal(t, "transcript", event.Get("type").String())
	assert.Equal(t, "도련님", event.Get("data.persona.title").String())
	assert.True(t, event.Get("data.sessionActive").Bool())
	assert.Equal(t, "도련님", conv.Persona().Title)
	assert.Equal(t, "butler", conv.Voice())
}

func TestWebSocketResetReopensSession(t *testing.T) {
	provider := &aitest.Provider{Reply: "네"}
	conn, conv := dialConversation(t, provider)
	_, err := conv.Submit(context.Background(), "안녕")
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "reset"}))
	event := readEvent(t, conn)
	assert.Equal(t, "transcript", event.Get("type").String())
	assert.Empty(t, event.Get("data.messages").Array())
	assert.True(t, event.Get("data.sessionActive").Bool())
	assert.Equal(t, 2, provider.Sessions)
}

func TestWebSocketResetWarnsWhenSessionFails(t *testing.T) {
	provider := &aitest.Provider{}
	conn, _ := dialConversation(t, provider)
	provider.CreateErr = assert.AnError

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "reset"}))
	warning := readEvent(t, conn)
	assert.Equal(t, "warning", warning.Get("type").String())
	assert.Equal(t, "session_init_failed", warning.Get("data.code").String())

	event := readEvent(t, conn)
	assert.Equal(t, "transcript", event.Get("type").String())
	assert.False(t, event.Get("data.sessionActive").Bool())
}

func TestWebSocketEmptyInputError(t *testing.T) {
	conn, _ := dialConversation(t, &aitest.Provider{})

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "text", "data": map[string]string{"text": ""}}))

	event := readEvent(t, conn)
	assert.Equal(t, "error", event.Get("type").String())
	assert.Equal(t, "empty_input", event.Get("data.code").String())
}

func TestWebSocketUnsupportedType(t *testing.T) {
	conn, _ := dialConversation(t, &aitest.Provider{})

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "audio"}))

	event := readEvent(t, conn)
	assert.Equal(t, "error", event.Get("type").String())
	assert.Equal(t, "unsupported_type", event.Get("data.code").String())
}

func TestWebSocketSummary(t *testing.T) {
	provider := &aitest.Provider{Reply: "좋아요", Summary: "1. 인사"}
	conn, conv := dialConversation(t, provider)
	_, err := conv.Submit(context.Background(), "안녕")
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "summary"}))

	event := readEvent(t, conn)
	assert.Equal(t, "summary", event.Get("type").String())
	assert.Equal(t, "1. 인사", event.Get("data.summary").String())
}
