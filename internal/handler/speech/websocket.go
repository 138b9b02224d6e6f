package speech

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/spirit/backend/internal/handler/apierror"
	chatHandler "github.com/zhouzirui/spirit/backend/internal/handler/chat"
	"github.com/zhouzirui/spirit/backend/internal/model/persona"
	chatservice "github.com/zhouzirui/spirit/backend/internal/service/chat"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
)

// WebSocketHandler 实时对话通道：客户端发送输入与设置，服务端推送回复与语音。
type WebSocketHandler struct {
	chatSvc  *chatservice.Service
	presets  []persona.Preset
	upgrader websocket.Upgrader
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(chatSvc *chatservice.Service, presets []persona.Preset) *WebSocketHandler {
	return &WebSocketHandler{
		chatSvc: chatSvc,
		presets: presets,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterWebSocketRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/conversations/{conversationID}/ws", h.handleWebSocket)
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// TextMessage 用户输入
type TextMessage struct {
	Text string `json:"text"`
}

// PersonaMessage 修改称号、语气或切换预设
type PersonaMessage struct {
	PresetID string  `json:"presetId,omitempty"`
	Title    *string `json:"title,omitempty"`
	Tone     *string `json:"tone,omitempty"`
}

type outgoingMessage struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId,omitempty"`
	Data           any    `json:"data,omitempty"`
	Timestamp      int64  `json:"timestamp"`
}

// wsConn 串行化写操作；回合在后台执行时 ping 与回复可能并发写。
type wsConn struct {
	conn           *websocket.Conn
	conversationID string
	logger         zerolog.Logger

	writeMu sync.Mutex
}

func (c *wsConn) send(msgType string, data any) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	msg := outgoingMessage{
		Type:           msgType,
		ConversationID: c.conversationID,
		Data:           data,
		Timestamp:      time.Now().Unix(),
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		c.logger.Debug().Err(err).Str("type", msgType).Msg("websocket write failed")
	}
}

func (c *wsConn) sendError(err error) {
	c.send("error", apierror.Describe(err))
}

func (c *wsConn) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	conv, err := h.chatSvc.Get(conversationID)
	if err != nil {
		apierror.Respond(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	c := &wsConn{
		conn:           conn,
		conversationID: conversationID,
		logger:         log.With().Str("conversation_id", conversationID).Logger(),
	}
	c.logger.Info().Msg("websocket connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go h.pingLoop(ctx, c)

	c.send("connected", conv.Snapshot())

	var turns sync.WaitGroup
	defer func() {
		cancel()
		turns.Wait()
	}()

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("websocket read error")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		switch msg.Type {
		case "text":
			var text TextMessage
			if err := json.Unmarshal(msg.Data, &text); err != nil {
				c.send("error", apierror.Problem{Code: "invalid_payload", Message: "invalid text payload"})
				continue
			}
			// 回合在后台执行，期间仍能接收 persona/reset 等消息。
			turns.Add(1)
			go func() {
				defer turns.Done()
				h.runTurn(ctx, c, conv, text.Text)
			}()
		case "persona":
			if h.applyPersona(c, conv, msg.Data) {
				turns.Add(1)
				go func() {
					defer turns.Done()
					h.reopen(ctx, c, conv)
				}()
			}
		case "reset":
			conv.Reset()
			turns.Add(1)
			go func() {
				defer turns.Done()
				h.reopen(ctx, c, conv)
			}()
		case "summary":
			turns.Add(1)
			go func() {
				defer turns.Done()
				summary, err := conv.Summarize(ctx)
				if err != nil {
					c.sendError(err)
					return
				}
				c.send("summary", map[string]string{"summary": summary})
			}()
		default:
			c.send("error", apierror.Problem{Code: "unsupported_type", Message: "unsupported message type: " + msg.Type})
		}
	}
}

func (h *WebSocketHandler) runTurn(ctx context.Context, c *wsConn, conv *chatservice.Conversation, text string) {
	result, err := conv.Submit(ctx, text)
	if err != nil {
		c.sendError(err)
		return
	}

	resp := chatHandler.NewTurnResponse(result)
	c.send("reply", resp)
	if resp.Warning != "" {
		c.send("warning", map[string]string{"message": resp.Warning})
	}
}

// reopen 重建会话后推送新的对话记录（含欢迎语），失败时附带 warning。
func (h *WebSocketHandler) reopen(ctx context.Context, c *wsConn, conv *chatservice.Conversation) {
	if warning := chatHandler.OpenSession(ctx, conv); warning != nil {
		c.send("warning", warning)
	}
	c.send("transcript", conv.Snapshot())
}

// applyPersona 返回人设是否发生变化。
func (h *WebSocketHandler) applyPersona(c *wsConn, conv *chatservice.Conversation, raw json.RawMessage) bool {
	var payload PersonaMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.send("error", apierror.Problem{Code: "invalid_payload", Message: "invalid persona payload"})
		return false
	}

	update := persona.Update{Title: payload.Title, Tone: payload.Tone}
	if payload.PresetID != "" {
		preset, ok := persona.FindPreset(h.presets, payload.PresetID)
		if !ok {
			c.send("error", apierror.Problem{Code: "preset_not_found", Message: "preset not found"})
			return false
		}
		update = preset.Update()
	}

	changed, err := conv.UpdatePersona(update)
	if err != nil {
		c.sendError(err)
		return false
	}
	if payload.PresetID != "" {
		conv.SetVoice(payload.PresetID)
	}
	c.logger.Debug().Bool("changed", changed).Msg("persona applied over websocket")
	return changed
}

// pingLoop 定期发送ping消息
func (h *WebSocketHandler) pingLoop(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}
