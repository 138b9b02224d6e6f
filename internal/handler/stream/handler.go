package stream

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/spirit/backend/internal/handler/apierror"
	chatHandler "github.com/zhouzirui/spirit/backend/internal/handler/chat"
	chatService "github.com/zhouzirui/spirit/backend/internal/service/chat"
	"github.com/zhouzirui/spirit/backend/pkg/utils"
)

// DefaultHeartbeatInterval 等待回复期间发送心跳的间隔
const DefaultHeartbeatInterval = 8 * time.Second

// Handler 通过 Server-Sent Events 推送一次对话回合的进度
type Handler struct {
	chatSvc   *chatService.Service
	heartbeat time.Duration
}

// New creates a new stream handler
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{
		chatSvc:   chatSvc,
		heartbeat: DefaultHeartbeatInterval,
	}
}

// RegisterRoutes 注册 SSE 路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/conversations/{conversationID}/stream", h.handleStream)
}

// Event 单条SSE事件的数据部分
type Event struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content,omitempty"`
	Time           string `json:"time,omitempty"`
}

type turnOutcome struct {
	result chatService.TurnResult
	err    error
}

// handleStream 在后台执行回合，回复就绪前定期发送 heartbeat。
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	conv, err := h.chatSvc.Get(conversationID)
	if err != nil {
		apierror.Respond(w, err)
		return
	}

	message := r.URL.Query().Get("message")
	if strings.TrimSpace(message) == "" {
		apierror.Respond(w, chatService.ErrEmptyInput)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	utils.SetupSSEHeaders(w)

	ctx := r.Context()
	logger := log.With().Str("conversation_id", conversationID).Logger()

	if err := utils.SendSSEEvent(w, flusher, "start", Event{ConversationID: conversationID}); err != nil {
		return
	}

	done := make(chan turnOutcome, 1)
	go func() {
		result, err := conv.Submit(ctx, message)
		done <- turnOutcome{result: result, err: err}
	}()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("stream client disconnected")
			return
		case t := <-ticker.C:
			_ = utils.SendSSEEvent(w, flusher, "heartbeat", Event{
				ConversationID: conversationID,
				Time:           t.UTC().Format(time.RFC3339),
			})
		case outcome := <-done:
			h.finish(ctx, w, flusher, conversationID, outcome)
			return
		}
	}
}

func (h *Handler) finish(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, conversationID string, outcome turnOutcome) {
	if outcome.err != nil {
		log.Warn().Err(outcome.err).Str("conversation_id", conversationID).Msg("stream turn failed")
		_ = utils.SendSSEEvent(w, flusher, "error", apierror.Describe(outcome.err))
		_ = utils.SendSSEEvent(w, flusher, "end", Event{ConversationID: conversationID})
		return
	}

	resp := chatHandler.NewTurnResponse(outcome.result)
	_ = utils.SendSSEEvent(w, flusher, "user", resp.User)
	if resp.ToolInvoked {
		_ = utils.SendSSEEvent(w, flusher, "tool", Event{ConversationID: conversationID, Content: "web_search"})
	}
	_ = utils.SendSSEEvent(w, flusher, "message", resp.Assistant)
	if resp.Audio != nil {
		_ = utils.SendSSEEvent(w, flusher, "audio", resp.Audio)
	}
	if resp.Warning != "" {
		_ = utils.SendSSEEvent(w, flusher, "warning", Event{ConversationID: conversationID, Content: resp.Warning})
	}
	if ctx.Err() == nil {
		_ = utils.SendSSEEvent(w, flusher, "end", Event{ConversationID: conversationID})
	}
}
