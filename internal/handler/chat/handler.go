package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/spirit/backend/internal/handler/apierror"
	"github.com/zhouzirui/spirit/backend/internal/model/chat"
	"github.com/zhouzirui/spirit/backend/internal/model/persona"
	chatService "github.com/zhouzirui/spirit/backend/internal/service/chat"
	"github.com/zhouzirui/spirit/backend/pkg/utils"
)

// Handler 会话生命周期与对话回合的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
	presets []persona.Preset
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service, presets []persona.Preset) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		presets: presets,
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/conversations", h.handleCreate)
	r.Get("/conversations/{conversationID}", h.handleGet)
	r.Delete("/conversations/{conversationID}", h.handleDelete)
	r.Post("/conversations/{conversationID}/messages", h.handleSubmit)
	r.Post("/conversations/{conversationID}/reset", h.handleReset)
	r.Post("/conversations/{conversationID}/summary", h.handleSummary)
}

type createRequest struct {
	PresetID string  `json:"presetId,omitempty"`
	Title    *string `json:"title,omitempty"`
	Tone     *string `json:"tone,omitempty"`
}

type conversationResponse struct {
	Conversation chat.Snapshot     `json:"conversation"`
	Warning      *apierror.Problem `json:"warning,omitempty"`
}

// handleCreate 创建会话并尝试建立远端会话；建立失败不影响会话本身，下一次操作会重试。
func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var payload createRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	update := persona.Update{Title: payload.Title, Tone: payload.Tone}
	if payload.PresetID != "" {
		preset, ok := persona.FindPreset(h.presets, payload.PresetID)
		if !ok {
			utils.RespondError(w, http.StatusBadRequest, "preset not found")
			return
		}
		update = preset.Update()
	}

	conv, err := h.chatSvc.Create(r.Context())
	if err != nil {
		apierror.Respond(w, err)
		return
	}

	if update.Title != nil || update.Tone != nil {
		if _, err := conv.UpdatePersona(update); err != nil {
			_ = h.chatSvc.Delete(conv.ID())
			apierror.Respond(w, err)
			return
		}
	}
	if payload.PresetID != "" {
		// 预设 ID 同时是音色别名
		conv.SetVoice(payload.PresetID)
	}

	warning := OpenSession(r.Context(), conv)
	utils.RespondJSON(w, http.StatusCreated, conversationResponse{Conversation: conv.Snapshot(), Warning: warning})
}

// OpenSession 建立远端会话并写入欢迎语。创建、改人设和重置之后都调用它，
// 失败只作为 warning 返回，下一次提交会重试。
func OpenSession(ctx context.Context, conv *chatService.Conversation) *apierror.Problem {
	if _, err := conv.EnsureSession(ctx); err != nil {
		log.Warn().Err(err).Str("conversation_id", conv.ID()).Msg("chat session not ready")
		p := apierror.Describe(err)
		return &p
	}
	return nil
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	conv, err := h.conversation(r)
	if err != nil {
		apierror.Respond(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, conv.Snapshot())
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.Delete(chi.URLParam(r, "conversationID")); err != nil {
		apierror.Respond(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type submitRequest struct {
	Text string `json:"text"`
}

// AudioPayload 随回复返回的合成音频，Data 以 base64 编码。
type AudioPayload struct {
	Format     string `json:"format"`
	DurationMs int64  `json:"durationMs,omitempty"`
	Data       []byte `json:"data"`
}

// TurnResponse 一次对话回合的结果
type TurnResponse struct {
	User        chat.Message  `json:"user"`
	Assistant   chat.Message  `json:"assistant"`
	ToolInvoked bool          `json:"toolInvoked"`
	Warning     string        `json:"warning,omitempty"`
	Audio       *AudioPayload `json:"audio,omitempty"`
}

// NewTurnResponse 把服务层结果转换为对外结构。
func NewTurnResponse(result chatService.TurnResult) TurnResponse {
	resp := TurnResponse{
		User:        result.User,
		Assistant:   result.Assistant,
		ToolInvoked: result.ToolInvoked,
		Warning:     result.Warning,
	}
	if result.Audio != nil && len(result.Audio.AudioData) > 0 {
		resp.Audio = &AudioPayload{
			Format:     result.Audio.Format,
			DurationMs: result.Audio.Duration,
			Data:       result.Audio.AudioData,
		}
	}
	return resp
}

// handleSubmit 处理一次用户输入（onSubmit）
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	conv, err := h.conversation(r)
	if err != nil {
		apierror.Respond(w, err)
		return
	}

	var payload submitRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := conv.Submit(r.Context(), payload.Text)
	if err != nil {
		apierror.Respond(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, NewTurnResponse(result))
}

// handleReset 清空对话（onReset）
func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	conv, err := h.conversation(r)
	if err != nil {
		apierror.Respond(w, err)
		return
	}
	conv.Reset()
	warning := OpenSession(r.Context(), conv)
	utils.RespondJSON(w, http.StatusOK, conversationResponse{Conversation: conv.Snapshot(), Warning: warning})
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	conv, err := h.conversation(r)
	if err != nil {
		apierror.Respond(w, err)
		return
	}

	summary, err := conv.Summarize(r.Context())
	if err != nil {
		apierror.Respond(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"summary": summary})
}

func (h *Handler) conversation(r *http.Request) (*chatService.Conversation, error) {
	return h.chatSvc.Get(chi.URLParam(r, "conversationID"))
}
