package persona

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/spirit/backend/internal/handler/apierror"
	chatHandler "github.com/zhouzirui/spirit/backend/internal/handler/chat"
	"github.com/zhouzirui/spirit/backend/internal/model/persona"
	chatService "github.com/zhouzirui/spirit/backend/internal/service/chat"
	"github.com/zhouzirui/spirit/backend/pkg/utils"
)

// MaxAvatarBytes 上传头像的大小上限
const MaxAvatarBytes = 5 << 20

// Handler persona与头像的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
	presets []persona.Preset
}

// New 创建persona处理器
func New(chatSvc *chatService.Service, presets []persona.Preset) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		presets: presets,
	}
}

// RegisterRoutes 注册persona相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/personas", h.handleListPresets)
	r.Get("/conversations/{conversationID}/persona", h.handleGetPersona)
	r.Put("/conversations/{conversationID}/persona", h.handleUpdatePersona)
	r.Post("/conversations/{conversationID}/avatar", h.handleUploadAvatar)
	r.Delete("/conversations/{conversationID}/avatar", h.handleResetAvatar)
}

type personaResponse struct {
	Persona persona.Config    `json:"persona"`
	Changed bool              `json:"changed"`
	Warning *apierror.Problem `json:"warning,omitempty"`
}

// respondChange 有变化时重新建立会话，新的欢迎语先于下一条输入出现。
func respondChange(w http.ResponseWriter, r *http.Request, conv *chatService.Conversation, changed bool) {
	resp := personaResponse{Changed: changed}
	if changed {
		resp.Warning = chatHandler.OpenSession(r.Context(), conv)
	}
	resp.Persona = conv.Persona()
	utils.RespondJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListPresets(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.presets)
}

func (h *Handler) handleGetPersona(w http.ResponseWriter, r *http.Request) {
	conv, err := h.conversation(r)
	if err != nil {
		apierror.Respond(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, conv.Persona())
}

type updateRequest struct {
	PresetID string  `json:"presetId,omitempty"`
	Title    *string `json:"title,omitempty"`
	Tone     *string `json:"tone,omitempty"`
}

// handleUpdatePersona 修改称号/语气（onPersonaEdit）；任一字段变化都会清空对话。
func (h *Handler) handleUpdatePersona(w http.ResponseWriter, r *http.Request) {
	conv, err := h.conversation(r)
	if err != nil {
		apierror.Respond(w, err)
		return
	}

	var payload updateRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
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

	changed, err := conv.UpdatePersona(update)
	if err != nil {
		apierror.Respond(w, err)
		return
	}
	if payload.PresetID != "" {
		conv.SetVoice(payload.PresetID)
	}
	respondChange(w, r, conv, changed)
}

// handleUploadAvatar 接收 multipart 字段 avatar；以声明的 Content-Type 判断格式，不解码像素。
func (h *Handler) handleUploadAvatar(w http.ResponseWriter, r *http.Request) {
	conv, err := h.conversation(r)
	if err != nil {
		apierror.Respond(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxAvatarBytes+1<<10)
	file, header, err := r.FormFile("avatar")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "avatar file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxAvatarBytes+1))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to read avatar")
		return
	}
	if len(data) > MaxAvatarBytes {
		utils.RespondError(w, http.StatusRequestEntityTooLarge, "avatar is too large")
		return
	}

	mimeType := strings.TrimSpace(header.Header.Get("Content-Type"))
	changed, err := conv.SetAvatar(data, mimeType)
	if err != nil {
		apierror.Respond(w, err)
		return
	}
	respondChange(w, r, conv, changed)
}

func (h *Handler) handleResetAvatar(w http.ResponseWriter, r *http.Request) {
	conv, err := h.conversation(r)
	if err != nil {
		apierror.Respond(w, err)
		return
	}
	respondChange(w, r, conv, conv.ResetAvatar())
}

func (h *Handler) conversation(r *http.Request) (*chatService.Conversation, error) {
	return h.chatSvc.Get(chi.URLParam(r, "conversationID"))
}
