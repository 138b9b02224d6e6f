package speech

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/spirit/backend/internal/model/speech"
	speechsvc "github.com/zhouzirui/spirit/backend/internal/service/speech"
	"github.com/zhouzirui/spirit/backend/pkg/utils"
)

// SpeechService 抽象语音业务，便于测试与替换实现
type SpeechService interface {
	SynthesizeSpeech(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error)
}

// Handler 语音服务的HTTP处理器
type Handler struct {
	speechSvc SpeechService
	language  string
}

// New 创建语音处理器；language 为请求未指定语言时的默认值。
func New(speechSvc SpeechService, language string) *Handler {
	return &Handler{
		speechSvc: speechSvc,
		language:  language,
	}
}

// RegisterRoutes 注册语音相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/speech", func(speechRouter chi.Router) {
		speechRouter.Post("/synthesize", h.handleSynthesize)
		speechRouter.Get("/health", h.handleHealth)
	})
}

type synthesizeResponse struct {
	*speech.TTSResponse
	Audio []byte `json:"audio,omitempty"`
}

// handleSynthesize 文本转语音。默认直接返回音频字节，?format=json 时返回 JSON（音频为 base64）。
func (h *Handler) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req speech.TTSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Text) == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}
	if strings.TrimSpace(req.Language) == "" {
		req.Language = h.language
	}
	req.Voice = speechsvc.NormalizeVoiceAlias(req.Voice)

	resp, err := h.speechSvc.SynthesizeSpeech(r.Context(), &req)
	if err != nil {
		log.Error().Err(err).Msg("tts synthesis failed")
		utils.RespondErrorCode(w, http.StatusBadGateway, "synthesis_failed", "speech synthesis failed")
		return
	}

	if r.URL.Query().Get("format") == "json" || len(resp.AudioData) == 0 {
		utils.RespondJSON(w, http.StatusOK, synthesizeResponse{TTSResponse: resp, Audio: resp.AudioData})
		return
	}

	format := resp.Format
	if format == "" {
		format = "octet-stream"
	}
	w.Header().Set("Content-Type", "audio/"+format)
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.AudioData)))
	w.Header().Set("Content-Disposition", "attachment; filename=speech."+format)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(resp.AudioData); err != nil {
		log.Warn().Err(err).Msg("failed to write audio response")
	}
}

// handleHealth 健康检查端点
func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "speech",
	})
}
