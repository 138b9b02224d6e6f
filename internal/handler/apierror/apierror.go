// Package apierror maps service errors onto HTTP statuses and user-facing banners.
package apierror

import (
	"net/http"

	"github.com/pkg/errors"

	"github.com/zhouzirui/spirit/backend/internal/model/persona"
	"github.com/zhouzirui/spirit/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/spirit/backend/internal/service/chat"
	"github.com/zhouzirui/spirit/backend/pkg/utils"
)

// Problem describes how an error is presented to a client.
type Problem struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"error"`
}

var kindProblems = map[ai.Kind]Problem{
	ai.KindAuth:    {Status: http.StatusUnauthorized, Code: "auth_error", Message: "API 키가 올바르지 않아요. 설정을 확인해 주세요."},
	ai.KindQuota:   {Status: http.StatusTooManyRequests, Code: "quota_error", Message: "요청 한도를 넘었어요. 잠시 후 다시 시도해 주세요."},
	ai.KindNetwork: {Status: http.StatusGatewayTimeout, Code: "network_error", Message: "네트워크가 불안정해요. 다시 시도해 주세요."},
	ai.KindGeneric: {Status: http.StatusBadGateway, Code: "provider_error", Message: "답변을 만들지 못했어요. 다시 시도해 주세요."},
}

// Describe classifies err.
func Describe(err error) Problem {
	p := describe(err)
	if err != nil {
		p.Detail = err.Error()
	}
	return p
}

func describe(err error) Problem {
	var (
		imageErr   *persona.UnsupportedImageTypeError
		initErr    *chatservice.SessionInitError
		turnErr    *chatservice.TurnError
		summaryErr *chatservice.SummaryError
	)

	switch {
	case errors.As(err, &imageErr):
		return Problem{Status: http.StatusUnsupportedMediaType, Code: "unsupported_image_type", Message: "지원하지 않는 이미지 형식이에요. 기본 아바타를 사용할게요."}
	case errors.Is(err, persona.ErrTitleRequired):
		return Problem{Status: http.StatusBadRequest, Code: "title_required", Message: "호칭을 입력해 주세요."}
	case errors.Is(err, chatservice.ErrEmptyInput):
		return Problem{Status: http.StatusBadRequest, Code: "empty_input", Message: "메시지를 입력해 주세요."}
	case errors.Is(err, chatservice.ErrEmptyTranscript):
		return Problem{Status: http.StatusBadRequest, Code: "empty_transcript", Message: "요약할 대화가 아직 없어요."}
	case errors.Is(err, chatservice.ErrConversationNotFound):
		return Problem{Status: http.StatusNotFound, Code: "conversation_not_found", Message: "대화를 찾을 수 없어요."}
	case errors.Is(err, chatservice.ErrTurnInProgress):
		return Problem{Status: http.StatusConflict, Code: "turn_in_progress", Message: "아직 이전 답변을 준비하고 있어요."}
	case errors.Is(err, chatservice.ErrPersonaChanged):
		return Problem{Status: http.StatusConflict, Code: "persona_changed", Message: "설정이 바뀌어서 대화를 새로 시작했어요."}
	case errors.As(err, &initErr):
		p := kindProblems[initErr.Kind]
		if initErr.Kind == "" {
			p = kindProblems[ai.KindGeneric]
		}
		return Problem{Status: http.StatusBadGateway, Code: "session_init_failed", Message: "스피릿과 연결하지 못했어요. " + p.Message}
	case errors.As(err, &turnErr):
		if p, ok := kindProblems[turnErr.Kind]; ok {
			return p
		}
		return kindProblems[ai.KindGeneric]
	case errors.As(err, &summaryErr):
		return Problem{Status: http.StatusBadGateway, Code: "summary_failed", Message: "요약을 만들지 못했어요."}
	default:
		return Problem{Status: http.StatusInternalServerError, Code: "internal_error", Message: "알 수 없는 오류가 발생했어요."}
	}
}

// Respond writes err as a JSON problem.
func Respond(w http.ResponseWriter, err error) {
	p := Describe(err)
	utils.RespondJSON(w, p.Status, p)
}
