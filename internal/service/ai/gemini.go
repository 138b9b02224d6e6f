package ai

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

const geminiProviderName = "gemini"

// GeminiProvider talks to the Gemini API. Chat state and the google_search tool are
// handled provider-side.
type GeminiProvider struct {
	client       *genai.Client
	defaultModel string
}

// NewGeminiProvider creates a Gemini API client for apiKey.
func NewGeminiProvider(ctx context.Context, apiKey, defaultModel string) (*GeminiProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini api key is empty")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create gemini client")
	}
	return &GeminiProvider{client: client, defaultModel: defaultModel}, nil
}

// Name implements Provider.
func (p *GeminiProvider) Name() string { return geminiProviderName }

// DefaultModel implements Provider.
func (p *GeminiProvider) DefaultModel() string { return p.defaultModel }

// CreateSession implements Provider.
func (p *GeminiProvider) CreateSession(ctx context.Context, opts SessionOptions) (ChatSession, error) {
	modelName := p.resolveModel(opts.Model)
	temperature := opts.Temperature

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(opts.SystemInstruction, genai.RoleUser),
		Temperature:       &temperature,
	}
	if hasTool(opts.Tools, ToolWebSearch) {
		cfg.Tools = append(cfg.Tools, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
	}

	chat, err := p.client.Chats.Create(ctx, modelName, cfg, nil)
	if err != nil {
		return nil, wrapGeminiError(err)
	}
	return &geminiSession{chat: chat, model: modelName}, nil
}

// GenerateOnce implements Provider.
func (p *GeminiProvider) GenerateOnce(ctx context.Context, modelName, text string) (string, error) {
	resp, err := p.client.Models.GenerateContent(ctx, p.resolveModel(modelName), genai.Text(text), nil)
	if err != nil {
		return "", wrapGeminiError(err)
	}
	out := strings.TrimSpace(resp.Text())
	if out == "" {
		return "", newProviderError(geminiProviderName, 0, KindGeneric, ErrEmptyReply)
	}
	return out, nil
}

func (p *GeminiProvider) resolveModel(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return p.defaultModel
}

type geminiSession struct {
	chat  *genai.Chat
	model string
}

func (s *geminiSession) Send(ctx context.Context, text string) (Reply, error) {
	start := time.Now()
	resp, err := s.chat.SendMessage(ctx, genai.Part{Text: text})
	if err != nil {
		return Reply{}, wrapGeminiError(err)
	}

	content := strings.TrimSpace(resp.Text())
	if content == "" {
		return Reply{}, newProviderError(geminiProviderName, 0, KindGeneric, ErrEmptyReply)
	}

	invoked := geminiToolInvoked(resp)
	log.Info().
		Str("provider", geminiProviderName).
		Str("model", s.model).
		Bool("tool_invoked", invoked).
		Dur("latency", time.Since(start)).
		Msg("chat turn completed")
	return Reply{Text: content, ToolInvoked: invoked}, nil
}

// geminiToolInvoked reports whether the reply came with function calls or search grounding.
func geminiToolInvoked(resp *genai.GenerateContentResponse) bool {
	if resp == nil {
		return false
	}
	if len(resp.FunctionCalls()) > 0 {
		return true
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.GroundingMetadata == nil {
			continue
		}
		gm := cand.GroundingMetadata
		if len(gm.WebSearchQueries) > 0 || len(gm.GroundingChunks) > 0 {
			return true
		}
	}
	return false
}

func wrapGeminiError(err error) error {
	// genai 以值类型返回 APIError
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return newProviderError(geminiProviderName, apiErr.Code, "", err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return newProviderError(geminiProviderName, apiErrPtr.Code, "", err)
	}
	return newProviderError(geminiProviderName, 0, "", err)
}
