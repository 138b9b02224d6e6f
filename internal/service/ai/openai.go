package ai

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/zhouzirui/spirit/backend/internal/service/search"
)

const openAIProviderName = "openai"

// webSearchArgs describes the arguments of the web_search function tool.
type webSearchArgs struct {
	Query string `json:"query" jsonschema:"required,description=The search query in the user's language."`
}

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	client        *openai.Client
	defaultModel  string
	tools         toolRunner
	maxToolRounds int
	toolSchema    *jsonschema.Schema
}

// NewOpenAIProvider builds a client for baseURL (empty keeps the OpenAI default).
func NewOpenAIProvider(apiKey, baseURL, defaultModel string, searcher search.Searcher) (*OpenAIProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("openai api key is empty")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return newOpenAIProvider(openai.NewClientWithConfig(cfg), defaultModel, searcher), nil
}

func newOpenAIProvider(client *openai.Client, defaultModel string, searcher search.Searcher) *OpenAIProvider {
	reflector := &jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	return &OpenAIProvider{
		client:        client,
		defaultModel:  defaultModel,
		tools:         toolRunner{searcher: searcher},
		maxToolRounds: defaultMaxToolRounds,
		toolSchema:    reflector.Reflect(&webSearchArgs{}),
	}
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return openAIProviderName }

// DefaultModel implements Provider.
func (p *OpenAIProvider) DefaultModel() string { return p.defaultModel }

// CreateSession implements Provider.
func (p *OpenAIProvider) CreateSession(_ context.Context, opts SessionOptions) (ChatSession, error) {
	if strings.TrimSpace(opts.SystemInstruction) == "" {
		return nil, &ProviderError{Kind: KindGeneric, Provider: openAIProviderName, Message: "system instruction is empty"}
	}
	return &openAISession{
		provider: p,
		model:    p.resolveModel(opts.Model),
		opts:     opts,
		history: []openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleSystem,
			Content: opts.SystemInstruction,
		}},
	}, nil
}

// GenerateOnce implements Provider.
func (p *OpenAIProvider) GenerateOnce(ctx context.Context, modelName, text string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    p.resolveModel(modelName),
		Messages: []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: text}},
	})
	if err != nil {
		return "", wrapOpenAIError(err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", newProviderError(openAIProviderName, 0, KindGeneric, ErrEmptyReply)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (p *OpenAIProvider) resolveModel(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return p.defaultModel
}

func (p *OpenAIProvider) toolDefinitions(tools []Tool) []openai.Tool {
	if !hasTool(tools, ToolWebSearch) {
		return nil
	}
	return []openai.Tool{{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        string(ToolWebSearch),
			Description: webSearchDescription,
			Parameters:  p.toolSchema,
		},
	}}
}

type openAISession struct {
	provider *OpenAIProvider
	model    string
	opts     SessionOptions

	mu      sync.Mutex
	history []openai.ChatCompletionMessage
}

func (s *openAISession) Send(ctx context.Context, text string) (Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.provider
	start := time.Now()
	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text}
	messages := append(append([]openai.ChatCompletionMessage(nil), s.history...), user)
	tools := p.toolDefinitions(s.opts.Tools)

	invoked := false
	for round := 0; ; round++ {
		resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       s.model,
			Messages:    messages,
			Temperature: s.opts.Temperature,
			Tools:       tools,
		})
		if err != nil {
			return Reply{}, wrapOpenAIError(err)
		}
		if len(resp.Choices) == 0 {
			return Reply{}, newProviderError(openAIProviderName, 0, KindGeneric, ErrEmptyReply)
		}

		msg := resp.Choices[0].Message
		if len(msg.ToolCalls) == 0 || round >= p.maxToolRounds {
			content := strings.TrimSpace(msg.Content)
			if content == "" {
				return Reply{}, newProviderError(openAIProviderName, 0, KindGeneric, ErrEmptyReply)
			}
			s.history = append(s.history, user, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: content,
			})
			log.Info().
				Str("provider", openAIProviderName).
				Str("model", s.model).
				Int("rounds", round+1).
				Bool("tool_invoked", invoked).
				Dur("latency", time.Since(start)).
				Msg("chat turn completed")
			return Reply{Text: content, ToolInvoked: invoked}, nil
		}

		invoked = true
		messages = append(messages, msg)
		for _, call := range msg.ToolCalls {
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    p.tools.run(ctx, call.Function.Name, call.Function.Arguments),
				ToolCallID: call.ID,
			})
		}
	}
}

func wrapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return newProviderError(openAIProviderName, apiErr.HTTPStatusCode, "", err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return newProviderError(openAIProviderName, reqErr.HTTPStatusCode, "", err)
	}
	return newProviderError(openAIProviderName, 0, "", err)
}
