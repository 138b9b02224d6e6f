package ai

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/spirit/backend/internal/service/search"
)

// EinoProvider drives any eino chat model. Sessions keep their own history and replay
// it through the prompt template on every turn.
type EinoProvider struct {
	name          string
	chatModel     model.BaseChatModel
	defaultModel  string
	template      prompt.ChatTemplate
	tools         toolRunner
	maxToolRounds int
}

// NewEinoProvider wraps chatModel. searcher backs the web search tool and may be nil.
func NewEinoProvider(name string, chatModel model.BaseChatModel, defaultModel string, searcher search.Searcher) *EinoProvider {
	return &EinoProvider{
		name:         name,
		chatModel:    chatModel,
		defaultModel: defaultModel,
		template: prompt.FromMessages(
			schema.FString,
			schema.SystemMessage("{system}"),
			schema.MessagesPlaceholder("history", true),
			schema.UserMessage("{query}"),
		),
		tools:         toolRunner{searcher: searcher},
		maxToolRounds: defaultMaxToolRounds,
	}
}

// Name implements Provider.
func (p *EinoProvider) Name() string { return p.name }

// DefaultModel implements Provider.
func (p *EinoProvider) DefaultModel() string { return p.defaultModel }

// CreateSession implements Provider. No remote call is needed; the session is bound
// to its options and starts with an empty history.
func (p *EinoProvider) CreateSession(_ context.Context, opts SessionOptions) (ChatSession, error) {
	if p.chatModel == nil {
		return nil, &ProviderError{Kind: KindGeneric, Provider: p.name, Message: "chat model is not configured"}
	}
	if strings.TrimSpace(opts.SystemInstruction) == "" {
		return nil, &ProviderError{Kind: KindGeneric, Provider: p.name, Message: "system instruction is empty"}
	}
	return &einoSession{provider: p, opts: opts}, nil
}

// GenerateOnce implements Provider.
func (p *EinoProvider) GenerateOnce(ctx context.Context, modelName, text string) (string, error) {
	if p.chatModel == nil {
		return "", &ProviderError{Kind: KindGeneric, Provider: p.name, Message: "chat model is not configured"}
	}

	resp, err := p.chatModel.Generate(ctx, []*schema.Message{schema.UserMessage(text)}, p.callOptions(modelName, nil, nil)...)
	if err != nil {
		return "", newProviderError(p.name, 0, "", err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", newProviderError(p.name, 0, KindGeneric, ErrEmptyReply)
	}
	return strings.TrimSpace(resp.Content), nil
}

func (p *EinoProvider) callOptions(modelName string, temperature *float32, tools []Tool) []model.Option {
	var opts []model.Option
	if modelName = strings.TrimSpace(modelName); modelName != "" {
		opts = append(opts, model.WithModel(modelName))
	}
	if temperature != nil {
		opts = append(opts, model.WithTemperature(*temperature))
	}
	if hasTool(tools, ToolWebSearch) {
		opts = append(opts, model.WithTools([]*schema.ToolInfo{webSearchToolInfo()}))
	}
	return opts
}

func webSearchToolInfo() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: string(ToolWebSearch),
		Desc: webSearchDescription,
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Type:     schema.String,
				Desc:     webSearchQueryDescription,
				Required: true,
			},
		}),
	}
}

type einoSession struct {
	provider *EinoProvider
	opts     SessionOptions

	mu      sync.Mutex
	history []*schema.Message
}

// Send runs one turn, resolving tool calls locally for up to maxToolRounds rounds.
// Only the user message and the final assistant text enter the history.
func (s *einoSession) Send(ctx context.Context, text string) (Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.provider
	start := time.Now()

	messages, err := p.template.Format(ctx, map[string]any{
		"system":  s.opts.SystemInstruction,
		"history": s.history,
		"query":   text,
	})
	if err != nil {
		return Reply{}, errors.Wrap(err, "format chat template")
	}

	temperature := s.opts.Temperature
	callOpts := p.callOptions(s.opts.Model, &temperature, s.opts.Tools)

	invoked := false
	for round := 0; ; round++ {
		resp, err := p.chatModel.Generate(ctx, messages, callOpts...)
		if err != nil {
			return Reply{}, newProviderError(p.name, 0, "", err)
		}
		if resp == nil {
			return Reply{}, newProviderError(p.name, 0, KindGeneric, ErrEmptyReply)
		}

		if len(resp.ToolCalls) == 0 || round >= p.maxToolRounds {
			content := strings.TrimSpace(resp.Content)
			if content == "" {
				return Reply{}, newProviderError(p.name, 0, KindGeneric, ErrEmptyReply)
			}
			s.history = append(s.history, schema.UserMessage(text), schema.AssistantMessage(content, nil))
			log.Info().
				Str("provider", p.name).
				Int("rounds", round+1).
				Bool("tool_invoked", invoked).
				Dur("latency", time.Since(start)).
				Msg("chat turn completed")
			return Reply{Text: content, ToolInvoked: invoked}, nil
		}

		invoked = true
		messages = append(messages, resp)
		for _, call := range resp.ToolCalls {
			output := p.tools.run(ctx, call.Function.Name, call.Function.Arguments)
			messages = append(messages, schema.ToolMessage(output, call.ID))
		}
	}
}
