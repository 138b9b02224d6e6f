package chat

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/zhouzirui/spirit/backend/internal/model/chat"
	"github.com/zhouzirui/spirit/backend/internal/model/persona"
	speechmodel "github.com/zhouzirui/spirit/backend/internal/model/speech"
	"github.com/zhouzirui/spirit/backend/internal/service/ai"
)

// Synthesizer turns assistant text into audio. voice is a voice name or preset alias;
// empty means the synthesizer's default. userText is the message the reply answers and
// may shape the delivery.
type Synthesizer interface {
	Synthesize(ctx context.Context, voice, userText, replyText, language string) (*speechmodel.TTSResponse, error)
}

// Options are the generation settings shared by every conversation of a Service.
type Options struct {
	Provider    ai.Provider
	Synthesizer Synthesizer
	Model       string
	Temperature float32
	Tools       []ai.Tool
	SeedWelcome bool
	Defaults    persona.Config
	TTSLanguage string
}

// TurnResult is the outcome of a successful Submit.
type TurnResult struct {
	User        chat.Message             `json:"user"`
	Assistant   chat.Message             `json:"assistant"`
	ToolInvoked bool                     `json:"toolInvoked"`
	Audio       *speechmodel.TTSResponse `json:"-"`
	Warning     string                   `json:"warning,omitempty"`
}

// Conversation owns the persona, transcript and remote session handle of one user.
// Every persona or avatar change bumps revision; results computed against an older
// revision are dropped.
type Conversation struct {
	id        string
	createdAt time.Time
	opts      Options
	prompts   *ai.PromptManager

	mu        sync.Mutex
	store     *persona.Store
	messages  []chat.Message
	nextOrder int
	session   ai.ChatSession
	revision  uint64
	busy      bool
	voice     string

	creating singleflight.Group
}

// NewConversation returns a conversation initialised with opts.Defaults.
func NewConversation(id string, opts Options) (*Conversation, error) {
	if opts.Provider == nil {
		return nil, ErrProviderRequired
	}

	defaults := opts.Defaults
	if strings.TrimSpace(defaults.Title) == "" {
		defaults = persona.Defaults()
	}

	return &Conversation{
		id:        id,
		createdAt: time.Now().UTC(),
		opts:      opts,
		prompts:   ai.NewPromptManager(),
		store:     persona.NewStore(defaults),
		messages:  make([]chat.Message, 0, 16),
	}, nil
}

// ID returns the conversation identifier.
func (c *Conversation) ID() string { return c.id }

// Voice returns the voice replies are read with.
func (c *Conversation) Voice() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.voice
}

// SetVoice selects the voice for later replies, usually the preset id the persona came
// from. It does not touch the transcript.
func (c *Conversation) SetVoice(voice string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.voice = strings.TrimSpace(voice)
}

// Persona returns the current persona configuration.
func (c *Conversation) Persona() persona.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Get()
}

// UpdatePersona applies an edit. Any effective change clears the transcript and drops
// the session handle.
func (c *Conversation) UpdatePersona(u persona.Update) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed, err := c.store.Update(u)
	if err != nil || !changed {
		return false, err
	}
	c.invalidateLocked("persona updated")
	return true, nil
}

// SetAvatar installs an uploaded image. Unsupported MIME types leave the current avatar
// in place and return *persona.UnsupportedImageTypeError.
func (c *Conversation) SetAvatar(data []byte, mimeType string) (bool, error) {
	avatar, err := persona.NewUploadedAvatar(data, mimeType)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.store.SetAvatar(avatar) {
		return false, nil
	}
	c.invalidateLocked("avatar uploaded")
	return true, nil
}

// ResetAvatar falls back to the default symbol.
func (c *Conversation) ResetAvatar() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.store.SetAvatar(persona.DefaultAvatar("")) {
		return false
	}
	c.invalidateLocked("avatar reset")
	return true
}

// Reset empties the transcript and drops the session handle, keeping the persona.
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateLocked("explicit reset")
}

func (c *Conversation) invalidateLocked(reason string) {
	c.messages = c.messages[:0:0]
	c.session = nil
	c.revision++
	log.Debug().
		Str("conversation_id", c.id).
		Uint64("revision", c.revision).
		Str("reason", reason).
		Msg("conversation invalidated")
}

// sessionCreateTimeout bounds a shared creation once it is detached from the caller.
const sessionCreateTimeout = 60 * time.Second

// EnsureSession returns the current handle, creating it when absent and seeding the
// welcome into an empty transcript. Concurrent callers share one creation request.
// A failed creation is not retried here.
func (c *Conversation) EnsureSession(ctx context.Context) (ai.ChatSession, error) {
	return c.ensureSession(ctx, c.opts.SeedWelcome)
}

func (c *Conversation) ensureSession(ctx context.Context, seedWelcome bool) (ai.ChatSession, error) {
	c.mu.Lock()
	if c.session != nil {
		session := c.session
		c.mu.Unlock()
		return session, nil
	}
	rev := c.revision
	cfg := c.store.Get()
	c.mu.Unlock()

	v, err, _ := c.creating.Do(strconv.FormatUint(rev, 10), func() (any, error) {
		// 其他调用方可能共享这次创建，不跟随第一个调用方取消
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sessionCreateTimeout)
		defer cancel()
		return c.createSession(flightCtx, rev, cfg, seedWelcome)
	})
	if err != nil {
		return nil, err
	}
	return v.(ai.ChatSession), nil
}

func (c *Conversation) createSession(ctx context.Context, rev uint64, cfg persona.Config, seedWelcome bool) (ai.ChatSession, error) {
	provider := c.opts.Provider
	instruction, err := c.prompts.BuildSystemInstruction(cfg, c.opts.Tools)
	if err != nil {
		return nil, &SessionInitError{Provider: provider.Name(), Kind: ai.KindGeneric, Err: err}
	}

	start := time.Now()
	session, err := provider.CreateSession(ctx, ai.SessionOptions{
		Model:             c.opts.Model,
		SystemInstruction: instruction,
		Temperature:       c.opts.Temperature,
		Tools:             c.opts.Tools,
	})
	if err != nil {
		log.Error().Err(err).
			Str("conversation_id", c.id).
			Str("provider", provider.Name()).
			Msg("create chat session failed")
		return nil, &SessionInitError{Provider: provider.Name(), Kind: ai.KindOf(err), Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.revision != rev {
		return nil, ErrPersonaChanged
	}
	if c.session != nil {
		return c.session, nil
	}
	c.session = session

	if seedWelcome && len(c.messages) == 0 {
		welcome, err := c.prompts.BuildWelcome(cfg.Title)
		if err != nil {
			log.Warn().Err(err).Str("conversation_id", c.id).Msg("render welcome message failed")
		} else {
			c.appendLocked(chat.RoleAssistant, welcome)
		}
	}

	log.Info().
		Str("conversation_id", c.id).
		Str("provider", provider.Name()).
		Str("model", c.opts.Model).
		Dur("latency", time.Since(start)).
		Msg("chat session created")
	return session, nil
}

// Submit runs one turn. The user message is appended before the provider call and
// kept when the call fails.
func (c *Conversation) Submit(ctx context.Context, text string) (TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return TurnResult{}, ErrEmptyInput
	}

	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return TurnResult{}, ErrTurnInProgress
	}
	c.busy = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.busy = false
		c.mu.Unlock()
	}()

	// 由提交触发的创建不插入欢迎语，一次成功的回合只追加两条消息
	session, err := c.ensureSession(ctx, false)
	if err != nil {
		return TurnResult{}, err
	}

	c.mu.Lock()
	rev := c.revision
	user := c.appendLocked(chat.RoleUser, text)
	c.mu.Unlock()

	reply, err := session.Send(ctx, text)
	if err != nil {
		kind := ai.KindOf(err)
		log.Warn().Err(err).
			Str("conversation_id", c.id).
			Str("kind", string(kind)).
			Msg("chat turn failed")
		return TurnResult{User: user}, &TurnError{Kind: kind, Err: err}
	}

	c.mu.Lock()
	if c.revision != rev {
		c.mu.Unlock()
		return TurnResult{User: user}, ErrPersonaChanged
	}
	assistant := c.appendLocked(chat.RoleAssistant, reply.Text)
	voice := c.voice
	c.mu.Unlock()

	result := TurnResult{User: user, Assistant: assistant, ToolInvoked: reply.ToolInvoked}
	if c.opts.Synthesizer != nil {
		audio, err := c.opts.Synthesizer.Synthesize(ctx, voice, text, reply.Text, c.opts.TTSLanguage)
		if err != nil {
			warning := &SynthesisError{Err: err}
			log.Warn().Err(err).Str("conversation_id", c.id).Msg("reply synthesis failed")
			result.Warning = warning.Error()
		} else {
			result.Audio = audio
		}
	}
	return result, nil
}

// Summarize asks the provider for a short title of the latest messages.
func (c *Conversation) Summarize(ctx context.Context) (string, error) {
	c.mu.Lock()
	messages := append([]chat.Message(nil), c.messages...)
	tone := c.store.Get().Tone
	c.mu.Unlock()

	if len(ai.SummaryLines(messages)) == 0 {
		return "", &SummaryError{Err: ErrEmptyTranscript}
	}

	prompt, err := c.prompts.BuildSummaryPrompt(tone, messages)
	if err != nil {
		return "", &SummaryError{Err: err}
	}

	summary, err := c.opts.Provider.GenerateOnce(ctx, c.opts.Model, prompt)
	if err != nil {
		return "", &SummaryError{Err: errors.Wrap(err, c.opts.Provider.Name())}
	}
	return summary, nil
}

// Transcript returns a copy of the ordered messages.
func (c *Conversation) Transcript() []chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]chat.Message(nil), c.messages...)
}

// Snapshot returns a read-only view for rendering.
func (c *Conversation) Snapshot() chat.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return chat.Snapshot{
		ID:            c.id,
		Persona:       c.store.Get(),
		Messages:      append([]chat.Message{}, c.messages...),
		SessionActive: c.session != nil,
		Busy:          c.busy,
		CreatedAt:     c.createdAt,
	}
}

func (c *Conversation) appendLocked(role chat.Role, content string) chat.Message {
	c.nextOrder++
	msg := chat.Message{
		Order:     c.nextOrder,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	c.messages = append(c.messages, msg)
	return msg
}
