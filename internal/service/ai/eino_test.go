package ai

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/spirit/backend/internal/service/search"
)

// scriptedChatModel replays canned responses and records every input it receives.
type scriptedChatModel struct {
	mu        sync.Mutex
	responses []*schema.Message
	err       error
	inputs    [][]*schema.Message
}

func (m *scriptedChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.inputs = append(m.inputs, append([]*schema.Message(nil), input...))
	if m.err != nil {
		return nil, m.err
	}
	if len(m.responses) == 0 {
		return schema.AssistantMessage("", nil), nil
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	return resp, nil
}

func (m *scriptedChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream is not supported by scriptedChatModel")
}

type stubSearcher struct {
	queries []string
	results []search.Result
	err     error
}

func (s *stubSearcher) Search(_ context.Context, query string) ([]search.Result, error) {
	s.queries = append(s.queries, query)
	return s.results, s.err
}

func newTestSessionOptions(tools ...Tool) SessionOptions {
	return SessionOptions{SystemInstruction: "너는 스피릿이야.", Temperature: 0.9, Tools: tools}
}

func TestEinoSessionKeepsHistoryAcrossTurns(t *testing.T) {
	chatModel := &scriptedChatModel{responses: []*schema.Message{
		schema.AssistantMessage("안녕하세요, 주인님!", nil),
		schema.AssistantMessage("기억하고 있어요.", nil),
	}}
	provider := NewEinoProvider("ark", chatModel, "doubao", nil)

	session, err := provider.CreateSession(context.Background(), newTestSessionOptions())
	require.NoError(t, err)

	first, err := session.Send(context.Background(), "안녕")
	require.NoError(t, err)
	assert.Equal(t, "안녕하세요, 주인님!", first.Text)
	assert.False(t, first.ToolInvoked)

	_, err = session.Send(context.Background(), "내 이름 기억해?")
	require.NoError(t, err)

	require.Len(t, chatModel.inputs, 2)
	second := chatModel.inputs[1]
	require.Len(t, second, 4)
	assert.Equal(t, schema.System, second[0].Role)
	assert.Equal(t, "안녕", second[1].Content)
	assert.Equal(t, schema.Assistant, second[2].Role)
	assert.Equal(t, "내 이름 기억해?", second[3].Content)
}

func TestEinoSessionResolvesWebSearchCalls(t *testing.T) {
	call := schema.ToolCall{
		ID:       "call-1",
		Type:     "function",
		Function: schema.FunctionCall{Name: string(ToolWebSearch), Arguments: `{"query":"서울 날씨"}`},
	}
	chatModel := &scriptedChatModel{responses: []*schema.Message{
		schema.AssistantMessage("", []schema.ToolCall{call}),
		schema.AssistantMessage("오늘 서울은 맑아요, 주인님!", nil),
	}}
	searcher := &stubSearcher{results: []search.Result{{Title: "서울 날씨", URL: "https://weather.example", Snippet: "맑음"}}}
	provider := NewEinoProvider("ark", chatModel, "doubao", searcher)

	session, err := provider.CreateSession(context.Background(), newTestSessionOptions(ToolWebSearch))
	require.NoError(t, err)

	reply, err := session.Send(context.Background(), "오늘 서울 날씨 어때?")
	require.NoError(t, err)
	assert.True(t, reply.ToolInvoked)
	assert.Equal(t, "오늘 서울은 맑아요, 주인님!", reply.Text)
	assert.Equal(t, []string{"서울 날씨"}, searcher.queries)

	require.Len(t, chatModel.inputs, 2)
	followUp := chatModel.inputs[1]
	toolMsg := followUp[len(followUp)-1]
	assert.Equal(t, schema.Tool, toolMsg.Role)
	assert.Equal(t, "call-1", toolMsg.ToolCallID)
	assert.Contains(t, toolMsg.Content, "https://weather.example")

	// Only the user text and the final answer are replayed on the next turn.
	_, _ = session.Send(context.Background(), "고마워")
	require.Len(t, chatModel.inputs, 3)
	assert.Len(t, chatModel.inputs[2], 4)
}

func TestEinoSessionStopsAfterMaxToolRounds(t *testing.T) {
	looping := schema.AssistantMessage("검색 중", []schema.ToolCall{{
		ID:       "loop",
		Function: schema.FunctionCall{Name: string(ToolWebSearch), Arguments: `{"query":"x"}`},
	}})
	responses := make([]*schema.Message, 0, defaultMaxToolRounds+1)
	for i := 0; i <= defaultMaxToolRounds; i++ {
		responses = append(responses, looping)
	}
	chatModel := &scriptedChatModel{responses: responses}
	provider := NewEinoProvider("ark", chatModel, "doubao", &stubSearcher{})

	session, err := provider.CreateSession(context.Background(), newTestSessionOptions(ToolWebSearch))
	require.NoError(t, err)

	reply, err := session.Send(context.Background(), "계속 찾아줘")
	require.NoError(t, err)
	assert.Equal(t, "검색 중", reply.Text)
	assert.Len(t, chatModel.inputs, defaultMaxToolRounds+1)
}

func TestEinoSessionClassifiesFailures(t *testing.T) {
	chatModel := &scriptedChatModel{err: errors.New("status 429: quota exceeded for this key")}
	provider := NewEinoProvider("ark", chatModel, "doubao", nil)

	session, err := provider.CreateSession(context.Background(), newTestSessionOptions())
	require.NoError(t, err)

	_, err = session.Send(context.Background(), "안녕")
	require.Error(t, err)
	assert.Equal(t, KindQuota, KindOf(err))

	// A failed turn leaves no trace in the history.
	chatModel.err = nil
	chatModel.responses = []*schema.Message{schema.AssistantMessage("다시 왔어요", nil)}
	_, err = session.Send(context.Background(), "다시")
	require.NoError(t, err)
	assert.Len(t, chatModel.inputs[len(chatModel.inputs)-1], 2)
}

func TestEinoSessionRejectsEmptyReply(t *testing.T) {
	chatModel := &scriptedChatModel{responses: []*schema.Message{schema.AssistantMessage("   ", nil)}}
	provider := NewEinoProvider("ark", chatModel, "doubao", nil)

	session, err := provider.CreateSession(context.Background(), newTestSessionOptions())
	require.NoError(t, err)

	_, err = session.Send(context.Background(), "안녕")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyReply)
}

func TestEinoProviderCreateSessionRequiresInstruction(t *testing.T) {
	provider := NewEinoProvider("ark", &scriptedChatModel{}, "doubao", nil)

	_, err := provider.CreateSession(context.Background(), SessionOptions{})
	require.Error(t, err)
}

func TestEinoProviderGenerateOnce(t *testing.T) {
	chatModel := &scriptedChatModel{responses: []*schema.Message{schema.AssistantMessage(" 따뜻한 하루 ", nil)}}
	provider := NewEinoProvider("ark", chatModel, "doubao", nil)

	out, err := provider.GenerateOnce(context.Background(), "", "요약해줘")
	require.NoError(t, err)
	assert.Equal(t, "따뜻한 하루", out)
	require.Len(t, chatModel.inputs, 1)
	assert.Len(t, chatModel.inputs[0], 1)
}
