package tui

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/zhouzirui/spirit/backend/internal/handler/apierror"
	chatmodel "github.com/zhouzirui/spirit/backend/internal/model/chat"
	"github.com/zhouzirui/spirit/backend/internal/model/persona"
	"github.com/zhouzirui/spirit/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/spirit/backend/internal/service/chat"
)

// Conversation is the part of *chat.Conversation the TUI drives.
type Conversation interface {
	EnsureSession(ctx context.Context) (ai.ChatSession, error)
	Submit(ctx context.Context, text string) (chatservice.TurnResult, error)
	Summarize(ctx context.Context) (string, error)
	UpdatePersona(u persona.Update) (bool, error)
	SetAvatar(data []byte, mimeType string) (bool, error)
	Reset()
	Persona() persona.Config
	Transcript() []chatmodel.Message
}

type (
	sessionMsg struct{ err error }
	turnMsg    struct {
		result chatservice.TurnResult
		err    error
	}
	summaryMsg struct {
		summary string
		err     error
	}
	feedbackClearMsg struct{}
)

// Model is the bubbletea model of the chat screen.
type Model struct {
	conv      Conversation
	modelName string
	timeout   time.Duration

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	loading  bool
	ready    bool
	feedback string
	warning  string
	err      error
	summary  string

	width  int
	height int
}

// NewModel returns a chat screen bound to conv.
func NewModel(conv Conversation, modelName string) Model {
	ti := textinput.New()
	ti.Placeholder = "메시지를 입력하세요 (/help)"
	ti.CharLimit = 4000
	ti.Focus()

	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = lipgloss.NewStyle().Foreground(colorPrimary)

	return Model{
		conv:      conv,
		modelName: modelName,
		timeout:   2 * time.Minute,
		input:     ti,
		spinner:   s,
		loading:   true,
	}
}

// Init opens the remote session so the welcome line shows up before the first input.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.ensureSession())
}

func (m Model) ensureSession() tea.Cmd {
	conv, timeout := m.conv, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_, err := conv.EnsureSession(ctx)
		return sessionMsg{err: err}
	}
}

func (m Model) submit(text string) tea.Cmd {
	conv, timeout := m.conv, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		result, err := conv.Submit(ctx, text)
		return turnMsg{result: result, err: err}
	}
}

func (m Model) summarize() tea.Cmd {
	conv, timeout := m.conv, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		summary, err := conv.Summarize(ctx)
		return summaryMsg{summary: summary, err: err}
	}
}

func clearFeedback() tea.Cmd {
	return tea.Tick(3*time.Second, func(time.Time) tea.Msg { return feedbackClearMsg{} })
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		vpHeight := m.height - 9
		if vpHeight < 5 {
			vpHeight = 5
		}
		if !m.ready {
			m.viewport = viewport.New(m.width-2, vpHeight)
			m.ready = true
		} else {
			m.viewport.Width = m.width - 2
			m.viewport.Height = vpHeight
		}
		m.input.Width = m.width - 8
		m.refresh()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "ctrl+y":
			return m.copyLastReply()
		case "enter":
			if m.loading {
				return m, nil
			}
			input := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if input == "" {
				return m, nil
			}
			if strings.HasPrefix(input, "/") {
				return m.runCommand(input)
			}
			m.loading = true
			m.err = nil
			m.warning = ""
			return m, tea.Batch(m.submit(input), m.spinner.Tick)
		}

	case sessionMsg:
		m.loading = false
		m.err = msg.err
		m.refresh()

	case turnMsg:
		m.loading = false
		m.err = msg.err
		m.warning = msg.result.Warning
		m.refresh()

	case summaryMsg:
		m.loading = false
		m.err = msg.err
		m.summary = msg.summary
		m.refresh()

	case feedbackClearMsg:
		m.feedback = ""

	case spinner.TickMsg:
		if m.loading {
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	if !m.loading {
		if _, ok := msg.(tea.KeyMsg); ok {
			m.input, cmd = m.input.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// runCommand handles slash commands: /title, /tone, /avatar, /reset, /summary, /quit.
func (m Model) runCommand(input string) (tea.Model, tea.Cmd) {
	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)
	m.err = nil

	reopen := false
	switch name {
	case "/quit", "/exit":
		return m, tea.Quit
	case "/help":
		m.feedback = "/title <호칭>  /tone <말투>  /avatar <파일>  /reset  /summary  ctrl+y 복사"
	case "/title":
		reopen = m.applyPersona(persona.Update{Title: &arg})
	case "/tone":
		reopen = m.applyPersona(persona.Update{Tone: &arg})
	case "/avatar":
		reopen = m.applyAvatar(arg)
	case "/reset":
		m.conv.Reset()
		m.summary = ""
		m.feedback = "대화를 새로 시작했어요."
		reopen = true
	case "/summary":
		m.loading = true
		return m, tea.Batch(m.summarize(), m.spinner.Tick)
	default:
		m.feedback = "알 수 없는 명령어예요: " + name
	}

	m.refresh()
	if reopen {
		// 新会话的欢迎语要先于下一条输入出现
		m.loading = true
		return m, tea.Batch(m.ensureSession(), m.spinner.Tick, clearFeedback())
	}
	return m, clearFeedback()
}

func (m *Model) applyPersona(u persona.Update) bool {
	changed, err := m.conv.UpdatePersona(u)
	switch {
	case err != nil:
		m.err = err
	case changed:
		m.summary = ""
		m.feedback = "설정이 바뀌어서 대화를 새로 시작했어요."
	default:
		m.feedback = "변경된 내용이 없어요."
	}
	return changed
}

func (m *Model) applyAvatar(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		m.err = err
		return false
	}
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	changed, err := m.conv.SetAvatar(data, mimeType)
	switch {
	case err != nil:
		m.err = err
	case changed:
		m.summary = ""
		m.feedback = "아바타를 바꿨어요."
	}
	return changed
}

func (m Model) copyLastReply() (tea.Model, tea.Cmd) {
	transcript := m.conv.Transcript()
	for i := len(transcript) - 1; i >= 0; i-- {
		if transcript[i].Role != chatmodel.RoleAssistant {
			continue
		}
		if err := clipboard.WriteAll(transcript[i].Content); err != nil {
			m.feedback = fmt.Sprintf("복사하지 못했어요: %v", err)
		} else {
			m.feedback = "마지막 답변을 복사했어요."
		}
		return m, clearFeedback()
	}
	return m, nil
}

// refresh re-renders the transcript into the viewport.
func (m *Model) refresh() {
	if !m.ready {
		return
	}

	cfg := m.conv.Persona()
	width := m.viewport.Width - 4
	renderer, err := glamour.NewTermRenderer(glamour.WithStylePath("dark"), glamour.WithWordWrap(width))
	if err != nil {
		renderer = nil
	}

	var content strings.Builder
	for _, msg := range m.conv.Transcript() {
		switch msg.Role {
		case chatmodel.RoleUser:
			content.WriteString(userLabelStyle.Render("● "+cfg.Title) + "\n")
			content.WriteString(userBubbleStyle.Width(width).Render(msg.Content))
		default:
			content.WriteString(assistantLabelStyle.Render(cfg.Avatar.Symbol()+" Spirit") + "\n")
			text := msg.Content
			if renderer != nil {
				if rendered, err := renderer.Render(text); err == nil {
					text = strings.TrimRight(rendered, "\n")
				}
			}
			content.WriteString(assistantBubbleStyle.Width(width).Render(text))
		}
		content.WriteString("\n\n")
	}
	if m.summary != "" {
		content.WriteString(hintStyle.Render("── 요약 ──") + "\n" + m.summary + "\n")
	}

	m.viewport.SetContent(content.String())
	m.viewport.GotoBottom()
}

// View renders the TUI.
func (m Model) View() string {
	if !m.ready {
		return hintStyle.Render("  Initializing...")
	}

	cfg := m.conv.Persona()
	header := headerStyle.Width(m.width - 2).Render(lipgloss.JoinHorizontal(lipgloss.Center,
		titleStyle.Render("Spirit"),
		hintStyle.Render("  •  "+m.modelName+"  •  호칭: "+cfg.Title),
	))

	var input string
	if m.loading {
		input = m.spinner.View() + hintStyle.Render(" 스피릿이 생각 중이에요...")
	} else {
		input = m.input.View()
	}

	var status string
	switch {
	case m.err != nil:
		p := apierror.Describe(m.err)
		status = errorStyle.Render("⚠ " + p.Message)
	case m.warning != "":
		status = warningStyle.Render(m.warning)
	case m.feedback != "":
		status = statusStyle.Render(m.feedback)
	default:
		status = statusStyle.Render("enter 전송 • ctrl+y 복사 • esc 종료")
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.viewport.View(),
		inputPanelStyle.Width(m.width-2).Render(input),
		status,
	)
}
