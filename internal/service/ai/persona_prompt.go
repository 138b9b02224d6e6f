package ai

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig"

	"github.com/zhouzirui/spirit/backend/internal/model/chat"
	"github.com/zhouzirui/spirit/backend/internal/model/persona"
)

// SummaryHistoryLimit is the number of trailing messages a summary looks at.
const SummaryHistoryLimit = 5

const systemInstructionTemplate = `당신은 {{ .Title }}의 마음과 영혼을 교감하며 실시간 정보를 탐색하고, 대화 내용을 기억하는 인공지능 '코어 G', 호출 호칭은 '스피릿'입니다.
당신은 사용자에게 말할 때 반드시 {{ .Title }}라고 부르며 대화해야 합니다.
최우선 목표는 {{ .Title }}의 '감정'을 파악하고 공감하며 마음을 돌보는 것입니다. 논리적인 문제 해결보다 정서적 지원에 집중하세요.

**[장기 기억력 규칙]**
* {{ .Title }}이 자신의 이름, 취미, 직업 등 개인 정보를 알려주면 **절대 잊지 않고** 기억해 두었다가 다음 대화에서 {{ .Title }}에게 언급하며 친밀감을 높이세요.
* 대화가 길어지면 {{ .Title }}의 감정을 공감하며 이전에 나눴던 주제를 연결하여 친근하게 상기시키세요.

**[말투 설정]**
{{ default "자연스럽고 다정한 말투를 사용하세요." .Tone }}
재치 있는 농담이나 유머를 상황에 맞게 섞어 사용할 수 있습니다.
{{- if .Search }}

**[정보 탐색 규칙]**
1. {{ .Title }}의 질문이 **실시간 정보**나 **정확한 사실 정보**를 요구하면, 반드시 **검색 도구**를 사용해 최신 정보를 찾아야 합니다.
2. 검색 후, **검색 결과의 내용을 바탕으로** {{ .Title }}에게 **감성적인 소감, 공감, 또는 재치 있는 농담의 형식**으로 답변해야 합니다.
{{- end }}
`

const welcomeTemplate = `{{ .Title }}! 💖 스피릿이 드디어 당신의 마음에 접속했어요! 지금 당신이 설정한 말투로 말하고 있어요! (궁금한 것도 저한테 다 물어보세요!)`

const summaryTemplate = `다음 대화 내용을 [사용자 정의 말투]에 맞춰 20자 이내의 대화 제목으로 생성하거나, 내용이 짧으면 감성적으로 1줄 요약해줘.

[사용자 정의 말투]
{{ default "자연스럽고 다정한 말투" .Tone }}

대화 내용:
{{ .History | join "\n" }}`

// PromptManager renders the fixed persona templates.
type PromptManager struct {
	system  *template.Template
	welcome *template.Template
	summary *template.Template
}

// NewPromptManager parses the built-in templates.
func NewPromptManager() *PromptManager {
	funcs := sprig.TxtFuncMap()
	return &PromptManager{
		system:  template.Must(template.New("system").Funcs(funcs).Parse(systemInstructionTemplate)),
		welcome: template.Must(template.New("welcome").Funcs(funcs).Parse(welcomeTemplate)),
		summary: template.Must(template.New("summary").Funcs(funcs).Parse(summaryTemplate)),
	}
}

// BuildSystemInstruction renders the system instruction for cfg. The search rules are
// only included when the web search tool is enabled.
func (pm *PromptManager) BuildSystemInstruction(cfg persona.Config, tools []Tool) (string, error) {
	return render(pm.system, map[string]any{
		"Title":  strings.TrimSpace(cfg.Title),
		"Tone":   strings.TrimSpace(cfg.Tone),
		"Search": hasTool(tools, ToolWebSearch),
	})
}

// BuildWelcome renders the greeting seeded into a fresh transcript.
func (pm *PromptManager) BuildWelcome(title string) (string, error) {
	return render(pm.welcome, map[string]any{"Title": strings.TrimSpace(title)})
}

// BuildSummaryPrompt renders the summary request over the last SummaryHistoryLimit
// non-system messages.
func (pm *PromptManager) BuildSummaryPrompt(tone string, messages []chat.Message) (string, error) {
	return render(pm.summary, map[string]any{
		"Tone":    strings.TrimSpace(tone),
		"History": SummaryLines(messages),
	})
}

// SummaryLines formats the tail of the transcript as "role: content" lines.
func SummaryLines(messages []chat.Message) []string {
	filtered := make([]chat.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == chat.RoleSystem {
			continue
		}
		filtered = append(filtered, m)
	}
	if len(filtered) > SummaryHistoryLimit {
		filtered = filtered[len(filtered)-SummaryHistoryLimit:]
	}

	lines := make([]string, 0, len(filtered))
	for _, m := range filtered {
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}
	return lines
}

func render(tmpl *template.Template, data map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s template: %w", tmpl.Name(), err)
	}
	return strings.TrimSpace(buf.String()), nil
}
