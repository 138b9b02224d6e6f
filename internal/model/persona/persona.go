package persona

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultTitle 是助手称呼用户时使用的默认称号。
const DefaultTitle = "주인님"

// DefaultTone 是默认的说话语气描述。
const DefaultTone = "대답은 짧고 친근하며, 새로운 만남과 대화에 대한 기대와 설렘이 가득한 말투를 유지하세요. 모든 감정을 소중히 여기고 두근거리는 마음으로 반응하세요."

// ErrTitleRequired 表示称号被清空。
var ErrTitleRequired = errors.New("persona title is required")

// Config captures the user-editable identity the assistant adopts.
type Config struct {
	Title  string    `json:"title"`
	Tone   string    `json:"tone"`
	Avatar AvatarRef `json:"avatar"`
}

// Defaults returns the configuration used for a fresh conversation.
func Defaults() Config {
	return Config{
		Title:  DefaultTitle,
		Tone:   DefaultTone,
		Avatar: DefaultAvatar(""),
	}
}

// WithOverrides 用非空的覆盖值替换默认称号与语气。
func (c Config) WithOverrides(title, tone string) Config {
	if t := strings.TrimSpace(title); t != "" {
		c.Title = t
	}
	if t := strings.TrimSpace(tone); t != "" {
		c.Tone = t
	}
	return c
}

// Update carries the fields of a persona edit. Nil fields are left untouched.
type Update struct {
	Title *string `json:"title,omitempty"`
	Tone  *string `json:"tone,omitempty"`
}

// Preset is a ready-made title/tone combination offered to the frontend.
type Preset struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Title string `json:"title" yaml:"title"`
	Tone  string `json:"tone" yaml:"tone"`
}

// Update returns the edit that applies the preset's title and tone.
func (p Preset) Update() Update {
	title, tone := p.Title, p.Tone
	return Update{Title: &title, Tone: &tone}
}

// FindPreset looks a preset up by ID.
func FindPreset(presets []Preset, id string) (Preset, bool) {
	for _, p := range presets {
		if p.ID == id {
			return p, true
		}
	}
	return Preset{}, false
}

// Seed provides the built-in presets.
func Seed() []Preset {
	return []Preset{
		{
			ID:    "spirit",
			Name:  "스피릿",
			Title: DefaultTitle,
			Tone:  DefaultTone,
		},
		{
			ID:    "calm-friend",
			Name:  "차분한 친구",
			Title: "친구",
			Tone:  "느긋하고 차분한 반말로, 상대의 말을 먼저 충분히 들어주고 짧게 공감하세요.",
		},
		{
			ID:    "butler",
			Name:  "집사",
			Title: "도련님",
			Tone:  "정중하고 격식 있는 존댓말을 쓰되, 가끔 재치 있는 농담으로 분위기를 풀어주세요.",
		},
	}
}

// LoadPresets 从 YAML 文件读取预设，文件中的条目追加在内置预设之后，同 ID 覆盖内置项。
func LoadPresets(path string) ([]Preset, error) {
	presets := Seed()
	path = strings.TrimSpace(path)
	if path == "" {
		return presets, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read presets file: %w", err)
	}

	var doc struct {
		Presets []Preset `yaml:"presets"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse presets file %s: %w", path, err)
	}

	for _, p := range doc.Presets {
		if strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.Title) == "" {
			return nil, fmt.Errorf("preset in %s is missing id or title", path)
		}
		replaced := false
		for i := range presets {
			if presets[i].ID == p.ID {
				presets[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			presets = append(presets, p)
		}
	}
	return presets, nil
}
