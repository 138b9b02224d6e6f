package speech

import (
	"context"
	"strings"
	"time"

	"github.com/zhouzirui/spirit/backend/internal/analysis/emotion"
	"github.com/zhouzirui/spirit/backend/internal/model/speech"
)

// Service 语音合成服务
type Service struct {
	config    *speech.SpeechConfig
	ttsClient *VolcengineTTSClient
}

// NewService 创建语音服务实例
func NewService(config *speech.SpeechConfig) *Service {
	return &Service{
		config:    config,
		ttsClient: NewVolcengineTTSClient(config),
	}
}

// Enabled 表示凭证是否齐全。
func (s *Service) Enabled() bool {
	_, _, err := resolveCredentials(s.config)
	return err == nil
}

// SynthesizeSpeech 文字转语音，超时取配置中的 Timeout。
func (s *Service) SynthesizeSpeech(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error) {
	if s.config != nil && s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.config.Timeout)*time.Second)
		defer cancel()
	}
	return s.ttsClient.SynthesizeSpeechWS(ctx, req)
}

// Synthesize 朗读一段回复。voice 可以是音色名或预设别名，为空时用配置的默认音色；
// 情绪由用户输入和回复内容推断。
func (s *Service) Synthesize(ctx context.Context, voice, userText, replyText, language string) (*speech.TTSResponse, error) {
	req := &speech.TTSRequest{
		Text:     strings.TrimSpace(replyText),
		Voice:    NormalizeVoiceAlias(voice),
		Language: language,
	}
	if decision := emotion.Analyze(userText, replyText); !decision.IsNeutral() {
		req.Emotion = string(decision.Emotion)
		req.EmotionScale = decision.Scale
	}
	return s.SynthesizeSpeech(ctx, req)
}
