package speech

// SpeechConfig 语音合成服务配置
type SpeechConfig struct {
	// 火山引擎凭证
	AppID       string `json:"appId"`
	AccessToken string `json:"accessToken"`
	APIKey      string `json:"apiKey,omitempty"` // 兼容旧配置
	// Endpoint 为空时使用官方单向流式地址
	Endpoint string `json:"endpoint,omitempty"`

	TTSVoice    string  `json:"ttsVoice"`
	TTSSpeed    float32 `json:"ttsSpeed"`
	TTSVolume   float32 `json:"ttsVolume"`
	TTSLanguage string  `json:"ttsLanguage"`

	Timeout int `json:"timeout"` // seconds
}
