package speech

// TTSRequest 语音合成请求
type TTSRequest struct {
	SessionID string  `json:"sessionId"`
	Text      string  `json:"text"`
	Voice     string  `json:"voice"`    // 声音或别名
	Speed     float32 `json:"speed"`    // 语速倍率 0.5-2.0
	Volume    float32 `json:"volume"`   // 音量倍率
	Format    string  `json:"format"`   // mp3, ogg_opus, pcm
	Language  string  `json:"language"` // ko-KR, zh-CN ...

	// 仅 *_emo_* 音色生效
	Emotion      string  `json:"emotion,omitempty"`
	EmotionScale float32 `json:"emotionScale,omitempty"`
}
