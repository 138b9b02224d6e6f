package speech

import "strings"

// voiceAliases 把人设预设 ID 映射到火山引擎音色。
var voiceAliases = map[string]string{
	"spirit":      "zh_female_vv_uranus_bigtts",
	"calm-friend": "zh_male_yourougongzi_emo_v2_mars_bigtts",
	"butler":      "zh_male_junlangnanyou_emo_v2_mars_bigtts",
	"en_default":  "en_female_amy_jupiter_bigtts",
	// 旧称呼
	"zh_male_m392_conversation": "zh_male_M392_conversation_wvae_bigtts",
}

// NormalizeVoiceAlias 返回别名对应的音色，未知输入原样返回（去除首尾空白）。
func NormalizeVoiceAlias(voice string) string {
	voice = strings.TrimSpace(voice)
	if mapped, ok := voiceAliases[strings.ToLower(voice)]; ok {
		return mapped
	}
	return voice
}

var emotionLabels = map[string]struct{}{
	"happy": {}, "sad": {}, "angry": {}, "excited": {},
	"tender": {}, "comfort": {}, "magnetic": {},
}

// emotionParams 校验情绪参数；音色不支持情绪或标签未知时返回 false。
func emotionParams(speaker, label string, scale float32) (string, float32, bool) {
	label = strings.ToLower(strings.TrimSpace(label))
	if _, ok := emotionLabels[label]; !ok {
		return "", 0, false
	}
	if !supportsEmotion(speaker) {
		return "", 0, false
	}
	if scale <= 0 {
		scale = 3
	}
	return label, max(1, min(scale, 5)), true
}

// 多情感音色名里都带 _emo
func supportsEmotion(speaker string) bool {
	return strings.Contains(strings.ToLower(speaker), "_emo")
}
