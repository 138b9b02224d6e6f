// Package emotion 用关键词规则判断一句回复适合的朗读情绪。
package emotion

import (
	"strings"
)

// Label 是火山引擎 TTS 接受的情绪取值。
type Label string

const (
	Neutral  Label = "neutral"
	Happy    Label = "happy"
	Sad      Label = "sad"
	Angry    Label = "angry"
	Excited  Label = "excited"
	Tender   Label = "tender"
	Comfort  Label = "comfort"
	Magnetic Label = "magnetic"
)

// Decision 情绪标签与强度，Scale 取值 [1, 5]。
type Decision struct {
	Emotion Label
	Scale   float32
	Score   int
}

// IsNeutral 表示没有识别到明显情绪。
func (d Decision) IsNeutral() bool {
	return d.Emotion == Neutral || d.Score <= 0
}

const keywordWeight = 3

var lexicon = map[Label][]string{
	Happy: {
		"기뻐", "기쁘", "행복", "좋아", "고마워", "감사", "다행", "웃", "ㅎㅎ", "ㅋㅋ",
		"happy", "glad", "thanks", "love",
	},
	Sad: {
		"슬퍼", "슬프", "우울", "외로", "속상", "눈물", "힘들", "지쳤", "ㅠ", "ㅜ",
		"sad", "lonely", "depressed", "upset",
	},
	Angry: {
		"화나", "화가", "짜증", "열받", "빡치", "억울", "싫어",
		"angry", "annoyed", "furious",
	},
	Excited: {
		"신나", "대박", "최고", "설레", "두근", "와아", "짱",
		"wow", "awesome", "amazing", "can't wait",
	},
	Tender: {
		"천천히", "살며시", "조용히", "포근", "따뜻", "부드럽",
		"gentle", "softly", "calm",
	},
	Comfort: {
		"괜찮아", "걱정 마", "걱정마", "곁에", "응원", "토닥", "힘내", "함께",
		"i'm here", "it's okay", "take it easy",
	},
	Magnetic: {
		"중요", "반드시", "꼭 ", "주의", "명심", "절대",
		"important", "must", "seriously",
	},
}

// Analyze 优先看回复本身的情绪；回复平淡时根据用户情绪选一个回应的语气。
func Analyze(userText, replyText string) Decision {
	best := score(replyText)
	if best.Score == 0 {
		if user := score(userText); user.Score > 0 {
			best = Decision{Emotion: respondTo(user.Emotion), Score: user.Score}
		}
	}
	if best.Score == 0 {
		return Decision{Emotion: Neutral, Scale: 3}
	}

	best.Scale = scaleFor(best)
	return best
}

func score(text string) Decision {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return Decision{Emotion: Neutral}
	}

	scores := make(map[Label]int, len(lexicon))
	for label, words := range lexicon {
		for _, w := range words {
			if strings.Contains(lower, w) {
				scores[label] += keywordWeight
			}
		}
	}

	switch bangs := strings.Count(text, "!"); {
	case bangs == 1:
		scores[Happy] += 2
		scores[Excited] += 3
	case bangs > 1:
		scores[Excited] += 3 * bangs
	}

	// 固定顺序遍历，分数相同时结果稳定
	out := Decision{Emotion: Neutral}
	for _, label := range []Label{Comfort, Sad, Angry, Excited, Happy, Tender, Magnetic} {
		if s := scores[label]; s > out.Score {
			out = Decision{Emotion: label, Score: s}
		}
	}
	return out
}

func respondTo(user Label) Label {
	switch user {
	case Sad:
		return Comfort
	case Angry:
		return Magnetic
	case Comfort:
		return Tender
	default:
		return user
	}
}

func scaleFor(d Decision) float32 {
	scale := 2 + float32(d.Score)/4
	switch d.Emotion {
	case Excited:
		scale++
	case Magnetic:
		scale = min(scale, 4)
	case Comfort, Tender:
		scale = min(scale, 3.5)
	}
	return max(1, min(scale, 5))
}
