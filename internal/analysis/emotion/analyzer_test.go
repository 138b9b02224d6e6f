package emotion

import "testing"

func TestAnalyzeSadUserGetsComfort(t *testing.T) {
	decision := Analyze("오늘 너무 슬퍼", "그랬구나, 내가 곁에 있을게")
	if decision.Emotion != Comfort {
		t.Fatalf("expected comfort emotion, got %s", decision.Emotion)
	}
	if decision.Scale < 1 || decision.Scale > 3.5 {
		t.Fatalf("comfort scale out of range: %f", decision.Scale)
	}
}

func TestAnalyzeFlatReplyFollowsUser(t *testing.T) {
	decision := Analyze("진짜 화나 짜증나", "그런 일이 있었군요.")
	if decision.Emotion != Magnetic {
		t.Fatalf("expected magnetic emotion, got %s", decision.Emotion)
	}
}

func TestAnalyzeExcitedReply(t *testing.T) {
	decision := Analyze("합격했어", "대박!!! 진짜 최고야")
	if decision.Emotion != Excited {
		t.Fatalf("expected excited emotion, got %s", decision.Emotion)
	}
	if decision.Scale < 3 {
		t.Fatalf("expected boosted scale for excitement, got %f", decision.Scale)
	}
}

func TestAnalyzeNeutral(t *testing.T) {
	decision := Analyze("내일 일정 알려줘", "내일은 오전 10시에 회의가 있어요.")
	if !decision.IsNeutral() {
		t.Fatalf("expected neutral decision, got %+v", decision)
	}
	if decision.Scale != 3 {
		t.Fatalf("neutral scale = %f, want 3", decision.Scale)
	}
}
