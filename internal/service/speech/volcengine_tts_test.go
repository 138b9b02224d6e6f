package speech

import (
	"fmt"
	"reflect"
	"testing"
)

func TestNormalizeVoiceAlias(t *testing.T) {
	cases := []struct {
		alias  string
		expect string
	}{
		{alias: "butler", expect: "zh_male_junlangnanyou_emo_v2_mars_bigtts"},
		{alias: " Spirit ", expect: "zh_female_vv_uranus_bigtts"},
		{alias: "zh_male_junlangnanyou_emo_v2_mars_bigtts", expect: "zh_male_junlangnanyou_emo_v2_mars_bigtts"},
		{alias: "", expect: ""},
	}

	for _, tc := range cases {
		if got := NormalizeVoiceAlias(tc.alias); got != tc.expect {
			t.Fatalf("NormalizeVoiceAlias(%s) = %s, want %s", tc.alias, got, tc.expect)
		}
	}
}

func TestResolveTTSResourceCandidates(t *testing.T) {
	tests := []struct {
		name  string
		voice string
		want  []string
	}{
		{
			name:  "default voice",
			voice: "",
			want:  []string{"volc.service_type.10029", "seed-tts-2.0"},
		},
		{
			name:  "mega clone voice",
			voice: "S_clone_speaker",
			want:  []string{"volc.megatts.default"},
		},
		{
			name:  "bigtts voice",
			voice: "zh_female_vv_uranus_bigtts",
			want:  []string{"seed-tts-2.0", "volc.service_type.10029"},
		},
		{
			name:  "legacy 1.0 voice",
			voice: "zh_male_organizer",
			want:  []string{"volc.service_type.10029", "seed-tts-2.0"},
		},
	}

	for _, tt := range tests {
		got := resolveTTSResourceCandidates(tt.voice)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s: resolveTTSResourceCandidates(%q) = %v, want %v", tt.name, tt.voice, got, tt.want)
		}
	}
}

func TestResolveTTSSpeakerCandidates(t *testing.T) {
	tests := []struct {
		name     string
		request  string
		fallback string
		want     []string
	}{
		{
			name:     "request and fallback",
			request:  "persona-voice",
			fallback: "zh_female_vv_uranus_bigtts",
			want:     []string{"persona-voice", "zh_female_vv_uranus_bigtts"},
		},
		{
			name:     "request empty",
			request:  "",
			fallback: "zh_male_M392_conversation_wvae_bigtts",
			want:     []string{"zh_male_M392_conversation_wvae_bigtts"},
		},
		{
			name:     "duplicates ignored",
			request:  "ZH_voice",
			fallback: "zh_voice",
			want:     []string{"ZH_voice"},
		},
		{
			name:     "persona alias",
			request:  "butler",
			fallback: "zh_male_M392_conversation_wvae_bigtts",
			want:     []string{"zh_male_junlangnanyou_emo_v2_mars_bigtts", "zh_male_M392_conversation_wvae_bigtts"},
		},
	}

	for _, tt := range tests {
		got := resolveTTSSpeakerCandidates(tt.request, tt.fallback)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s: resolveTTSSpeakerCandidates(%q, %q) = %v, want %v", tt.name, tt.request, tt.fallback, got, tt.want)
		}
	}
}

func TestIsResourceMismatchError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
		{
			name: "unrelated error",
			err:  fmt.Errorf("some other error"),
			want: false,
		},
		{
			name: "mismatch substring",
			err:  fmt.Errorf("TTS error: {\"error\":\"resource ID is mismatched with speaker related resource\"}"),
			want: true,
		},
	}

	for _, tc := range cases {
		if got := isResourceMismatchError(tc.err); got != tc.want {
			t.Errorf("%s: isResourceMismatchError(%v) = %v, want %v", tc.name, tc.err, got, tc.want)
		}
	}
}

func TestEmotionParams(t *testing.T) {
	tests := []struct {
		name      string
		speaker   string
		label     string
		scale     float32
		wantLabel string
		wantScale float32
		wantOK    bool
	}{
		{"emotive voice", "zh_male_junlangnanyou_emo_v2_mars_bigtts", "Comfort", 2.5, "comfort", 2.5, true},
		{"default scale", "en_male_glen_emo_v2_mars_bigtts", "happy", 0, "happy", 3, true},
		{"clamped", "zh_male_yourougongzi_emo_v2_mars_bigtts", "excited", 9, "excited", 5, true},
		{"plain voice", "zh_female_vv_uranus_bigtts", "happy", 3, "", 0, false},
		{"unknown label", "zh_male_junlangnanyou_emo_v2_mars_bigtts", "sleepy", 3, "", 0, false},
		{"neutral", "zh_male_junlangnanyou_emo_v2_mars_bigtts", "neutral", 3, "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label, scale, ok := emotionParams(tt.speaker, tt.label, tt.scale)
			if ok != tt.wantOK || label != tt.wantLabel || scale != tt.wantScale {
				t.Fatalf("emotionParams(%q, %q, %v) = (%q, %v, %v), want (%q, %v, %v)",
					tt.speaker, tt.label, tt.scale, label, scale, ok, tt.wantLabel, tt.wantScale, tt.wantOK)
			}
		})
	}
}
