package speech

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/tidwall/gjson"

	speechmodel "github.com/zhouzirui/spirit/backend/internal/model/speech"
)

type fakeSpeechService struct {
	req   *speechmodel.TTSRequest
	audio []byte
	err   error
}

func (f *fakeSpeechService) SynthesizeSpeech(_ context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &speechmodel.TTSResponse{SessionID: req.SessionID, Format: "mp3", AudioData: f.audio}, nil
}

func setupRouter(svc *fakeSpeechService) *chi.Mux {
	r := chi.NewRouter()
	New(svc, "ko-KR").RegisterRoutes(r)
	return r
}

func TestSynthesizeReturnsAudio(t *testing.T) {
	svc := &fakeSpeechService{audio: []byte("ID3-audio")}
	r := setupRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/speech/synthesize", bytes.NewBufferString(`{"text":"안녕하세요","voice":"butler"}`))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); ct != "audio/mp3" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if resp.Body.String() != "ID3-audio" {
		t.Fatalf("unexpected body %q", resp.Body.String())
	}
	if svc.req.Language != "ko-KR" {
		t.Fatalf("expected default language, got %q", svc.req.Language)
	}
	if svc.req.Voice != "zh_male_junlangnanyou_emo_v2_mars_bigtts" {
		t.Fatalf("expected alias to be resolved, got %q", svc.req.Voice)
	}
}

func TestSynthesizeJSONFormat(t *testing.T) {
	svc := &fakeSpeechService{audio: []byte("abc")}
	r := setupRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/speech/synthesize?format=json", bytes.NewBufferString(`{"text":"hi","language":"en-US"}`))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	body := gjson.ParseBytes(resp.Body.Bytes())
	if body.Get("audio").String() != "YWJj" {
		t.Fatalf("expected base64 audio, got %s", body.Get("audio").Raw)
	}
	if body.Get("format").String() != "mp3" {
		t.Fatalf("unexpected format %s", body.Get("format").Raw)
	}
	if svc.req.Language != "en-US" {
		t.Fatalf("request language should win, got %q", svc.req.Language)
	}
}

func TestSynthesizeRequiresText(t *testing.T) {
	r := setupRouter(&fakeSpeechService{})

	req := httptest.NewRequest(http.MethodPost, "/speech/synthesize", bytes.NewBufferString(`{"text":"  "}`))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestSynthesizeFailure(t *testing.T) {
	r := setupRouter(&fakeSpeechService{err: errors.New("TTS error 45000000: quota")})

	req := httptest.NewRequest(http.MethodPost, "/speech/synthesize", bytes.NewBufferString(`{"text":"hi"}`))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.Code)
	}
	if code := gjson.GetBytes(resp.Body.Bytes(), "code").String(); code != "synthesis_failed" {
		t.Fatalf("unexpected code %q", code)
	}
}

func TestHealth(t *testing.T) {
	r := setupRouter(&fakeSpeechService{})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/speech/health", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}
