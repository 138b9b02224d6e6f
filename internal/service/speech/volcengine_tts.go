package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/zhouzirui/spirit/backend/internal/model/speech"
)

// DefaultTTSEndpoint 火山引擎单向流式 TTS 地址
const DefaultTTSEndpoint = "wss://openspeech.bytedance.com/api/v3/tts/unidirectional/stream"

// 服务端返回 3000 表示成功。
const ttsCodeOK = 3000

// VolcengineTTSClient 火山引擎TTS WebSocket客户端
type VolcengineTTSClient struct {
	config   *speech.SpeechConfig
	dialer   *websocket.Dialer
	endpoint string
}

// NewVolcengineTTSClient 创建火山引擎TTS客户端
func NewVolcengineTTSClient(config *speech.SpeechConfig) *VolcengineTTSClient {
	endpoint := DefaultTTSEndpoint
	if config != nil && strings.TrimSpace(config.Endpoint) != "" {
		endpoint = strings.TrimSpace(config.Endpoint)
	}
	return &VolcengineTTSClient{
		config:   config,
		endpoint: endpoint,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 30 * time.Second,
		},
	}
}

type volcengineTTSRequest struct {
	User struct {
		UID string `json:"uid"`
	} `json:"user"`
	ReqParams struct {
		Speaker     string                   `json:"speaker"`
		Text        string                   `json:"text"`
		AudioParams volcengineTTSAudioParams `json:"audio_params"`
		Additions   string                   `json:"additions,omitempty"`
		Language    string                   `json:"language,omitempty"`
	} `json:"req_params"`
}

type volcengineTTSAudioParams struct {
	Format          string  `json:"format"`
	SampleRate      int     `json:"sample_rate"`
	EnableTimestamp bool    `json:"enable_timestamp"`
	SpeedRatio      float32 `json:"speed_ratio,omitempty"`
	VolumeRatio     float32 `json:"volume_ratio,omitempty"`
	Emotion         string  `json:"emotion,omitempty"`
	EmotionScale    float32 `json:"emotion_scale,omitempty"`
}

// SynthesizeSpeechWS 依次尝试候选音色与资源 ID，直到合成成功。
func (c *VolcengineTTSClient) SynthesizeSpeechWS(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("TTS text is empty")
	}

	appKey, accessKey, err := resolveCredentials(c.config)
	if err != nil {
		return nil, err
	}

	encoding := strings.TrimSpace(req.Format)
	if encoding == "" || encoding == "wav" {
		encoding = "mp3"
	}

	speakers := resolveTTSSpeakerCandidates(req.Voice, c.config.TTSVoice)
	var lastMismatch error

	for _, speaker := range speakers {
		for _, resourceID := range resolveTTSResourceCandidates(speaker) {
			resp, attemptErr := c.synthesizeWithResource(ctx, req, appKey, accessKey, speaker, encoding, resourceID)
			if attemptErr == nil {
				return resp, nil
			}
			if !isResourceMismatchError(attemptErr) {
				return nil, attemptErr
			}
			log.Debug().Err(attemptErr).
				Str("speaker", speaker).
				Str("resource_id", resourceID).
				Msg("tts resource mismatch, trying next candidate")
			lastMismatch = attemptErr
		}
	}

	if lastMismatch != nil {
		return nil, lastMismatch
	}
	return nil, fmt.Errorf("TTS synthesis failed: no compatible resource id or speaker for voice candidates %v", speakers)
}

func (c *VolcengineTTSClient) synthesizeWithResource(
	ctx context.Context,
	req *speech.TTSRequest,
	appKey, accessKey, speaker, encoding, resourceID string,
) (*speech.TTSResponse, error) {
	connectID := uuid.NewString()

	header := http.Header{}
	header.Set("X-Api-App-Key", appKey)
	header.Set("X-Api-Access-Key", accessKey)
	header.Set("X-Api-Resource-Id", resourceID)
	header.Set("X-Api-Connect-Id", connectID)

	conn, resp, err := c.dialer.DialContext(ctx, c.endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to TTS WebSocket: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}

	logger := log.With().Str("connect_id", connectID).Str("speaker", speaker).Logger()
	if resp != nil {
		if logid := resp.Header.Get("X-Tt-Logid"); logid != "" {
			logger = logger.With().Str("logid", logid).Logger()
		}
	}

	ttsReq, userUID := c.buildTTSRequest(req, speaker, encoding)
	payload, err := json.Marshal(ttsReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal TTS request: %w", err)
	}

	frame, err := EncodeMessage(CreateFullClientRequest(payload, NoCompression))
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return nil, fmt.Errorf("failed to send TTS request: %w", err)
	}

	var (
		audio    bytes.Buffer
		reqID    string
		duration int64
	)

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = userUID
	}

	finish := func() (*speech.TTSResponse, error) {
		if audio.Len() == 0 {
			return nil, fmt.Errorf("TTS audio is empty")
		}
		if reqID == "" {
			reqID = connectID
		}
		logger.Info().Int("bytes", audio.Len()).Int64("duration_ms", duration).Msg("tts synthesis completed")
		return &speech.TTSResponse{
			SessionID: sessionID,
			AudioData: audio.Bytes(),
			Duration:  duration,
			Format:    encoding,
			RequestID: reqID,
			CreatedAt: time.Now(),
		}, nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("failed to read TTS response: %w", err)
		}

		msg, err := DecodeMessage(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode TTS message: %w", err)
		}

		body, err := DecompressPayload(msg.Payload, msg.Header.CompressionMethod)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress TTS payload: %w", err)
		}

		switch msg.Header.MessageType {
		case ErrorMessage:
			return nil, fmt.Errorf("TTS error %d: %s", msg.ErrorCode, string(body))

		case AudioOnlyServerResponse:
			audio.Write(body)
			if msg.IsLastPacket() {
				return finish()
			}

		case FullServerResponse:
			sequence := int64(0)
			if len(body) > 0 && gjson.ValidBytes(body) {
				result := gjson.ParseBytes(body)
				if code := result.Get("code").Int(); code != 0 && code != ttsCodeOK {
					return nil, fmt.Errorf("TTS API error %d: %s", code, result.Get("message").String())
				}
				if id := result.Get("reqid").String(); id != "" {
					reqID = id
				}
				if d := result.Get("addition.duration").String(); d != "" {
					if parsed, err := strconv.ParseInt(d, 10, 64); err == nil {
						duration = parsed
					}
				}
				if chunk := result.Get("data").String(); chunk != "" {
					decoded, err := base64.StdEncoding.DecodeString(chunk)
					if err != nil {
						return nil, fmt.Errorf("failed to decode base64 audio chunk: %w", err)
					}
					audio.Write(decoded)
				}
				sequence = result.Get("sequence").Int()
			} else if len(body) > 0 {
				logger.Warn().Int("bytes", len(body)).Msg("tts response payload is not json")
			}

			finished := msg.hasEvent() && msg.EventType == EventTypeSessionFinished
			if msg.hasEvent() && !finished {
				logger.Debug().Int32("event", int32(msg.EventType)).Msg("tts server event")
			}
			if finished || msg.IsLastPacket() || sequence < 0 {
				return finish()
			}

		default:
			logger.Warn().Uint8("type", uint8(msg.Header.MessageType)).Msg("unexpected tts message type")
		}
	}
}

// buildTTSRequest 构建符合火山引擎API格式的TTS请求
func (c *VolcengineTTSClient) buildTTSRequest(req *speech.TTSRequest, speaker, encoding string) (*volcengineTTSRequest, string) {
	ttsReq := &volcengineTTSRequest{}

	userUID := strings.TrimSpace(req.SessionID)
	if userUID == "" {
		userUID = uuid.NewString()
	}
	ttsReq.User.UID = userUID

	ttsReq.ReqParams.Speaker = speaker
	ttsReq.ReqParams.Text = req.Text
	ttsReq.ReqParams.AudioParams = volcengineTTSAudioParams{
		Format:          encoding,
		SampleRate:      24000,
		EnableTimestamp: true,
	}

	speed := req.Speed
	if speed <= 0 {
		speed = c.config.TTSSpeed
	}
	if speed > 0 && speed != 1.0 {
		ttsReq.ReqParams.AudioParams.SpeedRatio = speed
	}

	volume := req.Volume
	if volume <= 0 {
		volume = c.config.TTSVolume
	}
	if volume > 0 && volume != 1.0 {
		ttsReq.ReqParams.AudioParams.VolumeRatio = volume
	}

	if label, scale, ok := emotionParams(speaker, req.Emotion, req.EmotionScale); ok {
		ttsReq.ReqParams.AudioParams.Emotion = label
		ttsReq.ReqParams.AudioParams.EmotionScale = scale
	}

	language := strings.TrimSpace(req.Language)
	if language == "" {
		language = strings.TrimSpace(c.config.TTSLanguage)
	}
	ttsReq.ReqParams.Language = language
	ttsReq.ReqParams.Additions = `{"disable_markdown_filter":false}`

	return ttsReq, userUID
}

func resolveTTSResourceCandidates(voice string) []string {
	const (
		defaultResource = "volc.service_type.10029"
		megaResource    = "volc.megatts.default"
		seedResource    = "seed-tts-2.0"
	)

	voice = strings.TrimSpace(voice)
	if strings.HasPrefix(voice, "S_") {
		return []string{megaResource}
	}

	normalized := strings.ToLower(voice)
	for _, hint := range []string{"bigtts", "seed", "megatts", "uranus", "venus", "jupiter", "saturn", "neptune", "mercury", "pluto", "mars"} {
		if strings.Contains(normalized, hint) {
			return []string{seedResource, defaultResource}
		}
	}
	return []string{defaultResource, seedResource}
}

// resolveTTSSpeakerCandidates 返回去重后的候选音色：请求音色在前，配置的默认音色兜底。
func resolveTTSSpeakerCandidates(requested, fallback string) []string {
	var candidates []string
	for _, voice := range []string{requested, fallback} {
		voice = NormalizeVoiceAlias(voice)
		if voice == "" {
			continue
		}
		duplicate := false
		for _, existing := range candidates {
			if strings.EqualFold(existing, voice) {
				duplicate = true
				break
			}
		}
		if !duplicate {
			candidates = append(candidates, voice)
		}
	}

	if len(candidates) == 0 {
		return []string{strings.TrimSpace(fallback)}
	}
	return candidates
}

func isResourceMismatchError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "resource ID is mismatched with speaker related resource")
}
