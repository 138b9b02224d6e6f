package config

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/spf13/viper"

	speechmodel "github.com/zhouzirui/spirit/backend/internal/model/speech"
)

// ErrConfigMissing 表示缺少必需的凭证或模型配置，属于启动期致命错误。
var ErrConfigMissing = errors.New("required configuration is missing")

// 支持的模型提供方。
const (
	ProviderArk    = "ark"
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server ServerConfig
	Log    LogConfig
	AI     AIConfig
	Spirit SpiritConfig
	Speech SpeechConfig
}

// Load 从环境变量（以及可选的 SPIRIT_CONFIG 配置文件）加载配置。
func Load() (*Config, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}
	return LoadFrom(v)
}

// LoadSpeech 只解析语音配置，供不需要模型凭证的工具使用。
func LoadSpeech() (SpeechConfig, error) {
	v, err := newViper()
	if err != nil {
		return SpeechConfig{}, err
	}
	return loadSpeechConfig(v)
}

func newViper() (*viper.Viper, error) {
	v := viper.New()
	v.AutomaticEnv()

	if path := strings.TrimSpace(v.GetString("SPIRIT_CONFIG")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}
	return v, nil
}

// LoadFrom 使用给定的 viper 实例解析配置，便于测试注入。
func LoadFrom(v *viper.Viper) (*Config, error) {
	server, err := loadServerConfig(v)
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig(v)
	if err != nil {
		return nil, err
	}

	spirit, err := loadSpiritConfig(v)
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig(v)
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: server,
		Log:    loadLogConfig(v),
		AI:     ai,
		Spirit: spirit,
		Speech: speech,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig(v *viper.Viper) (ServerConfig, error) {
	port := getString(v, "PORT", "8080")

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig(v *viper.Viper) LogConfig {
	return LogConfig{
		Level:  strings.ToLower(getString(v, "LOG_LEVEL", "info")),
		Format: strings.ToLower(getString(v, "LOG_FORMAT", "json")),
	}
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider string

	// Ark
	APIKey    string
	AccessKey string
	SecretKey string
	Model     string
	BaseURL   string
	Region    string
	MaxTokens *int

	// Gemini
	GeminiAPIKey string
	GeminiModel  string

	// OpenAI 兼容接口
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
}

func (c AIConfig) validate() error {
	switch c.Provider {
	case ProviderArk:
		if c.APIKey == "" && (c.AccessKey == "" || c.SecretKey == "") {
			return fmt.Errorf("%w: ARK_API_KEY or ARK_ACCESS_KEY + ARK_SECRET_KEY", ErrConfigMissing)
		}
		if c.Model == "" {
			return fmt.Errorf("%w: ARK_MODEL", ErrConfigMissing)
		}
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY", ErrConfigMissing)
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY", ErrConfigMissing)
		}
		if c.OpenAIModel == "" {
			return fmt.Errorf("%w: OPENAI_MODEL", ErrConfigMissing)
		}
	default:
		return fmt.Errorf("unsupported SPIRIT_PROVIDER %q", c.Provider)
	}
	return nil
}

// DefaultModel 返回所选提供方的模型标识。
func (c AIConfig) DefaultModel() string {
	switch c.Provider {
	case ProviderGemini:
		return c.GeminiModel
	case ProviderOpenAI:
		return c.OpenAIModel
	default:
		return c.Model
	}
}

// NewChatModel 使用配置创建一个 Ark 模型实例。工具通过 model.WithTools 按次传入。
func (c AIConfig) NewChatModel(ctx context.Context) (model.BaseChatModel, error) {
	if c.APIKey == "" && (c.AccessKey == "" || c.SecretKey == "") {
		return nil, fmt.Errorf("%w: Ark 凭证缺失，至少提供 ARK_API_KEY 或 AK/SK 组合", ErrConfigMissing)
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:   c.BaseURL,
		Region:    c.Region,
		APIKey:    c.APIKey,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		Model:     c.Model,
		MaxTokens: maxTokens,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig(v *viper.Viper) (AIConfig, error) {
	maxTokens, err := parseOptionalInt(v, "ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	arkModel := getString(v, "ARK_MODEL", "")
	if arkModel == "" {
		// 兼容旧的 Model 变量。
		arkModel = getString(v, "Model", "")
	}

	cfg := AIConfig{
		Provider:      strings.ToLower(getString(v, "SPIRIT_PROVIDER", ProviderArk)),
		APIKey:        getString(v, "ARK_API_KEY", ""),
		AccessKey:     getString(v, "ARK_ACCESS_KEY", ""),
		SecretKey:     getString(v, "ARK_SECRET_KEY", ""),
		Model:         arkModel,
		BaseURL:       getString(v, "ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:        getString(v, "ARK_REGION", "cn-beijing"),
		MaxTokens:     maxTokens,
		GeminiAPIKey:  getString(v, "GEMINI_API_KEY", ""),
		GeminiModel:   getString(v, "GEMINI_MODEL", "gemini-2.5-flash"),
		OpenAIAPIKey:  getString(v, "OPENAI_API_KEY", ""),
		OpenAIBaseURL: getString(v, "OPENAI_BASE_URL", ""),
		OpenAIModel:   getString(v, "OPENAI_MODEL", "gpt-4o-mini"),
	}

	if err := cfg.validate(); err != nil {
		return AIConfig{}, err
	}
	return cfg, nil
}

// SpiritConfig 描述会话层的行为。
type SpiritConfig struct {
	Temperature    float32
	SearchEnabled  bool
	WelcomeEnabled bool
	TTSEnabled     bool
	DefaultTitle   string
	DefaultTone    string
	PresetsFile    string
	RateLimit      float64
	RateBurst      int
}

func loadSpiritConfig(v *viper.Viper) (SpiritConfig, error) {
	temperature := float32(0.9)
	if override, err := parseOptionalFloat32(v, "SPIRIT_TEMPERATURE"); err != nil {
		return SpiritConfig{}, err
	} else if override != nil {
		if *override < 0 || *override > 2 {
			return SpiritConfig{}, fmt.Errorf("invalid SPIRIT_TEMPERATURE value %v: must be within [0, 2]", *override)
		}
		temperature = *override
	}

	search, err := parseBool(v, "SPIRIT_SEARCH_ENABLED", true)
	if err != nil {
		return SpiritConfig{}, err
	}

	welcome, err := parseBool(v, "SPIRIT_WELCOME_ENABLED", true)
	if err != nil {
		return SpiritConfig{}, err
	}

	tts, err := parseBool(v, "SPIRIT_TTS_ENABLED", true)
	if err != nil {
		return SpiritConfig{}, err
	}

	rateLimit := 2.0
	if override, err := parseOptionalFloat(v, "SPIRIT_RATE_LIMIT"); err != nil {
		return SpiritConfig{}, err
	} else if override != nil {
		rateLimit = *override
	}

	burst := 5
	if override, err := parseOptionalInt(v, "SPIRIT_RATE_BURST"); err != nil {
		return SpiritConfig{}, err
	} else if override != nil {
		if *override < 1 {
			burst = 1
		} else {
			burst = *override
		}
	}

	return SpiritConfig{
		Temperature:    temperature,
		SearchEnabled:  search,
		WelcomeEnabled: welcome,
		TTSEnabled:     tts,
		DefaultTitle:   getString(v, "SPIRIT_DEFAULT_TITLE", ""),
		DefaultTone:    getString(v, "SPIRIT_DEFAULT_TONE", ""),
		PresetsFile:    getString(v, "SPIRIT_PRESETS_FILE", ""),
		RateLimit:      rateLimit,
		RateBurst:      burst,
	}, nil
}

// SpeechConfig 描述语音合成服务相关配置
type SpeechConfig struct {
	AppID       string
	AccessToken string
	APIKey      string
	Endpoint    string
	TTSVoice    string
	TTSSpeed    float32
	TTSVolume   float32
	TTSLanguage string
	Timeout     int
}

// ServiceConfig 转换为语音服务使用的配置。
func (c SpeechConfig) ServiceConfig() *speechmodel.SpeechConfig {
	return &speechmodel.SpeechConfig{
		AppID:       c.AppID,
		AccessToken: c.AccessToken,
		APIKey:      c.APIKey,
		Endpoint:    c.Endpoint,
		TTSVoice:    c.TTSVoice,
		TTSSpeed:    c.TTSSpeed,
		TTSVolume:   c.TTSVolume,
		TTSLanguage: c.TTSLanguage,
		Timeout:     c.Timeout,
	}
}

func loadSpeechConfig(v *viper.Viper) (SpeechConfig, error) {
	timeoutSeconds := 30 // 默认30秒
	if timeout, err := parseOptionalInt(v, "SPEECH_TIMEOUT"); err != nil {
		return SpeechConfig{}, err
	} else if timeout != nil {
		timeoutSeconds = *timeout
	}

	ttsSpeed := float32(1.0)
	if speed, err := parseOptionalFloat32(v, "SPEECH_TTS_SPEED"); err != nil {
		return SpeechConfig{}, err
	} else if speed != nil {
		ttsSpeed = *speed
	}

	ttsVolume := float32(1.0)
	if volume, err := parseOptionalFloat32(v, "SPEECH_TTS_VOLUME"); err != nil {
		return SpeechConfig{}, err
	} else if volume != nil {
		ttsVolume = *volume
	}

	appID := getString(v, "SPEECH_APP_ID", "")
	apiKey := getString(v, "SPEECH_API_KEY", "")
	accessToken := getString(v, "SPEECH_ACCESS_TOKEN", apiKey)

	return SpeechConfig{
		AppID:       appID,
		AccessToken: accessToken,
		APIKey:      apiKey,
		Endpoint:    getString(v, "SPEECH_ENDPOINT", ""),
		TTSVoice:    getString(v, "SPEECH_TTS_VOICE", ""),
		TTSSpeed:    ttsSpeed,
		TTSVolume:   ttsVolume,
		TTSLanguage: getString(v, "SPEECH_TTS_LANGUAGE", "ko-KR"),
		Timeout:     timeoutSeconds,
	}, nil
}

func getString(v *viper.Viper, key, defaultValue string) string {
	if value := strings.TrimSpace(v.GetString(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBool(v *viper.Viper, key string, defaultValue bool) (bool, error) {
	raw := getString(v, key, "")
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloat(v *viper.Viper, key string) (*float64, error) {
	raw := getString(v, key, "")
	if raw == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return &val, nil
}

func parseOptionalInt(v *viper.Viper, key string) (*int, error) {
	raw := getString(v, key, "")
	if raw == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return &val, nil
}

func parseOptionalFloat32(v *viper.Viper, key string) (*float32, error) {
	raw := getString(v, key, "")
	if raw == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(raw, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	result := float32(val)
	return &result, nil
}
