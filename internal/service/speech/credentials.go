package speech

import (
	"errors"
	"strings"

	speechmodel "github.com/zhouzirui/spirit/backend/internal/model/speech"
)

var (
	errSpeechNotConfigured = errors.New("火山引擎语音配置未初始化")
	errSpeechCredentials   = errors.New("火山引擎语音配置缺少 AppID 或 AccessToken")
)

// resolveCredentials 返回规范化后的 AppID 与 AccessToken。
func resolveCredentials(cfg *speechmodel.SpeechConfig) (string, string, error) {
	if cfg == nil {
		return "", "", errSpeechNotConfigured
	}

	appID := strings.TrimSpace(cfg.AppID)
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		token = strings.TrimSpace(cfg.APIKey)
	}
	if appID == "" || token == "" {
		return "", "", errSpeechCredentials
	}
	return appID, token, nil
}
