package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/spirit/backend/internal/config"
	speechmodel "github.com/zhouzirui/spirit/backend/internal/model/speech"
	"github.com/zhouzirui/spirit/backend/internal/service/speech"
)

func newTTSCmd() *cobra.Command {
	var (
		text, voice, format, language, outputPath string
		timeout                                   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "tts",
		Short: "Synthesize a sentence with the configured voice",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(text) == "" {
				return fmt.Errorf("--text is required")
			}

			speechCfg, err := config.LoadSpeech()
			if err != nil {
				return err
			}
			svc := speech.NewService(speechCfg.ServiceConfig())
			if !svc.Enabled() {
				return fmt.Errorf("语音服务未启用，请先配置 SPEECH_APP_ID 与 SPEECH_ACCESS_TOKEN")
			}

			if language == "" {
				language = speechCfg.TTSLanguage
			}
			if outputPath == "" {
				outputPath = fmt.Sprintf("tts-output-%d.%s", time.Now().Unix(), format)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			resp, err := svc.SynthesizeSpeech(ctx, &speechmodel.TTSRequest{
				Text:     text,
				Voice:    voice,
				Format:   format,
				Language: language,
			})
			if err != nil {
				return fmt.Errorf("TTS 调用失败: %w", err)
			}

			if err := os.WriteFile(outputPath, resp.AudioData, 0o644); err != nil {
				return fmt.Errorf("写入音频文件失败: %w", err)
			}

			log.Info().Str("out", outputPath).Int64("duration_ms", resp.Duration).Str("request_id", resp.RequestID).Msg("tts synthesis succeeded")
			fmt.Fprintln(cmd.OutOrStdout(), outputPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "text to synthesize")
	cmd.Flags().StringVar(&voice, "voice", "", "voice id or alias, defaults to SPEECH_TTS_VOICE")
	cmd.Flags().StringVar(&format, "format", "mp3", "audio encoding")
	cmd.Flags().StringVar(&language, "lang", "", "language code, defaults to SPEECH_TTS_LANGUAGE")
	cmd.Flags().StringVarP(&outputPath, "out", "o", "", "output file")
	cmd.Flags().DurationVar(&timeout, "timeout", 45*time.Second, "request timeout")
	return cmd
}
