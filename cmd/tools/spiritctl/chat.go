package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/spirit/backend/internal/config"
	"github.com/zhouzirui/spirit/backend/internal/model/persona"
	"github.com/zhouzirui/spirit/backend/internal/service/ai"
	"github.com/zhouzirui/spirit/backend/internal/service/chat"
	"github.com/zhouzirui/spirit/backend/internal/service/search"
	"github.com/zhouzirui/spirit/backend/internal/tui"
)

func newChatCmd() *cobra.Command {
	var title, tone, presetID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			var searcher search.Searcher
			if cfg.Spirit.SearchEnabled {
				searcher = search.NewDuckDuckGo()
			}
			provider, err := ai.New(cmd.Context(), cfg.AI, searcher)
			if err != nil {
				return err
			}

			defaults := persona.Defaults().WithOverrides(cfg.Spirit.DefaultTitle, cfg.Spirit.DefaultTone)
			if presetID != "" {
				presets, err := persona.LoadPresets(cfg.Spirit.PresetsFile)
				if err != nil {
					return err
				}
				preset, ok := persona.FindPreset(presets, presetID)
				if !ok {
					return fmt.Errorf("unknown preset %q", presetID)
				}
				defaults = defaults.WithOverrides(preset.Title, preset.Tone)
			}
			defaults = defaults.WithOverrides(title, tone)

			opts := chat.Options{
				Provider:    provider,
				Model:       provider.DefaultModel(),
				Temperature: cfg.Spirit.Temperature,
				SeedWelcome: cfg.Spirit.WelcomeEnabled,
				Defaults:    defaults,
			}
			if cfg.Spirit.SearchEnabled {
				opts.Tools = []ai.Tool{ai.ToolWebSearch}
			}

			conv, err := chat.NewService(opts).Create(cmd.Context())
			if err != nil {
				return err
			}

			// 全屏界面期间日志会破坏画面。
			zerolog.SetGlobalLevel(zerolog.Disabled)
			_, err = tea.NewProgram(tui.NewModel(conv, provider.DefaultModel()), tea.WithAltScreen()).Run()
			return err
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "how the assistant addresses you")
	cmd.Flags().StringVar(&tone, "tone", "", "speaking style of the assistant")
	cmd.Flags().StringVar(&presetID, "preset", "", "start from a persona preset")
	return cmd
}
