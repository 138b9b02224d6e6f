// Command spiritctl is a terminal client for Spirit: an interactive chat screen and a
// TTS smoke test.
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "spiritctl",
	Short: "Terminal client for the Spirit chat backend",
	Long: `spiritctl talks to the configured model provider directly, using the same
environment variables as the API server.

Examples:
  spiritctl chat                         Start an interactive conversation
  spiritctl chat --title 선배 --preset butler
  spiritctl tts --text "안녕하세요" -o hello.mp3`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := godotenv.Load(); err != nil {
			log.Debug().Err(err).Msg("no .env file")
		}
		level := zerolog.WarnLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		zerolog.SetGlobalLevel(level)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	},
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(newChatCmd(), newTTSCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
