// Package main provides the chatkit command line tool: a development
// chat server, a terminal chat client, and a dev token minter.
package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "chatkit",
	Short:         "Realtime chat session toolkit",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var flagVerbose bool

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(serveCmd, chatCmd, tokenCmd)
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if flagVerbose {
		level = zerolog.DebugLevel
	}
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func main() {
	os.Exit(runMain())
}

func runMain() int {
	if err := rootCmd.Execute(); err != nil {
		logger := newLogger()
		logger.Error().Err(err).Msg("command failed")
		return 1
	}
	return 0
}
