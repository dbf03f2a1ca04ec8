package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/imgmark/imgmark/internal/settings"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default config file",
	Long: `Writes the default configuration to ~/.imgmark/config.toml (or the
--config path). The shipped api_url is a placeholder; uploads refuse to
run until it is set to a real endpoint.`,
	Run: runInit,
}

func runInit(cmd *cobra.Command, args []string) {
	path := configPath()

	if _, err := os.Stat(path); err == nil {
		log.Fatal().Str("path", path).Msg("Config file already exists, refusing to overwrite")
	}

	if err := settings.Save(path, settings.Default()); err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Failed to write config")
	}
	log.Info().Str("path", path).Msg("Default config written; set api_url before uploading")
}
