package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/imgmark/imgmark/internal/logging"
	"github.com/imgmark/imgmark/internal/settings"
)

// CLI flags
var (
	configFlag      string
	concurrencyFlag int
	lineFlag        int
	dryRunFlag      bool
	writeFlag       bool
)

// rootCmd is the main Cobra command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "imgmark",
	Short: "Upload markdown image links to a remote image host",
	Long: `imgmark scans a markdown document for image links, uploads every eligible
image to the configured HTTP endpoint, and rewrites the document so its
links point at the returned URLs.

Images whose domain is blacklisted, or that already live on the upload
host, are left untouched. Uploads run with bounded concurrency and the
document is only rewritten when at least one upload succeeded.

Examples:
  imgmark init
  imgmark upload notes.md --write
  imgmark upload notes.md --line 12
  imgmark upload notes.md --dry-run`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file path (default ~/.imgmark/config.toml)")

	uploadCmd.Flags().IntVarP(&concurrencyFlag, "concurrency", "n", 0, "Concurrent upload pipelines (default from config)")
	uploadCmd.Flags().IntVar(&lineFlag, "line", 0, "Upload only the first image reference on this 1-based line")
	uploadCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Classify references without uploading anything")
	uploadCmd.Flags().BoolVarP(&writeFlag, "write", "w", false, "Rewrite the file in place instead of printing to stdout")

	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(initCmd)
}

func main() {
	_ = godotenv.Load()
	logging.Init()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// configPath resolves the --config flag, falling back to the default
// location under the user's home directory.
func configPath() string {
	if configFlag != "" {
		return configFlag
	}
	path, err := settings.DefaultPath()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to resolve home directory")
	}
	return path
}
