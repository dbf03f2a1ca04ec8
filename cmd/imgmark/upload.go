package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/imgmark/imgmark/internal/batch"
	"github.com/imgmark/imgmark/internal/markdown"
	"github.com/imgmark/imgmark/internal/policy"
	"github.com/imgmark/imgmark/internal/settings"
)

var uploadCmd = &cobra.Command{
	Use:   "upload FILE",
	Short: "Upload every image referenced in FILE and rewrite its links",
	Args:  cobra.ExactArgs(1),
	Run:   runUpload,
}

func runUpload(cmd *cobra.Command, args []string) {
	filePath := args[0]

	cfg, err := settings.Load(configPath())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if concurrencyFlag > 0 {
		cfg.Concurrency = concurrencyFlag
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", filePath).Msg("Failed to read document")
	}
	text := string(data)

	if dryRunFlag {
		dryRun(cfg, text)
		return
	}

	orch := batch.New(cfg, func(p batch.Progress) {
		log.Info().Int("current", p.Current).Int("total", p.Total).Msg("Upload progress")
	})
	ctx := context.Background()

	if lineFlag > 0 {
		runSingleLine(ctx, orch, text, filePath)
		return
	}

	result, err := orch.Run(ctx, text)
	if err != nil {
		log.Fatal().Err(err).Msg("Batch upload failed")
	}

	fmt.Fprintln(os.Stderr, result.Summary)

	if !result.Changed {
		log.Warn().Msg("No successful uploads; document left unchanged")
		return
	}
	writeResult(filePath, result.Text)
}

// runSingleLine drives the cursor-targeted path for the 1-based --line flag.
func runSingleLine(ctx context.Context, orch *batch.Orchestrator, text, filePath string) {
	lines := strings.Split(text, "\n")
	if lineFlag > len(lines) {
		log.Fatal().Int("line", lineFlag).Int("lines", len(lines)).Msg("Line number beyond end of document")
	}

	result, err := orch.RunLine(ctx, lines[lineFlag-1])
	if err != nil {
		log.Fatal().Err(err).Int("line", lineFlag).Msg("Single-image upload failed")
	}

	if result.Outcome.Status != batch.StatusSuccess {
		log.Warn().Str("status", result.Outcome.Status.String()).Str("detail", result.Outcome.ErrorDetail).Msg("Image not uploaded; document left unchanged")
		return
	}

	lines[lineFlag-1] = result.Line
	writeResult(filePath, strings.Join(lines, "\n"))
}

// dryRun prints each reference's policy classification without touching the
// network.
func dryRun(cfg settings.Settings, text string) {
	refs := markdown.ExtractImageRefs(text)
	if len(refs) == 0 {
		fmt.Println("no images to upload")
		return
	}

	filter := policy.NewFilter(cfg.APIURL, cfg.BlacklistDomains)
	for _, ref := range refs {
		var verdict string
		switch filter.Classify(ref.URL) {
		case policy.Blacklisted:
			verdict = "blacklisted"
		case policy.AlreadyUploaded:
			verdict = "already uploaded"
		default:
			verdict = "would upload"
		}
		fmt.Printf("%-16s %s\n", verdict, ref.URL)
	}
}

// writeResult sends the rewritten document to the file (with --write) or to
// stdout.
func writeResult(filePath, text string) {
	if !writeFlag {
		fmt.Print(text)
		return
	}
	if err := os.WriteFile(filePath, []byte(text), 0644); err != nil {
		log.Fatal().Err(err).Str("path", filePath).Msg("Failed to write document")
	}
	log.Info().Str("path", filePath).Msg("Document rewritten")
}
