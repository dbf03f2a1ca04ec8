// Package batch drives the whole-document upload pipeline: reference
// extraction, policy filtering, bounded-concurrency fetch+upload, progress
// accounting, and the final text rewrite.
package batch

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/imgmark/imgmark/internal/markdown"
	"github.com/imgmark/imgmark/internal/policy"
	"github.com/imgmark/imgmark/internal/settings"
	"github.com/imgmark/imgmark/internal/upload"
	"github.com/imgmark/imgmark/internal/widthhint"
)

// Orchestrator runs the upload pipeline for one settings snapshot. It owns
// no ambient state: settings, client, and sink are fixed at construction,
// and every Run gets its own progress aggregate.
type Orchestrator struct {
	settings    settings.Settings
	client      *upload.Client
	filter      *policy.Filter
	tiers       widthhint.Tiers
	concurrency int
	sink        Sink
}

// New builds an orchestrator. sink may be nil when no progress reporting
// is wanted.
func New(s settings.Settings, sink Sink) *Orchestrator {
	n := s.Concurrency
	if n <= 0 {
		n = settings.DefaultConcurrency
	}
	return &Orchestrator{
		settings:    s,
		client:      upload.NewClient(s),
		filter:      policy.NewFilter(s.APIURL, s.BlacklistDomains),
		tiers:       s.WidthTiers.Tiers(),
		concurrency: n,
		sink:        sink,
	}
}

// Client exposes the underlying upload client so callers can tune the
// timeout or install a rate limiter before running.
func (o *Orchestrator) Client() *upload.Client {
	return o.client
}

// Result is the terminal state of one batch run.
type Result struct {
	// Text is the rewritten document. It equals the input when no upload
	// succeeded, so a total failure never clears user content.
	Text string
	// Changed reports whether Text should replace the source document.
	Changed bool
	// Progress holds the final per-kind counts and failure details.
	Progress Progress
	// Summary is the human-readable final report.
	Summary string
}

// Run processes every image reference in text: extract, partition into
// batches of at most the configured concurrency, run each batch's items
// concurrently behind a wait-all barrier, and merge the replacements into
// a working copy after each batch.
//
// Per-item failures become outcomes and never abort the run. Only a
// missing endpoint configuration aborts before any network access.
func (o *Orchestrator) Run(ctx context.Context, text string) (*Result, error) {
	runID := uuid.NewString()

	refs := markdown.ExtractImageRefs(text)
	if len(refs) == 0 {
		log.Info().Str("run", runID).Msg("No image references found, nothing to do")
		return &Result{Text: text, Summary: "no images to upload"}, nil
	}
	if !o.settings.IsConfigured() {
		return nil, upload.ErrNotConfigured
	}

	log.Info().Str("run", runID).Int("total", len(refs)).Int("concurrency", o.concurrency).Msg("Starting batch upload")

	progress := Progress{Total: len(refs)}
	working := text
	var mu sync.Mutex

	for start := 0; start < len(refs); start += o.concurrency {
		chunk := refs[start:min(start+o.concurrency, len(refs))]
		outcomes := make([]Outcome, len(chunk))

		var g errgroup.Group
		for i, ref := range chunk {
			i, ref := i, ref
			g.Go(func() error {
				out, _ := o.processRef(ctx, ref)

				mu.Lock()
				outcomes[i] = out
				record(&progress, ref, out)
				if o.sink != nil {
					o.sink(progress)
				}
				mu.Unlock()
				return nil
			})
		}
		// processRef folds failures into outcomes, so Wait cannot fail.
		_ = g.Wait()

		reps := make([]markdown.Replacement, 0, len(outcomes))
		for _, out := range outcomes {
			reps = append(reps, markdown.Replacement{Old: out.OriginalMarkup, New: out.NewMarkup})
		}
		working = markdown.Apply(working, reps)
	}

	result := &Result{
		Text:     working,
		Changed:  progress.Success > 0,
		Progress: progress,
		Summary:  Summarize(progress),
	}
	if !result.Changed {
		result.Text = text
	}

	log.Info().
		Str("run", runID).
		Int("success", progress.Success).
		Int("failed", progress.Failed).
		Int("skipped", progress.Skipped).
		Int("blacklisted", progress.Blacklisted).
		Msg("Batch upload complete")

	return result, nil
}

// processRef runs policy -> fetch -> upload for one reference and returns
// its outcome plus the fetched image (nil unless the fetch ran and
// succeeded). Failures are folded into the outcome; they never abort
// sibling items.
func (o *Orchestrator) processRef(ctx context.Context, ref markdown.ImageRef) (Outcome, *upload.Image) {
	noop := Outcome{OriginalMarkup: ref.Markup, NewMarkup: ref.Markup}

	switch o.filter.Classify(ref.URL) {
	case policy.Blacklisted:
		log.Debug().Str("url", ref.URL).Msg("Source domain blacklisted")
		noop.Status = StatusBlacklisted
		return noop, nil
	case policy.AlreadyUploaded:
		log.Debug().Str("url", ref.URL).Msg("Image already on upload host")
		noop.Status = StatusSkipped
		return noop, nil
	}

	img, err := o.client.Fetch(ctx, ref.URL)
	if err != nil {
		log.Warn().Err(err).Str("url", ref.URL).Msg("Image fetch failed")
		noop.Status = StatusFailed
		noop.ErrorDetail = err.Error()
		return noop, nil
	}

	newURL, err := o.client.Upload(ctx, img)
	if err != nil {
		log.Warn().Err(err).Str("url", ref.URL).Msg("Image upload failed")
		noop.Status = StatusFailed
		noop.ErrorDetail = err.Error()
		return noop, img
	}

	log.Info().Str("url", ref.URL).Str("newUrl", newURL).Msg("Image uploaded")
	return Outcome{
		OriginalMarkup: ref.Markup,
		NewMarkup:      markdown.WithURL(ref.Markup, ref.URL, newURL),
		Status:         StatusSuccess,
	}, img
}

// record folds one outcome into the progress aggregate. Callers hold the
// progress mutex.
func record(p *Progress, ref markdown.ImageRef, out Outcome) {
	p.Current++
	switch out.Status {
	case StatusSuccess:
		p.Success++
	case StatusFailed:
		p.Failed++
		p.Errors = append(p.Errors, ItemError{URL: ref.URL, Error: out.ErrorDetail})
	case StatusSkipped:
		p.Skipped++
	case StatusBlacklisted:
		p.Blacklisted++
	}
}
