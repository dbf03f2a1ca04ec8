package batch

import (
	"context"
	"errors"

	"github.com/imgmark/imgmark/internal/markdown"
	"github.com/imgmark/imgmark/internal/policy"
	"github.com/imgmark/imgmark/internal/upload"
)

// ErrNoImageOnLine reports that the targeted line holds no image reference.
var ErrNoImageOnLine = errors.New("no image reference on line")

// LineResult is the terminal state of one single-item run.
type LineResult struct {
	// Line is the rewritten line; unchanged unless the upload succeeded.
	Line    string
	Outcome Outcome
}

// RunLine is the cursor-targeted path: the same policy -> fetch -> upload
// pipeline as one Run iteration, narrowed to the first image reference on
// a single line. Only that line is rewritten; restoring the cursor around
// the rewrite is the caller's concern.
//
// When auto-width is enabled, a display-width hint derived from the
// fetched bytes is folded into the new markup.
func (o *Orchestrator) RunLine(ctx context.Context, line string) (*LineResult, error) {
	refs := markdown.ExtractImageRefs(line)
	if len(refs) == 0 {
		return nil, ErrNoImageOnLine
	}
	ref := refs[0]

	// Policy outcomes need no configuration; anything that would upload does.
	if o.filter.Classify(ref.URL) == policy.Eligible && !o.settings.IsConfigured() {
		return nil, upload.ErrNotConfigured
	}

	out, img := o.processRef(ctx, ref)
	if out.Status != StatusSuccess {
		return &LineResult{Line: line, Outcome: out}, nil
	}

	newMarkup := out.NewMarkup
	if o.settings.EnableAutoWidth && img != nil {
		if w, ok := o.tiers.Detect(img.Data); ok {
			newMarkup = markdown.WithWidth(newMarkup, w)
			out.NewMarkup = newMarkup
		}
	}

	return &LineResult{
		Line:    markdown.ReplaceInLine(line, ref.Markup, newMarkup),
		Outcome: out,
	}, nil
}
