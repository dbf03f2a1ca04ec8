package batch

import (
	"fmt"
	"strings"
)

// Status is the terminal classification of one reference's processing.
type Status int

const (
	// StatusSuccess means the image was uploaded and its link rewritten.
	StatusSuccess Status = iota
	// StatusFailed means fetch or upload failed; the link is untouched.
	StatusFailed
	// StatusSkipped means the image already lives on the upload host.
	StatusSkipped
	// StatusBlacklisted means the source domain is blacklisted.
	StatusBlacklisted
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	case StatusBlacklisted:
		return "blacklisted"
	default:
		return "unknown"
	}
}

// Outcome records how one image reference was handled. NewMarkup equals
// OriginalMarkup for every status except success.
type Outcome struct {
	OriginalMarkup string
	NewMarkup      string
	Status         Status
	ErrorDetail    string
}

// ItemError pairs a source URL with the error that failed it.
type ItemError struct {
	URL   string
	Error string
}

// Progress aggregates per-item outcomes for one run. It is owned by a
// single orchestrator invocation, updated as items complete, and discarded
// at run end.
type Progress struct {
	Total       int
	Current     int
	Success     int
	Failed      int
	Skipped     int
	Blacklisted int
	Errors      []ItemError
}

// Sink receives a progress snapshot after every per-item update.
type Sink func(Progress)

// errPreviewLen is how much of a failing URL the summary shows.
const errPreviewLen = 20

// Summarize renders the final human-readable report: per-kind counts plus
// a truncated URL preview for every failure.
func Summarize(p Progress) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d of %d processed: %d uploaded, %d failed, %d skipped, %d blacklisted",
		p.Current, p.Total, p.Success, p.Failed, p.Skipped, p.Blacklisted)
	for _, e := range p.Errors {
		fmt.Fprintf(&sb, "\n  %s: %s", truncate(e.URL, errPreviewLen), e.Error)
	}
	return sb.String()
}

// truncate returns the first n characters of s, appending "..." if truncated.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
