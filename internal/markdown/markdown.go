// Package markdown locates image-link tokens in document text and applies
// link rewrites. It is not a markdown parser: the scope is `![alt](target)`
// tokens only, matched with a simple non-greedy pattern.
package markdown

import (
	"regexp"
	"strconv"
	"strings"
)

// imagePattern matches `![alt](target)` tokens. The target segment is
// non-greedy so two tokens on one line do not merge into a single match.
var imagePattern = regexp.MustCompile(`!\[([^\]]*)\]\((.+?)\)`)

// ImageRef is one located image-link token. Markup is the exact substring
// of the document a rewrite must replace and always contains URL as a
// substring. References are never mutated; rewrites derive a new markup
// string and use the original as the replacement key.
type ImageRef struct {
	URL    string
	Markup string
}

// ExtractImageRefs returns every image token in text in first-occurrence
// order. A document without images yields an empty slice, not an error.
func ExtractImageRefs(text string) []ImageRef {
	matches := imagePattern.FindAllStringSubmatch(text, -1)
	refs := make([]ImageRef, 0, len(matches))
	for _, m := range matches {
		refs = append(refs, ImageRef{URL: m[2], Markup: m[0]})
	}
	return refs
}

// Replacement maps an original markup substring to its rewritten form.
type Replacement struct {
	Old string
	New string
}

// Apply rewrites text by replacing the first occurrence of each
// replacement's Old substring with its New form.
//
// Known limitation: replacement is keyed on the markup text itself, so two
// references rendering identical markup resolve to the same position and
// the later replacement wins. Markup normally embeds a unique URL, which
// keeps the key unique in practice.
func Apply(text string, reps []Replacement) string {
	for _, r := range reps {
		if r.Old == r.New || r.Old == "" {
			continue
		}
		text = strings.Replace(text, r.Old, r.New, 1)
	}
	return text
}

// ReplaceInLine replaces the first occurrence of old within a single line.
// Used by the cursor-targeted path, which must not touch the rest of the
// document.
func ReplaceInLine(line, old, new string) string {
	return strings.Replace(line, old, new, 1)
}

// WithURL returns markup with its first occurrence of oldURL replaced by
// newURL, all other characters preserved.
func WithURL(markup, oldURL, newURL string) string {
	return strings.Replace(markup, oldURL, newURL, 1)
}

// WithWidth folds a display-width hint into the alt segment, turning
// `![alt](url)` into `![alt|640](url)`. Markup that does not parse as an
// image token is returned unchanged.
func WithWidth(markup string, width int) string {
	m := imagePattern.FindStringSubmatch(markup)
	if m == nil || m[0] != markup {
		return markup
	}
	return "![" + m[1] + "|" + strconv.Itoa(width) + "](" + m[2] + ")"
}
