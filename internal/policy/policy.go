// Package policy classifies image URLs before any network access: a URL is
// blacklisted, already hosted on the upload endpoint, or eligible for
// upload.
package policy

import (
	"net/url"
	"strings"
)

// Decision is the classification of one URL.
type Decision int

const (
	// Eligible means the URL passed both checks and may be uploaded.
	Eligible Decision = iota
	// Blacklisted means the URL matched a configured blacklist domain.
	Blacklisted
	// AlreadyUploaded means the URL already points at the API origin.
	AlreadyUploaded
)

// Filter holds one settings snapshot's worth of policy state.
type Filter struct {
	blacklist []string
	apiOrigin string
}

// NewFilter builds a filter from the configured API URL and blacklist
// domains. An API URL without a usable origin disables the
// already-uploaded check rather than failing.
func NewFilter(apiURL string, blacklistDomains []string) *Filter {
	return &Filter{
		blacklist: blacklistDomains,
		apiOrigin: originOf(apiURL),
	}
}

// Classify applies the blacklist check first, then the already-uploaded
// check.
func (f *Filter) Classify(rawURL string) Decision {
	if f.IsBlacklisted(rawURL) {
		return Blacklisted
	}
	if f.IsAlreadyUploaded(rawURL) {
		return AlreadyUploaded
	}
	return Eligible
}

// IsBlacklisted reports whether the URL's protocol-stripped, lower-cased
// form starts with any blacklist entry stripped the same way. An entry
// `example.com` therefore also matches `example.com/path` and
// `example.com:8080`. Anything malformed is treated as not blacklisted.
func (f *Filter) IsBlacklisted(rawURL string) bool {
	candidate := stripScheme(strings.ToLower(strings.TrimSpace(rawURL)))
	if candidate == "" {
		return false
	}
	for _, domain := range f.blacklist {
		d := stripScheme(strings.ToLower(strings.TrimSpace(domain)))
		if d != "" && strings.HasPrefix(candidate, d) {
			return true
		}
	}
	return false
}

// IsAlreadyUploaded reports whether the URL already points at the
// configured API origin (scheme+host+port), which means a previous run
// hosted it. Degrades to false when the API URL never parsed.
func (f *Filter) IsAlreadyUploaded(rawURL string) bool {
	return f.apiOrigin != "" && strings.HasPrefix(rawURL, f.apiOrigin)
}

func stripScheme(s string) string {
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	return s
}

// originOf returns scheme://host[:port] of rawURL, or "" when the URL has
// no usable origin.
func originOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
