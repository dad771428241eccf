// Package evidence fetches and classifies the source material that
// grounds generated copy. Fetched pages are reduced to text blocks,
// classified for usability, and cached by URL and content hash so
// repeated runs do not refetch within the TTL.
package evidence

import (
	"fmt"
	"time"

	"copyforge/internal/journal"
)

// Flags marks the ways a fetched page can be unusable.
type Flags struct {
	Thin           bool `json:"thin,omitempty"`
	CookieWalled   bool `json:"cookie_walled,omitempty"`
	CaptchaBlocked bool `json:"captcha_blocked,omitempty"`
	BadContentType bool `json:"bad_content_type,omitempty"`
}

// Record is an immutable snapshot of fetched evidence.
type Record struct {
	SourceURL   string    `json:"source_url"`
	FetchedAt   time.Time `json:"fetched_at"`
	ContentHash string    `json:"content_hash"`
	BlockCount  int       `json:"block_count"`
	CharCount   int       `json:"char_count"`
	Blocks      []string  `json:"blocks"`
	SampleText  string    `json:"sample_text"`
	Flags       Flags     `json:"flags"`
}

// Usable reports whether the record can ground a generation call.
func (r *Record) Usable() bool {
	f := r.Flags
	return !f.Thin && !f.CookieWalled && !f.CaptchaBlocked && !f.BadContentType
}

// Code maps unusable evidence to its terminal reject bucket.
func (r *Record) Code() (journal.Code, bool) {
	switch {
	case r.Flags.CookieWalled, r.Flags.CaptchaBlocked:
		return journal.CodeBlockedEvidence, true
	case r.Flags.Thin:
		return journal.CodeThinEvidence, true
	case r.Flags.BadContentType:
		// Not text at all: the source is unusable as evidence, same
		// bucket as an unreachable one.
		return journal.CodeEvidenceUnavailable, true
	}
	return "", false
}

// FetchError is a terminal fetch failure after retries.
type FetchError struct {
	URL  string
	Err  error
	Code journal.Code
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
