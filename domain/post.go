// Package domain holds the value types shared by every stage of a post run.
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// InputKind is the classification the resolver assigns to raw input.
type InputKind string

const (
	KindTopic   InputKind = "topic"
	KindURL     InputKind = "url"
	KindVideo   InputKind = "video"
	KindRawText InputKind = "text"
)

// SourceContent is normalized source text plus where it came from.
type SourceContent struct {
	Kind        InputKind `json:"kind"`
	Origin      string    `json:"origin,omitempty"` // URL, video id, or empty for text
	Title       string    `json:"title,omitempty"`
	Text        string    `json:"text"`
	Length      int       `json:"length"`
	ExtractedAt time.Time `json:"extracted_at"`
	Extracted   bool      `json:"extracted"`
}

// Violation names one rubric dimension a draft failed.
type Violation string

const (
	ViolationLengthTooShort  Violation = "length_too_short"
	ViolationLengthTooLong   Violation = "length_too_long"
	ViolationMissingCTA      Violation = "missing_cta"
	ViolationStructure       Violation = "structure_mismatch"
	ViolationToneMismatch    Violation = "tone_mismatch"
	ViolationStyleMismatch   Violation = "style_mismatch"
	ViolationMissingHashtags Violation = "missing_hashtags"
	ViolationTooManyHashtags Violation = "too_many_hashtags"
	ViolationTooManyEmojis   Violation = "too_many_emojis"
)

// ReviewVerdict is the result of scoring one draft against the rubric.
type ReviewVerdict struct {
	Pass        bool        `json:"pass"`
	Violations  []Violation `json:"violations,omitempty"`
	Feedback    string      `json:"feedback,omitempty"`
	Suggestions []string    `json:"suggestions,omitempty"`
}

var (
	ErrPassWithViolations = errors.New("verdict passes but lists violations")
	ErrFailWithoutReason  = errors.New("verdict fails without violations or feedback")
)

// Validate checks the pass/violation invariant.
func (v ReviewVerdict) Validate() error {
	if v.Pass && len(v.Violations) > 0 {
		return fmt.Errorf("%w: %v", ErrPassWithViolations, v.Violations)
	}
	if !v.Pass && len(v.Violations) == 0 && strings.TrimSpace(v.Feedback) == "" {
		return ErrFailWithoutReason
	}
	return nil
}

// Clone returns a copy that shares no slices with v.
func (v ReviewVerdict) Clone() ReviewVerdict {
	out := v
	out.Violations = append([]Violation(nil), v.Violations...)
	out.Suggestions = append([]string(nil), v.Suggestions...)
	return out
}

// Has reports whether the verdict names the given violation.
func (v ReviewVerdict) Has(name Violation) bool {
	for _, x := range v.Violations {
		if x == name {
			return true
		}
	}
	return false
}

// Draft is one immutable version of post text. Version 0 is the generated
// draft; every refinement produces Version+1 and points at the verdict that
// triggered it.
type Draft struct {
	Version   int            `json:"version"`
	Text      string         `json:"text"`
	Chars     int            `json:"chars"`
	Words     int            `json:"words"`
	Feedback  *ReviewVerdict `json:"feedback,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewDraft builds the zero-th draft of a run.
func NewDraft(text string, at time.Time) Draft {
	return Draft{
		Version:   0,
		Text:      text,
		Chars:     utf8.RuneCountInString(text),
		Words:     len(strings.Fields(text)),
		CreatedAt: at,
	}
}

// NextDraft builds the version that follows prev, produced in response to verdict.
func NextDraft(prev Draft, text string, verdict ReviewVerdict, at time.Time) Draft {
	d := NewDraft(text, at)
	d.Version = prev.Version + 1
	v := verdict.Clone()
	d.Feedback = &v
	return d
}

// ReviewRecord is one entry of a run's review history.
type ReviewRecord struct {
	Iteration  int           `json:"iteration"`
	Version    int           `json:"version"`
	Verdict    ReviewVerdict `json:"verdict"`
	ReviewedAt time.Time     `json:"reviewed_at"`
}

// Status is the disposition of a run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusExhausted Status = "exhausted_best_effort"
	StatusFailed    Status = "failed"
)

// Terminal reports whether s is one of the three user-visible outcomes.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusExhausted || s == StatusFailed
}
