// Package resolver classifies raw input and turns it into source content.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/postforge/postforge/domain"
)

// ErrEmptyInput is returned for empty or whitespace-only input.
var ErrEmptyInput = errors.New("empty input")

// ExtractionError reports a failed fetch; the run must not continue with
// empty content.
type ExtractionError struct {
	Input  string
	Kind   domain.InputKind
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract %s %q: %s: %v", e.Kind, e.Input, e.Reason, e.Err)
	}
	return fmt.Sprintf("extract %s %q: %s", e.Kind, e.Input, e.Reason)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Article is the readable part of a fetched page.
type Article struct {
	Title string
	Text  string
}

// Extractor fetches remote content. Implementations own their transport and
// timeouts; the resolver only shapes their result.
type Extractor interface {
	FetchURL(ctx context.Context, rawURL string) (Article, error)
	FetchTranscript(ctx context.Context, videoID string) (string, error)
}

const (
	// DefaultMaxChars caps source text handed to generation.
	DefaultMaxChars = 12000
	topicMaxLen     = 200
)

var videoPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:https?://)?(?:www\.|m\.)?(?:youtube\.com/watch\?(?:.*&)?v=|youtu\.be/)([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`(?:https?://)?(?:www\.|m\.)?youtube\.com/(?:embed|shorts|live)/([a-zA-Z0-9_-]{11})`),
}

var topicPrefixes = []string{
	"generate", "create", "write", "make", "tell me about", "what is", "how to",
}

// Resolver implements the input classification chain.
type Resolver struct {
	extractor Extractor
	maxChars  int
	now       func() time.Time
}

type Option func(*Resolver)

// WithMaxChars caps the length of resolved text; n <= 0 disables the cap.
func WithMaxChars(n int) Option {
	return func(r *Resolver) { r.maxChars = n }
}

// WithClock overrides the extraction timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

func New(extractor Extractor, opts ...Option) (*Resolver, error) {
	if extractor == nil {
		return nil, errors.New("extractor is required")
	}
	r := &Resolver{extractor: extractor, maxChars: DefaultMaxChars, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Classify applies the priority chain: video URL, then generic URL, then
// empty check, then raw text (Topic when short and prompt-like). The second
// return value is the video id or normalized URL.
func Classify(raw string) (domain.InputKind, string, error) {
	in := strings.TrimSpace(raw)
	if id, ok := VideoID(in); ok {
		return domain.KindVideo, id, nil
	}
	if u, ok := genericURL(in); ok {
		return domain.KindURL, u, nil
	}
	if in == "" {
		return "", "", ErrEmptyInput
	}
	if IsTopic(in) {
		return domain.KindTopic, "", nil
	}
	return domain.KindRawText, "", nil
}

// VideoID extracts an 11-character video id from a video-platform URL.
func VideoID(in string) (string, bool) {
	if strings.ContainsAny(in, " \n\t") {
		return "", false
	}
	for _, re := range videoPatterns {
		if m := re.FindStringSubmatch(in); len(m) == 2 {
			return m[1], true
		}
	}
	return "", false
}

func genericURL(in string) (string, bool) {
	if in == "" || strings.ContainsAny(in, " \n\t") {
		return "", false
	}
	u, err := url.Parse(in)
	if err != nil || u.Host == "" {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	return u.String(), true
}

// IsTopic reports whether text is a short prompt rather than source material.
func IsTopic(in string) bool {
	if utf8.RuneCountInString(in) >= topicMaxLen {
		return false
	}
	if strings.HasSuffix(in, "?") {
		return true
	}
	lower := strings.ToLower(in)
	for _, p := range topicPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// Resolve classifies raw and produces source content. It never returns
// successfully with empty text.
func (r *Resolver) Resolve(ctx context.Context, raw string) (domain.SourceContent, error) {
	kind, ref, err := Classify(raw)
	if err != nil {
		return domain.SourceContent{}, err
	}
	src := domain.SourceContent{Kind: kind, Origin: ref}

	switch kind {
	case domain.KindVideo:
		text, err := r.extractor.FetchTranscript(ctx, ref)
		if err != nil {
			return domain.SourceContent{}, &ExtractionError{Input: raw, Kind: kind, Reason: "transcript fetch failed", Err: err}
		}
		src.Text = text
	case domain.KindURL:
		art, err := r.extractor.FetchURL(ctx, ref)
		if err != nil {
			return domain.SourceContent{}, &ExtractionError{Input: raw, Kind: kind, Reason: "page fetch failed", Err: err}
		}
		src.Title = art.Title
		src.Text = art.Text
	default:
		src.Text = strings.TrimSpace(raw)
	}

	src.Text = normalizeSpace(src.Text)
	if src.Text == "" {
		return domain.SourceContent{}, &ExtractionError{Input: raw, Kind: kind, Reason: "no readable content"}
	}
	src.Text = truncate(src.Text, r.maxChars)
	src.Length = utf8.RuneCountInString(src.Text)
	src.Extracted = true
	src.ExtractedAt = r.now()
	return src, nil
}

var spaceRun = regexp.MustCompile(`[ \t]+`)
var blankRun = regexp.MustCompile(`\n{3,}`)

func normalizeSpace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = spaceRun.ReplaceAllString(s, " ")
	s = blankRun.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n]))
}
