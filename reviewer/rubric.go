// Package reviewer scores drafts against the post rubric.
package reviewer

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/postforge/postforge/domain"
)

// Reviewer scores one draft. Implementations must return verdicts that pass
// domain.ReviewVerdict.Validate.
type Reviewer interface {
	Review(ctx context.Context, d domain.Draft, prefs domain.UserPreferences) (domain.ReviewVerdict, error)
}

const (
	PlatformMaxChars = 3000
	MaxHashtags      = 10
	// MaxEmojiDensity is the emoji share of all characters, in percent.
	MaxEmojiDensity = 5.0
	minListItems    = 2
)

var (
	hashtagRe  = regexp.MustCompile(`(?:^|\s)#[\p{L}\p{N}_]+`)
	listLineRe = regexp.MustCompile(`^\s*(?:[-*•▪►→✅✔]|\d{1,2}[.)])\s+\S`)
)

var ctaPhrases = []string{
	"what do you think", "what's your take", "whats your take", "share your", "let me know",
	"comment", "drop a", "follow", "connect with", "dm me", "reach out", "link in",
	"join", "sign up", "try it", "learn more", "read more", "repost", "tag someone",
	"thoughts", "agree",
}

// Rubric is the deterministic part of review: length, hashtags, emoji
// density and structural template checks.
type Rubric struct{}

func NewRubric() *Rubric { return &Rubric{} }

type finding struct {
	violation  domain.Violation
	message    string
	suggestion string
}

func (r *Rubric) Review(ctx context.Context, d domain.Draft, prefs domain.UserPreferences) (domain.ReviewVerdict, error) {
	if err := ctx.Err(); err != nil {
		return domain.ReviewVerdict{}, err
	}
	var out []finding
	out = append(out, checkLength(d, prefs)...)
	out = append(out, checkHashtags(d.Text, prefs.HashtagUsage)...)
	out = append(out, checkEmojis(d.Text, prefs.EmojiUsage)...)
	out = append(out, checkStructure(d.Text, prefs.Structure)...)
	return verdictOf(out), nil
}

func verdictOf(fs []finding) domain.ReviewVerdict {
	if len(fs) == 0 {
		return domain.ReviewVerdict{Pass: true}
	}
	v := domain.ReviewVerdict{}
	msgs := make([]string, 0, len(fs))
	for _, f := range fs {
		v.Violations = append(v.Violations, f.violation)
		msgs = append(msgs, f.message)
		if f.suggestion != "" {
			v.Suggestions = append(v.Suggestions, f.suggestion)
		}
	}
	v.Feedback = strings.Join(msgs, " ")
	return v
}

func checkLength(d domain.Draft, prefs domain.UserPreferences) []finding {
	upper := prefs.Length.Max
	if upper <= 0 || upper > PlatformMaxChars {
		upper = PlatformMaxChars
	}
	switch {
	case d.Chars < prefs.Length.Min:
		return []finding{{
			violation:  domain.ViolationLengthTooShort,
			message:    fmt.Sprintf("Post is %d characters, below the minimum of %d.", d.Chars, prefs.Length.Min),
			suggestion: fmt.Sprintf("Expand to at least %d characters with a concrete example or detail.", prefs.Length.Min),
		}}
	case d.Chars > upper:
		return []finding{{
			violation:  domain.ViolationLengthTooLong,
			message:    fmt.Sprintf("Post is %d characters, over the maximum of %d.", d.Chars, upper),
			suggestion: fmt.Sprintf("Cut %d characters; remove the weakest paragraph first.", d.Chars-upper),
		}}
	}
	return nil
}

// CountHashtags counts #tags that start a word.
func CountHashtags(text string) int {
	return len(hashtagRe.FindAllStringIndex(text, -1))
}

func checkHashtags(text string, usage domain.Usage) []finding {
	n := CountHashtags(text)
	switch {
	case usage == domain.UsageNone && n > 0:
		return []finding{{
			violation:  domain.ViolationTooManyHashtags,
			message:    fmt.Sprintf("Found %d hashtags but the author uses none.", n),
			suggestion: "Remove all hashtags.",
		}}
	case usage != domain.UsageNone && n == 0:
		return []finding{{
			violation:  domain.ViolationMissingHashtags,
			message:    "No hashtags found.",
			suggestion: "Add 3-5 relevant hashtags at the end.",
		}}
	case n > MaxHashtags:
		return []finding{{
			violation:  domain.ViolationTooManyHashtags,
			message:    fmt.Sprintf("Too many hashtags (%d).", n),
			suggestion: "Keep 3-5 of the most relevant hashtags.",
		}}
	}
	return nil
}

// IsEmoji reports whether r falls in one of the pictograph ranges.
func IsEmoji(r rune) bool {
	switch {
	case r >= 0x1F600 && r <= 0x1F64F, // emoticons
		r >= 0x1F300 && r <= 0x1F5FF, // symbols & pictographs
		r >= 0x1F680 && r <= 0x1F6FF, // transport & map
		r >= 0x1F1E0 && r <= 0x1F1FF, // flags
		r >= 0x1F900 && r <= 0x1F9FF, // supplemental symbols
		r >= 0x2600 && r <= 0x26FF,   // misc symbols
		r >= 0x2702 && r <= 0x27B0:   // dingbats
		return true
	}
	return false
}

// EmojiStats returns the emoji count and their share of all characters in percent.
func EmojiStats(text string) (int, float64) {
	total := utf8.RuneCountInString(text)
	if total == 0 {
		return 0, 0
	}
	n := 0
	for _, r := range text {
		if IsEmoji(r) {
			n++
		}
	}
	return n, float64(n) / float64(total) * 100
}

func checkEmojis(text string, usage domain.Usage) []finding {
	n, density := EmojiStats(text)
	switch {
	case usage == domain.UsageNone && n > 0:
		return []finding{{
			violation:  domain.ViolationTooManyEmojis,
			message:    fmt.Sprintf("Found %d emojis but the author uses none.", n),
			suggestion: "Remove all emojis.",
		}}
	case density > MaxEmojiDensity:
		return []finding{{
			violation:  domain.ViolationTooManyEmojis,
			message:    fmt.Sprintf("Emoji density is %.1f%%, above %.0f%%.", density, MaxEmojiDensity),
			suggestion: "Keep emojis to a few meaningful ones.",
		}}
	}
	return nil
}

func checkStructure(text string, s domain.Structure) []finding {
	var out []finding
	if s == domain.StructureListBased && countListLines(text) < minListItems {
		out = append(out, finding{
			violation:  domain.ViolationStructure,
			message:    "A list-based post needs at least two list items.",
			suggestion: "Break the key points into a short list, one item per line.",
		})
	}
	if s.RequiresCTA() && !HasCTA(text) {
		out = append(out, finding{
			violation:  domain.ViolationMissingCTA,
			message:    "The post does not close with a call to action.",
			suggestion: "End with a question or an invitation for readers to respond.",
		})
	}
	return out
}

func countListLines(text string) int {
	n := 0
	for _, line := range strings.Split(text, "\n") {
		if listLineRe.MatchString(line) {
			n++
		}
	}
	return n
}

// HasCTA reports whether the closing paragraph, ignoring trailing hashtag
// lines, asks a question or contains a call-to-action phrase.
func HasCTA(text string) bool {
	last := closingParagraph(text)
	if last == "" {
		return false
	}
	if strings.Contains(last, "?") {
		return true
	}
	lower := strings.ToLower(last)
	for _, p := range ctaPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func closingParagraph(text string) string {
	paras := strings.Split(strings.TrimSpace(text), "\n\n")
	for i := len(paras) - 1; i >= 0; i-- {
		p := strings.TrimSpace(paras[i])
		if p == "" || hashtagOnly(p) {
			continue
		}
		return p
	}
	return ""
}

func hashtagOnly(p string) bool {
	for _, f := range strings.Fields(p) {
		if !strings.HasPrefix(f, "#") && strings.IndexFunc(f, unicode.IsLetter) >= 0 {
			return false
		}
	}
	return true
}
