// Package imagegen creates the illustration attached to a finished post.
package imagegen

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/postforge/postforge/domain"
)

const maxKeywords = 5

var stopWords = map[string]bool{}

func init() {
	for _, w := range strings.Fields(`about above after again against also because been before being below between
both could does doing down during each every from further have having here hers herself himself into itself just
more most myself other ours ourselves over same should some such than that their theirs them themselves then there
these they this those through under until very were what when where which while will with would your yours
yourself yourselves thing things really still even much many make made like just want know think share post posts
today first last next dont didnt cant wont youre thats whats here's it's i'm you're don't can't won't`) {
		stopWords[w] = true
	}
}

var styleLook = map[domain.WritingStyle]string{
	domain.StyleStorytelling: "warm cinematic illustration with a sense of narrative",
	domain.StyleTechnical:    "clean isometric diagram-like illustration, cool blue palette",
	domain.StyleCasual:       "friendly flat illustration, bright colors",
	domain.StyleProfessional: "modern corporate illustration, muted professional palette",
	domain.StyleFormal:       "minimal elegant abstract composition, neutral tones",
}

// Keywords returns up to five content words of text ranked by frequency,
// ties broken by first appearance.
func Keywords(text string) []string {
	counts := map[string]int{}
	first := map[string]int{}
	for i, raw := range strings.Fields(strings.ToLower(text)) {
		w := strings.TrimFunc(raw, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsNumber(r) })
		if len([]rune(w)) < 4 || stopWords[w] || strings.HasPrefix(w, "http") {
			continue
		}
		if _, ok := first[w]; !ok {
			first[w] = i
		}
		counts[w]++
	}
	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return first[words[i]] < first[words[j]]
	})
	if len(words) > maxKeywords {
		words = words[:maxKeywords]
	}
	return words
}

// BuildPrompt describes the image for a draft.
func BuildPrompt(d domain.Draft, prefs domain.UserPreferences) string {
	look := styleLook[prefs.WritingStyle]
	if look == "" {
		look = styleLook[domain.StyleProfessional]
	}
	kw := Keywords(d.Text)
	subject := "professional growth"
	if len(kw) > 0 {
		subject = strings.Join(kw, ", ")
	}
	return fmt.Sprintf("A %s for a LinkedIn post about %s. Landscape %dx%d composition. No text, no letters, no logos.",
		look, subject, domain.ImageWidth, domain.ImageHeight)
}

// AltText is a short description of the post the image belongs to.
func AltText(d domain.Draft) string {
	line := strings.TrimSpace(strings.SplitN(strings.TrimSpace(d.Text), "\n", 2)[0])
	if r := []rune(line); len(r) > 120 {
		line = strings.TrimSpace(string(r[:120])) + "..."
	}
	return "Illustration for: " + line
}
