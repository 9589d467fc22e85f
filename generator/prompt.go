package generator

import (
	"fmt"
	"strings"

	"github.com/postforge/postforge/domain"
)

// Prompt 表示发送给 LLM 的消息集合。
type Prompt struct {
	System  string
	User    string
	History []Message
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message 用于少量历史（可选）。
type Message struct {
	Role    string
	Content string
}

// contentMarker separates instructions from the material a model should work on.
const contentMarker = "CONTENT:"

var styleGuide = map[domain.WritingStyle]string{
	domain.StyleStorytelling: "Tell it as a short story with a clear arc and a concrete moment.",
	domain.StyleTechnical:    "Be precise and specific. Use concrete numbers, tools and mechanisms.",
	domain.StyleCasual:       "Write like you talk to a colleague. Short sentences, plain words.",
	domain.StyleProfessional: "Polished and credible. Clear claims backed by experience.",
	domain.StyleFormal:       "Formal register. No slang, no contractions.",
}

var toneGuide = map[domain.Tone]string{
	domain.ToneEnthusiastic:   "energetic and positive",
	domain.ToneAnalytical:     "measured, evidence driven",
	domain.ToneInspirational:  "uplifting, forward looking",
	domain.ToneProfessional:   "confident and composed",
	domain.ToneConversational: "warm and direct, addressing the reader",
}

var structureGuide = map[domain.Structure]string{
	domain.StructureStorytelling:    "Hook, situation, turning point, lesson, then a closing question or call to action.",
	domain.StructureListBased:       "One hook line, then a list of at least three short items (one per line, starting with '-' or a number), then a call to action.",
	domain.StructureProblemSolution: "State the problem, why it matters, the solution, the result, then a call to action.",
	domain.StructureNarrative:       "A flowing first-person narrative in short paragraphs.",
}

var usageGuide = map[domain.Usage]string{
	domain.UsageNone:     "none at all",
	domain.UsageModerate: "a few, where they add meaning",
	domain.UsageFrequent: "freely",
}

func writeRules(sb *strings.Builder, prefs domain.UserPreferences) {
	sb.WriteString("Rules:\n")
	fmt.Fprintf(sb, "- Length: between %d and %d characters including spaces.\n", prefs.Length.Min, prefs.Length.Max)
	if g := styleGuide[prefs.WritingStyle]; g != "" {
		fmt.Fprintf(sb, "- Style (%s): %s\n", prefs.WritingStyle, g)
	}
	if g := toneGuide[prefs.Tone]; g != "" {
		fmt.Fprintf(sb, "- Tone: %s.\n", g)
	}
	switch {
	case prefs.Structure == domain.StructureCustom:
		fmt.Fprintf(sb, "- Structure: %s\n", prefs.CustomInstructions)
	case structureGuide[prefs.Structure] != "":
		fmt.Fprintf(sb, "- Structure: %s\n", structureGuide[prefs.Structure])
	}
	if prefs.OpeningHook != "" {
		fmt.Fprintf(sb, "- Open with a %s hook in the first line.\n", prefs.OpeningHook)
	}
	fmt.Fprintf(sb, "- Emojis: %s.\n", usageGuide[prefs.EmojiUsage])
	switch prefs.HashtagUsage {
	case domain.UsageNone:
		sb.WriteString("- Hashtags: none.\n")
	case domain.UsageFrequent:
		sb.WriteString("- Hashtags: end with 5 to 8 relevant hashtags.\n")
	default:
		sb.WriteString("- Hashtags: end with 3 to 5 relevant hashtags.\n")
	}
	if len(prefs.Topics) > 0 {
		fmt.Fprintf(sb, "- The author usually writes about: %s.\n", strings.Join(prefs.Topics, ", "))
	}
	if prefs.CustomInstructions != "" && prefs.Structure != domain.StructureCustom {
		fmt.Fprintf(sb, "- Also: %s\n", prefs.CustomInstructions)
	}
	sb.WriteString("- Plain text only. No markdown headings, no bold, no preamble, no explanation.\n")
}

func writeVerdict(sb *strings.Builder, v domain.ReviewVerdict) {
	if len(v.Violations) > 0 {
		names := make([]string, len(v.Violations))
		for i, x := range v.Violations {
			names[i] = string(x)
		}
		fmt.Fprintf(sb, "Violations: %s\n", strings.Join(names, ", "))
	}
	if v.Feedback != "" {
		fmt.Fprintf(sb, "Reviewer feedback: %s\n", v.Feedback)
	}
	for _, s := range v.Suggestions {
		fmt.Fprintf(sb, "- %s\n", s)
	}
}

// BuildGeneratePrompt 生成首稿提示词。
func BuildGeneratePrompt(src domain.SourceContent, prefs domain.UserPreferences, feedback *domain.ReviewVerdict) Prompt {
	var sys strings.Builder
	sys.WriteString("You are a LinkedIn ghostwriter. Output only the final post text.\n")
	writeRules(&sys, prefs)

	var user strings.Builder
	switch src.Kind {
	case domain.KindTopic:
		user.WriteString("Write an original LinkedIn post about the topic below.\n")
	case domain.KindVideo:
		user.WriteString("Write a LinkedIn post sharing the key insights from this video transcript.\n")
	case domain.KindURL:
		fmt.Fprintf(&user, "Write a LinkedIn post sharing the key insights from the article %q.\n", src.Title)
	default:
		user.WriteString("Turn the text below into a LinkedIn post. Keep its facts, drop anything else.\n")
	}
	if feedback != nil {
		user.WriteString("A previous attempt was rejected. Avoid these problems:\n")
		writeVerdict(&user, *feedback)
	}
	user.WriteString("\n" + contentMarker + "\n")
	user.WriteString(src.Text)

	return Prompt{System: sys.String(), User: user.String()}
}

// BuildRefinePrompt 生成修订提示词。
func BuildRefinePrompt(d domain.Draft, v domain.ReviewVerdict, prefs domain.UserPreferences) Prompt {
	var sys strings.Builder
	sys.WriteString("You are an editor revising a LinkedIn post. Fix every listed problem with the smallest change that works, keep what already works, and output only the revised post.\n")
	writeRules(&sys, prefs)

	var user strings.Builder
	fmt.Fprintf(&user, "The draft above (version %d, %d characters) failed review.\n", d.Version, d.Chars)
	writeVerdict(&user, v)
	user.WriteString("\nRevise it.\n" + contentMarker + "\n")
	user.WriteString(d.Text)

	return Prompt{
		System:  sys.String(),
		User:    user.String(),
		History: []Message{{Role: RoleAssistant, Content: d.Text}},
	}
}

// promptContent returns the material after the content marker.
func promptContent(p Prompt) string {
	if i := strings.LastIndex(p.User, contentMarker); i >= 0 {
		return strings.TrimSpace(p.User[i+len(contentMarker):])
	}
	return strings.TrimSpace(p.User)
}
