package domain

import (
	"errors"
	"fmt"
)

type WritingStyle string

const (
	StyleStorytelling WritingStyle = "storytelling"
	StyleTechnical    WritingStyle = "technical"
	StyleCasual       WritingStyle = "casual"
	StyleProfessional WritingStyle = "professional"
	StyleFormal       WritingStyle = "formal"
)

type Tone string

const (
	ToneEnthusiastic   Tone = "enthusiastic"
	ToneAnalytical     Tone = "analytical"
	ToneInspirational  Tone = "inspirational"
	ToneProfessional   Tone = "professional"
	ToneConversational Tone = "conversational"
)

// Structure is the post template. The empty value means no fixed template.
type Structure string

const (
	StructureNone            Structure = ""
	StructureStorytelling    Structure = "storytelling"
	StructureListBased       Structure = "list-based"
	StructureProblemSolution Structure = "problem-solution"
	StructureNarrative       Structure = "narrative"
	StructureCustom          Structure = "custom"
)

// RequiresCTA reports whether the template must close with a call to action.
func (s Structure) RequiresCTA() bool {
	switch s {
	case StructureStorytelling, StructureListBased, StructureProblemSolution:
		return true
	}
	return false
}

type Usage string

const (
	UsageNone     Usage = "none"
	UsageModerate Usage = "moderate"
	UsageFrequent Usage = "frequent"
)

// LengthBounds is an inclusive character range.
type LengthBounds struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

// UserPreferences governs tone, structure and length of a user's posts. A run
// takes one snapshot at start and never reloads it.
type UserPreferences struct {
	UserID             string       `json:"user_id" yaml:"-"`
	WritingStyle       WritingStyle `json:"writing_style" yaml:"writing_style"`
	Tone               Tone         `json:"tone" yaml:"tone"`
	Length             LengthBounds `json:"post_length" yaml:"post_length"`
	Structure          Structure    `json:"post_structure,omitempty" yaml:"post_structure"`
	CustomInstructions string       `json:"custom_instructions,omitempty" yaml:"custom_instructions"`
	Topics             []string     `json:"topics,omitempty" yaml:"topics"`
	EmojiUsage         Usage        `json:"emoji_usage" yaml:"emoji_usage"`
	HashtagUsage       Usage        `json:"hashtag_usage" yaml:"hashtag_usage"`
	OpeningHook        string       `json:"opening_hook_style,omitempty" yaml:"opening_hook_style"`
}

// DefaultPreferences returns the profile used for fields a user never set.
func DefaultPreferences(userID string) UserPreferences {
	return UserPreferences{
		UserID:       userID,
		WritingStyle: StyleProfessional,
		Tone:         ToneProfessional,
		Length:       LengthBounds{Min: 100, Max: 3000},
		EmojiUsage:   UsageModerate,
		HashtagUsage: UsageModerate,
		OpeningHook:  "statement",
	}
}

var ErrInvalidPreferences = errors.New("invalid preferences")

// Validate checks enum membership and length bounds.
func (p UserPreferences) Validate() error {
	switch p.WritingStyle {
	case StyleStorytelling, StyleTechnical, StyleCasual, StyleProfessional, StyleFormal:
	default:
		return fmt.Errorf("%w: writing_style %q", ErrInvalidPreferences, p.WritingStyle)
	}
	switch p.Tone {
	case ToneEnthusiastic, ToneAnalytical, ToneInspirational, ToneProfessional, ToneConversational:
	default:
		return fmt.Errorf("%w: tone %q", ErrInvalidPreferences, p.Tone)
	}
	switch p.Structure {
	case StructureNone, StructureStorytelling, StructureListBased, StructureProblemSolution, StructureNarrative, StructureCustom:
	default:
		return fmt.Errorf("%w: post_structure %q", ErrInvalidPreferences, p.Structure)
	}
	if p.Structure == StructureCustom && p.CustomInstructions == "" {
		return fmt.Errorf("%w: custom structure needs custom_instructions", ErrInvalidPreferences)
	}
	for _, u := range []Usage{p.EmojiUsage, p.HashtagUsage} {
		switch u {
		case UsageNone, UsageModerate, UsageFrequent:
		default:
			return fmt.Errorf("%w: usage %q", ErrInvalidPreferences, u)
		}
	}
	if p.Length.Min < 0 || p.Length.Max <= 0 || p.Length.Min > p.Length.Max {
		return fmt.Errorf("%w: post_length [%d,%d]", ErrInvalidPreferences, p.Length.Min, p.Length.Max)
	}
	return nil
}

// Clone returns a snapshot that shares no slices with p.
func (p UserPreferences) Clone() UserPreferences {
	out := p
	out.Topics = append([]string(nil), p.Topics...)
	return out
}
