package reviewer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/postforge/postforge/domain"
	"github.com/postforge/postforge/generator"
)

// Judge asks a language model whether a draft matches the requested tone
// and writing style, the two rubric dimensions that need reading.
type Judge struct {
	llm generator.LLMClient
}

func NewJudge(llm generator.LLMClient) (*Judge, error) {
	if llm == nil {
		return nil, errors.New("llm client is required")
	}
	return &Judge{llm: llm}, nil
}

type judgement struct {
	ToneMatch  bool   `json:"tone_match"`
	StyleMatch bool   `json:"style_match"`
	Feedback   string `json:"feedback"`
}

const judgeSystem = `You review LinkedIn posts. Answer with one JSON object and nothing else:
{"tone_match": true|false, "style_match": true|false, "feedback": "one or two sentences on what to change, empty when both match"}`

func (j *Judge) Review(ctx context.Context, d domain.Draft, prefs domain.UserPreferences) (domain.ReviewVerdict, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Requested tone: %s\nRequested writing style: %s\n\nPost:\n%s", prefs.Tone, prefs.WritingStyle, d.Text)

	raw, err := j.llm.Complete(ctx, generator.Prompt{System: judgeSystem, User: sb.String()})
	if err != nil {
		return domain.ReviewVerdict{}, err
	}
	var jm judgement
	if err := json.Unmarshal([]byte(jsonBody(raw)), &jm); err != nil {
		return domain.ReviewVerdict{}, fmt.Errorf("judge returned malformed verdict: %w", err)
	}

	v := domain.ReviewVerdict{Pass: jm.ToneMatch && jm.StyleMatch}
	if !jm.ToneMatch {
		v.Violations = append(v.Violations, domain.ViolationToneMismatch)
	}
	if !jm.StyleMatch {
		v.Violations = append(v.Violations, domain.ViolationStyleMismatch)
	}
	if !v.Pass {
		v.Feedback = strings.TrimSpace(jm.Feedback)
		if v.Feedback == "" {
			v.Feedback = fmt.Sprintf("Rewrite in a %s tone with a %s style.", prefs.Tone, prefs.WritingStyle)
		}
	}
	return v, nil
}

// jsonBody strips code fences and surrounding prose from a model reply.
func jsonBody(raw string) string {
	s := strings.TrimSpace(raw)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
