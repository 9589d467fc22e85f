package generator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postforge/postforge/domain"
)

type recordingLLM struct {
	reply   string
	err     error
	prompts []Prompt
}

func (r *recordingLLM) Complete(_ context.Context, p Prompt) (string, error) {
	r.prompts = append(r.prompts, p)
	return r.reply, r.err
}

func newTestAgent(t *testing.T, llm LLMClient) *Agent {
	t.Helper()
	a, err := NewAgent(llm)
	require.NoError(t, err)
	a.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
	return a
}

func TestNewAgentRequiresLLM(t *testing.T) {
	_, err := NewAgent(nil)
	assert.Error(t, err)
}

func TestGenerateProducesVersionZero(t *testing.T) {
	llm := &recordingLLM{reply: "```\nShipping is a habit.\n\nWhat did you ship this week?\n```"}
	a := newTestAgent(t, llm)
	prefs := domain.DefaultPreferences("u1")
	src := domain.SourceContent{Kind: domain.KindTopic, Text: "Why shipping matters?"}

	d, err := a.Generate(context.Background(), src, prefs, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, d.Version)
	assert.Equal(t, "Shipping is a habit.\n\nWhat did you ship this week?", d.Text)
	assert.Nil(t, d.Feedback)
	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0].System, "between 100 and 3000 characters")
	assert.Contains(t, llm.prompts[0].User, "Why shipping matters?")
}

func TestGenerateRejectsEmptySource(t *testing.T) {
	llm := &recordingLLM{reply: "x"}
	_, err := newTestAgent(t, llm).Generate(context.Background(), domain.SourceContent{}, domain.DefaultPreferences("u"), nil)
	assert.Error(t, err)
	assert.Empty(t, llm.prompts)
}

func TestGenerateEmptyCompletion(t *testing.T) {
	llm := &recordingLLM{reply: "   "}
	src := domain.SourceContent{Kind: domain.KindRawText, Text: "notes"}
	_, err := newTestAgent(t, llm).Generate(context.Background(), src, domain.DefaultPreferences("u"), nil)
	assert.ErrorIs(t, err, ErrEmptyDraft)
}

func TestGeneratePropagatesLLMError(t *testing.T) {
	cause := errors.New("boom")
	src := domain.SourceContent{Kind: domain.KindRawText, Text: "notes"}
	_, err := newTestAgent(t, &recordingLLM{err: cause}).Generate(context.Background(), src, domain.DefaultPreferences("u"), nil)
	assert.ErrorIs(t, err, cause)
}

func TestRefineBumpsVersionAndKeepsPrevious(t *testing.T) {
	llm := &recordingLLM{reply: "Better text.\n\nThoughts?"}
	a := newTestAgent(t, llm)
	prev := domain.NewDraft("Short.", time.Time{})
	verdict := domain.ReviewVerdict{
		Violations: []domain.Violation{domain.ViolationLengthTooShort, domain.ViolationMissingCTA},
		Feedback:   "Too short and no call to action.",
	}

	next, err := a.Refine(context.Background(), prev, verdict, domain.DefaultPreferences("u"))
	require.NoError(t, err)
	assert.Equal(t, 1, next.Version)
	assert.Equal(t, "Better text.\n\nThoughts?", next.Text)
	require.NotNil(t, next.Feedback)
	assert.Equal(t, verdict.Violations, next.Feedback.Violations)
	assert.Equal(t, "Short.", prev.Text)
	assert.Equal(t, 0, prev.Version)

	p := llm.prompts[0]
	assert.Contains(t, p.User, "length_too_short, missing_cta")
	assert.Contains(t, p.User, "Too short and no call to action.")
	require.Len(t, p.History, 1)
	assert.Equal(t, RoleAssistant, p.History[0].Role)
}

func TestRefineRejectsPassingVerdict(t *testing.T) {
	llm := &recordingLLM{reply: "x"}
	_, err := newTestAgent(t, llm).Refine(context.Background(), domain.NewDraft("ok", time.Time{}), domain.ReviewVerdict{Pass: true}, domain.DefaultPreferences("u"))
	assert.ErrorIs(t, err, ErrRefinePassing)
	assert.Empty(t, llm.prompts)
}

func TestMockLLMIsDeterministic(t *testing.T) {
	prefs := domain.DefaultPreferences("u")
	src := domain.SourceContent{Kind: domain.KindRawText, Text: strings.Repeat("We rebuilt onboarding. ", 10)}
	p := BuildGeneratePrompt(src, prefs, nil)

	a, err := MockLLM{}.Complete(context.Background(), p)
	require.NoError(t, err)
	b, err := MockLLM{}.Complete(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Contains(t, a, "We rebuilt onboarding.")
	assert.Contains(t, a, "#insights")

	prefs.HashtagUsage = domain.UsageNone
	c, err := MockLLM{}.Complete(context.Background(), BuildGeneratePrompt(src, prefs, nil))
	require.NoError(t, err)
	assert.NotContains(t, c, "#")
}

func TestPromptRulesFollowPreferences(t *testing.T) {
	prefs := domain.DefaultPreferences("u")
	prefs.Structure = domain.StructureCustom
	prefs.CustomInstructions = "Start with a number."
	prefs.Topics = []string{"platform engineering", "hiring"}

	p := BuildGeneratePrompt(domain.SourceContent{Kind: domain.KindURL, Title: "Post", Text: "body"}, prefs, &domain.ReviewVerdict{Feedback: "too vague"})
	assert.Contains(t, p.System, "Structure: Start with a number.")
	assert.Contains(t, p.System, "platform engineering, hiring")
	assert.Contains(t, p.User, `"Post"`)
	assert.Contains(t, p.User, "too vague")
	assert.Equal(t, "body", promptContent(p))
}
