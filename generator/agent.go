package generator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/postforge/postforge/domain"
)

// ErrRefinePassing is returned when Refine is asked to rework an accepted draft.
var ErrRefinePassing = errors.New("refine called with a passing verdict")

// Agent 负责根据来源内容、用户偏好和审阅反馈生成或修订稿件。
type Agent struct {
	llm LLMClient
	now func() time.Time
}

func NewAgent(llm LLMClient) (*Agent, error) {
	if llm == nil {
		return nil, errors.New("llm client is required")
	}
	return &Agent{llm: llm, now: time.Now}, nil
}

// Generate produces version 0 of a run. feedback is non-nil only when an
// earlier generation was rejected outright.
func (a *Agent) Generate(ctx context.Context, src domain.SourceContent, prefs domain.UserPreferences, feedback *domain.ReviewVerdict) (domain.Draft, error) {
	if src.Text == "" {
		return domain.Draft{}, errors.New("source content is empty")
	}
	raw, err := a.llm.Complete(ctx, BuildGeneratePrompt(src, prefs, feedback))
	if err != nil {
		return domain.Draft{}, err
	}
	text, err := PostProcess(raw)
	if err != nil {
		return domain.Draft{}, err
	}
	return domain.NewDraft(text, a.now()), nil
}

// Refine rewrites d to address v and returns the next version. It never
// mutates d.
func (a *Agent) Refine(ctx context.Context, d domain.Draft, v domain.ReviewVerdict, prefs domain.UserPreferences) (domain.Draft, error) {
	if v.Pass {
		return domain.Draft{}, ErrRefinePassing
	}
	raw, err := a.llm.Complete(ctx, BuildRefinePrompt(d, v, prefs))
	if err != nil {
		return domain.Draft{}, err
	}
	text, err := PostProcess(raw)
	if err != nil {
		return domain.Draft{}, fmt.Errorf("refine v%d: %w", d.Version, err)
	}
	return domain.NextDraft(d, text, v, a.now()), nil
}
