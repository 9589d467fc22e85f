package reviewer

import (
	"context"
	"errors"
	"strings"

	"github.com/postforge/postforge/domain"
)

// Chain runs every reviewer and merges their verdicts: the draft passes
// only when all of them pass. The first error aborts the review.
type Chain []Reviewer

func (c Chain) Review(ctx context.Context, d domain.Draft, prefs domain.UserPreferences) (domain.ReviewVerdict, error) {
	if len(c) == 0 {
		return domain.ReviewVerdict{}, errors.New("no reviewers configured")
	}
	merged := domain.ReviewVerdict{Pass: true}
	seen := map[domain.Violation]bool{}
	var feedback []string
	for _, r := range c {
		v, err := r.Review(ctx, d, prefs)
		if err != nil {
			return domain.ReviewVerdict{}, err
		}
		if err := v.Validate(); err != nil {
			return domain.ReviewVerdict{}, err
		}
		if v.Pass {
			continue
		}
		merged.Pass = false
		for _, x := range v.Violations {
			if !seen[x] {
				seen[x] = true
				merged.Violations = append(merged.Violations, x)
			}
		}
		if v.Feedback != "" {
			feedback = append(feedback, v.Feedback)
		}
		merged.Suggestions = append(merged.Suggestions, v.Suggestions...)
	}
	merged.Feedback = strings.Join(feedback, " ")
	return merged, nil
}
