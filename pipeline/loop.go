package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/postforge/postforge/domain"
)

// LoopState is a state of the review/refine machine.
type LoopState int

const (
	StateReviewing LoopState = iota
	StateRefining
	StateAccepted
	StateExhausted
)

func (s LoopState) String() string {
	switch s {
	case StateReviewing:
		return "reviewing"
	case StateRefining:
		return "refining"
	case StateAccepted:
		return "accepted"
	case StateExhausted:
		return "exhausted"
	}
	return fmt.Sprintf("LoopState(%d)", int(s))
}

// Terminal reports whether the loop stops in s.
func (s LoopState) Terminal() bool { return s == StateAccepted || s == StateExhausted }

const (
	DefaultMaxIterations = 3
	MaxIterationsLimit   = 10
)

// LoopResult is the outcome of one loop run. Versions holds every draft in
// order, Final is the last of them and History has one entry per review.
type LoopResult struct {
	State       LoopState
	Final       domain.Draft
	Versions    []domain.Draft
	History     []domain.ReviewRecord
	RefineCalls int
}

var (
	errVersionNotIncreasing = errors.New("refined draft does not increase the version")
	errEmptyRefinement      = errors.New("refined draft is empty")
)

// RefinementLoop drives Review -> Refine cycles until a draft passes or
// MaxIterations refine calls have been spent.
type RefinementLoop struct {
	reviewer      Reviewer
	refiner       Refiner
	maxIterations int
	reviewTimeout time.Duration
	refineTimeout time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// LoopConfig bounds the loop.
type LoopConfig struct {
	MaxIterations int
	ReviewTimeout time.Duration
	RefineTimeout time.Duration
}

func NewRefinementLoop(reviewer Reviewer, refiner Refiner, cfg LoopConfig) (*RefinementLoop, error) {
	if reviewer == nil || refiner == nil {
		return nil, errors.New("reviewer and refiner are required")
	}
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.MaxIterations < 1 || cfg.MaxIterations > MaxIterationsLimit {
		return nil, fmt.Errorf("max iterations must be in [1,%d], got %d", MaxIterationsLimit, cfg.MaxIterations)
	}
	return &RefinementLoop{
		reviewer:      reviewer,
		refiner:       refiner,
		maxIterations: cfg.MaxIterations,
		reviewTimeout: cfg.ReviewTimeout,
		refineTimeout: cfg.RefineTimeout,
		logger:        slog.Default(),
		now:           time.Now,
	}, nil
}

// WithLogger returns a copy of l that logs to logger.
func (l *RefinementLoop) WithLogger(logger *slog.Logger) *RefinementLoop {
	cp := *l
	if logger != nil {
		cp.logger = logger
	}
	return &cp
}

// MaxIterations is the refine call budget.
func (l *RefinementLoop) MaxIterations() int { return l.maxIterations }

// Run starts in Reviewing with v0. On error the partial result so far is
// returned together with a *StageError.
func (l *RefinementLoop) Run(ctx context.Context, v0 domain.Draft, prefs domain.UserPreferences) (LoopResult, error) {
	res := LoopResult{
		State:    StateReviewing,
		Final:    v0,
		Versions: []domain.Draft{v0},
	}
	var last domain.ReviewVerdict

	for !res.State.Terminal() {
		switch res.State {
		case StateReviewing:
			cur := res.Final
			verdict, err := invoke(ctx, StageReview, l.reviewTimeout, fixedKind(KindReview), func(ctx context.Context) (domain.ReviewVerdict, error) {
				return l.reviewer.Review(ctx, cur, prefs)
			})
			if err != nil {
				return res, err
			}
			if err := verdict.Validate(); err != nil {
				return res, &StageError{Kind: KindReview, Stage: StageReview, Err: err}
			}
			res.History = append(res.History, domain.ReviewRecord{
				Iteration:  res.RefineCalls,
				Version:    cur.Version,
				Verdict:    verdict.Clone(),
				ReviewedAt: l.now(),
			})

			next := StateExhausted
			switch {
			case verdict.Pass:
				next = StateAccepted
			case res.RefineCalls < l.maxIterations:
				next = StateRefining
			}
			l.logger.Info("review finished",
				"version", cur.Version, "iteration", res.RefineCalls, "pass", verdict.Pass,
				"violations", verdict.Violations, "next", next.String())
			last = verdict
			res.State = next

		case StateRefining:
			cur := res.Final
			v := last.Clone()
			refined, err := invoke(ctx, StageRefine, l.refineTimeout, fixedKind(KindRefinement), func(ctx context.Context) (domain.Draft, error) {
				return l.refiner.Refine(ctx, cur, v, prefs)
			})
			if err != nil {
				return res, err
			}
			if refined.Version <= cur.Version {
				return res, &StageError{Kind: KindRefinement, Stage: StageRefine,
					Err: fmt.Errorf("%w: %d after %d", errVersionNotIncreasing, refined.Version, cur.Version)}
			}
			if refined.Text == "" {
				return res, &StageError{Kind: KindRefinement, Stage: StageRefine, Err: errEmptyRefinement}
			}
			res.RefineCalls++
			res.Versions = append(res.Versions, refined)
			res.Final = refined
			res.State = StateReviewing
			l.logger.Info("draft refined", "version", refined.Version, "iteration", res.RefineCalls, "chars", refined.Chars)
		}
	}
	return res, nil
}
