package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/postforge/postforge/domain"
)

// Capabilities the orchestrator invokes. Each is swappable; none is called
// without a per-call deadline.
type (
	Resolver interface {
		Resolve(ctx context.Context, raw string) (domain.SourceContent, error)
	}
	PreferenceLoader interface {
		Load(ctx context.Context, userID string) (domain.UserPreferences, error)
	}
	Generator interface {
		Generate(ctx context.Context, src domain.SourceContent, prefs domain.UserPreferences, feedback *domain.ReviewVerdict) (domain.Draft, error)
	}
	Reviewer interface {
		Review(ctx context.Context, d domain.Draft, prefs domain.UserPreferences) (domain.ReviewVerdict, error)
	}
	Refiner interface {
		Refine(ctx context.Context, d domain.Draft, v domain.ReviewVerdict, prefs domain.UserPreferences) (domain.Draft, error)
	}
	Imager interface {
		CreateImage(ctx context.Context, d domain.Draft, prefs domain.UserPreferences) (domain.ImageArtifact, error)
	}
	// Sink stores a run atomically and returns the committed record.
	Sink interface {
		Persist(ctx context.Context, rec domain.StoredPost) (domain.StoredPost, error)
	}
	// Notifier is told about every terminal run. Its failures never change
	// the run's outcome.
	Notifier interface {
		Notify(ctx context.Context, res Result) error
	}
)

// invoke runs one capability call under its own deadline and classifies
// the failure. Explicit cancellation of ctx is reported as KindCanceled; an
// expired parent deadline is classified like any other capability failure.
func invoke[T any](ctx context.Context, stage Stage, timeout time.Duration, kindOf func(error) ErrorKind, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, parentDone(ctx, stage, kindOf, err)
	}
	cctx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		cctx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	out, err := fn(cctx)
	if err != nil {
		if ctx.Err() != nil {
			return zero, parentDone(ctx, stage, kindOf, err)
		}
		return zero, &StageError{Kind: kindOf(err), Stage: stage, Err: err}
	}
	return out, nil
}

func parentDone(ctx context.Context, stage Stage, kindOf func(error) ErrorKind, err error) *StageError {
	if errors.Is(ctx.Err(), context.Canceled) {
		return canceled(stage, err)
	}
	return &StageError{Kind: kindOf(err), Stage: stage, Err: err}
}
