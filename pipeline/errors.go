package pipeline

import (
	"errors"
	"fmt"

	"github.com/postforge/postforge/resolver"
)

// ErrorKind names the originating failure of a run.
type ErrorKind string

const (
	KindNone            ErrorKind = ""
	KindEmptyInput      ErrorKind = "empty_input"
	KindExtraction      ErrorKind = "extraction"
	KindPreferences     ErrorKind = "preferences"
	KindGeneration      ErrorKind = "generation"
	KindReview          ErrorKind = "review"
	KindRefinement      ErrorKind = "refinement"
	KindImageGeneration ErrorKind = "image_generation"
	KindPersistence     ErrorKind = "persistence"
	KindCanceled        ErrorKind = "canceled"
)

// Recoverable reports whether a run can complete despite an error of kind k.
func (k ErrorKind) Recoverable() bool { return k == KindImageGeneration }

// Stage is one step of a run.
type Stage string

const (
	StageResolve     Stage = "resolve"
	StagePreferences Stage = "preferences"
	StageGenerate    Stage = "generate"
	StageReview      Stage = "review"
	StageRefine      Stage = "refine"
	StageImage       Stage = "image"
	StagePersist     Stage = "persist"
)

// StageError ties a failure to the stage that produced it.
type StageError struct {
	Kind  ErrorKind
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	if e.Stage == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Is matches the kind sentinels below.
func (e *StageError) Is(target error) bool {
	t, ok := target.(*StageError)
	return ok && t.Err == nil && t.Stage == "" && t.Kind == e.Kind
}

// Kind sentinels for errors.Is.
var (
	ErrEmptyInput      = &StageError{Kind: KindEmptyInput}
	ErrExtraction      = &StageError{Kind: KindExtraction}
	ErrPreferences     = &StageError{Kind: KindPreferences}
	ErrGeneration      = &StageError{Kind: KindGeneration}
	ErrReview          = &StageError{Kind: KindReview}
	ErrRefinement      = &StageError{Kind: KindRefinement}
	ErrImageGeneration = &StageError{Kind: KindImageGeneration}
	ErrPersistence     = &StageError{Kind: KindPersistence}
	ErrCanceled        = &StageError{Kind: KindCanceled}
)

// KindOf returns the kind of the outermost StageError in err's chain.
func KindOf(err error) ErrorKind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindNone
}

func fixedKind(k ErrorKind) func(error) ErrorKind {
	return func(error) ErrorKind { return k }
}

// resolveKind maps resolver failures; anything but empty input is an
// extraction failure.
func resolveKind(err error) ErrorKind {
	if errors.Is(err, resolver.ErrEmptyInput) {
		return KindEmptyInput
	}
	return KindExtraction
}

func canceled(stage Stage, err error) *StageError {
	return &StageError{Kind: KindCanceled, Stage: stage, Err: err}
}
