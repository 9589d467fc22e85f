package pipeline

import (
	"time"

	"github.com/postforge/postforge/domain"
)

// RunContext is the state of one run. The orchestrator owns it for the
// run's lifetime; stages receive copies of the fields they need, never the
// context itself.
type RunContext struct {
	ID          string
	UserID      string
	RawInput    string
	Kind        domain.InputKind
	Source      domain.SourceContent
	Preferences domain.UserPreferences

	Draft       domain.Draft
	Versions    []domain.Draft
	Reviews     []domain.ReviewRecord
	RefineCalls int
	LoopState   LoopState

	Image    *domain.ImageArtifact
	ImageErr error

	Status   domain.Status
	PostID   string
	ImageRef string
	Err      error

	StartedAt  time.Time
	FinishedAt time.Time
}

func newRunContext(id, raw, userID string, at time.Time) *RunContext {
	return &RunContext{
		ID:        id,
		UserID:    userID,
		RawInput:  raw,
		Status:    domain.StatusPending,
		StartedAt: at,
	}
}

func (rc *RunContext) applyLoop(res LoopResult) {
	rc.Draft = res.Final
	rc.Versions = append([]domain.Draft(nil), res.Versions...)
	rc.Reviews = append([]domain.ReviewRecord(nil), res.History...)
	rc.RefineCalls = res.RefineCalls
	rc.LoopState = res.State
}

// outcome maps the loop's terminal state to the run status.
func (rc *RunContext) outcome() domain.Status {
	if rc.LoopState == StateAccepted {
		return domain.StatusAccepted
	}
	return domain.StatusExhausted
}

// Record is the persistable form of the run.
func (rc *RunContext) Record() domain.StoredPost {
	rec := domain.StoredPost{
		RunID:        rc.ID,
		UserID:       rc.UserID,
		Status:       rc.outcome(),
		Versions:     append([]domain.Draft(nil), rc.Versions...),
		FinalVersion: rc.Draft.Version,
		Reviews:      append([]domain.ReviewRecord(nil), rc.Reviews...),
		Source:       rc.Source,
		Preferences:  rc.Preferences.Clone(),
	}
	if rc.Image != nil {
		img := *rc.Image
		rec.Image = &img
	}
	if rc.ImageErr != nil {
		rec.ImageError = rc.ImageErr.Error()
	}
	return rec
}

// Result is what a caller of Run sees.
type Result struct {
	RunID       string        `json:"run_id"`
	UserID      string        `json:"user_id"`
	PostID      string        `json:"post_id,omitempty"`
	Status      domain.Status `json:"status"`
	FinalDraft  domain.Draft  `json:"final_draft"`
	ImageRef    string        `json:"image_ref,omitempty"`
	ImageError  string        `json:"image_error,omitempty"`
	RefineCalls int           `json:"refine_calls"`
	Versions    int           `json:"versions"`
	ErrorKind   ErrorKind     `json:"error_kind,omitempty"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration_ns"`
}

func (rc *RunContext) result() Result {
	r := Result{
		RunID:       rc.ID,
		UserID:      rc.UserID,
		PostID:      rc.PostID,
		Status:      rc.Status,
		FinalDraft:  rc.Draft,
		ImageRef:    rc.ImageRef,
		RefineCalls: rc.RefineCalls,
		Versions:    len(rc.Versions),
		Duration:    rc.FinishedAt.Sub(rc.StartedAt),
	}
	if rc.ImageErr != nil {
		r.ImageError = rc.ImageErr.Error()
	}
	if rc.Err != nil {
		r.ErrorKind = KindOf(rc.Err)
		r.Error = rc.Err.Error()
	}
	return r
}
