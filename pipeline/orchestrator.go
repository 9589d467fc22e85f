// Package pipeline runs one piece of raw input through resolution,
// generation, the bounded review/refine loop, image creation and
// persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/postforge/postforge/domain"
)

// Timeouts bound each capability call. Zero means no per-call deadline.
type Timeouts struct {
	Resolve     time.Duration
	Preferences time.Duration
	Generate    time.Duration
	Review      time.Duration
	Refine      time.Duration
	Image       time.Duration
	Persist     time.Duration
	Notify      time.Duration
}

type Config struct {
	MaxIterations int
	Timeouts      Timeouts
}

func DefaultConfig() Config {
	return Config{
		MaxIterations: DefaultMaxIterations,
		Timeouts: Timeouts{
			Resolve:     30 * time.Second,
			Preferences: 5 * time.Second,
			Generate:    90 * time.Second,
			Review:      60 * time.Second,
			Refine:      90 * time.Second,
			Image:       120 * time.Second,
			Persist:     30 * time.Second,
			Notify:      10 * time.Second,
		},
	}
}

// Deps are the capabilities a pipeline is built from. Notifier and Logger
// are optional.
type Deps struct {
	Resolver    Resolver
	Preferences PreferenceLoader
	Generator   Generator
	Reviewer    Reviewer
	Refiner     Refiner
	Imager      Imager
	Sink        Sink
	Notifier    Notifier
	Logger      *slog.Logger
}

// Orchestrator sequences the stages of a run. It holds no per-run state and
// is safe for concurrent Run calls.
type Orchestrator struct {
	deps  Deps
	cfg   Config
	loop  *RefinementLoop
	log   *slog.Logger
	now   func() time.Time
	newID func() string
}

func New(deps Deps, cfg Config) (*Orchestrator, error) {
	switch {
	case deps.Resolver == nil:
		return nil, errors.New("resolver is required")
	case deps.Preferences == nil:
		return nil, errors.New("preference loader is required")
	case deps.Generator == nil:
		return nil, errors.New("generator is required")
	case deps.Imager == nil:
		return nil, errors.New("imager is required")
	case deps.Sink == nil:
		return nil, errors.New("sink is required")
	}
	loop, err := NewRefinementLoop(deps.Reviewer, deps.Refiner, LoopConfig{
		MaxIterations: cfg.MaxIterations,
		ReviewTimeout: cfg.Timeouts.Review,
		RefineTimeout: cfg.Timeouts.Refine,
	})
	if err != nil {
		return nil, err
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	cfg.MaxIterations = loop.MaxIterations()
	return &Orchestrator{deps: deps, cfg: cfg, loop: loop, log: log, now: time.Now, newID: uuid.NewString}, nil
}

// Run executes one run and always returns a Result with a terminal status.
// The error is non-nil exactly when the status is Failed.
func (o *Orchestrator) Run(ctx context.Context, rawInput, userID string) (Result, error) {
	rc := newRunContext(o.newID(), rawInput, userID, o.now())
	log := o.log.With("run_id", rc.ID, "user_id", userID)
	log.Info("run started", "input_len", len(rawInput))

	err := o.execute(ctx, rc, log)
	rc.FinishedAt = o.now()
	if err != nil {
		rc.Status = domain.StatusFailed
		rc.Err = err
		log.Error("run failed", "error_kind", KindOf(err), "error", err)
	} else {
		log.Info("run finished", "status", rc.Status, "post_id", rc.PostID,
			"versions", len(rc.Versions), "refine_calls", rc.RefineCalls, "image_ref", rc.ImageRef)
	}
	res := rc.result()
	o.notify(ctx, res, log)
	return res, err
}

func (o *Orchestrator) execute(ctx context.Context, rc *RunContext, log *slog.Logger) error {
	t := o.cfg.Timeouts

	src, err := invoke(ctx, StageResolve, t.Resolve, resolveKind, func(ctx context.Context) (domain.SourceContent, error) {
		return o.deps.Resolver.Resolve(ctx, rc.RawInput)
	})
	if err != nil {
		return err
	}
	if src.Text == "" {
		return &StageError{Kind: KindExtraction, Stage: StageResolve, Err: errors.New("resolver returned empty content")}
	}
	rc.Source, rc.Kind = src, src.Kind
	log.Info("input resolved", "kind", src.Kind, "origin", src.Origin, "length", src.Length)

	prefs, err := invoke(ctx, StagePreferences, t.Preferences, fixedKind(KindPreferences), func(ctx context.Context) (domain.UserPreferences, error) {
		return o.deps.Preferences.Load(ctx, rc.UserID)
	})
	if err != nil {
		return err
	}
	if err := prefs.Validate(); err != nil {
		return &StageError{Kind: KindPreferences, Stage: StagePreferences, Err: err}
	}
	rc.Preferences = prefs.Clone()

	v0, err := invoke(ctx, StageGenerate, t.Generate, fixedKind(KindGeneration), func(ctx context.Context) (domain.Draft, error) {
		return o.deps.Generator.Generate(ctx, rc.Source, rc.Preferences.Clone(), nil)
	})
	if err != nil {
		return err
	}
	if v0.Version != 0 || v0.Text == "" {
		return &StageError{Kind: KindGeneration, Stage: StageGenerate,
			Err: fmt.Errorf("invalid first draft (version %d, %d chars)", v0.Version, v0.Chars)}
	}
	rc.Draft = v0
	rc.Versions = []domain.Draft{v0}
	log.Info("draft generated", "version", v0.Version, "chars", v0.Chars)

	res, err := o.loop.WithLogger(log).Run(ctx, v0, rc.Preferences.Clone())
	rc.applyLoop(res)
	if err != nil {
		return err
	}
	rc.Status = rc.outcome()
	if rc.Status == domain.StatusExhausted {
		log.Warn("refine budget exhausted, continuing with best effort",
			"max_iterations", o.cfg.MaxIterations, "final_version", rc.Draft.Version)
	}

	if err := o.image(ctx, rc, log); err != nil {
		return err
	}

	saved, err := invoke(ctx, StagePersist, t.Persist, fixedKind(KindPersistence), func(ctx context.Context) (domain.StoredPost, error) {
		return o.deps.Sink.Persist(ctx, rc.Record())
	})
	if err != nil {
		return err
	}
	rc.PostID = saved.ID
	rc.ImageRef = saved.ImageRef
	return nil
}

// image runs the image stage. Its own failures are absorbed into the run
// context; only cancellation of the run is returned.
func (o *Orchestrator) image(ctx context.Context, rc *RunContext, log *slog.Logger) error {
	final := rc.Draft
	art, err := invoke(ctx, StageImage, o.cfg.Timeouts.Image, fixedKind(KindImageGeneration), func(ctx context.Context) (domain.ImageArtifact, error) {
		return o.deps.Imager.CreateImage(ctx, final, rc.Preferences.Clone())
	})
	if err == nil {
		err = checkImage(art, final)
	}
	if err != nil {
		if KindOf(err) == KindCanceled {
			return err
		}
		rc.ImageErr = err
		log.Warn("image generation failed, persisting without image", "error", err)
		return nil
	}
	rc.Image = &art
	log.Info("image created", "ref", art.Ref, "bytes", len(art.Data))
	return nil
}

func checkImage(art domain.ImageArtifact, final domain.Draft) error {
	switch {
	case len(art.Data) == 0:
		return &StageError{Kind: KindImageGeneration, Stage: StageImage, Err: errors.New("image has no data")}
	case art.Width != domain.ImageWidth || art.Height != domain.ImageHeight:
		return &StageError{Kind: KindImageGeneration, Stage: StageImage,
			Err: fmt.Errorf("image is %dx%d, want %dx%d", art.Width, art.Height, domain.ImageWidth, domain.ImageHeight)}
	case art.DraftVersion != final.Version:
		return &StageError{Kind: KindImageGeneration, Stage: StageImage,
			Err: fmt.Errorf("image made for version %d, final is %d", art.DraftVersion, final.Version)}
	}
	return nil
}

func (o *Orchestrator) notify(ctx context.Context, res Result, log *slog.Logger) {
	if o.deps.Notifier == nil {
		return
	}
	nctx := context.WithoutCancel(ctx)
	if o.cfg.Timeouts.Notify > 0 {
		var cancel context.CancelFunc
		nctx, cancel = context.WithTimeout(nctx, o.cfg.Timeouts.Notify)
		defer cancel()
	}
	if err := o.deps.Notifier.Notify(nctx, res); err != nil {
		log.Warn("notify failed", "error", err)
	}
}
