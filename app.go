package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/postforge/postforge/config"
	"github.com/postforge/postforge/generator"
	"github.com/postforge/postforge/imagegen"
	"github.com/postforge/postforge/notify"
	"github.com/postforge/postforge/pipeline"
	"github.com/postforge/postforge/preferences"
	"github.com/postforge/postforge/resolver"
	"github.com/postforge/postforge/reviewer"
	"github.com/postforge/postforge/store"
)

// app is the wired set of components one process runs with.
type app struct {
	orch   *pipeline.Orchestrator
	sink   store.Sink
	images store.ImageStore
	prefs  preferences.Store
	db     *sql.DB

	// defaultPrefs mirrors cfg.Preferences.Fallback for the HTTP surface.
	defaultPrefs bool
}

func (a *app) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

func buildApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	llm, err := generator.NewLLM(ctx, cfg.LLMSettings())
	if err != nil {
		return nil, err
	}
	agent, err := generator.NewAgent(llm)
	if err != nil {
		return nil, err
	}

	review := reviewer.Chain{reviewer.NewRubric()}
	if cfg.LLM.Judge {
		judge, err := reviewer.NewJudge(llm)
		if err != nil {
			return nil, err
		}
		review = append(review, judge)
	}

	httpClient := &http.Client{Timeout: time.Duration(cfg.Pipeline.ExtractTimeout)}
	var ropts []resolver.Option
	if cfg.Pipeline.MaxSourceChars > 0 {
		ropts = append(ropts, resolver.WithMaxChars(cfg.Pipeline.MaxSourceChars))
	}
	res, err := resolver.New(resolver.NewHTTPExtractor(httpClient), ropts...)
	if err != nil {
		return nil, err
	}

	imager, err := buildImager(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Storage.Driver == "postgres" || cfg.Preferences.DSN != "" {
		dsn := cfg.Storage.DSN
		if dsn == "" {
			dsn = cfg.Preferences.DSN
		}
		if a.db, err = store.OpenPostgres(ctx, dsn); err != nil {
			return nil, err
		}
	}

	switch cfg.Images.Driver {
	case "s3":
		if a.images, err = store.NewS3ImageStore(cfg.S3Config()); err != nil {
			return nil, err
		}
	default:
		a.images = store.NewMemoryImageStore()
	}

	switch cfg.Storage.Driver {
	case "postgres":
		a.sink = store.NewPostgresSink(a.db, a.images)
	default:
		a.sink = store.NewMemorySink(a.images)
	}

	var prefs preferences.Store
	if a.db != nil {
		prefs = preferences.NewPostgresStore(a.db)
	} else {
		if prefs, err = preferences.OpenFileStore(cfg.Preferences.File); err != nil {
			return nil, err
		}
	}
	if cfg.Preferences.CacheSize > 0 {
		if prefs, err = preferences.NewCached(prefs, cfg.Preferences.CacheSize); err != nil {
			return nil, err
		}
	}
	a.prefs = prefs
	a.defaultPrefs = cfg.Preferences.Fallback
	var loader pipeline.PreferenceLoader = prefs
	if cfg.Preferences.Fallback {
		loader = preferences.Fallback{Store: prefs}
	}

	deps := pipeline.Deps{
		Resolver:    res,
		Preferences: loader,
		Generator:   agent,
		Reviewer:    review,
		Refiner:     agent,
		Imager:      imager,
		Sink:        a.sink,
		Logger:      logger,
	}
	if n := notify.NewSlackNotifier(cfg.Notify.SlackWebhookURL, nil); n != nil {
		n.PreviewURL = cfg.Notify.PreviewURL
		deps.Notifier = n
	}
	if a.orch, err = pipeline.New(deps, cfg.PipelineConfig()); err != nil {
		return nil, err
	}
	ok = true
	return a, nil
}

func buildImager(ctx context.Context, cfg config.Config) (pipeline.Imager, error) {
	switch cfg.Image.Provider {
	case "gemini":
		return imagegen.NewGeminiImager(ctx, cfg.Image.APIKey, cfg.Image.Model)
	case "mock":
		return imagegen.MockImager{}, nil
	}
	return nil, fmt.Errorf("image provider %s not supported", cfg.Image.Provider)
}

var errNoInput = errors.New("-input, -batch or -serve is required")
