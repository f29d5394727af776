package cmd

import (
	"fmt"
	"net/http"
	"time"

	"github.com/Mickaeljc/app-bofip/internal/ai"
	"github.com/Mickaeljc/app-bofip/internal/answer"
	"github.com/Mickaeljc/app-bofip/internal/config"
	"github.com/Mickaeljc/app-bofip/internal/fetch"
	"github.com/Mickaeljc/app-bofip/internal/history"
	"github.com/Mickaeljc/app-bofip/internal/kb"
	"github.com/Mickaeljc/app-bofip/internal/pipeline"
	"github.com/Mickaeljc/app-bofip/internal/store"
	"go.uber.org/zap"
)

// app is everything one command needs, built from the config.
type app struct {
	cfg      *config.Config
	store    *store.Store
	pipeline *pipeline.Pipeline
	history  *history.DB
	build    kb.Options
}

func loadApp() (*app, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return newApp(cfg)
}

func newApp(cfg *config.Config) (*app, error) {
	tmpl, err := kb.ParseTemplate(cfg.Knowledge.Template)
	if err != nil {
		return nil, err
	}

	names := store.FieldNames{
		Title:       cfg.Fields.Title,
		Description: cfg.Fields.Description,
		Subject:     cfg.Fields.Subject,
	}
	st := store.New(cfg.CachePath(), names)
	fetcher := fetch.New(&http.Client{Timeout: cfg.FetchTimeout()}, names, logger.Named("fetch"))

	opts := pipeline.Options{
		Request: fetch.Request{
			Endpoint: cfg.Endpoint(),
			Filters:  cfg.API.Filters,
			Select:   cfg.API.Select,
			Lang:     cfg.API.Lang,
			PageSize: cfg.API.PageSize,
			MaxPages: cfg.API.MaxPages,
		},
		Build: kb.Options{
			Keywords:  cfg.Knowledge.Keywords,
			Filter:    cfg.Knowledge.Filter,
			Template:  tmpl,
			StripHTML: cfg.Knowledge.StripHTML,
		},
		PersistPartial: cfg.Cache.PersistPartial,
	}

	a := &app{
		cfg:      cfg,
		store:    st,
		build:    opts.Build,
		pipeline: pipeline.New(st, fetcher, opts, logger.Named("pipeline")),
	}

	if cfg.History.Enabled {
		db, err := history.Open(config.HistoryPath())
		if err != nil {
			// History is optional; answering works without it.
			logger.Warn("history disabled", zap.Error(err))
		} else {
			a.history = db
			a.pipeline.WithRecorder(db)
		}
	}
	return a, nil
}

// answerer builds the inference engine. A missing or invalid AI config
// leaves the answerer without an engine: sentinel replies still work and
// real questions report the problem.
func (a *app) answerer() *answer.Answerer {
	engine, err := ai.New(a.cfg.AI, a.cfg.AIKey())
	if err != nil {
		logger.Warn("no answering engine", zap.Error(err))
		return answer.New(nil)
	}
	return answer.New(engine)
}

func (a *app) answerTimeout() time.Duration {
	if a.cfg.AI == nil {
		return 0
	}
	return a.cfg.AI.RequestTimeout()
}

// recorder returns the answer log, or nil when history is off.
func (a *app) recorder() pipeline.AnswerRecorder {
	if a.history == nil {
		return nil
	}
	return a.history
}

func (a *app) Close() error {
	if a.history != nil {
		return a.history.Close()
	}
	return nil
}
