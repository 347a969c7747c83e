package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/santiagomed/scaff/cache"
	"github.com/santiagomed/scaff/config"
	"github.com/santiagomed/scaff/core"
	"github.com/santiagomed/scaff/llm"
	"github.com/santiagomed/scaff/logger"
	"github.com/santiagomed/scaff/metrics"
	"github.com/santiagomed/scaff/templates"
)

// app holds everything a command needs to answer prompts.
type app struct {
	cfg          *config.Config
	logger       logger.Logger
	registry     *prometheus.Registry
	templates    *templates.Set
	orchestrator *core.Orchestrator
}

// openLogger logs to stderr when toStderr is set, otherwise to the configured
// log file so the progress view stays clean.
func openLogger(cfg *config.Config, toStderr bool) (logger.Logger, io.Closer, error) {
	if toStderr {
		l, err := logger.New(os.Stderr, cfg.LogLevel)
		return l, io.NopCloser(nil), err
	}
	path := cfg.LogFile
	if path == "" {
		p, err := logger.DefaultLogPath()
		if err != nil {
			return nil, nil, err
		}
		path = p
	}
	return logger.NewFile(path, cfg.LogLevel)
}

func loadTemplates(cfg *config.Config) (*templates.Set, error) {
	if cfg.TemplatesDir != "" {
		return templates.LoadDir(cfg.TemplatesDir)
	}
	return templates.Default()
}

// newApp wires the LLM client, cache, templates and metrics into an
// orchestrator. pub may be nil.
func newApp(cfg *config.Config, log logger.Logger, pub core.StatePublisher) (*app, error) {
	set, err := loadTemplates(cfg)
	if err != nil {
		return nil, fmt.Errorf("error loading templates: %w", err)
	}

	client, err := llm.NewClient(cfg.LlmConfig(), log)
	if err != nil {
		return nil, fmt.Errorf("error creating LLM client: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := []core.Option{
		core.WithLogger(log),
		core.WithMetrics(metrics.New(registry)),
	}
	if pub != nil {
		opts = append(opts, core.WithPublisher(pub))
	}

	store := cache.New(cfg.CacheMaxEntries, cfg.CacheTTL)
	orch, err := core.NewOrchestrator(client, store, set, cfg.Settings(), opts...)
	if err != nil {
		return nil, err
	}

	log.Debug(fmt.Sprintf("Initialized %s provider with model %s and %d templates", cfg.Provider, cfg.ModelName, set.Len()))
	return &app{
		cfg:          cfg,
		logger:       log,
		registry:     registry,
		templates:    set,
		orchestrator: orch,
	}, nil
}
