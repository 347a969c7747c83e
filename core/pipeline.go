package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/santiagomed/scaff/cache"
	"github.com/santiagomed/scaff/llm"
	"github.com/santiagomed/scaff/logger"
	"github.com/santiagomed/scaff/metrics"
	"github.com/santiagomed/scaff/parser"
	"github.com/santiagomed/scaff/similarity"
	"github.com/santiagomed/scaff/templates"
	"github.com/santiagomed/scaff/tree"
	"github.com/santiagomed/scaff/validate"
)

// Settings are the tunables of the orchestrator.
type Settings struct {
	SimilarityThreshold float64
	MaxRetries          int
	LLMTimeout          time.Duration
	MaxTreeDepth        int
	RequiredFiles       []string
	// RetryBackoff is the first wait before retrying a rate limited or timed
	// out call. Zero retries immediately.
	RetryBackoff time.Duration
	// Examples is how many related templates are shown to the model.
	Examples    int
	Model       string
	Temperature float32
	MaxTokens   int
	Preferences Preferences
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		SimilarityThreshold: similarity.DefaultThreshold,
		MaxRetries:          2,
		LLMTimeout:          60 * time.Second,
		MaxTreeDepth:        validate.DefaultMaxDepth,
		RetryBackoff:        500 * time.Millisecond,
		Examples:            2,
		Preferences:         DefaultPreferences(),
	}
}

func (s Settings) validate() error {
	switch {
	case s.SimilarityThreshold < 0 || s.SimilarityThreshold > 1:
		return fmt.Errorf("similarity threshold must be in [0,1], got %v", s.SimilarityThreshold)
	case s.MaxRetries < 0:
		return fmt.Errorf("max retries must be >= 0, got %d", s.MaxRetries)
	case s.LLMTimeout <= 0:
		return fmt.Errorf("LLM timeout must be > 0, got %s", s.LLMTimeout)
	case s.MaxTreeDepth <= 0:
		return fmt.Errorf("max tree depth must be > 0, got %d", s.MaxTreeDepth)
	case s.RetryBackoff < 0:
		return fmt.Errorf("retry backoff must be >= 0, got %s", s.RetryBackoff)
	}
	return nil
}

// Orchestrator turns prompts into validated project structures, reusing
// cached and template answers where it can. It is safe for concurrent use.
type Orchestrator struct {
	client    llm.Client
	cache     *cache.Cache
	templates *templates.Set
	matcher   *similarity.Matcher
	validator *validate.Validator
	settings  Settings

	publisher StatePublisher
	logger    logger.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

// Option configures optional collaborators.
type Option func(*Orchestrator)

func WithPublisher(p StatePublisher) Option { return func(o *Orchestrator) { o.publisher = p } }
func WithLogger(l logger.Logger) Option     { return func(o *Orchestrator) { o.logger = l } }
func WithMetrics(m *metrics.Metrics) Option { return func(o *Orchestrator) { o.metrics = m } }
func WithTracer(t trace.Tracer) Option      { return func(o *Orchestrator) { o.tracer = t } }

// NewOrchestrator wires the pipeline. set may be nil when no templates are
// available.
func NewOrchestrator(client llm.Client, store *cache.Cache, set *templates.Set, settings Settings, opts ...Option) (*Orchestrator, error) {
	if client == nil {
		return nil, errors.New("LLM client is required")
	}
	if store == nil {
		return nil, errors.New("cache is required")
	}
	if err := settings.validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	o := &Orchestrator{
		client:    client,
		cache:     store,
		templates: set,
		matcher:   similarity.NewMatcher(settings.SimilarityThreshold),
		validator: validate.New(settings.MaxTreeDepth, settings.RequiredFiles...),
		settings:  settings,
		publisher: &DefaultStatePublisher{},
		logger:    logger.NewNullLogger(),
		tracer:    otel.Tracer("github.com/santiagomed/scaff/core"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Normalize trims, lowercases and collapses whitespace.
func Normalize(prompt string) string {
	return strings.Join(strings.Fields(strings.ToLower(prompt)), " ")
}

// request is the state carried between steps of one GenerateStructure call.
type request struct {
	raw      string
	key      string
	start    time.Time
	attempts int
	retries  int
	lastErr  error
	backoff  *backoff.ExponentialBackOff

	llmPrompt string
	examples  []llm.Example
	response  string
	root      *tree.Node
	result    *tree.ProjectStructure
	report    *FailureReport
}

// GenerateStructure answers a prompt with a project structure. Any failure
// is returned as a *FailureReport and nothing is cached for it.
func (o *Orchestrator) GenerateStructure(ctx context.Context, prompt string) (*tree.ProjectStructure, error) {
	ctx, span := o.tracer.Start(ctx, "core.GenerateStructure")
	defer span.End()

	r := &request{raw: prompt, start: time.Now()}
	log := o.logger.WithField("request_id", uuid.NewString())
	log.Info("Starting structure generation")

	state := Received
	for {
		o.publisher.PublishState(state)
		span.AddEvent(state.String())
		if state.Terminal() {
			break
		}

		if err := ctx.Err(); err != nil {
			r.lastErr = err
			log.Info("Request cancelled")
			o.publisher.Error(state, err)
			state = Failed
			continue
		}

		startTime := time.Now()
		next := o.step(ctx, r, state)
		log.Debug(fmt.Sprintf("State %v completed in %v, transitioning to %v", state, time.Since(startTime), next))
		if next == Failed {
			o.publisher.Error(state, r.lastErr)
		}
		state = next
	}

	elapsed := time.Since(r.start)
	span.SetAttributes(attribute.Int("scaff.attempts", r.attempts), attribute.Int("scaff.retries", r.retries))

	if state == Failed {
		r.report = newFailureReport(r.key, r.lastErr, r.attempts, r.retries, elapsed)
		o.metrics.ObserveFailure(string(r.report.Category), elapsed)
		span.SetAttributes(attribute.String("scaff.failure", string(r.report.Category)))
		span.RecordError(r.lastErr)
		span.SetStatus(codes.Error, r.report.Summary)
		log.WithField("category", r.report.Category).Error(r.report.Summary)
		return nil, r.report
	}

	if r.result.Source != tree.CachedExact {
		o.cache.Store(r.key, r.result)
	}
	o.metrics.ObserveStructure(r.result.Source.String(), r.attempts, elapsed)
	o.metrics.SetCacheEntries(o.cache.Len())
	span.SetAttributes(attribute.String("scaff.source", r.result.Source.String()))
	log.WithField("source", r.result.Source.String()).Info(fmt.Sprintf("Structure ready in %v", elapsed))
	return r.result, nil
}

func (o *Orchestrator) step(ctx context.Context, r *request, state State) State {
	switch state {
	case Received:
		r.key = Normalize(r.raw)
		if r.key == "" {
			r.lastErr = ErrEmptyPrompt
			return Failed
		}
		return CacheCheck

	case CacheCheck:
		entry, ok := o.cache.Lookup(r.key)
		if !ok {
			return SimilarityCheck
		}
		r.result = entry.Structure.Reuse(r.key, tree.CachedExact, 1)
		return CacheHit

	case CacheHit:
		return Reuse

	case SimilarityCheck:
		return o.similarityCheck(r)

	case Reuse:
		return Done

	case Generate:
		return o.generate(ctx, r)

	case Parse:
		root, err := parser.Parse(r.response)
		if err != nil {
			r.lastErr = fmt.Errorf("parsing model response: %w", err)
			return Retry
		}
		r.root = root
		return Validate

	case Validate:
		o.settings.Preferences.Apply(r.root)
		ps := tree.NewProjectStructure(r.key, r.root, tree.Generated)
		if err := o.validator.Validate(ps); err != nil {
			r.lastErr = fmt.Errorf("validating parsed tree: %w", err)
			return Retry
		}
		if err := ps.Root.Check(); err != nil {
			r.lastErr = err
			return Failed
		}
		r.result = ps
		return Done

	case Retry:
		return o.retry(ctx, r)
	}

	r.lastErr = fmt.Errorf("no transition from state %v", state)
	return Failed
}

func (o *Orchestrator) similarityCheck(r *request) State {
	var candidates []similarity.Candidate
	for _, entry := range o.cache.Entries() {
		candidates = append(candidates, similarity.Candidate{
			Prompt:     entry.Key,
			Origin:     similarity.FromCache,
			AccessedAt: entry.LastAccess,
			Payload:    entry,
		})
	}
	var tmplCandidates []similarity.Candidate
	for _, t := range o.templates.All() {
		tmplCandidates = append(tmplCandidates, similarity.Candidate{
			Prompt:  t.Prompt(),
			Origin:  similarity.FromTemplate,
			Payload: t,
		})
	}
	candidates = append(candidates, tmplCandidates...)

	if match, ok := o.matcher.Best(r.key, candidates); ok {
		switch p := match.Payload.(type) {
		case cache.Entry:
			r.result = p.Structure.Reuse(r.key, tree.CachedSimilar, match.Score)
		case templates.Template:
			r.result = o.fromTemplate(r, p, match.Score)
		}
		if r.result != nil {
			o.logger.WithField("score", match.Score).Info(fmt.Sprintf("Reusing %s match %q", match.Origin, match.Prompt))
			return Reuse
		}
	}

	if o.settings.Examples <= 0 {
		return Generate
	}
	for _, m := range o.matcher.Rank(r.key, tmplCandidates, o.settings.Examples) {
		if m.Score == 0 {
			break
		}
		t := m.Payload.(templates.Template)
		r.examples = append(r.examples, llm.Example{
			Description: t.Description,
			TechStack:   t.TechStack,
			Tree:        tree.Serialize(t.Root),
		})
	}
	return Generate
}

// fromTemplate answers with a copy of t shaped by the preferences. A template
// that then fails validation is not reused.
func (o *Orchestrator) fromTemplate(r *request, t templates.Template, score float64) *tree.ProjectStructure {
	ps := t.Structure(r.key, score)
	o.settings.Preferences.Apply(ps.Root)
	if err := o.validator.Validate(ps); err != nil {
		o.logger.WithField("template", t.Name).Warn(fmt.Sprintf("Template rejected: %v", err))
		return nil
	}
	return ps
}

func (o *Orchestrator) generate(ctx context.Context, r *request) State {
	base := llm.StructurePrompt(r.key, o.settings.Preferences.Requirements(), r.examples)
	r.llmPrompt = base
	if r.lastErr != nil && !isAdapterError(r.lastErr) {
		r.llmPrompt = llm.ClarifyPrompt(base, r.lastErr)
	}

	r.attempts++
	startTime := time.Now()
	response, err := o.complete(ctx, r.llmPrompt)
	if ctx.Err() != nil {
		// The caller is gone; whatever came back is dropped.
		r.lastErr = ctx.Err()
		return Failed
	}
	if err != nil {
		o.metrics.ObserveLLMCall(llm.KindOf(err).String(), time.Since(startTime))
		r.lastErr = err
		o.logger.WithField("attempt", r.attempts).Warn(fmt.Sprintf("LLM call failed: %v", err))
		if llm.KindOf(err) == llm.AuthFailure {
			return Failed
		}
		return Retry
	}
	o.metrics.ObserveLLMCall("ok", time.Since(startTime))
	r.response = response
	return Parse
}

// complete bounds one LLM call by the configured timeout even when the
// client ignores its context.
func (o *Orchestrator) complete(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.settings.LLMTimeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := o.client.Complete(callCtx, llm.Request{
			Prompt:      prompt,
			Model:       o.settings.Model,
			Temperature: o.settings.Temperature,
			MaxTokens:   o.settings.MaxTokens,
		})
		done <- result{text, err}
	}()

	timeout := &llm.AdapterError{
		Kind: llm.Timeout,
		Err:  fmt.Errorf("no response within %s", o.settings.LLMTimeout),
	}
	select {
	case res := <-done:
		if res.err == nil {
			return res.text, nil
		}
		if isAdapterError(res.err) {
			return "", res.err
		}
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return "", timeout
		}
		return "", &llm.AdapterError{Kind: llm.Unknown, Err: res.err}
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", timeout
	}
}

func (o *Orchestrator) retry(ctx context.Context, r *request) State {
	if r.retries >= o.settings.MaxRetries || !retryable(r.lastErr) {
		return Failed
	}
	r.retries++

	kind := llm.KindOf(r.lastErr)
	if o.settings.RetryBackoff > 0 && isAdapterError(r.lastErr) && (kind == llm.RateLimited || kind == llm.Timeout) {
		if r.backoff == nil {
			r.backoff = backoff.NewExponentialBackOff()
			r.backoff.InitialInterval = o.settings.RetryBackoff
			r.backoff.MaxInterval = 30 * o.settings.RetryBackoff
		}
		wait := r.backoff.NextBackOff()
		o.logger.WithField("retry", r.retries).Info(fmt.Sprintf("Waiting %v before retrying", wait))
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			r.lastErr = ctx.Err()
			return Failed
		case <-timer.C:
		}
	}
	return Generate
}

func isAdapterError(err error) bool {
	var aerr *llm.AdapterError
	return errors.As(err, &aerr)
}
