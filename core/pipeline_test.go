package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/santiagomed/scaff/cache"
	"github.com/santiagomed/scaff/llm"
	"github.com/santiagomed/scaff/templates"
	"github.com/santiagomed/scaff/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockLLM is a mock implementation of the LLM client
type MockLLM struct {
	mock.Mock
}

func (m *MockLLM) Complete(ctx context.Context, req llm.Request) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

type recordingPublisher struct {
	mu     sync.Mutex
	states []State
	errs   []error
}

func (p *recordingPublisher) PublishState(state State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, state)
}

func (p *recordingPublisher) Error(state State, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs = append(p.errs, err)
}

const pythonApp = "app/\n  main.py\n  requirements.txt\n"

func testSettings() Settings {
	s := DefaultSettings()
	s.MaxRetries = 1
	s.LLMTimeout = time.Second
	s.RetryBackoff = 0
	s.Examples = 0
	s.Preferences = Preferences{}
	return s
}

func newTestOrchestrator(t *testing.T, client llm.Client, store *cache.Cache, set *templates.Set, settings Settings, opts ...Option) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(client, store, set, settings, opts...)
	require.NoError(t, err)
	return o
}

func failure(t *testing.T, err error) *FailureReport {
	t.Helper()
	var report *FailureReport
	require.True(t, errors.As(err, &report), "expected FailureReport, got %v", err)
	return report
}

func TestGenerateStructureFromLLM(t *testing.T) {
	mockLLM := new(MockLLM)
	mockLLM.On("Complete", mock.Anything, mock.Anything).Return(pythonApp, nil).Once()
	store := cache.New(0, 0)
	pub := &recordingPublisher{}

	o := newTestOrchestrator(t, mockLLM, store, nil, testSettings(), WithPublisher(pub))
	ps, err := o.GenerateStructure(context.Background(), "  A Python   web app ")
	require.NoError(t, err)

	assert.Equal(t, tree.Generated, ps.Source)
	assert.Equal(t, "a python web app", ps.Prompt)
	assert.Equal(t, 3, tree.CountNodes(ps.Root))
	assert.Equal(t, pythonApp, tree.Serialize(ps.Root))
	assert.NotEmpty(t, ps.ID)

	_, ok := store.Lookup("a python web app")
	assert.True(t, ok)
	assert.Equal(t, []State{Received, CacheCheck, SimilarityCheck, Generate, Parse, Validate, Done}, pub.states)
	mockLLM.AssertExpectations(t)
}

func TestRepeatedPromptIsServedFromCache(t *testing.T) {
	mockLLM := new(MockLLM)
	mockLLM.On("Complete", mock.Anything, mock.Anything).Return(pythonApp, nil).Once()
	pub := &recordingPublisher{}
	o := newTestOrchestrator(t, mockLLM, cache.New(0, 0), nil, testSettings(), WithPublisher(pub))

	first, err := o.GenerateStructure(context.Background(), "a python web app")
	require.NoError(t, err)
	first.Root.Children = nil

	pub.states = nil
	second, err := o.GenerateStructure(context.Background(), "A PYTHON WEB APP")
	require.NoError(t, err)

	assert.Equal(t, tree.CachedExact, second.Source)
	assert.Equal(t, pythonApp, tree.Serialize(second.Root))
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, []State{Received, CacheCheck, CacheHit, Reuse, Done}, pub.states)
	mockLLM.AssertNumberOfCalls(t, "Complete", 1)
}

func TestMalformedResponsesExhaustRetries(t *testing.T) {
	bad := "app/\n  src/\n      main.py\n"
	isRetry := func(req llm.Request) bool { return strings.Contains(req.Prompt, "previous answer could not be used") }

	mockLLM := new(MockLLM)
	mockLLM.On("Complete", mock.Anything, mock.MatchedBy(func(req llm.Request) bool { return !isRetry(req) })).Return(bad, nil).Once()
	mockLLM.On("Complete", mock.Anything, mock.MatchedBy(isRetry)).Return(bad, nil).Once()
	store := cache.New(0, 0)
	pub := &recordingPublisher{}

	o := newTestOrchestrator(t, mockLLM, store, nil, testSettings(), WithPublisher(pub))
	ps, err := o.GenerateStructure(context.Background(), "a python web app")
	assert.Nil(t, ps)

	report := failure(t, err)
	assert.Equal(t, CategoryParseError, report.Category)
	assert.Equal(t, 2, report.Attempts)
	assert.Equal(t, 1, report.Retries)
	assert.Contains(t, report.Summary, "ParseError")
	assert.True(t, report.Retryable())
	assert.Equal(t, 0, store.Len())
	assert.Len(t, pub.errs, 1)
	mockLLM.AssertExpectations(t)
}

func TestSimilarPromptReusesCachedStructure(t *testing.T) {
	cached := "a python web app with flask sqlalchemy alembic pytest and docker"
	store := cache.New(0, 0)
	store.Store(cached, tree.NewProjectStructure(cached, tree.Dir("app", tree.FileNode("main.py")), tree.Generated))

	mockLLM := new(MockLLM)
	settings := testSettings()
	settings.SimilarityThreshold = 0.85
	o := newTestOrchestrator(t, mockLLM, store, nil, settings)

	ps, err := o.GenerateStructure(context.Background(), cached+" compose")
	require.NoError(t, err)
	assert.Equal(t, tree.CachedSimilar, ps.Source)
	assert.InDelta(t, 0.92, ps.Score, 0.01)
	assert.Equal(t, "app", ps.Root.Name)
	mockLLM.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)

	// The reused answer is now an exact hit for the new prompt.
	again, err := o.GenerateStructure(context.Background(), cached+" compose")
	require.NoError(t, err)
	assert.Equal(t, tree.CachedExact, again.Source)
}

func TestTemplateReuse(t *testing.T) {
	set, err := templates.Default()
	require.NoError(t, err)

	mockLLM := new(MockLLM)
	o := newTestOrchestrator(t, mockLLM, cache.New(0, 0), set, testSettings())

	ps, err := o.GenerateStructure(context.Background(), "Python Django REST API with PostgreSQL and Redis")
	require.NoError(t, err)
	assert.Equal(t, tree.Template, ps.Source)
	assert.Equal(t, "django-api", ps.Root.Name)
	mockLLM.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestTemplateReuseAppliesPreferences(t *testing.T) {
	set, err := templates.Default()
	require.NoError(t, err)

	settings := testSettings()
	settings.Preferences = Preferences{IncludeDocker: true, CustomFolders: []string{"scripts"}}
	mockLLM := new(MockLLM)
	store := cache.New(0, 0)
	o := newTestOrchestrator(t, mockLLM, store, set, settings)

	ps, err := o.GenerateStructure(context.Background(), "Python Django REST API with PostgreSQL and Redis")
	require.NoError(t, err)
	assert.Equal(t, tree.Template, ps.Source)
	for _, name := range []string{"manage.py", "scripts", "Dockerfile", "docker-compose.yml", ".dockerignore"} {
		assert.NotNil(t, ps.Root.Child(name), name)
	}

	again, err := o.GenerateStructure(context.Background(), "Python Django REST API with PostgreSQL and Redis")
	require.NoError(t, err)
	assert.Equal(t, tree.CachedExact, again.Source)
	assert.NotNil(t, again.Root.Child("Dockerfile"))

	tmpl, ok := set.Get("django-api")
	require.True(t, ok)
	assert.Nil(t, tmpl.Root.Child("Dockerfile"))
	mockLLM.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestTemplateFailingValidationIsNotReused(t *testing.T) {
	set, err := templates.Default()
	require.NoError(t, err)

	settings := testSettings()
	settings.RequiredFiles = []string{"main.py"}
	mockLLM := new(MockLLM)
	mockLLM.On("Complete", mock.Anything, mock.Anything).Return(pythonApp, nil).Once()
	o := newTestOrchestrator(t, mockLLM, cache.New(0, 0), set, settings)

	ps, err := o.GenerateStructure(context.Background(), "Python Django REST API with PostgreSQL and Redis")
	require.NoError(t, err)
	assert.Equal(t, tree.Generated, ps.Source)
	assert.Equal(t, "app", ps.Root.Name)
	mockLLM.AssertExpectations(t)
}

func TestRelatedTemplatesAreSentAsExamples(t *testing.T) {
	set, err := templates.Default()
	require.NoError(t, err)

	mockLLM := new(MockLLM)
	mockLLM.On("Complete", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return strings.Contains(req.Prompt, "django-api/") && !strings.Contains(req.Prompt, "fullstack-app/")
	})).Return("shop/\n  manage.py\n", nil).Once()

	settings := testSettings()
	settings.Examples = 1
	o := newTestOrchestrator(t, mockLLM, cache.New(0, 0), set, settings)

	ps, err := o.GenerateStructure(context.Background(), "a django shop")
	require.NoError(t, err)
	assert.Equal(t, tree.Generated, ps.Source)
	mockLLM.AssertExpectations(t)
}

func TestAuthFailureIsNotRetried(t *testing.T) {
	mockLLM := new(MockLLM)
	mockLLM.On("Complete", mock.Anything, mock.Anything).
		Return("", &llm.AdapterError{Kind: llm.AuthFailure, Provider: "openai", Err: errors.New("bad key")}).Once()

	settings := testSettings()
	settings.MaxRetries = 5
	o := newTestOrchestrator(t, mockLLM, cache.New(0, 0), nil, settings)

	_, err := o.GenerateStructure(context.Background(), "a python web app")
	report := failure(t, err)
	assert.Equal(t, CategoryAuthFailure, report.Category)
	assert.Equal(t, 1, report.Attempts)
	assert.False(t, report.Retryable())
	mockLLM.AssertExpectations(t)
}

func TestRateLimitedCallIsRetried(t *testing.T) {
	mockLLM := new(MockLLM)
	mockLLM.On("Complete", mock.Anything, mock.Anything).
		Return("", &llm.AdapterError{Kind: llm.RateLimited, Err: errors.New("slow down")}).Once()
	mockLLM.On("Complete", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return !strings.Contains(req.Prompt, "previous answer")
	})).Return(pythonApp, nil).Once()

	settings := testSettings()
	settings.RetryBackoff = time.Millisecond
	o := newTestOrchestrator(t, mockLLM, cache.New(0, 0), nil, settings)

	ps, err := o.GenerateStructure(context.Background(), "a python web app")
	require.NoError(t, err)
	assert.Equal(t, tree.Generated, ps.Source)
	mockLLM.AssertNumberOfCalls(t, "Complete", 2)
}

func TestAdapterFailuresExhaustRetries(t *testing.T) {
	mockLLM := new(MockLLM)
	mockLLM.On("Complete", mock.Anything, mock.Anything).Return("", errors.New("connection reset")).Times(3)

	settings := testSettings()
	settings.MaxRetries = 2
	o := newTestOrchestrator(t, mockLLM, cache.New(0, 0), nil, settings)

	_, err := o.GenerateStructure(context.Background(), "a python web app")
	report := failure(t, err)
	assert.Equal(t, CategoryUnknown, report.Category)
	assert.Equal(t, 3, report.Attempts)
	assert.Equal(t, 2, report.Retries)
	mockLLM.AssertExpectations(t)
}

func TestInvalidTreeIsRetried(t *testing.T) {
	mockLLM := new(MockLLM)
	mockLLM.On("Complete", mock.Anything, mock.Anything).Return("app/\n  main.py\n  main.py\n", nil).Once()
	mockLLM.On("Complete", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return strings.Contains(req.Prompt, "duplicate")
	})).Return(pythonApp, nil).Once()

	o := newTestOrchestrator(t, mockLLM, cache.New(0, 0), nil, testSettings())
	ps, err := o.GenerateStructure(context.Background(), "a python web app")
	require.NoError(t, err)
	assert.Equal(t, 3, tree.CountNodes(ps.Root))
	mockLLM.AssertExpectations(t)
}

func TestNullEntryInResponseIsRetried(t *testing.T) {
	nullChild := `{"name":"app","structure":[{"type":"file","name":"main.py"},null]}`
	mockLLM := new(MockLLM)
	mockLLM.On("Complete", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return !strings.Contains(req.Prompt, "previous answer could not be used")
	})).Return(nullChild, nil).Once()
	mockLLM.On("Complete", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return strings.Contains(req.Prompt, "null entry")
	})).Return(pythonApp, nil).Once()

	settings := testSettings()
	settings.Preferences = Preferences{IncludeDocker: true}
	settings.RequiredFiles = []string{"main.py"}
	o := newTestOrchestrator(t, mockLLM, cache.New(0, 0), nil, settings)

	var ps *tree.ProjectStructure
	var err error
	require.NotPanics(t, func() { ps, err = o.GenerateStructure(context.Background(), "a python web app") })
	require.NoError(t, err)
	assert.NotNil(t, ps.Root.Child("main.py"))
	assert.NotNil(t, ps.Root.Child("Dockerfile"))
	mockLLM.AssertExpectations(t)
}

func TestValidationFailureReport(t *testing.T) {
	mockLLM := new(MockLLM)
	mockLLM.On("Complete", mock.Anything, mock.Anything).Return("main.py\n", nil).Twice()
	store := cache.New(0, 0)

	o := newTestOrchestrator(t, mockLLM, store, nil, testSettings())
	_, err := o.GenerateStructure(context.Background(), "a python script")
	report := failure(t, err)
	assert.Equal(t, CategoryValidationError, report.Category)
	assert.Equal(t, 2, report.Attempts)
	assert.Equal(t, 0, store.Len())
}

func TestLLMTimeout(t *testing.T) {
	mockLLM := new(MockLLM)
	mockLLM.On("Complete", mock.Anything, mock.Anything).Return(pythonApp, nil).After(500 * time.Millisecond)

	settings := testSettings()
	settings.MaxRetries = 0
	settings.LLMTimeout = 20 * time.Millisecond
	o := newTestOrchestrator(t, mockLLM, cache.New(0, 0), nil, settings)

	_, err := o.GenerateStructure(context.Background(), "a python web app")
	report := failure(t, err)
	assert.Equal(t, CategoryTimeout, report.Category)
	assert.Equal(t, 1, report.Attempts)
}

func TestCanceledRequest(t *testing.T) {
	mockLLM := new(MockLLM)
	o := newTestOrchestrator(t, mockLLM, cache.New(0, 0), nil, testSettings())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := o.GenerateStructure(ctx, "a python web app")
	assert.Equal(t, CategoryCanceled, failure(t, err).Category)
	mockLLM.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestCanceledDuringCallDiscardsResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mockLLM := new(MockLLM)
	mockLLM.On("Complete", mock.Anything, mock.Anything).Run(func(mock.Arguments) { cancel() }).Return(pythonApp, nil).Once()
	store := cache.New(0, 0)
	o := newTestOrchestrator(t, mockLLM, store, nil, testSettings())

	ps, err := o.GenerateStructure(ctx, "a python web app")
	assert.Nil(t, ps)
	assert.Equal(t, CategoryCanceled, failure(t, err).Category)
	assert.Equal(t, 0, store.Len())
}

func TestEmptyPrompt(t *testing.T) {
	mockLLM := new(MockLLM)
	o := newTestOrchestrator(t, mockLLM, cache.New(0, 0), nil, testSettings())

	_, err := o.GenerateStructure(context.Background(), " \n\t ")
	report := failure(t, err)
	assert.Equal(t, CategoryInvalidPrompt, report.Category)
	assert.ErrorIs(t, err, ErrEmptyPrompt)
	assert.Equal(t, 0, report.Attempts)
}

func TestPreferencesAreApplied(t *testing.T) {
	mockLLM := new(MockLLM)
	mockLLM.On("Complete", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return strings.Contains(req.Prompt, "Include Docker support")
	})).Return(pythonApp, nil).Once()

	settings := testSettings()
	settings.Preferences = Preferences{IncludeDocker: true, CustomFolders: []string{"scripts"}}
	o := newTestOrchestrator(t, mockLLM, cache.New(0, 0), nil, settings)

	ps, err := o.GenerateStructure(context.Background(), "a python web app")
	require.NoError(t, err)
	for _, name := range []string{"main.py", "scripts", "Dockerfile", "docker-compose.yml", ".dockerignore"} {
		assert.NotNil(t, ps.Root.Child(name), name)
	}
}

func TestRequiredFilesAreEnforced(t *testing.T) {
	mockLLM := new(MockLLM)
	mockLLM.On("Complete", mock.Anything, mock.Anything).Return(pythonApp, nil).Twice()

	settings := testSettings()
	settings.RequiredFiles = []string{"README.md"}
	o := newTestOrchestrator(t, mockLLM, cache.New(0, 0), nil, settings)

	_, err := o.GenerateStructure(context.Background(), "a python web app")
	assert.Equal(t, CategoryValidationError, failure(t, err).Category)
}

func TestConcurrentRequests(t *testing.T) {
	mockLLM := new(MockLLM)
	mockLLM.On("Complete", mock.Anything, mock.Anything).Return(pythonApp, nil)
	o := newTestOrchestrator(t, mockLLM, cache.New(0, 0), nil, testSettings())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ps, err := o.GenerateStructure(context.Background(), "a python web app")
			if assert.NoError(t, err) {
				assert.Equal(t, 3, tree.CountNodes(ps.Root))
			}
		}()
	}
	wg.Wait()
}

func TestNewOrchestratorChecksSettings(t *testing.T) {
	mockLLM := new(MockLLM)
	store := cache.New(0, 0)

	bad := []func(*Settings){
		func(s *Settings) { s.SimilarityThreshold = 1.5 },
		func(s *Settings) { s.MaxRetries = -1 },
		func(s *Settings) { s.LLMTimeout = 0 },
		func(s *Settings) { s.MaxTreeDepth = 0 },
	}
	for _, mutate := range bad {
		s := testSettings()
		mutate(&s)
		_, err := NewOrchestrator(mockLLM, store, nil, s)
		assert.Error(t, err)
	}

	_, err := NewOrchestrator(nil, store, nil, testSettings())
	assert.Error(t, err)
	_, err = NewOrchestrator(mockLLM, nil, nil, testSettings())
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "a python web app", Normalize("  A\tPython \n web   APP "))
	assert.Equal(t, "", Normalize(" \n "))
}
