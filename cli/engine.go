package cli

import (
	"context"
	"sync"
	"time"

	"github.com/santiagomed/scaff/logger"
	"github.com/santiagomed/scaff/server"
	"github.com/santiagomed/scaff/tree"
)

// Result is the outcome of one queued prompt.
type Result struct {
	Structure *tree.ProjectStructure
	Err       error
}

type ExecutionRequest struct {
	Prompt     string
	ResultChan chan Result
	CreatedAt  time.Time
}

// Engine runs queued prompts through a generator on a fixed pool of workers.
type Engine struct {
	gen          server.Generator
	logger       logger.Logger
	requests     chan ExecutionRequest
	workers      int
	workerWG     sync.WaitGroup
	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

func NewEngine(gen server.Generator, l logger.Logger, workers int) *Engine {
	if l == nil {
		l = logger.NewNullLogger()
	}
	if workers < 1 {
		workers = 1
	}
	return &Engine{
		gen:          gen,
		logger:       l,
		requests:     make(chan ExecutionRequest, 100),
		workers:      workers,
		shutdownChan: make(chan struct{}),
	}
}

func (e *Engine) Start(ctx context.Context) {
	for i := 0; i < e.workers; i++ {
		e.workerWG.Add(1)
		go e.worker(ctx)
	}
}

func (e *Engine) worker(ctx context.Context) {
	defer e.workerWG.Done()
	for {
		select {
		case req := <-e.requests:
			e.logger.Debug("Worker picked up request queued " + time.Since(req.CreatedAt).String() + " ago")
			ps, err := e.gen.GenerateStructure(ctx, req.Prompt)
			req.ResultChan <- Result{Structure: ps, Err: err}
			close(req.ResultChan)
		case <-ctx.Done():
			return
		case <-e.shutdownChan:
			return
		}
	}
}

// AddRequest queues prompt; the returned channel receives exactly one Result.
func (e *Engine) AddRequest(prompt string) chan Result {
	resultChan := make(chan Result, 1)
	e.requests <- ExecutionRequest{
		Prompt:     prompt,
		ResultChan: resultChan,
		CreatedAt:  time.Now(),
	}
	return resultChan
}

func (e *Engine) Shutdown(timeout time.Duration) {
	e.shutdownOnce.Do(func() { close(e.shutdownChan) })

	done := make(chan struct{})
	go func() {
		e.workerWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info("All workers shut down gracefully")
	case <-time.After(timeout):
		e.logger.Warn("Shutdown timed out, some workers may still be running")
	}
}
