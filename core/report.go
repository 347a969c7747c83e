package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/santiagomed/scaff/llm"
	"github.com/santiagomed/scaff/parser"
	"github.com/santiagomed/scaff/tree"
	"github.com/santiagomed/scaff/validate"
)

// Category is the terminal error class of a failed request.
type Category string

const (
	CategoryTimeout         Category = "Timeout"
	CategoryRateLimited     Category = "RateLimited"
	CategoryAuthFailure     Category = "AuthFailure"
	CategoryUnknown         Category = "Unknown"
	CategoryParseError      Category = "ParseError"
	CategoryValidationError Category = "ValidationError"
	CategoryInvalidNode     Category = "InvalidNode"
	CategoryInvalidPrompt   Category = "InvalidPrompt"
	CategoryCanceled        Category = "Canceled"
)

// ErrEmptyPrompt is the cause of an InvalidPrompt failure.
var ErrEmptyPrompt = errors.New("prompt is empty")

// FailureReport is the only error GenerateStructure returns.
type FailureReport struct {
	Category Category
	Summary  string
	// Attempts counts LLM calls, Retries the attempts after the first.
	Attempts int
	Retries  int
	Elapsed  time.Duration
	Err      error
}

func (r *FailureReport) Error() string { return r.Summary }

func (r *FailureReport) Unwrap() error { return r.Err }

// Retryable reports whether the same request could succeed later.
func (r *FailureReport) Retryable() bool {
	switch r.Category {
	case CategoryAuthFailure, CategoryInvalidNode, CategoryInvalidPrompt, CategoryCanceled:
		return false
	}
	return true
}

func newFailureReport(prompt string, err error, attempts, retries int, elapsed time.Duration) *FailureReport {
	category := categorize(err)
	var summary string
	switch category {
	case CategoryInvalidPrompt:
		summary = fmt.Sprintf("invalid prompt: %v", err)
	case CategoryCanceled:
		summary = fmt.Sprintf("request for %q was canceled after %d attempt(s)", prompt, attempts)
	default:
		summary = fmt.Sprintf("could not generate a structure for %q after %d attempt(s): %s: %v",
			prompt, attempts, category, err)
	}
	return &FailureReport{
		Category: category,
		Summary:  summary,
		Attempts: attempts,
		Retries:  retries,
		Elapsed:  elapsed,
		Err:      err,
	}
}

func categorize(err error) Category {
	var (
		adapterErr *llm.AdapterError
		parseErr   *parser.ParseError
		validErr   *validate.ValidationError
		nodeErr    *tree.InvalidNodeError
	)
	switch {
	case errors.Is(err, ErrEmptyPrompt):
		return CategoryInvalidPrompt
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded) && !errors.As(err, &adapterErr):
		return CategoryCanceled
	case errors.As(err, &adapterErr):
		switch adapterErr.Kind {
		case llm.Timeout:
			return CategoryTimeout
		case llm.RateLimited:
			return CategoryRateLimited
		case llm.AuthFailure:
			return CategoryAuthFailure
		}
		return CategoryUnknown
	case errors.As(err, &parseErr):
		return CategoryParseError
	case errors.As(err, &validErr):
		return CategoryValidationError
	case errors.As(err, &nodeErr):
		return CategoryInvalidNode
	}
	return CategoryUnknown
}

// retryable reports whether a fresh Generate could fix err.
func retryable(err error) bool {
	switch categorize(err) {
	case CategoryAuthFailure, CategoryInvalidNode, CategoryInvalidPrompt, CategoryCanceled:
		return false
	}
	return true
}
