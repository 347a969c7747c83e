package cli

import (
	"fmt"

	"github.com/santiagomed/scaff/core"
	"github.com/santiagomed/scaff/logger"
)

type stateError struct {
	state core.State
	err   error
}

// CliStatePublisher forwards orchestrator states to the progress view.
type CliStatePublisher struct {
	stateChan chan core.State
	errorChan chan stateError
	logger    logger.Logger
}

func NewCliStatePublisher(logger logger.Logger) *CliStatePublisher {
	return &CliStatePublisher{
		stateChan: make(chan core.State, 100),
		errorChan: make(chan stateError, 10),
		logger:    logger,
	}
}

func (p *CliStatePublisher) PublishState(state core.State) {
	select {
	case p.stateChan <- state:
		p.logger.Debug(fmt.Sprintf("Published state: %v", state))
	default:
		p.logger.Warn(fmt.Sprintf("Failed to publish state: %v. Channel full.", state))
	}
}

func (p *CliStatePublisher) Error(state core.State, err error) {
	select {
	case p.errorChan <- stateError{state: state, err: err}:
		p.logger.Debug(fmt.Sprintf("Published error for state: %v", state))
	default:
		p.logger.Warn(fmt.Sprintf("Failed to publish error for state: %v. Channel full.", state))
	}
}
