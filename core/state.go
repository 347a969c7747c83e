package core

import "fmt"

// State is a step of the request state machine.
type State int

const (
	Received State = iota
	CacheCheck
	CacheHit
	SimilarityCheck
	Reuse
	Generate
	Parse
	Validate
	Retry
	Done
	Failed
)

var stateNames = [...]string{
	Received:        "Received",
	CacheCheck:      "CacheCheck",
	CacheHit:        "CacheHit",
	SimilarityCheck: "SimilarityCheck",
	Reuse:           "Reuse",
	Generate:        "Generate",
	Parse:           "Parse",
	Validate:        "Validate",
	Retry:           "Retry",
	Done:            "Done",
	Failed:          "Failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether the machine stops in s.
func (s State) Terminal() bool { return s == Done || s == Failed }

// StatePublisher is notified of every state the machine enters and of the
// error that sent it to Failed.
type StatePublisher interface {
	PublishState(state State)
	Error(state State, err error)
}

type DefaultStatePublisher struct{}

func (p *DefaultStatePublisher) PublishState(state State) {}

func (p *DefaultStatePublisher) Error(state State, err error) {}
