package agent

import "errors"

var (
	// ErrMaxTurns indicates a run exceeded its model-call limit.
	ErrMaxTurns = errors.New("max turns exceeded")

	// ErrNoProvider indicates no LLM provider is configured.
	ErrNoProvider = errors.New("no provider configured")

	// ErrEmptyInput indicates a run was started with nothing to answer.
	ErrEmptyInput = errors.New("empty input")

	// ErrToolNotFound indicates the model called a tool that is not offered.
	ErrToolNotFound = errors.New("tool not found")
)
