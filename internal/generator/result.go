// Package generator is the boundary to the remote image model. Whatever the
// service returns is converted here into a Result so callers never inspect
// untyped response structure.
package generator

import (
	"context"
	"errors"
)

// Outcome tags a Result.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeEmpty   Outcome = "empty"
	OutcomeFailure Outcome = "failure"
)

// Result is Success(payload), Empty or Failure(reason).
type Result struct {
	Outcome Outcome
	// Payload is an encoded image (a data URI) and is set only on success.
	Payload string
	// Err explains a failure.
	Err error
}

// Success wraps a usable payload. An empty payload is reported as Empty.
func Success(payload string) Result {
	if payload == "" {
		return Empty()
	}
	return Result{Outcome: OutcomeSuccess, Payload: payload}
}

// Empty reports a response that carried no usable image.
func Empty() Result {
	return Result{Outcome: OutcomeEmpty}
}

// Failure reports a transport or service error.
func Failure(err error) Result {
	if err == nil {
		err = errors.New("generator: unspecified failure")
	}
	return Result{Outcome: OutcomeFailure, Err: err}
}

// OK reports whether the result carries a payload worth caching.
func (r Result) OK() bool {
	return r.Outcome == OutcomeSuccess && r.Payload != ""
}

// Request describes one icon to generate.
type Request struct {
	ItemID string
	Prompt string
}

// Generator produces an encoded image for a prompt.
type Generator interface {
	Generate(ctx context.Context, req Request) Result
}

// Func adapts a plain function to Generator.
type Func func(ctx context.Context, req Request) Result

func (f Func) Generate(ctx context.Context, req Request) Result {
	return f(ctx, req)
}

// ErrUnavailable is returned by the Unavailable generator.
var ErrUnavailable = errors.New("generator: remote generation not configured")

// Unavailable fails every request. It keeps the service usable without
// credentials: items simply render with placeholders.
type Unavailable struct{}

func (Unavailable) Generate(context.Context, Request) Result {
	return Failure(ErrUnavailable)
}
