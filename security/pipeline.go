package security

import (
	"context"
	"errors"
)

// Gate inspects a request. It returns nil to pass it on or a *Failure to stop
// it. Any other error is treated as an internal failure.
type Gate interface {
	Check(ctx context.Context, req *Request) error
}

// GateFunc adapts a function to Gate.
type GateFunc func(ctx context.Context, req *Request) error

func (f GateFunc) Check(ctx context.Context, req *Request) error { return f(ctx, req) }

// Pipeline runs gates in order and stops at the first failure.
type Pipeline struct {
	gates []Gate
}

// NewPipeline builds a pipeline. Nil gates are skipped.
func NewPipeline(gates ...Gate) *Pipeline {
	p := &Pipeline{}
	for _, g := range gates {
		if g != nil {
			p.gates = append(p.gates, g)
		}
	}
	return p
}

// Len reports the number of gates.
func (p *Pipeline) Len() int { return len(p.gates) }

// Run evaluates the chain and returns the first failure, or nil when every
// gate passed. Errors that are not a *Failure become INTERNAL_ERROR.
func (p *Pipeline) Run(ctx context.Context, req *Request) *Failure {
	if req == nil {
		return &Failure{Code: CodeInternalError, Message: "empty request"}
	}
	for _, g := range p.gates {
		err := g.Check(ctx, req)
		if err == nil {
			continue
		}
		var f *Failure
		if errors.As(err, &f) {
			return f
		}
		return &Failure{Code: CodeInternalError, Message: "request could not be screened"}
	}
	return nil
}
