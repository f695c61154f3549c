// Package worker runs the typed worker pools. Each pool consumes one
// broker queue, claims jobs through conditional catalog transitions, and
// drives a Processor for the job's action kind. Delivery is at least once;
// the claim transition is what makes duplicate deliveries harmless.
package worker

import (
	"context"
	"fmt"
	"io"

	"fileforge/internal/catalog"
)

// Request carries everything a processor needs for one job.
type Request struct {
	Job   *catalog.Job
	Input *catalog.File
	// Body is the pipeline's original input bytes. The processor must not
	// retain it past Process.
	Body io.Reader
	// Params are the job's merged parameters.
	Params map[string]string
}

// Result describes a successful processing outcome. Output may be nil for
// actions that only verify or annotate (virus scan with a clean verdict).
type Result struct {
	Output      []byte
	OutputName  string
	ContentType string
}

// Processor executes one or more action kinds.
type Processor interface {
	// Kinds lists the action kinds this processor handles.
	Kinds() []catalog.ActionKind

	// Process runs the action. Errors should be tagged with a services
	// sentinel so the runtime can classify them.
	Process(ctx context.Context, req Request) (*Result, error)
}

// Registry maps action kinds to their processors.
type Registry struct {
	processors map[catalog.ActionKind]Processor
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{processors: make(map[catalog.ActionKind]Processor)}
}

// Register adds a processor for every kind it declares. Registering a kind
// twice is a programming error.
func (r *Registry) Register(p Processor) error {
	for _, kind := range p.Kinds() {
		if _, exists := r.processors[kind]; exists {
			return fmt.Errorf("processor for %s already registered", kind)
		}
		r.processors[kind] = p
	}
	return nil
}

// Lookup returns the processor for a kind.
func (r *Registry) Lookup(kind catalog.ActionKind) (Processor, bool) {
	p, ok := r.processors[kind]
	return p, ok
}
