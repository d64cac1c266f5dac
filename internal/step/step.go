// Package step implements the pipeline step handlers and the dispatcher
// that routes a step definition to the handler for its (type, subtype).
package step

import (
	"context"

	"declpipe/internal/config"
	"declpipe/internal/dataset"
	"declpipe/internal/errs"
)

// Handler executes one step against the dataset registry. It returns the
// number of rows the step produced (or wrote, for loads) so the runner can
// record row metrics.
type Handler interface {
	Run(ctx context.Context, def config.StepDefinition, reg *dataset.Registry) (int64, error)
}

type key struct {
	typ config.StepType
	sub string
}

// Dispatcher holds the closed handler table. The set of supported
// (type, subtype) pairs is fixed at construction; anything else is an
// unsupported-step-type failure, which the failure policy then handles.
type Dispatcher struct {
	handlers map[key]Handler
}

// NewDispatcher builds the dispatcher with every built-in handler wired.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: map[key]Handler{
		{config.StepExtract, ""}:                        &Extractor{},
		{config.StepTransform, config.SubtypeJoin}:      &Join{},
		{config.StepTransform, config.SubtypeFilter}:    &Filter{},
		{config.StepTransform, config.SubtypeDedup}:     &Dedup{},
		{config.StepTransform, config.SubtypeNormalize}: &Normalize{},
		{config.StepValidate, ""}:                       &Validator{},
		{config.StepLoad, ""}:                           &Loader{},
	}}
}

// Dispatch resolves the handler for a step definition.
func (d *Dispatcher) Dispatch(def config.StepDefinition) (Handler, error) {
	h, ok := d.handlers[key{def.Type, def.Subtype}]
	if !ok {
		return nil, errs.New(errs.KindUnsupportedStepType, "no handler for step type %q subtype %q", def.Type, def.Subtype)
	}
	return h, nil
}
