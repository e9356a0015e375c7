package inject

import (
	"context"

	"go.uber.org/atomic"
)

// AudioPath is an injected audio path. Without injected funcs every activation succeeds.
type AudioPath struct {
	ActivateInternalFunc func(ctx context.Context) error
	ActivateExternalFunc func(ctx context.Context) error

	internalCalls atomic.Int64
	externalCalls atomic.Int64
}

// ActivateInternal calls the injected ActivateInternal.
func (p *AudioPath) ActivateInternal(ctx context.Context) error {
	p.internalCalls.Inc()
	if p.ActivateInternalFunc == nil {
		return nil
	}
	return p.ActivateInternalFunc(ctx)
}

// ActivateExternal calls the injected ActivateExternal.
func (p *AudioPath) ActivateExternal(ctx context.Context) error {
	p.externalCalls.Inc()
	if p.ActivateExternalFunc == nil {
		return nil
	}
	return p.ActivateExternalFunc(ctx)
}

// InternalCalls returns how many times ActivateInternal was called.
func (p *AudioPath) InternalCalls() int64 {
	return p.internalCalls.Load()
}

// ExternalCalls returns how many times ActivateExternal was called.
func (p *AudioPath) ExternalCalls() int64 {
	return p.externalCalls.Load()
}
