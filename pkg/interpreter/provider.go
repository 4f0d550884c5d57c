package interpreter

import (
	"context"
	"sync"
	"sync/atomic"
)

// Provider hands out the process's single Interpreter, booting it on first
// use. Concurrent first calls share one boot.
type Provider struct {
	opts Options

	mu     sync.Mutex
	interp atomic.Pointer[Interpreter]
}

// NewProvider returns a provider that boots an interpreter with opts.
func NewProvider(opts Options) *Provider {
	return &Provider{opts: opts}
}

// Get returns the interpreter, creating it if needed. A failed boot is not
// cached; the next call tries again.
func (p *Provider) Get(ctx context.Context) (*Interpreter, error) {
	if i := p.interp.Load(); i != nil {
		return i, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if i := p.interp.Load(); i != nil {
		return i, nil
	}
	i, err := New(ctx, p.opts)
	if err != nil {
		return nil, err
	}
	p.interp.Store(i)
	return i, nil
}

// Close closes the interpreter if one was created. A later Get boots a new
// one.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.interp.Swap(nil)
	if i == nil {
		return nil
	}
	return i.Close()
}
