package breaker

import (
	"fmt"
	"log/slog"
)

// Registry owns the breaker instances, one per provider name. It is built
// once at startup and handed to whoever executes provider calls; nothing in
// the codebase reaches for a breaker by global name.
type Registry struct {
	breakers map[string]*Breaker
}

func NewRegistry() *Registry {
	return &Registry{breakers: make(map[string]*Breaker)}
}

func (r *Registry) Register(name string, settings Settings, logger *slog.Logger) *Breaker {
	b := New(name, settings, logger)
	r.breakers[name] = b
	return b
}

func (r *Registry) Get(name string) (*Breaker, error) {
	b, ok := r.breakers[name]
	if !ok {
		return nil, fmt.Errorf("no circuit breaker registered for provider %q", name)
	}
	return b, nil
}
