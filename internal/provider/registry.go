package provider

import (
	"fmt"

	"kirapay/internal/domain"
)

// Registry is a lookup table from payment method to provider client, built
// once at startup. Method dispatch never branches through a switch chain.
type Registry struct {
	clients map[domain.PaymentMethod]Client
}

func NewRegistry(clients ...Client) *Registry {
	m := make(map[domain.PaymentMethod]Client, len(clients))
	for _, c := range clients {
		m[c.Method()] = c
	}
	return &Registry{clients: m}
}

func (r *Registry) ForMethod(method domain.PaymentMethod) (Client, error) {
	c, ok := r.clients[method]
	if !ok {
		return nil, fmt.Errorf("no provider registered for method %q", method)
	}
	return c, nil
}
