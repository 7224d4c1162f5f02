package transport

import "context"

// NoAuth forwards over plain HTTP(S) with no client credentials.
type NoAuth struct {
	clients ClientFactory
}

// NewNoAuth creates the no-auth strategy.
func NewNoAuth(clients ClientFactory) *NoAuth {
	return &NoAuth{clients: clients}
}

func (s *NoAuth) Name() string    { return NameNoAuth }
func (s *NoAuth) Validate() error { return nil }

// Execute returns a client without credentials.
func (s *NoAuth) Execute(ctx context.Context, req *Request) Result {
	return Result{Strategy: NameNoAuth, Client: s.clients(nil)}
}

var _ Strategy = (*NoAuth)(nil)
