package server

import "context"

// funcPinger adapts a ping function to the Pinger interface.
type funcPinger struct {
	// name identifies the dependency in readiness responses.
	name string
	// ping probes the dependency.
	ping func(ctx context.Context) error
}

// NewPinger returns a Pinger named name that calls ping. It lets any
// component with a Ping(ctx) method (the chat service, the session store,
// the vector store's embedder) join the readiness probe list.
func NewPinger(name string, ping func(ctx context.Context) error) Pinger {
	return &funcPinger{name: name, ping: ping}
}

// Name returns the dependency label used in readiness responses.
func (p *funcPinger) Name() string { return p.name }

// Ping runs the probe.
func (p *funcPinger) Ping(ctx context.Context) error { return p.ping(ctx) }
