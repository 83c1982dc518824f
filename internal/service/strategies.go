package service

import (
	"github.com/mir00r/lb-simulator/internal/domain"
)

// RoundRobinPolicy cycles through the eligible set. The cursor is normalized
// against the current eligible count on every call, so servers joining or
// leaving the set between calls can cause a skip or a repeat.
type RoundRobinPolicy struct{}

// NewRoundRobinPolicy creates a round-robin policy
func NewRoundRobinPolicy() *RoundRobinPolicy {
	return &RoundRobinPolicy{}
}

// Select picks eligible[cursor mod n] and advances the cursor modulo n
func (p *RoundRobinPolicy) Select(eligible []*domain.Server, cursor *int) *domain.Server {
	n := len(eligible)
	if n == 0 {
		return nil
	}

	index := normalize(*cursor, n)
	*cursor = (index + 1) % n
	return eligible[index]
}

// Name returns the algorithm name
func (p *RoundRobinPolicy) Name() domain.Algorithm {
	return domain.RoundRobin
}

// LeastConnectionsPolicy routes to the eligible server with the fewest
// in-flight requests; ties go to the earliest server in registry order
type LeastConnectionsPolicy struct{}

// NewLeastConnectionsPolicy creates a least-connections policy
func NewLeastConnectionsPolicy() *LeastConnectionsPolicy {
	return &LeastConnectionsPolicy{}
}

// Select picks the server with minimum connections. The cursor is untouched.
func (p *LeastConnectionsPolicy) Select(eligible []*domain.Server, _ *int) *domain.Server {
	var selected *domain.Server
	for _, server := range eligible {
		if selected == nil || server.Connections < selected.Connections {
			selected = server
		}
	}
	return selected
}

// Name returns the algorithm name
func (p *LeastConnectionsPolicy) Name() domain.Algorithm {
	return domain.LeastConnections
}

// Router resolves the policy for the configured algorithm
type Router struct {
	roundRobin       *RoundRobinPolicy
	leastConnections *LeastConnectionsPolicy
	filter           domain.ServerFilter
}

// NewRouter creates a router over the eligible-server filter
func NewRouter() *Router {
	return &Router{
		roundRobin:       NewRoundRobinPolicy(),
		leastConnections: NewLeastConnectionsPolicy(),
		filter:           &domain.EligibleServerFilter{},
	}
}

// PolicyFor returns the policy implementing algorithm. Unrecognized
// algorithms fall back to round robin.
func (r *Router) PolicyFor(algorithm domain.Algorithm) domain.RoutingPolicy {
	if algorithm == domain.LeastConnections {
		return r.leastConnections
	}
	return r.roundRobin
}

// Next selects a server from servers for the given configuration, advancing
// its round-robin cursor when applicable. Nil means no server is eligible.
func (r *Router) Next(servers []*domain.Server, config *domain.SimulationConfig) *domain.Server {
	eligible := r.filter.Filter(servers)
	return r.PolicyFor(config.Algorithm).Select(eligible, &config.NextServerIndex)
}

func normalize(cursor, n int) int {
	index := cursor % n
	if index < 0 {
		index += n
	}
	return index
}
