package domain

import (
	"strings"
)

// Algorithm names a routing policy
type Algorithm string

const (
	// RoundRobin cycles through eligible servers in registry order
	RoundRobin Algorithm = "roundRobin"
	// LeastConnections routes to the eligible server with fewest in-flight requests
	LeastConnections Algorithm = "leastConnections"
)

// String returns the string representation of Algorithm
func (a Algorithm) String() string {
	return string(a)
}

// IsKnown returns true for algorithms with a dedicated policy
func (a Algorithm) IsKnown() bool {
	return a == RoundRobin || a == LeastConnections
}

// ParseAlgorithm normalizes common spellings ("least_connections",
// "least-connections", "LeastConnections") to the canonical names. Unrecognized
// names are returned unchanged; routing treats them as round robin.
func ParseAlgorithm(name string) Algorithm {
	key := strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(name))
	switch key {
	case "roundrobin", "rr":
		return RoundRobin
	case "leastconnections", "leastconn", "lc":
		return LeastConnections
	default:
		return Algorithm(name)
	}
}

// AvailableAlgorithms returns all algorithms with a dedicated policy
func AvailableAlgorithms() []Algorithm {
	return []Algorithm{RoundRobin, LeastConnections}
}

// RoutingPolicy selects the next server from an eligible set.
// A nil result means no server is available, which is a valid outcome.
type RoutingPolicy interface {
	// Select picks a server from eligible; cursor is the round-robin state and
	// may be advanced by the policy
	Select(eligible []*Server, cursor *int) *Server

	// Name returns the algorithm implemented by the policy
	Name() Algorithm
}

// ServerFilter narrows a server list
type ServerFilter interface {
	Filter(servers []*Server) []*Server
	Name() string
}

// EligibleServerFilter keeps online servers with health at or above the threshold,
// preserving registry order
type EligibleServerFilter struct{}

func (f *EligibleServerFilter) Filter(servers []*Server) []*Server {
	var eligible []*Server
	for _, server := range servers {
		if server.IsEligible() {
			eligible = append(eligible, server)
		}
	}
	return eligible
}

func (f *EligibleServerFilter) Name() string {
	return "eligible_servers"
}

// OnlineServerFilter keeps online servers regardless of health
type OnlineServerFilter struct{}

func (f *OnlineServerFilter) Filter(servers []*Server) []*Server {
	var online []*Server
	for _, server := range servers {
		if server.IsOnline() {
			online = append(online, server)
		}
	}
	return online
}

func (f *OnlineServerFilter) Name() string {
	return "online_servers"
}
