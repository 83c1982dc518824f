package repository

import (
	"fmt"
	"sync"
	"time"

	"github.com/mir00r/lb-simulator/internal/domain"
)

// InMemoryServerRepository is the ordered server registry of a simulation.
// Ids always form the contiguous sequence 1..Count().
type InMemoryServerRepository struct {
	mu             sync.RWMutex
	servers        []*domain.Server
	maxConnections int
}

// NewInMemoryServerRepository creates an empty registry; new servers get
// maxConnections as their informational capacity
func NewInMemoryServerRepository(maxConnections int) *InMemoryServerRepository {
	if maxConnections <= 0 {
		maxConnections = domain.DefaultMaxConnections
	}
	return &InMemoryServerRepository{
		maxConnections: maxConnections,
	}
}

// Add appends a new full-health server with id Count()+1 and returns it
func (r *InMemoryServerRepository) Add(now time.Time) *domain.Server {
	r.mu.Lock()
	defer r.mu.Unlock()

	server := domain.NewServer(len(r.servers)+1, r.maxConnections, now)
	r.servers = append(r.servers, server)
	return server
}

// RemoveLast removes the highest-id server and renumbers the rest.
// It returns the removed server's id before removal, or an error when only
// one server remains.
func (r *InMemoryServerRepository) RemoveLast() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.servers) <= 1 {
		return 0, fmt.Errorf("cannot remove the last server")
	}

	last := r.servers[len(r.servers)-1]
	r.servers[len(r.servers)-1] = nil
	r.servers = r.servers[:len(r.servers)-1]

	for i, server := range r.servers {
		server.Renumber(i + 1)
	}
	return last.ID, nil
}

// GetByID returns a server by its id
func (r *InMemoryServerRepository) GetByID(id int) (*domain.Server, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id < 1 || id > len(r.servers) {
		return nil, fmt.Errorf("server with ID %d not found", id)
	}
	return r.servers[id-1], nil
}

// GetAll returns all servers in registry order. The slice is a copy; the
// servers are shared.
func (r *InMemoryServerRepository) GetAll() []*domain.Server {
	r.mu.RLock()
	defer r.mu.RUnlock()

	servers := make([]*domain.Server, len(r.servers))
	copy(servers, r.servers)
	return servers
}

// GetOnline returns online servers in registry order
func (r *InMemoryServerRepository) GetOnline() []*domain.Server {
	return (&domain.OnlineServerFilter{}).Filter(r.GetAll())
}

// GetEligible returns servers a routing policy may select, in registry order
func (r *InMemoryServerRepository) GetEligible() []*domain.Server {
	return (&domain.EligibleServerFilter{}).Filter(r.GetAll())
}

// Count returns the total number of servers
func (r *InMemoryServerRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.servers)
}

// CountEligible returns the number of online servers with health >= 50
func (r *InMemoryServerRepository) CountEligible() int {
	return len(r.GetEligible())
}

// TotalConnections returns the sum of in-flight requests across all servers
func (r *InMemoryServerRepository) TotalConnections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, server := range r.servers {
		total += server.Connections
	}
	return total
}

// Contains reports whether server is still registered. Completions use it to
// detect servers removed while a request was in flight.
func (r *InMemoryServerRepository) Contains(server *domain.Server) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.servers {
		if s == server {
			return true
		}
	}
	return false
}

// GetStats returns repository statistics
func (r *InMemoryServerRepository) GetStats() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := map[string]interface{}{
		"total_servers":    len(r.servers),
		"online_servers":   0,
		"offline_servers":  0,
		"eligible_servers": 0,
	}

	for _, server := range r.servers {
		if server.IsOnline() {
			stats["online_servers"] = stats["online_servers"].(int) + 1
		} else {
			stats["offline_servers"] = stats["offline_servers"].(int) + 1
		}
		if server.IsEligible() {
			stats["eligible_servers"] = stats["eligible_servers"].(int) + 1
		}
	}
	return stats
}
