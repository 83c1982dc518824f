package domain

import (
	"fmt"
	"math"
	"time"
)

const (
	// MinHealth and MaxHealth bound every health value
	MinHealth = 0.0
	MaxHealth = 100.0

	// EligibleHealthThreshold is the minimum health a server needs to receive traffic
	EligibleHealthThreshold = 50.0

	// DefaultMaxConnections is the informational capacity given to new servers
	DefaultMaxConnections = 10

	// RestartHealth is the partial recovery value used by toggle-on and restart
	RestartHealth = 80.0

	// MaxRequestRate bounds the dispatch rate in requests per second
	MaxRequestRate = 1000

	// MinDispatchInterval is the shortest pause between two dispatches
	MinDispatchInterval = time.Millisecond
)

// ServerStatus represents whether a simulated server is switched on
type ServerStatus string

const (
	// StatusOnline indicates the server takes part in health ticks and routing
	StatusOnline ServerStatus = "online"
	// StatusOffline indicates the server is switched off; its health is frozen
	StatusOffline ServerStatus = "offline"
)

// String returns the string representation of ServerStatus
func (s ServerStatus) String() string {
	return string(s)
}

// HealthBand classifies a health value into one of four bands
type HealthBand string

const (
	BandExcellent HealthBand = "EXCELLENT"
	BandGood      HealthBand = "GOOD"
	BandWarning   HealthBand = "WARNING"
	BandCritical  HealthBand = "CRITICAL"
)

// BandFor returns the band a health value falls into
func BandFor(health float64) HealthBand {
	switch {
	case health >= 90:
		return BandExcellent
	case health >= 75:
		return BandGood
	case health >= 50:
		return BandWarning
	default:
		return BandCritical
	}
}

// Severity maps a band to the log severity used when reporting it
func (b HealthBand) Severity() Severity {
	switch b {
	case BandExcellent, BandGood:
		return SeveritySuccess
	case BandWarning:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// Class returns the lower-case display class of the band ("excellent", "good", ...)
func (b HealthBand) Class() string {
	switch b {
	case BandExcellent:
		return "excellent"
	case BandGood:
		return "good"
	case BandWarning:
		return "warning"
	default:
		return "critical"
	}
}

// Server represents one simulated backend.
//
// Server carries no locking of its own: every mutation happens while the
// owning simulator holds its mutex.
type Server struct {
	ID              int          `json:"id" yaml:"id"`
	Name            string       `json:"name" yaml:"name"`
	Connections     int          `json:"connections" yaml:"connections"`
	MaxConnections  int          `json:"max_connections" yaml:"max_connections"`
	Health          float64      `json:"health" yaml:"health"`
	Latency         float64      `json:"latency_ms" yaml:"latency_ms"`
	PacketLoss      float64      `json:"packet_loss" yaml:"packet_loss"`
	Status          ServerStatus `json:"status" yaml:"status"`
	LastHealthCheck time.Time    `json:"last_health_check" yaml:"last_health_check"`
}

// NewServer creates a fresh online server at full health
func NewServer(id, maxConnections int, now time.Time) *Server {
	if maxConnections <= 0 {
		maxConnections = DefaultMaxConnections
	}
	return &Server{
		ID:              id,
		Name:            ServerName(id),
		MaxConnections:  maxConnections,
		Health:          MaxHealth,
		Latency:         20,
		PacketLoss:      0,
		Status:          StatusOnline,
		LastHealthCheck: now,
	}
}

// ServerName returns the display label for a server id
func ServerName(id int) string {
	return fmt.Sprintf("Server %d", id)
}

// Renumber assigns a new id and keeps the name in sync
func (s *Server) Renumber(id int) {
	s.ID = id
	s.Name = ServerName(id)
}

// IsOnline returns true if the server is switched on
func (s *Server) IsOnline() bool {
	return s.Status == StatusOnline
}

// IsEligible returns true if the server may be selected by a routing policy
func (s *Server) IsEligible() bool {
	return s.IsOnline() && s.Health >= EligibleHealthThreshold
}

// Band returns the current health band
func (s *Server) Band() HealthBand {
	return BandFor(s.Health)
}

// SetHealth stores health clamped to [MinHealth, MaxHealth]
func (s *Server) SetHealth(health float64) {
	s.Health = ClampHealth(health)
}

// RecomputeMetrics derives latency and packet loss from health and load.
// Offline servers report zero latency and total packet loss.
func (s *Server) RecomputeMetrics() {
	if !s.IsOnline() {
		s.Latency = 0
		s.PacketLoss = 100
		return
	}
	s.Latency = 20 + (MaxHealth-s.Health)*2 + float64(s.Connections)*3
	s.PacketLoss = (MaxHealth-s.Health)*0.15 + float64(s.Connections)*0.1
}

// LoadPercentage returns connections relative to capacity, capped at 100
func (s *Server) LoadPercentage() float64 {
	if s.MaxConnections <= 0 {
		return 0
	}
	return math.Min(100, float64(s.Connections)/float64(s.MaxConnections)*100)
}

// AtCapacity returns true if the server has reached its informational capacity
func (s *Server) AtCapacity() bool {
	return s.MaxConnections > 0 && s.Connections >= s.MaxConnections
}

// Clone returns a value copy safe to hand outside the simulator lock
func (s *Server) Clone() Server {
	return *s
}

// ClampHealth bounds a health value to [MinHealth, MaxHealth]
func ClampHealth(health float64) float64 {
	return math.Max(MinHealth, math.Min(MaxHealth, health))
}

// Severity classifies an event log entry
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// LogEntry is one record of the event log
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
}

// SimulationConfig holds the runtime settings and counters of one simulation.
// It is owned by the simulator and only touched under its lock.
type SimulationConfig struct {
	Algorithm       Algorithm `json:"algorithm" yaml:"algorithm"`
	RequestRate     int       `json:"request_rate" yaml:"request_rate"`
	Running         bool      `json:"running" yaml:"running"`
	TotalRequests   int64     `json:"total_requests" yaml:"total_requests"`
	NextServerIndex int       `json:"next_server_index" yaml:"next_server_index"`
	EnforceCapacity bool      `json:"enforce_capacity" yaml:"enforce_capacity"`
}

// DispatchInterval returns the pause between two dispatches at the current
// rate, never shorter than MinDispatchInterval
func (c *SimulationConfig) DispatchInterval() time.Duration {
	if c.RequestRate <= 0 {
		return time.Second
	}
	interval := time.Second / time.Duration(c.RequestRate)
	if interval < MinDispatchInterval {
		return MinDispatchInterval
	}
	return interval
}

// ValidRequestRate reports whether rate lies in [1, MaxRequestRate]
func ValidRequestRate(rate int) bool {
	return rate > 0 && rate <= MaxRequestRate
}

// ServerView is a read-only server record enriched with display data
type ServerView struct {
	Server
	Band              HealthBand `json:"band"`
	HealthClass       string     `json:"health_class"`
	LoadPercentage    float64    `json:"load_percentage"`
	DistributionShare float64    `json:"distribution_share"`
}

// Stats summarizes the pool
type Stats struct {
	TotalRequests     int64     `json:"total_requests"`
	ActiveConnections int       `json:"active_connections"`
	HealthyServers    int       `json:"healthy_servers"`
	TotalServers      int       `json:"total_servers"`
	Algorithm         Algorithm `json:"algorithm"`
	RequestRate       int       `json:"request_rate"`
	Running           bool      `json:"running"`
}

// Snapshot is the complete read-only state handed to a presentation layer
type Snapshot struct {
	Servers   []ServerView `json:"servers"`
	Stats     Stats        `json:"stats"`
	Timestamp time.Time    `json:"timestamp"`
}
