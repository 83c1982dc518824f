// Package eventlog keeps the capped, newest-first record of notable simulation
// events that a presentation layer polls or subscribes to.
package eventlog

import (
	"sync"

	"github.com/mir00r/lb-simulator/internal/clock"
	"github.com/mir00r/lb-simulator/internal/domain"
	"github.com/mir00r/lb-simulator/pkg/logger"
)

// DefaultCapacity is the number of entries kept before the oldest is evicted
const DefaultCapacity = 100

// subscriberBuffer is the channel size given to each subscriber
const subscriberBuffer = 32

// Subscriber receives every entry appended after it subscribed
type Subscriber chan domain.LogEntry

// Log is an append-only bounded buffer of log entries
type Log struct {
	mu       sync.RWMutex
	entries  []domain.LogEntry // oldest first
	capacity int
	clock    clock.Clock
	logger   *logger.Logger

	subscribersMu sync.RWMutex
	subscribers   map[Subscriber]struct{}
	dropped       uint64
}

// New creates an event log. A non-positive capacity falls back to DefaultCapacity.
func New(capacity int, clk clock.Clock, log *logger.Logger) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Log{
		entries:     make([]domain.LogEntry, 0, capacity),
		capacity:    capacity,
		clock:       clk,
		logger:      log.EventLogLogger(),
		subscribers: make(map[Subscriber]struct{}),
	}
}

// Append records a new entry, evicting the oldest one when over capacity
func (l *Log) Append(message string, severity domain.Severity) domain.LogEntry {
	entry := domain.LogEntry{
		Timestamp: l.clock.Now(),
		Message:   message,
		Severity:  severity,
	}

	l.mu.Lock()
	if len(l.entries) >= l.capacity {
		copy(l.entries, l.entries[1:])
		l.entries = l.entries[:len(l.entries)-1]
	}
	l.entries = append(l.entries, entry)
	l.mu.Unlock()

	l.logger.WithField("severity", string(severity)).Debug(message)
	l.publish(entry)
	return entry
}

// Snapshot returns a copy of the entries, newest first
func (l *Log) Snapshot() []domain.LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]domain.LogEntry, len(l.entries))
	for i, entry := range l.entries {
		result[len(l.entries)-1-i] = entry
	}
	return result
}

// Len returns the number of stored entries
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Clear empties the log and records a "Log cleared" warning, so the log is
// never empty right after a clear
func (l *Log) Clear() {
	l.mu.Lock()
	l.entries = l.entries[:0]
	l.mu.Unlock()

	l.Append("Log cleared", domain.SeverityWarning)
}

// Subscribe registers a new subscriber channel
func (l *Log) Subscribe() Subscriber {
	l.subscribersMu.Lock()
	defer l.subscribersMu.Unlock()

	subscriber := make(Subscriber, subscriberBuffer)
	l.subscribers[subscriber] = struct{}{}
	return subscriber
}

// Unsubscribe removes and closes a subscriber
func (l *Log) Unsubscribe(subscriber Subscriber) {
	l.subscribersMu.Lock()
	defer l.subscribersMu.Unlock()

	if _, exists := l.subscribers[subscriber]; exists {
		delete(l.subscribers, subscriber)
		close(subscriber)
	}
}

// Dropped returns how many entries were not delivered to slow subscribers
func (l *Log) Dropped() uint64 {
	l.subscribersMu.RLock()
	defer l.subscribersMu.RUnlock()
	return l.dropped
}

func (l *Log) publish(entry domain.LogEntry) {
	l.subscribersMu.Lock()
	defer l.subscribersMu.Unlock()

	for subscriber := range l.subscribers {
		select {
		case subscriber <- entry:
		default:
			l.dropped++
		}
	}
}
