// Package telemetry carries structured events from the harvester core to
// logging and Prometheus.
package telemetry

import (
	"sort"
	"sync"

	infralogger "github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/logger"
)

// Kind identifies the event family.
type Kind string

const (
	KindProxyHealth    Kind = "proxy_health"
	KindCircuitState   Kind = "circuit_state"
	KindFetch          Kind = "fetch"
	KindExtraction     Kind = "extraction"
	KindItemStored     Kind = "item_stored"
	KindDeadLettered   Kind = "dead_lettered"
	KindBatchCompleted Kind = "batch_completed"
)

// Event is one observation. Name identifies the subject (proxy id, breaker
// name, source); Fields carry the details.
type Event struct {
	Kind   Kind
	Name   string
	Fields map[string]any
}

// Sink receives events. Implementations must be safe for concurrent use and
// must not call back into the emitting component.
type Sink interface {
	Emit(Event)
}

type nopSink struct{}

func (nopSink) Emit(Event) {}

// Nop returns a Sink that drops everything.
func Nop() Sink { return nopSink{} }

// LogSink writes events through the structured logger.
type LogSink struct {
	log infralogger.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(log infralogger.Logger) *LogSink {
	return &LogSink{log: log}
}

// Emit logs e at info level, or warn for dead-letter insertions.
func (s *LogSink) Emit(e Event) {
	fields := make([]infralogger.Field, 0, len(e.Fields)+2)
	fields = append(fields, infralogger.String("event", string(e.Kind)), infralogger.String("name", e.Name))

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, infralogger.Any(k, e.Fields[k]))
	}

	if e.Kind == KindDeadLettered {
		s.log.Warn("Item dead-lettered", fields...)
		return
	}
	s.log.Info("Harvester event", fields...)
}

type multiSink []Sink

func (m multiSink) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}

// Multi fans an event out to every sink.
func Multi(sinks ...Sink) Sink {
	return multiSink(sinks)
}

// Recorder keeps every event in memory. Tests use it to assert on emissions.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit records e.
func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events, optionally filtered by kind.
func (r *Recorder) Events(kinds ...Kind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Event, 0, len(r.events))
	for _, e := range r.events {
		if len(kinds) == 0 || containsKind(kinds, e.Kind) {
			out = append(out, e)
		}
	}
	return out
}

func containsKind(kinds []Kind, k Kind) bool {
	for _, candidate := range kinds {
		if candidate == k {
			return true
		}
	}
	return false
}
