package asr

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Registry holds the configured recognizers and selects the primary one.
// It is itself a Recognizer that delegates to the primary. There is no
// fallback: recognition is expensive and a failure is surfaced, not retried
// on another backend.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Recognizer
	primary  string
}

var _ Recognizer = (*Registry)(nil)

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[string]Recognizer),
	}
}

// Register adds a recognizer under name. The first registered recognizer
// becomes the primary by default.
func (r *Registry) Register(name string, b Recognizer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[name] = b
	if r.primary == "" {
		r.primary = name
	}
}

// SetPrimary selects the primary recognizer by name.
func (r *Registry) SetPrimary(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.backends[name]; !ok {
		return fmt.Errorf("asr: unknown backend %q", name)
	}
	r.primary = name
	return nil
}

// Get returns a recognizer by name, or false if not found.
func (r *Registry) Get(name string) (Recognizer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[name]
	return b, ok
}

// Primary returns the primary recognizer, or nil if none is registered.
func (r *Registry) Primary() Recognizer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.backends[r.primary]
}

// Backends returns the sorted names of all registered recognizers.
func (r *Registry) Backends() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Name reports the primary backend's name.
func (r *Registry) Name() string {
	if p := r.Primary(); p != nil {
		return p.Name()
	}
	return "none"
}

// Recognize runs the primary recognizer. Every failure comes back as a
// *RecognitionError.
func (r *Registry) Recognize(ctx context.Context, audioPath string, opts Options) (*Result, error) {
	primary := r.Primary()
	if primary == nil {
		return nil, Wrap("none", fmt.Errorf("asr: no primary backend configured"))
	}
	res, err := primary.Recognize(ctx, audioPath, opts)
	if err != nil {
		return nil, Wrap(primary.Name(), err)
	}
	if res == nil {
		return nil, Wrap(primary.Name(), fmt.Errorf("asr: backend returned no result"))
	}
	return res, nil
}

// HealthCheck reports the primary recognizer's health.
func (r *Registry) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	primary := r.Primary()
	if primary == nil {
		return &HealthStatus{Backend: "none", Message: "no primary backend configured"}, nil
	}
	return primary.HealthCheck(ctx)
}
