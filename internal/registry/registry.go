// Package registry holds the immutable table of monitored targets.
package registry

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

var (
	// ErrDuplicateTarget is returned when two targets share an id.
	ErrDuplicateTarget = errors.New("duplicate target id")
	// ErrEmptyID is returned for a target without an id.
	ErrEmptyID = errors.New("target id is empty")
)

// Target is one monitored service endpoint and its probe parameters.
type Target struct {
	ID                 string
	Name               string
	BaseURL            string
	Path               string
	Timeout            time.Duration
	Accepted           []int
	Headers            map[string]string
	InsecureSkipVerify bool
}

// URL returns the full health-check URL.
func (t Target) URL() string {
	return t.BaseURL + t.Path
}

// RedactedURL returns URL with query values and any password masked,
// for output that must not carry API keys.
func (t Target) RedactedURL() string {
	u, err := url.Parse(t.URL())
	if err != nil {
		return t.BaseURL
	}
	if u.RawQuery != "" {
		q := u.Query()
		for k := range q {
			q[k] = []string{"xxxxx"}
		}
		u.RawQuery = q.Encode()
	}
	return u.Redacted()
}

// Accepts reports whether code is one of the target's healthy status codes.
func (t Target) Accepts(code int) bool {
	for _, c := range t.Accepted {
		if c == code {
			return true
		}
	}
	return false
}

// Registry is a read-only lookup of targets by id.
// It is safe for concurrent use because it never changes after New.
type Registry struct {
	targets map[string]Target
	order   []string
}

// New builds a registry. Ids must be unique and non-empty.
func New(targets []Target) (*Registry, error) {
	r := &Registry{
		targets: make(map[string]Target, len(targets)),
		order:   make([]string, 0, len(targets)),
	}

	for i, t := range targets {
		if t.ID == "" {
			return nil, fmt.Errorf("target %d: %w", i, ErrEmptyID)
		}
		if _, exists := r.targets[t.ID]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateTarget, t.ID)
		}
		r.targets[t.ID] = cloneTarget(t)
		r.order = append(r.order, t.ID)
	}

	return r, nil
}

// Get returns the target with the given id.
func (r *Registry) Get(id string) (Target, bool) {
	t, ok := r.targets[id]
	return t, ok
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.targets[id]
	return ok
}

// IDs returns the target ids in registration order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids
}

// Targets returns all targets in registration order.
func (r *Registry) Targets() []Target {
	out := make([]Target, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.targets[id])
	}
	return out
}

// Len returns the number of registered targets.
func (r *Registry) Len() int {
	return len(r.order)
}

// cloneTarget copies the slice and map fields so callers cannot mutate
// registry state through the values they passed in.
func cloneTarget(t Target) Target {
	if t.Accepted != nil {
		accepted := make([]int, len(t.Accepted))
		copy(accepted, t.Accepted)
		t.Accepted = accepted
	}
	if t.Headers != nil {
		headers := make(map[string]string, len(t.Headers))
		for k, v := range t.Headers {
			headers[k] = v
		}
		t.Headers = headers
	}
	return t
}
