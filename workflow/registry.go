package workflow

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/zeni/ledgerflow"
)

// RunnerFunc is a type-erased handler that accepts the raw JSON payload.
// Typed definitions are converted to a RunnerFunc at registration time.
type RunnerFunc func(wf *Workflow, input []byte) error

type versionedRunner struct {
	version int
	runner  RunnerFunc
}

// Registry maps workflow names to versioned runner functions. New runs use
// the latest version; existing runs resume on the version they started
// with. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	versions map[string][]versionedRunner
}

// NewRegistry creates an empty workflow registry.
func NewRegistry() *Registry {
	return &Registry{
		versions: make(map[string][]versionedRunner),
	}
}

// RegisterDefinition registers a typed workflow definition. A payload that
// cannot be decoded into T fails the run permanently.
func RegisterDefinition[T any](r *Registry, def *Definition[T]) {
	version := def.Version
	if version <= 0 {
		version = 1
	}

	runner := func(wf *Workflow, input []byte) error {
		var t T
		if len(input) > 0 {
			if err := json.Unmarshal(input, &t); err != nil {
				return Permanent(fmt.Errorf("%w: workflow %q: %w", ledgerflow.ErrInvalidPayload, def.Name, err))
			}
		}
		return def.Handler(wf, t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	vr := versionedRunner{version: version, runner: runner}
	existing := r.versions[def.Name]
	for i, v := range existing {
		if v.version == version {
			existing[i] = vr
			return
		}
	}
	r.versions[def.Name] = append(existing, vr)
}

// Get returns the latest-version runner for a workflow.
func (r *Registry) Get(name string) (RunnerFunc, bool) {
	return r.GetVersion(name, 0)
}

// GetVersion returns the runner for a specific version. A version of zero
// or less returns the latest.
func (r *Registry) GetVersion(name string, version int) (RunnerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *versionedRunner
	for i, v := range r.versions[name] {
		if version > 0 && v.version == version {
			return v.runner, true
		}
		if version <= 0 && (best == nil || v.version > best.version) {
			best = &r.versions[name][i]
		}
	}
	if best == nil {
		return nil, false
	}
	return best.runner, true
}

// LatestVersion returns the highest registered version of a workflow, or 0.
func (r *Registry) LatestVersion(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	best := 0
	for _, v := range r.versions[name] {
		if v.version > best {
			best = v.version
		}
	}
	return best
}

// Names returns all registered workflow names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.versions))
	for name := range r.versions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
