package predicate

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/geolog/geolog/pkg/engine"
)

// Plugin is a (search path, namespace) pair. The namespace selects factories
// from the catalog; the path is where the plugin's program files live.
type Plugin struct {
	Path      string
	Namespace string
}

// Registry builds predicates from the catalog for a set of plugins and
// installs them into an engine.
type Registry struct {
	mu      sync.Mutex
	env     *Env
	logger  zerolog.Logger
	plugins []Plugin
	preds   []Predicate
}

// NewRegistry creates an empty registry.
func NewRegistry(env *Env, logger zerolog.Logger) *Registry {
	return &Registry{
		env:    env,
		logger: logger.With().Str("component", "registry").Logger(),
	}
}

// Discover replaces the plugin list and rebuilds every predicate found under
// the plugins' namespaces. Factories reachable through more than one
// namespace are built once.
func (r *Registry) Discover(plugins []Plugin) ([]Predicate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins = slices.Clone(plugins)
	return r.scan()
}

// AddPlugin appends a plugin and rescans all plugins.
func (r *Registry) AddPlugin(p Plugin) ([]Predicate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !slices.Contains(r.plugins, p) {
		r.plugins = append(r.plugins, p)
	}
	return r.scan()
}

func (r *Registry) scan() ([]Predicate, error) {
	seen := make(map[int]bool)
	var preds []Predicate
	for _, plugin := range r.plugins {
		for _, e := range lookup(plugin.Namespace) {
			if seen[e.id] {
				continue
			}
			seen[e.id] = true
			p, err := e.factory(r.env)
			if err != nil {
				return nil, fmt.Errorf("building predicate from namespace %s: %w", e.namespace, err)
			}
			if p == nil || p.Name() == "" {
				continue
			}
			r.logger.Debug().
				Str("namespace", e.namespace).
				Str("predicate", p.Module()+":"+p.Name()).
				Int("min_arity", p.MinArity()).
				Int("max_arity", p.MaxArity()).
				Bool("deterministic", p.Deterministic()).
				Msg("discovered predicate")
			preds = append(preds, p)
		}
	}
	r.preds = preds
	return slices.Clone(preds), nil
}

// Predicates returns the predicates found by the last scan.
func (r *Registry) Predicates() []Predicate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.preds)
}

// Plugins returns the current plugin list.
func (r *Registry) Plugins() []Plugin {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.plugins)
}

// Install registers every predicate with the engine, once per arity in its
// bounds.
func (r *Registry) Install(ctx context.Context, eng engine.Engine, preds []Predicate) error {
	var foreign []engine.Foreign
	for _, p := range preds {
		foreign = append(foreign, Foreigns(p)...)
	}
	if len(foreign) == 0 {
		return nil
	}
	if err := eng.Register(ctx, foreign); err != nil {
		return fmt.Errorf("registering %d foreign predicates: %w", len(foreign), err)
	}
	r.logger.Debug().Int("count", len(foreign)).Msg("registered foreign predicates")
	return nil
}

// Indicators returns module:name/arity for every registration of preds.
func Indicators(preds []Predicate) []string {
	var out []string
	for _, p := range preds {
		for _, f := range Foreigns(p) {
			out = append(out, f.Indicator())
		}
	}
	slices.Sort(out)
	return out
}
