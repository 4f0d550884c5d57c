package predicate

import (
	"slices"
	"strings"
	"sync"
)

// Factory builds a predicate against an environment. Returning a nil
// Predicate skips the factory.
type Factory func(env *Env) (Predicate, error)

type entry struct {
	id        int
	namespace string
	factory   Factory
}

var catalog struct {
	mu      sync.RWMutex
	entries []entry
}

// Register adds factories to the process-wide catalog under namespace.
// Plugins call it from their init functions. Namespaces nest with "/":
// scanning "geolog_plugins" also finds "geolog_plugins/sqlite".
func Register(namespace string, factories ...Factory) {
	catalog.mu.Lock()
	defer catalog.mu.Unlock()
	for _, f := range factories {
		if f == nil {
			continue
		}
		catalog.entries = append(catalog.entries, entry{
			id:        len(catalog.entries),
			namespace: strings.Trim(namespace, "/"),
			factory:   f,
		})
	}
}

// Namespaces lists the namespaces that have registered factories.
func Namespaces() []string {
	catalog.mu.RLock()
	defer catalog.mu.RUnlock()
	var out []string
	for _, e := range catalog.entries {
		if !slices.Contains(out, e.namespace) {
			out = append(out, e.namespace)
		}
	}
	slices.Sort(out)
	return out
}

// lookup returns the catalog entries registered under namespace or any of
// its sub-namespaces, in registration order.
func lookup(namespace string) []entry {
	namespace = strings.Trim(namespace, "/")
	catalog.mu.RLock()
	defer catalog.mu.RUnlock()
	var out []entry
	for _, e := range catalog.entries {
		if inNamespace(e.namespace, namespace) {
			out = append(out, e)
		}
	}
	return out
}

func inNamespace(ns, root string) bool {
	if root == "" {
		return true
	}
	return ns == root || strings.HasPrefix(ns, root+"/")
}
