package metric

import (
	stderrors "errors"
	"fmt"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/c360/docstore/errors"
)

// Registrar is what components need to publish their own collectors.
type Registrar interface {
	Register(component, name string, collector prometheus.Collector) error
	Unregister(component, name string) bool
}

// Registry owns a Prometheus registry preloaded with the Core collectors and the Go runtime
// and process collectors. Component collectors are tracked as "component.name".
type Registry struct {
	prom *prometheus.Registry
	core *Core

	mu    sync.Mutex
	owned map[string]prometheus.Collector
}

var _ Registrar = (*Registry)(nil)

// NewRegistry creates a registry with the core collectors registered
func NewRegistry() *Registry {
	r := &Registry{
		prom:  prometheus.NewRegistry(),
		core:  newCore(),
		owned: make(map[string]prometheus.Collector),
	}
	r.prom.MustRegister(r.core.collectors()...)
	r.prom.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Prometheus returns the underlying registry for exposition
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.prom
}

// Core returns the process-level collectors
func (r *Registry) Core() *Core {
	return r.core
}

// Register adds a component collector. A second registration under the same component and
// name, or a descriptor clash inside Prometheus, is an invalid error.
func (r *Registry) Register(component, name string, collector prometheus.Collector) error {
	if component == "" || name == "" || collector == nil {
		return errors.WrapInvalid(errors.ErrInvalidArgument, "Registry", "Register",
			"component, name and collector are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := component + "." + name
	if _, dup := r.owned[id]; dup {
		return errors.WrapInvalid(fmt.Errorf("%s already registered", id), "Registry", "Register",
			"duplicate registration")
	}

	if err := r.prom.Register(collector); err != nil {
		var are prometheus.AlreadyRegisteredError
		if stderrors.As(err, &are) {
			return errors.WrapInvalid(err, "Registry", "Register", "prometheus conflict for "+id)
		}
		return errors.WrapFatal(err, "Registry", "Register", "register "+id)
	}

	r.owned[id] = collector
	return nil
}

// Unregister removes a component collector. It reports whether anything was removed.
func (r *Registry) Unregister(component, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := component + "." + name
	collector, ok := r.owned[id]
	if !ok || !r.prom.Unregister(collector) {
		return false
	}
	delete(r.owned, id)
	return true
}

// Registered lists the component collectors as sorted "component.name" ids
func (r *Registry) Registered() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.owned))
	for id := range r.owned {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
