// Package registry holds the immutable handler table built from pack
// discovery. It is constructed once at startup and read without
// synchronization afterwards; changing the pack set requires a full rebuild.
package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/drblury/packflow/internal/runtime/pack"
)

// Key uniquely identifies a handler registration.
type Key struct {
	Domain    string
	Provider  string
	HandlerID string
}

func (k Key) String() string {
	return k.Domain + "/" + k.Provider + "/" + k.HandlerID
}

// Registration is the resolved target for a handler key.
type Registration struct {
	Key             Key
	Kind            pack.HandlerKind
	Op              string
	IntervalSeconds int64
	PackPath        string
}

// Registry is the read-only handler table.
type Registry struct {
	handlers map[Key]Registration
	// httpByProvider tracks HTTP handler ids per (domain, provider) so a
	// route without a handler segment can fall back to a sole handler.
	httpByProvider map[[2]string][]string
	apps           []pack.AppPack
}

// Build constructs a registry from discovery output. Duplicate handler keys
// fail the build, naming the pack that collided.
func Build(discovery pack.Discovery) (*Registry, error) {
	r := &Registry{
		handlers:       make(map[Key]Registration),
		httpByProvider: make(map[[2]string][]string),
		apps:           append([]pack.AppPack(nil), discovery.Apps...),
	}

	for _, provider := range discovery.Providers {
		for _, h := range provider.HTTPHandlers {
			reg := Registration{
				Key:      Key{Domain: provider.Domain, Provider: provider.Name, HandlerID: h.HandlerID},
				Kind:     pack.KindHTTP,
				Op:       h.Op,
				PackPath: provider.Path,
			}
			if err := r.add(reg); err != nil {
				return nil, err
			}
			pk := [2]string{provider.Domain, provider.Name}
			r.httpByProvider[pk] = append(r.httpByProvider[pk], h.HandlerID)
		}
		for _, h := range provider.TimerHandlers {
			reg := Registration{
				Key:             Key{Domain: provider.Domain, Provider: provider.Name, HandlerID: h.HandlerID},
				Kind:            pack.KindTimer,
				Op:              h.Op,
				IntervalSeconds: h.IntervalSeconds,
				PackPath:        provider.Path,
			}
			if err := r.add(reg); err != nil {
				return nil, err
			}
		}
	}

	return r, nil
}

func (r *Registry) add(reg Registration) error {
	if existing, ok := r.handlers[reg.Key]; ok {
		return fmt.Errorf("duplicate handler registration %s: pack %q collides with pack %q",
			reg.Key, reg.PackPath, existing.PackPath)
	}
	r.handlers[reg.Key] = reg
	return nil
}

// Lookup resolves a handler key exactly.
func (r *Registry) Lookup(domain, provider, handlerID string) (Registration, bool) {
	reg, ok := r.handlers[Key{Domain: domain, Provider: provider, HandlerID: handlerID}]
	return reg, ok
}

// LookupHTTP resolves an HTTP handler. An empty handlerID falls back to the
// provider's sole HTTP handler when it declares exactly one.
func (r *Registry) LookupHTTP(domain, provider, handlerID string) (Registration, bool) {
	if handlerID == "" {
		ids := r.httpByProvider[[2]string{domain, provider}]
		if len(ids) != 1 {
			return Registration{}, false
		}
		handlerID = ids[0]
	}
	reg, ok := r.Lookup(domain, provider, handlerID)
	if !ok || reg.Kind != pack.KindHTTP {
		return Registration{}, false
	}
	return reg, true
}

// Timers returns all timer registrations in a stable order.
func (r *Registry) Timers() []Registration {
	var out []Registration
	for _, reg := range r.handlers {
		if reg.Kind == pack.KindTimer {
			out = append(out, reg)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key.String() < out[j].Key.String()
	})
	return out
}

// Handlers returns all registrations in a stable order.
func (r *Registry) Handlers() []Registration {
	out := make([]Registration, 0, len(r.handlers))
	for _, reg := range r.handlers {
		out = append(out, reg)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key.String() < out[j].Key.String()
	})
	return out
}

// ResolveApp picks the destination application pack for a tenant scope,
// walking team-level, tenant-level, then root-level defaults and returning
// the first that exists.
func (r *Registry) ResolveApp(tenant, team string) (pack.AppPack, bool) {
	if team != "" {
		if app, ok := r.findApp(tenant, team); ok {
			return app, true
		}
	}
	if tenant != "" {
		if app, ok := r.findApp(tenant, ""); ok {
			return app, true
		}
	}
	return r.findApp("", "")
}

func (r *Registry) findApp(tenant, team string) (pack.AppPack, bool) {
	for _, app := range r.apps {
		if strings.EqualFold(app.Tenant, tenant) && strings.EqualFold(app.Team, team) {
			return app, true
		}
	}
	return pack.AppPack{}, false
}
