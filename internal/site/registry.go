package site

import (
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/hibernaut/hibernaut/internal/core/domain"
)

// Registry is the host->site and name->site lookup table the Request
// Classifier (§4.H) and dashboard handlers read concurrently.
type Registry struct {
	byHost *xsync.Map[string, *Runtime]
	byName *xsync.Map[string, *Runtime]
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byHost: xsync.NewMap[string, *Runtime](),
		byName: xsync.NewMap[string, *Runtime](),
	}
}

// Add registers rt under its name and every one of its hostnames. It
// returns domain.ErrDuplicateHost if any hostname is already claimed by
// a different site, per spec.md §3's global invariant.
func (reg *Registry) Add(rt *Runtime) error {
	for _, host := range rt.Site.Hosts {
		if existing, loaded := reg.byHost.LoadOrStore(host, rt); loaded && existing.Site.Name != rt.Site.Name {
			return domain.ErrDuplicateHost
		}
	}
	reg.byName.Store(rt.Site.Name, rt)
	return nil
}

// LookupHost returns the Runtime owning host (already lower-cased by the
// caller), per spec.md §4.H step 1.
func (reg *Registry) LookupHost(host string) (*Runtime, bool) {
	return reg.byHost.Load(host)
}

// LookupName returns the Runtime for the given configured site name.
func (reg *Registry) LookupName(name string) (*Runtime, bool) {
	return reg.byName.Load(name)
}

// All returns every registered Runtime. Order is unspecified.
func (reg *Registry) All() []*Runtime {
	out := make([]*Runtime, 0, reg.byName.Size())
	reg.byName.Range(func(_ string, rt *Runtime) bool {
		out = append(out, rt)
		return true
	})
	return out
}
