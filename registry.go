package nativeimg

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/pressly/lg"
)

// Loader initialises a backend. It is only called from Resolve.
type Loader func() (Backend, error)

// Registry maps backend names and aliases to lazily loaded backends.
//
// A successful load is cached for the life of the registry; a failed one is
// retried on the next Resolve. Loaders run without the registry lock held, so
// they may resolve other names, but never their own.
type Registry struct {
	// OnDeprecated is called every time a deprecated alias is resolved.
	OnDeprecated func(alias, canonical string)

	mu         sync.Mutex
	names      []string
	loaders    map[string]Loader
	loaded     map[string]Backend
	loading    map[string]*pendingLoad
	gen        map[string]int
	aliases    map[string]string // lower-cased alias -> canonical
	deprecated map[string]string // lower-cased alias -> canonical
}

func NewRegistry() *Registry {
	return &Registry{
		OnDeprecated: warnDeprecated,
		loaders:      map[string]Loader{},
		loaded:       map[string]Backend{},
		loading:      map[string]*pendingLoad{},
		gen:          map[string]int{},
		aliases:      map[string]string{},
		deprecated:   map[string]string{},
	}
}

func warnDeprecated(alias, canonical string) {
	lg.Warnf("nativeimg: backend name %q is deprecated, use %q instead", alias, canonical)
}

// Register adds a backend under its canonical name. Registering the same
// name again replaces the loader and drops any cached backend.
func (r *Registry) Register(name string, load Loader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.loaders[name]; !ok {
		r.names = append(r.names, name)
	}
	r.loaders[name] = load
	r.gen[name]++
	delete(r.loaded, name)
}

func (r *Registry) Alias(alias, canonical string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[strings.ToLower(alias)] = canonical
}

// Deprecate registers an alias that still resolves, but reports itself
// through OnDeprecated.
func (r *Registry) Deprecate(alias, canonical string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deprecated[strings.ToLower(alias)] = canonical
}

// Names returns the canonical names in registration order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

// Loaded returns the backends loaded so far, in registration order.
func (r *Registry) Loaded() []Backend {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Backend
	for _, n := range r.names {
		if b, ok := r.loaded[n]; ok {
			out = append(out, b)
		}
	}
	return out
}

// Resolve returns the backend registered under name, loading it on first use.
// Canonical names match exactly first; aliases and canonical names are then
// matched case-insensitively.
func (r *Registry) Resolve(name string) (Backend, error) {
	canonical, deprecated, ok := r.lookup(name)
	if !ok {
		return nil, NewError(ErrUnknownBackend, "", "resolve", fmt.Errorf("%q", name))
	}
	if deprecated && r.OnDeprecated != nil {
		r.OnDeprecated(name, canonical)
	}
	return r.load(canonical)
}

func (r *Registry) lookup(name string) (canonical string, deprecated bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.loaders[name]; ok {
		return name, false, true
	}

	key := strings.ToLower(name)
	if c, ok := r.deprecated[key]; ok {
		return c, true, true
	}
	if c, ok := r.aliases[key]; ok {
		return c, false, true
	}
	for _, n := range r.names {
		if strings.ToLower(n) == key {
			return n, false, true
		}
	}
	return "", false, false
}

// pendingLoad is a load in progress; later callers for the same name wait
// on done.
type pendingLoad struct {
	done chan struct{}
	b    Backend
	err  error
}

func (r *Registry) load(name string) (Backend, error) {
	r.mu.Lock()
	if b, ok := r.loaded[name]; ok {
		r.mu.Unlock()
		return b, nil
	}
	load, ok := r.loaders[name]
	if !ok {
		r.mu.Unlock()
		// alias pointing at a name that was never registered
		return nil, NewError(ErrUnknownBackend, name, "resolve", nil)
	}
	if p, ok := r.loading[name]; ok {
		r.mu.Unlock()
		<-p.done
		return p.b, p.err
	}
	p := &pendingLoad{done: make(chan struct{})}
	r.loading[name] = p
	gen := r.gen[name]
	r.mu.Unlock()

	p.b, p.err = callLoader(name, load)

	r.mu.Lock()
	delete(r.loading, name)
	// a Register during the load replaced this loader
	if p.err == nil && r.gen[name] == gen {
		r.loaded[name] = p.b
	}
	r.mu.Unlock()
	close(p.done)

	return p.b, p.err
}

func callLoader(name string, load Loader) (b Backend, err error) {
	defer func() {
		if p := recover(); p != nil {
			b = nil
			err = NewError(ErrBackendUnavailable, name, "load", fmt.Errorf("panic: %v", p))
		}
	}()

	b, err = load()
	switch {
	case err != nil && errors.Is(err, ErrBackendUnavailable):
		return nil, err
	case err != nil:
		return nil, NewError(ErrBackendUnavailable, name, "load", err)
	case b == nil:
		return nil, NewError(ErrBackendUnavailable, name, "load", nil)
	}
	return b, nil
}
