package shaderkit

import (
	"fmt"
	"reflect"
	"slices"
	"sync"
)

// Factory constructs the program of a registered shader.
type Factory func() (Program, error)

type shaderInfo struct {
	name    string
	factory Factory
	shader  *Shader
}

// Registry is the name-keyed directory of shader factories and
// materialized shaders. It holds the only long-lived reference to each
// shader it materialized.
type Registry struct {
	ctx *Context

	mu      sync.Mutex
	byName  map[string]*shaderInfo
	shaders []*Shader // by ShaderIndex; nil after removal
}

func newRegistry(ctx *Context) *Registry {
	return &Registry{
		ctx:    ctx,
		byName: make(map[string]*shaderInfo),
	}
}

// PreRegister reserves name without a factory. It is idempotent.
func (r *Registry) PreRegister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; !ok {
		r.byName[name] = &shaderInfo{name: name}
	}
}

// RegisterFactory stores factory under name. In multithreaded mode the
// shader is materialized and initialized immediately; otherwise on the
// first GetShader.
func (r *Registry) RegisterFactory(name string, factory Factory) error {
	if factory == nil {
		return fmt.Errorf("shaderkit: nil factory for %q", name)
	}
	r.mu.Lock()
	info, ok := r.byName[name]
	if !ok {
		info = &shaderInfo{name: name}
		r.byName[name] = info
	}
	info.factory = factory
	r.mu.Unlock()

	if r.ctx.opts.multithreading {
		_, err := r.materialize(name)
		return err
	}
	return nil
}

// GetShader returns the shader registered under name, materializing and
// initializing it on first access. The registry keeps ownership; callers
// must not Destroy the returned shader directly but use RemoveShader.
func (r *Registry) GetShader(name string) (*Shader, error) {
	return r.materialize(name)
}

func (r *Registry) materialize(name string) (*Shader, error) {
	r.mu.Lock()
	info, ok := r.byName[name]
	if !ok || (info.shader == nil && info.factory == nil) {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrShaderNotFound, name)
	}
	if info.shader != nil {
		s := info.shader
		r.mu.Unlock()
		return s, nil
	}
	factory := info.factory
	r.mu.Unlock()

	p, err := factory()
	if err != nil {
		return nil, fmt.Errorf("shaderkit: factory %q: %w", name, err)
	}
	s, err := r.ctx.NewShader(p)
	if err != nil {
		return nil, err
	}
	s.name = name

	r.mu.Lock()
	if info.shader != nil {
		// Materialized concurrently; keep the first.
		winner := info.shader
		r.mu.Unlock()
		s.Destroy()
		return winner, nil
	}
	info.shader = s
	idx := int(s.index)
	if idx >= len(r.shaders) {
		r.shaders = slices.Grow(r.shaders, idx+1-len(r.shaders))[:idx+1]
	}
	r.shaders[idx] = s
	r.mu.Unlock()

	Logger().Debug("shaderkit: shader materialized", "shader", name, "index", s.index)
	s.Initialize(false)
	return s, nil
}

// Lookup returns the materialized shader at index.
func (r *Registry) Lookup(index ShaderIndex) (*Shader, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(index) >= len(r.shaders) || r.shaders[index] == nil {
		return nil, false
	}
	return r.shaders[index], true
}

// RemoveShader clears the shader's registry slot and name mapping, then
// destroys it. Its index is not reused.
func (r *Registry) RemoveShader(s *Shader) {
	if s == nil {
		return
	}
	r.mu.Lock()
	if idx := int(s.index); idx < len(r.shaders) && r.shaders[idx] == s {
		r.shaders[idx] = nil
	}
	for name, info := range r.byName {
		if info.shader == s {
			delete(r.byName, name)
		}
	}
	r.mu.Unlock()

	s.Destroy()
}

// FindShader returns the first materialized shader whose program has
// dynamic type t.
func (r *Registry) FindShader(t reflect.Type) (*Shader, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.shaders {
		if s != nil && reflect.TypeOf(s.program) == t {
			return s, true
		}
	}
	return nil, false
}

// FindShaderOf returns the first materialized shader whose program has
// dynamic type T, along with the typed program.
func FindShaderOf[T Program](r *Registry) (*Shader, T, bool) {
	var zero T
	s, ok := r.FindShader(reflect.TypeFor[T]())
	if !ok {
		return nil, zero, false
	}
	p, _ := s.program.(T)
	return s, p, true
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Shaders returns the materialized shaders in index order.
func (r *Registry) Shaders() []*Shader {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Shader, 0, len(r.shaders))
	for _, s := range r.shaders {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (r *Registry) destroyAll() {
	r.mu.Lock()
	shaders := slices.Clone(r.shaders)
	r.shaders = nil
	clear(r.byName)
	r.mu.Unlock()

	for _, s := range shaders {
		if s != nil {
			s.Destroy()
		}
	}
}
