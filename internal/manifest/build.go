package manifest

import (
	"fmt"

	"github.com/gogpu/shaderkit"
)

// Register adds a factory for every shader to the context's registry. In
// multithreaded mode this starts the builds.
func (f *File) Register(ctx *shaderkit.Context) error {
	order, err := f.BuildOrder()
	if err != nil {
		return err
	}
	for _, sh := range order {
		name := sh.Name
		factory := func() (shaderkit.Program, error) { return f.Program(name) }
		if err := ctx.Registry().RegisterFactory(name, factory); err != nil {
			return fmt.Errorf("manifest: register %q: %w", name, err)
		}
	}
	return nil
}

// Build registers every shader, links derived shaders to their bases and
// waits for all builds. It returns the shaders in build order.
//
// Derived shaders are reinitialized once their base is linked; the base is
// flushed first when it still has jobs in flight.
func (f *File) Build(ctx *shaderkit.Context) ([]*shaderkit.Shader, error) {
	if err := f.Register(ctx); err != nil {
		return nil, err
	}
	order, err := f.BuildOrder()
	if err != nil {
		return nil, err
	}

	reg := ctx.Registry()
	shaders := make([]*shaderkit.Shader, 0, len(order))
	for _, sh := range order {
		s, err := reg.GetShader(sh.Name)
		if err != nil {
			return nil, err
		}
		if sh.Base != "" {
			base, err := reg.GetShader(sh.Base)
			if err != nil {
				return nil, err
			}
			if ctx.IsShaderQueued(base) {
				ctx.Flush()
			}
			s.SetBaseShader(base)
			s.Initialize(false)
		}
		shaders = append(shaders, s)
	}
	ctx.Flush()
	return shaders, nil
}
