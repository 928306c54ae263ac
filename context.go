package shaderkit

import (
	"sync/atomic"

	"github.com/gogpu/shaderkit/internal/scheduler"
)

// Context owns the build scheduler, the render pass cache, the shader
// registry and the bound-pipeline side table for one device.
//
// The goroutine that calls NewContext owns the context: Flush, Initialize,
// Destroy and Close must be called from it.
type Context struct {
	device Device
	opts   options

	sched        *scheduler.Scheduler
	renderPasses *RenderPassCache
	registry     *Registry
	bound        *BoundPipelines

	nextIndex atomic.Uint32
	closed    atomic.Bool
}

// NewContext creates a Context for device.
func NewContext(device Device, opts ...Option) (*Context, error) {
	if device == nil {
		return nil, ErrNilDevice
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	c := &Context{
		device:       device,
		opts:         o,
		renderPasses: newRenderPassCache(device),
		bound:        newBoundPipelines(),
	}
	c.sched = scheduler.New(scheduler.Options{
		Multithreaded: o.multithreading,
		Bake:          c.bake,
	})
	c.registry = newRegistry(c)

	Logger().Info("shaderkit: context created",
		"multithreading", o.multithreading, "inline_pipelines", o.inlinePipelines)
	return c, nil
}

func (c *Context) bake(shader uint32, pipeline uint64, bindPoint uint32) error {
	Logger().Debug("shaderkit: bake", "shader", shader, "pipeline", pipeline)
	return c.device.BakePipeline(PipelineHandle(pipeline), BindPoint(bindPoint))
}

func (c *Context) allocIndex() ShaderIndex {
	return ShaderIndex(c.nextIndex.Add(1) - 1)
}

// Device returns the backend device.
func (c *Context) Device() Device { return c.device }

// Multithreaded reports whether builds run on worker goroutines.
func (c *Context) Multithreaded() bool { return c.opts.multithreading }

// NewShader creates an unregistered shader for p. It is not built until
// Initialize is called.
func (c *Context) NewShader(p Program) (*Shader, error) {
	if c.closed.Load() {
		return nil, ErrContextClosed
	}
	return newShader(c, p)
}

// Flush waits for every outstanding build job and finalizes the finished
// shaders. It panics with an error wrapping ErrMisuse off the owning
// goroutine.
func (c *Context) Flush() { c.sched.Flush() }

// IsShaderQueued reports whether s has outstanding build jobs.
func (c *Context) IsShaderQueued(s *Shader) bool { return c.sched.IsShaderQueued(s.id()) }

// SchedulerStats is a snapshot of build progress.
type SchedulerStats = scheduler.Stats

// SchedulerStats returns a snapshot of build progress.
func (c *Context) SchedulerStats() SchedulerStats { return c.sched.Stats() }

// Registry returns the shader registry.
func (c *Context) Registry() *Registry { return c.registry }

// RenderPasses returns the render pass cache.
func (c *Context) RenderPasses() *RenderPassCache { return c.renderPasses }

// BoundPipelines returns the bound-pipeline side table.
func (c *Context) BoundPipelines() *BoundPipelines { return c.bound }

// Close flushes outstanding work, stops the workers and destroys every
// registered shader. Close is idempotent.
func (c *Context) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.sched.Flush()
	c.sched.Stop()
	c.registry.destroyAll()
	c.renderPasses.DestroyAll()
	Logger().Info("shaderkit: context closed")
}
