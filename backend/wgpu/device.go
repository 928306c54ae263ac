package wgpu

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/shaderkit"
	"github.com/gogpu/wgpu/hal"
)

// Option configures a Device.
type Option func(*Device)

// WithStorageFormat sets the texel format of storage image bindings.
// The default is RGBA8Unorm.
func WithStorageFormat(f gputypes.TextureFormat) Option {
	return func(d *Device) { d.storageFormat = f }
}

// WithWGSLSource hands WGSL to the HAL instead of naga-compiled SPIR-V,
// for HAL backends that accept WGSL directly.
func WithWGSLSource(enabled bool) Option {
	return func(d *Device) { d.wgslSource = enabled }
}

// Device implements shaderkit.Device over a HAL device. It owns every HAL
// object it creates; the HAL device itself stays owned by the caller.
//
// Device is safe for concurrent use.
type Device struct {
	dev           hal.Device
	storageFormat gputypes.TextureFormat
	wgslSource    bool

	mu        sync.Mutex
	next      uint64
	closed    bool
	modules   map[shaderkit.StageModule]hal.ShaderModule
	layouts   map[shaderkit.DescriptorSetLayout]hal.BindGroupLayout
	passes    map[shaderkit.RenderPassHandle]shaderkit.RenderPassSpec
	pipelines map[shaderkit.PipelineHandle]*pipeline
	groups    map[shaderkit.DescriptorSetHandle]hal.BindGroup
}

type pipeline struct {
	bindPoint shaderkit.BindPoint
	layout    hal.PipelineLayout
	render    hal.RenderPipeline
	compute   hal.ComputePipeline
}

// New wraps dev.
func New(dev hal.Device, opts ...Option) (*Device, error) {
	if dev == nil {
		return nil, ErrNilDevice
	}
	d := &Device{
		dev:           dev,
		storageFormat: gputypes.TextureFormatRGBA8Unorm,
		modules:       make(map[shaderkit.StageModule]hal.ShaderModule),
		layouts:       make(map[shaderkit.DescriptorSetLayout]hal.BindGroupLayout),
		passes:        make(map[shaderkit.RenderPassHandle]shaderkit.RenderPassSpec),
		pipelines:     make(map[shaderkit.PipelineHandle]*pipeline),
		groups:        make(map[shaderkit.DescriptorSetHandle]hal.BindGroup),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// HAL returns the wrapped HAL device.
func (d *Device) HAL() hal.Device { return d.dev }

// handle must be called with mu held.
func (d *Device) handle() uint64 {
	d.next++
	return d.next
}

// CompileStage prepends the defines to the WGSL source, compiles it and
// creates a shader module. Compiler errors are *shaderkit.CompileError
// carrying the full source as the debug log.
func (d *Device) CompileStage(src shaderkit.StageSource, code string, defines []shaderkit.Define) (shaderkit.StageModule, error) {
	if halStage(src.Stage) == 0 {
		return 0, fmt.Errorf("%w: %s stage", ErrUnsupported, src.Stage)
	}
	full := InjectDefines(code, defines)

	source := hal.ShaderSource{WGSL: full}
	if !d.wgslSource {
		spirv, err := CompileSPIRV(full)
		if err != nil {
			return 0, &shaderkit.CompileError{InfoLog: err.Error(), DebugLog: full, Err: err}
		}
		source = hal.ShaderSource{SPIRV: spirv}
	}

	mod, err := d.dev.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  stageLabel(src),
		Source: source,
	})
	if err != nil {
		return 0, &shaderkit.CompileError{InfoLog: err.Error(), DebugLog: full, Err: err}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.dev.DestroyShaderModule(mod)
		return 0, ErrClosed
	}
	h := shaderkit.StageModule(d.handle())
	d.modules[h] = mod
	return h, nil
}

// DestroyStageModule destroys a module created by CompileStage.
func (d *Device) DestroyStageModule(m shaderkit.StageModule) {
	d.mu.Lock()
	mod, ok := d.modules[m]
	delete(d.modules, m)
	d.mu.Unlock()
	if ok {
		d.dev.DestroyShaderModule(mod)
	}
}

// CreateDescriptorSetLayout creates a bind group layout for a baked set.
func (d *Device) CreateDescriptorSetLayout(label string, set *shaderkit.DescriptorSetDescriptor) (shaderkit.DescriptorSetLayout, error) {
	entries, err := layoutEntries(set, d.storageFormat)
	if err != nil {
		return 0, fmt.Errorf("wgpu: layout %q: %w", label, err)
	}
	l, err := d.dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{Label: label, Entries: entries})
	if err != nil {
		return 0, fmt.Errorf("wgpu: layout %q: %w", label, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.dev.DestroyBindGroupLayout(l)
		return 0, ErrClosed
	}
	h := shaderkit.DescriptorSetLayout(d.handle())
	d.layouts[h] = l
	return h, nil
}

// DestroyDescriptorSetLayout destroys a bind group layout.
func (d *Device) DestroyDescriptorSetLayout(h shaderkit.DescriptorSetLayout) {
	d.mu.Lock()
	l, ok := d.layouts[h]
	delete(d.layouts, h)
	d.mu.Unlock()
	if ok {
		d.dev.DestroyBindGroupLayout(l)
	}
}

// CreateRenderPass records the attachment formats of spec. WebGPU has no
// render pass objects; the formats become pipeline targets.
func (d *Device) CreateRenderPass(label string, spec shaderkit.RenderPassSpec) (shaderkit.RenderPassHandle, error) {
	for i, c := range spec.Colors {
		if c.Format == gputypes.TextureFormatUndefined {
			return 0, fmt.Errorf("wgpu: render pass %q: color %d has no format", label, i)
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, ErrClosed
	}
	h := shaderkit.RenderPassHandle(d.handle())
	d.passes[h] = spec
	return h, nil
}

// DestroyRenderPass forgets a render pass.
func (d *Device) DestroyRenderPass(h shaderkit.RenderPassHandle) {
	d.mu.Lock()
	delete(d.passes, h)
	d.mu.Unlock()
}

// BakePipeline checks that the pipeline exists. HAL pipelines are complete
// when created, so there is nothing left to warm up.
func (d *Device) BakePipeline(h shaderkit.PipelineHandle, bp shaderkit.BindPoint) error {
	d.mu.Lock()
	_, ok := d.pipelines[h]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s pipeline %d", ErrUnknownHandle, bp, h)
	}
	return nil
}

// DestroyPipeline destroys a pipeline and its pipeline layout.
func (d *Device) DestroyPipeline(h shaderkit.PipelineHandle, _ shaderkit.BindPoint) {
	d.mu.Lock()
	p, ok := d.pipelines[h]
	delete(d.pipelines, h)
	d.mu.Unlock()
	if ok {
		d.destroyPipeline(p)
	}
}

func (d *Device) destroyPipeline(p *pipeline) {
	if p.render != nil {
		d.dev.DestroyRenderPipeline(p.render)
	}
	if p.compute != nil {
		d.dev.DestroyComputePipeline(p.compute)
	}
	if p.layout != nil {
		d.dev.DestroyPipelineLayout(p.layout)
	}
}

// WaitIdle waits for the HAL device.
func (d *Device) WaitIdle() error { return d.dev.WaitIdle() }

// RegisterBindGroup returns a descriptor set handle for a bind group so it
// can be bound through shaderkit.BindState. The device does not take
// ownership of g.
func (d *Device) RegisterBindGroup(g hal.BindGroup) shaderkit.DescriptorSetHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := shaderkit.DescriptorSetHandle(d.handle())
	d.groups[h] = g
	return h
}

// ReleaseBindGroup forgets a registered bind group.
func (d *Device) ReleaseBindGroup(h shaderkit.DescriptorSetHandle) {
	d.mu.Lock()
	delete(d.groups, h)
	d.mu.Unlock()
}

// RenderPipeline returns the HAL render pipeline behind h.
func (d *Device) RenderPipeline(h shaderkit.PipelineHandle) (hal.RenderPipeline, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pipelines[h]
	if !ok || p.render == nil {
		return nil, false
	}
	return p.render, true
}

// ComputePipeline returns the HAL compute pipeline behind h.
func (d *Device) ComputePipeline(h shaderkit.PipelineHandle) (hal.ComputePipeline, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pipelines[h]
	if !ok || p.compute == nil {
		return nil, false
	}
	return p.compute, true
}

// Stats counts the live objects of each kind.
type Stats struct {
	Modules      int
	Layouts      int
	RenderPasses int
	Pipelines    int
	BindGroups   int
}

// Stats returns the number of live objects.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		Modules:      len(d.modules),
		Layouts:      len(d.layouts),
		RenderPasses: len(d.passes),
		Pipelines:    len(d.pipelines),
		BindGroups:   len(d.groups),
	}
}

// Close destroys every object still alive. Later creation calls fail with
// ErrClosed. Close is idempotent.
func (d *Device) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	pipelines := d.pipelines
	layouts := d.layouts
	modules := d.modules
	d.pipelines = make(map[shaderkit.PipelineHandle]*pipeline)
	d.layouts = make(map[shaderkit.DescriptorSetLayout]hal.BindGroupLayout)
	d.modules = make(map[shaderkit.StageModule]hal.ShaderModule)
	clear(d.passes)
	clear(d.groups)
	d.mu.Unlock()

	for _, p := range pipelines {
		d.destroyPipeline(p)
	}
	for _, l := range layouts {
		d.dev.DestroyBindGroupLayout(l)
	}
	for _, m := range modules {
		d.dev.DestroyShaderModule(m)
	}
	if n := len(pipelines) + len(layouts) + len(modules); n > 0 {
		shaderkit.Logger().Debug("wgpu: device closed", "destroyed", n)
	}
}

// CompileSPIRV compiles WGSL to little-endian SPIR-V words.
func CompileSPIRV(wgsl string) ([]uint32, error) {
	b, err := naga.Compile(wgsl)
	if err != nil {
		return nil, err
	}
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = uint32(b[i*4]) |
			uint32(b[i*4+1])<<8 |
			uint32(b[i*4+2])<<16 |
			uint32(b[i*4+3])<<24
	}
	return words, nil
}

// InjectDefines prepends one WGSL i32 constant per define.
func InjectDefines(code string, defines []shaderkit.Define) string {
	if len(defines) == 0 {
		return code
	}
	var b strings.Builder
	for _, def := range defines {
		b.WriteString("const ")
		b.WriteString(def.Name)
		b.WriteString(": i32 = ")
		b.WriteString(strconv.Itoa(def.Value))
		b.WriteString(";\n")
	}
	b.WriteString(code)
	return b.String()
}

func stageLabel(src shaderkit.StageSource) string {
	if src.Path != "" {
		return src.Path
	}
	return src.Stage.String()
}
