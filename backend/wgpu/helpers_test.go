package wgpu

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/shaderkit"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// newNoopDevice opens a noop HAL device and wraps it.
func newNoopDevice(t *testing.T, opts ...Option) *Device {
	t.Helper()
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	open, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	d, err := New(open.Device, opts...)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	t.Cleanup(func() {
		d.Close()
		open.Device.Destroy()
		instance.Destroy()
	})
	return d
}

func newContext(t *testing.T, d *Device) *shaderkit.Context {
	t.Helper()
	ctx, err := shaderkit.NewContext(d, shaderkit.WithMultithreading(false))
	if err != nil {
		t.Fatalf("NewContext() = %v", err)
	}
	t.Cleanup(ctx.Close)
	return ctx
}

const doubleWGSL = `
@group(0) @binding(0) var<storage, read_write> data: array<u32>;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    let i = id.x;
    if (i < 1024u) {
        data[i] = data[i] * 2u;
    }
}
`

const quadWGSL = `
@vertex
fn vs_main(@builtin(vertex_index) idx: u32) -> @builtin(position) vec4<f32> {
    let x = f32(idx & 1u) * 2.0 - 1.0;
    let y = f32(idx >> 1u) * 2.0 - 1.0;
    return vec4<f32>(x, y, 0.0, 1.0);
}

@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return vec4<f32>(1.0, 0.0, 0.0, 1.0);
}
`

type doubleProgram struct{}

func (doubleProgram) Name() string       { return "double" }
func (doubleProgram) PipelineCount() int { return 1 }
func (doubleProgram) Stages() []shaderkit.StageSource {
	return []shaderkit.StageSource{{Stage: shaderkit.StageCompute, Code: doubleWGSL}}
}

func (doubleProgram) ComputeState(int) any { return ComputeState{} }

func (doubleProgram) DeclareResources(s *shaderkit.Shader) {
	s.AddDescriptorSetGroup(&shaderkit.DescriptorSetDescriptor{
		Name: "data",
		Bindings: []shaderkit.Binding{
			{Name: "values", Type: shaderkit.DescriptorStorageBuffer, Stages: shaderkit.StageMaskCompute, Index: shaderkit.AutoIndex},
		},
	})
}

type quadProgram struct {
	depth bool
	state any
}

func (*quadProgram) Name() string       { return "quad" }
func (*quadProgram) PipelineCount() int { return 2 }
func (*quadProgram) Stages() []shaderkit.StageSource {
	return []shaderkit.StageSource{
		{Stage: shaderkit.StageVertex, Code: quadWGSL, EntryPoint: "vs_main"},
		{Stage: shaderkit.StageFragment, Code: quadWGSL, EntryPoint: "fs_main"},
	}
}

func (p *quadProgram) RenderPass(int) shaderkit.RenderPassSpec {
	spec := shaderkit.RenderPassSpec{
		Colors: []shaderkit.Attachment{{
			Format: gputypes.TextureFormatBGRA8Unorm,
			Load:   gputypes.LoadOpClear,
			Store:  gputypes.StoreOpStore,
		}},
	}
	if p.depth {
		spec.Depth = &shaderkit.Attachment{Format: gputypes.TextureFormatDepth32Float}
	}
	return spec
}

func (p *quadProgram) GraphicsState(i int) any {
	if p.state != nil {
		return p.state
	}
	blend := gputypes.BlendStateAlpha()
	return GraphicsState{Blend: &blend, DepthWrite: i == 0}
}

// spyRenderPass records the pipelines and bind groups set on a render pass.
type spyRenderPass struct {
	hal.RenderPassEncoder
	pipelines []hal.RenderPipeline
	groups    map[uint32]hal.BindGroup
	draws     int
}

func newSpyRenderPass() *spyRenderPass {
	return &spyRenderPass{RenderPassEncoder: &noop.RenderPassEncoder{}, groups: make(map[uint32]hal.BindGroup)}
}

func (s *spyRenderPass) SetPipeline(p hal.RenderPipeline) { s.pipelines = append(s.pipelines, p) }
func (s *spyRenderPass) SetBindGroup(i uint32, g hal.BindGroup, _ []uint32) {
	s.groups[i] = g
}

func (s *spyRenderPass) Draw(_, _, _, _ uint32) { s.draws++ }

// spyComputePass records the pipelines set and dispatches on a compute pass.
type spyComputePass struct {
	hal.ComputePassEncoder
	pipelines  []hal.ComputePipeline
	dispatches [][3]uint32
}

func (s *spyComputePass) SetPipeline(p hal.ComputePipeline) { s.pipelines = append(s.pipelines, p) }
func (s *spyComputePass) Dispatch(x, y, z uint32) {
	s.dispatches = append(s.dispatches, [3]uint32{x, y, z})
}
