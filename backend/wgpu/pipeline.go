package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/shaderkit"
	"github.com/gogpu/wgpu/hal"
)

// GraphicsState is the fixed-function state a graphics program returns
// from GraphicsState. The zero value draws triangle lists without
// blending, culling or depth writes.
type GraphicsState struct {
	Primitive     gputypes.PrimitiveState
	VertexBuffers []gputypes.VertexBufferLayout

	// Blend applies to every color target. Nil disables blending.
	Blend *gputypes.BlendState
	// WriteMask zero means ColorWriteMaskAll.
	WriteMask gputypes.ColorWriteMask

	DepthWrite bool
	// DepthCompare zero means CompareFunctionLess.
	DepthCompare gputypes.CompareFunction

	AlphaToCoverage bool
}

// ComputeState is the state a compute program returns from ComputeState.
type ComputeState struct {
	// Constants override pipeline-overridable constants by name.
	Constants map[string]float64
}

// Default entry points for stages that do not name one.
const (
	DefaultVertexEntry   = "vs_main"
	DefaultFragmentEntry = "fs_main"
	DefaultComputeEntry  = "main"
)

// CreatePipeline creates a pipeline layout and a render or compute
// pipeline. The derivation base is ignored.
func (d *Device) CreatePipeline(info *shaderkit.PipelineCreateInfo) (shaderkit.PipelineHandle, error) {
	var (
		p   *pipeline
		err error
	)
	switch info.BindPoint {
	case shaderkit.BindPointGraphics:
		p, err = d.createRenderPipeline(info)
	case shaderkit.BindPointCompute:
		p, err = d.createComputePipeline(info)
	default:
		return shaderkit.InvalidPipeline, fmt.Errorf("%w: %s pipeline %q", ErrUnsupported, info.BindPoint, info.Label)
	}
	if err != nil {
		return shaderkit.InvalidPipeline, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.destroyPipeline(p)
		return shaderkit.InvalidPipeline, ErrClosed
	}
	h := shaderkit.PipelineHandle(d.handle())
	d.pipelines[h] = p
	if info.Base != shaderkit.InvalidPipeline {
		shaderkit.Logger().Debug("wgpu: pipeline derivation ignored", "label", info.Label, "base", info.Base)
	}
	return h, nil
}

func (d *Device) createRenderPipeline(info *shaderkit.PipelineCreateInfo) (*pipeline, error) {
	state, err := graphicsState(info.State)
	if err != nil {
		return nil, fmt.Errorf("wgpu: pipeline %q: %w", info.Label, err)
	}
	if info.RenderPass == nil {
		return nil, fmt.Errorf("%w: pipeline %q has no render pass", ErrMissingStage, info.Label)
	}
	vs, ok := findStage(info.Stages, shaderkit.StageVertex)
	if !ok {
		return nil, fmt.Errorf("%w: pipeline %q has no vertex stage", ErrMissingStage, info.Label)
	}
	fs, hasFragment := findStage(info.Stages, shaderkit.StageFragment)

	d.mu.Lock()
	vsMod, vsOK := d.modules[vs.Module]
	fsMod, fsOK := d.modules[fs.Module]
	d.mu.Unlock()
	if !vsOK || (hasFragment && !fsOK) {
		return nil, fmt.Errorf("%w: pipeline %q stage module", ErrUnknownHandle, info.Label)
	}

	layout, err := d.createPipelineLayout(info)
	if err != nil {
		return nil, err
	}

	spec := info.RenderPass.Spec()
	desc := &hal.RenderPipelineDescriptor{
		Label:  info.Label,
		Layout: layout,
		Vertex: hal.VertexState{
			Module:     vsMod,
			EntryPoint: entryPoint(vs.EntryPoint, DefaultVertexEntry),
			Buffers:    state.VertexBuffers,
		},
		Primitive: state.Primitive,
		Multisample: gputypes.MultisampleState{
			Count:                  max(spec.Samples, 1),
			Mask:                   0xFFFFFFFF,
			AlphaToCoverageEnabled: state.AlphaToCoverage,
		},
	}
	if hasFragment {
		desc.Fragment = &hal.FragmentState{
			Module:     fsMod,
			EntryPoint: entryPoint(fs.EntryPoint, DefaultFragmentEntry),
			Targets:    colorTargets(spec, state),
		}
	}
	if spec.Depth != nil {
		compare := state.DepthCompare
		if compare == gputypes.CompareFunctionUndefined {
			compare = gputypes.CompareFunctionLess
		}
		desc.DepthStencil = &hal.DepthStencilState{
			Format:            spec.Depth.Format,
			DepthWriteEnabled: state.DepthWrite,
			DepthCompare:      compare,
		}
	}

	rp, err := d.dev.CreateRenderPipeline(desc)
	if err != nil {
		d.dev.DestroyPipelineLayout(layout)
		return nil, fmt.Errorf("wgpu: render pipeline %q: %w", info.Label, err)
	}
	return &pipeline{bindPoint: shaderkit.BindPointGraphics, layout: layout, render: rp}, nil
}

func (d *Device) createComputePipeline(info *shaderkit.PipelineCreateInfo) (*pipeline, error) {
	var state ComputeState
	switch s := info.State.(type) {
	case nil:
	case ComputeState:
		state = s
	case *ComputeState:
		if s != nil {
			state = *s
		}
	default:
		return nil, fmt.Errorf("wgpu: pipeline %q: unsupported compute state %T", info.Label, info.State)
	}

	cs, ok := findStage(info.Stages, shaderkit.StageCompute)
	if !ok {
		return nil, fmt.Errorf("%w: pipeline %q has no compute stage", ErrMissingStage, info.Label)
	}
	d.mu.Lock()
	mod, ok := d.modules[cs.Module]
	d.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: pipeline %q stage module", ErrUnknownHandle, info.Label)
	}

	layout, err := d.createPipelineLayout(info)
	if err != nil {
		return nil, err
	}
	cp, err := d.dev.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  info.Label,
		Layout: layout,
		Compute: hal.ComputeState{
			Module:     mod,
			EntryPoint: entryPoint(cs.EntryPoint, DefaultComputeEntry),
			Constants:  state.Constants,
		},
	})
	if err != nil {
		d.dev.DestroyPipelineLayout(layout)
		return nil, fmt.Errorf("wgpu: compute pipeline %q: %w", info.Label, err)
	}
	return &pipeline{bindPoint: shaderkit.BindPointCompute, layout: layout, compute: cp}, nil
}

func (d *Device) createPipelineLayout(info *shaderkit.PipelineCreateInfo) (hal.PipelineLayout, error) {
	groups := make([]hal.BindGroupLayout, len(info.Layouts))
	d.mu.Lock()
	for i, h := range info.Layouts {
		l, ok := d.layouts[h]
		if !ok {
			d.mu.Unlock()
			return nil, fmt.Errorf("%w: pipeline %q set %d layout", ErrUnknownHandle, info.Label, i)
		}
		groups[i] = l
	}
	d.mu.Unlock()

	ranges := make([]hal.PushConstantRange, 0, len(info.PushConstants))
	for _, pc := range info.PushConstants {
		ranges = append(ranges, hal.PushConstantRange{
			Stages: visibility(pc.Stages),
			Range:  hal.Range{Start: pc.Offset, End: pc.End()},
		})
	}

	layout, err := d.dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:              info.Label,
		BindGroupLayouts:   groups,
		PushConstantRanges: ranges,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: pipeline layout %q: %w", info.Label, err)
	}
	return layout, nil
}

func graphicsState(s any) (GraphicsState, error) {
	switch v := s.(type) {
	case nil:
		return GraphicsState{}, nil
	case GraphicsState:
		return v, nil
	case *GraphicsState:
		if v == nil {
			return GraphicsState{}, nil
		}
		return *v, nil
	default:
		return GraphicsState{}, fmt.Errorf("unsupported graphics state %T", s)
	}
}

func colorTargets(spec shaderkit.RenderPassSpec, state GraphicsState) []gputypes.ColorTargetState {
	mask := state.WriteMask
	if mask == 0 {
		mask = gputypes.ColorWriteMaskAll
	}
	targets := make([]gputypes.ColorTargetState, len(spec.Colors))
	for i, c := range spec.Colors {
		targets[i] = gputypes.ColorTargetState{Format: c.Format, Blend: state.Blend, WriteMask: mask}
	}
	return targets
}

func findStage(stages []shaderkit.PipelineStage, st shaderkit.Stage) (shaderkit.PipelineStage, bool) {
	for _, s := range stages {
		if s.Stage == st {
			return s, true
		}
	}
	return shaderkit.PipelineStage{}, false
}

func entryPoint(name, def string) string {
	if name == "" {
		return def
	}
	return name
}
