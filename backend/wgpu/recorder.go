package wgpu

import (
	"fmt"

	"github.com/gogpu/shaderkit"
	"github.com/gogpu/wgpu/hal"
)

// Recorder is a shaderkit.CommandRecorder over a HAL pass encoder.
// A recorder wraps either a render or a compute pass, never both.
type Recorder struct {
	dev     *Device
	render  hal.RenderPassEncoder
	compute hal.ComputePassEncoder
}

// RenderRecorder records into a render pass.
func (d *Device) RenderRecorder(enc hal.RenderPassEncoder) *Recorder {
	return &Recorder{dev: d, render: enc}
}

// ComputeRecorder records into a compute pass.
func (d *Device) ComputeRecorder(enc hal.ComputePassEncoder) *Recorder {
	return &Recorder{dev: d, compute: enc}
}

// BindPipeline sets the pipeline on the pass.
func (r *Recorder) BindPipeline(bp shaderkit.BindPoint, h shaderkit.PipelineHandle) error {
	switch bp {
	case shaderkit.BindPointGraphics:
		if r.render == nil {
			return fmt.Errorf("%w: graphics pipeline on a compute pass", ErrWrongEncoder)
		}
		p, ok := r.dev.RenderPipeline(h)
		if !ok {
			return fmt.Errorf("%w: render pipeline %d", ErrUnknownHandle, h)
		}
		r.render.SetPipeline(p)
	case shaderkit.BindPointCompute:
		if r.compute == nil {
			return fmt.Errorf("%w: compute pipeline on a render pass", ErrWrongEncoder)
		}
		p, ok := r.dev.ComputePipeline(h)
		if !ok {
			return fmt.Errorf("%w: compute pipeline %d", ErrUnknownHandle, h)
		}
		r.compute.SetPipeline(p)
	default:
		return fmt.Errorf("%w: %s pipelines", ErrUnsupported, bp)
	}
	return nil
}

// PushConstants always fails: HAL pass encoders expose no push constant
// command.
func (r *Recorder) PushConstants(stages shaderkit.StageMask, offset uint32, data []byte) error {
	return fmt.Errorf("%w: push constants (%s, offset %d, %d bytes)", ErrUnsupported, stages, offset, len(data))
}

// BindDescriptorSets binds registered bind groups at consecutive indices
// starting at first.
func (r *Recorder) BindDescriptorSets(bp shaderkit.BindPoint, first uint32, sets []shaderkit.DescriptorSetHandle) error {
	groups := make([]hal.BindGroup, len(sets))
	r.dev.mu.Lock()
	for i, h := range sets {
		g, ok := r.dev.groups[h]
		if !ok {
			r.dev.mu.Unlock()
			return fmt.Errorf("%w: descriptor set %d", ErrUnknownHandle, h)
		}
		groups[i] = g
	}
	r.dev.mu.Unlock()

	for i, g := range groups {
		index := first + uint32(i)
		switch {
		case bp == shaderkit.BindPointGraphics && r.render != nil:
			r.render.SetBindGroup(index, g, nil)
		case bp == shaderkit.BindPointCompute && r.compute != nil:
			r.compute.SetBindGroup(index, g, nil)
		default:
			return fmt.Errorf("%w: %s descriptor sets", ErrWrongEncoder, bp)
		}
	}
	return nil
}

// Draw records a draw on a render pass.
func (r *Recorder) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) error {
	if r.render == nil {
		return fmt.Errorf("%w: draw on a compute pass", ErrWrongEncoder)
	}
	r.render.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
	return nil
}

// Dispatch records a dispatch on a compute pass.
func (r *Recorder) Dispatch(x, y, z uint32) error {
	if r.compute == nil {
		return fmt.Errorf("%w: dispatch on a render pass", ErrWrongEncoder)
	}
	r.compute.Dispatch(x, y, z)
	return nil
}
