package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/shaderkit"
)

// halStage returns the HAL stage bit for st, or 0 when WebGPU has no
// such stage.
func halStage(st shaderkit.Stage) gputypes.ShaderStage {
	switch st {
	case shaderkit.StageVertex:
		return gputypes.ShaderStageVertex
	case shaderkit.StageFragment:
		return gputypes.ShaderStageFragment
	case shaderkit.StageCompute:
		return gputypes.ShaderStageCompute
	default:
		return gputypes.ShaderStageNone
	}
}

// visibility maps a stage mask to HAL stages. An empty mask, or one naming
// only stages WebGPU lacks, is visible everywhere.
func visibility(m shaderkit.StageMask) gputypes.ShaderStages {
	var v gputypes.ShaderStages
	for _, st := range m.Stages() {
		v |= halStage(st)
	}
	if v == gputypes.ShaderStageNone {
		return gputypes.ShaderStagesAll
	}
	return v
}

func layoutEntries(set *shaderkit.DescriptorSetDescriptor, storageFormat gputypes.TextureFormat) ([]gputypes.BindGroupLayoutEntry, error) {
	entries := make([]gputypes.BindGroupLayoutEntry, 0, len(set.Bindings))
	for _, b := range set.Bindings {
		if b.Index < 0 {
			return nil, fmt.Errorf("binding %q has no index", b.Name)
		}
		if b.Count > 1 {
			return nil, fmt.Errorf("%w: binding %q is an array of %d", ErrUnsupported, b.Name, b.Count)
		}
		e := gputypes.BindGroupLayoutEntry{
			Binding:    uint32(b.Index),
			Visibility: visibility(b.Stages),
		}
		switch b.Type {
		case shaderkit.DescriptorUniformBuffer:
			e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}
		case shaderkit.DescriptorStorageBuffer:
			e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}
		case shaderkit.DescriptorReadOnlyStorageBuffer:
			e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}
		case shaderkit.DescriptorSampledImage:
			e.Texture = &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeFloat,
				ViewDimension: gputypes.TextureViewDimension2D,
			}
		case shaderkit.DescriptorSampler:
			e.Sampler = &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering}
		case shaderkit.DescriptorStorageImage:
			e.StorageTexture = &gputypes.StorageTextureBindingLayout{
				Access:        gputypes.StorageTextureAccessWriteOnly,
				Format:        storageFormat,
				ViewDimension: gputypes.TextureViewDimension2D,
			}
		default:
			return nil, fmt.Errorf("%w: %s binding %q", ErrUnsupported, b.Type, b.Name)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
