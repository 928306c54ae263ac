// Package wgpu implements shaderkit.Device on top of a gogpu/wgpu HAL
// device.
//
// WGSL stage sources are compiled to SPIR-V with naga. Descriptor set
// layouts become bind group layouts and pipelines are created through the
// HAL, so any HAL backend (Vulkan, Metal, DX12, GLES or the noop device
// used in tests) can host a shaderkit.Context:
//
//	dev, err := wgpu.New(open.Device)
//	if err != nil {
//	    return err
//	}
//	defer dev.Close()
//
//	ctx, err := shaderkit.NewContext(dev)
//
// # Mapping
//
// WebGPU has no render pass objects, no pipeline derivation and no ray
// tracing. Render passes are recorded as attachment formats that become
// the color and depth targets of graphics pipelines. A derivation base is
// accepted and ignored. Ray tracing pipelines fail with ErrUnsupported.
//
// Resource defines are prepended to every stage as WGSL constants:
//
//	const SET_FRAME: i32 = 0;
//	const BINDING_FRAME_CAMERA: i32 = 0;
//
// # Recording
//
// RenderRecorder and ComputeRecorder wrap HAL pass encoders as
// shaderkit.CommandRecorder. Bind groups are registered with the device
// to obtain the DescriptorSetHandle values passed to
// BindState.RecordBindDescriptorSets.
package wgpu
