// Package shaderkit builds GPU shader pipelines asynchronously.
//
// # Overview
//
// A [Shader] turns a declarative [Program] (stage sources, descriptor sets,
// push constant ranges, fixed-function state) into one or more backend
// pipeline objects. Compilation and pipeline creation run on an init worker
// goroutine, pipeline finalization ("bake") on a bake worker, and the owning
// goroutine collects finished shaders with [Context.Flush].
//
// # Quick Start
//
//	ctx, err := shaderkit.NewContext(device)
//	if err != nil {
//	    return err
//	}
//	defer ctx.Close()
//
//	err = ctx.Registry().RegisterFactory("sprite", func() (shaderkit.Program, error) {
//	    return &spriteProgram{}, nil
//	})
//	sprite, err := ctx.Registry().GetShader("sprite")
//	handle, err := sprite.GetPipelineID(0, true) // flushes if still loading
//
// # Shader kinds
//
// The kind is picked by the interface a program implements:
// [GraphicsProgram], [ComputeProgram] or [RaytracingProgram]. Graphics
// pipelines share render passes through the context's [RenderPassCache].
//
// # Derivation
//
// [Shader.SetBaseShader] makes a shader's pipelines derive from another
// shader's. The base shader must have no outstanding build jobs when the
// derived shader is initialized; flush it first.
//
// # Threading
//
// The goroutine that creates the [Context] owns it. Flush, Initialize,
// Destroy and Close run there. With [WithMultithreading] disabled every
// build completes inside Initialize.
//
// # Backends
//
// The core talks to the GPU only through [Device]. backend/wgpu implements
// it over gogpu/wgpu's hal layer.
package shaderkit
