// Package manifest loads TOML shader manifests and turns them into
// shaderkit programs.
//
// A manifest lists context options, shared descriptor sets and shaders:
//
//	[context]
//	multithreading = true
//
//	[[set]]
//	name = "common"
//	  [[set.binding]]
//	  name = "globals"
//	  type = "uniform_buffer"
//
//	[[shader]]
//	name = "blit"
//	kind = "graphics"
//	pipelines = 1
//	  [[shader.stage]]
//	  stage = "vertex"
//	  path = "blit.wgsl"
//	  entry = "vs_main"
//	  [[shader.pass]]
//	  colors = ["BGRA8Unorm"]
//
// Stage paths are relative to the manifest file. Texture formats use the
// gputypes names.
package manifest
