// Package backend opens headless shaderkit devices by name.
//
// Backends are registered via init() functions and selected at runtime.
// The noop and software HAL backends are registered on import:
//
//	import "github.com/gogpu/shaderkit/backend"
//
// # Backend Selection
//
// Use OpenDefault to open the best available backend, or Open to request
// a specific backend by name:
//
//	dev, err := backend.OpenDefault()
//
//	// Or request a specific backend
//	dev, err := backend.Open("noop", wgpu.WithWGSLSource(true))
//
// The returned *Device is a shaderkit.Device:
//
//	defer dev.Close()
//	ctx, err := shaderkit.NewContext(dev)
//
// Close the shaderkit.Context before the device.
//
// # Host Devices
//
// FromProvider borrows the HAL device of a gpucontext.DeviceProvider, so
// an application that already renders with gogpu builds its shaders on the
// same device:
//
//	dev, err := backend.FromProvider(app)
//
// # Available Backends
//
//   - "software": CPU HAL backend from gogpu/wgpu
//   - "noop": placeholder HAL objects, for validation and tests
package backend
