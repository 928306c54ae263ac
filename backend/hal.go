package backend

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/shaderkit/backend/wgpu"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
	"github.com/gogpu/wgpu/hal/software"
)

// Backend name constants.
const (
	// BackendNoop is the HAL backend that creates placeholder objects.
	// Shaders are still compiled, so it validates sources and layouts.
	BackendNoop = "noop"
	// BackendSoftware is the CPU HAL backend. It interprets compute
	// pipelines from their SPIR-V.
	BackendSoftware = "software"
)

// init registers the headless HAL backends on package import.
func init() {
	Register(BackendNoop, halOpener(BackendNoop, noop.API{}))
	Register(BackendSoftware, halOpener(BackendSoftware, software.API{}))
}

// halOpener opens the first adapter of api.
func halOpener(name string, api hal.Backend) Opener {
	return func(opts ...wgpu.Option) (*Device, error) {
		instance, err := api.CreateInstance(nil)
		if err != nil {
			return nil, fmt.Errorf("backend %s: create instance: %w", name, err)
		}
		adapters := instance.EnumerateAdapters(nil)
		if len(adapters) == 0 {
			instance.Destroy()
			return nil, fmt.Errorf("backend %s: %w", name, ErrNoAdapter)
		}
		open, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
		if err != nil {
			instance.Destroy()
			return nil, fmt.Errorf("backend %s: open adapter: %w", name, err)
		}
		dev, err := wgpu.New(open.Device, opts...)
		if err != nil {
			open.Device.Destroy()
			instance.Destroy()
			return nil, err
		}
		release := func() {
			open.Device.Destroy()
			instance.Destroy()
		}
		return &Device{Device: dev, name: name, release: release}, nil
	}
}
