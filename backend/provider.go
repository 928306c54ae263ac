package backend

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/shaderkit"
	"github.com/gogpu/shaderkit/backend/wgpu"
	"github.com/gogpu/wgpu/hal"
)

// BackendProvider is the Name of devices borrowed from a host application.
const BackendProvider = "provider"

// ErrNoHalDevice is returned when a device provider exposes no HAL device.
var ErrNoHalDevice = errors.New("backend: provider does not expose a HAL device")

// FromProvider builds shaders on the device of a host application, such as
// a gogpu App. The provider must expose its HAL device, either through a
// HalDevice() any method or through a Device() value with a
// HalDevice() hal.Device method (a *wgpu.Device from github.com/gogpu/wgpu).
//
// The HAL device stays owned by the provider: Close destroys only the
// objects created through the returned Device.
func FromProvider(provider gpucontext.DeviceProvider, opts ...wgpu.Option) (*Device, error) {
	if provider == nil {
		return nil, ErrNoHalDevice
	}
	dev, err := providerHalDevice(provider)
	if err != nil {
		return nil, err
	}

	// A surface format doubles as the storage image format unless the
	// caller picked one.
	if f := provider.SurfaceFormat(); f != 0 {
		opts = append([]wgpu.Option{wgpu.WithStorageFormat(f)}, opts...)
	}
	d, err := wgpu.New(dev, opts...)
	if err != nil {
		return nil, err
	}

	info := provider.AdapterInfo()
	shaderkit.Logger().Info("backend: using provider device",
		"adapter", info.Name, "type", info.Type, "format", provider.SurfaceFormat())
	return &Device{Device: d, name: BackendProvider}, nil
}

func providerHalDevice(provider gpucontext.DeviceProvider) (hal.Device, error) {
	type halProvider interface {
		HalDevice() any
	}
	type halDevice interface {
		HalDevice() hal.Device
	}

	if hp, ok := provider.(halProvider); ok {
		dev, ok := hp.HalDevice().(hal.Device)
		if !ok || dev == nil {
			return nil, fmt.Errorf("%w: HalDevice returned %T", ErrNoHalDevice, hp.HalDevice())
		}
		return dev, nil
	}
	if hd, ok := provider.Device().(halDevice); ok {
		if dev := hd.HalDevice(); dev != nil {
			return dev, nil
		}
	}
	return nil, ErrNoHalDevice
}
