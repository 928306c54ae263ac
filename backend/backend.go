package backend

import (
	"errors"
	"sync"

	"github.com/gogpu/shaderkit/backend/wgpu"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not registered.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNoAdapter is returned when a HAL instance exposes no adapters.
	ErrNoAdapter = errors.New("backend: no adapter")
)

// Opener opens a device on one backend. Options are passed on to
// wgpu.New.
type Opener func(opts ...wgpu.Option) (*Device, error)

// Device is an open backend device. It satisfies shaderkit.Device through
// the embedded *wgpu.Device.
type Device struct {
	*wgpu.Device

	name    string
	release func()
	once    sync.Once
}

// Name returns the backend the device was opened on.
func (d *Device) Name() string { return d.name }

// Close destroys every object created through the device, then the HAL
// device and its instance. It is idempotent.
func (d *Device) Close() {
	d.once.Do(func() {
		d.Device.Close()
		if d.release != nil {
			d.release()
		}
	})
}
