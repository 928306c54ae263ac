package wgpu

import "errors"

var (
	// ErrNilDevice is returned by New for a nil HAL device.
	ErrNilDevice = errors.New("wgpu: HAL device is nil")

	// ErrUnsupported is returned for features WebGPU cannot express:
	// ray tracing, tessellation and geometry stages, binding arrays.
	ErrUnsupported = errors.New("wgpu: unsupported")

	// ErrUnknownHandle is returned when a handle was not created by this
	// device or was already destroyed.
	ErrUnknownHandle = errors.New("wgpu: unknown handle")

	// ErrMissingStage is returned when a pipeline lacks a required stage.
	ErrMissingStage = errors.New("wgpu: missing stage")

	// ErrWrongEncoder is returned when a recorder is asked to record
	// commands of the other pass type.
	ErrWrongEncoder = errors.New("wgpu: wrong pass encoder")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("wgpu: device closed")
)
