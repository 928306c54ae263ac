package shaderkit

import (
	"errors"
	"fmt"

	"github.com/gogpu/shaderkit/internal/scheduler"
)

var (
	// ErrResourceLimitExceeded is the panic value (wrapped) when a shader
	// declares more than MaxDescriptorSets descriptor sets.
	ErrResourceLimitExceeded = errors.New("shaderkit: resource limit exceeded")

	// ErrOrderingViolation reports that a shader was initialized while its
	// base shader still had outstanding build jobs.
	ErrOrderingViolation = errors.New("shaderkit: base shader has outstanding build jobs")

	// ErrMisuse is the panic value (wrapped) when Flush runs on a goroutine
	// that does not own the context.
	ErrMisuse = scheduler.ErrMisuse

	// ErrBuildFailure is matched by every *BuildError.
	ErrBuildFailure = errors.New("shaderkit: shader build failed")

	// ErrPipelineNotFound is returned for out-of-range or unbuilt pipeline slots.
	ErrPipelineNotFound = errors.New("shaderkit: pipeline not found")

	// ErrShaderNotFound is returned when no shader or factory matches a name.
	ErrShaderNotFound = errors.New("shaderkit: shader not found")

	ErrNilDevice          = errors.New("shaderkit: device is nil")
	ErrNilProgram         = errors.New("shaderkit: program is nil")
	ErrUnknownProgramKind = errors.New("shaderkit: program implements no pipeline kind")
	ErrContextClosed      = errors.New("shaderkit: context is closed")
	ErrWrongBindPoint     = errors.New("shaderkit: operation not valid for pipeline bind point")
	ErrNoPushConstants    = errors.New("shaderkit: no push constant range covers the write")
)

// CompileError is returned by Device.CompileStage implementations to carry
// compiler output. It ends up in BuildError.
type CompileError struct {
	InfoLog  string
	DebugLog string
	Err      error
}

func (e *CompileError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("compile: %v: %s", e.Err, e.InfoLog)
	}
	return "compile: " + e.InfoLog
}

func (e *CompileError) Unwrap() error { return e.Err }

// BuildError describes a failed shader build. It is delivered to the build
// failure handler and logged; it is never returned from Initialize.
type BuildError struct {
	Shader   string
	Index    ShaderIndex
	Stage    Stage
	InfoLog  string
	DebugLog string
	Err      error
}

func (e *BuildError) Error() string {
	if e.Stage == NoStage {
		return fmt.Sprintf("shaderkit: build %q: %v", e.Shader, e.Err)
	}
	return fmt.Sprintf("shaderkit: build %q (%s stage): %v", e.Shader, e.Stage, e.Err)
}

func (e *BuildError) Unwrap() []error { return []error{ErrBuildFailure, e.Err} }

func newBuildError(s *Shader, stage Stage, err error) *BuildError {
	be := &BuildError{Shader: s.name, Index: s.index, Stage: stage, Err: err}
	var ce *CompileError
	if errors.As(err, &ce) {
		be.InfoLog = ce.InfoLog
		be.DebugLog = ce.DebugLog
	} else if err != nil {
		be.InfoLog = err.Error()
	}
	return be
}
