package shaderkit

// Program supplies a shader's content. The pipeline kind is chosen by which
// of GraphicsProgram, ComputeProgram or RaytracingProgram it implements.
type Program interface {
	// Name is the shader's debug and registry name.
	Name() string

	// Stages lists the stage programs. At most one source per stage kind.
	Stages() []StageSource

	// PipelineCount is the number of pipeline slots.
	PipelineCount() int
}

// GraphicsProgram builds rasterization pipelines.
type GraphicsProgram interface {
	Program

	// RenderPass returns the attachment layout of pipeline index.
	RenderPass(index int) RenderPassSpec

	// GraphicsState returns the fixed-function state of pipeline index,
	// passed to the device untouched.
	GraphicsState(index int) any
}

// ComputeProgram builds compute pipelines.
type ComputeProgram interface {
	Program
	ComputeState(index int) any
}

// RaytracingProgram builds ray tracing pipelines.
type RaytracingProgram interface {
	Program
	RayGroups(index int) []RayGroup
	MaxRecursionDepth() uint32
}

// ResourceDeclarer is implemented by programs that declare descriptor sets
// and push constant ranges. DeclareResources runs on every Initialize, after
// the shader's aggregation was reset.
type ResourceDeclarer interface {
	DeclareResources(s *Shader)
}

// PipelineSkipper lets a program leave pipeline slots unbuilt.
type PipelineSkipper interface {
	SkipPipeline(index int) bool
}

// InitializedHook runs once, after the first successful build is finalized.
type InitializedHook interface {
	OnInitialized(s *Shader)
}

// PipelinesInitializedHook runs after every finalized build.
type PipelinesInitializedHook interface {
	OnPipelinesInitialized(s *Shader)
}

// Kind is the pipeline family of a shader.
type Kind uint8

const (
	KindGraphics Kind = iota
	KindCompute
	KindRaytracing
)

func (k Kind) String() string { return k.BindPoint().String() }

// BindPoint returns the bind point pipelines of this kind use.
func (k Kind) BindPoint() BindPoint {
	switch k {
	case KindCompute:
		return BindPointCompute
	case KindRaytracing:
		return BindPointRaytracing
	default:
		return BindPointGraphics
	}
}

// PipelineBatchBuilder builds every pipeline slot of a shader. It is the
// only kind-specific capability the build jobs use.
type PipelineBatchBuilder interface {
	BuildPipelineBatch(s *Shader)
}

// builderFor picks the batch builder for p. Graphics wins when a program
// implements several kinds.
func builderFor(p Program) (Kind, PipelineBatchBuilder, error) {
	switch p := p.(type) {
	case GraphicsProgram:
		return KindGraphics, graphicsBuilder{program: p}, nil
	case ComputeProgram:
		return KindCompute, computeBuilder{program: p}, nil
	case RaytracingProgram:
		return KindRaytracing, raytracingBuilder{program: p}, nil
	default:
		return 0, nil, ErrUnknownProgramKind
	}
}

// KindHasher overrides the render pass cache key of a program. By default
// the key is TypeHash of the program's dynamic type, so programs sharing a
// Go type but not an attachment layout should implement it.
type KindHasher interface {
	KindHash() uint64
}
