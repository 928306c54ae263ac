package shaderkit

// Opaque backend handles. Zero is never a valid handle.
type (
	PipelineHandle      uint64
	StageModule         uint64
	DescriptorSetLayout uint64
	RenderPassHandle    uint64
	DescriptorSetHandle uint64
)

// InvalidPipeline is the "unassigned" pipeline handle.
const InvalidPipeline PipelineHandle = 0

// Define is a preprocessor definition passed to the stage compiler.
type Define struct {
	Name  string
	Value int
}

// PipelineStage binds a compiled module to a stage for pipeline creation.
type PipelineStage struct {
	Stage      Stage
	Module     StageModule
	EntryPoint string
}

// RayGroupKind classifies a ray tracing shader group.
type RayGroupKind uint8

const (
	RayGroupGeneral RayGroupKind = iota
	RayGroupTriangles
	RayGroupProcedural
)

// RayGroup is one ray tracing shader group. Unused members are NoStage.
type RayGroup struct {
	Kind         RayGroupKind
	General      Stage
	ClosestHit   Stage
	AnyHit       Stage
	Intersection Stage
}

// PipelineCreateInfo is the snapshot handed to Device.CreatePipeline and
// kept in the pipeline slot afterwards.
type PipelineCreateInfo struct {
	Label     string
	BindPoint BindPoint
	Index     int

	Stages        []PipelineStage
	Layouts       []DescriptorSetLayout
	Sets          []*DescriptorSetDescriptor
	PushConstants []PushConstantRange

	// Base is the pipeline this one derives from, or InvalidPipeline.
	Base PipelineHandle

	// RenderPass is set for graphics pipelines.
	RenderPass *RenderPass

	// State carries kind-specific fixed-function state supplied by the
	// program. The core never inspects it.
	State any

	RayGroups         []RayGroup
	MaxRecursionDepth uint32
}

// Device is the backend boundary. The core calls these operations; it never
// implements them. CreatePipeline and CompileStage may be called from the
// init worker goroutine, BakePipeline from the bake worker, so
// implementations must be safe for concurrent use.
type Device interface {
	// CompileStage compiles stage source with the given definitions and
	// creates a stage module. Compile failures should be *CompileError.
	CompileStage(src StageSource, code string, defines []Define) (StageModule, error)
	DestroyStageModule(StageModule)

	CreateDescriptorSetLayout(label string, set *DescriptorSetDescriptor) (DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(DescriptorSetLayout)

	CreateRenderPass(label string, spec RenderPassSpec) (RenderPassHandle, error)
	DestroyRenderPass(RenderPassHandle)

	CreatePipeline(info *PipelineCreateInfo) (PipelineHandle, error)
	BakePipeline(PipelineHandle, BindPoint) error
	DestroyPipeline(PipelineHandle, BindPoint)

	// WaitIdle blocks until the device has finished all submitted work.
	WaitIdle() error
}
