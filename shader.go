package shaderkit

import (
	"fmt"
	"os"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"
	"weak"
)

// ShaderIndex is the stable identity of a materialized shader. Indices are
// never reused within a Context.
type ShaderIndex uint32

// PipelineSlot is one pipeline of a shader.
type PipelineSlot struct {
	// Handle is InvalidPipeline until the slot is built.
	Handle PipelineHandle

	// Info is the create-info snapshot the pipeline was built from.
	Info PipelineCreateInfo

	// RenderPass is the shared render pass of a graphics pipeline.
	RenderPass *RenderPass
}

// Built reports whether the slot holds a pipeline.
func (p PipelineSlot) Built() bool { return p.Handle != InvalidPipeline }

type stageProgram struct {
	source StageSource
	code   string
	module StageModule
}

// declaration is a resource added outside DeclareResources. It is replayed
// on every Initialize.
type declaration struct {
	set *DescriptorSetDescriptor
	pc  PushConstantRange
}

// Shader owns the stage programs, pipeline slots and resource layout of one
// Program and drives their (re)building through the context's scheduler.
//
// Initialize, Destroy, ClearPipelines and GetPipelineID with wait set may
// flush the scheduler and must be called from the goroutine that owns the
// Context. Valid, Loading, Slot, Slots and StageModule are safe from any
// goroutine.
type Shader struct {
	ctx      *Context
	index    ShaderIndex
	name     string
	program  Program
	kind     Kind
	builder  PipelineBatchBuilder
	kindHash uint64

	// Owner goroutine state.
	resources        ResourceBuilder
	declared         []declaration
	declaring        bool
	deferred         bool
	initialized      bool
	usesRenderPasses bool
	destroyed        bool

	// mu guards the state written by build jobs.
	mu          sync.RWMutex
	base        weak.Pointer[Shader]
	stages      [StageCount]*stageProgram
	layouts     []DescriptorSetLayout
	slots       []PipelineSlot
	sourceCache map[string]string

	valid   atomic.Bool
	loading atomic.Bool
}

func newShader(ctx *Context, p Program) (*Shader, error) {
	if p == nil {
		return nil, ErrNilProgram
	}
	kind, builder, err := builderFor(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %T", err, p)
	}

	s := &Shader{
		ctx:         ctx,
		index:       ctx.allocIndex(),
		name:        p.Name(),
		program:     p,
		kind:        kind,
		builder:     builder,
		kindHash:    TypeHash(reflect.TypeOf(p)),
		slots:       make([]PipelineSlot, max(p.PipelineCount(), 0)),
		sourceCache: make(map[string]string),
	}
	if kh, ok := p.(KindHasher); ok {
		s.kindHash = kh.KindHash()
	}
	if kind == KindGraphics {
		ctx.renderPasses.acquire()
		s.usesRenderPasses = true
	}
	return s, nil
}

func (s *Shader) id() uint32 { return uint32(s.index) }

// Index returns the shader's stable index.
func (s *Shader) Index() ShaderIndex { return s.index }

// Name returns the program name.
func (s *Shader) Name() string { return s.name }

// Program returns the program the shader was created from.
func (s *Shader) Program() Program { return s.program }

// Kind returns the pipeline family.
func (s *Shader) Kind() Kind { return s.kind }

// Context returns the owning context.
func (s *Shader) Context() *Context { return s.ctx }

// Valid reports whether the last build was finalized.
func (s *Shader) Valid() bool { return s.valid.Load() }

// Loading reports whether a build was started and not yet finalized. It
// stays true after a failed build until the shader is reinitialized.
func (s *Shader) Loading() bool { return s.loading.Load() }

// PipelineCount returns the number of pipeline slots.
func (s *Shader) PipelineCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.slots)
}

// Slot returns a copy of pipeline slot index.
func (s *Shader) Slot(index int) (PipelineSlot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.slots) {
		return PipelineSlot{}, false
	}
	return s.slots[index], true
}

// Slots returns a copy of all pipeline slots.
func (s *Shader) Slots() []PipelineSlot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.slots)
}

// StageModule returns the compiled module of stage.
func (s *Shader) StageModule(stage Stage) (StageModule, bool) {
	if int(stage) >= StageCount {
		return 0, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p := s.stages[stage]; p != nil {
		return p.module, true
	}
	return 0, false
}

// SourcePaths returns the file paths of stages loaded from disk.
func (s *Shader) SourcePaths() []string {
	var paths []string
	for _, src := range s.program.Stages() {
		if src.Code == "" && src.Path != "" {
			paths = append(paths, src.Path)
		}
	}
	return paths
}

// DescriptorSets returns the baked descriptor sets of the current build.
func (s *Shader) DescriptorSets() []*DescriptorSetDescriptor { return s.resources.Sets() }

// PushConstantRanges returns the merged push constant ranges of the
// current build.
func (s *Shader) PushConstantRanges() []PushConstantRange {
	return s.resources.PushConstantRanges()
}

// AddDescriptorSetGroup bakes d and appends it as the next descriptor set,
// returning the set index. It panics with an error wrapping
// ErrResourceLimitExceeded past MaxDescriptorSets sets.
//
// Sets added outside ResourceDeclarer.DeclareResources are kept and
// re-added on every Initialize.
func (s *Shader) AddDescriptorSetGroup(d *DescriptorSetDescriptor) int {
	idx := s.resources.AddDescriptorSetGroup(d)
	if !s.declaring {
		s.declared = append(s.declared, declaration{set: d})
	}
	return idx
}

// AttachPushConstantRange adds a push constant range, merging it with an
// adjacent range of the same stage mask.
func (s *Shader) AttachPushConstantRange(offset, size uint32, stages StageMask) {
	s.resources.AttachPushConstantRange(offset, size, stages)
	if !s.declaring {
		s.declared = append(s.declared, declaration{pc: PushConstantRange{Offset: offset, Size: size, Stages: stages}})
	}
}

// SetBaseShader makes s derive its pipelines from base. The reference is
// weak; the registry keeps shaders alive. Nil clears it.
func (s *Shader) SetBaseShader(base *Shader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if base == nil {
		s.base = weak.Pointer[Shader]{}
		return
	}
	s.base = weak.Make(base)
}

// ClearBaseShader removes the derivation reference.
func (s *Shader) ClearBaseShader() { s.SetBaseShader(nil) }

// Base returns the base shader, or nil if unset or gone.
func (s *Shader) Base() *Shader {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base.Value()
}

// Initialize (re)builds the shader. It flushes first if the shader still
// has jobs in flight, checks that the base shader has none, releases the
// current pipelines, rebuilds the resource aggregation and submits an init
// job. With reloadSources set, stage files are read from disk again.
//
// With multithreading disabled the build is complete when Initialize
// returns. Otherwise call Context.Flush or GetPipelineID with wait.
//
// A base shader with outstanding jobs is an ordering violation: it panics
// when assertions are enabled and is logged otherwise.
func (s *Shader) Initialize(reloadSources bool) {
	if s.destroyed {
		Logger().Warn("shaderkit: initialize on destroyed shader", "shader", s.name)
		return
	}
	sched := s.ctx.sched
	if sched.IsShaderQueued(s.id()) {
		sched.Flush()
	}
	if base := s.Base(); base != nil && sched.IsShaderQueued(base.id()) {
		err := fmt.Errorf("%w: %q derives from %q", ErrOrderingViolation, s.name, base.name)
		if s.ctx.opts.assertions {
			panic(err)
		}
		Logger().Error("shaderkit: ordering violation", "shader", s.name, "base", base.name, "err", err)
	}

	s.valid.Store(false)
	s.loading.Store(true)
	s.ClearPipelines()
	s.releaseModules()
	s.rebuildResources()

	s.deferred = !s.ctx.opts.inlinePipelines
	inline := !s.deferred
	Logger().Debug("shaderkit: init queued",
		"shader", s.name, "index", s.index, "reload", reloadSources, "inline", inline)
	sched.Init(s.id(), func() bool { return s.initJob(reloadSources, inline) }, s.FinalizeInitialization)
}

func (s *Shader) rebuildResources() {
	s.resources.Reset()
	for _, d := range s.declared {
		if d.set != nil {
			s.resources.AddDescriptorSetGroup(d.set)
		} else {
			s.resources.AttachPushConstantRange(d.pc.Offset, d.pc.Size, d.pc.Stages)
		}
	}
	if rd, ok := s.program.(ResourceDeclarer); ok {
		s.declaring = true
		defer func() { s.declaring = false }()
		rd.DeclareResources(s)
	}
}

// initJob compiles the stages and creates the descriptor set layouts. With
// inline set it also builds the pipeline batch.
func (s *Shader) initJob(reload, inline bool) bool {
	dev := s.ctx.device
	sets := s.resources.Sets()
	defines := s.resources.Defines()

	for _, set := range sets {
		if err := set.Validate(); err != nil {
			s.fail(NoStage, err)
			return false
		}
	}

	var stages [StageCount]*stageProgram
	var modules []StageModule
	release := func() {
		for _, m := range modules {
			dev.DestroyStageModule(m)
		}
	}

	for _, src := range s.program.Stages() {
		if int(src.Stage) >= StageCount {
			s.fail(src.Stage, fmt.Errorf("shaderkit: invalid stage %d", src.Stage))
			release()
			return false
		}
		if stages[src.Stage] != nil {
			s.fail(src.Stage, fmt.Errorf("shaderkit: duplicate %s stage", src.Stage))
			release()
			return false
		}
		code, err := s.loadSource(src, reload)
		if err != nil {
			s.fail(src.Stage, err)
			release()
			return false
		}
		m, err := dev.CompileStage(src, code, defines)
		if err != nil {
			s.fail(src.Stage, err)
			release()
			return false
		}
		modules = append(modules, m)
		stages[src.Stage] = &stageProgram{source: src, code: code, module: m}
	}

	layouts := make([]DescriptorSetLayout, 0, len(sets))
	for i, set := range sets {
		l, err := dev.CreateDescriptorSetLayout(fmt.Sprintf("%s/set%d", s.name, i), set)
		if err != nil {
			for _, l := range layouts {
				dev.DestroyDescriptorSetLayout(l)
			}
			release()
			s.fail(NoStage, fmt.Errorf("descriptor set %q: %w", set.Name, err))
			return false
		}
		layouts = append(layouts, l)
	}

	s.mu.Lock()
	s.stages = stages
	s.layouts = layouts
	s.mu.Unlock()

	if inline {
		s.builder.BuildPipelineBatch(s)
	}
	return true
}

func (s *Shader) loadSource(src StageSource, reload bool) (string, error) {
	if src.Code != "" {
		return src.Code, nil
	}
	if src.Path == "" {
		return "", fmt.Errorf("shaderkit: %s stage has neither code nor path", src.Stage)
	}

	if !reload {
		s.mu.RLock()
		code, ok := s.sourceCache[src.Path]
		s.mu.RUnlock()
		if ok {
			return code, nil
		}
	}

	b, err := os.ReadFile(src.Path)
	if err != nil {
		return "", err
	}
	code := string(b)
	s.mu.Lock()
	s.sourceCache[src.Path] = code
	s.mu.Unlock()
	return code, nil
}

// fail reports a build failure to the logger and the failure handler.
func (s *Shader) fail(stage Stage, err error) {
	be := newBuildError(s, stage, err)
	Logger().Error("shaderkit: build failed",
		"shader", s.name, "stage", stage, "info", be.InfoLog, "debug", be.DebugLog)
	if h := s.ctx.opts.onBuildFailure; h != nil {
		h(be)
	}
}

// buildPipelines runs the per-slot build loop. prepare fills the
// kind-specific part of the create-info; an error skips the slot.
//
// Each pipeline derives from the same slot of the base shader when one is
// set and built, otherwise from the first pipeline built in this batch.
func (s *Shader) buildPipelines(prepare func(index int, info *PipelineCreateInfo) error) {
	dev := s.ctx.device
	bp := s.kind.BindPoint()
	skipper, _ := s.program.(PipelineSkipper)

	s.mu.RLock()
	stages := make([]PipelineStage, 0, StageCount)
	for _, p := range s.stages {
		if p != nil {
			stages = append(stages, PipelineStage{Stage: p.source.Stage, Module: p.module, EntryPoint: p.source.EntryPoint})
		}
	}
	layouts := slices.Clone(s.layouts)
	n := len(s.slots)
	s.mu.RUnlock()

	sets := s.resources.Sets()
	pushConstants := slices.Clone(s.resources.PushConstantRanges())
	base := s.Base()

	var sibling PipelineHandle
	for i := range n {
		if skipper != nil && skipper.SkipPipeline(i) {
			continue
		}

		info := &PipelineCreateInfo{
			Label:         fmt.Sprintf("%s#%d", s.name, i),
			BindPoint:     bp,
			Index:         i,
			Stages:        stages,
			Layouts:       layouts,
			Sets:          sets,
			PushConstants: pushConstants,
			Base:          sibling,
		}
		if base != nil {
			if h := base.derivationHandle(i); h != InvalidPipeline {
				info.Base = h
			}
		}

		if err := prepare(i, info); err != nil {
			Logger().Warn("shaderkit: pipeline skipped", "shader", s.name, "index", i, "err", err)
			s.setSlot(i, PipelineSlot{})
			continue
		}
		h, err := dev.CreatePipeline(info)
		if err != nil || h == InvalidPipeline {
			Logger().Warn("shaderkit: pipeline creation failed", "shader", s.name, "index", i, "err", err)
			s.setSlot(i, PipelineSlot{})
			continue
		}

		s.setSlot(i, PipelineSlot{Handle: h, Info: *info, RenderPass: info.RenderPass})
		if sibling == InvalidPipeline {
			sibling = h
		}
		Logger().Debug("shaderkit: pipeline created",
			"shader", s.name, "index", i, "handle", h, "base", info.Base)
		s.ctx.sched.Bake(s.id(), uint64(h), uint32(bp))
	}
}

func (s *Shader) setSlot(i int, slot PipelineSlot) {
	s.mu.Lock()
	if i < len(s.slots) {
		s.slots[i] = slot
	}
	s.mu.Unlock()
}

// derivationHandle returns the pipeline a derived shader's slot i should
// use as its base: slot i when built, otherwise slot 0.
func (s *Shader) derivationHandle(i int) PipelineHandle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < len(s.slots) && s.slots[i].Built() {
		return s.slots[i].Handle
	}
	if len(s.slots) > 0 {
		return s.slots[0].Handle
	}
	return InvalidPipeline
}

// FinalizeInitialization marks the shader valid, builds the pipelines if
// their creation was deferred and runs the lifecycle hooks. The scheduler
// calls it from Flush on the owning goroutine.
func (s *Shader) FinalizeInitialization() {
	if s.destroyed {
		return
	}
	s.valid.Store(true)
	s.loading.Store(false)

	if s.deferred {
		s.builder.BuildPipelineBatch(s)
	}

	if !s.initialized {
		s.initialized = true
		if h, ok := s.program.(InitializedHook); ok {
			h.OnInitialized(s)
		}
	}
	if h, ok := s.program.(PipelinesInitializedHook); ok {
		h.OnPipelinesInitialized(s)
	}
	Logger().Debug("shaderkit: shader finalized", "shader", s.name, "index", s.index)
}

// GetPipelineID returns the handle of pipeline index. With waitForLoad set
// and the shader still loading, the scheduler is flushed first. Unbuilt or
// out of range slots return ErrPipelineNotFound.
func (s *Shader) GetPipelineID(index int, waitForLoad bool) (PipelineHandle, error) {
	if waitForLoad && s.loading.Load() {
		s.ctx.sched.Flush()
	}
	slot, ok := s.Slot(index)
	if !ok {
		return InvalidPipeline, fmt.Errorf("%w: %q index %d out of range", ErrPipelineNotFound, s.name, index)
	}
	if !slot.Built() {
		return InvalidPipeline, fmt.Errorf("%w: %q index %d not built", ErrPipelineNotFound, s.name, index)
	}
	return slot.Handle, nil
}

// ClearPipelines destroys every built pipeline and resets the slots. It
// waits for outstanding jobs of this shader and for the device to be idle.
func (s *Shader) ClearPipelines() {
	if s.ctx.sched.IsShaderQueued(s.id()) {
		s.ctx.sched.Flush()
	}

	s.mu.Lock()
	old := s.slots
	s.slots = make([]PipelineSlot, max(s.program.PipelineCount(), 0))
	s.mu.Unlock()

	var live []PipelineHandle
	for _, slot := range old {
		if slot.Built() {
			live = append(live, slot.Handle)
		}
	}
	if len(live) == 0 {
		return
	}

	if err := s.ctx.device.WaitIdle(); err != nil {
		Logger().Warn("shaderkit: wait idle failed", "shader", s.name, "err", err)
	}
	bp := s.kind.BindPoint()
	for _, h := range live {
		s.ctx.device.DestroyPipeline(h, bp)
	}
}

// releaseModules destroys the stage modules and descriptor set layouts.
func (s *Shader) releaseModules() {
	s.mu.Lock()
	stages := s.stages
	layouts := s.layouts
	s.stages = [StageCount]*stageProgram{}
	s.layouts = nil
	s.mu.Unlock()

	for _, p := range stages {
		if p != nil {
			s.ctx.device.DestroyStageModule(p.module)
		}
	}
	for _, l := range layouts {
		s.ctx.device.DestroyDescriptorSetLayout(l)
	}
}

// Destroy waits for outstanding jobs, releases every backend object the
// shader owns and drops its render pass cache reference.
func (s *Shader) Destroy() {
	if s.destroyed {
		return
	}
	if s.ctx.sched.IsShaderQueued(s.id()) {
		s.ctx.sched.Flush()
	}
	s.ClearPipelines()
	s.releaseModules()

	s.destroyed = true
	s.valid.Store(false)
	s.loading.Store(false)
	if s.usesRenderPasses {
		s.usesRenderPasses = false
		s.ctx.renderPasses.release()
	}
	Logger().Debug("shaderkit: shader destroyed", "shader", s.name, "index", s.index)
}
