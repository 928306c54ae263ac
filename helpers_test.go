package shaderkit

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gogpu/gputypes"
)

// mockDevice records every backend call. Safe for concurrent use.
type mockDevice struct {
	next atomic.Uint64

	// onCompile runs before each compile, outside the lock.
	onCompile func(src StageSource, code string)

	mu            sync.Mutex
	compiled      map[StageModule]string
	defines       [][]Define
	layouts       map[DescriptorSetLayout]*DescriptorSetDescriptor
	renderPasses  map[RenderPassHandle]RenderPassSpec
	pipelines     map[PipelineHandle]PipelineCreateInfo
	baked         []PipelineHandle
	destroyed     []PipelineHandle
	destroyedRP   []RenderPassHandle
	destroyedMods int
	waitIdle      int
	failPipelines map[string]bool // by label
}

func newMockDevice() *mockDevice {
	return &mockDevice{
		compiled:      make(map[StageModule]string),
		layouts:       make(map[DescriptorSetLayout]*DescriptorSetDescriptor),
		renderPasses:  make(map[RenderPassHandle]RenderPassSpec),
		pipelines:     make(map[PipelineHandle]PipelineCreateInfo),
		failPipelines: make(map[string]bool),
	}
}

func (d *mockDevice) handle() uint64 { return d.next.Add(1) }

func (d *mockDevice) CompileStage(src StageSource, code string, defines []Define) (StageModule, error) {
	if d.onCompile != nil {
		d.onCompile(src, code)
	}
	if strings.Contains(code, "#error") {
		return 0, &CompileError{
			InfoLog:  "syntax error in " + src.Stage.String(),
			DebugLog: code,
			Err:      errors.New("mock compile failed"),
		}
	}
	m := StageModule(d.handle())
	d.mu.Lock()
	d.compiled[m] = code
	d.defines = append(d.defines, defines)
	d.mu.Unlock()
	return m, nil
}

func (d *mockDevice) DestroyStageModule(m StageModule) {
	d.mu.Lock()
	delete(d.compiled, m)
	d.destroyedMods++
	d.mu.Unlock()
}

func (d *mockDevice) CreateDescriptorSetLayout(_ string, set *DescriptorSetDescriptor) (DescriptorSetLayout, error) {
	l := DescriptorSetLayout(d.handle())
	d.mu.Lock()
	d.layouts[l] = set
	d.mu.Unlock()
	return l, nil
}

func (d *mockDevice) DestroyDescriptorSetLayout(l DescriptorSetLayout) {
	d.mu.Lock()
	delete(d.layouts, l)
	d.mu.Unlock()
}

func (d *mockDevice) CreateRenderPass(_ string, spec RenderPassSpec) (RenderPassHandle, error) {
	h := RenderPassHandle(d.handle())
	d.mu.Lock()
	d.renderPasses[h] = spec
	d.mu.Unlock()
	return h, nil
}

func (d *mockDevice) DestroyRenderPass(h RenderPassHandle) {
	d.mu.Lock()
	delete(d.renderPasses, h)
	d.destroyedRP = append(d.destroyedRP, h)
	d.mu.Unlock()
}

func (d *mockDevice) CreatePipeline(info *PipelineCreateInfo) (PipelineHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failPipelines[info.Label] {
		return InvalidPipeline, errors.New("mock pipeline failure")
	}
	h := PipelineHandle(d.handle())
	d.pipelines[h] = *info
	return h, nil
}

func (d *mockDevice) BakePipeline(h PipelineHandle, _ BindPoint) error {
	d.mu.Lock()
	d.baked = append(d.baked, h)
	d.mu.Unlock()
	return nil
}

func (d *mockDevice) DestroyPipeline(h PipelineHandle, _ BindPoint) {
	d.mu.Lock()
	delete(d.pipelines, h)
	d.destroyed = append(d.destroyed, h)
	d.mu.Unlock()
}

func (d *mockDevice) WaitIdle() error {
	d.mu.Lock()
	d.waitIdle++
	d.mu.Unlock()
	return nil
}

func (d *mockDevice) failPipeline(label string) {
	d.mu.Lock()
	d.failPipelines[label] = true
	d.mu.Unlock()
}

func (d *mockDevice) pipelineInfo(h PipelineHandle) (PipelineCreateInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	info, ok := d.pipelines[h]
	return info, ok
}

func (d *mockDevice) bakedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.baked)
}

func (d *mockDevice) livePipelines() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pipelines)
}

func (d *mockDevice) liveRenderPasses() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.renderPasses)
}

func (d *mockDevice) wasDestroyed(h PipelineHandle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, x := range d.destroyed {
		if x == h {
			return true
		}
	}
	return false
}

var defaultColorPass = RenderPassSpec{
	Colors: []Attachment{{
		Format: gputypes.TextureFormatBGRA8Unorm,
		Load:   gputypes.LoadOpClear,
		Store:  gputypes.StoreOpStore,
	}},
}

// testGraphics is a configurable GraphicsProgram.
type testGraphics struct {
	name      string
	pipelines int
	stages    []StageSource
	passes    func(index int) RenderPassSpec
	skip      map[int]bool
	declare   func(s *Shader)

	initialized          int
	pipelinesInitialized int
}

func (p *testGraphics) Name() string       { return p.name }
func (p *testGraphics) PipelineCount() int { return p.pipelines }

func (p *testGraphics) Stages() []StageSource {
	if p.stages != nil {
		return p.stages
	}
	return []StageSource{
		{Stage: StageVertex, Code: "// vertex " + p.name, EntryPoint: "vs_main"},
		{Stage: StageFragment, Code: "// fragment " + p.name, EntryPoint: "fs_main"},
	}
}

func (p *testGraphics) RenderPass(index int) RenderPassSpec {
	if p.passes != nil {
		return p.passes(index)
	}
	return defaultColorPass
}

func (p *testGraphics) GraphicsState(index int) any { return index }

func (p *testGraphics) SkipPipeline(index int) bool { return p.skip[index] }

func (p *testGraphics) DeclareResources(s *Shader) {
	if p.declare != nil {
		p.declare(s)
	}
}

func (p *testGraphics) OnInitialized(*Shader)          { p.initialized++ }
func (p *testGraphics) OnPipelinesInitialized(*Shader) { p.pipelinesInitialized++ }

// testCompute is a single-pipeline ComputeProgram.
type testCompute struct {
	name string
	code string
}

func (p *testCompute) Name() string       { return p.name }
func (p *testCompute) PipelineCount() int { return 1 }
func (p *testCompute) Stages() []StageSource {
	code := p.code
	if code == "" {
		code = "// compute " + p.name
	}
	return []StageSource{{Stage: StageCompute, Code: code, EntryPoint: "main"}}
}

func (p *testCompute) ComputeState(int) any { return nil }

// testRaytracing builds one pipeline from raygen/miss/closest-hit stages.
type testRaytracing struct {
	name   string
	stages []StageSource
}

func (p *testRaytracing) Name() string       { return p.name }
func (p *testRaytracing) PipelineCount() int { return 1 }
func (p *testRaytracing) Stages() []StageSource {
	if p.stages != nil {
		return p.stages
	}
	return []StageSource{
		{Stage: StageRayGen, Code: "// raygen"},
		{Stage: StageMiss, Code: "// miss"},
		{Stage: StageClosestHit, Code: "// closest"},
	}
}

func (p *testRaytracing) RayGroups(int) []RayGroup {
	return []RayGroup{
		{Kind: RayGroupGeneral, General: StageRayGen, ClosestHit: NoStage, AnyHit: NoStage, Intersection: NoStage},
		{Kind: RayGroupGeneral, General: StageMiss, ClosestHit: NoStage, AnyHit: NoStage, Intersection: NoStage},
		{Kind: RayGroupTriangles, General: NoStage, ClosestHit: StageClosestHit, AnyHit: NoStage, Intersection: NoStage},
	}
}

func (p *testRaytracing) MaxRecursionDepth() uint32 { return 2 }

func newTestContext(t *testing.T, opts ...Option) *Context {
	t.Helper()
	ctx, _ := newTestContextDevice(t, opts...)
	return ctx
}

func newTestContextDevice(t *testing.T, opts ...Option) (*Context, *mockDevice) {
	t.Helper()
	dev := newMockDevice()
	ctx, err := NewContext(dev, opts...)
	if err != nil {
		t.Fatalf("NewContext() = %v", err)
	}
	t.Cleanup(ctx.Close)
	return ctx, dev
}

func mustShader(t *testing.T, ctx *Context, p Program) *Shader {
	t.Helper()
	s, err := ctx.NewShader(p)
	if err != nil {
		t.Fatalf("NewShader(%s) = %v", p.Name(), err)
	}
	return s
}

// expectPanic runs fn and returns the recovered error.
func expectPanic(t *testing.T, fn func()) (err error) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic")
		}
		e, ok := r.(error)
		if !ok {
			t.Fatalf("panic value %v is not an error", r)
		}
		err = e
	}()
	fn()
	return nil
}

// catchPanic runs fn and returns the recovered value as an error, or nil.
func catchPanic(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	fn()
	return nil
}
