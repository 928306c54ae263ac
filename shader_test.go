package shaderkit

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
)

func TestInitializeSynchronousWhenSingleThreaded(t *testing.T) {
	ctx, dev := newTestContextDevice(t, WithMultithreading(false))
	prog := &testGraphics{name: "sync", pipelines: 2}
	s := mustShader(t, ctx, prog)

	s.Initialize(false)

	if !s.Valid() {
		t.Fatal("Valid() = false right after synchronous Initialize")
	}
	if s.Loading() {
		t.Error("Loading() = true after synchronous Initialize")
	}
	if ctx.IsShaderQueued(s) {
		t.Error("shader still queued")
	}
	for i := range 2 {
		if _, err := s.GetPipelineID(i, false); err != nil {
			t.Errorf("GetPipelineID(%d) = %v", i, err)
		}
	}
	if got := dev.bakedCount(); got != 2 {
		t.Errorf("baked = %d, want 2", got)
	}
	if prog.initialized != 1 || prog.pipelinesInitialized != 1 {
		t.Errorf("hooks = (%d, %d), want (1, 1)", prog.initialized, prog.pipelinesInitialized)
	}
}

func TestFlushLeavesEverySlotBuiltOrFailed(t *testing.T) {
	for _, inline := range []bool{true, false} {
		name := "deferred"
		if inline {
			name = "inline"
		}
		t.Run(name, func(t *testing.T) {
			ctx, dev := newTestContextDevice(t, WithInlinePipelineCreation(inline))
			dev.failPipeline("b#1")

			var shaders []*Shader
			for _, n := range []string{"a", "b", "c"} {
				s := mustShader(t, ctx, &testGraphics{name: n, pipelines: 3})
				s.Initialize(false)
				shaders = append(shaders, s)
			}
			ctx.Flush()

			for _, s := range shaders {
				if ctx.IsShaderQueued(s) {
					t.Errorf("%s still queued after Flush", s.Name())
				}
				if !s.Valid() {
					t.Errorf("%s not valid after Flush", s.Name())
				}
				for i := range 3 {
					h, err := s.GetPipelineID(i, false)
					failed := s.Name() == "b" && i == 1
					switch {
					case failed && !errors.Is(err, ErrPipelineNotFound):
						t.Errorf("%s#%d: err = %v, want ErrPipelineNotFound", s.Name(), i, err)
					case !failed && (err != nil || h == InvalidPipeline):
						t.Errorf("%s#%d: (%d, %v), want built", s.Name(), i, h, err)
					}
				}
			}
			if got := dev.bakedCount(); got != 8 {
				t.Errorf("baked = %d, want 8", got)
			}
		})
	}
}

func TestReinitializeReplacesHandles(t *testing.T) {
	ctx, dev := newTestContextDevice(t)
	s := mustShader(t, ctx, &testGraphics{name: "re", pipelines: 3})

	s.Initialize(false)
	ctx.Flush()
	first := s.Slots()

	s.Initialize(false)
	ctx.Flush()
	second := s.Slots()

	for i := range first {
		if !first[i].Built() || !second[i].Built() {
			t.Fatalf("slot %d not built in both builds", i)
		}
		if first[i].Handle == second[i].Handle {
			t.Errorf("slot %d kept stale handle %d", i, first[i].Handle)
		}
		if !dev.wasDestroyed(first[i].Handle) {
			t.Errorf("old handle %d not destroyed", first[i].Handle)
		}
		if _, ok := dev.pipelineInfo(second[i].Handle); !ok {
			t.Errorf("new handle %d not live", second[i].Handle)
		}
	}
	if dev.waitIdle == 0 {
		t.Error("pipelines cleared without waiting for device idle")
	}
	if got := dev.livePipelines(); got != 3 {
		t.Errorf("live pipelines = %d, want 3", got)
	}
}

func TestInitializeWhileQueuedFlushesFirst(t *testing.T) {
	ctx, dev := newTestContextDevice(t)
	gate := make(chan struct{})
	var once sync.Once
	dev.onCompile = func(_ StageSource, code string) {
		if strings.Contains(code, "gated") {
			once.Do(func() { <-gate })
		}
	}

	s := mustShader(t, ctx, &testGraphics{
		name:      "gated",
		pipelines: 1,
		stages:    []StageSource{{Stage: StageVertex, Code: "// gated"}},
	})
	s.Initialize(false)
	if !ctx.IsShaderQueued(s) {
		t.Fatal("shader not queued while compile is blocked")
	}
	close(gate)

	s.Initialize(false) // must flush the first build before starting again
	ctx.Flush()

	if !s.Valid() {
		t.Error("shader not valid after second build")
	}
	if got := dev.livePipelines(); got != 1 {
		t.Errorf("live pipelines = %d, want 1", got)
	}
}

func TestSiblingPipelinesDeriveFromFirstBuilt(t *testing.T) {
	ctx, dev := newTestContextDevice(t, WithMultithreading(false))
	dev.failPipeline("sib#0")
	s := mustShader(t, ctx, &testGraphics{name: "sib", pipelines: 3})
	s.Initialize(false)

	first, err := s.GetPipelineID(1, false)
	if err != nil {
		t.Fatalf("GetPipelineID(1) = %v", err)
	}
	info, _ := dev.pipelineInfo(first)
	if info.Base != InvalidPipeline {
		t.Errorf("first built pipeline base = %d, want none", info.Base)
	}
	h2, _ := s.GetPipelineID(2, false)
	info2, _ := dev.pipelineInfo(h2)
	if info2.Base != first {
		t.Errorf("pipeline 2 base = %d, want %d", info2.Base, first)
	}
}

func TestDerivationOrdering(t *testing.T) {
	ctx, dev := newTestContextDevice(t)
	gate := make(chan struct{})
	dev.onCompile = func(_ StageSource, code string) {
		if strings.Contains(code, "base-gated") {
			<-gate
		}
	}

	a := mustShader(t, ctx, &testGraphics{
		name:      "a",
		pipelines: 2,
		stages:    []StageSource{{Stage: StageVertex, Code: "// base-gated"}},
	})
	b := mustShader(t, ctx, &testGraphics{name: "b", pipelines: 2})
	b.SetBaseShader(a)
	if b.Base() != a {
		t.Fatal("Base() did not return the base shader")
	}

	a.Initialize(false)
	err := expectPanic(t, func() { b.Initialize(false) })
	if !errors.Is(err, ErrOrderingViolation) {
		t.Errorf("panic = %v, want ErrOrderingViolation", err)
	}

	close(gate)
	ctx.Flush()
	b.Initialize(false)
	ctx.Flush()

	for i := range 2 {
		ha, err := a.GetPipelineID(i, false)
		if err != nil {
			t.Fatalf("a.GetPipelineID(%d) = %v", i, err)
		}
		hb, err := b.GetPipelineID(i, false)
		if err != nil {
			t.Fatalf("b.GetPipelineID(%d) = %v", i, err)
		}
		info, _ := dev.pipelineInfo(hb)
		if info.Base != ha {
			t.Errorf("b#%d base = %d, want a#%d = %d", i, info.Base, i, ha)
		}
	}

	b.ClearBaseShader()
	if b.Base() != nil {
		t.Error("Base() not nil after ClearBaseShader")
	}
}

func TestDerivationOrderingWithoutAssertions(t *testing.T) {
	ctx, dev := newTestContextDevice(t, WithAssertions(false))
	gate := make(chan struct{})
	dev.onCompile = func(_ StageSource, code string) {
		if strings.Contains(code, "base-gated") {
			<-gate
		}
	}

	a := mustShader(t, ctx, &testGraphics{
		name:      "a",
		pipelines: 1,
		stages:    []StageSource{{Stage: StageVertex, Code: "// base-gated"}},
	})
	b := mustShader(t, ctx, &testGraphics{name: "b", pipelines: 1})
	b.SetBaseShader(a)

	a.Initialize(false)
	b.Initialize(false) // logged, not fatal
	close(gate)
	ctx.Flush()

	if !a.Valid() || !b.Valid() {
		t.Errorf("valid = (%v, %v), want both", a.Valid(), b.Valid())
	}
}

func TestDerivationDeferred(t *testing.T) {
	ctx, dev := newTestContextDevice(t, WithInlinePipelineCreation(false))
	a := mustShader(t, ctx, &testGraphics{name: "a", pipelines: 1})
	b := mustShader(t, ctx, &testGraphics{name: "b", pipelines: 1})
	b.SetBaseShader(a)

	a.Initialize(false)
	ctx.Flush()
	b.Initialize(false)
	ctx.Flush()

	ha, _ := a.GetPipelineID(0, false)
	hb, err := b.GetPipelineID(0, false)
	if err != nil {
		t.Fatalf("b.GetPipelineID(0) = %v", err)
	}
	if info, _ := dev.pipelineInfo(hb); info.Base != ha {
		t.Errorf("b#0 base = %d, want %d", info.Base, ha)
	}
}

func TestBuildFailureIsReported(t *testing.T) {
	var mu sync.Mutex
	var reports []*BuildError
	ctx := newTestContext(t, WithBuildFailureHandler(func(be *BuildError) {
		mu.Lock()
		reports = append(reports, be)
		mu.Unlock()
	}))

	bad := mustShader(t, ctx, &testGraphics{
		name:      "bad",
		pipelines: 1,
		stages: []StageSource{
			{Stage: StageVertex, Code: "// ok"},
			{Stage: StageFragment, Code: "#error broken"},
		},
	})
	good := mustShader(t, ctx, &testGraphics{name: "good", pipelines: 1})
	bad.Initialize(false)
	good.Initialize(false)
	ctx.Flush()

	if bad.Valid() {
		t.Error("failed shader is valid")
	}
	if !good.Valid() {
		t.Error("unrelated shader invalid after sibling failure")
	}
	if _, err := bad.GetPipelineID(0, true); !errors.Is(err, ErrPipelineNotFound) {
		t.Errorf("GetPipelineID on failed shader = %v, want ErrPipelineNotFound", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(reports) != 1 {
		t.Fatalf("reports = %d, want 1", len(reports))
	}
	be := reports[0]
	if be.Shader != "bad" || be.Stage != StageFragment {
		t.Errorf("report = (%q, %s), want (bad, fragment)", be.Shader, be.Stage)
	}
	if !strings.Contains(be.InfoLog, "syntax error") || be.DebugLog != "#error broken" {
		t.Errorf("logs = (%q, %q)", be.InfoLog, be.DebugLog)
	}
	if !errors.Is(be, ErrBuildFailure) {
		t.Error("BuildError does not match ErrBuildFailure")
	}
}

func TestGetPipelineIDWaitsForLoad(t *testing.T) {
	ctx := newTestContext(t)
	s := mustShader(t, ctx, &testGraphics{name: "wait", pipelines: 1})
	s.Initialize(false)

	h, err := s.GetPipelineID(0, true)
	if err != nil || h == InvalidPipeline {
		t.Fatalf("GetPipelineID(0, true) = (%d, %v)", h, err)
	}
	if !s.Valid() {
		t.Error("shader not valid after waiting")
	}
	if _, err := s.GetPipelineID(5, false); !errors.Is(err, ErrPipelineNotFound) {
		t.Errorf("out of range err = %v, want ErrPipelineNotFound", err)
	}
	if _, err := s.GetPipelineID(-1, false); !errors.Is(err, ErrPipelineNotFound) {
		t.Errorf("negative index err = %v, want ErrPipelineNotFound", err)
	}
}

func TestSkipPipeline(t *testing.T) {
	ctx := newTestContext(t, WithMultithreading(false))
	s := mustShader(t, ctx, &testGraphics{name: "skip", pipelines: 3, skip: map[int]bool{1: true}})
	s.Initialize(false)

	if slot, _ := s.Slot(1); slot.Built() {
		t.Error("skipped slot was built")
	}
	if slot, _ := s.Slot(2); !slot.Built() {
		t.Error("slot after skipped slot not built")
	}
}

func TestLifecycleHooks(t *testing.T) {
	ctx := newTestContext(t, WithMultithreading(false))
	prog := &testGraphics{name: "hooks", pipelines: 1}
	s := mustShader(t, ctx, prog)

	s.Initialize(false)
	s.Initialize(false)

	if prog.initialized != 1 {
		t.Errorf("OnInitialized ran %d times, want 1", prog.initialized)
	}
	if prog.pipelinesInitialized != 2 {
		t.Errorf("OnPipelinesInitialized ran %d times, want 2", prog.pipelinesInitialized)
	}
}

func TestResourcesRebuiltOnInitialize(t *testing.T) {
	ctx, dev := newTestContextDevice(t, WithMultithreading(false))
	prog := &testGraphics{name: "res", pipelines: 1}
	prog.declare = func(s *Shader) {
		s.AddDescriptorSetGroup(&DescriptorSetDescriptor{
			Name: "frame",
			Bindings: []Binding{
				{Name: "camera", Type: DescriptorUniformBuffer, Stages: StageMaskVertex, Index: AutoIndex},
			},
		})
		s.AttachPushConstantRange(0, 16, StageMaskFragment)
	}
	s := mustShader(t, ctx, prog)
	s.AttachPushConstantRange(16, 16, StageMaskFragment)

	s.Initialize(false)
	s.Initialize(false)

	if got := len(s.DescriptorSets()); got != 1 {
		t.Errorf("descriptor sets = %d, want 1", got)
	}
	want := []PushConstantRange{{Offset: 0, Size: 32, Stages: StageMaskFragment}}
	if got := s.PushConstantRanges(); !slices.Equal(got, want) {
		t.Errorf("push constants = %v, want %v", got, want)
	}

	h, _ := s.GetPipelineID(0, false)
	info, _ := dev.pipelineInfo(h)
	if len(info.Layouts) != 1 || len(info.PushConstants) != 1 {
		t.Errorf("create info layouts=%d push=%d, want 1 and 1", len(info.Layouts), len(info.PushConstants))
	}

	dev.mu.Lock()
	defs := dev.defines[len(dev.defines)-1]
	dev.mu.Unlock()
	if !slices.Contains(defs, Define{Name: "SET_FRAME", Value: 0}) ||
		!slices.Contains(defs, Define{Name: "BINDING_FRAME_CAMERA", Value: 0}) {
		t.Errorf("defines = %v", defs)
	}
}

func TestSourceReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shader.wgsl")
	if err := os.WriteFile(path, []byte("// v1"), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, dev := newTestContextDevice(t, WithMultithreading(false))
	s := mustShader(t, ctx, &fileCompute{path: path})

	code := func() string {
		m, ok := s.StageModule(StageCompute)
		if !ok {
			t.Fatal("no compute module")
		}
		dev.mu.Lock()
		defer dev.mu.Unlock()
		return dev.compiled[m]
	}

	s.Initialize(false)
	if got := code(); got != "// v1" {
		t.Fatalf("code = %q, want v1", got)
	}

	if err := os.WriteFile(path, []byte("// v2"), 0o600); err != nil {
		t.Fatal(err)
	}
	s.Initialize(false)
	if got := code(); got != "// v1" {
		t.Errorf("without reload code = %q, want cached v1", got)
	}
	s.Initialize(true)
	if got := code(); got != "// v2" {
		t.Errorf("after reload code = %q, want v2", got)
	}
	if paths := s.SourcePaths(); len(paths) != 1 || paths[0] != path {
		t.Errorf("SourcePaths() = %v", paths)
	}
}

type fileCompute struct{ name, path string }

func (p *fileCompute) Name() string {
	if p.name == "" {
		return "file"
	}
	return p.name
}

func (p *fileCompute) PipelineCount() int { return 1 }
func (p *fileCompute) Stages() []StageSource {
	return []StageSource{{Stage: StageCompute, Path: p.path, EntryPoint: "main"}}
}

func (p *fileCompute) ComputeState(int) any { return nil }

func TestComputeShader(t *testing.T) {
	ctx, dev := newTestContextDevice(t, WithMultithreading(false))
	s := mustShader(t, ctx, &testCompute{name: "blur"})
	if s.Kind() != KindCompute {
		t.Fatalf("Kind() = %s, want compute", s.Kind())
	}
	s.Initialize(false)

	h, err := s.GetPipelineID(0, false)
	if err != nil {
		t.Fatalf("GetPipelineID(0) = %v", err)
	}
	info, _ := dev.pipelineInfo(h)
	if info.BindPoint != BindPointCompute || info.RenderPass != nil {
		t.Errorf("info = (%s, %v), want compute without render pass", info.BindPoint, info.RenderPass)
	}
	if ctx.RenderPasses().Len() != 0 {
		t.Error("compute shader touched the render pass cache")
	}
}

func TestRaytracingShader(t *testing.T) {
	ctx, dev := newTestContextDevice(t, WithMultithreading(false))
	s := mustShader(t, ctx, &testRaytracing{name: "rt"})
	s.Initialize(false)

	h, err := s.GetPipelineID(0, false)
	if err != nil {
		t.Fatalf("GetPipelineID(0) = %v", err)
	}
	info, _ := dev.pipelineInfo(h)
	if len(info.RayGroups) != 3 || info.MaxRecursionDepth != 2 {
		t.Errorf("info groups=%d depth=%d", len(info.RayGroups), info.MaxRecursionDepth)
	}

	missing := mustShader(t, ctx, &testRaytracing{
		name:   "rt-missing",
		stages: []StageSource{{Stage: StageRayGen, Code: "// raygen"}},
	})
	missing.Initialize(false)
	if _, err := missing.GetPipelineID(0, false); !errors.Is(err, ErrPipelineNotFound) {
		t.Errorf("missing stage err = %v, want ErrPipelineNotFound", err)
	}
	if !missing.Valid() {
		t.Error("slot failure should not invalidate the shader")
	}
}

func TestUnknownProgramKind(t *testing.T) {
	ctx := newTestContext(t)
	if _, err := ctx.NewShader(plainProgram{}); !errors.Is(err, ErrUnknownProgramKind) {
		t.Errorf("NewShader(plain) = %v, want ErrUnknownProgramKind", err)
	}
	if _, err := ctx.NewShader(nil); !errors.Is(err, ErrNilProgram) {
		t.Errorf("NewShader(nil) = %v, want ErrNilProgram", err)
	}
}

type plainProgram struct{}

func (plainProgram) Name() string          { return "plain" }
func (plainProgram) PipelineCount() int    { return 1 }
func (plainProgram) Stages() []StageSource { return nil }

func TestDestroyReleasesEverything(t *testing.T) {
	ctx, dev := newTestContextDevice(t)
	s := mustShader(t, ctx, &testGraphics{name: "gone", pipelines: 2})
	s.Initialize(false)
	s.Destroy() // waits for the outstanding build

	if s.Valid() {
		t.Error("destroyed shader is valid")
	}
	if got := dev.livePipelines(); got != 0 {
		t.Errorf("live pipelines = %d, want 0", got)
	}
	if got := dev.liveRenderPasses(); got != 0 {
		t.Errorf("live render passes = %d, want 0", got)
	}
	dev.mu.Lock()
	mods := len(dev.compiled)
	dev.mu.Unlock()
	if mods != 0 {
		t.Errorf("live stage modules = %d, want 0", mods)
	}

	s.Initialize(false) // ignored
	ctx.Flush()
	if s.Valid() {
		t.Error("Initialize revived a destroyed shader")
	}
}
