package manifest

import (
	"sync"
	"sync/atomic"

	"github.com/gogpu/shaderkit"
)

// fakeDevice hands out increasing handles and records pipeline create
// infos by label.
type fakeDevice struct {
	next atomic.Uint64

	mu        sync.Mutex
	pipelines map[string]shaderkit.PipelineCreateInfo
	passes    int
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{pipelines: make(map[string]shaderkit.PipelineCreateInfo)}
}

func (d *fakeDevice) handle() uint64 { return d.next.Add(1) }

func (d *fakeDevice) CompileStage(shaderkit.StageSource, string, []shaderkit.Define) (shaderkit.StageModule, error) {
	return shaderkit.StageModule(d.handle()), nil
}

func (d *fakeDevice) DestroyStageModule(shaderkit.StageModule) {}

func (d *fakeDevice) CreateDescriptorSetLayout(string, *shaderkit.DescriptorSetDescriptor) (shaderkit.DescriptorSetLayout, error) {
	return shaderkit.DescriptorSetLayout(d.handle()), nil
}

func (d *fakeDevice) DestroyDescriptorSetLayout(shaderkit.DescriptorSetLayout) {}

func (d *fakeDevice) CreateRenderPass(string, shaderkit.RenderPassSpec) (shaderkit.RenderPassHandle, error) {
	d.mu.Lock()
	d.passes++
	d.mu.Unlock()
	return shaderkit.RenderPassHandle(d.handle()), nil
}

func (d *fakeDevice) DestroyRenderPass(shaderkit.RenderPassHandle) {}

func (d *fakeDevice) CreatePipeline(info *shaderkit.PipelineCreateInfo) (shaderkit.PipelineHandle, error) {
	d.mu.Lock()
	d.pipelines[info.Label] = *info
	d.mu.Unlock()
	return shaderkit.PipelineHandle(d.handle()), nil
}

func (d *fakeDevice) BakePipeline(shaderkit.PipelineHandle, shaderkit.BindPoint) error { return nil }
func (d *fakeDevice) DestroyPipeline(shaderkit.PipelineHandle, shaderkit.BindPoint)    {}
func (d *fakeDevice) WaitIdle() error                                                  { return nil }

func (d *fakeDevice) renderPasses() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.passes
}
