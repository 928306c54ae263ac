package shaderkit

import (
	"fmt"
	"sync"
)

// CommandRecorder is the in-progress command recording a BindState writes
// to. Implementations must be comparable (usually pointers); they key the
// BoundPipelines table.
type CommandRecorder interface {
	BindPipeline(bindPoint BindPoint, pipeline PipelineHandle) error
	PushConstants(stages StageMask, offset uint32, data []byte) error
	BindDescriptorSets(bindPoint BindPoint, first uint32, sets []DescriptorSetHandle) error
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) error
	Dispatch(x, y, z uint32) error
}

// BindState pairs a shader pipeline with a command recording.
type BindState struct {
	Shader   *Shader
	Pipeline int
	Recorder CommandRecorder

	bound *BoundPipelines
}

// Bind returns the bind state of pipeline index of s on rec.
func (c *Context) Bind(s *Shader, pipeline int, rec CommandRecorder) BindState {
	return BindState{Shader: s, Pipeline: pipeline, Recorder: rec, bound: c.bound}
}

// RecordBindPipeline binds the pipeline. Unbuilt pipelines return
// ErrPipelineNotFound and record nothing.
func (b BindState) RecordBindPipeline() error {
	h, err := b.Shader.GetPipelineID(b.Pipeline, false)
	if err != nil {
		return err
	}
	bp := b.Shader.kind.BindPoint()
	if err := b.Recorder.BindPipeline(bp, h); err != nil {
		return err
	}
	if b.bound != nil {
		b.bound.record(b.Recorder, BoundPipeline{
			Shader:    b.Shader.index,
			Name:      b.Shader.name,
			Pipeline:  b.Pipeline,
			Handle:    h,
			BindPoint: bp,
		})
	}
	return nil
}

// RecordPushConstants writes data at offset, using the stage mask of the
// shader's push constant range that covers the write.
func (b BindState) RecordPushConstants(offset uint32, data []byte) error {
	size := uint32(len(data))
	for _, r := range b.pushConstants() {
		if r.Covers(offset, size) {
			return b.Recorder.PushConstants(r.Stages, offset, data)
		}
	}
	return fmt.Errorf("%w: %q offset %d size %d", ErrNoPushConstants, b.Shader.name, offset, size)
}

func (b BindState) pushConstants() []PushConstantRange {
	slot, ok := b.Shader.Slot(b.Pipeline)
	if ok && slot.Built() {
		return slot.Info.PushConstants
	}
	return b.Shader.PushConstantRanges()
}

// RecordBindDescriptorSets binds sets starting at set index first.
func (b BindState) RecordBindDescriptorSets(first uint32, sets ...DescriptorSetHandle) error {
	return b.Recorder.BindDescriptorSets(b.Shader.kind.BindPoint(), first, sets)
}

// RecordDraw records a draw. Only graphics shaders draw.
func (b BindState) RecordDraw(vertexCount, instanceCount, firstVertex, firstInstance uint32) error {
	if b.Shader.kind != KindGraphics {
		return fmt.Errorf("%w: draw with %s shader %q", ErrWrongBindPoint, b.Shader.kind, b.Shader.name)
	}
	return b.Recorder.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
}

// RecordDispatch records a compute dispatch. Only compute shaders dispatch.
func (b BindState) RecordDispatch(x, y, z uint32) error {
	if b.Shader.kind != KindCompute {
		return fmt.Errorf("%w: dispatch with %s shader %q", ErrWrongBindPoint, b.Shader.kind, b.Shader.name)
	}
	return b.Recorder.Dispatch(x, y, z)
}

// BoundPipeline is the last pipeline bound on a recorder.
type BoundPipeline struct {
	Shader    ShaderIndex
	Name      string
	Pipeline  int
	Handle    PipelineHandle
	BindPoint BindPoint
}

// BoundPipelines records the last pipeline bound on each command recorder,
// for diagnostics. One table exists per Context.
type BoundPipelines struct {
	mu      sync.Mutex
	entries map[CommandRecorder]BoundPipeline
}

func newBoundPipelines() *BoundPipelines {
	return &BoundPipelines{entries: make(map[CommandRecorder]BoundPipeline)}
}

func (t *BoundPipelines) record(rec CommandRecorder, bp BoundPipeline) {
	t.mu.Lock()
	t.entries[rec] = bp
	t.mu.Unlock()
}

// Lookup returns the last pipeline bound on rec.
func (t *BoundPipelines) Lookup(rec CommandRecorder) (BoundPipeline, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	bp, ok := t.entries[rec]
	return bp, ok
}

// Forget drops rec, typically once its recording is submitted.
func (t *BoundPipelines) Forget(rec CommandRecorder) {
	t.mu.Lock()
	delete(t.entries, rec)
	t.mu.Unlock()
}

// Len returns the number of tracked recorders.
func (t *BoundPipelines) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
