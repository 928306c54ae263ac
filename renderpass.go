package shaderkit

import (
	"hash/fnv"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/google/uuid"
)

// Attachment describes one render pass attachment.
type Attachment struct {
	Format gputypes.TextureFormat
	Load   gputypes.LoadOp
	Store  gputypes.StoreOp
}

// RenderPassSpec is the creation parameters of a render pass.
type RenderPassSpec struct {
	Colors  []Attachment
	Depth   *Attachment
	Samples uint32
}

// Equal reports whether two specs are structurally identical. Zero and one
// samples are treated as equal.
func (s RenderPassSpec) Equal(o RenderPassSpec) bool {
	if max(s.Samples, 1) != max(o.Samples, 1) {
		return false
	}
	if !slices.Equal(s.Colors, o.Colors) {
		return false
	}
	switch {
	case s.Depth == nil && o.Depth == nil:
		return true
	case s.Depth == nil || o.Depth == nil:
		return false
	default:
		return *s.Depth == *o.Depth
	}
}

func (s RenderPassSpec) clone() RenderPassSpec {
	c := RenderPassSpec{Colors: slices.Clone(s.Colors), Samples: s.Samples}
	if s.Depth != nil {
		d := *s.Depth
		c.Depth = &d
	}
	return c
}

// RenderPass is a backend render pass shared by every pipeline built
// against a structurally identical spec.
type RenderPass struct {
	handle RenderPassHandle
	spec   RenderPassSpec
	label  string
}

// Handle returns the backend handle.
func (rp *RenderPass) Handle() RenderPassHandle { return rp.handle }

// Spec returns the creation parameters.
func (rp *RenderPass) Spec() RenderPassSpec { return rp.spec }

// Label returns the debug label.
func (rp *RenderPass) Label() string { return rp.label }

type renderPassKey struct {
	hash  uint64
	index int
}

// TypeHash returns the content hash of a runtime type, used as the shader
// kind part of render pass cache keys.
func TypeHash(t reflect.Type) uint64 {
	h := fnv.New64a()
	if t != nil {
		_, _ = h.Write([]byte(t.PkgPath()))
		_, _ = h.Write([]byte{'.'})
		_, _ = h.Write([]byte(t.String()))
	}
	return h.Sum64()
}

// RenderPassCache maps (shader kind hash, pipeline index) to a render pass.
// One cache exists per Context. A spec that differs from the cached one
// replaces the entry; replaced passes stay alive for pipelines still using
// them until the cache is released.
//
// Entries are destroyed collectively when the last graphics shader that
// acquired the cache is destroyed.
//
// RenderPassCache is safe for concurrent use: deferred pipeline creation
// runs on the owning goroutine while the init worker builds other shaders.
type RenderPassCache struct {
	device Device

	mu      sync.Mutex
	entries map[renderPassKey]*RenderPass
	retired []*RenderPass
	refs    int

	hits   atomic.Uint64
	misses atomic.Uint64
}

func newRenderPassCache(device Device) *RenderPassCache {
	return &RenderPassCache{
		device:  device,
		entries: make(map[renderPassKey]*RenderPass),
	}
}

// GetOrCreate returns the render pass cached for (hash, index) if its spec
// equals spec. Otherwise it creates a new backend render pass labelled
// debugName (a generated label when empty), stores it under the key and
// returns it.
func (c *RenderPassCache) GetOrCreate(hash uint64, index int, spec RenderPassSpec, debugName string) (*RenderPass, error) {
	key := renderPassKey{hash: hash, index: index}

	c.mu.Lock()
	defer c.mu.Unlock()

	old, ok := c.entries[key]
	if ok && old.spec.Equal(spec) {
		c.hits.Add(1)
		return old, nil
	}

	if debugName == "" {
		debugName = "renderpass-" + uuid.NewString()
	}
	h, err := c.device.CreateRenderPass(debugName, spec)
	if err != nil {
		return nil, err
	}
	rp := &RenderPass{handle: h, spec: spec.clone(), label: debugName}
	if ok {
		c.retired = append(c.retired, old)
		Logger().Debug("shaderkit: render pass replaced",
			"label", debugName, "index", index, "old", old.label)
	} else {
		Logger().Debug("shaderkit: render pass created", "label", debugName, "index", index)
	}
	c.entries[key] = rp
	c.misses.Add(1)
	return rp, nil
}

// Lookup returns the cached render pass for (hash, index).
func (c *RenderPassCache) Lookup(hash uint64, index int) (*RenderPass, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rp, ok := c.entries[renderPassKey{hash: hash, index: index}]
	return rp, ok
}

// Len returns the number of live cache entries.
func (c *RenderPassCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns the number of cache hits and misses.
func (c *RenderPassCache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

// acquire registers a shader referencing the cache.
func (c *RenderPassCache) acquire() {
	c.mu.Lock()
	c.refs++
	c.mu.Unlock()
}

// release drops a shader reference and destroys every entry when it was
// the last one.
func (c *RenderPassCache) release() {
	c.mu.Lock()
	c.refs--
	last := c.refs <= 0
	if last {
		c.refs = 0
	}
	c.mu.Unlock()

	if last {
		c.DestroyAll()
	}
}

// DestroyAll destroys all cached and replaced render passes.
func (c *RenderPassCache) DestroyAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, rp := range c.entries {
		c.device.DestroyRenderPass(rp.handle)
	}
	for _, rp := range c.retired {
		c.device.DestroyRenderPass(rp.handle)
	}
	if n := len(c.entries) + len(c.retired); n > 0 {
		Logger().Debug("shaderkit: render pass cache released", "destroyed", n)
	}
	c.entries = make(map[renderPassKey]*RenderPass)
	c.retired = nil
}
