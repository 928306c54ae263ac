package shaderkit

import (
	"fmt"
	"strings"
)

// MaxDescriptorSets is the most descriptor sets a shader may declare.
const MaxDescriptorSets = 8

// AutoIndex asks Bake to assign a binding index.
const AutoIndex = -1

// DescriptorType is the kind of resource a binding exposes.
type DescriptorType uint8

const (
	DescriptorUniformBuffer DescriptorType = iota
	DescriptorStorageBuffer
	DescriptorReadOnlyStorageBuffer
	DescriptorSampledImage
	DescriptorSampler
	DescriptorCombinedImageSampler
	DescriptorStorageImage
	DescriptorAccelerationStructure
)

var descriptorTypeNames = [...]string{
	"uniform_buffer", "storage_buffer", "readonly_storage_buffer", "sampled_image",
	"sampler", "combined_image_sampler", "storage_image", "acceleration_structure",
}

func (t DescriptorType) String() string {
	if int(t) < len(descriptorTypeNames) {
		return descriptorTypeNames[t]
	}
	return "unknown"
}

// ParseDescriptorType returns the type with the given String name.
func ParseDescriptorType(name string) (DescriptorType, bool) {
	for i, n := range descriptorTypeNames {
		if n == name {
			return DescriptorType(i), true
		}
	}
	return 0, false
}

// Binding is one resource binding of a descriptor set.
type Binding struct {
	Name   string
	Type   DescriptorType
	Stages StageMask
	Count  uint32 // array size; 0 means 1
	Index  int    // explicit binding index or AutoIndex
}

// DescriptorSetDescriptor is an ordered list of bindings. A set may name a
// Parent whose bindings are spliced in front of its own when baked.
type DescriptorSetDescriptor struct {
	Name     string
	Bindings []Binding
	Parent   *DescriptorSetDescriptor

	baked bool
}

// Baked reports whether Bake has run.
func (d *DescriptorSetDescriptor) Baked() bool { return d.baked }

// Bake splices the parent's bindings in front of the set's own, clears the
// parent link and assigns indices to AutoIndex bindings. An auto binding
// takes the index after the highest index seen so far. Bake is idempotent.
func (d *DescriptorSetDescriptor) Bake() {
	if d.baked {
		return
	}
	if p := d.Parent; p != nil {
		p.Bake()
		merged := make([]Binding, 0, len(p.Bindings)+len(d.Bindings))
		merged = append(merged, p.Bindings...)
		merged = append(merged, d.Bindings...)
		d.Bindings = merged
		d.Parent = nil
	}

	next := 0
	for i := range d.Bindings {
		b := &d.Bindings[i]
		if b.Index < 0 {
			b.Index = next
		}
		if b.Count == 0 {
			b.Count = 1
		}
		if b.Index >= next {
			next = b.Index + 1
		}
	}
	d.baked = true
}

// Clone returns a deep copy of d and its parent chain. Baking the copy
// leaves d and its parents untouched.
func (d *DescriptorSetDescriptor) Clone() *DescriptorSetDescriptor {
	c := *d
	c.Bindings = append([]Binding(nil), d.Bindings...)
	if d.Parent != nil {
		c.Parent = d.Parent.Clone()
	}
	return &c
}

// Binding returns the binding with the given name.
func (d *DescriptorSetDescriptor) Binding(name string) (Binding, bool) {
	for _, b := range d.Bindings {
		if b.Name == name {
			return b, true
		}
	}
	return Binding{}, false
}

// Validate reports duplicate binding indices in a baked set.
func (d *DescriptorSetDescriptor) Validate() error {
	seen := make(map[int]string, len(d.Bindings))
	for _, b := range d.Bindings {
		if prev, ok := seen[b.Index]; ok {
			return fmt.Errorf("shaderkit: set %q: bindings %q and %q share index %d", d.Name, prev, b.Name, b.Index)
		}
		seen[b.Index] = b.Name
	}
	return nil
}

// ResourceBuilder aggregates a shader's descriptor sets and push constant
// ranges. A shader rebuilds it from scratch on every Initialize.
type ResourceBuilder struct {
	sets          []*DescriptorSetDescriptor
	pushConstants []PushConstantRange
}

// AddDescriptorSetGroup bakes a copy of d and appends it. The set index is
// its position. Neither d nor its parents are modified, so a declaration
// can be replayed on every Initialize and shared between shaders. It panics with an error wrapping ErrResourceLimitExceeded
// when the shader would exceed MaxDescriptorSets.
func (r *ResourceBuilder) AddDescriptorSetGroup(d *DescriptorSetDescriptor) int {
	if len(r.sets) >= MaxDescriptorSets {
		panic(fmt.Errorf("%w: descriptor set %q would be set %d, limit is %d",
			ErrResourceLimitExceeded, d.Name, len(r.sets), MaxDescriptorSets))
	}
	c := d.Clone()
	c.Bake()
	r.sets = append(r.sets, c)
	return len(r.sets) - 1
}

// Sets returns the baked descriptor sets in set-index order.
func (r *ResourceBuilder) Sets() []*DescriptorSetDescriptor { return r.sets }

// PushConstantRanges returns the merged push constant ranges.
func (r *ResourceBuilder) PushConstantRanges() []PushConstantRange { return r.pushConstants }

// Reset drops all aggregated state.
func (r *ResourceBuilder) Reset() {
	r.sets = nil
	r.pushConstants = nil
}

// Defines returns SET_<set> and BINDING_<set>_<binding> definitions for the
// baked sets, in set then binding order.
func (r *ResourceBuilder) Defines() []Define {
	var defs []Define
	for i, set := range r.sets {
		setName := defineName(set.Name, fmt.Sprintf("%d", i))
		defs = append(defs, Define{Name: "SET_" + setName, Value: i})
		for _, b := range set.Bindings {
			defs = append(defs, Define{
				Name:  "BINDING_" + setName + "_" + defineName(b.Name, fmt.Sprintf("%d", b.Index)),
				Value: b.Index,
			})
		}
	}
	return defs
}

// defineName upper-cases name and replaces anything that is not a letter,
// digit or underscore.
func defineName(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
