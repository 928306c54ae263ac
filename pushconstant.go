package shaderkit

// PushConstantRange is a block of inline constants visible to Stages.
type PushConstantRange struct {
	Offset uint32
	Size   uint32
	Stages StageMask
}

// End returns the first byte past the range.
func (p PushConstantRange) End() uint32 { return p.Offset + p.Size }

// Covers reports whether [offset, offset+size) lies inside the range.
func (p PushConstantRange) Covers(offset, size uint32) bool {
	return offset >= p.Offset && offset+size <= p.End()
}

// AttachPushConstantRange inserts a range, merging it into the first
// existing range with the same stage mask that it touches end-to-start or
// start-to-end. Ranges made adjacent only by later inserts stay separate.
func (r *ResourceBuilder) AttachPushConstantRange(offset, size uint32, stages StageMask) {
	for i := range r.pushConstants {
		pc := &r.pushConstants[i]
		if pc.Stages != stages {
			continue
		}
		if pc.End() == offset {
			pc.Size += size
			return
		}
		if offset+size == pc.Offset {
			pc.Offset = offset
			pc.Size += size
			return
		}
	}
	r.pushConstants = append(r.pushConstants, PushConstantRange{Offset: offset, Size: size, Stages: stages})
}
