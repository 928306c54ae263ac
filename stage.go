package shaderkit

import (
	"strings"
)

// Stage identifies a programmable pipeline stage.
type Stage uint8

const (
	StageVertex Stage = iota
	StageTessControl
	StageTessEval
	StageGeometry
	StageFragment
	StageCompute
	StageRayGen
	StageAnyHit
	StageClosestHit
	StageMiss
	StageIntersection
	StageCallable

	// StageCount is the number of stage kinds, and the size of a shader's
	// per-stage program table.
	StageCount = int(StageCallable) + 1

	// NoStage marks "no stage", e.g. an unused ray group member.
	NoStage Stage = 0xff
)

var stageNames = [StageCount]string{
	"vertex", "tess_control", "tess_eval", "geometry", "fragment", "compute",
	"raygen", "anyhit", "closesthit", "miss", "intersection", "callable",
}

// String returns the lowercase stage name.
func (s Stage) String() string {
	if int(s) < StageCount {
		return stageNames[s]
	}
	if s == NoStage {
		return "none"
	}
	return "unknown"
}

// ParseStage returns the stage with the given name as produced by String.
func ParseStage(name string) (Stage, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range stageNames {
		if n == name {
			return Stage(i), true
		}
	}
	return NoStage, false
}

// Bit returns the mask bit for s.
func (s Stage) Bit() StageMask {
	if int(s) >= StageCount {
		return 0
	}
	return 1 << s
}

// Graphics reports whether s belongs to the rasterization pipeline.
func (s Stage) Graphics() bool { return s <= StageFragment }

// Raytracing reports whether s belongs to the ray tracing pipeline.
func (s Stage) Raytracing() bool { return s >= StageRayGen && int(s) < StageCount }

// StageMask is a set of stages.
type StageMask uint32

// Common stage masks.
const (
	StageMaskVertex     = StageMask(1 << StageVertex)
	StageMaskFragment   = StageMask(1 << StageFragment)
	StageMaskCompute    = StageMask(1 << StageCompute)
	StageMaskGraphics   = StageMask(1<<StageVertex | 1<<StageTessControl | 1<<StageTessEval | 1<<StageGeometry | 1<<StageFragment)
	StageMaskRaytracing = StageMask(1<<StageRayGen | 1<<StageAnyHit | 1<<StageClosestHit | 1<<StageMiss | 1<<StageIntersection | 1<<StageCallable)
	StageMaskAll        = StageMask(1<<StageCount - 1)
)

// Has reports whether every stage in o is also in m.
func (m StageMask) Has(o StageMask) bool { return m&o == o }

// Stages returns the stages in m in declaration order.
func (m StageMask) Stages() []Stage {
	var out []Stage
	for i := range StageCount {
		if m&(1<<i) != 0 {
			out = append(out, Stage(i))
		}
	}
	return out
}

// String returns the stage names joined by "|".
func (m StageMask) String() string {
	stages := m.Stages()
	if len(stages) == 0 {
		return "none"
	}
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.String()
	}
	return strings.Join(names, "|")
}

// ParseStageMask parses names separated by "|" or ",". "all" selects
// every stage.
func ParseStageMask(s string) (StageMask, bool) {
	var m StageMask
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' }) {
		part = strings.TrimSpace(part)
		if strings.EqualFold(part, "all") {
			m |= StageMaskAll
			continue
		}
		st, ok := ParseStage(part)
		if !ok {
			return 0, false
		}
		m |= st.Bit()
	}
	return m, true
}

// BindPoint is the pipeline family a shader builds.
type BindPoint uint8

const (
	BindPointGraphics BindPoint = iota
	BindPointCompute
	BindPointRaytracing
)

// String returns the bind point name.
func (b BindPoint) String() string {
	switch b {
	case BindPointGraphics:
		return "graphics"
	case BindPointCompute:
		return "compute"
	case BindPointRaytracing:
		return "raytracing"
	default:
		return "unknown"
	}
}

// StageSource describes one stage program. Code is used as-is when set;
// otherwise the source is read from Path and cached until a reload.
type StageSource struct {
	Stage      Stage
	Path       string
	Code       string
	EntryPoint string
}
