package manifest

import (
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/shaderkit"
	"github.com/gogpu/shaderkit/backend/wgpu"
)

type gpuEnum interface {
	~uint32
	String() string
}

// parseEnum matches name case-insensitively against the String names of
// the values 0..last. Undefined values never match.
func parseEnum[T gpuEnum](name string, last T) (T, bool) {
	for v := T(0); v <= last; v++ {
		s := v.String()
		if s == "Unknown" || s == "Undefined" {
			continue
		}
		if strings.EqualFold(s, name) {
			return v, true
		}
	}
	return 0, false
}

func parseFormat(name string) (gputypes.TextureFormat, error) {
	f, ok := parseEnum(name, gputypes.TextureFormatASTC12x12UnormSrgb)
	if !ok {
		return 0, fmt.Errorf("%w: unknown texture format %q", ErrInvalid, name)
	}
	return f, nil
}

func parseKind(s string) (shaderkit.Kind, bool) {
	switch strings.ToLower(s) {
	case "", "graphics":
		return shaderkit.KindGraphics, true
	case "compute":
		return shaderkit.KindCompute, true
	case "raytracing":
		return shaderkit.KindRaytracing, true
	default:
		return 0, false
	}
}

// parseStages parses a stage mask. Empty means all stages.
func parseStages(s string) (shaderkit.StageMask, bool) {
	if s == "" {
		return 0, true
	}
	return shaderkit.ParseStageMask(s)
}

func parseStage(s string) (shaderkit.Stage, error) {
	if s == "" {
		return shaderkit.NoStage, nil
	}
	st, ok := shaderkit.ParseStage(s)
	if !ok {
		return 0, fmt.Errorf("%w: unknown stage %q", ErrInvalid, s)
	}
	return st, nil
}

func (p PassConfig) spec() (shaderkit.RenderPassSpec, error) {
	load := gputypes.LoadOpClear
	if p.Load != "" {
		v, ok := parseEnum(p.Load, gputypes.LoadOpClear)
		if !ok {
			return shaderkit.RenderPassSpec{}, fmt.Errorf("%w: unknown load op %q", ErrInvalid, p.Load)
		}
		load = v
	}
	store := gputypes.StoreOpStore
	if p.Store != "" {
		v, ok := parseEnum(p.Store, gputypes.StoreOpDiscard)
		if !ok {
			return shaderkit.RenderPassSpec{}, fmt.Errorf("%w: unknown store op %q", ErrInvalid, p.Store)
		}
		store = v
	}

	spec := shaderkit.RenderPassSpec{Samples: p.Samples}
	for _, name := range p.Colors {
		f, err := parseFormat(name)
		if err != nil {
			return shaderkit.RenderPassSpec{}, err
		}
		spec.Colors = append(spec.Colors, shaderkit.Attachment{Format: f, Load: load, Store: store})
	}
	if p.Depth != "" {
		f, err := parseFormat(p.Depth)
		if err != nil {
			return shaderkit.RenderPassSpec{}, err
		}
		spec.Depth = &shaderkit.Attachment{Format: f, Load: gputypes.LoadOpClear, Store: gputypes.StoreOpDiscard}
	}
	return spec, nil
}

func (s StateConfig) graphicsState() (wgpu.GraphicsState, error) {
	var gs wgpu.GraphicsState
	if s.Topology != "" {
		v, ok := parseEnum(s.Topology, gputypes.PrimitiveTopologyTriangleStrip)
		if !ok {
			return gs, fmt.Errorf("%w: unknown topology %q", ErrInvalid, s.Topology)
		}
		gs.Primitive.Topology = v
	}
	if s.Cull != "" {
		v, ok := parseEnum(s.Cull, gputypes.CullModeBack)
		if !ok {
			return gs, fmt.Errorf("%w: unknown cull mode %q", ErrInvalid, s.Cull)
		}
		gs.Primitive.CullMode = v
	}
	if s.DepthCompare != "" {
		v, ok := parseEnum(s.DepthCompare, gputypes.CompareFunctionAlways)
		if !ok {
			return gs, fmt.Errorf("%w: unknown compare function %q", ErrInvalid, s.DepthCompare)
		}
		gs.DepthCompare = v
	}
	switch strings.ToLower(s.Blend) {
	case "", "none":
	case "alpha":
		b := gputypes.BlendStateAlpha()
		gs.Blend = &b
	case "premultiplied":
		b := gputypes.BlendStatePremultiplied()
		gs.Blend = &b
	default:
		return gs, fmt.Errorf("%w: unknown blend %q", ErrInvalid, s.Blend)
	}
	gs.DepthWrite = s.DepthWrite
	return gs, nil
}

func (g GroupConfig) group() (shaderkit.RayGroup, error) {
	var rg shaderkit.RayGroup
	switch strings.ToLower(g.Kind) {
	case "", "general":
		rg.Kind = shaderkit.RayGroupGeneral
	case "triangles":
		rg.Kind = shaderkit.RayGroupTriangles
	case "procedural":
		rg.Kind = shaderkit.RayGroupProcedural
	default:
		return rg, fmt.Errorf("%w: unknown ray group kind %q", ErrInvalid, g.Kind)
	}
	var err error
	if rg.General, err = parseStage(g.General); err != nil {
		return rg, err
	}
	if rg.ClosestHit, err = parseStage(g.ClosestHit); err != nil {
		return rg, err
	}
	if rg.AnyHit, err = parseStage(g.AnyHit); err != nil {
		return rg, err
	}
	if rg.Intersection, err = parseStage(g.Intersection); err != nil {
		return rg, err
	}
	return rg, nil
}
