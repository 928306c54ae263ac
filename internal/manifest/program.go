package manifest

import (
	"fmt"
	"hash/fnv"
	"path/filepath"
	"slices"

	"github.com/gogpu/shaderkit"
	"github.com/gogpu/shaderkit/backend/wgpu"
)

// program is the part shared by every manifest program kind.
type program struct {
	name      string
	pipelines int
	stages    []shaderkit.StageSource
	sets      []*shaderkit.DescriptorSetDescriptor
	pcs       []PushConstantConfig
	skip      []int
	kindHash  uint64
}

func (p *program) Name() string                    { return p.name }
func (p *program) PipelineCount() int              { return p.pipelines }
func (p *program) Stages() []shaderkit.StageSource { return p.stages }
func (p *program) SkipPipeline(index int) bool     { return slices.Contains(p.skip, index) }
func (p *program) KindHash() uint64                { return p.kindHash }

// DeclareResources adds the manifest's descriptor sets and push constant
// ranges.
func (p *program) DeclareResources(s *shaderkit.Shader) {
	for _, set := range p.sets {
		s.AddDescriptorSetGroup(set)
	}
	for _, pc := range p.pcs {
		stages, _ := parseStages(pc.Stages)
		s.AttachPushConstantRange(pc.Offset, pc.Size, stages)
	}
}

// GraphicsProgram is a manifest graphics shader.
type GraphicsProgram struct {
	program
	passes []shaderkit.RenderPassSpec
	state  wgpu.GraphicsState
}

// RenderPass returns pass index, repeating the last declared pass.
func (p *GraphicsProgram) RenderPass(index int) shaderkit.RenderPassSpec {
	if len(p.passes) == 0 {
		return shaderkit.RenderPassSpec{}
	}
	return p.passes[min(index, len(p.passes)-1)]
}

func (p *GraphicsProgram) GraphicsState(int) any { return p.state }

// ComputeProgram is a manifest compute shader.
type ComputeProgram struct {
	program
	state wgpu.ComputeState
}

func (p *ComputeProgram) ComputeState(int) any { return p.state }

// RaytracingProgram is a manifest ray tracing shader.
type RaytracingProgram struct {
	program
	groups   []shaderkit.RayGroup
	maxDepth uint32
}

func (p *RaytracingProgram) RayGroups(int) []shaderkit.RayGroup { return p.groups }
func (p *RaytracingProgram) MaxRecursionDepth() uint32          { return p.maxDepth }

// Program builds the shaderkit program for the shader named name.
func (f *File) Program(name string) (shaderkit.Program, error) {
	sh, ok := f.Shader(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", shaderkit.ErrShaderNotFound, name)
	}
	kind, _ := parseKind(sh.Kind)

	base := program{
		name:      sh.Name,
		pipelines: max(sh.Pipelines, 1),
		pcs:       sh.PushConstants,
		skip:      sh.Skip,
		kindHash:  passGroupHash(sh),
	}
	for _, st := range sh.Stages {
		stage, _ := shaderkit.ParseStage(st.Stage)
		src := shaderkit.StageSource{Stage: stage, Code: st.Code, EntryPoint: st.Entry}
		if st.Path != "" {
			src.Path = f.resolve(st.Path)
		}
		base.stages = append(base.stages, src)
	}
	for i := range sh.Sets {
		base.sets = append(base.sets, f.descriptorSet(&sh.Sets[i]))
	}

	switch kind {
	case shaderkit.KindCompute:
		return &ComputeProgram{program: base, state: wgpu.ComputeState{Constants: sh.Constants}}, nil
	case shaderkit.KindRaytracing:
		p := &RaytracingProgram{program: base, maxDepth: max(sh.MaxRecursion, 1)}
		for _, g := range sh.Groups {
			rg, err := g.group()
			if err != nil {
				return nil, err
			}
			p.groups = append(p.groups, rg)
		}
		return p, nil
	default:
		p := &GraphicsProgram{program: base}
		for _, pc := range sh.Passes {
			spec, err := pc.spec()
			if err != nil {
				return nil, err
			}
			p.passes = append(p.passes, spec)
		}
		state, err := sh.State.graphicsState()
		if err != nil {
			return nil, err
		}
		p.state = state
		return p, nil
	}
}

// descriptorSet converts a set config, linking its parent chain to the
// top-level sets.
func (f *File) descriptorSet(s *SetConfig) *shaderkit.DescriptorSetDescriptor {
	d := &shaderkit.DescriptorSetDescriptor{Name: s.Name}
	for _, b := range s.Bindings {
		typ, _ := shaderkit.ParseDescriptorType(b.Type)
		stages, _ := parseStages(b.Stages)
		index := shaderkit.AutoIndex
		if b.Index != nil {
			index = *b.Index
		}
		d.Bindings = append(d.Bindings, shaderkit.Binding{
			Name:   b.Name,
			Type:   typ,
			Stages: stages,
			Count:  b.Count,
			Index:  index,
		})
	}
	if s.Parent != "" {
		for i := range f.Sets {
			if f.Sets[i].Name == s.Parent {
				d.Parent = f.descriptorSet(&f.Sets[i])
				break
			}
		}
	}
	return d
}

func (f *File) resolve(path string) string {
	if filepath.IsAbs(path) || f.dir == "" {
		return path
	}
	return filepath.Join(f.dir, path)
}

func passGroupHash(sh *ShaderConfig) uint64 {
	group := sh.PassGroup
	if group == "" {
		group = sh.Name
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte("manifest:"))
	_, _ = h.Write([]byte(group))
	return h.Sum64()
}
