package shaderkit

import "fmt"

// graphicsBuilder builds rasterization pipelines against render passes
// shared through the context's RenderPassCache.
type graphicsBuilder struct {
	program GraphicsProgram
}

func (b graphicsBuilder) BuildPipelineBatch(s *Shader) {
	s.buildPipelines(func(i int, info *PipelineCreateInfo) error {
		spec := b.program.RenderPass(i)
		rp, err := s.ctx.renderPasses.GetOrCreate(s.kindHash, i, spec, fmt.Sprintf("%s#%d", s.name, i))
		if err != nil {
			return fmt.Errorf("render pass: %w", err)
		}
		info.RenderPass = rp
		info.State = b.program.GraphicsState(i)
		return nil
	})
}

type computeBuilder struct {
	program ComputeProgram
}

func (b computeBuilder) BuildPipelineBatch(s *Shader) {
	s.buildPipelines(func(i int, info *PipelineCreateInfo) error {
		if _, ok := s.StageModule(StageCompute); !ok {
			return fmt.Errorf("shaderkit: %q has no compute stage", s.name)
		}
		info.State = b.program.ComputeState(i)
		return nil
	})
}

type raytracingBuilder struct {
	program RaytracingProgram
}

func (b raytracingBuilder) BuildPipelineBatch(s *Shader) {
	s.buildPipelines(func(i int, info *PipelineCreateInfo) error {
		groups := b.program.RayGroups(i)
		if len(groups) == 0 {
			return fmt.Errorf("shaderkit: %q pipeline %d has no ray groups", s.name, i)
		}
		for _, g := range groups {
			for _, st := range []Stage{g.General, g.ClosestHit, g.AnyHit, g.Intersection} {
				if st == NoStage {
					continue
				}
				if _, ok := s.StageModule(st); !ok {
					return fmt.Errorf("shaderkit: %q ray group references missing %s stage", s.name, st)
				}
			}
		}
		info.RayGroups = groups
		info.MaxRecursionDepth = b.program.MaxRecursionDepth()
		return nil
	})
}
