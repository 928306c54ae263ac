package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gogpu/shaderkit"
	"github.com/pelletier/go-toml/v2"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("manifest: invalid")

// File is a decoded manifest.
type File struct {
	Context ContextConfig  `toml:"context"`
	Sets    []SetConfig    `toml:"set"`
	Shaders []ShaderConfig `toml:"shader"`

	dir string
}

// ContextConfig holds shaderkit.Context options. Unset fields keep the
// library defaults.
type ContextConfig struct {
	Multithreading  *bool `toml:"multithreading"`
	InlinePipelines *bool `toml:"inline_pipelines"`
	Assertions      *bool `toml:"assertions"`
}

// SetConfig is a descriptor set. Parent names a top-level set whose
// bindings come first.
type SetConfig struct {
	Name     string          `toml:"name"`
	Parent   string          `toml:"parent"`
	Bindings []BindingConfig `toml:"binding"`
}

// BindingConfig is one binding. A missing index is assigned automatically.
type BindingConfig struct {
	Name   string `toml:"name"`
	Type   string `toml:"type"`
	Stages string `toml:"stages"`
	Count  uint32 `toml:"count"`
	Index  *int   `toml:"index"`
}

// StageConfig is one stage source, inline or from a file.
type StageConfig struct {
	Stage string `toml:"stage"`
	Path  string `toml:"path"`
	Code  string `toml:"code"`
	Entry string `toml:"entry"`
}

// PushConstantConfig is one push constant range.
type PushConstantConfig struct {
	Offset uint32 `toml:"offset"`
	Size   uint32 `toml:"size"`
	Stages string `toml:"stages"`
}

// PassConfig is the render pass of a graphics pipeline.
type PassConfig struct {
	Colors  []string `toml:"colors"`
	Depth   string   `toml:"depth"`
	Samples uint32   `toml:"samples"`
	Load    string   `toml:"load"`
	Store   string   `toml:"store"`
}

// StateConfig is the fixed-function state of a graphics pipeline.
type StateConfig struct {
	Topology     string `toml:"topology"`
	Cull         string `toml:"cull"`
	Blend        string `toml:"blend"`
	DepthWrite   bool   `toml:"depth_write"`
	DepthCompare string `toml:"depth_compare"`
}

// GroupConfig is a ray tracing shader group.
type GroupConfig struct {
	Kind         string `toml:"kind"`
	General      string `toml:"general"`
	ClosestHit   string `toml:"closest_hit"`
	AnyHit       string `toml:"any_hit"`
	Intersection string `toml:"intersection"`
}

// ShaderConfig is one shader.
type ShaderConfig struct {
	Name      string `toml:"name"`
	Kind      string `toml:"kind"`
	Pipelines int    `toml:"pipelines"`
	Base      string `toml:"base"`
	Skip      []int  `toml:"skip"`

	// PassGroup names the render pass cache group. Shaders in the same
	// group share render passes per pipeline index. Defaults to Name.
	PassGroup string `toml:"pass_group"`

	Stages        []StageConfig        `toml:"stage"`
	Sets          []SetConfig          `toml:"set"`
	PushConstants []PushConstantConfig `toml:"push_constant"`

	// Passes holds one render pass per pipeline; the last one repeats.
	Passes []PassConfig `toml:"pass"`
	State  StateConfig  `toml:"state"`

	Constants map[string]float64 `toml:"constants"`

	Groups       []GroupConfig `toml:"group"`
	MaxRecursion uint32        `toml:"max_recursion"`
}

// Load reads and validates the manifest at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, filepath.Dir(path))
}

// Parse decodes and validates a manifest. Relative stage paths resolve
// against dir.
func Parse(data []byte, dir string) (*File, error) {
	var f File
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		var de *toml.DecodeError
		if errors.As(err, &de) {
			row, col := de.Position()
			return nil, fmt.Errorf("manifest: %d:%d: %w", row, col, err)
		}
		return nil, fmt.Errorf("manifest: %w", err)
	}
	f.dir = dir
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Options returns the context options the manifest sets.
func (f *File) Options() []shaderkit.Option {
	var opts []shaderkit.Option
	if v := f.Context.Multithreading; v != nil {
		opts = append(opts, shaderkit.WithMultithreading(*v))
	}
	if v := f.Context.InlinePipelines; v != nil {
		opts = append(opts, shaderkit.WithInlinePipelineCreation(*v))
	}
	if v := f.Context.Assertions; v != nil {
		opts = append(opts, shaderkit.WithAssertions(*v))
	}
	return opts
}

// Shader returns the shader config named name.
func (f *File) Shader(name string) (*ShaderConfig, bool) {
	for i := range f.Shaders {
		if f.Shaders[i].Name == name {
			return &f.Shaders[i], true
		}
	}
	return nil, false
}

// Validate checks names, references and enumerations.
func (f *File) Validate() error {
	sets := make(map[string]*SetConfig, len(f.Sets))
	for i := range f.Sets {
		s := &f.Sets[i]
		if s.Name == "" {
			return fmt.Errorf("%w: set %d has no name", ErrInvalid, i)
		}
		if _, dup := sets[s.Name]; dup {
			return fmt.Errorf("%w: duplicate set %q", ErrInvalid, s.Name)
		}
		sets[s.Name] = s
	}
	for _, s := range f.Sets {
		if err := f.validateSet(&s, sets); err != nil {
			return err
		}
	}

	names := make(map[string]bool, len(f.Shaders))
	for i := range f.Shaders {
		sh := &f.Shaders[i]
		if sh.Name == "" {
			return fmt.Errorf("%w: shader %d has no name", ErrInvalid, i)
		}
		if names[sh.Name] {
			return fmt.Errorf("%w: duplicate shader %q", ErrInvalid, sh.Name)
		}
		names[sh.Name] = true
		if err := f.validateShader(sh, sets); err != nil {
			return fmt.Errorf("shader %q: %w", sh.Name, err)
		}
	}

	for i := range f.Shaders {
		sh := &f.Shaders[i]
		if sh.Base != "" && !names[sh.Base] {
			return fmt.Errorf("%w: shader %q: unknown base %q", ErrInvalid, sh.Name, sh.Base)
		}
	}
	if _, err := f.BuildOrder(); err != nil {
		return err
	}
	return nil
}

func (f *File) validateSet(s *SetConfig, sets map[string]*SetConfig) error {
	seen := map[string]bool{s.Name: true}
	for p := s.Parent; p != ""; {
		parent, ok := sets[p]
		if !ok {
			return fmt.Errorf("%w: set %q: unknown parent %q", ErrInvalid, s.Name, p)
		}
		if seen[p] {
			return fmt.Errorf("%w: set %q: parent cycle through %q", ErrInvalid, s.Name, p)
		}
		seen[p] = true
		p = parent.Parent
	}
	for _, b := range s.Bindings {
		if _, ok := shaderkit.ParseDescriptorType(b.Type); !ok {
			return fmt.Errorf("%w: set %q binding %q: unknown type %q", ErrInvalid, s.Name, b.Name, b.Type)
		}
		if _, ok := parseStages(b.Stages); !ok {
			return fmt.Errorf("%w: set %q binding %q: bad stages %q", ErrInvalid, s.Name, b.Name, b.Stages)
		}
	}
	return nil
}

func (f *File) validateShader(sh *ShaderConfig, sets map[string]*SetConfig) error {
	kind, ok := parseKind(sh.Kind)
	if !ok {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalid, sh.Kind)
	}
	if sh.Pipelines < 0 {
		return fmt.Errorf("%w: negative pipeline count", ErrInvalid)
	}
	if len(sh.Stages) == 0 {
		return fmt.Errorf("%w: no stages", ErrInvalid)
	}
	for _, st := range sh.Stages {
		if _, ok := shaderkit.ParseStage(st.Stage); !ok {
			return fmt.Errorf("%w: unknown stage %q", ErrInvalid, st.Stage)
		}
		if (st.Path == "") == (st.Code == "") {
			return fmt.Errorf("%w: %s stage needs exactly one of path and code", ErrInvalid, st.Stage)
		}
	}
	if len(sh.Sets) > shaderkit.MaxDescriptorSets {
		return fmt.Errorf("%w: %d descriptor sets, limit is %d", ErrInvalid, len(sh.Sets), shaderkit.MaxDescriptorSets)
	}
	for i := range sh.Sets {
		if err := f.validateSet(&sh.Sets[i], sets); err != nil {
			return err
		}
	}
	for _, pc := range sh.PushConstants {
		if _, ok := parseStages(pc.Stages); !ok {
			return fmt.Errorf("%w: push constant stages %q", ErrInvalid, pc.Stages)
		}
	}

	switch kind {
	case shaderkit.KindGraphics:
		for _, p := range sh.Passes {
			if _, err := p.spec(); err != nil {
				return err
			}
		}
		if _, err := sh.State.graphicsState(); err != nil {
			return err
		}
	case shaderkit.KindRaytracing:
		if len(sh.Groups) == 0 {
			return fmt.Errorf("%w: ray tracing shader without groups", ErrInvalid)
		}
		for _, g := range sh.Groups {
			if _, err := g.group(); err != nil {
				return err
			}
		}
	}
	return nil
}

// BuildOrder returns the shaders ordered so that every base precedes the
// shaders deriving from it.
func (f *File) BuildOrder() ([]*ShaderConfig, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(f.Shaders))
	order := make([]*ShaderConfig, 0, len(f.Shaders))

	var visit func(sh *ShaderConfig) error
	visit = func(sh *ShaderConfig) error {
		switch state[sh.Name] {
		case visiting:
			return fmt.Errorf("%w: base cycle through %q", ErrInvalid, sh.Name)
		case done:
			return nil
		}
		state[sh.Name] = visiting
		if sh.Base != "" {
			base, ok := f.Shader(sh.Base)
			if !ok {
				return fmt.Errorf("%w: shader %q: unknown base %q", ErrInvalid, sh.Name, sh.Base)
			}
			if err := visit(base); err != nil {
				return err
			}
		}
		state[sh.Name] = done
		order = append(order, sh)
		return nil
	}

	for i := range f.Shaders {
		if err := visit(&f.Shaders[i]); err != nil {
			return nil, err
		}
	}
	return order, nil
}
