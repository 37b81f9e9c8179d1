package systems

import (
	"fmt"
	"reflect"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/gal"
	"github.com/spaghettifunk/lumen/engine/resources"
	"github.com/spaghettifunk/lumen/engine/shader"
)

// Program is the pair of shader modules compiled for one material type
// and option bitset.
type Program struct {
	Vertex   gal.ShaderModule
	Fragment gal.ShaderModule
	Defines  []string
}

type programKey struct {
	material reflect.Type
	options  uint32
}

type ProgramCache struct {
	device   gal.RenderDevice
	compiler shader.Compiler
	entries  map[programKey]*Program
	compiles int
}

func NewProgramCache(device gal.RenderDevice, compiler shader.Compiler) (*ProgramCache, error) {
	if device == nil || compiler == nil {
		err := fmt.Errorf("func NewProgramCache - device and compiler are required: %w", core.ErrInvalidParameters)
		core.LogError("%s", err)
		return nil, err
	}
	return &ProgramCache{
		device:   device,
		compiler: compiler,
		entries:  make(map[programKey]*Program),
	}, nil
}

// Get returns the program for the material's type and current options,
// compiling it on first use. A failed compile is logged and not cached, so
// the next lookup tries again.
func (c *ProgramCache) Get(m resources.Material) (*Program, error) {
	key := programKey{material: reflect.TypeOf(m), options: m.Options()}
	if p, ok := c.entries[key]; ok {
		return p, nil
	}

	defines := resources.Defines(m.OptionNames(), m.Options())
	vertex, err := c.compile(m, key, gal.ShaderStageVertex, defines)
	if err != nil {
		return nil, err
	}
	fragment, err := c.compile(m, key, gal.ShaderStageFragment, defines)
	if err != nil {
		vertex.Destroy()
		return nil, err
	}

	p := &Program{Vertex: vertex, Fragment: fragment, Defines: defines}
	c.entries[key] = p
	core.LogDebug("compiled program %s options=%#x defines=%v", key.material, key.options, defines)
	return p, nil
}

func (c *ProgramCache) compile(m resources.Material, key programKey, stage gal.ShaderStage, defines []string) (gal.ShaderModule, error) {
	lang := c.compiler.Language()
	src, err := m.ShaderSource(lang, stage)
	if err != nil {
		core.LogError("shader source of %s (%s): %s", key.material, stage, err)
		return nil, err
	}
	code, err := c.compiler.Compile(src, stage, defines)
	if err != nil {
		core.LogError("compile %s %s stage with %v: %s", key.material, stage, defines, err)
		return nil, err
	}
	c.compiles++
	module, err := c.device.CreateShaderModule(&gal.ShaderModuleDescriptor{
		Label:      fmt.Sprintf("%s#%x.%s", key.material, key.options, stage),
		Stage:      stage,
		EntryPoint: shader.EntryPoint(lang, stage),
		Code:       code,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s module for %s: %w", stage, key.material, err)
	}
	return module, nil
}

func (c *ProgramCache) Len() int {
	return len(c.entries)
}

// Compiles counts successful stage compilations.
func (c *ProgramCache) Compiles() int {
	return c.compiles
}

// Destroy frees the shader modules. Pipelines built from them must already
// be destroyed.
func (c *ProgramCache) Destroy() {
	for k, p := range c.entries {
		p.Vertex.Destroy()
		p.Fragment.Destroy()
		delete(c.entries, k)
	}
}
