package resources

import (
	"embed"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/gal"
)

// MaxTextureSlots is the number of textures a material can bind.
const MaxTextureSlots = 4

//go:embed shaders
var shaderFS embed.FS

// Material is what the object and program caches consume. Concrete
// materials embed MaterialBase and provide the uniform block and sources.
type Material interface {
	Releasable
	Name() string
	Dirty() bool
	ClearDirty()
	// UniformBytes is the std140 uniform block bound at the material binding.
	UniformBytes() []byte
	Texture(slot int) *Texture
	// Options is the compile option bitset; bit i enables OptionNames()[i].
	Options() uint32
	OptionNames() []string
	ShaderSource(lang gal.ShaderLanguage, stage gal.ShaderStage) (string, error)
	Blend() bool
	CullMode() gputypes.CullMode
}

type MaterialBase struct {
	Resource
	textures    [MaxTextureSlots]*Texture
	options     uint32
	optionNames []string
	blend       bool
	cullMode    gputypes.CullMode
}

func (m *MaterialBase) init(owner Material, name string, optionNames []string) {
	m.Init(owner, name)
	m.optionNames = optionNames
	m.cullMode = gputypes.CullModeBack
}

func (m *MaterialBase) Texture(slot int) *Texture {
	if slot < 0 || slot >= MaxTextureSlots {
		return nil
	}
	return m.textures[slot]
}

// SetTexture binds tex to slot; nil clears the slot.
func (m *MaterialBase) SetTexture(slot int, tex *Texture) error {
	if slot < 0 || slot >= MaxTextureSlots {
		return fmt.Errorf("material '%s' texture slot %d out of [0,%d): %w", m.Name(), slot, MaxTextureSlots, core.ErrInvalidParameters)
	}
	m.textures[slot] = tex
	return nil
}

func (m *MaterialBase) Options() uint32 {
	return m.options
}

func (m *MaterialBase) OptionNames() []string {
	return m.optionNames
}

// SetOption toggles a named compile option. Pipelines already built for
// objects using this material keep the program they were built with.
func (m *MaterialBase) SetOption(name string, enabled bool) error {
	for i, n := range m.optionNames {
		if n != name {
			continue
		}
		if enabled {
			m.options |= 1 << uint(i)
		} else {
			m.options &^= 1 << uint(i)
		}
		return nil
	}
	return fmt.Errorf("material '%s' has no option '%s' (known: %v): %w", m.Name(), name, m.optionNames, core.ErrInvalidParameters)
}

// Defines lists the option names whose bits are set in options.
func Defines(names []string, options uint32) []string {
	var out []string
	for i, n := range names {
		if options&(1<<uint(i)) != 0 {
			out = append(out, n)
		}
	}
	return out
}

func (m *MaterialBase) Blend() bool {
	return m.blend
}

func (m *MaterialBase) SetBlend(blend bool) {
	m.blend = blend
}

func (m *MaterialBase) CullMode() gputypes.CullMode {
	return m.cullMode
}

func (m *MaterialBase) SetCullMode(mode gputypes.CullMode) {
	m.cullMode = mode
}

// shaderSource assembles the shared vertex stage and the material's
// fragment stage from the embedded sources. WGSL keeps both stages in one
// module so each stage compiles the concatenation.
func shaderSource(material string, lang gal.ShaderLanguage, stage gal.ShaderStage) (string, error) {
	var files []string
	switch lang {
	case gal.ShaderLanguageWGSL:
		files = []string{"shaders/common.wgsl", "shaders/" + material + ".wgsl"}
	case gal.ShaderLanguageGLSL:
		if stage == gal.ShaderStageVertex {
			files = []string{"shaders/common.vert"}
		} else {
			files = []string{"shaders/" + material + ".frag"}
		}
	default:
		return "", fmt.Errorf("shader source of '%s' in %s: %w", material, lang, core.ErrUnsupportedFormat)
	}
	var src []byte
	for _, f := range files {
		b, err := shaderFS.ReadFile(f)
		if err != nil {
			return "", fmt.Errorf("shader source of '%s' (%s %s): %w", material, lang, stage, err)
		}
		src = append(src, b...)
		src = append(src, '\n')
	}
	return string(src), nil
}
