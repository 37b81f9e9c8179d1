package resources

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/lumen/engine/gal"
	"github.com/spaghettifunk/lumen/engine/math"
)

const (
	SlotColorMap    = 0
	SlotEmissiveMap = 1
)

// UnlitMaterial outputs its color, optionally modulated by a color map.
type UnlitMaterial struct {
	MaterialBase
	color       mgl32.Vec4
	alphaCutoff float32
}

var unlitOptions = []string{"USE_MAP", "ALPHA_TEST"}

func NewUnlitMaterial(name string, color mgl32.Vec4) *UnlitMaterial {
	m := &UnlitMaterial{color: color, alphaCutoff: 0.5}
	m.init(m, name, unlitOptions)
	return m
}

func (m *UnlitMaterial) Color() mgl32.Vec4 {
	return m.color
}

func (m *UnlitMaterial) SetColor(c mgl32.Vec4) {
	m.color = c
	m.MarkDirty()
}

func (m *UnlitMaterial) SetAlphaCutoff(v float32) {
	m.alphaCutoff = v
	m.MarkDirty()
}

// SetColorMap binds the color map and toggles USE_MAP to match.
func (m *UnlitMaterial) SetColorMap(tex *Texture) {
	_ = m.SetTexture(SlotColorMap, tex)
	_ = m.SetOption("USE_MAP", tex != nil)
}

func (m *UnlitMaterial) UniformBytes() []byte {
	out := make([]byte, 32)
	math.PackFloats(out, m.color[0], m.color[1], m.color[2], m.color[3], m.alphaCutoff)
	return out
}

func (m *UnlitMaterial) ShaderSource(lang gal.ShaderLanguage, stage gal.ShaderStage) (string, error) {
	return shaderSource("unlit", lang, stage)
}

// StandardMaterial is a single directional light Blinn-Phong approximation
// driven by roughness and metalness.
type StandardMaterial struct {
	MaterialBase
	color     mgl32.Vec4
	emissive  mgl32.Vec3
	roughness float32
	metalness float32
}

var standardOptions = []string{"USE_MAP", "USE_EMISSIVE_MAP", "FLAT_SHADING"}

func NewStandardMaterial(name string, color mgl32.Vec4) *StandardMaterial {
	m := &StandardMaterial{color: color, roughness: 0.5}
	m.init(m, name, standardOptions)
	return m
}

func (m *StandardMaterial) SetColor(c mgl32.Vec4) {
	m.color = c
	m.MarkDirty()
}

func (m *StandardMaterial) SetEmissive(c mgl32.Vec3) {
	m.emissive = c
	m.MarkDirty()
}

func (m *StandardMaterial) SetRoughness(v float32) {
	m.roughness = math.Clamp(v, 0, 1)
	m.MarkDirty()
}

func (m *StandardMaterial) SetMetalness(v float32) {
	m.metalness = math.Clamp(v, 0, 1)
	m.MarkDirty()
}

func (m *StandardMaterial) SetColorMap(tex *Texture) {
	_ = m.SetTexture(SlotColorMap, tex)
	_ = m.SetOption("USE_MAP", tex != nil)
}

func (m *StandardMaterial) SetEmissiveMap(tex *Texture) {
	_ = m.SetTexture(SlotEmissiveMap, tex)
	_ = m.SetOption("USE_EMISSIVE_MAP", tex != nil)
}

func (m *StandardMaterial) UniformBytes() []byte {
	out := make([]byte, 48)
	math.PackFloats(out,
		m.color[0], m.color[1], m.color[2], m.color[3],
		m.emissive[0], m.emissive[1], m.emissive[2], 0,
		m.roughness, m.metalness)
	return out
}

func (m *StandardMaterial) ShaderSource(lang gal.ShaderLanguage, stage gal.ShaderStage) (string, error) {
	return shaderSource("standard", lang, stage)
}
