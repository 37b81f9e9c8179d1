package vulkan

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/gputypes"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/gal"
)

const spirvMagic = 0x07230203

type ShaderModule struct {
	device *Device
	handle vk.ShaderModule
	stage  gal.ShaderStage
	entry  string
}

func (d *Device) CreateShaderModule(desc *gal.ShaderModuleDescriptor) (gal.ShaderModule, error) {
	if desc == nil || len(desc.Code) < 4 || len(desc.Code)%4 != 0 {
		return nil, fmt.Errorf("create shader module: bytecode must be a non-empty multiple of 4 bytes: %w", core.ErrInvalidParameters)
	}
	if binary.LittleEndian.Uint32(desc.Code) != spirvMagic {
		return nil, fmt.Errorf("create shader module '%s': not SPIR-V: %w", desc.Label, core.ErrShaderCompile)
	}
	words := make([]uint32, len(desc.Code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(desc.Code[i*4:])
	}
	info := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(desc.Code)),
		PCode:    words,
	}
	var handle vk.ShaderModule
	if err := check("vkCreateShaderModule '"+desc.Label+"'", vk.CreateShaderModule(d.handle, &info, nil, &handle)); err != nil {
		return nil, err
	}
	entry := desc.EntryPoint
	if entry == "" {
		entry = "main"
	}
	return &ShaderModule{device: d, handle: handle, stage: desc.Stage, entry: entry}, nil
}

func (m *ShaderModule) Stage() gal.ShaderStage { return m.stage }
func (m *ShaderModule) EntryPoint() string     { return m.entry }

func (m *ShaderModule) Destroy() {
	if m.handle == vk.NullShaderModule {
		return
	}
	vk.DestroyShaderModule(m.device.handle, m.handle, nil)
	m.handle = vk.NullShaderModule
}

func (m *ShaderModule) stageInfo() vk.PipelineShaderStageCreateInfo {
	return vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  shaderStage(m.stage),
		Module: m.handle,
		PName:  safeString(m.entry),
	}
}

type GraphicsPipeline struct {
	device *Device
	handle vk.Pipeline
	layout *PipelineLayout
	label  string
}

func (d *Device) CreateGraphicsPipeline(desc *gal.GraphicsPipelineDescriptor) (gal.GraphicsPipeline, error) {
	if desc == nil {
		return nil, fmt.Errorf("create graphics pipeline: %w", core.ErrInvalidParameters)
	}
	vs, vok := desc.Vertex.(*ShaderModule)
	fs, fok := desc.Fragment.(*ShaderModule)
	if !vok || !fok || vs == nil || fs == nil {
		return nil, fmt.Errorf("create graphics pipeline '%s': missing shader module (vertex=%t fragment=%t): %w",
			desc.Label, vok && vs != nil, fok && fs != nil, core.ErrInvalidParameters)
	}
	layout, ok := desc.Layout.(*PipelineLayout)
	if !ok || layout == nil || len(desc.ColorFormats) == 0 {
		return nil, fmt.Errorf("create graphics pipeline '%s': missing layout or color targets: %w", desc.Label, core.ErrInvalidParameters)
	}

	colors := make([]vk.Format, len(desc.ColorFormats))
	for i, f := range desc.ColorFormats {
		vf, err := textureFormat(f, d.depthFormat)
		if err != nil {
			return nil, fmt.Errorf("create graphics pipeline '%s': %w", desc.Label, err)
		}
		colors[i] = vf
	}
	depthFormat := vk.FormatUndefined
	if desc.DepthStencil != nil {
		vf, err := textureFormat(desc.DepthStencil.Format, d.depthFormat)
		if err != nil {
			return nil, fmt.Errorf("create graphics pipeline '%s': %w", desc.Label, err)
		}
		depthFormat = vf
	}
	colorSpecs, depthSpec := compatibleSpecs(colors, depthFormat)
	pass, err := d.passes.renderPass(colorSpecs, depthSpec)
	if err != nil {
		return nil, err
	}

	var bindings []vk.VertexInputBindingDescription
	var attributes []vk.VertexInputAttributeDescription
	for i, vb := range desc.VertexBuffers {
		bindings = append(bindings, vk.VertexInputBindingDescription{
			Binding:   uint32(i),
			Stride:    vb.Stride,
			InputRate: vk.VertexInputRateVertex,
		})
		for _, a := range vb.Attributes {
			format, err := vertexFormat(a.Format)
			if err != nil {
				return nil, fmt.Errorf("create graphics pipeline '%s': %w", desc.Label, err)
			}
			attributes = append(attributes, vk.VertexInputAttributeDescription{
				Location: a.Location,
				Binding:  uint32(i),
				Format:   format,
				Offset:   a.Offset,
			})
		}
	}
	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(bindings)),
		PVertexBindingDescriptions:      bindings,
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vk.False,
	}

	// viewport and scissor are dynamic; the values here are placeholders
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		PViewports:    []vk.Viewport{{Width: 1, Height: 1, MaxDepth: 1}},
		ScissorCount:  1,
		PScissors:     []vk.Rect2D{{Extent: vk.Extent2D{Width: 1, Height: 1}}},
	}
	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		LineWidth:               1.0,
		CullMode:                cullMode(desc.CullMode),
		FrontFace:               vk.FrontFaceCounterClockwise,
		DepthBiasEnable:         vk.False,
	}
	multisampling := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:  vk.False,
		RasterizationSamples: vk.SampleCount1Bit,
		MinSampleShading:     1.0,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:             vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:   vk.False,
		DepthWriteEnable:  vk.False,
		StencilTestEnable: vk.False,
		MaxDepthBounds:    1.0,
	}
	if ds := desc.DepthStencil; ds != nil {
		depthStencil.DepthTestEnable = boolean(ds.DepthCompare != gputypes.CompareFunctionAlways || ds.DepthWrite)
		depthStencil.DepthWriteEnable = boolean(ds.DepthWrite)
		depthStencil.DepthCompareOp = compareOp(ds.DepthCompare)
	}

	writeMask := vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit)
	blends := make([]vk.PipelineColorBlendAttachmentState, len(colors))
	for i := range blends {
		blends[i] = vk.PipelineColorBlendAttachmentState{
			BlendEnable:    boolean(desc.BlendEnabled),
			ColorWriteMask: writeMask,
		}
		if desc.BlendEnabled {
			blends[i].SrcColorBlendFactor = vk.BlendFactorSrcAlpha
			blends[i].DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
			blends[i].ColorBlendOp = vk.BlendOpAdd
			blends[i].SrcAlphaBlendFactor = vk.BlendFactorOne
			blends[i].DstAlphaBlendFactor = vk.BlendFactorOneMinusSrcAlpha
			blends[i].AlphaBlendOp = vk.BlendOpAdd
		}
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(blends)),
		PAttachments:    blends,
	}

	dynamicStates := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	stages := []vk.PipelineShaderStageCreateInfo{vs.stageInfo(), fs.stageInfo()}
	info := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisampling,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlend,
		PDynamicState:       &dynamicState,
		Layout:              layout.handle,
		RenderPass:          pass,
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}
	pipelines := make([]vk.Pipeline, 1)
	if err := check("vkCreateGraphicsPipelines '"+desc.Label+"'", vk.CreateGraphicsPipelines(
		d.handle, vk.NullPipelineCache, 1, []vk.GraphicsPipelineCreateInfo{info}, nil, pipelines)); err != nil {
		return nil, err
	}
	core.LogDebug("graphics pipeline '%s' created", desc.Label)
	return &GraphicsPipeline{device: d, handle: pipelines[0], layout: layout, label: desc.Label}, nil
}

func (p *GraphicsPipeline) Layout() gal.PipelineLayout {
	return p.layout
}

func (p *GraphicsPipeline) Destroy() {
	if p.handle == vk.NullPipeline {
		return
	}
	vk.DestroyPipeline(p.device.handle, p.handle, nil)
	p.handle = vk.NullPipeline
}
