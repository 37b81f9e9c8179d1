// Package soft is an in-memory RenderDevice. It executes transfers, blits
// and barriers on the CPU, validates texture layouts against what each
// command expects, and counts every creation and write. Draws are recorded
// and validated but not rasterized.
package soft

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/gal"
)

// Stats counts device activity since creation.
type Stats struct {
	BuffersCreated          int
	BuffersDestroyed        int
	BufferWrites            int
	TexturesCreated         int
	TexturesDestroyed       int
	SamplersCreated         int
	ShaderModulesCreated    int
	BindGroupLayoutsCreated int
	BindGroupsCreated       int
	BindGroupWrites         int
	PipelineLayoutsCreated  int
	PipelinesCreated        int
	PipelinesDestroyed      int
	CommandBuffersCreated   int
	Submits                 int
	Draws                   int
	Blits                   int
}

type Options struct {
	// MemoryBudget caps buffer and texture bytes; zero means unlimited.
	MemoryBudget int
}

type Device struct {
	mu         sync.Mutex
	opts       Options
	stats      Stats
	allocated  int
	validation []error
	queue      *Queue
	destroyed  bool
}

var _ gal.RenderDevice = (*Device)(nil)

func NewDevice(opts Options) *Device {
	d := &Device{opts: opts}
	d.queue = &Queue{device: d}
	core.LogDebug("soft device created (memory budget=%d)", opts.MemoryBudget)
	return d
}

func (d *Device) Name() string {
	return "soft"
}

// Stats returns a snapshot of the activity counters.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// ValidationErrors lists every misuse detected while executing commands,
// such as sampling a texture that was never transitioned to a read layout.
func (d *Device) ValidationErrors() []error {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]error, len(d.validation))
	copy(out, d.validation)
	return out
}

func (d *Device) AllocatedBytes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.allocated
}

func (d *Device) report(format string, args ...interface{}) {
	err := fmt.Errorf(format, args...)
	core.LogWarn("soft device validation: %s", err)
	d.mu.Lock()
	d.validation = append(d.validation, err)
	d.mu.Unlock()
}

func (d *Device) reserve(op string, size int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.opts.MemoryBudget > 0 && d.allocated+size > d.opts.MemoryBudget {
		return fmt.Errorf("%s: %d bytes requested, %d of %d in use: %w",
			op, size, d.allocated, d.opts.MemoryBudget, core.ErrOutOfDeviceMemory)
	}
	d.allocated += size
	return nil
}

func (d *Device) release(size int) {
	d.mu.Lock()
	d.allocated -= size
	d.mu.Unlock()
}

func (d *Device) count(fn func(s *Stats)) {
	d.mu.Lock()
	fn(&d.stats)
	d.mu.Unlock()
}

func labelOr(label, kind string) string {
	if label != "" {
		return label
	}
	return fmt.Sprintf("%s-%s", kind, uuid.NewString())
}

func (d *Device) CreateBuffer(desc *gal.BufferDescriptor) (gal.Buffer, error) {
	if desc == nil || desc.Size <= 0 {
		size := 0
		if desc != nil {
			size = desc.Size
		}
		return nil, fmt.Errorf("create buffer (size=%d): %w", size, core.ErrInvalidParameters)
	}
	if err := d.reserve("create buffer", desc.Size); err != nil {
		return nil, err
	}
	d.count(func(s *Stats) { s.BuffersCreated++ })
	return &Buffer{
		device: d,
		label:  labelOr(desc.Label, "buffer"),
		usage:  desc.Usage,
		data:   make([]byte, desc.Size),
	}, nil
}

func (d *Device) CreateTexture(desc *gal.TextureDescriptor) (gal.Texture, error) {
	if desc == nil || desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("create texture (desc=%+v): %w", desc, core.ErrInvalidParameters)
	}
	bpp, err := gal.BytesPerPixel(desc.Format)
	if err != nil {
		return nil, fmt.Errorf("create texture '%s': %w", desc.Label, err)
	}
	mips := desc.MipCount
	if mips == 0 {
		mips = 1
	}
	t := &Texture{
		device:  d,
		label:   labelOr(desc.Label, "texture"),
		width:   desc.Width,
		height:  desc.Height,
		format:  desc.Format,
		usage:   desc.Usage,
		bpp:     bpp,
		mips:    make([][]byte, mips),
		layouts: make([]gal.Layout, mips),
	}
	for level := uint32(0); level < mips; level++ {
		t.mips[level] = make([]byte, int(gal.MipExtent(desc.Width, level)*gal.MipExtent(desc.Height, level))*bpp)
		t.bytes += len(t.mips[level])
	}
	if err := d.reserve(fmt.Sprintf("create texture '%s' %dx%d mips=%d", t.label, t.width, t.height, mips), t.bytes); err != nil {
		return nil, err
	}
	d.count(func(s *Stats) { s.TexturesCreated++ })
	return t, nil
}

func (d *Device) CreateSampler(desc *gal.SamplerDescriptor) (gal.Sampler, error) {
	if desc == nil {
		return nil, fmt.Errorf("create sampler: %w", core.ErrInvalidParameters)
	}
	d.count(func(s *Stats) { s.SamplersCreated++ })
	return &Sampler{Desc: *desc}, nil
}

func (d *Device) CreateShaderModule(desc *gal.ShaderModuleDescriptor) (gal.ShaderModule, error) {
	if desc == nil || len(desc.Code) == 0 || len(desc.Code)%4 != 0 {
		return nil, fmt.Errorf("create shader module: bytecode must be a non-empty multiple of 4 bytes: %w", core.ErrInvalidParameters)
	}
	entry := desc.EntryPoint
	if entry == "" {
		entry = "main"
	}
	d.count(func(s *Stats) { s.ShaderModulesCreated++ })
	return &ShaderModule{label: desc.Label, stage: desc.Stage, entry: entry, code: append([]byte(nil), desc.Code...)}, nil
}

func (d *Device) CreateBindGroupLayout(desc *gal.BindGroupLayoutDescriptor) (gal.BindGroupLayout, error) {
	if desc == nil || len(desc.Entries) == 0 {
		return nil, fmt.Errorf("create bind group layout: no entries: %w", core.ErrInvalidParameters)
	}
	seen := map[uint32]bool{}
	for _, e := range desc.Entries {
		if seen[e.Binding] {
			return nil, fmt.Errorf("create bind group layout '%s': binding %d declared twice: %w", desc.Label, e.Binding, core.ErrInvalidParameters)
		}
		seen[e.Binding] = true
	}
	d.count(func(s *Stats) { s.BindGroupLayoutsCreated++ })
	return &BindGroupLayout{entries: append([]gal.BindGroupLayoutEntry(nil), desc.Entries...)}, nil
}

func (d *Device) CreateBindGroup(layout gal.BindGroupLayout) (gal.BindGroup, error) {
	l, ok := layout.(*BindGroupLayout)
	if !ok || l == nil {
		return nil, fmt.Errorf("create bind group: layout %T is not a soft layout: %w", layout, core.ErrInvalidParameters)
	}
	d.count(func(s *Stats) { s.BindGroupsCreated++ })
	return &BindGroup{device: d, layout: l, bound: map[uint32]gal.BindGroupEntry{}}, nil
}

func (d *Device) CreatePipelineLayout(desc *gal.PipelineLayoutDescriptor) (gal.PipelineLayout, error) {
	if desc == nil {
		return nil, fmt.Errorf("create pipeline layout: %w", core.ErrInvalidParameters)
	}
	d.count(func(s *Stats) { s.PipelineLayoutsCreated++ })
	return &PipelineLayout{groups: append([]gal.BindGroupLayout(nil), desc.BindGroupLayouts...)}, nil
}

func (d *Device) CreateGraphicsPipeline(desc *gal.GraphicsPipelineDescriptor) (gal.GraphicsPipeline, error) {
	if desc == nil {
		return nil, fmt.Errorf("create graphics pipeline: %w", core.ErrInvalidParameters)
	}
	if desc.Vertex == nil || desc.Fragment == nil {
		return nil, fmt.Errorf("create graphics pipeline '%s': missing shader module (vertex=%t fragment=%t): %w",
			desc.Label, desc.Vertex != nil, desc.Fragment != nil, core.ErrInvalidParameters)
	}
	if desc.Layout == nil || len(desc.ColorFormats) == 0 {
		return nil, fmt.Errorf("create graphics pipeline '%s': missing layout or color targets: %w", desc.Label, core.ErrInvalidParameters)
	}
	d.count(func(s *Stats) { s.PipelinesCreated++ })
	return &GraphicsPipeline{device: d, label: desc.Label, desc: *desc}, nil
}

func (d *Device) CreateCommandBuffer() (gal.CommandBuffer, error) {
	d.count(func(s *Stats) { s.CommandBuffersCreated++ })
	return &CommandBuffer{device: d, state: stateReady}, nil
}

func (d *Device) CreateFence(signaled bool) (gal.Fence, error) {
	return &Fence{signaled: signaled}, nil
}

func (d *Device) Queue() gal.Queue {
	return d.queue
}

func (d *Device) WaitIdle() error {
	return nil
}

func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return
	}
	d.destroyed = true
	if d.allocated != 0 {
		core.LogWarn("soft device destroyed with %d bytes still allocated", d.allocated)
	}
}
