// Package renderer drives the forward pass: it walks the scene, culls and
// sorts what is visible, brings every cache up to date and records, submits
// and waits on one frame of GPU work.
package renderer

import (
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/gal"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/scene"
	"github.com/spaghettifunk/lumen/engine/shader"
	"github.com/spaghettifunk/lumen/engine/systems"
)

// DefaultStagingPoolSize is how many staging buffer sizes the texture cache
// keeps for reuse.
const DefaultStagingPoolSize = 8

type Config struct {
	Width       uint32
	Height      uint32
	ColorFormat gputypes.TextureFormat
	// AuxFormat is the second color target, sampled by later passes.
	AuxFormat   gputypes.TextureFormat
	DepthFormat gputypes.TextureFormat
	ClearColor  gputypes.Color
	// TransparentSort orders the transparent list. Opaque objects are
	// always drawn front to back.
	TransparentSort SortOrder
	// FenceTimeout of zero waits forever.
	FenceTimeout    time.Duration
	StagingPoolSize int
}

func (c *Config) applyDefaults() {
	if c.ColorFormat == gputypes.TextureFormat(0) {
		c.ColorFormat = gputypes.TextureFormatRGBA8Unorm
	}
	if c.AuxFormat == gputypes.TextureFormat(0) {
		c.AuxFormat = gputypes.TextureFormatRGBA8Unorm
	}
	if c.DepthFormat == gputypes.TextureFormat(0) {
		c.DepthFormat = gputypes.TextureFormatDepth24PlusStencil8
	}
	if c.TransparentSort == "" {
		c.TransparentSort = FrontToBack
	}
	if c.StagingPoolSize <= 0 {
		c.StagingPoolSize = DefaultStagingPoolSize
	}
}

// FrameStats counts what one Render call saw and drew.
type FrameStats struct {
	Visible     int
	Culled      int
	Opaque      int
	Transparent int
	Drawn       int
	// PipelineBinds counts pipeline switches inside the pass.
	PipelineBinds int
}

// ForwardRenderer owns the caches, the render target and the per-frame
// command buffers. It is driven from a single goroutine.
type ForwardRenderer struct {
	config Config
	device gal.RenderDevice

	release  *systems.ReleaseQueue
	geometry *systems.GeometryCache
	textures *systems.TextureCache
	programs *systems.ProgramCache
	objects  *systems.ObjectCache

	camera   gal.Buffer
	target   *renderTarget
	transfer gal.CommandBuffer
	graphics gal.CommandBuffer
	fence    gal.Fence

	lists  collector
	draws  []drawCall
	frames uint64
}

// drawCall is a visible item with its cache entries already acquired.
type drawCall struct {
	entry   *systems.ObjectEntry
	buffers *systems.GeometryBuffers
}

func NewForwardRenderer(device gal.RenderDevice, config Config, compiler shader.Compiler) (*ForwardRenderer, error) {
	if device == nil || compiler == nil {
		err := fmt.Errorf("func NewForwardRenderer - device and shader compiler are required: %w", core.ErrInvalidParameters)
		core.LogError("%s", err)
		return nil, err
	}
	if config.Width == 0 || config.Height == 0 {
		err := fmt.Errorf("func NewForwardRenderer - invalid size %dx%d: %w", config.Width, config.Height, core.ErrInvalidParameters)
		core.LogError("%s", err)
		return nil, err
	}
	if gal.IsDepthFormat(config.ColorFormat) || gal.IsDepthFormat(config.AuxFormat) {
		err := fmt.Errorf("func NewForwardRenderer - color targets need color formats: %w", core.ErrUnsupportedFormat)
		core.LogError("%s", err)
		return nil, err
	}
	config.applyDefaults()

	r := &ForwardRenderer{
		config:  config,
		device:  device,
		release: systems.NewReleaseQueue(64),
	}
	fail := func(err error) (*ForwardRenderer, error) {
		r.destroy()
		return nil, err
	}
	var err error
	if r.target, err = newRenderTarget(device, &r.config); err != nil {
		return nil, err
	}
	if r.geometry, err = systems.NewGeometryCache(device, r.release); err != nil {
		return fail(err)
	}
	if r.textures, err = systems.NewTextureCache(systems.TextureCacheConfig{StagingPoolSize: r.config.StagingPoolSize}, device, r.release); err != nil {
		return fail(err)
	}
	if r.programs, err = systems.NewProgramCache(device, compiler); err != nil {
		return fail(err)
	}
	if r.camera, err = device.CreateBuffer(&gal.BufferDescriptor{
		Label: "camera",
		Size:  systems.CameraUniformSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	}); err != nil {
		return fail(fmt.Errorf("camera uniform buffer: %w", err))
	}
	if r.objects, err = systems.NewObjectCache(systems.ObjectCacheConfig{
		ColorFormats: r.target.colorFormats(),
		DepthFormat:  r.config.DepthFormat,
	}, device, r.release, r.textures, r.programs, r.camera); err != nil {
		return fail(err)
	}
	if r.transfer, err = device.CreateCommandBuffer(); err != nil {
		return fail(fmt.Errorf("transfer command buffer: %w", err))
	}
	if r.graphics, err = device.CreateCommandBuffer(); err != nil {
		return fail(fmt.Errorf("graphics command buffer: %w", err))
	}
	if r.fence, err = device.CreateFence(false); err != nil {
		return fail(fmt.Errorf("frame fence: %w", err))
	}

	core.LogInfo("forward renderer ready on '%s' (%dx%d, transparent sort %s)",
		device.Name(), config.Width, config.Height, r.config.TransparentSort)
	return r, nil
}

// Render draws the scene under root as seen from camera and waits for the
// GPU to finish. Device creation failures and a camera without a projection
// abort; a failed submit or fence wait is returned.
func (r *ForwardRenderer) Render(root, camera scene.Node) (FrameStats, error) {
	var stats FrameStats

	projector, ok := scene.GetComponent[scene.Projector](camera)
	if !ok {
		core.Fatal(fmt.Errorf("render camera '%s': %w", camera.Name(), core.ErrMissingCamera))
	}
	projection := projector.Projection()
	view := updateChain(camera).World.Inv()
	r.uploadCamera(view, projection, camera.Transform().WorldPosition())

	r.lists.reset(view, projection, &stats)
	r.lists.walk(root, nil)
	r.lists.opaque.sort(FrontToBack)
	r.lists.transparent.sort(r.config.TransparentSort)

	r.begin(r.transfer)
	r.begin(r.graphics)
	r.textures.BeginFrame(r.transfer)
	r.acquire()

	r.graphics.PipelineBarrier(r.target.beginBarriers()...)
	if err := r.graphics.BeginRenderPass(r.target.passDescriptor(r.config.ClearColor)); err != nil {
		core.Fatal(fmt.Errorf("begin forward pass: %w", err))
	}
	w, h := float32(r.target.width), float32(r.target.height)
	r.graphics.SetViewport(0, 0, w, h, 0, 1)
	r.graphics.SetScissor(0, 0, r.target.width, r.target.height)

	var bound gal.GraphicsPipeline
	for _, d := range r.draws {
		r.draw(d, &bound, &stats)
	}

	r.graphics.EndRenderPass()
	r.graphics.PipelineBarrier(r.target.endBarriers()...)

	r.end(r.transfer)
	r.end(r.graphics)
	if err := r.submit(); err != nil {
		return stats, err
	}
	r.frames++
	return stats, nil
}

// uploadCamera writes view, projection, view-projection and the camera
// position in one update.
func (r *ForwardRenderer) uploadCamera(view, projection mgl32.Mat4, position mgl32.Vec3) {
	data := make([]byte, systems.CameraUniformSize)
	math.PackMat4(data[0:64], view)
	math.PackMat4(data[64:128], projection)
	math.PackMat4(data[128:192], projection.Mul4(view))
	math.PackFloats(data[192:], position.X(), position.Y(), position.Z(), 1)
	if err := r.camera.Update(0, data); err != nil {
		core.Fatal(fmt.Errorf("upload camera uniforms: %w", err))
	}
}

// updateChain refreshes the transforms from the topmost ancestor of n down
// to n and returns the transform of n.
func updateChain(n scene.Node) *scene.Transform {
	var chain []scene.Node
	for p := n; p != nil; p = p.Parent() {
		chain = append(chain, p)
	}
	var parent *scene.Transform
	for i := len(chain) - 1; i >= 0; i-- {
		t := chain[i].Transform()
		if t.AutoUpdate {
			t.UpdateLocal()
			t.UpdateWorld(parent)
		}
		parent = t
	}
	return parent
}

// acquire brings the object and geometry caches up to date for every item,
// opaque first, before anything is recorded into the pass.
func (r *ForwardRenderer) acquire() {
	r.draws = r.draws[:0]
	for _, list := range []renderList{r.lists.opaque, r.lists.transparent} {
		for _, item := range list {
			entry, err := r.objects.Get(item.node, item.mesh)
			if err != nil {
				core.Fatal(err)
			}
			buffers, err := r.geometry.Get(item.mesh.Geometry)
			if err != nil {
				core.Fatal(fmt.Errorf("object '%s' geometry: %w", item.node.Name(), err))
			}
			r.draws = append(r.draws, drawCall{entry: entry, buffers: buffers})
		}
	}
}

func (r *ForwardRenderer) draw(d drawCall, bound *gal.GraphicsPipeline, stats *FrameStats) {
	if d.entry.Pipeline != *bound {
		r.graphics.BindPipeline(d.entry.Pipeline)
		*bound = d.entry.Pipeline
		stats.PipelineBinds++
	}
	r.graphics.BindBindGroup(0, d.entry.BindGroup)
	r.graphics.BindVertexBuffers(0, d.buffers.Vertex, make([]uint64, len(d.buffers.Vertex)))
	r.graphics.BindIndexBuffer(d.buffers.Index, 0, d.buffers.IndexFormat)
	r.graphics.DrawIndexed(d.buffers.IndexCount, 1, 0, 0, 0)
	stats.Drawn++
}

func (r *ForwardRenderer) begin(cmd gal.CommandBuffer) {
	if err := cmd.Reset(); err != nil {
		core.Fatal(fmt.Errorf("reset command buffer: %w", err))
	}
	if err := cmd.Begin(); err != nil {
		core.Fatal(fmt.Errorf("begin command buffer: %w", err))
	}
}

func (r *ForwardRenderer) end(cmd gal.CommandBuffer) {
	if err := cmd.End(); err != nil {
		core.Fatal(fmt.Errorf("end command buffer: %w", err))
	}
}

// submit sends transfer work ahead of the draws, blocks on the frame fence
// and retires everything the frame released.
func (r *ForwardRenderer) submit() error {
	if err := r.device.Queue().Submit(r.fence, r.transfer, r.graphics); err != nil {
		return fmt.Errorf("submit frame %d: %w", r.frames, err)
	}
	timeout := r.config.FenceTimeout
	if timeout <= 0 {
		timeout = gal.WaitForever
	}
	if err := r.fence.Wait(timeout); err != nil {
		return fmt.Errorf("wait frame %d: %w", r.frames, err)
	}
	if err := r.fence.Reset(); err != nil {
		return fmt.Errorf("reset fence of frame %d: %w", r.frames, err)
	}
	if n := r.release.Flush(); n > 0 {
		core.LogDebug("frame %d released %d device objects", r.frames, n)
	}
	r.textures.EndFrame()
	return nil
}

// Resize recreates the render target. Object pipelines are kept since the
// viewport and scissor are set per pass.
func (r *ForwardRenderer) Resize(width, height uint32) error {
	if width == 0 || height == 0 {
		return fmt.Errorf("resize to %dx%d: %w", width, height, core.ErrInvalidParameters)
	}
	if width == r.config.Width && height == r.config.Height {
		return nil
	}
	if err := r.device.WaitIdle(); err != nil {
		return fmt.Errorf("resize to %dx%d: %w", width, height, err)
	}
	config := r.config
	config.Width, config.Height = width, height
	target, err := newRenderTarget(r.device, &config)
	if err != nil {
		return err
	}
	r.target.destroy()
	r.target = target
	r.config = config
	core.LogInfo("render target resized to %dx%d", width, height)
	return nil
}

// Targets lists color, aux and depth targets with their current layouts.
func (r *ForwardRenderer) Targets() []TargetView {
	return r.target.views()
}

// ColorAttachment returns color target i; 0 is the main color target and 1
// the auxiliary one. Any other index aborts.
func (r *ForwardRenderer) ColorAttachment(i int) gal.Texture {
	return r.target.color(i)
}

func (r *ForwardRenderer) DepthAttachment() gal.Texture {
	return r.target.depth.texture
}

func (r *ForwardRenderer) Size() (uint32, uint32) {
	return r.config.Width, r.config.Height
}

func (r *ForwardRenderer) Frames() uint64 {
	return r.frames
}

// Shutdown waits for the device and frees everything the renderer owns.
func (r *ForwardRenderer) Shutdown() error {
	if err := r.device.WaitIdle(); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	r.destroy()
	core.LogInfo("forward renderer shut down after %d frames", r.frames)
	return nil
}

// destroy frees whatever the renderer got to create. Pipelines go before the
// shader modules they were built from.
func (r *ForwardRenderer) destroy() {
	r.release.Flush()
	if r.objects != nil {
		r.objects.DestroyPipelines()
	}
	if r.programs != nil {
		r.programs.Destroy()
	}
	if r.objects != nil {
		r.objects.Destroy()
	}
	if r.textures != nil {
		r.textures.Destroy()
	}
	if r.geometry != nil {
		r.geometry.Destroy()
	}
	if r.camera != nil {
		r.camera.Destroy()
	}
	if r.target != nil {
		r.target.destroy()
	}
	if r.fence != nil {
		r.fence.Destroy()
	}
}
