// Package vulkan implements gal.RenderDevice on top of goki/vulkan. The
// device is headless: render targets are plain images, so no surface or
// swapchain is created and a single graphics queue serves every submit.
package vulkan

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/gal"
	"github.com/spaghettifunk/lumen/engine/platform"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

type Options struct {
	AppName string
	// Validation enables the Khronos validation layer and routes its
	// reports to the engine log. Missing layers only produce a warning.
	Validation bool
	// PreferIntegrated picks an integrated GPU over a discrete one.
	PreferIntegrated bool
}

type Device struct {
	instance vk.Instance
	debug    vk.DebugReportCallback
	physical vk.PhysicalDevice
	handle   vk.Device

	properties vk.PhysicalDeviceProperties
	memory     vk.PhysicalDeviceMemoryProperties
	anisotropy bool

	queueFamily uint32
	queue       *Queue
	commandPool vk.CommandPool
	depthFormat vk.Format

	locks  *lockPool
	passes *passCache
	name   string
}

var _ gal.RenderDevice = (*Device)(nil)

// NewDevice creates an instance, picks a physical device with a graphics
// queue and creates the logical device. The platform must have loaded
// Vulkan already.
func NewDevice(p *platform.Platform, opts Options) (*Device, error) {
	if p == nil {
		return nil, fmt.Errorf("vulkan device needs a loaded platform: %w", core.ErrInvalidParameters)
	}
	d := &Device{locks: newLockPool()}
	d.passes = newPassCache(d)

	if err := d.createInstance(opts); err != nil {
		return nil, err
	}
	if err := d.selectPhysicalDevice(opts); err != nil {
		d.destroyInstance()
		return nil, err
	}
	if err := d.createLogicalDevice(); err != nil {
		d.destroyInstance()
		return nil, err
	}
	if !d.detectDepthFormat() {
		d.Destroy()
		return nil, fmt.Errorf("no depth attachment format on '%s': %w", d.name, core.ErrUnsupportedFormat)
	}
	core.LogInfo("vulkan device '%s' ready (loader=%s, depth format=%d)", d.name, p.Loader(), d.depthFormat)
	return d, nil
}

func (d *Device) createInstance(opts Options) error {
	appName := opts.AppName
	if appName == "" {
		appName = "lumen"
	}
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   safeString(appName),
		PEngineName:        safeString("Lumen"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	var extensions []string
	if runtime.GOOS == "darwin" {
		extensions = append(extensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	var layers []string
	validation := opts.Validation && layerAvailable(validationLayer)
	if opts.Validation && !validation {
		core.LogWarn("validation requested but layer %s is missing", validationLayer)
	}
	if validation {
		layers = append(layers, validationLayer)
		extensions = append(extensions, vk.ExtDebugReportExtensionName)
	}

	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = safeStrings(extensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = safeStrings(layers)

	var instance vk.Instance
	if err := check("vkCreateInstance", vk.CreateInstance(&createInfo, nil, &instance)); err != nil {
		return err
	}
	if err := vk.InitInstance(instance); err != nil {
		vk.DestroyInstance(instance, nil)
		return fmt.Errorf("load instance functions: %w", err)
	}
	d.instance = instance

	if validation {
		debugInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: debugReport,
		}
		var cb vk.DebugReportCallback
		if err := check("vkCreateDebugReportCallback", vk.CreateDebugReportCallback(instance, &debugInfo, nil, &cb)); err != nil {
			core.LogWarn("validation reports disabled: %s", err)
		} else {
			d.debug = cb
		}
	}
	core.LogDebug("vulkan instance created (validation=%t)", validation)
	return nil
}

func layerAvailable(name string) bool {
	var count uint32
	if vk.EnumerateInstanceLayerProperties(&count, nil) != vk.Success || count == 0 {
		return false
	}
	available := make([]vk.LayerProperties, count)
	if vk.EnumerateInstanceLayerProperties(&count, available) != vk.Success {
		return false
	}
	for i := range available {
		available[i].Deref()
		if cString(available[i].LayerName[:]) == name {
			return true
		}
	}
	return false
}

func debugReport(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64,
	messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("[%s] code %d: %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0,
		flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("[%s] code %d: %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] code %d: %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.False
}

type candidate struct {
	device      vk.PhysicalDevice
	properties  vk.PhysicalDeviceProperties
	features    vk.PhysicalDeviceFeatures
	queueFamily uint32
	score       int
}

func (d *Device) selectPhysicalDevice(opts Options) error {
	var count uint32
	if err := check("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(d.instance, &count, nil)); err != nil {
		return err
	}
	if count == 0 {
		return errors.New("no device supports vulkan")
	}
	devices := make([]vk.PhysicalDevice, count)
	if err := check("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(d.instance, &count, devices)); err != nil {
		return err
	}

	var best *candidate
	for _, pd := range devices {
		c, ok := inspect(pd, opts)
		if !ok {
			continue
		}
		if best == nil || c.score > best.score {
			best = c
		}
	}
	if best == nil {
		return errors.New("no vulkan device exposes a graphics queue")
	}

	d.physical = best.device
	d.properties = best.properties
	d.properties.Limits.Deref()
	d.queueFamily = best.queueFamily
	d.anisotropy = best.features.SamplerAnisotropy == vk.True
	d.name = cString(best.properties.DeviceName[:])
	vk.GetPhysicalDeviceMemoryProperties(d.physical, &d.memory)
	d.memory.Deref()

	version := vk.Version(best.properties.ApiVersion)
	core.LogInfo("selected device '%s' (type=%d, vulkan %d.%d.%d)",
		d.name, best.properties.DeviceType, version.Major(), version.Minor(), version.Patch())
	for i := uint32(0); i < d.memory.MemoryHeapCount; i++ {
		heap := d.memory.MemoryHeaps[i]
		heap.Deref()
		gib := float64(heap.Size) / 1024 / 1024 / 1024
		if vk.MemoryHeapFlagBits(heap.Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			core.LogDebug("local GPU memory: %.2f GiB", gib)
		} else {
			core.LogDebug("shared system memory: %.2f GiB", gib)
		}
	}
	return nil
}

func inspect(pd vk.PhysicalDevice, opts Options) (*candidate, bool) {
	c := &candidate{device: pd}
	vk.GetPhysicalDeviceProperties(pd, &c.properties)
	c.properties.Deref()
	vk.GetPhysicalDeviceFeatures(pd, &c.features)
	c.features.Deref()

	var familyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, nil)
	families := make([]vk.QueueFamilyProperties, familyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, families)

	found := false
	for i := range families {
		families[i].Deref()
		if vk.QueueFlagBits(families[i].QueueFlags)&vk.QueueGraphicsBit != 0 {
			c.queueFamily = uint32(i)
			found = true
			break
		}
	}
	name := cString(c.properties.DeviceName[:])
	if !found {
		core.LogDebug("device '%s' has no graphics queue, skipping", name)
		return nil, false
	}

	switch c.properties.DeviceType {
	case vk.PhysicalDeviceTypeDiscreteGpu:
		c.score = 3
		if opts.PreferIntegrated {
			c.score = 2
		}
	case vk.PhysicalDeviceTypeIntegratedGpu:
		c.score = 2
		if opts.PreferIntegrated {
			c.score = 3
		}
	case vk.PhysicalDeviceTypeVirtualGpu:
		c.score = 1
	}
	if c.features.SamplerAnisotropy == vk.True {
		c.score *= 2
	}
	return c, true
}

func (d *Device) createLogicalDevice() error {
	features := vk.PhysicalDeviceFeatures{}
	if d.anisotropy {
		features.SamplerAnisotropy = vk.True
	}

	var extensions []string
	if d.hasDeviceExtension("VK_KHR_portability_subset") {
		core.LogDebug("enabling required extension 'VK_KHR_portability_subset'")
		extensions = append(extensions, "VK_KHR_portability_subset")
	}

	createInfo := vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: 1,
		PQueueCreateInfos: []vk.DeviceQueueCreateInfo{{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: d.queueFamily,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}},
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{features},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
	}
	var handle vk.Device
	if err := check("vkCreateDevice", vk.CreateDevice(d.physical, &createInfo, nil, &handle)); err != nil {
		return err
	}
	d.handle = handle

	var queue vk.Queue
	vk.GetDeviceQueue(handle, d.queueFamily, 0, &queue)
	d.queue = &Queue{device: d, handle: queue}

	poolInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.queueFamily,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if err := check("vkCreateCommandPool", vk.CreateCommandPool(handle, &poolInfo, nil, &pool)); err != nil {
		vk.DestroyDevice(handle, nil)
		d.handle = nil
		return err
	}
	d.commandPool = pool
	core.LogDebug("logical device created (queue family=%d)", d.queueFamily)
	return nil
}

func (d *Device) hasDeviceExtension(name string) bool {
	var count uint32
	if vk.EnumerateDeviceExtensionProperties(d.physical, "", &count, nil) != vk.Success || count == 0 {
		return false
	}
	available := make([]vk.ExtensionProperties, count)
	if vk.EnumerateDeviceExtensionProperties(d.physical, "", &count, available) != vk.Success {
		return false
	}
	for i := range available {
		available[i].Deref()
		if cString(available[i].ExtensionName[:]) == name {
			return true
		}
	}
	return false
}

// detectDepthFormat prefers formats carrying a stencil aspect so the
// engine's Depth24PlusStencil8 keeps its meaning.
func (d *Device) detectDepthFormat() bool {
	candidates := []vk.Format{
		vk.FormatD24UnormS8Uint,
		vk.FormatD32SfloatS8Uint,
		vk.FormatD32Sfloat,
	}
	required := vk.FormatFeatureFlagBits(vk.FormatFeatureDepthStencilAttachmentBit | vk.FormatFeatureSampledImageBit)
	for _, f := range candidates {
		var props vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(d.physical, f, &props)
		props.Deref()
		if vk.FormatFeatureFlagBits(props.OptimalTilingFeatures)&required == required {
			d.depthFormat = f
			return true
		}
	}
	return false
}

// findMemoryIndex returns the first memory type allowed by typeFilter that
// has every property in flags, or -1.
func (d *Device) findMemoryIndex(typeFilter uint32, flags vk.MemoryPropertyFlagBits) int32 {
	for i := uint32(0); i < d.memory.MemoryTypeCount; i++ {
		mt := d.memory.MemoryTypes[i]
		mt.Deref()
		if typeFilter&(1<<i) != 0 && vk.MemoryPropertyFlagBits(mt.PropertyFlags)&flags == flags {
			return int32(i)
		}
	}
	return -1
}

func (d *Device) allocate(op string, reqs vk.MemoryRequirements, flags vk.MemoryPropertyFlagBits) (vk.DeviceMemory, error) {
	reqs.Deref()
	index := d.findMemoryIndex(reqs.MemoryTypeBits, flags)
	if index < 0 {
		return vk.NullDeviceMemory, fmt.Errorf("%s: no memory type with flags %#x: %w", op, uint32(flags), core.ErrOutOfDeviceMemory)
	}
	info := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: uint32(index),
	}
	var mem vk.DeviceMemory
	if err := check(op+": vkAllocateMemory", vk.AllocateMemory(d.handle, &info, nil, &mem)); err != nil {
		return vk.NullDeviceMemory, err
	}
	return mem, nil
}

func (d *Device) Name() string {
	return "vulkan:" + d.name
}

func (d *Device) Queue() gal.Queue {
	return d.queue
}

func (d *Device) WaitIdle() error {
	return check("vkDeviceWaitIdle", vk.DeviceWaitIdle(d.handle))
}

func (d *Device) Destroy() {
	if d.handle != nil {
		if err := d.WaitIdle(); err != nil {
			core.LogWarn("wait idle before destroy: %s", err)
		}
		d.passes.destroy()
		vk.DestroyCommandPool(d.handle, d.commandPool, nil)
		vk.DestroyDevice(d.handle, nil)
		d.handle = nil
		core.LogDebug("vulkan device destroyed")
	}
	d.destroyInstance()
}

func (d *Device) destroyInstance() {
	if d.instance == nil {
		return
	}
	if d.debug != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(d.instance, d.debug, nil)
		d.debug = vk.NullDebugReportCallback
	}
	vk.DestroyInstance(d.instance, nil)
	d.instance = nil
}

func labelOr(label, kind string) string {
	if label != "" {
		return label
	}
	return kind
}
