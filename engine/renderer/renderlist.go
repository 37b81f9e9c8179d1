package renderer

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/scene"
)

// SortOrder is the depth order of a render list.
type SortOrder string

const (
	FrontToBack SortOrder = "front_to_back"
	BackToFront SortOrder = "back_to_front"
)

// ParseSortOrder accepts the config spellings of SortOrder.
func ParseSortOrder(s string) (SortOrder, error) {
	switch o := SortOrder(strings.ToLower(strings.TrimSpace(s))); o {
	case FrontToBack, BackToFront:
		return o, nil
	case "":
		return FrontToBack, nil
	default:
		return "", fmt.Errorf("unknown sort order '%s'", s)
	}
}

// renderItem is one visible mesh node of the current frame.
type renderItem struct {
	node  scene.Node
	mesh  *scene.Mesh
	depth float32
}

type renderList []renderItem

// sort orders the list by view-space depth. Equal depths keep traversal
// order.
func (l renderList) sort(order SortOrder) {
	slices.SortStableFunc(l, func(a, b renderItem) int {
		if order == BackToFront {
			return cmp.Compare(b.depth, a.depth)
		}
		return cmp.Compare(a.depth, b.depth)
	})
}

// collector walks the scene depth first and fills the two render lists.
type collector struct {
	view        mgl32.Mat4
	frustum     math.Frustum
	opaque      renderList
	transparent renderList
	stats       *FrameStats
}

func (c *collector) reset(view, projection mgl32.Mat4, stats *FrameStats) {
	c.view = view
	c.frustum = math.FrustumFromProjection(projection)
	c.opaque = c.opaque[:0]
	c.transparent = c.transparent[:0]
	c.stats = stats
}

func (c *collector) walk(n scene.Node, parent *scene.Transform) {
	if !n.Visible() {
		return
	}
	t := n.Transform()
	if t.AutoUpdate {
		t.UpdateLocal()
		t.UpdateWorld(parent)
	}
	if mesh, ok := scene.GetComponent[*scene.Mesh](n); ok && mesh.Geometry != nil && mesh.Material != nil {
		c.push(n, mesh)
	}
	for _, child := range n.Children() {
		c.walk(child, t)
	}
}

func (c *collector) push(n scene.Node, mesh *scene.Mesh) {
	modelView := c.view.Mul4(n.Transform().World)
	bounds := mesh.Geometry.Bounds()
	center := mgl32.Vec3{}
	if !bounds.IsEmpty() {
		if !c.frustum.IntersectsAABB(bounds.Transform(modelView)) {
			c.stats.Culled++
			return
		}
		center = bounds.Center()
	}
	// the camera looks down -Z, so depth grows away from it
	depth := -mgl32.TransformCoordinate(center, modelView).Z()

	c.stats.Visible++
	item := renderItem{node: n, mesh: mesh, depth: depth}
	if mesh.Material.Blend() {
		c.transparent = append(c.transparent, item)
		c.stats.Transparent++
		return
	}
	c.opaque = append(c.opaque, item)
	c.stats.Opaque++
}
