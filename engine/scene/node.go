// Package scene is the minimal scene graph the renderer walks: nodes with
// transforms, visibility and typed components.
package scene

import (
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/resources"
)

type Node interface {
	ID() core.Handle
	Name() string
	Visible() bool
	Transform() *Transform
	// Parent returns nil for a root.
	Parent() Node
	Children() []Node
	Components() []any
	// OnRelease registers fn to run once when the node is released.
	OnRelease(fn func())
}

// BasicNode is the stock Node implementation.
type BasicNode struct {
	resources.Resource
	visible    bool
	transform  *Transform
	parent     *BasicNode
	children   []Node
	components []any
}

func NewNode(name string, components ...any) *BasicNode {
	n := &BasicNode{
		visible:    true,
		transform:  NewTransform(),
		components: components,
	}
	n.Init(n, name)
	return n
}

func (n *BasicNode) ID() core.Handle {
	return n.Handle()
}

func (n *BasicNode) Visible() bool {
	return n.visible
}

func (n *BasicNode) SetVisible(v bool) {
	n.visible = v
}

func (n *BasicNode) Transform() *Transform {
	return n.transform
}

func (n *BasicNode) Parent() Node {
	if n.parent == nil {
		return nil
	}
	return n.parent
}

func (n *BasicNode) Children() []Node {
	return n.children
}

func (n *BasicNode) Components() []any {
	return n.components
}

func (n *BasicNode) AddComponent(c any) {
	n.components = append(n.components, c)
}

// Add attaches child, detaching it from its previous parent first.
func (n *BasicNode) Add(child *BasicNode) *BasicNode {
	if child.parent != nil {
		child.parent.Remove(child)
	}
	child.parent = n
	n.children = append(n.children, child)
	return n
}

func (n *BasicNode) Remove(child *BasicNode) {
	for i, c := range n.children {
		if c == Node(child) {
			n.children = append(n.children[:i], n.children[i+1:]...)
			child.parent = nil
			return
		}
	}
}

// Release detaches the node and releases it together with its subtree,
// children first.
func (n *BasicNode) Release() {
	if n.Released() {
		return
	}
	for _, c := range append([]Node(nil), n.children...) {
		if bn, ok := c.(*BasicNode); ok {
			bn.Release()
		}
	}
	if n.parent != nil {
		n.parent.Remove(n)
	}
	n.Resource.Release()
}

// Walk visits n and its descendants depth first. Returning false from fn
// skips the node's children.
func Walk(n Node, fn func(Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children() {
		Walk(c, fn)
	}
}
