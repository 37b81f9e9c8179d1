package gal

import (
	"fmt"

	"github.com/spaghettifunk/lumen/engine/core"
)

// Barrier orders the operations before it against those after it for one
// texture region or buffer. Exactly one of Texture or Buffer is set.
type Barrier struct {
	Texture Texture
	Buffer  Buffer
	Kind    ResourceKind
	Range   SubresourceRange

	OldLayout Layout
	NewLayout Layout
	SrcAccess AccessFlags
	DstAccess AccessFlags
	SrcStage  PipelineStage
	DstStage  PipelineStage
}

type transitionKey struct {
	old, new Layout
}

type transitionMasks struct {
	srcAccess AccessFlags
	dstAccess AccessFlags
	srcStage  PipelineStage
	dstStage  PipelineStage
}

// transitions is the complete set of legal layout changes.
var transitions = map[transitionKey]transitionMasks{
	{LayoutUndefined, LayoutCopyDst}: {
		AccessNone, AccessTransferWrite,
		StageTopOfPipe, StageTransfer,
	},
	{LayoutUndefined, LayoutColorAttachment}: {
		AccessNone, AccessColorAttachmentRead | AccessColorAttachmentWrite,
		StageTopOfPipe, StageColorAttachmentOutput,
	},
	{LayoutUndefined, LayoutDepthStencilAttachment}: {
		AccessNone, AccessDepthStencilAttachmentRead | AccessDepthStencilAttachmentWrite,
		StageTopOfPipe, StageEarlyFragmentTests,
	},
	{LayoutCopyDst, LayoutCopySrc}: {
		AccessTransferWrite, AccessTransferRead,
		StageTransfer, StageTransfer,
	},
	{LayoutCopyDst, LayoutShaderReadOnly}: {
		AccessTransferWrite, AccessShaderRead,
		StageTransfer, StageFragmentShader,
	},
	{LayoutCopySrc, LayoutShaderReadOnly}: {
		AccessTransferRead, AccessShaderRead,
		StageTransfer, StageFragmentShader,
	},
	{LayoutColorAttachment, LayoutShaderReadOnly}: {
		AccessColorAttachmentWrite, AccessShaderRead,
		StageColorAttachmentOutput, StageFragmentShader,
	},
	{LayoutColorAttachment, LayoutDepthReadOnly}: {
		AccessColorAttachmentWrite, AccessShaderRead,
		StageColorAttachmentOutput, StageFragmentShader,
	},
	{LayoutColorAttachment, LayoutCopySrc}: {
		AccessColorAttachmentWrite, AccessTransferRead,
		StageColorAttachmentOutput, StageTransfer,
	},
	{LayoutColorAttachment, LayoutPresent}: {
		AccessColorAttachmentWrite, AccessMemoryRead,
		StageColorAttachmentOutput, StageBottomOfPipe,
	},
	{LayoutDepthStencilAttachment, LayoutDepthReadOnly}: {
		AccessDepthStencilAttachmentWrite, AccessShaderRead,
		StageLateFragmentTests, StageFragmentShader,
	},
	{LayoutDepthStencilAttachment, LayoutShaderReadOnly}: {
		AccessDepthStencilAttachmentWrite, AccessShaderRead,
		StageLateFragmentTests, StageFragmentShader,
	},
	{LayoutShaderReadOnly, LayoutCopyDst}: {
		AccessShaderRead, AccessTransferWrite,
		StageFragmentShader, StageTransfer,
	},
	{LayoutShaderReadOnly, LayoutColorAttachment}: {
		AccessShaderRead, AccessColorAttachmentRead | AccessColorAttachmentWrite,
		StageFragmentShader, StageColorAttachmentOutput,
	},
	{LayoutDepthReadOnly, LayoutDepthStencilAttachment}: {
		AccessShaderRead, AccessDepthStencilAttachmentRead | AccessDepthStencilAttachmentWrite,
		StageFragmentShader, StageEarlyFragmentTests,
	},
}

// IsLegalTransition reports whether (old, new) is in the transition table.
func IsLegalTransition(old, new Layout) bool {
	_, ok := transitions[transitionKey{old, new}]
	return ok
}

// Transition computes the access masks and stages separating the last use of
// a region in layout old from its next use in layout new. It keeps no
// history: the caller supplies the current layout.
func Transition(old, new Layout, kind ResourceKind, rng SubresourceRange) (Barrier, error) {
	masks, ok := transitions[transitionKey{old, new}]
	if !ok {
		return Barrier{}, fmt.Errorf("%w: %s -> %s (%s, %s)", core.ErrInvalidTransition, old, new, kind, rng)
	}
	if err := checkKind(old, kind); err != nil {
		return Barrier{}, fmt.Errorf("%w: %s -> %s: %v", core.ErrInvalidTransition, old, new, err)
	}
	if err := checkKind(new, kind); err != nil {
		return Barrier{}, fmt.Errorf("%w: %s -> %s: %v", core.ErrInvalidTransition, old, new, err)
	}
	return Barrier{
		Kind:      kind,
		Range:     rng,
		OldLayout: old,
		NewLayout: new,
		SrcAccess: masks.srcAccess,
		DstAccess: masks.dstAccess,
		SrcStage:  masks.srcStage,
		DstStage:  masks.dstStage,
	}, nil
}

func checkKind(l Layout, kind ResourceKind) error {
	switch kind {
	case ResourceKindColor:
		if l == LayoutDepthStencilAttachment {
			return fmt.Errorf("layout %s is not valid for a color texture", l)
		}
	case ResourceKindDepth:
		if l == LayoutColorAttachment || l == LayoutPresent {
			return fmt.Errorf("layout %s is not valid for a depth texture", l)
		}
	case ResourceKindBuffer:
		switch l {
		case LayoutUndefined, LayoutCopySrc, LayoutCopyDst, LayoutShaderReadOnly:
		default:
			return fmt.Errorf("layout %s is not valid for a buffer", l)
		}
	}
	return nil
}

// MustTransition is Transition for callers that own the resource state: an
// unknown pair means that state was lost and the frame cannot continue.
func MustTransition(old, new Layout, kind ResourceKind, rng SubresourceRange) Barrier {
	b, err := Transition(old, new, kind, rng)
	if err != nil {
		core.Fatal(err)
	}
	return b
}

// TextureBarrier builds the barrier moving rng of texture from old to new.
func TextureBarrier(texture Texture, old, new Layout, rng SubresourceRange) Barrier {
	kind := ResourceKindColor
	if IsDepthFormat(texture.Format()) {
		kind = ResourceKindDepth
	}
	b := MustTransition(old, new, kind, rng.Resolve(texture.MipCount(), 1))
	b.Texture = texture
	return b
}

// BufferBarrier builds the barrier between two uses of a buffer.
func BufferBarrier(buffer Buffer, old, new Layout) Barrier {
	b := MustTransition(old, new, ResourceKindBuffer, SubresourceRange{})
	b.Buffer = buffer
	return b
}
