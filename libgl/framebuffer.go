package libgl

import (
	"fmt"

	"github.com/go-gl/gl/v4.5-core/gl"
)

// Attachment indices below MaxColorAttachments select GL_COLOR_ATTACHMENTi,
// anything else is used as a GL attachment point such as GL_DEPTH_ATTACHMENT.
const MaxColorAttachments = 8

type framebuffer struct {
	glId uint32
}

type UnboundFramebuffer interface {
	LabeledGlObject
	Id() uint32
	// target must be GL_DRAW_FRAMEBUFFER, GL_READ_FRAMEBUFFER or GL_FRAMEBUFFER
	Bind(target uint32) BoundFramebuffer
	// target must be GL_DRAW_FRAMEBUFFER, GL_READ_FRAMEBUFFER or GL_FRAMEBUFFER
	Check(target uint32) error
	AttachTexture(index int, texture UnboundTexture)
	AttachRenderbuffer(index int, renderbuffer UnboundRenderbuffer)
	BindTargets(attachments ...int)
	Delete()
}

type BoundFramebuffer interface {
	UnboundFramebuffer
}

var framebufferStatusText = map[uint32]string{
	gl.FRAMEBUFFER_INCOMPLETE_ATTACHMENT:         "an attachment is incomplete",
	gl.FRAMEBUFFER_INCOMPLETE_MISSING_ATTACHMENT: "no image is attached",
	gl.FRAMEBUFFER_INCOMPLETE_DRAW_BUFFER:        "a draw buffer has no attachment",
	gl.FRAMEBUFFER_INCOMPLETE_READ_BUFFER:        "the read buffer has no attachment",
	gl.FRAMEBUFFER_UNSUPPORTED:                   "the attachment formats are not supported together",
	gl.FRAMEBUFFER_INCOMPLETE_MULTISAMPLE:        "the attachments differ in sample count",
	gl.FRAMEBUFFER_INCOMPLETE_LAYER_TARGETS:      "the attachments differ in layering",
}

func NewFramebuffer() UnboundFramebuffer {
	var id uint32
	gl.CreateFramebuffers(1, &id)
	return &framebuffer{glId: id}
}

func (fb *framebuffer) Id() uint32 {
	return fb.glId
}

func (fb *framebuffer) SetDebugLabel(label string) {
	setObjectLabel(gl.FRAMEBUFFER, fb.glId, label)
}

func (fb *framebuffer) Bind(target uint32) BoundFramebuffer {
	GlState.BindFramebuffer(target, fb.glId)
	return BoundFramebuffer(fb)
}

func (fb *framebuffer) Check(target uint32) error {
	status := gl.CheckNamedFramebufferStatus(fb.glId, target)
	if status == gl.FRAMEBUFFER_COMPLETE {
		return nil
	}
	if text, ok := framebufferStatusText[status]; ok {
		return fmt.Errorf("framebuffer %d is incomplete: %s (0x%X)", fb.glId, text, status)
	}
	return fmt.Errorf("framebuffer %d has unknown status 0x%X", fb.glId, status)
}

func (fb *framebuffer) AttachTexture(index int, texture UnboundTexture) {
	gl.NamedFramebufferTexture(fb.glId, attachmentPoint(index), texture.Id(), 0)
}

func (fb *framebuffer) AttachRenderbuffer(index int, renderbuffer UnboundRenderbuffer) {
	gl.NamedFramebufferRenderbuffer(fb.glId, attachmentPoint(index), gl.RENDERBUFFER, renderbuffer.Id())
}

func (fb *framebuffer) BindTargets(indices ...int) {
	if len(indices) == 0 {
		gl.NamedFramebufferDrawBuffer(fb.glId, gl.NONE)
		return
	}
	attachments := make([]uint32, len(indices))
	for i, v := range indices {
		attachments[i] = attachmentPoint(v)
	}
	gl.NamedFramebufferDrawBuffers(fb.glId, int32(len(attachments)), &attachments[0])
}

func attachmentPoint(index int) uint32 {
	if index < MaxColorAttachments {
		return uint32(gl.COLOR_ATTACHMENT0 + index)
	}
	return uint32(index)
}

// Delete only deletes the framebuffer object, attachments stay alive.
func (fb *framebuffer) Delete() {
	if GlState.DrawFramebuffer == fb.glId {
		GlState.BindDrawFramebuffer(0)
	}
	if GlState.ReadFramebuffer == fb.glId {
		GlState.BindReadFramebuffer(0)
	}
	gl.DeleteFramebuffers(1, &fb.glId)
	fb.glId = 0
}

type renderbuffer struct {
	glId uint32
}

type UnboundRenderbuffer interface {
	LabeledGlObject
	Id() uint32
	Allocate(internalFormat uint32, width, height int)
	Delete()
}

func NewRenderbuffer() UnboundRenderbuffer {
	var id uint32
	gl.CreateRenderbuffers(1, &id)
	return &renderbuffer{glId: id}
}

func (rb *renderbuffer) Id() uint32 {
	return rb.glId
}

func (rb *renderbuffer) SetDebugLabel(label string) {
	setObjectLabel(gl.RENDERBUFFER, rb.glId, label)
}

func (rb *renderbuffer) Allocate(internalFormat uint32, width, height int) {
	gl.NamedRenderbufferStorage(rb.glId, internalFormat, int32(width), int32(height))
}

func (rb *renderbuffer) Delete() {
	gl.DeleteRenderbuffers(1, &rb.glId)
	rb.glId = 0
}
