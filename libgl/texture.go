package libgl

import (
	"encoding/binary"
	"log"

	"github.com/go-gl/gl/v4.5-core/gl"
	"github.com/go-gl/mathgl/mgl32"
)

type texture struct {
	glId           uint32
	target         uint32
	internalFormat uint32
	width          int
	height         int
	levels         int
}

type UnboundTexture interface {
	LabeledGlObject
	Id() uint32
	Bind(unit int) BoundTexture
	// Allocate creates immutable storage. A 2D target is assumed.
	Allocate(levels int, internalFormat uint32, width, height int)
	Load(level int, width, height int, format uint32, data any)
	// Clear fills every texel of a level with zero.
	Clear(level int)
	// Read copies a whole level into data, which must be large enough.
	Read(level int, format uint32, data any)
	Width() int
	Height() int
	Delete()
}

type BoundTexture interface {
	UnboundTexture
}

func NewTexture(target uint32) UnboundTexture {
	var id uint32
	gl.CreateTextures(target, 1, &id)
	if GlEnv.UseIntelTextureBindingFix {
		GlEnv.IntelTextureBindingTargets[id] = target
	}
	return &texture{
		glId:   id,
		target: target,
	}
}

func (tex *texture) Id() uint32 {
	return tex.glId
}

func (tex *texture) SetDebugLabel(label string) {
	setObjectLabel(gl.TEXTURE, tex.glId, label)
}

func (tex *texture) Bind(unit int) BoundTexture {
	GlState.BindTextureUnit(unit, tex.glId)
	return BoundTexture(tex)
}

func (tex *texture) Width() int {
	return tex.width
}

func (tex *texture) Height() int {
	return tex.height
}

func (tex *texture) Allocate(levels int, internalFormat uint32, width, height int) {
	if tex.levels != 0 {
		log.Panicf("texture %d is immutable", tex.glId)
	}
	if levels <= 0 {
		levels = 1
	}
	tex.width = width
	tex.height = height
	tex.levels = levels
	tex.internalFormat = internalFormat
	gl.TextureStorage2D(tex.glId, int32(levels), internalFormat, int32(width), int32(height))
}

func (tex *texture) Load(level int, width, height int, format uint32, data any) {
	dataType, _ := getGlType(data)
	gl.TextureSubImage2D(tex.glId, int32(level), 0, 0, int32(width), int32(height), format, dataType, Pointer(data))
}

func (tex *texture) Clear(level int) {
	// a nil pointer clears to zero
	gl.ClearTexImage(tex.glId, int32(level), gl.RGBA, gl.FLOAT, nil)
}

func (tex *texture) Read(level int, format uint32, data any) {
	dataType, _ := getGlType(data)
	size := binary.Size(data)
	if size == -1 {
		log.Panicf("%T does not have a fixed size", data)
	}
	gl.GetTextureImage(tex.glId, int32(level), format, dataType, int32(size), Pointer(data))
}

func (tex *texture) Delete() {
	if GlEnv.UseIntelTextureBindingFix {
		delete(GlEnv.IntelTextureBindingTargets, tex.glId)
	}
	gl.DeleteTextures(1, &tex.glId)
	tex.glId = 0
}

func getGlType(data any) (glType uint32, float bool) {
	switch data.(type) {
	case byte, []byte, *byte:
		return gl.UNSIGNED_BYTE, false
	case int8, []int8, *int8:
		return gl.BYTE, false
	case int16, []int16, *int16:
		return gl.SHORT, false
	case uint16, []uint16, *uint16:
		return gl.UNSIGNED_SHORT, false
	case int32, []int32, *int32:
		return gl.INT, false
	case uint32, []uint32, *uint32:
		return gl.UNSIGNED_INT, false
	case float32, []float32, *float32, mgl32.Vec2, []mgl32.Vec2, mgl32.Vec3, []mgl32.Vec3, mgl32.Vec4, []mgl32.Vec4:
		return gl.FLOAT, true
	}
	log.Panicf("invalid type: %T", data)
	return 0, false
}
