package libgl

import (
	"strings"

	"github.com/go-gl/gl/v4.5-core/gl"
)

var GlEnv *GlEnvironment

type GlEnvironment struct {
	Vendor                     string
	Renderer                   string
	Version                    string
	UseIntelTextureBindingFix  bool
	IntelTextureBindingTargets map[uint32]uint32
	Features                   GlFeatures
}

type GlFeatures struct {
	MaxTextureSize         int
	MaxRenderbufferSize    int
	MaxFramebufferWidth    int
	MaxFramebufferHeight   int
	MaxCombinedTextureUnit int
}

const (
	VendorIntel   = "intel"
	VendorNvidia  = "nvidia"
	VendorAmd     = "ati"
	VendorUnknown = "unknown"
)

func GetGlEnv() *GlEnvironment {
	vendor := strings.ToLower(gl.GoStr(gl.GetString(gl.VENDOR)))
	if strings.Contains(vendor, "intel") {
		vendor = VendorIntel
	} else if strings.Contains(vendor, "nvidia") {
		vendor = VendorNvidia
	} else if strings.Contains(vendor, "ati ") || strings.Contains(vendor, "amd") {
		vendor = VendorAmd
	} else {
		vendor = VendorUnknown
	}

	features := GlFeatures{
		MaxTextureSize:         getInteger(gl.MAX_TEXTURE_SIZE),
		MaxRenderbufferSize:    getInteger(gl.MAX_RENDERBUFFER_SIZE),
		MaxFramebufferWidth:    getInteger(gl.MAX_FRAMEBUFFER_WIDTH),
		MaxFramebufferHeight:   getInteger(gl.MAX_FRAMEBUFFER_HEIGHT),
		MaxCombinedTextureUnit: getInteger(gl.MAX_COMBINED_TEXTURE_IMAGE_UNITS),
	}

	return &GlEnvironment{
		Vendor:                     vendor,
		Renderer:                   gl.GoStr(gl.GetString(gl.RENDERER)),
		Version:                    gl.GoStr(gl.GetString(gl.VERSION)),
		UseIntelTextureBindingFix:  vendor == VendorIntel,
		IntelTextureBindingTargets: map[uint32]uint32{},
		Features:                   features,
	}
}

// MaxTargetSize is the largest width and height a texture can have and still be rendered to.
func (env *GlEnvironment) MaxTargetSize() (width, height int) {
	width = min(env.Features.MaxTextureSize, env.Features.MaxFramebufferWidth)
	height = min(env.Features.MaxTextureSize, env.Features.MaxFramebufferHeight)
	return
}

func getInteger(name uint32) int {
	var v int32
	gl.GetIntegerv(name, &v)
	return int(v)
}
