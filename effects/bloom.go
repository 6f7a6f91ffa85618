package effects

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	"hdr-bloom/bloom"
	"hdr-bloom/libgl"
	"hdr-bloom/libutil"

	"github.com/go-gl/gl/v4.5-core/gl"
	"github.com/go-gl/mathgl/mgl32"
)

//go:embed shaders/quad.vert
var quadVertSrc string

//go:embed shaders/down.frag
var downFragSrc string

//go:embed shaders/filter.frag
var filterFragSrc string

//go:embed shaders/up.frag
var upFragSrc string

//go:embed shaders/composite.frag
var compositeFragSrc string

const (
	TargetFormat = gl.RGBA16F
	DepthFormat  = gl.DEPTH_COMPONENT24
)

// BloomEffect renders the bloom pyramid with OpenGL.
// All methods must be called on the thread that owns the context.
type BloomEffect struct {
	bloom.FrameState
	Config bloom.Config
	// Target receives the composited frame. Nil is the default framebuffer.
	Target libgl.UnboundFramebuffer

	layout      bloom.Layout
	raw         [bloom.MaxLevels]libgl.UnboundTexture
	rawFbo      [bloom.MaxLevels]libgl.UnboundFramebuffer
	filtered    [bloom.MaxLevels]libgl.UnboundTexture
	filteredFbo [bloom.MaxLevels]libgl.UnboundFramebuffer
	depth       libgl.UnboundRenderbuffer

	nearestSampler libgl.UnboundSampler
	linearSampler  libgl.UnboundSampler

	downShader      libgl.UnboundShaderPipeline
	filterShader    libgl.UnboundShaderPipeline
	upShader        libgl.UnboundShaderPipeline
	compositeShader libgl.UnboundShaderPipeline
	programs        []libgl.ShaderProgram
}

// NewBloomEffect compiles the pass programs and allocates the pyramid for width by height.
func NewBloomEffect(width, height int, config bloom.Config) (effect *BloomEffect, err error) {
	cleanup := []libutil.Deleter{}
	defer func() {
		if err != nil {
			libutil.DeleteAll(cleanup)
		}
	}()

	defs := map[string]string{
		"TAP_COUNT":     strconv.Itoa(bloom.TapCount),
		"MAX_HALF":      formatFloat(bloom.MaxHalfFloat),
		"MAX_COMPOSITE": formatFloat(bloom.MaxComposite),
		"GAMMA":         formatFloat(bloom.Gamma),
	}

	vsh := libgl.NewShader(quadVertSrc, gl.VERTEX_SHADER)
	cleanup = append(cleanup, vsh)
	if err := vsh.Compile(); err != nil {
		return nil, fmt.Errorf("could not compile bloom vertex shader: %w", err)
	}

	effect = &BloomEffect{
		Config:   config,
		programs: []libgl.ShaderProgram{vsh},
	}

	pipelines := []struct {
		dst *libgl.UnboundShaderPipeline
		src string
	}{
		{&effect.downShader, downFragSrc},
		{&effect.filterShader, filterFragSrc},
		{&effect.upShader, upFragSrc},
		{&effect.compositeShader, compositeFragSrc},
	}
	for _, p := range pipelines {
		fsh := libgl.NewShader(p.src, gl.FRAGMENT_SHADER)
		cleanup = append(cleanup, fsh)
		if err := fsh.CompileWith(pickDefs(defs, p.src)); err != nil {
			return nil, fmt.Errorf("could not compile bloom fragment shader: %w", err)
		}
		effect.programs = append(effect.programs, fsh)

		pipeline := libgl.NewPipeline()
		cleanup = append(cleanup, pipeline)
		pipeline.Attach(vsh, gl.VERTEX_SHADER_BIT)
		pipeline.Attach(fsh, gl.FRAGMENT_SHADER_BIT)
		*p.dst = pipeline
	}

	effect.nearestSampler = libgl.NewSampler()
	effect.nearestSampler.FilterMode(gl.NEAREST, gl.NEAREST)
	effect.nearestSampler.WrapMode(gl.CLAMP_TO_EDGE, gl.CLAMP_TO_EDGE, 0)
	effect.nearestSampler.SetDebugLabel("bloom nearest")
	cleanup = append(cleanup, effect.nearestSampler)

	effect.linearSampler = libgl.NewSampler()
	effect.linearSampler.FilterMode(gl.LINEAR, gl.LINEAR)
	effect.linearSampler.WrapMode(gl.CLAMP_TO_EDGE, gl.CLAMP_TO_EDGE, 0)
	effect.linearSampler.SetDebugLabel("bloom linear")
	cleanup = append(cleanup, effect.linearSampler)

	if err := effect.Resize(width, height); err != nil {
		return nil, err
	}

	bloom.Logger().Info("gl bloom effect created", "renderer", libgl.GlEnv.Renderer, "layout", &effect.layout)
	return effect, nil
}

// pickDefs keeps the definitions a source declares. Unknown ones would be injected after #version.
func pickDefs(defs map[string]string, src string) map[string]string {
	picked := map[string]string{}
	for k, v := range defs {
		if strings.Contains(src, "#define "+k+" ") {
			picked[k] = v
		}
	}
	return picked
}

// formatFloat always includes a decimal point so GLSL reads a float literal.
func formatFloat(v float32) string {
	s := strconv.FormatFloat(float64(v), 'f', -1, 32)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func (effect *BloomEffect) Layout() bloom.Layout {
	return effect.layout
}

// Resize reallocates every render target. The old targets are released first.
// Contents are cleared, borders stay zero for the lifetime of a target.
func (effect *BloomEffect) Resize(width, height int) (err error) {
	effect.CheckResize()

	layout, err := bloom.NewLayoutWith(width, height, effect.Config.KernelTable())
	if err != nil {
		return fmt.Errorf("could not compute bloom layout: %w", err)
	}
	if base := layout.Mips[0]; base.Width > 0 {
		maxW, maxH := libgl.GlEnv.MaxTargetSize()
		if base.RawWidth() > maxW || base.RawHeight() > maxH {
			return fmt.Errorf("bloom target of %dx%d exceeds the maximum of %dx%d", base.RawWidth(), base.RawHeight(), maxW, maxH)
		}
	}

	effect.releaseTargets()
	defer func() {
		if err != nil {
			effect.releaseTargets()
			effect.layout = bloom.Layout{}
		}
	}()
	effect.layout = layout

	base := layout.Mips[0]
	if base.Width == 0 {
		return nil
	}

	effect.raw[0], effect.rawFbo[0], err = newTarget(base.RawWidth(), base.RawHeight(), "bloom raw 0")
	if err != nil {
		return err
	}
	effect.depth = libgl.NewRenderbuffer()
	effect.depth.Allocate(DepthFormat, base.RawWidth(), base.RawHeight())
	effect.depth.SetDebugLabel("bloom depth")
	effect.rawFbo[0].AttachRenderbuffer(gl.DEPTH_ATTACHMENT, effect.depth)
	if err := effect.rawFbo[0].Check(gl.DRAW_FRAMEBUFFER); err != nil {
		return fmt.Errorf("bloom raw level 0 incomplete: %w", err)
	}

	for i := 1; i < layout.Count; i++ {
		mip := layout.Mips[i]
		effect.raw[i], effect.rawFbo[i], err = newTarget(mip.RawWidth(), mip.RawHeight(), fmt.Sprintf("bloom raw %d", i))
		if err != nil {
			return err
		}
		effect.filtered[i], effect.filteredFbo[i], err = newTarget(mip.Width, mip.Height, fmt.Sprintf("bloom filtered %d", i))
		if err != nil {
			return err
		}
	}

	bloom.Logger().Debug("bloom pyramid resized", "layout", &effect.layout)
	return nil
}

func newTarget(width, height int, label string) (libgl.UnboundTexture, libgl.UnboundFramebuffer, error) {
	tex := libgl.NewTexture(gl.TEXTURE_2D)
	tex.Allocate(1, TargetFormat, width, height)
	tex.Clear(0)
	tex.SetDebugLabel(label)

	fbo := libgl.NewFramebuffer()
	fbo.AttachTexture(0, tex)
	fbo.BindTargets(0)
	fbo.SetDebugLabel(label)
	if err := fbo.Check(gl.DRAW_FRAMEBUFFER); err != nil {
		fbo.Delete()
		tex.Delete()
		return nil, nil, fmt.Errorf("%s incomplete: %w", label, err)
	}
	return tex, fbo, nil
}

func (effect *BloomEffect) releaseTargets() {
	for i := range effect.raw {
		if effect.rawFbo[i] != nil {
			effect.rawFbo[i].Delete()
		}
		if effect.raw[i] != nil {
			effect.raw[i].Delete()
		}
		if effect.filteredFbo[i] != nil {
			effect.filteredFbo[i].Delete()
		}
		if effect.filtered[i] != nil {
			effect.filtered[i].Delete()
		}
	}
	if effect.depth != nil {
		effect.depth.Delete()
	}
	effect.raw = [bloom.MaxLevels]libgl.UnboundTexture{}
	effect.rawFbo = [bloom.MaxLevels]libgl.UnboundFramebuffer{}
	effect.filtered = [bloom.MaxLevels]libgl.UnboundTexture{}
	effect.filteredFbo = [bloom.MaxLevels]libgl.UnboundFramebuffer{}
	effect.depth = nil
}

// Begin binds the base level for scene rendering.
// The viewport and scissor cover the interior, so clears leave the border untouched.
func (effect *BloomEffect) Begin() {
	effect.BeginFrame()
	if effect.rawFbo[0] == nil {
		libgl.GlState.BindDrawFramebuffer(0)
		return
	}

	mip := effect.layout.Mips[0]
	effect.rawFbo[0].Bind(gl.DRAW_FRAMEBUFFER)
	libgl.GlState.Viewport(bloom.Border, bloom.Border, mip.Width, mip.Height)
	libgl.GlState.Scissor(bloom.Border, bloom.Border, mip.Width, mip.Height)
	libgl.GlState.Enable(libgl.ScissorTest)
}

// End runs the passes and composites into Target. The tone curve is taken from Config.
func (effect *BloomEffect) End(intensity, exposure float32, highContrast bool) {
	effect.EndWith(bloom.CompositeParams{
		Intensity:    intensity,
		Exposure:     exposure,
		HighContrast: highContrast,
		Curve:        effect.Config.Curve,
	})
}

func (effect *BloomEffect) EndWith(params bloom.CompositeParams) {
	effect.EndFrame()
	libgl.GlState.SetEnabled()
	libgl.GlState.DepthMask(false)

	if effect.rawFbo[0] != nil {
		defer libgl.PushDebugGroup("Draw Bloom")()

		n := effect.layout.Count
		for level := 1; level < n; level++ {
			effect.downsample(level)
		}
		for level := 1; level < n; level++ {
			effect.filter(level)
		}
		if n > 2 {
			libgl.GlState.Enable(libgl.Blend)
			libgl.GlState.BlendEquation(libgl.BlendFuncAdd)
			libgl.GlState.BlendFunc(libgl.BlendOne, libgl.BlendOne)
			for level := n - 2; level >= 1; level-- {
				effect.upsample(level)
			}
			libgl.GlState.Disable(libgl.Blend)
		}
		effect.composite(params)
	}

	effect.bindTarget()
	libgl.GlState.Viewport(0, 0, effect.layout.Width, effect.layout.Height)
	libgl.GlState.DepthMask(true)
}

func (effect *BloomEffect) bindTarget() {
	if effect.Target != nil {
		effect.Target.Bind(gl.DRAW_FRAMEBUFFER)
	} else {
		libgl.GlState.BindDrawFramebuffer(0)
	}
}

func (effect *BloomEffect) downsample(level int) {
	defer libgl.PushDebugGroup(fmt.Sprintf("Downsample %d", level))()

	mip := effect.layout.Mips[level]
	src := effect.raw[level-1]

	effect.downShader.Bind()
	effect.downShader.Get(gl.FRAGMENT_SHADER).SetUniform("u_source_texel", mgl32.Vec2{1 / float32(src.Width()), 1 / float32(src.Height())})
	src.Bind(0)
	effect.nearestSampler.Bind(0)

	effect.rawFbo[level].Bind(gl.DRAW_FRAMEBUFFER)
	libgl.GlState.Viewport(bloom.Border, bloom.Border, mip.Width, mip.Height)
	libutil.DrawQuad()
}

func (effect *BloomEffect) filter(level int) {
	defer libgl.PushDebugGroup(fmt.Sprintf("Filter %d", level))()

	mip := effect.layout.Mips[level]
	src := effect.raw[level]
	fsh := effect.filterShader.Get(gl.FRAGMENT_SHADER)

	effect.filterShader.Bind()
	fsh.SetUniform("u_source_size", mgl32.Vec2{float32(src.Width()), float32(src.Height())})
	fsh.SetUniform("u_taps", effect.layout.Filters[level][:])
	src.Bind(0)
	effect.nearestSampler.Bind(0)

	effect.filteredFbo[level].Bind(gl.DRAW_FRAMEBUFFER)
	libgl.GlState.Viewport(0, 0, mip.Width, mip.Height)
	libutil.DrawQuad()
}

func (effect *BloomEffect) upsample(level int) {
	defer libgl.PushDebugGroup(fmt.Sprintf("Upsample %d", level))()

	mip := effect.layout.Mips[level]
	src := effect.filtered[level+1]

	effect.upShader.Bind()
	effect.upShader.Get(gl.FRAGMENT_SHADER).SetUniform("u_source_size", mgl32.Vec2{float32(src.Width()), float32(src.Height())})
	src.Bind(0)
	effect.nearestSampler.Bind(0)

	effect.filteredFbo[level].Bind(gl.DRAW_FRAMEBUFFER)
	libgl.GlState.Viewport(0, 0, mip.Width, mip.Height)
	libutil.DrawQuad()
}

func (effect *BloomEffect) composite(params bloom.CompositeParams) {
	defer libgl.PushDebugGroup("Composite")()

	n := effect.layout.Count
	base := effect.raw[0]
	fsh := effect.compositeShader.Get(gl.FRAGMENT_SHADER)

	if n == 0 {
		// without a pyramid the base is tone mapped as is
		params.Intensity = 0
	}

	effect.compositeShader.Bind()
	fsh.SetUniform("u_base_size", mgl32.Vec2{float32(base.Width()), float32(base.Height())})
	fsh.SetUniform("u_taps", effect.layout.Filters[0][:])
	fsh.SetUniform("u_has_bloom", n > 0)
	fsh.SetUniform("u_has_pyramid", n > 1)
	fsh.SetUniform("u_intensity", params.Intensity)
	fsh.SetUniform("u_exposure", params.Exposure)
	fsh.SetUniform("u_high_contrast", params.HighContrast)
	fsh.SetUniform("u_curve", int(params.Curve))
	base.Bind(0)
	effect.nearestSampler.Bind(0)

	if n > 1 {
		pyramid := effect.filtered[1]
		fsh.SetUniform("u_pyramid_size", mgl32.Vec2{float32(pyramid.Width()), float32(pyramid.Height())})
		pyramid.Bind(1)
		effect.linearSampler.Bind(1)
	}

	effect.bindTarget()
	libgl.GlState.Viewport(0, 0, effect.layout.Width, effect.layout.Height)
	libutil.DrawQuad()
}

// Release deletes all GL objects. Calling it again does nothing.
func (effect *BloomEffect) Release() {
	if !effect.MarkReleased() {
		return
	}
	effect.releaseTargets()
	for _, p := range []libgl.UnboundShaderPipeline{effect.downShader, effect.filterShader, effect.upShader, effect.compositeShader} {
		p.Delete()
	}
	for _, p := range effect.programs {
		p.Delete()
	}
	effect.nearestSampler.Delete()
	effect.linearSampler.Delete()
}
