package main

import (
	_ "embed"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"runtime"
	"time"

	"hdr-bloom/bloom"
	"hdr-bloom/effects"
	"hdr-bloom/libgl"
	"hdr-bloom/libio"
	"hdr-bloom/libutil"

	"github.com/go-gl/gl/v4.5-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	im "github.com/inkyblackness/imgui-go/v4"
)

//go:embed shaders/imgui.vert
var imguiVertSrc string

//go:embed shaders/imgui.frag
var imguiFragSrc string

var Arguments struct {
	Width                      int
	Height                     int
	Intensity                  float64
	Exposure                   float64
	HighContrast               bool
	Curve                      bloom.Curve
	VSync                      bool
	Verbose                    bool
	EnableCompatibilityProfile bool
}

func main() {
	Arguments.Width = 1600
	Arguments.Height = 900
	Arguments.Intensity = 0.15
	Arguments.Exposure = 1.0
	Arguments.VSync = true

	flag.IntVar(&Arguments.Width, "width", Arguments.Width, "initial window width")
	flag.IntVar(&Arguments.Height, "height", Arguments.Height, "initial window height")
	flag.Float64Var(&Arguments.Intensity, "intensity", Arguments.Intensity, "bloom intensity in [0, 1]")
	flag.Float64Var(&Arguments.Exposure, "exposure", Arguments.Exposure, "exposure multiplier")
	flag.BoolVar(&Arguments.HighContrast, "high-contrast", Arguments.HighContrast, "use the ACES tone curve")
	flag.Func("curve", "tone curve when high contrast is off: reinhard or exp", func(s string) (err error) {
		Arguments.Curve, err = bloom.ParseCurve(s)
		return
	})
	flag.BoolVar(&Arguments.VSync, "vsync", Arguments.VSync, "")
	flag.BoolVar(&Arguments.Verbose, "verbose", Arguments.Verbose, "log debug messages")
	flag.BoolVar(&Arguments.EnableCompatibilityProfile, "enable-compatibility-profile", Arguments.EnableCompatibilityProfile, "")
	flag.Parse()

	level := slog.LevelInfo
	if Arguments.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	bloom.SetLogger(logger)

	runtime.LockOSThread()
	err := glfw.Init()
	check(err)
	defer glfw.Terminate()

	glfw.DefaultWindowHints()
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 5)
	glfw.WindowHint(glfw.OpenGLDebugContext, glfw.True)
	if Arguments.EnableCompatibilityProfile {
		glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCompatProfile)
	} else {
		glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	}
	win, err := glfw.CreateWindow(Arguments.Width, Arguments.Height, "HDR Bloom", nil, nil)
	check(err)
	win.MakeContextCurrent()
	if Arguments.VSync {
		glfw.SwapInterval(1)
	} else {
		glfw.SwapInterval(0)
	}

	err = gl.InitWithProcAddrFunc(libutil.GetProcAddress)
	check(err)

	libgl.GlEnv = libgl.GetGlEnv()
	libgl.GlState = libgl.NewGlStateManager()
	libgl.EnableDebugOutput(logger)
	logger.Info("opengl context created", "vendor", libgl.GlEnv.Vendor, "renderer", libgl.GlEnv.Renderer, "version", libgl.GlEnv.Version)

	config := bloom.DefaultConfig()
	config.Intensity = float32(Arguments.Intensity)
	config.Exposure = float32(Arguments.Exposure)
	config.HighContrast = Arguments.HighContrast
	config.Curve = Arguments.Curve

	fbWidth, fbHeight := win.GetFramebufferSize()
	effect, err := effects.NewBloomEffect(fbWidth, fbHeight, config)
	check(err)
	defer effect.Release()

	win.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		if err := effect.Resize(width, height); err != nil {
			logger.Warn("could not resize bloom targets", "width", width, "height", height, "error", err)
		}
	})

	scene, err := NewEmissiveScene()
	check(err)
	defer scene.Delete()

	imguiShader, err := newPipeline(imguiVertSrc, imguiFragSrc)
	check(err)
	gui := NewImGui(win, imguiShader)
	defer gui.Delete()

	input := NewInput(win)
	showUi := true

	for !win.ShouldClose() {
		glfw.PollEvents()
		input.Update(win)

		if input.IsKeyTap(glfw.KeyF1) {
			showUi = !showUi
		}
		if input.IsKeyTap(glfw.KeyEscape) && !gui.WantsInput() {
			win.SetShouldClose(true)
		}

		layout := effect.Layout()

		effect.Begin()
		libgl.GlState.ClearColor(0, 0, 0, 1)
		gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
		scene.Draw(layout.Width, layout.Height, input.TimeDelta())
		effect.EndWith(effect.Config.Params())

		if input.IsKeyTap(glfw.KeyF2) {
			name := fmt.Sprintf("bloom-%s.png", time.Now().Format("20060102-150405"))
			if err := saveScreenshot(name, layout.Width, layout.Height); err != nil {
				logger.Warn("could not save screenshot", "error", err)
			} else {
				logger.Info("screenshot saved", "file", name)
			}
		}

		if showUi {
			im.NewFrame()
			drawControls(effect, scene)
			gui.Draw(win)
		}

		win.SwapBuffers()
	}

	libutil.ReleaseQuad()
}

func drawControls(effect *effects.BloomEffect, scene *EmissiveScene) {
	config := &effect.Config

	im.Begin("Bloom")
	im.SliderFloat("Intensity", &config.Intensity, 0, 1)
	im.SliderFloat("Exposure", &config.Exposure, 0, 8)
	im.Checkbox("High Contrast", &config.HighContrast)
	if im.BeginCombo("Curve", config.Curve.String()) {
		for _, c := range []bloom.Curve{bloom.CurveReinhard, bloom.CurveExponential} {
			if im.SelectableV(c.String(), c == config.Curve, 0, im.Vec2{}) {
				config.Curve = c
			}
		}
		im.EndCombo()
	}

	layout := effect.Layout()
	im.Text(fmt.Sprintf("%dx%d, %d levels, kernel for height %d", layout.Width, layout.Height, layout.Count, layout.KernelHeight))
	im.Text(fmt.Sprintf("frame %d", effect.Frames()))

	im.PushID("lights")
	if im.CollapsingHeader("Lights") {
		im.Checkbox("Animate", &scene.Animate)
		for i := range scene.LightColors {
			if im.TreeNodef("Light %d", i+1) {
				im.SliderFloat3("Pos", (*[3]float32)(&scene.LightPositions[i]), -1, 1)
				im.ColorEdit3V("Col", (*[3]float32)(&scene.LightColors[i]), im.ColorEditFlagsFloat|im.ColorEditFlagsHSV|im.ColorEditFlagsHDR)
				im.TreePop()
			}
		}
	}
	im.PopID()

	im.End()
}

// saveScreenshot reads the composited frame back from the default framebuffer.
func saveScreenshot(name string, width, height int) error {
	if width == 0 || height == 0 {
		return fmt.Errorf("the window has no area")
	}

	img := libio.MakeFloatImage(3, width, height)
	libgl.GlState.BindReadFramebuffer(0)
	gl.PixelStorei(gl.PACK_ALIGNMENT, 4)
	gl.ReadPixels(0, 0, int32(width), int32(height), gl.RGB, gl.FLOAT, libgl.Pointer(img.Pix))

	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer f.Close()
	return libio.EncodeLdr(f, img, libio.LdrFormatPNG)
}

func newPipeline(vertSrc, fragSrc string) (libgl.UnboundShaderPipeline, error) {
	vert := libgl.NewShader(vertSrc, gl.VERTEX_SHADER)
	if err := vert.Compile(); err != nil {
		return nil, err
	}
	frag := libgl.NewShader(fragSrc, gl.FRAGMENT_SHADER)
	if err := frag.Compile(); err != nil {
		vert.Delete()
		return nil, err
	}
	pipeline := libgl.NewPipeline()
	pipeline.Attach(vert, gl.VERTEX_SHADER_BIT)
	pipeline.Attach(frag, gl.FRAGMENT_SHADER_BIT)
	return pipeline, nil
}

func check(err error) {
	if err != nil {
		log.Panic(err)
	}
}
