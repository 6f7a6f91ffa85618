package main

import (
	_ "embed"
	"fmt"

	"hdr-bloom/bloom"
	"hdr-bloom/libgl"
	"hdr-bloom/libutil"

	"github.com/go-gl/gl/v4.5-core/gl"
	"github.com/go-gl/mathgl/mgl32"
)

//go:embed shaders/scene.vert
var sceneVertSrc string

//go:embed shaders/scene.frag
var sceneFragSrc string

const LightCount = 6

// EmissiveScene draws a handful of glowing discs over a dim gradient.
// Colors are well above 1 so the bloom has something to spread.
type EmissiveScene struct {
	LightPositions []mgl32.Vec3
	LightColors    []mgl32.Vec3
	Ambient        mgl32.Vec3
	Animate        bool

	time     float32
	pipeline libgl.UnboundShaderPipeline
	vert     libgl.ShaderProgram
	frag     libgl.ShaderProgram
}

func NewEmissiveScene() (*EmissiveScene, error) {
	vert := libgl.NewShader(sceneVertSrc, gl.VERTEX_SHADER)
	if err := vert.Compile(); err != nil {
		return nil, err
	}
	frag := libgl.NewShader(sceneFragSrc, gl.FRAGMENT_SHADER)
	err := frag.CompileWith(map[string]string{
		"LIGHT_COUNT": fmt.Sprint(LightCount),
		"BORDER":      fmt.Sprintf("%d.0", bloom.Border),
	})
	if err != nil {
		vert.Delete()
		return nil, err
	}

	pipeline := libgl.NewPipeline()
	pipeline.Attach(vert, gl.VERTEX_SHADER_BIT)
	pipeline.Attach(frag, gl.FRAGMENT_SHADER_BIT)

	return &EmissiveScene{
		LightPositions: []mgl32.Vec3{
			{-0.6, 0.2, 0.06},
			{-0.25, -0.2, 0.03},
			{0.05, 0.25, 0.1},
			{0.4, -0.1, 0.02},
			{0.65, 0.3, 0.05},
			{0.2, -0.35, 0.008},
		},
		LightColors: []mgl32.Vec3{
			{40, 12, 4},
			{4, 30, 8},
			{6, 8, 25},
			{200, 180, 150},
			{20, 4, 30},
			{500, 500, 500},
		},
		Ambient:  mgl32.Vec3{0.02, 0.025, 0.04},
		Animate:  true,
		pipeline: pipeline,
		vert:     vert,
		frag:     frag,
	}, nil
}

// Draw renders into the bound framebuffer. width and height are the size of the frame interior.
func (scene *EmissiveScene) Draw(width, height int, timeDelta float32) {
	defer libgl.PushDebugGroup("Draw Scene")()

	if scene.Animate {
		scene.time += timeDelta
	}

	scene.pipeline.Bind()
	scene.frag.SetUniform("u_viewport", mgl32.Vec2{float32(width), float32(height)})
	scene.frag.SetUniform("u_time", scene.time)
	scene.frag.SetUniform("u_light_positions", scene.LightPositions)
	scene.frag.SetUniform("u_light_colors", scene.LightColors)
	scene.frag.SetUniform("u_ambient", scene.Ambient)

	libgl.GlState.SetEnabled(libgl.ScissorTest)
	libutil.DrawQuad()
}

func (scene *EmissiveScene) Delete() {
	scene.pipeline.Delete()
	scene.vert.Delete()
	scene.frag.Delete()
}
