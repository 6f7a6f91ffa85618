package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hdr-bloom/bloom"
	"hdr-bloom/libio"
)

func TestImplFlag(t *testing.T) {
	var i impl
	for _, s := range []string{"opencl", "software"} {
		if err := i.Set(s); err != nil {
			t.Errorf("%q should be accepted but was rejected: %v\n", s, err)
		}
		if i.String() != s {
			t.Errorf("impl should be %q but was %q\n", s, i.String())
		}
	}
	if err := i.Set("opengl"); err == nil {
		t.Errorf("%q should be rejected\n", "opengl")
	}
}

func TestCurveFlag(t *testing.T) {
	var c curve
	if c.Curve != bloom.CurveReinhard {
		t.Errorf("default curve should be %v but was %v\n", bloom.CurveReinhard, c.Curve)
	}
	if err := c.Set("exp"); err != nil {
		t.Fatal(err)
	}
	if c.Curve != bloom.CurveExponential {
		t.Errorf("curve should be %v but was %v\n", bloom.CurveExponential, c.Curve)
	}
	if err := c.Set("linear"); err == nil {
		t.Errorf("%q should be rejected\n", "linear")
	}
}

func TestRenderFlags(t *testing.T) {
	cmd := createRenderCommand()
	err := cmd.Flags.Parse([]string{"-impl", "software", "-intensity", "0.5", "-high-contrast", "-curve", "reinhard", "-ext", "tiff", "in.hdr"})
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Flags.NArg() != 1 || cmd.Flags.Arg(0) != "in.hdr" {
		t.Errorf("positional arguments should be [in.hdr] but were %v\n", cmd.Flags.Args())
	}
	for _, name := range []string{"impl", "intensity", "exposure", "high-contrast", "curve", "preview", "workers", "out", "ext"} {
		if cmd.Flags.Lookup(name) == nil {
			t.Errorf("flag %q should be registered\n", name)
		}
	}
	if v := cmd.Flags.Lookup("curve").Value.String(); v != "reinhard" {
		t.Errorf("curve should be reinhard but was %v\n", v)
	}
}

func TestCommandsSorted(t *testing.T) {
	commands = createCommands()
	names := []string{}
	for _, c := range commands {
		names = append(names, c.Name)
	}
	if strings.Join(names, ",") != "kernel,levels,render" {
		t.Errorf("commands should be kernel,levels,render but were %v\n", names)
	}
	if findCommand("RENDER") == nil {
		t.Errorf("command lookup should ignore case\n")
	}
	if findCommand("convert") != nil {
		t.Errorf("unknown command should not be found\n")
	}
}

func TestPrintLevels(t *testing.T) {
	var buf bytes.Buffer
	if err := printLevels(&buf, 1920, 1080); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	summary := strings.SplitN(out, "\n", 2)[0]
	if !strings.Contains(summary, "9 levels") || !strings.Contains(summary, "height 1000") {
		t.Errorf("unexpected summary %q\n", summary)
	}
	// raw sizes of the base and the last level
	for _, cell := range []string{"1922", "1082", "5"} {
		if !strings.Contains(out, cell) {
			t.Errorf("output should contain %q:\n%s\n", cell, out)
		}
	}
}

func TestPrintLevelsDegenerate(t *testing.T) {
	var buf bytes.Buffer
	if err := printLevels(&buf, 64, 2); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "64x2: 0 levels") {
		t.Errorf("unexpected output:\n%s\n", buf.String())
	}
}

func TestPrintKernel(t *testing.T) {
	var buf bytes.Buffer
	if err := printKernel(&buf, 700, false); err != nil {
		t.Fatal(err)
	}
	// 700 is equally far from 600 and 800, the first entry wins
	if !strings.HasPrefix(buf.String(), "frame height 700 uses the kernel for height 600") {
		t.Errorf("unexpected kernel selection:\n%s\n", buf.String())
	}
	if n := strings.Count(buf.String(), "taps\n"); n != 1 {
		t.Errorf("tap tables should be 1 but were %d\n", n)
	}

	buf.Reset()
	if err := printKernel(&buf, 1080, true); err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(buf.String(), "taps\n"); n != 9 {
		t.Errorf("tap tables should be 9 but were %d\n", n)
	}
}

func TestWriteResult(t *testing.T) {
	dir := t.TempDir()
	img := libio.MakeFloatImage(3, 5, 4)
	for i := range img.Pix {
		img.Pix[i] = float32(i%7) / 7
	}

	args := renderArgs{}
	args.ext = "f32"
	name := filepath.Join(dir, "out.f32")
	if err := writeResult(args, name, img); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(name)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	decoded, err := libio.DecodeFloatImage(f)
	if err != nil {
		t.Fatal(err)
	}
	for i := range img.Pix {
		if decoded.Pix[i] != img.Pix[i] {
			t.Fatalf("value %d should be %f but was %f\n", i, img.Pix[i], decoded.Pix[i])
		}
	}

	args.ext = "png"
	args.preview = 2
	if err := writeResult(args, filepath.Join(dir, "out.png"), img); err != nil {
		t.Fatal(err)
	}
}

func TestRenderFileSoftware(t *testing.T) {
	dir := t.TempDir()
	frame := libio.MakeFloatImage(3, 24, 12)
	frame.Fill(0.2, 0.3, 0.4)
	frame.SetRGB(12, 6, 80, 80, 80)

	in := filepath.Join(dir, "frame.hdr")
	f, err := os.Create(in)
	if err != nil {
		t.Fatal(err)
	}
	if err := libio.EncodeRadiance(f, frame); err != nil {
		t.Fatal(err)
	}
	f.Close()

	cargs = &commonArgs{out: dir, quiet: true}
	args := renderArgs{impl: implSw, intensity: 0.15, exposure: 1}
	args.ext = "f32"

	r := newRenderer(args)
	defer r.Release()
	if err := renderFile(args, in, ".f32", r); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "frame.f32")); err != nil {
		t.Errorf("result should have been written: %v\n", err)
	}
}
