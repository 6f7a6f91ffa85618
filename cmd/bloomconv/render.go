package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"hdr-bloom/bloom"
	"hdr-bloom/clbloom"
	"hdr-bloom/libio"
)

type renderArgs struct {
	commonArgs
	impl         impl
	intensity    float64
	exposure     float64
	highContrast bool
	curve        curve
	preview      int
	workers      int
	watch        bool
}

// renderer is implemented by every backend that can process still frames.
type renderer interface {
	Render(frame *libio.FloatImage, params bloom.CompositeParams) (*libio.FloatImage, error)
	Release()
}

func createRenderCommand() *command {
	config := bloom.DefaultConfig()
	args := renderArgs{
		commonArgs: commonArgs{
			ext: "png",
		},
		impl:      implCl,
		intensity: float64(config.Intensity),
		exposure:  float64(config.Exposure),
	}

	flags := flag.NewFlagSet("render", flag.ExitOnError)

	registerCommonFlags(flags, &args.commonArgs)
	flags.Var(&args.impl, "impl", "the renderer implementation; opencl or software")
	flags.Float64Var(&args.intensity, "intensity", args.intensity, "bloom intensity in [0, 1]")
	flags.Float64Var(&args.exposure, "exposure", args.exposure, "exposure multiplier")
	flags.BoolVar(&args.highContrast, "high-contrast", args.highContrast, "use the ACES tone curve")
	flags.Var(&args.curve, "curve", "tone curve when high contrast is off; reinhard or exp")
	flags.IntVar(&args.preview, "preview", args.preview, "scale ldr results so the longest side is at most this many pixels, 0 keeps the size")
	flags.IntVar(&args.workers, "workers", args.workers, "goroutines used by the software implementation, 0 uses all cores")
	flags.BoolVar(&args.watch, "watch", args.watch, "keep running and render inputs again when they change")

	return &command{
		Name: "render",
		Help: "apply bloom and tone mapping to radiance hdr or f32 images",
		Run: func(self *command) {
			if self.Flags.NArg() < 1 || args.compress < 0 || args.compress > 1 {
				printCommandUsage(self, " file-glob...")
			}
			setCommonArgs(&args.commonArgs)
			args.ext = strings.TrimPrefix(strings.ToLower(args.ext), ".")
			if _, ok := libio.ParseLdrFormat(args.ext); !ok && args.ext != "f32" {
				harderr(fmt.Errorf("unsupported output extension %q", args.ext))
			}

			runRender(args, gatherInputFiles(self.Flags.Args()))
		},
		Flags: flags,
	}
}

func (args *renderArgs) params() bloom.CompositeParams {
	return bloom.CompositeParams{
		Intensity:    float32(args.intensity),
		Exposure:     float32(args.exposure),
		HighContrast: args.highContrast,
		Curve:        args.curve.Curve,
	}
}

func newRenderer(args renderArgs) renderer {
	config := bloom.DefaultConfig()

	switch args.impl {
	case implCl:
		r, err := clbloom.NewRenderer(clbloom.DeviceTypeGPU, 0, 0, config)
		if err == nil {
			if !cargs.quiet {
				fmt.Printf("Using OpenCL implementation on %s\n", r.DeviceName())
			}
			return r
		}
		softerr(err)
		if !cargs.quiet {
			fmt.Println("Falling back to software implementation")
		}
	}

	r, err := bloom.NewSoftwareRenderer(0, 0, config)
	harderr(err)
	r.Workers = args.workers
	if !cargs.quiet {
		fmt.Println("Using software implementation")
	}
	return r
}

func runRender(args renderArgs, inputFiles []string) {
	r := newRenderer(args)
	defer r.Release()

	ext := cargs.suffix + "." + args.ext

	success := 0
	start := time.Now()
	for i, p := range inputFiles {
		if !cargs.quiet {
			fmt.Printf("Processing file %d/%d %q ...\n", i+1, len(inputFiles), filepath.ToSlash(filepath.Clean(p)))
		}
		err := renderFile(args, p, ext, r)
		softerr(err)
		if err == nil {
			success++
		}
	}
	if !cargs.quiet {
		took := float32(time.Since(start).Milliseconds()) / 1000
		fmt.Printf("Rendered %d/%d files in %.3f seconds\n", success, len(inputFiles), took)
	}

	if args.watch {
		runWatch(args, inputFiles, r)
	}
}

func readFrame(p string) (*libio.FloatImage, error) {
	inFile, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer close(inFile)

	var img *libio.FloatImage
	switch strings.ToLower(filepath.Ext(p)) {
	case ".f32":
		img, err = libio.DecodeFloatImage(inFile)
	default:
		img, err = libio.DecodeRadiance(inFile)
	}
	if err != nil {
		return nil, fmt.Errorf("could not decode %q: %w", filepath.Base(p), err)
	}
	if img.Channels != 3 {
		img = img.ToChannels(3)
	}
	return img, nil
}

func renderFile(args renderArgs, p string, ext string, r renderer) error {
	frame, err := readFrame(p)
	if err != nil {
		return err
	}
	if frame.Width == 0 || frame.Height == 0 {
		return fmt.Errorf("image has zero size %dx%d", frame.Width, frame.Height)
	}

	if !cargs.quiet {
		layout := bloom.NewLayout(frame.Width, frame.Height)
		fmt.Printf("Rendering %dx%d with %d levels ...\n", frame.Width, frame.Height, layout.Count)
	}

	result, err := r.Render(frame, args.params())
	if err != nil {
		return err
	}

	outFilename := filepath.Join(cargs.out, strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))+ext)
	if !cargs.quiet {
		fmt.Printf("Writing %q ...\n", filepath.ToSlash(filepath.Clean(outFilename)))
	}
	return writeResult(args, outFilename, result)
}

func writeResult(args renderArgs, outFilename string, result *libio.FloatImage) error {
	outFile, err := os.OpenFile(outFilename, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0666)
	if err != nil {
		return err
	}

	if args.ext == "f32" {
		err = libio.EncodeFloatImage(outFile, result, libio.FloatImageCompression(args.compress))
	} else {
		format, _ := libio.ParseLdrFormat(args.ext)
		err = libio.EncodeLdrPreview(outFile, result, format, args.preview)
	}

	err = errors.Join(err, outFile.Close())
	if err != nil {
		os.Remove(outFilename)
		return err
	}
	return nil
}
