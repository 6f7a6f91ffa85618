package clbloom

import (
	_ "embed"
	"errors"
	"fmt"
	"unsafe"

	"github.com/Qendolin/go-opencl/cl"
	"golang.org/x/exp/slices"

	"hdr-bloom/bloom"
	"hdr-bloom/libio"
	"hdr-bloom/libutil"
)

//go:embed bloom.cl
var openclBloomSrc string

type DeviceType = cl.DeviceType

const (
	DeviceTypeCPU         = DeviceType(cl.DeviceTypeCPU)
	DeviceTypeGPU         = DeviceType(cl.DeviceTypeGPU)
	DeviceTypeAccelerator = DeviceType(cl.DeviceTypeAccelerator)
)

// ErrNoDevice is returned when no OpenCL platform exposes a device.
var ErrNoDevice = errors.New("no opencl devices found")

const (
	texelSize = 4 * 4
	groupSize = 16
)

type clCore struct {
	context *cl.Context
	queue   *cl.CommandQueue
	program *cl.Program
	device  *cl.Device
}

// Renderer runs the bloom passes as OpenCL kernels on float buffers.
// It produces the same frames as bloom.SoftwareRenderer.
type Renderer struct {
	bloom.FrameState
	clCore
	Config bloom.Config

	downKernel      *cl.Kernel
	filterKernel    *cl.Kernel
	upKernel        *cl.Kernel
	compositeKernel *cl.Kernel

	layout   bloom.Layout
	raw      [bloom.MaxLevels]*cl.MemObject
	filtered [bloom.MaxLevels]*cl.MemObject
	weights  [bloom.MaxLevels]*cl.MemObject
	output   *cl.MemObject
}

func newClCore(preferredDevice DeviceType, options string, programs ...string) (core *clCore, err error) {
	platforms, err := cl.GetPlatforms()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
	}

	var devices []*cl.Device
	for _, p := range platforms {
		devs, err := p.GetDevices(cl.DeviceTypeAll)
		if err != nil {
			continue
		}
		devices = append(devices, devs...)
	}

	if len(devices) == 0 {
		return nil, ErrNoDevice
	}

	slices.SortFunc(devices, func(a, b *cl.Device) int {
		if a.Type() == preferredDevice && b.Type() != preferredDevice {
			return -1
		}
		if a.Type() != preferredDevice && b.Type() == preferredDevice {
			return 1
		}

		aPower := a.MaxComputeUnits() * a.MaxClockFrequency()
		bPower := b.MaxComputeUnits() * b.MaxClockFrequency()

		return bPower - aPower
	})

	device := devices[0]

	ctx, err := cl.CreateContext([]*cl.Device{device})
	if err != nil {
		return nil, err
	}

	queue, err := ctx.CreateCommandQueue(device, 0)
	if err != nil {
		ctx.Release()
		return nil, err
	}

	prog, err := ctx.CreateProgramWithSource(programs)
	if err != nil {
		queue.Release()
		ctx.Release()
		return nil, err
	}
	err = prog.BuildProgram(nil, options)
	if err != nil {
		prog.Release()
		queue.Release()
		ctx.Release()
		return nil, fmt.Errorf("failed to build bloom kernels: %w", err)
	}

	return &clCore{
		context: ctx,
		queue:   queue,
		program: prog,
		device:  device,
	}, nil
}

func (core *clCore) release() {
	core.program.Release()
	core.queue.Release()
	core.context.Release()
}

func buildOptions() string {
	return fmt.Sprintf("-D MAX_HALF=%#gf -D MAX_COMPOSITE=%#gf -D GAMMA=%#gf", bloom.MaxHalfFloat, bloom.MaxComposite, bloom.Gamma)
}

func NewRenderer(preferredDevice DeviceType, width, height int, config bloom.Config) (r *Renderer, err error) {
	core, err := newClCore(preferredDevice, buildOptions(), openclBloomSrc)
	if err != nil {
		return nil, err
	}

	r = &Renderer{clCore: *core, Config: config}
	defer func() {
		if err != nil {
			r.Release()
			r = nil
		}
	}()

	for _, k := range []struct {
		kernel **cl.Kernel
		name   string
	}{
		{&r.downKernel, "downsample"},
		{&r.filterKernel, "filter"},
		{&r.upKernel, "upsample"},
		{&r.compositeKernel, "composite"},
	} {
		*k.kernel, err = r.program.CreateKernel(k.name)
		if err != nil {
			return nil, fmt.Errorf("could not create kernel %v: %w", k.name, err)
		}
	}

	if err = r.Resize(width, height); err != nil {
		return nil, err
	}

	bloom.Logger().Info("opencl bloom renderer created", "device", r.device.Name(), "layout", &r.layout)
	return r, nil
}

func (r *Renderer) Layout() bloom.Layout {
	return r.layout
}

// DeviceName is the name of the device the kernels run on.
func (r *Renderer) DeviceName() string {
	return r.device.Name()
}

// Resize replaces every buffer with zeroed buffers sized for width by height.
func (r *Renderer) Resize(width, height int) (err error) {
	r.CheckResize()

	layout, err := bloom.NewLayoutWith(width, height, r.Config.KernelTable())
	if err != nil {
		return fmt.Errorf("could not compute bloom layout: %w", err)
	}

	r.releaseBuffers()
	defer func() {
		if err != nil {
			r.releaseBuffers()
			r.layout = bloom.Layout{}
		}
	}()
	r.layout = layout

	base := layout.Mips[0]
	if base.Width == 0 {
		return nil
	}

	if r.raw[0], err = r.zeroBuffer(base.RawWidth() * base.RawHeight()); err != nil {
		return err
	}
	if r.output, err = r.zeroBuffer(base.Width * base.Height); err != nil {
		return err
	}
	// level 0 weights always exist so the composite kernel has a valid argument
	if r.weights[0], err = r.weightBuffer(&layout.Filters[0]); err != nil {
		return err
	}

	for i := 1; i < layout.Count; i++ {
		mip := layout.Mips[i]
		if r.raw[i], err = r.zeroBuffer(mip.RawWidth() * mip.RawHeight()); err != nil {
			return err
		}
		if r.filtered[i], err = r.zeroBuffer(mip.Width * mip.Height); err != nil {
			return err
		}
		if r.weights[i], err = r.weightBuffer(&layout.Filters[i]); err != nil {
			return err
		}
	}

	bloom.Logger().Debug("bloom pyramid resized", "layout", &r.layout)
	return nil
}

func (r *Renderer) zeroBuffer(texels int) (*cl.MemObject, error) {
	zero := make([]float32, texels*4)
	return r.context.CreateBuffer(cl.MemReadWrite|cl.MemCopyHostPtr, texels*texelSize, unsafe.Pointer(&zero[0]))
}

func (r *Renderer) weightBuffer(fs *bloom.FilterSet) (*cl.MemObject, error) {
	weights := make([]float32, bloom.TapCount)
	for i := range weights {
		_, _, weights[i] = fs.Tap(i)
	}
	return r.context.CreateBuffer(cl.MemReadOnly|cl.MemCopyHostPtr, len(weights)*4, unsafe.Pointer(&weights[0]))
}

func (r *Renderer) releaseBuffers() {
	for i := range r.raw {
		releaseMem(&r.raw[i])
		releaseMem(&r.filtered[i])
		releaseMem(&r.weights[i])
	}
	releaseMem(&r.output)
}

func releaseMem(mem **cl.MemObject) {
	if *mem != nil {
		(*mem).Release()
		*mem = nil
	}
}

// Render draws frame as the scene, runs all passes and returns the display ready result.
// The renderer is resized when the frame size differs from its layout.
func (r *Renderer) Render(frame *libio.FloatImage, params bloom.CompositeParams) (img *libio.FloatImage, err error) {
	if frame.Width != r.layout.Width || frame.Height != r.layout.Height {
		if err := r.Resize(frame.Width, frame.Height); err != nil {
			return nil, err
		}
	}

	r.BeginFrame()
	defer r.EndFrame()

	if r.raw[0] == nil {
		return libio.MakeFloatImage(3, 0, 0), nil
	}

	if err := r.upload(frame); err != nil {
		return nil, fmt.Errorf("could not upload frame: %w", err)
	}

	n := r.layout.Count
	for level := 1; level < n; level++ {
		if err := r.downsample(level); err != nil {
			return nil, fmt.Errorf("downsample %d: %w", level, err)
		}
	}
	for level := 1; level < n; level++ {
		if err := r.filter(level); err != nil {
			return nil, fmt.Errorf("filter %d: %w", level, err)
		}
	}
	for level := n - 2; level >= 1; level-- {
		if err := r.upsample(level); err != nil {
			return nil, fmt.Errorf("upsample %d: %w", level, err)
		}
	}
	if err := r.composite(params); err != nil {
		return nil, fmt.Errorf("composite: %w", err)
	}

	img, err = r.download()
	if err != nil {
		return nil, fmt.Errorf("could not read result: %w", err)
	}
	bloom.Logger().Debug("bloom frame rendered", "frame", r.Frames()+1, "levels", n)
	return img, nil
}

// upload writes frame into the interior of the base level, the border is written as zero.
func (r *Renderer) upload(frame *libio.FloatImage) error {
	base := r.layout.Mips[0]
	rawWidth := base.RawWidth()
	data := make([]float32, rawWidth*base.RawHeight()*4)
	for y := 0; y < frame.Height; y++ {
		for x := 0; x < frame.Width; x++ {
			i := ((y+bloom.Border)*rawWidth + x + bloom.Border) * 4
			data[i+0], data[i+1], data[i+2] = frame.RGB(x, y)
			data[i+3] = 1.0
		}
	}
	_, err := r.queue.EnqueueWriteBuffer(r.raw[0], true, 0, len(data)*4, unsafe.Pointer(&data[0]), nil)
	return err
}

func (r *Renderer) download() (*libio.FloatImage, error) {
	base := r.layout.Mips[0]
	result := make([]float32, base.Width*base.Height*4)
	_, err := r.queue.EnqueueReadBuffer(r.output, true, 0, len(result)*4, unsafe.Pointer(&result[0]), nil)
	if err != nil {
		return nil, err
	}

	// compact RGBA to RGB
	for i := 0; i < len(result)/4; i++ {
		result[i*3+0] = result[i*4+0]
		result[i*3+1] = result[i*4+1]
		result[i*3+2] = result[i*4+2]
	}
	result = result[: base.Width*base.Height*3 : base.Width*base.Height*3]

	return libio.NewFloatImage(result, 3, base.Width, base.Height), nil
}

func (r *Renderer) downsample(level int) error {
	src, dst := r.layout.Mips[level-1], r.layout.Mips[level]
	err := setArgs(r.downKernel,
		r.raw[level-1], src.RawWidth(), src.RawHeight(),
		r.raw[level], dst.RawWidth(), dst.Width, dst.Height)
	if err != nil {
		return err
	}
	return r.run(r.downKernel, dst.Width, dst.Height)
}

func (r *Renderer) filter(level int) error {
	mip := r.layout.Mips[level]
	err := setArgs(r.filterKernel,
		r.raw[level], mip.RawWidth(), mip.RawHeight(),
		r.weights[level],
		r.filtered[level], mip.Width, mip.Height)
	if err != nil {
		return err
	}
	return r.run(r.filterKernel, mip.Width, mip.Height)
}

func (r *Renderer) upsample(level int) error {
	src, dst := r.layout.Mips[level+1], r.layout.Mips[level]
	err := setArgs(r.upKernel,
		r.filtered[level+1], src.Width, src.Height,
		r.filtered[level], dst.Width, dst.Height)
	if err != nil {
		return err
	}
	return r.run(r.upKernel, dst.Width, dst.Height)
}

func (r *Renderer) composite(params bloom.CompositeParams) error {
	n := r.layout.Count
	if n == 0 {
		// without a pyramid the base is tone mapped as is
		params.Intensity = 0
	}

	base := r.layout.Mips[0]
	pyramid, pyramidMip := r.raw[0], r.layout.Mips[0]
	if n > 1 {
		pyramid, pyramidMip = r.filtered[1], r.layout.Mips[1]
	}

	err := setArgs(r.compositeKernel,
		r.raw[0], base.RawWidth(), base.RawHeight(),
		r.weights[0], n > 0,
		pyramid, pyramidMip.Width, pyramidMip.Height, n > 1,
		r.output, base.Width, base.Height,
		params.Intensity, params.Exposure, params.HighContrast, int(params.Curve))
	if err != nil {
		return err
	}
	return r.run(r.compositeKernel, base.Width, base.Height)
}

func (r *Renderer) run(kernel *cl.Kernel, width, height int) error {
	localWorkSize := []int{groupSize, groupSize}
	globalWorkSize := []int{roundUpKernelSize(groupSize, width), roundUpKernelSize(groupSize, height)}
	_, err := r.queue.EnqueueNDRangeKernel(kernel, []int{0, 0}, globalWorkSize, localWorkSize, nil)
	return err
}

func roundUpKernelSize(groupSize, globalSize int) int {
	return libutil.CeilDiv(globalSize, groupSize) * groupSize
}

// setArgs sets the kernel arguments in order. Booleans are passed as int.
func setArgs(kernel *cl.Kernel, args ...any) error {
	for i, arg := range args {
		var err error
		switch v := arg.(type) {
		case *cl.MemObject:
			err = kernel.SetArgBuffer(i, v)
		case int:
			err = kernel.SetArgInt32(i, int32(v))
		case bool:
			var b int32
			if v {
				b = 1
			}
			err = kernel.SetArgInt32(i, b)
		case float32:
			err = kernel.SetArgFloat32(i, v)
		default:
			return fmt.Errorf("unsupported kernel argument %d of type %T", i, arg)
		}
		if err != nil {
			return fmt.Errorf("kernel argument %d: %w", i, err)
		}
	}
	return nil
}

// Release frees all OpenCL objects. It is safe to call more than once.
func (r *Renderer) Release() {
	if !r.MarkReleased() {
		return
	}
	r.releaseBuffers()
	for _, k := range []**cl.Kernel{&r.downKernel, &r.filterKernel, &r.upKernel, &r.compositeKernel} {
		if *k != nil {
			(*k).Release()
			*k = nil
		}
	}
	r.clCore.release()
}
