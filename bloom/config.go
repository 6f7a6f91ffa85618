package bloom

// Config holds the composite settings and the kernel table of a renderer.
type Config struct {
	Intensity    float32
	Exposure     float32
	HighContrast bool
	Curve        Curve
	// Kernels defaults to DefaultKernels when nil.
	Kernels KernelTable
}

func DefaultConfig() Config {
	return Config{
		Intensity: 0.15,
		Exposure:  1.0,
		Curve:     CurveReinhard,
		Kernels:   DefaultKernels(),
	}
}

func (c Config) Params() CompositeParams {
	return CompositeParams{
		Intensity:    c.Intensity,
		Exposure:     c.Exposure,
		HighContrast: c.HighContrast,
		Curve:        c.Curve,
	}
}

func (c Config) KernelTable() KernelTable {
	if c.Kernels == nil {
		return defaultKernels[:]
	}
	return c.Kernels
}
