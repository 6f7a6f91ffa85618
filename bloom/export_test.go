package bloom

import "hdr-bloom/libio"

func (r *SoftwareRenderer) RawLevel(level int) *libio.FloatImage {
	return r.raw[level]
}

func (r *SoftwareRenderer) FilteredLevel(level int) *libio.FloatImage {
	return r.filtered[level]
}

func (r *SoftwareRenderer) Downsample(level int) {
	r.downsample(level)
}

var FloorDiv = floorDiv
