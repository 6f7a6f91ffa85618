package bloom

import "log"

type frameStatus int

const (
	frameIdle = frameStatus(iota)
	frameOpen
	frameReleased
)

// FrameState guards the Begin / End / Resize call order of a renderer.
// Misuse is a programming error and panics.
type FrameState struct {
	status frameStatus
	frames uint64
}

func (fs *FrameState) BeginFrame() {
	switch fs.status {
	case frameOpen:
		log.Panicf("bloom: Begin called while frame %d is still open", fs.frames)
	case frameReleased:
		log.Panicf("bloom: Begin called after Release")
	}
	fs.status = frameOpen
}

func (fs *FrameState) EndFrame() {
	switch fs.status {
	case frameIdle:
		log.Panicf("bloom: End called without Begin")
	case frameReleased:
		log.Panicf("bloom: End called after Release")
	}
	fs.status = frameIdle
	fs.frames++
}

func (fs *FrameState) CheckResize() {
	switch fs.status {
	case frameOpen:
		log.Panicf("bloom: Resize called while frame %d is open", fs.frames)
	case frameReleased:
		log.Panicf("bloom: Resize called after Release")
	}
}

// MarkReleased returns false if the renderer was already released.
func (fs *FrameState) MarkReleased() bool {
	if fs.status == frameReleased {
		return false
	}
	fs.status = frameReleased
	return true
}

func (fs *FrameState) InFrame() bool {
	return fs.status == frameOpen
}

// Frames is the number of completed frames.
func (fs *FrameState) Frames() uint64 {
	return fs.frames
}
