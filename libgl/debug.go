package libgl

import (
	"log/slog"
	"unsafe"

	"github.com/go-gl/gl/v4.5-core/gl"
)

type LabeledGlObject interface {
	SetDebugLabel(string)
}

func setObjectLabel(namespace, id uint32, label string) {
	if label == "" {
		return
	}
	bytes := []byte(label)
	gl.ObjectLabel(namespace, id, int32(len(bytes)), (*uint8)(unsafe.Pointer(&bytes[0])))
}

// PushDebugGroup opens a named group in graphics debuggers. The returned func closes it.
func PushDebugGroup(name string) func() {
	gl.PushDebugGroup(gl.DEBUG_SOURCE_APPLICATION, 999, -1, gl.Str(name+"\x00"))
	return gl.PopDebugGroup
}

// EnableDebugOutput forwards driver messages to logger, errors and high severity messages at warn level.
func EnableDebugOutput(logger *slog.Logger) {
	GlState.Enable(DebugOutput)
	GlState.Enable(DebugOutputSynchronous)
	gl.DebugMessageCallback(func(source, gltype, id, severity uint32, length int32, message string, userParam unsafe.Pointer) {
		switch {
		case gltype == gl.DEBUG_TYPE_ERROR || severity == gl.DEBUG_SEVERITY_HIGH:
			logger.Warn("GL: "+message, "id", id, "type", gltype)
		case severity == gl.DEBUG_SEVERITY_NOTIFICATION:
			logger.Debug("GL: "+message, "id", id)
		default:
			logger.Info("GL: "+message, "id", id, "type", gltype)
		}
	}, nil)
}
