package libutil

import (
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
)

// InvalidAddress is handed to the GL loader for missing functions, so calling one crashes loudly instead of silently.
const InvalidAddress uintptr = 0xffff_ffff_ffff_ffff

type Deleter interface {
	Delete()
}

// DeleteAll deletes in reverse order of creation.
func DeleteAll(objects []Deleter) {
	for i := len(objects) - 1; i >= 0; i-- {
		objects[i].Delete()
	}
}

// GetProcAddress resolves GL functions through glfw.
func GetProcAddress(name string) unsafe.Pointer {
	addr := glfw.GetProcAddress(name)
	if addr == nil {
		return unsafe.Pointer(InvalidAddress)
	}
	return addr
}

func CeilDiv(a, b int) int {
	return (a + b - 1) / b
}
