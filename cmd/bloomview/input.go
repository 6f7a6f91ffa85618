package main

import (
	"github.com/go-gl/glfw/v3.3/glfw"
)

// Input tracks key state between two frames so presses can be told apart from held keys.
type Input struct {
	curr inputState
	prev inputState
}

type inputState struct {
	time float32
	keys []bool
}

func NewInput(win *glfw.Window) *Input {
	i := &Input{
		curr: inputState{keys: make([]bool, glfw.KeyLast+1)},
		prev: inputState{keys: make([]bool, glfw.KeyLast+1)},
	}

	i.Update(win)
	// Make sure dTime != 0 to avoid possible errors
	i.prev.time = i.curr.time - 1./60.
	copy(i.prev.keys, i.curr.keys)

	return i
}

func (i *Input) TimeDelta() float32 {
	return i.curr.time - i.prev.time
}

func (i *Input) Time() float32 {
	return i.curr.time
}

func (i *Input) IsKeyDown(key glfw.Key) bool {
	return i.curr.keys[key]
}

func (i *Input) IsKeyTap(key glfw.Key) bool {
	return i.curr.keys[key] && !i.prev.keys[key]
}

func (i *Input) Update(win *glfw.Window) {
	keys := i.prev.keys
	i.prev = i.curr

	for key := 32; key <= int(glfw.KeyLast); key++ {
		keys[key] = win.GetKey(glfw.Key(key)) != glfw.Release
	}

	i.curr = inputState{
		time: float32(glfw.GetTime()),
		keys: keys,
	}
}
