package session

import (
	"fmt"

	"github.com/ctagard/debugify/internal/backend"
	"github.com/ctagard/debugify/pkg/types"
)

// Thread is a view of one thread as of the last stop. Threads are never
// cached: fetch them again from the Process after every resume.
type Thread struct {
	process *Process
	handle  backend.ThreadHandle
	id      int
}

func newThread(p *Process, h backend.ThreadHandle) *Thread {
	return &Thread{process: p, handle: h, id: h.ID()}
}

func (t *Thread) Process() *Process { return t.process }
func (t *Thread) ID() int           { return t.id }
func (t *Thread) Name() string      { return t.handle.Name() }

// IsCurrent reports whether this is the process's selected thread.
func (t *Thread) IsCurrent() bool {
	sel := t.process.SelectedThread()
	return sel != nil && sel.id == t.id
}

// FrameCount returns the depth of the call stack.
func (t *Thread) FrameCount() int {
	return t.handle.NumFrames()
}

// FrameAt returns frame i, 0 being the innermost.
func (t *Thread) FrameAt(i int) *Frame {
	n := t.FrameCount()
	if i < 0 || i >= n {
		panic(fmt.Sprintf("session: frame index %d out of range [0,%d)", i, n))
	}
	return newFrame(t, t.handle.FrameAt(i))
}

// Frames returns the whole call stack.
func (t *Thread) Frames() []*Frame {
	n := t.FrameCount()
	frames := make([]*Frame, 0, n)
	for i := 0; i < n; i++ {
		frames = append(frames, newFrame(t, t.handle.FrameAt(i)))
	}
	return frames
}

// SelectFrame makes f the thread's selected frame.
func (t *Thread) SelectFrame(f *Frame) bool {
	if f == nil || f.thread.id != t.id || f.thread.process != t.process {
		return false
	}
	return t.handle.SetSelectedFrame(f.handle)
}

// SelectedFrame returns the selected frame, or nil before any stop.
func (t *Thread) SelectedFrame() *Frame {
	h := t.handle.SelectedFrame()
	if h == nil {
		return nil
	}
	return newFrame(t, h)
}

func (t *Thread) StepInto() Result { return rejected("step into", t.handle.StepInto()) }
func (t *Thread) StepOver() Result { return rejected("step over", t.handle.StepOver()) }
func (t *Thread) StepOut() Result  { return rejected("step out", t.handle.StepOut()) }

// Snapshot copies the thread and up to maxFrames frames out. A negative
// maxFrames copies the whole stack.
func (t *Thread) Snapshot(maxFrames int) types.ThreadInfo {
	info := types.ThreadInfo{
		ID:      t.id,
		Name:    t.Name(),
		Current: t.IsCurrent(),
	}
	n := t.FrameCount()
	if maxFrames >= 0 && n > maxFrames {
		n = maxFrames
	}
	if n == 0 {
		return info
	}
	selected := -1
	if f := t.SelectedFrame(); f != nil {
		selected = f.Index()
	}
	info.Frames = make([]types.FrameInfo, 0, n)
	for i := 0; i < n; i++ {
		f := t.FrameAt(i)
		fi := f.Snapshot()
		fi.Selected = f.Index() == selected
		info.Frames = append(info.Frames, fi)
	}
	return info
}

// Frame is one entry of a thread's call stack.
type Frame struct {
	thread *Thread
	handle backend.FrameHandle
}

func newFrame(t *Thread, h backend.FrameHandle) *Frame {
	return &Frame{thread: t, handle: h}
}

func (f *Frame) Thread() *Thread      { return f.thread }
func (f *Frame) Index() int           { return f.handle.Index() }
func (f *Frame) FunctionName() string { return f.handle.FunctionName() }
func (f *Frame) Filename() string     { return f.handle.File() }
func (f *Frame) LineNumber() int      { return f.handle.Line() }

// HasLineNumber reports whether the frame has source line information.
func (f *Frame) HasLineNumber() bool {
	return f.handle.Line() > 0
}

func (f *Frame) Snapshot() types.FrameInfo {
	return types.FrameInfo{
		Index:    f.Index(),
		Function: f.FunctionName(),
		File:     f.Filename(),
		Line:     f.LineNumber(),
	}
}
