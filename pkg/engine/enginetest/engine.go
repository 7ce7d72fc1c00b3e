// Package enginetest provides a scripted, in-memory engine.Engine for tests.
package enginetest

import (
	"fmt"
	"sort"

	"github.com/phuongdnguyen/dapbridge/pkg/engine"
)

// FrameSpec describes one native frame of a scripted thread.
type FrameSpec struct {
	PC       uint64
	Function string
	File     string
	Line     int
	// SALErr makes FindSAL fail for this frame.
	SALErr error
	// OlderErr makes Older fail when called on this frame.
	OlderErr error
}

// Thread is a scripted thread. Frames are ordered innermost first.
type Thread struct {
	ID     int
	Name   string
	Frames []FrameSpec
	// Cyclic makes the outermost frame's caller the innermost frame again.
	Cyclic bool
	// NewestErr makes Newest fail with this error instead of returning a frame.
	NewestErr error
}

// Engine is an engine.Engine over scripted threads.
type Engine struct {
	threads map[int]*Thread
	// Selections counts SelectThread calls per thread id.
	Selections map[int]int
	// ThreadsErr makes Threads fail.
	ThreadsErr error
}

// New returns an engine serving the given threads.
func New(threads ...*Thread) *Engine {
	e := &Engine{
		threads:    make(map[int]*Thread),
		Selections: make(map[int]int),
	}
	for _, t := range threads {
		e.threads[t.ID] = t
	}
	return e
}

// Linear builds a thread with n frames named fn0..fn(n-1) in file0.go..file(n-1).go.
func Linear(id, n int) *Thread {
	t := &Thread{ID: id, Name: fmt.Sprintf("thread %d", id)}
	for i := 0; i < n; i++ {
		t.Frames = append(t.Frames, FrameSpec{
			PC:       uint64(0x401000 + id*0x10000 + i*0x10),
			Function: fmt.Sprintf("fn%d", i),
			File:     fmt.Sprintf("/src/pkg/file%d.go", i),
			Line:     10 + i,
		})
	}
	return t
}

func (e *Engine) SelectThread(threadID int) (engine.Stack, error) {
	e.Selections[threadID]++
	t, ok := e.threads[threadID]
	if !ok {
		return nil, fmt.Errorf("select thread %d: %w", threadID, engine.ErrThreadNotFound)
	}
	return &stack{thread: t}, nil
}

func (e *Engine) Threads() ([]engine.Thread, error) {
	if e.ThreadsErr != nil {
		return nil, e.ThreadsErr
	}
	out := make([]engine.Thread, 0, len(e.threads))
	for _, t := range e.threads {
		out = append(out, engine.Thread{ID: t.ID, Name: t.Name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type stack struct {
	thread *Thread
}

func (s *stack) ThreadID() int { return s.thread.ID }

func (s *stack) Newest() (engine.Frame, error) {
	if s.thread.NewestErr != nil {
		return nil, s.thread.NewestErr
	}
	if len(s.thread.Frames) == 0 {
		return nil, engine.ErrNoActiveFrame
	}
	return &frame{thread: s.thread, index: 0}, nil
}

type frame struct {
	thread *Thread
	index  int
}

func (f *frame) spec() FrameSpec { return f.thread.Frames[f.index] }

func (f *frame) PC() uint64 { return f.spec().PC }

func (f *frame) Function() (string, bool) {
	name := f.spec().Function
	return name, name != ""
}

func (f *frame) Older() (engine.Frame, error) {
	if err := f.spec().OlderErr; err != nil {
		return nil, err
	}
	next := f.index + 1
	if next >= len(f.thread.Frames) {
		if !f.thread.Cyclic {
			return nil, nil
		}
		next = 0
	}
	return &frame{thread: f.thread, index: next}, nil
}

func (f *frame) FindSAL() (engine.SAL, error) {
	spec := f.spec()
	if spec.SALErr != nil {
		return engine.SAL{}, spec.SALErr
	}
	if spec.File == "" {
		return engine.SAL{}, engine.ErrNoLineInfo
	}
	return engine.SAL{File: spec.File, Line: spec.Line}, nil
}
