// Package engine is the narrow view of the debugger engine the bridge
// consumes: thread selection, frame enumeration and symbol/line lookup.
//
// Implementations are not safe for concurrent use. Every call must be made
// from the affinity executor that owns the engine.
package engine

import "errors"

var (
	// ErrThreadNotFound is returned by SelectThread when the id does not name a live thread.
	ErrThreadNotFound = errors.New("thread not found")
	// ErrNoActiveFrame is returned by Stack.Newest when the thread has no execution state.
	ErrNoActiveFrame = errors.New("no active frame")
	// ErrNoLineInfo is returned by Frame.FindSAL when the frame's pc has no line table entry.
	ErrNoLineInfo = errors.New("no line information")
)

// Engine is the entry point into debuggee state.
type Engine interface {
	// SelectThread returns a handle on the stack of the given thread. It does
	// not change any state observed by other handles, so selecting the same
	// thread twice is harmless.
	SelectThread(threadID int) (Stack, error)
	// Threads lists the live threads of the debuggee.
	Threads() ([]Thread, error)
}

// Thread identifies a live thread.
type Thread struct {
	ID   int
	Name string
}

// Stack is a thread-scoped cursor over one thread's call stack.
type Stack interface {
	ThreadID() int
	// Newest returns the innermost frame, or ErrNoActiveFrame.
	Newest() (Frame, error)
}

// Frame is a single activation record.
type Frame interface {
	PC() uint64
	// Function returns the symbolic function name and whether one is known.
	Function() (string, bool)
	// Older returns the caller's frame, or nil at the outermost frame.
	Older() (Frame, error)
	// FindSAL resolves the frame's program location to a file and line.
	FindSAL() (SAL, error)
}

// SAL is a resolved symbol-and-line location.
type SAL struct {
	File string
	Line int
}
