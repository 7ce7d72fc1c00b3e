package backtrace

import "fmt"

// Kind classifies request-level stack trace failures.
type Kind int

const (
	// ThreadNotFound means the thread id does not name a live thread.
	ThreadNotFound Kind = iota + 1
	// EngineFault means the engine failed while the stack was being walked.
	EngineFault
)

func (k Kind) String() string {
	switch k {
	case ThreadNotFound:
		return "ThreadNotFound"
	case EngineFault:
		return "EngineFault"
	default:
		return "unknown"
	}
}

// Error is a request-level failure of a walk.
type Error struct {
	Kind     Kind
	ThreadID int
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: thread %d", e.Kind, e.ThreadID)
	}
	return fmt.Sprintf("%s: thread %d: %v", e.Kind, e.ThreadID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
