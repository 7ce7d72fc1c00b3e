// Package backtrace builds paginated DAP stack traces.
//
// A walk selects the thread, starts from its innermost frame and follows the
// caller relation outward. Frames before StartFrame are skipped, and the walk
// stops once Levels frames are collected or the stack ends. No total frame
// count is ever computed: a page shorter than requested is the caller's
// end-of-stack signal.
//
// The Walker must only run on the affinity executor that owns the engine.
package backtrace

import (
	"errors"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/google/go-dap"

	"github.com/phuongdnguyen/dapbridge/pkg/engine"
	"github.com/phuongdnguyen/dapbridge/pkg/frameid"
	"github.com/phuongdnguyen/dapbridge/pkg/source"
)

// DefaultMaxDepth bounds how many native frames a single walk visits.
const DefaultMaxDepth = 10000

// Request is one page of a stack trace.
type Request struct {
	ThreadID int
	// Levels is the maximum number of frames to return, 0 for no limit.
	Levels int
	// StartFrame is the index of the first frame to return, 0 for the innermost.
	StartFrame int
}

// RequestFromArguments converts protocol arguments, clamping negative values to 0.
func RequestFromArguments(args dap.StackTraceArguments) Request {
	return Request{
		ThreadID:   args.ThreadId,
		Levels:     max(args.Levels, 0),
		StartFrame: max(args.StartFrame, 0),
	}
}

// Walker walks thread stacks of one engine.
type Walker struct {
	engine   engine.Engine
	ids      *frameid.Allocator
	resolver *source.Resolver
	log      logr.Logger

	// MaxDepth stops a walk after this many native frames, guarding against
	// a cyclic caller chain. Zero or less disables the bound.
	MaxDepth int
}

func NewWalker(e engine.Engine, ids *frameid.Allocator, resolver *source.Resolver, log logr.Logger) *Walker {
	return &Walker{
		engine:   e,
		ids:      ids,
		resolver: resolver,
		log:      log.WithName("backtrace"),
		MaxDepth: DefaultMaxDepth,
	}
}

// Walk returns the requested page of the thread's stack. Thread selection and
// engine failures are returned as *Error and no frames are returned with them.
func (w *Walker) Walk(req Request) (dap.StackTraceResponseBody, error) {
	w.ids.Trim()
	stack, err := w.engine.SelectThread(req.ThreadID)
	if err != nil {
		if errors.Is(err, engine.ErrThreadNotFound) {
			return dap.StackTraceResponseBody{}, &Error{Kind: ThreadNotFound, ThreadID: req.ThreadID, Err: err}
		}
		return dap.StackTraceResponseBody{}, &Error{Kind: EngineFault, ThreadID: req.ThreadID, Err: err}
	}

	frames := []dap.StackFrame{}
	current, err := stack.Newest()
	if errors.Is(err, engine.ErrNoActiveFrame) {
		w.log.V(1).Info("thread has no active frame", "thread", req.ThreadID)
		return dap.StackTraceResponseBody{StackFrames: frames}, nil
	}
	if err != nil {
		return dap.StackTraceResponseBody{}, &Error{Kind: EngineFault, ThreadID: req.ThreadID, Err: fmt.Errorf("newest frame: %w", err)}
	}

	depth := 0
	for current != nil {
		if w.MaxDepth > 0 && depth >= w.MaxDepth {
			w.log.Info("stack walk reached depth limit, truncating", "thread", req.ThreadID, "maxDepth", w.MaxDepth)
			break
		}
		if depth >= req.StartFrame {
			frames = append(frames, w.frame(stack.ThreadID(), depth, current))
			if req.Levels > 0 && len(frames) == req.Levels {
				// Full page: the caller of the last frame is never needed.
				break
			}
		}
		depth++
		current, err = current.Older()
		if err != nil {
			return dap.StackTraceResponseBody{}, &Error{Kind: EngineFault, ThreadID: req.ThreadID, Err: fmt.Errorf("frame %d: older frame: %w", depth-1, err)}
		}
	}

	// TotalFrames stays unset: its absence tells the client to keep paging
	// until a response comes back short.
	return dap.StackTraceResponseBody{StackFrames: frames}, nil
}

func (w *Walker) frame(threadID, depth int, f engine.Frame) dap.StackFrame {
	pc := f.PC()
	sf := dap.StackFrame{
		Id:   w.ids.ID(threadID, depth, pc),
		Name: source.Name(f),
		// Overwritten when the location resolves.
		Line: 0,
		// Columns are not tracked by the engine.
		Column:                      0,
		InstructionPointerReference: fmt.Sprintf("%#x", pc),
	}
	if loc, ok := w.resolver.Resolve(f); ok {
		sf.Source = loc.Source
		sf.Line = loc.Line
		sf.PresentationHint = loc.PresentationHint
	}
	return sf
}
