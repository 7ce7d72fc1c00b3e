// Package delve implements engine.Engine on top of a delve JSON-RPC client.
// DAP thread ids are delve goroutine ids, as in delve's own DAP server.
package delve

import (
	"fmt"
	"strings"

	"github.com/go-delve/delve/service/api"
	"github.com/go-delve/delve/service/rpc2"

	"github.com/phuongdnguyen/dapbridge/pkg/engine"
)

// DefaultChunk is the number of frames fetched by the first Stacktrace call
// of a walk. Later calls double it.
const DefaultChunk = 50

// Client is the subset of the delve rpc2 client the engine uses.
type Client interface {
	Stacktrace(goroutineID int64, depth int, opts api.StacktraceOptions, cfg *api.LoadConfig) ([]api.Stackframe, error)
	ListGoroutines(start, count int) ([]*api.Goroutine, int, error)
}

var _ Client = (*rpc2.RPCClient)(nil)

// Engine serves stacks of goroutines of the process delve is attached to.
type Engine struct {
	client Client
	chunk  int
}

// New returns an engine over client. chunk <= 0 selects DefaultChunk.
func New(client Client, chunk int) *Engine {
	if chunk <= 0 {
		chunk = DefaultChunk
	}
	return &Engine{client: client, chunk: chunk}
}

func (e *Engine) SelectThread(threadID int) (engine.Stack, error) {
	s := &stack{client: e.client, goid: int64(threadID)}
	if err := s.load(e.chunk); err != nil {
		if isUnknownGoroutine(err) {
			return nil, fmt.Errorf("goroutine %d: %w", threadID, engine.ErrThreadNotFound)
		}
		if isProcessExited(err) {
			// Nothing is left to unwind; Newest reports ErrNoActiveFrame.
			return &stack{client: e.client, goid: int64(threadID), complete: true}, nil
		}
		return nil, fmt.Errorf("stacktrace of goroutine %d: %w", threadID, err)
	}
	return s, nil
}

func (e *Engine) Threads() ([]engine.Thread, error) {
	gs, _, err := e.client.ListGoroutines(0, 0)
	if err != nil {
		return nil, fmt.Errorf("list goroutines: %w", err)
	}
	threads := make([]engine.Thread, 0, len(gs))
	for _, g := range gs {
		if g == nil {
			continue
		}
		threads = append(threads, engine.Thread{
			ID:   int(g.ID),
			Name: fmt.Sprintf("[Go %d] %s", g.ID, functionName(g.UserCurrentLoc.Function)),
		})
	}
	return threads, nil
}

// isUnknownGoroutine matches the error delve reports, as a string over
// JSON-RPC, for a goroutine id that does not exist.
func isUnknownGoroutine(err error) bool {
	return err != nil && strings.Contains(err.Error(), "unknown goroutine")
}

// isProcessExited matches delve's "Process N has exited with status S".
func isProcessExited(err error) bool {
	return err != nil && strings.Contains(err.Error(), "has exited with status")
}

func functionName(fn *api.Function) string {
	if fn == nil || fn.Name() == "" {
		return "unknown"
	}
	return fn.Name()
}

type stack struct {
	client   Client
	goid     int64
	depth    int
	frames   []api.Stackframe
	complete bool
}

// load fetches the innermost frames up to depth. Delve returns at most
// depth+1 frames, so a shorter answer means the whole stack is loaded.
func (s *stack) load(depth int) error {
	frames, err := s.client.Stacktrace(s.goid, depth, 0, nil)
	if err != nil {
		return err
	}
	s.depth = depth
	s.frames = frames
	s.complete = len(frames) <= depth
	return nil
}

func (s *stack) ThreadID() int { return int(s.goid) }

func (s *stack) Newest() (engine.Frame, error) {
	if len(s.frames) == 0 {
		return nil, engine.ErrNoActiveFrame
	}
	return &frame{stack: s, index: 0}, nil
}

func (s *stack) at(index int) (*api.Stackframe, error) {
	for index >= len(s.frames) {
		if s.complete {
			return nil, nil
		}
		if err := s.load(s.depth * 2); err != nil {
			return nil, fmt.Errorf("stacktrace of goroutine %d at depth %d: %w", s.goid, s.depth*2, err)
		}
	}
	return &s.frames[index], nil
}

type frame struct {
	stack *stack
	index int
}

func (f *frame) sf() *api.Stackframe {
	return &f.stack.frames[f.index]
}

func (f *frame) PC() uint64 { return f.sf().PC }

func (f *frame) Function() (string, bool) {
	fn := f.sf().Function
	if fn == nil || fn.Name() == "" {
		return "", false
	}
	return fn.Name(), true
}

func (f *frame) Older() (engine.Frame, error) {
	next, err := f.stack.at(f.index + 1)
	if err != nil || next == nil {
		return nil, err
	}
	return &frame{stack: f.stack, index: f.index + 1}, nil
}

func (f *frame) FindSAL() (engine.SAL, error) {
	sf := f.sf()
	if sf.Err != "" {
		return engine.SAL{}, fmt.Errorf("frame %d: %s", f.index, sf.Err)
	}
	if sf.File == "" || sf.File == "<autogenerated>" || sf.Line <= 0 {
		return engine.SAL{}, engine.ErrNoLineInfo
	}
	return engine.SAL{File: sf.File, Line: sf.Line}, nil
}
