package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/go-dap"

	"github.com/phuongdnguyen/dapbridge/pkg/affinity"
	"github.com/phuongdnguyen/dapbridge/pkg/backtrace"
	"github.com/phuongdnguyen/dapbridge/pkg/engine"
)

// Error ids carried in dap.ErrorMessage.Id.
const (
	ErrIDThreadNotFound = 2001
	ErrIDEngineFault    = 2002
	ErrIDTimeout        = 2003
	ErrIDUnsupported    = 2004
	ErrIDInternal       = 2005
)

var errUnsupported = errors.New("unsupported request")

type requestHandler func(s *Server, ctx context.Context, req dap.RequestMessage) (dap.ResponseMessage, error)

// requestTable maps each served command to its handler. It never changes
// after startup.
var requestTable = map[string]requestHandler{
	"initialize": (*Server).onInitialize,
	"stackTrace": (*Server).onStackTrace,
	"threads":    (*Server).onThreads,
	"disconnect": (*Server).onDisconnect,

	// Execution control belongs to the delve client. Frames die when the
	// target resumes, so the table of frame ids goes with them.
	"continue": (*Server).onResume,
	"next":     (*Server).onResume,
	"stepIn":   (*Server).onResume,
	"stepOut":  (*Server).onResume,
	"pause":    (*Server).onResume,
}

// capabilityTable lists the capabilities advertised in the initialize response.
var capabilityTable = []string{
	"supportsDelayedStackTraceLoading",
}

func capabilities() (dap.Capabilities, error) {
	flags := make(map[string]bool, len(capabilityTable))
	for _, name := range capabilityTable {
		flags[name] = true
	}
	var caps dap.Capabilities
	raw, err := json.Marshal(flags)
	if err != nil {
		return caps, err
	}
	if err := json.Unmarshal(raw, &caps); err != nil {
		return caps, fmt.Errorf("decode capability table: %w", err)
	}
	return caps, nil
}

func newResponse(req *dap.Request) dap.Response {
	return dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Type: "response"},
		Command:         req.Command,
		RequestSeq:      req.Seq,
		Success:         true,
	}
}

func (s *Server) onInitialize(_ context.Context, req dap.RequestMessage) (dap.ResponseMessage, error) {
	caps, err := capabilities()
	if err != nil {
		return nil, err
	}
	return &dap.InitializeResponse{Response: newResponse(req.GetRequest()), Body: caps}, nil
}

func (s *Server) onStackTrace(ctx context.Context, req dap.RequestMessage) (dap.ResponseMessage, error) {
	r, ok := req.(*dap.StackTraceRequest)
	if !ok {
		return nil, fmt.Errorf("unexpected message %T for stackTrace", req)
	}
	body, err := affinity.Call(ctx, s.Executor, func() (dap.StackTraceResponseBody, error) {
		return s.Walker.Walk(backtrace.RequestFromArguments(r.Arguments))
	})
	if err != nil {
		return nil, err
	}
	return newStackTraceResponse(newResponse(req.GetRequest()), body), nil
}

// stackTraceResponse is dap.StackTraceResponse with sourceReference always
// written, 0 included: go-dap drops it as empty.
type stackTraceResponse struct {
	dap.Response
	Body stackTraceResponseBody `json:"body"`
}

type stackTraceResponseBody struct {
	StackFrames []stackFrame `json:"stackFrames"`
	TotalFrames int          `json:"totalFrames,omitempty"`
}

type stackFrame struct {
	dap.StackFrame
	Source *frameSource `json:"source,omitempty"`
}

type frameSource struct {
	*dap.Source
	SourceReference int `json:"sourceReference"`
}

func newStackTraceResponse(resp dap.Response, body dap.StackTraceResponseBody) *stackTraceResponse {
	out := &stackTraceResponse{Response: resp}
	out.Body.TotalFrames = body.TotalFrames
	out.Body.StackFrames = make([]stackFrame, 0, len(body.StackFrames))
	for _, sf := range body.StackFrames {
		frame := stackFrame{StackFrame: sf}
		if sf.Source != nil {
			frame.Source = &frameSource{Source: sf.Source, SourceReference: sf.Source.SourceReference}
		}
		out.Body.StackFrames = append(out.Body.StackFrames, frame)
	}
	return out
}

func (s *Server) onThreads(ctx context.Context, req dap.RequestMessage) (dap.ResponseMessage, error) {
	threads, err := affinity.Call(ctx, s.Executor, s.Engine.Threads)
	if err != nil {
		return nil, err
	}
	resp := &dap.ThreadsResponse{Response: newResponse(req.GetRequest())}
	resp.Body.Threads = make([]dap.Thread, 0, len(threads))
	for _, t := range threads {
		resp.Body.Threads = append(resp.Body.Threads, dap.Thread{Id: t.ID, Name: t.Name})
	}
	return resp, nil
}

func (s *Server) onDisconnect(_ context.Context, req dap.RequestMessage) (dap.ResponseMessage, error) {
	return &dap.DisconnectResponse{Response: newResponse(req.GetRequest())}, nil
}

func (s *Server) onResume(ctx context.Context, req dap.RequestMessage) (dap.ResponseMessage, error) {
	err := affinity.Do(ctx, s.Executor, func() error {
		s.FrameIDs.Reset()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %s", errUnsupported, req.GetRequest().Command)
}

// newErrorResponse turns a failed request into an error response.
func newErrorResponse(req *dap.Request, err error) *dap.ErrorResponse {
	id, summary := classify(err)
	resp := &dap.ErrorResponse{Response: newResponse(req)}
	resp.Success = false
	resp.Message = summary
	resp.Body.Error = &dap.ErrorMessage{
		Id:       id,
		Format:   err.Error(),
		ShowUser: true,
	}
	return resp
}

func classify(err error) (int, string) {
	var btErr *backtrace.Error
	switch {
	case errors.As(err, &btErr):
		id := ErrIDEngineFault
		if btErr.Kind == backtrace.ThreadNotFound {
			id = ErrIDThreadNotFound
		}
		return id, fmt.Sprintf("%s: thread %d", btErr.Kind, btErr.ThreadID)
	case errors.Is(err, context.DeadlineExceeded):
		return ErrIDTimeout, "request timed out"
	case errors.Is(err, errUnsupported):
		return ErrIDUnsupported, errUnsupported.Error()
	case errors.Is(err, engine.ErrThreadNotFound):
		return ErrIDThreadNotFound, "ThreadNotFound"
	default:
		return ErrIDInternal, "internal error"
	}
}
