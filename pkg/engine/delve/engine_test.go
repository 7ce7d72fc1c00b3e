package delve

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-delve/delve/service/api"
	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phuongdnguyen/dapbridge/pkg/backtrace"
	"github.com/phuongdnguyen/dapbridge/pkg/engine"
	"github.com/phuongdnguyen/dapbridge/pkg/frameid"
	"github.com/phuongdnguyen/dapbridge/pkg/source"
)

type fakeClient struct {
	stacks     map[int64][]api.Stackframe
	goroutines []*api.Goroutine
	err        error
	depths     []int
}

func (c *fakeClient) Stacktrace(goroutineID int64, depth int, _ api.StacktraceOptions, _ *api.LoadConfig) ([]api.Stackframe, error) {
	c.depths = append(c.depths, depth)
	if c.err != nil {
		return nil, c.err
	}
	frames, ok := c.stacks[goroutineID]
	if !ok {
		return nil, fmt.Errorf("unknown goroutine %d", goroutineID)
	}
	if len(frames) > depth+1 {
		frames = frames[:depth+1]
	}
	return frames, nil
}

func (c *fakeClient) ListGoroutines(start, count int) ([]*api.Goroutine, int, error) {
	if c.err != nil {
		return nil, 0, c.err
	}
	return c.goroutines, 0, nil
}

func makeFrames(n int) []api.Stackframe {
	frames := make([]api.Stackframe, n)
	for i := range frames {
		frames[i] = api.Stackframe{Location: api.Location{
			PC:       uint64(0x1000 + i),
			File:     fmt.Sprintf("/src/f%d.go", i),
			Line:     i + 1,
			Function: &api.Function{Name_: fmt.Sprintf("main.f%d", i)},
		}}
	}
	return frames
}

func walkAll(t *testing.T, s engine.Stack) []engine.Frame {
	t.Helper()
	var out []engine.Frame
	f, err := s.Newest()
	require.NoError(t, err)
	for f != nil {
		out = append(out, f)
		f, err = f.Older()
		require.NoError(t, err)
	}
	return out
}

func TestSelectThreadLoadsLazily(t *testing.T) {
	client := &fakeClient{stacks: map[int64][]api.Stackframe{7: makeFrames(23)}}
	e := New(client, 4)

	s, err := e.SelectThread(7)
	require.NoError(t, err)
	assert.Equal(t, 7, s.ThreadID())
	assert.Equal(t, []int{4}, client.depths)

	frames := walkAll(t, s)
	require.Len(t, frames, 23)
	assert.Equal(t, []int{4, 8, 16, 32}, client.depths)

	for i, f := range frames {
		assert.Equal(t, uint64(0x1000+i), f.PC())
		name, ok := f.Function()
		assert.True(t, ok)
		assert.Equal(t, fmt.Sprintf("main.f%d", i), name)
		sal, err := f.FindSAL()
		require.NoError(t, err)
		assert.Equal(t, i+1, sal.Line)
	}
}

func TestFullPageNeedsNoReload(t *testing.T) {
	client := &fakeClient{stacks: map[int64][]api.Stackframe{7: makeFrames(23)}}
	w := backtrace.NewWalker(New(client, 4), frameid.New(0), source.NewResolver(logr.Discard()), logr.Discard())

	// Delve answers depth 4 with 5 frames, which fills the page.
	body, err := w.Walk(backtrace.Request{ThreadID: 7, Levels: 5})
	require.NoError(t, err)
	assert.Len(t, body.StackFrames, 5)
	assert.Equal(t, []int{4}, client.depths)
}

func TestSelectThreadExactChunk(t *testing.T) {
	client := &fakeClient{stacks: map[int64][]api.Stackframe{1: makeFrames(5)}}
	s, err := New(client, 4).SelectThread(1)
	require.NoError(t, err)
	assert.Len(t, walkAll(t, s), 5)
	assert.Equal(t, []int{4, 8}, client.depths)
}

func TestSelectThreadUnknown(t *testing.T) {
	client := &fakeClient{stacks: map[int64][]api.Stackframe{}}
	_, err := New(client, 0).SelectThread(3)
	assert.ErrorIs(t, err, engine.ErrThreadNotFound)
}

func TestSelectThreadFault(t *testing.T) {
	client := &fakeClient{err: errors.New("connection is shut down")}
	_, err := New(client, 0).SelectThread(3)
	require.Error(t, err)
	assert.NotErrorIs(t, err, engine.ErrThreadNotFound)
}

func TestOlderFault(t *testing.T) {
	client := &fakeClient{stacks: map[int64][]api.Stackframe{1: makeFrames(10)}}
	s, err := New(client, 2).SelectThread(1)
	require.NoError(t, err)
	f, err := s.Newest()
	require.NoError(t, err)
	f, err = f.Older()
	require.NoError(t, err)
	f, err = f.Older()
	require.NoError(t, err)

	// The next frame is beyond the first chunk and needs another round trip.
	client.err = errors.New("connection is shut down")
	_, err = f.Older()
	assert.Error(t, err)
}

func TestNoActiveFrame(t *testing.T) {
	client := &fakeClient{stacks: map[int64][]api.Stackframe{2: {}}}
	s, err := New(client, 0).SelectThread(2)
	require.NoError(t, err)
	_, err = s.Newest()
	assert.ErrorIs(t, err, engine.ErrNoActiveFrame)
}

func TestSelectThreadProcessExited(t *testing.T) {
	client := &fakeClient{err: errors.New("Process 4242 has exited with status 0")}
	s, err := New(client, 0).SelectThread(1)
	require.NoError(t, err)
	assert.Equal(t, 1, s.ThreadID())
	_, err = s.Newest()
	assert.ErrorIs(t, err, engine.ErrNoActiveFrame)
}

func TestFindSALFailures(t *testing.T) {
	frames := []api.Stackframe{
		{Location: api.Location{PC: 1, File: "<autogenerated>", Line: 1}},
		{Location: api.Location{PC: 2}},
		{Location: api.Location{PC: 3, File: "/src/x.go", Line: 3}, Err: "could not read frame"},
	}
	client := &fakeClient{stacks: map[int64][]api.Stackframe{1: frames}}
	s, err := New(client, 0).SelectThread(1)
	require.NoError(t, err)

	all := walkAll(t, s)
	require.Len(t, all, 3)
	for _, f := range all {
		_, err := f.FindSAL()
		assert.Error(t, err)
		_, ok := f.Function()
		assert.False(t, ok)
	}
}

func TestThreads(t *testing.T) {
	client := &fakeClient{goroutines: []*api.Goroutine{
		{ID: 1, UserCurrentLoc: api.Location{Function: &api.Function{Name_: "main.main"}}},
		nil,
		{ID: 18},
	}}
	threads, err := New(client, 0).Threads()
	require.NoError(t, err)
	assert.Equal(t, []engine.Thread{
		{ID: 1, Name: "[Go 1] main.main"},
		{ID: 18, Name: "[Go 18] unknown"},
	}, threads)
}
