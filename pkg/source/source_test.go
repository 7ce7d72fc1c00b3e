package source

import (
	"errors"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phuongdnguyen/dapbridge/pkg/engine"
	"github.com/phuongdnguyen/dapbridge/pkg/engine/enginetest"
)

func newestFrame(t *testing.T, spec enginetest.FrameSpec) engine.Frame {
	t.Helper()
	e := enginetest.New(&enginetest.Thread{ID: 1, Frames: []enginetest.FrameSpec{spec}})
	stack, err := e.SelectThread(1)
	require.NoError(t, err)
	f, err := stack.Newest()
	require.NoError(t, err)
	return f
}

type panickingFrame struct {
	engine.Frame
}

func (panickingFrame) FindSAL() (engine.SAL, error) { panic("corrupt line table") }

func TestResolve(t *testing.T) {
	r := NewResolver(logr.Discard())

	tests := []struct {
		name     string
		spec     enginetest.FrameSpec
		wantOK   bool
		wantName string
		wantPath string
		wantLine int
	}{
		{
			name:     "resolved",
			spec:     enginetest.FrameSpec{PC: 0x10, File: "/src/app/main.go", Line: 42},
			wantOK:   true,
			wantName: "main.go",
			wantPath: "/src/app/main.go",
			wantLine: 42,
		},
		{
			name: "stripped binary",
			spec: enginetest.FrameSpec{PC: 0x10, SALErr: errors.New("no symbol table is loaded")},
		},
		{
			name: "no file",
			spec: enginetest.FrameSpec{PC: 0x10},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, ok := r.Resolve(newestFrame(t, tt.spec))
			assert.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				assert.Nil(t, loc.Source)
				assert.Zero(t, loc.Line)
				return
			}
			require.NotNil(t, loc.Source)
			assert.Equal(t, tt.wantName, loc.Source.Name)
			assert.Equal(t, tt.wantPath, loc.Source.Path)
			assert.Zero(t, loc.Source.SourceReference)
			assert.Equal(t, tt.wantLine, loc.Line)
			assert.Empty(t, loc.PresentationHint)
		})
	}
}

func TestResolveRecoversEnginePanic(t *testing.T) {
	r := NewResolver(logr.Discard())
	f := panickingFrame{Frame: newestFrame(t, enginetest.FrameSpec{PC: 0x20})}
	loc, ok := r.Resolve(f)
	assert.False(t, ok)
	assert.Nil(t, loc.Source)
}

func TestResolveDeemphasizesRuntime(t *testing.T) {
	r := NewResolver(logr.Discard())
	r.DeemphasizeRuntime = true

	loc, ok := r.Resolve(newestFrame(t, enginetest.FrameSpec{File: "runtime/proc.go", Line: 250}))
	require.True(t, ok)
	assert.Equal(t, "subtle", loc.PresentationHint)

	loc, ok = r.Resolve(newestFrame(t, enginetest.FrameSpec{File: "/src/app/main.go", Line: 1}))
	require.True(t, ok)
	assert.Empty(t, loc.PresentationHint)
}

func TestResolveDeemphasizesDependencies(t *testing.T) {
	r := NewResolver(logr.Discard())
	r.DeemphasizeRuntime = true
	r.WorkingDir = "/src/app"

	loc, ok := r.Resolve(newestFrame(t, enginetest.FrameSpec{File: "/home/u/go/pkg/mod/github.com/x/y@v1.0.0/y.go", Line: 3}))
	require.True(t, ok)
	assert.Equal(t, "deemphasize", loc.Source.PresentationHint)
	assert.Empty(t, loc.PresentationHint)

	loc, ok = r.Resolve(newestFrame(t, enginetest.FrameSpec{File: "/src/app/vendor/github.com/x/y/y.go", Line: 3}))
	require.True(t, ok)
	assert.Equal(t, "deemphasize", loc.Source.PresentationHint)

	loc, ok = r.Resolve(newestFrame(t, enginetest.FrameSpec{File: "/src/app/main.go", Line: 1}))
	require.True(t, ok)
	assert.Empty(t, loc.Source.PresentationHint)
}

func TestName(t *testing.T) {
	assert.Equal(t, "main.main", Name(newestFrame(t, enginetest.FrameSpec{Function: "main.main"})))
	assert.Equal(t, UnknownName, Name(newestFrame(t, enginetest.FrameSpec{})))
}
