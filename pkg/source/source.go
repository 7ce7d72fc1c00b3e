// Package source resolves frames to protocol source locations and names.
// Lookups are best effort: a frame without usable debug information simply
// has no source.
package source

import (
	"fmt"
	"path/filepath"

	"github.com/go-logr/logr"
	"github.com/google/go-dap"

	"github.com/phuongdnguyen/dapbridge/pkg/engine"
	"github.com/phuongdnguyen/dapbridge/pkg/locators"
)

// UnknownName is reported for frames whose function has no symbol.
const UnknownName = "unknown"

// Location is a resolved frame location.
type Location struct {
	Source *dap.Source
	Line   int
	// PresentationHint is "subtle" for runtime frames when de-emphasis is on.
	PresentationHint string
}

// Resolver converts engine SAL lookups into protocol sources.
type Resolver struct {
	log logr.Logger
	// DeemphasizeRuntime marks Go runtime frames with a "subtle" presentation hint.
	DeemphasizeRuntime bool
	// WorkingDir, when set together with DeemphasizeRuntime, marks sources of
	// dependencies outside it as "deemphasize".
	WorkingDir string
}

func NewResolver(log logr.Logger) *Resolver {
	return &Resolver{log: log.WithName("source")}
}

// Resolve looks up the frame's file and line. ok is false when the engine
// could not provide one; the failure is logged and never returned.
func (r *Resolver) Resolve(f engine.Frame) (Location, bool) {
	sal, err := safeSAL(f)
	if err != nil {
		r.log.V(1).Info("no source location for frame", "pc", f.PC(), "reason", err.Error())
		return Location{}, false
	}
	if sal.File == "" {
		r.log.V(1).Info("no source location for frame", "pc", f.PC(), "reason", "empty file")
		return Location{}, false
	}
	loc := Location{
		Source: &dap.Source{
			Name: filepath.Base(sal.File),
			Path: sal.File,
			// Resolve by path.
			SourceReference: 0,
		},
		Line: sal.Line,
	}
	if r.DeemphasizeRuntime {
		switch {
		case locators.IsRuntimeFile(sal.File):
			loc.PresentationHint = "subtle"
		case r.WorkingDir != "" && !locators.IsUserCodeFile(sal.File, r.WorkingDir):
			loc.Source.PresentationHint = "deemphasize"
		}
	}
	return loc, true
}

// safeSAL calls FindSAL, converting a panic in the engine into an error so
// that broken debug info cannot take the whole response down.
func safeSAL(f engine.Frame) (sal engine.SAL, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &panicError{value: p}
		}
	}()
	return f.FindSAL()
}

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("engine panic during line lookup: %v", e.value)
}

// Name returns the frame's function name, or UnknownName.
func Name(f engine.Frame) string {
	name, ok := f.Function()
	if !ok || name == "" {
		return UnknownName
	}
	return name
}
