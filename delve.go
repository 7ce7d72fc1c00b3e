package main

import (
	"fmt"
	"net"
	"os"

	"github.com/go-delve/delve/pkg/gobuild"
	"github.com/go-delve/delve/service"
	"github.com/go-delve/delve/service/debugger"
	"github.com/go-delve/delve/service/rpccommon"
	"github.com/go-logr/logr"

	"github.com/phuongdnguyen/dapbridge/pkg/config"
	"github.com/phuongdnguyen/dapbridge/pkg/utils"
)

// startDelve builds the package in the working directory and serves it from
// an in-process headless delve on opts.DelveAddr. The returned func stops the
// server and removes the binary.
func startDelve(opts *config.Options, log logr.Logger) (func(), error) {
	log = log.WithName("delve")

	workingDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("error getting working directory: %w", err)
	}
	bin, err := utils.BuildBinary([]string{}, opts.BuildFlags)
	if err != nil {
		return nil, err
	}
	log.Info("built binary", "path", bin)

	l, err := net.Listen("tcp", opts.DelveAddr)
	if err != nil {
		gobuild.Remove(bin)
		return nil, fmt.Errorf("listen for delve: %w", err)
	}

	debuggerConfig := debugger.Config{
		WorkingDir:           workingDir,
		Backend:              "default",
		Foreground:           false,
		CheckGoVersion:       true,
		DebugInfoDirectories: []string{},
		DisableASLR:          false,
	}
	server := rpccommon.NewServer(&service.Config{
		Listener: l,
		Debugger: debuggerConfig,
		// The bridge and proxied JSON-RPC clients each hold a connection.
		AcceptMulti: true,
		APIVersion:  2,
		ProcessArgs: []string{bin},
	})
	log.Info("Delve server configuration", "workingDir", debuggerConfig.WorkingDir, "backend", debuggerConfig.Backend, "binary", bin)

	if err := server.Run(); err != nil {
		_ = l.Close()
		gobuild.Remove(bin)
		return nil, fmt.Errorf("run delve server: %w", err)
	}
	log.Info("Delve headless server started", "addr", l.Addr().String())

	return func() {
		if err := server.Stop(); err != nil {
			log.Error(err, "Error stopping Delve server")
		}
		gobuild.Remove(bin)
		log.Info("Delve headless server stopped")
	}, nil
}
