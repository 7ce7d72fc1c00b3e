package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-delve/delve/service/rpc2"
	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/phuongdnguyen/dapbridge/pkg/affinity"
	"github.com/phuongdnguyen/dapbridge/pkg/backtrace"
	"github.com/phuongdnguyen/dapbridge/pkg/config"
	"github.com/phuongdnguyen/dapbridge/pkg/engine/delve"
	"github.com/phuongdnguyen/dapbridge/pkg/frameid"
	"github.com/phuongdnguyen/dapbridge/pkg/handlers"
	"github.com/phuongdnguyen/dapbridge/pkg/source"
	"github.com/phuongdnguyen/dapbridge/pkg/utils"
)

func serve(ctx context.Context, opts *config.Options, log logr.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.Launch {
		stopDelve, err := startDelve(opts, log)
		if err != nil {
			return err
		}
		defer stopDelve()
	}

	delveConn, err := utils.DialWithRetry(ctx, log, opts.DelveAddr, 10, 500*time.Millisecond)
	if err != nil {
		return fmt.Errorf("connect to delve: %w", err)
	}
	client := rpc2.NewClientFromConn(delveConn)
	defer func() {
		if err := client.Disconnect(false); err != nil && !utils.IsConnectionClosedError(err) {
			log.Error(err, "Error disconnecting from delve")
		}
	}()

	eng := delve.New(client, opts.StackChunk)
	ids := frameid.New(frameid.DefaultCapacity)
	resolver := source.NewResolver(log)
	resolver.DeemphasizeRuntime = opts.DeemphasizeRuntime
	if wd, err := os.Getwd(); err == nil {
		resolver.WorkingDir = wd
	}
	walker := backtrace.NewWalker(eng, ids, resolver, log)
	walker.MaxDepth = opts.MaxDepth

	exec := affinity.New(log, 64)
	srv := handlers.NewServer(handlers.Config{
		Executor:       exec,
		Engine:         eng,
		Walker:         walker,
		FrameIDs:       ids,
		DelveAddr:      opts.DelveAddr,
		RequestTimeout: opts.RequestTimeout,
	}, log)

	l, err := net.Listen("tcp", opts.Listen)
	if err != nil {
		return fmt.Errorf("could not start dapbridge: %w", err)
	}
	log.Info("Starting dapbridge", "listen", l.Addr().String(), "delve", opts.DelveAddr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return exec.Run(gctx)
	})
	g.Go(func() error {
		return srv.Serve(gctx, l)
	})
	err = g.Wait()
	log.Info("Shutting down...")
	return err
}
