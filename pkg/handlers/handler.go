package handlers

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/phuongdnguyen/dapbridge/pkg/affinity"
	"github.com/phuongdnguyen/dapbridge/pkg/backtrace"
	"github.com/phuongdnguyen/dapbridge/pkg/engine"
	"github.com/phuongdnguyen/dapbridge/pkg/frameid"
)

// Config wires a Server to the debugger.
type Config struct {
	// Executor owns Engine, Walker and FrameIDs; every use of them is submitted to it.
	Executor *affinity.Executor
	Engine   engine.Engine
	Walker   *backtrace.Walker
	FrameIDs *frameid.Allocator
	// DelveAddr receives connections that do not speak DAP.
	DelveAddr string
	// RequestTimeout bounds how long a request waits for the executor. Zero waits forever.
	RequestTimeout time.Duration
}

// Server accepts DAP clients and answers their requests.
type Server struct {
	Config
	log logr.Logger
	wg  sync.WaitGroup
}

func NewServer(cfg Config, log logr.Logger) *Server {
	return &Server{Config: cfg, log: log.WithName("handlers")}
}

// Serve accepts connections on l until ctx is done, then closes l and waits
// for open connections to finish.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = l.Close()
	}()
	defer s.wg.Wait()

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Error(err, "Error accepting connection")
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.Handle(ctx, conn)
		}()
	}
}

// Handle serves one client connection. DAP traffic starts with a
// Content-Length header; anything else is proxied to delve as JSON-RPC.
func (s *Server) Handle(ctx context.Context, clientConn net.Conn) {
	log := s.log.WithValues("session", uuid.NewString(), "client", clientConn.RemoteAddr().String())
	log.Info("New client connected")

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-connCtx.Done()
		_ = clientConn.Close()
	}()

	// Wrap the connection in a buffered reader so we can peek without consuming
	br := bufio.NewReader(clientConn)
	firstByte, err := br.Peek(1)
	if err != nil {
		log.V(1).Info("failed to peek first byte", "error", err.Error())
		return
	}

	if firstByte[0] == 'C' {
		log.V(1).Info("Detected DAP protocol")
		s.serveDAP(connCtx, clientConn, br, log)
	} else {
		log.V(1).Info("Detected JSON-RPC protocol")
		s.proxyJSONRPC(connCtx, clientConn, br, log)
	}
	log.Info("Client disconnected")
}
