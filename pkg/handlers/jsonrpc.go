package handlers

import (
	"bufio"
	"context"
	"io"
	"net"
	"time"

	"github.com/go-logr/logr"

	"github.com/phuongdnguyen/dapbridge/pkg/utils"
)

// proxyJSONRPC forwards a delve JSON-RPC client to the delve server unchanged.
func (s *Server) proxyJSONRPC(ctx context.Context, clientConn net.Conn, br *bufio.Reader, log logr.Logger) {
	delveConn, err := utils.DialWithRetry(ctx, log, s.DelveAddr, 3, time.Second)
	if err != nil {
		log.Error(err, "Error connecting to Delve server")
		return
	}
	defer func() {
		if err := delveConn.Close(); err != nil && !utils.IsConnectionClosedError(err) {
			log.Error(err, "Error closing delve connection")
		}
	}()

	if tcpConn, ok := delveConn.(*net.TCPConn); ok {
		if err := tcpConn.SetKeepAlive(true); err != nil {
			log.Error(err, "Error enable keep alive on delve connection")
		}
		if err := tcpConn.SetKeepAlivePeriod(30 * time.Second); err != nil {
			log.Error(err, "Error setting keep alive period on delve connection")
		}
	}

	// Channel to signal when one side closes
	done := make(chan struct{}, 2)
	pipe := func(direction string, dst io.Writer, src io.Reader) {
		defer func() { done <- struct{}{} }()
		if _, err := io.Copy(dst, src); err != nil {
			if utils.IsConnectionClosedError(err) {
				log.V(1).Info("connection closed normally", "direction", direction)
			} else {
				log.Error(err, "Error copying", "direction", direction)
			}
		}
	}
	go pipe("Client->Delve", delveConn, br)
	go pipe("Delve->Client", clientConn, delveConn)

	select {
	case <-done:
	case <-ctx.Done():
	}
}
