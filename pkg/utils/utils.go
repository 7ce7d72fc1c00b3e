package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/go-delve/delve/pkg/gobuild"
	"github.com/go-logr/logr"
)

// IsConnectionClosedError checks if an error is due to a closed network connection
// This helps distinguish between normal connection closes and actual errors
func IsConnectionClosedError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}

	// Common patterns for connection closed errors
	closedPatterns := []string{
		"use of closed network connection",
		"connection reset by peer",
		"broken pipe",
		"io: read/write on closed pipe",
	}
	errStr := err.Error()
	for _, pattern := range closedPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && (opErr.Op == "read" || opErr.Op == "write") && opErr.Err != nil {
		return strings.Contains(opErr.Err.Error(), "closed")
	}
	return false
}

// DialWithRetry attempts to connect to addr, waiting delay between attempts
func DialWithRetry(ctx context.Context, log logr.Logger, addr string, maxRetries int, delay time.Duration) (net.Conn, error) {
	var lastErr error
	dialer := net.Dialer{Timeout: 10 * time.Second}

	for i := 0; i < maxRetries; i++ {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}

		lastErr = err
		log.Info("Failed to connect", "addr", addr, "attempt", i+1, "maxRetries", maxRetries, "error", err.Error())

		if i < maxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return nil, fmt.Errorf("failed to connect to %s after %d attempts: %w", addr, maxRetries, lastErr)
}

// BuildBinary builds the packages in the working directory with debug
// information and returns the path of the produced binary
func BuildBinary(pkgs []string, buildFlags string) (string, error) {
	debugname := gobuild.DefaultDebugBinaryPath("__dapbridge_debug_bin")
	if err := gobuild.GoBuild(debugname, pkgs, buildFlags); err != nil {
		gobuild.Remove(debugname)
		return "", fmt.Errorf("build debug binary: %w", err)
	}
	return debugname, nil
}
