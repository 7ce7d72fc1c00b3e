package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsConnectionClosedError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{io.EOF, true},
		{fmt.Errorf("read header: %w", io.EOF), true},
		{net.ErrClosed, true},
		{errors.New("write tcp 127.0.0.1:60000: broken pipe"), true},
		{&net.OpError{Op: "read", Err: errors.New("file already closed")}, true},
		{&net.OpError{Op: "dial", Err: errors.New("connection refused")}, false},
		{errors.New("invalid Content-Length"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsConnectionClosedError(tt.err), "%v", tt.err)
	}
}

func TestDialWithRetry(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	go func() {
		c, err := l.Accept()
		if err == nil {
			_ = c.Close()
		}
	}()

	conn, err := DialWithRetry(context.Background(), logr.Discard(), l.Addr().String(), 3, time.Millisecond)
	require.NoError(t, err)
	_ = conn.Close()
}

func TestDialWithRetryGivesUp(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	_, err = DialWithRetry(context.Background(), logr.Discard(), addr, 2, time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
}
