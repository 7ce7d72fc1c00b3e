// Package daptest provides a minimal DAP client for exercising the bridge in tests.
package daptest

import (
	"bufio"
	"fmt"
	"io"
	"net"

	"github.com/google/go-dap"
)

// Client is a DAP client over a single connection.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader
	seq    int
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn) *Client {
	return &Client{conn: conn, reader: bufio.NewReader(conn)}
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) newRequest(command string) dap.Request {
	c.seq++
	return dap.Request{
		ProtocolMessage: dap.ProtocolMessage{Seq: c.seq, Type: "request"},
		Command:         command,
	}
}

func (c *Client) send(m dap.Message) error {
	return dap.WriteProtocolMessage(c.conn, m)
}

// Seq returns the sequence number of the last request sent.
func (c *Client) Seq() int {
	return c.seq
}

// SendRaw writes a raw, already framed payload.
func (c *Client) SendRaw(b []byte) error {
	_, err := c.conn.Write(b)
	return err
}

// SendJSON frames body with a Content-Length header and writes it.
func (c *Client) SendJSON(body string) error {
	return c.SendRaw([]byte(fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(body), body)))
}

// InitializeRequest sends an 'initialize' request.
func (c *Client) InitializeRequest() error {
	return c.send(&dap.InitializeRequest{
		Request: c.newRequest("initialize"),
		Arguments: dap.InitializeRequestArguments{
			AdapterID:       "dapbridge",
			LinesStartAt1:   true,
			ColumnsStartAt1: true,
			PathFormat:      "path",
		},
	})
}

// StackTraceRequest sends a 'stackTrace' request.
func (c *Client) StackTraceRequest(threadID, startFrame, levels int) error {
	return c.send(&dap.StackTraceRequest{
		Request: c.newRequest("stackTrace"),
		Arguments: dap.StackTraceArguments{
			ThreadId:   threadID,
			StartFrame: startFrame,
			Levels:     levels,
		},
	})
}

// ThreadsRequest sends a 'threads' request.
func (c *Client) ThreadsRequest() error {
	return c.send(&dap.ThreadsRequest{Request: c.newRequest("threads")})
}

// ContinueRequest sends a 'continue' request.
func (c *Client) ContinueRequest(threadID int) error {
	return c.send(&dap.ContinueRequest{
		Request:   c.newRequest("continue"),
		Arguments: dap.ContinueArguments{ThreadId: threadID},
	})
}

// DisconnectRequest sends a 'disconnect' request.
func (c *Client) DisconnectRequest() error {
	return c.send(&dap.DisconnectRequest{Request: c.newRequest("disconnect")})
}

// ReadLine reads raw bytes up to and including the next newline.
func (c *Client) ReadLine() (string, error) {
	return c.reader.ReadString('\n')
}

// ReadRaw reads the content of the next message without decoding it.
func (c *Client) ReadRaw() ([]byte, error) {
	return dap.ReadBaseMessage(c.reader)
}

// ReadMessage reads the next protocol message.
func (c *Client) ReadMessage() (dap.Message, error) {
	return dap.ReadProtocolMessage(c.reader)
}

// GetInitializeResponse reads a protocol message from the connection
func (c *Client) GetInitializeResponse() (*dap.InitializeResponse, error) {
	return expect[*dap.InitializeResponse](c)
}

// GetStackTraceResponse reads a protocol message from the connection
func (c *Client) GetStackTraceResponse() (*dap.StackTraceResponse, error) {
	return expect[*dap.StackTraceResponse](c)
}

// GetThreadsResponse reads a protocol message from the connection
func (c *Client) GetThreadsResponse() (*dap.ThreadsResponse, error) {
	return expect[*dap.ThreadsResponse](c)
}

// GetDisconnectResponse reads a protocol message from the connection
func (c *Client) GetDisconnectResponse() (*dap.DisconnectResponse, error) {
	return expect[*dap.DisconnectResponse](c)
}

// GetErrorResponse reads a protocol message from the connection
func (c *Client) GetErrorResponse() (*dap.ErrorResponse, error) {
	return expect[*dap.ErrorResponse](c)
}

// ExpectEOF reads until the connection is closed by the server.
func (c *Client) ExpectEOF() error {
	m, err := dap.ReadProtocolMessage(c.reader)
	if err == nil {
		return fmt.Errorf("got %#v, want EOF", m)
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return nil
	}
	return err
}

func expect[T dap.Message](c *Client) (T, error) {
	var zero T
	m, err := dap.ReadProtocolMessage(c.reader)
	if err != nil {
		return zero, err
	}
	r, ok := m.(T)
	if !ok {
		return zero, fmt.Errorf("got %#v, want %T", m, zero)
	}
	return r, nil
}
