package handlers

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"

	"github.com/go-logr/logr"
	"github.com/google/go-dap"

	"github.com/phuongdnguyen/dapbridge/pkg/utils"
)

type session struct {
	conn net.Conn
	log  logr.Logger
	seq  int
}

func (ss *session) send(resp dap.ResponseMessage) error {
	ss.seq++
	resp.GetResponse().Seq = ss.seq
	return dap.WriteProtocolMessage(ss.conn, resp)
}

// serveDAP answers requests from one DAP client in order until the client
// disconnects or the stream breaks.
func (s *Server) serveDAP(ctx context.Context, conn net.Conn, br *bufio.Reader, log logr.Logger) {
	ss := &session{conn: conn, log: log}
	for {
		msg, err := dap.ReadProtocolMessage(br)
		if err != nil {
			var fieldErr *dap.DecodeProtocolMessageFieldError
			if errors.As(err, &fieldErr) {
				if !s.rejectUndecodable(ss, fieldErr) {
					return
				}
				continue
			}
			if utils.IsConnectionClosedError(err) {
				log.V(1).Info("DAP stream closed")
			} else {
				log.Error(err, "Error reading DAP message")
			}
			return
		}

		req, ok := msg.(dap.RequestMessage)
		if !ok {
			log.V(1).Info("ignoring non-request message", "type", msg)
			continue
		}
		r := req.GetRequest()
		log.V(1).Info("request", "command", r.Command, "seq", r.Seq)

		resp := s.dispatch(ctx, req)
		if err := ss.send(resp); err != nil {
			log.Error(err, "Error writing DAP response", "command", r.Command)
			return
		}
		if r.Command == "disconnect" {
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, req dap.RequestMessage) dap.ResponseMessage {
	r := req.GetRequest()
	handler, ok := requestTable[r.Command]
	if !ok {
		return newErrorResponse(r, errUnsupported)
	}

	if s.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.RequestTimeout)
		defer cancel()
	}
	resp, err := handler(s, ctx, req)
	if err != nil {
		if !errors.Is(err, errUnsupported) {
			s.log.Info("request failed", "command", r.Command, "error", err.Error())
		}
		return newErrorResponse(r, err)
	}
	return resp
}

// rejectUndecodable answers a request whose command go-dap does not know. It
// reports false when the session cannot continue.
func (s *Server) rejectUndecodable(ss *session, fieldErr *dap.DecodeProtocolMessageFieldError) bool {
	if !isUnknownCommand(fieldErr) {
		ss.log.V(1).Info("ignoring undecodable message", "error", fieldErr.Error())
		return true
	}
	req := &dap.Request{
		ProtocolMessage: dap.ProtocolMessage{Seq: fieldErr.Seq, Type: "request"},
		Command:         fieldErr.FieldValue,
	}
	if err := ss.send(newErrorResponse(req, errUnsupported)); err != nil {
		ss.log.Error(err, "Error writing DAP response", "command", req.Command)
		return false
	}
	return true
}

// isUnknownCommand reports whether fieldErr names a request command go-dap
// cannot decode. go-dap reports the sub type as "Request".
func isUnknownCommand(fieldErr *dap.DecodeProtocolMessageFieldError) bool {
	return strings.EqualFold(fieldErr.SubType, "request") && fieldErr.FieldName == "command"
}
