// Package hostif exposes a Type-C port to a host over a byte stream: a
// binary command set in checksummed frames and a line oriented text console
// for the same commands.
package hostif

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/womat/debug"
)

// Commands.
const (
	CmdGetTypeCStatus    = 0x10
	CmdConfigurePortType = 0x11
	CmdReadStateLog      = 0x12
	CmdSetAlternateModes = 0x13
)

// Response status bytes.
const (
	StatusOK    = 0x00
	StatusError = 0x01
)

var (
	// ErrUnknownCommand is returned for a command byte no handler exists for.
	ErrUnknownCommand = errors.New("hostif: unknown command")

	// ErrShortRequest is returned when a command lacks its arguments.
	ErrShortRequest = errors.New("hostif: short request")
)

// Target is the port the host talks to. Implementations are called from the
// goroutine serving the host and must synchronize with the port themselves.
type Target interface {
	TypeCStatus() ([4]byte, error)
	ConfigurePortType(control uint8) error
	SetAlternateModes(on bool) error
	DumpStateLog(b []byte) []byte
}

// Handle runs the request req against t and appends the response to resp.
// The response starts with the command byte. Unknown and malformed requests,
// and status reads that fail, return an error and no response.
func Handle(t Target, req, resp []byte) ([]byte, error) {
	if len(req) == 0 {
		return resp, ErrShortRequest
	}
	cmd := req[0]
	switch cmd {
	case CmdGetTypeCStatus:
		st, err := t.TypeCStatus()
		if err != nil {
			return resp, err
		}
		return append(append(resp, cmd), st[:]...), nil

	case CmdConfigurePortType:
		if len(req) < 2 {
			return resp, ErrShortRequest
		}
		return append(resp, cmd, result(t.ConfigurePortType(req[1]))), nil

	case CmdReadStateLog:
		return t.DumpStateLog(append(resp, cmd)), nil

	case CmdSetAlternateModes:
		if len(req) < 2 {
			return resp, ErrShortRequest
		}
		return append(resp, cmd, result(t.SetAlternateModes(req[1] != 0))), nil
	}
	return resp, fmt.Errorf("%w 0x%02x", ErrUnknownCommand, cmd)
}

func result(err error) byte {
	if err != nil {
		debug.ErrorLog.Printf("hostif: %v", err)
		return StatusError
	}
	return StatusOK
}

// Serve answers framed requests read from rw until the stream ends or ctx is
// done. Requests that fail are answered with the command byte with its top
// bit set.
func Serve(ctx context.Context, rw io.ReadWriter, t Target) error {
	return ServeFrames(ctx, NewFrameReader(rw), rw, t)
}

// ServeFrames is Serve with the requests read from fr. Links whose reads
// time out keep one FrameReader and call ServeFrames again after it returns
// nil, so that a request split by a timeout is still answered.
func ServeFrames(ctx context.Context, fr *FrameReader, w io.Writer, t Target) error {
	var resp, out []byte
	for ctx.Err() == nil {
		req, err := fr.Next()
		switch {
		case errors.Is(err, ErrBadFrame), errors.Is(err, io.ErrUnexpectedEOF):
			debug.DebugLog.Printf("hostif: %v", err)
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return err
		}

		resp, err = Handle(t, req, resp[:0])
		if err != nil {
			debug.DebugLog.Printf("hostif: % x: %v", req, err)
			var cmd byte
			if len(req) > 0 {
				cmd = req[0]
			}
			resp = append(resp[:0], cmd|0x80)
		}
		if out, err = AppendFrame(out[:0], resp); err != nil {
			return err
		}
		if _, err := w.Write(out); err != nil {
			return err
		}
	}
	return ctx.Err()
}
