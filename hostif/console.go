package hostif

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/shlex"
)

const consoleHelp = `commands:
  status            print the Type-C status block
  config <byte>     apply a host control byte, e.g. config 0x82
  log               print and remove up to 12 state log entries
  alt <on|off>      select software toggling
  help              print this text`

// Exec runs one console command line against t and returns its output.
func Exec(t Target, line string) (string, error) {
	args, err := shlex.Split(line)
	if err != nil {
		return "", err
	}
	if len(args) == 0 {
		return "", nil
	}

	switch args[0] {
	case "status":
		st, err := t.TypeCStatus()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("control=0x%02x state=%d cc=0x%02x sink=%d", st[0], st[1], st[2], st[3]), nil

	case "config":
		if len(args) < 2 {
			return "", ErrShortRequest
		}
		c, err := strconv.ParseUint(args[1], 0, 8)
		if err != nil {
			return "", fmt.Errorf("hostif: control byte %q: %w", args[1], err)
		}
		if err := t.ConfigurePortType(uint8(c)); err != nil {
			return "", err
		}
		return "ok", nil

	case "log":
		b := t.DumpStateLog(nil)
		if len(b) == 0 {
			return "0 entries", nil
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "%d entries", b[0])
		for e := b[1:]; len(e) >= 6; e = e[6:] {
			fmt.Fprintf(&sb, "\n%5d.%03d %d",
				uint16(e[4])<<8|uint16(e[5]), uint16(e[2])<<8|uint16(e[3]), uint16(e[0])<<8|uint16(e[1]))
		}
		return sb.String(), nil

	case "alt":
		if len(args) < 2 {
			return "", ErrShortRequest
		}
		on, err := parseOnOff(args[1])
		if err != nil {
			return "", err
		}
		if err := t.SetAlternateModes(on); err != nil {
			return "", err
		}
		return "ok", nil

	case "help":
		return consoleHelp, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownCommand, args[0])
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "1", "true":
		return true, nil
	case "off", "0", "false":
		return false, nil
	}
	return false, fmt.Errorf("hostif: expected on or off, got %q", s)
}

// maxLine bounds console lines. Longer lines are dropped.
const maxLine = 256

// ErrLineTooLong is returned for a console line longer than maxLine bytes.
var ErrLineTooLong = errors.New("hostif: line too long")

// LineReader reads console lines. Like FrameReader it keeps a line cut short
// by a read error and completes it on the next call.
type LineReader struct {
	r    *bufio.Reader
	line []byte
	// skip drops the rest of a line found too long.
	skip bool
}

// NewLineReader returns a reader of console lines from r.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{r: bufio.NewReader(r)}
}

// Next returns the next line without its line ending.
func (l *LineReader) Next() (string, error) {
	for {
		b, err := l.r.ReadSlice('\n')
		if !l.skip {
			l.line = append(l.line, b...)
		}
		if err != nil && len(l.line) > maxLine {
			l.skip = true
			l.line = l.line[:0]
		}
		switch {
		case err == nil:
			long := l.skip || len(l.line) > maxLine
			s := strings.TrimRight(string(l.line), "\r\n")
			l.line = l.line[:0]
			l.skip = false
			if long {
				return "", ErrLineTooLong
			}
			return s, nil
		case errors.Is(err, bufio.ErrBufferFull):
		default:
			return "", err
		}
	}
}

// ServeConsole runs console commands read line by line from rw until the
// stream ends or ctx is done.
func ServeConsole(ctx context.Context, rw io.ReadWriter, t Target) error {
	return ServeLines(ctx, NewLineReader(rw), rw, t)
}

// ServeLines is ServeConsole with the lines read from lr. Links whose reads
// time out keep one LineReader and call ServeLines again after it returns
// nil.
func ServeLines(ctx context.Context, lr *LineReader, w io.Writer, t Target) error {
	for ctx.Err() == nil {
		line, err := lr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil && !errors.Is(err, ErrLineTooLong) {
			return err
		}

		var out string
		if err == nil {
			out, err = Exec(t, line)
		}
		if err != nil {
			out = "error: " + err.Error()
		}
		if out == "" {
			continue
		}
		if _, err := io.WriteString(w, out+"\n"); err != nil {
			return err
		}
	}
	return ctx.Err()
}
