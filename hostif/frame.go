package hostif

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// Frame layout: length, payload, CRC16 of length and payload (big endian),
// sync byte. The length counts the whole frame and stays below the sync
// byte value.
const (
	frameHeaderSize  = 1
	frameTrailerSize = 3
	frameMin         = frameHeaderSize + frameTrailerSize
	FrameMax         = 96
	frameSync        = 0x7E
)

var (
	// ErrFrameTooLong is returned when writing a payload that doesn't fit in a
	// frame.
	ErrFrameTooLong = errors.New("hostif: frame too long")

	// ErrBadFrame is returned for frames with a wrong length, checksum or sync
	// byte. The reader resynchronizes on the next sync byte.
	ErrBadFrame = errors.New("hostif: bad frame")
)

// crc16 is the CCITT checksum used by Klipper style transports.
func crc16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		b ^= uint8(crc)
		b ^= b << 4
		b16 := uint16(b)
		crc = (b16<<8 | crc>>8) ^ (b16 >> 4) ^ (b16 << 3)
	}
	return crc
}

// AppendFrame appends payload p framed to b.
func AppendFrame(b, p []byte) ([]byte, error) {
	n := len(p) + frameMin
	if n > FrameMax {
		return b, ErrFrameTooLong
	}
	start := len(b)
	b = append(b, byte(n))
	b = append(b, p...)
	crc := crc16(b[start:])
	return append(b, byte(crc>>8), byte(crc), frameSync), nil
}

// FrameReader reads frames from a byte stream. A frame cut short by a read
// error, such as a serial read timeout, is kept and completed by the next
// call to Next.
type FrameReader struct {
	r    *bufio.Reader
	buf  [FrameMax]byte
	have int
}

// NewFrameReader returns a reader of frames from r.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReader(r)}
}

// Next returns the payload of the next frame. The payload is only valid
// until the following call. On ErrBadFrame the stream is skipped up to the
// next sync byte and Next may be called again.
func (f *FrameReader) Next() ([]byte, error) {
	for f.have == 0 {
		n, err := f.r.ReadByte()
		if err != nil {
			return nil, err
		}
		if n == frameSync {
			// Idle sync bytes between frames.
			continue
		}
		if n < frameMin || n > FrameMax {
			return nil, f.resync(fmt.Errorf("%w: length %d", ErrBadFrame, n))
		}
		f.buf[0] = n
		f.have = 1
	}

	n := int(f.buf[0])
	for f.have < n {
		m, err := f.r.Read(f.buf[f.have:n])
		f.have += m
		if err != nil {
			return nil, err
		}
	}
	f.have = 0

	body := f.buf[:n-frameTrailerSize]
	crc := uint16(f.buf[n-3])<<8 | uint16(f.buf[n-2])
	if f.buf[n-1] != frameSync {
		return nil, f.resync(fmt.Errorf("%w: no sync", ErrBadFrame))
	}
	if crc16(body) != crc {
		return nil, fmt.Errorf("%w: checksum", ErrBadFrame)
	}
	return body[frameHeaderSize:], nil
}

func (f *FrameReader) resync(err error) error {
	if _, rerr := f.r.ReadBytes(frameSync); rerr != nil {
		return rerr
	}
	return err
}
