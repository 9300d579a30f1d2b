package wire

import (
	"bufio"
	"io"
	"os"
	"unicode/utf8"

	"github.com/wippyai/bridge-runtime/errors"
)

// Reader decodes frames from the inbound stream.
//
// Reads block until the full requested byte count is available. A short
// read means the peer is gone: the peer-lost hook runs and must not
// return.
type Reader struct {
	r          io.Reader
	intSize    int
	onPeerLost func()
	buf        [MaxIntSize]byte
}

// NewReader creates a frame reader with the negotiated integer width.
// A nil onPeerLost installs the default hook, which exits the process
// with ExitStatusPeerLost and no diagnostics.
func NewReader(r io.Reader, intSize int, onPeerLost func()) (*Reader, error) {
	if intSize < MinIntSize || intSize > MaxIntSize {
		return nil, errors.InvalidInput(errors.PhaseTransport,
			"integer width must be between 1 and 8 bytes")
	}
	if onPeerLost == nil {
		onPeerLost = func() {
			// The peer has already reported the real cause of the
			// disconnect; keep stderr clean.
			os.Exit(ExitStatusPeerLost)
		}
	}
	return &Reader{r: r, intSize: intSize, onPeerLost: onPeerLost}, nil
}

// IntSize returns the negotiated integer width in bytes.
func (r *Reader) IntSize() int {
	return r.intSize
}

func (r *Reader) fill(p []byte) {
	if _, err := io.ReadFull(r.r, p); err != nil {
		r.onPeerLost()
		panic("wire: peer-lost hook returned")
	}
}

// ReadOpcode reads a single opcode byte.
func (r *Reader) ReadOpcode() byte {
	r.fill(r.buf[:1])
	return r.buf[0]
}

// ReadInt reads one fixed-width little-endian signed integer.
func (r *Reader) ReadInt() int64 {
	p := r.buf[:r.intSize]
	r.fill(p)
	var u uint64
	for i := r.intSize - 1; i >= 0; i-- {
		u = u<<8 | uint64(p[i])
	}
	shift := uint(64 - 8*r.intSize)
	return int64(u<<shift) >> shift
}

// ReadBytes reads a raw payload of the given length.
func (r *Reader) ReadBytes(n int64) ([]byte, error) {
	if n < 0 || n > MaxPayload {
		return nil, errors.New(errors.PhaseDecode, errors.KindInvalidInput).
			Detail("payload length %d out of range", n).
			Build()
	}
	if n == 0 {
		return nil, nil
	}
	p := make([]byte, n)
	r.fill(p)
	return p, nil
}

// Skip discards a payload of the given length. Used when a length
// exceeds a local limit: the bytes must still be consumed so the next
// frame starts where the sender put it.
func (r *Reader) Skip(n int64) {
	if _, err := io.CopyN(io.Discard, r.r, n); err != nil {
		r.onPeerLost()
		panic("wire: peer-lost hook returned")
	}
}

// ReadString reads a UTF-8 text payload of the given byte length.
func (r *Reader) ReadString(n int64) (string, error) {
	p, err := r.ReadBytes(n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(p) {
		return "", errors.InvalidUTF8(p)
	}
	return string(p), nil
}

// Writer encodes frames onto the outbound stream through a buffer.
// Errors are sticky: once a write fails, subsequent writes and Flush
// report the same failure.
type Writer struct {
	bw      *bufio.Writer
	intSize int
	buf     [MaxIntSize]byte
}

// NewWriter creates a frame writer with the negotiated integer width.
func NewWriter(w io.Writer, intSize int) (*Writer, error) {
	if intSize < MinIntSize || intSize > MaxIntSize {
		return nil, errors.InvalidInput(errors.PhaseTransport,
			"integer width must be between 1 and 8 bytes")
	}
	return &Writer{bw: bufio.NewWriter(w), intSize: intSize}, nil
}

// IntSize returns the negotiated integer width in bytes.
func (w *Writer) IntSize() int {
	return w.intSize
}

// WriteOpcode writes a single opcode byte.
func (w *Writer) WriteOpcode(op byte) error {
	if err := w.bw.WriteByte(op); err != nil {
		return errors.Transport("write opcode", err)
	}
	return nil
}

// CheckInt reports whether a value fits the negotiated width, without
// writing anything. Callers that produce reply integers validate them
// with this before any frame byte goes out, so an overflow can still be
// answered with an exception frame instead of truncating the stream.
func (w *Writer) CheckInt(v int64) error {
	if w.intSize < MaxIntSize {
		limit := int64(1) << uint(8*w.intSize-1)
		if v < -limit || v >= limit {
			return errors.Overflow(v, w.intSize)
		}
	}
	return nil
}

// WriteInt writes one fixed-width little-endian signed integer. Values
// outside the negotiated width are an overflow error.
func (w *Writer) WriteInt(v int64) error {
	if err := w.CheckInt(v); err != nil {
		return err
	}
	u := uint64(v)
	for i := 0; i < w.intSize; i++ {
		w.buf[i] = byte(u)
		u >>= 8
	}
	if _, err := w.bw.Write(w.buf[:w.intSize]); err != nil {
		return errors.Transport("write integer", err)
	}
	return nil
}

// WriteFrame writes an opcode byte followed by its integer argument.
func (w *Writer) WriteFrame(op byte, arg int64) error {
	if err := w.WriteOpcode(op); err != nil {
		return err
	}
	return w.WriteInt(arg)
}

// WriteBytes writes a raw payload.
func (w *Writer) WriteBytes(p []byte) error {
	if _, err := w.bw.Write(p); err != nil {
		return errors.Transport("write payload", err)
	}
	return nil
}

// Flush forces buffered frames onto the stream. Must be called before
// blocking on the peer.
func (w *Writer) Flush() error {
	if err := w.bw.Flush(); err != nil {
		return errors.Transport("flush", err)
	}
	return nil
}
