// Package ipc implements the framed binary protocol spoken between the host
// and the worker over a duplex byte stream.
//
// Every message is a one-byte tag followed by a tag-specific payload. Payload
// lengths are either constant or given by a count/size field earlier in the
// same message; the decoder never guesses a length. All multi-byte values are
// little-endian.
package ipc

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"unicode/utf8"

	"github.com/sopimagenta/ganworker/types"
)

// Primitive sizes in bytes.
const (
	TagSize       = 1
	CountSize     = 4
	IntSize       = 4
	PitchSize     = 4
	Float64Size   = 8
	AudioSizeSize = 4
	ZBytes        = types.ZSize * Float64Size
	InfoSize      = 8
)

// Default decoder limits.
const (
	// DefaultMaxCount bounds batch counts.
	DefaultMaxCount = 4096
	// DefaultMaxEdits bounds per-item edit counts.
	DefaultMaxEdits = 1 << 16
	// DefaultMaxPathSize bounds size-prefixed strings.
	DefaultMaxPathSize = 64 * 1024
	// DefaultMaxAudioSize bounds a single audio blob (256 MiB).
	DefaultMaxAudioSize = 256 * 1024 * 1024
)

// FrameErrorKind classifies decoding errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates the stream ended or failed mid-message.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates a count or size above the decoder limits.
	FrameErrorTooLarge
	// FrameErrorUnknownTag indicates a tag with no known meaning.
	FrameErrorUnknownTag
	// FrameErrorDecode indicates a fully read payload with invalid content.
	FrameErrorDecode
)

// String returns the kind name used in logs.
func (k FrameErrorKind) String() string {
	switch k {
	case FrameErrorPartial:
		return "partial"
	case FrameErrorTooLarge:
		return "too_large"
	case FrameErrorUnknownTag:
		return "unknown_tag"
	case FrameErrorDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// FrameError represents a protocol decoding error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFatal returns true if message boundaries can no longer be trusted.
// Decode errors are raised only after the whole payload was consumed, so the
// stream is still aligned on the next tag.
func (e *FrameError) IsFatal() bool {
	return e.Kind != FrameErrorDecode
}

// IsFatalFrameError returns true if the error is a fatal frame error.
func IsFatalFrameError(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.IsFatal()
	}
	return false
}

// Limits bounds the counts and sizes a Decoder accepts.
type Limits struct {
	MaxCount     uint32
	MaxEdits     uint32
	MaxPathSize  uint32
	MaxAudioSize uint32
}

// DefaultLimits returns the default decoder limits.
func DefaultLimits() Limits {
	return Limits{
		MaxCount:     DefaultMaxCount,
		MaxEdits:     DefaultMaxEdits,
		MaxPathSize:  DefaultMaxPathSize,
		MaxAudioSize: DefaultMaxAudioSize,
	}
}

// Decoder reads protocol primitives from a stream.
// Every read blocks until exactly the requested number of bytes is available.
type Decoder struct {
	reader *bufio.Reader
	limits Limits
	scratch [Float64Size]byte
}

// NewDecoder creates a decoder with default limits.
func NewDecoder(r io.Reader) *Decoder {
	return NewDecoderWithLimits(r, DefaultLimits())
}

// NewDecoderWithLimits creates a decoder with custom limits.
func NewDecoderWithLimits(r io.Reader, limits Limits) *Decoder {
	return &Decoder{reader: bufio.NewReader(r), limits: limits}
}

// Limits returns the decoder limits.
func (d *Decoder) Limits() Limits {
	return d.limits
}

// ReadTag reads the tag opening the next message.
//
// Errors:
//   - io.EOF: stream ended cleanly between messages
//   - *FrameError with Kind=FrameErrorPartial: read failed
func (d *Decoder) ReadTag() (Tag, error) {
	b, err := d.reader.ReadByte()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, io.EOF
		}
		return 0, &FrameError{Kind: FrameErrorPartial, Msg: "failed to read tag", Err: err}
	}
	return Tag(b), nil
}

// ExpectTag reads an outbound tag and fails unless it equals want.
func (d *Decoder) ExpectTag(want Tag) error {
	got, err := d.ReadTag()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &FrameError{Kind: FrameErrorPartial, Msg: fmt.Sprintf("stream closed waiting for %s", OutTagLabel(want)), Err: io.ErrUnexpectedEOF}
		}
		return err
	}
	if got != want {
		return &FrameError{Kind: FrameErrorUnknownTag, Msg: fmt.Sprintf("expected %s, got %s", OutTagLabel(want), OutTagLabel(got))}
	}
	return nil
}

// readFull reads exactly len(buf) bytes. Any shortfall is a partial frame.
func (d *Decoder) readFull(buf []byte, what string) error {
	if _, err := io.ReadFull(d.reader, buf); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return &FrameError{Kind: FrameErrorPartial, Msg: "truncated " + what, Err: err}
	}
	return nil
}

// ReadUint8 reads one byte.
func (d *Decoder) ReadUint8(what string) (uint8, error) {
	if err := d.readFull(d.scratch[:1], what); err != nil {
		return 0, err
	}
	return d.scratch[0], nil
}

// ReadUint32 reads a little-endian uint32.
func (d *Decoder) ReadUint32(what string) (uint32, error) {
	if err := d.readFull(d.scratch[:4], what); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(d.scratch[:4]), nil
}

// ReadInt32 reads a little-endian int32.
func (d *Decoder) ReadInt32(what string) (int32, error) {
	v, err := d.ReadUint32(what)
	return int32(v), err
}

// ReadFloat64 reads a little-endian IEEE-754 float64.
func (d *Decoder) ReadFloat64(what string) (float64, error) {
	if err := d.readFull(d.scratch[:8], what); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(d.scratch[:8])), nil
}

// ReadFloat64s reads n float64 values.
func (d *Decoder) ReadFloat64s(n int, what string) ([]float64, error) {
	out := make([]float64, n)
	for i := range out {
		v, err := d.ReadFloat64(what)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// ReadZ reads a latent code.
func (d *Decoder) ReadZ() (types.Z, error) {
	var raw [ZBytes]byte
	var z types.Z
	if err := d.readFull(raw[:], "latent code"); err != nil {
		return z, err
	}
	for i := range z {
		z[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*Float64Size:]))
	}
	return z, nil
}

// ReadCount reads a batch count and enforces MaxCount.
func (d *Decoder) ReadCount() (int, error) {
	n, err := d.ReadUint32("count")
	if err != nil {
		return 0, err
	}
	if n > d.limits.MaxCount {
		return 0, &FrameError{Kind: FrameErrorTooLarge, Msg: fmt.Sprintf("count %d exceeds maximum %d", n, d.limits.MaxCount)}
	}
	return int(n), nil
}

// ReadEditCount reads an edit-list length and enforces MaxEdits.
func (d *Decoder) ReadEditCount() (int, error) {
	n, err := d.ReadUint32("edit count")
	if err != nil {
		return 0, err
	}
	if n > d.limits.MaxEdits {
		return 0, &FrameError{Kind: FrameErrorTooLarge, Msg: fmt.Sprintf("edit count %d exceeds maximum %d", n, d.limits.MaxEdits)}
	}
	return int(n), nil
}

// ReadString reads a size-prefixed UTF-8 string.
// Invalid UTF-8 is reported after the bytes are consumed (non-fatal).
func (d *Decoder) ReadString(what string) (string, error) {
	n, err := d.ReadUint32(what + " size")
	if err != nil {
		return "", err
	}
	if n > d.limits.MaxPathSize {
		return "", &FrameError{Kind: FrameErrorTooLarge, Msg: fmt.Sprintf("%s size %d exceeds maximum %d", what, n, d.limits.MaxPathSize)}
	}
	buf := make([]byte, n)
	if err := d.readFull(buf, what); err != nil {
		return "", err
	}
	if !utf8.Valid(buf) {
		return "", &FrameError{Kind: FrameErrorDecode, Msg: what + " is not valid UTF-8"}
	}
	return string(buf), nil
}

// ReadAudio reads an audio-size field followed by that many bytes of PCM.
func (d *Decoder) ReadAudio() (types.Audio, error) {
	size, err := d.ReadUint32("audio size")
	if err != nil {
		return types.Audio{}, err
	}
	if size > d.limits.MaxAudioSize {
		return types.Audio{}, &FrameError{Kind: FrameErrorTooLarge, Msg: fmt.Sprintf("audio size %d exceeds maximum %d", size, d.limits.MaxAudioSize)}
	}
	raw := make([]byte, size)
	if err := d.readFull(raw, "audio"); err != nil {
		return types.Audio{}, err
	}
	if size%2 != 0 {
		return types.Audio{}, &FrameError{Kind: FrameErrorDecode, Msg: fmt.Sprintf("audio size %d is not a whole number of samples", size)}
	}
	samples := make([]int16, size/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return types.Audio{Samples: samples}, nil
}

// Encoder writes whole messages to a stream.
// A message is assembled in memory, written in one piece and flushed, so a tag
// is always immediately followed by its full payload.
type Encoder struct {
	writer *bufio.Writer
	buf    Buffer
}

// NewEncoder creates an encoder.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{writer: bufio.NewWriter(w)}
}

// Send encodes m, writes it and flushes the stream.
func (e *Encoder) Send(m Message) error {
	e.buf.Reset()
	e.buf.WriteUint8(uint8(m.Tag()))
	m.AppendPayload(&e.buf)
	if _, err := e.writer.Write(e.buf.Bytes()); err != nil {
		return fmt.Errorf("write %s message: %w", MessageName(m), err)
	}
	if err := e.writer.Flush(); err != nil {
		return fmt.Errorf("flush %s message: %w", MessageName(m), err)
	}
	return nil
}
