package ipc

import (
	"encoding/binary"
	"math"
	"slices"

	"github.com/sopimagenta/ganworker/types"
)

// Buffer is a growable byte buffer for little-endian message encoding.
type Buffer struct {
	data []byte
}

// Bytes returns the accumulated encoded bytes.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Len returns the number of bytes written so far.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Reset clears the buffer for reuse.
func (b *Buffer) Reset() {
	b.data = b.data[:0]
}

// WriteUint8 appends a single byte.
func (b *Buffer) WriteUint8(v uint8) {
	b.data = append(b.data, v)
}

// WriteUint32 appends a little-endian uint32.
func (b *Buffer) WriteUint32(v uint32) {
	b.data = binary.LittleEndian.AppendUint32(b.data, v)
}

// WriteInt32 appends a little-endian int32.
func (b *Buffer) WriteInt32(v int32) {
	b.WriteUint32(uint32(v))
}

// WriteCount appends a count.
func (b *Buffer) WriteCount(n int) {
	b.WriteUint32(uint32(n))
}

// WriteFloat64 appends a little-endian IEEE-754 float64.
func (b *Buffer) WriteFloat64(v float64) {
	b.data = binary.LittleEndian.AppendUint64(b.data, math.Float64bits(v))
}

// WriteFloat64s appends each value of vs.
func (b *Buffer) WriteFloat64s(vs []float64) {
	for _, v := range vs {
		b.WriteFloat64(v)
	}
}

// WriteZ appends a latent code.
func (b *Buffer) WriteZ(z types.Z) {
	b.data = slices.Grow(b.data, ZBytes)
	for _, v := range z {
		b.WriteFloat64(v)
	}
}

// WriteString appends a size-prefixed UTF-8 string.
func (b *Buffer) WriteString(s string) {
	b.WriteUint32(uint32(len(s)))
	b.data = append(b.data, s...)
}

// WriteAudio appends an audio-size field followed by the PCM samples.
func (b *Buffer) WriteAudio(a types.Audio) {
	b.WriteUint32(uint32(a.ByteSize()))
	for _, s := range a.Samples {
		b.data = binary.LittleEndian.AppendUint16(b.data, uint16(s))
	}
}
