package pca

import (
	"bytes"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// archiveFile is the on-disk msgpack layout of an archive.
type archiveFile struct {
	Comp    Tensor    `msgpack:"comp"`
	StdDev  []float64 `msgpack:"stdev"`
	Layer   string    `msgpack:"layer"`
	Version *int      `msgpack:"version,omitempty"`
	ZComp   *Tensor   `msgpack:"z_comp,omitempty"`
	ZMean   *Tensor   `msgpack:"z_mean,omitempty"`
}

// Decode reads one msgpack archive from r and resolves its variant.
// A missing version or version 1 yields *Legacy; version 2 and later yield
// *Latent and require z_comp and z_mean.
func Decode(r io.Reader) (Archive, error) {
	var f archiveFile
	if err := msgpack.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: decode msgpack: %v", ErrInvalidArchive, err)
	}
	return resolve(&f)
}

// Unmarshal decodes an archive held in memory.
func Unmarshal(data []byte) (Archive, error) {
	return Decode(bytes.NewReader(data))
}

func resolve(f *archiveFile) (Archive, error) {
	c := Components{Comp: f.Comp, StdDev: f.StdDev, Layer: f.Layer}

	version := 1
	if f.Version != nil {
		version = *f.Version
	}
	switch {
	case version < 0:
		return nil, fmt.Errorf("%w: negative version %d", ErrInvalidArchive, version)
	case version < LatentVersion:
		return NewLegacy(c)
	}

	if f.ZComp == nil || f.ZMean == nil {
		return nil, fmt.Errorf("%w: version %d archive is missing z_comp or z_mean", ErrInvalidArchive, version)
	}
	return NewLatent(c, version, *f.ZComp, *f.ZMean)
}

// Encode writes a in the msgpack archive layout.
func Encode(w io.Writer, a Archive) error {
	base := a.Base()
	f := archiveFile{
		Comp:   base.Comp,
		StdDev: base.StdDev,
		Layer:  base.Layer,
	}
	if l, ok := a.(*Latent); ok {
		version := l.Version()
		zMean := Tensor{Shape: []int{1, len(l.ZMean)}, Data: l.ZMean[:]}
		f.Version = &version
		f.ZComp = &l.ZComp
		f.ZMean = &zMean
	}
	return msgpack.NewEncoder(w).Encode(&f)
}

// Marshal encodes a into a byte slice.
func Marshal(a Archive) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, a); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
