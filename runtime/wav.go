package runtime

import (
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/sopimagenta/ganworker/types"
)

// WAV format of rendered notes.
const (
	wavBitDepth    = 16
	wavChannels    = 1
	wavPCMFormat   = 1
	wavContentType = "audio/wav"
)

// WriteWAV writes a as a mono 16-bit PCM WAV file and returns the file size.
func WriteWAV(path string, a types.Audio, sampleRate uint32) (int64, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create wav: %w", err)
	}

	buffer := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: wavChannels, SampleRate: int(sampleRate)},
		SourceBitDepth: wavBitDepth,
		Data:           make([]int, len(a.Samples)),
	}
	for i, s := range a.Samples {
		buffer.Data[i] = int(s)
	}

	enc := wav.NewEncoder(file, int(sampleRate), wavBitDepth, wavChannels, wavPCMFormat)
	if err := enc.Write(buffer); err != nil {
		_ = file.Close()
		return 0, fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		_ = file.Close()
		return 0, fmt.Errorf("finalize wav: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return 0, fmt.Errorf("stat wav: %w", err)
	}
	if err := file.Close(); err != nil {
		return 0, fmt.Errorf("close wav: %w", err)
	}
	return info.Size(), nil
}

// ReadWAV reads a mono 16-bit PCM WAV file written by WriteWAV.
func ReadWAV(path string) (types.Audio, uint32, error) {
	file, err := os.Open(path)
	if err != nil {
		return types.Audio{}, 0, fmt.Errorf("open wav: %w", err)
	}
	defer func() { _ = file.Close() }()

	dec := wav.NewDecoder(file)
	if !dec.IsValidFile() {
		return types.Audio{}, 0, fmt.Errorf("%s is not a valid WAV file", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return types.Audio{}, 0, fmt.Errorf("decode wav: %w", err)
	}
	if dec.BitDepth != wavBitDepth || dec.NumChans != wavChannels {
		return types.Audio{}, 0, fmt.Errorf("unsupported WAV format: %d-bit, %d channels", dec.BitDepth, dec.NumChans)
	}

	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int16(v)
	}
	return types.Audio{Samples: samples}, dec.SampleRate, nil
}
