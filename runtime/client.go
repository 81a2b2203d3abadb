package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sopimagenta/ganworker/ipc"
	"github.com/sopimagenta/ganworker/metrics"
	"github.com/sopimagenta/ganworker/types"
)

var (
	// ErrBatchFailed is returned when the worker answers a synthesis request
	// with an empty audio reply (an item used an untrained pitch, or the
	// archive cannot serve edit-based synthesis).
	ErrBatchFailed = errors.New("synthesis batch failed")
	// ErrNoComponents is returned by SetAmplitudes before any archive was
	// loaded through this client.
	ErrNoComponents = errors.New("no PCA components loaded")
	// ErrAmplitudeLength is returned when an amplitude vector does not match
	// the component count of the loaded archive.
	ErrAmplitudeLength = errors.New("amplitude vector length does not match component count")
	// ErrClientBroken is returned after a framing error left the stream in an
	// unknown position.
	ErrClientBroken = errors.New("worker stream is no longer usable")
)

// Client speaks the worker protocol over one duplex stream.
// Requests are serialized; every method blocks until the reply arrives.
type Client struct {
	mu         sync.Mutex
	stream     io.ReadWriteCloser
	dec        *ipc.Decoder
	enc        *ipc.Encoder
	info       types.AudioInfo
	components int
	broken     bool
	collector  *metrics.Collector
}

// Handshake reads the worker's init message from stream and returns a client.
func Handshake(stream io.ReadWriteCloser, limits ipc.Limits, collector *metrics.Collector) (*Client, error) {
	c := &Client{
		stream:     stream,
		dec:        ipc.NewDecoderWithLimits(stream, limits),
		enc:        ipc.NewEncoder(stream),
		components: -1,
		collector:  collector,
	}
	if err := c.dec.ExpectTag(ipc.OutTagInit); err != nil {
		return nil, fmt.Errorf("worker handshake: %w", err)
	}
	init, err := ipc.DecodeInit(c.dec)
	if err != nil {
		return nil, fmt.Errorf("worker handshake: %w", err)
	}
	c.info = init.Info
	return c, nil
}

// Info returns the audio format announced at handshake.
func (c *Client) Info() types.AudioInfo {
	return c.info
}

// ComponentCount returns the component count of the last successful load,
// or false if nothing was loaded through this client.
func (c *Client) ComponentCount() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.components, c.components >= 0
}

// Close closes the stream. A worker on the other end sees end-of-stream and
// exits cleanly.
func (c *Client) Close() error {
	return c.stream.Close()
}

// RandZ asks for n random latent codes.
func (c *Client) RandZ(ctx context.Context, n int) ([]types.Z, error) {
	var zs []types.Z
	err := c.roundTrip(ctx, &ipc.RandZRequest{Count: n}, ipc.OutTagZ, func() error {
		res, err := ipc.DecodeZResult(c.dec)
		if err != nil {
			return err
		}
		zs = res.Zs
		return nil
	})
	return zs, err
}

// SlerpZ interpolates between two codes.
func (c *Client) SlerpZ(ctx context.Context, z0, z1 types.Z, amount float64) (types.Z, error) {
	var z types.Z
	err := c.roundTrip(ctx, &ipc.SlerpZRequest{Z0: z0, Z1: z1, Amount: amount}, ipc.OutTagZ, func() error {
		res, err := ipc.DecodeZResult(c.dec)
		if err != nil {
			return err
		}
		if len(res.Zs) != 1 {
			return fmt.Errorf("slerp returned %d codes, want 1", len(res.Zs))
		}
		z = res.Zs[0]
		return nil
	})
	return z, err
}

// GenAudio synthesizes one note per item. See Synthesize for the result
// shape.
func (c *Client) GenAudio(ctx context.Context, items []ipc.GenAudioItem) ([]types.AudioItem, error) {
	return c.synthesize(ctx, &ipc.GenAudioRequest{Items: items}, len(items))
}

// SynthesizeNoZ synthesizes one note per item from PCA edits.
func (c *Client) SynthesizeNoZ(ctx context.Context, items []ipc.EditItem) ([]types.AudioItem, error) {
	return c.synthesize(ctx, &ipc.SynthesizeNoZRequest{Items: items}, len(items))
}

// synthesize normalizes both reply shapes to per-item results. A plain audio
// reply yields ItemOK for every item; an empty one yields ErrBatchFailed.
// Partial-results replies are returned as sent.
func (c *Client) synthesize(ctx context.Context, req ipc.Message, n int) ([]types.AudioItem, error) {
	var items []types.AudioItem
	err := c.do(ctx, func() error {
		if err := c.send(req); err != nil {
			return err
		}
		tag, err := c.readReplyTag(ipc.OutTagAudio, ipc.OutTagAudioStatus)
		if err != nil {
			return err
		}
		if tag == ipc.OutTagAudioStatus {
			res, err := ipc.DecodeAudioStatusResult(c.dec)
			if err != nil {
				return err
			}
			items = res.Items
		} else {
			res, err := ipc.DecodeAudioResult(c.dec)
			if err != nil {
				return err
			}
			if len(res.Audios) == 0 && n > 0 {
				return ErrBatchFailed
			}
			items = make([]types.AudioItem, len(res.Audios))
			for i, a := range res.Audios {
				items[i] = types.AudioItem{Status: types.ItemOK, Audio: a}
			}
		}
		if len(items) != n {
			return fmt.Errorf("worker returned %d notes for %d items", len(items), n)
		}
		return nil
	})
	return items, err
}

// LoadComponents asks the worker to load a PCA archive and returns its
// component count.
func (c *Client) LoadComponents(ctx context.Context, path string) (int, error) {
	var count int
	err := c.roundTrip(ctx, &ipc.LoadComponentsRequest{Path: path}, ipc.OutTagLoadComponents, func() error {
		res, err := ipc.DecodeLoadComponentsResult(c.dec)
		if err != nil {
			return err
		}
		count = res.Count
		c.components = count
		return nil
	})
	if err == nil {
		c.collector.IncComponentLoad()
	} else {
		c.collector.IncComponentLoadFailure()
	}
	return count, err
}

// SetAmplitudes replaces the worker's amplitude vector. The length must equal
// the count returned by the last LoadComponents, since the worker frames the
// request by that count.
func (c *Client) SetAmplitudes(ctx context.Context, amplitudes []float64) error {
	return c.do(ctx, func() error {
		if c.components < 0 {
			return ErrNoComponents
		}
		if len(amplitudes) != c.components {
			return fmt.Errorf("%w: got %d, want %d", ErrAmplitudeLength, len(amplitudes), c.components)
		}
		return c.send(&ipc.SetAmplitudesRequest{Amplitudes: amplitudes})
	})
}

// GetZMean returns the archive's mean code. ok is false when the loaded
// archive carries no latent statistics.
func (c *Client) GetZMean(ctx context.Context) (z types.Z, ok bool, err error) {
	return c.optionalZ(ctx, &ipc.GetZMeanRequest{})
}

// EditZ moves z along the archive's latent directions. ok is false when the
// loaded archive carries no latent directions.
func (c *Client) EditZ(ctx context.Context, z types.Z, edits []float64) (types.Z, bool, error) {
	return c.optionalZ(ctx, &ipc.EditZRequest{Z: z, Edits: edits})
}

func (c *Client) optionalZ(ctx context.Context, req ipc.Message) (types.Z, bool, error) {
	var z types.Z
	var ok bool
	err := c.roundTrip(ctx, req, ipc.OutTagZ, func() error {
		res, err := ipc.DecodeZResult(c.dec)
		if err != nil {
			return err
		}
		switch len(res.Zs) {
		case 0:
		case 1:
			z, ok = res.Zs[0], true
		default:
			return fmt.Errorf("worker returned %d codes, want at most 1", len(res.Zs))
		}
		return nil
	})
	return z, ok, err
}

// roundTrip sends req and decodes a reply tagged want.
func (c *Client) roundTrip(ctx context.Context, req ipc.Message, want ipc.Tag, decode func() error) error {
	return c.do(ctx, func() error {
		if err := c.send(req); err != nil {
			return err
		}
		if _, err := c.readReplyTag(want); err != nil {
			return err
		}
		return decode()
	})
}

// do serializes fn and aborts it when ctx ends by closing the stream.
// A framing or transport error marks the client broken.
func (c *Client) do(ctx context.Context, fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken {
		return ErrClientBroken
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() { _ = c.stream.Close() })
	err := fn()
	if !stop() {
		c.broken = true
		return fmt.Errorf("worker request aborted: %w", ctx.Err())
	}

	var reply *ipc.ErrorReply
	switch {
	case err == nil, errors.As(err, &reply), errors.Is(err, ErrBatchFailed),
		errors.Is(err, ErrNoComponents), errors.Is(err, ErrAmplitudeLength):
	default:
		c.broken = true
	}
	return err
}

func (c *Client) send(m ipc.Message) error {
	c.collector.IncRequest(ipc.InTagName(m.Tag()))
	return c.enc.Send(m)
}

// readReplyTag reads the next reply tag. An error reply is decoded and
// returned as *ipc.ErrorReply; any tag outside want is a framing error.
func (c *Client) readReplyTag(want ...ipc.Tag) (ipc.Tag, error) {
	tag, err := c.dec.ReadTag()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, fmt.Errorf("worker closed the stream: %w", io.ErrUnexpectedEOF)
		}
		return 0, err
	}
	if tag == ipc.OutTagError {
		reply, err := ipc.DecodeErrorReply(c.dec)
		if err != nil {
			return 0, err
		}
		c.collector.IncContractViolation()
		return 0, reply
	}
	for _, w := range want {
		if tag == w {
			return tag, nil
		}
	}
	return 0, &ipc.FrameError{Kind: ipc.FrameErrorUnknownTag, Msg: fmt.Sprintf("unexpected reply %s", ipc.OutTagLabel(tag))}
}
