// Package worker implements the worker side of the protocol: the session
// state, the dispatch loop and the request handlers.
//
// The loop is strictly sequential. It reads one tag, decodes that request's
// payload, runs the handler to completion (including any model call), writes
// and flushes the reply and only then reads the next tag.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sopimagenta/ganworker/ipc"
	"github.com/sopimagenta/ganworker/log"
	"github.com/sopimagenta/ganworker/metrics"
	"github.com/sopimagenta/ganworker/model"
)

// DefaultBatchSize is the model batch size used when none is configured.
const DefaultBatchSize = 8

// State is the dispatch loop state.
type State int

const (
	// StateAwaitingTag waits for the next request tag.
	StateAwaitingTag State = iota
	// StateHandling runs a handler.
	StateHandling
	// StateClosed is reached on a clean end of stream between messages.
	StateClosed
	// StateFault is reached on a framing error, an unknown tag or any other
	// condition after which the stream cannot be trusted.
	StateFault
)

// String returns the state name used in logs.
func (s State) String() string {
	switch s {
	case StateAwaitingTag:
		return "awaiting_tag"
	case StateHandling:
		return "handling"
	case StateClosed:
		return "closed"
	case StateFault:
		return "fault"
	default:
		return "unknown"
	}
}

// Config configures a Worker.
type Config struct {
	// BatchSize is the model batch size layer offsets are replicated across.
	BatchSize int
	// PartialResults replies to synthesis requests with one status per item
	// instead of failing the whole batch on a bad pitch.
	PartialResults bool
	// Limits bounds decoded counts and sizes. Zero values use ipc defaults.
	Limits ipc.Limits
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	def := ipc.DefaultLimits()
	if c.Limits.MaxCount == 0 {
		c.Limits.MaxCount = def.MaxCount
	}
	if c.Limits.MaxEdits == 0 {
		c.Limits.MaxEdits = def.MaxEdits
	}
	if c.Limits.MaxPathSize == 0 {
		c.Limits.MaxPathSize = def.MaxPathSize
	}
	if c.Limits.MaxAudioSize == 0 {
		c.Limits.MaxAudioSize = def.MaxAudioSize
	}
	return c
}

type handler func(ctx context.Context) error

// Worker serves protocol requests from one stream against one model.
type Worker struct {
	cfg       Config
	model     model.Model
	session   *Session
	dec       *ipc.Decoder
	enc       *ipc.Encoder
	logger    *log.Logger
	collector *metrics.Collector

	handlers map[ipc.Tag]handler
	state    State
}

// New creates a Worker reading requests from and writing replies to stream.
// logger may be nil; collector may be nil.
func New(
	stream io.ReadWriter,
	m model.Model,
	session *Session,
	cfg Config,
	logger *log.Logger,
	collector *metrics.Collector,
) *Worker {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = log.Nop()
	}
	w := &Worker{
		cfg:       cfg,
		model:     m,
		session:   session,
		dec:       ipc.NewDecoderWithLimits(stream, cfg.Limits),
		enc:       ipc.NewEncoder(stream),
		logger:    logger,
		collector: collector,
	}
	w.handlers = map[ipc.Tag]handler{
		ipc.InTagRandZ:                  w.handleRandZ,
		ipc.InTagSlerpZ:                 w.handleSlerpZ,
		ipc.InTagGenAudio:               w.handleGenAudio,
		ipc.InTagLoadComponents:         w.handleLoadComponents,
		ipc.InTagSetComponentAmplitudes: w.handleSetAmplitudes,
		ipc.InTagSynthesizeNoZ:          w.handleSynthesizeNoZ,
		ipc.InTagGetZMean:               w.handleGetZMean,
		ipc.InTagEditZ:                  w.handleEditZ,
	}
	return w
}

// State returns the current dispatch state.
func (w *Worker) State() State {
	return w.state
}

// Run writes the init handshake and serves requests until the stream ends.
// Returns:
//   - nil: stream ended cleanly between messages (StateClosed)
//   - *Fault: the loop stopped in StateFault
func (w *Worker) Run(ctx context.Context) error {
	info := w.model.Info()
	if err := w.enc.Send(&ipc.InitMessage{Info: info}); err != nil {
		return w.fault(&Fault{Kind: FaultTransport, Err: fmt.Errorf("send init: %w", err)})
	}
	w.logger.Info("handshake sent", map[string]any{
		"audio_length": info.AudioLength,
		"sample_rate":  info.SampleRate,
	})

	for {
		select {
		case <-ctx.Done():
			return w.fault(&Fault{Kind: FaultCanceled, Err: ctx.Err()})
		default:
		}

		w.state = StateAwaitingTag
		tag, err := w.dec.ReadTag()
		if err != nil {
			if errors.Is(err, io.EOF) {
				w.state = StateClosed
				w.logger.Info("stream closed", nil)
				return nil
			}
			return w.fault(&Fault{Kind: FaultFraming, Err: err})
		}

		h, ok := w.handlers[tag]
		if !ok {
			return w.fault(&Fault{
				Kind: FaultFraming,
				Err:  &ipc.FrameError{Kind: ipc.FrameErrorUnknownTag, Msg: fmt.Sprintf("unknown request %s", tag)},
			})
		}

		w.state = StateHandling
		w.collector.IncRequest(ipc.InTagName(tag))
		w.logger.Debug("request", map[string]any{"tag": ipc.InTagName(tag)})

		if err := h(ctx); err != nil {
			f, ok := AsFault(err)
			if !ok {
				f = &Fault{Kind: FaultFraming, Err: err}
			}
			f.Tag, f.HasTag = tag, true
			return w.fault(f)
		}
	}
}

func (w *Worker) fault(f *Fault) error {
	w.state = StateFault
	if f.Kind == FaultFraming {
		w.collector.IncFramingFault()
	}
	fields := map[string]any{
		"kind":  f.Kind.String(),
		"error": f.Err.Error(),
	}
	if f.HasTag {
		fields["tag"] = ipc.InTagName(f.Tag)
	}
	w.logger.Error("dispatch fault", fields)
	return f
}

// send writes a reply. Write failures are transport faults.
func (w *Worker) send(m ipc.Message) error {
	if err := w.enc.Send(m); err != nil {
		return &Fault{Kind: FaultTransport, Err: err}
	}
	return nil
}

// decodeFailed turns a decode error into either a fault (the stream is
// misaligned) or an error reply (the payload was consumed).
func (w *Worker) decodeFailed(err error) error {
	if ipc.IsFatalFrameError(err) {
		return &Fault{Kind: FaultFraming, Err: err}
	}
	var fe *ipc.FrameError
	if !errors.As(err, &fe) {
		return &Fault{Kind: FaultFraming, Err: err}
	}
	w.collector.IncDecodeError()
	w.logger.Warn("malformed request", map[string]any{"error": err.Error()})
	return w.reject(ipc.ErrCodeMalformed, err.Error())
}

// reject answers the current request with an error reply and keeps the loop
// running.
func (w *Worker) reject(code ipc.ErrorCode, msg string) error {
	w.collector.IncContractViolation()
	w.logger.Warn("request rejected", map[string]any{
		"code":    code.String(),
		"message": msg,
	})
	return w.send(ipc.NewErrorReply(code, msg))
}
