package ipc

import (
	"fmt"
	"strings"

	"github.com/sopimagenta/ganworker/types"
)

// Message is anything that can be sent as one tagged protocol message.
type Message interface {
	// Tag returns the tag written before the payload.
	Tag() Tag
	// AppendPayload encodes the payload (without tag) into b.
	AppendPayload(b *Buffer)
}

// --- Requests (host to worker) ---

// RandZRequest asks for Count freshly sampled latent codes.
type RandZRequest struct {
	Count int
}

func (m *RandZRequest) Tag() Tag { return InTagRandZ }

func (m *RandZRequest) AppendPayload(b *Buffer) { b.WriteCount(m.Count) }

// DecodeRandZ decodes a rand_z payload.
func DecodeRandZ(d *Decoder) (*RandZRequest, error) {
	n, err := d.ReadCount()
	if err != nil {
		return nil, err
	}
	return &RandZRequest{Count: n}, nil
}

// SlerpZRequest asks for the spherical interpolation of two codes.
type SlerpZRequest struct {
	Z0     types.Z
	Z1     types.Z
	Amount float64
}

func (m *SlerpZRequest) Tag() Tag { return InTagSlerpZ }

func (m *SlerpZRequest) AppendPayload(b *Buffer) {
	b.WriteZ(m.Z0)
	b.WriteZ(m.Z1)
	b.WriteFloat64(m.Amount)
}

// DecodeSlerpZ decodes a slerp_z payload.
func DecodeSlerpZ(d *Decoder) (*SlerpZRequest, error) {
	z0, err := d.ReadZ()
	if err != nil {
		return nil, err
	}
	z1, err := d.ReadZ()
	if err != nil {
		return nil, err
	}
	amount, err := d.ReadFloat64("slerp amount")
	if err != nil {
		return nil, err
	}
	return &SlerpZRequest{Z0: z0, Z1: z1, Amount: amount}, nil
}

// GenAudioItem is one (pitch, code) pair of a gen_audio batch.
type GenAudioItem struct {
	Pitch int32
	Z     types.Z
}

// GenAudioRequest asks for one note per item.
type GenAudioRequest struct {
	Items []GenAudioItem
}

func (m *GenAudioRequest) Tag() Tag { return InTagGenAudio }

func (m *GenAudioRequest) AppendPayload(b *Buffer) {
	b.WriteCount(len(m.Items))
	for _, item := range m.Items {
		b.WriteInt32(item.Pitch)
		b.WriteZ(item.Z)
	}
}

// DecodeGenAudio decodes a gen_audio payload.
func DecodeGenAudio(d *Decoder) (*GenAudioRequest, error) {
	n, err := d.ReadCount()
	if err != nil {
		return nil, err
	}
	items := make([]GenAudioItem, n)
	for i := range items {
		pitch, err := d.ReadInt32("pitch")
		if err != nil {
			return nil, err
		}
		z, err := d.ReadZ()
		if err != nil {
			return nil, err
		}
		items[i] = GenAudioItem{Pitch: pitch, Z: z}
	}
	return &GenAudioRequest{Items: items}, nil
}

// LoadComponentsRequest asks the worker to load a PCA archive.
type LoadComponentsRequest struct {
	Path string
}

func (m *LoadComponentsRequest) Tag() Tag { return InTagLoadComponents }

func (m *LoadComponentsRequest) AppendPayload(b *Buffer) { b.WriteString(m.Path) }

// DecodeLoadComponents decodes a load_components payload.
func DecodeLoadComponents(d *Decoder) (*LoadComponentsRequest, error) {
	path, err := d.ReadString("components path")
	if err != nil {
		return nil, err
	}
	return &LoadComponentsRequest{Path: path}, nil
}

// SetAmplitudesRequest replaces the per-component amplitude vector.
// Its length is implicit: the component count of the loaded archive.
type SetAmplitudesRequest struct {
	Amplitudes []float64
}

func (m *SetAmplitudesRequest) Tag() Tag { return InTagSetComponentAmplitudes }

func (m *SetAmplitudesRequest) AppendPayload(b *Buffer) { b.WriteFloat64s(m.Amplitudes) }

// DecodeSetAmplitudes decodes exactly n amplitudes.
func DecodeSetAmplitudes(d *Decoder, n int) (*SetAmplitudesRequest, error) {
	amps, err := d.ReadFloat64s(n, "amplitude")
	if err != nil {
		return nil, err
	}
	return &SetAmplitudesRequest{Amplitudes: amps}, nil
}

// EditItem is one (pitch, edits) group of a synthesize_noz batch.
type EditItem struct {
	Pitch int32
	Edits []float64
}

// SynthesizeNoZRequest asks for notes described by PCA edits only.
type SynthesizeNoZRequest struct {
	Items []EditItem
}

func (m *SynthesizeNoZRequest) Tag() Tag { return InTagSynthesizeNoZ }

func (m *SynthesizeNoZRequest) AppendPayload(b *Buffer) {
	b.WriteCount(len(m.Items))
	for _, item := range m.Items {
		b.WriteInt32(item.Pitch)
		b.WriteCount(len(item.Edits))
		b.WriteFloat64s(item.Edits)
	}
}

// DecodeSynthesizeNoZ decodes a synthesize_noz payload.
func DecodeSynthesizeNoZ(d *Decoder) (*SynthesizeNoZRequest, error) {
	n, err := d.ReadCount()
	if err != nil {
		return nil, err
	}
	items := make([]EditItem, n)
	for i := range items {
		pitch, err := d.ReadInt32("pitch")
		if err != nil {
			return nil, err
		}
		numEdits, err := d.ReadEditCount()
		if err != nil {
			return nil, err
		}
		edits, err := d.ReadFloat64s(numEdits, "edit")
		if err != nil {
			return nil, err
		}
		items[i] = EditItem{Pitch: pitch, Edits: edits}
	}
	return &SynthesizeNoZRequest{Items: items}, nil
}

// GetZMeanRequest asks for the mean code of the loaded archive.
type GetZMeanRequest struct{}

func (m *GetZMeanRequest) Tag() Tag { return InTagGetZMean }

func (m *GetZMeanRequest) AppendPayload(*Buffer) {}

// EditZRequest asks for a code moved along the archive's latent directions.
type EditZRequest struct {
	Z     types.Z
	Edits []float64
}

func (m *EditZRequest) Tag() Tag { return InTagEditZ }

func (m *EditZRequest) AppendPayload(b *Buffer) {
	b.WriteZ(m.Z)
	b.WriteCount(len(m.Edits))
	b.WriteFloat64s(m.Edits)
}

// DecodeEditZ decodes an edit_z payload.
func DecodeEditZ(d *Decoder) (*EditZRequest, error) {
	z, err := d.ReadZ()
	if err != nil {
		return nil, err
	}
	n, err := d.ReadEditCount()
	if err != nil {
		return nil, err
	}
	edits, err := d.ReadFloat64s(n, "edit")
	if err != nil {
		return nil, err
	}
	return &EditZRequest{Z: z, Edits: edits}, nil
}

// --- Replies (worker to host) ---

// InitMessage is the startup handshake.
type InitMessage struct {
	Info types.AudioInfo
}

func (m *InitMessage) Tag() Tag { return OutTagInit }

func (m *InitMessage) AppendPayload(b *Buffer) {
	b.WriteUint32(m.Info.AudioLength)
	b.WriteUint32(m.Info.SampleRate)
}

// DecodeInit decodes the handshake info payload.
func DecodeInit(d *Decoder) (*InitMessage, error) {
	length, err := d.ReadUint32("audio length")
	if err != nil {
		return nil, err
	}
	rate, err := d.ReadUint32("sample rate")
	if err != nil {
		return nil, err
	}
	return &InitMessage{Info: types.AudioInfo{AudioLength: length, SampleRate: rate}}, nil
}

// ZResult carries latent codes in request order. An empty result means the
// operation is unavailable for the current session state.
type ZResult struct {
	Zs []types.Z
}

func (m *ZResult) Tag() Tag { return OutTagZ }

func (m *ZResult) AppendPayload(b *Buffer) {
	b.WriteCount(len(m.Zs))
	for _, z := range m.Zs {
		b.WriteZ(z)
	}
}

// DecodeZResult decodes a z payload.
func DecodeZResult(d *Decoder) (*ZResult, error) {
	n, err := d.ReadCount()
	if err != nil {
		return nil, err
	}
	zs := make([]types.Z, n)
	for i := range zs {
		if zs[i], err = d.ReadZ(); err != nil {
			return nil, err
		}
	}
	return &ZResult{Zs: zs}, nil
}

// AudioResult carries one note per requested item, or none when the batch
// failed.
type AudioResult struct {
	Audios []types.Audio
}

func (m *AudioResult) Tag() Tag { return OutTagAudio }

func (m *AudioResult) AppendPayload(b *Buffer) {
	b.WriteCount(len(m.Audios))
	for _, a := range m.Audios {
		b.WriteAudio(a)
	}
}

// DecodeAudioResult decodes an audio payload.
func DecodeAudioResult(d *Decoder) (*AudioResult, error) {
	n, err := d.ReadCount()
	if err != nil {
		return nil, err
	}
	audios := make([]types.Audio, n)
	for i := range audios {
		if audios[i], err = d.ReadAudio(); err != nil {
			return nil, err
		}
	}
	return &AudioResult{Audios: audios}, nil
}

// AudioStatusResult carries one status and note per requested item.
type AudioStatusResult struct {
	Items []types.AudioItem
}

func (m *AudioStatusResult) Tag() Tag { return OutTagAudioStatus }

func (m *AudioStatusResult) AppendPayload(b *Buffer) {
	b.WriteCount(len(m.Items))
	for _, item := range m.Items {
		b.WriteUint8(uint8(item.Status))
		b.WriteAudio(item.Audio)
	}
}

// DecodeAudioStatusResult decodes an audio_status payload.
func DecodeAudioStatusResult(d *Decoder) (*AudioStatusResult, error) {
	n, err := d.ReadCount()
	if err != nil {
		return nil, err
	}
	items := make([]types.AudioItem, n)
	for i := range items {
		status, err := d.ReadUint8("item status")
		if err != nil {
			return nil, err
		}
		audio, err := d.ReadAudio()
		if err != nil {
			return nil, err
		}
		items[i] = types.AudioItem{Status: types.ItemStatus(status), Audio: audio}
	}
	return &AudioStatusResult{Items: items}, nil
}

// LoadComponentsResult reports the component count of the loaded archive.
type LoadComponentsResult struct {
	Count int
}

func (m *LoadComponentsResult) Tag() Tag { return OutTagLoadComponents }

func (m *LoadComponentsResult) AppendPayload(b *Buffer) { b.WriteCount(m.Count) }

// DecodeLoadComponentsResult decodes a load_components reply.
func DecodeLoadComponentsResult(d *Decoder) (*LoadComponentsResult, error) {
	n, err := d.ReadUint32("component count")
	if err != nil {
		return nil, err
	}
	return &LoadComponentsResult{Count: int(n)}, nil
}

// ErrorCode classifies a per-request error reply.
type ErrorCode uint8

const (
	// ErrCodeNoComponents indicates a PCA operation with no archive loaded.
	ErrCodeNoComponents ErrorCode = iota + 1
	// ErrCodeLoadFailed indicates the archive could not be loaded.
	ErrCodeLoadFailed
	// ErrCodeMalformed indicates a fully read but invalid request.
	ErrCodeMalformed
	// ErrCodeModelFailure indicates a model failure other than an
	// unsupported pitch.
	ErrCodeModelFailure
)

// String returns the code name.
func (c ErrorCode) String() string {
	switch c {
	case ErrCodeNoComponents:
		return "no_components"
	case ErrCodeLoadFailed:
		return "load_failed"
	case ErrCodeMalformed:
		return "malformed"
	case ErrCodeModelFailure:
		return "model_failure"
	default:
		return fmt.Sprintf("code(%d)", uint8(c))
	}
}

// maxErrorMessage bounds error reply messages well below DefaultMaxPathSize.
const maxErrorMessage = 4096

// ErrorReply reports a contract violation for a single request. The host
// receives it in place of the expected reply; it is also the error value
// returned by the host client.
type ErrorReply struct {
	Code    ErrorCode
	Message string
}

// NewErrorReply builds an error reply, truncating long messages.
func NewErrorReply(code ErrorCode, msg string) *ErrorReply {
	if len(msg) > maxErrorMessage {
		msg = strings.ToValidUTF8(msg[:maxErrorMessage], "")
	}
	return &ErrorReply{Code: code, Message: msg}
}

func (m *ErrorReply) Tag() Tag { return OutTagError }

func (m *ErrorReply) AppendPayload(b *Buffer) {
	b.WriteUint8(uint8(m.Code))
	b.WriteString(m.Message)
}

func (m *ErrorReply) Error() string {
	return fmt.Sprintf("worker error %s: %s", m.Code, m.Message)
}

// DecodeErrorReply decodes an error payload.
func DecodeErrorReply(d *Decoder) (*ErrorReply, error) {
	code, err := d.ReadUint8("error code")
	if err != nil {
		return nil, err
	}
	msg, err := d.ReadString("error message")
	if err != nil {
		return nil, err
	}
	return &ErrorReply{Code: ErrorCode(code), Message: msg}, nil
}
