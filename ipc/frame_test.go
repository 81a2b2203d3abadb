package ipc

import (
	"bytes"
	"errors"
	"io"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/sopimagenta/ganworker/types"
)

// encodeMessage encodes m as the bytes an Encoder would write.
func encodeMessage(t *testing.T, m Message) []byte {
	t.Helper()
	var out bytes.Buffer
	if err := NewEncoder(&out).Send(m); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	return out.Bytes()
}

func testZ(seed float64) types.Z {
	var z types.Z
	for i := range z {
		z[i] = seed + float64(i)*0.001
	}
	return z
}

func TestRoundTrip_Requests(t *testing.T) {
	maxItems := make([]GenAudioItem, DefaultMaxCount)
	for i := range maxItems {
		maxItems[i] = GenAudioItem{Pitch: int32(i % 128), Z: testZ(float64(i))}
	}

	tests := []struct {
		name   string
		msg    Message
		decode func(*Decoder) (Message, error)
	}{
		{"rand_z zero", &RandZRequest{Count: 0}, func(d *Decoder) (Message, error) { return DecodeRandZ(d) }},
		{"rand_z one", &RandZRequest{Count: 1}, func(d *Decoder) (Message, error) { return DecodeRandZ(d) }},
		{"rand_z max", &RandZRequest{Count: DefaultMaxCount}, func(d *Decoder) (Message, error) { return DecodeRandZ(d) }},
		{"slerp", &SlerpZRequest{Z0: testZ(1), Z1: testZ(-1), Amount: 0.25}, func(d *Decoder) (Message, error) { return DecodeSlerpZ(d) }},
		{"slerp extreme amount", &SlerpZRequest{Z0: testZ(0), Z1: testZ(2), Amount: -math.MaxFloat64}, func(d *Decoder) (Message, error) { return DecodeSlerpZ(d) }},
		{"gen_audio empty", &GenAudioRequest{Items: []GenAudioItem{}}, func(d *Decoder) (Message, error) { return DecodeGenAudio(d) }},
		{"gen_audio one", &GenAudioRequest{Items: []GenAudioItem{{Pitch: 60, Z: testZ(0.5)}}}, func(d *Decoder) (Message, error) { return DecodeGenAudio(d) }},
		{"gen_audio max", &GenAudioRequest{Items: maxItems}, func(d *Decoder) (Message, error) { return DecodeGenAudio(d) }},
		{"gen_audio negative pitch", &GenAudioRequest{Items: []GenAudioItem{{Pitch: -1, Z: testZ(0)}}}, func(d *Decoder) (Message, error) { return DecodeGenAudio(d) }},
		{"load_components", &LoadComponentsRequest{Path: "/tmp/compé.msgpack"}, func(d *Decoder) (Message, error) { return DecodeLoadComponents(d) }},
		{"load_components empty", &LoadComponentsRequest{Path: ""}, func(d *Decoder) (Message, error) { return DecodeLoadComponents(d) }},
		{"synthesize_noz", &SynthesizeNoZRequest{Items: []EditItem{
			{Pitch: 48, Edits: []float64{1, -2.5}},
			{Pitch: 50, Edits: []float64{}},
			{Pitch: 52, Edits: []float64{0.125}},
		}}, func(d *Decoder) (Message, error) { return DecodeSynthesizeNoZ(d) }},
		{"get_z_mean", &GetZMeanRequest{}, func(*Decoder) (Message, error) { return &GetZMeanRequest{}, nil }},
		{"edit_z", &EditZRequest{Z: testZ(3), Edits: []float64{0.5, 0, -0.5}}, func(d *Decoder) (Message, error) { return DecodeEditZ(d) }},
		{"edit_z no edits", &EditZRequest{Z: testZ(3), Edits: []float64{}}, func(d *Decoder) (Message, error) { return DecodeEditZ(d) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := encodeMessage(t, tt.msg)
			d := NewDecoder(bytes.NewReader(encoded))

			tag, err := d.ReadTag()
			if err != nil {
				t.Fatalf("ReadTag failed: %v", err)
			}
			if tag != tt.msg.Tag() {
				t.Fatalf("tag = %d, want %d", tag, tt.msg.Tag())
			}

			decoded, err := tt.decode(d)
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if !reflect.DeepEqual(decoded, tt.msg) {
				t.Errorf("decoded %+v, want %+v", decoded, tt.msg)
			}
			if !bytes.Equal(encodeMessage(t, decoded), encoded) {
				t.Error("re-encoded bytes differ from original")
			}

			if _, err := d.ReadTag(); err != io.EOF {
				t.Errorf("expected clean EOF after message, got %v", err)
			}
		})
	}
}

func TestRoundTrip_SetAmplitudes(t *testing.T) {
	msg := &SetAmplitudesRequest{Amplitudes: []float64{0, 1, -1, math.SmallestNonzeroFloat64}}
	encoded := encodeMessage(t, msg)

	d := NewDecoder(bytes.NewReader(encoded))
	if _, err := d.ReadTag(); err != nil {
		t.Fatalf("ReadTag failed: %v", err)
	}
	decoded, err := DecodeSetAmplitudes(d, len(msg.Amplitudes))
	if err != nil {
		t.Fatalf("DecodeSetAmplitudes failed: %v", err)
	}
	if !reflect.DeepEqual(decoded, msg) {
		t.Errorf("decoded %+v, want %+v", decoded, msg)
	}
}

func TestRoundTrip_Replies(t *testing.T) {
	tests := []struct {
		name   string
		msg    Message
		decode func(*Decoder) (Message, error)
	}{
		{"init", &InitMessage{Info: types.AudioInfo{AudioLength: 64000, SampleRate: 16000}}, func(d *Decoder) (Message, error) { return DecodeInit(d) }},
		{"z empty", &ZResult{Zs: []types.Z{}}, func(d *Decoder) (Message, error) { return DecodeZResult(d) }},
		{"z three", &ZResult{Zs: []types.Z{testZ(1), testZ(2), testZ(3)}}, func(d *Decoder) (Message, error) { return DecodeZResult(d) }},
		{"audio empty", &AudioResult{Audios: []types.Audio{}}, func(d *Decoder) (Message, error) { return DecodeAudioResult(d) }},
		{"audio", &AudioResult{Audios: []types.Audio{
			{Samples: []int16{0, 1, -1, math.MaxInt16, math.MinInt16}},
			{Samples: []int16{}},
		}}, func(d *Decoder) (Message, error) { return DecodeAudioResult(d) }},
		{"audio status", &AudioStatusResult{Items: []types.AudioItem{
			{Status: types.ItemOK, Audio: types.Audio{Samples: []int16{5, 6}}},
			{Status: types.ItemPitchUnsupported, Audio: types.Audio{Samples: []int16{}}},
		}}, func(d *Decoder) (Message, error) { return DecodeAudioStatusResult(d) }},
		{"load components", &LoadComponentsResult{Count: 4}, func(d *Decoder) (Message, error) { return DecodeLoadComponentsResult(d) }},
		{"error", &ErrorReply{Code: ErrCodeNoComponents, Message: "no components loaded"}, func(d *Decoder) (Message, error) { return DecodeErrorReply(d) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDecoder(bytes.NewReader(encodeMessage(t, tt.msg)))
			if err := d.ExpectTag(tt.msg.Tag()); err != nil {
				t.Fatalf("ExpectTag failed: %v", err)
			}
			decoded, err := tt.decode(d)
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if !reflect.DeepEqual(decoded, tt.msg) {
				t.Errorf("decoded %+v, want %+v", decoded, tt.msg)
			}
		})
	}
}

func TestEncoder_ByteLayout(t *testing.T) {
	got := encodeMessage(t, &GenAudioRequest{Items: []GenAudioItem{{Pitch: 60, Z: types.Z{}}}})

	wantLen := TagSize + CountSize + PitchSize + ZBytes
	if len(got) != wantLen {
		t.Fatalf("len = %d, want %d", len(got), wantLen)
	}
	if got[0] != byte(InTagGenAudio) {
		t.Errorf("tag byte = %d, want %d", got[0], InTagGenAudio)
	}
	if !bytes.Equal(got[1:5], []byte{1, 0, 0, 0}) {
		t.Errorf("count bytes = %v, want little-endian 1", got[1:5])
	}
	if !bytes.Equal(got[5:9], []byte{60, 0, 0, 0}) {
		t.Errorf("pitch bytes = %v, want little-endian 60", got[5:9])
	}

	audio := encodeMessage(t, &AudioResult{Audios: []types.Audio{{Samples: []int16{-2}}}})
	// tag, count(1), size(2), sample 0xfffe
	want := []byte{byte(OutTagAudio), 1, 0, 0, 0, 2, 0, 0, 0, 0xfe, 0xff}
	if !bytes.Equal(audio, want) {
		t.Errorf("audio bytes = %v, want %v", audio, want)
	}
}

func TestDecoder_CleanEOFBetweenMessages(t *testing.T) {
	d := NewDecoder(bytes.NewReader(nil))
	_, err := d.ReadTag()
	if err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestDecoder_TruncatedPayload(t *testing.T) {
	full := encodeMessage(t, &SlerpZRequest{Z0: testZ(1), Z1: testZ(2), Amount: 0.5})

	cuts := []int{2, ZBytes, 2 * ZBytes, len(full) - 1}
	for _, cut := range cuts {
		d := NewDecoder(bytes.NewReader(full[:cut]))
		if _, err := d.ReadTag(); err != nil {
			t.Fatalf("ReadTag failed: %v", err)
		}
		_, err := DecodeSlerpZ(d)

		var frameErr *FrameError
		if !errors.As(err, &frameErr) {
			t.Fatalf("cut %d: expected *FrameError, got %T: %v", cut, err, err)
		}
		if frameErr.Kind != FrameErrorPartial {
			t.Errorf("cut %d: Kind = %s, want partial", cut, frameErr.Kind)
		}
		if !frameErr.IsFatal() {
			t.Errorf("cut %d: partial frame must be fatal", cut)
		}
		if !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Errorf("cut %d: expected wrapped io.ErrUnexpectedEOF", cut)
		}
	}
}

func TestDecoder_CountTooLarge(t *testing.T) {
	encoded := encodeMessage(t, &RandZRequest{Count: DefaultMaxCount + 1})
	d := NewDecoder(bytes.NewReader(encoded))
	if _, err := d.ReadTag(); err != nil {
		t.Fatalf("ReadTag failed: %v", err)
	}
	_, err := DecodeRandZ(d)
	if !IsFatalFrameError(err) {
		t.Fatalf("expected fatal frame error, got %v", err)
	}
	var frameErr *FrameError
	if errors.As(err, &frameErr) && frameErr.Kind != FrameErrorTooLarge {
		t.Errorf("Kind = %s, want too_large", frameErr.Kind)
	}
}

func TestDecoder_CustomLimits(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxCount = 2
	encoded := encodeMessage(t, &RandZRequest{Count: 3})

	d := NewDecoderWithLimits(bytes.NewReader(encoded), limits)
	if _, err := d.ReadTag(); err != nil {
		t.Fatalf("ReadTag failed: %v", err)
	}
	if _, err := DecodeRandZ(d); !IsFatalFrameError(err) {
		t.Errorf("expected fatal frame error for count over custom limit, got %v", err)
	}
}

func TestDecoder_InvalidUTF8IsRecoverable(t *testing.T) {
	var b Buffer
	b.WriteUint8(uint8(InTagLoadComponents))
	b.WriteUint32(2)
	b.data = append(b.data, 0xff, 0xfe)
	b.WriteUint8(uint8(InTagGetZMean))

	d := NewDecoder(bytes.NewReader(b.Bytes()))
	if _, err := d.ReadTag(); err != nil {
		t.Fatalf("ReadTag failed: %v", err)
	}
	_, err := DecodeLoadComponents(d)
	if err == nil {
		t.Fatal("expected decode error")
	}
	if IsFatalFrameError(err) {
		t.Errorf("invalid UTF-8 should not be fatal: %v", err)
	}

	tag, err := d.ReadTag()
	if err != nil {
		t.Fatalf("stream should stay aligned, ReadTag failed: %v", err)
	}
	if tag != InTagGetZMean {
		t.Errorf("next tag = %d, want %d", tag, InTagGetZMean)
	}
}

func TestDecoder_OddAudioSize(t *testing.T) {
	var b Buffer
	b.WriteUint32(3)
	b.data = append(b.data, 1, 2, 3)

	d := NewDecoder(bytes.NewReader(b.Bytes()))
	_, err := d.ReadAudio()
	var frameErr *FrameError
	if !errors.As(err, &frameErr) || frameErr.Kind != FrameErrorDecode {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestDecoder_ExpectTag(t *testing.T) {
	d := NewDecoder(bytes.NewReader([]byte{byte(OutTagAudio)}))
	err := d.ExpectTag(OutTagZ)
	var frameErr *FrameError
	if !errors.As(err, &frameErr) || frameErr.Kind != FrameErrorUnknownTag {
		t.Fatalf("expected unknown tag error, got %v", err)
	}
	if want := "expected z (tag 1), got audio (tag 2)"; !strings.Contains(err.Error(), want) {
		t.Errorf("error = %q, want it to contain %q", err, want)
	}

	d = NewDecoder(bytes.NewReader(nil))
	err = d.ExpectTag(OutTagInit)
	if !IsFatalFrameError(err) {
		t.Errorf("expected fatal error on closed stream, got %v", err)
	}
	if err == nil || !strings.Contains(err.Error(), "init (tag 0)") {
		t.Errorf("error = %v, want tag name", err)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestEncoder_SendErrorNamesMessage(t *testing.T) {
	tests := []struct {
		msg  Message
		want string
	}{
		{&GetZMeanRequest{}, "get_z_mean"},
		{&LoadComponentsResult{Count: 4}, "load_components"},
		{&ZResult{}, "flush z message"},
	}
	for _, tt := range tests {
		err := NewEncoder(failingWriter{}).Send(tt.msg)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("Send(%T) error = %v, want it to contain %q", tt.msg, err, tt.want)
		}
	}
}

func TestMessageName(t *testing.T) {
	if got := MessageName(&RandZRequest{Count: 1}); got != "rand_z" {
		t.Errorf("MessageName(RandZRequest) = %q", got)
	}
	if got := MessageName(&AudioResult{}); got != "audio" {
		t.Errorf("MessageName(AudioResult) = %q", got)
	}
}

func TestNewErrorReply_Truncates(t *testing.T) {
	long := bytes.Repeat([]byte("é"), maxErrorMessage)
	reply := NewErrorReply(ErrCodeMalformed, string(long))
	if len(reply.Message) > maxErrorMessage {
		t.Errorf("message length %d exceeds %d", len(reply.Message), maxErrorMessage)
	}
}

func TestTagNames(t *testing.T) {
	for _, tag := range InTags() {
		if InTagName(tag) == "unknown" {
			t.Errorf("inbound tag %d has no name", tag)
		}
	}
	if InTagName(Tag(200)) != "unknown" {
		t.Error("expected unknown for unassigned inbound tag")
	}
	if OutTagName(OutTagAudioStatus) != "audio_status" {
		t.Errorf("OutTagName(OutTagAudioStatus) = %q", OutTagName(OutTagAudioStatus))
	}
}
