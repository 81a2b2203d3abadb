package ipc

import "fmt"

// Tag identifies a message kind. Inbound (host to worker) and outbound
// (worker to host) tags are separate namespaces sharing one byte.
type Tag uint8

// Inbound tags.
const (
	InTagRandZ Tag = iota
	InTagSlerpZ
	InTagGenAudio
	InTagLoadComponents
	InTagSetComponentAmplitudes
	InTagSynthesizeNoZ
	InTagGetZMean
	InTagEditZ
)

// Outbound tags.
const (
	OutTagInit Tag = iota
	OutTagZ
	OutTagAudio
	OutTagLoadComponents
	OutTagError
	OutTagAudioStatus
)

// String returns the tag number. Tag names depend on direction, see
// InTagName and OutTagName.
func (t Tag) String() string {
	return fmt.Sprintf("tag(%d)", uint8(t))
}

var inTagNames = map[Tag]string{
	InTagRandZ:                  "rand_z",
	InTagSlerpZ:                 "slerp_z",
	InTagGenAudio:               "gen_audio",
	InTagLoadComponents:         "load_components",
	InTagSetComponentAmplitudes: "set_component_amplitudes",
	InTagSynthesizeNoZ:          "synthesize_noz",
	InTagGetZMean:               "get_z_mean",
	InTagEditZ:                  "edit_z",
}

var outTagNames = map[Tag]string{
	OutTagInit:           "init",
	OutTagZ:              "z",
	OutTagAudio:          "audio",
	OutTagLoadComponents: "load_components",
	OutTagError:          "error",
	OutTagAudioStatus:    "audio_status",
}

// OutTagLabel names an outbound tag together with its number, for errors.
func OutTagLabel(t Tag) string {
	return fmt.Sprintf("%s (tag %d)", OutTagName(t), uint8(t))
}

// MessageName returns the name of m's tag in the direction m travels.
func MessageName(m Message) string {
	switch m.(type) {
	case *RandZRequest, *SlerpZRequest, *GenAudioRequest, *LoadComponentsRequest,
		*SetAmplitudesRequest, *SynthesizeNoZRequest, *GetZMeanRequest, *EditZRequest:
		return InTagName(m.Tag())
	}
	return OutTagName(m.Tag())
}

// InTagName returns the name of an inbound tag, or "unknown".
func InTagName(t Tag) string {
	if name, ok := inTagNames[t]; ok {
		return name
	}
	return "unknown"
}

// OutTagName returns the name of an outbound tag, or "unknown".
func OutTagName(t Tag) string {
	if name, ok := outTagNames[t]; ok {
		return name
	}
	return "unknown"
}

// InTags returns every inbound tag in numeric order.
func InTags() []Tag {
	return []Tag{
		InTagRandZ,
		InTagSlerpZ,
		InTagGenAudio,
		InTagLoadComponents,
		InTagSetComponentAmplitudes,
		InTagSynthesizeNoZ,
		InTagGetZMean,
		InTagEditZ,
	}
}
