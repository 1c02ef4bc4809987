package hda

import "github.com/uDrivers/uHDA/internal/bits"

// Verb command IDs and parameter IDs, transcribed from the `cmd`/`param`
// namespaces in original_source/src/spec.hpp. Short-form verbs (12-bit
// command, 8-bit payload) and long-form verbs (4-bit command, 16-bit
// payload) share the same 20-bit payload field in a CORB entry; which shape
// applies depends on the command.
const (
	cmdSetConverterFormat        = 0x2
	cmdSetAmpGainMute            = 0x3
	cmdGetConverterFormat        = 0xA
	cmdGetAmpGainMute            = 0xB
	cmdGetParam                  = 0xF00
	cmdGetConnSelect             = 0xF01
	cmdGetConnList               = 0xF02
	cmdGetConverterControl       = 0xF06
	cmdGetPinControl             = 0xF07
	cmdGetEAPDEnable             = 0xF0C
	cmdGetVolumeKnob             = 0xF0F
	cmdGetConfigDefault          = 0xF1C
	cmdGetConverterChannelCount  = 0xF2D
	cmdGetPinSense               = 0xF09
	cmdSetPinSense               = 0x709
	cmdSetConnSelect             = 0x701
	cmdSetPowerState             = 0x705
	cmdSetConverterControl       = 0x706
	cmdSetPinControl             = 0x707
	cmdSetEAPDEnable             = 0x70C
	cmdSetVolumeKnob             = 0x70F
	cmdSetConverterChannelCount  = 0x72D
)

// Parameter IDs used with GET_PARAMETER.
const (
	paramNodeCount     = 0x4
	paramFuncGroupType = 0x5
	paramAudioCaps     = 0x9
	paramPinCaps       = 0xC
	paramInAmpCaps     = 0xD
	paramConnListLen   = 0xE
	paramOutAmpCaps    = 0x12
)

const funcGroupTypeAudio = 0x1

// Widget types, decoded from AUDIO_CAPS bits [20:23].
type widgetType uint8

const (
	widgetAudioOut widgetType = 0
	widgetAudioIn  widgetType = 1
	widgetAudioMixer widgetType = 2
	widgetAudioSelector widgetType = 3
	widgetPinComplex widgetType = 4
	widgetPowerWidget widgetType = 5
	widgetVolumeKnob widgetType = 6
	widgetBeepGenerator widgetType = 7
)

// Default device types, decoded from CONFIG_DEFAULT bits [20:23].
type defaultDevice uint8

const (
	devLineOut        defaultDevice = 0
	devSpeaker        defaultDevice = 1
	devHPOut          defaultDevice = 2
	devCD             defaultDevice = 3
	devSPDIFOut       defaultDevice = 4
	devDigitalOtherOut defaultDevice = 5
	devModemLineSide  defaultDevice = 6
	devModemHandsetSide defaultDevice = 7
	devLineIn         defaultDevice = 8
	devAux            defaultDevice = 9
	devMicIn          defaultDevice = 10
	devTelephony      defaultDevice = 11
	devSPDIFIn        defaultDevice = 12
	devDigitalOtherIn defaultDevice = 13
	devReserved       defaultDevice = 14
	devOther          defaultDevice = 15
)

// verbDescriptor is one CORB entry: a short- or long-form verb addressed to
// a codec/node pair, per spec.hpp's VerbDescriptor.
type verbDescriptor struct {
	codecAddr uint8
	nodeID    uint8
	payload   uint32 // 20 bits
}

func (v verbDescriptor) encode() uint32 {
	var w uint32
	bits.SetN32(&w, verbPayloadPos, verbPayloadMask, v.payload)
	bits.SetN32(&w, verbNodeIDPos, verbNodeIDMask, uint32(v.nodeID))
	bits.SetN32(&w, verbCodecAddrPos, verbCodecAddrMask, uint32(v.codecAddr))
	return w
}

// newVerb builds a verb with a 12-bit command and 8-bit payload, matching
// submit_verb in original_source/src/controller.cpp. This is the shape used
// by every verb in this file except the four format/amplifier verbs below.
func newVerb(codecAddr, nodeID uint8, cmd uint16, data uint8) verbDescriptor {
	return verbDescriptor{
		codecAddr: codecAddr,
		nodeID:    nodeID,
		payload:   uint32(cmd)<<8 | uint32(data),
	}
}

// newWideVerb builds a verb with a 4-bit command and 16-bit payload,
// matching submit_verb_long. Only SET/GET_CONVERTER_FORMAT and
// SET/GET_AMP_GAIN_MUTE use this wider payload shape in the HDA verb set.
func newWideVerb(codecAddr, nodeID uint8, cmd uint8, data uint16) verbDescriptor {
	return verbDescriptor{
		codecAddr: codecAddr,
		nodeID:    nodeID,
		payload:   uint32(cmd)<<16 | uint32(data),
	}
}

// responseDescriptor is one RIRB entry.
type responseDescriptor struct {
	resp   uint32
	respEx uint32
}

func (r responseDescriptor) codecAddr() uint8 {
	return uint8(r.respEx & 0xF)
}

func (r responseDescriptor) unsolicited() bool {
	return (r.respEx>>4)&1 != 0
}
