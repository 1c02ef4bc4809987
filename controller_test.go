package hda

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/uDrivers/uHDA/internal/fakekernel"
)

// buildSingleOutputFixture wires up a fake controller advertising one codec
// with a single PIN_COMPLEX -> AUDIO_OUT path, matching the widget graph
// shape Codec.init/findOutputPaths/buildOutputGroups expect: nid 1 is the
// audio function group, nid 2 a fixed speaker pin wired to nid 3, the DAC.
func buildSingleOutputFixture() (*fakekernel.Services, *fakekernel.HDAFixture) {
	services := fakekernel.New()
	bar := fakekernel.NewHDAFixture(services)

	bar.Respond = func(codecAddr, nodeID uint8, payload uint32) (resp, respEx uint32) {
		cmd := payload >> 8
		data := uint8(payload)

		switch cmd {
		case cmdGetParam:
			switch nodeID {
			case 0:
				if data == paramNodeCount {
					return uint32(1)<<16 | 1, 0 // 1 function group starting at nid 1
				}
			case 1:
				switch data {
				case paramFuncGroupType:
					return funcGroupTypeAudio, 0
				case paramNodeCount:
					return uint32(2)<<16 | 2, 0 // 2 widgets starting at nid 2
				}
			case 2: // PIN_COMPLEX, wired to nid 3
				switch data {
				case paramAudioCaps:
					return uint32(widgetPinComplex) << 20, 0
				case paramOutAmpCaps:
					return (1 << 31) | 0x50, 0
				case paramPinCaps:
					return (1 << 4) | (1 << 2) | (1 << 3) | (1 << 16), 0
				case paramConnListLen:
					return 1, 0
				}
			case 3: // AUDIO_OUT (DAC), terminal, no connections
				switch data {
				case paramAudioCaps:
					return uint32(widgetAudioOut) << 20, 0
				case paramOutAmpCaps:
					return (1 << 31) | 0x50, 0
				case paramConnListLen:
					return 0, 0
				}
			}
			return 0, 0

		case cmdGetConnList:
			if nodeID == 2 {
				return uint32(3), 0 // single connection entry: nid 3
			}
			return 0, 0

		case cmdGetConfigDefault:
			if nodeID == 2 {
				// connectivity=0b10 (fixed), association=1, sequence=0,
				// device=devLineOut (reclassified to Speaker by connectivity).
				return uint32(0b10)<<30 | uint32(1)<<4, 0
			}
			return 0, 0
		}
		return 0, 0
	}

	return services, bar
}

func newTestController(t *testing.T, services *fakekernel.Services, bar *fakekernel.HDAFixture) *Controller {
	t.Helper()
	services.InstallBAR(0, bar)
	dev := struct{ addr string }{"fake0"}
	return New(services, dev)
}

func TestControllerInitDiscoversCodecAndOutputPath(t *testing.T) {
	services, bar := buildSingleOutputFixture()
	ctrl := newTestController(t, services, bar)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := ctrl.Init(ctx)
	require.NoError(t, err)
	defer ctrl.Destroy(ctx)

	require.Len(t, ctrl.Codecs, 1)
	codec := ctrl.Codecs[0]
	require.Equal(t, []uint8{3}, codec.DACNIDs)
	require.Equal(t, []uint8{2}, codec.OutputNIDs)
	require.Len(t, codec.OutputPaths, 1)
	require.Equal(t, []uint8{2, 3}, codec.OutputPaths[0].WidgetNIDs)

	require.Len(t, codec.OutputGroups, 1)
	require.Len(t, codec.OutputGroups[0].Outputs, 1)
	require.Equal(t, OutputSpeaker, codec.OutputGroups[0].Outputs[0].Kind())
}

func TestControllerResumeIsIdempotent(t *testing.T) {
	services, bar := buildSingleOutputFixture()
	ctrl := newTestController(t, services, bar)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, ctrl.Init(ctx))
	defer ctrl.Destroy(ctx)

	firstCount := len(ctrl.Codecs)
	require.NoError(t, ctrl.Resume(ctx))
	require.Equal(t, firstCount, len(ctrl.Codecs), "a second Resume must not duplicate the codec list")
}

func TestFindPathAndProgram(t *testing.T) {
	services, bar := buildSingleOutputFixture()
	ctrl := newTestController(t, services, bar)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, ctrl.Init(ctx))
	defer ctrl.Destroy(ctx)

	codec := ctrl.Codecs[0]
	out := codec.OutputGroups[0].Outputs[0]

	path, err := codec.FindPath(out, nil, false)
	require.NoError(t, err)

	streams := ctrl.OutputStreams()
	require.NotEmpty(t, streams)
	stream := streams[0]
	require.NoError(t, stream.Setup(64*1024))
	defer stream.Destroy()

	format := NewPCMFormat(48000, 2, 16)
	require.NoError(t, path.Setup(ctx, stream, format))
	require.NoError(t, path.SetVolume(ctx, 50))
	require.NoError(t, path.Mute(ctx, true))
	require.NoError(t, path.Shutdown(ctx))
}
