// Command hdactl is a reference CLI for exercising the hda driver against a
// real Intel HDA controller on a Linux host. It probes for the device,
// brings the controller up, lists discovered output groups and outputs, and
// optionally plays a raw PCM file to one of them.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	hda "github.com/uDrivers/uHDA"
	"github.com/uDrivers/uHDA/hostpci"
)

// playbackRingSize is the software ring buffer size handed to Stream.Setup
// for the CLI's demo playback path.
const playbackRingSize = 256 * 1024

// fixtureConfig describes the small amount of persistent configuration
// hdactl accepts, kept in a plain YAML config file rather than a sprawling
// flag set for anything non-transient.
type fixtureConfig struct {
	SampleRate    uint32 `yaml:"sample_rate"`
	Channels      uint8  `yaml:"channels"`
	BitsPerSample uint8  `yaml:"bits_per_sample"`
	Volume        uint8  `yaml:"volume"`
}

func defaultConfig() fixtureConfig {
	return fixtureConfig{SampleRate: 48000, Channels: 2, BitsPerSample: 16, Volume: 80}
}

func loadConfig(path string) (fixtureConfig, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("hdactl: parse config: %w", err)
	}
	return cfg, nil
}

func main() {
	var (
		configPath = pflag.StringP("config", "c", "", "path to a YAML config file (sample_rate, channels, bits_per_sample, volume)")
		listOnly   = pflag.BoolP("list", "l", false, "probe the controller, list outputs, and exit")
		playFile   = pflag.StringP("play", "p", "", "path to a raw PCM file to stream to the first discovered output")
		verbose    = pflag.BoolP("verbose", "v", false, "enable debug logging")
		help       = pflag.BoolP("help", "h", false, "show usage")
	)
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "hdactl - probe and exercise an Intel HDA controller\n\n")
		fmt.Fprintf(os.Stderr, "Usage: hdactl [options]\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	if *verbose {
		charmlog.SetLevel(charmlog.DebugLevel)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		charmlog.Fatal("loading config", "err", err)
	}

	dev, ok := hostpci.Find(0x8086, 0xA0C8)
	if !ok {
		charmlog.Fatal("no Intel HDA controller found under /sys/bus/pci/devices")
	}
	charmlog.Info("found controller", "address", dev.Address)

	services := hostpci.NewServices()
	ctrl := hda.New(services, dev)

	initCtx, cancelInit := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelInit()

	if err := ctrl.Init(initCtx); err != nil {
		charmlog.Fatal("controller init failed", "err", err)
	}
	defer ctrl.Destroy(context.Background())

	printTopology(ctrl)

	if *listOnly {
		return
	}

	if *playFile == "" {
		return
	}
	if err := play(context.Background(), ctrl, cfg, *playFile); err != nil {
		charmlog.Fatal("playback failed", "err", err)
	}
}

func printTopology(ctrl *hda.Controller) {
	for _, codec := range ctrl.Codecs {
		fmt.Printf("codec %d:\n", codec.Address)
		for _, group := range codec.OutputGroups {
			fmt.Printf("  association %d:\n", group.Association)
			for _, out := range group.Outputs {
				fmt.Printf("    nid %d  device=%v  kind=%v\n", out.WidgetNID, out.Device, out.Kind())
			}
		}
	}
}

// play streams a raw PCM file (interleaved, little-endian, matching cfg) to
// the first output of the first non-empty output group; if no path reaches
// that output, it returns the error without trying another. The stream's
// fill callback reads straight from the file, and play polls the file
// position until the file is exhausted.
func play(ctx context.Context, ctrl *hda.Controller, cfg fixtureConfig, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var target *hda.Output
	var codec *hda.Codec
	for _, c := range ctrl.Codecs {
		for _, g := range c.OutputGroups {
			if len(g.Outputs) > 0 {
				target = g.Outputs[0]
				codec = c
				break
			}
		}
		if target != nil {
			break
		}
	}
	if target == nil {
		return hda.ErrUnsupported
	}

	p, err := codec.FindPath(target, nil, false)
	if err != nil {
		return err
	}

	streams := ctrl.OutputStreams()
	if len(streams) == 0 {
		return hda.ErrUnsupported
	}
	stream := streams[0]
	if err := stream.Setup(playbackRingSize); err != nil {
		return err
	}
	defer stream.Destroy()

	format := hda.NewPCMFormat(cfg.SampleRate, cfg.Channels, cfg.BitsPerSample)
	if err := p.Setup(ctx, stream, format); err != nil {
		return err
	}
	defer p.Shutdown(ctx)

	if err := p.SetVolume(ctx, cfg.Volume); err != nil {
		return err
	}

	stream.SetCallbacks(func(buf []byte) int {
		n, _ := io.ReadFull(f, buf)
		return n
	}, stream.BufferSize()/4, func() {
		charmlog.Warn("playback buffer ran low")
	})

	stream.Play(true)
	defer stream.Play(false)

	charmlog.Info("playing", "rate", cfg.SampleRate, "channels", cfg.Channels, "bits", cfg.BitsPerSample)

	// Run until the file is exhausted or the context is cancelled, polling
	// at a coarse interval since this reference CLI has no real IRQ bridge
	// (see hostpci.Services.PCIAllocateIRQ).
	var pos int64
	info, _ := f.Stat()
	size := int64(0)
	if info != nil {
		size = info.Size()
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		cur, err := f.Seek(0, io.SeekCurrent)
		if err == nil {
			pos = cur
		}
		if size > 0 && pos >= size {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
}
