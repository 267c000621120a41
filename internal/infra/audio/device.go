package audio

import (
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ebitengine/oto/v3"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tonebox/internal/app/playback"
)

var _ playback.Device = (*Device)(nil)

// Backends
const (
	BackendOto  = "oto"  // Sound card via oto
	BackendNull = "null" // Mixer only, nothing is played
)

// Config represents audio output configuration.
type Config struct {
	Backend    string
	SampleRate int
	BufferMs   int
}

// Device is a Mixer attached to an output backend.
type Device struct {
	*Mixer

	mu     sync.Mutex
	ctx    *oto.Context
	player *oto.Player
	closed bool
}

// Open creates the mixer and starts the output backend.
func Open(cfg Config) (*Device, error) {
	if cfg.SampleRate <= 0 {
		return nil, errors.Newf("invalid sample rate %d", cfg.SampleRate)
	}

	d := &Device{Mixer: NewMixer(cfg.SampleRate)}

	switch strings.ToLower(cfg.Backend) {
	case BackendNull:
		zlog.Info().Msgf("audio: null backend, sample_rate=%d", cfg.SampleRate)
		return d, nil
	case BackendOto, "":
	default:
		return nil, errors.Newf("unknown audio backend %q", cfg.Backend)
	}

	op := &oto.NewContextOptions{
		SampleRate:   cfg.SampleRate,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
		BufferSize:   time.Duration(cfg.BufferMs) * time.Millisecond,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open audio context")
	}
	<-ready

	d.ctx = ctx
	d.player = ctx.NewPlayer(d.Mixer)
	if cfg.BufferMs > 0 {
		d.player.SetBufferSize(cfg.SampleRate * cfg.BufferMs / 1000 * 4)
	}
	d.player.Play()

	zlog.Info().Msgf("audio: oto backend started, sample_rate=%d buffer=%dms", cfg.SampleRate, cfg.BufferMs)
	return d, nil
}

// Close stops the output and suspends the audio context. oto contexts
// cannot be recreated within a process, so the context is only suspended.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	if d.player != nil {
		if err := d.player.Close(); err != nil {
			return errors.Wrap(err, "failed to close player")
		}
		d.player = nil
	}
	if d.ctx != nil {
		if err := d.ctx.Suspend(); err != nil {
			return errors.Wrap(err, "failed to suspend audio context")
		}
	}
	return nil
}
