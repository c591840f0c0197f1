// package player plays an MP3 byte stream on the default output device.
//
// The sink pulls from the stream as the device drains its buffer, so
// backpressure against the network response is implicit. A read error
// mid-stream aborts playback and is returned to the caller rather than
// truncating silently.
package player

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
	mp3 "github.com/hajimehoshi/go-mp3"
	"github.com/lynxfm/lynx/internal/shared"
)

// Sink consumes a lazy audio byte stream until it ends, the context is
// cancelled, or the stream errors.
type Sink interface {
	Play(ctx context.Context, stream io.Reader) error
}

// MP3Sink decodes MP3 and plays it via the system audio device.
type MP3Sink struct {
	logger *log.Logger
}

// NewMP3Sink creates a sink logging through the given logger.
func NewMP3Sink(logger *log.Logger) *MP3Sink {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &MP3Sink{logger: logger}
}

// Play decodes and plays the stream. Cancellation releases the audio device
// before returning; decode positions are not recoverable, so a cancelled or
// failed playback is terminal for this stream.
func (s *MP3Sink) Play(ctx context.Context, stream io.Reader) error {
	decoder, err := mp3.NewDecoder(stream)
	if err != nil {
		return fmt.Errorf("failed to decode audio stream: %w", err)
	}

	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   decoder.SampleRate(),
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return fmt.Errorf("failed to open audio device: %w", err)
	}

	select {
	case <-ready:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.logger.Debug("audio device ready", "sample_rate", decoder.SampleRate())

	p := otoCtx.NewPlayer(decoder)
	defer p.Close()

	p.Play()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for p.IsPlaying() {
		select {
		case <-ctx.Done():
			p.Pause()
			return ctx.Err()
		case <-ticker.C:
		}

		if err := p.Err(); err != nil {
			return fmt.Errorf("playback aborted: %w", err)
		}
	}

	if err := p.Err(); err != nil {
		return fmt.Errorf("playback aborted: %w", err)
	}

	return nil
}
