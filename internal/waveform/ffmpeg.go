package waveform

import (
	"bytes"
	"context"
	"encoding/binary"
	"os/exec"
	"runtime"
	"strconv"
	"time"

	"github.com/soundvault/wavegen/internal/errors"
)

// defaultDecodeTimeout bounds a single ffmpeg decode run. Generous to
// accommodate slow storage under I/O pressure.
const defaultDecodeTimeout = 90 * time.Second

// FFmpegDecoder decodes arbitrary audio formats by spawning ffmpeg and
// reading raw s16le mono PCM from its stdout.
type FFmpegDecoder struct {
	// FfmpegPath is the ffmpeg binary to execute.
	FfmpegPath string
	// SampleRate is the decode sample rate requested from ffmpeg.
	SampleRate int
	// Timeout overrides defaultDecodeTimeout when positive.
	Timeout time.Duration
}

// NewFFmpegDecoder creates a subprocess decoder.
func NewFFmpegDecoder(ffmpegPath string, sampleRate int) *FFmpegDecoder {
	return &FFmpegDecoder{FfmpegPath: ffmpegPath, SampleRate: sampleRate}
}

// Decode runs ffmpeg on the input file and converts its raw PCM output to
// float32 samples. A decode failure is fatal: corrupt input does not get
// better on retry.
func (d *FFmpegDecoder) Decode(ctx context.Context, path string) ([]float32, error) {
	if d.FfmpegPath == "" {
		return nil, errors.Newf("ffmpeg binary not configured").
			Component("waveform").
			Category(errors.CategoryConfiguration).
			Context("operation", "ffmpeg_decode").
			Build()
	}

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = defaultDecodeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{
		"-hide_banner",
		"-i", path,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", "1",
		"-ar", strconv.Itoa(d.SampleRate),
		"-",
	}

	cmd := createCommandWithNice(ctx, d.FfmpegPath, args)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// Yield to other goroutines before/after blocking on the external process
	runtime.Gosched()
	if err := cmd.Run(); err != nil {
		return nil, errors.New(err).
			Component("waveform").
			Category(errors.CategoryAudioDecode).
			Context("operation", "ffmpeg_decode").
			Context("ffmpeg_output", stderr.String()).
			Build()
	}
	runtime.Gosched()

	return pcm16ToFloat32(stdout.Bytes()), nil
}

// createCommandWithNice creates an exec.Cmd with a nice wrapper on
// non-Windows systems so decoding does not starve the workers.
func createCommandWithNice(ctx context.Context, binary string, args []string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, binary, args...) // #nosec G204 - binary comes from validated configuration
	}
	return exec.CommandContext(ctx, "nice", append([]string{"-n", "19", binary}, args...)...) // #nosec G204 - binary comes from validated configuration
}

// pcm16ToFloat32 converts little-endian signed 16-bit PCM bytes to float32
// samples in [-1, 1]. A trailing odd byte is dropped.
func pcm16ToFloat32(data []byte) []float32 {
	samples := make([]float32, 0, len(data)/2)
	for i := 0; i+1 < len(data); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(data[i:]))
		samples = append(samples, float32(sample)/32768.0)
	}
	return samples
}
