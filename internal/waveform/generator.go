package waveform

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/soundvault/wavegen/internal/errors"
	"github.com/soundvault/wavegen/internal/logging"
)

// Artifact is the rendered waveform for one audio source. The path data is
// a width×height normalized SVG document, independent of audio duration.
type Artifact struct {
	PathData       string        // serialized SVG document
	SampleCount    int           // decoded samples the artifact was derived from
	ProcessingTime time.Duration // decode + render wall time
	ByteSize       int           // len(PathData)
	Width          int
	Height         int
}

// Generator renders waveform artifacts at a fixed visual resolution.
// Amplitude aggregation per bucket uses the window peak rather than RMS:
// peaks preserve transients that make a waveform recognizable at a glance.
type Generator struct {
	decoder Decoder
	logger  *slog.Logger
}

// NewGenerator creates a generator using the given decoder.
func NewGenerator(decoder Decoder) *Generator {
	return &Generator{
		decoder: decoder,
		logger:  logging.ForService("waveform"),
	}
}

// Generate decodes the audio file and renders an SVG waveform of exactly
// width buckets. A zero-length or silent file produces a valid flat-line
// artifact; an unreadable or corrupt file is a fatal error.
func (g *Generator) Generate(ctx context.Context, audioPath string, width, height int) (*Artifact, error) {
	start := time.Now()

	if width <= 0 || height <= 0 {
		return nil, errors.Newf("waveform dimensions must be positive, got %dx%d", width, height).
			Component("waveform").
			Category(errors.CategoryValidation).
			Context("operation", "generate").
			Build()
	}

	samples, err := g.decoder.Decode(ctx, audioPath)
	if err != nil {
		return nil, err
	}

	peaks := downsamplePeaks(samples, width)
	svg := renderSVG(peaks, width, height)

	artifact := &Artifact{
		PathData:       svg,
		SampleCount:    len(samples),
		ProcessingTime: time.Since(start),
		ByteSize:       len(svg),
		Width:          width,
		Height:         height,
	}

	g.logger.Debug("waveform generated",
		"audio_path", audioPath,
		"samples", artifact.SampleCount,
		"width", width,
		"height", height,
		"bytes", artifact.ByteSize,
		"duration_ms", artifact.ProcessingTime.Milliseconds())

	return artifact, nil
}

// downsamplePeaks partitions samples into exactly width contiguous windows
// and takes each window's absolute peak. When the sample count is not
// evenly divisible by width, the final bucket absorbs the remainder. Fewer
// samples than buckets still yields width buckets, trailing ones silent.
func downsamplePeaks(samples []float32, width int) []float32 {
	peaks := make([]float32, width)
	if len(samples) == 0 {
		return peaks
	}

	windowSize := len(samples) / width
	if windowSize == 0 {
		windowSize = 1
	}

	for i := 0; i < width; i++ {
		lo := i * windowSize
		if lo >= len(samples) {
			break
		}
		hi := lo + windowSize
		if i == width-1 || hi > len(samples) {
			hi = len(samples)
		}

		var peak float32
		for _, s := range samples[lo:hi] {
			if s < 0 {
				s = -s
			}
			if s > peak {
				peak = s
			}
		}
		if peak > 1 {
			peak = 1
		}
		peaks[i] = peak
	}

	return peaks
}

// renderSVG serializes bucket peaks into an SVG path with one x coordinate
// per bucket, mapped into [0, height] around the baseline at height/2.
func renderSVG(peaks []float32, width, height int) string {
	baseline := float64(height) / 2

	var path strings.Builder
	for x, peak := range peaks {
		y := baseline - float64(peak)*baseline
		cmd := byte('L')
		if x == 0 {
			cmd = 'M'
		}
		fmt.Fprintf(&path, "%c%d,%.2f ", cmd, x, y)
	}

	return fmt.Sprintf(
		`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d" preserveAspectRatio="none"><path d="%s" fill="none" stroke="currentColor" stroke-width="1"/></svg>`,
		width, height, width, height, strings.TrimSpace(path.String()))
}
