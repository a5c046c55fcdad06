// Package waveform decodes audio files and renders fixed-resolution SVG
// waveform artifacts from the amplitude envelope.
package waveform

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/soundvault/wavegen/internal/errors"
)

// Decoder turns an audio file into a linear sequence of mono amplitude
// samples normalized to [-1, 1]. Implementations are a capability boundary:
// the sampling algorithm never sees how the samples were produced.
type Decoder interface {
	Decode(ctx context.Context, path string) ([]float32, error)
}

// getAudioDivisor returns the divisor converting integer PCM samples of the
// given bit depth to float32 in [-1, 1].
func getAudioDivisor(bitDepth int) (float32, error) {
	switch bitDepth {
	case 16:
		return 32768.0, nil
	case 24:
		return 8388608.0, nil
	case 32:
		return 2147483648.0, nil
	default:
		return 0, errors.Newf("unsupported audio bit depth: %d", bitDepth).
			Component("waveform").
			Category(errors.CategoryAudioDecode).
			Build()
	}
}

// FileDecoder dispatches to a native decoder by file extension and falls
// back to the ffmpeg subprocess for everything else.
type FileDecoder struct {
	ffmpeg *FFmpegDecoder
}

// NewFileDecoder creates a decoder chain with the given ffmpeg fallback.
func NewFileDecoder(ffmpeg *FFmpegDecoder) *FileDecoder {
	return &FileDecoder{ffmpeg: ffmpeg}
}

// Decode reads the audio file into mono float32 samples.
func (d *FileDecoder) Decode(ctx context.Context, path string) ([]float32, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".wav":
		return decodeWAV(path)
	case ".flac":
		return decodeFLAC(path)
	default:
		if d.ffmpeg == nil {
			return nil, errors.Newf("no decoder available for %q files", ext).
				Component("waveform").
				Category(errors.CategoryAudioDecode).
				Context("path_extension", ext).
				Build()
		}
		return d.ffmpeg.Decode(ctx, path)
	}
}
