package waveform

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundvault/wavegen/internal/errors"
)

// stubDecoder returns canned samples or a canned error.
type stubDecoder struct {
	samples []float32
	err     error
}

func (d *stubDecoder) Decode(ctx context.Context, path string) ([]float32, error) {
	return d.samples, d.err
}

// pathXCount counts the coordinate pairs in the rendered path data.
func pathXCount(t *testing.T, svg string) int {
	t.Helper()
	start := strings.Index(svg, `d="`)
	require.GreaterOrEqual(t, start, 0)
	end := strings.Index(svg[start+3:], `"`)
	require.GreaterOrEqual(t, end, 0)
	return len(strings.Fields(svg[start+3 : start+3+end]))
}

func rampSamples(n int) []float32 {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(i) / float32(n)
	}
	return samples
}

func TestGenerateWidthInvariant(t *testing.T) {
	t.Parallel()

	// Any sample count, including ones not divisible by width and ones
	// smaller than width, must yield exactly width x-coordinates.
	for _, sampleCount := range []int{0, 1, 7, 100, 799, 800, 801, 44100, 1_000_000} {
		for _, width := range []int{1, 10, 800} {
			g := NewGenerator(&stubDecoder{samples: rampSamples(sampleCount)})
			artifact, err := g.Generate(context.Background(), "test.wav", width, 128)
			require.NoError(t, err, "samples=%d width=%d", sampleCount, width)
			assert.Equal(t, width, pathXCount(t, artifact.PathData), "samples=%d width=%d", sampleCount, width)
			assert.Equal(t, sampleCount, artifact.SampleCount)
		}
	}
}

func TestGenerateSilentAudioProducesFlatLine(t *testing.T) {
	t.Parallel()

	g := NewGenerator(&stubDecoder{samples: make([]float32, 4096)})
	artifact, err := g.Generate(context.Background(), "silence.wav", 100, 128)
	require.NoError(t, err)

	// Every y coordinate sits on the baseline at height/2.
	assert.Equal(t, 100, strings.Count(artifact.PathData, ",64.00"))
}

func TestGenerateEmptyAudioIsNotAnError(t *testing.T) {
	t.Parallel()

	g := NewGenerator(&stubDecoder{samples: nil})
	artifact, err := g.Generate(context.Background(), "empty.wav", 50, 64)
	require.NoError(t, err)
	assert.Equal(t, 50, pathXCount(t, artifact.PathData))
	assert.Zero(t, artifact.SampleCount)
}

func TestGenerateDecodeFailureIsFatal(t *testing.T) {
	t.Parallel()

	decodeErr := errors.Newf("corrupt stream").Category(errors.CategoryAudioDecode).Build()
	g := NewGenerator(&stubDecoder{err: decodeErr})

	_, err := g.Generate(context.Background(), "broken.ogg", 100, 128)
	require.Error(t, err)
	assert.False(t, errors.IsRetryable(err), "corrupt audio must not be retried")
}

func TestGenerateRejectsBadDimensions(t *testing.T) {
	t.Parallel()

	g := NewGenerator(&stubDecoder{samples: rampSamples(10)})
	for _, dims := range [][2]int{{0, 128}, {800, 0}, {-1, -1}} {
		_, err := g.Generate(context.Background(), "a.wav", dims[0], dims[1])
		assert.Error(t, err, "dims %v", dims)
	}
}

func TestGenerateArtifactMetadata(t *testing.T) {
	t.Parallel()

	g := NewGenerator(&stubDecoder{samples: rampSamples(1000)})
	artifact, err := g.Generate(context.Background(), "a.wav", 200, 64)
	require.NoError(t, err)

	assert.Equal(t, len(artifact.PathData), artifact.ByteSize)
	assert.Equal(t, 200, artifact.Width)
	assert.Equal(t, 64, artifact.Height)
	assert.Contains(t, artifact.PathData, `viewBox="0 0 200 64"`)
	assert.GreaterOrEqual(t, artifact.ProcessingTime, time.Duration(0))
}

func TestDownsamplePeaksRemainderAbsorbedByLastBucket(t *testing.T) {
	t.Parallel()

	// 10 samples into 3 buckets: windows of 3, last bucket takes 3+1.
	samples := []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.1, 0.1, 0.1, 0.9}
	peaks := downsamplePeaks(samples, 3)

	require.Len(t, peaks, 3)
	assert.InDelta(t, 0.3, peaks[0], 1e-6)
	assert.InDelta(t, 0.6, peaks[1], 1e-6)
	assert.InDelta(t, 0.9, peaks[2], 1e-6, "remainder sample must land in the final bucket")
}

func TestDownsamplePeaksUsesAbsoluteAmplitude(t *testing.T) {
	t.Parallel()

	peaks := downsamplePeaks([]float32{-0.8, 0.2}, 1)
	require.Len(t, peaks, 1)
	assert.InDelta(t, 0.8, peaks[0], 1e-6)
}

func TestDownsamplePeaksClampsOverdrivenInput(t *testing.T) {
	t.Parallel()

	peaks := downsamplePeaks([]float32{1.7, -2.0}, 1)
	require.Len(t, peaks, 1)
	assert.InDelta(t, 1.0, peaks[0], 1e-6)
}

func TestRenderSVGCoordinatesIncreaseInX(t *testing.T) {
	t.Parallel()

	svg := renderSVG([]float32{0.5, 0.25, 1.0}, 3, 100)
	for x := 0; x < 3; x++ {
		prefix := "M"
		if x > 0 {
			prefix = "L"
		}
		assert.Contains(t, svg, fmt.Sprintf("%s%d,", prefix, x))
	}
}
