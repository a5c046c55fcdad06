package waveform

import (
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/soundvault/wavegen/internal/errors"
)

// wavReadBufferSize is the number of int samples read per PCMBuffer call.
const wavReadBufferSize = 65536

// decodeWAV reads a WAV file into mono float32 samples. Multi-channel
// input is downmixed by averaging the channels.
func decodeWAV(path string) ([]float32, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Component("waveform").
			Category(errors.CategoryFileIO).
			Context("operation", "decode_wav").
			Build()
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return nil, errors.Newf("input is not a valid WAV audio file").
			Component("waveform").
			Category(errors.CategoryAudioDecode).
			Context("operation", "decode_wav").
			Build()
	}

	divisor, err := getAudioDivisor(int(decoder.BitDepth))
	if err != nil {
		return nil, err
	}

	channels := int(decoder.NumChans)
	if channels < 1 {
		return nil, errors.Newf("unsupported number of channels: %d", channels).
			Component("waveform").
			Category(errors.CategoryAudioDecode).
			Build()
	}

	buf := &audio.IntBuffer{
		Data:   make([]int, wavReadBufferSize),
		Format: &audio.Format{SampleRate: int(decoder.SampleRate), NumChannels: channels},
	}

	var samples []float32
	var frame []float32 // carries a partial frame across buffer boundaries

	for {
		n, err := decoder.PCMBuffer(buf)
		if err != nil {
			return nil, errors.New(err).
				Component("waveform").
				Category(errors.CategoryAudioDecode).
				Context("operation", "decode_wav").
				Build()
		}
		if n == 0 {
			break
		}

		for _, sample := range buf.Data[:n] {
			frame = append(frame, float32(sample)/divisor)
			if len(frame) == channels {
				samples = append(samples, mixdown(frame))
				frame = frame[:0]
			}
		}
	}

	return samples, nil
}

// mixdown averages one frame of per-channel samples into a mono sample.
func mixdown(frame []float32) float32 {
	if len(frame) == 1 {
		return frame[0]
	}
	var sum float32
	for _, s := range frame {
		sum += s
	}
	return sum / float32(len(frame))
}
