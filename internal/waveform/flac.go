package waveform

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/tphakala/flac"

	"github.com/soundvault/wavegen/internal/errors"
)

// decodeFLAC reads a FLAC file into mono float32 samples.
func decodeFLAC(path string) ([]float32, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Component("waveform").
			Category(errors.CategoryFileIO).
			Context("operation", "decode_flac").
			Build()
	}
	defer file.Close()

	decoder, err := flac.NewDecoder(file)
	if err != nil {
		return nil, errors.New(err).
			Component("waveform").
			Category(errors.CategoryAudioDecode).
			Context("operation", "decode_flac").
			Build()
	}

	divisor, err := getAudioDivisor(decoder.BitsPerSample)
	if err != nil {
		return nil, err
	}

	bytesPerSample := decoder.BitsPerSample / 8
	frameStride := bytesPerSample * decoder.NChannels

	var samples []float32
	for {
		frame, err := decoder.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, errors.New(err).
				Component("waveform").
				Category(errors.CategoryAudioDecode).
				Context("operation", "decode_flac_frame").
				Build()
		}

		for i := 0; i+frameStride <= len(frame); i += frameStride {
			var sum float32
			for ch := 0; ch < decoder.NChannels; ch++ {
				off := i + ch*bytesPerSample
				var sample int32
				switch decoder.BitsPerSample {
				case 16:
					sample = int32(int16(binary.LittleEndian.Uint16(frame[off:])))
				case 24:
					// Sign-extend the 24-bit little-endian value.
					sample = int32(frame[off]) | int32(frame[off+1])<<8 | int32(frame[off+2])<<16
					sample = sample << 8 >> 8
				case 32:
					sample = int32(binary.LittleEndian.Uint32(frame[off:]))
				}
				sum += float32(sample) / divisor
			}
			samples = append(samples, sum/float32(decoder.NChannels))
		}
	}

	return samples, nil
}
