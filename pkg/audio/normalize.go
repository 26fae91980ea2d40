package audio

import (
	"encoding/binary"
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Format describes a 16-bit signed PCM stream.
type Format struct {
	// SampleRate in Hz (e.g. 16000, 44100, 48000).
	SampleRate int

	// Stereo is true for 2 channels, false for mono.
	Stereo bool
}

// Pipeline16KMono is the format the speech pipeline consumes.
var Pipeline16KMono = Format{SampleRate: 16000}

func (f Format) channels() int {
	if f.Stereo {
		return 2
	}
	return 1
}

// Normalize converts one chunk of 16-bit little-endian PCM from src format
// to 16 kHz mono. Stereo input is downmixed by averaging channels before
// rate conversion. Input that is already 16 kHz mono is returned unchanged.
func Normalize(pcm []byte, src Format) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("audio: odd pcm length %d", len(pcm))
	}
	if src.Stereo {
		pcm = downmix(pcm)
	}
	if src.SampleRate == Pipeline16KMono.SampleRate {
		return pcm, nil
	}

	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(src.SampleRate),
		OutputRate: float64(Pipeline16KMono.SampleRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("audio: create resampler: %w", err)
	}

	numSamples := len(pcm) / 2
	input := make([]float64, numSamples)
	for i := range numSamples {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		input[i] = float64(s) / 32768.0
	}

	output, err := rs.Process(input)
	if err != nil {
		return nil, fmt.Errorf("audio: resample: %w", err)
	}

	out := make([]byte, len(output)*2)
	for i, v := range output {
		s := int16(v * 32767.0)
		if v > 1.0 {
			s = 32767
		} else if v < -1.0 {
			s = -32768
		}
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out, nil
}

// downmix averages L and R channels of interleaved stereo samples.
func downmix(b []byte) []byte {
	numFrames := len(b) / 4
	out := make([]byte, numFrames*2)
	for i := range numFrames {
		j := i * 4
		l := int16(b[j]) | int16(b[j+1])<<8
		r := int16(b[j+2]) | int16(b[j+3])<<8
		m := int16((int32(l) + int32(r)) / 2)
		out[i*2] = byte(m)
		out[i*2+1] = byte(m >> 8)
	}
	return out
}

// WAV wraps raw 16 kHz mono PCM in a minimal RIFF header so it can be
// handed to transcription APIs that expect a container.
func WAV(pcm []byte) []byte {
	const (
		rate     = 16000
		channels = 1
		bits     = 16
	)
	blockAlign := channels * bits / 8
	out := make([]byte, 44+len(pcm))

	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")

	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:24], channels)
	binary.LittleEndian.PutUint32(out[24:28], rate)
	binary.LittleEndian.PutUint32(out[28:32], uint32(rate*blockAlign))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], bits)

	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[44:], pcm)
	return out
}
