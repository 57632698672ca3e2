package media

import (
	"fmt"
	"os"

	"github.com/gopxl/beep/wav"
)

// Verify decodes the WAV header at path and checks it is mono PCM at
// sampleRate.
func Verify(path string, sampleRate int) (*Audio, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	stream, format, err := wav.Decode(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("decoding wav: %w", err)
	}
	defer stream.Close()

	if format.NumChannels != 1 {
		return nil, fmt.Errorf("expected mono audio, got %d channels", format.NumChannels)
	}
	if int(format.SampleRate) != sampleRate {
		return nil, fmt.Errorf("expected %d Hz, got %d Hz", sampleRate, int(format.SampleRate))
	}

	samples := stream.Len()
	return &Audio{
		Path:       path,
		SampleRate: int(format.SampleRate),
		Channels:   format.NumChannels,
		Samples:    samples,
		Duration:   format.SampleRate.D(samples),
	}, nil
}
