// Package export writes captured debug tracks and learned filter
// coefficients to disk for offline analysis.
package export

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavBitDepth = 16

// WriteTrack writes one float track as a mono 16-bit PCM WAV file.
// Samples are expected in [-1, 1]; values outside are clipped.
func WriteTrack(path string, samples []float64, sampleRate float64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create %s: %w", path, err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, int(sampleRate), wavBitDepth, 1, 1)

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: int(sampleRate)},
		SourceBitDepth: wavBitDepth,
		Data:           make([]int, len(samples)),
	}

	for i, v := range samples {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		buf.Data[i] = int(v * 32767)
	}

	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("export: write %s: %w", path, err)
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("export: finalize %s: %w", path, err)
	}

	return nil
}

// WriteTracks writes every named track into dir as <name>.wav.
func WriteTracks(dir string, tracks map[string][]float64, sampleRate float64) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("export: create dir %s: %w", dir, err)
	}

	for name, samples := range tracks {
		path := filepath.Join(dir, name+".wav")
		if err := WriteTrack(path, samples, sampleRate); err != nil {
			return err
		}
	}

	return nil
}
