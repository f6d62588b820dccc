package render

import (
	"bytes"
	"encoding/binary"
	"math"
)

const (
	sampleRate    = 44100
	audioDuration = 10 // seconds
	toneHz        = 440.0
	markerHz      = 1000.0
)

// renderAudio produces a mono 16-bit WAV: a steady tone, with a short
// half-amplitude marker every 3 seconds in preview mode.
func (p *Placeholder) renderAudio(req Request) (*Result, error) {
	samples := make([]int16, sampleRate*audioDuration)
	for i := range samples {
		t := float64(i) / sampleRate
		samples[i] = int16(math.Sin(2*math.Pi*toneHz*t) * 32767)
	}

	if req.Preview {
		markerLen := sampleRate / 10 // 0.1 s
		for sec := 3; sec < audioDuration; sec += 3 {
			start := sec * sampleRate
			for i := start; i < start+markerLen && i < len(samples); i++ {
				t := float64(i) / sampleRate
				samples[i] = int16(math.Sin(2*math.Pi*markerHz*t) * 32767 * 0.5)
			}
		}
	}

	return &Result{Data: encodeWAV(samples), ContentType: "audio/wav", Ext: ".wav"}, nil
}

// encodeWAV wraps the samples in a minimal RIFF/WAVE container
// (PCM, mono, 16-bit).
func encodeWAV(samples []int16) []byte {
	dataLen := len(samples) * 2
	var buf bytes.Buffer

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2)) // byte rate
	binary.Write(&buf, binary.LittleEndian, uint16(2))            // block align
	binary.Write(&buf, binary.LittleEndian, uint16(16))           // bits per sample

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataLen))
	binary.Write(&buf, binary.LittleEndian, samples)

	return buf.Bytes()
}
