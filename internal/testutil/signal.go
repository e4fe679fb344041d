// Package testutil holds signal generators and fakes shared by package tests.
package testutil

import "math"

// SineWave returns size samples of a sine at frequency Hz with the given amplitude.
func SineWave(size int, sampleRate, frequency, amplitude float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = float32(math.Sin(2*math.Pi*frequency*t) * amplitude)
	}
	return buffer
}

// ComplexWave returns a 440Hz fundamental plus two harmonics, like a sustained note.
func ComplexWave(size int, sampleRate float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2
		buffer[i] = float32(signal * 0.9)
	}
	return buffer
}

// Mix sums the given buffers sample by sample. All buffers must share a length.
func Mix(buffers ...[]float32) []float32 {
	if len(buffers) == 0 {
		return nil
	}
	out := make([]float32, len(buffers[0]))
	for _, b := range buffers {
		for i := range out {
			out[i] += b[i]
		}
	}
	return out
}

// Silence returns size zero samples.
func Silence(size int) []float32 {
	return make([]float32, size)
}
