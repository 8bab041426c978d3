// Package delayline provides a fixed-size circular delay line shared by the
// echo cancellation strategies.
package delayline

import "fmt"

// Line is a circular delay line of fixed size.
type Line struct {
	buffer   []float64
	writePos int
}

// New returns a delay line of fixed size.
func New(size int) (*Line, error) {
	if size <= 0 {
		return nil, fmt.Errorf("delayline: size must be > 0: %d", size)
	}
	return &Line{buffer: make([]float64, size)}, nil
}

// Len returns internal buffer size.
func (d *Line) Len() int {
	return len(d.buffer)
}

// Write writes one sample.
func (d *Line) Write(sample float64) {
	d.buffer[d.writePos] = sample
	d.writePos++
	if d.writePos >= len(d.buffer) {
		d.writePos = 0
	}
}

// WriteBlock writes a block of samples in order.
func (d *Line) WriteBlock(samples []float64) {
	for _, s := range samples {
		d.Write(s)
	}
}

// Read reads an integer delay in samples. Delay 1 is the most recently
// written sample; delay Len() is the oldest. Delays outside [1, Len()]
// wrap modulo the buffer size.
func (d *Line) Read(delay int) float64 {
	size := len(d.buffer)
	readPos := ((d.writePos-delay)%size + size) % size
	return d.buffer[readPos]
}

// CopyRecent copies the most recent len(dst) samples into dst, oldest first.
// len(dst) must not exceed Len().
func (d *Line) CopyRecent(dst []float64) {
	n := len(dst)
	for i := range dst {
		dst[i] = d.Read(n - i)
	}
}

// Reset clears line state.
func (d *Line) Reset() {
	for i := range d.buffer {
		d.buffer[i] = 0
	}
	d.writePos = 0
}
