package stream

import (
	"bytes"

	"github.com/egrangel/facerecon-sub001/internal/metrics"
)

// maxAccumulatorBytes caps the framer's buffer. A corrupt stream that never
// produces an end marker would otherwise grow the accumulator without bound.
const maxAccumulatorBytes = 5 * 1024 * 1024

var (
	jpegStart = []byte{0xFF, 0xD8}
	jpegEnd   = []byte{0xFF, 0xD9}
)

// Framer reassembles complete JPEG images from the byte stream ffmpeg writes
// to its stdout pipe. Not safe for concurrent use; each session owns one.
type Framer struct {
	buf []byte
}

// Append adds a chunk and returns every complete frame now available. When
// the accumulator overflows without yielding a frame the buffered bytes are
// discarded and reassembly restarts at the next start marker.
func (f *Framer) Append(chunk []byte) [][]byte {
	f.buf = append(f.buf, chunk...)

	var frames [][]byte
	for {
		frame := f.next()
		if frame == nil {
			break
		}
		frames = append(frames, frame)
	}

	if len(f.buf) > maxAccumulatorBytes {
		metrics.FramerDropsTotal.Inc()
		f.buf = f.buf[:0]
	}
	return frames
}

func (f *Framer) next() []byte {
	start := bytes.Index(f.buf, jpegStart)
	if start == -1 {
		// No start marker; discard everything except a trailing 0xFF that
		// may pair with a 0xD8 in the next chunk.
		if n := len(f.buf); n > 0 {
			if f.buf[n-1] == 0xFF {
				f.buf[0] = 0xFF
				f.buf = f.buf[:1]
			} else {
				f.buf = f.buf[:0]
			}
		}
		return nil
	}

	end := bytes.Index(f.buf[start+2:], jpegEnd)
	if end == -1 {
		// Partial frame; drop the garbage before the start marker.
		if start > 0 {
			f.buf = f.buf[start:]
		}
		return nil
	}
	end += start + 2 + 2

	frame := make([]byte, end-start)
	copy(frame, f.buf[start:end])
	f.buf = f.buf[end:]
	return frame
}

// Buffered returns the number of bytes held in the accumulator.
func (f *Framer) Buffered() int {
	return len(f.buf)
}
