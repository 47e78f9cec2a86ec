package audio

// Chunker re-slices PCM of arbitrary length into exact fixed-size frames.
// The bridge and its transports may negotiate different frame sizes (e.g.
// 1024-sample hardware blocks against a 480-sample wire cadence); a Chunker
// sits at each boundary so every side always receives frames of its expected
// size. Leftover samples are carried into the next Write.
//
// Create one per stream; not designed for shared use across goroutines.
type Chunker struct {
	size int
	buf  []int16
}

// NewChunker creates a Chunker emitting frames of size samples.
// size must be at least 1; smaller values are clamped.
func NewChunker(size int) *Chunker {
	if size < 1 {
		size = 1
	}
	return &Chunker{size: size}
}

// Write appends pcm to the pending buffer and returns all complete frames
// now available, in order. Each returned slice is freshly allocated and owned
// by the caller.
func (c *Chunker) Write(pcm []int16) [][]int16 {
	c.buf = append(c.buf, pcm...)

	var out [][]int16
	for len(c.buf) >= c.size {
		frame := make([]int16, c.size)
		copy(frame, c.buf[:c.size])
		c.buf = c.buf[c.size:]
		out = append(out, frame)
	}
	// Reclaim the backing array once it has been fully consumed.
	if len(c.buf) == 0 {
		c.buf = nil
	}
	return out
}

// Pending returns the number of buffered samples awaiting a complete frame.
func (c *Chunker) Pending() int {
	return len(c.buf)
}

// BytesToPCM reinterprets little-endian int16 PCM bytes as samples.
// A trailing odd byte is ignored.
func BytesToPCM(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(uint16(b[2*i]) | uint16(b[2*i+1])<<8)
	}
	return pcm
}

// PCMToBytes encodes samples as little-endian int16 PCM bytes.
func PCMToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[2*i] = byte(uint16(s))
		b[2*i+1] = byte(uint16(s) >> 8)
	}
	return b
}

// MonoToStereo duplicates each mono sample into both channels of an
// interleaved stereo buffer.
func MonoToStereo(mono []int16) []int16 {
	st := make([]int16, len(mono)*2)
	for i, s := range mono {
		st[2*i] = s
		st[2*i+1] = s
	}
	return st
}

// StereoToMono averages each interleaved stereo sample pair into one mono
// sample. A trailing unpaired sample is ignored.
func StereoToMono(stereo []int16) []int16 {
	mono := make([]int16, len(stereo)/2)
	for i := range mono {
		mono[i] = int16((int32(stereo[2*i]) + int32(stereo[2*i+1])) / 2)
	}
	return mono
}
