package audio

// SampleRate is the fixed output rate of the synthesis model.
const SampleRate = 24000

// Clip is decoded audio laid out frames × channels.
type Clip struct {
	Frames     [][]float32
	SampleRate int
}

// Channels reports the channel count of the first frame.
func (c Clip) Channels() int {
	if len(c.Frames) == 0 {
		return 0
	}
	return len(c.Frames[0])
}

// Column reshapes mono samples into a single-column frame matrix.
func Column(samples []float32) [][]float32 {
	frames := make([][]float32, len(samples))
	for i, s := range samples {
		frames[i] = []float32{s}
	}
	return frames
}

// ToFrames normalizes a sample matrix to frames × channels. A matrix whose
// leading dimension is the narrower one is channel-major and gets transposed.
func ToFrames(m [][]float32) [][]float32 {
	if len(m) == 0 || len(m) >= len(m[0]) {
		return m
	}
	return transpose(m)
}

func transpose(m [][]float32) [][]float32 {
	rows, cols := len(m), len(m[0])
	out := make([][]float32, cols)
	for c := 0; c < cols; c++ {
		out[c] = make([]float32, rows)
		for r := 0; r < rows; r++ {
			out[c][r] = m[r][c]
		}
	}
	return out
}

// Concat joins segments in order into one waveform.
func Concat(segments [][]float32) []float32 {
	n := 0
	for _, s := range segments {
		n += len(s)
	}
	out := make([]float32, 0, n)
	for _, s := range segments {
		out = append(out, s...)
	}
	return out
}
