package audio

// Buffer holds decoded PCM ready for playback, one float slice per channel,
// samples normalized to [-1, 1].
type Buffer struct {
	Channels   [][]float32
	SampleRate int
}

// FrameCount returns the number of samples per channel.
func (b *Buffer) FrameCount() int {
	if b == nil || len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns playback length in seconds.
func (b *Buffer) Duration() float64 {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return float64(b.FrameCount()) / float64(b.SampleRate)
}
