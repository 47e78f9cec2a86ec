package audio

import "math"

// SilenceDBFS is the level reported for empty or all-zero PCM, and the floor
// below which levels are clamped.
const SilenceDBFS = -100.0

// LevelDBFS computes the RMS magnitude of int16 PCM normalised to dBFS.
// 0 dBFS corresponds to a full-scale constant signal; results are clamped to
// [SilenceDBFS, 0].
func LevelDBFS(pcm []int16) float64 {
	if len(pcm) == 0 {
		return SilenceDBFS
	}
	var sum float64
	for _, s := range pcm {
		v := float64(s)
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(pcm)))
	if rms <= 0 {
		return SilenceDBFS
	}
	db := 20 * math.Log10(rms/32767.0)
	if db < SilenceDBFS {
		return SilenceDBFS
	}
	if db > 0 {
		return 0
	}
	return db
}
