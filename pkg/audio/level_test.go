package audio_test

import (
	"math"
	"testing"

	"github.com/shackpi/remotetrx/pkg/audio"
)

func TestLevelDBFS_Silence(t *testing.T) {
	t.Parallel()

	if got := audio.LevelDBFS(nil); got != audio.SilenceDBFS {
		t.Errorf("LevelDBFS(nil) = %v, want %v", got, audio.SilenceDBFS)
	}
	if got := audio.LevelDBFS(make([]int16, 1024)); got != audio.SilenceDBFS {
		t.Errorf("LevelDBFS(zeros) = %v, want %v", got, audio.SilenceDBFS)
	}
}

func TestLevelDBFS_FullScale(t *testing.T) {
	t.Parallel()

	pcm := make([]int16, 1024)
	for i := range pcm {
		pcm[i] = 32767
	}
	if got := audio.LevelDBFS(pcm); math.Abs(got) > 1e-9 {
		t.Errorf("LevelDBFS(full scale) = %v, want 0", got)
	}
}

func TestLevelDBFS_HalfScale(t *testing.T) {
	t.Parallel()

	pcm := make([]int16, 1024)
	for i := range pcm {
		pcm[i] = 16384
	}
	// 20*log10(16384/32767) ≈ -6.02 dBFS.
	got := audio.LevelDBFS(pcm)
	if math.Abs(got-(-6.02)) > 0.01 {
		t.Errorf("LevelDBFS(half scale) = %v, want ≈ -6.02", got)
	}
}

func TestLevelDBFS_ClampedToFloor(t *testing.T) {
	t.Parallel()

	// A single LSB sample in a long frame sits below -100 dBFS.
	pcm := make([]int16, 1<<15)
	pcm[0] = 1
	if got := audio.LevelDBFS(pcm); got != audio.SilenceDBFS {
		t.Errorf("LevelDBFS = %v, want clamp to %v", got, audio.SilenceDBFS)
	}
}

func TestLevelDBFS_MonotonicInAmplitude(t *testing.T) {
	t.Parallel()

	level := func(amp int16) float64 {
		pcm := make([]int16, 256)
		for i := range pcm {
			pcm[i] = amp
		}
		return audio.LevelDBFS(pcm)
	}

	quiet, loud := level(1000), level(20000)
	if quiet >= loud {
		t.Errorf("level(1000) = %v should be below level(20000) = %v", quiet, loud)
	}
}
