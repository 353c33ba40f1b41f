package audio_test

import (
	"sync"
	"testing"

	"github.com/MrWong99/chordcoord/pkg/audio"
)

func TestTap_Latest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		size   int
		writes [][]float32
		dst    int
		want   []float32
	}{
		{
			name: "empty tap reads zeros",
			size: 4, dst: 3,
			want: []float32{0, 0, 0},
		},
		{
			name:   "partial fill pads left",
			size:   4,
			writes: [][]float32{{1, 2}},
			dst:    4,
			want:   []float32{0, 0, 1, 2},
		},
		{
			name:   "wraps around in order",
			size:   4,
			writes: [][]float32{{1, 2, 3}, {4, 5, 6}},
			dst:    4,
			want:   []float32{3, 4, 5, 6},
		},
		{
			name:   "oversized write keeps tail",
			size:   3,
			writes: [][]float32{{1, 2, 3, 4, 5}},
			dst:    3,
			want:   []float32{3, 4, 5},
		},
		{
			name:   "short read returns newest",
			size:   4,
			writes: [][]float32{{1, 2, 3, 4}},
			dst:    2,
			want:   []float32{3, 4},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tap := audio.NewTap(tt.size)
			for _, w := range tt.writes {
				tap.Write(w)
			}
			dst := make([]float32, tt.dst)
			n := tap.Latest(dst)
			if n != len(tt.want) {
				t.Fatalf("n = %d, want %d", n, len(tt.want))
			}
			for i := range tt.want {
				if dst[i] != tt.want[i] {
					t.Errorf("dst[%d] = %v, want %v (dst=%v)", i, dst[i], tt.want[i], dst)
				}
			}
		})
	}
}

func TestTap_CloseDropsWrites(t *testing.T) {
	t.Parallel()

	tap := audio.NewTap(2)
	tap.Write([]float32{1, 2})
	tap.Close()
	tap.Write([]float32{9, 9})

	dst := make([]float32, 2)
	tap.Latest(dst)
	if dst[0] != 1 || dst[1] != 2 {
		t.Errorf("after close dst = %v, want [1 2]", dst)
	}
}

func TestTap_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	tap := audio.NewTap(512)
	var wg sync.WaitGroup
	for range 4 {
		wg.Go(func() {
			chunk := make([]float32, 64)
			for range 100 {
				tap.Write(chunk)
			}
		})
	}
	wg.Go(func() {
		dst := make([]float32, 256)
		for range 100 {
			tap.Latest(dst)
		}
	})
	wg.Wait()
}

func TestTapStream_CloseOnce(t *testing.T) {
	t.Parallel()

	calls := 0
	s := audio.NewTapStream(audio.NewTap(8), 44100, func() error {
		calls++
		return nil
	})
	if s.SampleRate() != 44100 {
		t.Errorf("SampleRate = %d", s.SampleRate())
	}
	_ = s.Close()
	_ = s.Close()
	if calls != 1 {
		t.Errorf("onClose called %d times, want 1", calls)
	}
}
