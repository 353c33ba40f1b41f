// Package speaker plays a [synth.Context] on the host's default output device
// through beep's speaker backend.
package speaker

import (
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"

	"github.com/MrWong99/chordcoord/pkg/audio/synth"
)

// DefaultBuffer is the device buffer length. Shorter buffers reduce output
// latency at the cost of underruns on loaded hosts.
const DefaultBuffer = 100 * time.Millisecond

var initOnce struct {
	sync.Mutex
	rate beep.SampleRate
	done bool
}

// Output is a [synth.Context] bound to the speaker.
type Output struct {
	*synth.Context
}

// Open initialises the speaker at sr (once per process) and starts playing a
// fresh synthesis context. buffer is the device buffer length; zero selects
// [DefaultBuffer]. It only takes effect on the first call. Close the
// returned output to silence it.
func Open(sr beep.SampleRate, buffer time.Duration, opts ...synth.Option) (*Output, error) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	initOnce.Lock()
	defer initOnce.Unlock()
	if !initOnce.done {
		if err := speaker.Init(sr, sr.N(buffer)); err != nil {
			return nil, fmt.Errorf("speaker: init at %d Hz: %w", sr, err)
		}
		initOnce.done = true
		initOnce.rate = sr
	} else if initOnce.rate != sr {
		return nil, fmt.Errorf("speaker: already initialised at %d Hz, requested %d Hz", initOnce.rate, sr)
	}

	out := &Output{Context: synth.New(sr, opts...)}
	speaker.Play(out.Context)
	return out, nil
}

// Close stops the context; the speaker drops it on its next pull.
func (o *Output) Close() error {
	return o.Context.Close()
}
