package synth

import (
	"context"
	"time"
)

// DefaultChunk is the pacing granularity used when none is given.
const DefaultChunk = 20 * time.Millisecond

// Pacer drives a [Context] in real time without an audio device, handing each
// rendered chunk to a sink. It lets a headless server produce audio whose
// clock advances at wall-clock speed, e.g. to stream clicks to a browser.
type Pacer struct {
	ctx   *Context
	chunk time.Duration
	sink  func(mono []float64)
}

// NewPacer returns a pacer rendering c every chunk. sink is called
// sequentially from [Pacer.Run] and must not block for long.
func NewPacer(c *Context, chunk time.Duration, sink func(mono []float64)) *Pacer {
	if chunk <= 0 {
		chunk = DefaultChunk
	}
	return &Pacer{ctx: c, chunk: chunk, sink: sink}
}

// Run renders until ctx is cancelled or the context is closed. The number of
// samples produced tracks elapsed wall time, so a slow tick is caught up on
// the next one rather than drifting.
func (p *Pacer) Run(ctx context.Context) error {
	sr := p.ctx.SampleRate()
	start := time.Now()
	var rendered int

	ticker := time.NewTicker(p.chunk)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		due := sr.N(time.Since(start))
		if due <= rendered {
			continue
		}
		mono := p.ctx.Render(due - rendered)
		if len(mono) == 0 && p.ctx.Closed() {
			return nil
		}
		rendered += len(mono)
		if p.sink != nil {
			p.sink(mono)
		}
	}
}
