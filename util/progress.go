package util

import (
	"io/ioutil"
	"sync/atomic"

	"github.com/vbauerster/mpb"
	"github.com/vbauerster/mpb/decor"
)

// ProgressBar is a single counting bar in its own progress container
type ProgressBar struct {
	p     *mpb.Progress
	bar   *mpb.Bar
	total int64
	done  int64
}

// NewProgressBar creates a progress bar counting to total. The bar is
// drawn to stdout only if show is set.
func NewProgressBar(name string, total int, show bool) *ProgressBar {
	if total <= 0 {
		return &ProgressBar{}
	}
	opts := []mpb.ProgressOption{mpb.WithWidth(20)}
	if !show {
		opts = append(opts, mpb.WithOutput(ioutil.Discard))
	}
	p := mpb.New(opts...)
	bar := p.AddBar(int64(total),
		mpb.PrependDecorators(
			decor.Name("\t[-] "+name+":", decor.WC{W: 30, C: decor.DidentRight}),
			decor.CountersNoUnit(" %d / %d ", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(decor.Percentage()),
	)
	return &ProgressBar{p: p, bar: bar, total: int64(total)}
}

// Increment advances the bar by one
func (b *ProgressBar) Increment() {
	if b.bar == nil {
		return
	}
	if atomic.AddInt64(&b.done, 1) <= b.total {
		b.bar.IncrBy(1)
	}
}

// Wait fills up whatever is left of the bar and waits for it to render.
// Jobs stopped early still release the container this way.
func (b *ProgressBar) Wait() {
	if b.bar == nil {
		return
	}
	remaining := b.total - atomic.LoadInt64(&b.done)
	if remaining > 0 {
		atomic.AddInt64(&b.done, remaining)
		b.bar.IncrBy(int(remaining))
	}
	b.p.Wait()
}
