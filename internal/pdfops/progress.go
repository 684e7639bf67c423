package pdfops

import "sync"

// ProgressFunc receives a completion percentage in [0, 100]. Calls for one
// operation never decrease.
type ProgressFunc func(percent int)

type progress struct {
	mu   sync.Mutex
	fn   ProgressFunc
	last int
}

func newProgress(fn ProgressFunc) *progress {
	return &progress{fn: fn, last: -1}
}

// report clamps p and drops values that would move backwards.
func (p *progress) report(pct int) {
	if p == nil || p.fn == nil {
		return
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	p.mu.Lock()
	if pct <= p.last {
		p.mu.Unlock()
		return
	}
	p.last = pct
	p.mu.Unlock()
	p.fn(pct)
}

// step reports done of total scaled into [from, to].
func (p *progress) step(done, total, from, to int) {
	if total <= 0 {
		p.report(to)
		return
	}
	p.report(from + (to-from)*done/total)
}
