// Package scheduler plans, fetches and orders block downloads.
package scheduler

// Planner decides which slots to fetch next.
//
// previous is the last slot handed out for download; 0 means uninitialized,
// in which case the first plan starts at the chain tip instead of backfilling.
type Planner struct {
	previous    uint64
	concurrency int
}

// NewPlanner creates a planner resuming after previous.
func NewPlanner(previous uint64, concurrency int) *Planner {
	return &Planner{previous: previous, concurrency: concurrency}
}

// Previous returns the last slot handed out.
func (p *Planner) Previous() uint64 {
	return p.previous
}

// Next returns up to concurrency consecutive slots after previous and not beyond latest,
// advancing previous past them.
func (p *Planner) Next(latest uint64) []uint64 {
	if latest == 0 || p.concurrency <= 0 || latest <= p.previous {
		return nil
	}
	if p.previous == 0 {
		p.previous = latest
		return []uint64{latest}
	}

	n := latest - p.previous
	if n > uint64(p.concurrency) {
		n = uint64(p.concurrency)
	}
	slots := make([]uint64, n)
	for i := range slots {
		slots[i] = p.previous + uint64(i) + 1
	}
	p.previous += n
	return slots
}
