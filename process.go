package ecalveto

import (
	"fmt"
)

// Sink receives completed rows.
type Sink interface {
	Fill(v *Vector) error
}

// Process runs one group of input files through an event handler.
type Process struct {
	ID      string
	Scratch *Scratch

	// Start is the first entry to process, Max the number of entries
	// (Max < 0 processes all remaining entries).
	Start int64
	Max   int64
	// PFreq is the progress reporting period, in events.
	PFreq int64

	processed int64
}

// Range returns the entry range to process out of n entries.
func (p *Process) Range(n int64) (beg, end int64) {
	beg = max(p.Start, 0)
	beg = min(beg, n)
	end = n
	if p.Max >= 0 && beg+p.Max < n {
		end = beg + p.Max
	}
	return beg, end
}

func (p *Process) Processed() int64 { return p.processed }

func (p *Process) tick(entry int64) {
	p.processed++
	if p.PFreq > 0 && p.processed%p.PFreq == 0 {
		Logf("%s: processing event %d (%d done)", p.ID, entry, p.processed)
	}
}

// RunEvents reads raw events and calls fn on each. The first error aborts.
func (p *Process) RunEvents(r *EventReader, fn func(ev *Event) error) error {
	beg, end := p.Range(r.Entries())
	Logf("%s: running over entries [%d, %d)", p.ID, beg, end)
	err := r.Read(beg, end, func(ev *Event) error {
		p.tick(ev.Number)
		return fn(ev)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", p.ID, err)
	}
	return nil
}

// RunFlat reads flat-tree rows and calls fn on each. The first error aborts.
func (p *Process) RunFlat(r *FlatReader, fn func(v *Vector) error) error {
	beg, end := p.Range(r.Entries())
	Logf("%s: running over entries [%d, %d)", p.ID, beg, end)
	err := r.Read(beg, end, func(entry int64, v *Vector) error {
		p.tick(entry)
		return fn(v)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", p.ID, err)
	}
	return nil
}

// TreeJob turns raw events into flat-tree rows, one sink per category.
type TreeJob struct {
	Extractor *Extractor
	Router    *Router
	Sinks     map[Category]Sink

	counts map[Category]int64
}

func NewTreeJob(x *Extractor, r *Router, sinks map[Category]Sink) (*TreeJob, error) {
	for _, c := range r.Categories() {
		if sinks[c] == nil {
			return nil, fmt.Errorf("no output for category %v", c)
		}
	}
	return &TreeJob{Extractor: x, Router: r, Sinks: sinks, counts: make(map[Category]int64)}, nil
}

func (j *TreeJob) Process(ev *Event) error {
	feats, tracks, err := j.Extractor.Extract(ev)
	if err != nil {
		return err
	}
	cat := j.Router.Route(tracks.Electron, tracks.Photon)
	if err := j.Sinks[cat].Fill(feats); err != nil {
		return err
	}
	j.counts[cat]++
	return nil
}

// Counts returns the number of rows written per category.
func (j *TreeJob) Counts() map[Category]int64 {
	out := make(map[Category]int64, len(j.counts))
	for c, n := range j.counts {
		out[c] = n
	}
	return out
}
