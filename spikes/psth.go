package spikes

// DefaultBins is the number of PSTH bins.
const DefaultBins = 30

// Trial is the spike times of one trial, aligned so that 0 is the event,
// tagged with the group it belongs to.
type Trial struct {
	Times []float64
	Group string
}

// GroupRates is the firing rate per bin for one group, in Hz.
type GroupRates struct {
	Group  string
	Trials int
	Rates  []float64
}

// Histogram holds the per-group rates over common bin edges.
type Histogram struct {
	Edges  []float64
	Groups []GroupRates
}

// MaxRate returns the largest rate across all groups.
func (h Histogram) MaxRate() float64 {
	var m float64
	for _, g := range h.Groups {
		for _, r := range g.Rates {
			m = max(m, r)
		}
	}
	return m
}

// PSTH bins the trials of each group over [start, end) into bins equal
// bins and returns count / trials / binWidth per bin. Groups without any
// trial are left out. bins <= 0 selects DefaultBins.
func PSTH(trials []Trial, groups []string, start, end float64, bins int) Histogram {
	if bins <= 0 {
		bins = DefaultBins
	}
	width := (end - start) / float64(bins)

	edges := make([]float64, bins+1)
	for i := range edges {
		edges[i] = start + float64(i)*width
	}

	h := Histogram{Edges: edges}
	if width <= 0 {
		return h
	}

	for _, g := range groups {
		counts := make([]int, bins)
		n := 0
		for _, tr := range trials {
			if tr.Group != g {
				continue
			}
			n++
			for _, t := range tr.Times {
				if t < start || t >= end {
					continue
				}
				b := min(int((t-start)/width), bins-1)
				// Keep edge ties consistent with the edge table.
				for b > 0 && t < edges[b] {
					b--
				}
				for b < bins-1 && t >= edges[b+1] {
					b++
				}
				counts[b]++
			}
		}
		if n == 0 {
			continue
		}

		rates := make([]float64, bins)
		for i, c := range counts {
			rates[i] = float64(c) / float64(n) / width
		}
		h.Groups = append(h.Groups, GroupRates{Group: g, Trials: n, Rates: rates})
	}
	return h
}

// Align returns the spike times of train relative to each event, keeping
// those within [start, end) of the event, as one trial per event.
func Align(train []float64, events []float64, groups []string, start, end float64) []Trial {
	trials := make([]Trial, len(events))
	for i, ev := range events {
		tr := Trial{Times: []float64{}}
		if i < len(groups) {
			tr.Group = groups[i]
		}
		for _, t := range train {
			if d := t - ev; d >= start && d < end {
				tr.Times = append(tr.Times, d)
			}
		}
		trials[i] = tr
	}
	return trials
}
