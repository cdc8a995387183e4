// Package spikes reads spike trains from a ragged units table and bins
// them into peri-stimulus time histograms.
//
// The table is three 1-D datasets under a prefix (default "units"):
//
//	id                 unit identifiers
//	spike_times_index  cumulative end offset of each unit's spikes
//	spike_times        all spike times in seconds, unit after unit
package spikes
