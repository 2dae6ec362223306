package main

import "time"

// audioLevel is one tick's reduction of the frequency bins.
type audioLevel struct {
	Average float64
	Peak    float64
	At      time.Time
}

type binSource interface {
	Bins() []byte
}

type levelSampler struct {
	src binSource
}

func newLevelSampler(src binSource) *levelSampler {
	return &levelSampler{src: src}
}

func (s *levelSampler) Sample(now time.Time) audioLevel {
	bins := s.src.Bins()
	if len(bins) == 0 {
		return audioLevel{At: now}
	}
	var sum float64
	var peak byte
	for _, b := range bins {
		sum += float64(b)
		if b > peak {
			peak = b
		}
	}
	return audioLevel{
		Average: sum / float64(len(bins)),
		Peak:    float64(peak),
		At:      now,
	}
}
