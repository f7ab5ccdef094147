package training

import "gonum.org/v1/gonum/stat"

// EpisodeStats tracks episode counts and rewards for one session. The
// history is append-only; an entry may come from a true terminal transition
// or from a rollout boundary that truncated an episode early.
type EpisodeStats struct {
	completed int
	current   float64
	history   []float64
}

// AddReward accumulates reward into the in-flight episode.
func (s *EpisodeStats) AddReward(r float64) { s.current += r }

// FlushEpisode closes the in-flight episode: appends its cumulative reward
// to the history, zeroes the accumulator, and returns the new completed
// count.
func (s *EpisodeStats) FlushEpisode() int {
	s.completed++
	s.history = append(s.history, s.current)
	s.current = 0
	return s.completed
}

func (s *EpisodeStats) Completed() int { return s.completed }

func (s *EpisodeStats) CurrentReward() float64 { return s.current }

// History returns a copy of the completed-episode reward history.
func (s *EpisodeStats) History() []float64 {
	out := make([]float64, len(s.history))
	copy(out, s.history)
	return out
}

// RecentSummary returns mean and standard deviation over the last n
// completed episodes (or all of them when fewer exist).
func (s *EpisodeStats) RecentSummary(n int) (mean, std float64) {
	if len(s.history) == 0 {
		return 0, 0
	}
	window := s.history
	if n > 0 && len(window) > n {
		window = window[len(window)-n:]
	}
	mean = stat.Mean(window, nil)
	if len(window) > 1 {
		std = stat.StdDev(window, nil)
	}
	return mean, std
}
