package training

// Transition is one step as stored in the rollout buffer, enriched with the
// value estimate and log-probability the policy engine computed for it.
// EpisodeStart marks the first step of a trajectory; it reflects whether the
// previous stored transition ended an episode.
type Transition struct {
	Obs          Observation
	Action       []int
	Reward       float64
	Value        float64
	LogProb      float64
	EpisodeStart bool
}

// RolloutBuffer accumulates transitions up to a fixed horizon. Occupancy
// never exceeds the horizon; reaching it triggers a training update, after
// which the buffer is reset.
type RolloutBuffer struct {
	steps   []Transition
	horizon int
}

func NewRolloutBuffer(horizon int) *RolloutBuffer {
	return &RolloutBuffer{
		steps:   make([]Transition, 0, horizon),
		horizon: horizon,
	}
}

// Add appends a transition. Adding to a full buffer is refused so the
// occupancy invariant survives a failed training update.
func (b *RolloutBuffer) Add(t Transition) error {
	if len(b.steps) >= b.horizon {
		return ErrBufferFull
	}
	b.steps = append(b.steps, t)
	return nil
}

func (b *RolloutBuffer) Len() int { return len(b.steps) }

func (b *RolloutBuffer) Full() bool { return len(b.steps) >= b.horizon }

// Steps returns the buffered transitions in insertion order. The slice is
// only valid until the next Reset.
func (b *RolloutBuffer) Steps() []Transition { return b.steps }

func (b *RolloutBuffer) Reset() { b.steps = b.steps[:0] }
