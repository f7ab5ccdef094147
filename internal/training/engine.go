package training

// Checkpoint reasons passed to PolicyEngine.Checkpoint.
const (
	CheckpointReasonInterval = "episode_interval"
	CheckpointReasonShutdown = "shutdown"
)

// PolicyEngine is the capability surface the orchestrator drives. The
// orchestrator never depends on how actions are sampled, how values are
// estimated, or what a persisted checkpoint looks like on disk.
type PolicyEngine interface {
	// Initialize prepares the engine for a session and reports whether prior
	// persisted state for sessionKey was found and loaded.
	Initialize(spec ObservationSpec, actionSpace []int, sessionKey string) (checkpointLoaded bool, err error)

	// Act chooses an action for the given observation under the current
	// policy.
	Act(obs Observation) ([]int, error)

	// Evaluate returns the value estimate for obs and the log-probability of
	// action under the acting policy.
	Evaluate(obs Observation, action []int) (value, logProb float64, err error)

	// Train performs one policy update over a full rollout. bootstrapValue
	// is the value estimate for the observation following the last step.
	Train(steps []Transition, bootstrapValue float64) error

	// Checkpoint persists the engine's trainable state for sessionKey.
	Checkpoint(sessionKey, reason string) error
}
