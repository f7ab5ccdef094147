// Package training owns the session-level state machine of the boss-training
// server: episode bookkeeping, rollout accumulation, and the decision of
// when to train and when to checkpoint. All numeric policy work is delegated
// to a PolicyEngine.
package training

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// defaultActionSpace is used when INITIALIZE carries no action_space_shape:
// a single binary action dimension.
var defaultActionSpace = []int{2}

// summaryWindow is how many recent episodes feed the reward summary logged
// after each training update.
const summaryWindow = 20

// Session is the single active training context, created by INITIALIZE and
// replaced wholesale by re-INITIALIZE.
type Session struct {
	Key         string
	ObsSpec     ObservationSpec
	ActionSpace []int

	// lastDone carries the previous transition's done flag so the next
	// stored transition can be tagged as an episode start. Deliberately one
	// step behind; see Orchestrator.StoreTransition.
	lastDone bool
}

// Orchestrator turns the stream of protocol-level calls into policy engine
// calls while maintaining the buffer-occupancy and episode invariants. It is
// built for one concurrently-active game client; a single mutex serializes
// every operation so a second connection cannot corrupt shared state.
type Orchestrator struct {
	mu sync.Mutex

	engine             PolicyEngine
	horizon            int
	checkpointInterval int

	sess    *Session
	buffer  *RolloutBuffer
	stats   *EpisodeStats
	updates int

	logger zerolog.Logger
}

// NewOrchestrator validates the rollout horizon (must be positive; a horizon
// of 1 trains after every transition) and the checkpoint interval (0
// disables checkpointing).
func NewOrchestrator(engine PolicyEngine, horizon, checkpointInterval int) (*Orchestrator, error) {
	if horizon <= 0 {
		return nil, fmt.Errorf("rollout horizon must be positive, got %d", horizon)
	}
	if checkpointInterval < 0 {
		return nil, fmt.Errorf("checkpoint interval must be non-negative, got %d", checkpointInterval)
	}
	return &Orchestrator{
		engine:             engine,
		horizon:            horizon,
		checkpointInterval: checkpointInterval,
		logger:             log.With().Str("component", "orchestrator").Logger(),
	}, nil
}

// Initialize creates (or re-creates) the session. Re-initialization is
// always permitted and always a full reset of the rollout buffer and
// episode statistics, never a merge.
func (o *Orchestrator) Initialize(sessionKey string, spec ObservationSpec, actionSpace []int) (checkpointLoaded bool, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if sessionKey == "" {
		return false, fmt.Errorf("boss_name must not be empty")
	}
	if err := spec.Validate(); err != nil {
		return false, err
	}
	if len(actionSpace) == 0 {
		actionSpace = defaultActionSpace
	}
	for i, n := range actionSpace {
		if n <= 0 {
			return false, fmt.Errorf("action_space_shape[%d] must be positive, got %d", i, n)
		}
	}

	loaded, err := o.engine.Initialize(spec, actionSpace, sessionKey)
	if err != nil {
		return false, &PolicyEngineError{Op: "initialize", Err: err}
	}

	if o.sess != nil {
		o.logger.Info().Str("boss", o.sess.Key).Msg("Discarding previous session on re-initialize")
	}
	o.sess = &Session{Key: sessionKey, ObsSpec: spec, ActionSpace: actionSpace}
	o.buffer = NewRolloutBuffer(o.horizon)
	o.stats = &EpisodeStats{}
	o.updates = 0

	o.logger.Info().
		Str("boss", sessionKey).
		Str("observation_type", string(spec.Type)).
		Int("observation_size", spec.Size).
		Ints("action_space", actionSpace).
		Int("rollout_horizon", o.horizon).
		Int("checkpoint_interval", o.checkpointInterval).
		Bool("checkpoint_loaded", loaded).
		Msg("Session initialized")
	return loaded, nil
}

// GetAction forwards an observation to the policy engine and returns the
// chosen action verbatim. It mutates neither the buffer nor the episode
// statistics.
func (o *Orchestrator) GetAction(rawState json.RawMessage) ([]int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.sess == nil {
		return nil, ErrNotInitialized
	}
	obs, err := o.sess.ObsSpec.Parse(rawState)
	if err != nil {
		return nil, err
	}
	action, err := o.engine.Act(obs)
	if err != nil {
		return nil, &PolicyEngineError{Op: "act", Err: err}
	}
	return action, nil
}

// StoreTransition accepts one transition and runs the full bookkeeping
// sequence as a single unit: reward accumulation, episode completion on
// done, buffer append, and the training trigger when the buffer reaches the
// horizon. The training update completes before this call returns.
func (o *Orchestrator) StoreTransition(rawState json.RawMessage, action []int, reward float64, rawNextState json.RawMessage, done bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.sess == nil {
		return ErrNotInitialized
	}
	obs, err := o.sess.ObsSpec.Parse(rawState)
	if err != nil {
		return err
	}
	nextObs, err := o.sess.ObsSpec.Parse(rawNextState)
	if err != nil {
		return err
	}
	if len(action) != len(o.sess.ActionSpace) {
		return &ShapeMismatchError{Field: "action", Want: len(o.sess.ActionSpace), Got: len(action)}
	}

	o.stats.AddReward(reward)
	if done {
		if err := o.completeEpisode(); err != nil {
			return err
		}
	}

	value, logProb, err := o.engine.Evaluate(obs, action)
	if err != nil {
		return &PolicyEngineError{Op: "evaluate", Err: err}
	}

	// The episode-start flag reflects the previous call's done, not the
	// current one, so the buffer marks trajectory boundaries one step late.
	// This matches how the flag propagates through the acting loop and is a
	// deliberate contract.
	err = o.buffer.Add(Transition{
		Obs:          obs,
		Action:       action,
		Reward:       reward,
		Value:        value,
		LogProb:      logProb,
		EpisodeStart: o.sess.lastDone,
	})
	if err != nil {
		return err
	}
	o.sess.lastDone = done

	if o.buffer.Full() {
		return o.finishRolloutAndTrain(nextObs)
	}
	return nil
}

// completeEpisode flushes the in-flight episode and emits a checkpoint when
// the completed count hits a positive multiple of the interval. Evaluated
// once per completed episode, never per transition.
func (o *Orchestrator) completeEpisode() error {
	reward := o.stats.CurrentReward()
	completed := o.stats.FlushEpisode()

	o.logger.Debug().
		Int("episode", completed).
		Float64("reward", reward).
		Msg("Episode completed")

	if o.checkpointInterval > 0 && completed%o.checkpointInterval == 0 {
		if err := o.engine.Checkpoint(o.sess.Key, CheckpointReasonInterval); err != nil {
			return &PolicyEngineError{Op: "checkpoint", Err: err}
		}
		o.logger.Info().
			Str("boss", o.sess.Key).
			Int("episodes", completed).
			Msg("Checkpoint saved")
	}
	return nil
}

// finishRolloutAndTrain bootstraps a value for the observation following the
// last buffered step, trains over the full buffer, and resets it. Because
// the in-flight episode has not received its terminal done, it is flushed
// here exactly like an explicit done; a rollout boundary therefore forces an
// episode boundary even mid-episode.
func (o *Orchestrator) finishRolloutAndTrain(nextObs Observation) error {
	steps := o.buffer.Steps()
	last := steps[len(steps)-1]

	bootstrap, _, err := o.engine.Evaluate(nextObs, last.Action)
	if err != nil {
		return &PolicyEngineError{Op: "evaluate bootstrap", Err: err}
	}
	if err := o.engine.Train(steps, bootstrap); err != nil {
		return &PolicyEngineError{Op: "train", Err: err}
	}
	o.buffer.Reset()
	o.updates++

	if err := o.completeEpisode(); err != nil {
		return err
	}

	mean, std := o.stats.RecentSummary(summaryWindow)
	o.logger.Info().
		Int("update", o.updates).
		Int("episodes", o.stats.Completed()).
		Float64("recent_reward_mean", mean).
		Float64("recent_reward_std", std).
		Msg("Training update performed")
	return nil
}

// Shutdown persists a final checkpoint when a session is live. Called from
// the process signal path.
func (o *Orchestrator) Shutdown() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.sess == nil {
		return nil
	}
	if err := o.engine.Checkpoint(o.sess.Key, CheckpointReasonShutdown); err != nil {
		return &PolicyEngineError{Op: "checkpoint", Err: err}
	}
	o.logger.Info().Str("boss", o.sess.Key).Msg("Shutdown checkpoint saved")
	return nil
}

// Ready reports whether a session has been initialized.
func (o *Orchestrator) Ready() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sess != nil
}

// BufferOccupancy returns the rollout buffer's current length.
func (o *Orchestrator) BufferOccupancy() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.buffer == nil {
		return 0
	}
	return o.buffer.Len()
}

// Updates returns the number of training updates performed this session.
func (o *Orchestrator) Updates() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.updates
}

// EpisodesCompleted returns the monotonic completed-episode count.
func (o *Orchestrator) EpisodesCompleted() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stats == nil {
		return 0
	}
	return o.stats.Completed()
}

// EpisodeRewards returns a copy of the completed-episode reward history.
func (o *Orchestrator) EpisodeRewards() []float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stats == nil {
		return nil
	}
	return o.stats.History()
}
