package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

const checkpointFileName = "checkpoint.json"

// checkpointFile is the on-disk snapshot of the engine's trainable state.
// The layout is engine-internal; the orchestrator only relies on Checkpoint
// and the loaded flag from Initialize.
type checkpointFile struct {
	ObsSize      int     `json:"obs_size"`
	ActionSpace  []int   `json:"action_space"`
	TimesTrained int     `json:"times_trained"`
	Weights      weights `json:"weights"`
}

func (e *LinearEngine) checkpointPath(sessionKey string) string {
	return filepath.Join(e.cfg.ModelsDir, sessionKey, checkpointFileName)
}

// Checkpoint writes the current weights and counters for sessionKey.
func (e *LinearEngine) Checkpoint(sessionKey, reason string) error {
	dir := filepath.Join(e.cfg.ModelsDir, sessionKey)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	snap := checkpointFile{
		ObsSize:      e.obsSize,
		ActionSpace:  e.actionSpace,
		TimesTrained: e.timesTrained,
		Weights:      e.w,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := os.WriteFile(e.checkpointPath(sessionKey), data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}

	e.logger.Info().
		Str("boss", sessionKey).
		Str("reason", reason).
		Int("times_trained", e.timesTrained).
		Msg("Checkpoint written")
	return nil
}

// loadCheckpoint restores weights for sessionKey when a snapshot exists and
// its shapes match the current session. A shape mismatch is not an error;
// the engine simply starts fresh.
func (e *LinearEngine) loadCheckpoint(sessionKey string) (bool, error) {
	data, err := os.ReadFile(e.checkpointPath(sessionKey))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read checkpoint: %w", err)
	}

	var snap checkpointFile
	if err := json.Unmarshal(data, &snap); err != nil {
		return false, fmt.Errorf("decode checkpoint: %w", err)
	}
	if snap.ObsSize != e.obsSize || !slices.Equal(snap.ActionSpace, e.actionSpace) {
		e.logger.Warn().
			Str("boss", sessionKey).
			Int("checkpoint_obs_size", snap.ObsSize).
			Int("session_obs_size", e.obsSize).
			Msg("Checkpoint shapes do not match session, starting fresh")
		return false, nil
	}

	e.w = snap.Weights
	e.timesTrained = snap.TimesTrained
	return true, nil
}
