// Package policy provides the built-in policy engine: an advantage-weighted
// linear softmax policy with a linear value head. It exists so the training
// server runs end to end without an external learner; the orchestrator only
// ever sees the training.PolicyEngine contract.
package policy

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	erand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/sampleuv"

	"github.com/mitchelldurbincs/bossrl/internal/training"
)

// Config holds the engine's hyperparameters and checkpoint location.
type Config struct {
	ModelsDir    string
	Gamma        float64
	LearningRate float64
	Seed         uint64 // 0 seeds from the clock
}

// weights is the full trainable state: one softmax head per action
// dimension plus a shared value head, all over the flattened observation.
type weights struct {
	Heads    [][][]float64 `json:"heads"` // [dim][choice][feature]
	HeadBias [][]float64   `json:"head_bias"`
	Value    []float64     `json:"value"`
	ValueBias float64      `json:"value_bias"`
}

// LinearEngine implements training.PolicyEngine.
type LinearEngine struct {
	cfg Config
	src erand.Source

	obsSize      int
	actionSpace  []int
	w            weights
	timesTrained int

	logger zerolog.Logger
}

var _ training.PolicyEngine = (*LinearEngine)(nil)

func NewEngine(cfg Config) *LinearEngine {
	if cfg.Gamma <= 0 || cfg.Gamma > 1 {
		cfg.Gamma = 0.99
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 3e-4
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &LinearEngine{
		cfg:    cfg,
		src:    erand.NewSource(seed),
		logger: log.With().Str("component", "linear_engine").Logger(),
	}
}

// Initialize sizes the weights for the session's shapes and loads a prior
// checkpoint for sessionKey when one exists and matches.
func (e *LinearEngine) Initialize(spec training.ObservationSpec, actionSpace []int, sessionKey string) (bool, error) {
	e.obsSize = spec.Size
	e.actionSpace = append([]int(nil), actionSpace...)
	e.w = newWeights(spec.Size, actionSpace)
	e.timesTrained = 0

	loaded, err := e.loadCheckpoint(sessionKey)
	if err != nil {
		return false, err
	}
	if loaded {
		e.logger.Info().
			Str("boss", sessionKey).
			Int("times_trained", e.timesTrained).
			Msg("Loaded checkpoint")
	}
	return loaded, nil
}

func newWeights(obsSize int, actionSpace []int) weights {
	w := weights{
		Heads:    make([][][]float64, len(actionSpace)),
		HeadBias: make([][]float64, len(actionSpace)),
		Value:    make([]float64, obsSize),
	}
	for d, n := range actionSpace {
		w.Heads[d] = make([][]float64, n)
		for c := range w.Heads[d] {
			w.Heads[d][c] = make([]float64, obsSize)
		}
		w.HeadBias[d] = make([]float64, n)
	}
	return w
}

// Act samples one choice per action dimension from the softmax heads.
func (e *LinearEngine) Act(obs training.Observation) ([]int, error) {
	x, err := e.features(obs)
	if err != nil {
		return nil, err
	}

	action := make([]int, len(e.actionSpace))
	for d := range e.actionSpace {
		probs := softmax(e.logits(d, x))
		choice, ok := sampleuv.NewWeighted(probs, e.src).Take()
		if !ok {
			return nil, fmt.Errorf("sample action dimension %d: degenerate distribution", d)
		}
		action[d] = choice
	}
	return action, nil
}

// Evaluate returns the value estimate for obs and the log-probability of
// action under the current policy (summed across action dimensions).
func (e *LinearEngine) Evaluate(obs training.Observation, action []int) (float64, float64, error) {
	x, err := e.features(obs)
	if err != nil {
		return 0, 0, err
	}
	if len(action) != len(e.actionSpace) {
		return 0, 0, fmt.Errorf("action has %d dimensions, engine expects %d", len(action), len(e.actionSpace))
	}

	logProb := 0.0
	for d, a := range action {
		if a < 0 || a >= e.actionSpace[d] {
			return 0, 0, fmt.Errorf("action[%d]=%d out of range [0,%d)", d, a, e.actionSpace[d])
		}
		probs := softmax(e.logits(d, x))
		logProb += math.Log(probs[a] + 1e-8)
	}
	return e.value(x), logProb, nil
}

// Train runs one advantage-weighted policy gradient pass over the rollout,
// with discounted returns bootstrapped from the value estimate of the
// observation following the last step. Episode starts inside the buffer cut
// the return chain.
func (e *LinearEngine) Train(steps []training.Transition, bootstrapValue float64) error {
	if len(steps) == 0 {
		return fmt.Errorf("train called with empty rollout")
	}

	returns := make([]float64, len(steps))
	r := bootstrapValue
	for i := len(steps) - 1; i >= 0; i-- {
		if i+1 < len(steps) && steps[i+1].EpisodeStart {
			r = 0
		}
		r = steps[i].Reward + e.cfg.Gamma*r
		returns[i] = r
	}

	lr := e.cfg.LearningRate
	for i, step := range steps {
		x, err := e.features(step.Obs)
		if err != nil {
			return err
		}
		adv := returns[i] - step.Value

		for d, a := range step.Action {
			if a < 0 || a >= e.actionSpace[d] {
				return fmt.Errorf("stored action[%d]=%d out of range [0,%d)", d, a, e.actionSpace[d])
			}
			probs := softmax(e.logits(d, x))
			for c := range probs {
				g := -probs[c]
				if c == a {
					g += 1
				}
				for j, xj := range x {
					e.w.Heads[d][c][j] += lr * adv * g * xj
				}
				e.w.HeadBias[d][c] += lr * adv * g
			}
		}

		verr := returns[i] - e.value(x)
		for j, xj := range x {
			e.w.Value[j] += lr * verr * xj
		}
		e.w.ValueBias += lr * verr
	}

	e.timesTrained++
	e.logger.Debug().
		Int("times_trained", e.timesTrained).
		Int("rollout_steps", len(steps)).
		Msg("Policy updated")
	return nil
}

// TimesTrained returns the number of updates applied since the weights were
// created or loaded.
func (e *LinearEngine) TimesTrained() int { return e.timesTrained }

func (e *LinearEngine) features(obs training.Observation) ([]float64, error) {
	x := obs.Flat()
	if len(x) != e.obsSize {
		return nil, fmt.Errorf("observation has %d features, engine expects %d", len(x), e.obsSize)
	}
	return x, nil
}

func (e *LinearEngine) logits(dim int, x []float64) []float64 {
	head := e.w.Heads[dim]
	logits := make([]float64, len(head))
	for c := range head {
		v := e.w.HeadBias[dim][c]
		for j, xj := range x {
			v += head[c][j] * xj
		}
		logits[c] = v
	}
	return logits
}

func (e *LinearEngine) value(x []float64) float64 {
	v := e.w.ValueBias
	for j, xj := range x {
		v += e.w.Value[j] * xj
	}
	return v
}

func softmax(logits []float64) []float64 {
	max := logits[0]
	for _, v := range logits[1:] {
		if v > max {
			max = v
		}
	}
	probs := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		probs[i] = math.Exp(v - max)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}
