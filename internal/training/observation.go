package training

import (
	"encoding/json"
	"fmt"
)

// ObservationType selects the wire layout of every state payload for the
// lifetime of a session. It is declared once at INITIALIZE, never inferred
// per message.
type ObservationType string

const (
	// ObsVector observations are a flat JSON array of floats.
	ObsVector ObservationType = "vector"
	// ObsHybrid observations are an object with a "vector" array and a
	// row-major "visual" array of visual_width*visual_height floats.
	ObsHybrid ObservationType = "hybrid"
)

// ObservationSpec describes the observation space a session was initialized
// with.
type ObservationSpec struct {
	Type         ObservationType
	Size         int // total flattened size
	VectorSize   int
	VisualWidth  int
	VisualHeight int
}

func (s ObservationSpec) Validate() error {
	if s.Size <= 0 {
		return fmt.Errorf("observation_size must be positive, got %d", s.Size)
	}
	switch s.Type {
	case ObsVector:
		return nil
	case ObsHybrid:
		if s.VectorSize <= 0 {
			return fmt.Errorf("vector_obs_size must be positive for hybrid observations, got %d", s.VectorSize)
		}
		if s.VisualWidth <= 0 || s.VisualHeight <= 0 {
			return fmt.Errorf("visual dimensions must be positive for hybrid observations, got %dx%d", s.VisualWidth, s.VisualHeight)
		}
		return nil
	default:
		return fmt.Errorf("unknown observation_type %q", s.Type)
	}
}

// Observation is one parsed state. Visual is empty unless the session's
// observation type is hybrid.
type Observation struct {
	Vector []float64
	Visual []float64
}

// Flat returns the observation as one feature vector, visual part appended
// after the vector part.
func (o Observation) Flat() []float64 {
	if len(o.Visual) == 0 {
		return o.Vector
	}
	flat := make([]float64, 0, len(o.Vector)+len(o.Visual))
	flat = append(flat, o.Vector...)
	flat = append(flat, o.Visual...)
	return flat
}

type hybridPayload struct {
	Vector []float64 `json:"vector"`
	Visual []float64 `json:"visual"`
}

// Parse decodes a raw state payload according to the declared layout.
// Size mismatches are *ShapeMismatchError.
func (s ObservationSpec) Parse(raw json.RawMessage) (Observation, error) {
	switch s.Type {
	case ObsHybrid:
		var p hybridPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return Observation{}, fmt.Errorf("decode hybrid observation: %w", err)
		}
		if len(p.Vector) != s.VectorSize {
			return Observation{}, &ShapeMismatchError{Field: "observation vector part", Want: s.VectorSize, Got: len(p.Vector)}
		}
		if want := s.VisualWidth * s.VisualHeight; len(p.Visual) != want {
			return Observation{}, &ShapeMismatchError{Field: "observation visual part", Want: want, Got: len(p.Visual)}
		}
		return Observation{Vector: p.Vector, Visual: p.Visual}, nil
	default:
		var v []float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return Observation{}, fmt.Errorf("decode observation: %w", err)
		}
		if len(v) != s.Size {
			return Observation{}, &ShapeMismatchError{Field: "observation", Want: s.Size, Got: len(v)}
		}
		return Observation{Vector: v}, nil
	}
}
