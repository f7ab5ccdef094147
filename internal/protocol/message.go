package protocol

import (
	"encoding/json"
	"fmt"
)

// MessageType is the one-byte tag that follows the length prefix of every frame.
type MessageType byte

const (
	// Client -> Server
	MsgInitialize      MessageType = 0
	MsgGetAction       MessageType = 1
	MsgStoreTransition MessageType = 2

	// Server -> Client
	MsgInitResponse   MessageType = 10
	MsgActionResponse MessageType = 11
	MsgTransitionAck  MessageType = 12
	MsgError          MessageType = 255
)

// Valid reports whether t is one of the known message tags.
func (t MessageType) Valid() bool {
	switch t {
	case MsgInitialize, MsgGetAction, MsgStoreTransition,
		MsgInitResponse, MsgActionResponse, MsgTransitionAck, MsgError:
		return true
	}
	return false
}

func (t MessageType) String() string {
	switch t {
	case MsgInitialize:
		return "INITIALIZE"
	case MsgGetAction:
		return "GET_ACTION"
	case MsgStoreTransition:
		return "STORE_TRANSITION"
	case MsgInitResponse:
		return "INIT_RESPONSE"
	case MsgActionResponse:
		return "ACTION_RESPONSE"
	case MsgTransitionAck:
		return "TRANSITION_ACK"
	case MsgError:
		return "ERROR"
	}
	return fmt.Sprintf("UNKNOWN(%d)", byte(t))
}

// InitRequest starts (or restarts) a training session for one boss fight.
// Observation type defaults to "vector" and vector_obs_size to
// observation_size when the client omits them.
type InitRequest struct {
	BossName         string `json:"boss_name"`
	ObservationSize  int    `json:"observation_size"`
	ActionSpaceShape []int  `json:"action_space_shape,omitempty"`
	ObservationType  string `json:"observation_type,omitempty"`
	VectorObsSize    int    `json:"vector_obs_size,omitempty"`
	VisualWidth      int    `json:"visual_width,omitempty"`
	VisualHeight     int    `json:"visual_height,omitempty"`
}

type InitResponse struct {
	Initialized      bool   `json:"initialized"`
	BossName         string `json:"boss_name"`
	ObservationSize  int    `json:"observation_size"`
	CheckpointLoaded bool   `json:"checkpoint_loaded"`
}

// ActionRequest carries the current observation. The state layout depends on
// the observation type declared at INITIALIZE, so it stays raw here and is
// parsed by the session.
type ActionRequest struct {
	State json.RawMessage `json:"state"`
}

type ActionResponse struct {
	Action []int `json:"action"`
}

type TransitionRequest struct {
	State     json.RawMessage `json:"state"`
	Action    []int           `json:"action"`
	Reward    float64         `json:"reward"`
	NextState json.RawMessage `json:"next_state"`
	Done      bool            `json:"done"`
}

type TransitionAck struct {
	Success bool `json:"success"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
