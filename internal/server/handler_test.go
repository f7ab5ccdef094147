package server

import (
	"encoding/binary"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitchelldurbincs/bossrl/internal/protocol"
	"github.com/mitchelldurbincs/bossrl/internal/training"
)

// stubEngine is a minimal deterministic policy engine for handler tests.
type stubEngine struct {
	action      []int
	checkpoints int
}

func (s *stubEngine) Initialize(spec training.ObservationSpec, actionSpace []int, sessionKey string) (bool, error) {
	return false, nil
}

func (s *stubEngine) Act(obs training.Observation) ([]int, error) {
	return s.action, nil
}

func (s *stubEngine) Evaluate(obs training.Observation, action []int) (float64, float64, error) {
	return 0.5, -0.7, nil
}

func (s *stubEngine) Train(steps []training.Transition, bootstrap float64) error {
	return nil
}

func (s *stubEngine) Checkpoint(key, reason string) error {
	s.checkpoints++
	return nil
}

func newTestHandler(t *testing.T, engine training.PolicyEngine, horizon int) (net.Conn, chan struct{}) {
	t.Helper()

	orch, err := training.NewOrchestrator(engine, horizon, 0)
	require.NoError(t, err)

	client, serverSide := net.Pipe()
	done := make(chan struct{})
	go func() {
		newHandler(serverSide, orch).run()
		close(done)
	}()
	t.Cleanup(func() { client.Close() })
	return client, done
}

func sendRecv(t *testing.T, conn net.Conn, msgType protocol.MessageType, payload any) (protocol.MessageType, json.RawMessage) {
	t.Helper()

	frame, err := protocol.Encode(msgType, payload)
	require.NoError(t, err)
	_, err = conn.Write(frame)
	require.NoError(t, err)

	respType, respPayload, err := protocol.Decode(conn)
	require.NoError(t, err)
	return respType, respPayload
}

func initPayload() protocol.InitRequest {
	return protocol.InitRequest{
		BossName:         "hornet",
		ObservationSize:  3,
		ActionSpaceShape: []int{2},
	}
}

func TestHandlerFullExchange(t *testing.T) {
	client, _ := newTestHandler(t, &stubEngine{action: []int{1}}, 100)

	respType, payload := sendRecv(t, client, protocol.MsgInitialize, initPayload())
	assert.Equal(t, protocol.MsgInitResponse, respType)

	var initResp protocol.InitResponse
	require.NoError(t, json.Unmarshal(payload, &initResp))
	assert.True(t, initResp.Initialized)
	assert.Equal(t, "hornet", initResp.BossName)
	assert.Equal(t, 3, initResp.ObservationSize)
	assert.False(t, initResp.CheckpointLoaded)

	respType, payload = sendRecv(t, client, protocol.MsgGetAction, protocol.ActionRequest{
		State: json.RawMessage(`[0.1,0.2,0.3]`),
	})
	assert.Equal(t, protocol.MsgActionResponse, respType)

	var actionResp protocol.ActionResponse
	require.NoError(t, json.Unmarshal(payload, &actionResp))
	assert.Equal(t, []int{1}, actionResp.Action)

	respType, payload = sendRecv(t, client, protocol.MsgStoreTransition, protocol.TransitionRequest{
		State:     json.RawMessage(`[0.1,0.2,0.3]`),
		Action:    []int{1},
		Reward:    1.0,
		NextState: json.RawMessage(`[0.4,0.5,0.6]`),
		Done:      false,
	})
	assert.Equal(t, protocol.MsgTransitionAck, respType)

	var ack protocol.TransitionAck
	require.NoError(t, json.Unmarshal(payload, &ack))
	assert.True(t, ack.Success)
}

func TestHandlerErrorBeforeInitializeKeepsConnectionOpen(t *testing.T) {
	client, _ := newTestHandler(t, &stubEngine{action: []int{0}}, 100)

	respType, payload := sendRecv(t, client, protocol.MsgGetAction, protocol.ActionRequest{
		State: json.RawMessage(`[0.1,0.2,0.3]`),
	})
	assert.Equal(t, protocol.MsgError, respType)

	var errResp protocol.ErrorResponse
	require.NoError(t, json.Unmarshal(payload, &errResp))
	assert.Contains(t, errResp.Error, "not initialized")

	// The connection survived; a subsequent INITIALIZE succeeds normally.
	respType, _ = sendRecv(t, client, protocol.MsgInitialize, initPayload())
	assert.Equal(t, protocol.MsgInitResponse, respType)
}

func TestHandlerMalformedJSONGetsErrorNotAck(t *testing.T) {
	client, _ := newTestHandler(t, &stubEngine{action: []int{0}}, 100)

	respType, _ := sendRecv(t, client, protocol.MsgInitialize, initPayload())
	require.Equal(t, protocol.MsgInitResponse, respType)

	// Hand-build a STORE_TRANSITION frame with truncated JSON.
	body := []byte(`{"state":[0.1,`)
	frame := make([]byte, 5+len(body))
	binary.BigEndian.PutUint32(frame[:4], uint32(1+len(body)))
	frame[4] = byte(protocol.MsgStoreTransition)
	copy(frame[5:], body)

	_, err := client.Write(frame)
	require.NoError(t, err)

	respType, payload, err := protocol.Decode(client)
	require.NoError(t, err)
	assert.Equal(t, protocol.MsgError, respType)

	var errResp protocol.ErrorResponse
	require.NoError(t, json.Unmarshal(payload, &errResp))
	assert.NotEmpty(t, errResp.Error)

	// Connection still serves valid traffic afterwards.
	respType, _ = sendRecv(t, client, protocol.MsgGetAction, protocol.ActionRequest{
		State: json.RawMessage(`[0.1,0.2,0.3]`),
	})
	assert.Equal(t, protocol.MsgActionResponse, respType)
}

func TestHandlerServerOnlyTagIsRejected(t *testing.T) {
	client, _ := newTestHandler(t, &stubEngine{action: []int{0}}, 100)

	respType, payload := sendRecv(t, client, protocol.MsgInitResponse, protocol.InitResponse{})
	assert.Equal(t, protocol.MsgError, respType)

	var errResp protocol.ErrorResponse
	require.NoError(t, json.Unmarshal(payload, &errResp))
	assert.Contains(t, errResp.Error, "unexpected message type")
}

func TestHandlerDisconnectEndsLoop(t *testing.T) {
	client, done := newTestHandler(t, &stubEngine{action: []int{0}}, 100)

	require.NoError(t, client.Close())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler loop did not exit after client disconnect")
	}
}
